// Package normalizer 负责把各种导出格式的插件列表文本解析为规范记录
package normalizer

import (
	"strconv"
	"strings"
	"unicode"

	"ModWarden/internal/core/domain"
)

// Options 描述一套导出格式约定：注释符、启用/禁用标记、装饰符与需剥离的后缀。
// 不同的整理工具导出格式不同，约定集合可按需配置。
type Options struct {
	CommentTokens   []string // 整行注释前缀，命中后静默跳过
	EnabledMarkers  []string // 行首启用标记（如 MO2 的 '+'，经典格式的 '*'）
	DisabledMarkers []string // 行首禁用标记（如 MO2 的 '-'）
	Bullets         []string // 纯装饰的行首符号，剥离后继续解析
	StripSuffixes   []string // 表示文件状态而非身份的后缀（如 .ghost），参与身份前剥离
}

// DefaultOptions 返回覆盖常见导出约定的默认配置
func DefaultOptions() Options {
	return Options{
		CommentTokens:   []string{"#", ";", "//"},
		EnabledMarkers:  []string{"*", "+"},
		DisabledMarkers: []string{"-"},
		Bullets:         []string{"•", "·", "›", ">"},
		StripSuffixes:   []string{".ghost", ".bak", ".disabled"},
	}
}

// Normalize 把原始文本块解析为有序插件记录与解析告警。
// 永不失败：最坏情况返回空列表加告警，下游必须显式处理空列表。
// 重复规范名折叠为最后一次出现（保留其启用状态与位置），并产生一条告警。
func Normalize(raw string, opts Options) ([]domain.PluginRecord, []domain.ParseWarning) {
	records := make([]domain.PluginRecord, 0, 32)
	warnings := make([]domain.ParseWarning, 0)

	// 统一行结束符：\r\n 与孤立 \r 都折算为 \n
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	raw = strings.TrimPrefix(raw, "\uFEFF")

	seen := make(map[string]int) // canonical → records 下标
	position := 0

	for i, line := range strings.Split(raw, "\n") {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue // 空行静默跳过
		}
		if hasAnyPrefix(trimmed, opts.CommentTokens) {
			continue // 注释行静默跳过
		}

		enabled := true
		name := trimmed
		if marker, ok := matchPrefix(name, opts.DisabledMarkers); ok {
			enabled = false
			name = strings.TrimSpace(strings.TrimPrefix(name, marker))
		} else if marker, ok := matchPrefix(name, opts.EnabledMarkers); ok {
			name = strings.TrimSpace(strings.TrimPrefix(name, marker))
		}
		for {
			marker, ok := matchPrefix(name, opts.Bullets)
			if !ok {
				break
			}
			name = strings.TrimSpace(strings.TrimPrefix(name, marker))
		}

		if name == "" || isPurePunctuation(name) {
			warnings = append(warnings, domain.ParseWarning{
				Kind:   domain.WarnMalformedLine,
				Line:   lineNo,
				Raw:    line,
				Detail: "该行无法解析为插件名称，已跳过",
			})
			continue
		}

		canonical := Canonicalize(name, opts)
		rec := domain.PluginRecord{
			RawName:       name,
			CanonicalName: canonical,
			Enabled:       enabled,
			OriginLine:    lineNo,
			Position:      position,
		}
		position++

		if prev, dup := seen[canonical]; dup {
			// 折叠到最后一次出现：删除先前记录，本次记录带自己的位置追加到末尾
			warnings = append(warnings, domain.ParseWarning{
				Kind:    domain.WarnDuplicatePlugin,
				Line:    lineNo,
				Raw:     line,
				Subject: canonical,
				Detail:  "插件重复出现，保留最后一次（首次在第 " + strconv.Itoa(records[prev].OriginLine) + " 行）",
			})
			records = append(records[:prev], records[prev+1:]...)
			for name2, idx := range seen {
				if idx > prev {
					seen[name2] = idx - 1
				}
			}
		}
		seen[canonical] = len(records)
		records = append(records, rec)
	}

	return records, warnings
}

// Canonicalize 计算规范名：小写、压缩内部空白、剥离状态后缀。
// 纯函数且幂等：对已规范名再次调用返回原值。
func Canonicalize(name string, opts Options) string {
	c := strings.ToLower(strings.TrimSpace(name))
	c = strings.Join(strings.Fields(c), " ")
	// 状态后缀可能叠加（如 .disabled.ghost），剥离到不动点为止
	for stripped := true; stripped; {
		stripped = false
		for _, suffix := range opts.StripSuffixes {
			if strings.HasSuffix(c, suffix) {
				c = strings.TrimSuffix(c, suffix)
				stripped = true
			}
		}
	}
	return c
}

// hasAnyPrefix 判断 s 是否以集合中任意前缀开头
func hasAnyPrefix(s string, prefixes []string) bool {
	_, ok := matchPrefix(s, prefixes)
	return ok
}

// matchPrefix 返回命中的前缀（取最长者，避免 '-' 抢先命中 '--' 类约定）
func matchPrefix(s string, prefixes []string) (string, bool) {
	best := ""
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) && len(p) > len(best) {
			best = p
		}
	}
	return best, best != ""
}

// isPurePunctuation 判断字符串是否不含任何字母或数字
func isPurePunctuation(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
