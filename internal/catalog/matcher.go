// Package catalog 负责在已知插件目录上做有界编辑距离的模糊匹配
package catalog

import (
	"sort"
	"time"
	"unicode/utf8"

	"ModWarden/internal/core/domain"

	"github.com/agext/levenshtein"
	gocache "github.com/patrickmn/go-cache"
)

// Policy 是模糊匹配的可调策略。
// 阈值属于策略而非常量，通过配置暴露以便调优与测试。
type Policy struct {
	BaseDistance  int     `mapstructure:"base_distance"`  // 短名称允许的最大编辑距离
	BaseLength    int     `mapstructure:"base_length"`    // 超过该长度后距离按比例放大
	MinConfidence float64 `mapstructure:"min_confidence"` // 低于该置信度不给出建议
}

// DefaultPolicy 返回默认匹配策略：短名距离≤2，按长度比例放大
func DefaultPolicy() Policy {
	return Policy{BaseDistance: 2, BaseLength: 20, MinConfidence: 0.75}
}

// MaxDistance 计算给定名称长度允许的最大编辑距离
func (p Policy) MaxDistance(nameLen int) int {
	if nameLen < p.BaseLength {
		return p.BaseDistance
	}
	return nameLen * p.BaseDistance / p.BaseLength
}

// Matcher 在规则集目录与规则模式名上解析近似名称。
// 同一 (快照版本, 名称) 的匹配结果带TTL缓存，避免大目录下的重复扫描。
type Matcher struct {
	policy Policy
	memo   *gocache.Cache
}

// NewMatcher 创建模糊匹配器
func NewMatcher(policy Policy) *Matcher {
	return &Matcher{
		policy: policy,
		memo:   gocache.New(10*time.Minute, 15*time.Minute),
	}
}

// candidate 是参与匹配的一个目录条目
type candidate struct {
	name       string
	ruleBacked bool // 是否有规则引用此名称（平手时优先）
}

// Match 对一个不在目录、也未被任何规则命中的规范名给出零或一个建议。
// 平手裁决严格按 (更小距离, 规则引用优先, 字典序) 进行，
// 绝不依赖无序结构的遍历顺序，保证输出可复现。
func (m *Matcher) Match(canonical string, rs *domain.Ruleset) *domain.Suggestion {
	key := rs.VersionTag + "|" + canonical
	if cached, ok := m.memo.Get(key); ok {
		if s, ok := cached.(*domain.Suggestion); ok {
			return s
		}
		return nil // 缓存了"无建议"
	}

	s := m.search(canonical, rs)
	if s == nil {
		m.memo.Set(key, false, gocache.DefaultExpiration)
	} else {
		m.memo.Set(key, s, gocache.DefaultExpiration)
	}
	return s
}

// search 执行实际的有界编辑距离扫描。
// 编辑距离按码点计，长度度量必须同样按码点，否则非ASCII名称的上界会虚高。
func (m *Matcher) search(canonical string, rs *domain.Ruleset) *domain.Suggestion {
	queryLen := utf8.RuneCountInString(canonical)
	maxDist := m.policy.MaxDistance(queryLen)
	candidates := collectCandidates(rs)

	best := -1
	bestDist := maxDist + 1
	for i := range candidates {
		c := &candidates[i]
		// 长度差已超出上界的候选不必计算
		if diff := utf8.RuneCountInString(c.name) - queryLen; diff > bestDist || -diff > bestDist {
			continue
		}
		dist := levenshtein.Distance(canonical, c.name, nil)
		if dist > maxDist || dist == 0 {
			continue
		}
		if best == -1 || less(dist, c, bestDist, &candidates[best]) {
			best = i
			bestDist = dist
		}
	}
	if best == -1 {
		return nil
	}

	longer := queryLen
	if l := utf8.RuneCountInString(candidates[best].name); l > longer {
		longer = l
	}
	confidence := 1.0 - float64(bestDist)/float64(longer)
	if confidence < m.policy.MinConfidence {
		return nil // 置信度不足时宁可报告"无法识别"
	}
	return &domain.Suggestion{
		SuggestedName: candidates[best].name,
		EditDistance:  bestDist,
		Confidence:    confidence,
	}
}

// less 判断候选 a（距离 distA）是否优于当前最优 b（距离 distB）
func less(distA int, a *candidate, distB int, b *candidate) bool {
	if distA != distB {
		return distA < distB
	}
	if a.ruleBacked != b.ruleBacked {
		return a.ruleBacked
	}
	return a.name < b.name
}

// collectCandidates 汇总目录与规则主/宾语中的精确名称，按字典序排列。
// 通配模式不产生候选：它们不是具体插件名。
func collectCandidates(rs *domain.Ruleset) []candidate {
	ruleNames := make(map[string]struct{})
	for i := range rs.Rules {
		if !domain.IsWildcard(rs.Rules[i].SubjectPattern) {
			ruleNames[rs.Rules[i].SubjectPattern] = struct{}{}
		}
		if !domain.IsWildcard(rs.Rules[i].ObjectPattern) {
			ruleNames[rs.Rules[i].ObjectPattern] = struct{}{}
		}
	}

	out := make([]candidate, 0, len(rs.Catalog)+len(ruleNames))
	for _, name := range rs.Catalog { // 目录本身已排序
		_, backed := ruleNames[name]
		out = append(out, candidate{name: name, ruleBacked: backed})
		delete(ruleNames, name)
	}
	extra := make([]string, 0, len(ruleNames))
	for name := range ruleNames {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, candidate{name: name, ruleBacked: true})
	}
	return out
}
