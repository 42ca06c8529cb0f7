// Package rulestore 负责构建与发布不可变的规则集快照
package rulestore

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"ModWarden/internal/core/domain"
	"ModWarden/internal/core/port"

	"github.com/google/uuid"
)

// AdmissionPolicy 是按规则种类区分的准入阈值。
// 结构性规则（requires）比软性提示（patch_available）要求更高的可靠性。
// 阈值是可配置策略，不应硬编码。
type AdmissionPolicy struct {
	Thresholds map[domain.RuleKind]float64 `mapstructure:"thresholds"`
	Default    float64                     `mapstructure:"default"`
}

// DefaultAdmissionPolicy 返回默认准入策略
func DefaultAdmissionPolicy() AdmissionPolicy {
	return AdmissionPolicy{
		Thresholds: map[domain.RuleKind]float64{
			domain.RuleRequires:         0.75,
			domain.RuleIncompatibleWith: 0.70,
			domain.RuleLoadAfter:        0.60,
			domain.RuleLoadBefore:       0.60,
			domain.RulePatchAvailable:   0.40,
		},
		Default: 0.70,
	}
}

// ThresholdFor 返回某个规则种类的准入阈值
func (p AdmissionPolicy) ThresholdFor(kind domain.RuleKind) float64 {
	if t, ok := p.Thresholds[kind]; ok {
		return t
	}
	return p.Default
}

// BuildReport 记录一次构建的准入结果，供审计
type BuildReport struct {
	Admitted     int      `json:"admitted"`
	Rejected     int      `json:"rejected"`  // 低于准入阈值
	Discarded    int      `json:"discarded"` // 规则对冲突裁决中落败
	DiscardedIDs []string `json:"discarded_ids"`
}

// BuildRuleset 从候选规则与目录构建一个全新的不可变快照。
// 构建器对给定输入是纯函数（版本号与构建时间除外）：
// 过滤、裁决与排序全部确定性进行。目录缺失时拒绝构建（fail closed）。
func BuildRuleset(gameID string, candidates []domain.Rule, catalog []string, policy AdmissionPolicy) (*domain.Ruleset, *BuildReport, error) {
	if len(catalog) == 0 {
		return nil, nil, port.ErrCatalogMissing
	}

	report := &BuildReport{}

	// 第一步：按种类阈值过滤
	admitted := make([]domain.Rule, 0, len(candidates))
	for _, r := range candidates {
		if r.SupersededBy != "" {
			report.Rejected++
			continue
		}
		if r.ReliabilityScore < policy.ThresholdFor(r.Kind) {
			report.Rejected++
			continue
		}
		r.SubjectPattern = canonicalPattern(r.SubjectPattern)
		r.ObjectPattern = canonicalPattern(r.ObjectPattern)
		admitted = append(admitted, r)
	}

	// 第二步：同一插件对上的冲突裁决
	admitted = resolvePairConflicts(admitted, report)

	// 第三步：确定性排序，保证快照内规则遍历顺序稳定
	sort.SliceStable(admitted, func(i, j int) bool {
		a, b := &admitted[i], &admitted[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.SubjectPattern != b.SubjectPattern {
			return a.SubjectPattern < b.SubjectPattern
		}
		if a.ObjectPattern != b.ObjectPattern {
			return a.ObjectPattern < b.ObjectPattern
		}
		return a.ID < b.ID
	})
	report.Admitted = len(admitted)

	normalizedCatalog := make([]string, 0, len(catalog))
	for _, name := range catalog {
		normalizedCatalog = append(normalizedCatalog, canonicalPattern(name))
	}

	rs := &domain.Ruleset{
		GameID:     gameID,
		VersionTag: uuid.NewString(),
		Rules:      admitted,
		Catalog:    normalizedCatalog,
		BuiltAt:    time.Now().UTC(),
	}
	rs.SealCatalog()
	return rs, report, nil
}

// canonicalPattern 把模式统一为规范形态（小写、压缩空白）
func canonicalPattern(p string) string {
	return strings.Join(strings.Fields(strings.ToLower(p)), " ")
}

// orderingKinds 报告规则种类是否属于排序组（组内互相冲突裁决）
func orderingKinds(k domain.RuleKind) bool {
	return k == domain.RuleLoadAfter || k == domain.RuleLoadBefore
}

// resolvePairConflicts 裁决同一无序插件对上的冲突规则：
// 排序组内（load_after vs load_before）与同种类重复都只保留
// 可靠性更高者，平手时保留创建更晚者；落败者记录到审计。
func resolvePairConflicts(rules []domain.Rule, report *BuildReport) []domain.Rule {
	type slot struct{ idx int }
	winners := make(map[string]slot)
	keep := make([]bool, len(rules))

	groupKey := func(r *domain.Rule) string {
		a, b := r.SubjectPattern, r.ObjectPattern
		if a > b {
			a, b = b, a
		}
		group := string(r.Kind)
		if orderingKinds(r.Kind) {
			group = "ordering"
		}
		return group + "\x00" + a + "\x00" + b
	}

	for i := range rules {
		key := groupKey(&rules[i])
		cur, exists := winners[key]
		if !exists {
			winners[key] = slot{idx: i}
			keep[i] = true
			continue
		}
		if beats(&rules[i], &rules[cur.idx]) {
			keep[cur.idx] = false
			discard(&rules[cur.idx], &rules[i], report)
			winners[key] = slot{idx: i}
			keep[i] = true
		} else {
			discard(&rules[i], &rules[cur.idx], report)
		}
	}

	out := rules[:0]
	for i := range rules {
		if keep[i] {
			out = append(out, rules[i])
		}
	}
	return out
}

// beats 判断规则 a 是否在裁决中胜过 b
func beats(a, b *domain.Rule) bool {
	if a.ReliabilityScore != b.ReliabilityScore {
		return a.ReliabilityScore > b.ReliabilityScore
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// discard 记录被裁决淘汰的规则
func discard(loser, winner *domain.Rule, report *BuildReport) {
	report.Discarded++
	report.DiscardedIDs = append(report.DiscardedIDs, loser.ID)
	slog.Info("规则对冲突裁决：丢弃低可靠性规则",
		"discarded", loser.ID, "kept", winner.ID,
		"discarded_score", loser.ReliabilityScore, "kept_score", winner.ReliabilityScore)
}
