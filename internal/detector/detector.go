// Package detector 把规则集应用到规范化插件列表，产出冲突发现与排序约束
package detector

import (
	"sort"

	"ModWarden/internal/core/domain"
	"ModWarden/internal/resolver"
)

// LimitPolicy 描述引擎的插件数量上限策略。
// 阈值是可配置策略而非常量。
type LimitPolicy struct {
	WarnThreshold int `mapstructure:"warn_threshold"` // 达到即产生 warning
	HardCeiling   int `mapstructure:"hard_ceiling"`   // 达到即产生 error
}

// DefaultLimitPolicy 返回经典引擎的默认上限：硬上限255，预警240
func DefaultLimitPolicy() LimitPolicy {
	return LimitPolicy{WarnThreshold: 240, HardCeiling: 255}
}

// Detect 对规范化插件列表应用规则集。
// 返回的冲突列表已按 (严重等级降序, 首个受影响插件的提交位置升序) 稳定排序；
// 排序约束（load_after/load_before）不作为冲突产出，由解析器消费。
func Detect(
	plugins []domain.PluginRecord,
	warnings []domain.ParseWarning,
	unresolved []domain.UnresolvedName,
	rs *domain.Ruleset,
	policy LimitPolicy,
) ([]domain.Conflict, []resolver.OrderConstraint) {

	conflicts := make([]domain.Conflict, 0)
	constraints := make([]resolver.OrderConstraint, 0)

	index := make(map[string]*domain.PluginRecord, len(plugins))
	for i := range plugins {
		index[plugins[i].CanonicalName] = &plugins[i]
	}

	// 结构性检查一：上游已折叠的重复在此作为发现上报
	for _, w := range warnings {
		if w.Kind != domain.WarnDuplicatePlugin {
			continue
		}
		pos := 0
		if rec, ok := index[w.Subject]; ok {
			pos = rec.Position
		}
		conflicts = append(conflicts, domain.Conflict{
			Kind:       domain.ConflictDuplicatePlugin,
			Severity:   domain.SeverityWarning,
			Subjects:   []string{w.Subject},
			MessageKey: "duplicate_plugin",
			Resolution: domain.ResolutionNoAction,
			Position:   pos,
		})
	}

	// 结构性检查二：启用插件数对照上限策略
	if c := checkPluginLimit(plugins, policy); c != nil {
		conflicts = append(conflicts, *c)
	}

	// 规则评估：按快照内的确定性规则顺序遍历
	patchedPairs := collectPatchedPairs(rs, index)
	for i := range rs.Rules {
		rule := &rs.Rules[i]
		switch rule.Kind {
		case domain.RuleRequires:
			conflicts = append(conflicts, evalRequires(rule, plugins, index)...)
		case domain.RuleIncompatibleWith:
			conflicts = append(conflicts, evalIncompatible(rule, plugins, index, patchedPairs)...)
		case domain.RuleLoadAfter, domain.RuleLoadBefore:
			cs, violations := evalOrdering(rule, plugins, index)
			constraints = append(constraints, cs...)
			conflicts = append(conflicts, violations...)
		case domain.RulePatchAvailable:
			// 仅作为 incompatible_with 的降级依据，不独立产出冲突
		}
	}

	// 未识别名称折叠为 unknown_plugin 发现。
	// RawName 是用户原始拼写，发现主体仍使用对应记录的规范名。
	rawIndex := make(map[string]*domain.PluginRecord, len(plugins))
	for i := range plugins {
		rawIndex[plugins[i].RawName] = &plugins[i]
	}
	for _, u := range unresolved {
		severity := domain.SeverityWarning
		if u.Suggestion != nil {
			severity = domain.SeverityInfo
		}
		subject := u.RawName
		pos := 0
		if rec, ok := rawIndex[u.RawName]; ok {
			subject = rec.CanonicalName
			pos = rec.Position
		}
		conflicts = append(conflicts, domain.Conflict{
			Kind:       domain.ConflictUnknownPlugin,
			Severity:   severity,
			Subjects:   []string{subject},
			MessageKey: "unknown_plugin",
			Resolution: domain.ResolutionNoAction,
			Position:   pos,
		})
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		if conflicts[i].Severity.Rank() != conflicts[j].Severity.Rank() {
			return conflicts[i].Severity.Rank() > conflicts[j].Severity.Rank()
		}
		return conflicts[i].Position < conflicts[j].Position
	})

	return conflicts, constraints
}

// checkPluginLimit 对照上限策略检查启用插件数，最多产出一条发现
func checkPluginLimit(plugins []domain.PluginRecord, policy LimitPolicy) *domain.Conflict {
	enabled := 0
	for i := range plugins {
		if plugins[i].Enabled {
			enabled++
		}
	}
	switch {
	case policy.HardCeiling > 0 && enabled >= policy.HardCeiling:
		return &domain.Conflict{
			Kind:       domain.ConflictPluginLimit,
			Severity:   domain.SeverityError,
			Subjects:   []string{},
			MessageKey: "plugin_limit_exceeded",
			Resolution: domain.ResolutionDisablePlugin,
		}
	case policy.WarnThreshold > 0 && enabled >= policy.WarnThreshold:
		return &domain.Conflict{
			Kind:       domain.ConflictPluginLimit,
			Severity:   domain.SeverityWarning,
			Subjects:   []string{},
			MessageKey: "plugin_limit_approaching",
			Resolution: domain.ResolutionDisablePlugin,
		}
	}
	return nil
}

// pairKey 生成无序对的规范键
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

// collectPatchedPairs 预收集存在 patch_available 规则的无序插件对
func collectPatchedPairs(rs *domain.Ruleset, index map[string]*domain.PluginRecord) map[string]struct{} {
	out := make(map[string]struct{})
	for i := range rs.Rules {
		rule := &rs.Rules[i]
		if rule.Kind != domain.RulePatchAvailable {
			continue
		}
		for subj := range index {
			if !domain.MatchPattern(rule.SubjectPattern, subj) {
				continue
			}
			for obj := range index {
				if domain.MatchPattern(rule.ObjectPattern, obj) {
					out[pairKey(subj, obj)] = struct{}{}
				}
			}
		}
	}
	return out
}

// evalRequires 评估 requires 规则：宾语必须存在且启用
func evalRequires(rule *domain.Rule, plugins []domain.PluginRecord, index map[string]*domain.PluginRecord) []domain.Conflict {
	var out []domain.Conflict
	for i := range plugins {
		subj := &plugins[i]
		if !domain.MatchPattern(rule.SubjectPattern, subj.CanonicalName) {
			continue
		}
		if objectSatisfied(rule.ObjectPattern, plugins) {
			continue
		}
		severity := domain.SeverityError
		if !subj.Enabled {
			severity = domain.SeverityInfo // 依赖方本身禁用时降为提示
		}
		out = append(out, domain.Conflict{
			Kind:       domain.ConflictMissingRequirement,
			Severity:   severity,
			Subjects:   []string{subj.CanonicalName, rule.ObjectPattern},
			RuleID:     rule.ID,
			MessageKey: "missing_requirement",
			Resolution: domain.ResolutionAddPlugin,
			Position:   subj.Position,
		})
	}
	return out
}

// objectSatisfied 判断宾语模式是否被某个存在且启用的插件满足
func objectSatisfied(pattern string, plugins []domain.PluginRecord) bool {
	for i := range plugins {
		if plugins[i].Enabled && domain.MatchPattern(pattern, plugins[i].CanonicalName) {
			return true
		}
	}
	return false
}

// evalIncompatible 评估 incompatible_with 规则：
// 主宾双方都存在且启用时产出冲突；存在补丁规则的对降级为 warning。
func evalIncompatible(rule *domain.Rule, plugins []domain.PluginRecord, index map[string]*domain.PluginRecord, patched map[string]struct{}) []domain.Conflict {
	var out []domain.Conflict
	for i := range plugins {
		subj := &plugins[i]
		if !subj.Enabled || !domain.MatchPattern(rule.SubjectPattern, subj.CanonicalName) {
			continue
		}
		for j := range plugins {
			obj := &plugins[j]
			if !obj.Enabled || obj.CanonicalName == subj.CanonicalName {
				continue
			}
			if !domain.MatchPattern(rule.ObjectPattern, obj.CanonicalName) {
				continue
			}
			severity := domain.SeverityError
			resolution := domain.ResolutionDisablePlugin
			messageKey := "incompatible_pair"
			if _, ok := patched[pairKey(subj.CanonicalName, obj.CanonicalName)]; ok {
				severity = domain.SeverityWarning
				resolution = domain.ResolutionApplyPatch
				messageKey = "incompatible_pair_patchable"
			}
			pos := subj.Position
			if obj.Position < pos {
				pos = obj.Position
			}
			out = append(out, domain.Conflict{
				Kind:       domain.ConflictIncompatiblePair,
				Severity:   severity,
				Subjects:   []string{subj.CanonicalName, obj.CanonicalName},
				RuleID:     rule.ID,
				MessageKey: messageKey,
				Resolution: resolution,
				Position:   pos,
			})
		}
	}
	return out
}

// evalOrdering 把 load_after/load_before 归一为排序约束；
// 提交列表已编码顺序，显式违反当前顺序时额外产出 reorder 警告。
func evalOrdering(rule *domain.Rule, plugins []domain.PluginRecord, index map[string]*domain.PluginRecord) ([]resolver.OrderConstraint, []domain.Conflict) {
	var constraints []resolver.OrderConstraint
	var violations []domain.Conflict

	for i := range plugins {
		subj := &plugins[i]
		if !subj.Enabled || !domain.MatchPattern(rule.SubjectPattern, subj.CanonicalName) {
			continue
		}
		for j := range plugins {
			obj := &plugins[j]
			if !obj.Enabled || obj.CanonicalName == subj.CanonicalName {
				continue
			}
			if !domain.MatchPattern(rule.ObjectPattern, obj.CanonicalName) {
				continue
			}

			// load_after(A,B): B 先于 A；load_before(A,B): A 先于 B
			before, after := obj, subj
			if rule.Kind == domain.RuleLoadBefore {
				before, after = subj, obj
			}
			constraints = append(constraints, resolver.OrderConstraint{
				Before: before.CanonicalName,
				After:  after.CanonicalName,
				RuleID: rule.ID,
			})

			if before.Position > after.Position {
				violations = append(violations, domain.Conflict{
					Kind:       domain.ConflictOrderViolation,
					Severity:   domain.SeverityWarning,
					Subjects:   []string{before.CanonicalName, after.CanonicalName},
					RuleID:     rule.ID,
					MessageKey: "load_order_violation",
					Resolution: domain.ResolutionReorder,
					Position:   minInt(before.Position, after.Position),
				})
			}
		}
	}
	return constraints, violations
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
