// Package domain file: internal/core/domain/analysis_models.go
package domain

import "time"

// Severity 表示一个冲突发现的严重等级，字符串枚举保证对下游稳定
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank 返回严重等级的排序权重，数值越大越严重
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// ConflictKind 表示冲突发现的种类
type ConflictKind string

const (
	ConflictMissingRequirement ConflictKind = "missing_requirement"
	ConflictIncompatiblePair   ConflictKind = "incompatible_pair"
	ConflictOrderViolation     ConflictKind = "load_order_violation"
	ConflictUnknownPlugin      ConflictKind = "unknown_plugin"
	ConflictDuplicatePlugin    ConflictKind = "duplicate_plugin"
	ConflictPluginLimit        ConflictKind = "plugin_limit_exceeded"
)

// Resolution 表示针对某个冲突建议用户采取的动作
type Resolution string

const (
	ResolutionAddPlugin     Resolution = "add_plugin"
	ResolutionReorder       Resolution = "reorder"
	ResolutionDisablePlugin Resolution = "disable_plugin"
	ResolutionApplyPatch    Resolution = "apply_patch"
	ResolutionNoAction      Resolution = "no_action"
)

// PluginRecord 代表用户提交列表中的一个插件条目。
// CanonicalName 是所有下游匹配逻辑使用的唯一身份。
type PluginRecord struct {
	RawName       string `json:"raw_name"`       // 用户原始输入
	CanonicalName string `json:"canonical_name"` // 规范化后的名称
	Enabled       bool   `json:"enabled"`        // 是否启用
	OriginLine    int    `json:"origin_line"`    // 来源行号（从1开始），用于错误回溯
	Position      int    `json:"position"`       // 在提交顺序中的下标
}

// ParseWarningKind 区分解析告警的类别
type ParseWarningKind string

const (
	WarnMalformedLine   ParseWarningKind = "malformed_line"
	WarnDuplicatePlugin ParseWarningKind = "duplicate_plugin"
)

// ParseWarning 代表规范化阶段产生的一条非致命告警，必须能回溯到具体输入行
type ParseWarning struct {
	Kind    ParseWarningKind `json:"kind"`
	Line    int              `json:"line"` // 来源行号（从1开始）
	Raw     string           `json:"raw"`
	Subject string           `json:"subject,omitempty"` // 涉及的规范名（如有）
	Detail  string           `json:"detail"`
}

// Suggestion 是模糊匹配器对一个未识别名称给出的唯一候选
type Suggestion struct {
	SuggestedName string  `json:"suggested_name"`
	EditDistance  int     `json:"edit_distance"`
	Confidence    float64 `json:"confidence"`
}

// UnresolvedName 代表一个目录和规则都无法识别的名称，Suggestion 可能为空
type UnresolvedName struct {
	RawName    string      `json:"raw_name"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
}

// Conflict 代表一条分析发现。RuleID 为空表示结构性发现（如数量上限、重复）。
type Conflict struct {
	Kind       ConflictKind `json:"kind"`
	Severity   Severity     `json:"severity"`
	Subjects   []string     `json:"subjects"`           // 一个或两个规范名
	RuleID     string       `json:"rule_id,omitempty"`  // 结构性发现时为空
	MessageKey string       `json:"message_template_key"`
	Resolution Resolution   `json:"suggested_resolution"`
	Position   int          `json:"position"` // 首个受影响插件的提交下标，用于稳定排序
}

// OrderError 描述一组无法满足的排序约束（环）。
// 解析器要么给出完整顺序，要么返回本结构，绝不静默返回部分顺序。
type OrderError struct {
	InvolvedRules   []string `json:"involved_rules"`
	InvolvedPlugins []string `json:"involved_plugins"`
}

// AnalysisResult 是整条流水线的最终产物。
// 除 GeneratedAt 外，它是 (规范化输入, 规则集版本) 的纯函数；
// GeneratedAt 仅作元数据，不参与缓存键与相等性比较。
// ProposedOrder 与 OrderError 严格互斥：有序则无错，有错则无序。
type AnalysisResult struct {
	InputHash       string           `json:"input_hash"`
	RulesetVersion  string           `json:"ruleset_version"`
	Conflicts       []Conflict       `json:"conflicts"`
	UnresolvedNames []UnresolvedName `json:"unresolved_names"`
	ProposedOrder   []string         `json:"proposed_order,omitempty"`
	OrderError      *OrderError      `json:"order_error,omitempty"`
	Warnings        []ParseWarning   `json:"warnings"`
	GeneratedAt     time.Time        `json:"generated_at"`
}
