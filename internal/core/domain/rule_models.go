// Package domain file: internal/core/domain/rule_models.go
package domain

import (
	"sort"
	"strings"
	"time"
)

// RuleKind 是规则种类的封闭枚举。
// 新增种类必须在此声明，检测器按种类穷尽分派。
type RuleKind string

const (
	RuleRequires         RuleKind = "requires"
	RuleIncompatibleWith RuleKind = "incompatible_with"
	RuleLoadAfter        RuleKind = "load_after"
	RuleLoadBefore       RuleKind = "load_before"
	RulePatchAvailable   RuleKind = "patch_available"
)

// KnownRuleKinds 按固定顺序列出所有合法的规则种类
var KnownRuleKinds = []RuleKind{
	RuleRequires, RuleIncompatibleWith, RuleLoadAfter, RuleLoadBefore, RulePatchAvailable,
}

// Rule 代表一条排序/兼容性规则。
// SubjectPattern 与 ObjectPattern 为规范名的精确匹配，或以 '*' 结尾的前缀通配。
type Rule struct {
	ID               string    `json:"id"`
	Kind             RuleKind  `json:"kind"`
	SubjectPattern   string    `json:"subject_pattern"`
	ObjectPattern    string    `json:"object_pattern"`
	GameID           string    `json:"game_id"`
	VersionRange     string    `json:"version_range,omitempty"` // 可选的游戏版本范围
	Provenance       string    `json:"provenance"`              // curated-baseline 或社区来源标识
	ReliabilityScore float64   `json:"reliability_score"`       // 0.0–1.0，见 reliability 包
	CreatedAt        time.Time `json:"created_at"`
	SupersededBy     string    `json:"superseded_by,omitempty"`
}

// IsWildcard 报告给定模式是否为前缀通配
func IsWildcard(pattern string) bool {
	return strings.HasSuffix(pattern, "*")
}

// MatchPattern 判断规范名是否命中模式（精确或前缀通配）
func MatchPattern(pattern, canonical string) bool {
	if IsWildcard(pattern) {
		return strings.HasPrefix(canonical, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == canonical
}

// Ruleset 是一个游戏的不可变规则集快照。
// 构造完成后不得修改；分析全程持有同一个快照指针，
// 并发重建只会发布新快照，绝不原地变更。
type Ruleset struct {
	GameID     string    `json:"game_id"`
	VersionTag string    `json:"version_tag"`
	Rules      []Rule    `json:"rules"`   // 构建时已确定性排序
	Catalog    []string  `json:"catalog"` // 已排序的已知插件规范名
	BuiltAt    time.Time `json:"built_at"`

	catalogSet map[string]struct{} // 惰性构建的查找集
}

// SealCatalog 对目录排序去重并建立查找集。
// 构建器与反序列化方在快照发布前必须调用一次。
func (rs *Ruleset) SealCatalog() {
	sort.Strings(rs.Catalog)
	out := rs.Catalog[:0]
	var last string
	for i, name := range rs.Catalog {
		if i == 0 || name != last {
			out = append(out, name)
		}
		last = name
	}
	rs.Catalog = out
	rs.catalogSet = make(map[string]struct{}, len(rs.Catalog))
	for _, name := range rs.Catalog {
		rs.catalogSet[name] = struct{}{}
	}
}

// InCatalog 报告规范名是否存在于目录中
func (rs *Ruleset) InCatalog(canonical string) bool {
	_, ok := rs.catalogSet[canonical]
	return ok
}

// KnownToRules 报告规范名是否被任意规则的主语/宾语模式命中
func (rs *Ruleset) KnownToRules(canonical string) bool {
	for i := range rs.Rules {
		if MatchPattern(rs.Rules[i].SubjectPattern, canonical) ||
			MatchPattern(rs.Rules[i].ObjectPattern, canonical) {
			return true
		}
	}
	return false
}

// ReliabilityFlag 是可靠性评估产出的标记
type ReliabilityFlag string

const (
	FlagHighlyReliable   ReliabilityFlag = "highly_reliable"
	FlagNeedsReview      ReliabilityFlag = "needs_review"
	FlagStale            ReliabilityFlag = "stale"
	FlagUnverifiedAuthor ReliabilityFlag = "unverified_author"
)

// CandidateRule 是等待可靠性评估的候选规则及其佐证元数据。
// 来自外部采集管线，只能经由 reliability → rulestore 的准入路径进入快照。
type CandidateRule struct {
	Rule

	SourceID            string    `json:"source_id"` // 贡献渠道标识
	AuthorID            string    `json:"author_id"`
	SubmittedAt         time.Time `json:"submitted_at"`
	Corroborations      int       `json:"corroborations"` // 佐证报告数
	Contradictions      int       `json:"contradictions"` // 反对报告数
	AuthorAcceptedPrior int       `json:"author_accepted_prior"`
	AuthorRejectedPrior int       `json:"author_rejected_prior"`
	PluginUpdatedAt     time.Time `json:"plugin_updated_at"` // 涉及插件最近一次已知更新
}

// ReliabilityReport 是五维评估的输出
type ReliabilityReport struct {
	Overall    float64           `json:"overall_score"` // 加权和，裁剪到 [0,1]
	Confidence float64           `json:"confidence"`    // 佐证数据量决定，与点估计无关
	Flags      []ReliabilityFlag `json:"flags"`
}
