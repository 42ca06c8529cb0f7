// Package reliability 对社区候选规则做五维可靠性评估。
// 评估离线批量运行，只影响下一次规则集快照的准入，绝不出现在请求路径上。
package reliability

import (
	"time"

	"ModWarden/internal/core/domain"
)

// 五个维度的固定权重，加权和裁剪到 [0,1]
const (
	weightCredibility = 0.25 // 来源可信度
	weightFreshness   = 0.15 // 内容新鲜度
	weightValidation  = 0.20 // 社区佐证
	weightAccuracy    = 0.25 // 技术准确性
	weightReputation  = 0.15 // 作者声誉
)

// Thresholds 是标记派生的可调阈值
type Thresholds struct {
	HighlyReliableScore float64 `mapstructure:"highly_reliable_score"`
	HighlyReliableConf  float64 `mapstructure:"highly_reliable_conf"`
	NeedsReviewScore    float64 `mapstructure:"needs_review_score"`
	NeedsReviewConf     float64 `mapstructure:"needs_review_conf"`
	StaleFreshness      float64 `mapstructure:"stale_freshness"`
}

// DefaultThresholds 返回默认标记阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighlyReliableScore: 0.85,
		HighlyReliableConf:  0.60,
		NeedsReviewScore:    0.50,
		NeedsReviewConf:     0.30,
		StaleFreshness:      0.40,
	}
}

// ScoringContext 提供评估所需的外部参照
type ScoringContext struct {
	Now         time.Time
	Catalog     *domain.Ruleset    // 技术准确性对照的目录，可为 nil
	SourceTrust map[string]float64 // 来源渠道的历史可信度，缺省 0.5
	Thresholds  Thresholds
}

// Weighter 是五维可靠性评估器
type Weighter struct{}

// NewWeighter 创建评估器
func NewWeighter() *Weighter { return &Weighter{} }

// Score 计算候选规则的综合可靠性。
// Overall 是五维加权和；Confidence 只反映佐证数据量——
// 数据稀少时即使点估计很高置信度也必须低。
func (w *Weighter) Score(c domain.CandidateRule, ref ScoringContext) domain.ReliabilityReport {
	credibility := w.scoreCredibility(c, ref)
	freshness := w.scoreFreshness(c, ref)
	validation := w.scoreValidation(c)
	accuracy := w.scoreAccuracy(c, ref)
	reputation := w.scoreReputation(c)

	overall := weightCredibility*credibility +
		weightFreshness*freshness +
		weightValidation*validation +
		weightAccuracy*accuracy +
		weightReputation*reputation
	overall = clip01(overall)

	confidence := w.confidence(c)

	report := domain.ReliabilityReport{
		Overall:    overall,
		Confidence: confidence,
	}
	report.Flags = deriveFlags(overall, confidence, freshness, c, ref.Thresholds)
	return report
}

// scoreCredibility 查询来源渠道的历史可信度，未知来源取中性值
func (w *Weighter) scoreCredibility(c domain.CandidateRule, ref ScoringContext) float64 {
	if trust, ok := ref.SourceTrust[c.SourceID]; ok {
		return clip01(trust)
	}
	return 0.5
}

// scoreFreshness 按候选相对涉及插件最近更新的年龄衰减。
// 插件在规则提交之后又更新过，则规则可能已过时。
func (w *Weighter) scoreFreshness(c domain.CandidateRule, ref ScoringContext) float64 {
	anchor := c.SubmittedAt
	if anchor.IsZero() {
		anchor = c.CreatedAt
	}
	if !c.PluginUpdatedAt.IsZero() && c.PluginUpdatedAt.After(anchor) {
		// 规则早于插件更新：以插件更新为基准加速衰减
		anchor = anchor.Add(-c.PluginUpdatedAt.Sub(anchor))
	}
	age := ref.Now.Sub(anchor)
	switch {
	case age <= 30*24*time.Hour:
		return 1.0
	case age >= 365*24*time.Hour:
		return 0.2
	default:
		// 30天到365天之间线性衰减 1.0 → 0.2
		span := float64(335 * 24 * time.Hour)
		return 1.0 - 0.8*float64(age-30*24*time.Hour)/span
	}
}

// scoreValidation 结合佐证比例与报告总量
func (w *Weighter) scoreValidation(c domain.CandidateRule) float64 {
	total := c.Corroborations + c.Contradictions
	if total == 0 {
		return 0.3 // 无人验证时保守取低值
	}
	ratio := float64(c.Corroborations) / float64(total)
	volume := float64(total) / 5.0
	if volume > 1.0 {
		volume = 1.0
	}
	return clip01(ratio * (0.5 + 0.5*volume))
}

// scoreAccuracy 检查规则的内部一致性：种类合法、模式非空、引用的插件在目录中
func (w *Weighter) scoreAccuracy(c domain.CandidateRule, ref ScoringContext) float64 {
	kindKnown := false
	for _, k := range domain.KnownRuleKinds {
		if c.Kind == k {
			kindKnown = true
			break
		}
	}
	if !kindKnown || c.SubjectPattern == "" || c.ObjectPattern == "" {
		return 0.0
	}
	if ref.Catalog == nil {
		return 0.5 // 无目录可对照时取中性值
	}
	score := 0.0
	if patternResolvable(c.SubjectPattern, ref.Catalog) {
		score += 0.5
	}
	if patternResolvable(c.ObjectPattern, ref.Catalog) {
		score += 0.5
	}
	return score
}

// patternResolvable 判断模式能否命中目录中的至少一个已知插件
func patternResolvable(pattern string, rs *domain.Ruleset) bool {
	if !domain.IsWildcard(pattern) {
		return rs.InCatalog(pattern)
	}
	for _, name := range rs.Catalog {
		if domain.MatchPattern(pattern, name) {
			return true
		}
	}
	return false
}

// scoreReputation 按作者历史通过率评分，无历史时取中性值
func (w *Weighter) scoreReputation(c domain.CandidateRule) float64 {
	total := c.AuthorAcceptedPrior + c.AuthorRejectedPrior
	if total == 0 {
		return 0.5
	}
	return float64(c.AuthorAcceptedPrior) / float64(total)
}

// confidence 只由佐证数据量决定
func (w *Weighter) confidence(c domain.CandidateRule) float64 {
	volume := c.Corroborations + c.Contradictions
	history := c.AuthorAcceptedPrior + c.AuthorRejectedPrior
	conf := float64(volume)/10.0 + float64(history)/40.0
	return clip01(conf)
}

// deriveFlags 由两个输出与新鲜度派生标记，标记不是独立输入
func deriveFlags(overall, confidence, freshness float64, c domain.CandidateRule, th Thresholds) []domain.ReliabilityFlag {
	var flags []domain.ReliabilityFlag
	if overall >= th.HighlyReliableScore && confidence >= th.HighlyReliableConf {
		flags = append(flags, domain.FlagHighlyReliable)
	}
	if overall < th.NeedsReviewScore || confidence < th.NeedsReviewConf {
		flags = append(flags, domain.FlagNeedsReview)
	}
	if freshness < th.StaleFreshness {
		flags = append(flags, domain.FlagStale)
	}
	if c.AuthorAcceptedPrior+c.AuthorRejectedPrior == 0 {
		flags = append(flags, domain.FlagUnverifiedAuthor)
	}
	return flags
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
