// Package reliability file: internal/reliability/batch.go
package reliability

import (
	"context"
	"log/slog"
	"time"

	"ModWarden/internal/core/domain"
	"ModWarden/internal/core/port"
)

// Runner 周期性地拉取未评分候选并写回评估结果。
// 与请求路径完全解耦：它不持有任何分析会用到的锁。
type Runner struct {
	repo      port.CandidateRuleRepository
	weighter  *Weighter
	provider  port.RulesetProvider
	trust     map[string]float64
	threshold Thresholds
	batchSize int
}

// NewRunner 创建批量评估执行器
func NewRunner(repo port.CandidateRuleRepository, provider port.RulesetProvider, trust map[string]float64, th Thresholds) *Runner {
	return &Runner{
		repo:      repo,
		weighter:  NewWeighter(),
		provider:  provider,
		trust:     trust,
		threshold: th,
		batchSize: 200,
	}
}

// Start 启动后台评估循环，ctx 取消后退出
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("可靠性评估后台任务已停止")
				return
			case <-ticker.C:
				if n, err := r.RunOnce(ctx); err != nil {
					slog.Error("可靠性评估批次失败", "error", err)
				} else if n > 0 {
					slog.Info("可靠性评估批次完成", "scored", n)
				}
			}
		}
	}()
}

// RunOnce 评估一批未评分候选，返回评估条数
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	candidates, err := r.repo.ListUnscored(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	scored := 0
	for _, c := range candidates {
		ref := ScoringContext{
			Now:         time.Now().UTC(),
			SourceTrust: r.trust,
			Thresholds:  r.threshold,
		}
		// 对照当前快照做技术准确性检查；无快照时仍可评估（取中性值）
		if rs, err := r.provider.Snapshot(c.GameID); err == nil {
			ref.Catalog = rs
		}
		report := r.weighter.Score(c, ref)
		if err := r.repo.StoreScore(ctx, c.ID, report); err != nil {
			slog.Warn("写回可靠性评分失败", "rule_id", c.ID, "error", err)
			continue
		}
		scored++
		logFlags(c, report)
	}
	return scored, nil
}

// logFlags 把需要人工关注的候选写入日志
func logFlags(c domain.CandidateRule, report domain.ReliabilityReport) {
	for _, f := range report.Flags {
		if f == domain.FlagNeedsReview {
			slog.Info("候选规则被标记为需要复核",
				"rule_id", c.ID, "score", report.Overall, "confidence", report.Confidence)
			return
		}
	}
}
