// Package port file: internal/core/port/analyzer.go
package port

import (
	"context"
	"errors"

	"ModWarden/internal/core/domain"
)

// Standard errors
var (
	ErrRulesetUnavailable = errors.New("该游戏暂无可用规则集，分析能力不可用")
	ErrGameNotFound       = errors.New("指定的游戏未注册")
	ErrRulesetVersionGone = errors.New("请求锁定的规则集版本已不再可寻址")
	ErrCatalogMissing     = errors.New("规则集构建失败：缺少插件目录")
)

// AnalyzeRequest 是一次完整分析的输入
type AnalyzeRequest struct {
	GameID         string // 必填
	GameVersion    string // 可选
	RulesetVersion string // 可选：锁定到特定快照版本
	RawList        string // 原始插件列表文本
}

// Analyzer 是确定性分析流水线对传输层暴露的入口。
// 同一 (规范化输入, 规则集版本) 的两次调用产出逐字节一致的结果（GeneratedAt 除外）。
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*domain.AnalysisResult, error)
}

// RulesetProvider 提供不可变规则集快照。
// 实现必须保证：返回的指针在分析全程有效，即使期间发布了新快照。
type RulesetProvider interface {
	// Snapshot 返回指定游戏当前发布的快照
	Snapshot(gameID string) (*domain.Ruleset, error)

	// SnapshotByVersion 返回仍可寻址的历史快照（用于版本锁定的请求）
	SnapshotByVersion(gameID, versionTag string) (*domain.Ruleset, error)
}
