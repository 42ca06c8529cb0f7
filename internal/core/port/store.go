// Package port file: internal/core/port/store.go
package port

import (
	"context"
	"errors"

	"ModWarden/internal/core/domain"
)

// ErrBlobNotFound 表示键在存储后端中不存在
var ErrBlobNotFound = errors.New("存储后端中不存在该键")

// BlobStore 是快照持久化依赖的通用键值/二进制存储接口。
// 核心只依赖 get/put/原子替换语义，不绑定具体存储技术。
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Put 必须是原子写入：读取方要么看到旧值要么看到新值，绝不会看到半个文件
	Put(ctx context.Context, key string, data []byte) error

	// List 返回具有给定前缀的所有键
	List(ctx context.Context, prefix string) ([]string, error)
}

// CandidateRuleRepository 是候选规则流入存储的端口。
// 外部采集管线写入候选，可靠性评估器离线读写评分。
type CandidateRuleRepository interface {
	InsertCandidate(ctx context.Context, c domain.CandidateRule) error

	// ListUnscored 返回尚未评分的候选，按提交时间升序
	ListUnscored(ctx context.Context, limit int) ([]domain.CandidateRule, error)

	// StoreScore 写回评估结果并标记候选已评分
	StoreScore(ctx context.Context, ruleID string, report domain.ReliabilityReport) error

	// ListScored 返回某游戏所有已评分候选（准入过滤由构建器完成）
	ListScored(ctx context.Context, gameID string) ([]domain.CandidateRule, error)

	// RecordAudit 记录一条准入审计（如规则对冲突时被丢弃的一方）
	RecordAudit(ctx context.Context, ruleID, action, detail string) error
}
