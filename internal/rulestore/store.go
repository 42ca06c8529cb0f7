// Package rulestore file: internal/rulestore/store.go
package rulestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ModWarden/internal/core/domain"
	"ModWarden/internal/core/port"
)

// Store 把主列表、已评分候选与快照持久化串成完整的重建流程。
// 重建在旁路进行，成功后一次性发布；失败时保留旧快照继续服务。
type Store struct {
	holder  *Holder
	blobs   port.BlobStore
	repo    port.CandidateRuleRepository // 可为 nil：纯主列表模式
	policy  AdmissionPolicy
	listDir string
}

// NewStore 创建规则集仓库
func NewStore(holder *Holder, blobs port.BlobStore, repo port.CandidateRuleRepository, policy AdmissionPolicy, masterlistDir string) *Store {
	return &Store{
		holder:  holder,
		blobs:   blobs,
		repo:    repo,
		policy:  policy,
		listDir: masterlistDir,
	}
}

// Bootstrap 启动时重建所有主列表对应的快照。
// 任何一个游戏失败都会中止启动：宁可不起也不要带着坏数据起。
func (s *Store) Bootstrap(ctx context.Context) error {
	lists, err := LoadMasterlistDir(s.listDir)
	if err != nil {
		return err
	}
	if len(lists) == 0 {
		return fmt.Errorf("主列表目录 %s 中没有任何游戏", s.listDir)
	}
	for _, ml := range lists {
		if _, err := s.RebuildGame(ctx, ml.GameID); err != nil {
			return fmt.Errorf("游戏 %s 快照构建失败: %w", ml.GameID, err)
		}
	}
	return nil
}

// RebuildGame 为单个游戏执行一次完整重建并发布。
// 返回新快照的版本号。
func (s *Store) RebuildGame(ctx context.Context, gameID string) (string, error) {
	start := time.Now()

	ml, err := LoadMasterlist(fmt.Sprintf("%s/%s.json", s.listDir, gameID))
	if err != nil {
		return "", err
	}

	candidates := ml.DomainRules()
	if s.repo != nil {
		scored, err := s.repo.ListScored(ctx, gameID)
		if err != nil {
			return "", fmt.Errorf("读取已评分候选失败: %w", err)
		}
		for _, c := range scored {
			candidates = append(candidates, c.Rule)
		}
	}

	rs, report, err := BuildRuleset(gameID, candidates, ml.Catalog, s.policy)
	if err != nil {
		return "", err
	}

	if err := s.persist(ctx, rs); err != nil {
		return "", err
	}
	s.auditDiscards(ctx, report)
	s.holder.Publish(rs)

	slog.Info("规则集快照已发布",
		"game_id", gameID, "version", rs.VersionTag,
		"rules", report.Admitted, "rejected", report.Rejected,
		"discarded", report.Discarded, "catalog", len(rs.Catalog),
		"duration", time.Since(start).String())
	return rs.VersionTag, nil
}

// Restore 尝试从持久化存储恢复某游戏最近一次发布的快照。
// 用于主列表暂不可读时的降级启动。
func (s *Store) Restore(ctx context.Context, gameID string) error {
	data, err := s.blobs.Get(ctx, latestKey(gameID))
	if err != nil {
		if errors.Is(err, port.ErrBlobNotFound) {
			return port.ErrRulesetUnavailable
		}
		return err
	}
	var rs domain.Ruleset
	if err := json.Unmarshal(data, &rs); err != nil {
		return fmt.Errorf("持久化快照损坏: %w", err)
	}
	rs.SealCatalog()
	s.holder.Publish(&rs)
	slog.Info("已从持久化存储恢复快照", "game_id", gameID, "version", rs.VersionTag)
	return nil
}

// persist 把快照写入两个键：按版本寻址的归档与 latest 指针
func (s *Store) persist(ctx context.Context, rs *domain.Ruleset) error {
	data, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("快照序列化失败: %w", err)
	}
	if err := s.blobs.Put(ctx, versionKey(rs.GameID, rs.VersionTag), data); err != nil {
		return fmt.Errorf("快照归档写入失败: %w", err)
	}
	if err := s.blobs.Put(ctx, latestKey(rs.GameID), data); err != nil {
		return fmt.Errorf("快照 latest 写入失败: %w", err)
	}
	return nil
}

// auditDiscards 把裁决淘汰记录写入审计（仓库缺席时跳过）
func (s *Store) auditDiscards(ctx context.Context, report *BuildReport) {
	if s.repo == nil {
		return
	}
	for _, id := range report.DiscardedIDs {
		if err := s.repo.RecordAudit(ctx, id, "discarded", "规则对冲突裁决中落败"); err != nil {
			slog.Warn("审计记录写入失败", "rule_id", id, "error", err)
		}
	}
}

func versionKey(gameID, versionTag string) string {
	return "rulesets/" + gameID + "/" + versionTag + ".json"
}

func latestKey(gameID string) string {
	return "rulesets/" + gameID + "/latest.json"
}
