// Package rulestore file: internal/rulestore/holder.go
package rulestore

import (
	"sort"
	"sync"

	"ModWarden/internal/core/domain"
	"ModWarden/internal/core/port"
)

// Holder 持有各游戏当前发布的快照，实现 port.RulesetProvider。
// 发布是整指针替换：进行中的分析继续持有旧指针直到结束。
// 上一个版本保持可寻址，供版本锁定的请求在发布窗口内继续命中。
type Holder struct {
	mu       sync.RWMutex
	current  map[string]*domain.Ruleset // gameID → 当前快照
	previous map[string]*domain.Ruleset // gameID → 上一个快照
}

var _ port.RulesetProvider = (*Holder)(nil)

// NewHolder 创建空的快照持有器
func NewHolder() *Holder {
	return &Holder{
		current:  make(map[string]*domain.Ruleset),
		previous: make(map[string]*domain.Ruleset),
	}
}

// Publish 原子地把新快照设为当前版本，旧版本降为可寻址的历史版本
func (h *Holder) Publish(rs *domain.Ruleset) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.current[rs.GameID]; ok {
		h.previous[rs.GameID] = old
	}
	h.current[rs.GameID] = rs
}

// Snapshot 返回指定游戏当前发布的快照
func (h *Holder) Snapshot(gameID string) (*domain.Ruleset, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rs, ok := h.current[gameID]
	if !ok {
		return nil, port.ErrRulesetUnavailable
	}
	return rs, nil
}

// SnapshotByVersion 按版本号寻址快照：命中当前或上一个版本即返回，
// 更早的版本已不可寻址。
func (h *Holder) SnapshotByVersion(gameID, versionTag string) (*domain.Ruleset, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if rs, ok := h.current[gameID]; ok && rs.VersionTag == versionTag {
		return rs, nil
	}
	if rs, ok := h.previous[gameID]; ok && rs.VersionTag == versionTag {
		return rs, nil
	}
	if _, ok := h.current[gameID]; !ok {
		return nil, port.ErrRulesetUnavailable
	}
	return nil, port.ErrRulesetVersionGone
}

// Games 返回所有已发布快照的游戏ID
func (h *Holder) Games() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.current))
	for id := range h.current {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
