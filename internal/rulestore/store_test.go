// file: internal/rulestore/store_test.go

package rulestore

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"ModWarden/internal/core/domain"
	"ModWarden/internal/core/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBlobStore 是测试用的内存 BlobStore
type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (s *memBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, port.ErrBlobNotFound
	}
	return data, nil
}

func (s *memBlobStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return nil
}

func (s *memBlobStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.blobs {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// fakeRepo 记录审计调用并返回固定的已评分候选
type fakeRepo struct {
	scored []domain.CandidateRule
	audits []string
}

func (f *fakeRepo) InsertCandidate(context.Context, domain.CandidateRule) error { return nil }
func (f *fakeRepo) ListUnscored(context.Context, int) ([]domain.CandidateRule, error) {
	return nil, nil
}
func (f *fakeRepo) StoreScore(context.Context, string, domain.ReliabilityReport) error { return nil }
func (f *fakeRepo) ListScored(context.Context, string) ([]domain.CandidateRule, error) {
	return f.scored, nil
}
func (f *fakeRepo) RecordAudit(_ context.Context, ruleID, _, _ string) error {
	f.audits = append(f.audits, ruleID)
	return nil
}

func TestStore_RebuildPublishesAndPersists(t *testing.T) {
	dir := t.TempDir()
	writeMasterlist(t, dir, "skyrim.json", validMasterlist)

	blobs := newMemBlobStore()
	holder := NewHolder()
	repo := &fakeRepo{scored: []domain.CandidateRule{{
		Rule: domain.Rule{
			ID: "c1", Kind: domain.RuleLoadAfter, GameID: "skyrim",
			SubjectPattern: "childmod.esp", ObjectPattern: "parentmod.esm",
			ReliabilityScore: 0.9, CreatedAt: time.Now().UTC(),
		},
	}}}
	store := NewStore(holder, blobs, repo, DefaultAdmissionPolicy(), dir)

	version, err := store.RebuildGame(context.Background(), "skyrim")
	require.NoError(t, err)
	require.NotEmpty(t, version)

	// 发布后快照可读，且含主列表与已评分候选两路规则
	rs, err := holder.Snapshot("skyrim")
	require.NoError(t, err)
	assert.Equal(t, version, rs.VersionTag)
	assert.Len(t, rs.Rules, 2)

	// 两个持久化键都已写入
	data, err := blobs.Get(context.Background(), latestKey("skyrim"))
	require.NoError(t, err)
	var persisted domain.Ruleset
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, version, persisted.VersionTag)
	_, err = blobs.Get(context.Background(), versionKey("skyrim", version))
	assert.NoError(t, err)
}

func TestStore_BootstrapFailsOnBrokenMasterlist(t *testing.T) {
	dir := t.TempDir()
	writeMasterlist(t, dir, "skyrim.json", `{"catalog": []}`)

	store := NewStore(NewHolder(), newMemBlobStore(), nil, DefaultAdmissionPolicy(), dir)
	err := store.Bootstrap(context.Background())
	require.Error(t, err, "目录为空的主列表必须中止启动")
}

func TestStore_RestoreFromPersistedSnapshot(t *testing.T) {
	blobs := newMemBlobStore()
	rs := &domain.Ruleset{GameID: "skyrim", VersionTag: "v-old", Catalog: []string{"a.esp"}}
	rs.SealCatalog()
	data, err := json.Marshal(rs)
	require.NoError(t, err)
	require.NoError(t, blobs.Put(context.Background(), latestKey("skyrim"), data))

	holder := NewHolder()
	store := NewStore(holder, blobs, nil, DefaultAdmissionPolicy(), t.TempDir())
	require.NoError(t, store.Restore(context.Background(), "skyrim"))

	restored, err := holder.Snapshot("skyrim")
	require.NoError(t, err)
	assert.Equal(t, "v-old", restored.VersionTag)
	assert.True(t, restored.InCatalog("a.esp"), "恢复的快照必须重建目录查找集")
}

func TestStore_RestoreMissingSnapshot(t *testing.T) {
	store := NewStore(NewHolder(), newMemBlobStore(), nil, DefaultAdmissionPolicy(), t.TempDir())
	err := store.Restore(context.Background(), "skyrim")
	assert.ErrorIs(t, err, port.ErrRulesetUnavailable)
}

func TestStore_AuditsDiscardedRules(t *testing.T) {
	dir := t.TempDir()
	// 同一插件对上的两条排序规则，低分者应被裁决并审计
	writeMasterlist(t, dir, "skyrim.json", `{
	  "game_id": "skyrim",
	  "catalog": ["a.esp", "b.esp"],
	  "rules": []
	}`)

	repo := &fakeRepo{scored: []domain.CandidateRule{
		{Rule: domain.Rule{ID: "weak", Kind: domain.RuleLoadAfter, GameID: "skyrim",
			SubjectPattern: "a.esp", ObjectPattern: "b.esp", ReliabilityScore: 0.65}},
		{Rule: domain.Rule{ID: "strong", Kind: domain.RuleLoadBefore, GameID: "skyrim",
			SubjectPattern: "a.esp", ObjectPattern: "b.esp", ReliabilityScore: 0.90}},
	}}
	store := NewStore(NewHolder(), newMemBlobStore(), repo, DefaultAdmissionPolicy(), dir)

	_, err := store.RebuildGame(context.Background(), "skyrim")
	require.NoError(t, err)
	assert.Equal(t, []string{"weak"}, repo.audits)
}
