// file: internal/adapter/rulerepo/sqlite/repo_test.go

package sqlite

import (
	"context"
	"testing"
	"time"

	"ModWarden/internal/core/domain"

	"github.com/DATA-DOG/go-sqlmock"
)

var repoNow = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func newMockRepo(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("创建 sqlmock 失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestInsertCandidate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO candidate_rules").
		WithArgs("c1", "skyrim", "requires", "childmod.esp", "parentmod.esm",
			"", "community", "forum-export", "author-1", repoNow,
			3, 0, 10, 1, nil, repoNow, "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	c := domain.CandidateRule{
		Rule: domain.Rule{
			ID: "c1", Kind: domain.RuleRequires, GameID: "skyrim",
			SubjectPattern: "childmod.esp", ObjectPattern: "parentmod.esm",
			Provenance: "community", CreatedAt: repoNow,
		},
		SourceID: "forum-export", AuthorID: "author-1", SubmittedAt: repoNow,
		Corroborations: 3, AuthorAcceptedPrior: 10, AuthorRejectedPrior: 1,
	}
	if err := repo.InsertCandidate(context.Background(), c); err != nil {
		t.Fatalf("插入失败: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("SQL 期望未满足: %v", err)
	}
}

func candidateRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "game_id", "kind", "subject_pattern", "object_pattern",
		"version_range", "provenance", "source_id", "author_id", "submitted_at",
		"corroborations", "contradictions", "author_accepted_prior", "author_rejected_prior",
		"plugin_updated_at", "created_at", "superseded_by", "reliability_score",
	})
}

func TestListUnscored(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := candidateRows().
		AddRow("c1", "skyrim", "requires", "a.esp", "b.esm",
			"", "community", "src", "au", repoNow, 2, 1, 5, 0, nil, repoNow, "", 0.0)
	mock.ExpectQuery("SELECT(.|\n)*FROM candidate_rules WHERE scored = 0").
		WithArgs(200).
		WillReturnRows(rows)

	out, err := repo.ListUnscored(context.Background(), 200)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(out) != 1 || out[0].ID != "c1" || out[0].Kind != domain.RuleRequires {
		t.Fatalf("扫描结果不匹配: %+v", out)
	}
	if !out[0].PluginUpdatedAt.IsZero() {
		t.Errorf("NULL 的插件更新时间应保持零值: %v", out[0].PluginUpdatedAt)
	}
}

func TestStoreScore(t *testing.T) {
	repo, mock := newMockRepo(t)

	report := domain.ReliabilityReport{Overall: 0.82, Confidence: 0.7,
		Flags: []domain.ReliabilityFlag{domain.FlagHighlyReliable}}
	mock.ExpectExec("UPDATE candidate_rules").
		WithArgs(0.82, sqlmock.AnyArg(), "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.StoreScore(context.Background(), "c1", report); err != nil {
		t.Fatalf("写回评分失败: %v", err)
	}
}

func TestStoreScore_MissingRule(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE candidate_rules").
		WithArgs(0.5, sqlmock.AnyArg(), "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.StoreScore(context.Background(), "nope", domain.ReliabilityReport{Overall: 0.5}); err == nil {
		t.Fatal("不存在的候选应报错")
	}
}

func TestListScored(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := candidateRows().
		AddRow("c1", "skyrim", "load_after", "patch.esp", "base.esp",
			"", "community", "src", "au", repoNow, 5, 0, 8, 1, repoNow, repoNow, "", 0.77)
	mock.ExpectQuery("SELECT(.|\n)*FROM candidate_rules WHERE scored = 1").
		WithArgs("skyrim").
		WillReturnRows(rows)

	out, err := repo.ListScored(context.Background(), "skyrim")
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(out) != 1 || out[0].ReliabilityScore != 0.77 {
		t.Fatalf("已评分候选应带回评分: %+v", out)
	}
}

func TestRecordAudit(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO rule_audit").
		WithArgs("c1", "discarded", "规则对冲突裁决中落败", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.RecordAudit(context.Background(), "c1", "discarded", "规则对冲突裁决中落败"); err != nil {
		t.Fatalf("审计写入失败: %v", err)
	}
}
