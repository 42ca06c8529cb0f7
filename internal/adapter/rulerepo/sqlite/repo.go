// Package sqlite — 候选规则仓库的 SQLite 实现
// internal/adapter/rulerepo/sqlite/repo.go
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ModWarden/internal/core/domain"
	"ModWarden/internal/core/port"

	_ "modernc.org/sqlite"
)

// 断言 *Repo 实现 port.CandidateRuleRepository 接口，编译期校验
var _ port.CandidateRuleRepository = (*Repo)(nil)

// Repo 持有候选规则与审计记录所在的数据库连接
type Repo struct {
	db *sql.DB
}

// Open 打开（必要时创建）候选规则数据库并建表
func Open(path string) (*Repo, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=ON&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open '%s' 失败: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("候选规则库连接失败: %w", err)
	}
	repo := &Repo{db: db}
	if err := repo.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewWithDB 用已有连接构造仓库，测试用
func NewWithDB(db *sql.DB) *Repo { return &Repo{db: db} }

// Close 关闭底层连接
func (r *Repo) Close() error { return r.db.Close() }

// ensureSchema 建立候选规则与审计表
func (r *Repo) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS candidate_rules (
    id                    TEXT PRIMARY KEY,
    game_id               TEXT NOT NULL,
    kind                  TEXT NOT NULL,
    subject_pattern       TEXT NOT NULL,
    object_pattern        TEXT NOT NULL,
    version_range         TEXT NOT NULL DEFAULT '',
    provenance            TEXT NOT NULL DEFAULT '',
    source_id             TEXT NOT NULL DEFAULT '',
    author_id             TEXT NOT NULL DEFAULT '',
    submitted_at          TIMESTAMP NOT NULL,
    corroborations        INTEGER NOT NULL DEFAULT 0,
    contradictions        INTEGER NOT NULL DEFAULT 0,
    author_accepted_prior INTEGER NOT NULL DEFAULT 0,
    author_rejected_prior INTEGER NOT NULL DEFAULT 0,
    plugin_updated_at     TIMESTAMP,
    created_at            TIMESTAMP NOT NULL,
    superseded_by         TEXT NOT NULL DEFAULT '',
    scored                INTEGER NOT NULL DEFAULT 0,
    reliability_score     REAL NOT NULL DEFAULT 0,
    score_report          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_candidate_unscored ON candidate_rules (scored, submitted_at);
CREATE INDEX IF NOT EXISTS idx_candidate_game ON candidate_rules (game_id, scored);

CREATE TABLE IF NOT EXISTS rule_audit (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    rule_id    TEXT NOT NULL,
    action     TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);`
	if _, err := r.db.Exec(ddl); err != nil {
		return fmt.Errorf("初始化候选规则表失败: %w", err)
	}
	return nil
}

// InsertCandidate 写入一条候选规则，主键冲突视为重复提交并报错
func (r *Repo) InsertCandidate(ctx context.Context, c domain.CandidateRule) error {
	const stmt = `
INSERT INTO candidate_rules
    (id, game_id, kind, subject_pattern, object_pattern, version_range, provenance,
     source_id, author_id, submitted_at, corroborations, contradictions,
     author_accepted_prior, author_rejected_prior, plugin_updated_at, created_at, superseded_by)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var pluginUpdated interface{}
	if !c.PluginUpdatedAt.IsZero() {
		pluginUpdated = c.PluginUpdatedAt.UTC()
	}
	_, err := r.db.ExecContext(ctx, stmt,
		c.ID, c.GameID, string(c.Kind), c.SubjectPattern, c.ObjectPattern,
		c.VersionRange, c.Provenance, c.SourceID, c.AuthorID, c.SubmittedAt.UTC(),
		c.Corroborations, c.Contradictions,
		c.AuthorAcceptedPrior, c.AuthorRejectedPrior, pluginUpdated,
		c.CreatedAt.UTC(), c.SupersededBy)
	if err != nil {
		return fmt.Errorf("写入候选规则 '%s' 失败: %w", c.ID, err)
	}
	return nil
}

const candidateColumns = `
    id, game_id, kind, subject_pattern, object_pattern, version_range, provenance,
    source_id, author_id, submitted_at, corroborations, contradictions,
    author_accepted_prior, author_rejected_prior, plugin_updated_at, created_at,
    superseded_by, reliability_score`

// ListUnscored 返回尚未评分的候选，按提交时间升序
func (r *Repo) ListUnscored(ctx context.Context, limit int) ([]domain.CandidateRule, error) {
	stmt := `SELECT` + candidateColumns + `
FROM candidate_rules WHERE scored = 0 ORDER BY submitted_at ASC, id ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("查询未评分候选失败: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// StoreScore 写回评估结果并标记候选已评分
func (r *Repo) StoreScore(ctx context.Context, ruleID string, report domain.ReliabilityReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("评估报告序列化失败: %w", err)
	}
	const stmt = `
UPDATE candidate_rules
SET scored = 1, reliability_score = ?, score_report = ?
WHERE id = ?`
	res, err := r.db.ExecContext(ctx, stmt, report.Overall, string(payload), ruleID)
	if err != nil {
		return fmt.Errorf("写回评分失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("候选规则 '%s' 不存在", ruleID)
	}
	return nil
}

// ListScored 返回某游戏所有已评分候选，顺序确定
func (r *Repo) ListScored(ctx context.Context, gameID string) ([]domain.CandidateRule, error) {
	stmt := `SELECT` + candidateColumns + `
FROM candidate_rules WHERE scored = 1 AND game_id = ? ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, stmt, gameID)
	if err != nil {
		return nil, fmt.Errorf("查询已评分候选失败: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// RecordAudit 追加一条审计记录
func (r *Repo) RecordAudit(ctx context.Context, ruleID, action, detail string) error {
	const stmt = `INSERT INTO rule_audit (rule_id, action, detail, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, stmt, ruleID, action, detail, time.Now().UTC()); err != nil {
		return fmt.Errorf("写入审计记录失败: %w", err)
	}
	return nil
}

// scanCandidates 把查询结果扫描为领域对象
func scanCandidates(rows *sql.Rows) ([]domain.CandidateRule, error) {
	var out []domain.CandidateRule
	for rows.Next() {
		var c domain.CandidateRule
		var kind string
		var pluginUpdated sql.NullTime
		if err := rows.Scan(
			&c.ID, &c.GameID, &kind, &c.SubjectPattern, &c.ObjectPattern,
			&c.VersionRange, &c.Provenance, &c.SourceID, &c.AuthorID, &c.SubmittedAt,
			&c.Corroborations, &c.Contradictions,
			&c.AuthorAcceptedPrior, &c.AuthorRejectedPrior, &pluginUpdated,
			&c.CreatedAt, &c.SupersededBy, &c.ReliabilityScore,
		); err != nil {
			return nil, fmt.Errorf("扫描候选规则失败: %w", err)
		}
		c.Kind = domain.RuleKind(kind)
		if pluginUpdated.Valid {
			c.PluginUpdatedAt = pluginUpdated.Time
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
