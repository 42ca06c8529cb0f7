// Package rulestore file: internal/rulestore/baseline.go
package rulestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ModWarden/internal/core/domain"
)

// baselineProvenance 标记主列表来源的规则
const baselineProvenance = "curated-baseline"

// Masterlist 是策展主列表文件的磁盘格式。
// 每个游戏一个 JSON 文件：<dir>/<gameID>.json
type Masterlist struct {
	GameID  string          `json:"game_id"`
	Catalog []string        `json:"catalog"`
	Rules   []MasterlistRule `json:"rules"`
}

// MasterlistRule 是主列表中的一条规则声明。
// 主列表规则被视为完全可靠（score 1.0），总是通过准入。
type MasterlistRule struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	SubjectPattern string    `json:"subject_pattern"`
	ObjectPattern  string    `json:"object_pattern"`
	VersionRange   string    `json:"version_range,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// LoadMasterlist 读取并校验单个主列表文件
func LoadMasterlist(path string) (*Masterlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取主列表失败: %w", err)
	}
	var ml Masterlist
	if err := json.Unmarshal(data, &ml); err != nil {
		return nil, fmt.Errorf("主列表 %s 解析失败: %w", filepath.Base(path), err)
	}
	if ml.GameID == "" {
		ml.GameID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := ml.validate(); err != nil {
		return nil, fmt.Errorf("主列表 %s 校验失败: %w", filepath.Base(path), err)
	}
	return &ml, nil
}

// LoadMasterlistDir 读取目录下所有 .json 主列表
func LoadMasterlistDir(dir string) ([]*Masterlist, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取主列表目录失败: %w", err)
	}
	var out []*Masterlist
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ml, err := LoadMasterlist(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, ml)
	}
	return out, nil
}

// validate 检查规则种类合法、模式非空
func (ml *Masterlist) validate() error {
	if len(ml.Catalog) == 0 {
		return fmt.Errorf("目录为空")
	}
	for i, r := range ml.Rules {
		if r.SubjectPattern == "" || r.ObjectPattern == "" {
			return fmt.Errorf("规则 #%d (%s) 模式为空", i, r.ID)
		}
		known := false
		for _, k := range domain.KnownRuleKinds {
			if domain.RuleKind(r.Kind) == k {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("规则 #%d (%s) 种类非法: %q", i, r.ID, r.Kind)
		}
	}
	return nil
}

// DomainRules 把主列表规则转换为领域规则（可靠性恒为 1.0）
func (ml *Masterlist) DomainRules() []domain.Rule {
	out := make([]domain.Rule, 0, len(ml.Rules))
	for _, r := range ml.Rules {
		out = append(out, domain.Rule{
			ID:               r.ID,
			Kind:             domain.RuleKind(r.Kind),
			SubjectPattern:   r.SubjectPattern,
			ObjectPattern:    r.ObjectPattern,
			GameID:           ml.GameID,
			VersionRange:     r.VersionRange,
			Provenance:       baselineProvenance,
			ReliabilityScore: 1.0,
			CreatedAt:        r.CreatedAt,
		})
	}
	return out
}
