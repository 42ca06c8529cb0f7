// file: internal/rulestore/builder_test.go

package rulestore

import (
	"errors"
	"sort"
	"testing"
	"time"

	"ModWarden/internal/core/domain"
	"ModWarden/internal/core/port"
)

var buildBase = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

func rule(id string, kind domain.RuleKind, subject, object string, score float64) domain.Rule {
	return domain.Rule{
		ID: id, Kind: kind,
		SubjectPattern: subject, ObjectPattern: object,
		GameID: "skyrim", ReliabilityScore: score, CreatedAt: buildBase,
	}
}

func TestBuildRuleset_AdmissionByKindThreshold(t *testing.T) {
	candidates := []domain.Rule{
		rule("r-req-high", domain.RuleRequires, "a.esp", "b.esm", 0.80),
		rule("r-req-low", domain.RuleRequires, "c.esp", "d.esm", 0.70), // 低于 requires 阈值 0.75
		rule("r-patch-low", domain.RulePatchAvailable, "e.esp", "f.esp", 0.45),
	}
	rs, report, err := BuildRuleset("skyrim", candidates, []string{"a.esp"}, DefaultAdmissionPolicy())
	if err != nil {
		t.Fatalf("构建不应失败: %v", err)
	}
	if report.Admitted != 2 || report.Rejected != 1 {
		t.Fatalf("准入统计不匹配: %+v", report)
	}
	for _, r := range rs.Rules {
		if r.ID == "r-req-low" {
			t.Errorf("低于阈值的规则不应进入快照")
		}
	}
}

func TestBuildRuleset_SupersededRejected(t *testing.T) {
	r := rule("r1", domain.RuleRequires, "a.esp", "b.esm", 0.99)
	r.SupersededBy = "r2"
	_, report, err := BuildRuleset("skyrim", []domain.Rule{r}, []string{"a.esp"}, DefaultAdmissionPolicy())
	if err != nil {
		t.Fatalf("构建不应失败: %v", err)
	}
	if report.Admitted != 0 || report.Rejected != 1 {
		t.Fatalf("被取代的规则应被拒绝: %+v", report)
	}
}

func TestBuildRuleset_PairConflictHigherScoreWins(t *testing.T) {
	candidates := []domain.Rule{
		rule("r-weak", domain.RuleLoadAfter, "a.esp", "b.esp", 0.65),
		rule("r-strong", domain.RuleLoadBefore, "a.esp", "b.esp", 0.90),
	}
	rs, report, err := BuildRuleset("skyrim", candidates, []string{"a.esp", "b.esp"}, DefaultAdmissionPolicy())
	if err != nil {
		t.Fatalf("构建不应失败: %v", err)
	}
	if len(rs.Rules) != 1 || rs.Rules[0].ID != "r-strong" {
		t.Fatalf("同一插件对上的排序冲突应保留高分规则: %v", rs.Rules)
	}
	if report.Discarded != 1 || len(report.DiscardedIDs) != 1 || report.DiscardedIDs[0] != "r-weak" {
		t.Errorf("落败规则应进入审计清单: %+v", report)
	}
}

func TestBuildRuleset_PairConflictTieKeepsNewer(t *testing.T) {
	older := rule("r-old", domain.RuleLoadAfter, "a.esp", "b.esp", 0.80)
	newer := rule("r-new", domain.RuleLoadAfter, "a.esp", "b.esp", 0.80)
	newer.CreatedAt = buildBase.Add(24 * time.Hour)

	rs, _, err := BuildRuleset("skyrim", []domain.Rule{older, newer}, []string{"a.esp"}, DefaultAdmissionPolicy())
	if err != nil {
		t.Fatalf("构建不应失败: %v", err)
	}
	if len(rs.Rules) != 1 || rs.Rules[0].ID != "r-new" {
		t.Fatalf("平分时应保留更新的规则: %v", rs.Rules)
	}
}

func TestBuildRuleset_PairKeyIsUnordered(t *testing.T) {
	candidates := []domain.Rule{
		rule("r1", domain.RuleIncompatibleWith, "a.esp", "b.esp", 0.80),
		rule("r2", domain.RuleIncompatibleWith, "b.esp", "a.esp", 0.90),
	}
	rs, _, err := BuildRuleset("skyrim", candidates, []string{"a.esp"}, DefaultAdmissionPolicy())
	if err != nil {
		t.Fatalf("构建不应失败: %v", err)
	}
	if len(rs.Rules) != 1 || rs.Rules[0].ID != "r2" {
		t.Fatalf("主宾对换仍是同一插件对: %v", rs.Rules)
	}
}

func TestBuildRuleset_EmptyCatalogFailsClosed(t *testing.T) {
	_, _, err := BuildRuleset("skyrim", nil, nil, DefaultAdmissionPolicy())
	if !errors.Is(err, port.ErrCatalogMissing) {
		t.Fatalf("目录缺失必须拒绝构建: %v", err)
	}
}

func TestBuildRuleset_DeterministicOrderAndSealedCatalog(t *testing.T) {
	candidates := []domain.Rule{
		rule("r2", domain.RuleRequires, "z.esp", "y.esm", 0.90),
		rule("r1", domain.RuleRequires, "a.esp", "b.esm", 0.90),
		rule("r3", domain.RuleIncompatibleWith, "m.esp", "n.esp", 0.90),
	}
	catalog := []string{"B.esp", "a.esp", "a.esp", "C.esp"}

	first, _, err := BuildRuleset("skyrim", candidates, catalog, DefaultAdmissionPolicy())
	if err != nil {
		t.Fatalf("构建不应失败: %v", err)
	}
	if !sort.StringsAreSorted(first.Catalog) {
		t.Errorf("目录必须已排序: %v", first.Catalog)
	}
	if len(first.Catalog) != 3 {
		t.Errorf("目录必须去重且小写化: %v", first.Catalog)
	}
	if !first.InCatalog("b.esp") {
		t.Errorf("目录查找集应已建立")
	}

	for i := 0; i < 5; i++ {
		again, _, err := BuildRuleset("skyrim", candidates, catalog, DefaultAdmissionPolicy())
		if err != nil {
			t.Fatalf("构建不应失败: %v", err)
		}
		for j := range again.Rules {
			if again.Rules[j].ID != first.Rules[j].ID {
				t.Fatalf("快照内规则顺序必须确定: %v vs %v", again.Rules, first.Rules)
			}
		}
	}
}

func TestBuildRuleset_FreshVersionTagEachBuild(t *testing.T) {
	a, _, _ := BuildRuleset("skyrim", nil, []string{"a.esp"}, DefaultAdmissionPolicy())
	b, _, _ := BuildRuleset("skyrim", nil, []string{"a.esp"}, DefaultAdmissionPolicy())
	if a.VersionTag == "" || a.VersionTag == b.VersionTag {
		t.Fatalf("每次构建必须产生新的版本号: %q vs %q", a.VersionTag, b.VersionTag)
	}
}
