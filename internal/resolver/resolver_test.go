// file: internal/resolver/resolver_test.go

package resolver

import (
	"reflect"
	"testing"

	"ModWarden/internal/core/domain"
)

func plugins(names ...string) []domain.PluginRecord {
	out := make([]domain.PluginRecord, len(names))
	for i, n := range names {
		out[i] = domain.PluginRecord{RawName: n, CanonicalName: n, Enabled: true, Position: i}
	}
	return out
}

func TestResolve_NoConstraintsKeepsSubmissionOrder(t *testing.T) {
	order, orderErr := Resolve(plugins("c.esp", "a.esp", "b.esp"), nil)
	if orderErr != nil {
		t.Fatalf("无约束不应有错误: %v", orderErr)
	}
	want := []string{"c.esp", "a.esp", "b.esp"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("无约束时应保持提交顺序: got=%v want=%v", order, want)
	}
}

func TestResolve_SatisfiesConstraints(t *testing.T) {
	// b 必须先于 a；c 必须先于 b
	cs := []OrderConstraint{
		{Before: "b.esp", After: "a.esp", RuleID: "r1"},
		{Before: "c.esp", After: "b.esp", RuleID: "r2"},
	}
	order, orderErr := Resolve(plugins("a.esp", "b.esp", "c.esp"), cs)
	if orderErr != nil {
		t.Fatalf("可满足约束不应有错误: %v", orderErr)
	}
	idx := make(map[string]int)
	for i, n := range order {
		idx[n] = i
	}
	for _, c := range cs {
		if idx[c.Before] >= idx[c.After] {
			t.Errorf("约束 %s(%s<%s) 未被满足: %v", c.RuleID, c.Before, c.After, order)
		}
	}
}

func TestResolve_MinimalDisruption(t *testing.T) {
	// 只有 d 和 a 之间有约束，b、c 的相对位置不应被打乱
	cs := []OrderConstraint{{Before: "d.esp", After: "a.esp", RuleID: "r1"}}
	order, orderErr := Resolve(plugins("a.esp", "b.esp", "c.esp", "d.esp"), cs)
	if orderErr != nil {
		t.Fatalf("不应有错误: %v", orderErr)
	}
	idx := make(map[string]int)
	for i, n := range order {
		idx[n] = i
	}
	if idx["b.esp"] > idx["c.esp"] {
		t.Errorf("无约束插件的相对顺序应保持: %v", order)
	}
	if idx["d.esp"] >= idx["a.esp"] {
		t.Errorf("约束未满足: %v", order)
	}
}

func TestResolve_TwoRuleCycle(t *testing.T) {
	cs := []OrderConstraint{
		{Before: "b.esp", After: "a.esp", RuleID: "r1"}, // load_after(a,b)
		{Before: "a.esp", After: "b.esp", RuleID: "r2"}, // load_after(b,a)
	}
	order, orderErr := Resolve(plugins("a.esp", "b.esp"), cs)
	if order != nil {
		t.Fatalf("存在环时绝不能返回部分顺序: %v", order)
	}
	if orderErr == nil {
		t.Fatal("应返回 OrderError")
	}
	wantRules := []string{"r1", "r2"}
	if !reflect.DeepEqual(orderErr.InvolvedRules, wantRules) {
		t.Errorf("应点名两条参与规则: got=%v", orderErr.InvolvedRules)
	}
	wantPlugins := []string{"a.esp", "b.esp"}
	if !reflect.DeepEqual(orderErr.InvolvedPlugins, wantPlugins) {
		t.Errorf("应点名两个参与插件: got=%v", orderErr.InvolvedPlugins)
	}
}

func TestResolve_CycleDoesNotSwallowInnocentRules(t *testing.T) {
	cs := []OrderConstraint{
		{Before: "b.esp", After: "a.esp", RuleID: "r-cycle1"},
		{Before: "a.esp", After: "b.esp", RuleID: "r-cycle2"},
		{Before: "c.esp", After: "d.esp", RuleID: "r-innocent"},
	}
	_, orderErr := Resolve(plugins("a.esp", "b.esp", "c.esp", "d.esp"), cs)
	if orderErr == nil {
		t.Fatal("应返回 OrderError")
	}
	for _, id := range orderErr.InvolvedRules {
		if id == "r-innocent" {
			t.Errorf("与环无关的规则不应被点名: %v", orderErr.InvolvedRules)
		}
	}
	if len(orderErr.InvolvedRules) != 2 {
		t.Errorf("参与规则集合应最小化: %v", orderErr.InvolvedRules)
	}
}

func TestResolve_DisabledEndpointIgnored(t *testing.T) {
	ps := plugins("a.esp", "b.esp")
	ps[1].Enabled = false // b 禁用，约束不生效
	cs := []OrderConstraint{
		{Before: "b.esp", After: "a.esp", RuleID: "r1"},
		{Before: "a.esp", After: "b.esp", RuleID: "r2"},
	}
	order, orderErr := Resolve(ps, cs)
	if orderErr != nil {
		t.Fatalf("禁用端点的约束应被忽略: %v", orderErr)
	}
	if !reflect.DeepEqual(order, []string{"a.esp"}) {
		t.Errorf("仅启用插件参与排序: %v", order)
	}
}

func TestResolve_SelfLoopIsCycle(t *testing.T) {
	cs := []OrderConstraint{{Before: "a.esp", After: "a.esp", RuleID: "r-self"}}
	order, orderErr := Resolve(plugins("a.esp"), cs)
	if order != nil || orderErr == nil {
		t.Fatalf("自环也是环: order=%v err=%v", order, orderErr)
	}
	if !reflect.DeepEqual(orderErr.InvolvedRules, []string{"r-self"}) {
		t.Errorf("应点名自环规则: %v", orderErr.InvolvedRules)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	cs := []OrderConstraint{
		{Before: "e.esp", After: "a.esp", RuleID: "r1"},
		{Before: "d.esp", After: "b.esp", RuleID: "r2"},
	}
	ps := plugins("a.esp", "b.esp", "c.esp", "d.esp", "e.esp")
	first, _ := Resolve(ps, cs)
	for i := 0; i < 20; i++ {
		again, _ := Resolve(ps, cs)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("排序结果必须可复现: %v vs %v", first, again)
		}
	}
}
