// Package resolver 从偏序排序约束计算确定性的插件全序
package resolver

import (
	"container/heap"
	"sort"

	"ModWarden/internal/core/domain"
)

// OrderConstraint 是一条已归一的排序约束：Before 必须先于 After 加载。
// load_after(A,B) 归一为 {Before:B, After:A}；load_before(A,B) 归一为 {Before:A, After:B}。
type OrderConstraint struct {
	Before string
	After  string
	RuleID string
}

// Resolve 用 Kahn 算法计算满足全部约束的加载顺序。
// 就绪集合按原始提交位置取最小者，保证输出稳定且对用户现有顺序扰动最小；
// 无约束的插件保持原有相对位置。存在环时不丢弃任何边，而是提取参与环的
// 最小规则集合返回 OrderError，绝不返回部分顺序。
func Resolve(plugins []domain.PluginRecord, constraints []OrderConstraint) ([]string, *domain.OrderError) {
	position := make(map[string]int, len(plugins))
	for _, p := range plugins {
		if p.Enabled {
			position[p.CanonicalName] = p.Position
		}
	}

	// 只保留两端都存在且启用的约束
	adj := make(map[string][]string, len(position))
	indegree := make(map[string]int, len(position))
	active := make([]OrderConstraint, 0, len(constraints))
	for name := range position {
		indegree[name] = 0
	}
	for _, c := range constraints {
		if _, ok := position[c.Before]; !ok {
			continue
		}
		if _, ok := position[c.After]; !ok {
			continue
		}
		active = append(active, c)
		adj[c.Before] = append(adj[c.Before], c.After)
		indegree[c.After]++
	}

	ready := &positionHeap{pos: position}
	for name, deg := range indegree {
		if deg == 0 {
			ready.names = append(ready.names, name)
		}
	}
	heap.Init(ready)

	order := make([]string, 0, len(position))
	for ready.Len() > 0 {
		name := heap.Pop(ready).(string)
		order = append(order, name)
		// 邻接表按位置序处理，保证与堆的取用顺序一起构成完全确定的遍历
		next := adj[name]
		sort.Slice(next, func(i, j int) bool { return position[next[i]] < position[next[j]] })
		for _, succ := range next {
			indegree[succ]--
			if indegree[succ] == 0 {
				heap.Push(ready, succ)
			}
		}
	}

	if len(order) == len(position) {
		return order, nil
	}

	// 剩余节点构成至少一个环，提取参与环的最小规则集合
	return nil, extractCycle(position, active)
}

// extractCycle 在约束图上求强连通分量，
// 收集规模>1（或自环）的分量内的节点与两端同属一个分量的规则。
func extractCycle(position map[string]int, constraints []OrderConstraint) *domain.OrderError {
	adj := make(map[string][]string)
	for _, c := range constraints {
		adj[c.Before] = append(adj[c.Before], c.After)
	}

	comp := tarjanSCC(position, adj)

	inCycle := make(map[string]bool)
	for _, scc := range comp {
		if len(scc) > 1 {
			for _, name := range scc {
				inCycle[name] = true
			}
		}
	}
	// 自环：A→A
	for _, c := range constraints {
		if c.Before == c.After {
			inCycle[c.Before] = true
		}
	}

	err := &domain.OrderError{}
	seenRule := make(map[string]struct{})
	for _, c := range constraints {
		if inCycle[c.Before] && inCycle[c.After] && sameComponent(comp, c.Before, c.After) {
			if _, dup := seenRule[c.RuleID]; !dup {
				seenRule[c.RuleID] = struct{}{}
				err.InvolvedRules = append(err.InvolvedRules, c.RuleID)
			}
		}
	}
	for name := range inCycle {
		err.InvolvedPlugins = append(err.InvolvedPlugins, name)
	}
	sort.Strings(err.InvolvedRules)
	sort.Strings(err.InvolvedPlugins)
	return err
}

// sameComponent 判断两个节点是否属于同一个强连通分量
func sameComponent(comps [][]string, a, b string) bool {
	for _, scc := range comps {
		var hasA, hasB bool
		for _, name := range scc {
			if name == a {
				hasA = true
			}
			if name == b {
				hasB = true
			}
		}
		if hasA || hasB {
			return hasA && hasB
		}
	}
	return false
}

// tarjanSCC 对启用插件构成的约束图求强连通分量。
// 节点按位置序入栈，保证分量枚举顺序确定。
func tarjanSCC(position map[string]int, adj map[string][]string) [][]string {
	names := make([]string, 0, len(position))
	for name := range position {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return position[names[i]] < position[names[j]] })

	index := make(map[string]int, len(names))
	low := make(map[string]int, len(names))
	onStack := make(map[string]bool, len(names))
	var stack []string
	var result [][]string
	counter := 0

	var strongConnect func(v string)
	strongConnect = func(v string) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		succ := append([]string(nil), adj[v]...)
		sort.Slice(succ, func(i, j int) bool { return position[succ[i]] < position[succ[j]] })
		for _, w := range succ {
			if _, ok := position[w]; !ok {
				continue
			}
			if _, visited := index[w]; !visited {
				strongConnect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] {
				if index[w] < low[v] {
					low[v] = index[w]
				}
			}
		}

		if low[v] == index[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			result = append(result, scc)
		}
	}

	for _, name := range names {
		if _, visited := index[name]; !visited {
			strongConnect(name)
		}
	}
	return result
}

// positionHeap 是按提交位置排序的最小堆，用作 Kahn 的就绪集合
type positionHeap struct {
	names []string
	pos   map[string]int
}

func (h *positionHeap) Len() int            { return len(h.names) }
func (h *positionHeap) Less(i, j int) bool  { return h.pos[h.names[i]] < h.pos[h.names[j]] }
func (h *positionHeap) Swap(i, j int)       { h.names[i], h.names[j] = h.names[j], h.names[i] }
func (h *positionHeap) Push(x interface{})  { h.names = append(h.names, x.(string)) }
func (h *positionHeap) Pop() interface{} {
	old := h.names
	n := len(old)
	x := old[n-1]
	h.names = old[:n-1]
	return x
}
