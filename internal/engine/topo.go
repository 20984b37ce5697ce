package engine

import (
	"sort"

	"gridsheet/internal/grid"
)

type color int

const (
	white color = iota
	gray
	black
)

// hasCycle reports whether the outbound graph contains a cycle reachable
// from start. It walks with an explicit stack of DFS frames rather than
// recursing, per spec §5's requirement that cycle detection use bounded
// recursion or an explicit work stack — a grid this size can have a
// dependency chain as long as the cell count.
func hasCycle(a *grid.Arena, start int) bool {
	colors := make(map[int]color)

	type frame struct {
		node      int
		neighbors []int
		next      int
	}
	neighborsOf := func(n int) []int {
		cell := a.Get(n)
		ns := make([]int, 0, len(cell.Outbound))
		for j := range cell.Outbound {
			ns = append(ns, j)
		}
		return ns
	}

	colors[start] = gray
	stack := []*frame{{node: start, neighbors: neighborsOf(start)}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next >= len(top.neighbors) {
			colors[top.node] = black
			stack = stack[:len(stack)-1]
			continue
		}
		next := top.neighbors[top.next]
		top.next++
		switch colors[next] {
		case gray:
			return true // revisited a node still on the current path
		case black:
			// fully explored elsewhere; no cycle through it
		default:
			colors[next] = gray
			stack = append(stack, &frame{node: next, neighbors: neighborsOf(next)})
		}
	}
	return false
}

// affectedSet returns start together with every cell transitively reached
// by following inbound edges from start — exactly the set that might need
// re-evaluation after start changes.
func affectedSet(a *grid.Arena, start int) map[int]bool {
	seen := map[int]bool{start: true}
	queue := []int{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for j := range a.Get(n).Inbound {
			if !seen[j] {
				seen[j] = true
				queue = append(queue, j)
			}
		}
	}
	return seen
}

// topoOrder produces a correct topological order of affected — every cell
// appears after every cell it reads (restricted to affected), not merely
// in DFS discovery order. This is Kahn's algorithm: repeatedly take a
// node whose not-yet-emitted dependencies (within affected) are all gone.
// Using in/out-degree counts keeps it iterative and makes each node
// appear exactly once, closing the bug the design notes call out: a plain
// entry-order DFS can emit a node before all of its dependencies, and can
// emit it more than once.
func topoOrder(a *grid.Arena, affected map[int]bool) []int {
	indegree := make(map[int]int, len(affected))
	for n := range affected {
		count := 0
		for j := range a.Get(n).Outbound {
			if affected[j] {
				count++
			}
		}
		indegree[n] = count
	}

	var ready []int
	for n := range affected {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Ints(ready)

	order := make([]int, 0, len(affected))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		var newlyReady []int
		for j := range a.Get(n).Inbound {
			if !affected[j] {
				continue
			}
			indegree[j]--
			if indegree[j] == 0 {
				newlyReady = append(newlyReady, j)
			}
		}
		sort.Ints(newlyReady)
		ready = append(ready, newlyReady...)
	}
	return order
}
