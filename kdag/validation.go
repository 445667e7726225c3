package kdag

import (
	"fmt"
	"slices"
	"sort"
)

// Validation limits to prevent pathological cases
const (
	MaxNodesPerDAG     = 10000
	MaxChildrenPerNode = 1000
)

// reaches reports whether to is reachable from from by following edges.
func (d *Dag) reaches(from, to NodeHandle) bool {
	visited := make(map[NodeHandle]bool)
	stack := []NodeHandle{from}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == to {
			return true
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		for _, e := range d.outbound[current] {
			stack = append(stack, e.To.Node)
		}
	}
	return false
}

// Reachable returns every node downstream of handle, excluding handle itself,
// in deterministic order.
func (d *Dag) Reachable(handle NodeHandle) []NodeHandle {
	visited := make(map[NodeHandle]bool)

	var dfs func(NodeHandle)
	dfs = func(current NodeHandle) {
		for _, e := range d.outbound[current] {
			child := e.To.Node
			if visited[child] {
				continue
			}
			visited[child] = true
			dfs(child)
		}
	}
	dfs(handle)

	res := make([]NodeHandle, 0, len(visited))
	for h := range visited {
		res = append(res, h)
	}
	slices.SortFunc(res, NodeHandle.Compare)
	return res
}

// insertSorted inserts an item into a sorted slice maintaining sort order.
func insertSorted(s []NodeHandle, item NodeHandle) []NodeHandle {
	idx := sort.Search(len(s), func(i int) bool {
		return s[i].Compare(item) >= 0
	})
	return slices.Insert(s, idx, item)
}

// TopologicalOrder returns every node so that each node comes after all of
// its upstream nodes. Ties are broken by handle, so the order is
// deterministic.
func (d *Dag) TopologicalOrder() ([]NodeHandle, error) {
	inDegree := make(map[NodeHandle]int, len(d.nodes))
	for h := range d.nodes {
		inDegree[h] = 0
	}
	for _, e := range d.edges {
		inDegree[e.To.Node]++
	}

	queue := make([]NodeHandle, 0, len(d.nodes)/4)
	for h, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, h)
		}
	}
	slices.SortFunc(queue, NodeHandle.Compare)

	result := make([]NodeHandle, 0, len(d.nodes))
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		result = append(result, h)

		for _, e := range d.outbound[h] {
			inDegree[e.To.Node]--
			if inDegree[e.To.Node] == 0 {
				queue = insertSorted(queue, e.To.Node)
			}
		}
	}

	if len(result) != len(d.nodes) {
		return nil, fmt.Errorf("%w: topological sort failed", ErrCycleDetected)
	}
	return result, nil
}
