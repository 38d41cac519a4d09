package analyzer

import (
	"sort"
	"strings"

	"github.com/mickamy/scanprof/internal/model"
)

type frame struct {
	parent   *NodeStats
	children []int
	next     int
	sibling  int
	depth    int
}

// Reconstruct rebuilds the plan tree from a flat node list and returns the
// reachable nodes in pre-order, children sorted by idx. Nodes whose parent
// chain never reaches the root are left out and only counted.
//
// TraversalOrder is taken before a node's children are visited and the counter
// advances once more after each subtree, so the numbering is increasing but not
// dense. Each node is placed at most once, which also stops cyclic parent links.
func Reconstruct(nodes []model.PlanNode) ([]*NodeStats, int) {
	byParent := make(map[int][]int, len(nodes))
	for i, n := range nodes {
		byParent[n.ParentID] = append(byParent[n.ParentID], i)
	}
	for _, children := range byParent {
		sort.SliceStable(children, func(a, b int) bool {
			return nodes[children[a]].Idx < nodes[children[b]].Idx
		})
	}

	placed := make([]bool, len(nodes))
	ordered := make([]*NodeStats, 0, len(nodes))
	order := 0

	stack := []frame{{children: byParent[model.RootSelectID]}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.children) {
			stack = stack[:len(stack)-1]
			order++
			continue
		}

		i := top.children[top.next]
		top.next++
		if placed[i] {
			continue
		}
		placed[i] = true

		stats := &NodeStats{
			Node:           nodes[i],
			Depth:          top.depth,
			SiblingIndex:   top.sibling,
			TraversalOrder: order,
			Parent:         top.parent,
		}
		top.sibling++
		if top.parent != nil {
			top.parent.Children = append(top.parent.Children, stats)
		}
		ordered = append(ordered, stats)
		order++

		childDepth := top.depth + 1
		stack = append(stack, frame{
			parent:   stats,
			children: byParent[stats.Node.SelectID],
			depth:    childDepth,
		})
	}

	return ordered, len(nodes) - len(ordered)
}

// Indent returns the prefix for a node at depth; first-level nodes get none.
func Indent(depth int, unit string) string {
	if depth <= 0 {
		return ""
	}
	return strings.Repeat(unit, depth)
}
