package granite

import (
	"github.com/akmonengine/granite/actor"
	"github.com/akmonengine/granite/constraint"
)

// coloring partitions dynamic bodies into groups such that no two bodies in a
// group share an active constraint, so the primal update of one group can run
// concurrently without write conflicts. Groups are processed sequentially:
// later colors must observe earlier colors' committed positions (block
// Gauss-Seidel, which is what gives the scheme its convergence rate).
//
// All slices are arenas reused across steps to avoid per-step allocation.
type coloring struct {
	colors    []int   // per body index; -1 for static/kinematic bodies
	groups    [][]int // body indices per color
	adjacency [][]int
	used      []bool
}

// build recomputes the greedy first-fit coloring from the active constraint
// set. Only constraints joining two dynamic bodies induce conflict edges:
// static and kinematic bodies are read-only during the primal update.
func (col *coloring) build(bodies []*actor.RigidBody, indexOf map[*actor.RigidBody]int, constraints []*constraint.Constraint) {
	n := len(bodies)

	col.colors = resize(col.colors, n)
	col.adjacency = resizeNested(col.adjacency, n)
	col.used = resize(col.used, n+1)

	for _, c := range constraints {
		if !c.BodyA.Dynamic() || !c.BodyB.Dynamic() {
			continue
		}
		i, j := indexOf[c.BodyA], indexOf[c.BodyB]
		col.adjacency[i] = append(col.adjacency[i], j)
		col.adjacency[j] = append(col.adjacency[j], i)
	}

	maxColor := -1
	for i, body := range bodies {
		if !body.Dynamic() {
			col.colors[i] = -1
			continue
		}

		for _, neighbor := range col.adjacency[i] {
			if neighbor < i && col.colors[neighbor] >= 0 {
				col.used[col.colors[neighbor]] = true
			}
		}

		color := 0
		for col.used[color] {
			color++
		}
		col.colors[i] = color
		if color > maxColor {
			maxColor = color
		}

		for _, neighbor := range col.adjacency[i] {
			if neighbor < i && col.colors[neighbor] >= 0 {
				col.used[col.colors[neighbor]] = false
			}
		}
	}

	col.groups = resizeNested(col.groups, maxColor+1)
	for i := range bodies {
		if c := col.colors[i]; c >= 0 {
			col.groups[c] = append(col.groups[c], i)
		}
	}
}

// colorCount returns the number of color groups of the last build.
func (col *coloring) colorCount() int {
	return len(col.groups)
}

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	s = s[:n]
	var zero T
	for i := range s {
		s[i] = zero
	}
	return s
}

func resizeNested[T any](s [][]T, n int) [][]T {
	for i := range s {
		s[i] = s[i][:0]
	}
	for len(s) < n {
		s = append(s, nil)
	}
	return s[:n]
}
