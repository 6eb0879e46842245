package wfgraph

import (
	"sort"

	"weaveforge/internal/core"
)

// ReadyNodes scans for every Pending node whose dependencies are all Built
// or Cached. Skipped dependencies never satisfy readiness: a node downstream
// of a skipped dependency is itself skipped by FailAndPropagate, never left
// Pending. Ready nodes are returned sorted by canonical index (ascending
// TargetId order) and are atomically moved
// Pending -> Ready before being returned, so concurrent callers observe
// disjoint sets.
func (g *Graph) ReadyNodes() []*BuildNode {
	var ready []*BuildNode
	for _, n := range g.nodes {
		if n.Status() != Pending {
			continue
		}
		if !g.depsSatisfied(n) {
			continue
		}
		if ok, _ := n.CAS(Pending, Ready); ok {
			ready = append(ready, n)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		return ready[i].canonicalIndex < ready[j].canonicalIndex
	})
	return ready
}

func (g *Graph) depsSatisfied(n *BuildNode) bool {
	for _, dep := range n.Dependencies {
		dn, ok := g.Node(dep)
		if !ok {
			return false
		}
		switch dn.Status() {
		case Built, Cached:
			// satisfied
		default:
			return false
		}
	}
	return true
}

// FailAndPropagate transitions a Running node to Failed and marks every
// Pending or Ready node downstream of it as Skipped, using a
// breadth-first walk ordered by canonical index for deterministic output.
// It is an invariant violation for a downstream node to already be Running
// when this is called: that would mean the scheduler dispatched work past a
// dependency that had not yet completed.
func (g *Graph) FailAndPropagate(id core.TargetId) ([]core.TargetId, error) {
	n, ok := g.Node(id)
	if !ok {
		return nil, nil
	}
	if ok, err := n.CAS(Running, Failed); !ok && err != nil {
		return nil, err
	}

	visited := make(map[core.TargetId]bool)
	queue := append([]core.TargetId(nil), n.Dependents...)
	var skipped []core.TargetId

	for len(queue) > 0 {
		sort.Slice(queue, func(i, j int) bool { return queue[i].String() < queue[j].String() })
		next := queue[0]
		queue = queue[1:]
		if visited[next] {
			continue
		}
		visited[next] = true

		dn, ok := g.Node(next)
		if !ok {
			continue
		}
		switch dn.Status() {
		case Pending, Ready:
			if ok, err := dn.CAS(dn.Status(), Skipped); ok {
				skipped = append(skipped, next)
				queue = append(queue, dn.Dependents...)
			} else if err != nil {
				return skipped, err
			}
		case Built, Cached, Failed, Skipped:
			// already terminal, nothing to propagate through a second time
		case Running:
			return skipped, &GraphInvariantError{TargetID: next}
		}
	}
	return skipped, nil
}

// GraphInvariantError reports a downstream node observed Running while its
// upstream dependency was failing — a scheduler bug, not a user error.
type GraphInvariantError struct{ TargetID core.TargetId }

func (e *GraphInvariantError) Error() string {
	return "invariant violation: " + e.TargetID.String() + " running while upstream failed"
}
