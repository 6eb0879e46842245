package wfgraph

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"weaveforge/internal/core"
	"weaveforge/internal/wferrors"
)

// GraphHash is the deterministic identity of a Graph, computed from target
// definitions and dependency structure only: it is stable across different
// insertion orders of targets and edges.
type GraphHash string

// Graph is a dependency graph over build targets. New builds it whole;
// AddTarget and AddDependency grow it; apart from those, the only thing that
// changes is each node's atomic BuildStatus.
type Graph struct {
	nodes []*BuildNode
	index map[core.TargetId]int // TargetId -> position in nodes
	hash  GraphHash
}

// New builds a Graph from a set of targets. Deps embedded in each Target are
// used as the edge set ("to depends on from" reads as from appears in
// to.Deps). Returns a *wferrors.GraphError for duplicate targets, dangling
// dependencies, or cycles; a dependency is never linked into an inconsistent
// graph.
func New(targets []core.Target) (*Graph, error) {
	byID := make(map[core.TargetId]core.Target, len(targets))
	for _, t := range targets {
		if _, exists := byID[t.ID]; exists {
			return nil, &wferrors.GraphError{Code: wferrors.DuplicateTarget, Msg: t.ID.String()}
		}
		byID[t.ID] = t
	}

	for _, t := range targets {
		for _, d := range t.Deps {
			if _, ok := byID[d]; !ok {
				return nil, &wferrors.GraphError{Code: wferrors.NodeNotFound, Msg: d.String()}
			}
		}
	}

	order := canonicalOrder(targets)
	if err := checkAcyclic(order, byID); err != nil {
		return nil, err
	}

	nodes := make([]*BuildNode, len(order))
	index := make(map[core.TargetId]int, len(order))
	for i, t := range order {
		n := newBuildNode(t)
		n.canonicalIndex = i
		nodes[i] = n
		index[t.ID] = i
	}

	// Dependents is the transpose of Deps, filled in a second pass.
	for _, n := range nodes {
		for _, d := range n.Target.Deps {
			n.Dependencies = append(n.Dependencies, d)
			dn := nodes[index[d]]
			dn.Dependents = append(dn.Dependents, n.Target.ID)
		}
	}

	g := &Graph{nodes: nodes, index: index}
	g.hash = computeGraphHash(nodes)
	return g, nil
}

// AddTarget inserts a single node in Pending state, wiring any dependencies
// already declared on the target through the same cycle-checked path as
// AddDependency. Fails with DuplicateTarget if the id exists or NodeNotFound
// if a declared dependency hasn't been added yet; the graph is left
// unchanged on either failure. Unlike New, this does not require the whole
// target set up front — callers may grow the graph one node and one edge at
// a time, which is what lets AddDependency's cycle rejection be exercised
// in isolation instead of only ever seeing a graph New already validated.
//
// AddTarget is not safe to call concurrently with itself, AddDependency, or
// any read method: like New, graph construction is single-threaded, and only
// each BuildNode's status is safe for concurrent access once built.
func (g *Graph) AddTarget(t core.Target) (*BuildNode, error) {
	if _, exists := g.index[t.ID]; exists {
		return nil, &wferrors.GraphError{Code: wferrors.DuplicateTarget, Msg: t.ID.String()}
	}
	for _, d := range t.Deps {
		if _, ok := g.index[d]; !ok {
			return nil, &wferrors.GraphError{Code: wferrors.NodeNotFound, Msg: d.String()}
		}
	}

	n := newBuildNode(t)
	g.nodes = append(g.nodes, n)
	g.index[t.ID] = len(g.nodes) - 1
	g.reindex()

	for _, d := range t.Deps {
		if err := g.AddDependency(t.ID, d); err != nil {
			// A freshly added node with only dangling-dep edges can't
			// actually cycle (nothing depends on it yet), but keep the
			// rollback honest rather than assume that invariant here.
			g.removeTarget(t.ID)
			return nil, err
		}
	}

	g.hash = computeGraphHash(g.nodes)
	return n, nil
}

// AddDependency adds a directed edge from -> to, meaning from depends on to.
// The cycle check runs before the edge is inserted: a DFS starting at to
// that reaches from means to already (transitively) depends on from, so
// linking from -> to would close a cycle, and AddDependency rejects it
// without mutating the graph. Fails with NodeNotFound if either id is
// absent.
func (g *Graph) AddDependency(from, to core.TargetId) error {
	fi, ok := g.index[from]
	if !ok {
		return &wferrors.GraphError{Code: wferrors.NodeNotFound, Msg: from.String()}
	}
	ti, ok := g.index[to]
	if !ok {
		return &wferrors.GraphError{Code: wferrors.NodeNotFound, Msg: to.String()}
	}

	if g.reaches(to, from) {
		return &wferrors.GraphError{Code: wferrors.CycleDetected, Msg: from.String() + " -> " + to.String()}
	}

	fromNode := g.nodes[fi]
	toNode := g.nodes[ti]
	fromNode.Dependencies = append(fromNode.Dependencies, to)
	toNode.Dependents = append(toNode.Dependents, from)
	g.hash = computeGraphHash(g.nodes)
	return nil
}

// reaches reports whether a DFS from start following Dependencies edges can
// reach target.
func (g *Graph) reaches(start, target core.TargetId) bool {
	if start == target {
		return true
	}
	visited := make(map[core.TargetId]bool, len(g.nodes))
	var visit func(id core.TargetId) bool
	visit = func(id core.TargetId) bool {
		if visited[id] {
			return false
		}
		visited[id] = true
		n := g.nodes[g.index[id]]
		for _, d := range n.Dependencies {
			if d == target || visit(d) {
				return true
			}
		}
		return false
	}
	return visit(start)
}

// removeTarget deletes a just-inserted, not-yet-depended-on node during
// AddTarget rollback. It is not a general-purpose removal: it does not
// unwind edges other nodes may already hold toward id.
func (g *Graph) removeTarget(id core.TargetId) {
	i, ok := g.index[id]
	if !ok {
		return
	}
	g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
	g.reindex()
	g.hash = computeGraphHash(g.nodes)
}

// reindex re-sorts nodes into canonical (ascending TargetId) order and
// rebuilds the id->position index and each node's canonicalIndex. Called
// after any structural change so TopologicalOrder's tie-break and
// WaveSchedule's ordering stay independent of insertion order.
func (g *Graph) reindex() {
	sort.Slice(g.nodes, func(i, j int) bool {
		return g.nodes[i].Target.ID.String() < g.nodes[j].Target.ID.String()
	})
	g.index = make(map[core.TargetId]int, len(g.nodes))
	for i, n := range g.nodes {
		n.canonicalIndex = i
		g.index[n.Target.ID] = i
	}
}

// canonicalOrder sorts targets by TargetId string so node identity is
// independent of construction order.
func canonicalOrder(targets []core.Target) []core.Target {
	out := make([]core.Target, len(targets))
	copy(out, targets)
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func checkAcyclic(order []core.Target, byID map[core.TargetId]core.Target) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[core.TargetId]int, len(order))

	var visit func(id core.TargetId) error
	visit = func(id core.TargetId) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return &wferrors.GraphError{Code: wferrors.CycleDetected, Msg: id.String()}
		}
		color[id] = gray
		for _, d := range byID[id].Deps {
			if err := visit(d); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for _, t := range order {
		if err := visit(t.ID); err != nil {
			return err
		}
	}
	return nil
}

func computeGraphHash(nodes []*BuildNode) GraphHash {
	h := sha256.New()
	writeLP := func(b []byte) {
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
		h.Write(lenBuf[:])
		h.Write(b)
	}
	for _, n := range nodes {
		writeLP([]byte(n.Target.ID.String()))
		deps := append([]string(nil))
		for _, d := range n.Dependencies {
			deps = append(deps, d.String())
		}
		sort.Strings(deps)
		for _, d := range deps {
			writeLP([]byte(d))
		}
	}
	return GraphHash(hex.EncodeToString(h.Sum(nil)))
}

// Hash returns the graph's stable identity.
func (g *Graph) Hash() GraphHash { return g.hash }

// Node looks up a node by target id.
func (g *Graph) Node(id core.TargetId) (*BuildNode, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// Nodes returns all nodes in canonical order. The slice must not be mutated.
func (g *Graph) Nodes() []*BuildNode { return g.nodes }

// TopologicalOrder returns target ids in a linearization consistent with
// every dependency edge, using canonical-index as the deterministic
// tie-break among targets with no ordering constraint between them.
func (g *Graph) TopologicalOrder() []core.TargetId {
	indeg := make([]int, len(g.nodes))
	for _, n := range g.nodes {
		indeg[n.canonicalIndex] = len(n.Dependencies)
	}

	ready := newIntHeap()
	for i, d := range indeg {
		if d == 0 {
			ready.push(i)
		}
	}

	var order []core.TargetId
	for ready.len() > 0 {
		i := ready.pop()
		n := g.nodes[i]
		order = append(order, n.Target.ID)
		for _, depID := range n.Dependents {
			j := g.index[depID]
			indeg[j]--
			if indeg[j] == 0 {
				ready.push(j)
			}
		}
	}
	return order
}

// WaveSchedule partitions nodes into waves by longest-path depth from a
// root: wave i contains every node whose longest dependency chain has
// length i. No node is placed in a wave before any of its dependencies'.
func (g *Graph) WaveSchedule() [][]core.TargetId {
	depth := make([]int, len(g.nodes))
	order := g.TopologicalOrder()
	for _, id := range order {
		n, _ := g.Node(id)
		d := 0
		for _, dep := range n.Dependencies {
			dd := depth[g.index[dep]] + 1
			if dd > d {
				d = dd
			}
		}
		depth[n.canonicalIndex] = d
	}

	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}

	waves := make([][]core.TargetId, maxDepth+1)
	for _, n := range g.nodes {
		d := depth[n.canonicalIndex]
		waves[d] = append(waves[d], n.Target.ID)
	}
	for _, w := range waves {
		sort.Slice(w, func(i, j int) bool { return w[i].String() < w[j].String() })
	}
	return waves
}
