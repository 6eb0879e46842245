package wfincremental

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"weaveforge/internal/core"
)

// NodeExecutionDecision is the deterministic plan decision for a target.
// Decisions are strictly Execute or ReuseCache; there is no Skip state —
// runtime-conditional skipping would make two planning passes over the
// same graph produce different plans depending on what else happened to
// run first.
type NodeExecutionDecision string

const (
	DecisionExecute    NodeExecutionDecision = "Execute"
	DecisionReuseCache NodeExecutionDecision = "ReuseCache"
)

// IncrementalPlan maps every target to a deterministic execution decision.
type IncrementalPlan struct {
	// Order is the deterministic topological evaluation order; it overlays
	// the graph for serialization purposes and does not mutate it.
	Order     []string
	Decisions map[string]NodeExecutionDecision
}

// PlanningResult bundles the invalidation map (source of truth) with the
// execution plan overlaid on top of it.
type PlanningResult struct {
	Invalidation InvalidationMap
	Plan         *IncrementalPlan
}

// SerializeDeterministic returns the SHA-256 digest of a canonical encoding
// of the plan: Order's length, then (name, decision) length-prefixed pairs
// in Order's sequence.
func (p *IncrementalPlan) SerializeDeterministic() []byte {
	if p == nil {
		return nil
	}
	h := sha256.New()
	writeField := func(data []byte) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(data)))
		h.Write(n[:])
		h.Write(data)
	}
	writeField([]byte{byte(len(p.Order))})
	for _, name := range p.Order {
		writeField([]byte(name))
		writeField([]byte(p.Decisions[name]))
	}
	return h.Sum(nil)
}

// Hash returns a hex-encoded deterministic identity for the plan.
func (p *IncrementalPlan) Hash() string {
	bin := p.SerializeDeterministic()
	if len(bin) == 0 {
		return ""
	}
	return hex.EncodeToString(bin)
}

// CachePresence is the narrow slice of wfcache.Cache that plan building
// needs; satisfied directly by *wfcache.Cache.
type CachePresence interface {
	IsCached(id core.ActionId) bool
}

// BuildIncrementalPlan produces a decision for every target in graph.
//
// A target is ReuseCache iff: it is not invalidated, its ActionID is
// present in cache, and every upstream dependency is itself ReuseCache.
// Otherwise it is Execute.
func BuildIncrementalPlan(graph *GraphSnapshot, invalidation InvalidationMap, cache CachePresence) (*IncrementalPlan, error) {
	plan := &IncrementalPlan{Decisions: make(map[string]NodeExecutionDecision)}
	if graph == nil || len(graph.Nodes) == 0 {
		return plan, nil
	}
	if cache == nil {
		return nil, fmt.Errorf("cache is nil")
	}

	names := make([]string, 0, len(graph.Nodes))
	for name := range graph.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	outgoing := make(map[string][]string, len(graph.Nodes))
	indeg := make(map[string]int, len(graph.Nodes))
	for _, name := range names {
		indeg[name] = 0
	}
	for _, name := range names {
		n := graph.Nodes[name]
		for _, parent := range normalizeStringSet(n.Upstream) {
			if _, exists := graph.Nodes[parent]; !exists {
				continue
			}
			outgoing[parent] = append(outgoing[parent], name)
			indeg[name]++
		}
	}
	for k := range outgoing {
		sort.Strings(outgoing[k])
	}

	order := topoOrder(names, outgoing, indeg)
	plan.Order = append([]string(nil), order...)

	for _, name := range order {
		n := graph.Nodes[name]

		if invalidation[name].Invalidated {
			plan.Decisions[name] = DecisionExecute
			continue
		}
		if n.ActionID.InputHash == "" || !cache.IsCached(n.ActionID) {
			plan.Decisions[name] = DecisionExecute
			continue
		}

		allUpstreamReuse := true
		for _, parent := range normalizeStringSet(n.Upstream) {
			if plan.Decisions[parent] != DecisionReuseCache {
				allUpstreamReuse = false
				break
			}
		}
		if allUpstreamReuse {
			plan.Decisions[name] = DecisionReuseCache
		} else {
			plan.Decisions[name] = DecisionExecute
		}
	}

	for _, name := range names {
		if _, ok := plan.Decisions[name]; !ok {
			plan.Decisions[name] = DecisionExecute
		}
	}
	if len(plan.Order) != len(names) {
		plan.Order = append([]string(nil), names...)
		sort.Strings(plan.Order)
	}

	return plan, nil
}

// PlanIncremental is the convenience integration point: compute the
// invalidation map for newGraph relative to oldGraph, then build the
// execution plan from it. Planning never executes anything; it is a pure
// function of the two snapshots and cache presence.
func PlanIncremental(oldGraph, newGraph *GraphSnapshot, cache CachePresence) (*PlanningResult, error) {
	inv := CalculateInvalidation(oldGraph, newGraph)
	plan, err := BuildIncrementalPlan(newGraph, inv, cache)
	if err != nil {
		return nil, err
	}
	return &PlanningResult{Invalidation: inv, Plan: plan}, nil
}
