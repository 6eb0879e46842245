package wfincremental

import (
	"testing"

	"weaveforge/internal/core"
)

type fakeCachePresence map[string]bool

func (f fakeCachePresence) IsCached(id core.ActionId) bool { return f[id.String()] }

func actionFor(targetID, inputHash string) core.ActionId {
	tid, _ := core.ParseTargetId("//app:" + targetID)
	return core.ActionId{TargetID: tid, ActionType: core.ActionCompile, SubID: "0", InputHash: inputHash}
}

func TestBuildIncrementalPlan_ReusesCacheWhenUnchangedAndPresent(t *testing.T) {
	a := snapshot("A", "h-a", nil)
	a.ActionID = actionFor("A", "h-a")
	b := snapshot("B", "h-b", []string{"A"})
	b.ActionID = actionFor("B", "h-b")

	graph := &GraphSnapshot{Nodes: map[string]NodeSnapshot{"A": a, "B": b}}
	inv := InvalidationMap{"A": {}, "B": {}}
	cache := fakeCachePresence{a.ActionID.String(): true, b.ActionID.String(): true}

	plan, err := BuildIncrementalPlan(graph, inv, cache)
	if err != nil {
		t.Fatalf("BuildIncrementalPlan: %v", err)
	}
	if plan.Decisions["A"] != DecisionReuseCache || plan.Decisions["B"] != DecisionReuseCache {
		t.Fatalf("expected both targets to reuse cache: %#v", plan.Decisions)
	}
}

func TestBuildIncrementalPlan_ExecutesWhenInvalidated(t *testing.T) {
	a := snapshot("A", "h-a", nil)
	a.ActionID = actionFor("A", "h-a")
	graph := &GraphSnapshot{Nodes: map[string]NodeSnapshot{"A": a}}
	inv := InvalidationMap{"A": {Invalidated: true, Reasons: InvalidationReasons{{Type: ReasonInputChanged}}}}
	cache := fakeCachePresence{a.ActionID.String(): true}

	plan, err := BuildIncrementalPlan(graph, inv, cache)
	if err != nil {
		t.Fatalf("BuildIncrementalPlan: %v", err)
	}
	if plan.Decisions["A"] != DecisionExecute {
		t.Fatalf("expected A to execute when invalidated, got %s", plan.Decisions["A"])
	}
}

func TestBuildIncrementalPlan_ExecutesWhenUpstreamExecutes(t *testing.T) {
	a := snapshot("A", "h-a", nil)
	a.ActionID = actionFor("A", "h-a")
	b := snapshot("B", "h-b", []string{"A"})
	b.ActionID = actionFor("B", "h-b")

	graph := &GraphSnapshot{Nodes: map[string]NodeSnapshot{"A": a, "B": b}}
	// A is invalidated; B itself is not, but must still execute since its
	// upstream does.
	inv := InvalidationMap{
		"A": {Invalidated: true, Reasons: InvalidationReasons{{Type: ReasonInputChanged}}},
		"B": {},
	}
	cache := fakeCachePresence{a.ActionID.String(): true, b.ActionID.String(): true}

	plan, err := BuildIncrementalPlan(graph, inv, cache)
	if err != nil {
		t.Fatalf("BuildIncrementalPlan: %v", err)
	}
	if plan.Decisions["B"] != DecisionExecute {
		t.Fatalf("expected B to execute when its upstream executes, got %s", plan.Decisions["B"])
	}
}

func TestBuildIncrementalPlan_ExecutesWhenNotCached(t *testing.T) {
	a := snapshot("A", "h-a", nil)
	a.ActionID = actionFor("A", "h-a")
	graph := &GraphSnapshot{Nodes: map[string]NodeSnapshot{"A": a}}
	inv := InvalidationMap{"A": {}}
	cache := fakeCachePresence{} // nothing cached

	plan, err := BuildIncrementalPlan(graph, inv, cache)
	if err != nil {
		t.Fatalf("BuildIncrementalPlan: %v", err)
	}
	if plan.Decisions["A"] != DecisionExecute {
		t.Fatalf("expected A to execute when absent from cache, got %s", plan.Decisions["A"])
	}
}

func TestIncrementalPlan_HashIsDeterministic(t *testing.T) {
	plan := &IncrementalPlan{
		Order:     []string{"A", "B"},
		Decisions: map[string]NodeExecutionDecision{"A": DecisionReuseCache, "B": DecisionExecute},
	}
	h1 := plan.Hash()
	h2 := plan.Hash()
	if h1 == "" || h1 != h2 {
		t.Fatalf("expected stable non-empty hash, got %q and %q", h1, h2)
	}
}
