package wfincremental

import "testing"

func TestResumeUpstreamChecker_FindsInvalidatedAncestor(t *testing.T) {
	graph := &GraphSnapshot{Nodes: map[string]NodeSnapshot{
		"A": snapshot("A", "h", nil),
		"B": snapshot("B", "h2", []string{"A"}),
		"C": snapshot("C", "h3", []string{"B"}),
	}}
	inv := InvalidationMap{
		"A": {Invalidated: true, Reasons: InvalidationReasons{{Type: ReasonInputChanged}}},
		"B": {Invalidated: true, Reasons: InvalidationReasons{{Type: ReasonDependencyInvalidated, SourceTargetID: "A"}}},
		"C": {},
	}
	checker := ResumeUpstreamChecker{Graph: graph, Invalidation: inv}

	got, err := checker.UpstreamInvalidated("C")
	if err != nil {
		t.Fatalf("UpstreamInvalidated: %v", err)
	}
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("expected [A B] invalidated upstream of C, got %v", got)
	}
}

func TestResumeUpstreamChecker_CleanUpstreamReturnsEmpty(t *testing.T) {
	graph := &GraphSnapshot{Nodes: map[string]NodeSnapshot{
		"A": snapshot("A", "h", nil),
		"B": snapshot("B", "h2", []string{"A"}),
	}}
	inv := InvalidationMap{"A": {}, "B": {}}
	checker := ResumeUpstreamChecker{Graph: graph, Invalidation: inv}

	got, err := checker.UpstreamInvalidated("B")
	if err != nil {
		t.Fatalf("UpstreamInvalidated: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no invalidated ancestors, got %v", got)
	}
}

func TestResumeUpstreamChecker_UnknownTargetErrors(t *testing.T) {
	checker := ResumeUpstreamChecker{Graph: &GraphSnapshot{Nodes: map[string]NodeSnapshot{}}, Invalidation: InvalidationMap{}}
	if _, err := checker.UpstreamInvalidated("missing"); err == nil {
		t.Fatal("expected error for unknown resume target")
	}
}
