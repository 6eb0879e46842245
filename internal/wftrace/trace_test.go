package wftrace

import "testing"

func TestTrace_HashIsOrderIndependent(t *testing.T) {
	t1 := &Trace{GraphHash: "g1", Events: []Event{
		{Kind: EventTaskExecuted, TargetID: "b"},
		{Kind: EventTaskExecuted, TargetID: "a"},
	}}
	t2 := &Trace{GraphHash: "g1", Events: []Event{
		{Kind: EventTaskExecuted, TargetID: "a"},
		{Kind: EventTaskExecuted, TargetID: "b"},
	}}

	h1, _, err := t1.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, _, err := t2.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("trace hash depends on event order: %s != %s", h1, h2)
	}
}

func TestTrace_HashChangesWithGraphHash(t *testing.T) {
	events := []Event{{Kind: EventTaskExecuted, TargetID: "a"}}
	t1 := &Trace{GraphHash: "g1", Events: events}
	t2 := &Trace{GraphHash: "g2", Events: events}

	h1, _, _ := t1.Hash()
	h2, _, _ := t2.Hash()
	if h1 == h2 {
		t.Fatal("expected distinct graph hashes to produce distinct trace hashes")
	}
}

func TestTrace_CanonicalizeNormalizesEmptyArtifacts(t *testing.T) {
	tr := &Trace{Events: []Event{{Kind: EventTaskExecuted, TargetID: "a", Artifacts: []string{}}}}
	tr.Canonicalize()
	if tr.Events[0].Artifacts != nil {
		t.Fatalf("expected empty artifacts to normalize to nil, got %#v", tr.Events[0].Artifacts)
	}
}

func TestTrace_CanonicalizeSortsArtifactsLexically(t *testing.T) {
	tr := &Trace{Events: []Event{{Kind: EventTaskArtifactsRestored, TargetID: "a", Artifacts: []string{"z", "a", "m"}}}}
	tr.Canonicalize()
	want := []string{"a", "m", "z"}
	got := tr.Events[0].Artifacts
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("artifacts not sorted: %v", got)
		}
	}
}

func TestTrace_CanonicalizeOrdersByTargetThenKind(t *testing.T) {
	tr := &Trace{Events: []Event{
		{Kind: EventTaskFailed, TargetID: "a"},
		{Kind: EventTaskInvalidated, TargetID: "a"},
		{Kind: EventTaskExecuted, TargetID: "a"},
	}}
	tr.Canonicalize()
	if tr.Events[0].Kind != EventTaskInvalidated || tr.Events[1].Kind != EventTaskExecuted || tr.Events[2].Kind != EventTaskFailed {
		t.Fatalf("unexpected canonical kind order: %#v", tr.Events)
	}
}

func TestRecorder_TraceReflectsRecordedEvents(t *testing.T) {
	r := NewRecorder()
	r.Record(Event{Kind: EventTaskExecuted, TargetID: "a"})
	r.Record(Event{Kind: EventTaskCached, TargetID: "b"})

	trace := r.Trace("g1")
	if len(trace.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(trace.Events))
	}
	if trace.GraphHash != "g1" {
		t.Fatalf("GraphHash = %q, want g1", trace.GraphHash)
	}
}

func TestSafeRecord_RecoversFromPanickingSink(t *testing.T) {
	panicky := panicSink{}
	// Must not panic the test itself.
	SafeRecord(panicky, Event{Kind: EventTaskExecuted, TargetID: "a"})
}

func TestSafeRecord_NilSinkIsNoop(t *testing.T) {
	SafeRecord(nil, Event{Kind: EventTaskExecuted, TargetID: "a"})
}

type panicSink struct{}

func (panicSink) Record(Event) { panic("sink exploded") }
