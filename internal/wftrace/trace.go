// Package wftrace implements deterministic execution tracing: a canonical,
// timestamp-free record of scheduling decisions, sortable into a total
// order independent of concurrency, hashed into a TraceHash so the
// scheduler's determinism invariants are externally checkable.
package wftrace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// EventKind is the closed set of trace event kinds. These string values are
// part of the canonical serialized bytes that feed TraceHash: do not rename
// them without also changing every stored TraceHash's meaning.
type EventKind string

const (
	EventTaskInvalidated       EventKind = "target_invalidated"
	EventTaskArtifactsRestored EventKind = "target_artifacts_restored"
	EventTaskCached            EventKind = "target_cached"
	EventTaskExecuted          EventKind = "target_executed"
	EventTaskFailed            EventKind = "target_failed"
	EventTaskSkipped           EventKind = "target_skipped"
)

var kindOrder = map[EventKind]int{
	EventTaskInvalidated:       0,
	EventTaskArtifactsRestored: 1,
	EventTaskCached:            2,
	EventTaskExecuted:          3,
	EventTaskFailed:            4,
	EventTaskSkipped:           5,
}

// Event is a single logical decision the scheduler made about a target.
type Event struct {
	Kind        EventKind
	TargetID    string
	Reason      string
	CauseTarget string   // set only for Skipped: the upstream target that caused this skip
	Artifacts   []string // set only for ArtifactsRestored
}

// MarshalJSON emits a fixed field order with empty fields omitted, so two
// semantically identical events always serialize to the same bytes.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind        EventKind `json:"kind"`
		TargetID    string    `json:"target_id"`
		Reason      string    `json:"reason,omitempty"`
		CauseTarget string    `json:"cause_target,omitempty"`
		Artifacts   []string  `json:"artifacts,omitempty"`
	}
	return json.Marshal(wire{e.Kind, e.TargetID, e.Reason, e.CauseTarget, e.Artifacts})
}

// Trace is the complete canonical record for one scheduler run.
type Trace struct {
	GraphHash string
	Events    []Event
}

// MarshalJSON emits a fixed field order.
func (t Trace) MarshalJSON() ([]byte, error) {
	type wire struct {
		GraphHash string  `json:"graph_hash"`
		Events    []Event `json:"events"`
	}
	return json.Marshal(wire{t.GraphHash, t.Events})
}

// Canonicalize sorts events by (TargetID, kind, Reason, CauseTarget,
// lexical Artifacts) and normalizes empty Artifacts to nil, so the same
// logical run produces byte-identical output regardless of the order
// concurrent workers recorded events in.
func (t *Trace) Canonicalize() {
	for i := range t.Events {
		if len(t.Events[i].Artifacts) == 0 {
			t.Events[i].Artifacts = nil
		} else {
			sort.Strings(t.Events[i].Artifacts)
		}
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.TargetID != b.TargetID {
			return a.TargetID < b.TargetID
		}
		if kindOrder[a.Kind] != kindOrder[b.Kind] {
			return kindOrder[a.Kind] < kindOrder[b.Kind]
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		if a.CauseTarget != b.CauseTarget {
			return a.CauseTarget < b.CauseTarget
		}
		return strings.Join(a.Artifacts, "\x00") < strings.Join(b.Artifacts, "\x00")
	})
}

// CanonicalJSON canonicalizes and marshals the trace.
func (t *Trace) CanonicalJSON() ([]byte, error) {
	t.Canonicalize()
	return json.Marshal(t)
}

// Hash computes the trace's deterministic identity from its canonical JSON.
func (t *Trace) Hash() (string, []byte, error) {
	data, err := t.CanonicalJSON()
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), data, nil
}
