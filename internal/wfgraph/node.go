// Package wfgraph implements the dependency graph: immutable structure,
// wave partitioning, and the atomic per-node build status that the
// scheduler and worker pool advance as a run progresses.
package wfgraph

import (
	"sync/atomic"

	"weaveforge/internal/core"
	"weaveforge/internal/wferrors"
)

// BuildStatus is a node's position in its lifecycle.
type BuildStatus int32

const (
	Pending BuildStatus = iota
	Ready
	Running
	Built
	Cached
	Failed
	Skipped
)

func (s BuildStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Built:
		return "built"
	case Cached:
		return "cached"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether status admits no further transition.
func (s BuildStatus) IsTerminal() bool {
	switch s {
	case Built, Cached, Failed, Skipped:
		return true
	default:
		return false
	}
}

// allowedFrom lists the statuses a transition into "to" may originate from.
var allowedFrom = map[BuildStatus][]BuildStatus{
	Ready:   {Pending},
	Running: {Ready},
	Built:   {Running},
	Cached:  {Running},
	Failed:  {Running},
	Skipped: {Pending, Ready},
}

func isAllowedTransition(from, to BuildStatus) bool {
	for _, f := range allowedFrom[to] {
		if f == from {
			return true
		}
	}
	return false
}

// BuildNode is a target wrapped with the atomic status and retry counter
// the scheduler advances. status and retryAttempts are read and written
// with sequentially consistent atomics; a successful CAS implies
// happens-before for any goroutine that subsequently observes the new value.
type BuildNode struct {
	Target         core.Target
	Dependencies   []core.TargetId
	Dependents     []core.TargetId
	canonicalIndex int

	status        int32
	retryAttempts int32
}

func newBuildNode(t core.Target) *BuildNode {
	return &BuildNode{Target: t, status: int32(Pending)}
}

// Status returns the node's current status.
func (n *BuildNode) Status() BuildStatus {
	return BuildStatus(atomic.LoadInt32(&n.status))
}

// CanonicalIndex returns the node's deterministic position in the graph's
// canonical ordering, used to break ties in wave partitioning and trace
// canonicalization.
func (n *BuildNode) CanonicalIndex() int { return n.canonicalIndex }

// CAS attempts the status transition from -> to, validating it against the
// allowed-transition table first. Returns (true, nil) on success, (false,
// nil) if another goroutine already moved the node away from "from", and
// (false, err) if the transition itself is not a legal one regardless of
// current state.
func (n *BuildNode) CAS(from, to BuildStatus) (bool, error) {
	if !isAllowedTransition(from, to) {
		return false, &wferrors.GraphError{
			Code: wferrors.InvalidTransition,
			Msg:  from.String() + " -> " + to.String(),
		}
	}
	return atomic.CompareAndSwapInt32(&n.status, int32(from), int32(to)), nil
}

// RetryAttempts returns the current retry counter.
func (n *BuildNode) RetryAttempts() int32 { return atomic.LoadInt32(&n.retryAttempts) }

// IncRetry atomically increments and returns the new retry counter.
func (n *BuildNode) IncRetry() int32 { return atomic.AddInt32(&n.retryAttempts, 1) }
