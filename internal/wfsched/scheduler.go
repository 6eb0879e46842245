// Package wfsched implements the wave-based scheduler: it partitions a
// dependency graph into waves, dispatches each wave's targets to a worker
// pool bounded by a configurable concurrency, retries transient failures
// with backoff, and applies a configurable failure policy when an action
// fails outright.
package wfsched

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"weaveforge/internal/core"
	"weaveforge/internal/wferrors"
	"weaveforge/internal/wfgraph"
	"weaveforge/internal/wfobserve"
	"weaveforge/internal/wftrace"
	"weaveforge/internal/wfworker"
)

// FailurePolicy controls what happens to the rest of a run once a target fails.
type FailurePolicy int

const (
	// StopOnFirstError cancels every in-flight and not-yet-dispatched
	// target as soon as one target fails.
	StopOnFirstError FailurePolicy = iota
	// KeepGoing lets independent branches of the graph continue; only
	// the failed target's downstream dependents are skipped.
	KeepGoing
)

// Config configures a Scheduler run.
type Config struct {
	Concurrency      int
	FailurePolicy    FailurePolicy
	MaxRetryAttempts int
	Observer         NodeObserver
}

// NodeObserver is notified each time a target reaches a terminal status.
// Its returned error is ignored; a nil Observer disables notification.
type NodeObserver interface {
	OnTargetTerminal(target core.Target, result *core.ActionResult, status wfgraph.BuildStatus) error
}

// RunResult is a complete scheduler run's outcome.
type RunResult struct {
	GraphHash      wfgraph.GraphHash
	FinalState     map[core.TargetId]wfgraph.BuildStatus
	ExecutionOrder []core.TargetId
	ActionResults  map[core.TargetId]*core.ActionResult
	TraceHash      string
	TraceBytes     []byte
}

// Scheduler orchestrates a Graph against a Worker pool.
type Scheduler struct {
	Graph       *wfgraph.Graph
	Worker      *wfworker.Worker
	Cfg         Config
	Log         logr.Logger
	Instruments wfobserve.Instruments

	mu       sync.Mutex
	order    []core.TargetId
	results  map[core.TargetId]*core.ActionResult
	recorder *wftrace.Recorder
}

// New builds a Scheduler over graph using worker to execute each action.
// The zero value of logr.Logger is a safe no-op sink, so callers that don't
// care about scheduler diagnostics can pass logr.Logger{} rather than
// reaching for logr.Discard() themselves.
func New(graph *wfgraph.Graph, worker *wfworker.Worker, cfg Config, log logr.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	return &Scheduler{
		Graph:    graph,
		Worker:   worker,
		Cfg:      cfg,
		Log:      log,
		results:  make(map[core.TargetId]*core.ActionResult),
		recorder: wftrace.NewRecorder(),
	}
}

// Run dispatches every wave in order, returning once all nodes reach a
// terminal status, the run is cancelled, or, under StopOnFirstError, the
// wave in which a target failed has finished (nodes of later waves that the
// failure did not skip are then left Pending). Two runs of the same graph
// against the same inputs produce the same wave partition and the same
// final per-node status set regardless of configured concurrency.
func (s *Scheduler) Run(ctx context.Context) (*RunResult, error) {
	waves := s.Graph.WaveSchedule()
	s.Log.V(1).Info("run starting", "graph_hash", s.Graph.Hash(), "waves", len(waves), "concurrency", s.Cfg.Concurrency)

	var firstFatal error
	for i, wave := range waves {
		if ctx.Err() != nil {
			break
		}
		s.Log.V(1).Info("dispatching wave", "wave", i, "targets", len(wave))
		waveCtx, endWave := s.Instruments.StartWave(ctx, i, len(wave))
		err := s.runWave(waveCtx, wave)
		endWave()
		if err != nil {
			firstFatal = err
			if s.Cfg.FailurePolicy == StopOnFirstError {
				break
			}
		}
	}

	return s.buildResult(), firstFatal
}

func (s *Scheduler) runWave(ctx context.Context, wave []core.TargetId) error {
	// Under KeepGoing a failed target must not cancel its siblings in the
	// same wave, so the group does not derive a cancelling context.
	g, gctx := &errgroup.Group{}, ctx
	if s.Cfg.FailurePolicy != KeepGoing {
		g, gctx = errgroup.WithContext(ctx)
	}
	sem := make(chan struct{}, s.Cfg.Concurrency)

	for _, id := range wave {
		id := id
		node, ok := s.Graph.Node(id)
		if !ok || node.Status() != wfgraph.Pending {
			continue // already Skipped by an earlier failure's propagation
		}

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}
			return s.runNode(gctx, node)
		})
	}

	return g.Wait()
}

func (s *Scheduler) runNode(ctx context.Context, node *wfgraph.BuildNode) error {
	target := node.Target

	if ok, err := node.CAS(wfgraph.Pending, wfgraph.Ready); !ok && err != nil {
		return err
	}
	if ok, err := node.CAS(wfgraph.Ready, wfgraph.Running); !ok {
		if err != nil {
			return err
		}
		return nil // raced with something else claiming this node
	}

	req := &core.ActionRequest{
		ID:       core.ActionId{TargetID: target.ID, ActionType: actionTypeFor(target), SubID: "0"},
		TargetID: target.ID,
		Inputs:   target.Sources,
		Command:  target.Command,
		Env:      target.Env,
		Outputs:  declaredOutputs(target),
		Metadata: target.LangConfig,
	}

	depHashes := s.dependencyOutputHashes(node)

	result, err := s.runWithRetry(ctx, target, req, depHashes)

	s.mu.Lock()
	s.order = append(s.order, target.ID)
	if result != nil {
		s.results[target.ID] = result.Result
	}
	s.mu.Unlock()

	if err != nil {
		_, propErr := s.Graph.FailAndPropagate(target.ID)
		wftrace.SafeRecord(s.recorder, wftrace.Event{Kind: wftrace.EventTaskFailed, TargetID: target.ID.String(), Reason: err.Error()})
		s.Log.Error(err, "target failed", "target", target.ID.String())
		s.Instruments.RecordActionTerminal(ctx, "failed")
		var actionResult *core.ActionResult
		if result != nil {
			actionResult = result.Result
		}
		s.notify(target, actionResult, wfgraph.Failed)
		if propErr != nil {
			return propErr
		}
		return err
	}

	finalStatus := wfgraph.Built
	kind := wftrace.EventTaskExecuted
	if result.FromCache {
		finalStatus = wfgraph.Cached
		kind = wftrace.EventTaskCached
	}
	if ok, caerr := node.CAS(wfgraph.Running, finalStatus); !ok && caerr != nil {
		return caerr
	}
	wftrace.SafeRecord(s.recorder, wftrace.Event{Kind: kind, TargetID: target.ID.String()})
	s.Log.V(1).Info("target terminal", "target", target.ID.String(), "status", finalStatus.String(), "from_cache", result.FromCache)
	if result.FromCache {
		s.Instruments.RecordActionTerminal(ctx, "cached")
	} else {
		s.Instruments.RecordActionTerminal(ctx, "executed")
	}
	s.notify(target, result.Result, finalStatus)
	return nil
}

func (s *Scheduler) notify(target core.Target, result *core.ActionResult, status wfgraph.BuildStatus) {
	if s.Cfg.Observer == nil {
		return
	}
	_ = s.Cfg.Observer.OnTargetTerminal(target, result, status)
}

func (s *Scheduler) dependencyOutputHashes(node *wfgraph.BuildNode) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hashes []string
	for _, dep := range node.Dependencies {
		if r, ok := s.results[dep]; ok {
			for _, o := range r.Outputs {
				hashes = append(hashes, o.Hash)
			}
		}
	}
	return hashes
}

// runWithRetry retries a transient IoError or an ExecutionError timeout with
// exponential backoff, up to MaxRetryAttempts retries after the first
// attempt; a NetworkError, SecurityError or NonZeroExit is never retried,
// since re-running the same command against the same inputs can only
// reproduce the same outcome.
func (s *Scheduler) runWithRetry(ctx context.Context, target core.Target, req *core.ActionRequest, depHashes []string) (*wfworker.RunResult, error) {
	maxAttempts := s.Cfg.MaxRetryAttempts + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 0

	var lastResult *wfworker.RunResult
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := s.Worker.Run(ctx, target, req, depHashes)
		lastResult, lastErr = result, err
		if err == nil {
			return result, nil
		}
		if !isRetryable(err) {
			return result, err
		}
		node, _ := s.Graph.Node(target.ID)
		if node != nil {
			node.IncRetry()
		}
		select {
		case <-time.After(bo.NextBackOff()):
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}
	return lastResult, lastErr
}

func isRetryable(err error) bool {
	switch e := err.(type) {
	case *wferrors.IoError:
		return true
	case *wferrors.NetworkError:
		return false
	case *wferrors.SecurityError:
		return false
	case *wferrors.ExecutionError:
		return e.Code == wferrors.Timeout
	default:
		return false
	}
}

// declaredOutputs reports a target's declared output as a single-element
// slice, or none at all for a target that produces no tracked output (e.g. a
// pure side-effect or test action) — an empty OutputPath must never become a
// declared output naming the working directory itself.
func declaredOutputs(t core.Target) []string {
	if t.OutputPath == "" {
		return nil
	}
	return []string{t.OutputPath}
}

func actionTypeFor(t core.Target) core.ActionType {
	switch t.Kind {
	case core.KindTest:
		return core.ActionTest
	case core.KindBinary:
		return core.ActionLink
	case core.KindLibrary:
		return core.ActionCompile
	default:
		return core.ActionCustom
	}
}

func (s *Scheduler) buildResult() *RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	final := make(map[core.TargetId]wfgraph.BuildStatus, len(s.Graph.Nodes()))
	for _, n := range s.Graph.Nodes() {
		final[n.Target.ID] = n.Status()
	}

	trace := s.recorder.Trace(string(s.Graph.Hash()))
	traceHash, traceBytes, _ := trace.Hash()

	order := append([]core.TargetId(nil), s.order...)
	results := make(map[core.TargetId]*core.ActionResult, len(s.results))
	for k, v := range s.results {
		results[k] = v
	}

	return &RunResult{
		GraphHash:      s.Graph.Hash(),
		FinalState:     final,
		ExecutionOrder: order,
		ActionResults:  results,
		TraceHash:      traceHash,
		TraceBytes:     traceBytes,
	}
}
