package wfworker

import (
	"context"
	"crypto/sha256"
	"fmt"
	"path/filepath"

	"weaveforge/internal/core"
	"weaveforge/internal/wfcache"
	"weaveforge/internal/wfhash"
	"weaveforge/internal/wfobserve"
)

// RunResult is what a single action run produces, whether served from cache
// or executed fresh.
type RunResult struct {
	Result    *core.ActionResult
	FromCache bool
}

// Worker runs the six-step action pipeline: resolve fingerprint, query
// cache, prepare an isolated workspace, execute the command in array form,
// hash and normalize outputs, publish the result. A Worker holds no
// work-stealing deque (Deque in deque.go is a separate type); its only
// mutable state is the SourceCache memo, and it is safe to call
// concurrently from many goroutines.
type Worker struct {
	WorkingDir  string
	Cache       *wfcache.Cache
	Executor    *ProcessExecutor
	Resolver    *core.InputResolver
	Harvester   *core.Harvester
	Sources     *wfhash.SourceCache
	Instruments wfobserve.Instruments
}

// NewWorker builds a Worker rooted at workingDir sharing the given cache.
// The returned Worker is safe to call concurrently from the scheduler's
// entire pool, and its SourceCache is shared across every call so a source
// file pulled in by several targets is fingerprinted at most once per run.
func NewWorker(workingDir string, cache *wfcache.Cache) *Worker {
	return &Worker{
		WorkingDir: workingDir,
		Cache:      cache,
		Executor:   NewProcessExecutor(workingDir),
		Resolver:   core.NewInputResolver(workingDir),
		Harvester:  core.NewHarvester(workingDir),
		Sources:    wfhash.NewSourceCache(),
	}
}

// Run executes req.Command if, and only if, its fingerprint is not already
// cached; a cache hit instead replays the stored stdout/stderr/outputs
// without spawning a process. Failed actions are cacheable (a non-zero
// exit is a valid, replayable result) but are never allowed to partially
// update declared outputs: harvesting only happens on success.
func (w *Worker) Run(ctx context.Context, target core.Target, req *core.ActionRequest, depOutputHashes []string) (*RunResult, error) {
	if err := ValidateCommand(req.Command); err != nil {
		return nil, err
	}
	for _, out := range req.Outputs {
		if err := ValidatePath(out); err != nil {
			return nil, err
		}
	}

	inputSet, err := w.Resolver.Resolve(req.Inputs)
	if err != nil {
		return nil, fmt.Errorf("resolving inputs for %s: %w", req.TargetID, err)
	}

	var sourceFingerprints []string
	for _, in := range inputSet.Inputs {
		// MetadataFingerprint decides, per path, whether HashFile's
		// size-tiered content hash must actually run; an unchanged
		// mtime/size reuses the digest computed for a prior target.
		contentHash, err := w.Sources.Fingerprint(filepath.FromSlash(in.Path))
		if err != nil {
			return nil, fmt.Errorf("fingerprinting input %s: %w", in.Path, err)
		}
		sourceFingerprints = append(sourceFingerprints, wfhash.CombineSorted([]string{in.Path, contentHash}))
	}

	fingerprint := wfhash.InputFingerprint(target, depOutputHashes, sourceFingerprints, req.Metadata)
	req.ID.InputHash = fingerprint
	w.Instruments.RecordFingerprint(ctx)

	cached, hit, lookupErr := w.Cache.Lookup(req.ID)
	w.Instruments.RecordCacheLookup(ctx, lookupErr == nil && hit)
	if lookupErr == nil && hit {
		// An entry whose outputs cannot be restored counts as a miss: the
		// action is executed again below.
		if err := w.Cache.RestoreOutputs(w.WorkingDir, cached); err == nil {
			return &RunResult{Result: cached, FromCache: true}, nil
		}
	}

	result, execErr := w.Executor.Execute(ctx, req)
	if result == nil {
		return nil, execErr
	}

	if result.Status != core.StatusSuccess {
		// Failed executions are cacheable: store them so a repeated run of
		// the same broken inputs replays the failure instantly instead of
		// re-spawning the process, but never harvest outputs for them.
		_ = w.Cache.Store(req.ID, result, nil)
		return &RunResult{Result: result, FromCache: false}, execErr
	}

	artifacts, err := w.Harvester.Harvest(req.Outputs)
	if err != nil {
		return nil, fmt.Errorf("harvesting outputs for %s: %w", req.TargetID, err)
	}

	outputContents := make(map[string][]byte, len(artifacts.Artifacts))
	outputs := make([]core.OutputArtifact, 0, len(artifacts.Artifacts))
	for _, a := range artifacts.Artifacts {
		// Harvest reports paths joined against WorkingDir; RestoreOutputs
		// joins them against the workspace root again on replay, so they
		// must be rewritten relative to WorkingDir before being stored.
		rel, err := filepath.Rel(w.WorkingDir, a.Path)
		if err != nil {
			return nil, fmt.Errorf("relativizing harvested output %s: %w", a.Path, err)
		}
		rel = filepath.ToSlash(rel)

		sum := sha256.Sum256(a.Content)
		hash := fmt.Sprintf("%x", sum)
		outputs = append(outputs, core.OutputArtifact{Path: rel, Hash: hash, Size: int64(len(a.Content))})
		outputContents[rel] = a.Content
	}
	result.Outputs = outputs

	// A failed store only costs a future cache hit; the fresh result stands.
	_ = w.Cache.Store(req.ID, result, outputContents)

	return &RunResult{Result: result, FromCache: false}, nil
}
