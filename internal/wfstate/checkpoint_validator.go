package wfstate

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
	"time"

	"weaveforge/internal/core"
	"weaveforge/internal/wfcache"
	"weaveforge/internal/wftrace"
)

// CheckpointValidator turns a completed target execution into a persisted
// Checkpoint, refusing to do so unless every piece of corroborating
// evidence (exit status, re-harvested outputs, a cache entry, a matching
// trace event) agrees the target actually finished.
type CheckpointValidator struct {
	Store     *Store
	Cache     *wfcache.Cache
	Harvester *core.Harvester
}

// CheckpointInput is the evidence about a target that has reached a
// terminal status; the caller of CheckpointValidator assembles it.
type CheckpointInput struct {
	RunID    string
	TargetID string
	When     time.Time
	ActionID core.ActionId

	DeclaredOutputs []string
	ExitCode        int
	FromCache       bool
	TraceEvents     []wftrace.Event
}

// CreateAndSave validates in and, only if every check passes, persists a
// Checkpoint via Store.
func (v *CheckpointValidator) CreateAndSave(in CheckpointInput) (Checkpoint, error) {
	if v == nil {
		return Checkpoint{}, errors.New("nil CheckpointValidator")
	}
	if v.Store == nil {
		return Checkpoint{}, errors.New("Store is required")
	}
	if v.Cache == nil {
		return Checkpoint{}, errors.New("Cache is required")
	}
	if v.Harvester == nil {
		return Checkpoint{}, errors.New("Harvester is required")
	}

	var errs []error
	if strings.TrimSpace(in.RunID) == "" {
		errs = append(errs, errors.New("runID is required"))
	}
	if strings.TrimSpace(in.TargetID) == "" {
		errs = append(errs, errors.New("targetID is required"))
	}
	if in.When.IsZero() {
		errs = append(errs, errors.New("timestamp is required"))
	}
	if strings.TrimSpace(in.ActionID.String()) == "" {
		errs = append(errs, errors.New("action id is required"))
	}

	// 1) the target must have actually succeeded.
	if in.ExitCode != 0 {
		errs = append(errs, fmt.Errorf("target did not succeed (exit_code=%d)", in.ExitCode))
	}

	// 2) re-harvest declared outputs and hash them; Harvester guarantees
	// stable ordering so this is reproducible.
	outputHash := ""
	if len(errs) == 0 {
		artifactSet, err := v.Harvester.Harvest(in.DeclaredOutputs)
		if err != nil {
			errs = append(errs, fmt.Errorf("harvesting outputs: %w", err))
		} else {
			outputHash = computeArtifactSetHash(artifactSet)
			if strings.TrimSpace(outputHash) == "" {
				errs = append(errs, errors.New("output hash is empty"))
			}
		}
	}

	// 3) a cache entry must exist for this action.
	if len(errs) == 0 && !v.Cache.IsCached(in.ActionID) {
		errs = append(errs, fmt.Errorf("cache entry missing for action %s", in.ActionID.String()))
	}

	// 4) the trace must record a matching terminal event for this target.
	if len(errs) == 0 {
		if err := validateTraceForCheckpoint(in.TraceEvents, in.TargetID, in.FromCache); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) != 0 {
		return Checkpoint{}, errors.Join(errs...)
	}

	cp := Checkpoint{
		TargetID:   in.TargetID,
		Timestamp:  in.When.UTC(),
		CacheKeys:  []string{in.ActionID.String()},
		OutputHash: outputHash,
		Valid:      true,
	}
	if err := v.Store.SaveCheckpoint(in.RunID, cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

func validateTraceForCheckpoint(events []wftrace.Event, targetID string, fromCache bool) error {
	var seenFailed, seenExecuted, seenRestored bool

	for _, e := range events {
		if e.TargetID != targetID {
			continue
		}
		switch e.Kind {
		case wftrace.EventTaskFailed:
			seenFailed = true
		case wftrace.EventTaskExecuted:
			seenExecuted = true
		case wftrace.EventTaskArtifactsRestored, wftrace.EventTaskCached:
			seenRestored = true
		}
	}

	if seenFailed {
		return errors.New("trace indicates target failure")
	}
	if fromCache {
		if !seenRestored && !seenExecuted {
			return errors.New("trace entry incomplete: expected a cached or artifacts-restored event")
		}
		return nil
	}
	if !seenExecuted {
		return errors.New("trace entry incomplete: expected an executed event")
	}
	return nil
}

func computeArtifactSetHash(set *core.ArtifactSet) string {
	h := sha256.New()
	if set == nil {
		h.Write([]byte("nil"))
		return hex.EncodeToString(h.Sum(nil))
	}
	for _, a := range set.Artifacts {
		writeLenPrefixed(h, []byte(a.Path))
		writeLenPrefixed(h, a.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeLenPrefixed(h hash.Hash, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	_, _ = h.Write(n[:])
	_, _ = h.Write(b)
}
