package wfstate

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FailureRecorder writes run.json and failure.json for one run. It is
// deliberately small: callers own Run metadata and the triggering error,
// and the recorder only classifies and persists.
type FailureRecorder struct {
	Store *Store
}

// NewRunID mints a fresh run identifier. Run IDs are pure operational
// identifiers with no semantic content, so a random UUIDv4 is sufficient.
func (r *FailureRecorder) NewRunID() string {
	return uuid.NewString()
}

func (r *FailureRecorder) StartRun(run Run) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	if run.StartTime.IsZero() {
		run.StartTime = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	return r.Store.SaveRun(run)
}

func (r *FailureRecorder) CompleteRun(runID string) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	run, err := r.Store.LoadRun(runID)
	if err != nil {
		return err
	}
	run.Status = RunStatusCompleted
	return r.Store.SaveRun(run)
}

func (r *FailureRecorder) RecordFailure(runID string, triggerErr error) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	f, err := failureFromError(triggerErr)
	if err != nil {
		return err
	}
	if saveErr := r.Store.SaveFailure(runID, f); saveErr != nil {
		return saveErr
	}
	run, err := r.Store.LoadRun(runID)
	if err != nil {
		return err
	}
	run.Status = RunStatusFailed
	return r.Store.SaveRun(run)
}
