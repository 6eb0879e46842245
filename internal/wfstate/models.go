// Package wfstate implements crash-recoverable runs: durable records of a
// run's identity, per-target checkpoints, and a terminal failure
// classification, persisted under .weaveforge/runs/<run-id>/ so a later
// invocation can decide whether to resume instead of starting clean.
package wfstate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ExecutionMode controls how a run relates to any previous run of the same
// graph.
type ExecutionMode string

const (
	// ModeClean ignores any previous run entirely.
	ModeClean ExecutionMode = "clean"
	// ModeIncremental reuses cache entries but does not require a previous
	// run to exist.
	ModeIncremental ExecutionMode = "incremental"
	// ModeResumeOnly requires a previous failed, resumable run and refuses
	// to start otherwise.
	ModeResumeOnly ExecutionMode = "resume-only"
)

func (m ExecutionMode) valid() bool {
	switch m {
	case ModeClean, ModeIncremental, ModeResumeOnly:
		return true
	default:
		return false
	}
}

// RunStatus is the lifecycle state of a Run record.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

func (s RunStatus) valid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// Run is the top-level record identifying one scheduler invocation.
type Run struct {
	RunID         string    `json:"run_id"`
	GraphHash     string    `json:"graph_hash"`
	StartTime     time.Time `json:"start_time"`
	Mode          ExecutionMode `json:"mode"`
	RetryCount    int       `json:"retry_count"`
	Status        RunStatus `json:"status"`
	PreviousRunID *string   `json:"previous_run_id,omitempty"`
}

func (r Run) Validate() error {
	var errs []error
	if strings.TrimSpace(r.RunID) == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if strings.TrimSpace(r.GraphHash) == "" {
		errs = append(errs, errors.New("graph_hash is required"))
	}
	if r.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	if !r.Mode.valid() {
		errs = append(errs, fmt.Errorf("invalid mode %q", r.Mode))
	}
	if r.RetryCount < 0 {
		errs = append(errs, errors.New("retry_count must be >= 0"))
	}
	if !r.Status.valid() {
		errs = append(errs, fmt.Errorf("invalid status %q", r.Status))
	}
	if r.PreviousRunID != nil && strings.TrimSpace(*r.PreviousRunID) == "" {
		errs = append(errs, errors.New("previous_run_id must not be blank when set"))
	}
	return errors.Join(errs...)
}

// Checkpoint records that one target finished successfully within a run,
// with enough evidence (cache keys, output hash) to let a later resume
// trust it without re-executing.
type Checkpoint struct {
	TargetID   string    `json:"target_id"`
	Timestamp  time.Time `json:"timestamp"`
	CacheKeys  []string  `json:"cache_keys"`
	OutputHash string    `json:"output_hash"`
	Valid      bool      `json:"valid"`
}

func (c Checkpoint) Validate() error {
	var errs []error
	if strings.TrimSpace(c.TargetID) == "" {
		errs = append(errs, errors.New("target_id is required"))
	}
	if c.Timestamp.IsZero() {
		errs = append(errs, errors.New("timestamp is required"))
	}
	if strings.TrimSpace(c.OutputHash) == "" {
		errs = append(errs, errors.New("output_hash is required"))
	}
	if !c.Valid {
		errs = append(errs, errors.New("checkpoint must be marked valid to persist"))
	}
	return errors.Join(errs...)
}

// FailureClass is the closed taxonomy a terminal run failure is classified
// into, each with its own resumability default.
type FailureClass string

const (
	FailureClassGraph     FailureClass = "graph"
	FailureClassWorkspace FailureClass = "workspace"
	FailureClassExecution FailureClass = "execution"
	FailureClassSystem    FailureClass = "system"
)

func (c FailureClass) valid() bool {
	switch c {
	case FailureClassGraph, FailureClassWorkspace, FailureClassExecution, FailureClassSystem:
		return true
	default:
		return false
	}
}

// Failure is the terminal classification recorded for a run that did not
// complete successfully.
type Failure struct {
	FailureClass FailureClass `json:"failure_class"`
	TargetID     *string      `json:"target_id,omitempty"`
	ErrorCode    string       `json:"error_code"`
	ErrorMessage string       `json:"error_message"`
	Resumable    bool         `json:"resumable"`
}

func (f Failure) Validate() error {
	var errs []error
	if !f.FailureClass.valid() {
		errs = append(errs, fmt.Errorf("invalid failure_class %q", f.FailureClass))
	}
	if strings.TrimSpace(f.ErrorCode) == "" {
		errs = append(errs, errors.New("error_code is required"))
	}
	if strings.TrimSpace(f.ErrorMessage) == "" {
		errs = append(errs, errors.New("error_message is required"))
	}
	if f.TargetID != nil && strings.TrimSpace(*f.TargetID) == "" {
		errs = append(errs, errors.New("target_id must not be blank when set"))
	}
	// Graph and workspace failures are deterministic re-derivations of the
	// same broken state; retrying without fixing the underlying cause can
	// only reproduce them.
	if (f.FailureClass == FailureClassGraph || f.FailureClass == FailureClassWorkspace) && f.Resumable {
		errs = append(errs, fmt.Errorf("%s failures are never resumable", f.FailureClass))
	}
	return errors.Join(errs...)
}
