package wfstate

import (
	"errors"
	"fmt"
)

// GraphFailureError is a deterministic graph-validation failure (a cycle, a
// dangling dependency). Never resumable: re-running against the same graph
// definition reproduces it exactly.
type GraphFailureError struct {
	Code    string
	Message string
	Cause   error
}

func (e *GraphFailureError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph failure (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("graph failure: %s", e.Message)
}

func (e *GraphFailureError) Unwrap() error { return e.Cause }

// WorkspaceFailureError is workspace corruption or an invalid workspace
// layout. Never resumable.
type WorkspaceFailureError struct {
	Code    string
	Message string
	Cause   error
}

func (e *WorkspaceFailureError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("workspace failure (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("workspace failure: %s", e.Message)
}

func (e *WorkspaceFailureError) Unwrap() error { return e.Cause }

// ExecutionFailureError is a single target's action failing. Conditionally
// resumable: the caller decides based on whether a checkpoint exists for
// every target upstream of it.
type ExecutionFailureError struct {
	TargetID string
	Code     string
	Message  string
	Cause    error
}

func (e *ExecutionFailureError) Error() string {
	switch {
	case e.TargetID != "" && e.Code != "":
		return fmt.Sprintf("execution failure target=%s (%s): %s", e.TargetID, e.Code, e.Message)
	case e.TargetID != "":
		return fmt.Sprintf("execution failure target=%s: %s", e.TargetID, e.Message)
	default:
		return fmt.Sprintf("execution failure: %s", e.Message)
	}
}

func (e *ExecutionFailureError) Unwrap() error { return e.Cause }

// SystemFailureError is a crash, signal, or other system-level termination
// of the scheduler itself. Resumable, assuming checkpoints exist.
type SystemFailureError struct {
	Code    string
	Message string
	Cause   error
}

func (e *SystemFailureError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("system failure (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("system failure: %s", e.Message)
}

func (e *SystemFailureError) Unwrap() error { return e.Cause }

// failureFromError classifies a terminal error into the closed four-class
// taxonomy. An error that matches none of the known wrapper types is
// classified as a system failure, the most conservative option: it assumes
// the run might be resumable rather than silently discarding progress.
func failureFromError(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}

	var gf *GraphFailureError
	if errors.As(err, &gf) {
		return Failure{
			FailureClass: FailureClassGraph,
			ErrorCode:    nonEmptyOr(gf.Code, "GraphFailure"),
			ErrorMessage: nonEmptyOr(gf.Message, gf.Error()),
			Resumable:    false,
		}, nil
	}

	var wf *WorkspaceFailureError
	if errors.As(err, &wf) {
		return Failure{
			FailureClass: FailureClassWorkspace,
			ErrorCode:    nonEmptyOr(wf.Code, "WorkspaceFailure"),
			ErrorMessage: nonEmptyOr(wf.Message, wf.Error()),
			Resumable:    false,
		}, nil
	}

	var ef *ExecutionFailureError
	if errors.As(err, &ef) {
		var targetPtr *string
		if ef.TargetID != "" {
			t := ef.TargetID
			targetPtr = &t
		}
		return Failure{
			FailureClass: FailureClassExecution,
			TargetID:     targetPtr,
			ErrorCode:    nonEmptyOr(ef.Code, "ExecutionFailure"),
			ErrorMessage: nonEmptyOr(ef.Message, ef.Error()),
			Resumable:    true,
		}, nil
	}

	var sf *SystemFailureError
	if errors.As(err, &sf) {
		return Failure{
			FailureClass: FailureClassSystem,
			ErrorCode:    nonEmptyOr(sf.Code, "SystemFailure"),
			ErrorMessage: nonEmptyOr(sf.Message, sf.Error()),
			Resumable:    true,
		}, nil
	}

	return Failure{
		FailureClass: FailureClassSystem,
		ErrorCode:    "UnknownError",
		ErrorMessage: err.Error(),
		Resumable:    true,
	}, nil
}

func nonEmptyOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
