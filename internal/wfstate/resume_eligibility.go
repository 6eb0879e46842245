package wfstate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// UpstreamInvalidationChecker reports, for a candidate resume point, which
// of its transitive upstream targets carry an invalidation marker. It is an
// interface rather than a concrete dependency on the incremental-planning
// package so wfstate has no import-time knowledge of graph internals; callers
// supply an implementation such as wfincremental.ResumeUpstreamChecker.
type UpstreamInvalidationChecker interface {
	UpstreamInvalidated(resumeFromTargetID string) ([]string, error)
}

// WorkspaceValidator checks that the on-disk workspace at root is intact
// (no corruption, no unauthorized entries) before a resume is allowed to
// proceed against it.
type WorkspaceValidator interface {
	ValidateWorkspace(root string) error
}

// ResumeEligibilityChecker enforces the rules under which a new run may
// resume from a previous one instead of starting clean:
//
//   - the graph hash is unchanged between the two runs
//   - the workspace validates intact
//   - previous_run_id is set, exists, and recorded a resumable failure
//   - retry_count was incremented exactly once relative to the previous run
//   - no target upstream of the resume point carries an invalidation marker
type ResumeEligibilityChecker struct {
	Store       *Store
	ProjectRoot string
	Workspace   WorkspaceValidator
	Invalidation UpstreamInvalidationChecker
}

// ResumeEligibilityRequest bundles a resume attempt's evidence.
type ResumeEligibilityRequest struct {
	NewRun           Run
	ResumeFromTarget string
}

func (c *ResumeEligibilityChecker) Check(req ResumeEligibilityRequest) error {
	if c == nil {
		return errors.New("nil ResumeEligibilityChecker")
	}
	if c.Store == nil {
		return errors.New("Store is required")
	}
	if strings.TrimSpace(c.ProjectRoot) == "" {
		return errors.New("ProjectRoot is required")
	}
	if err := req.NewRun.Validate(); err != nil {
		return fmt.Errorf("invalid new run: %w", err)
	}

	if req.NewRun.Mode != ModeIncremental && req.NewRun.Mode != ModeResumeOnly {
		return fmt.Errorf("resume not permitted in mode %q", req.NewRun.Mode)
	}

	if c.Workspace != nil {
		if err := c.Workspace.ValidateWorkspace(c.ProjectRoot); err != nil {
			return fmt.Errorf("workspace validation failed: %w", err)
		}
	}

	if req.NewRun.PreviousRunID == nil || strings.TrimSpace(*req.NewRun.PreviousRunID) == "" {
		return errors.New("previous_run_id is required for resume")
	}
	prevID := strings.TrimSpace(*req.NewRun.PreviousRunID)
	prevRun, err := c.Store.LoadRun(prevID)
	if err != nil {
		return fmt.Errorf("previous run does not exist: %w", err)
	}

	if prevRun.GraphHash != req.NewRun.GraphHash {
		return fmt.Errorf("graph hash mismatch (prev=%s new=%s)", prevRun.GraphHash, req.NewRun.GraphHash)
	}

	prevFailure, err := c.Store.LoadFailure(prevID)
	if err != nil {
		return fmt.Errorf("previous run must have a recorded failure: %w", err)
	}
	if !prevFailure.Resumable {
		return fmt.Errorf("previous run failure is not resumable (class=%s code=%s)", prevFailure.FailureClass, prevFailure.ErrorCode)
	}
	if req.NewRun.RetryCount != prevRun.RetryCount+1 {
		return fmt.Errorf("retry_count must be incremented (prev=%d new=%d)", prevRun.RetryCount, req.NewRun.RetryCount)
	}

	if strings.TrimSpace(req.ResumeFromTarget) == "" {
		return errors.New("ResumeFromTarget is required")
	}
	if c.Invalidation != nil {
		invalidated, err := c.Invalidation.UpstreamInvalidated(req.ResumeFromTarget)
		if err != nil {
			return err
		}
		if len(invalidated) != 0 {
			sort.Strings(invalidated)
			return fmt.Errorf("resume blocked by upstream invalidation: %s", strings.Join(invalidated, ","))
		}
	}

	return nil
}
