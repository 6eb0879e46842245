package wfincremental

import (
	"errors"
	"fmt"
	"sort"
)

// ResumeUpstreamChecker adapts a GraphSnapshot plus InvalidationMap to
// wfstate.UpstreamInvalidationChecker, so a resume attempt can ask "does
// anything upstream of my resume point carry an invalidation marker"
// without wfstate importing this package directly.
type ResumeUpstreamChecker struct {
	Graph        *GraphSnapshot
	Invalidation InvalidationMap
}

// UpstreamInvalidated walks every target transitively upstream of
// resumeFromTargetID (inclusive) and returns, sorted, the ones the
// invalidation map marks invalidated.
func (c ResumeUpstreamChecker) UpstreamInvalidated(resumeFromTargetID string) ([]string, error) {
	if c.Graph == nil || c.Graph.Nodes == nil {
		return nil, errors.New("graph snapshot is required")
	}
	if _, ok := c.Graph.Nodes[resumeFromTargetID]; !ok {
		return nil, fmt.Errorf("resume target %q not found in graph snapshot", resumeFromTargetID)
	}
	if c.Invalidation == nil {
		return nil, errors.New("invalidation map is required")
	}

	visited := map[string]bool{}
	stack := []string{resumeFromTargetID}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true

		snap, ok := c.Graph.Nodes[n]
		if !ok {
			continue
		}
		for _, up := range snap.Upstream {
			if up != "" {
				stack = append(stack, up)
			}
		}
	}

	invalidated := make([]string, 0)
	for n := range visited {
		e, ok := c.Invalidation[n]
		if !ok {
			return nil, fmt.Errorf("missing invalidation entry for %q", n)
		}
		if e.Invalidated {
			invalidated = append(invalidated, n)
		}
	}
	sort.Strings(invalidated)
	return invalidated, nil
}
