// Package core defines the domain model shared by weaveforge's graph,
// scheduler, worker, and cache packages: targets, actions, and build nodes.
package core

import (
	"fmt"
	"strings"
)

// TargetId is the canonical address of a build target:
// "[//workspace]//path:name", with workspace omitted for the default
// workspace.
type TargetId struct {
	Workspace string
	Path      string
	Name      string
}

// String renders the canonical form. ParseTargetId is its exact left inverse.
func (t TargetId) String() string {
	var b strings.Builder
	if t.Workspace != "" {
		b.WriteString("//")
		b.WriteString(t.Workspace)
	}
	b.WriteString("//")
	b.WriteString(t.Path)
	b.WriteByte(':')
	b.WriteString(t.Name)
	return b.String()
}

// ParseTargetId parses the canonical "[//workspace]//path:name" form.
func ParseTargetId(s string) (TargetId, error) {
	var workspace string
	rest := s

	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
	} else {
		return TargetId{}, fmt.Errorf("parsing target id %q: must start with //", s)
	}

	if idx := strings.Index(rest, "//"); idx >= 0 {
		workspace = rest[:idx]
		rest = rest[idx+2:]
	}

	colon := strings.LastIndex(rest, ":")
	if colon < 0 {
		return TargetId{}, fmt.Errorf("parsing target id %q: missing ':name'", s)
	}

	path := rest[:colon]
	name := rest[colon+1:]
	if name == "" {
		return TargetId{}, fmt.Errorf("parsing target id %q: empty name", s)
	}

	return TargetId{Workspace: workspace, Path: path, Name: name}, nil
}

// TargetKind classifies what building a target produces.
type TargetKind string

const (
	KindLibrary TargetKind = "library"
	KindBinary  TargetKind = "binary"
	KindTest    TargetKind = "test"
	KindCustom  TargetKind = "custom"
)

// Target is a single node's declarative definition: what it builds and how.
//
// Command is always array-form argv, never a shell string: spec's process
// invocation requirement is "no shell", enforced by the safety validator in
// package wfworker (ValidateCommand) before any Command reaches exec.
type Target struct {
	ID         TargetId          `json:"id" yaml:"id"`
	Kind       TargetKind        `json:"kind" yaml:"kind"`
	Language   string            `json:"language" yaml:"language"`
	Sources    []string          `json:"sources" yaml:"sources"`
	Deps       []TargetId        `json:"deps" yaml:"deps"`
	Flags      []string          `json:"flags,omitempty" yaml:"flags,omitempty"`
	OutputPath string            `json:"output_path" yaml:"output_path"`
	LangConfig map[string]string `json:"lang_config,omitempty" yaml:"lang_config,omitempty"`
	Command    []string          `json:"command" yaml:"command"`
	Env        map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// ActionType classifies what an action does with a target's sources.
type ActionType string

const (
	ActionCompile ActionType = "compile"
	ActionLink    ActionType = "link"
	ActionTest    ActionType = "test"
	ActionCustom  ActionType = "custom"
)

// ActionId is an action's content-addressed identity: the same target run
// through the same command against the same input hash always produces the
// same ActionId, which is what the action cache keys on.
type ActionId struct {
	TargetID   TargetId
	ActionType ActionType
	SubID      string
	InputHash  string
}

func (a ActionId) String() string {
	return fmt.Sprintf("%s#%s#%s#%s", a.TargetID, a.ActionType, a.SubID, a.InputHash)
}

// ActionRequest is the unit of dispatch a worker consumes.
type ActionRequest struct {
	ID       ActionId
	TargetID TargetId
	Inputs   []string
	Command  []string
	Env      map[string]string
	Outputs  []string
	Metadata map[string]string
	Priority int
}

// ActionStatus is the closed set of terminal outcomes for a dispatched action.
type ActionStatus string

const (
	StatusSuccess   ActionStatus = "success"
	StatusError     ActionStatus = "error"
	StatusTimeout   ActionStatus = "timeout"
	StatusCancelled ActionStatus = "cancelled"
)

// ResourceUsage is best-effort process accounting, excluded from any hash.
type ResourceUsage struct {
	UserTime   int64 // nanoseconds
	SystemTime int64 // nanoseconds
	MaxRSSKB   int64
}

// OutputArtifact is a single declared output file's content identity.
type OutputArtifact struct {
	Path string
	Hash string
	Size int64
}

// ActionResult is what a worker publishes once an action reaches a terminal state.
type ActionResult struct {
	ID            ActionId
	Status        ActionStatus
	Outputs       []OutputArtifact
	Stdout        []byte
	Stderr        []byte
	DurationNanos int64
	ResourceUsage ResourceUsage
}
