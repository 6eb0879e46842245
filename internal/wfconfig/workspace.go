// Package wfconfig is the CLI-side configuration boundary: workspace
// detection and layout, graph-file discovery and parsing, and
// WorkspaceConfig loading. Nothing in internal/core, internal/wfgraph,
// internal/wfcache, or internal/wfsched imports this package or a
// *viper.Viper; they take plain structs assembled here.
package wfconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Workspace describes the reserved weaveforge workspace at a project root.
// It is always located at <projectRoot>/.weaveforge and isolates run state,
// the action cache, and logs from the user's own project files.
type Workspace struct {
	ProjectRoot string
	Dir         string
	CacheDir    string
	RunsDir     string
	LogsDir     string
	ConfigPath  string
}

var (
	ErrInvalidProjectRoot    = errors.New("invalid project root")
	ErrInvalidWorkspace      = errors.New("invalid .weaveforge workspace")
	ErrUnauthorizedWorkspace = errors.New("unauthorized entry in .weaveforge")
	ErrWorkspacePathCollision = errors.New("workspace path exists but is not a directory")
)

// DetectProjectRoot returns the current working directory. weaveforge is
// always invoked from a project root; there is no environment-derived
// fallback, keeping discovery deterministic.
func DetectProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("detect project root: %w", err)
	}
	if wd == "" {
		return "", fmt.Errorf("detect project root: %w", ErrInvalidProjectRoot)
	}
	return wd, nil
}

func layout(root string) Workspace {
	dir := filepath.Join(root, ".weaveforge")
	return Workspace{
		ProjectRoot: root,
		Dir:         dir,
		CacheDir:    filepath.Join(dir, "cache"),
		RunsDir:     filepath.Join(dir, "runs"),
		LogsDir:     filepath.Join(dir, "logs"),
		ConfigPath:  filepath.Join(dir, "workspace.yaml"),
	}
}

// EnsureWorkspace validates and initializes the .weaveforge workspace at
// projectRoot, creating the directory and its required subdirectories when
// they do not yet exist (zero-config). If the workspace already exists it
// must contain only recognized entries, or initialization fails.
func EnsureWorkspace(projectRoot string) (Workspace, error) {
	root := projectRoot
	if root == "" {
		var err error
		root, err = DetectProjectRoot()
		if err != nil {
			return Workspace{}, err
		}
	}

	ws := layout(root)

	info, err := os.Stat(ws.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return Workspace{}, fmt.Errorf("stat workspace dir: %w", err)
		}
		if err := os.Mkdir(ws.Dir, 0o755); err != nil {
			return Workspace{}, fmt.Errorf("create workspace dir: %w", err)
		}
	} else if !info.IsDir() {
		return Workspace{}, fmt.Errorf("%w: %s", ErrWorkspacePathCollision, ws.Dir)
	}

	if err := validateWorkspaceTopLevel(ws.Dir); err != nil {
		return Workspace{}, err
	}

	for _, d := range []string{ws.CacheDir, ws.RunsDir, ws.LogsDir} {
		if err := ensureDir(d); err != nil {
			return Workspace{}, err
		}
	}

	return ws, nil
}

// ValidateWorkspace checks that an existing .weaveforge workspace at root
// is intact, without creating anything. Used before a resume is allowed to
// proceed against on-disk run state.
func ValidateWorkspace(root string) (Workspace, error) {
	if root == "" {
		return Workspace{}, fmt.Errorf("validate workspace: %w", ErrInvalidProjectRoot)
	}
	ws := layout(root)

	info, err := os.Stat(ws.Dir)
	if err != nil {
		return Workspace{}, fmt.Errorf("stat workspace dir: %w", err)
	}
	if !info.IsDir() {
		return Workspace{}, fmt.Errorf("%w: %s", ErrWorkspacePathCollision, ws.Dir)
	}
	if err := validateWorkspaceTopLevel(ws.Dir); err != nil {
		return Workspace{}, err
	}
	for _, d := range []string{ws.CacheDir, ws.RunsDir, ws.LogsDir} {
		info, err := os.Stat(d)
		if err != nil {
			return Workspace{}, fmt.Errorf("%w: missing %s", ErrInvalidWorkspace, d)
		}
		if !info.IsDir() {
			return Workspace{}, fmt.Errorf("%w: %s is not a directory", ErrInvalidWorkspace, d)
		}
	}
	return ws, nil
}

// WorkspaceValidator adapts ValidateWorkspace to wfstate's
// UpstreamInvalidationChecker-style narrow interface, so the scheduler can
// wire workspace-intactness checks into resume eligibility without wfstate
// importing this package.
type WorkspaceValidator struct{}

func (WorkspaceValidator) ValidateWorkspace(root string) error {
	_, err := ValidateWorkspace(root)
	return err
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: %s exists but is not a directory", ErrInvalidWorkspace, path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat dir %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", path, err)
	}
	return nil
}

func validateWorkspaceTopLevel(workspaceDir string) error {
	entries, err := os.ReadDir(workspaceDir)
	if err != nil {
		return fmt.Errorf("read workspace dir: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		switch name {
		case "cache", "runs", "logs", "graphs":
			if !entry.IsDir() {
				return fmt.Errorf("%w: %s must be a directory", ErrInvalidWorkspace, filepath.Join(workspaceDir, name))
			}
		case "workspace.yaml":
			if entry.IsDir() {
				return fmt.Errorf("%w: %s must be a file", ErrInvalidWorkspace, filepath.Join(workspaceDir, name))
			}
		default:
			return fmt.Errorf("%w: %s", ErrUnauthorizedWorkspace, filepath.Join(workspaceDir, name))
		}
	}
	return nil
}
