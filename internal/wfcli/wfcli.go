// Package wfcli wires the cobra command tree (build, clean, graph, infer)
// onto the engine packages: it resolves the .weaveforge workspace, loads
// WorkspaceConfig, discovers and parses a graph file, and constructs a
// Scheduler against it. Nothing downstream of this package ever touches
// *cobra.Command directly, and viper is used only inside wfconfig.
package wfcli

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"weaveforge/internal/wfconfig"
	"weaveforge/internal/wflog"
)

// Exit codes, mirrored from the CLI-shape section of the spec this engine
// implements: 0 on success, a distinct code per failure class otherwise.
const (
	ExitSuccess           = 0
	ExitBuildFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// cliError carries a semantic exit code alongside the underlying error, the
// way internal/cli.InvocationError did in the teacher CLI.
type cliError struct {
	Code int
	Err  error
}

func (e *cliError) Error() string { return e.Err.Error() }
func (e *cliError) Unwrap() error { return e.Err }

func configErr(err error) error {
	if err == nil {
		return nil
	}
	return &cliError{Code: ExitConfigError, Err: err}
}

// ExitCode extracts the semantic exit code carried by err, or
// ExitInternalError for an error of unknown shape, or ExitSuccess for nil.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ce *cliError
	if asCliError(err, &ce) {
		return ce.Code
	}
	return ExitInternalError
}

func asCliError(err error, target **cliError) bool {
	for err != nil {
		if ce, ok := err.(*cliError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// appContext is the resolved, ready-to-use environment every subcommand
// runs against.
type appContext struct {
	ProjectRoot string
	Workspace   wfconfig.Workspace
	Config      wfconfig.WorkspaceConfig
	Log         logr.Logger
}

func resolveContext(workdirFlag string) (*appContext, error) {
	root := workdirFlag
	if root == "" {
		var err error
		root, err = wfconfig.DetectProjectRoot()
		if err != nil {
			return nil, configErr(err)
		}
	}

	ws, err := wfconfig.EnsureWorkspace(root)
	if err != nil {
		return nil, configErr(err)
	}

	cfg, err := wfconfig.LoadWorkspaceConfig(root)
	if err != nil {
		return nil, configErr(err)
	}

	log := wflog.New(cfg.LogLevel)

	return &appContext{ProjectRoot: root, Workspace: ws, Config: cfg, Log: log}, nil
}

// NewRootCommand builds the wf command tree.
func NewRootCommand() *cobra.Command {
	var workdir string

	root := &cobra.Command{
		Use:           "wf",
		Short:         "weaveforge: content-addressed, wave-scheduled build orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&workdir, "workdir", "", "project root (defaults to the current directory)")

	root.AddCommand(
		newBuildCommand(&workdir),
		newCleanCommand(&workdir),
		newGraphCommand(&workdir),
		newInferCommand(),
	)
	return root
}

// Main is the process entrypoint body, factored out of cmd/wf/main.go so it
// can be exercised without a child process.
func Main(ctx context.Context, args []string, stdout, stderr *os.File) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetContext(ctx)

	err := root.Execute()
	if err != nil {
		fmt.Fprintln(stderr, err)
	}
	return ExitCode(err)
}
