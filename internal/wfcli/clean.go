package wfcli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"weaveforge/internal/wfcache"
)

func newCleanCommand(workdir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "discard the action cache and run history for this workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(*workdir, cmd.OutOrStdout())
		},
	}
	return cmd
}

func runClean(workdir string, out io.Writer) error {
	app, err := resolveContext(workdir)
	if err != nil {
		return err
	}

	cache, err := wfcache.Open(app.Workspace.CacheDir, wfcache.Options{})
	if err != nil {
		return &cliError{Code: ExitInternalError, Err: err}
	}
	if err := cache.Clear(); err != nil {
		return &cliError{Code: ExitInternalError, Err: err}
	}

	if err := os.RemoveAll(app.Workspace.RunsDir); err != nil {
		return &cliError{Code: ExitInternalError, Err: err}
	}
	if err := os.MkdirAll(app.Workspace.RunsDir, 0o755); err != nil {
		return &cliError{Code: ExitInternalError, Err: err}
	}

	fmt.Fprintf(out, "cleaned cache and run history under %s\n", app.Workspace.Dir)
	return nil
}
