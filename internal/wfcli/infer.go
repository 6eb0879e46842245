package wfcli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newInferCommand exists to complete the CLI shape the engine exposes;
// language-specific dependency inference (reading import statements to
// synthesize a graph file) is explicitly out of scope for this engine, so
// the command reports that rather than guessing at a source tree's deps.
func newInferCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "infer",
		Short: "infer a graph file from source imports (not implemented by this engine)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return &cliError{
				Code: ExitInvalidInvocation,
				Err:  fmt.Errorf("infer: language-specific dependency inference is not implemented; write a graph file under graphs/ instead"),
			}
		},
	}
}
