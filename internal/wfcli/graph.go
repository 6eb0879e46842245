package wfcli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"weaveforge/internal/wfconfig"
	"weaveforge/internal/wfgraph"
)

func newGraphCommand(workdir *string) *cobra.Command {
	var graphPath string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "print the discovered graph's wave schedule as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(*workdir, graphPath, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&graphPath, "graph", "", "explicit graph file path, overriding discovery")
	return cmd
}

type waveScheduleView struct {
	GraphHash string     `json:"graph_hash"`
	Waves     [][]string `json:"waves"`
}

func runGraph(workdir, graphPath string, out io.Writer) error {
	app, err := resolveContext(workdir)
	if err != nil {
		return err
	}

	if graphPath == "" {
		graphPath = app.Config.GraphPath
	}
	targets, _, err := wfconfig.DiscoverGraph(app.ProjectRoot, graphPath)
	if err != nil {
		return configErr(err)
	}

	g, err := wfgraph.New(targets)
	if err != nil {
		return &cliError{Code: ExitBuildFailure, Err: err}
	}

	view := waveScheduleView{GraphHash: string(g.Hash())}
	for _, wave := range g.WaveSchedule() {
		names := make([]string, 0, len(wave))
		for _, id := range wave {
			names = append(names, id.String())
		}
		view.Waves = append(view.Waves, names)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
