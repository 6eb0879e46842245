package wfcli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"weaveforge/internal/wfcache"
	"weaveforge/internal/wfconfig"
	"weaveforge/internal/wfgraph"
	"weaveforge/internal/wfobserve"
	"weaveforge/internal/wfsched"
	"weaveforge/internal/wfworker"
)

func newBuildCommand(workdir *string) *cobra.Command {
	var graphPath string
	var concurrency int
	var failurePolicy string
	var otelEndpoint string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "build every target reachable from the discovered graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), *workdir, graphPath, concurrency, failurePolicy, otelEndpoint, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&graphPath, "graph", "", "explicit graph file path, overriding discovery")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override workspace.yaml concurrency (0 = use config)")
	cmd.Flags().StringVar(&failurePolicy, "failure-policy", "", "stop_on_first_error|keep_going, overriding workspace.yaml")
	cmd.Flags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP/gRPC collector endpoint (empty disables tracing/metrics)")
	return cmd
}

func runBuild(ctx context.Context, workdir, graphPath string, concurrency int, failurePolicy, otelEndpoint string, out io.Writer) error {
	app, err := resolveContext(workdir)
	if err != nil {
		return err
	}

	if graphPath == "" {
		graphPath = app.Config.GraphPath
	}
	targets, resolvedPath, err := wfconfig.DiscoverGraph(app.ProjectRoot, graphPath)
	if err != nil {
		return configErr(err)
	}

	g, err := wfgraph.New(targets)
	if err != nil {
		return &cliError{Code: ExitBuildFailure, Err: err}
	}

	cache, err := wfcache.Open(app.Workspace.CacheDir, wfcache.Options{
		MaxEntries: app.Config.CacheMaxEntries,
		MaxBytes:   app.Config.CacheMaxBytes,
	})
	if err != nil {
		return &cliError{Code: ExitInternalError, Err: err}
	}

	policy := wfsched.StopOnFirstError
	if effectivePolicy(failurePolicy, app.Config.FailurePolicy) == "keep_going" {
		policy = wfsched.KeepGoing
	}

	instr, shutdown, err := wfobserve.Init(ctx, "weaveforge", otelEndpoint)
	if err != nil {
		return &cliError{Code: ExitInternalError, Err: err}
	}
	defer func() { _ = shutdown(ctx) }()

	worker := wfworker.NewWorker(app.ProjectRoot, cache)
	worker.Instruments = instr

	sched := wfsched.New(g, worker, wfsched.Config{
		Concurrency:      effectiveConcurrency(concurrency, app.Config.Concurrency),
		FailurePolicy:    policy,
		MaxRetryAttempts: app.Config.MaxRetryAttempts,
	}, app.Log)
	sched.Instruments = instr

	result, runErr := sched.Run(ctx)
	if err := cache.Flush(); err != nil {
		app.Log.Error(err, "flushing cache index")
	}

	fmt.Fprintf(out, "graph %s (%s): %d targets executed\n", resolvedPath, result.GraphHash, len(result.ExecutionOrder))
	for _, id := range result.ExecutionOrder {
		fmt.Fprintf(out, "  %s: %s\n", id.String(), result.FinalState[id])
	}

	if runErr != nil {
		return &cliError{Code: ExitBuildFailure, Err: runErr}
	}
	for _, status := range result.FinalState {
		if status == wfgraph.Failed {
			return &cliError{Code: ExitBuildFailure, Err: fmt.Errorf("one or more targets failed")}
		}
	}
	return nil
}

func effectiveConcurrency(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func effectivePolicy(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}
