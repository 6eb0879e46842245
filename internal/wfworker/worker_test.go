package wfworker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"weaveforge/internal/core"
	"weaveforge/internal/wfcache"
)

func newTestWorker(t *testing.T) (*Worker, string) {
	t.Helper()
	workDir := t.TempDir()
	cache, err := wfcache.Open(filepath.Join(workDir, ".cache"), wfcache.Options{})
	if err != nil {
		t.Fatalf("Open cache: %v", err)
	}
	return NewWorker(workDir, cache), workDir
}

func buildRequest(t *testing.T, name string, command []string, outputs []string) (core.Target, *core.ActionRequest) {
	t.Helper()
	tid, err := core.ParseTargetId("//app:" + name)
	if err != nil {
		t.Fatalf("ParseTargetId: %v", err)
	}
	target := core.Target{ID: tid, Kind: core.KindLibrary, Command: command, OutputPath: ""}
	req := &core.ActionRequest{
		ID:       core.ActionId{TargetID: tid, ActionType: core.ActionCompile, SubID: "0"},
		TargetID: tid,
		Command:  command,
		Outputs:  outputs,
	}
	return target, req
}

func TestWorker_Run_ExecutesOnFirstRunThenServesFromCache(t *testing.T) {
	w, workDir := newTestWorker(t)
	outPath := "out.txt"
	command := []string{"/bin/touch", filepath.Join(workDir, outPath)}
	target, req := buildRequest(t, "a", command, []string{outPath})

	result, err := w.Run(context.Background(), target, req, nil)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if result.FromCache {
		t.Fatal("expected the first run to execute, not hit cache")
	}
	if len(result.Result.Outputs) != 1 {
		t.Fatalf("expected one harvested output, got %#v", result.Result.Outputs)
	}

	// Remove the on-disk output; a cache hit must restore it without
	// re-running the command.
	if err := os.Remove(filepath.Join(workDir, outPath)); err != nil {
		t.Fatalf("removing output: %v", err)
	}

	req2 := &core.ActionRequest{
		ID:       core.ActionId{TargetID: req.TargetID, ActionType: core.ActionCompile, SubID: "0"},
		TargetID: req.TargetID,
		Command:  req.Command,
		Outputs:  req.Outputs,
	}
	result2, err := w.Run(context.Background(), target, req2, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !result2.FromCache {
		t.Fatal("expected the second run with identical inputs to be served from cache")
	}
	if _, err := os.Stat(filepath.Join(workDir, outPath)); err != nil {
		t.Fatalf("expected cache hit to restore the output file: %v", err)
	}
}

func TestWorker_Run_DifferentCommandProducesDifferentFingerprint(t *testing.T) {
	w, workDir := newTestWorker(t)
	_ = workDir

	target1, req1 := buildRequest(t, "a", []string{"/bin/sh", "-c", "exit 0"}, nil)
	target2, req2 := buildRequest(t, "a", []string{"/bin/sh", "-c", "exit 0", "second"}, nil)

	r1, err := w.Run(context.Background(), target1, req1, nil)
	if err != nil {
		t.Fatalf("Run 1: %v", err)
	}
	r2, err := w.Run(context.Background(), target2, req2, nil)
	if err != nil {
		t.Fatalf("Run 2: %v", err)
	}
	if r1.Result.ID.InputHash == r2.Result.ID.InputHash {
		t.Fatal("expected different commands to produce different fingerprints")
	}
}

func TestWorker_Run_FailedExecutionIsCachedButNotHarvested(t *testing.T) {
	w, _ := newTestWorker(t)
	target, req := buildRequest(t, "a", []string{"/bin/sh", "-c", "exit 7"}, nil)

	result, err := w.Run(context.Background(), target, req, nil)
	if err == nil {
		t.Fatal("expected a non-zero exit to surface as an error")
	}
	if result == nil || result.Result.Status != core.StatusError {
		t.Fatalf("expected a cacheable failed result, got %#v", result)
	}

	req2 := &core.ActionRequest{
		ID:       core.ActionId{TargetID: req.TargetID, ActionType: core.ActionCompile, SubID: "0"},
		TargetID: req.TargetID,
		Command:  req.Command,
	}
	result2, err2 := w.Run(context.Background(), target, req2, nil)
	if err2 == nil {
		t.Fatal("expected the cached failure to replay as an error")
	}
	if !result2.FromCache {
		t.Fatal("expected the repeated failing run to be served from cache")
	}
}

func TestWorker_Run_RejectsUnsafeCommandBeforeTouchingCache(t *testing.T) {
	w, _ := newTestWorker(t)
	target, req := buildRequest(t, "a", []string{"echo", "$(rm -rf /)"}, nil)

	if _, err := w.Run(context.Background(), target, req, nil); err == nil {
		t.Fatal("expected an unsafe command to be rejected before execution")
	}
}
