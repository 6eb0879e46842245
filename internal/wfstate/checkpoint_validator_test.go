package wfstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"weaveforge/internal/core"
	"weaveforge/internal/wfcache"
	"weaveforge/internal/wftrace"
)

func newTestValidator(t *testing.T) (*CheckpointValidator, string) {
	t.Helper()
	workDir := t.TempDir()
	store, err := NewStore(workDir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	cache, err := wfcache.Open(filepath.Join(workDir, ".weaveforge", "cache"), wfcache.Options{})
	if err != nil {
		t.Fatalf("wfcache.Open: %v", err)
	}
	return &CheckpointValidator{
		Store:     store,
		Cache:     cache,
		Harvester: core.NewHarvester(workDir),
	}, workDir
}

func testActionID(t *testing.T) core.ActionId {
	t.Helper()
	tid, err := core.ParseTargetId("//app:server")
	if err != nil {
		t.Fatalf("ParseTargetId: %v", err)
	}
	return core.ActionId{TargetID: tid, ActionType: core.ActionCompile, SubID: "0", InputHash: "deadbeef"}
}

func TestCheckpointValidator_CreateAndSave_Succeeds(t *testing.T) {
	v, workDir := newTestValidator(t)
	actionID := testActionID(t)

	outPath := filepath.Join(workDir, "out.bin")
	if err := os.WriteFile(outPath, []byte("built"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := v.Cache.Store(actionID, &core.ActionResult{ID: actionID, Status: core.StatusSuccess}, map[string][]byte{"out.bin": []byte("built")}); err != nil {
		t.Fatalf("Cache.Store: %v", err)
	}

	events := []wftrace.Event{{Kind: wftrace.EventTaskExecuted, TargetID: "//app:server"}}

	cp, err := v.CreateAndSave(CheckpointInput{
		RunID:           "run-1",
		TargetID:        "//app:server",
		When:            time.Unix(5, 0),
		ActionID:        actionID,
		DeclaredOutputs: []string{"out.bin"},
		ExitCode:        0,
		FromCache:       false,
		TraceEvents:     events,
	})
	if err != nil {
		t.Fatalf("CreateAndSave: %v", err)
	}
	if !cp.Valid || cp.OutputHash == "" {
		t.Fatalf("expected a valid checkpoint with a non-empty output hash: %#v", cp)
	}

	loaded, err := v.Store.LoadCheckpoint("run-1", "//app:server")
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if loaded.OutputHash != cp.OutputHash {
		t.Fatalf("persisted checkpoint does not match: %#v vs %#v", loaded, cp)
	}
}

func TestCheckpointValidator_RejectsNonZeroExit(t *testing.T) {
	v, _ := newTestValidator(t)
	_, err := v.CreateAndSave(CheckpointInput{
		RunID:    "run-1",
		TargetID: "//app:server",
		When:     time.Unix(5, 0),
		ActionID: testActionID(t),
		ExitCode: 1,
	})
	if err == nil {
		t.Fatal("expected error for non-zero exit code")
	}
}

func TestCheckpointValidator_RejectsMissingCacheEntry(t *testing.T) {
	v, workDir := newTestValidator(t)
	outPath := filepath.Join(workDir, "out.bin")
	if err := os.WriteFile(outPath, []byte("built"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := v.CreateAndSave(CheckpointInput{
		RunID:           "run-1",
		TargetID:        "//app:server",
		When:            time.Unix(5, 0),
		ActionID:        testActionID(t),
		DeclaredOutputs: []string{"out.bin"},
		ExitCode:        0,
		TraceEvents:     []wftrace.Event{{Kind: wftrace.EventTaskExecuted, TargetID: "//app:server"}},
	})
	if err == nil {
		t.Fatal("expected error when no cache entry exists for the action")
	}
}

func TestCheckpointValidator_RejectsFailedTrace(t *testing.T) {
	v, workDir := newTestValidator(t)
	actionID := testActionID(t)
	outPath := filepath.Join(workDir, "out.bin")
	if err := os.WriteFile(outPath, []byte("built"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := v.Cache.Store(actionID, &core.ActionResult{ID: actionID, Status: core.StatusSuccess}, map[string][]byte{"out.bin": []byte("built")}); err != nil {
		t.Fatalf("Cache.Store: %v", err)
	}

	_, err := v.CreateAndSave(CheckpointInput{
		RunID:           "run-1",
		TargetID:        "//app:server",
		When:            time.Unix(5, 0),
		ActionID:        actionID,
		DeclaredOutputs: []string{"out.bin"},
		ExitCode:        0,
		TraceEvents:     []wftrace.Event{{Kind: wftrace.EventTaskFailed, TargetID: "//app:server"}},
	})
	if err == nil {
		t.Fatal("expected error when trace shows the target failed")
	}
}
