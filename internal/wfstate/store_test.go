package wfstate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStore_SaveAndLoadRun_OmitsNilPreviousRunID(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	run := Run{
		RunID:      "run-123",
		GraphHash:  "gh-abc",
		StartTime:  time.Unix(1, 2).UTC(),
		Mode:       ModeIncremental,
		RetryCount: 0,
		Status:     RunStatusRunning,
	}
	if err := store.SaveRun(run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(base, ".weaveforge", "runs", "run-123", "run.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "previous_run_id") {
		t.Fatalf("expected previous_run_id to be omitted when nil; got: %s", string(data))
	}

	loaded, err := store.LoadRun("run-123")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if loaded.RunID != run.RunID || loaded.GraphHash != run.GraphHash {
		t.Fatalf("round trip mismatch: %#v", loaded)
	}
}

func TestStore_SaveRun_RejectsInvalid(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	if err := store.SaveRun(Run{}); err == nil {
		t.Fatal("expected validation error for empty run")
	}
}

func TestStore_CheckpointRoundTrip(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	cp := Checkpoint{
		TargetID:   "//app:server",
		Timestamp:  time.Unix(10, 0).UTC(),
		CacheKeys:  []string{"deadbeef"},
		OutputHash: "cafef00d",
		Valid:      true,
	}
	if err := store.SaveCheckpoint("run-1", cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	loaded, err := store.LoadCheckpoint("run-1", "//app:server")
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if loaded.OutputHash != cp.OutputHash {
		t.Fatalf("output hash mismatch: got %q want %q", loaded.OutputHash, cp.OutputHash)
	}

	all, err := store.LoadAllCheckpoints("run-1")
	if err != nil {
		t.Fatalf("LoadAllCheckpoints: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 checkpoint, got %d", len(all))
	}
}

func TestStore_CheckpointRejectsInvalid(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	err := store.SaveCheckpoint("run-1", Checkpoint{TargetID: "//app:x", Valid: true})
	if err == nil {
		t.Fatal("expected error for missing timestamp/output hash")
	}
}

func TestStore_FailureRoundTrip(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	f := Failure{FailureClass: FailureClassExecution, ErrorCode: "NonZeroExit", ErrorMessage: "boom", Resumable: true}
	if err := store.SaveFailure("run-2", f); err != nil {
		t.Fatalf("SaveFailure: %v", err)
	}
	if !store.HasFailure("run-2") {
		t.Fatal("expected HasFailure to report true after save")
	}
	loaded, err := store.LoadFailure("run-2")
	if err != nil {
		t.Fatalf("LoadFailure: %v", err)
	}
	if loaded.ErrorCode != f.ErrorCode {
		t.Fatalf("error code mismatch: got %q want %q", loaded.ErrorCode, f.ErrorCode)
	}
}

func TestStore_ListRunIDs_SortedAndEmptyWhenMissing(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	ids, err := store.ListRunIDs()
	if err != nil {
		t.Fatalf("ListRunIDs on empty store: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no runs, got %v", ids)
	}

	for _, id := range []string{"b-run", "a-run"} {
		run := Run{RunID: id, GraphHash: "gh", StartTime: time.Unix(1, 0).UTC(), Mode: ModeClean, Status: RunStatusRunning}
		if err := store.SaveRun(run); err != nil {
			t.Fatalf("SaveRun(%s): %v", id, err)
		}
	}
	ids, err = store.ListRunIDs()
	if err != nil {
		t.Fatalf("ListRunIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a-run" || ids[1] != "b-run" {
		t.Fatalf("expected sorted [a-run b-run], got %v", ids)
	}
}
