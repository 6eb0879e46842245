package wfworker

import (
	"context"
	"testing"
	"time"

	"weaveforge/internal/core"
)

func TestProcessExecutor_SuccessfulCommand(t *testing.T) {
	exec := NewProcessExecutor(t.TempDir())
	result, err := exec.Execute(context.Background(), &core.ActionRequest{
		ID:      core.ActionId{SubID: "0"},
		Command: []string{"/bin/sh", "-c", "echo hi"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != core.StatusSuccess {
		t.Fatalf("Status = %s, want success", result.Status)
	}
	if string(result.Stdout) != "hi\n" {
		t.Fatalf("Stdout = %q, want %q", result.Stdout, "hi\n")
	}
}

func TestProcessExecutor_NonZeroExitIsErrorButStillReturnsResult(t *testing.T) {
	exec := NewProcessExecutor(t.TempDir())
	result, err := exec.Execute(context.Background(), &core.ActionRequest{
		ID:      core.ActionId{SubID: "0"},
		Command: []string{"/bin/sh", "-c", "exit 3"},
	})
	if err == nil {
		t.Fatal("expected a non-zero exit to return an error")
	}
	if result == nil || result.Status != core.StatusError {
		t.Fatalf("expected a result with Status=error even on failure, got %#v", result)
	}
}

func TestProcessExecutor_EnvironmentIsIsolated(t *testing.T) {
	exec := NewProcessExecutor(t.TempDir())
	result, err := exec.Execute(context.Background(), &core.ActionRequest{
		ID:      core.ActionId{SubID: "0"},
		Command: []string{"/usr/bin/env"},
		Env:     nil,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(result.Stdout) != "" {
		t.Fatalf("expected an empty environment (no PATH) in an isolated env, got %q", result.Stdout)
	}
}

func TestProcessExecutor_DeclaredEnvIsVisibleToChild(t *testing.T) {
	exec := NewProcessExecutor(t.TempDir())
	result, err := exec.Execute(context.Background(), &core.ActionRequest{
		ID:      core.ActionId{SubID: "0"},
		Command: []string{"/usr/bin/env"},
		Env:     map[string]string{"FOO": "bar"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(result.Stdout) != "FOO=bar\n" {
		t.Fatalf("Stdout = %q, want %q", result.Stdout, "FOO=bar\n")
	}
}

func TestProcessExecutor_CancellationKillsProcess(t *testing.T) {
	exec := NewProcessExecutor(t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := exec.Execute(ctx, &core.ActionRequest{
		ID:      core.ActionId{SubID: "0"},
		Command: []string{"/bin/sh", "-c", "sleep 5"},
	})
	if err == nil {
		t.Fatal("expected cancellation to produce an error")
	}
	if result == nil || result.Status != core.StatusCancelled {
		t.Fatalf("expected Status=cancelled, got %#v", result)
	}
}

func TestProcessExecutor_RejectsUnsafeCommand(t *testing.T) {
	exec := NewProcessExecutor(t.TempDir())
	_, err := exec.Execute(context.Background(), &core.ActionRequest{
		ID:      core.ActionId{SubID: "0"},
		Command: []string{"echo", "a; rm -rf /"},
	})
	if err == nil {
		t.Fatal("expected a shell metacharacter in argv to be rejected before exec")
	}
}
