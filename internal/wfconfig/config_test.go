package wfconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWorkspaceConfig_MissingFileReturnsDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := LoadWorkspaceConfig(root)
	if err != nil {
		t.Fatalf("LoadWorkspaceConfig: %v", err)
	}
	want := DefaultWorkspaceConfig()
	if cfg != want {
		t.Fatalf("cfg = %#v, want defaults %#v", cfg, want)
	}
}

func writeWorkspaceConfig(t *testing.T, root, body string) {
	t.Helper()
	dir := filepath.Join(root, ".weaveforge")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "workspace.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoadWorkspaceConfig_OverridesDefaults(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceConfig(t, root, "concurrency: 4\nfailure_policy: keep_going\ngraph_path: graphs/main.json\n")

	cfg, err := LoadWorkspaceConfig(root)
	if err != nil {
		t.Fatalf("LoadWorkspaceConfig: %v", err)
	}
	if cfg.Concurrency != 4 {
		t.Fatalf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.FailurePolicy != "keep_going" {
		t.Fatalf("FailurePolicy = %q", cfg.FailurePolicy)
	}
	if cfg.GraphPath != "graphs/main.json" {
		t.Fatalf("GraphPath = %q", cfg.GraphPath)
	}
	// Untouched fields keep their defaults.
	if cfg.MaxRetryAttempts != 3 {
		t.Fatalf("MaxRetryAttempts = %d, want default 3", cfg.MaxRetryAttempts)
	}
}

func TestLoadWorkspaceConfig_RejectsUnknownKey(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceConfig(t, root, "bogus_key: true\n")

	if _, err := LoadWorkspaceConfig(root); err == nil {
		t.Fatal("expected rejection of unknown config key")
	}
}

func TestLoadWorkspaceConfig_RejectsInvalidFailurePolicy(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceConfig(t, root, "failure_policy: retry_forever\n")

	if _, err := LoadWorkspaceConfig(root); err == nil {
		t.Fatal("expected rejection of unknown failure_policy value")
	}
}

func TestWriteDefaultWorkspaceConfig_RoundTrips(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".weaveforge"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	cfg := DefaultWorkspaceConfig()
	cfg.Concurrency = 8
	cfg.GraphPath = "graphs/main.json"

	if err := WriteDefaultWorkspaceConfig(root, cfg); err != nil {
		t.Fatalf("WriteDefaultWorkspaceConfig: %v", err)
	}

	got, err := LoadWorkspaceConfig(root)
	if err != nil {
		t.Fatalf("LoadWorkspaceConfig: %v", err)
	}
	if got != cfg {
		t.Fatalf("got = %#v, want %#v", got, cfg)
	}
}

func TestLoadWorkspaceConfig_RejectsNegativeConcurrency(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceConfig(t, root, "concurrency: -1\n")

	if _, err := LoadWorkspaceConfig(root); err == nil {
		t.Fatal("expected rejection of negative concurrency")
	}
}
