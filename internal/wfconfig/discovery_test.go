package wfconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeGraphFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(validGraphDoc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDiscoverGraph_ExplicitPathWins(t *testing.T) {
	root := t.TempDir()
	writeGraphFile(t, filepath.Join(root, "graphs", "main.json"))
	explicit := filepath.Join(root, "custom.json")
	if err := os.WriteFile(explicit, []byte(validGraphDoc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, path, err := DiscoverGraph(root, "custom.json")
	if err != nil {
		t.Fatalf("DiscoverGraph: %v", err)
	}
	if path != explicit {
		t.Fatalf("path = %q, want %q", path, explicit)
	}
}

func TestDiscoverGraph_FallsBackToGraphsDir(t *testing.T) {
	root := t.TempDir()
	want := filepath.Join(root, "graphs", "main.json")
	writeGraphFile(t, want)

	_, path, err := DiscoverGraph(root, "")
	if err != nil {
		t.Fatalf("DiscoverGraph: %v", err)
	}
	if path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
}

func TestDiscoverGraph_FallsBackToWorkspaceGraphsDir(t *testing.T) {
	root := t.TempDir()
	want := filepath.Join(root, ".weaveforge", "graphs", "main.json")
	writeGraphFile(t, want)

	_, path, err := DiscoverGraph(root, "")
	if err != nil {
		t.Fatalf("DiscoverGraph: %v", err)
	}
	if path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
}

func TestDiscoverGraph_NoneFoundErrors(t *testing.T) {
	root := t.TempDir()
	if _, _, err := DiscoverGraph(root, ""); err == nil {
		t.Fatal("expected ErrNoGraphFound")
	}
}

func TestDiscoverGraph_AmbiguousCandidatesErrors(t *testing.T) {
	root := t.TempDir()
	writeGraphFile(t, filepath.Join(root, "graphs", "a.json"))
	writeGraphFile(t, filepath.Join(root, "graphs", "b.json"))

	if _, _, err := DiscoverGraph(root, ""); err == nil {
		t.Fatal("expected ambiguous discovery error")
	}
}

func TestDiscoverGraph_ExplicitPathEscapingRootRejected(t *testing.T) {
	root := t.TempDir()
	if _, _, err := DiscoverGraph(root, "../../etc/passwd"); err == nil {
		t.Fatal("expected rejection of a path escaping the project root")
	}
}

func TestDiscoverGraph_InvalidGraphAtExplicitPathErrors(t *testing.T) {
	root := t.TempDir()
	bad := filepath.Join(root, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := DiscoverGraph(root, "bad.json"); err == nil {
		t.Fatal("expected parse error surfaced as invalid graph")
	}
}
