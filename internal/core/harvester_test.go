package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHarvest_OnlyDeclaredOutputsCaptured(t *testing.T) {
	tmpDir := t.TempDir()

	declaredFile := filepath.Join(tmpDir, "declared.txt")
	undeclaredFile := filepath.Join(tmpDir, "undeclared.txt")
	if err := os.WriteFile(declaredFile, []byte("declared content"), 0644); err != nil {
		t.Fatalf("failed to write declared file: %v", err)
	}
	if err := os.WriteFile(undeclaredFile, []byte("undeclared content"), 0644); err != nil {
		t.Fatalf("failed to write undeclared file: %v", err)
	}

	harvester := NewHarvester(tmpDir)
	result, err := harvester.Harvest([]string{"declared.txt"})
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}

	if len(result.Artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(result.Artifacts))
	}
	if string(result.Artifacts[0].Content) != "declared content" {
		t.Errorf("wrong content: %s", result.Artifacts[0].Content)
	}
}

func TestHarvest_DirectoryRecursive(t *testing.T) {
	tmpDir := t.TempDir()

	outDir := filepath.Join(tmpDir, "output")
	subDir := filepath.Join(outDir, "subdir")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("failed to create dirs: %v", err)
	}

	files := map[string]string{
		filepath.Join(outDir, "root.txt"):    "root content",
		filepath.Join(subDir, "nested.txt"):  "nested content",
		filepath.Join(subDir, "another.txt"): "another content",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}

	// A file outside the declared output directory must never be swept in.
	outsideFile := filepath.Join(tmpDir, "outside.txt")
	if err := os.WriteFile(outsideFile, []byte("outside"), 0644); err != nil {
		t.Fatalf("failed to write outside file: %v", err)
	}

	harvester := NewHarvester(tmpDir)
	result, err := harvester.Harvest([]string{"output"})
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}

	if len(result.Artifacts) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(result.Artifacts))
	}
	for _, a := range result.Artifacts {
		if filepath.Base(a.Path) == "outside.txt" {
			t.Error("outside.txt should not be captured")
		}
	}
}

func TestHarvest_SortedOrder(t *testing.T) {
	tmpDir := t.TempDir()

	files := []string{"zebra.txt", "apple.txt", "mango.txt"}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(name), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	harvester := NewHarvester(tmpDir)
	result, err := harvester.Harvest([]string{"zebra.txt", "apple.txt", "mango.txt"})
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}

	expectedOrder := []string{"apple.txt", "mango.txt", "zebra.txt"}
	for i, expected := range expectedOrder {
		actual := filepath.Base(result.Artifacts[i].Path)
		if actual != expected {
			t.Errorf("position %d: expected %s, got %s", i, expected, actual)
		}
	}
}

func TestHarvest_MissingOutputFails(t *testing.T) {
	harvester := NewHarvester(t.TempDir())

	if _, err := harvester.Harvest([]string{"missing.txt"}); err == nil {
		t.Error("expected error for missing output")
	}
}

func TestHarvest_EmptyOutputs(t *testing.T) {
	harvester := NewHarvester("/tmp")
	result, err := harvester.Harvest([]string{})
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}
	if len(result.Artifacts) != 0 {
		t.Errorf("expected 0 artifacts, got %d", len(result.Artifacts))
	}
}

func TestHarvest_DeduplicatesOverlapping(t *testing.T) {
	tmpDir := t.TempDir()

	outDir := filepath.Join(tmpDir, "output")
	if err := os.Mkdir(outDir, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	filePath := filepath.Join(outDir, "file.txt")
	if err := os.WriteFile(filePath, []byte("content"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	harvester := NewHarvester(tmpDir)
	// Declare both the directory and the file within it.
	result, err := harvester.Harvest([]string{"output", "output/file.txt"})
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}
	if len(result.Artifacts) != 1 {
		t.Errorf("expected 1 artifact (deduplicated), got %d", len(result.Artifacts))
	}
}

func TestHarvest_NormalizesPathSeparators(t *testing.T) {
	tmpDir := t.TempDir()

	subDir := filepath.Join(tmpDir, "sub")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}
	filePath := filepath.Join(subDir, "file.txt")
	if err := os.WriteFile(filePath, []byte("content"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	harvester := NewHarvester(tmpDir)
	result, err := harvester.Harvest([]string{"sub/file.txt"})
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}
	if len(result.Artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(result.Artifacts))
	}
	for _, c := range result.Artifacts[0].Path {
		if c == '\\' {
			t.Error("path contains backslash")
			break
		}
	}
}

func TestHarvest_WithNormalizer(t *testing.T) {
	tmpDir := t.TempDir()

	filePath := filepath.Join(tmpDir, "output.log")
	content := "Build started at 2024-12-13T10:30:45Z\nCompleted in 1.234s\n"
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	harvester := NewHarvesterWithNormalizer(tmpDir, NewDefaultNormalizer())
	result, err := harvester.Harvest([]string{"output.log"})
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}

	normalized := string(result.Artifacts[0].Content)
	if !strings.Contains(normalized, "<TIMESTAMP>") {
		t.Errorf("timestamp not normalized: %s", normalized)
	}
	if !strings.Contains(normalized, "<DURATION>") {
		t.Errorf("duration not normalized: %s", normalized)
	}
}

func TestHarvest_OnlyHarvestsWhatWasDeclared(t *testing.T) {
	tmpDir := t.TempDir()

	declared := filepath.Join(tmpDir, "declared.txt")
	undeclared := filepath.Join(tmpDir, "modified-but-undeclared.txt")
	if err := os.WriteFile(declared, []byte("declared"), 0644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if err := os.WriteFile(undeclared, []byte("undeclared"), 0644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	harvester := NewHarvester(tmpDir)
	result, err := harvester.Harvest([]string{"declared.txt"})
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}

	if len(result.Artifacts) != 1 {
		t.Errorf("expected exactly 1 artifact, got %d", len(result.Artifacts))
	}
	for _, a := range result.Artifacts {
		if filepath.Base(a.Path) == "modified-but-undeclared.txt" {
			t.Error("undeclared file was captured")
		}
	}
}
