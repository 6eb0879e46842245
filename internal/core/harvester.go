// Package core defines the domain models for deterministic task execution.
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Harvester collects artifacts from a target's declared output paths once
// its command has exited successfully. It never infers what changed — only
// paths a Target explicitly names in ActionRequest.Outputs become artifacts,
// so a build script writing scratch files alongside its real output doesn't
// silently pollute the cache entry.
type Harvester struct {
	// BaseDir is the working directory where outputs are relative to.
	BaseDir string

	// Normalizer strips nondeterministic bytes (timestamps, PIDs, ...) from
	// artifact content before it is hashed and stored. If nil, raw bytes
	// are kept as-is.
	Normalizer OutputNormalizer
}

// OutputNormalizer removes nondeterministic data from output content so two
// builds of identical inputs produce bitwise-identical cached artifacts.
type OutputNormalizer interface {
	Normalize(content []byte) []byte
}

// NewHarvester creates a new Harvester with the given base directory.
func NewHarvester(baseDir string) *Harvester {
	return &Harvester{
		BaseDir:    baseDir,
		Normalizer: nil,
	}
}

// NewHarvesterWithNormalizer creates a Harvester with a custom normalizer.
func NewHarvesterWithNormalizer(baseDir string, normalizer OutputNormalizer) *Harvester {
	return &Harvester{
		BaseDir:    baseDir,
		Normalizer: normalizer,
	}
}

// Harvest collects, sorts, and (optionally) normalizes the content behind
// every declared output path. A directory output expands to every file
// beneath it, recursively. A declared path that does not exist means the
// command claimed to produce an output it did not — that is a hard error,
// never a silently-empty artifact.
func (h *Harvester) Harvest(declaredOutputs []string) (*ArtifactSet, error) {
	if len(declaredOutputs) == 0 {
		return &ArtifactSet{Artifacts: []Artifact{}}, nil
	}

	// A set, not a slice: declared outputs commonly overlap (a directory
	// and one of its files both named), and de-duplicating up front means
	// the sort below never has to special-case repeats.
	pathSet := make(map[string]struct{})

	for _, output := range declaredOutputs {
		fullPath := output
		if !filepath.IsAbs(output) {
			fullPath = filepath.Join(h.BaseDir, output)
		}

		info, err := os.Stat(fullPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("declared output does not exist: %s", output)
			}
			return nil, fmt.Errorf("stat output %q: %w", output, err)
		}

		if info.IsDir() {
			files, err := h.collectFilesFromDir(fullPath)
			if err != nil {
				return nil, fmt.Errorf("collecting files from %q: %w", output, err)
			}
			for _, f := range files {
				pathSet[f] = struct{}{}
			}
			continue
		}
		pathSet[fullPath] = struct{}{}
	}

	allPaths := make([]string, 0, len(pathSet))
	for p := range pathSet {
		allPaths = append(allPaths, p)
	}
	sort.Strings(allPaths)

	artifacts := make([]Artifact, 0, len(allPaths))
	for _, path := range allPaths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading artifact %q: %w", path, err)
		}

		if h.Normalizer != nil {
			content = h.Normalizer.Normalize(content)
		}

		artifacts = append(artifacts, Artifact{
			Path:    filepath.ToSlash(path),
			Content: content,
		})
	}

	return &ArtifactSet{Artifacts: artifacts}, nil
}

// collectFilesFromDir recursively lists every file beneath dir.
func (h *Harvester) collectFilesFromDir(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
