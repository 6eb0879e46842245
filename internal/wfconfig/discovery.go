package wfconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"weaveforge/internal/core"
)

var (
	ErrNoGraphFound     = errors.New("no graph found")
	ErrAmbiguousGraphs  = errors.New("ambiguous graph discovery")
	ErrInvalidGraph     = errors.New("invalid graph")
	ErrInvalidGraphPath = errors.New("invalid graph path")
)

// DiscoverGraph resolves and parses a graph file using a strict,
// deterministic precedence chain:
//
//  1. explicit CLI path, if provided
//  2. <projectRoot>/graphs/
//  3. <projectRoot>/.weaveforge/graphs/
//
// First match wins; ties within a precedence level fail discovery rather
// than guess.
func DiscoverGraph(projectRoot, explicitCLIPath string) ([]core.Target, string, error) {
	path, err := discoverPath(projectRoot, explicitCLIPath)
	if err != nil {
		return nil, "", err
	}
	targets, err := parseGraphAt(path)
	if err != nil {
		return nil, "", err
	}
	return targets, path, nil
}

func discoverPath(projectRoot, explicitCLIPath string) (string, error) {
	root := strings.TrimSpace(projectRoot)
	if root == "" {
		return "", fmt.Errorf("%w: project root is required", ErrInvalidGraphPath)
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}

	if strings.TrimSpace(explicitCLIPath) != "" {
		return resolveUnderRoot(rootAbs, explicitCLIPath)
	}

	if p, ok, err := discoverSingleCandidate(filepath.Join(rootAbs, "graphs")); err != nil {
		return "", err
	} else if ok {
		return p, nil
	}

	if p, ok, err := discoverSingleCandidate(filepath.Join(rootAbs, ".weaveforge", "graphs")); err != nil {
		return "", err
	} else if ok {
		return p, nil
	}

	return "", ErrNoGraphFound
}

func resolveUnderRoot(rootAbs, provided string) (string, error) {
	p := strings.TrimSpace(provided)
	if p == "" {
		return "", fmt.Errorf("%w: empty graph path", ErrInvalidGraphPath)
	}

	var abs string
	if filepath.IsAbs(p) {
		abs = filepath.Clean(p)
	} else {
		abs = filepath.Join(rootAbs, filepath.Clean(p))
	}

	abs, err := filepath.Abs(abs)
	if err != nil {
		return "", fmt.Errorf("%w: resolve path: %v", ErrInvalidGraphPath, err)
	}

	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil {
		return "", fmt.Errorf("%w: resolve relative: %v", ErrInvalidGraphPath, err)
	}
	if rel != "." && (strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == "..") {
		return "", fmt.Errorf("%w: path escapes project root", ErrInvalidGraphPath)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidGraphPath, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: path is a directory", ErrInvalidGraphPath)
	}

	return abs, nil
}

func discoverSingleCandidate(dir string) (string, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	candidates := make([]string, 0)
	for _, name := range names {
		full := filepath.Join(dir, name)
		info, err := os.Stat(full)
		if err != nil {
			return "", false, fmt.Errorf("stat candidate %s: %w", full, err)
		}
		if info.IsDir() {
			continue
		}
		candidates = append(candidates, full)
	}

	if len(candidates) == 0 {
		return "", false, nil
	}
	if len(candidates) > 1 {
		return "", false, fmt.Errorf("%w: %s", ErrAmbiguousGraphs, strings.Join(candidates, ", "))
	}
	return candidates[0], true, nil
}

func parseGraphAt(path string) ([]core.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrInvalidGraph, path, err)
	}
	defer func() { _ = f.Close() }()

	targets, err := ParseGraphFile(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidGraph, path, err)
	}
	return targets, nil
}
