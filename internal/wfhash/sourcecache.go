package wfhash

import "sync"

// SourceCache memoizes per-path content fingerprints behind the cheap Tier-1
// metadata probe: a path whose (path, size, mtime) triple is unchanged since
// the last call never has its content re-read or re-hashed. The memo lives
// in memory only: it is not persisted, so each new process starts empty and
// hashes every source it is asked about once.
//
// Shared by every call on one Worker, so within a process a source file
// pulled in by two different targets is fingerprinted at most once.
type SourceCache struct {
	mu      sync.Mutex
	entries map[string]sourceEntry
}

type sourceEntry struct {
	metadata string
	content  string
}

// NewSourceCache returns an empty cache, ready for concurrent use.
func NewSourceCache() *SourceCache {
	return &SourceCache{entries: make(map[string]sourceEntry)}
}

// Fingerprint returns path's content fingerprint, recomputing it with
// HashFile only when MetadataFingerprint disagrees with what was last
// observed for path.
func (c *SourceCache) Fingerprint(path string) (string, error) {
	meta, err := MetadataFingerprint(path)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if e, ok := c.entries[path]; ok && e.metadata == meta {
		c.mu.Unlock()
		return e.content, nil
	}
	c.mu.Unlock()

	content, err := HashFile(path)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[path] = sourceEntry{metadata: meta, content: content}
	c.mu.Unlock()

	return content, nil
}
