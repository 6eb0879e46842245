// Package wfcache implements the content-addressed action cache: a single
// binary index (entries.bin) plus content-addressed blob storage, with
// weighted eviction, a keyed integrity signature, and single-flight
// deduplication so two goroutines racing on the same fingerprint only
// produce the result once.
package wfcache

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"weaveforge/internal/core"
	"weaveforge/internal/wferrors"
)

// Weights controls the eviction score w_age*age + w_cold*idle + w_big*size.
// Default weights lean toward LRU (idle time dominates).
type Weights struct {
	Age  float64
	Cold float64
	Big  float64
}

var DefaultWeights = Weights{Age: 0.1, Cold: 1.0, Big: 0.0001}

// Options configures a Cache.
type Options struct {
	MaxEntries int
	MaxBytes   int64
	Weights    Weights
}

// Cache is the two-tier action cache. Tier 1 (cheap metadata fingerprint)
// lives upstream in the wfhash package; by the time an ActionId reaches
// here its InputHash already reflects a decision about whether full content
// hashing was needed, so Cache itself only ever does the Tier-2,
// content-addressed lookup.
type Cache struct {
	dir     string
	opts    Options
	signKey [32]byte

	mu    sync.Mutex
	index map[string]*record

	sf singleflight.Group
}

type record struct {
	id         core.ActionId
	outputs    []core.OutputArtifact
	outputHash string
	createdAt  int64
	lastAccess int64
	hitCount   uint64
	sizeBytes  uint64
	signature  [32]byte
}

// Open loads (or initializes) a cache rooted at dir. If dir/entries.bin does
// not exist, a fresh empty index is created and a random per-workspace
// signing key is generated and stored alongside it.
func Open(dir string, opts Options) (*Cache, error) {
	if opts.MaxEntries == 0 {
		opts.MaxEntries = 100_000
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = 10 << 30 // 10GiB
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "creating cache dir", Err: err}
	}

	c := &Cache{dir: dir, opts: opts, index: make(map[string]*record)}

	key, err := loadOrCreateSignKey(filepath.Join(dir, "signkey"))
	if err != nil {
		return nil, err
	}
	c.signKey = key

	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

func loadOrCreateSignKey(path string) ([32]byte, error) {
	var key [32]byte
	data, err := os.ReadFile(path)
	if err == nil && len(data) == 32 {
		copy(key[:], data)
		return key, nil
	}
	if _, err := rand.Read(key[:]); err != nil {
		return key, &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "generating sign key", Err: err}
	}
	if err := writeFileAtomic(path, key[:], 0o600); err != nil {
		return key, err
	}
	return key, nil
}

// IsCached reports whether an entry exists for id without touching LastAccess.
func (c *Cache) IsCached(id core.ActionId) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[id.String()]
	return ok
}

// Lookup retrieves a cached result for id, verifying its integrity
// signature. A signature mismatch is treated as a cache miss (CacheError is
// returned alongside found=false so callers can log it, never as fatal).
func (c *Cache) Lookup(id core.ActionId) (*core.ActionResult, bool, error) {
	key := id.String()

	c.mu.Lock()
	rec, ok := c.index[key]
	c.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	if !c.verifySignature(rec) {
		c.mu.Lock()
		delete(c.index, key)
		c.mu.Unlock()
		return nil, false, &wferrors.CacheError{Code: wferrors.IntegrityFailed, Msg: key}
	}

	stdout, stderr, err := c.readStreams(rec)
	if err != nil {
		return nil, false, &wferrors.CacheError{Code: wferrors.CorruptEntry, Msg: key, Err: err}
	}

	c.mu.Lock()
	rec.hitCount++
	rec.lastAccess = nowNanos()
	c.mu.Unlock()

	return &core.ActionResult{
		ID:      rec.id,
		Status:  core.StatusSuccess,
		Outputs: rec.outputs,
		Stdout:  stdout,
		Stderr:  stderr,
	}, true, nil
}

// Store commits a result to the cache, deduplicating concurrent stores for
// the same fingerprint via single-flight so only one goroutine actually
// writes the blobs and index entry.
func (c *Cache) Store(id core.ActionId, result *core.ActionResult, outputContents map[string][]byte) error {
	key := id.String()
	_, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return nil, c.store(id, result, outputContents)
	})
	return err
}

func (c *Cache) store(id core.ActionId, result *core.ActionResult, outputContents map[string][]byte) error {
	if err := c.writeStreams(id, result.Stdout, result.Stderr); err != nil {
		return err
	}

	var size uint64
	var outputHashes []string
	for _, content := range outputContents {
		h := contentHash(content)
		if err := c.writeBlob(h, content); err != nil {
			return err
		}
		size += uint64(len(content))
		outputHashes = append(outputHashes, h)
	}
	sort.Strings(outputHashes)

	// Each output's Hash and Size are recomputed from the stored content, so
	// RestoreOutputs always finds the blob under the hash it looks up.
	outputs := append([]core.OutputArtifact(nil), result.Outputs...)
	for i, o := range outputs {
		if content, ok := outputContents[o.Path]; ok {
			outputs[i].Hash = contentHash(content)
			outputs[i].Size = int64(len(content))
		}
	}

	rec := &record{
		id:         id,
		outputs:    outputs,
		outputHash: contentHash([]byte(fmt.Sprint(outputHashes))),
		createdAt:  nowNanos(),
		lastAccess: nowNanos(),
		sizeBytes:  size,
	}
	rec.signature = c.sign(rec)

	c.mu.Lock()
	c.index[key(id)] = rec
	c.mu.Unlock()

	return c.maybeEvict()
}

func key(id core.ActionId) string { return id.String() }

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)
}

func (c *Cache) sign(rec *record) [32]byte {
	mac := hmac.New(sha256.New, c.signKey[:])
	mac.Write([]byte(rec.id.String()))
	mac.Write([]byte(rec.outputHash))
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func (c *Cache) verifySignature(rec *record) bool {
	want := c.sign(rec)
	return hmac.Equal(want[:], rec.signature[:])
}

// maybeEvict runs the weighted eviction pass until both bounds hold.
func (c *Cache) maybeEvict() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := func() (int, uint64) {
		var bytes uint64
		for _, r := range c.index {
			bytes += r.sizeBytes
		}
		return len(c.index), bytes
	}

	entries, bytes := total()
	if entries <= c.opts.MaxEntries && bytes <= uint64(c.opts.MaxBytes) {
		return nil
	}

	type scored struct {
		key   string
		score float64
	}
	now := nowNanos()
	var candidates []scored
	for k, r := range c.index {
		age := float64(now-r.createdAt) / 1e9
		idle := float64(now-r.lastAccess) / 1e9
		score := c.opts.Weights.Age*age + c.opts.Weights.Cold*idle + c.opts.Weights.Big*float64(r.sizeBytes)
		candidates = append(candidates, scored{k, score})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	for _, cand := range candidates {
		if entries <= c.opts.MaxEntries && bytes <= uint64(c.opts.MaxBytes) {
			break
		}
		bytes -= c.index[cand.key].sizeBytes
		entries--
		delete(c.index, cand.key)
	}
	return nil
}

// Flush persists the in-memory index to entries.bin.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveIndex()
}

// Clear removes every entry and blob from the cache.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*record)
	if err := os.RemoveAll(filepath.Join(c.dir, "objects")); err != nil {
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "clearing objects", Err: err}
	}
	return c.saveIndex()
}

func nowNanos() int64 {
	return wallClock()
}
