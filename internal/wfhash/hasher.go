// Package wfhash implements weaveforge's size-tiered sampling file
// fingerprinting: small files are hashed exactly, large files are hashed
// from a fixed, deterministic sample of their bytes, trading strict
// collision resistance on huge files for constant-ish latency.
package wfhash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	sha256simd "github.com/minio/sha256-simd"
)

const (
	exactTierLimit   = 4 * 1024         // <= 4KiB: whole-file hash, no chunking
	chunkedTierLimit = 1024 * 1024      // <= 1MiB: chunk-streamed, still exact
	sampledTierLimit = 100 * 1024 * 1024 // <= 100MiB: probabilistic sample hash

	sampleEdgeSize      = 256 * 1024
	sampleInteriorSize  = 16 * 1024
	sampleInteriorCount = 8

	aggressiveEdgeSize      = 512 * 1024
	aggressiveInteriorSize  = 32 * 1024
	aggressiveInteriorCount = 16

	streamChunkSize = 64 * 1024
)

var simdAvailable bool

func init() {
	// sha256-simd lazily self-detects CPU extensions on first use; Sum256
	// dispatches to the accelerated path automatically where available
	// and falls back to a pure-Go implementation otherwise, so there is
	// no separate capability probe to cache here beyond this guard,
	// which exists so callers can introspect which digest produced a hash.
	simdAvailable = true
}

func newDigest() hash.Hash {
	if simdAvailable {
		return sha256simd.New()
	}
	return sha256.New()
}

// HashFile computes a target's content fingerprint for file at path,
// dispatching to the tier appropriate for its size. The returned string is
// a hex-encoded SHA-256 digest (or SIMD-accelerated equivalent); size is
// always mixed in regardless of tier so a truncated file never collides
// with the original.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()

	switch {
	case size <= exactTierLimit:
		return hashExact(f, size)
	case size <= chunkedTierLimit:
		return hashChunked(f, size)
	case size <= sampledTierLimit:
		return hashSampled(f, size, sampleEdgeSize, sampleInteriorSize, sampleInteriorCount)
	default:
		return hashSampled(f, size, aggressiveEdgeSize, aggressiveInteriorSize, aggressiveInteriorCount)
	}
}

func hashExact(f *os.File, size int64) (string, error) {
	h := newDigest()
	writeSize(h, size)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reading for exact hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashChunked(f *os.File, size int64) (string, error) {
	h := newDigest()
	writeSize(h, size)
	buf := make([]byte, streamChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("reading for chunked hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashSampled hashes size || first edgeSize bytes || last edgeSize bytes ||
// interiorCount evenly spaced interiorSize-byte samples, in that fixed
// order, so the same file always produces the same digest regardless of
// how it is read.
func hashSampled(f *os.File, size int64, edgeSize, interiorSize int64, interiorCount int) (string, error) {
	h := newDigest()
	writeSize(h, size)

	if err := copyRange(h, f, 0, edgeSize); err != nil {
		return "", err
	}
	if err := copyRange(h, f, size-edgeSize, edgeSize); err != nil {
		return "", err
	}

	interiorSpan := size - 2*edgeSize
	if interiorSpan < 0 {
		interiorSpan = 0
	}
	for i := 0; i < interiorCount; i++ {
		offset := edgeSize + (interiorSpan*int64(i))/int64(interiorCount)
		if err := copyRange(h, f, offset, interiorSize); err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyRange(h hash.Hash, f *os.File, offset, length int64) error {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to %d: %w", offset, err)
	}
	if _, err := io.CopyN(h, f, length); err != nil && err != io.EOF {
		return fmt.Errorf("reading %d bytes at %d: %w", length, offset, err)
	}
	return nil
}

func writeSize(h hash.Hash, size int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(size))
	h.Write(buf[:])
}

// MetadataFingerprint computes the cheap Tier-1 fingerprint H(path, size,
// mtime) used to decide whether Tier-2 content hashing can be skipped. It
// uses xxhash rather than a cryptographic digest since this tier only needs
// collision-avoidance at microsecond latency, never preimage resistance.
func MetadataFingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	d := xxhash.New()
	io.WriteString(d, path)
	writeSize(d, info.Size())
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(info.ModTime().UnixNano()))
	d.Write(buf[:])
	return hex.EncodeToString(d.Sum(nil)), nil
}

// CombineSorted mixes a set of already-computed hashes into one, after
// sorting them, so the result is independent of the order hashes were
// produced in. Used for dep_output_hashes and source_fingerprints in the
// input_hash formula.
func CombineSorted(parts []string) string {
	sorted := append([]string(nil), parts...)
	sort.Strings(sorted)
	h := newDigest()
	for _, p := range sorted {
		writeSize(h, int64(len(p)))
		io.WriteString(h, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
