package wfcache

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"weaveforge/internal/core"
	"weaveforge/internal/wferrors"
)

// writeBlob stores content under objects/<hash[:2]>/<hash>, compressed with
// zstd when the content is large enough that compression is worth the CPU
// (small outputs are stored raw to avoid per-entry framing overhead). A
// compressed blob's file name carries a .zst suffix.
func (c *Cache) writeBlob(hash string, content []byte) error {
	path := c.blobPath(hash)
	if _, err := os.Stat(path); err == nil {
		return nil // already present, content-addressed so it's identical
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "creating blob dir", Err: err}
	}

	payload := content
	if len(content) > 4096 {
		enc, err := zstd.NewWriter(nil)
		if err == nil {
			payload = enc.EncodeAll(content, nil)
			_ = enc.Close()
			return writeFileAtomic(path+".zst", payload, 0o644)
		}
	}
	return writeFileAtomic(path, payload, 0o644)
}

func (c *Cache) readBlob(hash string) ([]byte, error) {
	if data, err := os.ReadFile(c.blobPath(hash) + ".zst"); err == nil {
		dec, derr := zstd.NewReader(nil)
		if derr != nil {
			return nil, &wferrors.CacheError{Code: wferrors.CorruptEntry, Msg: hash, Err: derr}
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, &wferrors.CacheError{Code: wferrors.CorruptEntry, Msg: hash, Err: err}
		}
		return out, nil
	}
	data, err := os.ReadFile(c.blobPath(hash))
	if err != nil {
		return nil, &wferrors.CacheError{Code: wferrors.IoFailed, Msg: hash, Err: err}
	}
	return data, nil
}

// RestoreOutputs writes a cache hit's declared outputs back to the
// workspace rooted at workDir, skipping any file already present with
// matching content (compared by hash, not mtime) so a replay never touches
// a file's mtime unnecessarily.
func (c *Cache) RestoreOutputs(workDir string, rec *core.ActionResult) error {
	for _, out := range rec.Outputs {
		content, err := c.readBlob(out.Hash)
		if err != nil {
			return &wferrors.CacheError{Code: wferrors.CorruptEntry, Msg: out.Path, Err: err}
		}
		dest := filepath.Join(workDir, out.Path)
		if existing, err := os.ReadFile(dest); err == nil {
			if sha256.Sum256(existing) == sha256.Sum256(content) {
				continue
			}
		}
		if err := writeFileAtomic(dest, content, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) blobPath(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(c.dir, "objects", hash)
	}
	return filepath.Join(c.dir, "objects", hash[:2], hash)
}

func (c *Cache) writeStreams(id interface{ String() string }, stdout, stderr []byte) error {
	base := filepath.Join(c.dir, "streams", safeName(id.String()))
	if err := os.MkdirAll(base, 0o755); err != nil {
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "creating stream dir", Err: err}
	}
	if err := writeFileAtomic(filepath.Join(base, "stdout"), stdout, 0o644); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(base, "stderr"), stderr, 0o644)
}

func (c *Cache) readStreams(rec *record) (stdout, stderr []byte, err error) {
	base := filepath.Join(c.dir, "streams", safeName(rec.id.String()))
	stdout, err = os.ReadFile(filepath.Join(base, "stdout"))
	if err != nil {
		return nil, nil, err
	}
	stderr, err = os.ReadFile(filepath.Join(base, "stderr"))
	if err != nil {
		return nil, nil, err
	}
	return stdout, stderr, nil
}

// safeName turns an ActionId string into a filesystem-safe, collision-free
// directory name.
func safeName(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}
