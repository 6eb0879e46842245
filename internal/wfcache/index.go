package wfcache

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"weaveforge/internal/core"
	"weaveforge/internal/wferrors"
)

const (
	entriesMagic   = "BCA1"
	entriesVersion = uint32(1)
)

func (c *Cache) indexPath() string { return filepath.Join(c.dir, "entries.bin") }

// loadIndex reads entries.bin. A truncated final entry (the write crashed
// mid-append before the atomic-rename commit could have happened, or the
// file was corrupted post-write) is discarded rather than failing the
// whole load: everything up to the truncation point is still valid.
func (c *Cache) loadIndex() error {
	data, err := os.ReadFile(c.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "reading entries.bin", Err: err}
	}

	r := bytes.NewReader(data)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || string(magic[:]) != entriesMagic {
		return &wferrors.CacheError{Code: wferrors.CorruptEntry, Msg: "bad magic"}
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return &wferrors.CacheError{Code: wferrors.CorruptEntry, Msg: "reading version", Err: err}
	}
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return &wferrors.CacheError{Code: wferrors.CorruptEntry, Msg: "reading count", Err: err}
	}

	for i := uint64(0); i < count; i++ {
		rec, err := readRecord(r)
		if err != nil {
			// Discard this and any remaining entries; everything read so
			// far is kept.
			break
		}
		c.index[rec.id.String()] = rec
	}
	return nil
}

func readRecord(r *bytes.Reader) (*record, error) {
	id, err := readActionId(r)
	if err != nil {
		return nil, err
	}
	outputs, err := readOutputs(r)
	if err != nil {
		return nil, err
	}
	outputHash, err := readLP(r)
	if err != nil {
		return nil, err
	}

	rec := &record{id: id, outputs: outputs, outputHash: string(outputHash)}

	for _, field := range []*int64{&rec.createdAt, &rec.lastAccess} {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return nil, err
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.hitCount); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.sizeBytes); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, rec.signature[:]); err != nil {
		return nil, err
	}
	return rec, nil
}

func readLP(r *bytes.Reader) ([]byte, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("length-prefixed field exceeds remaining data")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readActionId(r *bytes.Reader) (core.ActionId, error) {
	s, err := readLP(r)
	if err != nil {
		return core.ActionId{}, err
	}
	return parseActionIdString(string(s))
}

func readOutputs(r *bytes.Reader) ([]core.OutputArtifact, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	outs := make([]core.OutputArtifact, 0, n)
	for i := uint64(0); i < n; i++ {
		path, err := readLP(r)
		if err != nil {
			return nil, err
		}
		hash, err := readLP(r)
		if err != nil {
			return nil, err
		}
		var size int64
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, err
		}
		outs = append(outs, core.OutputArtifact{Path: string(path), Hash: string(hash), Size: size})
	}
	return outs, nil
}

// saveIndex writes the full index to a temp file, fsyncs it, then renames it
// into place over entries.bin, so a crash mid-write never leaves a
// half-written entries.bin at the canonical path.
func (c *Cache) saveIndex() error {
	tmp, err := os.CreateTemp(c.dir, "entries.bin.tmp.*")
	if err != nil {
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "creating temp index", Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	w.WriteString(entriesMagic)
	binary.Write(w, binary.LittleEndian, entriesVersion)
	binary.Write(w, binary.LittleEndian, uint64(len(c.index)))

	for _, rec := range c.index {
		writeRecord(w, rec)
	}
	if err := w.Flush(); err != nil {
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "flushing index", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "fsyncing index", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "closing index", Err: err}
	}
	if err := os.Rename(tmpName, c.indexPath()); err != nil {
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "committing index", Err: err}
	}
	committed = true
	return fsyncDir(c.dir)
}

func writeRecord(w io.Writer, rec *record) {
	writeLP(w, []byte(rec.id.String()))

	binary.Write(w, binary.LittleEndian, uint64(len(rec.outputs)))
	for _, o := range rec.outputs {
		writeLP(w, []byte(o.Path))
		writeLP(w, []byte(o.Hash))
		binary.Write(w, binary.LittleEndian, o.Size)
	}
	writeLP(w, []byte(rec.outputHash))

	binary.Write(w, binary.LittleEndian, rec.createdAt)
	binary.Write(w, binary.LittleEndian, rec.lastAccess)
	binary.Write(w, binary.LittleEndian, rec.hitCount)
	binary.Write(w, binary.LittleEndian, rec.sizeBytes)
	w.Write(rec.signature[:])
}

func writeLP(w io.Writer, b []byte) {
	binary.Write(w, binary.LittleEndian, uint64(len(b)))
	w.Write(b)
}

// parseActionIdString is the left inverse of core.ActionId.String(), used
// only for index round-tripping.
func parseActionIdString(s string) (core.ActionId, error) {
	parts := splitN(s, '#', 4)
	if len(parts) != 4 {
		return core.ActionId{}, fmt.Errorf("malformed action id %q", s)
	}
	targetID, err := core.ParseTargetId(parts[0])
	if err != nil {
		return core.ActionId{}, err
	}
	return core.ActionId{
		TargetID:   targetID,
		ActionType: core.ActionType(parts[1]),
		SubID:      parts[2],
		InputHash:  parts[3],
	}, nil
}

func splitN(s string, sep byte, n int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
