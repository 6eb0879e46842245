package wfcache

import (
	"os"
	"path/filepath"

	"weaveforge/internal/wferrors"
)

// writeFileAtomic writes data to a temp file in the same directory as path,
// fsyncs it, then renames it into place, so a crash mid-write never leaves
// a partially written file at path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "creating dir " + dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "creating temp file", Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "writing temp file", Err: err}
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "chmod temp file", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "fsync temp file", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "closing temp file", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &wferrors.CacheError{Code: wferrors.IoFailed, Msg: "renaming into place", Err: err}
	}
	committed = true
	return fsyncDir(dir)
}

// fsyncDir fsyncs a directory so a prior rename into it is durable, not
// just visible. Best-effort: some platforms/filesystems reject O_RDONLY
// fsync on directories, which is not treated as fatal.
func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	_ = d.Sync()
	return nil
}
