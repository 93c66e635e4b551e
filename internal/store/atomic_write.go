package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// ErrAtomicWriteDirSync indicates the parent directory could not be synced
// after rename. The new file is in place but may not survive a crash.
var ErrAtomicWriteDirSync = errors.New("dir sync")

// AtomicWriter replaces files through a synced temp file and a rename, so
// readers see either the old or the new content.
type AtomicWriter struct {
	fs      FS
	perm    os.FileMode
	syncDir bool
}

// NewAtomicWriter creates an AtomicWriter writing files with perm.
// Panics if fs is nil.
func NewAtomicWriter(fs FS, perm os.FileMode, syncDir bool) *AtomicWriter {
	if fs == nil {
		panic("fs is nil")
	}

	return &AtomicWriter{fs: fs, perm: perm, syncDir: syncDir}
}

// Write stores everything read from r at path.
//
// If only the final directory sync fails, the returned error satisfies
// errors.Is(err, ErrAtomicWriteDirSync).
func (w *AtomicWriter) Write(path string, r io.Reader) error {
	return w.WriteWithMTime(path, r, time.Time{})
}

// WriteWithMTime is Write with the file's modification time set before it
// is renamed into place. A zero mtime leaves it to the filesystem.
func (w *AtomicWriter) WriteWithMTime(path string, r io.Reader, mtime time.Time) error {
	dir, base := filepath.Split(path)
	if base == "" || base == "." {
		return fmt.Errorf("path is invalid: %q", path)
	}

	if dir == "" {
		dir = "."
	}

	dir = filepath.Clean(dir)

	tmp, tmpPath, err := createTempFile(w.fs, dir, base, w.perm)
	if err != nil {
		return err
	}

	cleanup := func() error {
		closeErr := tmp.Close()
		if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			closeErr = fmt.Errorf("close temp file %q: %w", tmpPath, closeErr)
		} else {
			closeErr = nil
		}

		removeErr := w.fs.Remove(tmpPath)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			removeErr = fmt.Errorf("remove temp file %q: %w", tmpPath, removeErr)
		} else {
			removeErr = nil
		}

		return errors.Join(closeErr, removeErr)
	}

	err = tmp.Chmod(w.perm)
	if err != nil {
		return errors.Join(fmt.Errorf("chmod temp file %q: %w", tmpPath, err), cleanup())
	}

	_, err = io.Copy(tmp, r)
	if err != nil {
		return errors.Join(fmt.Errorf("write temp file %q: %w", tmpPath, err), cleanup())
	}

	err = tmp.Sync()
	if err != nil {
		return errors.Join(fmt.Errorf("sync temp file %q: %w", tmpPath, err), cleanup())
	}

	err = tmp.Close()
	if err != nil {
		return errors.Join(fmt.Errorf("close temp file %q: %w", tmpPath, err), cleanup())
	}

	if !mtime.IsZero() {
		err = w.fs.Chtimes(tmpPath, mtime, mtime)
		if err != nil {
			return errors.Join(fmt.Errorf("set mtime of %q: %w", tmpPath, err), cleanup())
		}
	}

	err = w.fs.Rename(tmpPath, path)
	if err != nil {
		return errors.Join(fmt.Errorf("rename: %w", err), cleanup())
	}

	if !w.syncDir {
		return nil
	}

	return syncDir(w.fs, dir)
}

const tempFileMaxAttempts = 10000

var tempFileCounter atomic.Uint64

func createTempFile(fs FS, dir, base string, perm os.FileMode) (File, string, error) {
	for range tempFileMaxAttempts {
		path := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", base, tempFileCounter.Add(1)))

		f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			return f, path, nil
		}

		if os.IsExist(err) {
			continue
		}

		return nil, "", fmt.Errorf("create temp file: %w", err)
	}

	return nil, "", fmt.Errorf("exhausted temp file attempts in %q", dir)
}

func syncDir(fs FS, dir string) error {
	d, err := fs.Open(dir)
	if err != nil {
		return errors.Join(ErrAtomicWriteDirSync, fmt.Errorf("open dir %q: %w", dir, err))
	}

	syncErr := d.Sync()
	closeErr := d.Close()

	if syncErr != nil {
		return errors.Join(ErrAtomicWriteDirSync, fmt.Errorf("%q: %w", dir, syncErr), closeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close dir %q: %w", dir, closeErr)
	}

	return nil
}
