// Package store keeps versioned payloads grouped in namespaces.
//
// Every key carries the time it was last written. Writes of a single key are
// atomic; nothing else is.
package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const fileExt = ".json"

// Files stores each key as <root>/<namespace>/<key>.json.
type Files struct {
	fs     FS
	writer *AtomicWriter
	root   string
	now    func() time.Time
}

// FilesOption configures [NewFiles].
type FilesOption func(*Files)

// WithFS replaces the filesystem implementation.
func WithFS(fs FS) FilesOption {
	return func(f *Files) { f.fs = fs }
}

// WithClock replaces the clock used to stamp writes.
func WithClock(now func() time.Time) FilesOption {
	return func(f *Files) { f.now = now }
}

// NewFiles returns a store rooted at root. The directory is created lazily.
func NewFiles(root string, opts ...FilesOption) *Files {
	f := &Files{fs: NewReal(), root: root, now: time.Now}

	for _, opt := range opts {
		opt(f)
	}

	f.writer = NewAtomicWriter(f.fs, 0o644, true)

	return f
}

func (f *Files) path(namespace, key string) (string, error) {
	if err := checkName(namespace); err != nil {
		return "", err
	}

	if err := checkName(key); err != nil {
		return "", err
	}

	return filepath.Join(f.root, namespace, key+fileExt), nil
}

func checkName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}

	return nil
}

// Write stores payload under key, replacing any previous value. The key's
// modification time always moves forward, even within one clock tick. The
// mtime is set before the new content becomes visible, so a failed write
// leaves the previous value and its mtime untouched.
func (f *Files) Write(namespace, key string, payload []byte) error {
	path, err := f.path(namespace, key)
	if err != nil {
		return wrapErr(namespace, key, err)
	}

	err = f.fs.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return wrapErr(namespace, key, fmt.Errorf("create namespace: %w", err))
	}

	var prev time.Time

	if info, statErr := f.fs.Stat(path); statErr == nil {
		prev = info.ModTime()
	}

	mtime := f.now()
	if !mtime.After(prev) {
		mtime = prev.Add(time.Millisecond)
	}

	err = f.writer.WriteWithMTime(path, bytes.NewReader(payload), mtime)
	if err != nil {
		return wrapErr(namespace, key, fmt.Errorf("write: %w", err))
	}

	return nil
}

// List returns every key of namespace with its modification time. A
// namespace that was never written is empty.
func (f *Files) List(namespace string) (map[string]time.Time, error) {
	if err := checkName(namespace); err != nil {
		return nil, wrapErr(namespace, "", err)
	}

	dir := filepath.Join(f.root, namespace)

	entries, err := f.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]time.Time{}, nil
		}

		return nil, wrapErr(namespace, "", fmt.Errorf("list: %w", err))
	}

	out := make(map[string]time.Time, len(entries))

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, wrapErr(namespace, name, fmt.Errorf("stat: %w", err))
		}

		out[strings.TrimSuffix(name, fileExt)] = info.ModTime()
	}

	return out, nil
}

// Read returns the payload stored under key.
func (f *Files) Read(namespace, key string) ([]byte, error) {
	path, err := f.path(namespace, key)
	if err != nil {
		return nil, wrapErr(namespace, key, err)
	}

	data, err := f.fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapErr(namespace, key, ErrNotFound)
		}

		return nil, wrapErr(namespace, key, fmt.Errorf("read: %w", err))
	}

	return data, nil
}

// Delete removes key.
func (f *Files) Delete(namespace, key string) error {
	path, err := f.path(namespace, key)
	if err != nil {
		return wrapErr(namespace, key, err)
	}

	err = f.fs.Remove(path)
	if err != nil {
		if os.IsNotExist(err) {
			return wrapErr(namespace, key, ErrNotFound)
		}

		return wrapErr(namespace, key, fmt.Errorf("delete: %w", err))
	}

	return nil
}
