// Package fsroot jails every client-supplied path inside the configured
// shared directory, grounded on the teacher's os.Root-based fsContext in
// server/driver_fs.go.
//
// Protocol-level paths are absolute ("/sub/dir/file"); Root interprets
// them as relative to its root directory and refuses anything that would
// resolve outside it (spec §3 Invariant 4, §6).
package fsroot

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a client path, once cleaned, would leave
// the share root.
var ErrEscapesRoot = errors.New("fsroot: path escapes share root")

// Root wraps an os.Root handle jailing all operations under dir.
type Root struct {
	abs    string
	handle *os.Root
}

// Open resolves dir to an absolute path and opens an os.Root handle on it,
// the same jailing mechanism the teacher uses in FSDriver.newContext.
func Open(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("fsroot: share path is not a directory")
	}
	handle, err := os.OpenRoot(abs)
	if err != nil {
		return nil, err
	}
	return &Root{abs: abs, handle: handle}, nil
}

// Close releases the root directory handle.
func (r *Root) Close() error { return r.handle.Close() }

// AbsPath returns the resolved absolute share-root directory.
func (r *Root) AbsPath() string { return r.abs }

// Resolve turns a protocol-level path (absolute, "/"-rooted, possibly
// containing "..") into a path relative to the root handle, rejecting
// anything that normalizes outside the root. This is the path-jail
// invariant from spec §3 Invariant 4.
func (r *Root) Resolve(clientPath string) (string, error) {
	rel := filepath.Clean(strings.TrimLeft(clientPath, "/"))
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", ErrEscapesRoot
	}
	return rel, nil
}

// Stat stats a resolved relative path.
func (r *Root) Stat(rel string) (fs.FileInfo, error) { return r.handle.Stat(rel) }

// Exists reports whether rel exists under the root.
func (r *Root) Exists(rel string) bool {
	_, err := r.handle.Stat(rel)
	return err == nil
}

// ReadDir lists the immediate children of a resolved relative directory.
func (r *Root) ReadDir(rel string) ([]fs.DirEntry, error) {
	f, err := r.handle.Open(rel)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.ReadDir(-1)
}

// OpenFile opens a resolved relative file for reading.
func (r *Root) OpenFile(rel string) (*os.File, error) {
	return r.handle.Open(rel)
}

// Create creates (exclusively) a resolved relative file for writing,
// returning os.ErrExist if it is already there — the check the upload
// path needs per spec §4.7 step 6.
func (r *Root) Create(rel string) (*os.File, error) {
	return r.handle.OpenFile(rel, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

