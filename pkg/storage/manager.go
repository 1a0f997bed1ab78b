package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	errs "mediadl/pkg/errors"
)

// maxCollisions bounds the " (n)" suffix search for a free filename
const maxCollisions = 1000

// NameIndex reports filenames already claimed by earlier downloads
type NameIndex interface {
	FilenameExists(ctx context.Context, filename string) (bool, error)
}

// Manager resolves download locations under the output directory and writes
// files atomically
type Manager struct {
	outputDir string
	names     NameIndex
	reserved  map[string]bool
	mu        sync.Mutex
}

// NewManager creates the output directory if needed. names may be nil, in
// which case only the filesystem is consulted for collisions.
func NewManager(outputDir string, names NameIndex) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{
		outputDir: outputDir,
		names:     names,
		reserved:  make(map[string]bool),
	}, nil
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// Folder maps a "/"-separated title chain to a directory under the output dir.
// Empty and dot segments are dropped so a title can never escape the root.
func (m *Manager) Folder(parentTitle string) string {
	parts := []string{m.outputDir}
	for _, seg := range strings.Split(parentTitle, "/") {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		parts = append(parts, seg)
	}
	return filepath.Join(parts...)
}

// Resolve picks the final filename for a download into folder. A previous
// name stored for the same item wins so retries and re-runs overwrite their
// own file. Otherwise the first of "name.ext", "name (1).ext", ... that is
// free on disk, in the index and among names handed out by this Manager is
// reserved and returned.
func (m *Manager) Resolve(ctx context.Context, folder, filename, previous string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if previous != "" {
		m.reserved[filepath.Join(folder, previous)] = true
		return previous, nil
	}

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	candidate := filename
	for i := 1; i <= maxCollisions; i++ {
		taken, err := m.taken(ctx, folder, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			m.reserved[filepath.Join(folder, candidate)] = true
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
	}
	return "", &errs.FileError{Path: filepath.Join(folder, filename), Err: fmt.Errorf("no free filename after %d attempts", maxCollisions)}
}

func (m *Manager) taken(ctx context.Context, folder, name string) (bool, error) {
	path := filepath.Join(folder, name)
	if m.reserved[path] {
		return true, nil
	}
	if _, err := os.Stat(path); err == nil {
		return true, nil
	}
	if m.names == nil {
		return false, nil
	}
	return m.names.FilenameExists(ctx, name)
}

// Release forgets a reservation made by Resolve
func (m *Manager) Release(folder, filename string) {
	m.mu.Lock()
	delete(m.reserved, filepath.Join(folder, filename))
	m.mu.Unlock()
}

// Writer is an in-progress file. Bytes go to a temporary sibling that only
// replaces the target on Commit.
type Writer struct {
	f      *os.File
	target string
	done   bool
}

// Create opens a temporary file next to path, creating parent directories
func (m *Manager) Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &errs.FileError{Path: path, Err: err}
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return nil, &errs.FileError{Path: path, Err: err}
	}
	return &Writer{f: f, target: path}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// Reset truncates the temporary file so a retried transfer starts clean
func (w *Writer) Reset() error {
	if err := w.f.Truncate(0); err != nil {
		return &errs.FileError{Path: w.target, Err: err}
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return &errs.FileError{Path: w.target, Err: err}
	}
	return nil
}

// Commit closes the temporary file and atomically renames it onto the target
func (w *Writer) Commit() error {
	if w.done {
		return nil
	}
	w.done = true

	tmp := w.f.Name()
	if err := w.f.Close(); err != nil {
		os.Remove(tmp)
		return &errs.FileError{Path: w.target, Err: err}
	}
	if err := os.Rename(tmp, w.target); err != nil {
		os.Remove(tmp)
		return &errs.FileError{Path: w.target, Err: err}
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.f.Close()
	os.Remove(w.f.Name())
}

// SetModTime stamps path with a unix timestamp. Zero leaves it untouched.
func SetModTime(path string, unix int64) error {
	if unix <= 0 {
		return nil
	}
	t := time.Unix(unix, 0)
	if err := os.Chtimes(path, t, t); err != nil {
		return &errs.FileError{Path: path, Err: err}
	}
	return nil
}
