package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "mediadl/pkg/errors"
)

type nameSet map[string]bool

func (s nameSet) FilenameExists(_ context.Context, filename string) (bool, error) {
	return s[filename], nil
}

type brokenIndex struct{}

func (brokenIndex) FilenameExists(context.Context, string) (bool, error) {
	return false, errs.NewStorageError("filename exists", errors.New("disk I/O error"))
}

func TestNewManagerCreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	m, err := NewManager(dir, nil)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, dir, m.OutputDir())
}

func TestFolder(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)

	tests := []struct {
		title string
		want  string
	}{
		{"", m.OutputDir()},
		{"alice", filepath.Join(m.OutputDir(), "alice")},
		{"alice/2024-01-02 - Hello", filepath.Join(m.OutputDir(), "alice", "2024-01-02 - Hello")},
		{"alice//../x", filepath.Join(m.OutputDir(), "alice", "x")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Folder(tt.title), "title %q", tt.title)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("x"), 0644))

	m, err := NewManager(dir, nameSet{"photo (1).jpg": true})
	require.NoError(t, err)

	name, err := m.Resolve(ctx, dir, "photo.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, "photo (2).jpg", name, "disk and index collisions are skipped")

	name, err = m.Resolve(ctx, dir, "photo.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, "photo (3).jpg", name, "reserved names are not handed out twice")

	m.Release(dir, "photo (2).jpg")
	name, err = m.Resolve(ctx, dir, "photo.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, "photo (2).jpg", name)

	name, err = m.Resolve(ctx, dir, "fresh.png", "")
	require.NoError(t, err)
	assert.Equal(t, "fresh.png", name)
}

func TestResolveReusesPreviousName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("x"), 0644))

	m, err := NewManager(dir, nil)
	require.NoError(t, err)

	name, err := m.Resolve(context.Background(), dir, "photo.jpg", "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", name)
}

func TestResolveIndexFailure(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, brokenIndex{})
	require.NoError(t, err)

	_, err = m.Resolve(context.Background(), dir, "photo.jpg", "")
	var se *errs.StorageError
	assert.ErrorAs(t, err, &se)
}

func TestResolveConcurrent(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, nil)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		names = map[string]bool{}
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, err := m.Resolve(context.Background(), dir, "same.jpg", "")
			assert.NoError(t, err)
			mu.Lock()
			names[name] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, names, 20)
}

func TestWriterCommitIsAtomic(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, nil)
	require.NoError(t, err)

	target := filepath.Join(dir, "nested", "file.bin")
	w, err := m.Create(target)
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	assert.NoFileExists(t, target, "nothing is visible before commit")
	require.NoError(t, w.Commit())

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestWriterAbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, nil)
	require.NoError(t, err)

	target := filepath.Join(dir, "file.bin")
	w, err := m.Create(target)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	w.Abort()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriterReset(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, nil)
	require.NoError(t, err)

	target := filepath.Join(dir, "file.bin")
	w, err := m.Create(target)
	require.NoError(t, err)
	defer w.Abort()

	_, err = w.Write([]byte("first attempt, interrupted"))
	require.NoError(t, err)
	require.NoError(t, w.Reset())
	_, err = w.Write([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))
}

func TestSetModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	stamp := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).Unix()
	require.NoError(t, SetModTime(path, stamp))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, stamp, info.ModTime().Unix())

	require.NoError(t, SetModTime(path, 0))

	var fe *errs.FileError
	assert.ErrorAs(t, SetModTime(filepath.Join(t.TempDir(), "missing"), stamp), &fe)
}
