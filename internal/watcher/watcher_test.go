package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"consultd/internal/logging"
	"consultd/internal/rag"
	"consultd/internal/store"
)

type fakeIngester struct {
	calls []rag.IngestInput
	err   error
}

func (f *fakeIngester) IngestBatch(ctx context.Context, inputs []rag.IngestInput, ifExists rag.IfExists) ([]rag.IngestResult, error) {
	f.calls = append(f.calls, inputs...)
	if f.err != nil {
		return nil, f.err
	}
	results := make([]rag.IngestResult, len(inputs))
	for i, in := range inputs {
		results[i] = rag.IngestResult{DocumentID: "doc-1", Title: filepath.Base(in.Path), ChunkCount: 1}
	}
	return results, nil
}

type fakeStore struct {
	folders map[string]store.WatchedFolder
}

func newFakeStore() *fakeStore {
	return &fakeStore{folders: map[string]store.WatchedFolder{}}
}

func (f *fakeStore) AddWatchedFolder(ctx context.Context, id, path string) (*store.WatchedFolder, error) {
	wf := store.WatchedFolder{ID: id, Path: path}
	f.folders[id] = wf
	return &wf, nil
}

func (f *fakeStore) RemoveWatchedFolder(ctx context.Context, id string) error {
	delete(f.folders, id)
	return nil
}

func (f *fakeStore) ListWatchedFolders(ctx context.Context) ([]store.WatchedFolder, error) {
	out := make([]store.WatchedFolder, 0, len(f.folders))
	for _, wf := range f.folders {
		out = append(out, wf)
	}
	return out, nil
}

func testLogger() *logging.Logger {
	return logging.NewLogger("watcher-test", logging.ERROR, os.Stderr)
}

func TestShouldProcess_AllowsKnownExtensionsWithinSizeLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	require.True(t, shouldProcess(path))
}

func TestShouldProcess_RejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.zip")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	require.False(t, shouldProcess(path))
}

func TestShouldProcess_RejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(path, make([]byte, maxWatchedFileSize+1), 0o644))

	require.False(t, shouldProcess(path))
}

func TestValidatePath_RejectsSystemDirectory(t *testing.T) {
	require.Error(t, validatePath("/etc"))
}

func TestValidatePath_RejectsNonexistentPath(t *testing.T) {
	require.Error(t, validatePath("/no/such/path/at/all"))
}

func TestValidatePath_RejectsFileNotDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.Error(t, validatePath(path))
}

func TestAddFolder_PersistsAndWatchesDirectory(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	st := newFakeStore()
	w, err := New(ing, st, testLogger())
	require.NoError(t, err)

	folder, err := w.AddFolder(context.Background(), "wf-1", dir)
	require.NoError(t, err)
	require.Equal(t, dir, folder.Path)
	require.Contains(t, st.folders, "wf-1")
}

func TestAddFolder_RollsBackWatchWhenStoreFails(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	st := &failingStore{}
	w, err := New(ing, st, testLogger())
	require.NoError(t, err)

	_, err = w.AddFolder(context.Background(), "wf-1", dir)
	require.Error(t, err)
}

type failingStore struct{}

func (f *failingStore) AddWatchedFolder(ctx context.Context, id, path string) (*store.WatchedFolder, error) {
	return nil, os.ErrPermission
}

func (f *failingStore) RemoveWatchedFolder(ctx context.Context, id string) error { return nil }

func (f *failingStore) ListWatchedFolders(ctx context.Context) ([]store.WatchedFolder, error) {
	return nil, nil
}

func TestStart_AutoIngestsNewFileDroppedIntoWatchedFolder(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	st := newFakeStore()
	st.folders["wf-1"] = store.WatchedFolder{ID: "wf-1", Path: dir}

	w, err := New(ing, st, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	path := filepath.Join(dir, "dropped.txt")
	require.NoError(t, os.WriteFile(path, []byte("new content"), 0o644))

	require.Eventually(t, func() bool {
		for _, call := range ing.calls {
			if call.Path == path {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRemoveFolder_DeletesFromStore(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	st := newFakeStore()
	w, err := New(ing, st, testLogger())
	require.NoError(t, err)

	_, err = w.AddFolder(context.Background(), "wf-1", dir)
	require.NoError(t, err)

	require.NoError(t, w.RemoveFolder(context.Background(), "wf-1", dir))
	require.NotContains(t, st.folders, "wf-1")
}
