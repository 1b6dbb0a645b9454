package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RunsMigrationsIdempotently(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "conv-1", "deepseek-chat", "be terse")
	require.NoError(t, err)
	require.Equal(t, "active", conv.Status)

	count, err := s.AddMessage(ctx, "conv-1", "user", "hello")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, err = s.AddMessage(ctx, "conv-1", "assistant", "hi there")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	loaded, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	require.Equal(t, "user", loaded.Messages[0].Role)
	require.Equal(t, "assistant", loaded.Messages[1].Role)

	changed, err := s.Archive(ctx, "conv-1", "completed")
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = s.Archive(ctx, "conv-1", "completed")
	require.NoError(t, err)
	require.False(t, changed, "archiving an already-archived conversation is a no-op")

	archived, err := s.ListArchived(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	require.Equal(t, "completed", archived[0].EndReason)
	require.NotNil(t, archived[0].EndedAt)
}

func TestAddMessage_UnknownConversation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddMessage(context.Background(), "does-not-exist", "user", "hi")
	require.Error(t, err)
}

func TestArchiveStaleSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, "conv-stale", "deepseek-chat", "")
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`,
		formatTime(nowUTC().Add(-10*time.Minute)), "conv-stale")
	require.NoError(t, err)

	ids, err := s.ArchiveStaleSince(ctx, nowUTC().Add(-5*time.Minute))
	require.NoError(t, err)
	require.Equal(t, []string{"conv-stale"}, ids)

	conv, err := s.GetConversation(ctx, "conv-stale")
	require.NoError(t, err)
	require.Equal(t, "archived", conv.Status)
	require.Equal(t, "timeout", conv.EndReason)
}

func TestConfigEntries_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.PutConfigEntries(ctx, map[string]string{"defaultModel": "deepseek-reasoner", "maxMessages": "5"})
	require.NoError(t, err)

	entries, err := s.GetConfigEntries(ctx)
	require.NoError(t, err)
	require.Equal(t, "deepseek-reasoner", entries["defaultModel"])
	require.Equal(t, "5", entries["maxMessages"])

	err = s.PutConfigEntries(ctx, map[string]string{"maxMessages": "10"})
	require.NoError(t, err)
	entries, err = s.GetConfigEntries(ctx)
	require.NoError(t, err)
	require.Equal(t, "10", entries["maxMessages"])
}

func TestDocumentChunkEmbeddingCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, Document{ID: "doc-1", Title: "Notes", SourceType: "upload", Folder: "proj"})
	require.NoError(t, err)
	require.Equal(t, "proj", doc.Folder)

	err = s.InsertChunks(ctx, []Chunk{
		{ID: "chunk-1", DocumentID: "doc-1", ChunkIndex: 0, Content: "alpha beta", TokenCount: 2},
		{ID: "chunk-2", DocumentID: "doc-1", ChunkIndex: 1, Content: "gamma delta", TokenCount: 2},
	})
	require.NoError(t, err)

	err = s.UpsertEmbedding(ctx, Embedding{ChunkID: "chunk-1", Vector: []byte{1, 2, 3, 4}, Dim: 1, Model: "test"})
	require.NoError(t, err)

	candidates, err := s.SearchCandidates(ctx, SearchCandidateFilter{})
	require.NoError(t, err)
	require.Len(t, candidates, 1, "only chunk-1 has an embedding")

	err = s.DeleteDocument(ctx, "doc-1")
	require.NoError(t, err)

	chunks, err := s.ChunksForDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Empty(t, chunks, "deleting the document cascades to its chunks")
}

func TestFindDocumentByTitle_CaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateDocument(ctx, Document{ID: "doc-1", Title: "  My Notes  ", SourceType: "upload"})
	require.NoError(t, err)

	found, err := s.FindDocumentByTitle(ctx, "my notes")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "doc-1", found.ID)

	notFound, err := s.FindDocumentByTitle(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, notFound)
}

func TestAuditLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddAuditEntry(ctx, "config.update", "changed maxMessages"))
	entries, err := s.ListAuditEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "config.update", entries[0].OperationType)
}

func TestWatchedFolders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddWatchedFolder(ctx, "wf-1", "/tmp/project-docs")
	require.NoError(t, err)

	folders, err := s.ListWatchedFolders(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 1)

	require.NoError(t, s.RemoveWatchedFolder(ctx, "wf-1"))
	folders, err = s.ListWatchedFolders(ctx)
	require.NoError(t, err)
	require.Empty(t, folders)
}
