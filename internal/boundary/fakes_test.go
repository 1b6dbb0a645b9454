package boundary

import (
	"context"
	"errors"
	"net/http"
	"time"

	"consultd/internal/config"
	daemonerrors "consultd/internal/errors"
	"consultd/internal/orchestrator"
	"consultd/internal/provider"
	"consultd/internal/rag"
	"consultd/internal/store"
)

const testToken = "test-daemon-token"

type fakeConfig struct {
	cfg     config.Config
	updates []config.Patch
	loadErr error
}

func (f *fakeConfig) Load(ctx context.Context) (*config.Config, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	cp := f.cfg
	return &cp, nil
}

func (f *fakeConfig) Update(ctx context.Context, patch config.Patch) (*config.Config, error) {
	if patch.DefaultModel == nil && patch.MaxMessages == nil && patch.RequestTimeout == nil &&
		patch.AutoOpenWebUI == nil && patch.Providers == nil {
		return nil, daemonerrors.New(daemonerrors.ValidationError, "empty patch")
	}
	f.updates = append(f.updates, patch)
	if patch.DefaultModel != nil {
		f.cfg.DefaultModel = *patch.DefaultModel
	}
	if patch.MaxMessages != nil {
		f.cfg.MaxMessages = *patch.MaxMessages
	}
	if patch.RequestTimeout != nil {
		f.cfg.RequestTimeout = *patch.RequestTimeout
	}
	if patch.AutoOpenWebUI != nil {
		f.cfg.AutoOpenWebUI = *patch.AutoOpenWebUI
	}
	if patch.Providers != nil {
		f.cfg.Providers = *patch.Providers
	}
	cp := f.cfg
	return &cp, nil
}

type fakeConversations struct {
	active    []*store.Conversation
	archived  []*store.Conversation
	deleted   []string
	lastSweep time.Time
}

func (f *fakeConversations) ListActive(ctx context.Context) ([]*store.Conversation, error) { return f.active, nil }
func (f *fakeConversations) ListArchived(ctx context.Context) ([]*store.Conversation, error) {
	return f.archived, nil
}
func (f *fakeConversations) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}
func (f *fakeConversations) LastSweepAt() time.Time { return f.lastSweep }

type fakeOrchestrator struct {
	result *orchestrator.ConsultResult
	err    error
	lastIn orchestrator.ConsultInput
}

func (f *fakeOrchestrator) Consult(ctx context.Context, in orchestrator.ConsultInput) (*orchestrator.ConsultResult, error) {
	f.lastIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
func (f *fakeOrchestrator) Continue(ctx context.Context, in orchestrator.ContinueInput) (*orchestrator.ConsultResult, error) {
	return f.result, f.err
}
func (f *fakeOrchestrator) End(ctx context.Context, id string) (*orchestrator.EndResult, error) {
	return nil, f.err
}

type fakeCompleter struct {
	result *provider.Result
	err    error
}

func (f *fakeCompleter) Complete(ctx context.Context, model string, messages []provider.Message, opts provider.Options) (*provider.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeIngester struct {
	batchResults []rag.IngestResult
	batchErr     error
	lastInputs   []rag.IngestInput
	lastIfExists rag.IfExists
	reindexCount int
	reindexErr   error
	deleteErr    error
	deletedIDs   []string
	memory       *store.Memory
	memoryErr    error
}

func (f *fakeIngester) IngestBatch(ctx context.Context, inputs []rag.IngestInput, ifExists rag.IfExists) ([]rag.IngestResult, error) {
	f.lastInputs = inputs
	f.lastIfExists = ifExists
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	return f.batchResults, nil
}
func (f *fakeIngester) Reindex(ctx context.Context, documentID string) (int, error) {
	return f.reindexCount, f.reindexErr
}
func (f *fakeIngester) DeleteDocument(ctx context.Context, documentID string) error {
	f.deletedIDs = append(f.deletedIDs, documentID)
	return f.deleteErr
}
func (f *fakeIngester) AddMemory(ctx context.Context, category, title, content string) (*store.Memory, error) {
	return f.memory, f.memoryErr
}

type fakeRetriever struct {
	hits []rag.Hit
	err  error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, opts rag.RetrieveOptions) ([]rag.Hit, error) {
	return f.hits, f.err
}

type fakeDocuments struct {
	docs           []store.Document
	doc            *store.Document
	getErr         error
	chunks         []store.Chunk
	audit          []store.AuditEntry
	watchedFolders []store.WatchedFolder
}

func (f *fakeDocuments) ListDocuments(ctx context.Context) ([]store.Document, error) { return f.docs, nil }
func (f *fakeDocuments) GetDocument(ctx context.Context, id string) (*store.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.doc, nil
}
func (f *fakeDocuments) ChunksForDocument(ctx context.Context, documentID string) ([]store.Chunk, error) {
	return f.chunks, nil
}
func (f *fakeDocuments) ListAuditEntries(ctx context.Context) ([]store.AuditEntry, error) {
	return f.audit, nil
}
func (f *fakeDocuments) ListWatchedFolders(ctx context.Context) ([]store.WatchedFolder, error) {
	return f.watchedFolders, nil
}

type fakeWatcher struct {
	added  *store.WatchedFolder
	addErr error

	removedID, removedPath string
	removeErr              error
}

func (f *fakeWatcher) AddFolder(ctx context.Context, id, path string) (*store.WatchedFolder, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	return f.added, nil
}
func (f *fakeWatcher) RemoveFolder(ctx context.Context, id, path string) error {
	f.removedID, f.removedPath = id, path
	return f.removeErr
}

type fakeEmbed struct {
	err error
}

func (f *fakeEmbed) Ping(ctx context.Context) error { return f.err }

type fakeIdleTimer struct {
	remaining int64
}

func (f *fakeIdleTimer) RemainingMs() int64 { return f.remaining }

type fakeHub struct {
	clients int
}

func (f *fakeHub) ClientCount() int { return f.clients }
func (f *fakeHub) UpgradeHandler(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

var errBoom = errors.New("boom")

func daemonErrExternalUnavailable() error {
	return daemonerrors.Wrap(daemonerrors.ExternalUnavailable, errors.New("embedding service unreachable"))
}
