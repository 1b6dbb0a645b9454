// Package boundary implements the Boundary of §4.I: the REST API under
// /api, the event-transport upgrade mounted on the same port, the static
// SPA file service, and the security-header middleware on UI responses.
// Router wiring (chi.NewRouter, r.Use(auth middleware), one
// r.Method("/path/{id}", handler) registration per route) is grounded on
// kalambet-tbyd's internal/api/ingest.go NewAppHandler; the
// dependency-bundle struct generalizes the teacher's api.Server, which
// held the same kind of store/provider/ingester/searcher/hub collection
// behind narrow interfaces.
package boundary

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"consultd/internal/auth"
	"consultd/internal/config"
	"consultd/internal/logging"
	"consultd/internal/orchestrator"
	"consultd/internal/provider"
	"consultd/internal/rag"
	"consultd/internal/store"
)

// ConfigService is the Config Service dependency.
type ConfigService interface {
	Load(ctx context.Context) (*config.Config, error)
	Update(ctx context.Context, patch config.Patch) (*config.Config, error)
}

// ConversationService is the Conversation Service dependency.
type ConversationService interface {
	ListActive(ctx context.Context) ([]*store.Conversation, error)
	ListArchived(ctx context.Context) ([]*store.Conversation, error)
	Delete(ctx context.Context, id string) error
	LastSweepAt() time.Time
}

// Orchestrator is the Consultation Orchestrator dependency.
type Orchestrator interface {
	Consult(ctx context.Context, in orchestrator.ConsultInput) (*orchestrator.ConsultResult, error)
	Continue(ctx context.Context, in orchestrator.ContinueInput) (*orchestrator.ConsultResult, error)
	End(ctx context.Context, conversationID string) (*orchestrator.EndResult, error)
}

// Completer is the Provider Adapter dependency, used only by the
// provider connectivity test endpoint.
type Completer interface {
	Complete(ctx context.Context, model string, messages []provider.Message, opts provider.Options) (*provider.Result, error)
}

// Ingester is the RAG Pipeline's write-side dependency.
type Ingester interface {
	IngestBatch(ctx context.Context, inputs []rag.IngestInput, ifExists rag.IfExists) ([]rag.IngestResult, error)
	Reindex(ctx context.Context, documentID string) (int, error)
	DeleteDocument(ctx context.Context, documentID string) error
	AddMemory(ctx context.Context, category, title, content string) (*store.Memory, error)
}

// Retriever is the RAG Pipeline's read-side dependency.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts rag.RetrieveOptions) ([]rag.Hit, error)
}

// DocumentStore is the read-only store surface the RAG and audit handlers
// need beyond what Ingester/Retriever already cover.
type DocumentStore interface {
	ListDocuments(ctx context.Context) ([]store.Document, error)
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	ChunksForDocument(ctx context.Context, documentID string) ([]store.Chunk, error)
	ListAuditEntries(ctx context.Context) ([]store.AuditEntry, error)
	ListWatchedFolders(ctx context.Context) ([]store.WatchedFolder, error)
}

// FolderWatcher is the folder auto-ingest supplement's write dependency.
type FolderWatcher interface {
	AddFolder(ctx context.Context, id, path string) (*store.WatchedFolder, error)
	RemoveFolder(ctx context.Context, id, path string) error
}

// EmbedPinger reports embedding-service reachability for the health
// detail supplement.
type EmbedPinger interface {
	Ping(ctx context.Context) error
}

// IdleTimer reports the idle-timer's remaining budget for the health
// detail supplement.
type IdleTimer interface {
	RemainingMs() int64
}

// Hub is the Event Hub dependency: client count for health, and the
// upgrade handler for the event transport.
type Hub interface {
	ClientCount() int
	UpgradeHandler(token string) http.HandlerFunc
}

// Deps bundles every collaborator the Boundary composes. Assembled once
// in main and handed to NewRouter.
type Deps struct {
	Config        ConfigService
	Conversations ConversationService
	Orchestrator  Orchestrator
	Provider      Completer
	Ingester      Ingester
	Retriever     Retriever
	Documents     DocumentStore
	Watcher       FolderWatcher
	Embed         EmbedPinger
	EmbedURL      string
	Idle          IdleTimer
	Hub           Hub
	Logger        *logging.Logger

	Token     string
	StartedAt time.Time

	// WebUIDir, if non-empty, is served as static files under / with SPA
	// fallback. Empty disables the static file service entirely (the
	// daemon still answers /api and the event transport).
	WebUIDir string
}

// NewRouter assembles the full Boundary: every /api route behind
// auth.Middleware, the event-transport upgrade at /ws, and (if WebUIDir
// is set) the static SPA file service with security headers.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{deps: deps}

	r := chi.NewRouter()

	r.Get("/ws", deps.Hub.UpgradeHandler(deps.Token))

	r.Route("/api", func(api chi.Router) {
		api.Use(auth.Middleware(deps.Token))

		api.Get("/health", h.handleHealth)

		api.Get("/config", h.handleGetConfig)
		api.Patch("/config", h.handlePatchConfig)

		api.Get("/providers", h.handleListProviders)
		api.Get("/providers/{id}", h.handleGetProvider)
		api.Put("/providers/{id}", h.handlePutProvider)
		api.Delete("/providers/{id}", h.handleDeleteProvider)
		api.Post("/providers/{id}/test", h.handleTestProvider)

		api.Get("/chat/history", h.handleChatHistory)
		api.Delete("/chat/archived/all", h.handleDeleteAllArchived)
		api.Delete("/chat/{id}", h.handleDeleteChat)

		api.Get("/rag", h.handleListDocuments)
		api.Post("/rag/upload", h.handleUpload)
		api.Get("/rag/{id}", h.handleGetDocument)
		api.Delete("/rag/{id}", h.handleDeleteDocument)
		api.Get("/rag/{id}/chunks", h.handleDocumentChunks)
		api.Post("/rag/{id}/reindex", h.handleReindex)
		api.Post("/rag/search", h.handleSearch)
		api.Post("/rag/memory", h.handleAddMemory)
		api.Get("/rag/folders", h.handleListFolders)
		api.Get("/rag/folders/watch", h.handleListWatchedFolders)
		api.Post("/rag/folders/watch", h.handleWatchFolder)
		api.Delete("/rag/folders/watch/{id}", h.handleUnwatchFolder)

		api.Post("/consult", h.handleConsult)

		api.Get("/audit", h.handleAudit)
	})

	if deps.WebUIDir != "" {
		r.With(securityHeaders).NotFound(spaFallback(deps.WebUIDir))
		fileServer := http.StripPrefix("/", http.FileServer(http.Dir(deps.WebUIDir)))
		r.With(securityHeaders).Get("/*", spaFileServer(deps.WebUIDir, fileServer))
	}

	return r
}
