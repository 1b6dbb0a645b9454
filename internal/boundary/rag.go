package boundary

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	daemonerrors "consultd/internal/errors"
	"consultd/internal/rag"
)

const maxUploadBodySize = 50 << 20 // 50MB across the whole multipart body

func (h *handlers) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.deps.Documents.ListDocuments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *handlers) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.deps.Documents.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, daemonerrors.Wrap(daemonerrors.NotFound, err))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *handlers) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Ingester.DeleteDocument(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleDocumentChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	chunks, err := h.deps.Documents.ChunksForDocument(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

func (h *handlers) handleReindex(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	count, err := h.deps.Ingester.Reindex(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": id, "chunkCount": count})
}

// handleUpload accepts multipart files[] plus an optional folder field
// per §6. Uploaded bytes are written to a scratch directory under their
// original filenames, since the Ingester's extraction step dispatches on
// file path and extension; the directory is removed once ingestion
// completes.
func (h *handlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)

	if err := r.ParseMultipartForm(maxUploadBodySize); err != nil {
		badRequest(w, "", "invalid multipart body")
		return
	}
	files := r.MultipartForm.File["files[]"]
	if len(files) == 0 {
		badRequest(w, "files[]", "at least one file is required")
		return
	}
	folder := r.FormValue("folder")

	ifExists := rag.IfExistsSkip
	switch r.FormValue("ifExists") {
	case "allow":
		ifExists = rag.IfExistsAllow
	case "replace":
		ifExists = rag.IfExistsReplace
	}

	scratch, err := os.MkdirTemp("", "consultd-upload-*")
	if err != nil {
		writeError(w, daemonerrors.Wrap(daemonerrors.Internal, err))
		return
	}
	defer os.RemoveAll(scratch)

	inputs := make([]rag.IngestInput, 0, len(files))
	for _, fh := range files {
		if err := saveUploadedFile(scratch, fh); err != nil {
			writeError(w, daemonerrors.Wrap(daemonerrors.Internal, err))
			return
		}
		inputs = append(inputs, rag.IngestInput{Path: filepath.Join(scratch, filepath.Base(fh.Filename)), Folder: folder})
	}

	results, err := h.deps.Ingester.IngestBatch(r.Context(), inputs, ifExists)
	if err != nil {
		if isEmbeddingUnavailable(err) {
			writeError(w, daemonerrors.Wrap(daemonerrors.ExternalUnavailable, err))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func isEmbeddingUnavailable(err error) bool {
	return daemonerrors.KindOf(err) == daemonerrors.ExternalUnavailable
}

func saveUploadedFile(dir string, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(dir, filepath.Base(fh.Filename)))
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

const snippetLimit = 240

type searchHit struct {
	Score      float64 `json:"score"`
	Title      string  `json:"title"`
	SourceType string  `json:"sourceType"`
	ChunkIndex int     `json:"chunkIndex"`
	Snippet    string  `json:"snippet"`
}

func snippetOf(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetLimit {
		return content
	}
	return string(runes[:snippetLimit]) + "..."
}

func (h *handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string   `json:"query"`
		DocIDs    []string `json:"docIds"`
		DocTitles []string `json:"docTitles"`
		Folder    string   `json:"folder"`
		TopK      int      `json:"topK"`
		MinScore  *float64 `json:"minScore"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		badRequest(w, "query", "required")
		return
	}

	hits, err := h.deps.Retriever.Retrieve(r.Context(), req.Query, rag.RetrieveOptions{
		DocIDs: req.DocIDs, DocTitles: req.DocTitles, Folder: req.Folder,
		TopK: req.TopK, MinScore: req.MinScore,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]searchHit, len(hits))
	for i, hit := range hits {
		out[i] = searchHit{
			Score: hit.Score, Title: hit.Chunk.DocTitle, SourceType: hit.Chunk.DocSourceType,
			ChunkIndex: hit.Chunk.ChunkIndex, Snippet: snippetOf(hit.Chunk.Content),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":          req.Query,
		"contextPreview": rag.RenderContext(hits),
		"hits":           out,
	})
}

func (h *handlers) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		Title    string `json:"title"`
		Content  string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		badRequest(w, "title", "required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		badRequest(w, "content", "required")
		return
	}

	mem, err := h.deps.Ingester.AddMemory(r.Context(), req.Category, req.Title, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

// handleListFolders returns the distinct non-empty document folders, for
// the upload/search folder filter in the UI.
func (h *handlers) handleListFolders(w http.ResponseWriter, r *http.Request) {
	docs, err := h.deps.Documents.ListDocuments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	seen := make(map[string]bool)
	var folders []string
	for _, d := range docs {
		if d.Folder == "" || seen[d.Folder] {
			continue
		}
		seen[d.Folder] = true
		folders = append(folders, d.Folder)
	}
	writeJSON(w, http.StatusOK, folders)
}

func (h *handlers) handleListWatchedFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.deps.Documents.ListWatchedFolders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

func (h *handlers) handleWatchFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		badRequest(w, "path", "required")
		return
	}

	folder, err := h.deps.Watcher.AddFolder(r.Context(), uuid.NewString(), req.Path)
	if err != nil {
		writeError(w, daemonerrors.Wrap(daemonerrors.ValidationError, err))
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

func (h *handlers) handleUnwatchFolder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	folders, err := h.deps.Documents.ListWatchedFolders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var path string
	for _, f := range folders {
		if f.ID == id {
			path = f.Path
			break
		}
	}
	if path == "" {
		writeError(w, daemonerrors.New(daemonerrors.NotFound, "unknown watched folder "+id))
		return
	}

	if err := h.deps.Watcher.RemoveFolder(r.Context(), id, path); err != nil {
		writeError(w, daemonerrors.Wrap(daemonerrors.Internal, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
