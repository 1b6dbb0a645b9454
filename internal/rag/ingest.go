package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"consultd/internal/logging"
	"consultd/internal/store"
)

// IfExists is the per-batch duplicate policy of §4.H.
type IfExists string

const (
	IfExistsSkip    IfExists = "skip"
	IfExistsAllow   IfExists = "allow"
	IfExistsReplace IfExists = "replace"
)

// embedBatchSize is the batch reindex/ingest chunk-per-embedding-call size.
const embedBatchSize = 50

// IngestStore is the persistence dependency Ingester needs.
type IngestStore interface {
	FindDocumentByTitle(ctx context.Context, title string) (*store.Document, error)
	CreateDocument(ctx context.Context, d store.Document) (*store.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	InsertChunks(ctx context.Context, chunks []store.Chunk) error
	ChunksForDocument(ctx context.Context, documentID string) ([]store.Chunk, error)
	UpsertEmbedding(ctx context.Context, e store.Embedding) error
	CreateMemory(ctx context.Context, m store.Memory) (*store.Memory, error)
	AddAuditEntry(ctx context.Context, operationType, details string) error
}

// Ingester runs the Ingest/Reindex/AddMemory operations of §4.H.
type Ingester struct {
	store    IngestStore
	embedder Embedder
	chunker  *Chunker
	logger   *logging.Logger
}

func NewIngester(store IngestStore, embedder Embedder, chunker *Chunker, logger *logging.Logger) *Ingester {
	return &Ingester{store: store, embedder: embedder, chunker: chunker, logger: logger}
}

// IngestInput is one file to ingest in a batch.
type IngestInput struct {
	Path   string
	Folder string
}

// IngestResult reports what happened to one input.
type IngestResult struct {
	DocumentID string
	Title      string
	Skipped    bool
	ChunkCount int
}

// IngestBatch ingests every input under the given duplicate policy. skip
// and replace also deduplicate within the batch itself by normalized
// title, so two same-titled files in one upload don't both land.
func (ing *Ingester) IngestBatch(ctx context.Context, inputs []IngestInput, ifExists IfExists) ([]IngestResult, error) {
	seen := make(map[string]bool)
	results := make([]IngestResult, 0, len(inputs))

	for _, in := range inputs {
		title := filepath.Base(in.Path)
		normalized := strings.ToLower(strings.TrimSpace(title))

		if ifExists != IfExistsAllow {
			if seen[normalized] {
				results = append(results, IngestResult{Title: title, Skipped: true})
				continue
			}
			seen[normalized] = true

			existing, err := ing.store.FindDocumentByTitle(ctx, title)
			if err != nil {
				return results, fmt.Errorf("checking existing document %q: %w", title, err)
			}
			if existing != nil {
				if ifExists == IfExistsSkip {
					results = append(results, IngestResult{DocumentID: existing.ID, Title: title, Skipped: true})
					continue
				}
				if err := ing.store.DeleteDocument(ctx, existing.ID); err != nil {
					return results, fmt.Errorf("replacing document %q: %w", title, err)
				}
			}
		}

		ext := strings.ToLower(filepath.Ext(in.Path))
		text, err := extractText(in.Path, ext)
		if err != nil {
			return results, fmt.Errorf("extracting %q: %w", in.Path, err)
		}

		doc, chunkCount, err := ing.ingestDocument(ctx, title, "upload", in.Path, mimeByExtension(ext), in.Folder, text)
		if err != nil {
			return results, fmt.Errorf("ingesting %q: %w", in.Path, err)
		}
		ing.store.AddAuditEntry(ctx, "rag.upload", fmt.Sprintf("title=%s chunks=%d", title, chunkCount))
		results = append(results, IngestResult{DocumentID: doc.ID, Title: title, ChunkCount: chunkCount})
	}

	return results, nil
}

// ingestDocument creates the Document, inserts its Chunks, and embeds
// them, per §4.H's create->insert->embed->insert-embedding pipeline.
func (ing *Ingester) ingestDocument(ctx context.Context, title, sourceType, sourceURI, mimeType, folder, text string) (*store.Document, int, error) {
	doc, err := ing.store.CreateDocument(ctx, store.Document{
		ID:         newID(),
		Title:      title,
		SourceType: sourceType,
		SourceURI:  sourceURI,
		MimeType:   mimeType,
		Folder:     folder,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("creating document: %w", err)
	}

	pieces := ing.chunker.ChunkText(text)
	if len(pieces) == 0 {
		return doc, 0, nil
	}

	chunks := make([]store.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = store.Chunk{
			ID:         newID(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    p,
			TokenCount: EstimateTokens(p),
		}
	}
	if err := ing.store.InsertChunks(ctx, chunks); err != nil {
		return nil, 0, fmt.Errorf("inserting chunks: %w", err)
	}

	if err := ing.embedChunks(ctx, chunks); err != nil {
		return nil, 0, fmt.Errorf("embedding chunks: %w", err)
	}

	return doc, len(chunks), nil
}

// embedChunks embeds and stores vectors in batches of embedBatchSize, per
// §4.H's "Batch reindex processes 50 chunks per embedding call."
func (ing *Ingester) embedChunks(ctx context.Context, chunks []store.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, model, err := ing.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding service returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		for i, v := range vectors {
			err := ing.store.UpsertEmbedding(ctx, store.Embedding{
				ChunkID: batch[i].ID,
				Vector:  EncodeVector(v),
				Dim:     len(v),
				Model:   model,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Reindex re-embeds every chunk of a document, overwriting its stored
// vectors. Used when the embedding model or service changes.
func (ing *Ingester) Reindex(ctx context.Context, documentID string) (int, error) {
	chunks, err := ing.store.ChunksForDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("loading chunks: %w", err)
	}
	if err := ing.embedChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("re-embedding chunks: %w", err)
	}
	ing.store.AddAuditEntry(ctx, "rag.reindex", fmt.Sprintf("documentId=%s chunks=%d", documentID, len(chunks)))
	return len(chunks), nil
}

// DeleteDocument hard-deletes a document and audits the operation.
func (ing *Ingester) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := ing.store.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}
	if err := ing.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	title := documentID
	if doc != nil {
		title = doc.Title
	}
	ing.store.AddAuditEntry(ctx, "rag.delete", fmt.Sprintf("title=%s", title))
	return nil
}

// AddMemory persists a Memory record and mirrors it into a Document
// titled "Memory: <title>" so it's retrievable through the same
// chunk/embed/search path as an uploaded file, per §4.H.
func (ing *Ingester) AddMemory(ctx context.Context, category, title, content string) (*store.Memory, error) {
	mem, err := ing.store.CreateMemory(ctx, store.Memory{
		ID:       newID(),
		Category: category,
		Title:    title,
		Content:  content,
		Source:   "manual",
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory: %w", err)
	}

	if _, _, err := ing.ingestDocument(ctx, "Memory: "+title, "manual", "", "", "", content); err != nil {
		return nil, fmt.Errorf("mirroring memory into document: %w", err)
	}
	return mem, nil
}
