package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// FindDocumentByTitle returns the document matching title case-insensitively
// after trim, or nil if none matches. Used by the ifExists duplicate policy.
func (s *Store) FindDocumentByTitle(ctx context.Context, title string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, source_type, source_uri, mime_type, COALESCE(folder, ''), created_at
		FROM documents WHERE LOWER(TRIM(title)) = LOWER(TRIM(?))
		LIMIT 1
	`, title)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding document by title: %w", err)
	}
	return d, nil
}

func scanDocument(row *sql.Row) (*Document, error) {
	var d Document
	var sourceURI, mimeType sql.NullString
	var createdAt string
	if err := row.Scan(&d.ID, &d.Title, &d.SourceType, &sourceURI, &mimeType, &d.Folder, &createdAt); err != nil {
		return nil, err
	}
	d.SourceURI = sourceURI.String
	d.MimeType = mimeType.String
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

// CreateDocument inserts a new document row.
func (s *Store) CreateDocument(ctx context.Context, d Document) (*Document, error) {
	now := nowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, source_type, source_uri, mime_type, folder, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.Title, d.SourceType, d.SourceURI, d.MimeType, nullIfEmpty(d.Folder), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}
	d.CreatedAt = now
	return &d, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// DeleteDocument hard-deletes a document and cascades to its chunks and
// embeddings.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// GetDocument loads a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, source_type, source_uri, mime_type, COALESCE(folder, ''), created_at
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// ListDocuments returns every document, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, source_type, source_uri, mime_type, COALESCE(folder, ''), created_at
		FROM documents ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var sourceURI, mimeType sql.NullString
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.SourceType, &sourceURI, &mimeType, &d.Folder, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.SourceURI = sourceURI.String
		d.MimeType = mimeType.String
		d.CreatedAt = parseTime(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertChunks inserts a batch of chunks for a document inside one
// transaction.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, content, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(nowUTC())
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.ChunkIndex, c.Content, c.TokenCount, now); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

// ChunksForDocument returns the chunks of a document in index order.
func (s *Store) ChunksForDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, token_count, created_at
		FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var createdAt string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.TokenCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertEmbedding inserts or replaces the single embedding for a chunk.
func (s *Store) UpsertEmbedding(ctx context.Context, e Embedding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, vector, dim, model, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET vector = excluded.vector, dim = excluded.dim,
			model = excluded.model, created_at = excluded.created_at
	`, e.ChunkID, e.Vector, e.Dim, e.Model, formatTime(nowUTC()))
	if err != nil {
		return fmt.Errorf("upserting embedding: %w", err)
	}
	return nil
}

// SearchCandidateFilter narrows the candidate set loaded for retrieval.
type SearchCandidateFilter struct {
	DocIDs     []string
	DocTitles  []string
	Folder     string
}

// SearchCandidates loads every embedded chunk matching the filter, joined
// with its document's title/sourceType/folder for rendering. The caller
// decodes vectors and scores; this layer only narrows by docIds/folder
// exactly and by docTitles as a case-insensitive substring match, per §4.H.
func (s *Store) SearchCandidates(ctx context.Context, f SearchCandidateFilter) ([]ChunkWithDoc, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count, c.created_at,
		       d.title, d.source_type, COALESCE(d.folder, ''), e.vector
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		JOIN embeddings e ON e.chunk_id = c.id
		WHERE 1=1
	`)
	var args []any

	if len(f.DocIDs) > 0 {
		placeholders := make([]string, len(f.DocIDs))
		for i, id := range f.DocIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		b.WriteString(" AND c.document_id IN (" + strings.Join(placeholders, ",") + ")")
	}
	if f.Folder != "" {
		b.WriteString(" AND d.folder = ?")
		args = append(args, f.Folder)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying search candidates: %w", err)
	}
	defer rows.Close()

	var out []ChunkWithDoc
	for rows.Next() {
		var cw ChunkWithDoc
		var createdAt string
		var vector []byte
		if err := rows.Scan(&cw.ID, &cw.DocumentID, &cw.ChunkIndex, &cw.Content, &cw.TokenCount, &createdAt,
			&cw.DocTitle, &cw.DocSourceType, &cw.DocFolder, &vector); err != nil {
			return nil, fmt.Errorf("scanning search candidate: %w", err)
		}
		cw.CreatedAt = parseTime(createdAt)
		cw.embeddingBytes = vector
		out = append(out, cw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(f.DocTitles) == 0 {
		return out, nil
	}
	filtered := make([]ChunkWithDoc, 0, len(out))
	for _, cw := range out {
		title := strings.ToLower(cw.DocTitle)
		for _, want := range f.DocTitles {
			if strings.Contains(title, strings.ToLower(want)) {
				filtered = append(filtered, cw)
				break
			}
		}
	}
	return filtered, nil
}

// NewChunkWithDoc constructs a ChunkWithDoc from its parts, for callers
// (notably internal/rag's tests) that need to build one outside of
// SearchCandidates.
func NewChunkWithDoc(chunk Chunk, docTitle, docSourceType, docFolder string, embeddingBytes []byte) ChunkWithDoc {
	return ChunkWithDoc{
		Chunk:          chunk,
		DocTitle:       docTitle,
		DocSourceType:  docSourceType,
		DocFolder:      docFolder,
		embeddingBytes: embeddingBytes,
	}
}

// EmbeddingBytes returns the raw little-endian float32 buffer loaded
// alongside a ChunkWithDoc by SearchCandidates. internal/rag decodes it.
func (cw ChunkWithDoc) EmbeddingBytes() []byte { return cw.embeddingBytes }

// CreateMemory inserts a Memory row.
func (s *Store) CreateMemory(ctx context.Context, m Memory) (*Memory, error) {
	now := nowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, category, title, content, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.Category, m.Title, m.Content, m.Source, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("inserting memory: %w", err)
	}
	m.CreatedAt = now
	return &m, nil
}

// ListMemories returns every memory, newest first.
func (s *Store) ListMemories(ctx context.Context) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, title, content, source, created_at FROM memories ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var m Memory
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Category, &m.Title, &m.Content, &m.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
