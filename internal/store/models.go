package store

import "time"

// Conversation mirrors §3's Conversation entity.
type Conversation struct {
	ID            string
	Model         string
	SystemPrompt  string
	Status        string // "active" | "archived"
	EndReason     string // "completed" | "timeout" | "manual" | ""
	CreatedAt     time.Time
	UpdatedAt     time.Time
	EndedAt       *time.Time
	Messages      []Message
}

// Message is one turn of a Conversation. Immutable once inserted.
type Message struct {
	Ordinal        int
	ConversationID string
	Role           string // "user" | "assistant" | "system"
	Content        string
	CreatedAt      time.Time
}

// ConfigEntry is a single key/value row backing the Config Service.
type ConfigEntry struct {
	Key   string
	Value string
}

// Document is an ingested source, owning an ordered set of Chunks.
type Document struct {
	ID         string
	Title      string
	SourceType string // "upload" | "manual"
	SourceURI  string
	MimeType   string
	Folder     string
	CreatedAt  time.Time
}

// Chunk is one contiguous span of a Document's text.
type Chunk struct {
	ID          string
	DocumentID  string
	ChunkIndex  int
	Content     string
	TokenCount  int
	CreatedAt   time.Time
}

// ChunkWithDoc joins a Chunk with the fields of its owning Document that
// retrieval and rendering need, so callers don't round-trip the store.
type ChunkWithDoc struct {
	Chunk
	DocTitle      string
	DocSourceType string
	DocFolder     string

	embeddingBytes []byte
}

// Embedding is the vector for a single Chunk. At most one per chunk;
// inserting replaces.
type Embedding struct {
	ChunkID   string
	Vector    []byte // little-endian IEEE-754 32-bit floats
	Dim       int
	Model     string
	CreatedAt time.Time
}

// Memory is a structured note, category-tagged, mirrored into a Document
// so it is retrievable by the same path as an uploaded file.
type Memory struct {
	ID        string
	Category  string // architecture|backend|db|auth|config|flow|other
	Title     string
	Content   string
	Source    string // "manual"
	CreatedAt time.Time
}

// AuditEntry is one row of the generalized audit trail.
type AuditEntry struct {
	ID            int64
	OperationType string
	Details       string
	CreatedAt     time.Time
}

// WatchedFolder is a registered folder auto-ingested by internal/watcher.
type WatchedFolder struct {
	ID        string
	Path      string
	CreatedAt time.Time
}
