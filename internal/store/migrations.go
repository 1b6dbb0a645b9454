package store

import (
	"context"
	"database/sql"
	"fmt"
)

// runMigrations executes all schema migrations inside one transaction.
// Every migration below is safe to re-run against an already-migrated
// database: table/index creation is IF NOT EXISTS, and column additions
// check PRAGMA table_info first.
func (s *Store) runMigrations(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	steps := []struct {
		name string
		fn   func(context.Context, *sql.Tx) error
	}{
		{"conversations", createConversationsTable},
		{"messages", createMessagesTable},
		{"config_entries", createConfigEntriesTable},
		{"documents", createDocumentsTable},
		{"documents.folder", addDocumentsFolderColumn},
		{"documents legacy repo_scan", stripLegacyRepoScanSourceType},
		{"chunks", createChunksTable},
		{"embeddings", createEmbeddingsTable},
		{"memories", createMemoriesTable},
		{"audit_log", createAuditLogTable},
		{"watched_folders", createWatchedFoldersTable},
		{"indexes", createIndexes},
	}

	for _, step := range steps {
		if err = step.fn(ctx, tx); err != nil {
			return fmt.Errorf("migration %q: %w", step.name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing migration transaction: %w", err)
	}
	return nil
}

func createConversationsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id            TEXT PRIMARY KEY,
			model         TEXT NOT NULL,
			system_prompt TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT 'active',
			end_reason    TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			ended_at      TEXT
		)
	`)
	return err
}

func createMessagesTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			ordinal         INTEGER NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			PRIMARY KEY (conversation_id, ordinal)
		)
	`)
	return err
}

func createConfigEntriesTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS config_entries (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

func createDocumentsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			source_type TEXT NOT NULL,
			source_uri  TEXT,
			mime_type   TEXT,
			created_at  TEXT NOT NULL
		)
	`)
	return err
}

// addDocumentsFolderColumn adds the nullable folder column if it's absent,
// per §4.A migration (2).
func addDocumentsFolderColumn(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `PRAGMA table_info(documents)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	hasFolder := false
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if name == "folder" {
			hasFolder = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if hasFolder {
		return nil
	}

	_, err = tx.ExecContext(ctx, `ALTER TABLE documents ADD COLUMN folder TEXT`)
	return err
}

// stripLegacyRepoScanSourceType migrates any row whose source_type is the
// retired "repo_scan" enum value through a shadow table, per §4.A
// migration (1). No code path produces repo_scan rows anymore; this only
// cleans up databases created by an earlier build.
func stripLegacyRepoScanSourceType(ctx context.Context, tx *sql.Tx) error {
	var count int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE source_type = 'repo_scan'`).Scan(&count)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	// Rebuilt with the same explicit schema documents carries, not
	// CREATE TABLE ... AS SELECT, which drops the PRIMARY KEY and leaves
	// the chunks->documents ON DELETE CASCADE with nothing to anchor to.
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE documents_shadow (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			source_type TEXT NOT NULL,
			source_uri  TEXT,
			mime_type   TEXT,
			created_at  TEXT NOT NULL,
			folder      TEXT
		)
	`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents_shadow SELECT id, title, source_type, source_uri, mime_type, created_at, folder
		FROM documents WHERE source_type != 'repo_scan'
	`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents_shadow SELECT id, title, 'upload', source_uri, mime_type, created_at, folder
		FROM documents WHERE source_type = 'repo_scan'
	`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE documents`); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `ALTER TABLE documents_shadow RENAME TO documents`)
	return err
}

func createChunksTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS chunks (
			id           TEXT PRIMARY KEY,
			document_id  TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index  INTEGER NOT NULL,
			content      TEXT NOT NULL,
			token_count  INTEGER NOT NULL,
			created_at   TEXT NOT NULL,
			UNIQUE(document_id, chunk_index)
		)
	`)
	return err
}

func createEmbeddingsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS embeddings (
			chunk_id   TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			vector     BLOB NOT NULL,
			dim        INTEGER NOT NULL,
			model      TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

func createMemoriesTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memories (
			id         TEXT PRIMARY KEY,
			category   TEXT NOT NULL,
			title      TEXT NOT NULL,
			content    TEXT NOT NULL,
			source     TEXT NOT NULL DEFAULT 'manual',
			created_at TEXT NOT NULL
		)
	`)
	return err
}

func createAuditLogTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			operation_type TEXT NOT NULL,
			details        TEXT NOT NULL,
			created_at     TEXT NOT NULL
		)
	`)
	return err
}

func createWatchedFoldersTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS watched_folders (
			id         TEXT PRIMARY KEY,
			path       TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

func createIndexes(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_conversations_status_updated ON conversations(status, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_source_folder ON documents(source_type, folder)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
