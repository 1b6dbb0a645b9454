package store

import (
	"context"
	"fmt"
)

// AddAuditEntry appends an audit trail row. Callers ignore its error —
// auditing must never block the operation it records.
func (s *Store) AddAuditEntry(ctx context.Context, operationType, details string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (operation_type, details, created_at) VALUES (?, ?, ?)
	`, operationType, details, formatTime(nowUTC()))
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns every audit row, newest first.
func (s *Store) ListAuditEntries(ctx context.Context) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation_type, details, created_at FROM audit_log ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.OperationType, &e.Details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddWatchedFolder registers a folder for auto-ingest.
func (s *Store) AddWatchedFolder(ctx context.Context, id, path string) (*WatchedFolder, error) {
	now := nowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watched_folders (id, path, created_at) VALUES (?, ?, ?)
	`, id, path, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("inserting watched folder: %w", err)
	}
	return &WatchedFolder{ID: id, Path: path, CreatedAt: now}, nil
}

// RemoveWatchedFolder unregisters a folder by id.
func (s *Store) RemoveWatchedFolder(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM watched_folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting watched folder: %w", err)
	}
	return nil
}

// ListWatchedFolders returns every registered folder.
func (s *Store) ListWatchedFolders(ctx context.Context) ([]WatchedFolder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path, created_at FROM watched_folders ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying watched folders: %w", err)
	}
	defer rows.Close()

	var out []WatchedFolder
	for rows.Next() {
		var f WatchedFolder
		var createdAt string
		if err := rows.Scan(&f.ID, &f.Path, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning watched folder: %w", err)
		}
		f.CreatedAt = parseTime(createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}
