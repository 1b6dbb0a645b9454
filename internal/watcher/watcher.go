// Package watcher implements the folder auto-ingest supplement: a
// background fsnotify watcher that runs new and changed files dropped
// into registered folders through the same chunk->embed->store path as a
// manual upload. Grounded on the teacher's internal/watcher/watcher.go
// (fsWatcher lifecycle, eventLoop, extension/size gating, validatePath's
// system-directory blocklist), generalized from its tags-based
// IngestText call to the RAG Pipeline's file-path Ingester.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"consultd/internal/logging"
	"consultd/internal/rag"
	"consultd/internal/store"
)

// Ingester is the RAG Pipeline dependency that turns a file on disk into
// a stored, embedded document.
type Ingester interface {
	IngestBatch(ctx context.Context, inputs []rag.IngestInput, ifExists rag.IfExists) ([]rag.IngestResult, error)
}

// Store is the watched-folder persistence dependency.
type Store interface {
	AddWatchedFolder(ctx context.Context, id, path string) (*store.WatchedFolder, error)
	RemoveWatchedFolder(ctx context.Context, id string) error
	ListWatchedFolders(ctx context.Context) ([]store.WatchedFolder, error)
}

var allowedExtensions = map[string]bool{
	".txt": true, ".md": true, ".pdf": true, ".docx": true, ".html": true, ".htm": true,
}

const maxWatchedFileSize = 10 * 1024 * 1024

// Watcher monitors registered folders and auto-ingests files dropped
// into them.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	ingester  Ingester
	store     Store
	logger    *logging.Logger
}

func New(ingester Ingester, store Store, logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{fsWatcher: fsw, ingester: ingester, store: store, logger: logger}, nil
}

// Start loads every registered folder, attaches fsnotify to each, and
// runs the event loop until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	folders, err := w.store.ListWatchedFolders(ctx)
	if err != nil {
		return fmt.Errorf("loading watched folders: %w", err)
	}

	for _, f := range folders {
		if err := w.attach(f.Path); err != nil {
			w.logger.WithContext("error", err.Error()).WithContext("path", f.Path).Warn("skipping watched folder")
		}
	}

	go w.eventLoop(ctx)
	w.logger.WithContext("folders", len(folders)).Info("folder watcher started")
	return nil
}

func (w *Watcher) attach(path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	return w.fsWatcher.Add(path)
}

// AddFolder registers a new folder with both fsnotify and the store,
// rolling back the fsnotify add if the store write fails.
func (w *Watcher) AddFolder(ctx context.Context, id, path string) (*store.WatchedFolder, error) {
	if err := w.attach(path); err != nil {
		return nil, fmt.Errorf("watching folder: %w", err)
	}
	folder, err := w.store.AddWatchedFolder(ctx, id, path)
	if err != nil {
		w.fsWatcher.Remove(path)
		return nil, fmt.Errorf("saving watched folder: %w", err)
	}
	return folder, nil
}

// RemoveFolder unregisters a folder from both fsnotify and the store.
func (w *Watcher) RemoveFolder(ctx context.Context, id, path string) error {
	w.fsWatcher.Remove(path)
	return w.store.RemoveWatchedFolder(ctx, id)
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.fsWatcher.Close()
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.WithContext("error", err.Error()).Error("watcher error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !shouldProcess(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		w.ingestFile(ctx, event.Name)
	}
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	logger := w.logger.WithContext("file_path", path)

	results, err := w.ingester.IngestBatch(ctx, []rag.IngestInput{
		{Path: path, Folder: filepath.Dir(path)},
	}, rag.IfExistsReplace)
	if err != nil {
		logger.WithContext("error", err.Error()).Error("failed to auto-ingest file")
		return
	}
	if len(results) == 0 {
		return
	}
	logger.WithContext("chunks", results[0].ChunkCount).Debug("auto-ingested file")
}

func shouldProcess(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !allowedExtensions[ext] {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() <= maxWatchedFileSize
}

var blockedPrefixes = []string{"/etc", "/sys", "/proc", "/System", "/Windows"}

func validatePath(path string) error {
	for _, prefix := range blockedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return fmt.Errorf("cannot watch system directory: %s", path)
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %s", path)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	return nil
}
