// Command consultd is the AI Consultation daemon of §4.B: it elects
// itself the single instance via the on-disk lock, opens the store,
// wires the Config, Conversation, Provider, RAG, Orchestrator and Event
// Hub components, and serves the Boundary until signalled to stop or
// until the idle timer fires with no clients connected.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"consultd/internal/boundary"
	"consultd/internal/config"
	"consultd/internal/conversation"
	"consultd/internal/hub"
	"consultd/internal/idle"
	"consultd/internal/lock"
	"consultd/internal/logging"
	"consultd/internal/orchestrator"
	"consultd/internal/provider"
	"consultd/internal/rag"
	"consultd/internal/store"
	"consultd/internal/watcher"
)

const idleDuration = 30 * time.Minute

func main() {
	logger := logging.NewLogger("daemon", logging.INFO, os.Stdout)

	if len(os.Args) > 1 && os.Args[1] != "--daemon" {
		fmt.Fprintf(os.Stderr, "consultd: only --daemon is implemented by this build\n")
		os.Exit(1)
	}

	if err := run(logger); err != nil {
		var already *lock.AlreadyRunningError
		if errors.As(err, &already) {
			fmt.Fprintf(os.Stderr, "consultd: already running on port %d (pid %d)\n", already.File.Port, already.File.PID)
			os.Exit(1)
		}
		logger.Error("fatal: %v", err)
		os.Exit(1)
	}
}

func run(logger *logging.Logger) error {
	dataDir, err := dataDirectory()
	if err != nil {
		return fmt.Errorf("resolving data directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	daemonLock, err := lock.Acquire(dataDir)
	if err != nil {
		return err
	}
	defer daemonLock.Release()

	st, err := store.Open(filepath.Join(dataDir, "data.db"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	eventHub := hub.New(logger)
	configSvc := config.NewService(st, eventHub)

	if _, err := configSvc.Load(context.Background()); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	requestTimeout := time.Duration(config.Defaults().RequestTimeout) * time.Millisecond
	providerAdapter := provider.NewAdapter(configSvc, requestTimeout, logger)

	conversations := conversation.NewService(st, eventHub, configSvc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := conversations.Sweep(ctx); err != nil {
		logger.Warn("initial conversation sweep failed: %v", err)
	}
	go conversations.RunSweepLoop(ctx)

	embedURL := os.Getenv("RAG_EMBED_URL")
	if embedURL == "" {
		embedURL = rag.DefaultEmbedURL
	}
	embedClient := rag.NewEmbedClient(embedURL)
	chunker := rag.NewChunker(1000, 150)
	ingester := rag.NewIngester(st, embedClient, chunker, logger)
	retriever := rag.NewRetriever(st, embedClient)

	folderWatcher, err := watcher.New(ingester, st, logger)
	if err != nil {
		return fmt.Errorf("starting folder watcher: %w", err)
	}
	if err := folderWatcher.Start(ctx); err != nil {
		return fmt.Errorf("starting folder watcher: %w", err)
	}

	orchestratorSvc := orchestrator.NewService(conversations, providerAdapter, configSvc, retriever)
	registerConsultOperations(eventHub, orchestratorSvc, configSvc, conversations)

	idleTimer := idle.New(eventHub, idleDuration, logger)

	router := boundary.NewRouter(boundary.Deps{
		Config:        configSvc,
		Conversations: conversations,
		Orchestrator:  orchestratorSvc,
		Provider:      providerAdapter,
		Ingester:      ingester,
		Retriever:     retriever,
		Documents:     st,
		Watcher:       folderWatcher,
		Embed:         embedClient,
		EmbedURL:      embedURL,
		Idle:          idleTimer,
		Hub:           eventHub,
		Logger:        logger,
		Token:         daemonLock.Token(),
		StartedAt:     time.Now().UTC(),
		WebUIDir:      os.Getenv("CONSULTD_WEBUI_DIR"),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", daemonLock.Port()),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	shutdown := make(chan struct{}, 1)
	signalShutdown := func() {
		select {
		case shutdown <- struct{}{}:
		default:
		}
	}
	go idleTimer.Run(ctx, signalShutdown)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal %s, shutting down", sig)
	case <-shutdown:
		logger.Info("idle timeout reached with no clients connected, shutting down")
	case err := <-serveErr:
		cancel()
		return fmt.Errorf("serving: %w", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown did not complete cleanly: %v", err)
	}

	return nil
}

func dataDirectory() (string, error) {
	if dir := os.Getenv("CONSULTD_DATA_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ai-consultation-mcp"), nil
}
