// Package internal wires configuration, storage, indexing, and the
// transports into the runnable application.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/mcpserver"
	"github.com/starford/raido/internal/noteservice"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/storage"
)

// core is the wiring shared by the HTTP and MCP entry points: vault storage,
// the SQLite index, the indexer that keeps them in sync, and the note service
// on top.
type core struct {
	store *storage.FS
	db    *index.DB
	ix    *index.Indexer
	svc   *noteservice.Service
}

// buildCore opens storage and the index, runs one full index pass, and wires
// the note service. cb may be nil when nobody consumes change events.
func buildCore(ctx context.Context, cfg *Config, logger *slog.Logger, cb index.EventCallback) (*core, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path, storage.WithIgnore(cfg.Vault.Ignore))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	ix := index.NewIndexer(db, store, logger, cb)

	// Initial pass so the index and graph are populated before traffic.
	if sum, err := ix.Reindex(ctx); err != nil {
		logger.Warn("initial index pass failed", slog.String("error", err.Error()))
	} else {
		logger.Info("vault indexed",
			slog.Int("parsed", sum.Parsed),
			slog.Int("resolved", sum.Resolved),
			slog.Int("dangling", sum.Dangling),
			slog.Int("failed", sum.Failed))
	}

	return &core{
		store: store,
		db:    db,
		ix:    ix,
		svc:   noteservice.NewService(store, db, ix),
	}, nil
}

func (c *core) Close() {
	c.db.Close()
}

func newLogger(out *os.File, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	cfg, err := collect(opts)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stdout, cfg.App.LogLevel)

	logger.Info("configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker. Indexer changes are published as note.* events.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := buildCore(ctx, cfg, logger, broker.PublishNoteEvent)
	if err != nil {
		return err
	}
	defer c.Close()

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, cfg.Vault.Path)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", healthHandler)
	r.Get("/health/ready", healthHandler)

	// Attachments are served unauthenticated so image URLs embedded in note
	// bodies render in any client.
	ah := api.NewAttachmentHandler(cfg.Vault.Path)
	r.Get("/attachments/{filename}", ah.ServeFile)

	// Everything else, including SSE at /api/events, sits behind the API auth.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the vault for external edits; each burst triggers a reindex pass.
	g.Go(func() error {
		return index.Watch(gCtx, c.ix, cfg.Vault.Path, logger)
	})

	g.Go(func() error {
		logger.Info("http server listening", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("context cancelled, shutting down")
		}

		logger.Info("draining http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("run failed", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return nil
}

// RunMCP starts the MCP server on stdio with the given options. Logs go to
// stderr because stdout carries the MCP transport.
func RunMCP(ctx context.Context, opts ...Option) error {
	cfg, err := collect(opts)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg.App.LogLevel)

	// No change-event consumer and no watcher in stdio mode; the initial pass
	// plus the reindex after every tool mutation keep the index current.
	c, err := buildCore(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := mcpserver.New(c.store, c.svc)

	logger.Info("mcp server on stdio",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path))

	return srv.ServeStdio()
}
