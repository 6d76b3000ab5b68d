package main

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
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/earthmate/earthmate/internal/api"
	"github.com/earthmate/earthmate/internal/backend"
	"github.com/earthmate/earthmate/internal/identity"
	"github.com/earthmate/earthmate/internal/middleware"
	"github.com/earthmate/earthmate/internal/session"
	"github.com/earthmate/earthmate/internal/store"
	"github.com/earthmate/earthmate/web"
)

const ttlSweepInterval = time.Minute

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the companion HTTP server",
	Long: `Hosts one plan and chat session per browser identity and exposes them
over a JSON API plus a websocket that pushes every state change.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.Level,
	}))
	slog.SetDefault(logger)

	if servePort != "" {
		cfg.Port = servePort
	}
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.BackendURL)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	client := backend.NewClient(cfg.BackendURL, cfg.RequestTimeout, backend.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub()
	registry := session.NewRegistry(client, repo, cfg.ChatStorageKey, hub, logger)
	defer registry.CloseAll()
	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerMinute)
	handler := api.NewHandler(ctx, cfg, registry, repo, client, hub, limiter)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	handler.RegisterRoutes(r)

	// Serve the embedded browser client (SPA catch-all).
	r.Handle("/*", web.Handler())

	// Websocket connections are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	session.StartTTLWorker(ctx, registry, cfg.SessionTTL, ttlSweepInterval, func(userID string) {
		hub.CloseUser(userID)
		limiter.Forget(userID)
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	// Background requests were cancelled with ctx; let them write their
	// final state before the store closes.
	handler.Wait()

	slog.Info("Server stopped successfully")
	return nil
}
