// Package api provides HTTP handlers for the EarthMate companion server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/earthmate/earthmate/internal/backend"
	"github.com/earthmate/earthmate/internal/config"
	"github.com/earthmate/earthmate/internal/session"
	"github.com/earthmate/earthmate/internal/store"
)

const maxRequestBodySize = 64 << 10 // 64KB

// BackendProbe reports whether the footprint service is reachable.
type BackendProbe interface {
	Health(ctx context.Context) (*backend.Health, error)
}

// Handler provides common handler utilities.
type Handler struct {
	registry *session.Registry
	repo     store.Repository
	probe    BackendProbe
	hub      *Hub
	limiter  *RateLimiter

	// baseCtx outlives requests so background submits survive the 202.
	baseCtx        context.Context
	requestTimeout time.Duration
	originPatterns []string

	inflight sync.WaitGroup
}

// NewHandler creates a new Handler with common dependencies. Background
// requests are cancelled when ctx is done.
func NewHandler(ctx context.Context, cfg *config.Config, registry *session.Registry, repo store.Repository, probe BackendProbe, hub *Hub, limiter *RateLimiter) *Handler {
	return &Handler{
		registry:       registry,
		repo:           repo,
		probe:          probe,
		hub:            hub,
		limiter:        limiter,
		baseCtx:        ctx,
		requestTimeout: cfg.RequestTimeout,
		originPatterns: originPatterns(cfg),
	}
}

// Wait blocks until every background request has finished.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

// background runs start with a request-independent context and keeps the
// handler aware of it until done is closed.
func (h *Handler) background(start func(ctx context.Context) (<-chan struct{}, error)) error {
	ctx, cancel := context.WithTimeout(h.baseCtx, h.requestTimeout)
	done, err := start(ctx)
	if err != nil {
		cancel()
		return err
	}

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer cancel()
		<-done
	}()
	return nil
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON request body into v and writes the error
// response itself when that fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// originPatterns converts the allowed origins to websocket host patterns.
func originPatterns(cfg *config.Config) []string {
	var patterns []string
	for _, origin := range cfg.AllowedOrigins() {
		if origin == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	if cfg.IsDevelopment() {
		patterns = append(patterns, "localhost:*", "127.0.0.1:*")
	}
	return patterns
}
