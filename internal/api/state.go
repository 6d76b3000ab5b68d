package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/earthmate/earthmate/internal/chat"
	"github.com/earthmate/earthmate/internal/domain"
	"github.com/earthmate/earthmate/internal/identity"
	"github.com/earthmate/earthmate/internal/session"
)

type viewRequest struct {
	View string `json:"view"`
}

type fieldRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type draftRequest struct {
	Text string `json:"text"`
}

// RegisterRoutes mounts the session endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Get("/state", h.HandleState)
		r.Put("/view", h.HandleView)
		r.Put("/plan/fields", h.HandlePlanField)
		r.Post("/plan/submit", h.HandlePlanSubmit)
		r.Put("/chat/draft", h.HandleChatDraft)
		r.Post("/chat/send", h.HandleChatSend)
	})
	r.Get("/ws/state", h.HandleStateSocket)
}

func (h *Handler) bundle(r *http.Request) (*session.Bundle, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		return nil, false
	}
	return h.registry.Get(r.Context(), userID), true
}

// HandleState handles GET /api/state.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	b, ok := h.bundle(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, b.State())
}

// HandleView handles PUT /api/view.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req viewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := domain.ParseView(req.View)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	h.registry.SelectView(r.Context(), userID, v)
	JSON(w, http.StatusOK, map[string]domain.View{"view": v})
}

// HandlePlanField handles PUT /api/plan/fields.
func (h *Handler) HandlePlanField(w http.ResponseWriter, r *http.Request) {
	b, ok := h.bundle(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req fieldRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := b.Plan.UpdateField(req.Name, req.Value); err != nil {
		writeSessionError(w, err)
		return
	}
	JSON(w, http.StatusOK, b.Plan.Snapshot())
}

// HandlePlanSubmit handles POST /api/plan/submit. The request runs in the
// background; its outcome reaches the client through /ws/state or a later
// GET /api/state.
func (h *Handler) HandlePlanSubmit(w http.ResponseWriter, r *http.Request) {
	b, ok := h.bundle(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	err := h.background(func(ctx context.Context) (<-chan struct{}, error) {
		return b.Plan.SubmitAsync(ctx)
	})
	if err != nil {
		writeSessionError(w, err)
		return
	}
	JSON(w, http.StatusAccepted, b.Plan.Snapshot())
}

// HandleChatDraft handles PUT /api/chat/draft.
func (h *Handler) HandleChatDraft(w http.ResponseWriter, r *http.Request) {
	b, ok := h.bundle(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req draftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := b.Chat.UpdateDraft(req.Text); err != nil {
		writeSessionError(w, err)
		return
	}
	JSON(w, http.StatusOK, b.Chat.Snapshot())
}

// HandleChatSend handles POST /api/chat/send.
func (h *Handler) HandleChatSend(w http.ResponseWriter, r *http.Request) {
	b, ok := h.bundle(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// Keyed by identity only so rotating tab ids does not reset the budget.
	if !h.limiter.Allow(b.UserID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	err := h.background(func(ctx context.Context) (<-chan struct{}, error) {
		return b.Chat.SendAsync(ctx)
	})
	if err != nil {
		writeSessionError(w, err)
		return
	}
	JSON(w, http.StatusAccepted, b.Chat.Snapshot())
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrBusy):
		Error(w, http.StatusConflict, "request in flight")
	case errors.Is(err, chat.ErrEmptyDraft):
		Error(w, http.StatusBadRequest, "message is required")
	case errors.Is(err, domain.ErrUnknownField), errors.Is(err, domain.ErrInvalidOption):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSessionClosed):
		Error(w, http.StatusGone, "session expired, reload to start a new one")
	default:
		slog.Error("Session operation failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
