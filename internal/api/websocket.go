package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/earthmate/earthmate/internal/identity"
	"github.com/earthmate/earthmate/internal/session"
)

const (
	// EventState is the first message on every state socket.
	EventState = "state"

	writeTimeout      = 10 * time.Second
	keepaliveInterval = 30 * time.Second
)

type stateMessage struct {
	Type  string        `json:"type"`
	State session.State `json:"state"`
}

// HandleStateSocket handles GET /ws/state. The client receives the full
// state once and then every change of the identity's sessions.
func (h *Handler) HandleStateSocket(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	// Subscribe before the snapshot so no change falls between the two.
	sub := h.hub.Register(userID, sessionID)
	defer h.hub.Unregister(sub)

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	b := h.registry.Get(ctx, userID)
	if err := writeJSON(ctx, ws, stateMessage{Type: EventState, State: b.State()}); err != nil {
		slog.Debug("Failed to send initial state", "error", err, "user_id", userID)
		return
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("State socket closed by client", "user_id", userID, "session_id", sessionID)
			return
		case <-sub.done:
			return
		case data := <-sub.send:
			if err := write(ctx, ws, data); err != nil {
				slog.Debug("State socket write error", "error", err, "user_id", userID)
				return
			}
		case <-keepalive.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.Debug("State socket keepalive failed", "error", err, "user_id", userID)
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return write(ctx, ws, data)
}

func write(ctx context.Context, ws *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
