package api

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/earthmate/earthmate/internal/session"
)

const subscriberBuffer = 64

// Subscription is one open /ws/state connection.
type Subscription struct {
	userID    string
	sessionID string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub tracks state subscribers per user and tab and fans session events out
// to them. A newer connection from the same tab replaces the older one.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*Subscription
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[string]*Subscription),
	}
}

// Register adds a subscriber for a user/session.
func (h *Hub) Register(userID, sessionID string) *Subscription {
	sub := &Subscription{
		userID:    userID,
		sessionID: sessionID,
		send:      make(chan []byte, subscriberBuffer),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]*Subscription)
	}
	if existing, exists := h.active[userID][sessionID]; exists {
		existing.close()
	}
	h.active[userID][sessionID] = sub
	slog.Info("State subscriber registered", "user_id", userID, "session_id", sessionID)
	return sub
}

// Unregister removes sub if it is still the current subscriber of its tab.
func (h *Hub) Unregister(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub.close()
	if sessions, ok := h.active[sub.userID]; ok {
		if current, exists := sessions[sub.sessionID]; exists && current == sub {
			delete(sessions, sub.sessionID)
			if len(sessions) == 0 {
				delete(h.active, sub.userID)
			}
			slog.Info("State subscriber unregistered", "user_id", sub.userID, "session_id", sub.sessionID)
		}
	}
}

// Publish implements session.Publisher. A subscriber that cannot keep up is
// disconnected; it resynchronises from the initial state on reconnect.
func (h *Hub) Publish(userID string, ev session.Event) {
	h.mu.RLock()
	sessions := h.active[userID]
	if len(sessions) == 0 {
		h.mu.RUnlock()
		return
	}
	subs := make([]*Subscription, 0, len(sessions))
	for _, sub := range sessions {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to encode state event", "error", err, "type", ev.Type)
		return
	}

	for _, sub := range subs {
		select {
		case sub.send <- data:
		case <-sub.done:
		default:
			slog.Warn("Dropping slow state subscriber", "user_id", userID, "session_id", sub.sessionID)
			sub.close()
		}
	}
}

// CloseUser disconnects all subscribers of a user.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.active[userID]
	if !ok {
		return
	}
	for sid, sub := range sessions {
		sub.close()
		slog.Info("State subscriber closed", "user_id", userID, "session_id", sid)
	}
	delete(h.active, userID)
}

// Count returns the number of subscribers of a user.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID])
}
