// Package session keeps the per-browser plan and chat sessions hosted by the
// companion server.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/earthmate/earthmate/internal/chat"
	"github.com/earthmate/earthmate/internal/domain"
	"github.com/earthmate/earthmate/internal/plan"
	"github.com/earthmate/earthmate/internal/store"
)

// Event types pushed to subscribers.
const (
	EventView = "view"
	EventPlan = "plan"
	EventChat = "chat"
)

// Event is one state change of a bundle.
type Event struct {
	Type string         `json:"type"`
	View domain.View    `json:"view,omitempty"`
	Plan *plan.Snapshot `json:"plan,omitempty"`
	Chat *chat.Snapshot `json:"chat,omitempty"`
}

// Publisher fans events out to whoever renders the user's sessions.
type Publisher interface {
	Publish(userID string, ev Event)
}

// Backend is everything the sessions need from the footprint service.
type Backend interface {
	plan.Backend
	chat.Backend
}

// Bundle is the state one browser identity works with.
type Bundle struct {
	UserID string
	Plan   *plan.Session
	Chat   *chat.Session

	mu       sync.Mutex
	view     domain.View
	lastSeen time.Time
}

// View returns the selected view.
func (b *Bundle) View() domain.View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view
}

func (b *Bundle) touch(now time.Time) {
	b.mu.Lock()
	b.lastSeen = now
	b.mu.Unlock()
}

func (b *Bundle) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen
}

// State is the full render state of a bundle.
type State struct {
	View domain.View   `json:"view"`
	Plan plan.Snapshot `json:"plan"`
	Chat chat.Snapshot `json:"chat"`
}

// State returns a consistent snapshot of all three parts.
func (b *Bundle) State() State {
	return State{
		View: b.View(),
		Plan: b.Plan.Snapshot(),
		Chat: b.Chat.Snapshot(),
	}
}

func (b *Bundle) close() {
	b.Plan.Close()
	b.Chat.Close()
}

// Registry creates bundles on first use and evicts idle ones.
type Registry struct {
	backend    Backend
	repo       store.Repository
	storageKey string
	publisher  Publisher
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	bundles map[string]*Bundle
}

// NewRegistry creates an empty registry. Chat transcripts are stored under
// storageKey + ":" + userID.
func NewRegistry(backend Backend, repo store.Repository, storageKey string, publisher Publisher, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		backend:    backend,
		repo:       repo,
		storageKey: storageKey,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
		bundles:    make(map[string]*Bundle),
	}
}

// TranscriptKey returns the storage key for a user's transcript.
func (r *Registry) TranscriptKey(userID string) string {
	return r.storageKey + ":" + userID
}

// Get returns the user's bundle, creating it on first use.
func (r *Registry) Get(ctx context.Context, userID string) *Bundle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bundles[userID]; ok {
		b.touch(r.now())
		return b
	}

	logger := r.logger.With("user_id", userID)
	b := &Bundle{
		UserID:   userID,
		view:     domain.ViewPlan,
		lastSeen: r.now(),
	}
	b.Plan = plan.New(r.backend,
		plan.WithLogger(logger),
		plan.WithObserver(func(snap plan.Snapshot) {
			r.publish(userID, Event{Type: EventPlan, Plan: &snap})
		}),
	)
	b.Chat = chat.New(ctx, r.backend, store.NewTranscriptStore(r.repo, r.TranscriptKey(userID)),
		chat.WithLogger(logger),
		chat.WithObserver(func(snap chat.Snapshot) {
			r.publish(userID, Event{Type: EventChat, Chat: &snap})
		}),
	)
	r.bundles[userID] = b

	logger.Info("Session bundle created", "transcript_len", len(b.Chat.Snapshot().Transcript))
	return b
}

// SelectView switches the user's visible flow.
func (r *Registry) SelectView(ctx context.Context, userID string, v domain.View) {
	b := r.Get(ctx, userID)
	b.mu.Lock()
	changed := b.view != v
	b.view = v
	b.mu.Unlock()
	if changed {
		r.publish(userID, Event{Type: EventView, View: v})
	}
}

// Len returns the number of live bundles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bundles)
}

// EvictIdle closes and removes bundles not used for ttl. It returns the
// evicted user IDs.
func (r *Registry) EvictIdle(ttl time.Duration) []string {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	var expired []*Bundle
	for id, b := range r.bundles {
		if b.idleSince().Before(cutoff) {
			expired = append(expired, b)
			delete(r.bundles, id)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, b := range expired {
		b.close()
		ids = append(ids, b.UserID)
	}
	return ids
}

// CloseAll tears every bundle down.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	bundles := r.bundles
	r.bundles = make(map[string]*Bundle)
	r.mu.Unlock()

	for _, b := range bundles {
		b.close()
	}
}

func (r *Registry) publish(userID string, ev Event) {
	if r.publisher != nil {
		r.publisher.Publish(userID, ev)
	}
}
