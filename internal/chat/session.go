// Package chat implements the assistant conversation: a persisted transcript,
// a draft, and at most one outstanding message at a time.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/earthmate/earthmate/internal/domain"
	"github.com/earthmate/earthmate/internal/store"
)

// Bot texts used when the backend gives nothing usable.
const (
	NoResponseText      = "⚠️ No response from server"
	ConnectionErrorText = "⚠️ Error connecting to server"
)

const defaultSaveTimeout = 5 * time.Second

var (
	// ErrBusy is returned by Send while a message is outstanding.
	ErrBusy = errors.New("a message is already being sent")
	// ErrEmptyDraft is returned by Send when the draft is blank.
	ErrEmptyDraft = errors.New("draft is empty")
)

// Backend answers chat messages.
type Backend interface {
	Chat(ctx context.Context, message string) (*domain.ChatReply, error)
}

// Store persists the transcript.
type Store interface {
	Load(ctx context.Context) (domain.Transcript, error)
	Save(ctx context.Context, t domain.Transcript) error
}

// Snapshot is an immutable view of the session for rendering.
type Snapshot struct {
	Transcript domain.Transcript `json:"transcript"`
	Draft      string            `json:"draft"`
	Phase      domain.Phase      `json:"phase"`
	Sending    bool              `json:"sending"`
	// Scroll is set when the transcript changed and views should show the latest message.
	Scroll bool `json:"scroll"`
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithObserver registers fn to receive a snapshot after every state change.
// fn is called in change order and must not call mutating Session methods.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) {
		s.observer = fn
	}
}

// WithSaveTimeout bounds each transcript write.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.saveTimeout = d
	}
}

// Session is the chat state machine.
type Session struct {
	backend     Backend
	store       Store
	logger      *slog.Logger
	observer    func(Snapshot)
	saveTimeout time.Duration

	mu         sync.Mutex
	transcript domain.Transcript
	draft      string
	phase      domain.Phase
	generation uint64
	closed     bool

	// Writes and notifications go out in mutation order, one ticket per
	// change, without holding mu.
	emitMu   sync.Mutex
	emitCond *sync.Cond
	issued   uint64
	emitted  uint64
}

// New creates a session and loads the stored transcript. A missing or
// unreadable transcript starts the session empty.
func New(ctx context.Context, backend Backend, transcripts Store, opts ...Option) *Session {
	s := &Session{
		backend:     backend,
		store:       transcripts,
		logger:      slog.Default(),
		saveTimeout: defaultSaveTimeout,
		phase:       domain.PhaseIdle,
	}
	s.emitCond = sync.NewCond(&s.emitMu)
	for _, opt := range opts {
		opt(s)
	}

	t, err := transcripts.Load(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("discarding stored transcript", "error", err)
		}
		t = nil
	}
	if t == nil {
		t = domain.Transcript{}
	}
	s.transcript = t

	return s
}

type event interface{ isEvent() }

type draftUpdated struct{ text string }

type newlineInserted struct{}

type sendRequested struct{}

type replied struct {
	generation uint64
	reply      *domain.ChatReply
	err        error
}

type closed struct{}

func (draftUpdated) isEvent()    {}
func (newlineInserted) isEvent() {}
func (sendRequested) isEvent()   {}
func (replied) isEvent()         {}
func (closed) isEvent()          {}

type outcome struct {
	changed    bool
	persist    bool
	err        error
	generation uint64
	message    string
}

// reduce applies ev. Callers hold s.mu.
func (s *Session) reduce(ev event) outcome {
	if s.closed {
		return outcome{err: domain.ErrSessionClosed}
	}

	switch ev := ev.(type) {
	case draftUpdated:
		s.draft = ev.text
		return outcome{changed: true}

	case newlineInserted:
		s.draft += "\n"
		return outcome{changed: true}

	case sendRequested:
		if s.phase == domain.PhaseInFlight {
			return outcome{err: ErrBusy}
		}
		if strings.TrimSpace(s.draft) == "" {
			return outcome{err: ErrEmptyDraft}
		}
		s.phase = domain.PhaseInFlight
		s.generation++
		message := s.draft
		s.draft = ""
		s.transcript = append(s.transcript,
			domain.ChatMessage{Role: domain.RoleUser, Text: message},
			domain.ChatMessage{Role: domain.RolePending, Text: domain.PendingText},
		)
		return outcome{changed: true, persist: true, generation: s.generation, message: message}

	case replied:
		if ev.generation != s.generation {
			return outcome{}
		}
		s.transcript = append(s.transcript.WithoutPending(), domain.ChatMessage{
			Role: domain.RoleBot,
			Text: botText(ev.reply, ev.err),
		})
		s.phase = domain.PhaseSettled
		return outcome{changed: true, persist: true}

	case closed:
		s.closed = true
		s.generation++
		return outcome{}
	}
	return outcome{}
}

func botText(reply *domain.ChatReply, err error) string {
	switch {
	case err != nil:
		return ConnectionErrorText
	case reply == nil:
		return NoResponseText
	case reply.Reply != "":
		return reply.Reply
	case reply.Error != "":
		return reply.Error
	default:
		return NoResponseText
	}
}

func (s *Session) dispatch(ev event) outcome {
	s.mu.Lock()
	out := s.reduce(ev)
	if !out.changed {
		s.mu.Unlock()
		return out
	}
	snap := s.snapshotLocked()
	snap.Scroll = out.persist
	ticket := s.issued
	s.issued++
	s.mu.Unlock()

	s.awaitTurn(ticket)
	defer s.finishTurn()

	if out.persist {
		s.save(snap.Transcript)
	}
	if s.observer != nil {
		s.observer(snap)
	}
	return out
}

// awaitTurn blocks until every change issued before ticket has been emitted.
// It returns holding emitMu.
func (s *Session) awaitTurn(ticket uint64) {
	s.emitMu.Lock()
	for s.emitted != ticket {
		s.emitCond.Wait()
	}
}

func (s *Session) finishTurn() {
	s.emitted++
	s.emitCond.Broadcast()
	s.emitMu.Unlock()
}

func (s *Session) save(t domain.Transcript) {
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	if err := s.store.Save(ctx, t); err != nil {
		s.logger.Error("failed to persist transcript", "messages", len(t), "error", err)
	}
}

// UpdateDraft replaces the draft text.
func (s *Session) UpdateDraft(text string) error {
	return s.dispatch(draftUpdated{text: text}).err
}

// KeyPress handles a line-submit keystroke. With the newline modifier held
// a newline is added to the draft; otherwise the draft is sent.
func (s *Session) KeyPress(ctx context.Context, newlineModifier bool) error {
	if newlineModifier {
		return s.dispatch(newlineInserted{}).err
	}
	return s.Send(ctx)
}

// Send posts the draft and blocks until the reply is in the transcript.
// It is a no-op returning ErrEmptyDraft or ErrBusy when the draft is blank
// or another message is outstanding. Backend failures become bot messages.
func (s *Session) Send(ctx context.Context) error {
	out := s.dispatch(sendRequested{})
	if out.err != nil {
		return out.err
	}
	s.deliver(ctx, out)
	return nil
}

// SendAsync admits the draft like Send but returns as soon as the user
// message is in the transcript. done is closed once the reply is applied.
func (s *Session) SendAsync(ctx context.Context) (done <-chan struct{}, err error) {
	out := s.dispatch(sendRequested{})
	if out.err != nil {
		return nil, out.err
	}
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		s.deliver(ctx, out)
	}()
	return ch, nil
}

func (s *Session) deliver(ctx context.Context, out outcome) {
	s.logger.Info("chat message sent", "generation", out.generation, "message_length", len(out.message))

	reply, err := s.backend.Chat(ctx, out.message)
	if err != nil {
		s.logger.Warn("chat request failed", "generation", out.generation, "error", err)
	}

	s.dispatch(replied{generation: out.generation, reply: reply, err: err})
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Transcript: s.transcript.Clone(),
		Draft:      s.draft,
		Phase:      s.phase,
		Sending:    s.phase == domain.PhaseInFlight,
	}
}

// Close tears the session down. A reply arriving later is neither applied
// nor persisted.
func (s *Session) Close() {
	s.dispatch(closed{})
}
