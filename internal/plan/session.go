// Package plan implements the action plan flow: form input, one request at a
// time to the footprint endpoint, and the latest result.
package plan

import (
	"context"
	"log/slog"
	"sync"

	"github.com/earthmate/earthmate/internal/domain"
)

// FetchErrorText replaces the result when the backend cannot be reached or
// answers with something that is not JSON.
const FetchErrorText = "Error fetching plan"

// Backend computes footprint estimates.
type Backend interface {
	ActionPlan(ctx context.Context, payload domain.PlanPayload) (*domain.PlanResult, error)
}

// Snapshot is an immutable view of the session for rendering.
type Snapshot struct {
	Input   domain.PlanInput   `json:"input"`
	Phase   domain.Phase       `json:"phase"`
	Loading bool               `json:"loading"`
	Result  *domain.PlanResult `json:"result"` // always nil while loading
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

// Session is the action plan state machine.
//
// A Submit while another is outstanding supersedes it: the newer request
// gets a new generation and the older response is dropped when it arrives.
type Session struct {
	backend  Backend
	logger   *slog.Logger
	observer func(Snapshot)

	mu         sync.Mutex
	input      domain.PlanInput
	phase      domain.Phase
	result     *domain.PlanResult
	generation uint64
	closed     bool

	// Notifications go out in mutation order without holding mu.
	emitMu   sync.Mutex
	emitCond *sync.Cond
	issued   uint64
	emitted  uint64
}

// New creates an idle session with the default form.
func New(backend Backend, opts ...Option) *Session {
	s := &Session{
		backend: backend,
		logger:  slog.Default(),
		input:   domain.DefaultPlanInput(),
		phase:   domain.PhaseIdle,
	}
	s.emitCond = sync.NewCond(&s.emitMu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type event interface{ isEvent() }

type fieldUpdated struct{ name, value string }

type submitted struct{}

type settled struct {
	generation uint64
	result     *domain.PlanResult
}

type closed struct{}

func (fieldUpdated) isEvent() {}
func (submitted) isEvent()    {}
func (settled) isEvent()      {}
func (closed) isEvent()       {}

type outcome struct {
	changed    bool
	err        error
	generation uint64
	payload    domain.PlanPayload
}

// reduce applies ev. Callers hold s.mu.
func (s *Session) reduce(ev event) outcome {
	if s.closed {
		return outcome{err: domain.ErrSessionClosed}
	}

	switch ev := ev.(type) {
	case fieldUpdated:
		if err := s.input.Set(ev.name, ev.value); err != nil {
			return outcome{err: err}
		}
		return outcome{changed: true}

	case submitted:
		s.generation++
		s.phase = domain.PhaseInFlight
		s.result = nil
		return outcome{changed: true, generation: s.generation, payload: s.input.Payload()}

	case settled:
		if ev.generation != s.generation {
			s.logger.Debug("dropping superseded plan response", "generation", ev.generation, "current", s.generation)
			return outcome{}
		}
		s.phase = domain.PhaseSettled
		s.result = ev.result
		return outcome{changed: true}

	case closed:
		s.closed = true
		s.generation++
		return outcome{}
	}
	return outcome{}
}

func (s *Session) dispatch(ev event) outcome {
	s.mu.Lock()
	out := s.reduce(ev)
	if !out.changed {
		s.mu.Unlock()
		return out
	}
	snap := s.snapshotLocked()
	ticket := s.issued
	s.issued++
	s.mu.Unlock()

	s.awaitTurn(ticket)
	defer s.finishTurn()

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

// UpdateField sets one form field. Numeric text is kept as entered.
func (s *Session) UpdateField(name, value string) error {
	return s.dispatch(fieldUpdated{name: name, value: value}).err
}

// Submit sends the current form and blocks until the response is applied.
// Backend failures are reported through the result, not the returned error.
func (s *Session) Submit(ctx context.Context) error {
	out := s.dispatch(submitted{})
	if out.err != nil {
		return out.err
	}
	s.fetch(ctx, out)
	return nil
}

// SubmitAsync starts a submit and returns once the session is loading.
// done is closed after the response has been applied or dropped.
func (s *Session) SubmitAsync(ctx context.Context) (done <-chan struct{}, err error) {
	out := s.dispatch(submitted{})
	if out.err != nil {
		return nil, out.err
	}
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		s.fetch(ctx, out)
	}()
	return ch, nil
}

func (s *Session) fetch(ctx context.Context, out outcome) {
	s.logger.Info("plan requested",
		"generation", out.generation,
		"travel", out.payload.Travel,
		"diet", out.payload.Diet,
	)

	result, err := s.backend.ActionPlan(ctx, out.payload)
	if err != nil {
		s.logger.Warn("plan request failed", "generation", out.generation, "error", err)
		result = domain.PlanError(FetchErrorText)
	} else if result == nil {
		result = domain.PlanError(FetchErrorText)
	}

	s.dispatch(settled{generation: out.generation, result: result})
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Input:   s.input,
		Phase:   s.phase,
		Loading: s.phase == domain.PhaseInFlight,
	}
	if !snap.Loading && s.result != nil {
		r := *s.result
		r.Recommendations = append([]string(nil), s.result.Recommendations...)
		snap.Result = &r
	}
	return snap
}

// Close tears the session down. Responses arriving later are ignored.
func (s *Session) Close() {
	s.dispatch(closed{})
}
