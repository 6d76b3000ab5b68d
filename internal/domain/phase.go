package domain

import "errors"

// Phase is where a session is in its request lifecycle.
type Phase string

const (
	// PhaseIdle means no request has been made yet.
	PhaseIdle Phase = "idle"
	// PhaseInFlight means a request is outstanding.
	PhaseInFlight Phase = "in_flight"
	// PhaseSettled means the last request has been resolved.
	PhaseSettled Phase = "settled"
)

// ErrSessionClosed is returned by operations on a torn-down session.
var ErrSessionClosed = errors.New("session closed")
