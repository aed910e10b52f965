package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrSessionNotFound        = errors.New("session not found")
	ErrInvalidReason          = errors.New("invalid termination reason")
	ErrInvalidConfiguration   = errors.New("invalid session configuration")
	ErrManagerClosed          = errors.New("session manager is shut down")
)

type State string

const (
	StateCreated  State = "created"
	StateStarting State = "starting"
	StateActive   State = "active"
	StateEnding   State = "ending"
	StateEnded    State = "ended"
	StateFailed   State = "failed"
)

func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// Reason is persisted verbatim with the session analytics.
type Reason string

const (
	ReasonNormal        Reason = "normal"
	ReasonTimeout       Reason = "timeout"
	ReasonError         Reason = "error"
	ReasonProviderEnded Reason = "provider_ended"
)

func ParseReason(s string) (Reason, error) {
	r := Reason(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidReason, s)
	}
	return r, nil
}

func (r Reason) Valid() bool {
	switch r {
	case ReasonNormal, ReasonTimeout, ReasonError, ReasonProviderEnded:
		return true
	default:
		return false
	}
}
