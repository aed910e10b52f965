package session

import (
	"github.com/foxseedlab/telesession/internal/analytics"
	"github.com/foxseedlab/telesession/internal/audit"
	"github.com/foxseedlab/telesession/internal/consent"
	"github.com/foxseedlab/telesession/internal/recording"
	"github.com/foxseedlab/telesession/internal/roster"
)

// Snapshot is a point-in-time view taken under one read lock.
type Snapshot struct {
	ID           string
	State        State
	Reason       Reason
	Recording    recording.Status
	Participants []roster.Participant
	Analytics    analytics.SessionAnalytics
}

func (s *Session) State() (State, Reason) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.reason
}

// AnalyticsSoFar returns the final analytics once the session is over, and a
// snapshot measured up to now before that.
func (s *Session) AnalyticsSoFar() analytics.SessionAnalytics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analyticsLocked()
}

func (s *Session) analyticsLocked() analytics.SessionAnalytics {
	if s.final != nil {
		return *s.final
	}
	return analytics.Compute(s.cfg.ID, s.events.Events(), s.deps.Now())
}

// Participants returns the active roster, connected or not.
func (s *Session) Participants() []roster.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Active()
}

func (s *Session) ConnectedParticipants() []roster.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Connected()
}

// History includes participants who have left.
func (s *Session) History() []roster.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.History()
}

func (s *Session) ConsentHistory() []consent.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.History()
}

func (s *Session) RecordingPeriods() []recording.Period {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recorder.Periods()
}

// AuditTrail is every event this session emitted, including those the
// compliance policy kept out of the store.
func (s *Session) AuditTrail() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, len(s.trail))
	copy(out, s.trail)
	return out
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:           s.cfg.ID,
		State:        s.state,
		Reason:       s.reason,
		Recording:    s.recorder.Status(),
		Participants: s.registry.Active(),
		Analytics:    s.analyticsLocked(),
	}
}
