package eventlog

import "time"

type Type string

const (
	TypeStateChanged            Type = "state_changed"
	TypeParticipantJoined       Type = "participant_joined"
	TypeParticipantLeft         Type = "participant_left"
	TypeParticipantDisconnected Type = "participant_disconnected"
	TypeParticipantReconnected  Type = "participant_reconnected"
	TypeConsentLogged           Type = "consent_logged"
	TypeRecordingStarted        Type = "recording_started"
	TypeRecordingStopped        Type = "recording_stopped"
	TypeInvitationCreated       Type = "invitation_created"
	TypeInvitationResolved      Type = "invitation_resolved"
	TypeMessage                 Type = "message"
)

// Event carries only what analytics needs; the audit trail holds the rest.
type Event struct {
	Seq           uint64
	Type          Type
	At            time.Time
	ParticipantID string
	// ActiveCount is the active roster size right after a roster event.
	ActiveCount int
	From        string
	To          string
	Reason      string
	Duration    time.Duration
}

// Log is the per-session, append-only event log. Sequence numbers start at 1
// and never repeat. The owning session serializes access.
type Log struct {
	events []Event
	next   uint64
}

func New() *Log {
	return &Log{next: 1}
}

func (l *Log) Append(e Event) Event {
	e.Seq = l.next
	l.next++
	l.events = append(l.events, e)
	return e
}

func (l *Log) Events() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Log) Len() int {
	return len(l.events)
}
