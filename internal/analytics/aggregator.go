package analytics

import (
	"time"

	"github.com/foxseedlab/telesession/internal/eventlog"
	"github.com/foxseedlab/telesession/internal/repository"
)

type SessionAnalytics struct {
	SessionID         string
	StartedAt         time.Time
	EndedAt           time.Time
	Duration          time.Duration
	PeakParticipants  int
	FinalParticipants int
	RecordingDuration time.Duration
	ConsentEvents     int
	MessageCount      int
	InvitationCount   int
	TerminationReason string
	// Final is false for in-progress snapshots measured up to asOf.
	Final bool
}

var terminalStates = map[string]struct{}{
	"ended":  {},
	"failed": {},
}

// Compute is a pure function of the event log. The session start is the first
// transition into "active" (or the first event if it never got there); the end
// is the first transition into a terminal state, or asOf while still running.
func Compute(sessionID string, events []eventlog.Event, asOf time.Time) SessionAnalytics {
	out := SessionAnalytics{SessionID: sessionID}
	if len(events) == 0 {
		return out
	}

	var (
		activeSeen     bool
		recordingSince *time.Time
	)
	out.StartedAt = events[0].At

	for _, e := range events {
		switch e.Type {
		case eventlog.TypeStateChanged:
			if e.To == "active" && !activeSeen {
				activeSeen = true
				out.StartedAt = e.At
			}
			if _, ok := terminalStates[e.To]; ok && !out.Final {
				out.Final = true
				out.EndedAt = e.At
				out.TerminationReason = e.Reason
			}
		case eventlog.TypeParticipantJoined:
			if e.ActiveCount > out.PeakParticipants {
				out.PeakParticipants = e.ActiveCount
			}
			out.FinalParticipants = e.ActiveCount
		case eventlog.TypeParticipantLeft:
			out.FinalParticipants = e.ActiveCount
		case eventlog.TypeConsentLogged:
			out.ConsentEvents++
		case eventlog.TypeMessage:
			out.MessageCount++
		case eventlog.TypeInvitationCreated:
			out.InvitationCount++
		case eventlog.TypeRecordingStarted:
			at := e.At
			recordingSince = &at
		case eventlog.TypeRecordingStopped:
			out.RecordingDuration += e.Duration
			recordingSince = nil
		}
	}

	if !out.Final {
		out.EndedAt = asOf
		if recordingSince != nil && asOf.After(*recordingSince) {
			out.RecordingDuration += asOf.Sub(*recordingSince)
		}
	}
	if out.EndedAt.After(out.StartedAt) {
		out.Duration = out.EndedAt.Sub(out.StartedAt)
	}
	return out
}

func (a SessionAnalytics) Record() repository.AnalyticsRecord {
	return repository.AnalyticsRecord{
		SessionID:         a.SessionID,
		StartedAt:         a.StartedAt,
		EndedAt:           a.EndedAt,
		DurationSeconds:   int64(a.Duration / time.Second),
		PeakParticipants:  a.PeakParticipants,
		FinalParticipants: a.FinalParticipants,
		RecordingSeconds:  int64(a.RecordingDuration / time.Second),
		ConsentEvents:     a.ConsentEvents,
		MessageCount:      a.MessageCount,
		InvitationCount:   a.InvitationCount,
		TerminationReason: a.TerminationReason,
	}
}
