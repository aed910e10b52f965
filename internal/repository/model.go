package repository

import "time"

type AuditRecord struct {
	ID          int64
	SessionID   string
	Kind        string
	Actor       string
	Subject     string
	Detail      map[string]string
	OccurredAt  time.Time
	RetainUntil time.Time
	CreatedAt   time.Time
}

type AnalyticsRecord struct {
	SessionID         string
	StartedAt         time.Time
	EndedAt           time.Time
	DurationSeconds   int64
	PeakParticipants  int
	FinalParticipants int
	RecordingSeconds  int64
	ConsentEvents     int
	MessageCount      int
	InvitationCount   int
	TerminationReason string
}

type DirectoryEntry struct {
	ParticipantID string
	DisplayName   string
	Email         string
}
