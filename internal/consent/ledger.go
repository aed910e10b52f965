package consent

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/telesession/internal/roster"
)

var ErrInvalidPurpose = errors.New("invalid consent purpose")

type Purpose string

const (
	PurposeRecording            Purpose = "recording"
	PurposeSessionParticipation Purpose = "session_participation"
	PurposeDataSharing          Purpose = "data_sharing"
)

func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PurposeRecording, PurposeSessionParticipation, PurposeDataSharing:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPurpose, s)
	}
}

type Record struct {
	Seq           int
	ParticipantID string
	Purpose       Purpose
	Granted       bool
	At            time.Time
}

type key struct {
	participantID string
	purpose       Purpose
}

// DefaultRecordingRoles must hold a granted recording consent before recording.
var DefaultRecordingRoles = []roster.Role{roster.RolePatient, roster.RoleCaregiver}

// Ledger is append-only. A newer record for the same participant and purpose
// supersedes the older one for queries, but both stay in History.
type Ledger struct {
	records       []Record
	latest        map[key]int
	requiredRoles map[roster.Role]struct{}
}

func NewLedger(requiredRoles []roster.Role) *Ledger {
	if len(requiredRoles) == 0 {
		requiredRoles = DefaultRecordingRoles
	}
	roles := make(map[roster.Role]struct{}, len(requiredRoles))
	for _, r := range requiredRoles {
		roles[r] = struct{}{}
	}
	return &Ledger{
		latest:        make(map[key]int),
		requiredRoles: roles,
	}
}

func (l *Ledger) Log(participantID string, purpose Purpose, granted bool, at time.Time) Record {
	rec := Record{
		Seq:           len(l.records) + 1,
		ParticipantID: participantID,
		Purpose:       purpose,
		Granted:       granted,
		At:            at,
	}
	l.records = append(l.records, rec)
	l.latest[key{participantID, purpose}] = len(l.records) - 1
	return rec
}

func (l *Ledger) Latest(participantID string, purpose Purpose) (Record, bool) {
	idx, ok := l.latest[key{participantID, purpose}]
	if !ok {
		return Record{}, false
	}
	return l.records[idx], true
}

func (l *Ledger) RequiresRecordingConsent(role roster.Role) bool {
	_, ok := l.requiredRoles[role]
	return ok
}

// MissingRecordingConsent lists the participants whose role requires recording
// consent and whose latest recording record is absent or withheld.
func (l *Ledger) MissingRecordingConsent(participants []roster.Participant) []string {
	var missing []string
	for _, p := range participants {
		if !l.RequiresRecordingConsent(p.Role) {
			continue
		}
		rec, ok := l.Latest(p.ID, PurposeRecording)
		if !ok || !rec.Granted {
			missing = append(missing, p.ID)
		}
	}
	return missing
}

func (l *Ledger) IsRecordingConsentSatisfied(participants []roster.Participant) bool {
	return len(l.MissingRecordingConsent(participants)) == 0
}

func (l *Ledger) History() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Ledger) Len() int {
	return len(l.records)
}
