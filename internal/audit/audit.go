package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/foxseedlab/telesession/internal/metrics"
	"github.com/foxseedlab/telesession/internal/repository"
)

type Kind string

const (
	KindTransition                   Kind = "transition"
	KindSessionCreated               Kind = "session_created"
	KindStartDiscarded               Kind = "start_discarded"
	KindTransportFailure             Kind = "transport_failure"
	KindParticipantJoined            Kind = "participant_joined"
	KindParticipantLeft              Kind = "participant_left"
	KindParticipantDisconnected      Kind = "participant_disconnected"
	KindParticipantReconnected       Kind = "participant_reconnected"
	KindAdmissionDenied              Kind = "admission_denied"
	KindConsent                      Kind = "consent"
	KindConsentRevokedDuringRecord   Kind = "consent_revoked_during_recording"
	KindRecordingStarted             Kind = "recording_started"
	KindRecordingStopped             Kind = "recording_stopped"
	KindRecordingDenied              Kind = "recording_denied"
	KindRecordingDiscarded           Kind = "recording_discarded"
	KindRecordingCancelled           Kind = "recording_cancelled"
	KindRecordingConsentFinal        Kind = "recording_consent_final"
	KindRosterChangedDuringRecording Kind = "roster_changed_during_recording"
	KindInvitationCreated            Kind = "invitation_created"
	KindInvitationResolved           Kind = "invitation_resolved"
	KindInvitationExpired            Kind = "invitation_expired"
	KindInvitationDeliveryFailed     Kind = "invitation_delivery_failed"
	KindAnalyticsPersistFailed       Kind = "analytics_persist_failed"
)

type Verbosity string

const (
	VerbosityMinimal  Verbosity = "minimal"
	VerbosityStandard Verbosity = "standard"
	VerbosityDetailed Verbosity = "detailed"
)

func (v Verbosity) Valid() bool {
	switch v {
	case VerbosityMinimal, VerbosityStandard, VerbosityDetailed:
		return true
	default:
		return false
	}
}

// Policy is the per-session slice of compliance settings the recorder honours.
type Policy struct {
	Enabled         bool
	ConsentTracking bool
	RetentionDays   int
	Verbosity       Verbosity
}

type Event struct {
	SessionID string
	Kind      Kind
	Actor     string
	Subject   string
	At        time.Time
	Detail    map[string]string
}

// Mandatory events are persisted even when audit logging is switched off for the
// session: lifecycle transitions and anything that changed the session outcome.
func (e Event) Mandatory() bool {
	switch e.Kind {
	case KindTransition, KindStartDiscarded, KindTransportFailure, KindRecordingDiscarded, KindAnalyticsPersistFailed:
		return true
	default:
		return false
	}
}

// minimalDetailKeys survive redaction at minimal verbosity.
var minimalDetailKeys = map[string]struct{}{
	"from":     {},
	"to":       {},
	"reason":   {},
	"error":    {},
	"purpose":  {},
	"granted":  {},
	"duration": {},
}

type Recorder struct {
	store repository.AuditRepository
}

func NewRecorder(store repository.AuditRepository) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Record(ctx context.Context, policy Policy, e Event) error {
	if !shouldPersist(policy, e) {
		return nil
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	record := repository.AuditRecord{
		SessionID:   e.SessionID,
		Kind:        string(e.Kind),
		Actor:       e.Actor,
		Subject:     e.Subject,
		Detail:      redact(policy.Verbosity, e.Detail),
		OccurredAt:  e.At,
		RetainUntil: e.At.AddDate(0, 0, policy.RetentionDays),
	}
	if err := r.store.AppendAuditEvent(ctx, record); err != nil {
		metrics.AuditPersistFailures.Inc()
		slog.Error("failed to persist audit event", "error", err, "session_id", e.SessionID, "kind", e.Kind)
		return err
	}
	return nil
}

func (r *Recorder) LoadComplianceReport(ctx context.Context, sessionID string) ([]repository.AuditRecord, error) {
	return r.store.LoadComplianceReport(ctx, sessionID)
}

func shouldPersist(policy Policy, e Event) bool {
	if e.Mandatory() {
		return true
	}
	if !policy.Enabled {
		return false
	}
	if e.Kind == KindConsent && !policy.ConsentTracking {
		return false
	}
	return true
}

func redact(v Verbosity, detail map[string]string) map[string]string {
	if len(detail) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(detail))
	for k, val := range detail {
		if v == VerbosityMinimal {
			if _, ok := minimalDetailKeys[k]; !ok {
				continue
			}
		}
		out[k] = val
	}
	return out
}
