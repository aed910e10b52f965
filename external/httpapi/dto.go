package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/foxseedlab/telesession/internal/analytics"
	"github.com/foxseedlab/telesession/internal/consent"
	"github.com/foxseedlab/telesession/internal/invitation"
	"github.com/foxseedlab/telesession/internal/recording"
	"github.com/foxseedlab/telesession/internal/repository"
	"github.com/foxseedlab/telesession/internal/roster"
	"github.com/foxseedlab/telesession/internal/session"
)

type createSessionRequest struct {
	session.Configuration
	IdleTimeoutMin    *int `json:"idle_timeout_min"`
	SessionTimeoutMin *int `json:"session_timeout_min"`
}

type endSessionRequest struct {
	Reason string `json:"reason"`
}

type participantRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Email       string `json:"email"`
}

type consentRequest struct {
	ParticipantID string `json:"participant_id"`
	Purpose       string `json:"purpose"`
	Granted       bool   `json:"granted"`
}

type actorRequest struct {
	RequestedBy string `json:"requested_by"`
}

type messageRequest struct {
	ParticipantID string `json:"participant_id"`
}

type inviteRequest struct {
	InvitedBy string `json:"invited_by"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Message   string `json:"message"`
}

type resolveRequest struct {
	Accepted bool `json:"accepted"`
}

// decodeBody treats an empty body as "all defaults".
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

type sessionResponse struct {
	ID           string                `json:"id"`
	State        string                `json:"state"`
	Reason       string                `json:"reason,omitempty"`
	Recording    string                `json:"recording"`
	Participants []participantResponse `json:"participants"`
	Analytics    analyticsResponse     `json:"analytics"`
}

type participantResponse struct {
	ID           string     `json:"id"`
	DisplayName  string     `json:"display_name"`
	Role         string     `json:"role"`
	Email        string     `json:"email,omitempty"`
	Connection   string     `json:"connection"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	InvitationID string     `json:"invitation_id,omitempty"`
}

type admissionResponse struct {
	Participant participantResponse `json:"participant"`
	JoinToken   string              `json:"join_token"`
}

type analyticsResponse struct {
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at"`
	DurationSeconds   int64     `json:"duration_seconds"`
	PeakParticipants  int       `json:"peak_participants"`
	FinalParticipants int       `json:"final_participants"`
	RecordingSeconds  int64     `json:"recording_seconds"`
	ConsentEvents     int       `json:"consent_events"`
	MessageCount      int       `json:"message_count"`
	InvitationCount   int       `json:"invitation_count"`
	TerminationReason string    `json:"termination_reason,omitempty"`
	Final             bool      `json:"final"`
}

type consentResponse struct {
	Seq           int       `json:"seq"`
	ParticipantID string    `json:"participant_id"`
	Purpose       string    `json:"purpose"`
	Granted       bool      `json:"granted"`
	At            time.Time `json:"at"`
}

type recordingResponse struct {
	RecordingID     string     `json:"recording_id,omitempty"`
	RequestedBy     string     `json:"requested_by,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	Stopped         bool       `json:"stopped"`
}

type invitationResponse struct {
	ID         string     `json:"id"`
	InvitedBy  string     `json:"invited_by"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	Message    string     `json:"message,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Delivered  *bool      `json:"delivered,omitempty"`
}

type resolveResponse struct {
	Invitation invitationResponse `json:"invitation"`
	Admission  *admissionResponse `json:"admission,omitempty"`
}

type auditRecordResponse struct {
	ID         int64             `json:"id"`
	Kind       string            `json:"kind"`
	Actor      string            `json:"actor,omitempty"`
	Subject    string            `json:"subject,omitempty"`
	Detail     map[string]string `json:"detail"`
	OccurredAt time.Time         `json:"occurred_at"`
}

func toSessionResponse(snap session.Snapshot) sessionResponse {
	participants := make([]participantResponse, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		participants = append(participants, toParticipantResponse(p))
	}
	return sessionResponse{
		ID:           snap.ID,
		State:        string(snap.State),
		Reason:       string(snap.Reason),
		Recording:    string(snap.Recording),
		Participants: participants,
		Analytics:    toAnalyticsResponse(snap.Analytics),
	}
}

func toParticipantResponse(p roster.Participant) participantResponse {
	return participantResponse{
		ID:           p.ID,
		DisplayName:  p.DisplayName,
		Role:         string(p.Role),
		Email:        p.Email,
		Connection:   string(p.Connection),
		JoinedAt:     p.JoinedAt,
		LeftAt:       p.LeftAt,
		InvitationID: p.InvitationID,
	}
}

func toAdmissionResponse(a session.Admission) admissionResponse {
	return admissionResponse{Participant: toParticipantResponse(a.Participant), JoinToken: a.JoinToken}
}

func toAnalyticsResponse(a analytics.SessionAnalytics) analyticsResponse {
	rec := a.Record()
	return analyticsResponse{
		StartedAt:         a.StartedAt,
		EndedAt:           a.EndedAt,
		DurationSeconds:   rec.DurationSeconds,
		PeakParticipants:  a.PeakParticipants,
		FinalParticipants: a.FinalParticipants,
		RecordingSeconds:  rec.RecordingSeconds,
		ConsentEvents:     a.ConsentEvents,
		MessageCount:      a.MessageCount,
		InvitationCount:   a.InvitationCount,
		TerminationReason: a.TerminationReason,
		Final:             a.Final,
	}
}

func toConsentResponse(r consent.Record) consentResponse {
	return consentResponse{
		Seq:           r.Seq,
		ParticipantID: r.ParticipantID,
		Purpose:       string(r.Purpose),
		Granted:       r.Granted,
		At:            r.At,
	}
}

func toRecordingResponse(p recording.Period, stopped bool) recordingResponse {
	out := recordingResponse{
		RecordingID:     p.Handle.ID,
		RequestedBy:     p.RequestedBy,
		DurationSeconds: int64(p.Duration / time.Second),
		Stopped:         stopped,
	}
	if !p.StartedAt.IsZero() {
		startedAt := p.StartedAt
		out.StartedAt = &startedAt
	}
	if !p.StoppedAt.IsZero() {
		stoppedAt := p.StoppedAt
		out.StoppedAt = &stoppedAt
	}
	return out
}

func toInvitationResponse(inv invitation.Invitation) invitationResponse {
	return invitationResponse{
		ID:         inv.ID,
		InvitedBy:  inv.InvitedBy,
		Email:      inv.Email,
		Name:       inv.Name,
		Role:       string(inv.Role),
		Message:    inv.Message,
		Status:     string(inv.Status),
		CreatedAt:  inv.CreatedAt,
		ResolvedAt: inv.ResolvedAt,
	}
}

func toAuditRecordResponses(records []repository.AuditRecord) []auditRecordResponse {
	out := make([]auditRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, auditRecordResponse{
			ID:         r.ID,
			Kind:       r.Kind,
			Actor:      r.Actor,
			Subject:    r.Subject,
			Detail:     r.Detail,
			OccurredAt: r.OccurredAt,
		})
	}
	return out
}
