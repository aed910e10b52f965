package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/foxseedlab/telesession/internal/consent"
	"github.com/foxseedlab/telesession/internal/invitation"
	"github.com/foxseedlab/telesession/internal/recording"
	"github.com/foxseedlab/telesession/internal/roster"
	"github.com/foxseedlab/telesession/internal/session"
	"github.com/foxseedlab/telesession/internal/transport"
)

var errBadRequest = errors.New("malformed request body")

type errorKind struct {
	target error
	status int
	kind   string
}

// errorKinds is checked in order; the first match wins.
var errorKinds = []errorKind{
	{session.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{invitation.ErrInvitationNotFound, http.StatusNotFound, "invitation_not_found"},
	{roster.ErrParticipantNotFound, http.StatusNotFound, "participant_not_found"},
	{session.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{roster.ErrDuplicateParticipant, http.StatusConflict, "duplicate_participant"},
	{invitation.ErrInvalidInvitationState, http.StatusConflict, "invalid_invitation_state"},
	{roster.ErrCapacityExceeded, http.StatusUnprocessableEntity, "capacity_exceeded"},
	{recording.ErrConsentRequired, http.StatusUnprocessableEntity, "consent_required"},
	{invitation.ErrThirdPartyDisabled, http.StatusUnprocessableEntity, "third_party_disabled"},
	{recording.ErrRecordingDisabled, http.StatusUnprocessableEntity, "recording_disabled"},
	{session.ErrInvalidConfiguration, http.StatusUnprocessableEntity, "validation_failed"},
	{session.ErrInvalidReason, http.StatusUnprocessableEntity, "validation_failed"},
	{roster.ErrInvalidRole, http.StatusUnprocessableEntity, "validation_failed"},
	{roster.ErrInvalidParticipant, http.StatusUnprocessableEntity, "validation_failed"},
	{consent.ErrInvalidPurpose, http.StatusUnprocessableEntity, "validation_failed"},
	{invitation.ErrInvalidInvitation, http.StatusUnprocessableEntity, "validation_failed"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},
	{transport.ErrUnavailable, http.StatusServiceUnavailable, "transport_unavailable"},
	{session.ErrManagerClosed, http.StatusServiceUnavailable, "shutting_down"},
}

func classify(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, k.kind
		}
	}
	return http.StatusInternalServerError, "internal"
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path, "kind", kind)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: err.Error()}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response body", "error", err)
	}
}
