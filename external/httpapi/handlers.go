package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/foxseedlab/telesession/internal/consent"
	"github.com/foxseedlab/telesession/internal/invitation"
	"github.com/foxseedlab/telesession/internal/roster"
	"github.com/foxseedlab/telesession/internal/session"
	"github.com/gorilla/mux"
)

func (s *Server) sessionFromRequest(r *http.Request) (*session.Session, error) {
	return s.manager.Get(mux.Vars(r)["id"])
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	req := createSessionRequest{Configuration: s.manager.DefaultConfiguration()}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cfg := req.Configuration
	if req.IdleTimeoutMin != nil {
		cfg.IdleTimeout = time.Duration(*req.IdleTimeoutMin) * time.Minute
	}
	if req.SessionTimeoutMin != nil {
		cfg.SessionTimeout = time.Duration(*req.SessionTimeoutMin) * time.Minute
	}
	sess, err := s.manager.CreateSession(r.Context(), cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess.Snapshot()))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess.Snapshot()))
}

func (s *Server) startSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := sess.Start(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess.Snapshot()))
}

func (s *Server) endSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := endSessionRequest{Reason: string(session.ReasonNormal)}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reason, err := session.ParseReason(req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := sess.End(r.Context(), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalyticsResponse(a))
}

func (s *Server) addParticipantHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req participantRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := roster.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	adm, err := sess.AddParticipant(r.Context(), roster.Participant{
		ID:          req.ID,
		DisplayName: req.DisplayName,
		Role:        role,
		Email:       req.Email,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdmissionResponse(adm))
}

func (s *Server) removeParticipantHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.RemoveParticipant(r.Context(), mux.Vars(r)["pid"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) disconnectParticipantHandler(w http.ResponseWriter, r *http.Request) {
	s.connectionHandler(w, r, (*session.Session).DisconnectParticipant)
}

func (s *Server) reconnectParticipantHandler(w http.ResponseWriter, r *http.Request) {
	s.connectionHandler(w, r, (*session.Session).ReconnectParticipant)
}

type connectionOp func(*session.Session, context.Context, string) (roster.Participant, error)

func (s *Server) connectionHandler(w http.ResponseWriter, r *http.Request, op connectionOp) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := op(sess, r.Context(), mux.Vars(r)["pid"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipantResponse(p))
}

func (s *Server) logConsentHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req consentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := sess.LogConsent(r.Context(), req.ParticipantID, consent.Purpose(req.Purpose), req.Granted)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConsentResponse(rec))
}

func (s *Server) startRecordingHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req actorRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	period, err := sess.StartRecording(r.Context(), req.RequestedBy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordingResponse(period, false))
}

func (s *Server) stopRecordingHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req actorRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	period, stopped, err := sess.StopRecording(r.Context(), req.RequestedBy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordingResponse(period, stopped))
}

func (s *Server) recordMessageHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req messageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.RecordMessage(r.Context(), req.ParticipantID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listInvitationsHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list := sess.ListInvitations(r.Context())
	out := make([]invitationResponse, 0, len(list))
	for _, inv := range list {
		out = append(out, toInvitationResponse(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

// inviteParticipantHandler creates the invitation and dispatches it in one
// call; a delivery failure is reported as delivered=false.
func (s *Server) inviteParticipantHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req inviteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := sess.InviteParticipant(r.Context(), invitation.Request{
		InvitedBy: req.InvitedBy,
		Email:     req.Email,
		Name:      req.Name,
		Role:      roster.Role(req.Role),
		Message:   req.Message,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	delivered, err := sess.DispatchInvitation(r.Context(), inv.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := toInvitationResponse(inv)
	resp.Delivered = &delivered
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) resolveInvitationHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req resolveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	inv, adm, err := sess.ResolveInvitation(r.Context(), mux.Vars(r)["iid"], req.Accepted)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := resolveResponse{Invitation: toInvitationResponse(inv)}
	if adm != nil {
		a := toAdmissionResponse(*adm)
		resp.Admission = &a
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) complianceReportHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if r.URL.Query().Get("format") == "text" {
		body, err := s.manager.ComplianceReportText(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}
	records, err := s.manager.ComplianceReport(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditRecordResponses(records))
}
