package session

import (
	"context"
	"fmt"

	"github.com/foxseedlab/telesession/internal/audit"
	"github.com/foxseedlab/telesession/internal/consent"
	"github.com/foxseedlab/telesession/internal/directory"
	"github.com/foxseedlab/telesession/internal/eventlog"
	"github.com/foxseedlab/telesession/internal/roster"
	"github.com/foxseedlab/telesession/internal/transport"
)

// Admission is the result of admitting a participant: the roster entry and
// the token the participant uses to join the transport room.
type Admission struct {
	Participant roster.Participant
	JoinToken   string
}

func (s *Session) AddParticipant(ctx context.Context, p roster.Participant) (Admission, error) {
	if err := p.Validate(); err != nil {
		return Admission{}, err
	}
	// Directory lookups happen before locking and degrade to the raw id.
	if p.DisplayName == "" {
		p.DisplayName = directory.DisplayNameOrID(ctx, s.deps.Directory, p.ID)
	}
	if p.Email == "" {
		p.Email = directory.EmailOrEmpty(ctx, s.deps.Directory, p.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActiveLocked("add participant"); err != nil {
		return Admission{}, err
	}
	if err := s.registry.CanAdmit(p.ID); err != nil {
		s.auditLocked(ctx, audit.Event{
			Kind:    audit.KindAdmissionDenied,
			Actor:   systemActor,
			Subject: p.ID,
			Detail:  map[string]string{"role": string(p.Role), "error": err.Error()},
		})
		return Admission{}, err
	}
	token, err := s.issueJoinTokenLocked(p)
	if err != nil {
		return Admission{}, err
	}
	added, err := s.registry.Add(p, s.deps.Now())
	if err != nil {
		return Admission{}, err
	}
	s.admittedLocked(ctx, added)
	return Admission{Participant: added, JoinToken: token}, nil
}

func (s *Session) issueJoinTokenLocked(p roster.Participant) (string, error) {
	token, err := s.deps.Transport.IssueJoinToken(*s.room, transport.JoinGrant{
		Identity:   p.ID,
		Name:       p.DisplayName,
		CanPublish: true,
		CanShare:   s.cfg.ScreenSharingEnabled,
	})
	if err != nil {
		return "", fmt.Errorf("%w: issue join token: %w", transport.ErrUnavailable, err)
	}
	return token, nil
}

func (s *Session) admittedLocked(ctx context.Context, p roster.Participant) {
	s.events.Append(eventlog.Event{
		Type:          eventlog.TypeParticipantJoined,
		At:            p.JoinedAt,
		ParticipantID: p.ID,
		ActiveCount:   s.registry.Count(),
	})
	s.auditLocked(ctx, audit.Event{
		Kind:    audit.KindParticipantJoined,
		Actor:   p.ID,
		Subject: p.ID,
		At:      p.JoinedAt,
		Detail: map[string]string{
			"role":         string(p.Role),
			"display_name": p.DisplayName,
			"invitation":   p.InvitationID,
		},
	})
	s.flagRosterChangeLocked(ctx, p, "joined")
	s.touchLocked()
	s.logger.Info("participant admitted", "participant_id", p.ID, "role", p.Role, "active", s.registry.Count())
}

// RemoveParticipant tolerates duplicate leave signals: removing someone who is
// not on the active roster, or leaving a finished session, does nothing.
func (s *Session) RemoveParticipant(ctx context.Context, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil
	}
	p, ok := s.registry.Remove(participantID, s.deps.Now())
	if !ok {
		return nil
	}
	s.events.Append(eventlog.Event{
		Type:          eventlog.TypeParticipantLeft,
		At:            *p.LeftAt,
		ParticipantID: p.ID,
		ActiveCount:   s.registry.Count(),
	})
	s.auditLocked(ctx, audit.Event{
		Kind:    audit.KindParticipantLeft,
		Actor:   p.ID,
		Subject: p.ID,
		At:      *p.LeftAt,
		Detail:  map[string]string{"role": string(p.Role)},
	})
	s.flagRosterChangeLocked(ctx, p, "left")
	s.logger.Info("participant left", "participant_id", p.ID, "active", s.registry.Count())
	return nil
}

// DisconnectParticipant keeps the participant on the roster, so they still
// count toward capacity, but drops them from the consent gate's view.
func (s *Session) DisconnectParticipant(ctx context.Context, participantID string) (roster.Participant, error) {
	return s.setConnection(ctx, participantID, roster.Disconnected)
}

func (s *Session) ReconnectParticipant(ctx context.Context, participantID string) (roster.Participant, error) {
	return s.setConnection(ctx, participantID, roster.Connected)
}

func (s *Session) setConnection(ctx context.Context, participantID string, state roster.ConnectionState) (roster.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActiveLocked("change participant connection"); err != nil {
		return roster.Participant{}, err
	}
	p, changed, err := s.registry.SetConnection(participantID, state)
	if err != nil || !changed {
		return p, err
	}

	eventType, kind, change := eventlog.TypeParticipantReconnected, audit.KindParticipantReconnected, "reconnected"
	if state == roster.Disconnected {
		eventType, kind, change = eventlog.TypeParticipantDisconnected, audit.KindParticipantDisconnected, "disconnected"
	}
	at := s.deps.Now()
	s.events.Append(eventlog.Event{Type: eventType, At: at, ParticipantID: p.ID, ActiveCount: s.registry.Count()})
	s.auditLocked(ctx, audit.Event{Kind: kind, Actor: p.ID, Subject: p.ID, At: at})
	s.flagRosterChangeLocked(ctx, p, change)
	s.logger.Info("participant connection changed", "participant_id", p.ID, "connection", state)
	return p, nil
}

// flagRosterChangeLocked records roster changes that touch a consent-required
// participant while recording. Recording keeps running.
func (s *Session) flagRosterChangeLocked(ctx context.Context, p roster.Participant, change string) {
	if !s.recorder.AffectsConsent(p) {
		return
	}
	missing := s.ledger.MissingRecordingConsent(s.registry.Connected())
	s.auditLocked(ctx, audit.Event{
		Kind:    audit.KindRosterChangedDuringRecording,
		Actor:   systemActor,
		Subject: p.ID,
		Detail: map[string]string{
			"change":            change,
			"role":              string(p.Role),
			"consent_satisfied": boolDetail(len(missing) == 0),
			"missing":           joinIDs(missing),
		},
	})
	s.logger.Warn("roster changed during recording", "participant_id", p.ID, "change", change, "missing_consent", missing)
}

// LogConsent always appends; the latest record per participant and purpose
// wins. Any participant id is accepted so consent can be captured before
// admission.
func (s *Session) LogConsent(ctx context.Context, participantID string, purpose consent.Purpose, granted bool) (consent.Record, error) {
	purpose, err := consent.ParsePurpose(string(purpose))
	if err != nil {
		return consent.Record{}, err
	}
	if participantID == "" {
		return consent.Record{}, fmt.Errorf("%w: participant id is required", roster.ErrInvalidParticipant)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLiveLocked("log consent"); err != nil {
		return consent.Record{}, err
	}
	rec := s.ledger.Log(participantID, purpose, granted, s.deps.Now())
	s.events.Append(eventlog.Event{Type: eventlog.TypeConsentLogged, At: rec.At, ParticipantID: participantID})
	s.auditLocked(ctx, audit.Event{
		Kind:    audit.KindConsent,
		Actor:   participantID,
		Subject: participantID,
		At:      rec.At,
		Detail: map[string]string{
			"purpose": string(purpose),
			"granted": boolDetail(granted),
			"seq":     fmt.Sprint(rec.Seq),
		},
	})

	if purpose == consent.PurposeRecording && !granted && s.recorder.Active() {
		if p, ok := s.registry.Get(participantID); ok && s.ledger.RequiresRecordingConsent(p.Role) {
			s.auditLocked(ctx, audit.Event{
				Kind:    audit.KindConsentRevokedDuringRecord,
				Actor:   participantID,
				Subject: participantID,
				At:      rec.At,
				Detail:  map[string]string{"purpose": string(purpose), "role": string(p.Role)},
			})
			s.logger.Warn("recording consent revoked during recording", "participant_id", participantID)
		}
	}
	return rec, nil
}

// RecordMessage counts a chat message from an active participant and resets
// the idle window.
func (s *Session) RecordMessage(ctx context.Context, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActiveLocked("record message"); err != nil {
		return err
	}
	if _, ok := s.registry.Get(participantID); !ok {
		return fmt.Errorf("%w: %s", roster.ErrParticipantNotFound, participantID)
	}
	s.events.Append(eventlog.Event{Type: eventlog.TypeMessage, At: s.deps.Now(), ParticipantID: participantID})
	s.touchLocked()
	return nil
}
