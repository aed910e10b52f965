package session

import (
	"context"
	"fmt"

	"github.com/foxseedlab/telesession/internal/audit"
	"github.com/foxseedlab/telesession/internal/eventlog"
	"github.com/foxseedlab/telesession/internal/invitation"
	"github.com/foxseedlab/telesession/internal/metrics"
	"github.com/foxseedlab/telesession/internal/notification"
)

// InviteParticipant creates a pending invitation. Sending it is a separate
// step, see DispatchInvitation.
func (s *Session) InviteParticipant(ctx context.Context, req invitation.Request) (invitation.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLiveLocked("invite participant"); err != nil {
		return invitation.Invitation{}, err
	}
	inv, err := s.invites.Invite(req, s.deps.Now())
	if err != nil {
		return invitation.Invitation{}, err
	}
	s.events.Append(eventlog.Event{Type: eventlog.TypeInvitationCreated, At: inv.CreatedAt})
	s.auditLocked(ctx, audit.Event{
		Kind:    audit.KindInvitationCreated,
		Actor:   inv.InvitedBy,
		Subject: inv.ID,
		At:      inv.CreatedAt,
		Detail: map[string]string{
			"email": inv.Email,
			"name":  inv.Name,
			"role":  string(inv.Role),
		},
	})
	s.logger.Info("invitation created", "invitation_id", inv.ID, "role", inv.Role, "invited_by", inv.InvitedBy)
	return inv, nil
}

// DispatchInvitation hands a pending invitation to the notifier. Delivery is
// best-effort: a failure is logged and audited, reported as delivered=false,
// and leaves the invitation pending.
func (s *Session) DispatchInvitation(ctx context.Context, invitationID string) (delivered bool, err error) {
	s.mu.Lock()
	if err := s.requireLiveLocked("dispatch invitation"); err != nil {
		s.mu.Unlock()
		return false, err
	}
	inv, expired, err := s.invites.Get(invitationID, s.deps.Now())
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if expired {
		s.auditExpiredLocked(ctx, inv)
	}
	if inv.Status != invitation.StatusPending {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: invitation %s is %s", invitation.ErrInvalidInvitationState, inv.ID, inv.Status)
	}
	s.mu.Unlock()

	if s.deps.Notifier == nil {
		return false, nil
	}
	deliverErr := s.deps.Notifier.DeliverInvitation(ctx, notification.InvitationDelivery{
		SessionID:    s.cfg.ID,
		InvitationID: inv.ID,
		Email:        inv.Email,
		Name:         inv.Name,
		Role:         string(inv.Role),
		Message:      inv.Message,
		InvitedBy:    inv.InvitedBy,
	})
	if deliverErr == nil {
		s.logger.Info("invitation dispatched", "invitation_id", inv.ID)
		return true, nil
	}

	metrics.InvitationDeliveryFailures.Inc()
	s.logger.Error("failed to deliver invitation", "error", deliverErr, "invitation_id", inv.ID)
	s.mu.Lock()
	s.auditLocked(ctx, audit.Event{
		Kind:    audit.KindInvitationDeliveryFailed,
		Actor:   systemActor,
		Subject: inv.ID,
		Detail:  map[string]string{"error": deliverErr.Error()},
	})
	s.mu.Unlock()
	return false, nil
}

// ResolveInvitation accepts or declines a pending invitation. Accepting admits
// the invitee and needs an active session; declining only needs a live one.
func (s *Session) ResolveInvitation(ctx context.Context, invitationID string, accepted bool) (invitation.Invitation, *Admission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLiveLocked("resolve invitation"); err != nil {
		return invitation.Invitation{}, nil, err
	}
	now := s.deps.Now()
	inv, expired, err := s.invites.Get(invitationID, now)
	if err != nil {
		return invitation.Invitation{}, nil, err
	}
	if expired {
		s.auditExpiredLocked(ctx, inv)
	}

	var token string
	if accepted && inv.Status == invitation.StatusPending {
		if err := s.requireActiveLocked("accept invitation"); err != nil {
			return inv, nil, err
		}
		if err := s.registry.CanAdmit(inv.ParticipantID()); err != nil {
			s.auditLocked(ctx, audit.Event{
				Kind:    audit.KindAdmissionDenied,
				Actor:   systemActor,
				Subject: inv.ParticipantID(),
				Detail:  map[string]string{"invitation": inv.ID, "error": err.Error()},
			})
			return inv, nil, err
		}
		if token, err = s.issueJoinTokenLocked(inv.Participant()); err != nil {
			return inv, nil, err
		}
	}

	resolved, p, err := s.invites.Resolve(invitationID, accepted, now)
	if err != nil {
		return resolved, nil, err
	}
	s.events.Append(eventlog.Event{Type: eventlog.TypeInvitationResolved, At: now})
	s.auditLocked(ctx, audit.Event{
		Kind:    audit.KindInvitationResolved,
		Actor:   resolved.ParticipantID(),
		Subject: resolved.ID,
		At:      now,
		Detail:  map[string]string{"status": string(resolved.Status)},
	})
	s.logger.Info("invitation resolved", "invitation_id", resolved.ID, "status", resolved.Status)
	if p == nil {
		return resolved, nil, nil
	}
	s.admittedLocked(ctx, *p)
	return resolved, &Admission{Participant: *p, JoinToken: token}, nil
}

// ListInvitations returns every invitation after applying lazy expiry.
func (s *Session) ListInvitations(ctx context.Context) []invitation.Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, expired := s.invites.List(s.deps.Now())
	for _, inv := range expired {
		s.auditExpiredLocked(ctx, inv)
	}
	return all
}

func (s *Session) auditExpiredLocked(ctx context.Context, inv invitation.Invitation) {
	at := s.deps.Now()
	if inv.ResolvedAt != nil {
		at = *inv.ResolvedAt
	}
	s.auditLocked(ctx, audit.Event{
		Kind:    audit.KindInvitationExpired,
		Actor:   systemActor,
		Subject: inv.ID,
		At:      at,
	})
}
