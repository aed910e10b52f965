package notification

import "context"

type InvitationDelivery struct {
	SessionID    string
	InvitationID string
	Email        string
	Name         string
	Role         string
	Message      string
	InvitedBy    string
}

// Notifier delivers invitations out of band. Delivery is best-effort: callers
// log and audit failures but never roll back the invitation.
type Notifier interface {
	DeliverInvitation(ctx context.Context, delivery InvitationDelivery) error
}
