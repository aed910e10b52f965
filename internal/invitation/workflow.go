package invitation

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/foxseedlab/telesession/internal/roster"
	"github.com/google/uuid"
)

var (
	ErrThirdPartyDisabled     = errors.New("third-party participants disabled")
	ErrInvalidInvitationState = errors.New("invalid invitation state")
	ErrInvitationNotFound     = errors.New("invitation not found")
	ErrInvalidInvitation      = errors.New("invalid invitation")
)

const DefaultTTL = 24 * time.Hour

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusExpired  Status = "expired"
)

func (s Status) Terminal() bool {
	return s != StatusPending
}

type Invitation struct {
	ID         string
	InvitedBy  string
	Email      string
	Name       string
	Role       roster.Role
	Message    string
	Status     Status
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// ParticipantID is the roster identity an accepted invitee is admitted under.
func (i Invitation) ParticipantID() string {
	return "inv-" + i.ID
}

func (i Invitation) Participant() roster.Participant {
	return roster.Participant{
		ID:           i.ParticipantID(),
		DisplayName:  i.Name,
		Role:         i.Role,
		Email:        i.Email,
		InvitationID: i.ID,
	}
}

type Request struct {
	InvitedBy string
	Email     string
	Name      string
	Role      roster.Role
	Message   string
}

// Workflow runs independently of the session lifecycle. Like the registry it
// relies on its owner for serialization. Expiry is lazy: every accessor first
// moves overdue pending invitations to expired and reports them.
type Workflow struct {
	allowThirdParty bool
	ttl             time.Duration
	registry        *roster.Registry
	invitations     map[string]*Invitation
	order           []string
	newID           func() string
}

func NewWorkflow(allowThirdParty bool, ttl time.Duration, registry *roster.Registry) *Workflow {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Workflow{
		allowThirdParty: allowThirdParty,
		ttl:             ttl,
		registry:        registry,
		invitations:     make(map[string]*Invitation),
		newID:           uuid.NewString,
	}
}

func (w *Workflow) Invite(req Request, at time.Time) (Invitation, error) {
	if !w.allowThirdParty {
		return Invitation{}, ErrThirdPartyDisabled
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return Invitation{}, fmt.Errorf("%w: email %q", ErrInvalidInvitation, req.Email)
	}
	if strings.TrimSpace(req.Name) == "" {
		return Invitation{}, fmt.Errorf("%w: name is required", ErrInvalidInvitation)
	}
	role, err := roster.ParseRole(string(req.Role))
	if err != nil {
		return Invitation{}, err
	}
	inv := &Invitation{
		ID:        w.newID(),
		InvitedBy: req.InvitedBy,
		Email:     strings.TrimSpace(req.Email),
		Name:      strings.TrimSpace(req.Name),
		Role:      role,
		Message:   req.Message,
		Status:    StatusPending,
		CreatedAt: at,
	}
	w.invitations[inv.ID] = inv
	w.order = append(w.order, inv.ID)
	return *inv, nil
}

// Get returns the invitation after applying lazy expiry to it; expired is
// true when this call moved it to StatusExpired.
func (w *Workflow) Get(id string, at time.Time) (inv Invitation, expired bool, err error) {
	current, ok := w.invitations[id]
	if !ok {
		return Invitation{}, false, fmt.Errorf("%w: %s", ErrInvitationNotFound, id)
	}
	expired = w.expire(current, at)
	return *current, expired, nil
}

// Resolve accepts or declines a pending invitation. Accepting admits the
// invitee to the registry first; if admission fails the invitation stays
// pending so it can be retried once a slot frees up.
func (w *Workflow) Resolve(id string, accepted bool, at time.Time) (Invitation, *roster.Participant, error) {
	current, ok := w.invitations[id]
	if !ok {
		return Invitation{}, nil, fmt.Errorf("%w: %s", ErrInvitationNotFound, id)
	}
	w.expire(current, at)
	if current.Status != StatusPending {
		return *current, nil, fmt.Errorf("%w: invitation %s is %s", ErrInvalidInvitationState, id, current.Status)
	}

	resolvedAt := at
	if !accepted {
		current.Status = StatusDeclined
		current.ResolvedAt = &resolvedAt
		return *current, nil, nil
	}
	p, err := w.registry.Add(current.Participant(), at)
	if err != nil {
		return *current, nil, err
	}
	current.Status = StatusAccepted
	current.ResolvedAt = &resolvedAt
	return *current, &p, nil
}

// List returns every invitation in creation order plus those that expired
// during this call.
func (w *Workflow) List(at time.Time) (all []Invitation, expired []Invitation) {
	all = make([]Invitation, 0, len(w.order))
	for _, id := range w.order {
		inv := w.invitations[id]
		if w.expire(inv, at) {
			expired = append(expired, *inv)
		}
		all = append(all, *inv)
	}
	return all, expired
}

func (w *Workflow) Count() int {
	return len(w.order)
}

func (w *Workflow) expire(inv *Invitation, at time.Time) bool {
	if inv.Status != StatusPending {
		return false
	}
	if at.Sub(inv.CreatedAt) < w.ttl {
		return false
	}
	expiredAt := inv.CreatedAt.Add(w.ttl)
	inv.Status = StatusExpired
	inv.ResolvedAt = &expiredAt
	return true
}
