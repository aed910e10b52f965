package roster

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCapacityExceeded     = errors.New("capacity exceeded")
	ErrDuplicateParticipant = errors.New("duplicate participant")
	ErrInvalidRole          = errors.New("invalid participant role")
	ErrInvalidParticipant   = errors.New("invalid participant")
	ErrParticipantNotFound  = errors.New("participant not found")
)

type Role string

const (
	RoleProvider    Role = "provider"
	RolePatient     Role = "patient"
	RoleCaregiver   Role = "caregiver"
	RoleInterpreter Role = "interpreter"
	RoleSpecialist  Role = "specialist"
)

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleProvider, RolePatient, RoleCaregiver, RoleInterpreter, RoleSpecialist:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

type ConnectionState string

const (
	Connected    ConnectionState = "connected"
	Disconnected ConnectionState = "disconnected"
)

type Participant struct {
	ID           string
	DisplayName  string
	Role         Role
	Email        string
	Connection   ConnectionState
	JoinedAt     time.Time
	LeftAt       *time.Time
	InvitationID string
}

func (p Participant) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidParticipant)
	}
	if _, err := ParseRole(string(p.Role)); err != nil {
		return err
	}
	return nil
}
