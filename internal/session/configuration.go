package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/telesession/internal/audit"
)

type Type string

const (
	TypeConsultation Type = "consultation"
	TypeFollowUp     Type = "follow-up"
	TypeEmergency    Type = "emergency"
)

func (t Type) Valid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeEmergency:
		return true
	default:
		return false
	}
}

type ComplianceSettings struct {
	AuditLogging       bool            `json:"audit_logging"`
	ConsentTracking    bool            `json:"consent_tracking"`
	RetentionDays      int             `json:"retention_days"`
	EncryptionRequired bool            `json:"encryption_required"`
	Verbosity          audit.Verbosity `json:"verbosity"`
}

// Configuration is fixed when the session is created.
type Configuration struct {
	ID                   string             `json:"id"`
	PatientID            string             `json:"patient_id"`
	ProviderID           string             `json:"provider_id"`
	AppointmentID        string             `json:"appointment_id"`
	Type                 Type               `json:"type"`
	MaxParticipants      int                `json:"max_participants"`
	RecordingEnabled     bool               `json:"recording_enabled"`
	TranscriptionEnabled bool               `json:"transcription_enabled"`
	EncryptionEnabled    bool               `json:"encryption_enabled"`
	ScreenSharingEnabled bool               `json:"screen_sharing_enabled"`
	AllowThirdParty      bool               `json:"allow_third_party"`
	IdleTimeout          time.Duration      `json:"-"`
	SessionTimeout       time.Duration      `json:"-"`
	Compliance           ComplianceSettings `json:"compliance"`
}

func (c Configuration) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidConfiguration)
	}
	if strings.TrimSpace(c.PatientID) == "" {
		return fmt.Errorf("%w: patient id is required", ErrInvalidConfiguration)
	}
	if strings.TrimSpace(c.ProviderID) == "" {
		return fmt.Errorf("%w: provider id is required", ErrInvalidConfiguration)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown session type %q", ErrInvalidConfiguration, c.Type)
	}
	if c.MaxParticipants <= 0 {
		return fmt.Errorf("%w: max participants must be positive, got %d", ErrInvalidConfiguration, c.MaxParticipants)
	}
	if c.IdleTimeout < 0 || c.SessionTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfiguration)
	}
	if c.Compliance.RetentionDays <= 0 {
		return fmt.Errorf("%w: retention days must be positive, got %d", ErrInvalidConfiguration, c.Compliance.RetentionDays)
	}
	if !c.Compliance.Verbosity.Valid() {
		return fmt.Errorf("%w: unknown log verbosity %q", ErrInvalidConfiguration, c.Compliance.Verbosity)
	}
	if c.Compliance.EncryptionRequired && !c.EncryptionEnabled {
		return fmt.Errorf("%w: encryption is required but not enabled", ErrInvalidConfiguration)
	}
	return nil
}

func (c Configuration) auditPolicy() audit.Policy {
	return audit.Policy{
		Enabled:         c.Compliance.AuditLogging,
		ConsentTracking: c.Compliance.ConsentTracking,
		RetentionDays:   c.Compliance.RetentionDays,
		Verbosity:       c.Compliance.Verbosity,
	}
}
