package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Env                           string
	HTTPAddr                      string
	CORSAllowedOrigins            []string
	DatabaseURL                   string
	LiveKitURL                    string
	LiveKitAPIKey                 string
	LiveKitAPISecret              string
	LiveKitTokenTTL               time.Duration
	RecordingOutputPrefix         string
	NotificationWebhookURL        string
	TransportRetryMax             int
	TransportRetryInitialInterval time.Duration
	InvitationTTL                 time.Duration
	SessionArchiveDelay           time.Duration
	RecordingConsentRoles         []string
	DefaultMaxParticipants        int
	DefaultIdleTimeoutMin         int
	DefaultSessionTimeoutMin      int
	DefaultAuditRetentionDays     int
	ReportTimezone                string
}

var knownRoles = map[string]struct{}{
	"provider":    {},
	"patient":     {},
	"caregiver":   {},
	"interpreter": {},
	"specialist":  {},
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.TransportRetryMax < 0 {
		return fmt.Errorf("TRANSPORT_RETRY_MAX must not be negative, got %d", c.TransportRetryMax)
	}
	if c.TransportRetryInitialInterval <= 0 {
		return fmt.Errorf("TRANSPORT_RETRY_INITIAL_INTERVAL must be positive, got %s", c.TransportRetryInitialInterval)
	}
	if c.InvitationTTL <= 0 {
		return fmt.Errorf("INVITATION_TTL must be positive, got %s", c.InvitationTTL)
	}
	if c.DefaultMaxParticipants <= 0 {
		return fmt.Errorf("DEFAULT_MAX_PARTICIPANTS must be positive, got %d", c.DefaultMaxParticipants)
	}
	if c.DefaultIdleTimeoutMin < 0 || c.DefaultSessionTimeoutMin < 0 {
		return fmt.Errorf("session timeouts must not be negative")
	}
	if c.DefaultAuditRetentionDays <= 0 {
		return fmt.Errorf("DEFAULT_AUDIT_RETENTION_DAYS must be positive, got %d", c.DefaultAuditRetentionDays)
	}
	for _, role := range c.RecordingConsentRoles {
		if _, ok := knownRoles[strings.TrimSpace(role)]; !ok {
			return fmt.Errorf("RECORDING_CONSENT_ROLES contains unknown role %q", role)
		}
	}
	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		return fmt.Errorf("REPORT_TIMEZONE is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "LIVEKIT_URL", value: c.LiveKitURL},
		{name: "LIVEKIT_API_KEY", value: c.LiveKitAPIKey},
		{name: "LIVEKIT_API_SECRET", value: c.LiveKitAPISecret},
		{name: "REPORT_TIMEZONE", value: c.ReportTimezone},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ReportLocation falls back to UTC so callers never see a nil location.
func (c *Config) ReportLocation() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
