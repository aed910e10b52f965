package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/telesession/internal/config"
)

type envConfig struct {
	Env                           string        `env:"ENV" envDefault:"production"`
	HTTPAddr                      string        `env:"HTTP_ADDR" envDefault:":8080"`
	CORSAllowedOrigins            []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	DatabaseURL                   string        `env:"DATABASE_URL,required"`
	LiveKitURL                    string        `env:"LIVEKIT_URL" envDefault:"ws://localhost:7880"`
	LiveKitAPIKey                 string        `env:"LIVEKIT_API_KEY,required"`
	LiveKitAPISecret              string        `env:"LIVEKIT_API_SECRET,required"`
	LiveKitTokenTTL               time.Duration `env:"LIVEKIT_TOKEN_TTL" envDefault:"2h"`
	RecordingOutputPrefix         string        `env:"RECORDING_OUTPUT_PREFIX" envDefault:"recordings/"`
	NotificationWebhookURL        string        `env:"NOTIFICATION_WEBHOOK_URL"`
	TransportRetryMax             int           `env:"TRANSPORT_RETRY_MAX" envDefault:"3"`
	TransportRetryInitialInterval time.Duration `env:"TRANSPORT_RETRY_INITIAL_INTERVAL" envDefault:"200ms"`
	InvitationTTL                 time.Duration `env:"INVITATION_TTL" envDefault:"24h"`
	SessionArchiveDelay           time.Duration `env:"SESSION_ARCHIVE_DELAY" envDefault:"15m"`
	RecordingConsentRoles         []string      `env:"RECORDING_CONSENT_ROLES" envDefault:"patient,caregiver" envSeparator:","`
	DefaultMaxParticipants        int           `env:"DEFAULT_MAX_PARTICIPANTS" envDefault:"6"`
	DefaultIdleTimeoutMin         int           `env:"DEFAULT_IDLE_TIMEOUT_MIN" envDefault:"15"`
	DefaultSessionTimeoutMin      int           `env:"DEFAULT_SESSION_TIMEOUT_MIN" envDefault:"120"`
	DefaultAuditRetentionDays     int           `env:"DEFAULT_AUDIT_RETENTION_DAYS" envDefault:"2190"`
	ReportTimezone                string        `env:"REPORT_TIMEZONE" envDefault:"UTC"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                           raw.Env,
		HTTPAddr:                      raw.HTTPAddr,
		CORSAllowedOrigins:            raw.CORSAllowedOrigins,
		DatabaseURL:                   raw.DatabaseURL,
		LiveKitURL:                    raw.LiveKitURL,
		LiveKitAPIKey:                 raw.LiveKitAPIKey,
		LiveKitAPISecret:              raw.LiveKitAPISecret,
		LiveKitTokenTTL:               raw.LiveKitTokenTTL,
		RecordingOutputPrefix:         raw.RecordingOutputPrefix,
		NotificationWebhookURL:        raw.NotificationWebhookURL,
		TransportRetryMax:             raw.TransportRetryMax,
		TransportRetryInitialInterval: raw.TransportRetryInitialInterval,
		InvitationTTL:                 raw.InvitationTTL,
		SessionArchiveDelay:           raw.SessionArchiveDelay,
		RecordingConsentRoles:         raw.RecordingConsentRoles,
		DefaultMaxParticipants:        raw.DefaultMaxParticipants,
		DefaultIdleTimeoutMin:         raw.DefaultIdleTimeoutMin,
		DefaultSessionTimeoutMin:      raw.DefaultSessionTimeoutMin,
		DefaultAuditRetentionDays:     raw.DefaultAuditRetentionDays,
		ReportTimezone:                raw.ReportTimezone,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
