package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/telesession/internal/audit"
	"github.com/foxseedlab/telesession/internal/config"
	"github.com/foxseedlab/telesession/internal/repository"
	"github.com/google/uuid"
)

// Manager maps session ids to sessions. Its lock only guards the map; every
// session serializes its own operations, so work on different sessions never
// contends.
type Manager struct {
	cfg          *config.Config
	deps         Dependencies
	archiveDelay time.Duration
	newID        func() string

	mu       sync.RWMutex
	sessions map[string]*Session
	archives map[string]*time.Timer
	closed   bool
}

func NewManager(cfg *config.Config, deps Dependencies) *Manager {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	m := &Manager{
		cfg:          cfg,
		archiveDelay: cfg.SessionArchiveDelay,
		newID:        uuid.NewString,
		sessions:     make(map[string]*Session),
		archives:     make(map[string]*time.Timer),
	}
	deps.OnTerminal = m.scheduleArchive
	m.deps = deps
	return m
}

// DefaultConfiguration is the starting point for CreateSession requests; the
// caller overrides what it needs.
func (m *Manager) DefaultConfiguration() Configuration {
	return Configuration{
		Type:                 TypeConsultation,
		MaxParticipants:      m.cfg.DefaultMaxParticipants,
		RecordingEnabled:     true,
		EncryptionEnabled:    true,
		ScreenSharingEnabled: true,
		IdleTimeout:          time.Duration(m.cfg.DefaultIdleTimeoutMin) * time.Minute,
		SessionTimeout:       time.Duration(m.cfg.DefaultSessionTimeoutMin) * time.Minute,
		Compliance: ComplianceSettings{
			AuditLogging:    true,
			ConsentTracking: true,
			RetentionDays:   m.cfg.DefaultAuditRetentionDays,
			Verbosity:       audit.VerbosityStandard,
		},
	}
}

func (m *Manager) CreateSession(ctx context.Context, cfg Configuration) (*Session, error) {
	if cfg.ID == "" {
		cfg.ID = m.newID()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if _, exists := m.sessions[cfg.ID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: session %s already exists", ErrInvalidConfiguration, cfg.ID)
	}
	s := newSession(cfg, m.deps)
	m.sessions[cfg.ID] = s
	m.mu.Unlock()

	s.mu.Lock()
	s.auditLocked(ctx, audit.Event{
		Kind:  audit.KindSessionCreated,
		Actor: cfg.ProviderID,
		Detail: map[string]string{
			"patient_id":       cfg.PatientID,
			"provider_id":      cfg.ProviderID,
			"appointment_id":   cfg.AppointmentID,
			"type":             string(cfg.Type),
			"max_participants": fmt.Sprint(cfg.MaxParticipants),
		},
	})
	s.mu.Unlock()
	slog.Info("session created", "session_id", cfg.ID, "type", cfg.Type, "max_participants", cfg.MaxParticipants)
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// scheduleArchive drops a terminal session from memory after the archive
// delay. A non-positive delay keeps it until shutdown.
func (m *Manager) scheduleArchive(id string) {
	if m.archiveDelay <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if _, ok := m.archives[id]; ok {
		return
	}
	m.archives[id] = time.AfterFunc(m.archiveDelay, func() {
		m.mu.Lock()
		delete(m.sessions, id)
		delete(m.archives, id)
		m.mu.Unlock()
		slog.Info("session archived", "session_id", id)
	})
}

// Shutdown ends every live session with reason error and refuses new ones.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for id, t := range m.archives {
		t.Stop()
		delete(m.archives, id)
	}
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		if state, _ := s.State(); state.Terminal() {
			continue
		}
		if _, err := s.End(ctx, ReasonError); err != nil {
			slog.Error("failed to end session during shutdown", "error", err, "session_id", s.ID())
		}
	}
	slog.Info("session manager shut down", "sessions", len(live))
	return nil
}

// ComplianceReport reads the persisted audit trail, so it also covers
// sessions that were already archived.
func (m *Manager) ComplianceReport(ctx context.Context, sessionID string) ([]repository.AuditRecord, error) {
	records, err := m.deps.Audit.LoadComplianceReport(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load compliance report: %w", err)
	}
	if len(records) == 0 {
		if _, err := m.Get(sessionID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (m *Manager) ComplianceReportText(ctx context.Context, sessionID string) ([]byte, error) {
	records, err := m.ComplianceReport(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return buildComplianceReportText(sessionID, records, m.cfg.ReportTimezone, m.cfg.ReportLocation()), nil
}
