package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/telesession/internal/audit"
	"github.com/foxseedlab/telesession/internal/config"
	"github.com/foxseedlab/telesession/internal/notification"
	"github.com/foxseedlab/telesession/internal/repository"
	"github.com/foxseedlab/telesession/internal/transport"
)

type mockRoomService struct {
	mu sync.Mutex

	openErr       error
	openFailTimes int
	openBlock     chan struct{}
	openCalls     int
	closeCalls    []transport.RoomHandle

	recordErr   error
	recordBlock chan struct{}
	recordCalls int
	stopCalls   []transport.RecordingHandle
	stopErr     error
	tokenCalls  []transport.JoinGrant
}

func (m *mockRoomService) OpenRoom(_ context.Context, sessionID string, _ transport.RoomOptions) (transport.RoomHandle, error) {
	m.mu.Lock()
	m.openCalls++
	call := m.openCalls
	block := m.openBlock
	openErr := m.openErr
	if m.openFailTimes > 0 && call > m.openFailTimes {
		openErr = nil
	}
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	if openErr != nil {
		return transport.RoomHandle{}, openErr
	}
	return transport.RoomHandle{Name: "telehealth-" + sessionID, SID: fmt.Sprintf("RM_%d", call)}, nil
}

func (m *mockRoomService) CloseRoom(_ context.Context, room transport.RoomHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls = append(m.closeCalls, room)
	return nil
}

func (m *mockRoomService) StartRecording(_ context.Context, room transport.RoomHandle) (transport.RecordingHandle, error) {
	m.mu.Lock()
	m.recordCalls++
	call := m.recordCalls
	block := m.recordBlock
	recordErr := m.recordErr
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	if recordErr != nil {
		return transport.RecordingHandle{}, recordErr
	}
	return transport.RecordingHandle{ID: fmt.Sprintf("EG_%d", call), Room: room.Name, StartedAt: time.Now()}, nil
}

func (m *mockRoomService) StopRecording(_ context.Context, rec transport.RecordingHandle) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls = append(m.stopCalls, rec)
	if m.stopErr != nil {
		return 0, m.stopErr
	}
	return 90 * time.Second, nil
}

func (m *mockRoomService) IssueJoinToken(room transport.RoomHandle, grant transport.JoinGrant) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenCalls = append(m.tokenCalls, grant)
	return "token-" + room.Name + "-" + grant.Identity, nil
}

func (m *mockRoomService) counts() (open, closed, record int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls, len(m.closeCalls), m.recordCalls
}

type mockAuditStore struct {
	mu      sync.Mutex
	records []repository.AuditRecord
}

func (m *mockAuditStore) AppendAuditEvent(_ context.Context, record repository.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = int64(len(m.records) + 1)
	m.records = append(m.records, record)
	return nil
}

func (m *mockAuditStore) LoadComplianceReport(_ context.Context, sessionID string) ([]repository.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.AuditRecord
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockAuditStore) count(kind audit.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.Kind == string(kind) {
			n++
		}
	}
	return n
}

func (m *mockAuditStore) last(kind audit.Kind) (repository.AuditRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].Kind == string(kind) {
			return m.records[i], true
		}
	}
	return repository.AuditRecord{}, false
}

type mockAnalyticsRepository struct {
	mu    sync.Mutex
	saved []repository.AnalyticsRecord
	err   error
}

func (m *mockAnalyticsRepository) SaveAnalytics(_ context.Context, _ string, record repository.AnalyticsRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, record)
	return nil
}

func (m *mockAnalyticsRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type mockDirectory struct {
	names map[string]string
	err   error
}

func (m *mockDirectory) ResolveDisplayName(_ context.Context, id string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.names[id], nil
}

func (m *mockDirectory) ResolveEmail(_ context.Context, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "", nil
}

type mockNotifier struct {
	mu         sync.Mutex
	err        error
	deliveries []notification.InvitationDelivery
}

func (m *mockNotifier) DeliverInvitation(_ context.Context, d notification.InvitationDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, d)
	return m.err
}

var errTransportDown = errors.New("livekit unreachable")

type testEnv struct {
	rooms     *mockRoomService
	store     *mockAuditStore
	analytics *mockAnalyticsRepository
	notifier  *mockNotifier
	manager   *Manager
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultMaxParticipants:    6,
		DefaultIdleTimeoutMin:     15,
		DefaultSessionTimeoutMin:  120,
		DefaultAuditRetentionDays: 2190,
		ReportTimezone:            "UTC",
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		rooms:     &mockRoomService{},
		store:     &mockAuditStore{},
		analytics: &mockAnalyticsRepository{},
		notifier:  &mockNotifier{},
	}
	env.manager = NewManager(testConfig(), Dependencies{
		Transport: env.rooms,
		Audit:     audit.NewRecorder(env.store),
		Analytics: env.analytics,
		Directory: &mockDirectory{names: map[string]string{"dr-who": "Dr. Who"}},
		Notifier:  env.notifier,
		Retry: transport.RetryPolicy{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
	})
	t.Cleanup(func() { _ = env.manager.Shutdown(context.Background()) })
	return env
}

func (e *testEnv) newSession(t *testing.T, mutate func(*Configuration)) *Session {
	t.Helper()
	cfg := e.manager.DefaultConfiguration()
	cfg.PatientID = "patient-1"
	cfg.ProviderID = "dr-who"
	cfg.IdleTimeout = 0
	cfg.SessionTimeout = 0
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := e.manager.CreateSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func (e *testEnv) activeSession(t *testing.T, mutate func(*Configuration)) *Session {
	t.Helper()
	s := e.newSession(t, mutate)
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("start session: %v", err)
	}
	return s
}
