package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/telesession/internal/analytics"
	"github.com/foxseedlab/telesession/internal/audit"
	"github.com/foxseedlab/telesession/internal/consent"
	"github.com/foxseedlab/telesession/internal/directory"
	"github.com/foxseedlab/telesession/internal/eventlog"
	"github.com/foxseedlab/telesession/internal/invitation"
	"github.com/foxseedlab/telesession/internal/metrics"
	"github.com/foxseedlab/telesession/internal/notification"
	"github.com/foxseedlab/telesession/internal/recording"
	"github.com/foxseedlab/telesession/internal/repository"
	"github.com/foxseedlab/telesession/internal/roster"
	"github.com/foxseedlab/telesession/internal/transport"
	"golang.org/x/sync/singleflight"
)

const systemActor = "system"

// Dependencies are the collaborators shared by every session of a Manager.
type Dependencies struct {
	Transport     transport.RoomService
	Audit         *audit.Recorder
	Analytics     repository.AnalyticsRepository
	Directory     directory.Lookup
	Notifier      notification.Notifier
	Retry         transport.RetryPolicy
	InvitationTTL time.Duration
	ConsentRoles  []roster.Role
	Now           func() time.Time
	// OnTerminal is called once, without the session lock held, after the
	// session reaches Ended or Failed.
	OnTerminal func(sessionID string)
}

// Session is one telehealth encounter. Every mutating method takes the
// session lock, so capacity and consent checks always see one consistent
// roster. Calls out to the transport during start paths run unlocked and
// re-check the state when they return.
type Session struct {
	cfg    Configuration
	deps   Dependencies
	logger *slog.Logger

	mu       sync.RWMutex
	flight   singleflight.Group
	state    State
	reason   Reason
	room     *transport.RoomHandle
	registry *roster.Registry
	ledger   *consent.Ledger
	recorder *recording.Controller
	invites  *invitation.Workflow
	events   *eventlog.Log
	trail    []audit.Event
	final    *analytics.SessionAnalytics

	lastActivity  time.Time
	idleTimer     *time.Timer
	absoluteTimer *time.Timer
}

func newSession(cfg Configuration, deps Dependencies) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	registry := roster.NewRegistry(cfg.MaxParticipants)
	ledger := consent.NewLedger(deps.ConsentRoles)
	return &Session{
		cfg:      cfg,
		deps:     deps,
		logger:   slog.Default().With("session_id", cfg.ID),
		state:    StateCreated,
		registry: registry,
		ledger:   ledger,
		recorder: recording.NewController(deps.Transport, registry, ledger, deps.Retry),
		invites:  invitation.NewWorkflow(cfg.AllowThirdParty, deps.InvitationTTL, registry),
		events:   eventlog.New(),
	}
}

func (s *Session) ID() string {
	return s.cfg.ID
}

func (s *Session) Configuration() Configuration {
	return s.cfg
}

// Start opens the transport room. Concurrent calls share one attempt; calls
// made while Starting or Active return the current state without opening
// another room.
func (s *Session) Start(ctx context.Context) (State, error) {
	v, err, _ := s.flight.Do("start", func() (any, error) {
		return s.start(context.WithoutCancel(ctx))
	})
	state, _ := v.(State)
	return state, err
}

func (s *Session) start(ctx context.Context) (State, error) {
	s.mu.Lock()
	switch s.state {
	case StateStarting, StateActive:
		state := s.state
		s.mu.Unlock()
		return state, nil
	case StateCreated:
	default:
		state := s.state
		s.mu.Unlock()
		return state, fmt.Errorf("%w: cannot start a session that is %s", ErrInvalidStateTransition, state)
	}
	s.transitionLocked(ctx, StateStarting, "", nil)
	opts := s.roomOptions()
	s.mu.Unlock()

	var room transport.RoomHandle
	err := transport.Retry(ctx, s.deps.Retry, func(ctx context.Context) error {
		var err error
		room, err = s.deps.Transport.OpenRoom(ctx, s.cfg.ID, opts)
		return err
	}, s.retryNotifier("open_room"))

	s.mu.Lock()
	if s.state != StateStarting {
		state := s.state
		detail := map[string]string{"state": string(state)}
		if err != nil {
			detail["error"] = err.Error()
		} else {
			detail["room"] = room.Name
		}
		s.auditLocked(ctx, audit.Event{Kind: audit.KindStartDiscarded, Actor: systemActor, Detail: detail})
		s.mu.Unlock()
		s.logger.Warn("discarding room opened for a session that is no longer starting", "state", state, "error", err)
		if err == nil {
			s.closeRoom(ctx, room)
		}
		return state, fmt.Errorf("%w: session became %s while starting", ErrInvalidStateTransition, state)
	}
	if err != nil {
		metrics.TransportFailures.WithLabelValues("open_room").Inc()
		s.logger.Error("failed to open transport room", "error", err)
		s.auditLocked(ctx, audit.Event{
			Kind:   audit.KindTransportFailure,
			Actor:  systemActor,
			Detail: map[string]string{"operation": "open_room", "error": err.Error()},
		})
		s.failLocked(ctx, err)
		s.mu.Unlock()
		s.notifyTerminal()
		return StateFailed, fmt.Errorf("%w: open room: %w", transport.ErrUnavailable, err)
	}
	defer s.mu.Unlock()
	s.room = &room
	s.transitionLocked(ctx, StateActive, "", map[string]string{"room": room.Name})
	s.lastActivity = s.deps.Now()
	s.armTimersLocked()
	return StateActive, nil
}

// End is idempotent: on a terminal session it returns the analytics computed
// when the session first ended.
func (s *Session) End(ctx context.Context, reason Reason) (analytics.SessionAnalytics, error) {
	if !reason.Valid() {
		return analytics.SessionAnalytics{}, fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}
	s.mu.Lock()
	a, ended := s.endLocked(ctx, reason)
	s.mu.Unlock()
	if ended {
		s.notifyTerminal()
	}
	return a, nil
}

func (s *Session) endLocked(ctx context.Context, reason Reason) (analytics.SessionAnalytics, bool) {
	if s.state.Terminal() {
		return *s.final, false
	}
	s.stopTimersLocked()
	s.transitionLocked(ctx, StateEnding, reason, nil)
	s.stopRecordingLocked(ctx, systemActor, true)
	s.releaseRoomLocked(ctx)
	s.transitionLocked(ctx, StateEnded, reason, nil)
	return s.finalizeLocked(ctx, reason), true
}

func (s *Session) failLocked(ctx context.Context, cause error) {
	s.stopTimersLocked()
	s.stopRecordingLocked(ctx, systemActor, true)
	s.releaseRoomLocked(ctx)
	s.transitionLocked(ctx, StateFailed, ReasonError, map[string]string{"error": cause.Error()})
	s.finalizeLocked(ctx, ReasonError)
}

func (s *Session) finalizeLocked(ctx context.Context, reason Reason) analytics.SessionAnalytics {
	s.reason = reason
	a := analytics.Compute(s.cfg.ID, s.events.Events(), s.deps.Now())
	s.final = &a
	metrics.RecordSessionEnded(string(reason))
	s.logger.Info("session finished",
		"state", s.state,
		"reason", reason,
		"duration", a.Duration,
		"peak_participants", a.PeakParticipants,
		"recording_duration", a.RecordingDuration)

	if s.deps.Analytics == nil {
		return a
	}
	if err := s.deps.Analytics.SaveAnalytics(ctx, s.cfg.ID, a.Record()); err != nil {
		s.logger.Error("failed to persist session analytics", "error", err)
		s.auditLocked(ctx, audit.Event{
			Kind:   audit.KindAnalyticsPersistFailed,
			Actor:  systemActor,
			Detail: map[string]string{"error": err.Error()},
		})
	}
	return a
}

func (s *Session) notifyTerminal() {
	if s.deps.OnTerminal != nil {
		s.deps.OnTerminal(s.cfg.ID)
	}
}

// transitionLocked is the only place that changes s.state, so each transition
// yields exactly one transition audit event.
func (s *Session) transitionLocked(ctx context.Context, to State, reason Reason, extra map[string]string) {
	from := s.state
	at := s.deps.Now()
	s.state = to
	s.events.Append(eventlog.Event{
		Type:   eventlog.TypeStateChanged,
		At:     at,
		From:   string(from),
		To:     string(to),
		Reason: string(reason),
	})

	detail := map[string]string{"from": string(from), "to": string(to)}
	if reason != "" {
		detail["reason"] = string(reason)
	}
	for k, v := range extra {
		detail[k] = v
	}
	s.auditLocked(ctx, audit.Event{Kind: audit.KindTransition, Actor: systemActor, At: at, Detail: detail})
	metrics.RecordStateTransition(string(from), string(to))
	s.logger.Info("session state changed", "from", from, "to", to, "reason", reason)
}

func (s *Session) auditLocked(ctx context.Context, e audit.Event) {
	e.SessionID = s.cfg.ID
	if e.At.IsZero() {
		e.At = s.deps.Now()
	}
	s.trail = append(s.trail, e)
	if s.deps.Audit == nil {
		return
	}
	// Record logs and counts persistence failures itself.
	_ = s.deps.Audit.Record(ctx, s.cfg.auditPolicy(), e)
}

func (s *Session) releaseRoomLocked(ctx context.Context) {
	if s.room == nil {
		return
	}
	room := *s.room
	s.room = nil
	s.closeRoom(ctx, room)
}

func (s *Session) closeRoom(ctx context.Context, room transport.RoomHandle) {
	if err := s.deps.Transport.CloseRoom(ctx, room); err != nil {
		metrics.TransportFailures.WithLabelValues("close_room").Inc()
		s.logger.Warn("failed to close transport room", "error", err, "room", room.Name)
	}
}

func (s *Session) retryNotifier(operation string) func(attempt int, err error) {
	return func(attempt int, err error) {
		metrics.TransportRetries.WithLabelValues(operation).Inc()
		s.logger.Warn("transport call failed; retrying", "operation", operation, "attempt", attempt, "error", err)
	}
}

func (s *Session) roomOptions() transport.RoomOptions {
	return transport.RoomOptions{
		MaxParticipants:     s.cfg.MaxParticipants,
		EmptyTimeout:        s.cfg.IdleTimeout,
		EnableRecording:     s.cfg.RecordingEnabled,
		EnableTranscription: s.cfg.TranscriptionEnabled,
		EnableScreenShare:   s.cfg.ScreenSharingEnabled,
		Encrypted:           s.cfg.EncryptionEnabled,
		Metadata: map[string]string{
			"appointment_id": s.cfg.AppointmentID,
			"session_type":   string(s.cfg.Type),
		},
	}
}

func (s *Session) armTimersLocked() {
	if s.cfg.IdleTimeout > 0 {
		s.idleTimer = time.AfterFunc(s.cfg.IdleTimeout, s.onIdleTimer)
	}
	if s.cfg.SessionTimeout > 0 {
		s.absoluteTimer = time.AfterFunc(s.cfg.SessionTimeout, s.onAbsoluteTimer)
	}
}

func (s *Session) stopTimersLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	if s.absoluteTimer != nil {
		s.absoluteTimer.Stop()
	}
}

// touchLocked records qualifying activity and pushes the idle deadline out.
func (s *Session) touchLocked() {
	s.lastActivity = s.deps.Now()
	if s.idleTimer != nil {
		s.idleTimer.Reset(s.cfg.IdleTimeout)
	}
}

func (s *Session) onIdleTimer() {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	if idle := s.deps.Now().Sub(s.lastActivity); idle < s.cfg.IdleTimeout {
		s.idleTimer.Reset(s.cfg.IdleTimeout - idle)
		s.mu.Unlock()
		return
	}
	s.logger.Info("session idle timeout reached", "idle_timeout", s.cfg.IdleTimeout)
	_, ended := s.endLocked(context.Background(), ReasonTimeout)
	s.mu.Unlock()
	if ended {
		s.notifyTerminal()
	}
}

func (s *Session) onAbsoluteTimer() {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.logger.Info("session timeout reached", "session_timeout", s.cfg.SessionTimeout)
	_, ended := s.endLocked(context.Background(), ReasonTimeout)
	s.mu.Unlock()
	if ended {
		s.notifyTerminal()
	}
}

func (s *Session) requireActiveLocked(operation string) error {
	if s.state != StateActive {
		return fmt.Errorf("%w: cannot %s while session is %s", ErrInvalidStateTransition, operation, s.state)
	}
	return nil
}

func (s *Session) requireLiveLocked(operation string) error {
	if s.state.Terminal() || s.state == StateEnding {
		return fmt.Errorf("%w: cannot %s while session is %s", ErrInvalidStateTransition, operation, s.state)
	}
	return nil
}

func boolDetail(b bool) string {
	return strconv.FormatBool(b)
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}
