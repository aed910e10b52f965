package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/telesession/internal/audit"
	"github.com/foxseedlab/telesession/internal/transport"
)

func TestStart_OpensRoomAndActivates(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t, nil)

	state, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateActive {
		t.Fatalf("expected active, got %s", state)
	}
	again, err := s.Start(context.Background())
	if err != nil || again != StateActive {
		t.Fatalf("expected idempotent start, got %s %v", again, err)
	}
	if open, _, _ := env.rooms.counts(); open != 1 {
		t.Fatalf("expected one room, got %d", open)
	}
}

func TestStart_ConcurrentCallsShareOneAttempt(t *testing.T) {
	env := newTestEnv(t)
	env.rooms.openBlock = make(chan struct{})
	s := env.newSession(t, nil)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Start(context.Background()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(env.rooms.openBlock)
	wg.Wait()

	if open, _, _ := env.rooms.counts(); open != 1 {
		t.Fatalf("expected a single room open, got %d", open)
	}
	if state, _ := s.State(); state != StateActive {
		t.Fatalf("expected active, got %s", state)
	}
}

func TestStart_RetriesTransientFailures(t *testing.T) {
	env := newTestEnv(t)
	env.rooms.openErr = errTransportDown
	env.rooms.openFailTimes = 2
	s := env.newSession(t, nil)

	state, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateActive {
		t.Fatalf("expected active, got %s", state)
	}
	if open, _, _ := env.rooms.counts(); open != 3 {
		t.Fatalf("expected 3 attempts, got %d", open)
	}
}

func TestStart_TransportFailureFailsSession(t *testing.T) {
	env := newTestEnv(t)
	env.rooms.openErr = errTransportDown
	s := env.newSession(t, nil)

	state, err := s.Start(context.Background())
	if !errors.Is(err, transport.ErrUnavailable) {
		t.Fatalf("expected transport unavailable, got %v", err)
	}
	if state != StateFailed {
		t.Fatalf("expected failed, got %s", state)
	}
	if open, _, _ := env.rooms.counts(); open != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d", open)
	}
	rec, ok := env.store.last(audit.KindTransition)
	if !ok || rec.Detail["to"] != string(StateFailed) || rec.Detail["error"] == "" {
		t.Fatalf("expected failed transition with error detail, got %+v", rec)
	}
	if env.store.count(audit.KindTransportFailure) != 1 {
		t.Fatal("expected a transport failure audit record")
	}
	if env.analytics.count() != 1 {
		t.Fatalf("expected analytics for the failed session, got %d", env.analytics.count())
	}
	if _, err := s.Start(context.Background()); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition on restart, got %v", err)
	}
}

func TestEnd_DuringStartDiscardsRoom(t *testing.T) {
	env := newTestEnv(t)
	env.rooms.openBlock = make(chan struct{})
	s := env.newSession(t, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Start(context.Background())
		errCh <- err
	}()
	waitFor(t, func() bool {
		state, _ := s.State()
		return state == StateStarting
	})

	if _, err := s.End(context.Background(), ReasonProviderEnded); err != nil {
		t.Fatalf("unexpected end error: %v", err)
	}
	close(env.rooms.openBlock)

	if err := <-errCh; !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected discarded start, got %v", err)
	}
	if state, reason := s.State(); state != StateEnded || reason != ReasonProviderEnded {
		t.Fatalf("expected ended/provider_ended, got %s/%s", state, reason)
	}
	if _, closed, _ := env.rooms.counts(); closed != 1 {
		t.Fatalf("expected the late room to be closed, got %d", closed)
	}
	if env.store.count(audit.KindStartDiscarded) != 1 {
		t.Fatal("expected start_discarded audit record")
	}
}

func TestEnd_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	s := env.activeSession(t, nil)

	first, err := s.End(context.Background(), ReasonNormal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.End(context.Background(), ReasonTimeout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical analytics, got %+v and %+v", first, second)
	}
	if second.TerminationReason != string(ReasonNormal) {
		t.Fatalf("expected first reason to stick, got %s", second.TerminationReason)
	}
	if env.analytics.count() != 1 {
		t.Fatalf("expected analytics saved once, got %d", env.analytics.count())
	}
	if _, closed, _ := env.rooms.counts(); closed != 1 {
		t.Fatalf("expected room closed once, got %d", closed)
	}
}

func TestEnd_RejectsUnknownReason(t *testing.T) {
	env := newTestEnv(t)
	s := env.activeSession(t, nil)
	if _, err := s.End(context.Background(), Reason("bored")); !errors.Is(err, ErrInvalidReason) {
		t.Fatalf("expected invalid reason, got %v", err)
	}
}

func TestTransitions_EachProducesOneAuditEvent(t *testing.T) {
	env := newTestEnv(t)
	s := env.activeSession(t, nil)
	if _, err := s.End(context.Background(), ReasonNormal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.End(context.Background(), ReasonNormal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// created->starting->active->ending->ended
	if got := env.store.count(audit.KindTransition); got != 4 {
		t.Fatalf("expected 4 transition audit events, got %d", got)
	}
	transitions := 0
	for _, e := range s.AuditTrail() {
		if e.Kind == audit.KindTransition {
			transitions++
		}
	}
	if transitions != 4 {
		t.Fatalf("expected 4 transitions in trail, got %d", transitions)
	}
}

func TestAuditDisabled_KeepsMandatoryEvents(t *testing.T) {
	env := newTestEnv(t)
	s := env.activeSession(t, func(c *Configuration) {
		c.Compliance.AuditLogging = false
	})
	if _, err := s.AddParticipant(context.Background(), participant("patient-1", "patient")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.store.count(audit.KindParticipantJoined) != 0 {
		t.Fatal("expected join audit to be skipped")
	}
	if env.store.count(audit.KindTransition) != 2 {
		t.Fatalf("expected transitions to persist, got %d", env.store.count(audit.KindTransition))
	}
}

func TestIdleTimeout_EndsSession(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t, func(c *Configuration) {
		c.IdleTimeout = 50 * time.Millisecond
	})
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, func() bool {
		state, _ := s.State()
		return state.Terminal()
	})
	state, reason := s.State()
	if state != StateEnded || reason != ReasonTimeout {
		t.Fatalf("expected ended/timeout, got %s/%s", state, reason)
	}
	a := s.AnalyticsSoFar()
	if !a.Final || a.TerminationReason != string(ReasonTimeout) {
		t.Fatalf("unexpected analytics: %+v", a)
	}
	if a.Duration < 50*time.Millisecond || a.Duration > 500*time.Millisecond {
		t.Fatalf("expected duration close to the idle window, got %s", a.Duration)
	}
}

func TestIdleTimeout_ActivityExtendsWindow(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t, func(c *Configuration) {
		c.IdleTimeout = 80 * time.Millisecond
	})
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.AddParticipant(context.Background(), participant("patient-1", "patient")); err != nil {
		t.Fatalf("add: %v", err)
	}
	for range 4 {
		time.Sleep(30 * time.Millisecond)
		if err := s.RecordMessage(context.Background(), "patient-1"); err != nil {
			t.Fatalf("message: %v", err)
		}
	}
	if state, _ := s.State(); state != StateActive {
		t.Fatalf("expected session to stay active, got %s", state)
	}
	if a := s.AnalyticsSoFar(); a.MessageCount != 4 || a.Final {
		t.Fatalf("unexpected analytics: %+v", a)
	}
}

func TestAbsoluteTimeout_EndsSession(t *testing.T) {
	env := newTestEnv(t)
	s := env.newSession(t, func(c *Configuration) {
		c.SessionTimeout = 40 * time.Millisecond
	})
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool {
		state, _ := s.State()
		return state.Terminal()
	})
	if _, reason := s.State(); reason != ReasonTimeout {
		t.Fatalf("expected timeout, got %s", reason)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
