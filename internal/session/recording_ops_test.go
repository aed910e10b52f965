package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/foxseedlab/telesession/internal/audit"
	"github.com/foxseedlab/telesession/internal/consent"
	"github.com/foxseedlab/telesession/internal/recording"
	"github.com/foxseedlab/telesession/internal/transport"
)

func TestStartRecording_ConsentScenario(t *testing.T) {
	env := newTestEnv(t)
	s := env.activeSession(t, nil)
	ctx := context.Background()
	if _, err := s.AddParticipant(ctx, participant("dr-who", "provider")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.AddParticipant(ctx, participant("patient-1", "patient")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.StartRecording(ctx, "dr-who"); !errors.Is(err, recording.ErrConsentRequired) {
		t.Fatalf("expected consent required, got %v", err)
	}
	if env.store.count(audit.KindRecordingDenied) != 1 {
		t.Fatal("expected recording_denied audit record")
	}

	if _, err := s.LogConsent(ctx, "patient-1", consent.PurposeRecording, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	period, err := s.StartRecording(ctx, "dr-who")
	if err != nil {
		t.Fatalf("expected recording to start, got %v", err)
	}
	if period.Handle.ID == "" || period.RequestedBy != "dr-who" {
		t.Fatalf("unexpected period: %+v", period)
	}

	again, err := s.StartRecording(ctx, "dr-who")
	if err != nil {
		t.Fatalf("expected idempotent start, got %v", err)
	}
	if again.Handle.ID != period.Handle.ID {
		t.Fatalf("expected the same period, got %s and %s", again.Handle.ID, period.Handle.ID)
	}
	if _, _, record := env.rooms.counts(); record != 1 {
		t.Fatalf("expected one transport recording, got %d", record)
	}
}

func TestStartRecording_SupersededConsentBlocks(t *testing.T) {
	env := newTestEnv(t)
	s := env.activeSession(t, nil)
	ctx := context.Background()
	if _, err := s.AddParticipant(ctx, participant("carer-1", "caregiver")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.LogConsent(ctx, "carer-1", consent.PurposeRecording, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.LogConsent(ctx, "carer-1", consent.PurposeRecording, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.StartRecording(ctx, "dr-who"); !errors.Is(err, recording.ErrConsentRequired) {
		t.Fatalf("expected consent required after withdrawal, got %v", err)
	}
}

func TestStartRecording_InterpreterNotRequiredByDefault(t *testing.T) {
	env := newTestEnv(t)
	s := env.activeSession(t, nil)
	ctx := context.Background()
	if _, err := s.AddParticipant(ctx, participant("interp-1", "interpreter")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.StartRecording(ctx, "dr-who"); err != nil {
		t.Fatalf("expected recording without interpreter consent, got %v", err)
	}
}

func TestStartRecording_Disabled(t *testing.T) {
	env := newTestEnv(t)
	s := env.activeSession(t, func(c *Configuration) {
		c.RecordingEnabled = false
	})
	if _, err := s.StartRecording(context.Background(), "dr-who"); !errors.Is(err, recording.ErrRecordingDisabled) {
		t.Fatalf("expected recording disabled, got %v", err)
	}
}

func TestStartRecording_TransportFailure(t *testing.T) {
	env := newTestEnv(t)
	env.rooms.recordErr = errTransportDown
	s := env.activeSession(t, nil)

	if _, err := s.StartRecording(context.Background(), "dr-who"); !errors.Is(err, transport.ErrUnavailable) {
		t.Fatalf("expected transport unavailable, got %v", err)
	}
	if _, _, record := env.rooms.counts(); record != 3 {
		t.Fatalf("expected 3 attempts, got %d", record)
	}
	if state, _ := s.State(); state != StateActive {
		t.Fatalf("recording failure must not end the session, got %s", state)
	}
	rec, ok := env.store.last(audit.KindTransportFailure)
	if !ok || rec.Detail["operation"] != "start_recording" {
		t.Fatalf("expected start_recording failure audit, got %+v", rec)
	}

	env.rooms.mu.Lock()
	env.rooms.recordErr = nil
	env.rooms.mu.Unlock()
	if _, err := s.StartRecording(context.Background(), "dr-who"); err != nil {
		t.Fatalf("expected a later attempt to succeed, got %v", err)
	}
}

func TestStopRecording_IsAlwaysSafe(t *testing.T) {
	env := newTestEnv(t)
	s := env.activeSession(t, nil)
	ctx := context.Background()

	if _, stopped, err := s.StopRecording(ctx, "dr-who"); err != nil || stopped {
		t.Fatalf("expected no-op stop, got %v %v", stopped, err)
	}
	if _, err := s.StartRecording(ctx, "dr-who"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	period, stopped, err := s.StopRecording(ctx, "dr-who")
	if err != nil || !stopped {
		t.Fatalf("expected stop, got %v %v", stopped, err)
	}
	if period.Duration != 90*time.Second {
		t.Fatalf("expected transport duration, got %s", period.Duration)
	}
	rec, ok := env.store.last(audit.KindRecordingStopped)
	if !ok || rec.Detail["duration"] != "1m30s" {
		t.Fatalf("expected stop audit with duration, got %+v", rec)
	}
	if a := s.AnalyticsSoFar(); a.RecordingDuration != 90*time.Second {
		t.Fatalf("expected recording duration in analytics, got %s", a.RecordingDuration)
	}
}

func TestRecording_RosterChangeIsFlaggedNotStopped(t *testing.T) {
	env := newTestEnv(t)
	s := env.activeSession(t, nil)
	ctx := context.Background()
	if _, err := s.AddParticipant(ctx, participant("patient-1", "patient")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.LogConsent(ctx, "patient-1", consent.PurposeRecording, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.StartRecording(ctx, "dr-who"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.DisconnectParticipant(ctx, "patient-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.LogConsent(ctx, "patient-1", consent.PurposeRecording, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.store.count(audit.KindRosterChangedDuringRecording) != 1 {
		t.Fatal("expected roster change audit")
	}
	if env.store.count(audit.KindConsentRevokedDuringRecord) != 1 {
		t.Fatal("expected consent revocation audit")
	}
	if snap := s.Snapshot(); snap.Recording != recording.StatusActive {
		t.Fatalf("expected recording to keep running, got %s", snap.Recording)
	}
}

func TestEnd_StopsRecordingWithFinalConsentAudit(t *testing.T) {
	env := newTestEnv(t)
	s := env.activeSession(t, nil)
	ctx := context.Background()
	if _, err := s.StartRecording(ctx, "dr-who"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, err := s.End(ctx, ReasonProviderEnded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.store.count(audit.KindRecordingConsentFinal) != 1 {
		t.Fatal("expected final recording consent audit")
	}
	if len(env.rooms.stopCalls) != 1 {
		t.Fatalf("expected transport recording stopped, got %d", len(env.rooms.stopCalls))
	}
	if a.RecordingDuration != 90*time.Second || a.TerminationReason != string(ReasonProviderEnded) {
		t.Fatalf("unexpected analytics: %+v", a)
	}
}

func TestEnd_DuringRecordingStartDiscardsRecording(t *testing.T) {
	env := newTestEnv(t)
	env.rooms.recordBlock = make(chan struct{})
	s := env.activeSession(t, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.StartRecording(context.Background(), "dr-who")
		errCh <- err
	}()
	waitFor(t, func() bool {
		return s.Snapshot().Recording == recording.StatusStarting
	})
	if _, err := s.End(context.Background(), ReasonNormal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(env.rooms.recordBlock)

	if err := <-errCh; !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected discarded recording, got %v", err)
	}
	if env.store.count(audit.KindRecordingDiscarded) != 1 {
		t.Fatal("expected recording_discarded audit")
	}
	env.rooms.mu.Lock()
	stops := len(env.rooms.stopCalls)
	env.rooms.mu.Unlock()
	if stops != 1 {
		t.Fatalf("expected the orphaned recording to be stopped, got %d", stops)
	}
}

func TestStartRecording_CaregiverJoiningDuringStartBlocksRecording(t *testing.T) {
	env := newTestEnv(t)
	s := env.activeSession(t, nil)
	ctx := context.Background()
	if _, err := s.AddParticipant(ctx, participant("patient-1", "patient")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.LogConsent(ctx, "patient-1", consent.PurposeRecording, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.rooms.mu.Lock()
	env.rooms.recordBlock = make(chan struct{})
	env.rooms.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		_, err := s.StartRecording(context.Background(), "dr-who")
		errCh <- err
	}()
	waitFor(t, func() bool {
		return s.Snapshot().Recording == recording.StatusStarting
	})
	if _, err := s.AddParticipant(ctx, participant("caregiver-1", "caregiver")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(env.rooms.recordBlock)

	if err := <-errCh; !errors.Is(err, recording.ErrConsentRequired) {
		t.Fatalf("expected consent required once the caregiver joined, got %v", err)
	}
	if snap := s.Snapshot(); snap.Recording != recording.StatusIdle {
		t.Fatalf("expected recording to stay idle, got %s", snap.Recording)
	}
	if env.store.count(audit.KindRecordingDenied) != 1 {
		t.Fatal("expected recording_denied audit")
	}
	env.rooms.mu.Lock()
	stops := len(env.rooms.stopCalls)
	env.rooms.mu.Unlock()
	if stops != 1 {
		t.Fatalf("expected the transport recording to be stopped, got %d", stops)
	}
}

func TestStartRecording_ConsentWithdrawnDuringStartBlocksRecording(t *testing.T) {
	env := newTestEnv(t)
	s := env.activeSession(t, nil)
	ctx := context.Background()
	if _, err := s.AddParticipant(ctx, participant("patient-1", "patient")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.LogConsent(ctx, "patient-1", consent.PurposeRecording, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.rooms.mu.Lock()
	env.rooms.recordBlock = make(chan struct{})
	env.rooms.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		_, err := s.StartRecording(context.Background(), "dr-who")
		errCh <- err
	}()
	waitFor(t, func() bool {
		return s.Snapshot().Recording == recording.StatusStarting
	})
	if _, err := s.LogConsent(ctx, "patient-1", consent.PurposeRecording, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(env.rooms.recordBlock)

	if err := <-errCh; !errors.Is(err, recording.ErrConsentRequired) {
		t.Fatalf("expected consent required after withdrawal, got %v", err)
	}
	if periods := s.RecordingPeriods(); len(periods) != 0 {
		t.Fatalf("expected no recording periods, got %+v", periods)
	}
}

func TestStopRecording_DuringStartIsAudited(t *testing.T) {
	env := newTestEnv(t)
	env.rooms.recordBlock = make(chan struct{})
	s := env.activeSession(t, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.StartRecording(context.Background(), "dr-who")
		errCh <- err
	}()
	waitFor(t, func() bool {
		return s.Snapshot().Recording == recording.StatusStarting
	})
	if _, stopped, err := s.StopRecording(context.Background(), "patient-1"); err != nil || stopped {
		t.Fatalf("expected no closed period, got %v %v", stopped, err)
	}
	rec, ok := env.store.last(audit.KindRecordingCancelled)
	if !ok || rec.Actor != "patient-1" {
		t.Fatalf("expected recording_cancelled audit by the stopping actor, got %+v", rec)
	}
	close(env.rooms.recordBlock)

	if err := <-errCh; !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected abandoned start, got %v", err)
	}
	if env.store.count(audit.KindRecordingDiscarded) != 1 {
		t.Fatal("expected recording_discarded audit")
	}
}
