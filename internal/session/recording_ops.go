package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxseedlab/telesession/internal/audit"
	"github.com/foxseedlab/telesession/internal/eventlog"
	"github.com/foxseedlab/telesession/internal/metrics"
	"github.com/foxseedlab/telesession/internal/recording"
	"github.com/foxseedlab/telesession/internal/transport"
)

// StartRecording is idempotent: while a recording is active it returns the
// current period. Concurrent calls share one transport attempt.
func (s *Session) StartRecording(ctx context.Context, requestedBy string) (recording.Period, error) {
	v, err, _ := s.flight.Do("recording", func() (any, error) {
		return s.startRecording(context.WithoutCancel(ctx), requestedBy)
	})
	period, _ := v.(recording.Period)
	return period, err
}

func (s *Session) startRecording(ctx context.Context, requestedBy string) (recording.Period, error) {
	s.mu.Lock()
	if err := s.requireActiveLocked("start recording"); err != nil {
		s.mu.Unlock()
		return recording.Period{}, err
	}
	if !s.cfg.RecordingEnabled {
		s.mu.Unlock()
		return recording.Period{}, recording.ErrRecordingDisabled
	}
	proceed, err := s.recorder.Begin(requestedBy)
	if err != nil {
		metrics.RecordingDenials.Inc()
		s.auditLocked(ctx, audit.Event{
			Kind:   audit.KindRecordingDenied,
			Actor:  requestedBy,
			Detail: map[string]string{"error": err.Error()},
		})
		s.mu.Unlock()
		return recording.Period{}, err
	}
	if !proceed {
		current, _ := s.recorder.Current()
		s.mu.Unlock()
		return current, nil
	}
	room := *s.room
	s.mu.Unlock()

	handle, launchErr := s.recorder.Launch(ctx, room, s.retryNotifier("start_recording"))

	s.mu.Lock()
	defer s.mu.Unlock()
	if launchErr != nil {
		s.recorder.Abort()
		metrics.TransportFailures.WithLabelValues("start_recording").Inc()
		s.logger.Error("failed to start recording", "error", launchErr)
		s.auditLocked(ctx, audit.Event{
			Kind:   audit.KindTransportFailure,
			Actor:  requestedBy,
			Detail: map[string]string{"operation": "start_recording", "error": launchErr.Error()},
		})
		return recording.Period{}, launchErr
	}
	period, err := s.recorder.Complete(handle, s.deps.Now())
	switch {
	case errors.Is(err, recording.ErrConsentRequired):
		metrics.RecordingDenials.Inc()
		s.auditLocked(ctx, audit.Event{
			Kind:   audit.KindRecordingDenied,
			Actor:  requestedBy,
			Detail: map[string]string{"recording": handle.ID, "error": err.Error()},
		})
		s.logger.Warn("discarding recording after consent changed during start", "recording_id", handle.ID, "error", err)
		s.stopOrphanedRecording(ctx, handle)
		return recording.Period{}, err
	case err != nil:
		s.auditLocked(ctx, audit.Event{
			Kind:   audit.KindRecordingDiscarded,
			Actor:  requestedBy,
			Detail: map[string]string{"recording": handle.ID, "state": string(s.state)},
		})
		s.logger.Warn("discarding recording started after it was abandoned", "recording_id", handle.ID, "state", s.state)
		s.stopOrphanedRecording(ctx, handle)
		return recording.Period{}, fmt.Errorf("%w: recording start abandoned while session is %s", ErrInvalidStateTransition, s.state)
	}

	s.events.Append(eventlog.Event{Type: eventlog.TypeRecordingStarted, At: period.StartedAt})
	s.auditLocked(ctx, audit.Event{
		Kind:   audit.KindRecordingStarted,
		Actor:  requestedBy,
		At:     period.StartedAt,
		Detail: map[string]string{"recording": handle.ID},
	})
	s.touchLocked()
	s.logger.Info("recording started", "recording_id", handle.ID, "requested_by", requestedBy)
	return period, nil
}

func (s *Session) stopOrphanedRecording(ctx context.Context, handle transport.RecordingHandle) {
	if _, err := s.deps.Transport.StopRecording(ctx, handle); err != nil {
		s.logger.Warn("failed to stop discarded recording", "error", err, "recording_id", handle.ID)
	}
}

// StopRecording is always safe to call. stopped is false when nothing was
// recording. A transport error is returned after the period is closed.
func (s *Session) StopRecording(ctx context.Context, requestedBy string) (period recording.Period, stopped bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return recording.Period{}, false, nil
	}
	period, stopped, err = s.stopRecordingLocked(ctx, requestedBy, false)
	if stopped {
		s.touchLocked()
	}
	return period, stopped, err
}

// stopRecordingLocked with final set also writes the closing consent snapshot
// required when a session ends mid-recording.
func (s *Session) stopRecordingLocked(ctx context.Context, actor string, final bool) (recording.Period, bool, error) {
	if s.recorder.Starting() {
		s.auditLocked(ctx, audit.Event{
			Kind:   audit.KindRecordingCancelled,
			Actor:  actor,
			Detail: map[string]string{"state": string(s.state)},
		})
		s.logger.Info("in-flight recording start cancelled", "requested_by", actor)
	}
	period, stopped, err := s.recorder.Stop(ctx, s.deps.Now())
	if err != nil {
		metrics.TransportFailures.WithLabelValues("stop_recording").Inc()
		s.logger.Error("failed to stop transport recording", "error", err)
		s.auditLocked(ctx, audit.Event{
			Kind:   audit.KindTransportFailure,
			Actor:  actor,
			Detail: map[string]string{"operation": "stop_recording", "error": err.Error()},
		})
	}
	if !stopped {
		return period, false, err
	}

	s.events.Append(eventlog.Event{Type: eventlog.TypeRecordingStopped, At: period.StoppedAt, Duration: period.Duration})
	s.auditLocked(ctx, audit.Event{
		Kind:  audit.KindRecordingStopped,
		Actor: actor,
		At:    period.StoppedAt,
		Detail: map[string]string{
			"recording": period.Handle.ID,
			"duration":  period.Duration.String(),
		},
	})
	if final {
		missing := s.ledger.MissingRecordingConsent(s.registry.Connected())
		s.auditLocked(ctx, audit.Event{
			Kind:  audit.KindRecordingConsentFinal,
			Actor: actor,
			At:    period.StoppedAt,
			Detail: map[string]string{
				"recording":         period.Handle.ID,
				"consent_satisfied": boolDetail(len(missing) == 0),
				"missing":           joinIDs(missing),
			},
		})
	}
	s.logger.Info("recording stopped", "recording_id", period.Handle.ID, "duration", period.Duration)
	return period, true, err
}
