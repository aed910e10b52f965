package recording

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/telesession/internal/consent"
	"github.com/foxseedlab/telesession/internal/roster"
	"github.com/foxseedlab/telesession/internal/transport"
)

var (
	ErrConsentRequired   = errors.New("recording consent required")
	ErrRecordingDisabled = errors.New("recording disabled for session")
	ErrStartAbandoned    = errors.New("recording start abandoned")
)

type Recorder interface {
	StartRecording(ctx context.Context, room transport.RoomHandle) (transport.RecordingHandle, error)
	StopRecording(ctx context.Context, rec transport.RecordingHandle) (time.Duration, error)
}

type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusActive   Status = "active"
)

type Period struct {
	Handle      transport.RecordingHandle
	RequestedBy string
	StartedAt   time.Time
	StoppedAt   time.Time
	Duration    time.Duration
}

// Controller gates recording on the consent ledger. Starting is split into
// Begin, Launch and Complete so the owner can release its lock while the
// transport call is in flight; anything that moves the controller out of
// StatusStarting in the meantime turns Complete into a discard.
type Controller struct {
	recorder Recorder
	registry *roster.Registry
	ledger   *consent.Ledger
	retry    transport.RetryPolicy

	status    Status
	requested string
	current   Period
	periods   []Period
}

func NewController(recorder Recorder, registry *roster.Registry, ledger *consent.Ledger, retry transport.RetryPolicy) *Controller {
	return &Controller{
		recorder: recorder,
		registry: registry,
		ledger:   ledger,
		retry:    retry,
		status:   StatusIdle,
	}
}

// Begin returns proceed=false with a nil error when a recording is already
// active or starting.
func (c *Controller) Begin(requestedBy string) (proceed bool, err error) {
	if c.status != StatusIdle {
		return false, nil
	}
	if err := c.checkConsent(); err != nil {
		return false, err
	}
	c.status = StatusStarting
	c.requested = requestedBy
	return true, nil
}

func (c *Controller) Launch(ctx context.Context, room transport.RoomHandle, onRetry func(attempt int, err error)) (transport.RecordingHandle, error) {
	var handle transport.RecordingHandle
	err := transport.Retry(ctx, c.retry, func(ctx context.Context) error {
		var err error
		handle, err = c.recorder.StartRecording(ctx, room)
		return err
	}, onRetry)
	if err != nil {
		return transport.RecordingHandle{}, fmt.Errorf("%w: start recording: %w", transport.ErrUnavailable, err)
	}
	return handle, nil
}

// Complete activates the recording once the transport has started it. The
// consent gate is checked again because the roster and ledger may have changed
// while the call was in flight. On any error the controller is back to idle and
// the caller owns stopping the orphaned transport recording.
func (c *Controller) Complete(handle transport.RecordingHandle, at time.Time) (Period, error) {
	if c.status != StatusStarting {
		return Period{}, ErrStartAbandoned
	}
	if err := c.checkConsent(); err != nil {
		c.Abort()
		return Period{}, err
	}
	c.status = StatusActive
	c.current = Period{
		Handle:      handle,
		RequestedBy: c.requested,
		StartedAt:   at,
	}
	return c.current, nil
}

func (c *Controller) checkConsent() error {
	if missing := c.ledger.MissingRecordingConsent(c.registry.Connected()); len(missing) > 0 {
		return fmt.Errorf("%w: missing for %s", ErrConsentRequired, strings.Join(missing, ", "))
	}
	return nil
}

// Starting reports whether a start is in flight.
func (c *Controller) Starting() bool {
	return c.status == StatusStarting
}

func (c *Controller) Abort() {
	if c.status == StatusStarting {
		c.status = StatusIdle
		c.requested = ""
	}
}

// Stop is always safe. stopped is false when nothing was recording; an in-flight
// start is abandoned instead. A transport error still closes the period, using
// wall-clock duration, and is returned for the caller to report.
func (c *Controller) Stop(ctx context.Context, at time.Time) (Period, bool, error) {
	switch c.status {
	case StatusStarting:
		c.Abort()
		return Period{}, false, nil
	case StatusIdle:
		return Period{}, false, nil
	}

	period := c.current
	period.StoppedAt = at
	duration, err := c.recorder.StopRecording(ctx, period.Handle)
	if err != nil || duration <= 0 {
		duration = at.Sub(period.StartedAt)
	}
	if err != nil {
		err = fmt.Errorf("%w: stop recording: %w", transport.ErrUnavailable, err)
	}
	period.Duration = duration
	c.periods = append(c.periods, period)
	c.current = Period{}
	c.status = StatusIdle
	c.requested = ""
	return period, true, err
}

func (c *Controller) Status() Status {
	return c.status
}

func (c *Controller) Active() bool {
	return c.status == StatusActive
}

func (c *Controller) Current() (Period, bool) {
	if c.status != StatusActive {
		return Period{}, false
	}
	return c.current, true
}

func (c *Controller) Periods() []Period {
	out := make([]Period, len(c.periods))
	copy(out, c.periods)
	return out
}

// AffectsConsent reports whether a roster change for p during an active
// recording must be flagged for review. Recording is never stopped automatically.
func (c *Controller) AffectsConsent(p roster.Participant) bool {
	return c.status == StatusActive && c.ledger.RequiresRecordingConsent(p.Role)
}
