package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/telesession/internal/notification"
	"github.com/sony/gobreaker"
)

const (
	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
	deliveryTimeout         = 10 * time.Second
)

type invitationPayload struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id"`
	InvitationID string `json:"invitation_id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Message      string `json:"message,omitempty"`
	InvitedBy    string `json:"invited_by"`
}

type HTTPNotifier struct {
	webhookURL string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewHTTPNotifier(webhookURL string) notification.Notifier {
	return &HTTPNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: deliveryTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "invitation-webhook",
			Timeout: breakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("notification circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (n *HTTPNotifier) DeliverInvitation(ctx context.Context, delivery notification.InvitationDelivery) error {
	if n.webhookURL == "" {
		slog.Debug("notification webhook not configured; skipping invitation delivery", "invitation_id", delivery.InvitationID)
		return nil
	}
	_, err := n.breaker.Execute(func() (interface{}, error) {
		return nil, n.post(ctx, delivery)
	})
	return err
}

func (n *HTTPNotifier) post(ctx context.Context, delivery notification.InvitationDelivery) error {
	b, err := json.Marshal(invitationPayload{
		Type:         "session.invitation",
		SessionID:    delivery.SessionID,
		InvitationID: delivery.InvitationID,
		Email:        delivery.Email,
		Name:         delivery.Name,
		Role:         delivery.Role,
		Message:      delivery.Message,
		InvitedBy:    delivery.InvitedBy,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
