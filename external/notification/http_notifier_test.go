package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/foxseedlab/telesession/internal/notification"
	"github.com/sony/gobreaker"
)

func sampleDelivery() notification.InvitationDelivery {
	return notification.InvitationDelivery{
		SessionID:    "s-1",
		InvitationID: "inv-1",
		Email:        "interpreter@example.com",
		Name:         "Ana",
		Role:         "interpreter",
		InvitedBy:    "prov-1",
	}
}

func TestDeliverInvitation_EmptyWebhookURL(t *testing.T) {
	n := NewHTTPNotifier("")
	if err := n.DeliverInvitation(context.Background(), sampleDelivery()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestDeliverInvitation_Success(t *testing.T) {
	var got invitationPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type: %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewHTTPNotifier(server.URL)
	if err := n.DeliverInvitation(context.Background(), sampleDelivery()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.Type != "session.invitation" || got.InvitationID != "inv-1" || got.Email != "interpreter@example.com" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestDeliverInvitation_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewHTTPNotifier(server.URL)
	if err := n.DeliverInvitation(context.Background(), sampleDelivery()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestDeliverInvitation_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	n := NewHTTPNotifier(server.URL)
	for i := 0; i < breakerFailureThreshold; i++ {
		_ = n.DeliverInvitation(context.Background(), sampleDelivery())
	}
	err := n.DeliverInvitation(context.Background(), sampleDelivery())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if atomic.LoadInt32(&hits) != breakerFailureThreshold {
		t.Fatalf("expected %d webhook hits, got %d", breakerFailureThreshold, hits)
	}
}
