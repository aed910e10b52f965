package directory

import (
	"context"
	"log/slog"
	"strings"
)

type Lookup interface {
	ResolveDisplayName(ctx context.Context, participantID string) (string, error)
	ResolveEmail(ctx context.Context, participantID string) (string, error)
}

// DisplayNameOrID never fails: lookup errors and blank results degrade to the raw id.
func DisplayNameOrID(ctx context.Context, l Lookup, participantID string) string {
	if l == nil {
		return participantID
	}
	name, err := l.ResolveDisplayName(ctx, participantID)
	if err != nil {
		slog.Warn("directory display name lookup failed", "error", err, "participant_id", participantID)
		return participantID
	}
	if strings.TrimSpace(name) == "" {
		return participantID
	}
	return name
}

// EmailOrEmpty returns "" when the directory has nothing usable.
func EmailOrEmpty(ctx context.Context, l Lookup, participantID string) string {
	if l == nil {
		return ""
	}
	email, err := l.ResolveEmail(ctx, participantID)
	if err != nil {
		slog.Warn("directory email lookup failed", "error", err, "participant_id", participantID)
		return ""
	}
	return strings.TrimSpace(email)
}
