package repository

import "context"

// AuditRepository is append-only; records are never updated once written.
type AuditRepository interface {
	AppendAuditEvent(ctx context.Context, record AuditRecord) error
	LoadComplianceReport(ctx context.Context, sessionID string) ([]AuditRecord, error)
}

type AnalyticsRepository interface {
	SaveAnalytics(ctx context.Context, sessionID string, record AnalyticsRecord) error
}

type Repository interface {
	AuditRepository
	AnalyticsRepository
}
