package repository

import (
	"context"

	"github.com/foxseedlab/telesession/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) AppendAuditEvent(ctx context.Context, record repository.AuditRecord) error {
	detail := record.Detail
	if detail == nil {
		detail = map[string]string{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_events (session_id, kind, actor, subject, detail, occurred_at, retain_until)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.SessionID, record.Kind, record.Actor, record.Subject, detail, record.OccurredAt, record.RetainUntil)
	return err
}

func (r *PostgresRepository) LoadComplianceReport(ctx context.Context, sessionID string) ([]repository.AuditRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, kind, actor, subject, detail, occurred_at, retain_until, created_at
		 FROM audit_events WHERE session_id = $1 ORDER BY id ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.AuditRecord
	for rows.Next() {
		var rec repository.AuditRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Kind, &rec.Actor, &rec.Subject, &rec.Detail, &rec.OccurredAt, &rec.RetainUntil, &rec.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) SaveAnalytics(ctx context.Context, sessionID string, record repository.AnalyticsRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_analytics (
			session_id, started_at, ended_at, duration_seconds, peak_participants, final_participants,
			recording_seconds, consent_events, message_count, invitation_count, termination_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID, record.StartedAt, record.EndedAt, record.DurationSeconds, record.PeakParticipants, record.FinalParticipants,
		record.RecordingSeconds, record.ConsentEvents, record.MessageCount, record.InvitationCount, record.TerminationReason)
	return err
}
