package directory

import (
	"context"
	"errors"

	"github.com/foxseedlab/telesession/internal/directory"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) directory.Lookup {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) ResolveDisplayName(ctx context.Context, participantID string) (string, error) {
	var name string
	err := d.pool.QueryRow(ctx,
		`SELECT display_name FROM directory_entries WHERE participant_id = $1`,
		participantID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return name, err
}

func (d *PostgresDirectory) ResolveEmail(ctx context.Context, participantID string) (string, error) {
	var email string
	err := d.pool.QueryRow(ctx,
		`SELECT email FROM directory_entries WHERE participant_id = $1`,
		participantID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return email, err
}
