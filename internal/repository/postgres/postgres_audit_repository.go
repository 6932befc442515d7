package repository

import (
	"context"
	"database/sql"
	"fmt"

	pkgerrors "github.com/vedant2606-dev/bg-removal-service/pkg/errors"
)

type PostgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

func (r *PostgresAuditRepository) Append(ctx context.Context, eventType string, payload []byte) error {
	query := `INSERT INTO audit_events (event_type, payload) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, eventType, payload); err != nil {
		return fmt.Errorf("%w: failed to append audit event: %v", pkgerrors.ErrUnavailable, err)
	}
	return nil
}
