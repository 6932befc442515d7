package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/vedant2606-dev/bg-removal-service/internal/models"
	pkgerrors "github.com/vedant2606-dev/bg-removal-service/pkg/errors"
)

type PostgresUsageRepository struct {
	db *sql.DB
}

func NewPostgresUsageRepository(db *sql.DB) *PostgresUsageRepository {
	return &PostgresUsageRepository{db: db}
}

func (r *PostgresUsageRepository) Create(ctx context.Context, event *models.UsageEvent) error {
	if event == nil || event.ID == "" || event.AccountID == "" {
		return fmt.Errorf("%w: usage event id and account id are required", pkgerrors.ErrInvalidInput)
	}
	query := `
	INSERT INTO usage_events (id, account_id, status)
	VALUES ($1, $2, $3)
	RETURNING created_at, updated_at
	`
	if err := r.db.QueryRowContext(ctx, query, event.ID, event.AccountID, event.Status).
		Scan(&event.CreatedAt, &event.UpdatedAt); err != nil {
		return fmt.Errorf("%w: failed to create usage event: %v", pkgerrors.ErrUnavailable, err)
	}
	return nil
}

func (r *PostgresUsageRepository) MarkCompleted(ctx context.Context, id string) error {
	query := `UPDATE usage_events SET status = 'completed', updated_at = now() WHERE id = $1 AND status = 'debited'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%w: failed to complete usage event: %v", pkgerrors.ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.ErrUsageNotFound
	}
	return nil
}

// Refund is the compensating action for a debit whose downstream call failed.
// The status flip and the +1 credit happen in one database transaction, and
// the flip only matches 'debited', so retries cannot double-credit.
func (r *PostgresUsageRepository) Refund(ctx context.Context, id string) (int64, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to begin refund: %v", pkgerrors.ErrUnavailable, err)
	}
	defer dbTx.Rollback()

	var accountID string
	flip := `
	UPDATE usage_events
	SET status = 'refunded', updated_at = now()
	WHERE id = $1 AND status = 'debited'
	RETURNING account_id
	`
	err = dbTx.QueryRowContext(ctx, flip, id).Scan(&accountID)
	if stderrors.Is(err, sql.ErrNoRows) {
		var existing models.UsageStatus
		err = dbTx.QueryRowContext(ctx, `SELECT status FROM usage_events WHERE id = $1`, id).Scan(&existing)
		if stderrors.Is(err, sql.ErrNoRows) {
			return 0, pkgerrors.ErrUsageNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("%w: failed to read usage status: %v", pkgerrors.ErrUnavailable, err)
		}
		return 0, pkgerrors.ErrAlreadyRefunded
	}
	if err != nil {
		return 0, fmt.Errorf("%w: failed to refund usage event: %v", pkgerrors.ErrUnavailable, err)
	}

	var newBalance int64
	credit := `
	UPDATE accounts
	SET credit_balance = credit_balance + 1, updated_at = now()
	WHERE id = $1
	RETURNING credit_balance
	`
	err = dbTx.QueryRowContext(ctx, credit, accountID).Scan(&newBalance)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, pkgerrors.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: failed to credit refund: %v", pkgerrors.ErrUnavailable, err)
	}

	if err = dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: failed to commit refund: %v", pkgerrors.ErrUnavailable, err)
	}

	slog.Info("usage refunded", "method", "Refund", "usage_id", id, "account_id", accountID, "new_balance", newBalance)
	return newBalance, nil
}
