package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vedant2606-dev/bg-removal-service/internal/infrastructure/observability"
	"github.com/vedant2606-dev/bg-removal-service/internal/models"
	"github.com/vedant2606-dev/bg-removal-service/internal/repository"
	pkgerrors "github.com/vedant2606-dev/bg-removal-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "CreateTransaction")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateTransaction", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateTransaction").Observe(time.Since(start).Seconds())
	}()

	if tx == nil {
		err = fmt.Errorf("%w: transaction is nil", pkgerrors.ErrInvalidInput)
		return err
	}
	if tx.Status != models.StatusPending && tx.Status != models.StatusSettled && tx.Status != models.StatusFailed {
		err = fmt.Errorf("%w: invalid status %q", pkgerrors.ErrInvalidInput, tx.Status)
		slog.Error("invalid transaction status", "method", "Create", "status", tx.Status, "error", err)
		return err
	}
	if tx.Credits <= 0 || tx.Amount <= 0 {
		err = fmt.Errorf("%w: credits and amount must be positive", pkgerrors.ErrInvalidInput)
		slog.Error("invalid transaction", "method", "Create", "credits", tx.Credits, "amount", tx.Amount, "error", err)
		return err
	}

	span.SetAttributes(
		attribute.String("transaction_id", tx.ID),
		attribute.String("account_id", tx.AccountID),
		attribute.String("plan", string(tx.Plan)),
		attribute.Int64("credits", tx.Credits),
		attribute.Int64("amount", tx.Amount),
	)

	query := `
	INSERT INTO transactions (id, account_id, plan, credits, amount, currency, status, order_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		tx.ID, tx.AccountID, tx.Plan, tx.Credits, tx.Amount, tx.Currency, tx.Status, tx.OrderID,
	).Scan(&tx.CreatedAt)
	if err != nil {
		slog.Error("failed to create transaction", "method", "Create", "transaction_id", tx.ID, "account_id", tx.AccountID, "error", err)
		err = fmt.Errorf("%w: failed to create transaction: %v", pkgerrors.ErrUnavailable, err)
		return err
	}

	slog.Info("transaction created", "method", "Create", "transaction_id", tx.ID, "account_id", tx.AccountID, "plan", tx.Plan, "status", tx.Status)
	return nil
}

func (r *PostgresTransactionRepository) SetOrderID(ctx context.Context, id, orderID string) error {
	query := `UPDATE transactions SET order_id = $2 WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, orderID)
	if err != nil {
		slog.Error("failed to set order id", "method", "SetOrderID", "transaction_id", id, "error", err)
		return fmt.Errorf("%w: failed to set order id: %v", pkgerrors.ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.ErrTransactionNotFound
	}
	return nil
}

func (r *PostgresTransactionRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	var tx models.Transaction
	query := `
	SELECT id, account_id, plan, credits, amount, currency, status, order_id, created_at, settled_at
	FROM transactions WHERE order_id = $1
	`
	err := r.db.QueryRowContext(ctx, query, orderID).Scan(
		&tx.ID, &tx.AccountID, &tx.Plan, &tx.Credits, &tx.Amount, &tx.Currency, &tx.Status, &tx.OrderID, &tx.CreatedAt, &tx.SettledAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if err != nil {
		slog.Error("failed to get transaction by order id", "method", "GetByOrderID", "order_id", orderID, "error", err)
		return nil, fmt.Errorf("%w: failed to get transaction by order id: %v", pkgerrors.ErrUnavailable, err)
	}
	return &tx, nil
}

// Settle flips Pending -> Settled and credits the owning account inside one
// database transaction. Replayed confirmations find the row already out of
// Pending and return AlreadySettled without touching the balance.
func (r *PostgresTransactionRepository) Settle(ctx context.Context, id string) (*repository.SettleResult, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "SettleTransaction")
	span.SetAttributes(attribute.String("transaction_id", id))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("SettleTransaction", status).Inc()
		observability.RepositoryDuration.WithLabelValues("SettleTransaction").Observe(time.Since(start).Seconds())
	}()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin settle", "method", "Settle", "transaction_id", id, "error", err)
		err = fmt.Errorf("%w: failed to begin settle: %v", pkgerrors.ErrUnavailable, err)
		return nil, err
	}
	defer dbTx.Rollback()

	var tx models.Transaction
	flip := `
	UPDATE transactions
	SET status = 'settled', settled_at = now()
	WHERE id = $1 AND status = 'pending'
	RETURNING id, account_id, plan, credits, amount, currency, status, order_id, created_at, settled_at
	`
	err = dbTx.QueryRowContext(ctx, flip, id).Scan(
		&tx.ID, &tx.AccountID, &tx.Plan, &tx.Credits, &tx.Amount, &tx.Currency, &tx.Status, &tx.OrderID, &tx.CreatedAt, &tx.SettledAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		// Not pending: either settled/failed earlier, or unknown id.
		var existing models.StatusType
		err = dbTx.QueryRowContext(ctx, `SELECT status FROM transactions WHERE id = $1`, id).Scan(&existing)
		if stderrors.Is(err, sql.ErrNoRows) {
			err = pkgerrors.ErrTransactionNotFound
			return nil, err
		}
		if err != nil {
			err = fmt.Errorf("%w: failed to read transaction status: %v", pkgerrors.ErrUnavailable, err)
			return nil, err
		}
		slog.Info("settle replayed", "method", "Settle", "transaction_id", id, "status", existing)
		return &repository.SettleResult{AlreadySettled: true}, nil
	}
	if err != nil {
		slog.Error("failed to flip transaction status", "method", "Settle", "transaction_id", id, "error", err)
		err = fmt.Errorf("%w: failed to settle transaction: %v", pkgerrors.ErrUnavailable, err)
		return nil, err
	}

	var newBalance int64
	credit := `
	UPDATE accounts
	SET credit_balance = credit_balance + $1, updated_at = now()
	WHERE id = $2
	RETURNING credit_balance
	`
	err = dbTx.QueryRowContext(ctx, credit, tx.Credits, tx.AccountID).Scan(&newBalance)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrAccountNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to credit account", "method", "Settle", "transaction_id", id, "account_id", tx.AccountID, "error", err)
		err = fmt.Errorf("%w: failed to credit account: %v", pkgerrors.ErrUnavailable, err)
		return nil, err
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit settle", "method", "Settle", "transaction_id", id, "error", err)
		err = fmt.Errorf("%w: failed to commit settle: %v", pkgerrors.ErrUnavailable, err)
		return nil, err
	}

	observability.CreditsSettled.Add(float64(tx.Credits))
	slog.Info("transaction settled", "method", "Settle", "transaction_id", id, "account_id", tx.AccountID, "credits", tx.Credits, "new_balance", newBalance)
	return &repository.SettleResult{Transaction: &tx, NewBalance: newBalance}, nil
}

func (r *PostgresTransactionRepository) MarkFailed(ctx context.Context, id string) error {
	query := `UPDATE transactions SET status = 'failed' WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Error("failed to mark transaction failed", "method", "MarkFailed", "transaction_id", id, "error", err)
		return fmt.Errorf("%w: failed to mark transaction failed: %v", pkgerrors.ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Settled and failed are terminal, a late failure report is a no-op.
		slog.Warn("transaction not pending, failure ignored", "method", "MarkFailed", "transaction_id", id)
	}
	return nil
}

func (r *PostgresTransactionRepository) HistoryByAccount(ctx context.Context, accountID string) ([]models.Transaction, error) {
	query := `
	SELECT id, account_id, plan, credits, amount, currency, status, order_id, created_at, settled_at
	FROM transactions
	WHERE account_id = $1
	ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get history: %v", pkgerrors.ErrUnavailable, err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(
			&tx.ID, &tx.AccountID, &tx.Plan, &tx.Credits, &tx.Amount, &tx.Currency, &tx.Status, &tx.OrderID, &tx.CreatedAt, &tx.SettledAt,
		); err != nil {
			return nil, fmt.Errorf("%w: failed to scan transaction: %v", pkgerrors.ErrUnavailable, err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate history: %v", pkgerrors.ErrUnavailable, err)
	}
	return transactions, nil
}
