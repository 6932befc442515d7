package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vedant2606-dev/bg-removal-service/internal/models"
	pkgerrors "github.com/vedant2606-dev/bg-removal-service/pkg/errors"
)

type PostgresAccountRepository struct {
	db *sql.DB
}

func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

func (r *PostgresAccountRepository) CreateIfAbsent(ctx context.Context, account *models.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account is nil", pkgerrors.ErrInvalidInput)
	}
	if account.ID == "" {
		return fmt.Errorf("%w: account id is required", pkgerrors.ErrInvalidInput)
	}

	query := `
	INSERT INTO accounts (id, email, first_name, last_name, photo, credit_balance)
	VALUES ($1, $2, $3, $4, $5, 0)
	ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		account.ID,
		account.Email,
		account.FirstName,
		account.LastName,
		account.Photo,
	); err != nil {
		return fmt.Errorf("%w: failed to create account: %v", pkgerrors.ErrUnavailable, err)
	}
	return nil
}

func (r *PostgresAccountRepository) Update(ctx context.Context, account *models.Account) error {
	if account == nil || account.ID == "" {
		return fmt.Errorf("%w: account id is required", pkgerrors.ErrInvalidInput)
	}

	query := `
	UPDATE accounts
	SET email = $2, first_name = $3, last_name = $4, photo = $5, updated_at = now()
	WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, account.ID, account.Email, account.FirstName, account.LastName, account.Photo)
	if err != nil {
		return fmt.Errorf("%w: failed to update account: %v", pkgerrors.ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.ErrAccountNotFound
	}
	return nil
}

// SoftDelete keeps the row so settled transactions stay attributable.
func (r *PostgresAccountRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE accounts SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete account: %v", pkgerrors.ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `
	SELECT id, email, first_name, last_name, photo, credit_balance, created_at, updated_at, deleted_at
	FROM accounts WHERE id = $1
	`
	var account models.Account
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.Email,
		&account.FirstName,
		&account.LastName,
		&account.Photo,
		&account.CreditBalance,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.DeletedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrAccountNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: failed to get account: %v", pkgerrors.ErrUnavailable, err)
	}
	return &account, nil
}

func (r *PostgresAccountRepository) GetBalance(ctx context.Context, id string) (int64, error) {
	var balance int64
	query := `SELECT credit_balance FROM accounts WHERE id = $1 AND deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&balance)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, pkgerrors.ErrAccountNotFound
	case err != nil:
		return 0, fmt.Errorf("%w: failed to get balance: %v", pkgerrors.ErrUnavailable, err)
	}
	return balance, nil
}

// ApplyDelta mutates the balance in one conditional statement so concurrent
// callers never observe a read-then-write race.
func (r *PostgresAccountRepository) ApplyDelta(ctx context.Context, id string, delta int64, reason string) (int64, error) {
	query := `
	UPDATE accounts
	SET credit_balance = credit_balance + $1, updated_at = now()
	WHERE id = $2
	AND deleted_at IS NULL
	AND credit_balance + $1 >= 0
	RETURNING credit_balance
	`
	var newBalance int64
	err := r.db.QueryRowContext(ctx, query, delta, id).Scan(&newBalance)
	if errors.Is(err, sql.ErrNoRows) {
		// The guard rejected: unknown account or the delta would go negative.
		var exists bool
		if checkErr := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1 AND deleted_at IS NULL)`, id,
		).Scan(&exists); checkErr != nil {
			return 0, fmt.Errorf("%w: failed to apply delta (%s): %v", pkgerrors.ErrUnavailable, reason, checkErr)
		}
		if !exists {
			return 0, pkgerrors.ErrAccountNotFound
		}
		return 0, pkgerrors.ErrInvariantViolation
	}
	if err != nil {
		return 0, fmt.Errorf("%w: failed to apply delta (%s): %v", pkgerrors.ErrUnavailable, reason, err)
	}
	return newBalance, nil
}

// TryDebit is the only way a usage request touches the balance: decrement by
// one if at least one credit remains, otherwise change nothing.
func (r *PostgresAccountRepository) TryDebit(ctx context.Context, id string) (int64, error) {
	query := `
	UPDATE accounts
	SET credit_balance = credit_balance - 1, updated_at = now()
	WHERE id = $1
	AND deleted_at IS NULL
	AND credit_balance >= 1
	RETURNING credit_balance
	`
	var newBalance int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&newBalance)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if checkErr := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1 AND deleted_at IS NULL)`, id,
		).Scan(&exists); checkErr != nil {
			return 0, fmt.Errorf("%w: failed to debit: %v", pkgerrors.ErrUnavailable, checkErr)
		}
		if !exists {
			return 0, pkgerrors.ErrAccountNotFound
		}
		return 0, pkgerrors.ErrInsufficientCredit
	}
	if err != nil {
		return 0, fmt.Errorf("%w: failed to debit: %v", pkgerrors.ErrUnavailable, err)
	}
	return newBalance, nil
}
