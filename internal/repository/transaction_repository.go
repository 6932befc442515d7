package repository

import (
	"context"

	"github.com/vedant2606-dev/bg-removal-service/internal/models"
)

// SettleResult reports the outcome of a settlement attempt. AlreadySettled is
// true when the transaction had left Pending before this call; NewBalance is
// only meaningful when the call performed the credit.
type SettleResult struct {
	Transaction    *models.Transaction
	NewBalance     int64
	AlreadySettled bool
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	SetOrderID(ctx context.Context, id, orderID string) error
	// GetByOrderID resolves the transaction a gateway callback refers to; the
	// local order record, not the gateway payload, decides what settles.
	GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error)
	// Settle atomically flips Pending -> Settled and credits the owning
	// account in a single database transaction.
	Settle(ctx context.Context, id string) (*SettleResult, error)
	MarkFailed(ctx context.Context, id string) error
	HistoryByAccount(ctx context.Context, accountID string) ([]models.Transaction, error)
}
