package repository

import (
	"context"

	"github.com/vedant2606-dev/bg-removal-service/internal/models"
)

type UsageRepository interface {
	Create(ctx context.Context, event *models.UsageEvent) error
	MarkCompleted(ctx context.Context, id string) error
	// Refund flips debited -> refunded and credits one unit back to the
	// owning account in a single database transaction. Calling it again for
	// the same id is a no-op reported as ErrAlreadyRefunded.
	Refund(ctx context.Context, id string) (newBalance int64, err error)
}
