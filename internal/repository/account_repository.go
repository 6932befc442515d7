package repository

import (
	"context"

	"github.com/vedant2606-dev/bg-removal-service/internal/models"
)

type AccountRepository interface {
	CreateIfAbsent(ctx context.Context, account *models.Account) error
	Update(ctx context.Context, account *models.Account) error
	SoftDelete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetBalance(ctx context.Context, id string) (int64, error)
	ApplyDelta(ctx context.Context, id string, delta int64, reason string) (newBalance int64, err error)
	TryDebit(ctx context.Context, id string) (newBalance int64, err error)
}
