package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedant2606-dev/bg-removal-service/internal/models"
	pkgerrors "github.com/vedant2606-dev/bg-removal-service/pkg/errors"
)

func newImageFixture(balance int64) (*imageService, *fakeAccountRepo, *fakeUsageRepo, *fakeInference) {
	accounts := newFakeAccountRepo()
	accounts.balances["user_abc"] = balance
	usage := newFakeUsageRepo(accounts)
	inference := &fakeInference{}
	svc := NewImageService(accounts, usage, inference, &fakeProducer{}, "ledger-audit")
	return svc, accounts, usage, inference
}

func TestImageService_RemoveBackground_Success(t *testing.T) {
	svc, accounts, usage, _ := newImageFixture(5)
	ctx := context.Background()

	result, err := svc.RemoveBackground(ctx, "user_abc", "photo.jpg", strings.NewReader("raw-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.CreditBalance)
	assert.True(t, strings.HasPrefix(result.ResultImage, "data:image/png;base64,"))

	balance, err := accounts.GetBalance(ctx, "user_abc")
	require.NoError(t, err)
	assert.Equal(t, int64(4), balance)

	usage.mu.Lock()
	assert.Len(t, usage.events, 1)
	for _, event := range usage.events {
		assert.Equal(t, models.UsageCompleted, event.Status)
	}
	usage.mu.Unlock()
}

func TestImageService_RemoveBackground_InsufficientCredit(t *testing.T) {
	svc, _, _, inference := newImageFixture(0)

	_, err := svc.RemoveBackground(context.Background(), "user_abc", "photo.jpg", strings.NewReader("raw-bytes"))
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientCredit)
	assert.Equal(t, 0, inference.calls, "inference must not run without a debit")
}

func TestImageService_RemoveBackground_UnknownAccount(t *testing.T) {
	svc, _, _, _ := newImageFixture(5)

	_, err := svc.RemoveBackground(context.Background(), "ghost", "photo.jpg", strings.NewReader("raw-bytes"))
	assert.ErrorIs(t, err, pkgerrors.ErrAccountNotFound)
}

func TestImageService_RemoveBackground_RefundsOnInferenceFailure(t *testing.T) {
	svc, accounts, usage, inference := newImageFixture(3)
	inference.fail = true
	ctx := context.Background()

	_, err := svc.RemoveBackground(ctx, "user_abc", "photo.jpg", strings.NewReader("raw-bytes"))
	assert.ErrorIs(t, err, pkgerrors.ErrUnavailable)

	balance, err := accounts.GetBalance(ctx, "user_abc")
	require.NoError(t, err)
	assert.Equal(t, int64(3), balance, "failed inference must refund the debit")

	usage.mu.Lock()
	for _, event := range usage.events {
		assert.Equal(t, models.UsageRefunded, event.Status)
	}
	usage.mu.Unlock()
}

func TestImageService_RemoveBackground_DrainsBalanceExactly(t *testing.T) {
	const balance = 5
	const requests = 20
	svc, accounts, _, inference := newImageFixture(balance)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	authorized := 0
	rejected := 0
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RemoveBackground(ctx, "user_abc", "photo.jpg", strings.NewReader("raw-bytes"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				authorized++
			case assert.ErrorIs(t, err, pkgerrors.ErrInsufficientCredit):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, balance, authorized, "exactly the available credits may be spent")
	assert.Equal(t, requests-balance, rejected)
	assert.Equal(t, balance, inference.calls)

	final, err := accounts.GetBalance(ctx, "user_abc")
	require.NoError(t, err)
	assert.Equal(t, int64(0), final)
}

func TestImageService_RefundIsIdempotent(t *testing.T) {
	accounts := newFakeAccountRepo()
	accounts.balances["user_abc"] = 1
	usage := newFakeUsageRepo(accounts)
	ctx := context.Background()

	_, err := accounts.TryDebit(ctx, "user_abc")
	require.NoError(t, err)
	event := &models.UsageEvent{ID: "usage-1", AccountID: "user_abc", Status: models.UsageDebited}
	require.NoError(t, usage.Create(ctx, event))

	balance, err := usage.Refund(ctx, "usage-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance)

	_, err = usage.Refund(ctx, "usage-1")
	assert.ErrorIs(t, err, pkgerrors.ErrAlreadyRefunded)

	balance, err = accounts.GetBalance(ctx, "user_abc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance, "second refund must not credit again")
}
