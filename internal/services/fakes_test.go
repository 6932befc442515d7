package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vedant2606-dev/bg-removal-service/internal/gateway/razorpay"
	"github.com/vedant2606-dev/bg-removal-service/internal/models"
	"github.com/vedant2606-dev/bg-removal-service/internal/repository"
	pkgerrors "github.com/vedant2606-dev/bg-removal-service/pkg/errors"
)

// In-memory fakes guarding their state with a mutex, so the concurrency
// properties exercise the same conditional-update semantics as the SQL
// statements they stand in for.

type fakeAccountRepo struct {
	mu       sync.Mutex
	balances map[string]int64
	deleted  map[string]bool
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{balances: map[string]int64{}, deleted: map[string]bool{}}
}

func (f *fakeAccountRepo) CreateIfAbsent(ctx context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.balances[account.ID]; !ok {
		f.balances[account.ID] = 0
	}
	return nil
}

func (f *fakeAccountRepo) Update(ctx context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.balances[account.ID]; !ok || f.deleted[account.ID] {
		return pkgerrors.ErrAccountNotFound
	}
	return nil
}

func (f *fakeAccountRepo) SoftDelete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.balances[id]; !ok || f.deleted[id] {
		return pkgerrors.ErrAccountNotFound
	}
	f.deleted[id] = true
	return nil
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[id]
	if !ok {
		return nil, pkgerrors.ErrAccountNotFound
	}
	account := &models.Account{ID: id, CreditBalance: balance}
	if f.deleted[id] {
		now := time.Now()
		account.DeletedAt = &now
	}
	return account, nil
}

func (f *fakeAccountRepo) GetBalance(ctx context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[id]
	if !ok || f.deleted[id] {
		return 0, pkgerrors.ErrAccountNotFound
	}
	return balance, nil
}

func (f *fakeAccountRepo) ApplyDelta(ctx context.Context, id string, delta int64, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applyDeltaLocked(id, delta)
}

func (f *fakeAccountRepo) applyDeltaLocked(id string, delta int64) (int64, error) {
	balance, ok := f.balances[id]
	if !ok || f.deleted[id] {
		return 0, pkgerrors.ErrAccountNotFound
	}
	if balance+delta < 0 {
		return 0, pkgerrors.ErrInvariantViolation
	}
	f.balances[id] = balance + delta
	return f.balances[id], nil
}

func (f *fakeAccountRepo) TryDebit(ctx context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[id]
	if !ok || f.deleted[id] {
		return 0, pkgerrors.ErrAccountNotFound
	}
	if balance < 1 {
		return 0, pkgerrors.ErrInsufficientCredit
	}
	f.balances[id] = balance - 1
	return f.balances[id], nil
}

type fakeTransactionRepo struct {
	mu       sync.Mutex
	txs      map[string]*models.Transaction
	accounts *fakeAccountRepo
}

func newFakeTransactionRepo(accounts *fakeAccountRepo) *fakeTransactionRepo {
	return &fakeTransactionRepo{txs: map[string]*models.Transaction{}, accounts: accounts}
}

func (f *fakeTransactionRepo) Create(ctx context.Context, tx *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *tx
	copied.CreatedAt = time.Now()
	f.txs[tx.ID] = &copied
	tx.CreatedAt = copied.CreatedAt
	return nil
}

func (f *fakeTransactionRepo) SetOrderID(ctx context.Context, id, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok || tx.Status != models.StatusPending {
		return pkgerrors.ErrTransactionNotFound
	}
	tx.OrderID = orderID
	return nil
}

func (f *fakeTransactionRepo) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	copied := *tx
	return &copied, nil
}

func (f *fakeTransactionRepo) GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.txs {
		if tx.OrderID == orderID {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, pkgerrors.ErrTransactionNotFound
}

func (f *fakeTransactionRepo) Settle(ctx context.Context, id string) (*repository.SettleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if tx.Status != models.StatusPending {
		return &repository.SettleResult{AlreadySettled: true}, nil
	}
	newBalance, err := f.accounts.ApplyDelta(ctx, tx.AccountID, tx.Credits, "settlement")
	if err != nil {
		return nil, err
	}
	tx.Status = models.StatusSettled
	now := time.Now()
	tx.SettledAt = &now
	copied := *tx
	return &repository.SettleResult{Transaction: &copied, NewBalance: newBalance}, nil
}

func (f *fakeTransactionRepo) MarkFailed(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.txs[id]; ok && tx.Status == models.StatusPending {
		tx.Status = models.StatusFailed
	}
	return nil
}

func (f *fakeTransactionRepo) HistoryByAccount(ctx context.Context, accountID string) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transaction
	for _, tx := range f.txs {
		if tx.AccountID == accountID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

type fakeUsageRepo struct {
	mu       sync.Mutex
	events   map[string]*models.UsageEvent
	accounts *fakeAccountRepo
}

func newFakeUsageRepo(accounts *fakeAccountRepo) *fakeUsageRepo {
	return &fakeUsageRepo{events: map[string]*models.UsageEvent{}, accounts: accounts}
}

func (f *fakeUsageRepo) Create(ctx context.Context, event *models.UsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *event
	f.events[event.ID] = &copied
	return nil
}

func (f *fakeUsageRepo) MarkCompleted(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[id]
	if !ok || event.Status != models.UsageDebited {
		return pkgerrors.ErrUsageNotFound
	}
	event.Status = models.UsageCompleted
	return nil
}

func (f *fakeUsageRepo) Refund(ctx context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[id]
	if !ok {
		return 0, pkgerrors.ErrUsageNotFound
	}
	if event.Status != models.UsageDebited {
		return 0, pkgerrors.ErrAlreadyRefunded
	}
	newBalance, err := f.accounts.ApplyDelta(ctx, event.AccountID, 1, "refund")
	if err != nil {
		return 0, err
	}
	event.Status = models.UsageRefunded
	return newBalance, nil
}

type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: map[string]string{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.keys[key]
	if !ok {
		return "", fmt.Errorf("key not found")
	}
	return val, nil
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeRedis) Del(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

func (f *fakeRedis) Close() error { return nil }

type fakeProducer struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeProducer) Send(ctx context.Context, topic string, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, string(value))
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type fakeGateway struct {
	mu        sync.Mutex
	orders    map[string]*razorpay.Order
	nextID    int
	signature string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{orders: map[string]*razorpay.Order{}, signature: "valid"}
}

func (f *fakeGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*razorpay.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order := &razorpay.Order{
		ID:       fmt.Sprintf("order_%d", f.nextID),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}
	f.orders[order.ID] = order
	return order, nil
}

func (f *fakeGateway) FetchOrder(ctx context.Context, orderID string) (*razorpay.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeGateway) markPaid(orderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order, ok := f.orders[orderID]; ok {
		order.Status = "paid"
	}
}

func (f *fakeGateway) VerifySignature(orderID, paymentID, signature string) error {
	if signature != f.signature {
		return pkgerrors.ErrInvalidSignature
	}
	return nil
}

type fakeInference struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (f *fakeInference) RemoveBackground(ctx context.Context, filename string, image io.Reader) ([]byte, string, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, "", fmt.Errorf("%w: inference service returned status 500", pkgerrors.ErrUnavailable)
	}
	return []byte("processed"), "image/png", nil
}
