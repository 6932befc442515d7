package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vedant2606-dev/bg-removal-service/internal/gateway/razorpay"
	"github.com/vedant2606-dev/bg-removal-service/internal/infrastructure/kafka"
	"github.com/vedant2606-dev/bg-removal-service/internal/infrastructure/redis"
	"github.com/vedant2606-dev/bg-removal-service/internal/models"
	"github.com/vedant2606-dev/bg-removal-service/internal/repository"
	pkgerrors "github.com/vedant2606-dev/bg-removal-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// PaymentGateway is the slice of the gateway client the ledger needs.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*razorpay.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*razorpay.Order, error)
	VerifySignature(orderID, paymentID, signature string) error
}

type LedgerService interface {
	OnAccountCreated(ctx context.Context, msgID string, account *models.Account) error
	OnAccountUpdated(ctx context.Context, msgID string, account *models.Account) error
	OnAccountDeleted(ctx context.Context, msgID, accountID string) error
	GetCredits(ctx context.Context, accountID string) (int64, error)
	GetTransactionHistory(ctx context.Context, accountID string) ([]models.Transaction, error)
	CreateOrder(ctx context.Context, accountID string, planID models.PlanID) (*razorpay.Order, error)
	VerifyPayment(ctx context.Context, orderID, paymentID, signature string) (newBalance int64, err error)
	Settle(ctx context.Context, transactionID string) (*repository.SettleResult, error)
}

type ledgerService struct {
	accountRepo     repository.AccountRepository
	transactionRepo repository.TransactionRepository
	redisClient     redis.RedisClient
	auditProducer   kafka.KafkaProducer
	auditTopic      string
	gateway         PaymentGateway
	currency        string
}

func NewLedgerService(
	accountRepo repository.AccountRepository,
	transactionRepo repository.TransactionRepository,
	redisClient redis.RedisClient,
	auditProducer kafka.KafkaProducer,
	auditTopic string,
	gateway PaymentGateway,
	currency string,
) *ledgerService {
	return &ledgerService{
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		redisClient:     redisClient,
		auditProducer:   auditProducer,
		auditTopic:      auditTopic,
		gateway:         gateway,
		currency:        currency,
	}
}

func deliveryKey(msgID string) string {
	return fmt.Sprintf("webhook:%s", msgID)
}

// claimDelivery records the webhook message id so replayed deliveries become
// no-ops. Duplicate delivery is the norm for webhooks, not the exception.
func (s *ledgerService) claimDelivery(ctx context.Context, msgID string) error {
	if msgID == "" {
		return fmt.Errorf("%w: webhook message id is required", pkgerrors.ErrInvalidInput)
	}
	ok, err := s.redisClient.SetNX(ctx, deliveryKey(msgID), "delivered", 24*time.Hour)
	if err != nil {
		slog.Error("failed to claim webhook delivery", "msg_id", msgID, "error", err)
		return fmt.Errorf("%w: failed to claim webhook delivery: %v", pkgerrors.ErrUnavailable, err)
	}
	if !ok {
		return pkgerrors.ErrDuplicateDelivery
	}
	return nil
}

// releaseDelivery frees a claimed message id after a failed mutation. Without
// this the provider's retry would be swallowed as a duplicate and the update
// lost; the mutations are idempotent, so re-admitting the retry is safe.
func (s *ledgerService) releaseDelivery(ctx context.Context, msgID string) {
	if err := s.redisClient.Del(ctx, deliveryKey(msgID)); err != nil {
		slog.Error("failed to release webhook delivery", "msg_id", msgID, "error", err)
	}
}

func (s *ledgerService) OnAccountCreated(ctx context.Context, msgID string, account *models.Account) error {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "OnAccountCreated")
	defer span.End()

	if err := s.claimDelivery(ctx, msgID); err != nil {
		return err
	}

	if err := s.accountRepo.CreateIfAbsent(ctx, account); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "account creation failed")
		slog.Error("failed to create account", "account_id", account.ID, "error", err)
		s.releaseDelivery(ctx, msgID)
		return err
	}

	s.emitAudit(ctx, "account_created", account.ID, map[string]interface{}{
		"account_id": account.ID,
		"email":      account.Email,
	})
	slog.Info("account created", "account_id", account.ID)
	return nil
}

func (s *ledgerService) OnAccountUpdated(ctx context.Context, msgID string, account *models.Account) error {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "OnAccountUpdated")
	defer span.End()

	if err := s.claimDelivery(ctx, msgID); err != nil {
		return err
	}

	if err := s.accountRepo.Update(ctx, account); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "account update failed")
		slog.Error("failed to update account", "account_id", account.ID, "error", err)
		s.releaseDelivery(ctx, msgID)
		return err
	}

	slog.Info("account updated", "account_id", account.ID)
	return nil
}

func (s *ledgerService) OnAccountDeleted(ctx context.Context, msgID, accountID string) error {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "OnAccountDeleted")
	defer span.End()

	if err := s.claimDelivery(ctx, msgID); err != nil {
		return err
	}

	if err := s.accountRepo.SoftDelete(ctx, accountID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "account deletion failed")
		slog.Error("failed to delete account", "account_id", accountID, "error", err)
		s.releaseDelivery(ctx, msgID)
		return err
	}

	s.emitAudit(ctx, "account_deleted", accountID, map[string]interface{}{
		"account_id": accountID,
	})
	slog.Info("account soft-deleted", "account_id", accountID)
	return nil
}

func (s *ledgerService) GetCredits(ctx context.Context, accountID string) (int64, error) {
	balance, err := s.accountRepo.GetBalance(ctx, accountID)
	if err != nil {
		slog.Error("failed to get balance", "account_id", accountID, "error", err)
		return 0, err
	}
	return balance, nil
}

func (s *ledgerService) GetTransactionHistory(ctx context.Context, accountID string) ([]models.Transaction, error) {
	transactions, err := s.transactionRepo.HistoryByAccount(ctx, accountID)
	if err != nil {
		slog.Error("failed to get transaction history", "account_id", accountID, "error", err)
		return nil, err
	}
	slog.Info("transaction history retrieved", "account_id", accountID, "count", len(transactions))
	return transactions, nil
}

// CreateOrder opens the two-phase purchase: a Pending transaction is written
// first, then the gateway order is created with the transaction id as the
// receipt. Settlement later finds the transaction through that receipt.
func (s *ledgerService) CreateOrder(ctx context.Context, accountID string, planID models.PlanID) (*razorpay.Order, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "CreateOrder")
	defer span.End()

	plan, err := models.PlanByID(planID)
	if err != nil {
		span.SetStatus(codes.Error, "invalid plan")
		slog.Warn("invalid plan requested", "account_id", accountID, "plan", planID)
		return nil, err
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "account lookup failed")
		return nil, err
	}
	if account.DeletedAt != nil {
		return nil, pkgerrors.ErrAccountDeleted
	}

	tx := &models.Transaction{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Plan:      plan.ID,
		Credits:   plan.Credits,
		Amount:    plan.Amount,
		Currency:  s.currency,
		Status:    models.StatusPending,
	}
	if err := s.transactionRepo.Create(ctx, tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction creation failed")
		return nil, err
	}

	// Gateway amounts are in subunits.
	order, err := s.gateway.CreateOrder(ctx, plan.Amount*100, s.currency, tx.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway order failed")
		slog.Error("failed to create gateway order", "transaction_id", tx.ID, "error", err)
		if failErr := s.transactionRepo.MarkFailed(ctx, tx.ID); failErr != nil {
			slog.Error("failed to mark transaction failed", "transaction_id", tx.ID, "error", failErr)
		}
		return nil, err
	}

	if err := s.transactionRepo.SetOrderID(ctx, tx.ID, order.ID); err != nil {
		slog.Error("failed to record order id", "transaction_id", tx.ID, "order_id", order.ID, "error", err)
		return nil, err
	}

	slog.Info("order created", "account_id", accountID, "plan", plan.ID, "transaction_id", tx.ID, "order_id", order.ID)
	return order, nil
}

// VerifyPayment handles the checkout callback: reject unless the callback
// signature matches, resolve the transaction from our own order record, then
// re-query the gateway for order status so a forged payload cannot credit an
// account, then settle idempotently.
func (s *ledgerService) VerifyPayment(ctx context.Context, orderID, paymentID, signature string) (int64, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "VerifyPayment")
	defer span.End()

	if err := s.gateway.VerifySignature(orderID, paymentID, signature); err != nil {
		span.SetStatus(codes.Error, "invalid payment signature")
		slog.Warn("payment signature rejected", "order_id", orderID)
		return 0, err
	}

	// The local order record decides which transaction settles; the gateway
	// response is only consulted for payment status.
	tx, err := s.transactionRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown order")
		slog.Warn("no transaction for order", "order_id", orderID, "error", err)
		return 0, err
	}

	order, err := s.gateway.FetchOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order fetch failed")
		slog.Error("failed to fetch gateway order", "order_id", orderID, "error", err)
		return 0, err
	}
	if order.Status != "paid" {
		span.SetStatus(codes.Error, "payment not captured")
		slog.Warn("order not paid", "order_id", orderID, "status", order.Status)
		return 0, pkgerrors.ErrPaymentNotCaptured
	}

	result, err := s.Settle(ctx, tx.ID)
	if err != nil {
		return 0, err
	}
	if result.AlreadySettled {
		// Replayed confirmation: report the current balance without change.
		return s.accountRepo.GetBalance(ctx, tx.AccountID)
	}
	return result.NewBalance, nil
}

// Settle is safe to call any number of times for the same transaction id; the
// credit lands exactly once.
func (s *ledgerService) Settle(ctx context.Context, transactionID string) (*repository.SettleResult, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "Settle")
	defer span.End()

	result, err := s.transactionRepo.Settle(ctx, transactionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settle failed")
		slog.Error("failed to settle transaction", "transaction_id", transactionID, "error", err)
		return nil, err
	}

	if result.AlreadySettled {
		slog.Info("settle replay ignored", "transaction_id", transactionID)
		return result, nil
	}

	s.emitAudit(ctx, "transaction_settled", result.Transaction.AccountID, map[string]interface{}{
		"transaction_id": transactionID,
		"account_id":     result.Transaction.AccountID,
		"plan":           result.Transaction.Plan,
		"credits":        result.Transaction.Credits,
		"new_balance":    result.NewBalance,
	})
	slog.Info("transaction settled", "transaction_id", transactionID, "account_id", result.Transaction.AccountID, "new_balance", result.NewBalance)
	return result, nil
}

func (s *ledgerService) emitAudit(ctx context.Context, eventType, key string, fields map[string]interface{}) {
	fields["event_type"] = eventType
	fields["created_at"] = time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(fields)
	if err != nil {
		slog.Error("failed to marshal audit event", "event_type", eventType, "error", err)
		return
	}
	go func() {
		retries := 3
		for i := 0; i < retries; i++ {
			if err := s.auditProducer.Send(context.Background(), s.auditTopic, key, payload); err == nil {
				return
			}
			time.Sleep(time.Second * time.Duration(i+1))
		}
		slog.Error("failed to send audit event after retries", "event_type", eventType, "key", key)
	}()
}
