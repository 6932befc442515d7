package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/vedant2606-dev/bg-removal-service/internal/infrastructure/kafka"
	"github.com/vedant2606-dev/bg-removal-service/internal/infrastructure/observability"
	"github.com/vedant2606-dev/bg-removal-service/internal/models"
	"github.com/vedant2606-dev/bg-removal-service/internal/repository"
	pkgerrors "github.com/vedant2606-dev/bg-removal-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// InferenceClient is the slice of the background-removal client the service
// needs.
type InferenceClient interface {
	RemoveBackground(ctx context.Context, filename string, image io.Reader) ([]byte, string, error)
}

// ProcessResult carries the processed image as a data URI plus the balance
// after the debit, so the UI can render both without a second round trip.
type ProcessResult struct {
	ResultImage   string `json:"result_image"`
	CreditBalance int64  `json:"credit_balance"`
}

type ImageService interface {
	RemoveBackground(ctx context.Context, accountID, filename string, image io.Reader) (*ProcessResult, error)
}

type imageService struct {
	accountRepo   repository.AccountRepository
	usageRepo     repository.UsageRepository
	inference     InferenceClient
	auditProducer kafka.KafkaProducer
	auditTopic    string
}

func NewImageService(
	accountRepo repository.AccountRepository,
	usageRepo repository.UsageRepository,
	inference InferenceClient,
	auditProducer kafka.KafkaProducer,
	auditTopic string,
) *imageService {
	return &imageService{
		accountRepo:   accountRepo,
		usageRepo:     usageRepo,
		inference:     inference,
		auditProducer: auditProducer,
		auditTopic:    auditTopic,
	}
}

// RemoveBackground debits one credit, calls the inference service, and
// refunds the credit if the downstream call fails. The debit is a single
// conditional decrement: two concurrent requests racing for the last credit
// cannot both pass.
func (s *imageService) RemoveBackground(ctx context.Context, accountID, filename string, image io.Reader) (*ProcessResult, error) {
	tracer := otel.Tracer("image-service")
	ctx, span := tracer.Start(ctx, "RemoveBackground")
	span.SetAttributes(attribute.String("account_id", accountID))
	defer span.End()

	newBalance, err := s.accountRepo.TryDebit(ctx, accountID)
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrInsufficientCredit) {
			span.SetStatus(codes.Error, "insufficient credit")
			slog.Info("debit rejected", "account_id", accountID)
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "debit failed")
		slog.Error("failed to debit account", "account_id", accountID, "error", err)
		return nil, err
	}
	observability.CreditsDebited.Inc()

	usage := &models.UsageEvent{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Status:    models.UsageDebited,
	}
	if err := s.usageRepo.Create(ctx, usage); err != nil {
		// The debit went through but the audit row did not; give the credit
		// back via ApplyDelta since there is no usage row to anchor a refund.
		slog.Error("failed to record usage event", "account_id", accountID, "error", err)
		if _, compErr := s.accountRepo.ApplyDelta(ctx, accountID, 1, "usage record failed"); compErr != nil {
			slog.Error("failed to compensate debit", "account_id", accountID, "error", compErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "usage record failed")
		return nil, err
	}

	result, contentType, err := s.inference.RemoveBackground(ctx, filename, image)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference failed")
		slog.Error("inference call failed, refunding credit", "account_id", accountID, "usage_id", usage.ID, "error", err)
		s.refundWithRetry(ctx, accountID, usage.ID)
		return nil, fmt.Errorf("background removal failed: %w", err)
	}

	if err := s.usageRepo.MarkCompleted(ctx, usage.ID); err != nil {
		slog.Error("failed to mark usage completed", "usage_id", usage.ID, "error", err)
	}

	s.emitUsageAudit(accountID, usage.ID, "usage_completed", newBalance)
	slog.Info("image processed", "account_id", accountID, "usage_id", usage.ID, "new_balance", newBalance)

	return &ProcessResult{
		ResultImage:   fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(result)),
		CreditBalance: newBalance,
	}, nil
}

// refundWithRetry drives the compensating credit. Refund flips the usage row
// debited -> refunded inside the same database transaction as the credit, so
// retrying after a transient failure cannot double-refund.
func (s *imageService) refundWithRetry(ctx context.Context, accountID, usageID string) {
	for i := 0; i < 3; i++ {
		_, err := s.usageRepo.Refund(ctx, usageID)
		if err == nil || stderrors.Is(err, pkgerrors.ErrAlreadyRefunded) {
			s.emitUsageAudit(accountID, usageID, "usage_refunded", -1)
			return
		}
		slog.Error("refund attempt failed", "usage_id", usageID, "attempt", i+1, "error", err)
		time.Sleep(time.Second * time.Duration(i+1))
	}
	slog.Error("refund failed after retries, usage event left debited", "account_id", accountID, "usage_id", usageID)
}

func (s *imageService) emitUsageAudit(accountID, usageID, eventType string, balance int64) {
	payload := []byte(fmt.Sprintf(
		`{"event_type":%q,"account_id":%q,"usage_id":%q,"balance":%d,"created_at":%q}`,
		eventType, accountID, usageID, balance, time.Now().UTC().Format(time.RFC3339),
	))
	go func() {
		if err := s.auditProducer.Send(context.Background(), s.auditTopic, accountID, payload); err != nil {
			slog.Error("failed to send usage audit event", "event_type", eventType, "usage_id", usageID, "error", err)
		}
	}()
}
