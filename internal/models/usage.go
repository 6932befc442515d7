package models

import "time"

// UsageEvent records one debit attempt against an account. The status flip
// debited -> refunded is the idempotency anchor for compensation after a
// failed inference call.
type UsageEvent struct {
	ID        string      `json:"id"`
	AccountID string      `json:"account_id"`
	Status    UsageStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type UsageStatus string

const (
	UsageDebited   UsageStatus = "debited"
	UsageCompleted UsageStatus = "completed"
	UsageRefunded  UsageStatus = "refunded"
)
