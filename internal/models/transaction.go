package models

import "time"

type Transaction struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	Plan      PlanID     `json:"plan"`
	Credits   int64      `json:"credits"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency"`
	Status    StatusType `json:"status"`
	OrderID   string     `json:"order_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

type StatusType string

// Settled and Failed are terminal: a transaction leaves Pending exactly once.
const (
	StatusPending StatusType = "pending"
	StatusSettled StatusType = "settled"
	StatusFailed  StatusType = "failed"
)
