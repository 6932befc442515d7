package models

import "time"

// Account mirrors one identity-provider user. The ID is the opaque id issued
// by the provider; accounts are created from webhook events, never locally.
type Account struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Photo         string     `json:"photo"`
	CreditBalance int64      `json:"credit_balance"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}
