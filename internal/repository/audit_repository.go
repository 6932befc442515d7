package repository

import "context"

// AuditRepository persists events drained from the audit stream.
type AuditRepository interface {
	Append(ctx context.Context, eventType string, payload []byte) error
}
