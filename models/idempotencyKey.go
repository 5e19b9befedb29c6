package models

import "time"

const (
	IdempotencyStatusStarted   = "STARTED"
	IdempotencyStatusSucceeded = "SUCCEEDED"
	IdempotencyStatusFailed    = "FAILED"
)

// IdempotencyKey makes a redelivered bus message a safe no-op for handlers
// whose side effects are not naturally idempotent (the synchronous ledger
// recompute). Cache invalidation does not use it; a clear is already
// idempotent.
type IdempotencyKey struct {
	ID          int     `gorm:"primary_key" json:"id"`
	OrgId       string  `gorm:"size:64;uniqueIndex:idx_idempotency_key,priority:1;not null" json:"org_id"`
	HandlerName string  `gorm:"size:64;uniqueIndex:idx_idempotency_key,priority:2;not null" json:"handler_name"`
	MessageId   string  `gorm:"size:128;uniqueIndex:idx_idempotency_key,priority:3;not null" json:"message_id"`
	Status      string  `gorm:"size:16;not null" json:"status"`
	LastError   *string `json:"last_error"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
