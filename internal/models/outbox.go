package models

import (
	"time"

	"github.com/google/uuid"
)

// OutboxMessage maps to table `outbox_messages`. Written in the same
// transaction as the mutation it announces; ProcessedAt stays NULL until the
// publisher has confirmed broker delivery.
type OutboxMessage struct {
	ID          uuid.UUID
	Type        string
	Payload     []byte
	OccurredAt  time.Time
	ProcessedAt *time.Time
	RetryCount  int
}

// InboxEntry maps to table `inbox_entries`. One row per (message, handler)
// pair; its existence is the processing claim that makes redelivery
// idempotent.
type InboxEntry struct {
	MessageID   uuid.UUID
	Handler     string
	ProcessedAt *time.Time
}
