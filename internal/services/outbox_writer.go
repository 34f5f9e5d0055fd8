package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerops/account-service/internal/events"
	"github.com/ledgerops/account-service/internal/models"
	"github.com/ledgerops/account-service/internal/repositories"
)

// OutboxWriter appends durable, not-yet-published event records. Record must
// be called inside the same transaction as the business mutation it
// announces; it never publishes directly.
type OutboxWriter struct {
	outboxRepo repositories.OutboxRepository
}

func NewOutboxWriter(outboxRepo repositories.OutboxRepository) *OutboxWriter {
	return &OutboxWriter{outboxRepo: outboxRepo}
}

// Record serializes evt and inserts a pending outbox row on tx.
func (w *OutboxWriter) Record(ctx context.Context, tx pgx.Tx, evt events.Event) error {
	payload, err := events.Encode(evt)
	if err != nil {
		return err
	}
	return w.outboxRepo.Add(ctx, tx, models.OutboxMessage{
		ID:         uuid.New(),
		Type:       evt.Kind(),
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	})
}
