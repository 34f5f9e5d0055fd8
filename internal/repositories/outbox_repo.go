package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerops/account-service/internal/models"
)

// OutboxRepository persists the transactional outbox. Add runs inside the
// business transaction; the remaining methods belong to the publisher loop.
type OutboxRepository interface {
	// Add appends an unprocessed outbox record.
	Add(ctx context.Context, tx pgx.Tx, msg models.OutboxMessage) error
	// FetchPending returns up to limit unprocessed records in occurred_at
	// order, skipping rows another publisher instance already holds.
	FetchPending(ctx context.Context, tx pgx.Tx, limit int) ([]models.OutboxMessage, error)
	// MarkProcessed stamps a record as delivered.
	MarkProcessed(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error
	// IncrementRetry bumps a record's retry counter, leaving it pending.
	IncrementRetry(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

type OutboxRepositoryImpl struct {
}

func NewOutboxRepository() OutboxRepository {
	return &OutboxRepositoryImpl{}
}

func (o OutboxRepositoryImpl) Add(ctx context.Context, tx pgx.Tx, msg models.OutboxMessage) error {
	_, err := tx.Exec(ctx, `INSERT INTO outbox_messages (id, type, payload, occurred_at, processed_at, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.Type, msg.Payload, msg.OccurredAt, msg.ProcessedAt, msg.RetryCount)
	return err
}

func (o OutboxRepositoryImpl) FetchPending(ctx context.Context, tx pgx.Tx, limit int) ([]models.OutboxMessage, error) {
	rows, err := tx.Query(ctx, `SELECT id, type, payload, occurred_at, processed_at, retry_count
		FROM outbox_messages
		WHERE processed_at IS NULL
		ORDER BY occurred_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.OutboxMessage
	for rows.Next() {
		var msg models.OutboxMessage
		if err = rows.Scan(&msg.ID, &msg.Type, &msg.Payload, &msg.OccurredAt, &msg.ProcessedAt, &msg.RetryCount); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (o OutboxRepositoryImpl) MarkProcessed(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE outbox_messages SET processed_at = $1 WHERE id = $2`, at, id)
	return err
}

func (o OutboxRepositoryImpl) IncrementRetry(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE outbox_messages SET retry_count = retry_count + 1 WHERE id = $1`, id)
	return err
}
