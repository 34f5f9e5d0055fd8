package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InboxRepository records which inbound messages each handler has already
// applied. The claim row is the deduplication authority: a second delivery
// fails the claim and is skipped.
type InboxRepository interface {
	// TryClaim atomically claims processing rights for (messageID, handler).
	// Returns false when the pair was claimed before.
	TryClaim(ctx context.Context, tx pgx.Tx, messageID uuid.UUID, handler string) (bool, error)
	// MarkProcessed records handler completion for the claim.
	MarkProcessed(ctx context.Context, tx pgx.Tx, messageID uuid.UUID, handler string, at time.Time) error
}

type InboxRepositoryImpl struct {
}

func NewInboxRepository() InboxRepository {
	return &InboxRepositoryImpl{}
}

func (i InboxRepositoryImpl) TryClaim(ctx context.Context, tx pgx.Tx, messageID uuid.UUID, handler string) (bool, error) {
	tag, err := tx.Exec(ctx, `INSERT INTO inbox_entries (message_id, handler)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, messageID, handler)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (i InboxRepositoryImpl) MarkProcessed(ctx context.Context, tx pgx.Tx, messageID uuid.UUID, handler string, at time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE inbox_entries SET processed_at = $1 WHERE message_id = $2 AND handler = $3`,
		at, messageID, handler)
	return err
}
