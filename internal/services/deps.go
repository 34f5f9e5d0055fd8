package services

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// TxRunner abstracts transactional execution over the ledger store. It is
// satisfied by *database.DB in production and by *memory.Store in tests, so
// every service gets an isolated store instance instead of process-wide
// shared state.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
	WithSerializableTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}
