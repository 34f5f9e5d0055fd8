package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ledgerops/account-service/internal/models"
	"github.com/ledgerops/account-service/internal/storage/memory"
)

// ledgerFixture wires the services against an isolated in-memory store.
type ledgerFixture struct {
	store     *memory.Store
	writer    *OutboxWriter
	accounts  AccountService
	transfers TransferService
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	writer := NewOutboxWriter(store.Outbox())
	cfg := TransferConfig{
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
	return &ledgerFixture{
		store:     store,
		writer:    writer,
		accounts:  NewAccountService(logger, store, store.Accounts(), store.Transactions(), writer),
		transfers: NewTransferService(logger, cfg, store, store.Accounts(), store.Transactions(), writer),
	}
}

// seedAccount inserts an account directly into the store, bypassing the
// service so tests control every field.
func (f *ledgerFixture) seedAccount(t *testing.T, account models.Account) models.Account {
	t.Helper()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.OwnerID == uuid.Nil {
		account.OwnerID = uuid.New()
	}
	if account.Currency == "" {
		account.Currency = "USD"
	}
	if account.Type == "" {
		account.Type = models.AccountChecking
	}
	if account.Version == 0 {
		account.Version = 1
	}
	if account.OpeningDate.IsZero() {
		account.OpeningDate = time.Now().UTC()
	}
	err := f.store.WithTransaction(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		return f.store.Accounts().Create(ctx, tx, account)
	})
	assert.NoError(t, err)
	return account
}

func (f *ledgerFixture) balanceOf(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	var balance decimal.Decimal
	err := f.store.WithTransaction(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		var err error
		balance, err = f.store.Accounts().BalanceOf(ctx, tx, id)
		return err
	})
	assert.NoError(t, err)
	return balance
}

func (f *ledgerFixture) transactionCount(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	var count int64
	err := f.store.WithTransaction(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		var err error
		count, err = f.store.Transactions().CountByAccount(ctx, tx, id)
		return err
	})
	assert.NoError(t, err)
	return count
}

func (f *ledgerFixture) transactionsOf(t *testing.T, id uuid.UUID) []models.Transaction {
	t.Helper()
	var list []models.Transaction
	err := f.store.WithTransaction(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		var err error
		list, err = f.store.Transactions().ListByAccount(ctx, tx, id)
		return err
	})
	assert.NoError(t, err)
	return list
}

func (f *ledgerFixture) pendingOutbox(t *testing.T) []models.OutboxMessage {
	t.Helper()
	var pending []models.OutboxMessage
	err := f.store.WithTransaction(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		var err error
		pending, err = f.store.Outbox().FetchPending(ctx, tx, 1000)
		return err
	})
	assert.NoError(t, err)
	return pending
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
