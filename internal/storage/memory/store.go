// Package memory implements the repository contracts against process memory.
// It is the prototype store: an isolated instance is injected per test in
// place of the Postgres-backed repositories. Unlike the production path it
// permits unconditional account deletion.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerops/account-service/internal/models"
)

type inboxKey struct {
	messageID uuid.UUID
	handler   string
}

// Store holds the ledger state behind a single mutex. Transactions snapshot
// the state and restore it on error, so a failed operation is a no-op exactly
// like a rolled-back database transaction.
type Store struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]models.Account
	transactions []models.Transaction
	outbox       []models.OutboxMessage
	inbox        map[inboxKey]models.InboxEntry
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]models.Account),
		inbox:    make(map[inboxKey]models.InboxEntry),
	}
}

// WithTransaction runs fn under the store mutex and rolls the state back if
// fn fails. The pgx.Tx handed to fn is nil; memory repositories ignore it.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(ctx, nil); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// WithSerializableTransaction is identical to WithTransaction: the mutex
// already serializes every operation.
func (s *Store) WithSerializableTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return s.WithTransaction(ctx, fn)
}

// DeleteAccount removes an account unconditionally. Prototype-only escape
// hatch; the production schema has no delete path once transactions exist.
func (s *Store) DeleteAccount(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return false
	}
	delete(s.accounts, id)
	return true
}

type state struct {
	accounts     map[uuid.UUID]models.Account
	transactions []models.Transaction
	outbox       []models.OutboxMessage
	inbox        map[inboxKey]models.InboxEntry
}

func (s *Store) snapshot() state {
	accounts := make(map[uuid.UUID]models.Account, len(s.accounts))
	for id, a := range s.accounts {
		accounts[id] = a
	}
	inbox := make(map[inboxKey]models.InboxEntry, len(s.inbox))
	for k, e := range s.inbox {
		inbox[k] = e
	}
	transactions := make([]models.Transaction, len(s.transactions))
	copy(transactions, s.transactions)
	outbox := make([]models.OutboxMessage, len(s.outbox))
	copy(outbox, s.outbox)
	return state{accounts: accounts, transactions: transactions, outbox: outbox, inbox: inbox}
}

func (s *Store) restore(st state) {
	s.accounts = st.accounts
	s.transactions = st.transactions
	s.outbox = st.outbox
	s.inbox = st.inbox
}
