package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ledgerops/account-service/internal/models"
	"github.com/ledgerops/account-service/internal/repositories"
)

// Accounts returns an AccountRepository view over the store.
func (s *Store) Accounts() repositories.AccountRepository { return accountRepo{s} }

// Transactions returns a TransactionRepository view over the store.
func (s *Store) Transactions() repositories.TransactionRepository { return transactionRepo{s} }

// Outbox returns an OutboxRepository view over the store.
func (s *Store) Outbox() repositories.OutboxRepository { return outboxRepo{s} }

// Inbox returns an InboxRepository view over the store.
func (s *Store) Inbox() repositories.InboxRepository { return inboxRepo{s} }

type accountRepo struct{ s *Store }

func (r accountRepo) Create(_ context.Context, _ pgx.Tx, account models.Account) error {
	r.s.accounts[account.ID] = account
	return nil
}

func (r accountRepo) FindByID(_ context.Context, _ pgx.Tx, id uuid.UUID) (models.Account, error) {
	account, ok := r.s.accounts[id]
	if !ok {
		return models.Account{}, pgx.ErrNoRows
	}
	return account, nil
}

// LockByID is FindByID here: the store mutex already excludes concurrent
// writers for the duration of the transaction.
func (r accountRepo) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (models.Account, error) {
	return r.FindByID(ctx, tx, id)
}

func (r accountRepo) ListByOwner(_ context.Context, _ pgx.Tx, ownerID uuid.UUID) ([]models.Account, error) {
	var accounts []models.Account
	for _, a := range r.s.accounts {
		if a.OwnerID == ownerID {
			accounts = append(accounts, a)
		}
	}
	sortAccounts(accounts)
	return accounts, nil
}

func (r accountRepo) OwnerHasAccount(_ context.Context, _ pgx.Tx, ownerID uuid.UUID) (bool, error) {
	for _, a := range r.s.accounts {
		if a.OwnerID == ownerID {
			return true, nil
		}
	}
	return false, nil
}

func (r accountRepo) UpdateBalance(_ context.Context, _ pgx.Tx, id uuid.UUID, balance decimal.Decimal) error {
	account, ok := r.s.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	account.Balance = balance
	account.Version++
	account.UpdatedAt = time.Now().UTC()
	r.s.accounts[id] = account
	return nil
}

func (r accountRepo) UpdateVersioned(_ context.Context, _ pgx.Tx, account models.Account, expectedVersion int64) (int64, error) {
	stored, ok := r.s.accounts[account.ID]
	if !ok || stored.Version != expectedVersion {
		return 0, nil
	}
	stored.OwnerID = account.OwnerID
	stored.Type = account.Type
	stored.Currency = account.Currency
	stored.Balance = account.Balance
	stored.InterestRate = account.InterestRate
	stored.ClosingDate = account.ClosingDate
	stored.Frozen = account.Frozen
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	r.s.accounts[account.ID] = stored
	return 1, nil
}

func (r accountRepo) SetFrozenByOwner(_ context.Context, _ pgx.Tx, ownerID uuid.UUID, frozen bool) (int64, error) {
	var affected int64
	for id, a := range r.s.accounts {
		if a.OwnerID == ownerID {
			a.Frozen = frozen
			a.Version++
			a.UpdatedAt = time.Now().UTC()
			r.s.accounts[id] = a
			affected++
		}
	}
	return affected, nil
}

func (r accountRepo) BalanceOf(_ context.Context, _ pgx.Tx, id uuid.UUID) (decimal.Decimal, error) {
	account, ok := r.s.accounts[id]
	if !ok {
		return decimal.Zero, pgx.ErrNoRows
	}
	return account.Balance, nil
}

func (r accountRepo) Exists(_ context.Context, _ pgx.Tx, id uuid.UUID) (bool, error) {
	_, ok := r.s.accounts[id]
	return ok, nil
}

// AccrueInterest mirrors the server-side accrue_interest routine.
func (r accountRepo) AccrueInterest(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	account, ok := r.s.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if account.InterestRate == nil || !account.InterestRate.IsPositive() || !account.Balance.IsPositive() {
		return nil
	}
	interest := account.Balance.Mul(*account.InterestRate)
	account.Balance = account.Balance.Add(interest)
	account.Version++
	account.UpdatedAt = time.Now().UTC()
	r.s.accounts[id] = account
	r.s.transactions = append(r.s.transactions, models.Transaction{
		ID:          uuid.New(),
		AccountID:   id,
		Sum:         interest,
		Currency:    account.Currency,
		Type:        models.TransactionInterest,
		Description: "Interest Accrual",
		DateTime:    time.Now().UTC(),
	})
	return nil
}

func (r accountRepo) NextAccrualBatch(_ context.Context, _ pgx.Tx, afterOpening time.Time, afterID uuid.UUID, limit int) ([]models.Account, error) {
	var eligible []models.Account
	for _, a := range r.s.accounts {
		if a.ClosingDate != nil || a.InterestRate == nil ||
			!a.InterestRate.IsPositive() || !a.Balance.IsPositive() {
			continue
		}
		if a.OpeningDate.After(afterOpening) ||
			(a.OpeningDate.Equal(afterOpening) && a.ID.String() > afterID.String()) {
			eligible = append(eligible, a)
		}
	}
	sortAccounts(eligible)
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

func sortAccounts(accounts []models.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].OpeningDate.Equal(accounts[j].OpeningDate) {
			return accounts[i].OpeningDate.Before(accounts[j].OpeningDate)
		}
		return accounts[i].ID.String() < accounts[j].ID.String()
	})
}

type transactionRepo struct{ s *Store }

func (r transactionRepo) Create(_ context.Context, _ pgx.Tx, transaction models.Transaction) error {
	r.s.transactions = append(r.s.transactions, transaction)
	return nil
}

func (r transactionRepo) FindByID(_ context.Context, _ pgx.Tx, id uuid.UUID) (models.Transaction, error) {
	for _, t := range r.s.transactions {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Transaction{}, pgx.ErrNoRows
}

func (r transactionRepo) ListByAccount(_ context.Context, _ pgx.Tx, accountID uuid.UUID) ([]models.Transaction, error) {
	var list []models.Transaction
	for _, t := range r.s.transactions {
		if t.AccountID == accountID {
			list = append(list, t)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].DateTime.Before(list[j].DateTime) })
	return list, nil
}

func (r transactionRepo) CountByAccount(_ context.Context, _ pgx.Tx, accountID uuid.UUID) (int64, error) {
	var count int64
	for _, t := range r.s.transactions {
		if t.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) Add(_ context.Context, _ pgx.Tx, msg models.OutboxMessage) error {
	r.s.outbox = append(r.s.outbox, msg)
	return nil
}

func (r outboxRepo) FetchPending(_ context.Context, _ pgx.Tx, limit int) ([]models.OutboxMessage, error) {
	var pending []models.OutboxMessage
	for _, m := range r.s.outbox {
		if m.ProcessedAt == nil {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].OccurredAt.Before(pending[j].OccurredAt) })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r outboxRepo) MarkProcessed(_ context.Context, _ pgx.Tx, id uuid.UUID, at time.Time) error {
	for i, m := range r.s.outbox {
		if m.ID == id {
			r.s.outbox[i].ProcessedAt = &at
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r outboxRepo) IncrementRetry(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	for i, m := range r.s.outbox {
		if m.ID == id {
			r.s.outbox[i].RetryCount++
			return nil
		}
	}
	return pgx.ErrNoRows
}

type inboxRepo struct{ s *Store }

func (r inboxRepo) TryClaim(_ context.Context, _ pgx.Tx, messageID uuid.UUID, handler string) (bool, error) {
	key := inboxKey{messageID: messageID, handler: handler}
	if _, claimed := r.s.inbox[key]; claimed {
		return false, nil
	}
	r.s.inbox[key] = models.InboxEntry{MessageID: messageID, Handler: handler}
	return true, nil
}

func (r inboxRepo) MarkProcessed(_ context.Context, _ pgx.Tx, messageID uuid.UUID, handler string, at time.Time) error {
	key := inboxKey{messageID: messageID, handler: handler}
	entry, ok := r.s.inbox[key]
	if !ok {
		return pgx.ErrNoRows
	}
	entry.ProcessedAt = &at
	r.s.inbox[key] = entry
	return nil
}
