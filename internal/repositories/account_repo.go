package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ledgerops/account-service/internal/models"
)

const accountColumns = `id, owner_id, type, currency, balance, interest_rate,
		opening_date, closing_date, frozen, version, created_at, updated_at`

// AccountRepository defines account persistence. All methods run inside a
// caller-supplied transaction so multi-row operations stay atomic.
type AccountRepository interface {
	// Create inserts a new account row.
	Create(ctx context.Context, tx pgx.Tx, account models.Account) error
	// FindByID reads an account without locking it.
	FindByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (models.Account, error)
	// LockByID reads an account under FOR UPDATE, blocking concurrent
	// lockers until the surrounding transaction ends.
	LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (models.Account, error)
	// ListByOwner returns all accounts owned by ownerID.
	ListByOwner(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) ([]models.Account, error)
	// OwnerHasAccount reports whether ownerID owns at least one account.
	OwnerHasAccount(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) (bool, error)
	// UpdateBalance sets a locked account's balance and bumps its version.
	UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance decimal.Decimal) error
	// UpdateVersioned applies field edits guarded by the version token.
	// Returns the number of rows matched: 0 means the stored version moved
	// on (or the row is gone) and nothing was written.
	UpdateVersioned(ctx context.Context, tx pgx.Tx, account models.Account, expectedVersion int64) (int64, error)
	// SetFrozenByOwner flips the frozen flag on every account of ownerID.
	SetFrozenByOwner(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, frozen bool) (int64, error)
	// BalanceOf reads just the balance, used for post-mutation verification.
	BalanceOf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (decimal.Decimal, error)
	// Exists reports whether the account row is present.
	Exists(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	// AccrueInterest invokes the server-side accrual routine for one account.
	AccrueInterest(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	// NextAccrualBatch keyset-paginates accounts eligible for interest,
	// ordered by (opening_date, id) after the given cursor.
	NextAccrualBatch(ctx context.Context, tx pgx.Tx, afterOpening time.Time, afterID uuid.UUID, limit int) ([]models.Account, error)
}

type AccountRepositoryImpl struct {
}

func NewAccountRepository() AccountRepository {
	return &AccountRepositoryImpl{}
}

func (a AccountRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, account models.Account) error {
	_, err := tx.Exec(ctx, `INSERT INTO accounts
		(id, owner_id, type, currency, balance, interest_rate, opening_date, closing_date, frozen, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		account.ID, account.OwnerID, account.Type, account.Currency, account.Balance,
		account.InterestRate, account.OpeningDate, account.ClosingDate, account.Frozen,
		account.Version, account.CreatedAt, account.UpdatedAt)
	return err
}

func (a AccountRepositoryImpl) FindByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (models.Account, error) {
	if id == uuid.Nil {
		return models.Account{}, fmt.Errorf("invalid account ID: %s", id.String())
	}
	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (a AccountRepositoryImpl) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (models.Account, error) {
	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row)
}

func (a AccountRepositoryImpl) ListByOwner(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) ([]models.Account, error) {
	rows, err := tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY opening_date, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func (a AccountRepositoryImpl) OwnerHasAccount(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE owner_id = $1)`, ownerID).Scan(&exists)
	return exists, err
}

func (a AccountRepositoryImpl) UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance decimal.Decimal) error {
	_, err := tx.Exec(ctx, `UPDATE accounts SET balance = $1, version = version + 1, updated_at = $2 WHERE id = $3`,
		balance, time.Now().UTC(), id)
	return err
}

func (a AccountRepositoryImpl) UpdateVersioned(ctx context.Context, tx pgx.Tx, account models.Account, expectedVersion int64) (int64, error) {
	tag, err := tx.Exec(ctx, `UPDATE accounts
		SET owner_id = $1, type = $2, currency = $3, balance = $4, interest_rate = $5,
		    closing_date = $6, frozen = $7, version = version + 1, updated_at = $8
		WHERE id = $9 AND version = $10`,
		account.OwnerID, account.Type, account.Currency, account.Balance, account.InterestRate,
		account.ClosingDate, account.Frozen, time.Now().UTC(), account.ID, expectedVersion)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (a AccountRepositoryImpl) SetFrozenByOwner(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, frozen bool) (int64, error) {
	tag, err := tx.Exec(ctx, `UPDATE accounts SET frozen = $1, version = version + 1, updated_at = $2 WHERE owner_id = $3`,
		frozen, time.Now().UTC(), ownerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (a AccountRepositoryImpl) BalanceOf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, id).Scan(&balance)
	return balance, err
}

func (a AccountRepositoryImpl) Exists(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (a AccountRepositoryImpl) AccrueInterest(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `SELECT accrue_interest($1)`, id)
	return err
}

func (a AccountRepositoryImpl) NextAccrualBatch(ctx context.Context, tx pgx.Tx, afterOpening time.Time, afterID uuid.UUID, limit int) ([]models.Account, error) {
	rows, err := tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE (opening_date > $1 OR (opening_date = $1 AND id > $2))
		  AND closing_date IS NULL
		  AND interest_rate > 0
		  AND balance > 0
		ORDER BY opening_date, id
		LIMIT $3`, afterOpening, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID, &account.OwnerID, &account.Type, &account.Currency, &account.Balance,
		&account.InterestRate, &account.OpeningDate, &account.ClosingDate, &account.Frozen,
		&account.Version, &account.CreatedAt, &account.UpdatedAt)
	return account, err
}

func scanAccounts(rows pgx.Rows) ([]models.Account, error) {
	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}
