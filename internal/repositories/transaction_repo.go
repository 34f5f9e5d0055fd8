package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerops/account-service/internal/models"
)

// TransactionRepository persists immutable ledger rows.
type TransactionRepository interface {
	// Create appends one transaction row.
	Create(ctx context.Context, tx pgx.Tx, transaction models.Transaction) error
	// FindByID reads a single transaction, for receipt rendering.
	FindByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (models.Transaction, error)
	// ListByAccount returns an account's rows in wall-clock order.
	ListByAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) ([]models.Transaction, error)
	// CountByAccount returns the number of ledger rows for the account.
	CountByAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error)
}

type TransactionRepositoryImpl struct {
}

func NewTransactionRepository() TransactionRepository {
	return &TransactionRepositoryImpl{}
}

func (t TransactionRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, transaction models.Transaction) error {
	_, err := tx.Exec(ctx, `INSERT INTO transactions
		(id, account_id, counterparty_account_id, sum, currency, type, description, date_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		transaction.ID, transaction.AccountID, transaction.CounterpartyAccountID,
		transaction.Sum, transaction.Currency, transaction.Type, transaction.Description,
		transaction.DateTime)
	return err
}

func (t TransactionRepositoryImpl) FindByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (models.Transaction, error) {
	var tr models.Transaction
	err := tx.QueryRow(ctx, `SELECT id, account_id, counterparty_account_id, sum, currency, type, description, date_time
		FROM transactions WHERE id = $1`, id).
		Scan(&tr.ID, &tr.AccountID, &tr.CounterpartyAccountID, &tr.Sum,
			&tr.Currency, &tr.Type, &tr.Description, &tr.DateTime)
	return tr, err
}

func (t TransactionRepositoryImpl) ListByAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) ([]models.Transaction, error) {
	rows, err := tx.Query(ctx, `SELECT id, account_id, counterparty_account_id, sum, currency, type, description, date_time
		FROM transactions WHERE account_id = $1 ORDER BY date_time, id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Transaction
	for rows.Next() {
		var tr models.Transaction
		if err = rows.Scan(&tr.ID, &tr.AccountID, &tr.CounterpartyAccountID, &tr.Sum,
			&tr.Currency, &tr.Type, &tr.Description, &tr.DateTime); err != nil {
			return nil, err
		}
		list = append(list, tr)
	}
	return list, rows.Err()
}

func (t TransactionRepositoryImpl) CountByAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error) {
	var count int64
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE account_id = $1`, accountID).Scan(&count)
	return count, err
}
