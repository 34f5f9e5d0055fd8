package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ledgerops/account-service/internal/events"
	"github.com/ledgerops/account-service/internal/models"
	"github.com/ledgerops/account-service/internal/repositories"
	"github.com/ledgerops/account-service/pkg/apperr"
)

// CreateAccountCommand carries an already-validated, already-authenticated
// request from the boundary layer.
type CreateAccountCommand struct {
	OwnerID        uuid.UUID
	Type           models.AccountType
	Currency       string
	InterestRate   *decimal.Decimal
	OpeningBalance decimal.Decimal
}

// UpdateAccountCommand edits account fields guarded by the version token the
// caller last read.
type UpdateAccountCommand struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	Type            models.AccountType
	Currency        string
	Balance         decimal.Decimal
	InterestRate    *decimal.Decimal
	ClosingDate     *time.Time
	ExpectedVersion int64
}

// MovementCommand is a single-account credit or debit.
type MovementCommand struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Description string
	OperationID uuid.UUID
}

// AccountService owns single-entity account operations: creation, optimistic
// field edits, single-account movements, freezing and interest accrual.
type AccountService interface {
	CreateAccount(ctx context.Context, cmd CreateAccountCommand) (models.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
	GetReceipt(ctx context.Context, transactionID uuid.UUID) (models.Transaction, error)
	ListAccounts(ctx context.Context, ownerID uuid.UUID) ([]models.Account, error)
	OwnerHasAccount(ctx context.Context, ownerID uuid.UUID) (bool, error)
	UpdateAccount(ctx context.Context, cmd UpdateAccountCommand) (models.Account, error)
	Deposit(ctx context.Context, cmd MovementCommand) (models.Account, error)
	Withdraw(ctx context.Context, cmd MovementCommand) (models.Account, error)
	FreezeOwnerAccounts(ctx context.Context, ownerID uuid.UUID) (int64, error)
	UnfreezeOwnerAccounts(ctx context.Context, ownerID uuid.UUID) (int64, error)
	AccrueInterest(ctx context.Context, accountID uuid.UUID, periodFrom, periodTo time.Time) error
}

type AccountServiceImpl struct {
	logger          *zap.Logger
	runner          TxRunner
	accountRepo     repositories.AccountRepository
	transactionRepo repositories.TransactionRepository
	outbox          *OutboxWriter
}

func NewAccountService(logger *zap.Logger, runner TxRunner, accountRepo repositories.AccountRepository,
	transactionRepo repositories.TransactionRepository, outbox *OutboxWriter) AccountService {
	return &AccountServiceImpl{
		logger:          logger,
		runner:          runner,
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		outbox:          outbox,
	}
}

func (s *AccountServiceImpl) CreateAccount(ctx context.Context, cmd CreateAccountCommand) (models.Account, error) {
	if !models.IsCurrencySupported(cmd.Currency) {
		return models.Account{}, apperr.New(apperr.ErrCurrencyUnsupportedCode, "currency not supported", nil)
	}
	if cmd.Type != models.AccountChecking && cmd.InterestRate == nil {
		return models.Account{}, apperr.New(apperr.ErrInvalidInputCode, "interest rate required for non-checking accounts", nil)
	}
	if cmd.OpeningBalance.IsNegative() {
		return models.Account{}, apperr.New(apperr.ErrInvalidAmountCode, "opening balance must not be negative", nil)
	}

	now := time.Now().UTC()
	account := models.Account{
		ID:           uuid.New(),
		OwnerID:      cmd.OwnerID,
		Type:         cmd.Type,
		Currency:     models.NormalizeCurrency(cmd.Currency),
		Balance:      cmd.OpeningBalance,
		InterestRate: cmd.InterestRate,
		OpeningDate:  now,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.accountRepo.Create(ctx, tx, account); err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		return s.outbox.Record(ctx, tx, events.AccountOpened{
			EventID:    uuid.New(),
			OccurredAt: now,
			AccountID:  account.ID,
			OwnerID:    account.OwnerID,
			Currency:   account.Currency,
			Type:       string(account.Type),
		})
	})
	if err != nil {
		return models.Account{}, err
	}
	s.logger.Info("account_opened",
		zap.String("account_id", account.ID.String()),
		zap.String("owner_id", account.OwnerID.String()),
		zap.String("currency", account.Currency))
	return account, nil
}

func (s *AccountServiceImpl) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	var account models.Account
	err := s.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		account, err = s.accountRepo.FindByID(ctx, tx, id)
		if err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		return nil
	})
	return account, err
}

// GetReceipt looks up a single ledger row by id, for receipt rendering.
func (s *AccountServiceImpl) GetReceipt(ctx context.Context, transactionID uuid.UUID) (models.Transaction, error) {
	var receipt models.Transaction
	err := s.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		receipt, err = s.transactionRepo.FindByID(ctx, tx, transactionID)
		if err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		return nil
	})
	return receipt, err
}

func (s *AccountServiceImpl) ListAccounts(ctx context.Context, ownerID uuid.UUID) ([]models.Account, error) {
	var accounts []models.Account
	err := s.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		accounts, err = s.accountRepo.ListByOwner(ctx, tx, ownerID)
		if err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		return nil
	})
	return accounts, err
}

func (s *AccountServiceImpl) OwnerHasAccount(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	var has bool
	err := s.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		has, err = s.accountRepo.OwnerHasAccount(ctx, tx, ownerID)
		if err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		return nil
	})
	return has, err
}

// UpdateAccount applies field edits on the optimistic path. A stale
// ExpectedVersion fails with Conflict carrying the current stored account; a
// row deleted underneath the caller reports Gone instead.
func (s *AccountServiceImpl) UpdateAccount(ctx context.Context, cmd UpdateAccountCommand) (models.Account, error) {
	if !models.IsCurrencySupported(cmd.Currency) {
		return models.Account{}, apperr.New(apperr.ErrCurrencyUnsupportedCode, "currency not supported", nil)
	}
	if cmd.Type != models.AccountChecking && cmd.InterestRate == nil {
		return models.Account{}, apperr.New(apperr.ErrInvalidInputCode, "interest rate required for non-checking accounts", nil)
	}

	var updated models.Account
	err := s.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		stored, err := s.accountRepo.FindByID(ctx, tx, cmd.ID)
		if err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		if cmd.ClosingDate != nil && cmd.ClosingDate.Before(stored.OpeningDate) {
			return apperr.New(apperr.ErrInvalidInputCode, "closing date must not precede opening date", nil)
		}

		candidate := stored
		candidate.OwnerID = cmd.OwnerID
		candidate.Type = cmd.Type
		candidate.Currency = models.NormalizeCurrency(cmd.Currency)
		candidate.Balance = cmd.Balance
		candidate.InterestRate = cmd.InterestRate
		candidate.ClosingDate = cmd.ClosingDate

		affected, err := s.accountRepo.UpdateVersioned(ctx, tx, candidate, cmd.ExpectedVersion)
		if err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		if affected == 0 {
			current, err := s.accountRepo.FindByID(ctx, tx, cmd.ID)
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.New(apperr.ErrGoneCode, "account deleted concurrently", nil)
			}
			if err != nil {
				return apperr.HandleSQLError(s.logger, err)
			}
			return apperr.NewConflict("stored version has advanced", current)
		}

		updated, err = s.accountRepo.FindByID(ctx, tx, cmd.ID)
		if err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		return nil
	})
	if err != nil {
		return models.Account{}, err
	}
	return updated, nil
}

func (s *AccountServiceImpl) Deposit(ctx context.Context, cmd MovementCommand) (models.Account, error) {
	return s.move(ctx, cmd, models.TransactionCredit)
}

func (s *AccountServiceImpl) Withdraw(ctx context.Context, cmd MovementCommand) (models.Account, error) {
	return s.move(ctx, cmd, models.TransactionDebit)
}

func (s *AccountServiceImpl) move(ctx context.Context, cmd MovementCommand, kind models.TransactionType) (models.Account, error) {
	if !cmd.Amount.IsPositive() {
		return models.Account{}, apperr.New(apperr.ErrInvalidAmountCode, "amount must be positive", nil)
	}
	if len(cmd.Description) > 255 {
		return models.Account{}, apperr.New(apperr.ErrInvalidInputCode, "description exceeds 255 characters", nil)
	}

	var account models.Account
	err := s.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		account, err = s.accountRepo.LockByID(ctx, tx, cmd.AccountID)
		if err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		if account.Closed() {
			return apperr.New(apperr.ErrAccountClosedCode, "account is closed", nil)
		}

		now := time.Now().UTC()
		var evt events.Event
		if kind == models.TransactionDebit {
			if account.Frozen {
				return apperr.New(apperr.ErrAccountFrozenCode, "account is frozen", nil)
			}
			if account.Balance.LessThan(cmd.Amount) {
				return apperr.New(apperr.ErrInsufficientFundsCode, "insufficient balance", nil)
			}
			account.Balance = account.Balance.Sub(cmd.Amount)
			evt = events.MoneyDebited{
				EventID:     uuid.New(),
				OccurredAt:  now,
				AccountID:   account.ID,
				Amount:      cmd.Amount,
				Currency:    account.Currency,
				OperationID: cmd.OperationID,
				Reason:      cmd.Description,
			}
		} else {
			account.Balance = account.Balance.Add(cmd.Amount)
			evt = events.MoneyCredited{
				EventID:     uuid.New(),
				OccurredAt:  now,
				AccountID:   account.ID,
				Amount:      cmd.Amount,
				Currency:    account.Currency,
				OperationID: cmd.OperationID,
			}
		}

		if err = s.accountRepo.UpdateBalance(ctx, tx, account.ID, account.Balance); err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		if err = s.transactionRepo.Create(ctx, tx, models.Transaction{
			ID:          uuid.New(),
			AccountID:   account.ID,
			Sum:         cmd.Amount,
			Currency:    account.Currency,
			Type:        kind,
			Description: cmd.Description,
			DateTime:    now,
		}); err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		return s.outbox.Record(ctx, tx, evt)
	})
	if err != nil {
		return models.Account{}, err
	}
	s.logger.Info("money_moved",
		zap.String("account_id", cmd.AccountID.String()),
		zap.String("type", string(kind)),
		zap.String("amount", cmd.Amount.String()))
	return account, nil
}

func (s *AccountServiceImpl) FreezeOwnerAccounts(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	return s.setFrozen(ctx, ownerID, true)
}

func (s *AccountServiceImpl) UnfreezeOwnerAccounts(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	return s.setFrozen(ctx, ownerID, false)
}

func (s *AccountServiceImpl) setFrozen(ctx context.Context, ownerID uuid.UUID, frozen bool) (int64, error) {
	var affected int64
	err := s.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		affected, err = s.accountRepo.SetFrozenByOwner(ctx, tx, ownerID, frozen)
		if err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("owner_accounts_frozen_state_changed",
		zap.String("owner_id", ownerID.String()),
		zap.Bool("frozen", frozen),
		zap.Int64("accounts", affected))
	return affected, nil
}

// AccrueInterest runs the row-locking accrual routine for one account and
// records an InterestAccrued event in the same transaction.
func (s *AccountServiceImpl) AccrueInterest(ctx context.Context, accountID uuid.UUID, periodFrom, periodTo time.Time) error {
	return s.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		exists, err := s.accountRepo.Exists(ctx, tx, accountID)
		if err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		if !exists {
			return apperr.New(apperr.ErrRecordNotFoundCode, "account not found", nil)
		}

		before, err := s.accountRepo.BalanceOf(ctx, tx, accountID)
		if err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		if err = s.accountRepo.AccrueInterest(ctx, tx, accountID); err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		after, err := s.accountRepo.BalanceOf(ctx, tx, accountID)
		if err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}

		accrued := after.Sub(before)
		if accrued.IsZero() {
			return nil // ineligible account; routine was a no-op
		}
		return s.outbox.Record(ctx, tx, events.InterestAccrued{
			EventID:    uuid.New(),
			OccurredAt: time.Now().UTC(),
			AccountID:  accountID,
			PeriodFrom: periodFrom,
			PeriodTo:   periodTo,
			Amount:     accrued,
		})
	})
}
