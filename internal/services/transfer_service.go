package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ledgerops/account-service/internal/events"
	"github.com/ledgerops/account-service/internal/models"
	"github.com/ledgerops/account-service/internal/observability"
	"github.com/ledgerops/account-service/internal/repositories"
	"github.com/ledgerops/account-service/pkg/apperr"
)

// TransferConfig bounds the transient-failure retry loop.
type TransferConfig struct {
	MaxRetries  uint64
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// TransferService moves money between two accounts atomically. Both rows are
// locked under serializable isolation before any balance is read; transient
// conflicts are retried with exponential backoff.
type TransferService interface {
	Transfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal) error
}

type TransferServiceImpl struct {
	logger          *zap.Logger
	cfg             TransferConfig
	runner          TxRunner
	accountRepo     repositories.AccountRepository
	transactionRepo repositories.TransactionRepository
	outbox          *OutboxWriter
}

func NewTransferService(logger *zap.Logger, cfg TransferConfig, runner TxRunner,
	accountRepo repositories.AccountRepository, transactionRepo repositories.TransactionRepository,
	outbox *OutboxWriter) TransferService {
	return &TransferServiceImpl{
		logger:          logger,
		cfg:             cfg,
		runner:          runner,
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		outbox:          outbox,
	}
}

func (s *TransferServiceImpl) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal) error {
	started := time.Now()

	if !amount.IsPositive() {
		observability.TransfersFailed.WithLabelValues(apperr.ErrInvalidAmountCode.Code).Inc()
		return apperr.New(apperr.ErrInvalidAmountCode, "transfer amount must be positive", nil)
	}
	if fromID == toID {
		observability.TransfersFailed.WithLabelValues(apperr.ErrSameAccountCode.Code).Inc()
		return apperr.New(apperr.ErrSameAccountCode, "source and target accounts are identical", nil)
	}

	operation := func() error {
		err := s.executeTransfer(ctx, fromID, toID, amount)
		if err == nil {
			return nil
		}
		if apperr.IsTransient(err) {
			observability.TransferRetries.Inc()
			s.logger.Warn("transfer_transient_failure_retrying",
				zap.String("from", fromID.String()),
				zap.String("to", toID.String()),
				zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.BaseBackoff
	policy.MaxInterval = s.cfg.MaxBackoff
	policy.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, s.cfg.MaxRetries), ctx))
	observability.TransferLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		var appErr apperr.AppError
		code := apperr.ErrServerCode.Code
		if errors.As(err, &appErr) {
			code = appErr.Code.Code
		}
		observability.TransfersFailed.WithLabelValues(code).Inc()
		return err
	}

	observability.TransfersCompleted.Inc()
	s.logger.Info("transfer_completed",
		zap.String("from", fromID.String()),
		zap.String("to", toID.String()),
		zap.String("amount", amount.String()))
	return nil
}

func (s *TransferServiceImpl) executeTransfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal) error {
	return s.runner.WithSerializableTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		from, to, err := s.lockBoth(ctx, tx, fromID, toID)
		if err != nil {
			return err
		}

		// Business checks run only after both rows are held; a failing
		// check releases the locks on rollback.
		if from.Currency != to.Currency {
			return apperr.New(apperr.ErrCurrencyMismatchCode, "accounts use different currencies", nil)
		}
		if from.Closed() || to.Closed() {
			return apperr.New(apperr.ErrAccountClosedCode, "account is closed", nil)
		}
		if from.Balance.LessThan(amount) {
			return apperr.New(apperr.ErrInsufficientFundsCode, "insufficient balance", nil)
		}

		fromBalanceBefore := from.Balance
		toBalanceBefore := to.Balance
		newFromBalance := from.Balance.Sub(amount)
		newToBalance := to.Balance.Add(amount)

		if err = s.accountRepo.UpdateBalance(ctx, tx, from.ID, newFromBalance); err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		if err = s.accountRepo.UpdateBalance(ctx, tx, to.ID, newToBalance); err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}

		now := time.Now().UTC()
		transferID := uuid.New()
		if err = s.transactionRepo.Create(ctx, tx, models.Transaction{
			ID:                    uuid.New(),
			AccountID:             from.ID,
			CounterpartyAccountID: &to.ID,
			Sum:                   amount.Neg(),
			Currency:              from.Currency,
			Type:                  models.TransactionTransfer,
			Description:           fmt.Sprintf("Transfer to %s", to.ID),
			DateTime:              now,
		}); err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}
		if err = s.transactionRepo.Create(ctx, tx, models.Transaction{
			ID:                    uuid.New(),
			AccountID:             to.ID,
			CounterpartyAccountID: &from.ID,
			Sum:                   amount,
			Currency:              to.Currency,
			Type:                  models.TransactionTransfer,
			Description:           fmt.Sprintf("Transfer from %s", from.ID),
			DateTime:              now,
		}); err != nil {
			return apperr.HandleSQLError(s.logger, err)
		}

		if err = s.outbox.Record(ctx, tx, events.TransferCompleted{
			EventID:              uuid.New(),
			OccurredAt:           now,
			SourceAccountID:      from.ID,
			DestinationAccountID: to.ID,
			Amount:               amount,
			Currency:             from.Currency,
			TransferID:           transferID,
		}); err != nil {
			return err
		}

		// Verify both balances through the still-held locks before commit.
		// A mismatch is a correctness bug, never contention: fatal, not
		// retried.
		return s.verifyBalances(ctx, tx, from.ID, to.ID,
			fromBalanceBefore.Sub(amount), toBalanceBefore.Add(amount))
	})
}

// lockBoth acquires both row locks in ascending identity order regardless of
// transfer direction, so two opposite-direction transfers between the same
// pair cannot deadlock.
func (s *TransferServiceImpl) lockBoth(ctx context.Context, tx pgx.Tx, fromID, toID uuid.UUID) (models.Account, models.Account, error) {
	firstID, secondID := fromID, toID
	if bytes.Compare(toID[:], fromID[:]) < 0 {
		firstID, secondID = toID, fromID
	}

	first, err := s.accountRepo.LockByID(ctx, tx, firstID)
	if err != nil {
		return models.Account{}, models.Account{}, apperr.HandleSQLError(s.logger, err)
	}
	second, err := s.accountRepo.LockByID(ctx, tx, secondID)
	if err != nil {
		return models.Account{}, models.Account{}, apperr.HandleSQLError(s.logger, err)
	}

	if first.ID == fromID {
		return first, second, nil
	}
	return second, first, nil
}

func (s *TransferServiceImpl) verifyBalances(ctx context.Context, tx pgx.Tx, fromID, toID uuid.UUID,
	expectedFrom, expectedTo decimal.Decimal) error {
	fromAfter, err := s.accountRepo.BalanceOf(ctx, tx, fromID)
	if err != nil {
		return apperr.HandleSQLError(s.logger, err)
	}
	toAfter, err := s.accountRepo.BalanceOf(ctx, tx, toID)
	if err != nil {
		return apperr.HandleSQLError(s.logger, err)
	}

	if !fromAfter.Equal(expectedFrom) || !toAfter.Equal(expectedTo) {
		s.logger.Error("transfer_balance_verification_failed",
			zap.String("from", fromID.String()),
			zap.String("to", toID.String()),
			zap.String("expected_from", expectedFrom.String()),
			zap.String("expected_to", expectedTo.String()),
			zap.String("actual_from", fromAfter.String()),
			zap.String("actual_to", toAfter.String()))
		return apperr.New(apperr.ErrIntegrityCode,
			fmt.Sprintf("balance verification failed: expected from=%s to=%s, actual from=%s to=%s",
				expectedFrom, expectedTo, fromAfter, toAfter), nil)
	}
	return nil
}
