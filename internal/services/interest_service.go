package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ledgerops/account-service/internal/models"
	"github.com/ledgerops/account-service/internal/observability"
	"github.com/ledgerops/account-service/internal/repositories"
)

// InterestConfig tunes the accrual batch job.
type InterestConfig struct {
	BatchSize int
	Interval  time.Duration
}

// InterestService walks all eligible accounts with keyset pagination ordered
// by (opening_date, id) and runs the row-locking accrual routine per account.
// Per-account failures are logged and skipped; the scan keeps going.
type InterestService interface {
	Run(ctx context.Context)
	RunOnce(ctx context.Context) (int, error)
}

type InterestServiceImpl struct {
	logger      *zap.Logger
	cfg         InterestConfig
	runner      TxRunner
	accountRepo repositories.AccountRepository
}

func NewInterestService(logger *zap.Logger, cfg InterestConfig, runner TxRunner,
	accountRepo repositories.AccountRepository) InterestService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &InterestServiceImpl{
		logger:      logger,
		cfg:         cfg,
		runner:      runner,
		accountRepo: accountRepo,
	}
}

// Run triggers RunOnce on the configured interval until ctx is canceled.
func (s *InterestServiceImpl) Run(ctx context.Context) {
	s.logger.Info("interest_accrual_scheduler_started", zap.Duration("interval", s.cfg.Interval))
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("interest_accrual_scheduler_stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("interest_accrual_run_failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a full accrual sweep and returns the number of accounts
// processed. The keyset cursor makes the scan resumable and stable under
// concurrent inserts.
func (s *InterestServiceImpl) RunOnce(ctx context.Context) (int, error) {
	s.logger.Info("interest_accrual_started")

	var (
		cursorOpening time.Time
		cursorID      uuid.UUID
		processed     int
	)

	for {
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		default:
		}

		var batch []models.Account
		err := s.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			var err error
			batch, err = s.accountRepo.NextAccrualBatch(ctx, tx, cursorOpening, cursorID, s.cfg.BatchSize)
			return err
		})
		if err != nil {
			return processed, err
		}
		if len(batch) == 0 {
			break
		}

		for _, account := range batch {
			err := s.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
				return s.accountRepo.AccrueInterest(ctx, tx, account.ID)
			})
			if err != nil {
				observability.InterestAccrualsSkipped.Inc()
				s.logger.Error("interest_accrual_account_failed",
					zap.String("account_id", account.ID.String()),
					zap.Error(err))
			} else {
				processed++
				observability.InterestAccrualsProcessed.Inc()
			}
			// Advance the cursor even past failures so one broken account
			// cannot stall the sweep.
			cursorOpening = account.OpeningDate
			cursorID = account.ID
		}
	}

	s.logger.Info("interest_accrual_completed", zap.Int("accounts_processed", processed))
	return processed, nil
}
