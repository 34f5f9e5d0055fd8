// Package app wires the ledger core and exposes the command surface the
// boundary layer (HTTP, auth, validation, all external to this module)
// calls into.
package app

import (
	"go.uber.org/zap"

	"github.com/ledgerops/account-service/internal/repositories"
	"github.com/ledgerops/account-service/internal/services"
)

// Core bundles the command-surface services plus the repositories the
// background loops share with them.
type Core struct {
	Accounts  services.AccountService
	Transfers services.TransferService
	Interest  services.InterestService

	AccountRepo     repositories.AccountRepository
	TransactionRepo repositories.TransactionRepository
	OutboxRepo      repositories.OutboxRepository
	InboxRepo       repositories.InboxRepository
	OutboxWriter    *services.OutboxWriter
}

// Config carries the tunables the core services need.
type Config struct {
	Transfer services.TransferConfig
	Interest services.InterestConfig
}

// New builds the core over the pgx-backed repositories. Tests construct the
// services directly against an in-memory store instead.
func New(logger *zap.Logger, cfg Config, runner services.TxRunner) *Core {
	accountRepo := repositories.NewAccountRepository()
	transactionRepo := repositories.NewTransactionRepository()
	outboxRepo := repositories.NewOutboxRepository()
	inboxRepo := repositories.NewInboxRepository()
	outboxWriter := services.NewOutboxWriter(outboxRepo)

	return &Core{
		Accounts: services.NewAccountService(logger, runner, accountRepo, transactionRepo, outboxWriter),
		Transfers: services.NewTransferService(logger, cfg.Transfer, runner,
			accountRepo, transactionRepo, outboxWriter),
		Interest:        services.NewInterestService(logger, cfg.Interest, runner, accountRepo),
		AccountRepo:     accountRepo,
		TransactionRepo: transactionRepo,
		OutboxRepo:      outboxRepo,
		InboxRepo:       inboxRepo,
		OutboxWriter:    outboxWriter,
	}
}
