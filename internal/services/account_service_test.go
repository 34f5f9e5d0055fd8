package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ledgerops/account-service/internal/events"
	"github.com/ledgerops/account-service/internal/models"
	"github.com/ledgerops/account-service/internal/repositories"
	"github.com/ledgerops/account-service/pkg/apperr"
)

func TestCreateAccountRecordsOutboxEvent(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	created, err := f.accounts.CreateAccount(ctx, CreateAccountCommand{
		OwnerID:        uuid.New(),
		Type:           models.AccountChecking,
		Currency:       "usd",
		OpeningBalance: mustDecimal("250"),
	})
	assert.NoError(t, err)
	assert.Equal(t, "USD", created.Currency, "currency is normalized on storage")
	assert.Equal(t, int64(1), created.Version)
	assert.True(t, f.balanceOf(t, created.ID).Equal(mustDecimal("250")))

	pending := f.pendingOutbox(t)
	assert.Len(t, pending, 1)
	assert.Equal(t, events.KindAccountOpened, pending[0].Type)

	evt, err := events.Decode(pending[0].Type, pending[0].Payload)
	assert.NoError(t, err)
	assert.Equal(t, created.ID, evt.(*events.AccountOpened).AccountID)
}

func TestCreateAccountRejectsDepositWithoutRate(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.accounts.CreateAccount(context.Background(), CreateAccountCommand{
		OwnerID:        uuid.New(),
		Type:           models.AccountDeposit,
		Currency:       "USD",
		OpeningBalance: mustDecimal("100"),
	})
	assert.True(t, apperr.Is(err, apperr.ErrInvalidInputCode))

	// A rejected creation leaves no partial state behind.
	assert.Empty(t, f.pendingOutbox(t))
}

func TestCreateAccountRejectsUnsupportedCurrency(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.accounts.CreateAccount(context.Background(), CreateAccountCommand{
		OwnerID:  uuid.New(),
		Type:     models.AccountChecking,
		Currency: "GBP",
	})
	assert.True(t, apperr.Is(err, apperr.ErrCurrencyUnsupportedCode))
}

func TestCreateAccountRejectsNegativeOpeningBalance(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.accounts.CreateAccount(context.Background(), CreateAccountCommand{
		OwnerID:        uuid.New(),
		Type:           models.AccountChecking,
		Currency:       "USD",
		OpeningBalance: mustDecimal("-1"),
	})
	assert.True(t, apperr.Is(err, apperr.ErrInvalidAmountCode))
}

func TestGetAccountNotFound(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.accounts.GetAccount(context.Background(), uuid.New())
	assert.True(t, apperr.Is(err, apperr.ErrRecordNotFoundCode))
}

func TestListAccountsReturnsOnlyOwnerRows(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	f.seedAccount(t, models.Account{OwnerID: owner, Balance: mustDecimal("10")})
	f.seedAccount(t, models.Account{OwnerID: owner, Balance: mustDecimal("20")})
	f.seedAccount(t, models.Account{Balance: mustDecimal("30")})

	list, err := f.accounts.ListAccounts(ctx, owner)
	assert.NoError(t, err)
	assert.Len(t, list, 2)

	has, err := f.accounts.OwnerHasAccount(ctx, owner)
	assert.NoError(t, err)
	assert.True(t, has)

	has, err = f.accounts.OwnerHasAccount(ctx, uuid.New())
	assert.NoError(t, err)
	assert.False(t, has)
}

func TestDepositCreditsBalanceAndLedger(t *testing.T) {
	f := newLedgerFixture(t)
	account := f.seedAccount(t, models.Account{Balance: mustDecimal("100")})

	updated, err := f.accounts.Deposit(context.Background(), MovementCommand{
		AccountID:   account.ID,
		Amount:      mustDecimal("40.50"),
		Description: "payroll",
		OperationID: uuid.New(),
	})
	assert.NoError(t, err)
	assert.True(t, updated.Balance.Equal(mustDecimal("140.50")))

	rows := f.transactionsOf(t, account.ID)
	assert.Len(t, rows, 1)
	assert.Equal(t, models.TransactionCredit, rows[0].Type)
	assert.True(t, rows[0].Sum.Equal(mustDecimal("40.50")))

	pending := f.pendingOutbox(t)
	assert.Len(t, pending, 1)
	assert.Equal(t, events.KindMoneyCredited, pending[0].Type)
}

func TestWithdrawDebitsBalance(t *testing.T) {
	f := newLedgerFixture(t)
	account := f.seedAccount(t, models.Account{Balance: mustDecimal("100")})

	updated, err := f.accounts.Withdraw(context.Background(), MovementCommand{
		AccountID:   account.ID,
		Amount:      mustDecimal("30"),
		OperationID: uuid.New(),
	})
	assert.NoError(t, err)
	assert.True(t, updated.Balance.Equal(mustDecimal("70")))

	pending := f.pendingOutbox(t)
	assert.Len(t, pending, 1)
	assert.Equal(t, events.KindMoneyDebited, pending[0].Type)
}

func TestWithdrawInsufficientFundsIsNoOp(t *testing.T) {
	f := newLedgerFixture(t)
	account := f.seedAccount(t, models.Account{Balance: mustDecimal("20")})

	_, err := f.accounts.Withdraw(context.Background(), MovementCommand{
		AccountID:   account.ID,
		Amount:      mustDecimal("20.01"),
		OperationID: uuid.New(),
	})
	assert.True(t, apperr.Is(err, apperr.ErrInsufficientFundsCode))

	assert.True(t, f.balanceOf(t, account.ID).Equal(mustDecimal("20")))
	assert.Equal(t, int64(0), f.transactionCount(t, account.ID))
	assert.Empty(t, f.pendingOutbox(t))
}

func TestWithdrawFromFrozenAccountRejected(t *testing.T) {
	f := newLedgerFixture(t)
	account := f.seedAccount(t, models.Account{Balance: mustDecimal("100"), Frozen: true})

	_, err := f.accounts.Withdraw(context.Background(), MovementCommand{
		AccountID:   account.ID,
		Amount:      mustDecimal("10"),
		OperationID: uuid.New(),
	})
	assert.True(t, apperr.Is(err, apperr.ErrAccountFrozenCode))

	// Freezing blocks outgoing money only; deposits still land.
	_, err = f.accounts.Deposit(context.Background(), MovementCommand{
		AccountID:   account.ID,
		Amount:      mustDecimal("10"),
		OperationID: uuid.New(),
	})
	assert.NoError(t, err)
	assert.True(t, f.balanceOf(t, account.ID).Equal(mustDecimal("110")))
}

func TestMovementOnClosedAccountRejected(t *testing.T) {
	f := newLedgerFixture(t)
	closedAt := time.Now().UTC()
	account := f.seedAccount(t, models.Account{Balance: mustDecimal("100"), ClosingDate: &closedAt})

	_, err := f.accounts.Deposit(context.Background(), MovementCommand{
		AccountID:   account.ID,
		Amount:      mustDecimal("10"),
		OperationID: uuid.New(),
	})
	assert.True(t, apperr.Is(err, apperr.ErrAccountClosedCode))

	_, err = f.accounts.Withdraw(context.Background(), MovementCommand{
		AccountID:   account.ID,
		Amount:      mustDecimal("10"),
		OperationID: uuid.New(),
	})
	assert.True(t, apperr.Is(err, apperr.ErrAccountClosedCode))
}

func TestMovementRejectsNonPositiveAmount(t *testing.T) {
	f := newLedgerFixture(t)
	account := f.seedAccount(t, models.Account{Balance: mustDecimal("100")})

	_, err := f.accounts.Deposit(context.Background(), MovementCommand{
		AccountID: account.ID,
		Amount:    mustDecimal("0"),
	})
	assert.True(t, apperr.Is(err, apperr.ErrInvalidAmountCode))

	_, err = f.accounts.Withdraw(context.Background(), MovementCommand{
		AccountID: account.ID,
		Amount:    mustDecimal("-5"),
	})
	assert.True(t, apperr.Is(err, apperr.ErrInvalidAmountCode))
}

func TestUpdateAccountAdvancesVersion(t *testing.T) {
	f := newLedgerFixture(t)
	account := f.seedAccount(t, models.Account{Balance: mustDecimal("100")})

	updated, err := f.accounts.UpdateAccount(context.Background(), UpdateAccountCommand{
		ID:              account.ID,
		OwnerID:         account.OwnerID,
		Type:            models.AccountChecking,
		Currency:        "EUR",
		Balance:         mustDecimal("100"),
		ExpectedVersion: 1,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "EUR", updated.Currency)
}

func TestUpdateAccountStaleVersionReturnsFreshState(t *testing.T) {
	f := newLedgerFixture(t)
	account := f.seedAccount(t, models.Account{Balance: mustDecimal("100")})

	// First writer wins and bumps the version to 2.
	_, err := f.accounts.UpdateAccount(context.Background(), UpdateAccountCommand{
		ID:              account.ID,
		OwnerID:         account.OwnerID,
		Type:            models.AccountChecking,
		Currency:        "USD",
		Balance:         mustDecimal("200"),
		ExpectedVersion: 1,
	})
	assert.NoError(t, err)

	// Second writer still holds version 1 and must get the current row back.
	_, err = f.accounts.UpdateAccount(context.Background(), UpdateAccountCommand{
		ID:              account.ID,
		OwnerID:         account.OwnerID,
		Type:            models.AccountChecking,
		Currency:        "USD",
		Balance:         mustDecimal("300"),
		ExpectedVersion: 1,
	})
	assert.True(t, apperr.Is(err, apperr.ErrVersionConflictCode))

	var appErr apperr.AppError
	assert.ErrorAs(t, err, &appErr)
	current, ok := appErr.State.(models.Account)
	assert.True(t, ok, "conflict must carry the current stored account")
	assert.Equal(t, int64(2), current.Version)
	assert.True(t, current.Balance.Equal(mustDecimal("200")))

	// The losing write left nothing behind.
	assert.True(t, f.balanceOf(t, account.ID).Equal(mustDecimal("200")))
}

func TestUpdateAccountMissingRowReportsNotFound(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.accounts.UpdateAccount(context.Background(), UpdateAccountCommand{
		ID:              uuid.New(),
		OwnerID:         uuid.New(),
		Type:            models.AccountChecking,
		Currency:        "USD",
		ExpectedVersion: 1,
	})
	assert.True(t, apperr.Is(err, apperr.ErrRecordNotFoundCode))
}

func TestUpdateAccountRejectsClosingBeforeOpening(t *testing.T) {
	f := newLedgerFixture(t)
	opening := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	account := f.seedAccount(t, models.Account{Balance: mustDecimal("100"), OpeningDate: opening})

	before := opening.AddDate(0, 0, -1)
	_, err := f.accounts.UpdateAccount(context.Background(), UpdateAccountCommand{
		ID:              account.ID,
		OwnerID:         account.OwnerID,
		Type:            models.AccountChecking,
		Currency:        "USD",
		ClosingDate:     &before,
		ExpectedVersion: 1,
	})
	assert.True(t, apperr.Is(err, apperr.ErrInvalidInputCode))
}

func TestFreezeOwnerAccountsTogglesAllRows(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	a := f.seedAccount(t, models.Account{OwnerID: owner, Balance: mustDecimal("10")})
	b := f.seedAccount(t, models.Account{OwnerID: owner, Balance: mustDecimal("20")})
	other := f.seedAccount(t, models.Account{Balance: mustDecimal("30")})

	frozen, err := f.accounts.FreezeOwnerAccounts(ctx, owner)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), frozen)

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		got, err := f.accounts.GetAccount(ctx, id)
		assert.NoError(t, err)
		assert.True(t, got.Frozen)
	}
	untouched, err := f.accounts.GetAccount(ctx, other.ID)
	assert.NoError(t, err)
	assert.False(t, untouched.Frozen)

	unfrozen, err := f.accounts.UnfreezeOwnerAccounts(ctx, owner)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), unfrozen)
}

func TestAccrueInterestRecordsEvent(t *testing.T) {
	f := newLedgerFixture(t)
	rate := mustDecimal("0.05")
	account := f.seedAccount(t, models.Account{
		Type:         models.AccountDeposit,
		Balance:      mustDecimal("1000"),
		InterestRate: &rate,
	})

	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	err := f.accounts.AccrueInterest(context.Background(), account.ID, from, to)
	assert.NoError(t, err)

	assert.True(t, f.balanceOf(t, account.ID).Equal(mustDecimal("1050")))

	rows := f.transactionsOf(t, account.ID)
	assert.Len(t, rows, 1)
	assert.Equal(t, models.TransactionInterest, rows[0].Type)
	assert.True(t, rows[0].Sum.Equal(mustDecimal("50")))

	pending := f.pendingOutbox(t)
	assert.Len(t, pending, 1)
	assert.Equal(t, events.KindInterestAccrued, pending[0].Type)

	evt, err := events.Decode(pending[0].Type, pending[0].Payload)
	assert.NoError(t, err)
	assert.True(t, evt.(*events.InterestAccrued).Amount.Equal(mustDecimal("50")))
}

func TestAccrueInterestIneligibleAccountIsSilentNoOp(t *testing.T) {
	f := newLedgerFixture(t)
	account := f.seedAccount(t, models.Account{Balance: mustDecimal("1000")}) // checking, no rate

	err := f.accounts.AccrueInterest(context.Background(), account.ID, time.Now(), time.Now())
	assert.NoError(t, err)
	assert.True(t, f.balanceOf(t, account.ID).Equal(mustDecimal("1000")))
	assert.Empty(t, f.pendingOutbox(t))
}

func TestAccrueInterestUnknownAccount(t *testing.T) {
	f := newLedgerFixture(t)

	err := f.accounts.AccrueInterest(context.Background(), uuid.New(), time.Now(), time.Now())
	assert.True(t, apperr.Is(err, apperr.ErrRecordNotFoundCode))
}

// vanishedAccountRepo simulates a hard delete landing between the versioned
// update and the conflict re-read: the guarded update matches nothing and the
// row is already gone when the service looks again.
type vanishedAccountRepo struct {
	repositories.AccountRepository
	deleted bool
}

func (r *vanishedAccountRepo) UpdateVersioned(context.Context, pgx.Tx, models.Account, int64) (int64, error) {
	r.deleted = true
	return 0, nil
}

func (r *vanishedAccountRepo) FindByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (models.Account, error) {
	if r.deleted {
		return models.Account{}, pgx.ErrNoRows
	}
	return r.AccountRepository.FindByID(ctx, tx, id)
}

func TestUpdateAccountRowDeletedUnderneathReturnsGone(t *testing.T) {
	f := newLedgerFixture(t)
	account := f.seedAccount(t, models.Account{Balance: mustDecimal("100")})

	repo := &vanishedAccountRepo{AccountRepository: f.store.Accounts()}
	accounts := NewAccountService(zap.NewNop(), f.store, repo, f.store.Transactions(), f.writer)

	_, err := accounts.UpdateAccount(context.Background(), UpdateAccountCommand{
		ID:              account.ID,
		OwnerID:         account.OwnerID,
		Type:            models.AccountChecking,
		Currency:        "USD",
		Balance:         mustDecimal("150"),
		ExpectedVersion: 1,
	})
	assert.True(t, apperr.Is(err, apperr.ErrGoneCode), "deleted row must report Gone, not Conflict")
}

func TestGetReceiptReturnsLedgerRow(t *testing.T) {
	f := newLedgerFixture(t)
	account := f.seedAccount(t, models.Account{Balance: mustDecimal("100")})

	_, err := f.accounts.Deposit(context.Background(), MovementCommand{
		AccountID:   account.ID,
		Amount:      mustDecimal("40"),
		Description: "payroll",
		OperationID: uuid.New(),
	})
	assert.NoError(t, err)

	rows := f.transactionsOf(t, account.ID)
	if !assert.Len(t, rows, 1) {
		return
	}

	receipt, err := f.accounts.GetReceipt(context.Background(), rows[0].ID)
	assert.NoError(t, err)
	assert.Equal(t, account.ID, receipt.AccountID)
	assert.Equal(t, models.TransactionCredit, receipt.Type)
	assert.True(t, receipt.Sum.Equal(mustDecimal("40")))
	assert.Equal(t, "payroll", receipt.Description)
}

func TestGetReceiptUnknownTransaction(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.accounts.GetReceipt(context.Background(), uuid.New())
	assert.True(t, apperr.Is(err, apperr.ErrRecordNotFoundCode))
}
