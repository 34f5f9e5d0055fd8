package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountChecking AccountType = "Checking"
	AccountDeposit  AccountType = "Deposit"
	AccountCredit   AccountType = "Credit"
)

// supportedCurrencies is the ISO-4217 subset the ledger accepts.
var supportedCurrencies = map[string]struct{}{
	"RUB": {},
	"USD": {},
	"EUR": {},
}

// IsCurrencySupported reports whether the given ISO-4217 code is accepted.
// Comparison is case-insensitive.
func IsCurrencySupported(code string) bool {
	_, ok := supportedCurrencies[strings.ToUpper(code)]
	return ok
}

// NormalizeCurrency upper-cases an ISO-4217 code for storage.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(code)
}

// Account maps to table `accounts`. Version advances on every successful
// write and backs the optimistic concurrency check.
type Account struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	Type         AccountType
	Currency     string
	Balance      decimal.Decimal
	InterestRate *decimal.Decimal
	OpeningDate  time.Time
	ClosingDate  *time.Time
	Frozen       bool
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	// Associations
	Transactions []Transaction
}

// Closed reports whether the account carries a closing date.
func (a Account) Closed() bool {
	return a.ClosingDate != nil
}

// Validate enforces the account invariants checked on every write.
func (a Account) Validate() error {
	if !IsCurrencySupported(a.Currency) {
		return ErrCurrencyUnsupported
	}
	if a.Type != AccountChecking && a.InterestRate == nil {
		return ErrInterestRateRequired
	}
	if a.ClosingDate != nil && a.ClosingDate.Before(a.OpeningDate) {
		return ErrClosingBeforeOpening
	}
	return nil
}
