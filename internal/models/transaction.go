package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionDebit    TransactionType = "Debit"
	TransactionCredit   TransactionType = "Credit"
	TransactionTransfer TransactionType = "Transfer"
	TransactionInterest TransactionType = "Interest"
)

// Validation failures shared by models and services.
var (
	ErrCurrencyUnsupported  = errors.New("currency not supported")
	ErrInterestRateRequired = errors.New("interest rate required for non-checking accounts")
	ErrClosingBeforeOpening = errors.New("closing date must not precede opening date")
	ErrDescriptionTooLong   = errors.New("description exceeds 255 characters")
)

// Transaction maps to table `transactions`. Rows are created exactly once and
// never mutated. A transfer produces two rows, one per account, each
// referencing the other as counterparty.
type Transaction struct {
	ID                    uuid.UUID
	AccountID             uuid.UUID
	CounterpartyAccountID *uuid.UUID
	Sum                   decimal.Decimal
	Currency              string
	Type                  TransactionType
	Description           string
	DateTime              time.Time
}

// Validate checks the immutable row constraints before insert.
func (t Transaction) Validate() error {
	if !IsCurrencySupported(t.Currency) {
		return ErrCurrencyUnsupported
	}
	if len(t.Description) > 255 {
		return ErrDescriptionTooLong
	}
	return nil
}
