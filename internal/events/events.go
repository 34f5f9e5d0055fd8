package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event kind tags stored in outbox_messages.type and used as the Kafka
// message type header.
const (
	KindAccountOpened     = "AccountOpened"
	KindMoneyCredited     = "MoneyCredited"
	KindMoneyDebited      = "MoneyDebited"
	KindTransferCompleted = "TransferCompleted"
	KindInterestAccrued   = "InterestAccrued"
	KindClientBlocked     = "ClientBlocked"
	KindClientUnblocked   = "ClientUnblocked"
)

// Event is implemented by every domain event the service publishes or
// consumes.
type Event interface {
	Kind() string
}

type AccountOpened struct {
	EventID    uuid.UUID `json:"eventId" validate:"required"`
	OccurredAt time.Time `json:"occurredAt" validate:"required"`
	AccountID  uuid.UUID `json:"accountId" validate:"required"`
	OwnerID    uuid.UUID `json:"ownerId" validate:"required"`
	Currency   string    `json:"currency" validate:"required,len=3"`
	Type       string    `json:"type" validate:"required"`
}

func (AccountOpened) Kind() string { return KindAccountOpened }

type MoneyCredited struct {
	EventID     uuid.UUID       `json:"eventId" validate:"required"`
	OccurredAt  time.Time       `json:"occurredAt" validate:"required"`
	AccountID   uuid.UUID       `json:"accountId" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	OperationID uuid.UUID       `json:"operationId" validate:"required"`
}

func (MoneyCredited) Kind() string { return KindMoneyCredited }

type MoneyDebited struct {
	EventID     uuid.UUID       `json:"eventId" validate:"required"`
	OccurredAt  time.Time       `json:"occurredAt" validate:"required"`
	AccountID   uuid.UUID       `json:"accountId" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	OperationID uuid.UUID       `json:"operationId" validate:"required"`
	Reason      string          `json:"reason"`
}

func (MoneyDebited) Kind() string { return KindMoneyDebited }

type TransferCompleted struct {
	EventID              uuid.UUID       `json:"eventId" validate:"required"`
	OccurredAt           time.Time       `json:"occurredAt" validate:"required"`
	SourceAccountID      uuid.UUID       `json:"sourceAccountId" validate:"required"`
	DestinationAccountID uuid.UUID       `json:"destinationAccountId" validate:"required"`
	Amount               decimal.Decimal `json:"amount" validate:"required"`
	Currency             string          `json:"currency" validate:"required,len=3"`
	TransferID           uuid.UUID       `json:"transferId" validate:"required"`
}

func (TransferCompleted) Kind() string { return KindTransferCompleted }

type InterestAccrued struct {
	EventID    uuid.UUID       `json:"eventId" validate:"required"`
	OccurredAt time.Time       `json:"occurredAt" validate:"required"`
	AccountID  uuid.UUID       `json:"accountId" validate:"required"`
	PeriodFrom time.Time       `json:"periodFrom"`
	PeriodTo   time.Time       `json:"periodTo"`
	Amount     decimal.Decimal `json:"amount"`
}

func (InterestAccrued) Kind() string { return KindInterestAccrued }

// Consumed events, produced by the external client-risk system.

type ClientBlocked struct {
	EventID    uuid.UUID `json:"eventId" validate:"required"`
	OccurredAt time.Time `json:"occurredAt" validate:"required"`
	ClientID   uuid.UUID `json:"clientId" validate:"required"`
}

func (ClientBlocked) Kind() string { return KindClientBlocked }

type ClientUnblocked struct {
	EventID    uuid.UUID `json:"eventId" validate:"required"`
	OccurredAt time.Time `json:"occurredAt" validate:"required"`
	ClientID   uuid.UUID `json:"clientId" validate:"required"`
}

func (ClientUnblocked) Kind() string { return KindClientUnblocked }
