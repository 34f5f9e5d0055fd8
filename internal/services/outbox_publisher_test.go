package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ledgerops/account-service/internal/events"
	"github.com/ledgerops/account-service/internal/models"
	"github.com/ledgerops/account-service/internal/storage/memory"
)

// fakeBus records published messages and fails kinds listed in failKinds.
type fakeBus struct {
	mu        sync.Mutex
	published []string // kinds in publish order
	failKinds map[string]bool
}

func (b *fakeBus) Publish(_ context.Context, _ []byte, kind string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failKinds[kind] {
		return errors.New("broker unavailable")
	}
	b.published = append(b.published, kind)
	return nil
}

func (b *fakeBus) Close() {}

func (b *fakeBus) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.published))
	copy(out, b.published)
	return out
}

func addOutboxMessage(t *testing.T, store *memory.Store, kind string, occurredAt time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := store.WithTransaction(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		return store.Outbox().Add(ctx, tx, models.OutboxMessage{
			ID:         id,
			Type:       kind,
			Payload:    []byte(`{}`),
			OccurredAt: occurredAt,
		})
	})
	assert.NoError(t, err)
	return id
}

func pendingIDs(t *testing.T, store *memory.Store) []uuid.UUID {
	t.Helper()
	var ids []uuid.UUID
	err := store.WithTransaction(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		pending, err := store.Outbox().FetchPending(ctx, tx, 1000)
		if err != nil {
			return err
		}
		for _, m := range pending {
			ids = append(ids, m.ID)
		}
		return nil
	})
	assert.NoError(t, err)
	return ids
}

func TestCyclePublishesInOccurredAtOrder(t *testing.T) {
	store := memory.NewStore()
	bus := &fakeBus{}
	now := time.Now().UTC()

	// Inserted out of order on purpose.
	addOutboxMessage(t, store, events.KindMoneyCredited, now.Add(time.Second))
	addOutboxMessage(t, store, events.KindAccountOpened, now)
	addOutboxMessage(t, store, events.KindTransferCompleted, now.Add(2*time.Second))

	publisher := NewOutboxPublisher(zap.NewNop(), OutboxPublisherConfig{}, store, store.Outbox(), bus)
	assert.NoError(t, publisher.Cycle(context.Background()))

	assert.Equal(t, []string{
		events.KindAccountOpened,
		events.KindMoneyCredited,
		events.KindTransferCompleted,
	}, bus.kinds())
	assert.Empty(t, pendingIDs(t, store), "published messages must be marked processed")
}

func TestCyclePublishesEachMessageOnce(t *testing.T) {
	store := memory.NewStore()
	bus := &fakeBus{}
	addOutboxMessage(t, store, events.KindAccountOpened, time.Now().UTC())

	publisher := NewOutboxPublisher(zap.NewNop(), OutboxPublisherConfig{}, store, store.Outbox(), bus)
	assert.NoError(t, publisher.Cycle(context.Background()))
	assert.NoError(t, publisher.Cycle(context.Background()))
	assert.NoError(t, publisher.Cycle(context.Background()))

	assert.Len(t, bus.kinds(), 1, "a processed message must never republish")
}

func TestCycleFailedPublishStaysPendingWithRetryCount(t *testing.T) {
	store := memory.NewStore()
	bus := &fakeBus{failKinds: map[string]bool{events.KindMoneyDebited: true}}
	now := time.Now().UTC()

	failing := addOutboxMessage(t, store, events.KindMoneyDebited, now)
	addOutboxMessage(t, store, events.KindMoneyCredited, now.Add(time.Second))

	publisher := NewOutboxPublisher(zap.NewNop(), OutboxPublisherConfig{}, store, store.Outbox(), bus)
	assert.NoError(t, publisher.Cycle(context.Background()))

	// The failure must not block the rest of the batch.
	assert.Equal(t, []string{events.KindMoneyCredited}, bus.kinds())
	assert.Equal(t, []uuid.UUID{failing}, pendingIDs(t, store))

	var retryCount int
	err := store.WithTransaction(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		pending, err := store.Outbox().FetchPending(ctx, tx, 10)
		if err != nil {
			return err
		}
		retryCount = pending[0].RetryCount
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, retryCount)

	// Once the broker recovers, the next cycle drains the stuck message.
	bus.failKinds = nil
	assert.NoError(t, publisher.Cycle(context.Background()))
	assert.Empty(t, pendingIDs(t, store))
	assert.Equal(t, []string{events.KindMoneyCredited, events.KindMoneyDebited}, bus.kinds())
}

func TestCycleQuarantinesUnknownKinds(t *testing.T) {
	store := memory.NewStore()
	bus := &fakeBus{}
	addOutboxMessage(t, store, "LoanApproved", time.Now().UTC())

	publisher := NewOutboxPublisher(zap.NewNop(), OutboxPublisherConfig{}, store, store.Outbox(), bus)
	assert.NoError(t, publisher.Cycle(context.Background()))

	assert.Empty(t, bus.kinds(), "unknown kinds must not reach the broker")
	assert.Empty(t, pendingIDs(t, store), "unknown kinds must not wedge the queue")
}

func TestCycleHonorsBatchSize(t *testing.T) {
	store := memory.NewStore()
	bus := &fakeBus{}
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		addOutboxMessage(t, store, events.KindAccountOpened, now.Add(time.Duration(i)*time.Second))
	}

	publisher := NewOutboxPublisher(zap.NewNop(), OutboxPublisherConfig{BatchSize: 2}, store, store.Outbox(), bus)
	assert.NoError(t, publisher.Cycle(context.Background()))
	assert.Len(t, bus.kinds(), 2)
	assert.Len(t, pendingIDs(t, store), 3)

	assert.NoError(t, publisher.Cycle(context.Background()))
	assert.NoError(t, publisher.Cycle(context.Background()))
	assert.Empty(t, pendingIDs(t, store))
}
