package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ledgerops/account-service/internal/events"
	"github.com/ledgerops/account-service/internal/observability"
	"github.com/ledgerops/account-service/internal/repositories"
)

// OutboxPublisherConfig tunes the polling loop.
type OutboxPublisherConfig struct {
	BatchSize    int
	PollInterval time.Duration
	PublishRate  rate.Limit // broker publishes per second
	PublishBurst int
}

// OutboxPublisher is the always-on background loop that drains the outbox:
// each cycle reads unprocessed records in occurred_at order, publishes them
// to the bus and marks them processed. A failed publish increments the
// record's retry counter and leaves it for the next cycle; the rest of the
// batch keeps going.
type OutboxPublisher struct {
	logger     *zap.Logger
	cfg        OutboxPublisherConfig
	runner     TxRunner
	outboxRepo repositories.OutboxRepository
	bus        EventBusPublisher
	limiter    *rate.Limiter
}

func NewOutboxPublisher(logger *zap.Logger, cfg OutboxPublisherConfig, runner TxRunner,
	outboxRepo repositories.OutboxRepository, bus EventBusPublisher) *OutboxPublisher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PublishRate <= 0 {
		cfg.PublishRate = rate.Inf
	}
	if cfg.PublishBurst <= 0 {
		cfg.PublishBurst = 1
	}
	return &OutboxPublisher{
		logger:     logger,
		cfg:        cfg,
		runner:     runner,
		outboxRepo: outboxRepo,
		bus:        bus,
		limiter:    rate.NewLimiter(cfg.PublishRate, cfg.PublishBurst),
	}
}

// Run polls until ctx is canceled. It never serves the request path; a
// crashed cycle only delays announcements, it cannot lose them.
func (p *OutboxPublisher) Run(ctx context.Context) {
	p.logger.Info("outbox_publisher_started",
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Duration("poll_interval", p.cfg.PollInterval))

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := p.Cycle(ctx); err != nil {
			p.logger.Error("outbox_publisher_cycle_failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			p.logger.Info("outbox_publisher_stopped")
			return
		case <-ticker.C:
		}
	}
}

// Cycle drains one batch. Exported so tests can step the loop deterministically.
func (p *OutboxPublisher) Cycle(ctx context.Context) error {
	return p.runner.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		pending, err := p.outboxRepo.FetchPending(ctx, tx, p.cfg.BatchSize)
		if err != nil {
			return err
		}
		observability.OutboxPending.Set(float64(len(pending)))

		for _, msg := range pending {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			// Unknown kinds cannot ever publish; mark them processed so a
			// poison record does not wedge the queue.
			if !events.Known(msg.Type) {
				p.logger.Warn("outbox_unknown_event_type",
					zap.String("id", msg.ID.String()),
					zap.String("type", msg.Type))
				if err = p.outboxRepo.MarkProcessed(ctx, tx, msg.ID, time.Now().UTC()); err != nil {
					return err
				}
				continue
			}

			if err = p.limiter.Wait(ctx); err != nil {
				return err
			}
			if err = p.bus.Publish(ctx, msg.ID[:], msg.Type, msg.Payload); err != nil {
				observability.OutboxPublishFailed.WithLabelValues(msg.Type).Inc()
				p.logger.Error("outbox_publish_failed",
					zap.String("id", msg.ID.String()),
					zap.String("type", msg.Type),
					zap.Int("retry_count", msg.RetryCount),
					zap.Error(err))
				if err = p.outboxRepo.IncrementRetry(ctx, tx, msg.ID); err != nil {
					return err
				}
				continue // the rest of the batch still publishes
			}

			if err = p.outboxRepo.MarkProcessed(ctx, tx, msg.ID, time.Now().UTC()); err != nil {
				return err
			}
			observability.OutboxPublished.WithLabelValues(msg.Type).Inc()
		}
		return nil
	})
}
