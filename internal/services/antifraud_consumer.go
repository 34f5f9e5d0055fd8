package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ledgerops/account-service/internal/events"
	"github.com/ledgerops/account-service/internal/observability"
	"github.com/ledgerops/account-service/internal/repositories"
	"github.com/ledgerops/account-service/pkg/backoff"
	"github.com/ledgerops/account-service/pkg/kafkautil"
)

// inboxHandlerName keys claims in inbox_entries for this consumer.
const inboxHandlerName = "AntifraudConsumer"

// errAlreadyProcessed signals a duplicate delivery caught by the inbox claim.
var errAlreadyProcessed = errors.New("message already processed")

// AntifraudConsumer subscribes to client-risk events and freezes or
// unfreezes the named client's accounts. Handler application is idempotent:
// the durable inbox claim is taken in the same transaction as the side
// effect, so redelivery cannot re-apply it.
type AntifraudConsumer interface {
	Start() func()
}

// AntifraudConsumerConfig holds configuration and dependencies for the
// client-events consumer.
type AntifraudConsumerConfig struct {
	Context       context.Context
	Logger        *zap.Logger
	Brokers       string
	Topic         string
	DLQTopic      string
	ConsumerGroup string
	MaxConcurrent int
	MaxRetryCount int
	RetryBase     time.Duration
	RetryMax      time.Duration
	InboxCacheTTL time.Duration
	Runner        TxRunner
	AccountRepo   repositories.AccountRepository
	InboxRepo     repositories.InboxRepository
	RedisClient   *redis.Client

	// internal initialization
	consumer    *kafka.Consumer
	dlqProducer *kafka.Producer
	commits     *kafkautil.CommitManager
	validate    *validator.Validate
	sem         chan struct{} // Semaphore to limit concurrent handler runs
}

// NewAntifraudConsumer initializes the consumer with manual offset commits,
// a DLQ producer for exhausted messages and a bounded-concurrency semaphore.
func NewAntifraudConsumer(cfg AntifraudConsumerConfig) AntifraudConsumer {
	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.ConsumerGroup,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false, // Manual offset management: ack only after idempotent application
	}
	kafkaConsumer, err := kafka.NewConsumer(kafkaConfig)
	if err != nil {
		cfg.Logger.Fatal("Failed to create antifraud consumer", zap.Error(err))
	}

	dlqProducer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		cfg.Logger.Fatal("Failed to create DLQ producer", zap.Error(err))
	}

	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxRetryCount <= 0 {
		cfg.MaxRetryCount = 3
	}
	cfg.sem = make(chan struct{}, cfg.MaxConcurrent)
	cfg.consumer = kafkaConsumer
	cfg.dlqProducer = dlqProducer
	cfg.commits = kafkautil.NewCommitManager(kafkaConsumer, cfg.Logger)
	cfg.validate = validator.New()
	return &cfg
}

// Start initiates the consumption loop and returns a cleanup function.
func (c *AntifraudConsumerConfig) Start() func() {
	err := c.consumer.SubscribeTopics([]string{c.Topic}, nil)
	if err != nil {
		c.Logger.Fatal("Failed to subscribe to client events topic", zap.Error(err))
	}

	c.Logger.Info("Listening to client events topic",
		zap.String("topic", c.Topic),
		zap.String("group", c.ConsumerGroup))

	go func() {
		for {
			select {
			case <-c.Context.Done():
				return
			default:
			}
			msg, err := c.consumer.ReadMessage(time.Second)
			if err != nil {
				var kafkaErr kafka.Error
				if errors.As(err, &kafkaErr) && kafkaErr.IsTimeout() {
					continue
				}
				c.Logger.Error("Failed to read client event", zap.Error(err))
				continue
			}
			// Acquire semaphore slot, blocking if limit is reached
			c.sem <- struct{}{}
			c.commits.Track(msg)
			go func(m *kafka.Message) {
				defer func() { <-c.sem }()
				c.processMessage(m)
			}(msg)
		}
	}()

	return func() {
		if c.dlqProducer != nil {
			c.dlqProducer.Flush(5000)
			c.dlqProducer.Close()
		}
		if err := c.consumer.Close(); err != nil {
			c.Logger.Error("Failed to close antifraud consumer", zap.Error(err))
		}
		c.Logger.Info("Antifraud consumer closed successfully")
	}
}

func (c *AntifraudConsumerConfig) processMessage(msg *kafka.Message) {
	observability.InboxMessagesReceived.WithLabelValues(c.Topic).Inc()

	evt, err := c.decode(msg)
	if err != nil {
		c.Logger.Error("Failed to decode client event", zap.Error(err))
		c.sendToDLQ(msg, "decode error", err.Error())
		c.commit(msg)
		return
	}
	if err = c.validate.Struct(evt); err != nil {
		c.Logger.Error("Failed to validate client event", zap.Error(err))
		c.sendToDLQ(msg, "validation error", err.Error())
		c.commit(msg)
		return
	}

	eventID := eventIdentity(evt)

	// Fast-path: a completion marker in redis means a previous delivery
	// already applied this event. The durable inbox below stays the
	// authority; cache misses just fall through.
	if c.RedisClient != nil {
		if seen, err := c.RedisClient.Exists(c.Context, c.cacheKey(eventID)).Result(); err == nil && seen > 0 {
			observability.InboxDuplicatesSkipped.WithLabelValues(c.Topic).Inc()
			c.commit(msg)
			return
		}
	}

	// Bounded retry with jittered backoff, then DLQ. An unbounded requeue
	// loop would let one poison message spin forever.
	var handleErr error
	for attempt := 1; attempt <= c.MaxRetryCount; attempt++ {
		handleErr = c.handle(evt, eventID)
		if handleErr == nil || errors.Is(handleErr, errAlreadyProcessed) {
			break
		}
		c.Logger.Warn("Client event handler failed",
			zap.String("event_id", eventID.String()),
			zap.Int("attempt", attempt),
			zap.Error(handleErr))
		if attempt < c.MaxRetryCount {
			select {
			case <-c.Context.Done():
				return
			case <-time.After(backoff.DelayWithJitter(attempt, c.RetryBase, c.RetryMax)):
			}
		}
	}

	switch {
	case errors.Is(handleErr, errAlreadyProcessed):
		observability.InboxDuplicatesSkipped.WithLabelValues(c.Topic).Inc()
		c.commit(msg)
	case handleErr != nil:
		c.sendToDLQ(msg, "handler error", handleErr.Error())
		c.commit(msg)
	default:
		if c.RedisClient != nil {
			if err := c.RedisClient.Set(c.Context, c.cacheKey(eventID), 1, c.InboxCacheTTL).Err(); err != nil {
				c.Logger.Warn("Failed to cache inbox completion", zap.Error(err))
			}
		}
		c.commit(msg)
		c.Logger.Info("Client event processed",
			zap.String("event_id", eventID.String()),
			zap.String("kind", evt.Kind()))
	}
}

// handle claims processing rights and applies the side effect in one
// transaction; a failure rolls back the claim together with the effect.
func (c *AntifraudConsumerConfig) handle(evt events.Event, eventID uuid.UUID) error {
	return c.Runner.WithTransaction(c.Context, func(ctx context.Context, tx pgx.Tx) error {
		claimed, err := c.InboxRepo.TryClaim(ctx, tx, eventID, inboxHandlerName)
		if err != nil {
			return err
		}
		if !claimed {
			return errAlreadyProcessed
		}

		switch e := evt.(type) {
		case *events.ClientBlocked:
			frozen, err := c.AccountRepo.SetFrozenByOwner(ctx, tx, e.ClientID, true)
			if err != nil {
				return err
			}
			c.Logger.Info("Client blocked, accounts frozen",
				zap.String("client_id", e.ClientID.String()),
				zap.Int64("accounts", frozen))
		case *events.ClientUnblocked:
			unfrozen, err := c.AccountRepo.SetFrozenByOwner(ctx, tx, e.ClientID, false)
			if err != nil {
				return err
			}
			c.Logger.Info("Client unblocked, accounts unfrozen",
				zap.String("client_id", e.ClientID.String()),
				zap.Int64("accounts", unfrozen))
		default:
			c.Logger.Warn("Ignoring event kind outside this consumer's scope",
				zap.String("kind", evt.Kind()))
		}

		return c.InboxRepo.MarkProcessed(ctx, tx, eventID, inboxHandlerName, time.Now().UTC())
	})
}

func (c *AntifraudConsumerConfig) decode(msg *kafka.Message) (events.Event, error) {
	kind := ""
	for _, h := range msg.Headers {
		if h.Key == "type" {
			kind = string(h.Value)
		}
	}
	if kind == "" {
		return nil, errors.New("missing type header")
	}
	return events.Decode(kind, msg.Value)
}

// commit acknowledges msg through the commit manager. Handlers finish out of
// order under the semaphore, so the broker commit only advances past the
// contiguous prefix of applied messages.
func (c *AntifraudConsumerConfig) commit(msg *kafka.Message) {
	c.commits.Ack(msg)
}

func (c *AntifraudConsumerConfig) cacheKey(eventID uuid.UUID) string {
	return fmt.Sprintf("inbox:%s:%s", inboxHandlerName, eventID)
}

// sendToDLQ forwards an exhausted or undecodable message to the dead-letter
// topic with failure context.
func (c *AntifraudConsumerConfig) sendToDLQ(msg *kafka.Message, reason, errMsg string) {
	observability.InboxDLQPublished.WithLabelValues(c.Topic, reason).Inc()

	payload := map[string]any{
		"message":       string(msg.Value),
		"failureReason": reason,
		"error":         errMsg,
		"failedAt":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		c.Logger.Error("Failed to marshal DLQ payload", zap.Error(err))
		return
	}

	err = c.dlqProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &c.DLQTopic,
			Partition: kafka.PartitionAny,
		},
		Key:     msg.Key,
		Value:   b,
		Headers: msg.Headers,
	}, nil)
	if err != nil {
		c.Logger.Error("Failed to produce DLQ message", zap.Error(err))
		return
	}
	c.Logger.Info("Sent client event to DLQ", zap.String("reason", reason))
}

// eventIdentity extracts the unique message identity used for deduplication.
func eventIdentity(evt events.Event) uuid.UUID {
	switch e := evt.(type) {
	case *events.ClientBlocked:
		return e.EventID
	case *events.ClientUnblocked:
		return e.EventID
	case *events.AccountOpened:
		return e.EventID
	case *events.MoneyCredited:
		return e.EventID
	case *events.MoneyDebited:
		return e.EventID
	case *events.TransferCompleted:
		return e.EventID
	case *events.InterestAccrued:
		return e.EventID
	default:
		return uuid.Nil
	}
}
