package services

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ledgerops/account-service/pkg/kafkautil"
)

// EventBusPublisher pushes one serialized domain event to the message bus and
// reports a confirmed delivery or an error. The outbox publisher marks a
// record processed only after Publish returns nil.
type EventBusPublisher interface {
	Publish(ctx context.Context, key []byte, kind string, payload []byte) error
	Close()
}

// KafkaPublisherConfig holds producer settings for the event bus.
type KafkaPublisherConfig struct {
	Brokers        string
	Topic          string
	NumPartitions  int
	RetentionMs    int64
	FlushTimeoutMs int
}

type KafkaPublisherImpl struct {
	logger   *zap.Logger
	producer *kafka.Producer
	cnf      KafkaPublisherConfig
}

// NewKafkaPublisher creates the events topic and an idempotent producer.
func NewKafkaPublisher(logger *zap.Logger, ctx context.Context, cnf KafkaPublisherConfig) (EventBusPublisher, error) {
	topicConfig := kafkautil.Config{
		BootstrapServers: cnf.Brokers,
		Topics: []kafkautil.TopicConfig{
			{
				Topic:             cnf.Topic,
				NumPartitions:     cnf.NumPartitions,
				ReplicationFactor: 1,
				Config: map[string]string{
					"cleanup.policy": "delete",
					"retention.ms":   fmt.Sprintf("%d", cnf.RetentionMs),
				},
			},
		},
	}
	if err := kafkautil.InitTopics(logger, ctx, topicConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize kafka topics: %w", err)
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cnf.Brokers, // Kafka broker(s)
		"acks":               "all",       // Wait for all replicas
		"enable.idempotence": "true",      // Ensure messages are not sent twice
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	logger.Info("kafka_producer_created", zap.String("brokers", cnf.Brokers), zap.String("topic", cnf.Topic))
	return &KafkaPublisherImpl{
		logger:   logger,
		producer: p,
		cnf:      cnf,
	}, nil
}

// Publish produces one message and waits for its delivery report, so the
// caller knows the broker accepted it before updating the outbox.
func (k *KafkaPublisherImpl) Publish(ctx context.Context, key []byte, kind string, payload []byte) error {
	deliveryChan := make(chan kafka.Event, 1)
	err := k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.cnf.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:     key,
		Value:   payload,
		Headers: []kafka.Header{{Key: "type", Value: []byte(kind)}},
	}, deliveryChan)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-deliveryChan:
		msg, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %T", e)
		}
		if msg.TopicPartition.Error != nil {
			return msg.TopicPartition.Error
		}
		return nil
	}
}

func (k *KafkaPublisherImpl) Close() {
	k.producer.Flush(defaultFlushTimeout(k.cnf.FlushTimeoutMs))
	k.producer.Close()
}

func defaultFlushTimeout(ms int) int {
	if ms > 0 {
		return ms
	}
	return int((5 * time.Second).Milliseconds())
}
