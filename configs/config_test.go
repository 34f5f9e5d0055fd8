package configs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ledgerops/account-service/configs"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_METRICS_ADDR", ":9102")
	t.Setenv("APP_PRIMARY_DB_ADDR", "db_user:db_password@localhost:5432/account_service")
	t.Setenv("APP_KAFKA_BROKERS", "localhost:9092")
	t.Setenv("APP_KAFKA_EVENTS_TOPIC", "account-events")
	t.Setenv("APP_KAFKA_EVENTS_RETENTION", "168h")
	t.Setenv("APP_KAFKA_CLIENT_TOPIC", "client-events")
	t.Setenv("APP_KAFKA_DLQ_TOPIC", "client-events-dlq")
	t.Setenv("APP_KAFKA_CONSUMER_GROUP", "account-service")
	t.Setenv("APP_REDIS_ADDR", "localhost:6379")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := configs.Load(zap.NewNop())
	assert.NoError(t, err)

	assert.Equal(t, ":9102", cfg.MetricsAddr)
	assert.Equal(t, int32(10), cfg.MaxDbCons)
	assert.Equal(t, int32(2), cfg.MinDbCons)
	assert.Equal(t, 4, cfg.KafkaEventsPartitions)
	assert.Equal(t, 50, cfg.OutboxBatchSize)
	assert.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	assert.Equal(t, uint64(3), cfg.TransferMaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryBaseBackoff)
	assert.Equal(t, 5*time.Second, cfg.MaxRetryBackoff)
	assert.Equal(t, 24*time.Hour, cfg.InboxCacheTTL)
	assert.Equal(t, 100, cfg.InterestBatchSize)
	assert.Equal(t, 24*time.Hour, cfg.InterestInterval)
}

func TestLoadHonorsOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_OUTBOX_BATCH_SIZE", "25")
	t.Setenv("APP_TRANSFER_MAX_RETRIES", "5")
	t.Setenv("APP_INTEREST_INTERVAL", "12h")

	cfg, err := configs.Load(zap.NewNop())
	assert.NoError(t, err)
	assert.Equal(t, 25, cfg.OutboxBatchSize)
	assert.Equal(t, uint64(5), cfg.TransferMaxRetries)
	assert.Equal(t, 12*time.Hour, cfg.InterestInterval)
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_TRANSFER_MAX_RETRIES", "50") // above the allowed ceiling

	_, err := configs.Load(zap.NewNop())
	assert.Error(t, err)
}
