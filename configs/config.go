package configs

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds application configuration for the account service.
type Config struct {
	MetricsAddr string `mapstructure:"METRICS_ADDR" validate:"required"`

	PrimaryDbAddr string `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	ReadDbAddr    string `mapstructure:"READ_DB_ADDR"`
	MaxDbCons     int32  `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons     int32  `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`

	KafkaBrokers          string        `mapstructure:"KAFKA_BROKERS" validate:"required"`
	KafkaEventsTopic      string        `mapstructure:"KAFKA_EVENTS_TOPIC" validate:"required"`
	KafkaEventsPartitions int           `mapstructure:"KAFKA_EVENTS_PARTITIONS" validate:"min=1"`
	KafkaEventsRetention  time.Duration `mapstructure:"KAFKA_EVENTS_RETENTION" validate:"required"`
	KafkaClientTopic      string        `mapstructure:"KAFKA_CLIENT_TOPIC" validate:"required"`
	KafkaDLQTopic         string        `mapstructure:"KAFKA_DLQ_TOPIC" validate:"required"`
	KafkaConsumerGroup    string        `mapstructure:"KAFKA_CONSUMER_GROUP" validate:"required"`

	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE" validate:"min=1"`
	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL" validate:"required"`
	OutboxPublishRate  float64       `mapstructure:"OUTBOX_PUBLISH_RATE" validate:"min=1"`
	OutboxPublishBurst int           `mapstructure:"OUTBOX_PUBLISH_BURST" validate:"min=1"`

	TransferMaxRetries uint64        `mapstructure:"TRANSFER_MAX_RETRIES" validate:"min=1,max=10"`
	RetryBaseBackoff   time.Duration `mapstructure:"RETRY_BASE_BACKOFF" validate:"required"`
	MaxRetryBackoff    time.Duration `mapstructure:"MAX_RETRY_BACKOFF" validate:"required"`

	ConsumerMaxConcurrent int           `mapstructure:"CONSUMER_MAX_CONCURRENT" validate:"min=1"`
	ConsumerMaxRetryCount int           `mapstructure:"CONSUMER_MAX_RETRY_COUNT" validate:"min=1,max=5"`
	RedisAddr             string        `mapstructure:"REDIS_ADDR" validate:"required"`
	InboxCacheTTL         time.Duration `mapstructure:"INBOX_CACHE_TTL" validate:"required"`

	InterestBatchSize int           `mapstructure:"INTEREST_BATCH_SIZE" validate:"min=1"`
	InterestInterval  time.Duration `mapstructure:"INTEREST_INTERVAL" validate:"required"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("MAX_DB_CONNECTIONS", "10")
	viper.SetDefault("MIN_DB_CONNECTIONS", "2")
	viper.SetDefault("KAFKA_EVENTS_PARTITIONS", "4")
	viper.SetDefault("OUTBOX_BATCH_SIZE", "50")
	viper.SetDefault("OUTBOX_POLL_INTERVAL", "2s")
	viper.SetDefault("OUTBOX_PUBLISH_RATE", "200")
	viper.SetDefault("OUTBOX_PUBLISH_BURST", "50")
	viper.SetDefault("TRANSFER_MAX_RETRIES", "3")
	viper.SetDefault("RETRY_BASE_BACKOFF", "200ms")
	viper.SetDefault("MAX_RETRY_BACKOFF", "5s")
	viper.SetDefault("CONSUMER_MAX_CONCURRENT", "4")
	viper.SetDefault("CONSUMER_MAX_RETRY_COUNT", "3")
	viper.SetDefault("INBOX_CACHE_TTL", "24h")
	viper.SetDefault("INTEREST_BATCH_SIZE", "100")
	viper.SetDefault("INTEREST_INTERVAL", "24h")

	// Optional: read from config.<env>.yaml if it exists
	switch os.Getenv("APP_ENV") {
	case "production":
		viper.SetConfigName("config.prod")
	case "test":
		logger.Warn("running_in_test_mode")
		viper.SetConfigName("config.test")
	default:
		logger.Warn("running_in_development_mode")
		viper.SetConfigName("config.dev")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := parseStructEnv(&cfg); err != nil {
		return nil, err
	}

	// Validate after unmarshal
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, formatConfigErrors(logger, err)
	}
	return &cfg, nil
}

// parseStructEnv binds env vars to struct fields using a mapstructure tag.
func parseStructEnv(cfg interface{}) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if err := viper.BindEnv(tag); err != nil {
			return err
		}
	}
	return viper.Unmarshal(cfg)
}

func formatConfigErrors(logger *zap.Logger, err error) error {
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		for _, fieldErr := range invalid {
			logger.Error("invalid_config_value",
				zap.String("field", fieldErr.Field()),
				zap.String("rule", fieldErr.Tag()))
		}
		return fmt.Errorf("configuration validation failed: %d invalid value(s)", len(invalid))
	}
	return err
}
