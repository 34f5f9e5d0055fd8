package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the service logger based on APP_ENV.
// Production gets structured JSON to stdout; anything else gets a colored
// development console encoder.
func New() (*zap.Logger, error) {
	env := os.Getenv("APP_ENV")
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return config.Build(zap.AddStacktrace(zap.DPanicLevel))
}

// MustNew is New but panics on failure; used from main before logging exists.
func MustNew() *zap.Logger {
	l, err := New()
	if err != nil {
		panic(err)
	}
	return l
}
