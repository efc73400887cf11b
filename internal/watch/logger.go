package watch

import (
	"errors"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the verbosity of logging.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// NewLogger creates a zap logger with the specified log level.
func NewLogger(level LogLevel) *zap.Logger {
	var config zap.Config

	switch level {
	case LogLevelError:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	case LogLevelWarn:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case LogLevelDebug:
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// diagnostics logs recoverable errors and forwards them to the consumer.
type diagnostics struct {
	logger *zap.Logger
	sink   func(error)
}

func (d *diagnostics) report(err error) {
	metricDiagnostics.WithLabelValues(diagnosticType(err)).Inc()
	d.logger.Warn("recoverable watch error", zap.Error(err))
	if d.sink != nil {
		d.sink(err)
	}
}

func diagnosticType(err error) string {
	var (
		regErr    *RegistrationError
		limitErr  *RecursionLimitError
		decodeErr *DecodeError
	)
	switch {
	case errors.As(err, &regErr):
		return "registration"
	case errors.As(err, &limitErr):
		return "recursion_limit"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.Is(err, ErrStaleHandle):
		return "stale_handle"
	}
	return "other"
}
