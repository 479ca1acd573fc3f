package config

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// NewLogger creates a configured Zap logger from Viper settings.
// Reads "logging.level" (debug, info, warn, error; default "info")
// and "logging.format" (json, console; default "json").
func NewLogger(v *viper.Viper) (*zap.Logger, error) {
	level := v.GetString("logging.level")
	format := v.GetString("logging.format")

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q: must be \"json\" or \"console\"", format)
	}

	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}

// ZapLoggerFactory hands out plugin.Logger values, each backed by a
// zap.SugaredLogger named after the requesting component, implementing
// plugin.LoggerFactory.
type ZapLoggerFactory struct {
	base *zap.Logger
}

// NewZapLoggerFactory wraps base for use as a plugin.LoggerFactory.
func NewZapLoggerFactory(base *zap.Logger) *ZapLoggerFactory {
	return &ZapLoggerFactory{base: base}
}

// GetLogger implements plugin.LoggerFactory.
func (f *ZapLoggerFactory) GetLogger(name string) plugin.Logger {
	return &zapLogger{z: f.base.Named(name).Sugar()}
}

// zapLogger adapts a zap.SugaredLogger to plugin.Logger.
type zapLogger struct {
	z *zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, fields ...any) { l.z.Debugw(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...any)  { l.z.Infow(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...any)  { l.z.Warnw(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...any) { l.z.Errorw(msg, fields...) }
