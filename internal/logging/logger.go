package logging

import (
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// New builds the process logger: JSON in production, console otherwise.
func New(environment, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if environment == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	return cfg.Build()
}

// Gorm adapts logger for gorm: slow queries (over 100ms) and errors are
// reported, record-not-found is ignored.
func Gorm(logger *zap.Logger) gormlogger.Interface {
	std, err := zap.NewStdLogAt(logger.Named("gorm"), zap.WarnLevel)
	if err != nil {
		std = log.Default()
	}
	return gormlogger.New(std, gormlogger.Config{
		SlowThreshold:             100 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
