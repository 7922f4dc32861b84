package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/edduval373/aisentinel-sub002/internal/logging"
)

var DB *gorm.DB

// Connect opens the postgres pool and stores it in DB.
func Connect(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logging.Gorm(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	// Every request re-reads sessions, so keep enough connections warm.
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	DB = conn
	logger.Info("connected to database")
	return conn, nil
}
