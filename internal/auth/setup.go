package auth

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/edduval373/aisentinel-sub002/internal/db"
	"github.com/edduval373/aisentinel-sub002/internal/session"
)

// Migrate creates the app_auth schema and its tables.
func Migrate(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "app_auth"); err != nil {
		return err
	}
	return d.AutoMigrate(&Company{}, &Employee{}, &User{}, &EmailVerificationToken{}, &session.Session{})
}

func Init(logger *zap.Logger) {
	if err := Migrate(db.DB); err != nil {
		logger.Fatal("Failed to migrate app_auth", zap.Error(err))
	}
}
