package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/edduval373/aisentinel-sub002/internal/auth"
	"github.com/edduval373/aisentinel-sub002/internal/db"
	"github.com/edduval373/aisentinel-sub002/internal/logging"
	"github.com/edduval373/aisentinel-sub002/internal/seeds"
)

func main() {
	_ = godotenv.Load(".env.local")

	file := flag.String("file", "seeds/tenants.yaml", "YAML file of companies, employees and users")
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (default: env DATABASE_URL)")
	dryRun := flag.Bool("dry-run", false, "Parse + validate only; no DB writes")
	flag.Parse()

	logger, err := logging.New("development", "info")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	f, err := seeds.Load(*file)
	if err != nil {
		logger.Fatal("seed file invalid", zap.Error(err))
	}
	if *dryRun {
		logger.Info("dry run complete, no changes made",
			zap.Int("companies", len(f.Companies)),
			zap.Int("users", len(f.Users)))
		return
	}

	conn, err := db.Connect(*dsn, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	if err := auth.Migrate(conn); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}

	if err := seeds.SeedAll(conn, f, logger); err != nil {
		logger.Fatal("seeding failed", zap.Error(err))
	}
}
