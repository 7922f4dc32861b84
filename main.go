package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/edduval373/aisentinel-sub002/internal/auth"
	"github.com/edduval373/aisentinel-sub002/internal/config"
	"github.com/edduval373/aisentinel-sub002/internal/db"
	"github.com/edduval373/aisentinel-sub002/internal/jobs"
	"github.com/edduval373/aisentinel-sub002/internal/logging"
	"github.com/edduval373/aisentinel-sub002/internal/middleware"
	"github.com/edduval373/aisentinel-sub002/internal/session"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config: ", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	auth.Init(logger)

	gormStore := session.NewGormStore(conn, cfg.HashSessionTokens)
	var sessions session.Store = gormStore
	if cfg.RedisURL != "" {
		cache, err := session.NewRedisBackend(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		defer cache.Close()
		if err := cache.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, session cache disabled", zap.Error(err))
		} else {
			sessions = session.NewCachedStore(gormStore, cache, cfg.SessionCacheTTL, logger)
			logger.Info("session cache enabled", zap.Duration("ttl", cfg.SessionCacheTTL))
		}
	}

	directory := auth.NewGormDirectory(conn, gormStore)
	bridge := auth.NewEmailBridge(directory, auth.LogMailer{Log: logger.Named("mailer")}, auth.BridgeConfig{
		SessionTTL:      cfg.SessionTTL,
		VerificationTTL: cfg.VerificationTTL,
		VerifyURLBase:   cfg.VerifyURLBase,
		DeveloperEmails: cfg.DeveloperEmails,
		DevLoginEnabled: cfg.DevLoginEnabled,
	}, logger)

	limiter := middleware.NewDemoLimiter(cfg.DemoRateLimit, cfg.DemoBurst)

	authHandler := &auth.Handler{
		Bridge:        bridge,
		Dir:           directory,
		Sessions:      sessions,
		Verifier:      session.NewVerifier(sessions),
		Limiter:       limiter,
		SecureCookies: cfg.SecureCookies(),
		Log:           logger.Named("auth"),
	}

	reaper := jobs.NewReaper(sessions, directory, logger).WithLimiters(limiter)
	if err := reaper.Start(ctx, cfg.ReapSchedule); err != nil {
		logger.Fatal("reaper start failed", zap.Error(err))
	}
	defer reaper.Stop()

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Get("/", RootHandler)

	r.Mount("/auth", authHandler.SetupRoutes())

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Environment))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}
