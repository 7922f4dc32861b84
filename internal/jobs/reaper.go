package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SessionReaper deletes sessions that expired at or before now.
type SessionReaper interface {
	ReapExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenPurger deletes spent and expired email verification tokens.
type TokenPurger interface {
	PurgeVerificationTokens(ctx context.Context, now time.Time) (int64, error)
}

// LimiterPruner drops per-user rate limit state that has gone idle.
type LimiterPruner interface {
	PruneIdle(now time.Time) int
}

// Result is the outcome of one reaper pass.
type Result struct {
	Sessions int64
	Tokens   int64
	Limiters int
}

// Reaper periodically removes dead rows. Verification never depends on it:
// an expired session is rejected whether or not it has been reaped.
type Reaper struct {
	sessions SessionReaper
	tokens   TokenPurger
	limiters LimiterPruner
	logger   *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewReaper creates a reaper. tokens may be nil.
func NewReaper(sessions SessionReaper, tokens TokenPurger, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		sessions: sessions,
		tokens:   tokens,
		logger:   logger.Named("reaper"),
		now:      time.Now,
	}
}

// WithLimiters makes every pass also prune idle rate limiters.
func (r *Reaper) WithLimiters(l LimiterPruner) *Reaper {
	r.limiters = l
	return r
}

// RunOnce performs a single pass. Limiters are pruned first since they need
// no database. Sessions are reaped before tokens are purged, so a purge
// failure still reports the reaped session count.
func (r *Reaper) RunOnce(ctx context.Context) (Result, error) {
	now := r.now().UTC()
	var res Result

	if r.limiters != nil {
		res.Limiters = r.limiters.PruneIdle(now)
	}

	n, err := r.sessions.ReapExpired(ctx, now)
	if err != nil {
		return res, fmt.Errorf("reap sessions: %w", err)
	}
	res.Sessions = n

	if r.tokens != nil {
		n, err = r.tokens.PurgeVerificationTokens(ctx, now)
		if err != nil {
			return res, fmt.Errorf("purge verification tokens: %w", err)
		}
		res.Tokens = n
	}
	return res, nil
}

// Start schedules RunOnce with a cron spec such as "@every 1h" or
// "0 */6 * * *". Calling Start on a running reaper is a no-op.
func (r *Reaper) Start(ctx context.Context, schedule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		res, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Warn("reaper pass failed", zap.Error(err))
			return
		}
		if res.Sessions > 0 || res.Tokens > 0 || res.Limiters > 0 {
			r.logger.Info("reaper pass",
				zap.Int64("sessions", res.Sessions),
				zap.Int64("tokens", res.Tokens),
				zap.Int("limiters", res.Limiters))
		}
	})
	if err != nil {
		return fmt.Errorf("parse reap schedule %q: %w", schedule, err)
	}

	c.Start()
	r.cron = c
	r.logger.Info("reaper started", zap.String("schedule", schedule))
	return nil
}

// Stop halts scheduling and waits for a running pass to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}
