package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edduval373/aisentinel-sub002/internal/roles"
	"github.com/edduval373/aisentinel-sub002/internal/utils"
)

func TestDemoRateLimit(t *testing.T) {
	h := DemoRateLimit(NewDemoLimiter(0.01, 2))(echoIdentity)

	demo := &utils.Identity{UserID: "demo-1", RoleLevel: roles.Demo}
	assert.Equal(t, http.StatusOK, serveWithIdentity(h, demo).Code)
	assert.Equal(t, http.StatusOK, serveWithIdentity(h, demo).Code)

	rec := serveWithIdentity(h, demo)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Buckets are per user.
	other := &utils.Identity{UserID: "demo-2", RoleLevel: roles.Demo}
	assert.Equal(t, http.StatusOK, serveWithIdentity(h, other).Code)
}

func TestDemoRateLimitSkipsHigherLevels(t *testing.T) {
	h := DemoRateLimit(NewDemoLimiter(0.01, 1))(echoIdentity)

	user := &utils.Identity{UserID: "u", RoleLevel: roles.User}
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serveWithIdentity(h, user).Code)
	}
	assert.Equal(t, http.StatusNoContent, serveWithIdentity(h, nil).Code)
}

func TestDemoLimiterPruneIdle(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewDemoLimiter(0.5, 2) // refills completely in 4s
	l.now = func() time.Time { return clock }
	h := DemoRateLimit(l)(echoIdentity)

	idle := &utils.Identity{UserID: "idle", RoleLevel: roles.Demo}
	busy := &utils.Identity{UserID: "busy", RoleLevel: roles.Demo}
	serveWithIdentity(h, idle)
	clock = clock.Add(3 * time.Second)
	serveWithIdentity(h, busy)
	require.Equal(t, 2, l.Len())

	assert.Zero(t, l.PruneIdle(clock.Add(time.Second-time.Nanosecond)))
	assert.Equal(t, 1, l.PruneIdle(clock.Add(time.Second)))
	assert.Equal(t, 1, l.Len())

	assert.Equal(t, 1, l.PruneIdle(clock.Add(time.Hour)))
	assert.Zero(t, l.Len())
}

func TestDemoLimiterPruneKeepsThrottledUser(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewDemoLimiter(0.01, 1)
	l.now = func() time.Time { return clock }
	h := DemoRateLimit(l)(echoIdentity)

	demo := &utils.Identity{UserID: "demo-1", RoleLevel: roles.Demo}
	assert.Equal(t, http.StatusOK, serveWithIdentity(h, demo).Code)
	assert.Equal(t, http.StatusTooManyRequests, serveWithIdentity(h, demo).Code)

	// The bucket has not refilled, so pruning must not hand out a fresh one.
	assert.Zero(t, l.PruneIdle(clock.Add(time.Minute)))
	assert.Equal(t, http.StatusTooManyRequests, serveWithIdentity(h, demo).Code)
}
