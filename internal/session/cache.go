package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edduval373/aisentinel-sub002/internal/roles"
)

// ErrCacheMiss is returned by a CacheBackend when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// CacheBackend is the slice of redis that CachedStore needs.
type CacheBackend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SAdd(ctx context.Context, key, member string, ttl time.Duration) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// RedisBackend adapts a go-redis client to CacheBackend.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects using a redis:// URL.
func NewRedisBackend(url string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisBackend{client: redis.NewClient(opts)}, nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBackend) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.client.Del(ctx, keys...).Err()
}

func (b *RedisBackend) SAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	pipe := b.client.TxPipeline()
	pipe.SAdd(ctx, key, member)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	return b.client.SMembers(ctx, key).Result()
}

// CachedStore puts a short-lived read-through cache in front of a Store.
// An entry never outlives its session's ExpiresAt, and every mutation that
// could change what Verify returns buries and drops the entry first.
type CachedStore struct {
	inner Store
	cache CacheBackend
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger
}

func NewCachedStore(inner Store, cache CacheBackend, ttl time.Duration, log *zap.Logger) *CachedStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedStore{inner: inner, cache: cache, ttl: ttl, now: time.Now, log: log}
}

type cachedSession struct {
	ID             uint         `json:"id"`
	UserID         string       `json:"userId"`
	Email          string       `json:"email"`
	CompanyID      *uint        `json:"companyId"`
	RoleLevel      roles.Level  `json:"roleLevel"`
	IsDeveloper    bool         `json:"isDeveloper"`
	TestRoleLevel  *roles.Level `json:"testRoleLevel"`
	ExpiresAt      time.Time    `json:"expiresAt"`
	LastAccessedAt time.Time    `json:"lastAccessedAt"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Cache keys never contain the raw token.
func cacheKey(token string) string { return "session:" + HashToken(token) }

func userKey(userID string) string { return "session:user:" + userID }

// tombstone marks key as recently invalidated. A fill racing with the
// invalidation sees it and drops what it wrote.
func tombstone(key string) string { return key + ":gone" }

func (c *CachedStore) bury(ctx context.Context, key string) error {
	if c.ttl <= 0 {
		return nil
	}
	if err := c.cache.Set(ctx, tombstone(key), []byte("1"), c.ttl); err != nil {
		return fmt.Errorf("write cache tombstone: %w", err)
	}
	return nil
}

// buried reports whether any of keys was invalidated within the last ttl.
// Read errors count as buried.
func (c *CachedStore) buried(ctx context.Context, keys ...string) bool {
	for _, k := range keys {
		_, err := c.cache.Get(ctx, tombstone(k))
		if !errors.Is(err, ErrCacheMiss) {
			return true
		}
	}
	return false
}

func (c *CachedStore) Put(ctx context.Context, s *Session) error {
	return c.inner.Put(ctx, s)
}

func (c *CachedStore) GetByToken(ctx context.Context, token string) (*Session, error) {
	key := cacheKey(token)
	data, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var entry cachedSession
		if jsonErr := json.Unmarshal(data, &entry); jsonErr == nil && c.now().Before(entry.ExpiresAt) {
			return entry.session(token), nil
		}
	case !errors.Is(err, ErrCacheMiss):
		c.log.Warn("session cache read failed", zap.Error(err))
	}

	sess, err := c.inner.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, key, sess)
	return sess, nil
}

func (c *CachedStore) fill(ctx context.Context, key string, sess *Session) {
	ttl := sess.ExpiresAt.Sub(c.now())
	if c.ttl < ttl {
		ttl = c.ttl
	}
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(cachedSession{
		ID:             sess.ID,
		UserID:         sess.UserID,
		Email:          sess.Email,
		CompanyID:      sess.CompanyID,
		RoleLevel:      sess.RoleLevel,
		IsDeveloper:    sess.IsDeveloper,
		TestRoleLevel:  sess.TestRoleLevel,
		ExpiresAt:      sess.ExpiresAt,
		LastAccessedAt: sess.LastAccessedAt,
		CreatedAt:      sess.CreatedAt,
	})
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, ttl); err != nil {
		c.log.Warn("session cache write failed", zap.Error(err))
		return
	}
	if err := c.cache.SAdd(ctx, userKey(sess.UserID), key, c.ttl); err != nil {
		// Without the index entry DeleteByUser could miss this key.
		_ = c.cache.Del(ctx, key)
		c.log.Warn("session cache index failed", zap.Error(err))
		return
	}
	// sess may have been read before a concurrent Delete, DeleteByUser or
	// SetTestRole. Those bury their keys first, so checking after the write
	// catches every such interleaving.
	if c.buried(ctx, key, userKey(sess.UserID)) {
		_ = c.cache.Del(ctx, key)
	}
}

func (c *CachedStore) Delete(ctx context.Context, token string) error {
	key := cacheKey(token)
	if err := c.bury(ctx, key); err != nil {
		return err
	}
	if err := c.cache.Del(ctx, key); err != nil {
		return fmt.Errorf("invalidate cached session: %w", err)
	}
	if err := c.inner.Delete(ctx, token); err != nil {
		return err
	}
	_ = c.cache.Del(ctx, key)
	return nil
}

// Touch writes through. A row that vanished underneath a cached entry, for
// example deleted by another instance, drops the entry.
func (c *CachedStore) Touch(ctx context.Context, token string, at time.Time) error {
	err := c.inner.Touch(ctx, token, at)
	if errors.Is(err, ErrNotFound) {
		_ = c.cache.Del(ctx, cacheKey(token))
	}
	return err
}

func (c *CachedStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	if err := c.bury(ctx, userKey(userID)); err != nil {
		return 0, err
	}
	if err := c.dropUser(ctx, userID); err != nil {
		return 0, err
	}
	n, err := c.inner.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	_ = c.dropUser(ctx, userID)
	return n, nil
}

func (c *CachedStore) dropUser(ctx context.Context, userID string) error {
	members, err := c.cache.SMembers(ctx, userKey(userID))
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		return fmt.Errorf("list cached sessions: %w", err)
	}
	if err := c.cache.Del(ctx, append(members, userKey(userID))...); err != nil {
		return fmt.Errorf("invalidate cached sessions: %w", err)
	}
	return nil
}

func (c *CachedStore) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	return c.inner.ReapExpired(ctx, now)
}

func (c *CachedStore) SetTestRole(ctx context.Context, token string, level *roles.Level) error {
	key := cacheKey(token)
	if err := c.bury(ctx, key); err != nil {
		return err
	}
	if err := c.cache.Del(ctx, key); err != nil {
		return fmt.Errorf("invalidate cached session: %w", err)
	}
	if err := c.inner.SetTestRole(ctx, token, level); err != nil {
		return err
	}
	_ = c.cache.Del(ctx, key)
	return nil
}

func (e cachedSession) session(token string) *Session {
	return &Session{
		ID:             e.ID,
		SessionToken:   token,
		UserID:         e.UserID,
		Email:          e.Email,
		CompanyID:      e.CompanyID,
		RoleLevel:      e.RoleLevel,
		IsDeveloper:    e.IsDeveloper,
		TestRoleLevel:  e.TestRoleLevel,
		ExpiresAt:      e.ExpiresAt,
		LastAccessedAt: e.LastAccessedAt,
		CreatedAt:      e.CreatedAt,
	}
}
