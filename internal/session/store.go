package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"

	"github.com/edduval373/aisentinel-sub002/internal/roles"
)

// Store persists sessions keyed by their opaque token.
type Store interface {
	Put(ctx context.Context, s *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	Touch(ctx context.Context, token string, at time.Time) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	ReapExpired(ctx context.Context, now time.Time) (int64, error)
	SetTestRole(ctx context.Context, token string, level *roles.Level) error
}

// HashToken is the at-rest form of a token when hashing is enabled.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GormStore is the relational Store. With hashTokens set, only a BLAKE2b
// digest of each token is written to the database.
type GormStore struct {
	db         *gorm.DB
	hashTokens bool
}

func NewGormStore(db *gorm.DB, hashTokens bool) *GormStore {
	return &GormStore{db: db, hashTokens: hashTokens}
}

// WithDB returns a copy bound to db, typically an open transaction.
func (s *GormStore) WithDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db, hashTokens: s.hashTokens}
}

func (s *GormStore) key(token string) string {
	if s.hashTokens {
		return HashToken(token)
	}
	return token
}

func (s *GormStore) Put(ctx context.Context, sess *Session) error {
	row := *sess
	row.SessionToken = s.key(sess.SessionToken)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	sess.ID = row.ID
	return nil
}

func (s *GormStore) GetByToken(ctx context.Context, token string) (*Session, error) {
	var row Session
	err := s.db.WithContext(ctx).Where("session_token = ?", s.key(token)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	row.SessionToken = token
	return &row, nil
}

func (s *GormStore) Delete(ctx context.Context, token string) error {
	err := s.db.WithContext(ctx).Where("session_token = ?", s.key(token)).Delete(&Session{}).Error
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *GormStore) Touch(ctx context.Context, token string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&Session{}).
		Where("session_token = ?", s.key(token)).
		Update("last_accessed_at", at)
	if res.Error != nil {
		return fmt.Errorf("touch session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete sessions by user: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("reap sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) SetTestRole(ctx context.Context, token string, level *roles.Level) error {
	var value any
	if level != nil {
		value = int(*level)
	}
	res := s.db.WithContext(ctx).Model(&Session{}).
		Where("session_token = ?", s.key(token)).
		Update("test_role_level", value)
	if res.Error != nil {
		return fmt.Errorf("set test role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
