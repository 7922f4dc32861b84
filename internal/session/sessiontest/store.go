// Package sessiontest provides an in-memory session.Store for tests.
package sessiontest

import (
	"context"
	"sync"
	"time"

	"github.com/edduval373/aisentinel-sub002/internal/roles"
	"github.com/edduval373/aisentinel-sub002/internal/session"
)

// Store is a goroutine-safe in-memory session.Store. Set Err to make every
// call fail, or TouchErr to fail only Touch.
type Store struct {
	mu       sync.Mutex
	sessions map[string]session.Session
	nextID   uint

	Err      error
	TouchErr error
	Touches  int
}

func NewStore() *Store {
	return &Store{sessions: map[string]session.Session{}}
}

func (s *Store) Put(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.nextID++
	sess.ID = s.nextID
	s.sessions[sess.SessionToken] = *sess
	return nil
}

func (s *Store) GetByToken(_ context.Context, token string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	sess, ok := s.sessions[token]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.sessions, token)
	return nil
}

func (s *Store) Touch(_ context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.TouchErr != nil {
		return s.TouchErr
	}
	sess, ok := s.sessions[token]
	if !ok {
		return session.ErrNotFound
	}
	sess.LastAccessedAt = at
	s.sessions[token] = sess
	s.Touches++
	return nil
}

func (s *Store) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for token, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

func (s *Store) ReapExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

func (s *Store) SetTestRole(_ context.Context, token string, level *roles.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	sess, ok := s.sessions[token]
	if !ok {
		return session.ErrNotFound
	}
	if level != nil {
		l := *level
		sess.TestRoleLevel = &l
	} else {
		sess.TestRoleLevel = nil
	}
	s.sessions[token] = sess
	return nil
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Seed stores a session for userID expiring at expiresAt and returns it.
func (s *Store) Seed(token, userID string, level roles.Level, expiresAt time.Time) *session.Session {
	sess := &session.Session{
		SessionToken:   token,
		UserID:         userID,
		Email:          userID + "@example.com",
		RoleLevel:      level,
		ExpiresAt:      expiresAt,
		LastAccessedAt: expiresAt.Add(-time.Hour),
	}
	_ = s.Put(context.Background(), sess)
	return sess
}
