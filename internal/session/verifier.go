package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Verifier is the single place a presented token is checked. Every endpoint
// that needs an identity goes through it.
type Verifier struct {
	store Store
	now   func() time.Time
}

func NewVerifier(store Store) *Verifier {
	return &Verifier{store: store, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify returns the live session for token and records the access.
// Unknown and expired tokens both yield ErrInvalidSession. Any other error is
// a store failure.
func (v *Verifier) Verify(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoCredential
	}

	sess, err := v.store.GetByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}

	now := v.now()
	if sess.Expired(now) {
		return nil, ErrInvalidSession
	}

	if err := v.store.Touch(ctx, token, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("verify session: %w", err)
	}
	sess.LastAccessedAt = now
	return sess, nil
}
