package auth

import (
	"context"
	"time"

	"github.com/edduval373/aisentinel-sub002/internal/session"
)

// Directory is the user, tenant and verification-token storage behind the
// email bridge.
type Directory interface {
	// InTx runs fn in a single transaction. If fn returns an error nothing
	// it wrote is kept.
	InTx(ctx context.Context, fn func(tx DirectoryTx) error) error

	CreateVerificationToken(ctx context.Context, t *EmailVerificationToken) error
	// PurgeVerificationTokens deletes used tokens and tokens expired at now.
	PurgeVerificationTokens(ctx context.Context, now time.Time) (int64, error)

	GetUser(ctx context.Context, id string) (*User, error)
	GetProfile(ctx context.Context, id string) (*Profile, error)
}

// DirectoryTx is the view of a Directory inside InTx.
type DirectoryTx interface {
	// LockVerificationToken loads the token row and holds it until the
	// transaction ends. Returns ErrTokenNotFound when absent.
	LockVerificationToken(ctx context.Context, token string) (*EmailVerificationToken, error)
	// MarkTokenUsed flips is_used only if it is still false. Losing that
	// race returns ErrTokenAlreadyUsed.
	MarkTokenUsed(ctx context.Context, id uint, at time.Time) error

	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error

	// FindCompanyByDomain returns nil without error when no tenant claims domain.
	FindCompanyByDomain(ctx context.Context, domain string) (*Company, error)
	// FindEmployee returns nil without error when the address is not provisioned.
	FindEmployee(ctx context.Context, companyID uint, email string) (*Employee, error)

	CreateSession(ctx context.Context, s *session.Session) error
}
