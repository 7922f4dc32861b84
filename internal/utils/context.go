package utils

import (
	"context"

	"github.com/edduval373/aisentinel-sub002/internal/roles"
)

type contextKey string

const ContextIdentityKey contextKey = "identity"

// Identity is what the authentication middleware attaches to a request once
// its session token has been verified.
type Identity struct {
	SessionToken  string
	UserID        string
	Email         string
	CompanyID     *uint
	RoleLevel     roles.Level
	IsDeveloper   bool
	TestRoleLevel *roles.Level
}

// EffectiveRoleLevel is the level authorization decisions are made against.
func (id Identity) EffectiveRoleLevel() roles.Level {
	return roles.EffectiveLevel(id.RoleLevel, id.IsDeveloper, id.TestRoleLevel)
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ContextIdentityKey, id)
}

func GetIdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ContextIdentityKey).(Identity)
	return id, ok
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := GetIdentityFromContext(ctx)
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}
