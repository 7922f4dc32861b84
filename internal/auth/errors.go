package auth

import "errors"

// Email verification failures. These are the only auth errors whose reason
// is shown to the caller.
var (
	ErrTokenNotFound    = errors.New("verification token not found")
	ErrTokenAlreadyUsed = errors.New("verification token already used")
	ErrTokenExpired     = errors.New("verification token expired")
)

var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrUserNotFound     = errors.New("user not found")
	ErrDevLoginDisabled = errors.New("development login is disabled")
)
