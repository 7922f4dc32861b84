package session

import "errors"

var (
	// ErrNoCredential means the request carried no session token at all.
	ErrNoCredential = errors.New("no session credential")

	// ErrInvalidSession covers both unknown and expired tokens. The two are
	// deliberately indistinguishable to callers.
	ErrInvalidSession = errors.New("invalid session")

	// ErrNotFound is returned by stores; the verifier folds it into
	// ErrInvalidSession.
	ErrNotFound = errors.New("session not found")
)
