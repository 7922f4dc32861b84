package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/edduval373/aisentinel-sub002/internal/roles"
	"github.com/edduval373/aisentinel-sub002/internal/session"
	"github.com/edduval373/aisentinel-sub002/internal/utils"
)

// SessionVerifier checks a presented token. *session.Verifier implements it.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*session.Session, error)
}

// UnauthorizedResponse is the 401 body. RequiresAuth lets clients redirect
// to login without guessing why the call failed.
type UnauthorizedResponse struct {
	Message      string `json:"message"`
	RequiresAuth bool   `json:"requiresAuth"`
}

// ForbiddenResponse is the 403 body returned by RequireRole.
type ForbiddenResponse struct {
	Error             string      `json:"error"`
	CurrentRole       string      `json:"currentRole"`
	RequiredRole      string      `json:"requiredRole"`
	CurrentRoleLevel  roles.Level `json:"currentRoleLevel"`
	RequiredRoleLevel roles.Level `json:"requiredRoleLevel"`
}

func unauthorized(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusUnauthorized, UnauthorizedResponse{Message: message, RequiresAuth: true})
}

// authenticate runs the extractor and the verifier for r.
func authenticate(v SessionVerifier, r *http.Request) (*session.Session, error) {
	token, ok := session.ExtractToken(r)
	if !ok {
		return nil, session.ErrNoCredential
	}
	return v.Verify(r.Context(), token)
}

// RequireAuth rejects requests without a valid session and attaches the
// caller's identity otherwise.
func RequireAuth(v SessionVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := authenticate(v, r)
			switch {
			case err == nil:
			case errors.Is(err, session.ErrNoCredential), errors.Is(err, session.ErrInvalidSession):
				unauthorized(w, "Authentication required")
				return
			default:
				logger.Error("session verification failed", zap.Error(err), zap.String("path", r.URL.Path))
				WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Authentication service unavailable"})
				return
			}

			ctx := utils.WithIdentity(r.Context(), sess.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches an identity when the request carries a valid session
// and otherwise lets the request through anonymously.
func OptionalAuth(v SessionVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := authenticate(v, r)
			if err != nil {
				if !errors.Is(err, session.ErrNoCredential) && !errors.Is(err, session.ErrInvalidSession) {
					logger.Warn("optional session verification failed", zap.Error(err), zap.String("path", r.URL.Path))
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := utils.WithIdentity(r.Context(), sess.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after RequireAuth. It compares the caller's effective
// role level with min.
func RequireRole(min roles.Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := utils.GetIdentityFromContext(r.Context())
			if !ok {
				unauthorized(w, "Authentication required")
				return
			}

			current := id.EffectiveRoleLevel()
			if !roles.HasAccessLevel(current, min) {
				WriteJSON(w, http.StatusForbidden, ForbiddenResponse{
					Error:             "Insufficient role",
					CurrentRole:       current.Label(),
					RequiredRole:      min.Label(),
					CurrentRoleLevel:  current,
					RequiredRoleLevel: min,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware echoes allow-listed origins and answers preflight requests.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods",
					"GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers",
					"Content-Type, Authorization, "+session.HeaderName)
			}

			w.Header().Set("Access-Control-Expose-Headers", "Retry-After, X-Request-Id")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
