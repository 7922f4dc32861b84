package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/edduval373/aisentinel-sub002/internal/middleware"
	"github.com/edduval373/aisentinel-sub002/internal/roles"
	"github.com/edduval373/aisentinel-sub002/internal/session"
	"github.com/edduval373/aisentinel-sub002/internal/utils"
)

// Handler serves the /auth endpoints.
type Handler struct {
	Bridge        *EmailBridge
	Dir           Directory
	Sessions      session.Store
	Verifier      middleware.SessionVerifier
	Limiter       *middleware.DemoLimiter
	SecureCookies bool
	Log           *zap.Logger
}

const maxBodyBytes = 64 << 10

type UserPayload struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	FirstName   *string     `json:"firstName"`
	LastName    *string     `json:"lastName"`
	CompanyID   *uint       `json:"companyId"`
	CompanyName *string     `json:"companyName"`
	Role        string      `json:"role"`
	RoleLevel   roles.Level `json:"roleLevel"`
}

type MeResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *UserPayload `json:"user,omitempty"`
}

type SessionResponse struct {
	SessionToken string       `json:"sessionToken"`
	ExpiresAt    string       `json:"expiresAt"`
	User         *UserPayload `json:"user"`
}

type tokenErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func newUserPayload(p *Profile, level roles.Level) *UserPayload {
	return &UserPayload{
		ID:          p.ID,
		Email:       p.Email,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		CompanyID:   p.CompanyID,
		CompanyName: p.CompanyName,
		Role:        level.Label(),
		RoleLevel:   level,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.Log.Error(msg, zap.Error(err), zap.String("path", r.URL.Path))
	middleware.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}

// Me reports who the caller is. Anonymous callers get authenticated=false
// rather than an error.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.GetIdentityFromContext(r.Context())
	if !ok {
		middleware.WriteJSON(w, http.StatusOK, MeResponse{Authenticated: false})
		return
	}

	profile, err := h.Dir.GetProfile(r.Context(), id.UserID)
	if errors.Is(err, ErrUserNotFound) {
		middleware.WriteJSON(w, http.StatusOK, MeResponse{Authenticated: false})
		return
	}
	if err != nil {
		h.internalError(w, r, "load profile", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, MeResponse{
		Authenticated: true,
		User:          newUserPayload(profile, id.EffectiveRoleLevel()),
	})
}

func (h *Handler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	_, err := h.Bridge.IssueToken(r.Context(), req.Email)
	if errors.Is(err, ErrInvalidEmail) {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "A valid email is required"})
		return
	}
	if err != nil {
		h.internalError(w, r, "issue verification token", err)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "If the address can receive mail, a sign-in link is on its way",
	})
}

// VerifyEmail accepts the token as ?token= (the emailed link) or in a JSON
// body.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if r.Method == http.MethodPost && token == "" {
		var req struct {
			Token string `json:"token"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		token = req.Token
	}

	sess, err := h.Bridge.VerifyEmailToken(r.Context(), token)
	if err != nil {
		if status, code, ok := tokenErrorStatus(err); ok {
			middleware.WriteJSON(w, status, tokenErrorResponse{Error: err.Error(), Code: code})
			return
		}
		h.internalError(w, r, "verify email token", err)
		return
	}

	h.writeSession(w, r, sess)
}

func tokenErrorStatus(err error) (int, string, bool) {
	switch {
	case errors.Is(err, ErrTokenNotFound):
		return http.StatusNotFound, "TOKEN_NOT_FOUND", true
	case errors.Is(err, ErrTokenAlreadyUsed):
		return http.StatusConflict, "TOKEN_ALREADY_USED", true
	case errors.Is(err, ErrTokenExpired):
		return http.StatusGone, "TOKEN_EXPIRED", true
	}
	return 0, "", false
}

func (h *Handler) DevLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := h.Bridge.DevLogin(r.Context(), req.Email)
	switch {
	case err == nil:
	case errors.Is(err, ErrDevLoginDisabled):
		http.NotFound(w, r)
		return
	case errors.Is(err, ErrInvalidEmail):
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "A valid email is required"})
		return
	default:
		h.internalError(w, r, "dev login", err)
		return
	}

	h.writeSession(w, r, sess)
}

// writeSession sets the session cookie and returns the token for clients
// that send it as a header instead. The session is already committed, so a
// failed profile read degrades the user payload rather than the response.
func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	profile, err := h.Dir.GetProfile(r.Context(), sess.UserID)
	if err != nil {
		h.Log.Warn("load profile after sign-in", zap.Error(err), zap.String("user_id", sess.UserID))
		profile = &Profile{User: User{
			ID:        sess.UserID,
			Email:     sess.Email,
			CompanyID: sess.CompanyID,
			RoleLevel: sess.RoleLevel,
		}}
	}

	http.SetCookie(w, session.NewCookie(sess.SessionToken, h.SecureCookies))
	middleware.WriteJSON(w, http.StatusOK, SessionResponse{
		SessionToken: sess.SessionToken,
		ExpiresAt:    sess.ExpiresAt.UTC().Format(time.RFC3339),
		User:         newUserPayload(profile, sess.RoleLevel),
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, _ := utils.GetIdentityFromContext(r.Context())

	if err := h.Sessions.Delete(r.Context(), id.SessionToken); err != nil {
		h.internalError(w, r, "delete session", err)
		return
	}

	http.SetCookie(w, session.ClearCookie(h.SecureCookies))
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// LogoutAll ends every session of the caller, including this one.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := utils.GetIdentityFromContext(r.Context())

	n, err := h.Sessions.DeleteByUser(r.Context(), id.UserID)
	if err != nil {
		h.internalError(w, r, "delete user sessions", err)
		return
	}

	http.SetCookie(w, session.ClearCookie(h.SecureCookies))
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"message": "Logged out everywhere", "revoked": n})
}

// RevokeUserSessions ends another user's sessions. Outside super-user,
// both users must belong to the same company.
func (h *Handler) RevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	caller, _ := utils.GetIdentityFromContext(r.Context())
	targetID := chi.URLParam(r, "userID")

	target, err := h.Dir.GetUser(r.Context(), targetID)
	if errors.Is(err, ErrUserNotFound) {
		middleware.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	if err != nil {
		h.internalError(w, r, "load user", err)
		return
	}

	if !roles.Can(caller.EffectiveRoleLevel(), roles.CapCrossCompany) && !sameCompany(caller.CompanyID, target.CompanyID) {
		middleware.WriteJSON(w, http.StatusForbidden, map[string]string{"error": "User belongs to another company"})
		return
	}

	n, err := h.Sessions.DeleteByUser(r.Context(), target.ID)
	if err != nil {
		h.internalError(w, r, "revoke user sessions", err)
		return
	}

	h.Log.Info("sessions revoked",
		zap.String("by", caller.UserID),
		zap.String("user_id", target.ID),
		zap.Int64("count", n))
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"revoked": n})
}

func sameCompany(a, b *uint) bool {
	return a != nil && b != nil && *a == *b
}

// Capabilities lists what the caller's effective role allows, so clients
// render against the same policy the server enforces.
func (h *Handler) Capabilities(w http.ResponseWriter, r *http.Request) {
	id, _ := utils.GetIdentityFromContext(r.Context())
	level := id.EffectiveRoleLevel()

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"role":         level.Label(),
		"roleLevel":    level,
		"capabilities": roles.Capabilities(level),
	})
}

// SetTestRole lets a developer act at a lower role level on the current
// session. DELETE restores the real level.
func (h *Handler) SetTestRole(w http.ResponseWriter, r *http.Request) {
	id, _ := utils.GetIdentityFromContext(r.Context())
	if !id.IsDeveloper {
		middleware.WriteJSON(w, http.StatusForbidden, map[string]string{"error": "Developer access required"})
		return
	}

	var level *roles.Level
	if r.Method == http.MethodPost {
		var req struct {
			Role string `json:"role"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		l, ok := roles.ParseLabel(req.Role)
		if !ok {
			middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Unknown role"})
			return
		}
		if l > id.RoleLevel {
			h.Log.Warn("test role above real role refused",
				zap.String("user_id", id.UserID),
				zap.Stringer("real_role", id.RoleLevel),
				zap.Stringer("requested_role", l))
			middleware.WriteJSON(w, http.StatusForbidden, map[string]string{"error": "Test role cannot exceed your real role"})
			return
		}
		level = &l
	}

	if err := h.Sessions.SetTestRole(r.Context(), id.SessionToken, level); err != nil {
		h.internalError(w, r, "set test role", err)
		return
	}

	effective := roles.EffectiveLevel(id.RoleLevel, true, level)
	h.Log.Warn("test role changed",
		zap.String("user_id", id.UserID),
		zap.Stringer("real_role", id.RoleLevel),
		zap.Stringer("effective_role", effective))

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"role":          effective.Label(),
		"roleLevel":     effective,
		"realRole":      id.RoleLevel.Label(),
		"realRoleLevel": id.RoleLevel,
	})
}
