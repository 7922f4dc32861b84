package session

import (
	"net/http"
	"strings"
)

const (
	// HeaderName is the custom header used by clients that keep the token in
	// local storage.
	HeaderName = "X-Session-Token"
	// CookieName is the browser session cookie.
	CookieName = "sessionToken"
)

// ExtractToken returns the candidate session token of r. Sources are tried in
// a fixed order and the first non-blank one wins:
//
//  1. Authorization: Bearer <token>
//  2. X-Session-Token: <token>
//  3. Cookie sessionToken=<token>
//
// Sources are never merged or compared with each other.
func ExtractToken(r *http.Request) (string, bool) {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token, true
	}
	if token := strings.TrimSpace(r.Header.Get(HeaderName)); token != "" {
		return token, true
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		if token := strings.TrimSpace(cookie.Value); token != "" {
			return token, true
		}
	}
	return "", false
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
