package utils

import (
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeEmail trims and case-folds an address so lookups are stable.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// EmailDomain returns the part after the last "@", or "" when there is none.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return NormalizeEmail(email[at+1:])
}

// ValidEmail is a shape check only; ownership is proven by verification.
func ValidEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n") && strings.Contains(email[at+1:], ".")
}
