package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// TokenBytes is the entropy of every opaque token handed to clients. Hex
// encoding makes them 64 characters long.
const TokenBytes = 32

// GenerateToken returns a cryptographically random hex token.
func GenerateToken() (string, error) {
	raw := make([]byte, TokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

func GenerateUUID() string {
	return uuid.New().String()
}
