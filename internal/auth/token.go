// Package auth provides authentication primitives for the catalog server:
// opaque token generation for agents, org keys, and browser sessions, plus
// bcrypt password hashing for org accounts.
// Agent tokens and session tokens are looked up by equality in the database,
// so they are stored as issued; only passwords are hashed.
// See internal/middleware/auth.go for the request-time authentication logic
// that uses these primitives.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// TokenLength is the length of the random part of generated tokens in bytes
	TokenLength = 32

	// OrgKeyPrefix marks org registration keys so they are recognizable in
	// logs and support tickets.
	OrgKeyPrefix = "ok"
)

// generateToken returns prefix + URL-safe base64 of TokenLength random bytes.
func generateToken(prefix string) (string, error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// GenerateAgentToken creates a new opaque agent bearer token with the given
// prefix (e.g. "ct_agent_"). The token is shown once at registration and
// stored as-is for lookup.
func GenerateAgentToken(prefix string) (string, error) {
	return generateToken(prefix)
}

// GenerateSessionToken creates a new opaque org session token.
func GenerateSessionToken() (string, error) {
	return generateToken("")
}

// GenerateOrgKey creates the key an org hands to its automated clients so
// they can self-register as agents.
func GenerateOrgKey() (string, error) {
	return generateToken(OrgKeyPrefix + "_")
}

// HashPassword hashes an org password with bcrypt at the given cost.
func HashPassword(password string, cost int) (string, error) {
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashBytes), nil
}

// VerifyPassword checks a password against its stored bcrypt hash.
func VerifyPassword(password, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}

// ExtractBearerToken extracts the token from an Authorization header.
// Expected format: "Bearer ct_agent_abc123xyz..."
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
