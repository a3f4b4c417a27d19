package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller extracted from a verified token
type Identity struct {
	UserID    string `json:"id"`
	AccountID string `json:"account_id"`
	TeamID    string `json:"team_id"`
	Role      string `json:"role"`
}

// ExtractToken extracts the JWT token from an Authorization header value.
// Supports "Bearer <token>" format.
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("empty authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}

	return token, nil
}

// TokenVerifier verifies HS256 tokens issued by the identity provider.
// This service only verifies; issuing lives elsewhere.
type TokenVerifier struct {
	secretKey []byte
}

// NewTokenVerifier creates a verifier from the shared signing secret
func NewTokenVerifier(secretKey string) (*TokenVerifier, error) {
	if secretKey == "" {
		return nil, errors.New("JWT secret key cannot be empty")
	}
	return &TokenVerifier{secretKey: []byte(secretKey)}, nil
}

// Claims represents the JWT token claims
type Claims struct {
	UserID    string `json:"sub"`
	AccountID string `json:"account_id"`
	TeamID    string `json:"team_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// VerifyToken verifies a token and returns the caller identity
func (v *TokenVerifier) VerifyToken(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return &Identity{
			UserID:    claims.UserID,
			AccountID: claims.AccountID,
			TeamID:    claims.TeamID,
			Role:      claims.Role,
		}, nil
	}

	return nil, errors.New("invalid token")
}
