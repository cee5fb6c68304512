// Package auth mints and verifies the JWTs used by the session layer.
// Access tokens are signed with the service-wide secret; refresh tokens are
// signed with the subject's own secret from the key vault.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the token payload: subject = username plus expiry. ID is random
// so two tokens minted in the same second still differ.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
}

// GenerateToken signs a token of the given type for subject.
func GenerateToken(subject, tokenType string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		TokenType: tokenType,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// ParseToken verifies signature, expiry and type and returns the subject.
// Expired tokens yield common.ErrorExpired, everything else
// common.ErrorAccessDenied.
func ParseToken(tokenString, tokenType string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrorExpired
		}
		return "", fmt.Errorf("%w: %v", common.ErrorAccessDenied, err)
	}

	if !token.Valid || claims.TokenType != tokenType || claims.Subject == "" {
		return "", common.ErrorAccessDenied
	}
	return claims.Subject, nil
}

// UnverifiedSubject reads the subject without checking the signature. It is
// only used to pick the key a refresh token must then be verified against.
func UnverifiedSubject(tokenString string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return "", fmt.Errorf("%w: malformed token", common.ErrorInvalidArgument)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", common.ErrorInvalidArgument)
	}
	return claims.Subject, nil
}
