// Package auth turns bearer tokens into credentials. Token acquisition and
// refresh happen elsewhere; this package only signs (for tooling and tests)
// and verifies HS256 tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the standard claims plus the caller identity and grants.
type Claims struct {
	jwt.RegisteredClaims
	UserID        string   `json:"uid"`
	OrgID         string   `json:"org,omitempty"`
	Scopes        []string `json:"scopes,omitempty"`
	DocumentTypes []string `json:"doc_types,omitempty"`
}

// GenerateToken signs claims for validityDuration.
func GenerateToken(c Claims, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(validityDuration))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Verify checks the signature and expiry of tokenString and returns the
// credential it grants. Expired tokens yield common.ErrTokenExpired, anything
// else wrong yields common.ErrInvalidToken.
func Verify(tokenString string, secretKey []byte) (*Credential, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return &Credential{
		Token:         tokenString,
		UserID:        claims.UserID,
		OrgID:         claims.OrgID,
		Scopes:        claims.Scopes,
		DocumentTypes: claims.DocumentTypes,
	}, nil
}
