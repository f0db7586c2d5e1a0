/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of tokens issued by the identity service.
const DefaultTokenTTL = 30 * time.Minute

// Issue signs a token with the same payload layout the identity service produces.
// The gateway never issues tokens to clients, it is used by the CLI for local development.
func Issue(secret []byte, claims Claims) (string, error) {
	tc := tokenClaims{UserID: claims.Subject, Email: claims.Email, Roles: claims.Roles}
	if !claims.ExpiresAt.IsZero() {
		tc.ExpiresAt = jwt.NewNumericDate(claims.ExpiresAt)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}
