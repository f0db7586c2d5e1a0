/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package auth verifies HS256-signed bearer tokens issued by the identity service.
// Validation is a pure function of the token, the shared secret and the current time.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token validation errors.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims contains the identity asserted by a validated token.
type Claims struct {
	Subject   string
	Email     string
	Roles     []string
	ExpiresAt time.Time
}

// HasRole reports whether the role is in the claims role set.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// tokenClaims is the payload layout of identity service tokens. "user_id" takes precedence over "sub".
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID interface{} `json:"user_id,omitempty"`
	Email  string      `json:"email,omitempty"`
	Roles  []string    `json:"roles,omitempty"`
}

func (tc *tokenClaims) subject() string {
	switch v := tc.UserID.(type) {
	case nil:
		return tc.Subject
	case string:
		if v != "" {
			return v
		}
		return tc.Subject
	case float64:
		return fmt.Sprint(int64(v))
	default:
		return fmt.Sprint(v)
	}
}

// ValidatorOpts represents options for Validator.
type ValidatorOpts struct {
	// Leeway is a clock skew tolerance applied to time-based claims. Zero by default.
	Leeway time.Duration
}

// Validator validates bearer tokens signed with a shared secret.
type Validator struct {
	secret []byte
	leeway time.Duration
}

// NewValidator creates a new Validator.
func NewValidator(secret []byte) (*Validator, error) {
	return NewValidatorWithOpts(secret, ValidatorOpts{})
}

// NewValidatorWithOpts creates a new Validator with options.
func NewValidatorWithOpts(secret []byte, opts ValidatorOpts) (*Validator, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret cannot be empty")
	}
	return &Validator{secret: secret, leeway: opts.Leeway}, nil
}

// Validate checks the token signature (HS256 only) and its expiration against now.
// A token which expires at or before now fails with ErrTokenExpired.
// Bad signature, malformed payload, absent expiration or subject fail with ErrTokenInvalid.
func (v *Validator) Validate(token string, now time.Time) (*Claims, error) {
	parsed := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, parsed, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	subject := parsed.subject()
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is missing", ErrTokenInvalid)
	}
	return &Claims{
		Subject:   subject,
		Email:     parsed.Email,
		Roles:     parsed.Roles,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}

func (v *Validator) keyFunc(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}

// ParseBearer extracts the token from the Authorization header value.
// The scheme is case-insensitive. ok is false if the header is not a non-empty bearer credential.
func ParseBearer(header string) (token string, ok bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token = strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
