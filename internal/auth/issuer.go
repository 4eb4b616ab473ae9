// internal/auth/issuer.go
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Credential is the single account allowed to log in. PasswordHash is an
// encoded argon2id hash as produced by HashPassword.
type Credential struct {
	Username     string
	PasswordHash string
}

// Issuer mints tokens for the configured account.
type Issuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	username string
	password passwordHash
	now      func() time.Time
}

// NewIssuer fails when the credential's hash cannot be decoded.
func NewIssuer(key []byte, issuer, audience string, cred Credential, ttl time.Duration) (*Issuer, error) {
	hash, err := parsePasswordHash(cred.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("password hash for %q: %w", cred.Username, err)
	}
	return &Issuer{
		key:      key,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		username: cred.Username,
		password: hash,
		now:      time.Now,
	}, nil
}

// TTL is how long issued tokens stay valid.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Login checks the account and returns a signed token.
func (i *Issuer) Login(username, password string) (string, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(i.username)) == 1
	passOK := i.password.matches(password)
	if !userOK || !passOK {
		return "", ErrInvalidCredentials
	}

	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		Issuer:    i.issuer,
		Audience:  jwt.ClaimStrings{i.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}
