// internal/auth/gate.go
package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrUnauthenticated is the only failure Verify reports, whatever check failed.
var ErrUnauthenticated = errors.New("unauthenticated")

// SigningKey derives the HMAC key from the configured secret.
func SigningKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Gate verifies bearer tokens. It keeps no session state.
type Gate struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
	parser   *jwt.Parser
}

func NewGate(key []byte, issuer, audience string) *Gate {
	return &Gate{
		key:      key,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation()),
	}
}

// Verify checks signature, issuer, audience and expiry and returns the
// token subject.
func (g *Gate) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := g.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return g.key, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrUnauthenticated
	}

	if !claims.VerifyIssuer(g.issuer, true) || !claims.VerifyAudience(g.audience, true) {
		return "", ErrUnauthenticated
	}
	if claims.ExpiresAt == nil || !g.now().Before(claims.ExpiresAt.Time) {
		return "", ErrUnauthenticated
	}
	return claims.Subject, nil
}

type subjectKey struct{}

// Subject returns the authenticated subject stored by Middleware.
func Subject(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey{}).(string)
	return sub, ok
}

// Middleware rejects requests without a valid bearer token before they reach
// next. Every rejection looks the same to the caller.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := g.Verify(bearerToken(r))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="minilibrary"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, sub)))
	})
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
