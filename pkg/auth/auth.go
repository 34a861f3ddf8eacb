// Package auth: bridge client tokens.
// HS256 JWTs issued by the bridge operator and checked on every WebSocket
// upgrade. Leaf package with no domain dependencies.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is used when no TTL is configured.
const DefaultTokenTTL = 24 * time.Hour

const issuer = "promptpolish-bridge"

// ErrNoSecret is returned when tokens are requested without a signing secret.
var ErrNoSecret = errors.New("auth: signing secret is empty")

// Claims identifies a bridge client.
type Claims struct {
	// Client is a free-form label, e.g. the browser profile or host name.
	Client string `json:"client,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies bridge tokens with a shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a Tokens. A non-positive ttl uses DefaultTokenTTL.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// ParseTTL reads a TTL in hours. Empty, invalid or non-positive input
// yields DefaultTokenTTL.
func ParseTTL(hours string) time.Duration {
	h, err := strconv.Atoi(hours)
	if err != nil || h <= 0 {
		return DefaultTokenTTL
	}
	return time.Duration(h) * time.Hour
}

// Issue signs a token for subject.
func (t *Tokens) Issue(subject, client string) (string, error) {
	if subject == "" {
		return "", errors.New("auth: subject is required")
	}
	now := t.now()
	claims := &Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its claims.
func (t *Tokens) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, errors.New("auth: token is empty")
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("auth: invalid token claims")
	}
	return claims, nil
}
