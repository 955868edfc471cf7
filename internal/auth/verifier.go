// Package auth verifies the bearer tokens presented when a session connects.
// Tokens are issued elsewhere; this service only checks them.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// ErrRejected is returned for any token that fails verification.
var ErrRejected = errors.New("token rejected")

// Verifier checks a token and returns the subject it was issued to.
type Verifier interface {
	Verify(token string) (subject string, err error)
}

// Config holds token verification settings.
type Config struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

// New returns a JWT verifier, or AllowAll when no secret is configured.
func New(cfg Config) Verifier {
	if cfg.Secret == "" {
		log.Warn().Msg("AUTH_JWT_SECRET not set, accepting all sessions")
		return AllowAll{}
	}
	return NewJWTVerifier(cfg)
}

// JWTVerifier verifies HS256-signed JWTs.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTVerifier(cfg Config) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	return &JWTVerifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}
}

// Verify parses token and checks signature, expiry and issuer.
func (v *JWTVerifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrRejected)
	}

	claims := &jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return claims.Subject, nil
}

// AllowAll accepts every token. Used when no secret is configured.
type AllowAll struct{}

func (AllowAll) Verify(string) (string, error) {
	return "", nil
}
