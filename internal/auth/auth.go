// Package auth issues and verifies the bearer tokens that guard data routes.
package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	hrerrors "github.com/hrload/hrload/internal/errors"
)

// Issuer is the "iss" claim of every token.
const Issuer = "hrload"

// Config holds the single operator credential and token settings.
type Config struct {
	Username string
	Password string
	Secret   string
	TokenTTL time.Duration
}

// Identity is the authenticated caller.
type Identity struct {
	Subject   string
	ExpiresAt time.Time
}

// Authenticator checks credentials and signs/verifies HS256 tokens.
type Authenticator struct {
	config Config
	now    func() time.Time
}

// New creates an Authenticator. Secret, username and password must all be
// set.
func New(cfg Config) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth: secret is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("auth: username is required")
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("auth: password is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	return &Authenticator{config: cfg, now: time.Now}, nil
}

// Login returns a signed access token if username and password match the
// configured credential.
func (a *Authenticator) Login(username, password string) (string, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.config.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.config.Password)) == 1
	if !userOK || !passOK {
		return "", hrerrors.NewUnauthorizedError("bad username or password", nil)
	}

	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.config.TokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.config.Secret))
	if err != nil {
		return "", hrerrors.NewInternalError("failed to sign token", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the caller's identity.
func (a *Authenticator) Verify(token string) (*Identity, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return []byte(a.config.Secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, hrerrors.NewUnauthorizedError("invalid token", err)
	}

	id := &Identity{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// VerifyHeader verifies an "Authorization: Bearer <token>" header value.
func (a *Authenticator) VerifyHeader(header string) (*Identity, error) {
	token, ok := BearerToken(header)
	if !ok {
		return nil, hrerrors.NewUnauthorizedError("missing bearer token", nil)
	}
	return a.Verify(token)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
