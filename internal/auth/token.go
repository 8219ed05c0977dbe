// Package auth issues and verifies the HS256 bearer tokens that identify
// accounts. Account management itself lives elsewhere; a token only has to
// carry the account id, email and role.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bistro/internal/config"
	"bistro/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload. The subject is the account id.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens with a shared secret.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a token manager from the auth configuration.
func NewManager(cfg config.AuthConfig) *Manager {
	return &Manager{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}
}

// Issue signs a token for account that expires after the configured TTL.
func (m *Manager) Issue(account model.Account) (string, time.Time, error) {
	if account.ID == "" {
		return "", time.Time{}, fmt.Errorf("account id is required")
	}
	role := account.Role
	if role == "" {
		role = model.RoleUser
	}

	now := m.now().UTC()
	exp := now.Add(m.ttl)
	claims := Claims{
		Email: strings.ToLower(account.Email),
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies raw and returns the account it identifies.
func (m *Manager) Parse(raw string) (*model.Account, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := claims.Role
	if role != model.RoleAdmin {
		role = model.RoleUser
	}
	return &model.Account{ID: claims.Subject, Email: claims.Email, Role: role}, nil
}
