package security

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/poyrazK/licensegate/internal/core/domain"
	"github.com/poyrazK/licensegate/internal/core/ports"
)

// DefaultTokenTTL is the lifetime of an admin token when none is configured.
const DefaultTokenTTL = 60 * time.Minute

// TokenAuthority implements HS512 admin token issuance and verification.
// The administrator secret doubles as the HMAC signing key.
type TokenAuthority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenAuthority builds an authority for the given administrator secret.
func NewTokenAuthority(adminSecret string, ttl time.Duration) (*TokenAuthority, error) {
	if adminSecret == "" {
		return nil, errors.New("admin secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenAuthority{
		secret: []byte(adminSecret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue returns a signed token if secret matches the administrator secret.
func (a *TokenAuthority) Issue(secret string) (*domain.AdminToken, error) {
	if subtle.ConstantTimeCompare([]byte(secret), a.secret) != 1 {
		return nil, domain.ErrAuthentication
	}

	issuedAt := a.now().UTC()
	expiresAt := issuedAt.Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   domain.AdminSubject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign admin token: %w", err)
	}
	return &domain.AdminToken{Token: signed, ExpiresAt: expiresAt.Truncate(time.Second)}, nil
}

// Verify returns the token subject. Every failure is reported as domain.ErrAuthorization.
func (a *TokenAuthority) Verify(raw string) (string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(a.now))
	if err != nil || !parsed.Valid {
		return "", domain.ErrAuthorization
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != domain.AdminSubject {
		return "", domain.ErrAuthorization
	}
	return claims.Subject, nil
}

var _ ports.TokenAuthority = (*TokenAuthority)(nil)
