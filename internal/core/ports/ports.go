package ports

import (
	"context"
	"time"

	"github.com/poyrazK/licensegate/internal/core/domain"
)

// LicenseRepository persists licenses and their audit trail. Every method that
// takes an audit entry writes it in the same transaction as the license change.
// Lookups return (nil, nil) when the license does not exist.
type LicenseRepository interface {
	CreateLicense(ctx context.Context, license *domain.License, entry *domain.AuditLogEntry) error
	GetLicense(ctx context.Context, key string) (*domain.License, error)
	ListLicenses(ctx context.Context) ([]domain.License, error)
	// UpdateLicense applies patch under a row lock. It returns (nil, nil) for an unknown key.
	UpdateLicense(ctx context.Context, key string, patch *domain.LicensePatch, now time.Time, entry *domain.AuditLogEntry) (*domain.License, error)
	// DeleteLicense reports whether a row was removed.
	DeleteLicense(ctx context.Context, key string, entry *domain.AuditLogEntry) (bool, error)
	// ClaimLicense binds guildID when the license is unbound, or confirms an existing
	// binding to the same guild, as a single compare-and-set. It reports false when the
	// license changed underneath the caller (bound elsewhere, deactivated, expired, removed).
	ClaimLicense(ctx context.Context, key string, guildID string, now time.Time, entry *domain.AuditLogEntry) (bool, error)
	// ExpireLicense flips isActive off when the license has expired before now.
	ExpireLicense(ctx context.Context, key string, now time.Time) (bool, error)
	// ExpireOverdue deactivates every active license whose expiry is before now.
	ExpireOverdue(ctx context.Context, now time.Time) ([]string, error)
	// SaveAuditLog appends an entry that is not tied to a license change.
	SaveAuditLog(ctx context.Context, entry *domain.AuditLogEntry) error
	GetAuditLogs(ctx context.Context, key string) ([]domain.AuditLogEntry, error)
	Ping(ctx context.Context) error
}

type LicenseService interface {
	Create(ctx context.Context, in domain.CreateLicenseInput) (*domain.License, error)
	Get(ctx context.Context, key string) (*domain.License, error)
	List(ctx context.Context) ([]domain.License, error)
	Update(ctx context.Context, key string, patch domain.LicensePatch) (*domain.License, error)
	Delete(ctx context.Context, key string) error
	Validate(ctx context.Context, req domain.ValidationRequest) (domain.ValidationResult, error)
	AuditLog(ctx context.Context, key string) ([]domain.AuditLogEntry, error)
	HealthCheck(ctx context.Context) map[string]error
}

// TokenAuthority issues and verifies administrator bearer tokens.
type TokenAuthority interface {
	Issue(secret string) (*domain.AdminToken, error)
	// Verify returns the token subject or domain.ErrAuthorization for any failure.
	Verify(token string) (string, error)
}

// RateLimiter decides whether a client may make another request.
type RateLimiter interface {
	Allow(client string) bool
}

// EventPublisher fans out committed license changes to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.LicenseEvent) error
	Ping(ctx context.Context) error
}
