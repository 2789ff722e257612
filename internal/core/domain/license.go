// Package domain contains the core business entities for licensegate.
package domain

import (
	"encoding/json"
	"time"
)

// MinLicenseKeyLength is the shortest key accepted at creation.
const MinLicenseKeyLength = 16

// Action identifies what an audit entry records.
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionValidate Action = "validate"
	// ActionExpire is only emitted as a change event; expiry never writes an audit entry.
	ActionExpire Action = "expire"
)

// Actor identifies who triggered an action.
type Actor string

const (
	ActorAdmin Actor = "admin" // Administrator holding a bearer token
	ActorBot   Actor = "bot"   // Tenant-side validation call
)

// Validation reasons returned to callers of Validate.
const (
	ReasonValid        = "Valid"
	ReasonNotFound     = "License not found"
	ReasonInactive     = "License inactive"
	ReasonExpired      = "License expired"
	ReasonBoundToOther = "License bound to another guild"
)

// License is an entitlement bound to at most one guild.
type License struct {
	Key       string     `json:"key"`
	Owner     string     `json:"owner"`
	ExpiresAt *time.Time `json:"expiresAt"`
	MaxGuilds int        `json:"maxGuilds"`
	GuildID   *string    `json:"guildId"`
	IsActive  bool       `json:"isActive"`
	Banned    bool       `json:"banned"`
	Notes     string     `json:"notes"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// IsExpired reports whether the license has an expiry strictly before now.
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// IsBound reports whether a guild has claimed the license.
func (l *License) IsBound() bool {
	return l.GuildID != nil && *l.GuildID != ""
}

// AuditLogEntry is an immutable record of one action against a license.
// LicenseKey is not a foreign key: entries outlive deleted licenses.
type AuditLogEntry struct {
	ID         string    `json:"id"`
	LicenseKey string    `json:"licenseKey"`
	Action     Action    `json:"action"`
	Actor      Actor     `json:"actor"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CreateLicenseInput carries the administrator-supplied fields for a new license.
type CreateLicenseInput struct {
	Key       string     `json:"key" validate:"required,min=16,max=255"`
	Owner     string     `json:"owner" validate:"required,max=255"`
	ExpiresAt *time.Time `json:"expiresAt"`
	MaxGuilds *int       `json:"maxGuilds" validate:"omitempty,min=1"`
	Notes     string     `json:"notes"`
}

// ValidationRequest is sent by a tenant to check and claim a license.
// Fingerprint is accepted for compatibility but plays no part in admission.
type ValidationRequest struct {
	Key         string `json:"key" validate:"required,max=255"`
	GuildID     string `json:"guildId" validate:"required,max=255"`
	Fingerprint string `json:"fingerprint" validate:"max=256"`
}

// UnmarshalJSON also accepts guild_id and machine_fingerprint as sent by older bot
// clients. The camelCase names win when both are present.
func (v *ValidationRequest) UnmarshalJSON(data []byte) error {
	type plain ValidationRequest
	var aux struct {
		plain
		LegacyGuildID     string `json:"guild_id"`
		LegacyFingerprint string `json:"machine_fingerprint"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*v = ValidationRequest(aux.plain)
	if v.GuildID == "" {
		v.GuildID = aux.LegacyGuildID
	}
	if v.Fingerprint == "" {
		v.Fingerprint = aux.LegacyFingerprint
	}
	return nil
}

// ValidationResult is the structured outcome of a validation call.
type ValidationResult struct {
	Valid     bool       `json:"valid"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// LicenseEvent is published after a license change has been committed.
type LicenseEvent struct {
	Key     string    `json:"key"`
	Action  Action    `json:"action"`
	Actor   Actor     `json:"actor"`
	GuildID string    `json:"guildId,omitempty"`
	At      time.Time `json:"at"`
}
