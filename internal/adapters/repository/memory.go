package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/poyrazK/licensegate/internal/core/domain"
)

// MemoryRepository implements ports.LicenseRepository in process memory.
// A single mutex makes every method atomic, which gives the same guarantees the
// Postgres adapter gets from transactions.
type MemoryRepository struct {
	mu       sync.Mutex
	licenses map[string]*domain.License
	logs     []domain.AuditLogEntry
}

// NewMemoryRepository creates and returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{licenses: make(map[string]*domain.License)}
}

func (r *MemoryRepository) CreateLicense(_ context.Context, license *domain.License, entry *domain.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.licenses[license.Key]; exists {
		return domain.ErrConflict
	}
	r.licenses[license.Key] = cloneLicense(license)
	r.logs = append(r.logs, *entry)
	return nil
}

func (r *MemoryRepository) GetLicense(_ context.Context, key string) (*domain.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.licenses[key]
	if !ok {
		return nil, nil
	}
	return cloneLicense(l), nil
}

func (r *MemoryRepository) ListLicenses(_ context.Context) ([]domain.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	licenses := make([]domain.License, 0, len(r.licenses))
	for _, l := range r.licenses {
		licenses = append(licenses, *cloneLicense(l))
	}
	sort.Slice(licenses, func(i, j int) bool {
		if licenses[i].CreatedAt.Equal(licenses[j].CreatedAt) {
			return licenses[i].Key < licenses[j].Key
		}
		return licenses[i].CreatedAt.Before(licenses[j].CreatedAt)
	})
	return licenses, nil
}

func (r *MemoryRepository) UpdateLicense(_ context.Context, key string, patch *domain.LicensePatch, now time.Time, entry *domain.AuditLogEntry) (*domain.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.licenses[key]
	if !ok {
		return nil, nil
	}
	patch.Apply(l)
	l.UpdatedAt = now
	r.logs = append(r.logs, *entry)
	return cloneLicense(l), nil
}

func (r *MemoryRepository) DeleteLicense(_ context.Context, key string, entry *domain.AuditLogEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.licenses[key]; !ok {
		return false, nil
	}
	delete(r.licenses, key)
	r.logs = append(r.logs, *entry)
	return true, nil
}

func (r *MemoryRepository) ClaimLicense(_ context.Context, key string, guildID string, now time.Time, entry *domain.AuditLogEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.licenses[key]
	if !ok || !l.IsActive || l.Banned || l.IsExpired(now) {
		return false, nil
	}
	if l.IsBound() && *l.GuildID != guildID {
		return false, nil
	}
	g := guildID
	l.GuildID = &g
	l.UpdatedAt = now
	r.logs = append(r.logs, *entry)
	return true, nil
}

func (r *MemoryRepository) ExpireLicense(_ context.Context, key string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.licenses[key]
	if !ok || !l.IsActive || !l.IsExpired(now) {
		return false, nil
	}
	l.IsActive = false
	l.UpdatedAt = now
	return true, nil
}

func (r *MemoryRepository) ExpireOverdue(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var keys []string
	for key, l := range r.licenses {
		if l.IsActive && l.IsExpired(now) {
			l.IsActive = false
			l.UpdatedAt = now
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *MemoryRepository) SaveAuditLog(_ context.Context, entry *domain.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logs = append(r.logs, *entry)
	return nil
}

// GetAuditLogs returns entries newest first. Entries are kept in insertion order,
// so walking backwards breaks created_at ties the same way the seq column does in Postgres.
func (r *MemoryRepository) GetAuditLogs(_ context.Context, key string) ([]domain.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var logs []domain.AuditLogEntry
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].LicenseKey == key {
			logs = append(logs, r.logs[i])
		}
	}
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
	return logs, nil
}

func (r *MemoryRepository) Ping(_ context.Context) error {
	return nil
}

func cloneLicense(l *domain.License) *domain.License {
	c := *l
	if l.ExpiresAt != nil {
		exp := *l.ExpiresAt
		c.ExpiresAt = &exp
	}
	if l.GuildID != nil {
		g := *l.GuildID
		c.GuildID = &g
	}
	return &c
}
