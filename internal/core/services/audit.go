package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/licensegate/internal/core/domain"
	"github.com/poyrazK/licensegate/internal/core/ports"
)

// AuditTrail builds audit entries and reads them back newest first.
// It exposes no update or delete path.
type AuditTrail struct {
	repo ports.LicenseRepository
	now  func() time.Time
}

func NewAuditTrail(repo ports.LicenseRepository, now func() time.Time) *AuditTrail {
	if now == nil {
		now = time.Now
	}
	return &AuditTrail{repo: repo, now: now}
}

// Entry returns a new, unsaved audit entry stamped with the current time.
func (a *AuditTrail) Entry(key string, action domain.Action, actor domain.Actor, message string) *domain.AuditLogEntry {
	return &domain.AuditLogEntry{
		ID:         uuid.New().String(),
		LicenseKey: key,
		Action:     action,
		Actor:      actor,
		Message:    message,
		CreatedAt:  a.now().UTC(),
	}
}

// Append inserts a standalone entry outside any license mutation. Create, update,
// delete and validate do not use it: their entries are written by the repository in
// the same transaction as the change.
func (a *AuditTrail) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now().UTC()
	}
	return a.repo.SaveAuditLog(ctx, entry)
}

// ListFor returns every entry recorded for key, newest first. Unknown keys yield an empty slice.
func (a *AuditTrail) ListFor(ctx context.Context, key string) ([]domain.AuditLogEntry, error) {
	logs, err := a.repo.GetAuditLogs(ctx, key)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []domain.AuditLogEntry{}
	}
	return logs, nil
}
