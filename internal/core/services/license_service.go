package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poyrazK/licensegate/internal/core/domain"
	"github.com/poyrazK/licensegate/internal/core/ports"
	"github.com/poyrazK/licensegate/internal/infrastructure/metrics"
)

// maxClaimAttempts bounds how often Validate re-reads a license after losing a claim race.
const maxClaimAttempts = 3

type LicenseService struct {
	repo   ports.LicenseRepository
	events ports.EventPublisher
	audit  *AuditTrail
	logger *slog.Logger
	now    func() time.Time
}

// NewLicenseService wires the service. A nil publisher disables change events.
func NewLicenseService(repo ports.LicenseRepository, events ports.EventPublisher, logger *slog.Logger) *LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &LicenseService{
		repo:   repo,
		events: events,
		logger: logger,
		now:    time.Now,
	}
	s.audit = NewAuditTrail(repo, s.clock)
	return s
}

func (s *LicenseService) clock() time.Time {
	return s.now().UTC()
}

func (s *LicenseService) Create(ctx context.Context, in domain.CreateLicenseInput) (*domain.License, error) {
	if err := domain.ValidateCreateInput(in); err != nil {
		return nil, err
	}

	now := s.clock()
	license := &domain.License{
		Key:       in.Key,
		Owner:     in.Owner,
		MaxGuilds: 1,
		IsActive:  true,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.MaxGuilds != nil {
		license.MaxGuilds = *in.MaxGuilds
	}
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		license.ExpiresAt = &exp
	}

	entry := s.audit.Entry(in.Key, domain.ActionCreate, domain.ActorAdmin, "License created for "+in.Owner)
	if err := s.repo.CreateLicense(ctx, license, entry); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("create license: %w", err)
	}

	s.logger.Info("license created", "key", in.Key, "owner", in.Owner)
	s.publish(ctx, domain.LicenseEvent{Key: in.Key, Action: domain.ActionCreate, Actor: domain.ActorAdmin, At: now})
	return license, nil
}

func (s *LicenseService) Get(ctx context.Context, key string) (*domain.License, error) {
	license, err := s.repo.GetLicense(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	if license == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	return license, nil
}

func (s *LicenseService) List(ctx context.Context) ([]domain.License, error) {
	licenses, err := s.repo.ListLicenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	if licenses == nil {
		licenses = []domain.License{}
	}
	return licenses, nil
}

func (s *LicenseService) Update(ctx context.Context, key string, patch domain.LicensePatch) (*domain.License, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	fields := patch.Fields()
	message := "Fields updated: none"
	if len(fields) > 0 {
		message = "Fields updated: " + strings.Join(fields, ", ")
	}

	now := s.clock()
	entry := s.audit.Entry(key, domain.ActionUpdate, domain.ActorAdmin, message)
	license, err := s.repo.UpdateLicense(ctx, key, &patch, now, entry)
	if err != nil {
		return nil, fmt.Errorf("update license: %w", err)
	}
	if license == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}

	s.logger.Info("license updated", "key", key, "fields", fields)
	s.publish(ctx, domain.LicenseEvent{Key: key, Action: domain.ActionUpdate, Actor: domain.ActorAdmin, At: now})
	return license, nil
}

func (s *LicenseService) Delete(ctx context.Context, key string) error {
	entry := s.audit.Entry(key, domain.ActionDelete, domain.ActorAdmin, "License deleted")
	deleted, err := s.repo.DeleteLicense(ctx, key, entry)
	if err != nil {
		return fmt.Errorf("delete license: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}

	s.logger.Info("license deleted", "key", key)
	s.publish(ctx, domain.LicenseEvent{Key: key, Action: domain.ActionDelete, Actor: domain.ActorAdmin, At: entry.CreatedAt})
	return nil
}

// Validate runs the validation decision path. Business rejections come back as a
// result with Valid=false; only store failures are returned as errors.
func (s *LicenseService) Validate(ctx context.Context, req domain.ValidationRequest) (domain.ValidationResult, error) {
	s.logger.Debug("validating license", "key", req.Key, "guild_id", req.GuildID, "fingerprint", req.Fingerprint)

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		now := s.clock()

		license, err := s.repo.GetLicense(ctx, req.Key)
		if err != nil {
			return domain.ValidationResult{}, fmt.Errorf("validate license: %w", err)
		}
		if license == nil {
			return s.reject(domain.ReasonNotFound, nil), nil
		}

		if !license.IsActive || license.Banned {
			// A banned license can still be flagged active; keep lazy expiry honest for it too.
			if license.IsActive && license.IsExpired(now) {
				if err := s.expire(ctx, req.Key, now); err != nil {
					return domain.ValidationResult{}, err
				}
			}
			return s.reject(domain.ReasonInactive, license.ExpiresAt), nil
		}

		if license.IsExpired(now) {
			if err := s.expire(ctx, req.Key, now); err != nil {
				return domain.ValidationResult{}, err
			}
			return s.reject(domain.ReasonExpired, license.ExpiresAt), nil
		}

		if license.IsBound() && *license.GuildID != req.GuildID {
			return s.reject(domain.ReasonBoundToOther, license.ExpiresAt), nil
		}

		entry := s.audit.Entry(req.Key, domain.ActionValidate, domain.ActorBot, "Validation succeeded for guild "+req.GuildID)
		claimed, err := s.repo.ClaimLicense(ctx, req.Key, req.GuildID, now, entry)
		if err != nil {
			return domain.ValidationResult{}, fmt.Errorf("claim license: %w", err)
		}
		if claimed {
			if !license.IsBound() {
				s.logger.Info("license bound to guild", "key", req.Key, "guild_id", req.GuildID)
				s.publish(ctx, domain.LicenseEvent{Key: req.Key, Action: domain.ActionValidate, Actor: domain.ActorBot, GuildID: req.GuildID, At: now})
			}
			metrics.Validations.WithLabelValues(domain.ReasonValid).Inc()
			return domain.ValidationResult{Valid: true, Reason: domain.ReasonValid, ExpiresAt: license.ExpiresAt}, nil
		}

		// The row changed between read and compare-and-set; decide again on fresh state.
		metrics.ClaimConflicts.Inc()
		s.logger.Debug("guild claim lost a race, re-reading", "key", req.Key, "guild_id", req.GuildID, "attempt", attempt+1)
	}

	return domain.ValidationResult{}, fmt.Errorf("validate license %s: state kept changing after %d attempts", req.Key, maxClaimAttempts)
}

func (s *LicenseService) AuditLog(ctx context.Context, key string) ([]domain.AuditLogEntry, error) {
	logs, err := s.audit.ListFor(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return logs, nil
}

// SweepExpired deactivates every overdue license and returns their keys.
func (s *LicenseService) SweepExpired(ctx context.Context) ([]string, error) {
	now := s.clock()
	keys, err := s.repo.ExpireOverdue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("sweep expired licenses: %w", err)
	}
	for _, key := range keys {
		metrics.LicensesExpired.WithLabelValues("sweep").Inc()
		s.publish(ctx, domain.LicenseEvent{Key: key, Action: domain.ActionExpire, Actor: domain.ActorAdmin, At: now})
	}
	if len(keys) > 0 {
		s.logger.Info("expired licenses deactivated", "count", len(keys))
	}
	return keys, nil
}

// HealthCheck pings the store and, when configured, the event bus.
func (s *LicenseService) HealthCheck(ctx context.Context) map[string]error {
	checks := map[string]error{
		"database": s.repo.Ping(ctx),
	}
	if s.events != nil {
		checks["events"] = s.events.Ping(ctx)
	}
	return checks
}

func (s *LicenseService) expire(ctx context.Context, key string, now time.Time) error {
	flipped, err := s.repo.ExpireLicense(ctx, key, now)
	if err != nil {
		return fmt.Errorf("expire license: %w", err)
	}
	if flipped {
		metrics.LicensesExpired.WithLabelValues("validate").Inc()
		s.logger.Info("license expired", "key", key)
		s.publish(ctx, domain.LicenseEvent{Key: key, Action: domain.ActionExpire, Actor: domain.ActorBot, At: now})
	}
	return nil
}

func (s *LicenseService) reject(reason string, expiresAt *time.Time) domain.ValidationResult {
	metrics.Validations.WithLabelValues(reason).Inc()
	return domain.ValidationResult{Valid: false, Reason: reason, ExpiresAt: expiresAt}
}

func (s *LicenseService) publish(ctx context.Context, event domain.LicenseEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		metrics.EventPublishFailures.Inc()
		s.logger.Warn("failed to publish license event", "key", event.Key, "action", event.Action, "error", err)
	}
}

var _ ports.LicenseService = (*LicenseService)(nil)
