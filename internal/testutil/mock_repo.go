package testutil

import (
	"context"
	"time"

	"github.com/poyrazK/licensegate/internal/core/domain"
	"github.com/poyrazK/licensegate/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockRepo implements ports.LicenseRepository with testify expectations.
// Context arguments are not recorded.
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) CreateLicense(ctx context.Context, license *domain.License, entry *domain.AuditLogEntry) error {
	args := m.Called(license, entry)
	return args.Error(0)
}

func (m *MockRepo) GetLicense(ctx context.Context, key string) (*domain.License, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.License), args.Error(1)
}

func (m *MockRepo) ListLicenses(ctx context.Context) ([]domain.License, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.License), args.Error(1)
}

func (m *MockRepo) UpdateLicense(ctx context.Context, key string, patch *domain.LicensePatch, now time.Time, entry *domain.AuditLogEntry) (*domain.License, error) {
	args := m.Called(key, patch, now, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.License), args.Error(1)
}

func (m *MockRepo) DeleteLicense(ctx context.Context, key string, entry *domain.AuditLogEntry) (bool, error) {
	args := m.Called(key, entry)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) ClaimLicense(ctx context.Context, key string, guildID string, now time.Time, entry *domain.AuditLogEntry) (bool, error) {
	args := m.Called(key, guildID, now, entry)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) ExpireLicense(ctx context.Context, key string, now time.Time) (bool, error) {
	args := m.Called(key, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) ExpireOverdue(ctx context.Context, now time.Time) ([]string, error) {
	args := m.Called(now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRepo) SaveAuditLog(ctx context.Context, entry *domain.AuditLogEntry) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockRepo) GetAuditLogs(ctx context.Context, key string) ([]domain.AuditLogEntry, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditLogEntry), args.Error(1)
}

func (m *MockRepo) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

var _ ports.LicenseRepository = (*MockRepo)(nil)
