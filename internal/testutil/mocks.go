package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/poyrazK/licensegate/internal/core/domain"
	"github.com/poyrazK/licensegate/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockPublisher implements ports.EventPublisher and records what it was given.
type MockPublisher struct {
	mu          sync.Mutex
	Events      []domain.LicenseEvent
	FailPublish bool
	FailPing    bool
}

func (m *MockPublisher) Publish(_ context.Context, event domain.LicenseEvent) error {
	if m.FailPublish {
		return errors.New("publish failed")
	}
	m.mu.Lock()
	m.Events = append(m.Events, event)
	m.mu.Unlock()
	return nil
}

func (m *MockPublisher) Ping(_ context.Context) error {
	if m.FailPing {
		return errors.New("redis unreachable")
	}
	return nil
}

// Published returns a copy of the recorded events.
func (m *MockPublisher) Published() []domain.LicenseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LicenseEvent(nil), m.Events...)
}

// StaticLimiter implements ports.RateLimiter with a fixed answer and counts calls.
type StaticLimiter struct {
	mu      sync.Mutex
	Deny    bool
	Clients []string
}

func (l *StaticLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Clients = append(l.Clients, client)
	return !l.Deny
}

// MockService implements ports.LicenseService with testify expectations.
type MockService struct {
	mock.Mock
}

func (m *MockService) Create(ctx context.Context, in domain.CreateLicenseInput) (*domain.License, error) {
	args := m.Called(in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.License), args.Error(1)
}

func (m *MockService) Get(ctx context.Context, key string) (*domain.License, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.License), args.Error(1)
}

func (m *MockService) List(ctx context.Context) ([]domain.License, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.License), args.Error(1)
}

func (m *MockService) Update(ctx context.Context, key string, patch domain.LicensePatch) (*domain.License, error) {
	args := m.Called(key, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.License), args.Error(1)
}

func (m *MockService) Delete(ctx context.Context, key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockService) Validate(ctx context.Context, req domain.ValidationRequest) (domain.ValidationResult, error) {
	args := m.Called(req)
	return args.Get(0).(domain.ValidationResult), args.Error(1)
}

func (m *MockService) AuditLog(ctx context.Context, key string) ([]domain.AuditLogEntry, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditLogEntry), args.Error(1)
}

func (m *MockService) HealthCheck(ctx context.Context) map[string]error {
	args := m.Called()
	return args.Get(0).(map[string]error)
}

var (
	_ ports.EventPublisher = (*MockPublisher)(nil)
	_ ports.RateLimiter    = (*StaticLimiter)(nil)
	_ ports.LicenseService = (*MockService)(nil)
)
