package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poyrazK/licensegate/internal/adapters/security"
	"github.com/poyrazK/licensegate/internal/core/domain"
	"github.com/poyrazK/licensegate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	mux     *http.ServeMux
	svc     *testutil.MockService
	limiter *testutil.StaticLimiter
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tokens, err := security.NewTokenAuthority("s3cret", time.Hour)
	require.NoError(t, err)
	tok, err := tokens.Issue("s3cret")
	require.NoError(t, err)

	svc := new(testutil.MockService)
	limiter := &testutil.StaticLimiter{}
	mux := http.NewServeMux()
	NewAPIHandler(svc, tokens, limiter, RateLimitOptions{}, nil).RegisterRoutes(mux)
	return &testServer{mux: mux, svc: svc, limiter: limiter, token: tok.Token}
}

func (s *testServer) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body.Error
}

func TestIssueToken(t *testing.T) {
	s := newTestServer(t)

	rr := s.do("POST", "/auth/token", `{"secret":"s3cret"}`, false)
	require.Equal(t, http.StatusOK, rr.Code)
	var tok domain.AdminToken
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&tok))
	assert.NotEmpty(t, tok.Token)
	assert.True(t, tok.ExpiresAt.After(time.Now()))

	rr = s.do("POST", "/auth/token?password=s3cret", "", false)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do("POST", "/auth/token", `{"secret":"wrong"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do("POST", "/auth/token", `{`, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Len(t, s.limiter.Clients, 4, "token issuance must pass through the rate limiter")
}

func TestCreateLicense(t *testing.T) {
	s := newTestServer(t)
	created := &domain.License{Key: "ABCDEFGHIJKLMNOP", Owner: "Acme", MaxGuilds: 1, IsActive: true}
	s.svc.On("Create", mock.MatchedBy(func(in domain.CreateLicenseInput) bool {
		return in.Key == "ABCDEFGHIJKLMNOP" && in.Owner == "Acme"
	})).Return(created, nil).Once()

	rr := s.do("POST", "/licenses", `{"key":"ABCDEFGHIJKLMNOP","owner":"Acme","maxGuilds":1}`, true)
	require.Equal(t, http.StatusCreated, rr.Code)
	var got domain.License
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "Acme", got.Owner)
	assert.Len(t, s.limiter.Clients, 1)
	s.svc.AssertExpectations(t)
}

func TestCreateLicense_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		authed bool
		want   int
		errMsg string
	}{
		{"no token", `{"key":"ABCDEFGHIJKLMNOP","owner":"Acme"}`, false, http.StatusUnauthorized, ""},
		{"short key", `{"key":"short","owner":"Acme"}`, true, http.StatusBadRequest, "key failed min=16"},
		{"missing owner", `{"key":"ABCDEFGHIJKLMNOP"}`, true, http.StatusBadRequest, "owner is required"},
		{"zero max guilds", `{"key":"ABCDEFGHIJKLMNOP","owner":"Acme","maxGuilds":0}`, true, http.StatusBadRequest, "maxGuilds failed min=1"},
		{"malformed", `{"key":`, true, http.StatusBadRequest, "malformed JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rr := s.do("POST", "/licenses", tt.body, tt.authed)
			assert.Equal(t, tt.want, rr.Code)
			if tt.errMsg != "" {
				assert.Contains(t, errorMessage(t, rr), tt.errMsg)
			}
			s.svc.AssertNotCalled(t, "Create", mock.Anything)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: k", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrConflict, http.StatusConflict},
		{domain.ErrAuthentication, http.StatusUnauthorized},
		{domain.ErrAuthorization, http.StatusUnauthorized},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("%w: bad", domain.ErrInvalidInput), http.StatusBadRequest},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			s := newTestServer(t)
			s.svc.On("Get", "ABCDEFGHIJKLMNOP").Return(nil, tt.err).Once()

			rr := s.do("GET", "/licenses/ABCDEFGHIJKLMNOP", "", true)
			assert.Equal(t, tt.want, rr.Code)
			msg := errorMessage(t, rr)
			if tt.want == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", msg)
			}
		})
	}
}

func TestConflictOnCreate(t *testing.T) {
	s := newTestServer(t)
	s.svc.On("Create", mock.Anything).Return(nil, domain.ErrConflict).Once()

	rr := s.do("POST", "/licenses", `{"key":"ABCDEFGHIJKLMNOP","owner":"Acme"}`, true)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestListAndGet(t *testing.T) {
	s := newTestServer(t)
	s.svc.On("List").Return([]domain.License{{Key: "ABCDEFGHIJKLMNOP"}}, nil).Once()
	s.svc.On("Get", "ABCDEFGHIJKLMNOP").Return(&domain.License{Key: "ABCDEFGHIJKLMNOP", Owner: "Acme"}, nil).Once()

	rr := s.do("GET", "/licenses", "", true)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []domain.License
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	assert.Len(t, list, 1)

	rr = s.do("GET", "/licenses/ABCDEFGHIJKLMNOP", "", true)
	require.Equal(t, http.StatusOK, rr.Code)

	// Admin reads never consult the limiter.
	assert.Empty(t, s.limiter.Clients)
	s.svc.AssertExpectations(t)
}

func TestUpdateLicense_SparsePatch(t *testing.T) {
	s := newTestServer(t)
	s.svc.On("Update", "ABCDEFGHIJKLMNOP", mock.MatchedBy(func(p domain.LicensePatch) bool {
		return p.Notes.Set && *p.Notes.Value == "x" &&
			p.ExpiresAt.Set && p.ExpiresAt.Value == nil &&
			!p.Owner.Set && !p.GuildID.Set && !p.IsActive.Set
	})).Return(&domain.License{Key: "ABCDEFGHIJKLMNOP", Notes: "x"}, nil).Once()

	rr := s.do("PUT", "/licenses/ABCDEFGHIJKLMNOP", `{"notes":"x","expiresAt":null}`, true)
	assert.Equal(t, http.StatusOK, rr.Code)
	s.svc.AssertExpectations(t)
}

func TestDeleteLicense(t *testing.T) {
	s := newTestServer(t)
	s.svc.On("Delete", "ABCDEFGHIJKLMNOP").Return(nil).Once()
	s.svc.On("Delete", "MISSINGMISSINGMI").Return(fmt.Errorf("%w: MISSINGMISSINGMI", domain.ErrNotFound)).Once()

	rr := s.do("DELETE", "/licenses/ABCDEFGHIJKLMNOP", "", true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"deleted"}`, rr.Body.String())

	rr = s.do("DELETE", "/licenses/MISSINGMISSINGMI", "", true)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestValidateLicense(t *testing.T) {
	s := newTestServer(t)
	s.svc.On("Validate", domain.ValidationRequest{Key: "ABCDEFGHIJKLMNOP", GuildID: "g2", Fingerprint: "f"}).
		Return(domain.ValidationResult{Valid: false, Reason: domain.ReasonBoundToOther}, nil).Once()

	rr := s.do("POST", "/licenses/validate", `{"key":"ABCDEFGHIJKLMNOP","guildId":"g2","fingerprint":"f"}`, false)
	require.Equal(t, http.StatusOK, rr.Code, "business rejections still answer 200")
	var res domain.ValidationResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.False(t, res.Valid)
	assert.Equal(t, domain.ReasonBoundToOther, res.Reason)
	assert.Nil(t, res.ExpiresAt)

	rr = s.do("POST", "/licenses/validate", `{"key":"ABCDEFGHIJKLMNOP"}`, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do("POST", "/licenses/validate", `{"key":"ABCDEFGHIJKLMNOP","guildId":"g1","fingerprint":"`+strings.Repeat("f", 257)+`"}`, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	s.svc.AssertExpectations(t)
}

func TestValidateLicense_SnakeCasePayload(t *testing.T) {
	s := newTestServer(t)
	s.svc.On("Validate", domain.ValidationRequest{Key: "ABCDEFGHIJKLMNOP", GuildID: "g1", Fingerprint: "f"}).
		Return(domain.ValidationResult{Valid: true, Reason: domain.ReasonValid}, nil).Once()

	rr := s.do("POST", "/licenses/validate", `{"key":"ABCDEFGHIJKLMNOP","guild_id":"g1","machine_fingerprint":"f"}`, false)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res domain.ValidationResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.True(t, res.Valid)

	rr = s.do("POST", "/licenses/validate", `{"key":"ABCDEFGHIJKLMNOP","guild_id":"g1","machine_fingerprint":"`+strings.Repeat("f", 257)+`"}`, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	s.svc.AssertExpectations(t)
}

func TestValidateLicense_StoreFailure(t *testing.T) {
	s := newTestServer(t)
	s.svc.On("Validate", mock.Anything).Return(domain.ValidationResult{}, errors.New("db down")).Once()

	rr := s.do("POST", "/licenses/validate", `{"key":"ABCDEFGHIJKLMNOP","guildId":"g1"}`, false)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestValidateLicense_RateLimited(t *testing.T) {
	s := newTestServer(t)
	s.limiter.Deny = true

	rr := s.do("POST", "/licenses/validate", `{"key":"ABCDEFGHIJKLMNOP","guildId":"g1"}`, false)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	s.svc.AssertNotCalled(t, "Validate", mock.Anything)
}

func TestListAuditLogs(t *testing.T) {
	s := newTestServer(t)
	s.svc.On("AuditLog", "ABCDEFGHIJKLMNOP").Return([]domain.AuditLogEntry{
		{ID: "2", Action: domain.ActionValidate},
		{ID: "1", Action: domain.ActionCreate},
	}, nil).Once()

	rr := s.do("GET", "/licenses/ABCDEFGHIJKLMNOP/logs", "", true)
	require.Equal(t, http.StatusOK, rr.Code)
	var logs []domain.AuditLogEntry
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&logs))
	require.Len(t, logs, 2)
	assert.Equal(t, domain.ActionValidate, logs[0].Action)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	s.svc.On("HealthCheck").Return(map[string]error{"database": nil}).Once()
	s.svc.On("HealthCheck").Return(map[string]error{"database": nil, "events": errors.New("redis unreachable")}).Once()

	rr := s.do("GET", "/health", "", false)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"UP"`)

	rr = s.do("GET", "/health", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "redis unreachable")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	rr := s.do("GET", "/metrics", "", false)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
