package api

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/poyrazK/licensegate/internal/core/domain"
	"github.com/poyrazK/licensegate/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIHandler serves the license management and validation API.
type APIHandler struct {
	svc      ports.LicenseService
	tokens   ports.TokenAuthority
	limiter  ports.RateLimiter
	opts     RateLimitOptions
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAPIHandler creates and returns a new APIHandler instance.
func NewAPIHandler(svc ports.LicenseService, tokens ports.TokenAuthority, limiter ports.RateLimiter, opts RateLimitOptions, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{
		svc:      svc,
		tokens:   tokens,
		limiter:  limiter,
		opts:     opts,
		validate: newValidator(),
		logger:   logger,
	}
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	auth := AuthMiddleware(h.tokens)
	limit := func(route string) func(http.Handler) http.Handler {
		return RateLimitMiddleware(h.limiter, route, h.opts, h.logger)
	}
	route := func(pattern, name string, handler http.Handler) {
		mux.Handle(pattern, Instrument(name)(handler))
	}

	// Public Routes
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)
	route("POST /auth/token", "issue_token", limit("issue_token")(http.HandlerFunc(h.IssueToken)))
	route("POST /licenses/validate", "validate", limit("validate")(http.HandlerFunc(h.ValidateLicense)))

	// Admin Routes
	route("POST /licenses", "create", limit("create")(auth(http.HandlerFunc(h.CreateLicense))))
	route("GET /licenses", "list", auth(http.HandlerFunc(h.ListLicenses)))
	route("GET /licenses/{key}", "get", auth(http.HandlerFunc(h.GetLicense)))
	route("PUT /licenses/{key}", "update", auth(http.HandlerFunc(h.UpdateLicense)))
	route("DELETE /licenses/{key}", "delete", auth(http.HandlerFunc(h.DeleteLicense)))
	route("GET /licenses/{key}/logs", "logs", auth(http.HandlerFunc(h.ListAuditLogs)))
}

// Metrics handles Prometheus metrics scraping requests.
func (h *APIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// HealthCheck handles health check requests.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)
	for name, checkErr := range h.svc.HealthCheck(r.Context()) {
		if checkErr != nil {
			status = "DEGRADED"
			details[name] = checkErr.Error()
		} else {
			details[name] = "OK"
		}
	}

	code := http.StatusOK
	if status == "DEGRADED" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"details": details,
	})
}

type tokenRequest struct {
	Secret string `json:"secret"`
}

// IssueToken exchanges the administrator secret for a bearer token. The secret comes
// from a JSON body or the legacy password query parameter.
func (h *APIHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("password")
	if secret == "" {
		var req tokenRequest
		if err := h.decodeJSON(w, r, &req, false); err != nil {
			h.writeError(w, r, err)
			return
		}
		secret = req.Secret
	}

	token, err := h.tokens.Issue(secret)
	if err != nil {
		h.logger.Warn("admin token refused", "client", clientFromContext(r))
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (h *APIHandler) CreateLicense(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateLicenseInput
	if err := h.decodeJSON(w, r, &in, true); err != nil {
		h.writeError(w, r, err)
		return
	}

	license, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, license)
}

func (h *APIHandler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	licenses, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, licenses)
}

func (h *APIHandler) GetLicense(w http.ResponseWriter, r *http.Request) {
	license, err := h.svc.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, license)
}

func (h *APIHandler) UpdateLicense(w http.ResponseWriter, r *http.Request) {
	var patch domain.LicensePatch
	if err := h.decodeJSON(w, r, &patch, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	license, err := h.svc.Update(r.Context(), r.PathValue("key"), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, license)
}

func (h *APIHandler) DeleteLicense(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("key")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ValidateLicense answers 200 with a ValidationResult for every business outcome.
func (h *APIHandler) ValidateLicense(w http.ResponseWriter, r *http.Request) {
	var req domain.ValidationRequest
	if err := h.decodeJSON(w, r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.Validate(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListAuditLogs returns the audit trail of one license, newest first.
func (h *APIHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.svc.AuditLog(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func clientFromContext(r *http.Request) string {
	client, _ := r.Context().Value(CtxClient).(string)
	return client
}
