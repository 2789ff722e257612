package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/poyrazK/licensegate/internal/core/domain"
	"github.com/poyrazK/licensegate/internal/core/ports"
	"github.com/poyrazK/licensegate/internal/infrastructure/metrics"
)

type contextKey string

const (
	CtxSubject contextKey = "subject"
	CtxClient  contextKey = "client"
)

// AuthMiddleware admits requests carrying a valid admin bearer token.
func AuthMiddleware(tokens ports.TokenAuthority) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or invalid authorization header"})
				return
			}

			subject, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: domain.ErrAuthorization.Error()})
				return
			}

			ctx := context.WithValue(r.Context(), CtxSubject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitOptions controls how the limiter identifies clients and answers rejections.
type RateLimitOptions struct {
	// Delay holds a rejected request before the 429 is written.
	Delay time.Duration
	// TrustProxyHeaders uses the first X-Forwarded-For hop as the client identity.
	TrustProxyHeaders bool
}

// RateLimitMiddleware rejects clients over the limiter threshold with 429.
// All routes wrapped with the same limiter share one window per client.
func RateLimitMiddleware(limiter ports.RateLimiter, route string, opts RateLimitOptions, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIdentity(r, opts.TrustProxyHeaders)
			if limiter.Allow(client) {
				ctx := context.WithValue(r.Context(), CtxClient, client)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			metrics.RateLimited.WithLabelValues(route).Inc()
			logger.Warn("rate limit exceeded", "client", client, "route", route)

			if opts.Delay > 0 {
				timer := time.NewTimer(opts.Delay)
				select {
				case <-timer.C:
				case <-r.Context().Done():
					timer.Stop()
					return
				}
			}
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: domain.ErrRateLimited.Error()})
		})
	}
}

func clientIdentity(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if hop := strings.TrimSpace(first); hop != "" {
				return hop
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Instrument records request latency per route and status code.
func Instrument(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			metrics.RequestDuration.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
		})
	}
}
