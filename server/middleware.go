package server

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/oauthlab/playground/instrumentation"
	"github.com/oauthlab/playground/security"
)

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", security.GetRequestID(r.Context()))
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Instrumentation == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		status := "ok"
		if rec.status >= 400 {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String(instrumentation.AttrStatus, status),
		)

		m := s.cfg.Instrumentation.Metrics()
		m.HTTPRequestsTotal.Add(r.Context(), 1, attrs)
		m.HTTPRequestDuration.Record(r.Context(), float64(time.Since(start).Milliseconds()), attrs)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := security.ClientIP(r, s.cfg.TrustProxy)
		if !s.rateLimiter.Allow(ip) {
			if s.cfg.Instrumentation != nil {
				s.cfg.Instrumentation.Metrics().RateLimitExceeded.Add(r.Context(), 1)
			}
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:       "rate_limit_exceeded",
				Description: "too many requests, slow down",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
