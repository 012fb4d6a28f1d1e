// Package server exposes the playground over HTTP: a JSON API for the
// orchestrator's state machine, proxy endpoints for the identity provider
// calls a flow walkthrough performs, and the route surface that mirrors
// orchestrator state into URLs.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/oauthlab/playground"
	"github.com/oauthlab/playground/idp/discovery"
	"github.com/oauthlab/playground/security"
)

// Server wires the orchestrator, the provider client, and the HTTP surface
// together.
type Server struct {
	orch      *playground.Orchestrator
	discovery *discovery.Client
	cfg       Config
	logger    *slog.Logger

	auditor     *security.Auditor
	rateLimiter *security.RateLimiter

	router chi.Router
}

// New creates a server around an orchestrator.
func New(orch *playground.Orchestrator, auditor *security.Auditor, cfg Config) (*Server, error) {
	if orch == nil {
		return nil, errors.New("server: orchestrator is required")
	}
	cfg = cfg.withDefaults()

	var discoveryOpts []discovery.Option
	if cfg.AllowInsecureIssuer {
		discoveryOpts = append(discoveryOpts, discovery.WithAllowInsecure())
	}

	s := &Server{
		orch:      orch,
		discovery: discovery.NewClient(cfg.HTTPClient, cfg.DiscoveryTTL, cfg.Logger, discoveryOpts...),
		cfg:       cfg,
		logger:    cfg.Logger,
		auditor:   auditor,
	}

	if cfg.RateLimit > 0 {
		s.rateLimiter = security.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	}

	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(security.RequestIDMiddleware)
	r.Use(security.HeadersMiddleware(s.cfg.BaseURL))
	r.Use(s.logMiddleware)
	r.Use(s.metricsMiddleware)
	if s.rateLimiter != nil {
		r.Use(s.rateLimitMiddleware)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/spec", s.handleSelectSpec)
		r.Post("/flow", s.handleSelectFlow)
		r.Post("/step", s.handleStep)
		r.Post("/reset", s.handleReset)

		r.Get("/credentials", s.handleGetCredentials)
		r.Put("/credentials", s.handlePutCredentials)
		r.Put("/credentials/shared", s.handlePutSharedCredentials)
		r.Put("/environment", s.handlePutEnvironment)
		r.Put("/features", s.handlePutFeatures)

		r.Get("/export", s.handleExport)

		r.Get("/discovery", s.handleDiscovery)
		r.Post("/authorize-url", s.handleAuthorizeURL)
		r.Post("/token/exchange", s.handleTokenExchange)
		r.Post("/token/client-credentials", s.handleClientCredentials)
		r.Post("/token/refresh", s.handleTokenRefresh)
		r.Post("/device/start", s.handleDeviceStart)
		r.Post("/device/poll", s.handleDevicePoll)
		r.Post("/introspect", s.handleIntrospect)
		r.Post("/userinfo", s.handleUserInfo)
		r.Post("/inspect", s.handleInspect)
		r.Post("/verify", s.handleVerifyIDToken)
	})

	// The flow walkthrough surface: visiting a route adopts it into
	// state. Mounted under the orchestrator's configured prefix.
	prefix := "/" + s.orch.RoutePrefix()
	r.Get(prefix+"/{flowType}/{step}", s.handleRoute)
	r.Get(prefix+"/{flowType}", s.handleRoute)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.router,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", "addr", s.cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down http server")
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		s.orch.Flush(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
