package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oauthlab/playground"
	"github.com/oauthlab/playground/idp"
	"github.com/oauthlab/playground/instrumentation"
	"github.com/oauthlab/playground/internal/config"
	"github.com/oauthlab/playground/internal/logging"
	"github.com/oauthlab/playground/security"
	"github.com/oauthlab/playground/server"
	"github.com/oauthlab/playground/storage"
	"github.com/oauthlab/playground/storage/bolt"
	"github.com/oauthlab/playground/storage/memory"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the playground HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    "playground",
		ServiceVersion: version,
		Enabled:        cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("setting up instrumentation: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = inst.Shutdown(shutdownCtx)
	}()

	backend, err := openBackend(cfg, inst)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	var encryptor *security.Encryptor
	if cfg.EncryptionPassphrase != "" {
		encryptor, err = security.NewEncryptorFromPassphrase(cfg.EncryptionPassphrase, "playground-credentials")
		if err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		logger.Info("credential encryption at rest enabled")
	}

	auditor := security.NewAuditor(logger, cfg.AuditLogging)

	orch, err := playground.New(ctx, playground.Config{
		Storage:         backend,
		SaveDebounce:    cfg.SaveDebounce,
		Encryptor:       encryptor,
		Auditor:         auditor,
		Logger:          logger,
		Instrumentation: inst,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}
	defer func() { _ = orch.Close() }()

	if cfg.EnvironmentID != "" {
		if _, err := orch.SetGlobalEnvironmentID(ctx, cfg.EnvironmentID); err != nil {
			logger.Warn("failed to seed global environment id", "error", err)
		}
	}

	srv, err := server.New(orch, auditor, server.Config{
		ListenAddr:          cfg.ListenAddr,
		BaseURL:             cfg.BaseURL,
		IssuerTemplate:      cfg.IssuerTemplate,
		AllowInsecureIssuer: cfg.AllowInsecureIssuer,
		RateLimit:           cfg.RateLimit,
		RateBurst:           cfg.RateBurst,
		TrustProxy:          cfg.TrustProxy,
		Logger:              logger,
		Instrumentation:     inst,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return srv.Run(ctx) })

	if cfg.WorkerClientID != "" {
		g.Go(func() error { return waitForWorkerToken(ctx, cfg, logger) })
	}

	return g.Wait()
}

// openBackend picks the storage backend: a bbolt file when a path is
// configured, in-memory otherwise.
func openBackend(cfg *config.Config, inst *instrumentation.Instrumentation) (storage.Store, error) {
	if cfg.StoragePath == "" {
		s := memory.New()
		s.SetInstrumentation(inst)
		return s, nil
	}

	s, err := bolt.Open(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("opening storage at %q: %w", cfg.StoragePath, err)
	}
	s.SetInstrumentation(inst)
	return s, nil
}

// waitForWorkerToken verifies the configured worker app can authenticate.
// Startup is not blocked on it; a dead worker app only degrades the
// administrative endpoints.
func waitForWorkerToken(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	issuer := cfg.IssuerTemplate
	if strings.Contains(issuer, "%s") {
		issuer = fmt.Sprintf(issuer, cfg.EnvironmentID)
	}

	src, err := idp.NewWorkerTokenSource(ctx, cfg.WorkerClientID, cfg.WorkerClientSecret,
		strings.TrimSuffix(issuer, "/")+"/token", nil, nil, logger)
	if err != nil {
		logger.Warn("worker token source misconfigured", "error", err)
		return nil
	}

	if err := src.WaitReady(ctx, 6, 10*time.Second); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("worker app never became ready", "error", err)
		return nil
	}

	logger.Info("worker app token acquired")
	return nil
}
