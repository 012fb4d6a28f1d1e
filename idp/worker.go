package idp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// WorkerTokenSource acquires and caches a client-credentials token for the
// playground's own administrative calls against the provider's management
// API, as opposed to the tokens the user walks a flow to obtain. Tokens are
// refreshed automatically when they expire.
type WorkerTokenSource struct {
	source oauth2.TokenSource
	logger *slog.Logger
}

// NewWorkerTokenSource builds a token source from worker app credentials.
// ctx scopes the lifetime of the underlying refreshing source.
func NewWorkerTokenSource(ctx context.Context, clientID, clientSecret, tokenURL string, scopes []string, httpClient *http.Client, logger *slog.Logger) (*WorkerTokenSource, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("idp: worker client id and secret are required")
	}
	if tokenURL == "" {
		return nil, errors.New("idp: worker token URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	return &WorkerTokenSource{
		// ReuseTokenSource caches the token until expiry and refreshes
		// on demand.
		source: cc.TokenSource(ctx),
		logger: logger,
	}, nil
}

// Token returns a valid worker token, fetching or refreshing as needed.
func (w *WorkerTokenSource) Token() (*oauth2.Token, error) {
	token, err := w.source.Token()
	if err != nil {
		return nil, fmt.Errorf("acquiring worker token: %w", err)
	}
	return token, nil
}

// WaitReady polls until a worker token can be acquired, with a bounded
// number of attempts at a fixed interval. Used at startup when the
// provider may not be reachable yet.
func (w *WorkerTokenSource) WaitReady(ctx context.Context, attempts int, interval time.Duration) error {
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	var lastErr error
	for i := 0; i < attempts; i++ {
		if _, lastErr = w.source.Token(); lastErr == nil {
			return nil
		}

		w.logger.Debug("worker token not ready",
			"attempt", i+1,
			"attempts", attempts,
			"error", lastErr)

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("worker token unavailable after %d attempts: %w", attempts, lastErr)
}
