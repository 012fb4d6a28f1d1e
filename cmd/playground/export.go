package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/oauthlab/playground"
	"github.com/oauthlab/playground/export"
	"github.com/oauthlab/playground/idp"
	"github.com/oauthlab/playground/idp/discovery"
	"github.com/oauthlab/playground/internal/config"
	"github.com/oauthlab/playground/internal/logging"
	"github.com/oauthlab/playground/security"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the configured flows as a request collection",
	Long: `Export renders the stored credentials and the flows legal under the
current spec version into a Postman-style collection. Endpoints are taken
from the provider's discovery document, so the environment id must be
configured and the provider reachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context())
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write the collection to a file instead of stdout")
}

func runExport(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Environment, "warn")

	backend, err := openBackend(cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	var encryptor *security.Encryptor
	if cfg.EncryptionPassphrase != "" {
		if encryptor, err = security.NewEncryptorFromPassphrase(cfg.EncryptionPassphrase, "playground-credentials"); err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
	}

	orch, err := playground.New(ctx, playground.Config{
		Storage:   backend,
		Encryptor: encryptor,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = orch.Close() }()

	state := orch.State()
	envID := state.Credentials.EnvironmentID
	if envID == "" {
		envID = cfg.EnvironmentID
	}
	if envID == "" {
		return fmt.Errorf("no environment id configured; set PLAYGROUND_ENVIRONMENT_ID or store credentials first")
	}

	var opts []discovery.Option
	if cfg.AllowInsecureIssuer {
		opts = append(opts, discovery.WithAllowInsecure())
	}
	disc := discovery.NewClient(nil, time.Hour, logger, opts...)

	issuer := cfg.IssuerTemplate
	if strings.Contains(issuer, "%s") {
		issuer = fmt.Sprintf(issuer, envID)
	}
	doc, err := disc.Discover(ctx, issuer)
	if err != nil {
		return fmt.Errorf("discovering provider endpoints: %w", err)
	}

	creds := state.Credentials
	creds.EnvironmentID = envID
	collection, err := export.Generate(state.SpecVersion, creds, idp.EndpointsFromDiscovery(doc))
	if err != nil {
		return err
	}
	data, err := export.Render(collection)
	if err != nil {
		return err
	}

	if exportOutput == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
		return fmt.Errorf("writing collection: %w", err)
	}
	fmt.Printf("collection written to %s\n", exportOutput)
	return nil
}
