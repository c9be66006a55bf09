package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SanteonNL/kolibri/cmd/kolibri/api"
	"github.com/SanteonNL/kolibri/cmd/kolibri/config"
	"github.com/SanteonNL/kolibri/cmd/kolibri/emitter"
	"github.com/SanteonNL/kolibri/cmd/kolibri/extract"
	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/auth"
	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/choice"
	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/client"
	"github.com/SanteonNL/kolibri/cmd/kolibri/mapping"
	"github.com/SanteonNL/kolibri/cmd/kolibri/sink"
	"github.com/SanteonNL/kolibri/util"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "kolibri",
		Short: "Extracts FHIR resources and flattens them with declarative mapping specs",
	}
	root.AddCommand(extractCmd(), probeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stdout
	})).With().Timestamp().Caller().Logger()
}

func setup(log zerolog.Logger) (*config.Config, *client.Service, error) {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	key, err := auth.LoadPrivateKey(cfg.PrivateKeyFile)
	if err != nil {
		return nil, nil, err
	}

	tokens := auth.NewTokenStore(auth.Config{
		TokenURL:   cfg.TokenURL,
		ClientID:   cfg.ClientID,
		Scope:      cfg.Scope,
		KeyID:      cfg.KeyID,
		JWKSetURL:  cfg.JWKSetURL,
		PrivateKey: key,
	}, log)

	policy := client.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries

	fhirClient := client.NewService(client.Config{
		BaseURL:  cfg.FHIRBaseURL,
		PageSize: cfg.PageSize,
		MaxPages: cfg.MaxPages,
		Policy:   policy,
	}, tokens, log)

	return cfg, fhirClient, nil
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check connectivity to the FHIR server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := newLogger()
			_, fhirClient, err := setup(log)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return fhirClient.Probe(ctx)
		},
	}
}

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Run a full extraction for every configured resource type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			startTime := time.Now()
			log := newLogger()

			cfg, fhirClient, err := setup(log)
			if err != nil {
				return err
			}

			specDir, err := util.AbsolutePath(cfg.SpecDir)
			if err != nil {
				return err
			}
			registry := mapping.NewRegistry(log)
			if err := registry.LoadDirectory(specDir); err != nil {
				return err
			}

			engine := mapping.NewEngine(choice.NewService(log), log)
			em := emitter.NewEmitter(cfg.LossThresholdPct, log)

			var recordSink emitter.Sink
			if cfg.DatabaseURL != "" {
				db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
				if err != nil {
					return fmt.Errorf("failed to connect to the database: %w", err)
				}
				defer db.Close()

				pg := sink.NewPostgresSink(db, log)
				if err := pg.EnsureSchema(cmd.Context()); err != nil {
					return err
				}
				recordSink = pg
			} else {
				log.Warn().Msg("No DATABASE_URL configured, records are counted but not stored")
			}

			extractor := extract.NewService(fhirClient, registry, engine, em, recordSink, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ops := api.NewOpsRouter(extractor, log)
			opsServer := &http.Server{Addr: cfg.ListenAddr, Handler: ops.SetupRoutes()}
			go func() {
				if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("Ops server stopped")
				}
			}()
			defer opsServer.Shutdown(context.Background())

			if err := extractor.Run(ctx, cfg.ResourceTypes, map[string]url.Values{}); err != nil {
				return err
			}

			log.Info().Dur("duration", time.Since(startTime)).Msg("Extraction complete")
			return nil
		},
	}
}
