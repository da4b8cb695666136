package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "triage/cmd/triage-service/docs"
	"triage/internal/config"
	"triage/internal/logger"
	"triage/pkg/bootstrap"
	"triage/pkg/logging"
	"triage/pkg/migrations"
)

var (
	configFile string
	ownerID    string
	batchSize  int
)

// @title           Triage Service API
// @version         1.0
// @description     Batch AI analysis of inbound messages with rate limiting, circuit breaking and heuristic fallbacks

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization

// @schemes   http https

func main() {
	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Message triage service",
		Long:  "Scores, summarizes and extracts action items from queued messages in bounded batches",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")

	rootCmd.AddCommand(serveCmd(), processCmd(), migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads .env, the config file and the logger.
func setup() (*config.Config, logger.Logger, error) {
	earlyLog := logging.NewEarlyLog()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		earlyLog.Warn("Failed to load .env file: %v", err)
	}

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return nil, nil, err
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the process request consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting Triage Service")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx, true); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				return err
			}
			defer func() {
				if err := app.Shutdown(context.Background()); err != nil {
					log.ErrorwCtx(ctx, "Shutdown failed", "error", err)
				}
			}()

			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
				return err
			}
			log.InfowCtx(ctx, "Service shutdown complete")
			return nil
		},
	}
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run one batch for an owner and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ownerID == "" {
				return fmt.Errorf("--owner is required")
			}
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx, false); err != nil {
				return err
			}
			defer app.Shutdown(context.Background())

			return app.ProcessOnce(logging.WithOwnerID(ctx, ownerID), ownerID, batchSize)
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "Owner whose pending messages are processed")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Messages per batch (0 uses the configured default)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := context.Background()
			db, err := bootstrap.NewDatabaseConnector(cfg, log).InitPostgreSQL(ctx)
			if err != nil {
				return err
			}
			if db == nil {
				return fmt.Errorf("database.postgres.host is not configured")
			}
			defer db.Close()

			if err := migrations.MigratePostgres(db.DB); err != nil {
				return err
			}
			version, dirty, err := migrations.PostgresVersion(db.DB)
			if err != nil {
				return err
			}
			log.InfowCtx(ctx, "Migrations applied", "version", version, "dirty", dirty)
			return nil
		},
	}
}
