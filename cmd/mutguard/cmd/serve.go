package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/solatis/mutguard/internal/core/api"
	"github.com/solatis/mutguard/internal/core/audit"
	"github.com/solatis/mutguard/internal/core/auth"
	"github.com/solatis/mutguard/internal/core/db"
	"github.com/solatis/mutguard/internal/core/logging"
	"github.com/solatis/mutguard/internal/core/server"
	"github.com/solatis/mutguard/internal/guard"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC guard service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	var sinks api.SinkFactory
	if cfg.Database.URL != "" {
		database, err := openMigrated(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer database.Close()

		store, err := audit.NewStore(database)
		if err != nil {
			return fmt.Errorf("failed to create history store: %w", err)
		}
		sinks = func(name string) guard.HistorySink {
			return audit.NewSink(ctx, store, name)
		}
	} else {
		logger.Info("no database configured, history is kept in memory only")
	}

	registry, err := api.NewRegistry(cfg, logging.Component(logger, "registry"), sinks)
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	service, err := api.NewGuardService(registry)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	authenticator, err := auth.NewAuthenticator(cfg.APIKeys)
	if err != nil {
		return fmt.Errorf("failed to load API keys: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(&cfg.Server, service, authenticator, logging.Component(logger, "server"))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting mutguard",
		zap.String("version", Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))
	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		return grpcServer.Shutdown(context.Background())
	}
}

// openMigrated opens the database and refuses to continue while migrations
// are pending.
func openMigrated(ctx context.Context, url string) (*sqlx.DB, error) {
	database, err := db.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	status, err := db.MigrateStatus(ctx, database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, m := range status {
		if !m.Applied {
			database.Close()
			return nil, fmt.Errorf("migration %s not applied - run 'mutguard migrate up' first", m.ID)
		}
	}
	return database, nil
}
