package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"provision-svc/app"
	"provision-svc/app/logging"
	"provision-svc/app/services"
	"provision-svc/storage/postgres"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "provisiond",
	Short: "Machine provisioning status service",
	Long: `provisiond receives status reports from machines during commissioning,
testing, deployment and disk erasure, records them and advances each
machine's lifecycle state.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("provisiond version %s\nCommit: %s\n", Version, Commit))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(reportCmd)

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	tokenCmd.AddCommand(tokenIssueCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the status endpoint, dispatcher and results API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.Bootstrap(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to bootstrap application: %w", err)
		}
		return application.Run(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(false)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert all migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(true)
	},
}

func runMigrate(down bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := postgres.RunMigrations(cfg.ConnString(), cfg.MigrationDir, down); err != nil {
		return err
	}
	direction := "up"
	if down {
		direction = "down"
	}
	logging.Logger.Info().
		Str("direction", direction).
		Int("schema_version", postgres.SchemaVersion).
		Msg("migrations applied")
	return nil
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage machine tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <node_id>",
	Short: "Issue a status token bound to a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		token, err := services.NewTokenService(cfg.TokenSecret, cfg.TokenExpirationSec).GenerateToken(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func loadConfig() (*app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Init(logging.Config{
		Level:      logging.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
		Output:     os.Stderr,
	})
	return cfg, nil
}
