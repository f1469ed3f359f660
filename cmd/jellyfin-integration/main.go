package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jellyfin-integration/internal/config"
	"jellyfin-integration/internal/db"
	"jellyfin-integration/internal/logging"
	"jellyfin-integration/internal/version"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "jellyfin-integration",
		Short: "Jellyfin integration service",
		Long: "Connects local accounts to Jellyfin servers and serves item search,\n" +
			"thumbnails and link previews on their behalf.",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnv(envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newConnectionsCmd(),
		newVersionCmd(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadEnv preloads path into the environment; a missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := setupLogger(cfg)

			sqlDB, err := db.Open(cfg.SQLitePath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer sqlDB.Close()
			return db.MigrateUp(sqlDB, logger)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.Get(config.Load().AppID))
		},
	}
}

func setupLogger(cfg config.Config) logging.Logger {
	logger := logging.NewLogger(&logging.Config{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Format:    logFormat(cfg.LogFormat, os.Stdout),
		AddSource: cfg.LogSource,
		File:      cfg.LogFile,
	})
	logging.SetDefault(logger)
	return logger
}

// logFormat picks the coloured dev output for terminals when LOG_FORMAT is unset.
func logFormat(format string, out *os.File) string {
	if format != "" {
		return format
	}
	fd := out.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return "dev"
	}
	return "text"
}
