// Package cli implements the viralctl operator commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"viralscope/internal/config"
	"viralscope/internal/storage"
)

// NewRootCmd creates the viralctl root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "viralctl",
		Short:         "Operate a viralscope deployment",
		Long:          `viralctl manages the rule set, runs rule calibration and issues job tokens for a viralscope database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("db", "", "path to sqlite database (default $DATABASE_PATH or ./data/viralscope.db)")

	root.AddCommand(NewSeedRulesCmd())
	root.AddCommand(NewValidateRulesCmd())
	root.AddCommand(NewJobTokenCmd())
	root.AddCommand(NewMigrateCmd())
	return root
}

// loadConfig reads the environment and applies the --db override.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DatabasePath = db
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*storage.SQLite, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	return store, nil
}

func newLogger(cmd *cobra.Command, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))
}
