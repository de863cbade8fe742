package cli

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"viralscope/migrations"
)

// NewMigrateCmd creates the 'migrate' command.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|up-one|down|status|version|reset>",
		Short: "Manage the database schema",
		Long: `Manage the database schema with the embedded goose migrations.

  up          Migrate to the latest version
  up-one      Migrate one version up
  down        Roll back one version
  status      Show migration status
  version     Show current version
  reset       Roll back all migrations (drops rules, results, outcomes and usage)`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "up-one", "down", "status", "version", "reset"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return fmt.Errorf("create data directory: %w", err)
				}
			}

			db, err := sql.Open("sqlite", cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			goose.SetBaseFS(migrations.FS)
			if err := goose.SetDialect("sqlite3"); err != nil {
				return fmt.Errorf("set dialect: %w", err)
			}

			switch args[0] {
			case "up":
				err = goose.Up(db, ".")
			case "up-one":
				err = goose.UpByOne(db, ".")
			case "down":
				err = goose.Down(db, ".")
			case "status":
				err = goose.Status(db, ".")
			case "version":
				var v int64
				v, err = goose.GetDBVersion(db)
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "version %d\n", v)
				}
			case "reset":
				err = goose.Reset(db, ".")
			default:
				return fmt.Errorf("unknown migrate command: %s", args[0])
			}
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return nil
		},
	}
}
