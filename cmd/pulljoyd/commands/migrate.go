package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/roasbeef/pulljoy/internal/config"
	"github.com/roasbeef/pulljoy/internal/db"
	"github.com/spf13/cobra"
)

// migrateTarget is the schema version to migrate to. Zero means latest.
var migrateTarget uint

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the SQL state store schema",
	Long: `Bring the sqlite or postgres state store schema to the latest
version, or to the version given with --target. Other store types have no
schema.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().UintVar(
		&migrateTarget, "target", 0,
		"Schema version to migrate to (default: latest)",
	)
}

// migrator is implemented by the SQL backends.
type migrator interface {
	ExecuteMigrations(target db.MigrationTarget, log *slog.Logger,
		optFuncs ...db.MigrateOpt) error

	Close() error
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logMgr, err := setupLogging(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer logMgr.Close()

	dbLog := logMgr.SlogLogger(dbSubsystem)
	storeCfg := cfg.StateStoreConfig

	var backend migrator
	switch cfg.StateStoreType {
	case config.StoreSqlite:
		backend, err = db.NewSqliteStore(&db.SqliteConfig{
			DatabaseFileName: storeCfg.SqlitePath,
			SkipMigrations:   true,
		}, dbLog)

	case config.StorePostgres:
		backend, err = db.NewPostgresStore(&db.PostgresConfig{
			DSN:            storeCfg.PostgresDSN,
			SkipMigrations: true,
		}, dbLog)

	default:
		fmt.Printf("State store %q has no schema to migrate\n",
			cfg.StateStoreType)
		return nil
	}
	if err != nil {
		return err
	}
	defer backend.Close()

	var target db.MigrationTarget = db.TargetLatest
	if migrateTarget != 0 {
		target = db.TargetVersion(migrateTarget)
	}

	if err := backend.ExecuteMigrations(target, dbLog); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println("Migrations applied")

	return nil
}
