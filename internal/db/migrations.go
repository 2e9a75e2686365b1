package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

const (
	// LatestMigrationVersion is the newest schema version this binary
	// knows. A database at a newer version is refused.
	//
	// NOTE: This MUST be updated when a new migration is added.
	LatestMigrationVersion uint = 1
)

// MigrationTarget moves the database to some version. currentDBVersion is
// the version before migrating, maxMigrationVersion the newest one known.
type MigrationTarget func(mig *migrate.Migrate,
	currentDBVersion int, maxMigrationVersion uint) error

var (
	// TargetLatest migrates all the way up.
	TargetLatest = func(mig *migrate.Migrate, _ int, _ uint) error {
		return mig.Up()
	}

	// TargetVersion migrates up or down to the given version.
	TargetVersion = func(version uint) MigrationTarget {
		return func(mig *migrate.Migrate, _ int, _ uint) error {
			return mig.Migrate(version)
		}
	}
)

// ErrMigrationDowngrade is returned when the database is newer than this
// binary.
var ErrMigrationDowngrade = errors.New("database downgrade detected")

type migrateOptions struct {
	latestVersion uint
}

func defaultMigrateOptions() *migrateOptions {
	return &migrateOptions{
		latestVersion: LatestMigrationVersion,
	}
}

// MigrateOpt modifies how migrations are applied.
type MigrateOpt func(*migrateOptions)

// WithLatestVersion overrides the downgrade protection version.
func WithLatestVersion(version uint) MigrateOpt {
	return func(o *migrateOptions) {
		o.latestVersion = version
	}
}

// migrationLogger adapts slog to migrate.Logger.
type migrationLogger struct {
	log *slog.Logger
}

// Printf implements migrate.Logger.
func (m *migrationLogger) Printf(format string, v ...any) {
	m.log.Info(fmt.Sprintf(strings.TrimRight(format, "\n"), v...))
}

// Verbose implements migrate.Logger.
func (m *migrationLogger) Verbose() bool {
	return true
}

// applyMigrations runs the migrations found under path in fsys against the
// driver, up or down to target. Dirty databases and databases newer than
// the latest known version are refused.
func applyMigrations(fsys fs.FS, driver database.Driver, path, dbName string,
	target MigrationTarget, opts *migrateOptions,
	log *slog.Logger) error {

	src, err := httpfs.New(http.FS(fsys), path)
	if err != nil {
		return err
	}

	mig, err := migrate.NewWithInstance("migrations", src, dbName, driver)
	if err != nil {
		return err
	}

	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("unable to determine current migration "+
			"version: %w", err)
	}

	// A dirty version means an earlier migration stopped halfway and
	// needs manual repair.
	if dirty {
		return fmt.Errorf("database is in a dirty state at version "+
			"%v, manual intervention required", version)
	}

	if version > opts.latestVersion {
		return fmt.Errorf("%w: db_version=%v, "+
			"latest_migration_version=%v", ErrMigrationDowngrade,
			version, opts.latestVersion)
	}

	current, _, err := driver.Version()
	if err != nil {
		return fmt.Errorf("unable to get current db version: %w", err)
	}
	log.InfoContext(context.Background(), "Applying migrations",
		"db", dbName, "current_db_version", current,
		"latest_migration_version", opts.latestVersion)

	mig.Log = &migrationLogger{log}

	err = target(mig, current, opts.latestVersion)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	current, _, err = driver.Version()
	if err != nil {
		return fmt.Errorf("unable to get current db version: %w", err)
	}
	log.InfoContext(context.Background(), "Database version after "+
		"migration", "db", dbName, "current_db_version", current)

	return nil
}

// backupSqliteDatabase copies the database next to itself with VACUUM INTO
// and returns the backup path.
func backupSqliteDatabase(srcDB *sql.DB, dbPath string,
	log *slog.Logger) (string, error) {

	if srcDB == nil {
		return "", fmt.Errorf("backup source database is nil")
	}

	backupPath := fmt.Sprintf("%s.%d.backup", dbPath,
		time.Now().UnixNano())

	log.InfoContext(context.Background(), "Creating backup of database "+
		"file", "source", dbPath, "backup", backupPath)

	if _, err := srcDB.Exec("VACUUM INTO ?", backupPath); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", backupPath, err)
	}

	return backupPath, nil
}
