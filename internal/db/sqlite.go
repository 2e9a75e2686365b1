package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	sqlite_migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDBPath returns the default location of the SQLite state database.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".pulljoy", "pulljoy.db"), nil
}

// OpenSQLite opens a SQLite database in WAL mode with foreign keys on and a
// busy timeout, creating its directory if needed.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w",
			err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	return db, nil
}

func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",

		// Negative means KiB, so a 16MB page cache.
		"PRAGMA cache_size = -16384",

		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// SqliteConfig configures the SQLite backend.
type SqliteConfig struct {
	// DatabaseFileName is the path of the database file.
	DatabaseFileName string

	// SkipMigrations leaves the schema untouched on open.
	SkipMigrations bool

	// BackupBeforeMigrate copies the database file before migrating.
	BackupBeforeMigrate bool
}

// SqliteStore is a migrated SQLite database.
type SqliteStore struct {
	*BaseDB

	cfg *SqliteConfig
}

// NewSqliteStore opens the database described by cfg and brings its schema
// up to date unless migrations are skipped.
func NewSqliteStore(cfg *SqliteConfig, log *slog.Logger) (*SqliteStore,
	error) {

	sqlDB, err := OpenSQLite(cfg.DatabaseFileName)
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{BaseDB: NewBaseDB(sqlDB), cfg: cfg}

	if cfg.SkipMigrations {
		return s, nil
	}

	if cfg.BackupBeforeMigrate {
		_, err := backupSqliteDatabase(
			sqlDB, cfg.DatabaseFileName, log,
		)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
	}

	if err := s.ExecuteMigrations(TargetLatest, log); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("error executing migrations: %w", err)
	}

	return s, nil
}

// ExecuteMigrations migrates the database to target.
func (s *SqliteStore) ExecuteMigrations(target MigrationTarget,
	log *slog.Logger, optFuncs ...MigrateOpt) error {

	opts := defaultMigrateOptions()
	for _, f := range optFuncs {
		f(opts)
	}

	driver, err := sqlite_migrate.WithInstance(
		s.DB, &sqlite_migrate.Config{},
	)
	if err != nil {
		return fmt.Errorf("error creating sqlite migration: %w", err)
	}

	return applyMigrations(
		sqlSchemas, driver, migrationsPath, "sqlite", target, opts,
		log,
	)
}
