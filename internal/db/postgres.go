package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresConfig configures the Postgres backend.
type PostgresConfig struct {
	// DSN is a libpq style connection string or URL.
	DSN string

	// MaxOpenConns caps the connection pool. Zero means 10.
	MaxOpenConns int

	// SkipMigrations leaves the schema untouched on open.
	SkipMigrations bool
}

// PostgresStore is a migrated Postgres database accessed through pgx.
type PostgresStore struct {
	*BaseDB

	cfg *PostgresConfig
}

// NewPostgresStore connects to Postgres and brings the schema up to date
// unless migrations are skipped.
func NewPostgresStore(cfg *PostgresConfig, log *slog.Logger) (*PostgresStore,
	error) {

	sqlDB, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 10
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(
		context.Background(), DefaultStoreTimeout,
	)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	s := &PostgresStore{BaseDB: NewBaseDB(sqlDB), cfg: cfg}
	if cfg.SkipMigrations {
		return s, nil
	}

	if err := s.ExecuteMigrations(TargetLatest, log); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("error executing migrations: %w", err)
	}

	return s, nil
}

// ExecuteMigrations migrates the database to target.
func (s *PostgresStore) ExecuteMigrations(target MigrationTarget,
	log *slog.Logger, optFuncs ...MigrateOpt) error {

	opts := defaultMigrateOptions()
	for _, f := range optFuncs {
		f(opts)
	}

	driver, err := migratepgx.WithInstance(s.DB, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("error creating postgres migration: %w", err)
	}

	return applyMigrations(
		sqlSchemas, driver, migrationsPath, "postgres", target, opts,
		log,
	)
}
