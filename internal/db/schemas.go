package db

import "embed"

// sqlSchemas holds the migrations. The same files serve SQLite and Postgres.
//
//go:embed migrations/*.sql
var sqlSchemas embed.FS

// migrationsPath is the directory of sqlSchemas holding the migrations.
const migrationsPath = "migrations"
