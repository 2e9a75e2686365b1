package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrRetriesExceeded is returned when a transaction is retried more
	// than the max allowed value without a success.
	ErrRetriesExceeded = errors.New("db tx retries exceeded")
)

const (
	// Postgres SQLSTATE codes we classify.
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUndefinedTable       = "42P01"
)

// MapSQLError interprets a driver error as one of the database agnostic
// error types below. Unknown errors are returned unchanged.
func MapSQLError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return parseSqliteError(sqliteErr)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return parsePostgresError(pgErr)
	}

	return err
}

func parseSqliteError(sqliteErr sqlite3.Error) error {
	switch sqliteErr.Code {
	case sqlite3.ErrConstraint:
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique,
			sqlite3.ErrConstraintPrimaryKey:

			return &ErrSQLUniqueConstraintViolation{
				DBError: sqliteErr,
			}

		case sqlite3.ErrConstraintCheck:
			return &ErrCheckConstraintViolation{DBError: sqliteErr}
		}

		return fmt.Errorf("sqlite constraint error: %w", sqliteErr)

	// Another connection holds the write lock.
	case sqlite3.ErrBusy:
		return &ErrSerializationError{DBError: sqliteErr}

	// A conflict within the same connection.
	case sqlite3.ErrLocked:
		return &ErrDeadlockError{DBError: sqliteErr}

	case sqlite3.ErrError:
		if strings.Contains(sqliteErr.Error(), "no such table") {
			return &ErrSchemaError{DBError: sqliteErr}
		}

		return fmt.Errorf("unknown sqlite error: %w", sqliteErr)

	default:
		return fmt.Errorf("unknown sqlite error: %w", sqliteErr)
	}
}

func parsePostgresError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgUniqueViolation:
		return &ErrSQLUniqueConstraintViolation{DBError: pgErr}

	case pgCheckViolation:
		return &ErrCheckConstraintViolation{DBError: pgErr}

	case pgSerializationFailure:
		return &ErrSerializationError{DBError: pgErr}

	case pgDeadlockDetected:
		return &ErrDeadlockError{DBError: pgErr}

	case pgUndefinedTable:
		return &ErrSchemaError{DBError: pgErr}

	default:
		return fmt.Errorf("unknown postgres error: %w", pgErr)
	}
}

// ErrSQLUniqueConstraintViolation is a unique or primary key violation.
type ErrSQLUniqueConstraintViolation struct {
	DBError error
}

// Unwrap returns the driver error.
func (e ErrSQLUniqueConstraintViolation) Unwrap() error {
	return e.DBError
}

// Error returns the error message.
func (e ErrSQLUniqueConstraintViolation) Error() string {
	return fmt.Sprintf("sql unique constraint violation: %v", e.DBError)
}

// ErrCheckConstraintViolation is a CHECK constraint violation, raised when a
// row would break the review state invariant.
type ErrCheckConstraintViolation struct {
	DBError error
}

// Unwrap returns the driver error.
func (e ErrCheckConstraintViolation) Unwrap() error {
	return e.DBError
}

// Error returns the error message.
func (e ErrCheckConstraintViolation) Error() string {
	return fmt.Sprintf("sql check constraint violation: %v", e.DBError)
}

// ErrSerializationError means the transaction conflicted with a concurrent
// one and may be retried.
type ErrSerializationError struct {
	DBError error
}

// Unwrap returns the driver error.
func (e ErrSerializationError) Unwrap() error {
	return e.DBError
}

// Error returns the error message.
func (e ErrSerializationError) Error() string {
	return e.DBError.Error()
}

// ErrDeadlockError means the transaction lost a lock cycle and may be
// retried.
type ErrDeadlockError struct {
	DBError error
}

// Unwrap returns the driver error.
func (e ErrDeadlockError) Unwrap() error {
	return e.DBError
}

// Error returns the error message.
func (e ErrDeadlockError) Error() string {
	return e.DBError.Error()
}

// ErrSchemaError means the schema does not match the query, usually because
// migrations have not run.
type ErrSchemaError struct {
	DBError error
}

// Unwrap returns the driver error.
func (e ErrSchemaError) Unwrap() error {
	return e.DBError
}

// Error returns the error message.
func (e ErrSchemaError) Error() string {
	return e.DBError.Error()
}

// IsSerializationError returns true if err is a serialization error.
func IsSerializationError(err error) bool {
	var target *ErrSerializationError
	return errors.As(err, &target)
}

// IsDeadlockError returns true if err is a deadlock error.
func IsDeadlockError(err error) bool {
	var target *ErrDeadlockError
	return errors.As(err, &target)
}

// IsSerializationOrDeadlockError returns true if err can be retried.
func IsSerializationOrDeadlockError(err error) bool {
	return IsDeadlockError(err) || IsSerializationError(err)
}

// IsSchemaError returns true if err is a schema error.
func IsSchemaError(err error) bool {
	var target *ErrSchemaError
	return errors.As(err, &target)
}

// IsCheckConstraintViolation returns true if err is a CHECK violation.
func IsCheckConstraintViolation(err error) bool {
	var target *ErrCheckConstraintViolation
	return errors.As(err, &target)
}
