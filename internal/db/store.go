package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roasbeef/pulljoy/internal/db/sqlc"
)

// Backend is a migrated SQL database holding review states. Both
// *SqliteStore and *PostgresStore satisfy it.
type Backend interface {
	BatchedQuerier

	// Close closes the underlying connection pool.
	Close() error
}

var (
	_ Backend = (*SqliteStore)(nil)
	_ Backend = (*PostgresStore)(nil)
)

// NewQueryExecutor returns a transaction executor binding sqlc queries to
// each transaction opened on backend.
func NewQueryExecutor(backend BatchedQuerier, log *slog.Logger,
	opts ...TxExecutorOption) *TransactionExecutor[*sqlc.Queries] {

	create := func(tx *sql.Tx) *sqlc.Queries {
		return sqlc.New(tx)
	}

	return NewTransactionExecutor(backend, create, log, opts...)
}

// StateCounts returns how many pull requests are in each state, keyed by
// state name.
func StateCounts(ctx context.Context, q sqlc.Querier) (map[string]int64,
	error) {

	rows, err := q.CountReviewStatesByName(ctx)
	if err != nil {
		return nil, fmt.Errorf("count review states: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.StateName] = row.NumStates
	}

	return counts, nil
}
