package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/roasbeef/pulljoy/internal/db/sqlc"
)

// DefaultStoreTimeout bounds a single interaction with the database.
var DefaultStoreTimeout = time.Second * 10

const (
	// DefaultNumTxRetries is how many times a transaction failing with a
	// busy, serialization or deadlock error is attempted.
	DefaultNumTxRetries = 10

	// DefaultInitialRetryDelay is the base delay before the first retry.
	// The actual delay is randomized to 50%-150% of this value and
	// doubles with every attempt.
	DefaultInitialRetryDelay = time.Millisecond * 40

	// DefaultMaxRetryDelay caps the delay between attempts.
	DefaultMaxRetryDelay = time.Second * 3
)

// TxOptions selects the kind of transaction to open.
type TxOptions interface {
	// ReadOnly returns true if the transaction only reads.
	ReadOnly() bool
}

// BaseTxOptions is the TxOptions implementation used by this package.
type BaseTxOptions struct {
	readOnly bool
}

// ReadOnly implements TxOptions.
func (o *BaseTxOptions) ReadOnly() bool {
	return o.readOnly
}

// ReadTxOption returns options for a read-only transaction.
func ReadTxOption() *BaseTxOptions {
	return &BaseTxOptions{readOnly: true}
}

// WriteTxOption returns options for a read-write transaction.
func WriteTxOption() *BaseTxOptions {
	return &BaseTxOptions{}
}

// BatchedTx runs a body against Q inside a single transaction.
type BatchedTx[Q any] interface {
	ExecTx(ctx context.Context, txOptions TxOptions,
		txBody func(Q) error) error
}

// QueryCreator binds a query set to an open transaction.
type QueryCreator[Q any] func(*sql.Tx) Q

// BatchedQuerier is a query source that can also open transactions.
type BatchedQuerier interface {
	sqlc.Querier

	// BeginTx opens a transaction with the given options.
	BeginTx(ctx context.Context, options TxOptions) (*sql.Tx, error)
}

// BaseDB pairs a database handle with the generated queries bound to it.
// Both the SQLite and the Postgres backends embed it.
type BaseDB struct {
	*sql.DB

	*sqlc.Queries
}

// NewBaseDB wraps an open database handle.
func NewBaseDB(db *sql.DB) *BaseDB {
	return &BaseDB{
		DB:      db,
		Queries: sqlc.New(db),
	}
}

// BeginTx implements BatchedQuerier.
func (s *BaseDB) BeginTx(ctx context.Context, opts TxOptions) (*sql.Tx,
	error) {

	return s.DB.BeginTx(ctx, &sql.TxOptions{
		ReadOnly: opts.ReadOnly(),
	})
}

var _ BatchedQuerier = (*BaseDB)(nil)
