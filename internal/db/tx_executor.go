package db

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

type txExecutorOptions struct {
	numRetries        int
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration
}

func defaultTxExecutorOptions() *txExecutorOptions {
	return &txExecutorOptions{
		numRetries:        DefaultNumTxRetries,
		initialRetryDelay: DefaultInitialRetryDelay,
		maxRetryDelay:     DefaultMaxRetryDelay,
	}
}

// retryDelay picks a delay in [50%, 150%] of the initial delay, doubled once
// per previous attempt and capped at the max delay.
func (o *txExecutorOptions) retryDelay(attempt int) time.Duration {
	base := o.initialRetryDelay/2 +
		time.Duration(rand.Int64N(int64(o.initialRetryDelay)))

	delay := base << min(attempt, 32)
	if delay <= 0 || delay > o.maxRetryDelay {
		return o.maxRetryDelay
	}

	return delay
}

// TxExecutorOption tunes a TransactionExecutor.
type TxExecutorOption func(*txExecutorOptions)

// WithTxRetries sets how many attempts a retryable transaction gets.
func WithTxRetries(numRetries int) TxExecutorOption {
	return func(o *txExecutorOptions) {
		o.numRetries = numRetries
	}
}

// WithTxRetryDelay sets the base delay between attempts.
func WithTxRetryDelay(delay time.Duration) TxExecutorOption {
	return func(o *txExecutorOptions) {
		o.initialRetryDelay = delay
	}
}

// TransactionExecutor runs transaction bodies against a query set Q. Bodies
// that fail with a busy, serialization or deadlock error are rolled back and
// run again after a randomized backoff. Only database work runs inside a
// body, so a retry never repeats anything outside the database.
type TransactionExecutor[Q any] struct {
	BatchedQuerier

	createQuery QueryCreator[Q]
	opts        *txExecutorOptions
	log         *slog.Logger
}

// NewTransactionExecutor returns an executor over db that binds queries with
// createQuery.
func NewTransactionExecutor[Q any](db BatchedQuerier,
	createQuery QueryCreator[Q], log *slog.Logger,
	opts ...TxExecutorOption) *TransactionExecutor[Q] {

	txOpts := defaultTxExecutorOptions()
	for _, o := range opts {
		o(txOpts)
	}

	return &TransactionExecutor[Q]{
		BatchedQuerier: db,
		createQuery:    createQuery,
		opts:           txOpts,
		log:            log,
	}
}

// ExecTx runs txBody in a transaction and commits it, retrying on
// retryable errors. ErrRetriesExceeded is returned once attempts run out.
func (t *TransactionExecutor[Q]) ExecTx(ctx context.Context,
	txOptions TxOptions, txBody func(Q) error) error {

	for attempt := 0; attempt < t.opts.numRetries; attempt++ {
		err := t.attempt(ctx, txOptions, txBody)
		if err == nil {
			return nil
		}

		dbErr := MapSQLError(err)
		if !IsSerializationOrDeadlockError(dbErr) {
			return dbErr
		}

		delay := t.opts.retryDelay(attempt)
		t.log.DebugContext(ctx, "Retrying database transaction",
			"attempt", attempt, "delay", delay, "err", dbErr)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return ErrRetriesExceeded
}

// attempt runs one begin/body/commit cycle. The transaction is always rolled
// back unless the commit succeeded.
func (t *TransactionExecutor[Q]) attempt(ctx context.Context,
	txOptions TxOptions, txBody func(Q) error) error {

	tx, err := t.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := txBody(t.createQuery(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	return nil
}

var _ BatchedTx[any] = (*TransactionExecutor[any])(nil)

