package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/pulljoy/internal/db"
	"github.com/roasbeef/pulljoy/internal/db/sqlc"
)

// SQLStore keeps review states in the review_states table of a SQLite or
// Postgres database.
type SQLStore struct {
	backend db.BatchedQuerier
	exec    *db.TransactionExecutor[*sqlc.Queries]

	now func() time.Time
}

// NewSQLStore wraps a migrated database backend.
func NewSQLStore(backend db.BatchedQuerier, log *slog.Logger,
	opts ...db.TxExecutorOption) *SQLStore {

	return &SQLStore{
		backend: backend,
		exec:    db.NewQueryExecutor(backend, log, opts...),
		now:     time.Now,
	}
}

// Load implements StateStore.
func (s *SQLStore) Load(ctx context.Context, repo string,
	prNum int64) (fn.Option[ReviewState], error) {

	row, err := s.backend.GetReviewState(ctx, sqlc.GetReviewStateParams{
		Repo:  repo,
		PrNum: prNum,
	})
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fn.None[ReviewState](), nil

	case err != nil:
		return fn.None[ReviewState](), fmt.Errorf("failed to load "+
			"review state for %s/%d: %w", repo, prNum,
			db.MapSQLError(err))
	}

	state, err := ReviewStateFromSqlc(row)
	if err != nil {
		return fn.None[ReviewState](), err
	}

	return fn.Some(state), nil
}

// Save implements StateStore. The upsert keeps the original created_at of
// an existing row.
func (s *SQLStore) Save(ctx context.Context, repo string, prNum int64,
	state ReviewState) error {

	if err := state.Validate(); err != nil {
		return err
	}

	now := s.now().Unix()
	params := sqlc.UpsertReviewStateParams{
		Repo:      repo,
		PrNum:     prNum,
		StateName: string(state.Name),
		ReviewID:  ToSqlcNullString(state.ReviewID),
		CommitSha: ToSqlcNullString(state.CommitSHA),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.exec.ExecTx(ctx, db.WriteTxOption(),
		func(q *sqlc.Queries) error {
			return q.UpsertReviewState(ctx, params)
		},
	)
	if err != nil {
		return fmt.Errorf("failed to save review state for %s/%d: %w",
			repo, prNum, db.MapSQLError(err))
	}

	log.TraceS(ctx, "Saved review state", "repo", repo, "pr", prNum,
		"state", state.Name)

	return nil
}

// Delete implements StateStore.
func (s *SQLStore) Delete(ctx context.Context, repo string,
	prNum int64) error {

	n, err := s.backend.DeleteReviewState(ctx, sqlc.DeleteReviewStateParams{
		Repo:  repo,
		PrNum: prNum,
	})
	if err != nil {
		return fmt.Errorf("failed to delete review state for %s/%d: %w",
			repo, prNum, db.MapSQLError(err))
	}

	log.TraceS(ctx, "Deleted review state", "repo", repo, "pr", prNum,
		"rows", n)

	return nil
}

// List implements Lister.
func (s *SQLStore) List(ctx context.Context) ([]ReviewState, error) {
	rows, err := s.backend.ListReviewStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list review states: %w",
			db.MapSQLError(err))
	}

	states := make([]ReviewState, 0, len(rows))
	for _, row := range rows {
		state, err := ReviewStateFromSqlc(row)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}

	return states, nil
}

// CountByState implements StateCounter.
func (s *SQLStore) CountByState(ctx context.Context) (map[StateName]int64,
	error) {

	raw, err := db.StateCounts(ctx, s.backend)
	if err != nil {
		return nil, err
	}

	counts := make(map[StateName]int64, len(raw))
	for name, n := range raw {
		counts[StateName(name)] = n
	}

	return counts, nil
}

// ReviewStateFromSqlc converts a database row, rejecting rows whose state
// name is unknown or whose fields break the state invariant.
func ReviewStateFromSqlc(row sqlc.ReviewState) (ReviewState, error) {
	name, err := ParseStateName(row.StateName)
	if err != nil {
		return ReviewState{}, err
	}

	state := ReviewState{
		Repo:      row.Repo,
		PRNum:     row.PrNum,
		Name:      name,
		ReviewID:  FromSqlcNullString(row.ReviewID),
		CommitSHA: FromSqlcNullString(row.CommitSha),
		CreatedAt: time.Unix(row.CreatedAt, 0),
		UpdatedAt: time.Unix(row.UpdatedAt, 0),
	}
	if err := state.Validate(); err != nil {
		return ReviewState{}, fmt.Errorf("stored state for %s: %w",
			state.Key(), err)
	}

	return state, nil
}

// ToSqlcNullString converts an optional string to sql.NullString.
func ToSqlcNullString(o fn.Option[string]) sql.NullString {
	return fn.MapOptionZ(o, func(s string) sql.NullString {
		return sql.NullString{String: s, Valid: true}
	})
}

// FromSqlcNullString converts sql.NullString to an optional string.
func FromSqlcNullString(ns sql.NullString) fn.Option[string] {
	if !ns.Valid {
		return fn.None[string]()
	}

	return fn.Some(ns.String)
}

var (
	_ ListingStore = (*SQLStore)(nil)
	_ StateCounter = (*SQLStore)(nil)
)
