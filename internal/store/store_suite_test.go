package store

import (
	"context"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// storeFactory returns a fresh, empty store for one subtest.
type storeFactory func(t *testing.T) ListingStore

// runStoreSuite exercises the behaviour every StateStore backend shares.
func runStoreSuite(t *testing.T, newStore storeFactory) {
	t.Run("load missing", func(t *testing.T) {
		s := newStore(t)

		state, err := s.Load(context.Background(), "acme/widgets", 1)
		require.NoError(t, err)
		require.True(t, state.IsNone())
	})

	t.Run("save overwrites", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		err := s.Save(ctx, "acme/widgets", 7,
			NewAwaitingManualReview("0a1b2c3d4e"))
		require.NoError(t, err)

		err = s.Save(ctx, "acme/widgets", 7, NewAwaitingCI("abc123"))
		require.NoError(t, err)

		loaded := mustLoad(t, s, "acme/widgets", 7)
		require.Equal(t, StateAwaitingCI, loaded.Name)
		require.Equal(t, "acme/widgets", loaded.Repo)
		require.EqualValues(t, 7, loaded.PRNum)
		require.True(t, loaded.ReviewID.IsNone())
		require.Equal(t, fn.Some("abc123"), loaded.CommitSHA)
		require.False(t, loaded.UpdatedAt.Before(loaded.CreatedAt))
	})

	t.Run("invalid state rejected", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		bad := NewAwaitingCI("abc123")
		bad.ReviewID = fn.Some("leftover")

		err := s.Save(ctx, "acme/widgets", 3, bad)
		require.ErrorIs(t, err, ErrInvalidState)

		state, err := s.Load(ctx, "acme/widgets", 3)
		require.NoError(t, err)
		require.True(t, state.IsNone())
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Delete(ctx, "acme/widgets", 9))

		err := s.Save(ctx, "acme/widgets", 9, NewStandingBy("abc123"))
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "acme/widgets", 9))
		require.NoError(t, s.Delete(ctx, "acme/widgets", 9))

		state, err := s.Load(ctx, "acme/widgets", 9)
		require.NoError(t, err)
		require.True(t, state.IsNone())
	})

	t.Run("keys are independent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Save(ctx, "acme/widgets", 1,
			NewAwaitingCI("aaa")))
		require.NoError(t, s.Save(ctx, "acme/widgets", 2,
			NewStandingBy("bbb")))
		require.NoError(t, s.Save(ctx, "acme/gadgets", 1,
			NewAwaitingManualReview("ccc")))

		require.NoError(t, s.Delete(ctx, "acme/widgets", 1))

		states, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, states, 2)
		require.Equal(t, PullRequestKey{"acme/gadgets", 1},
			states[0].Key())
		require.Equal(t, PullRequestKey{"acme/widgets", 2},
			states[1].Key())
	})

	t.Run("loaded copies are independent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Save(ctx, "acme/widgets", 4,
			NewAwaitingCI("abc123")))

		loaded := mustLoad(t, s, "acme/widgets", 4)
		loaded.CommitSHA = fn.Some("mutated")

		again := mustLoad(t, s, "acme/widgets", 4)
		require.Equal(t, fn.Some("abc123"), again.CommitSHA)
	})

	t.Run("count by state", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		counter, ok := s.(StateCounter)
		if !ok {
			t.Skip("store does not count states")
		}

		require.NoError(t, s.Save(ctx, "acme/widgets", 1,
			NewAwaitingCI("aaa")))
		require.NoError(t, s.Save(ctx, "acme/widgets", 2,
			NewAwaitingCI("bbb")))
		require.NoError(t, s.Save(ctx, "acme/widgets", 3,
			NewAwaitingManualReview("ccc")))

		counts, err := counter.CountByState(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 2, counts[StateAwaitingCI])
		require.EqualValues(t, 1, counts[StateAwaitingManualReview])
		require.Zero(t, counts[StateStandingBy])
	})
}

func mustLoad(t *testing.T, s StateStore, repo string,
	prNum int64) ReviewState {

	t.Helper()

	state, err := s.Load(context.Background(), repo, prNum)
	require.NoError(t, err)
	require.True(t, state.IsSome(), "no state for %s/%d", repo, prNum)

	return state.UnwrapOr(ReviewState{})
}
