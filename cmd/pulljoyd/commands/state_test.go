package commands

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/roasbeef/pulljoy/internal/config"
	"github.com/roasbeef/pulljoy/internal/store"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestParsePullRequest covers the accepted and rejected argument forms.
func TestParsePullRequest(t *testing.T) {
	t.Parallel()

	key, err := parsePullRequest([]string{"acme/widgets", "42"})
	require.NoError(t, err)
	require.Equal(t, store.PullRequestKey{Repo: "acme/widgets", PRNum: 42},
		key)

	for _, args := range [][]string{
		{"widgets", "42"},
		{"/widgets", "42"},
		{"acme/", "42"},
		{"acme/widgets", "0"},
		{"acme/widgets", "-3"},
		{"acme/widgets", "forty-two"},
	} {
		_, err := parsePullRequest(args)
		require.Error(t, err, "args %v", args)
	}
}

// TestParsePullRequestRoundTrip verifies that any key printed in its
// ordering key form parses back.
func TestParsePullRequestRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		owner := rapid.StringMatching(`[a-z][a-z0-9-]{0,15}`).Draw(t,
			"owner")
		name := rapid.StringMatching(`[a-z][a-z0-9._-]{0,15}`).Draw(t,
			"name")
		num := rapid.Int64Range(1, 1<<40).Draw(t, "num")

		repo := owner + "/" + name
		key, err := parsePullRequest([]string{
			repo, fmt.Sprintf("%d", num),
		})
		require.NoError(t, err)
		require.Equal(t, repo, key.Repo)
		require.Equal(t, num, key.PRNum)
	})
}

// TestStateViewHidesReviewID verifies that printed states never carry the
// review ID.
func TestStateViewHidesReviewID(t *testing.T) {
	t.Parallel()

	st := store.NewAwaitingManualReview("0123456789")
	st.Repo, st.PRNum = "acme/widgets", 7
	st.UpdatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	line := formatState(newStateView(st))
	require.NotContains(t, line, "0123456789")
	require.Contains(t, line, "acme/widgets/7")
	require.Contains(t, line, "awaiting_manual_review")
	require.Contains(t, line, "2024-01-02T03:04:05Z")

	st = store.NewAwaitingCI("c0ffee")
	st.Repo, st.PRNum = "acme/widgets", 8
	require.Contains(t, formatState(newStateView(st)), "commit=c0ffee")
}

// TestOpenMemoryStore verifies the memory backend needs no setup.
func TestOpenMemoryStore(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{StateStoreType: config.StoreMemory}
	states, closeStore, err := openStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closeStore()

	counts, err := states.CountByState(context.Background())
	require.NoError(t, err)
	require.Empty(t, counts)

	_, _, err = openStore(context.Background(), &config.Config{
		StateStoreType: "mongo",
	}, nil)
	require.Error(t, err)
}
