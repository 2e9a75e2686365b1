package gate

import (
	"context"
	"fmt"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/pulljoy/internal/githost"
	"github.com/roasbeef/pulljoy/internal/store"
	"github.com/stretchr/testify/require"
)

// newTestEnv returns an environment for acme/widgets#123 whose review IDs
// count up from rid-1.
func newTestEnv(host HostQueries) *Environment {
	var n int

	return &Environment{
		Key:  store.PullRequestKey{Repo: "acme/widgets", PRNum: 123},
		Host: host,
		NewReviewID: func() (string, error) {
			n++
			return fmt.Sprintf("rid-%d", n), nil
		},
	}
}

// assertHasOutboxEvent checks that events contains an event of type T.
func assertHasOutboxEvent[T GateOutboxEvent](t *testing.T,
	events []GateOutboxEvent) T {

	t.Helper()
	for _, evt := range events {
		if e, ok := evt.(T); ok {
			return e
		}
	}
	t.Fatalf("expected outbox event of type %T not found", *new(T))

	return *new(T)
}

// assertNoOutboxEvent checks that events contains no event of type T.
func assertNoOutboxEvent[T GateOutboxEvent](t *testing.T,
	events []GateOutboxEvent) {

	t.Helper()
	for _, evt := range events {
		if _, ok := evt.(T); ok {
			t.Fatalf("unexpected outbox event %T", evt)
		}
	}
}

func TestFSM_UntrackedOpened(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(newFakeHost())

	tr, err := (&StateUntracked{}).ProcessEvent(
		ctx, PullRequestOpened{}, env,
	)
	require.NoError(t, err)
	require.Equal(t, &StateAwaitingManualReview{ReviewID: "rid-1"},
		tr.NextState)

	comment := assertHasOutboxEvent[PostComment](t, tr.OutboxEvents)
	require.Contains(t, comment.Body, "/pulljoy approve rid-1")

	persist := assertHasOutboxEvent[PersistState](t, tr.OutboxEvents)
	require.Equal(t, store.NewAwaitingManualReview("rid-1"), persist.State)

	notify := assertHasOutboxEvent[NotifyTransition](t, tr.OutboxEvents)
	require.Equal(t, NotifyTransition{
		From: "untracked", To: "awaiting_manual_review",
	}, notify)
}

func TestFSM_UntrackedIgnoresCheckSuite(t *testing.T) {
	tr, err := (&StateUntracked{}).ProcessEvent(
		context.Background(), CheckSuiteCompleted{HeadSHA: "abc"},
		newTestEnv(newFakeHost()),
	)
	require.NoError(t, err)
	require.IsType(t, &StateUntracked{}, tr.NextState)
	require.Empty(t, tr.OutboxEvents)
}

// TestFSM_ClosedUntracked checks that closing an untracked pull request
// deletes nothing visible and notifies no one.
func TestFSM_ClosedUntracked(t *testing.T) {
	tr, err := (&StateUntracked{}).ProcessEvent(
		context.Background(), PullRequestClosed{},
		newTestEnv(newFakeHost()),
	)
	require.NoError(t, err)
	assertHasOutboxEvent[DeleteState](t, tr.OutboxEvents)
	assertNoOutboxEvent[NotifyTransition](t, tr.OutboxEvents)
}

func TestFSM_ApproveWhenNothingAwaits(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(newFakeHost())
	approve := ApproveRequested{ReviewID: "x", Author: "bob"}

	for _, state := range []GateState{
		&StateUntracked{},
		&StateAwaitingCI{CommitSHA: "abc"},
		&StateStandingBy{CommitSHA: "abc"},
	} {
		tr, err := state.ProcessEvent(ctx, approve, env)
		require.NoError(t, err)
		require.Equal(t, state, tr.NextState)

		comment := assertHasOutboxEvent[PostComment](t, tr.OutboxEvents)
		require.Equal(t, NoReviewAwaitingMessage("bob"), comment.Body)
		assertNoOutboxEvent[PersistState](t, tr.OutboxEvents)
	}
}

func TestFSM_ApproveMatchingReview(t *testing.T) {
	host := newFakeHost()
	host.prs[123] = &githost.PullRequest{
		Number: 123,
		Head:   githost.Ref{SHA: "c0ffee", RepoFullName: "mallory/widgets"},
		Base:   githost.Ref{SHA: "base", RepoFullName: "acme/widgets"},
	}

	state := &StateAwaitingManualReview{ReviewID: "deadbeef01"}
	tr, err := state.ProcessEvent(context.Background(), ApproveRequested{
		ReviewID: "deadbeef01", Author: "bob",
	}, newTestEnv(host))
	require.NoError(t, err)
	require.Equal(t, &StateAwaitingCI{CommitSHA: "c0ffee"}, tr.NextState)

	// The mirror must run before the state is persisted.
	require.Equal(t, MirrorBranch{
		SourceRepo: "mallory/widgets",
		SourceSHA:  "c0ffee",
		TargetRepo: "acme/widgets",
		Branch:     "pulljoy/123",
	}, tr.OutboxEvents[0])
	require.Equal(t, PersistState{State: store.NewAwaitingCI("c0ffee")},
		tr.OutboxEvents[1])
}

func TestFSM_ApproveWrongReview(t *testing.T) {
	state := &StateAwaitingManualReview{ReviewID: "deadbeef01"}
	tr, err := state.ProcessEvent(context.Background(), ApproveRequested{
		ReviewID: "wrongid", Author: "bob",
	}, newTestEnv(newFakeHost()))
	require.NoError(t, err)
	require.Same(t, state, tr.NextState)

	comment := assertHasOutboxEvent[PostComment](t, tr.OutboxEvents)
	require.Regexp(t, `wrong review ID`, comment.Body)
	require.Len(t, tr.OutboxEvents, 1)
}

func TestFSM_ApproveUnknownPullRequest(t *testing.T) {
	state := &StateAwaitingManualReview{ReviewID: "deadbeef01"}
	_, err := state.ProcessEvent(context.Background(), ApproveRequested{
		ReviewID: "deadbeef01", Author: "bob",
	}, newTestEnv(newFakeHost()))
	require.True(t, githost.IsNotFound(err))
}

// TestFSM_PushDuringCI checks that a push while CI runs stops CI before
// asking for a new review.
func TestFSM_PushDuringCI(t *testing.T) {
	env := newTestEnv(newFakeHost())
	state := &StateAwaitingCI{CommitSHA: "abc123"}

	tr, err := state.ProcessEvent(context.Background(),
		PullRequestSynchronized{HeadSHA: "def456"}, env)
	require.NoError(t, err)
	require.Equal(t, &StateAwaitingManualReview{ReviewID: "rid-1"},
		tr.NextState)

	require.Equal(t, CancelCIRun{CommitSHA: "abc123"}, tr.OutboxEvents[0])
	require.Equal(t, DeleteMirrorBranch{Branch: "pulljoy/123"},
		tr.OutboxEvents[1])
	require.IsType(t, PostComment{}, tr.OutboxEvents[2])
}

// TestFSM_PushStandingBy checks that a push after CI reported only asks for
// a new review.
func TestFSM_PushStandingBy(t *testing.T) {
	env := newTestEnv(newFakeHost())
	state := &StateStandingBy{CommitSHA: "abc123"}

	tr, err := state.ProcessEvent(context.Background(),
		PullRequestSynchronized{HeadSHA: "def456"}, env)
	require.NoError(t, err)
	require.Equal(t, &StateAwaitingManualReview{ReviewID: "rid-1"},
		tr.NextState)

	comment := assertHasOutboxEvent[PostComment](t, tr.OutboxEvents)
	require.Contains(t, comment.Body, "/pulljoy approve rid-1")
	assertHasOutboxEvent[PersistState](t, tr.OutboxEvents)
	assertNoOutboxEvent[CancelCIRun](t, tr.OutboxEvents)
	assertNoOutboxEvent[DeleteMirrorBranch](t, tr.OutboxEvents)
}

func TestFSM_ClosedDuringCI(t *testing.T) {
	state := &StateAwaitingCI{CommitSHA: "abc123"}
	tr, err := state.ProcessEvent(context.Background(),
		PullRequestClosed{}, newTestEnv(newFakeHost()))
	require.NoError(t, err)
	require.IsType(t, &StateUntracked{}, tr.NextState)
	require.Equal(t, []GateOutboxEvent{
		CancelCIRun{CommitSHA: "abc123"},
		DeleteMirrorBranch{Branch: "pulljoy/123"},
		DeleteState{},
		NotifyTransition{From: "awaiting_ci", To: "untracked"},
	}, tr.OutboxEvents)
}

func TestFSM_ClosedStandingByKeepsCIAlone(t *testing.T) {
	state := &StateStandingBy{CommitSHA: "abc123"}
	tr, err := state.ProcessEvent(context.Background(),
		PullRequestClosed{}, newTestEnv(newFakeHost()))
	require.NoError(t, err)
	assertNoOutboxEvent[CancelCIRun](t, tr.OutboxEvents)
	assertHasOutboxEvent[DeleteState](t, tr.OutboxEvents)
}

func TestFSM_CheckSuiteOtherCommit(t *testing.T) {
	state := &StateAwaitingCI{CommitSHA: "abc123"}
	tr, err := state.ProcessEvent(context.Background(),
		CheckSuiteCompleted{HeadSHA: "other"}, newTestEnv(newFakeHost()))
	require.NoError(t, err)
	require.Same(t, state, tr.NextState)
	require.Empty(t, tr.OutboxEvents)
}

func TestFSM_CheckSuiteOthersRunning(t *testing.T) {
	host := newFakeHost()
	host.suites["abc123"] = []githost.CheckSuite{
		{Status: "completed", Conclusion: fn.Some("success")},
		{Status: "in_progress"},
	}

	state := &StateAwaitingCI{CommitSHA: "abc123"}
	tr, err := state.ProcessEvent(context.Background(),
		CheckSuiteCompleted{HeadSHA: "abc123"}, newTestEnv(host))
	require.NoError(t, err)
	require.Same(t, state, tr.NextState)
	require.Empty(t, tr.OutboxEvents)
}

func TestFSM_CheckSuiteAllCompleted(t *testing.T) {
	host := newFakeHost()
	host.suites["abc123"] = []githost.CheckSuite{
		{Status: "completed", Conclusion: fn.Some("success")},
		{Status: "completed", Conclusion: fn.Some("success")},
	}
	host.checkRuns["abc123"] = []githost.CheckRun{{
		Name: "build", AppName: "GitHub Actions", Title: "build",
		HTMLURL:    "https://example.com/runs/1",
		Conclusion: fn.Some("success"),
	}}

	// A rerun from STANDING_BY reports again.
	for _, state := range []GateState{
		&StateAwaitingCI{CommitSHA: "abc123"},
		&StateStandingBy{CommitSHA: "abc123"},
	} {
		tr, err := state.ProcessEvent(context.Background(),
			CheckSuiteCompleted{HeadSHA: "abc123"}, newTestEnv(host))
		require.NoError(t, err)
		require.Equal(t, &StateStandingBy{CommitSHA: "abc123"},
			tr.NextState)

		comment := assertHasOutboxEvent[PostComment](t, tr.OutboxEvents)
		require.Contains(t, comment.Body, "Conclusion: success")
		require.Contains(t, comment.Body, "abc123")

		persist := assertHasOutboxEvent[PersistState](
			t, tr.OutboxEvents,
		)
		require.Equal(t, store.NewStandingBy("abc123"), persist.State)
	}
}

func TestStateFromRecord(t *testing.T) {
	tests := []struct {
		name string
		rec  fn.Option[store.ReviewState]
		want GateState
	}{
		{
			name: "none",
			rec:  fn.None[store.ReviewState](),
			want: &StateUntracked{},
		},
		{
			name: "awaiting review",
			rec:  fn.Some(store.NewAwaitingManualReview("abc")),
			want: &StateAwaitingManualReview{ReviewID: "abc"},
		},
		{
			name: "awaiting ci",
			rec:  fn.Some(store.NewAwaitingCI("sha")),
			want: &StateAwaitingCI{CommitSHA: "sha"},
		},
		{
			name: "standing by",
			rec:  fn.Some(store.NewStandingBy("sha")),
			want: &StateStandingBy{CommitSHA: "sha"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := StateFromRecord(tc.rec)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	_, err := StateFromRecord(fn.Some(store.ReviewState{
		Name: store.StateAwaitingCI,
	}))
	require.ErrorIs(t, err, store.ErrInvalidState)
}

func TestOverallConclusion(t *testing.T) {
	suite := func(c string) githost.CheckSuite {
		return githost.CheckSuite{Status: "completed",
			Conclusion: fn.Some(c)}
	}

	require.Equal(t, "failure", OverallConclusion(nil))
	require.Equal(t, "success", OverallConclusion([]githost.CheckSuite{
		suite("success"), suite("success"),
	}))
	require.Equal(t, "failure", OverallConclusion([]githost.CheckSuite{
		suite("success"), suite("neutral"),
	}))
	require.Equal(t, "cancelled", OverallConclusion([]githost.CheckSuite{
		suite("cancelled"),
	}))
	require.Equal(t, "failure", OverallConclusion([]githost.CheckSuite{
		{Status: "completed"},
	}))
}
