package store

import (
	"context"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseStateName(t *testing.T) {
	for _, name := range []StateName{
		StateAwaitingManualReview, StateAwaitingCI, StateStandingBy,
	} {
		parsed, err := ParseStateName(string(name))
		require.NoError(t, err)
		require.Equal(t, name, parsed)
	}

	_, err := ParseStateName("untracked")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		state ReviewState
		valid bool
	}{
		{
			name:  "awaiting review",
			state: NewAwaitingManualReview("abc"),
			valid: true,
		},
		{
			name:  "awaiting ci",
			state: NewAwaitingCI("deadbeef"),
			valid: true,
		},
		{
			name:  "standing by",
			state: NewStandingBy("deadbeef"),
			valid: true,
		},
		{
			name:  "review without id",
			state: ReviewState{Name: StateAwaitingManualReview},
		},
		{
			name: "review with commit",
			state: ReviewState{
				Name:      StateAwaitingManualReview,
				ReviewID:  fn.Some("abc"),
				CommitSHA: fn.Some("deadbeef"),
			},
		},
		{
			name:  "ci with empty sha",
			state: NewAwaitingCI(""),
		},
		{
			name:  "unknown name",
			state: ReviewState{Name: "merged"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.state.Validate()
			if tc.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func genOptionalString(label string) *rapid.Generator[fn.Option[string]] {
	return rapid.Custom(func(t *rapid.T) fn.Option[string] {
		if !rapid.Bool().Draw(t, label+"_present") {
			return fn.None[string]()
		}

		return fn.Some(rapid.StringMatching(`[0-9a-f]{0,12}`).Draw(
			t, label,
		))
	})
}

// TestStoredStatesAlwaysValid saves arbitrary states and checks that
// whatever ends up in the store satisfies the field invariant.
func TestStoredStatesAlwaysValid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		s := NewMemoryStore()

		names := []StateName{
			StateAwaitingManualReview, StateAwaitingCI,
			StateStandingBy, "bogus",
		}

		numOps := rapid.IntRange(1, 30).Draw(t, "num_ops")
		for i := 0; i < numOps; i++ {
			pr := rapid.Int64Range(1, 4).Draw(t, "pr")

			if rapid.IntRange(0, 4).Draw(t, "op") == 0 {
				if err := s.Delete(ctx, "acme/widgets", pr); err != nil {
					t.Fatalf("delete: %v", err)
				}
				continue
			}

			state := ReviewState{
				Name:      rapid.SampledFrom(names).Draw(t, "name"),
				ReviewID:  genOptionalString("review_id").Draw(t, "rid"),
				CommitSHA: genOptionalString("commit").Draw(t, "sha"),
			}

			err := s.Save(ctx, "acme/widgets", pr, state)
			if (state.Validate() == nil) != (err == nil) {
				t.Fatalf("save result %v disagrees with "+
					"validation of %+v", err, state)
			}
		}

		states, err := s.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, st := range states {
			if err := st.Validate(); err != nil {
				t.Fatalf("stored invalid state: %v", err)
			}
		}
	})
}
