package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// PullRequestKey identifies one tracked review lifecycle.
type PullRequestKey struct {
	// Repo is the full name of the base repository, e.g. "acme/widgets".
	Repo string

	// PRNum is the pull request number within Repo.
	PRNum int64
}

// String renders the key as "<repo>/<number>", the same form used as the
// event ordering key.
func (k PullRequestKey) String() string {
	return fmt.Sprintf("%s/%d", k.Repo, k.PRNum)
}

// ReviewState is the persisted record for one pull request. The absence of a
// record means the pull request is untracked.
type ReviewState struct {
	// Repo and PRNum are filled in by the store from the key the record
	// is saved under.
	Repo  string
	PRNum int64

	// Name is the state the pull request is in.
	Name StateName

	// ReviewID is set only while awaiting manual review.
	ReviewID fn.Option[string]

	// CommitSHA is set only while awaiting CI or standing by.
	CommitSHA fn.Option[string]

	// CreatedAt is when the pull request was first tracked. UpdatedAt is
	// the time of the last save.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the key the record is stored under.
func (s ReviewState) Key() PullRequestKey {
	return PullRequestKey{Repo: s.Repo, PRNum: s.PRNum}
}

// StateStore persists one ReviewState per pull request. Save and Delete are
// atomic per key; there are no cross-key transactions. Implementations
// return copies, so callers may freely modify what they load.
type StateStore interface {
	// Load returns the state for the pull request, or None if it is
	// untracked.
	Load(ctx context.Context, repo string,
		prNum int64) (fn.Option[ReviewState], error)

	// Save overwrites the state for the pull request. The state is
	// validated first and an invalid state is never written.
	Save(ctx context.Context, repo string, prNum int64,
		state ReviewState) error

	// Delete removes the state for the pull request. Deleting an absent
	// state is not an error.
	Delete(ctx context.Context, repo string, prNum int64) error
}

// Lister is implemented by stores that can enumerate every tracked pull
// request. It backs the operator tooling only.
type Lister interface {
	// List returns all stored states ordered by repo and number.
	List(ctx context.Context) ([]ReviewState, error)
}

// ListingStore is a StateStore that can also enumerate its records.
type ListingStore interface {
	StateStore
	Lister
}

// StateCounter is implemented by stores that can report how many pull
// requests are in each state. It feeds the tracked pull request gauge.
type StateCounter interface {
	// CountByState returns the number of records per state name.
	// States with no records may be omitted.
	CountByState(ctx context.Context) (map[StateName]int64, error)
}
