package store

import (
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// StateName is the name of a tracked review state.
type StateName string

const (
	// StateAwaitingManualReview waits for a maintainer to approve the
	// current review ID.
	StateAwaitingManualReview StateName = "awaiting_manual_review"

	// StateAwaitingCI waits for CI on the mirrored commit to complete.
	StateAwaitingCI StateName = "awaiting_ci"

	// StateStandingBy means CI for the mirrored commit has reported.
	StateStandingBy StateName = "standing_by"
)

// ErrInvalidState is returned when a state's optional fields do not match
// its name.
var ErrInvalidState = errors.New("invalid review state")

// ParseStateName converts a stored name back into a StateName.
func ParseStateName(s string) (StateName, error) {
	switch name := StateName(s); name {
	case StateAwaitingManualReview, StateAwaitingCI, StateStandingBy:
		return name, nil

	default:
		return "", fmt.Errorf("%w: unknown state name %q",
			ErrInvalidState, s)
	}
}

// NewAwaitingManualReview returns a state waiting for approval of reviewID.
func NewAwaitingManualReview(reviewID string) ReviewState {
	return ReviewState{
		Name:     StateAwaitingManualReview,
		ReviewID: fn.Some(reviewID),
	}
}

// NewAwaitingCI returns a state waiting for CI on commitSHA.
func NewAwaitingCI(commitSHA string) ReviewState {
	return ReviewState{
		Name:      StateAwaitingCI,
		CommitSHA: fn.Some(commitSHA),
	}
}

// NewStandingBy returns a state that has reported CI for commitSHA.
func NewStandingBy(commitSHA string) ReviewState {
	return ReviewState{
		Name:      StateStandingBy,
		CommitSHA: fn.Some(commitSHA),
	}
}

// Validate checks that the presence of ReviewID and CommitSHA is exactly the
// one implied by Name. A present field must also be non-empty.
func (s ReviewState) Validate() error {
	var wantReviewID, wantCommit bool
	switch s.Name {
	case StateAwaitingManualReview:
		wantReviewID = true

	case StateAwaitingCI, StateStandingBy:
		wantCommit = true

	default:
		return fmt.Errorf("%w: unknown state name %q", ErrInvalidState,
			s.Name)
	}

	if err := checkField(s.Name, "review_id", s.ReviewID,
		wantReviewID); err != nil {

		return err
	}

	return checkField(s.Name, "commit_sha", s.CommitSHA, wantCommit)
}

func checkField(name StateName, field string, value fn.Option[string],
	want bool) error {

	switch {
	case want && value.IsNone():
		return fmt.Errorf("%w: %s requires %s", ErrInvalidState, name,
			field)

	case want && value.UnwrapOr("") == "":
		return fmt.Errorf("%w: %s has empty %s", ErrInvalidState,
			name, field)

	case !want && value.IsSome():
		return fmt.Errorf("%w: %s must not have %s", ErrInvalidState,
			name, field)
	}

	return nil
}
