package gate

import (
	"context"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/pulljoy/internal/githost"
	"github.com/roasbeef/pulljoy/internal/store"
)

// GateState is the sealed interface for the states of one pull request.
// Each state handles incoming events and returns the next state along with
// the side effects to run.
type GateState interface {
	// ProcessEvent handles an incoming event and returns the next state
	// along with any outbox events to emit.
	ProcessEvent(ctx context.Context, event GateEvent,
		env *Environment) (*Transition, error)

	// IsTerminal returns true if this is a terminal state.
	IsTerminal() bool

	// String returns the state's stored name.
	String() string

	// isGateState seals the interface.
	isGateState()
}

// Transition is the result of processing an event.
type Transition struct {
	NextState    GateState
	OutboxEvents []GateOutboxEvent
}

// HostQueries is the read-only part of the git hosting API that states
// consult to evaluate guards.
type HostQueries interface {
	GetPullRequest(ctx context.Context, repo string,
		number int64) (*githost.PullRequest, error)

	ListCheckSuitesForRef(ctx context.Context, repo,
		ref string) ([]githost.CheckSuite, error)

	ListCheckRunsForRef(ctx context.Context, repo,
		ref string) ([]githost.CheckRun, error)
}

// Environment carries what states need beyond the event itself.
type Environment struct {
	// Key is the pull request being processed.
	Key store.PullRequestKey

	// Host answers guard queries. States never cause side effects
	// through it.
	Host HostQueries

	// NewReviewID returns a fresh review ID.
	NewReviewID func() (string, error)
}

// Branch returns the name of the mirrored branch of the pull request.
func (e *Environment) Branch() string {
	return MirrorBranchName(e.Key.PRNum)
}

// MirrorBranchName returns the branch a pull request's head is mirrored to.
func MirrorBranchName(prNum int64) string {
	return fmt.Sprintf("pulljoy/%d", prNum)
}

// Compile-time verification that all concrete states implement GateState.
var (
	_ GateState = (*StateUntracked)(nil)
	_ GateState = (*StateAwaitingManualReview)(nil)
	_ GateState = (*StateAwaitingCI)(nil)
	_ GateState = (*StateStandingBy)(nil)
)

// stay keeps the current state without side effects.
func stay(s GateState, outbox ...GateOutboxEvent) *Transition {
	return &Transition{NextState: s, OutboxEvents: outbox}
}

// requestReview moves to AWAITING_MANUAL_REVIEW under a fresh review ID.
// prelude runs before the review request comment.
func requestReview(from GateState, env *Environment,
	prelude ...GateOutboxEvent) (*Transition, error) {

	reviewID, err := env.NewReviewID()
	if err != nil {
		return nil, fmt.Errorf("generate review id: %w", err)
	}

	next := &StateAwaitingManualReview{ReviewID: reviewID}

	outbox := append(prelude,
		PostComment{Body: ReviewRequestMessage(reviewID)},
		PersistState{State: store.NewAwaitingManualReview(reviewID)},
		NotifyTransition{From: from.String(), To: next.String()},
	)

	return &Transition{NextState: next, OutboxEvents: outbox}, nil
}

// forget moves to untracked. prelude runs before the state is deleted.
func forget(from GateState, prelude ...GateOutboxEvent) *Transition {
	next := &StateUntracked{}

	outbox := append(prelude, DeleteState{})
	if !from.IsTerminal() {
		outbox = append(outbox, NotifyTransition{
			From: from.String(), To: next.String(),
		})
	}

	return &Transition{NextState: next, OutboxEvents: outbox}
}

// stopCI is the cleanup needed before leaving AWAITING_CI early.
func stopCI(commitSHA string, env *Environment) []GateOutboxEvent {
	return []GateOutboxEvent{
		CancelCIRun{CommitSHA: commitSHA},
		DeleteMirrorBranch{Branch: env.Branch()},
	}
}

// noReviewAwaiting answers an approve command in a state that is not
// awaiting one.
func noReviewAwaiting(s GateState, e ApproveRequested) *Transition {
	return stay(s, PostComment{Body: NoReviewAwaitingMessage(e.Author)})
}

// ciCompleted reports CI results once every check suite for commitSHA has
// completed, and moves to STANDING_BY.
func ciCompleted(ctx context.Context, from GateState, commitSHA string,
	e CheckSuiteCompleted, env *Environment) (*Transition, error) {

	if e.HeadSHA != commitSHA {
		log.DebugS(ctx, "Ignoring check suite for another commit",
			"expected_commit", commitSHA, "actual_commit", e.HeadSHA)

		return stay(from), nil
	}

	repo := env.Key.Repo
	suites, err := env.Host.ListCheckSuitesForRef(ctx, repo, commitSHA)
	if err != nil {
		return nil, err
	}
	if !allSuitesCompleted(suites) {
		log.DebugS(ctx, "Ignoring check suite, others still running",
			"commit", commitSHA, "num_suites", len(suites))

		return stay(from), nil
	}

	runs, err := env.Host.ListCheckRunsForRef(ctx, repo, commitSHA)
	if err != nil {
		return nil, err
	}

	next := &StateStandingBy{CommitSHA: commitSHA}
	body := CIResultMessage(commitSHA, OverallConclusion(suites), runs)

	return &Transition{
		NextState: next,
		OutboxEvents: []GateOutboxEvent{
			DeleteMirrorBranch{Branch: env.Branch()},
			PostComment{Body: body},
			PersistState{State: store.NewStandingBy(commitSHA)},
			NotifyTransition{From: from.String(), To: next.String()},
		},
	}, nil
}

// =============================================================================
// StateUntracked: The bot knows nothing about the pull request.
// =============================================================================

// StateUntracked is both the initial state and the state a closed pull
// request returns to. It is never stored.
type StateUntracked struct{}

// ProcessEvent handles events in the Untracked state.
func (s *StateUntracked) ProcessEvent(ctx context.Context, event GateEvent,
	env *Environment) (*Transition, error) {

	switch e := event.(type) {
	case PullRequestOpened, PullRequestSynchronized:
		return requestReview(s, env)

	case PullRequestClosed:
		return forget(s), nil

	case ApproveRequested:
		return noReviewAwaiting(s, e), nil

	case CheckSuiteCompleted:
		log.DebugS(ctx, "Ignoring check suite for untracked pull "+
			"request", "commit", e.HeadSHA)

		return stay(s), nil

	default:
		return nil, &BugError{Msg: fmt.Sprintf(
			"unexpected event %T in state Untracked", event,
		)}
	}
}

func (s *StateUntracked) IsTerminal() bool { return true }
func (s *StateUntracked) String() string   { return "untracked" }
func (s *StateUntracked) isGateState()     {}

// =============================================================================
// StateAwaitingManualReview: Waiting for a maintainer to approve a CI run.
// =============================================================================

// StateAwaitingManualReview waits for "/pulljoy approve <ReviewID>" from an
// authorized collaborator.
type StateAwaitingManualReview struct {
	ReviewID string
}

// ProcessEvent handles events in the AwaitingManualReview state.
func (s *StateAwaitingManualReview) ProcessEvent(ctx context.Context,
	event GateEvent, env *Environment) (*Transition, error) {

	switch e := event.(type) {
	case PullRequestOpened, PullRequestSynchronized:
		return requestReview(s, env)

	case PullRequestClosed:
		return forget(s), nil

	case ApproveRequested:
		if e.ReviewID != s.ReviewID {
			return stay(s, PostComment{
				Body: WrongReviewIDMessage(e.Author),
			}), nil
		}

		pr, err := env.Host.GetPullRequest(
			ctx, env.Key.Repo, env.Key.PRNum,
		)
		if err != nil {
			return nil, err
		}

		next := &StateAwaitingCI{CommitSHA: pr.Head.SHA}

		return &Transition{
			NextState: next,
			OutboxEvents: []GateOutboxEvent{
				MirrorBranch{
					SourceRepo: pr.Head.RepoFullName,
					SourceSHA:  pr.Head.SHA,
					TargetRepo: pr.Base.RepoFullName,
					Branch:     env.Branch(),
				},
				PersistState{
					State: store.NewAwaitingCI(pr.Head.SHA),
				},
				NotifyTransition{
					From: s.String(), To: next.String(),
				},
			},
		}, nil

	case CheckSuiteCompleted:
		log.DebugS(ctx, "Ignoring check suite while awaiting review",
			"commit", e.HeadSHA)

		return stay(s), nil

	default:
		return nil, &BugError{Msg: fmt.Sprintf(
			"unexpected event %T in state AwaitingManualReview",
			event,
		)}
	}
}

func (s *StateAwaitingManualReview) IsTerminal() bool { return false }
func (s *StateAwaitingManualReview) isGateState()     {}

func (s *StateAwaitingManualReview) String() string {
	return string(store.StateAwaitingManualReview)
}

// =============================================================================
// StateAwaitingCI: The head commit is mirrored and CI is running on it.
// =============================================================================

// StateAwaitingCI waits for CI on the mirrored CommitSHA.
type StateAwaitingCI struct {
	CommitSHA string
}

// ProcessEvent handles events in the AwaitingCI state.
func (s *StateAwaitingCI) ProcessEvent(ctx context.Context, event GateEvent,
	env *Environment) (*Transition, error) {

	switch e := event.(type) {
	case PullRequestOpened, PullRequestSynchronized:
		return requestReview(s, env, stopCI(s.CommitSHA, env)...)

	case PullRequestClosed:
		return forget(s, stopCI(s.CommitSHA, env)...), nil

	case ApproveRequested:
		return noReviewAwaiting(s, e), nil

	case CheckSuiteCompleted:
		return ciCompleted(ctx, s, s.CommitSHA, e, env)

	default:
		return nil, &BugError{Msg: fmt.Sprintf(
			"unexpected event %T in state AwaitingCI", event,
		)}
	}
}

func (s *StateAwaitingCI) IsTerminal() bool { return false }
func (s *StateAwaitingCI) isGateState()     {}

func (s *StateAwaitingCI) String() string {
	return string(store.StateAwaitingCI)
}

// =============================================================================
// StateStandingBy: CI results for the mirrored commit have been reported.
// =============================================================================

// StateStandingBy has reported CI for CommitSHA and waits for new pushes.
type StateStandingBy struct {
	CommitSHA string
}

// ProcessEvent handles events in the StandingBy state.
func (s *StateStandingBy) ProcessEvent(ctx context.Context, event GateEvent,
	env *Environment) (*Transition, error) {

	switch e := event.(type) {
	case PullRequestOpened, PullRequestSynchronized:
		return requestReview(s, env)

	case PullRequestClosed:
		return forget(s), nil

	case ApproveRequested:
		return noReviewAwaiting(s, e), nil

	case CheckSuiteCompleted:
		return ciCompleted(ctx, s, s.CommitSHA, e, env)

	default:
		return nil, &BugError{Msg: fmt.Sprintf(
			"unexpected event %T in state StandingBy", event,
		)}
	}
}

func (s *StateStandingBy) IsTerminal() bool { return false }
func (s *StateStandingBy) isGateState()     {}

func (s *StateStandingBy) String() string {
	return string(store.StateStandingBy)
}

// StateFromRecord converts a stored record into a state. None means
// untracked.
func StateFromRecord(rec fn.Option[store.ReviewState]) (GateState, error) {
	if rec.IsNone() {
		return &StateUntracked{}, nil
	}

	state := rec.UnwrapOr(store.ReviewState{})
	if err := state.Validate(); err != nil {
		return nil, err
	}

	switch state.Name {
	case store.StateAwaitingManualReview:
		return &StateAwaitingManualReview{
			ReviewID: state.ReviewID.UnwrapOr(""),
		}, nil

	case store.StateAwaitingCI:
		return &StateAwaitingCI{
			CommitSHA: state.CommitSHA.UnwrapOr(""),
		}, nil

	case store.StateStandingBy:
		return &StateStandingBy{
			CommitSHA: state.CommitSHA.UnwrapOr(""),
		}, nil

	default:
		return nil, &BugError{Msg: fmt.Sprintf(
			"no gate state for stored state %q", state.Name,
		)}
	}
}

// allSuitesCompleted reports whether every suite has completed. An empty
// list counts as completed.
func allSuitesCompleted(suites []githost.CheckSuite) bool {
	for _, s := range suites {
		if s.Status != githost.CheckSuiteStatusCompleted {
			return false
		}
	}

	return true
}

// OverallConclusion is the conclusion shared by all suites, or "failure"
// when they disagree.
func OverallConclusion(suites []githost.CheckSuite) string {
	if len(suites) == 0 {
		return ConclusionFailure
	}

	first := suites[0].Conclusion
	for _, s := range suites[1:] {
		if s.Conclusion != first {
			return ConclusionFailure
		}
	}

	return first.UnwrapOr(ConclusionFailure)
}
