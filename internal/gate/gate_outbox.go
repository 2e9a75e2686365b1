package gate

import "github.com/roasbeef/pulljoy/internal/store"

// GateOutboxEvent is the sealed interface for side effects emitted by the
// gate FSM. The Handler runs them in order and stops at the first failure,
// so anything after a failed effect never happens.
type GateOutboxEvent interface {
	// isGateOutboxEvent seals the interface to prevent external
	// implementations.
	isGateOutboxEvent()
}

// Ensure all outbox event types implement GateOutboxEvent.
func (PostComment) isGateOutboxEvent()        {}
func (CancelCIRun) isGateOutboxEvent()        {}
func (DeleteMirrorBranch) isGateOutboxEvent() {}
func (MirrorBranch) isGateOutboxEvent()       {}
func (PersistState) isGateOutboxEvent()       {}
func (DeleteState) isGateOutboxEvent()        {}
func (NotifyTransition) isGateOutboxEvent()   {}

// PostComment posts a comment on the pull request.
type PostComment struct {
	Body string
}

// CancelCIRun cancels the queued or in-progress workflow run building
// CommitSHA, if there is one.
type CancelCIRun struct {
	CommitSHA string
}

// DeleteMirrorBranch deletes the mirrored branch from the base repository.
// A branch that is already gone is not an error.
type DeleteMirrorBranch struct {
	Branch string
}

// MirrorBranch force-pushes SourceSHA from SourceRepo to Branch of
// TargetRepo.
type MirrorBranch struct {
	SourceRepo string
	SourceSHA  string
	TargetRepo string
	Branch     string
}

// PersistState overwrites the stored state of the pull request. It always
// follows every external side effect of its transition.
type PersistState struct {
	State store.ReviewState
}

// DeleteState forgets the pull request.
type DeleteState struct{}

// NotifyTransition tells subscribers that the pull request changed state.
// It is best effort and always last.
type NotifyTransition struct {
	From string
	To   string
}
