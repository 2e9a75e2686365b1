package gate

// GateEvent is the sealed interface for events that drive the gate FSM.
// Inbound webhooks are translated into these by the Handler.
type GateEvent interface {
	// isGateEvent seals the interface to prevent external
	// implementations.
	isGateEvent()
}

// Ensure all event types implement GateEvent.
func (PullRequestOpened) isGateEvent()       {}
func (PullRequestSynchronized) isGateEvent() {}
func (PullRequestClosed) isGateEvent()       {}
func (ApproveRequested) isGateEvent()        {}
func (CheckSuiteCompleted) isGateEvent()     {}

// PullRequestOpened is sent when a pull request is opened or reopened.
type PullRequestOpened struct {
	Reopened bool
}

// PullRequestSynchronized is sent when new commits are pushed to a pull
// request.
type PullRequestSynchronized struct {
	HeadSHA string
}

// PullRequestClosed is sent when a pull request is closed or merged.
type PullRequestClosed struct{}

// ApproveRequested is sent when an authorized collaborator posts an approve
// command. Authorization has already been checked.
type ApproveRequested struct {
	ReviewID string
	Author   string
}

// CheckSuiteCompleted is sent when a check suite for HeadSHA completes.
type CheckSuiteCompleted struct {
	HeadSHA string
}
