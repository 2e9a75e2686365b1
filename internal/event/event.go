// Package event holds the typed inbound webhook events the gate reacts to.
package event

import (
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Kind names an inbound event type as GitHub sends it in the X-GitHub-Event
// header.
type Kind string

const (
	// KindPullRequest is a pull_request event.
	KindPullRequest Kind = "pull_request"

	// KindIssueComment is an issue_comment event.
	KindIssueComment Kind = "issue_comment"

	// KindCheckSuite is a check_suite event.
	KindCheckSuite Kind = "check_suite"

	// KindPing is sent by GitHub when a webhook is created. It carries no
	// work.
	KindPing Kind = "ping"
)

// Pull request actions the gate handles. Other actions are ignored.
const (
	ActionOpened      = "opened"
	ActionReopened    = "reopened"
	ActionSynchronize = "synchronize"
	ActionClosed      = "closed"
)

// ActionCreated is the only issue comment action the gate handles.
const ActionCreated = "created"

// ActionCompleted is the only check suite action the gate handles.
const ActionCompleted = "completed"

// Event is an inbound webhook event. The variants are PullRequestEvent,
// IssueCommentEvent and CheckSuiteEvent.
type Event interface {
	// Kind returns the webhook event type.
	Kind() Kind

	// RepoFullName returns the repository the event was delivered for.
	RepoFullName() string

	// EventAction returns the webhook action, e.g. "opened".
	EventAction() string

	// OrderingKey returns "<repo>/<number>" for the pull request the
	// event concerns, or None if it concerns none. Events sharing a key
	// must be processed one at a time in receipt order.
	OrderingKey() fn.Option[string]

	isEvent()
}

// orderingKey formats the ordering key of a pull request.
func orderingKey(repo string, number int64) string {
	return fmt.Sprintf("%s/%d", repo, number)
}

// Ref is one end of a pull request.
type Ref struct {
	// SHA is the commit the ref points at.
	SHA string

	// RepoFullName is the repository holding the ref. For the head of a
	// pull request from a fork this is the fork.
	RepoFullName string
}

// PullRequest is the part of a pull request payload the gate uses.
type PullRequest struct {
	Number int64
	Head   Ref
	Base   Ref
}

// PullRequestEvent reports activity on a pull request.
type PullRequestEvent struct {
	// Action is one of the Action* constants, or something the gate
	// ignores.
	Action string

	Repo string

	// Actor is the login of the user who triggered the event.
	Actor string

	PullRequest PullRequest
}

// Kind implements Event.
func (e *PullRequestEvent) Kind() Kind { return KindPullRequest }

// RepoFullName implements Event.
func (e *PullRequestEvent) RepoFullName() string { return e.Repo }

// EventAction implements Event.
func (e *PullRequestEvent) EventAction() string { return e.Action }

// OrderingKey implements Event.
func (e *PullRequestEvent) OrderingKey() fn.Option[string] {
	return fn.Some(orderingKey(e.Repo, e.PullRequest.Number))
}

func (e *PullRequestEvent) isEvent() {}

// Comment is a comment on an issue or pull request.
type Comment struct {
	ID     int64
	Body   string
	Author string
}

// IssueCommentEvent reports a comment on an issue or pull request. GitHub
// treats pull requests as issues, so the issue number is the pull request
// number.
type IssueCommentEvent struct {
	Action string

	Repo string

	IssueNumber int64

	Comment Comment
}

// Kind implements Event.
func (e *IssueCommentEvent) Kind() Kind { return KindIssueComment }

// RepoFullName implements Event.
func (e *IssueCommentEvent) RepoFullName() string { return e.Repo }

// EventAction implements Event.
func (e *IssueCommentEvent) EventAction() string { return e.Action }

// OrderingKey implements Event.
func (e *IssueCommentEvent) OrderingKey() fn.Option[string] {
	return fn.Some(orderingKey(e.Repo, e.IssueNumber))
}

func (e *IssueCommentEvent) isEvent() {}

// CheckSuite is the part of a check suite payload the gate uses.
type CheckSuite struct {
	HeadSHA string
	Status  string

	// Conclusion is unset until the suite completes.
	Conclusion fn.Option[string]

	// PullRequests holds the numbers of the pull requests the suite ran
	// for. It is empty for suites on branches without an open pull
	// request.
	PullRequests []int64
}

// CheckSuiteEvent reports a change to a check suite.
type CheckSuiteEvent struct {
	Action string

	Repo string

	CheckSuite CheckSuite
}

// Kind implements Event.
func (e *CheckSuiteEvent) Kind() Kind { return KindCheckSuite }

// RepoFullName implements Event.
func (e *CheckSuiteEvent) RepoFullName() string { return e.Repo }

// EventAction implements Event.
func (e *CheckSuiteEvent) EventAction() string { return e.Action }

// OrderingKey implements Event. The first associated pull request decides
// the key.
func (e *CheckSuiteEvent) OrderingKey() fn.Option[string] {
	if len(e.CheckSuite.PullRequests) == 0 {
		return fn.None[string]()
	}

	return fn.Some(orderingKey(e.Repo, e.CheckSuite.PullRequests[0]))
}

func (e *CheckSuiteEvent) isEvent() {}

// SplitByPullRequest returns one copy of the event per associated pull
// request, each naming only that pull request. An event without pull
// requests yields nothing.
func (e *CheckSuiteEvent) SplitByPullRequest() []*CheckSuiteEvent {
	split := make([]*CheckSuiteEvent, 0, len(e.CheckSuite.PullRequests))
	for _, num := range e.CheckSuite.PullRequests {
		single := *e
		single.CheckSuite.PullRequests = []int64{num}
		split = append(split, &single)
	}

	return split
}

// Compile-time checks.
var (
	_ Event = (*PullRequestEvent)(nil)
	_ Event = (*IssueCommentEvent)(nil)
	_ Event = (*CheckSuiteEvent)(nil)
)
