// Package githost is the narrow view of the git hosting API the gate uses.
package githost

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Permission is a collaborator's permission level on a repository.
type Permission string

const (
	PermissionAdmin Permission = "admin"
	PermissionWrite Permission = "write"
	PermissionRead  Permission = "read"
	PermissionNone  Permission = "none"
)

// CanCommand reports whether a collaborator with this permission may send
// bot commands.
func (p Permission) CanCommand() bool {
	return p == PermissionAdmin || p == PermissionWrite
}

// Workflow run statuses used to look up in-flight CI runs.
const (
	RunStatusQueued     = "queued"
	RunStatusInProgress = "in_progress"
)

// CheckSuiteStatusCompleted is the status of a finished check suite.
const CheckSuiteStatusCompleted = "completed"

// Ref is one end of a pull request.
type Ref struct {
	SHA          string
	RepoFullName string
}

// PullRequest is the part of a pull request the gate uses.
type PullRequest struct {
	Number int64
	Head   Ref
	Base   Ref
}

// WorkflowRun is a CI run.
type WorkflowRun struct {
	ID      int64
	HeadSHA string
	Status  string
}

// CheckSuite is a group of check runs reported by one app for a commit.
type CheckSuite struct {
	ID         int64
	AppName    string
	Status     string
	Conclusion fn.Option[string]
}

// CheckRun is a single CI check.
type CheckRun struct {
	Name       string
	AppName    string
	Title      string
	HTMLURL    string
	Status     string
	Conclusion fn.Option[string]
}

// Client is the git hosting API as seen by the gate. Repositories are named
// by full name, e.g. "acme/widgets".
type Client interface {
	// GetPullRequest fetches a pull request.
	GetPullRequest(ctx context.Context, repo string,
		number int64) (*PullRequest, error)

	// DeleteRef deletes a ref such as "heads/pulljoy/1". Deleting a ref
	// that does not exist succeeds.
	DeleteRef(ctx context.Context, repo, ref string) error

	// ListWorkflowRuns lists the repository's workflow runs in the given
	// status.
	ListWorkflowRuns(ctx context.Context, repo,
		status string) ([]WorkflowRun, error)

	// CancelWorkflowRun requests cancellation of a workflow run.
	CancelWorkflowRun(ctx context.Context, repo string, runID int64) error

	// PostComment adds a comment to an issue or pull request.
	PostComment(ctx context.Context, repo string, issueNumber int64,
		body string) error

	// GetCollaboratorPermission returns the user's permission level.
	GetCollaboratorPermission(ctx context.Context, repo,
		username string) (Permission, error)

	// ListCheckSuitesForRef lists the check suites for a commit or ref.
	ListCheckSuitesForRef(ctx context.Context, repo,
		ref string) ([]CheckSuite, error)

	// ListCheckRunsForRef lists the check runs for a commit or ref.
	ListCheckRunsForRef(ctx context.Context, repo,
		ref string) ([]CheckRun, error)

	// AuthenticatedLogin returns the login the client acts as.
	AuthenticatedLogin(ctx context.Context) (string, error)
}
