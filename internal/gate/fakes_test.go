package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roasbeef/pulljoy/internal/githost"
	"github.com/roasbeef/pulljoy/internal/mirror"
)

// postedComment is a comment recorded by fakeHost.
type postedComment struct {
	Repo   string
	Number int64
	Body   string
}

// fakeHost is an in-memory githost.Client.
type fakeHost struct {
	mu sync.Mutex

	login     string
	prs       map[int64]*githost.PullRequest
	perms     map[string]githost.Permission
	runs      map[string][]githost.WorkflowRun
	suites    map[string][]githost.CheckSuite
	checkRuns map[string][]githost.CheckRun

	comments    []postedComment
	deletedRefs []string
	cancelled   []int64

	// failPost makes PostComment fail.
	failPost bool
}

var _ githost.Client = (*fakeHost)(nil)

func newFakeHost() *fakeHost {
	return &fakeHost{
		login:     "pulljoy-bot",
		prs:       make(map[int64]*githost.PullRequest),
		perms:     make(map[string]githost.Permission),
		runs:      make(map[string][]githost.WorkflowRun),
		suites:    make(map[string][]githost.CheckSuite),
		checkRuns: make(map[string][]githost.CheckRun),
	}
}

func (f *fakeHost) GetPullRequest(_ context.Context, _ string,
	number int64) (*githost.PullRequest, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	pr, ok := f.prs[number]
	if !ok {
		return nil, &githost.APIError{
			StatusCode: 404, Message: "Not Found",
		}
	}
	prCopy := *pr

	return &prCopy, nil
}

func (f *fakeHost) DeleteRef(_ context.Context, _, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletedRefs = append(f.deletedRefs, ref)

	return nil
}

func (f *fakeHost) ListWorkflowRuns(_ context.Context, _,
	status string) ([]githost.WorkflowRun, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.runs[status], nil
}

func (f *fakeHost) CancelWorkflowRun(_ context.Context, _ string,
	runID int64) error {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled = append(f.cancelled, runID)

	return nil
}

func (f *fakeHost) PostComment(_ context.Context, repo string,
	number int64, body string) error {

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failPost {
		return errors.New("comment service down")
	}
	f.comments = append(f.comments, postedComment{
		Repo: repo, Number: number, Body: body,
	})

	return nil
}

func (f *fakeHost) GetCollaboratorPermission(_ context.Context, _,
	username string) (githost.Permission, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	perm, ok := f.perms[username]
	if !ok {
		return githost.PermissionNone, nil
	}

	return perm, nil
}

func (f *fakeHost) ListCheckSuitesForRef(_ context.Context, _,
	ref string) ([]githost.CheckSuite, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.suites[ref], nil
}

func (f *fakeHost) ListCheckRunsForRef(_ context.Context, _,
	ref string) ([]githost.CheckRun, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.checkRuns[ref], nil
}

func (f *fakeHost) AuthenticatedLogin(context.Context) (string, error) {
	return f.login, nil
}

// lastComment returns the body of the most recent comment.
func (f *fakeHost) lastComment() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.comments) == 0 {
		return ""
	}

	return f.comments[len(f.comments)-1].Body
}

func (f *fakeHost) numComments() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.comments)
}

// fakeMirror records mirror requests.
type fakeMirror struct {
	mu       sync.Mutex
	requests []mirror.Request
	err      error
}

var _ mirror.Mirror = (*fakeMirror)(nil)

func (m *fakeMirror) Mirror(_ context.Context,
	req mirror.Request) (string, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "+ git push\nfatal: remote rejected", m.err
	}
	m.requests = append(m.requests, req)

	return fmt.Sprintf("+ git push\n%s -> %s", req.SourceSHA,
		req.TargetBranch), nil
}

// recordingNotifier collects transition notices.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []TransitionNotice
}

func (r *recordingNotifier) NotifyTransition(_ context.Context,
	n TransitionNotice) {

	r.mu.Lock()
	defer r.mu.Unlock()

	r.notices = append(r.notices, n)
}
