package githost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v71/github"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// DefaultRequestTimeout bounds each API call made without a deadline.
const DefaultRequestTimeout = 30 * time.Second

// listPageSize is the page size used for list calls.
const listPageSize = 100

// GitHubClient implements Client against the GitHub REST API.
type GitHubClient struct {
	gh *github.Client
}

// GitHubOption configures a GitHubClient.
type GitHubOption func(*gitHubOptions)

type gitHubOptions struct {
	httpClient *http.Client
	baseURL    string
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) GitHubOption {
	return func(o *gitHubOptions) {
		o.httpClient = c
	}
}

// WithBaseURL points the client at another API root, such as a GitHub
// Enterprise server or a test server. The URL must end in a slash.
func WithBaseURL(u string) GitHubOption {
	return func(o *gitHubOptions) {
		o.baseURL = u
	}
}

// NewGitHubClient returns a client authenticating with token.
func NewGitHubClient(token string, opts ...GitHubOption) (*GitHubClient,
	error) {

	o := &gitHubOptions{
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(o)
	}

	gh := github.NewClient(o.httpClient)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}

	if o.baseURL != "" {
		base, err := url.Parse(o.baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid API base URL: %w", err)
		}
		gh.BaseURL = base
	}

	return &GitHubClient{gh: gh}, nil
}

// splitRepo splits "owner/name".
func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("malformed repository name %q", repo)
	}

	return owner, name, nil
}

// wrapErr converts go-github errors into *APIError.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	apiErr := &APIError{Message: err.Error(), Err: err}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		apiErr.Message = ghErr.Message
		if ghErr.Response != nil {
			apiErr.StatusCode = ghErr.Response.StatusCode
		}
	}

	return fmt.Errorf("%s: %w", op, apiErr)
}

// GetPullRequest implements Client.
func (c *GitHubClient) GetPullRequest(ctx context.Context, repo string,
	number int64) (*PullRequest, error) {

	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	pr, _, err := c.gh.PullRequests.Get(ctx, owner, name, int(number))
	if err != nil {
		return nil, wrapErr("get pull request", err)
	}

	return &PullRequest{
		Number: int64(pr.GetNumber()),
		Head: Ref{
			SHA:          pr.GetHead().GetSHA(),
			RepoFullName: pr.GetHead().GetRepo().GetFullName(),
		},
		Base: Ref{
			SHA:          pr.GetBase().GetSHA(),
			RepoFullName: pr.GetBase().GetRepo().GetFullName(),
		},
	}, nil
}

// DeleteRef implements Client.
func (c *GitHubClient) DeleteRef(ctx context.Context, repo,
	ref string) error {

	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}

	_, err = c.gh.Git.DeleteRef(ctx, owner, name, ref)
	err = wrapErr("delete ref", err)
	if IsRefNotFound(err) {
		log.DebugS(ctx, "Ref already gone", "repo", repo, "ref", ref)
		return nil
	}

	return err
}

// ListWorkflowRuns implements Client.
func (c *GitHubClient) ListWorkflowRuns(ctx context.Context, repo,
	status string) ([]WorkflowRun, error) {

	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	opts := &github.ListWorkflowRunsOptions{
		Status:      status,
		ListOptions: github.ListOptions{PerPage: listPageSize},
	}

	var runs []WorkflowRun
	for {
		page, resp, err := c.gh.Actions.ListRepositoryWorkflowRuns(
			ctx, owner, name, opts,
		)
		if err != nil {
			return nil, wrapErr("list workflow runs", err)
		}

		for _, r := range page.WorkflowRuns {
			runs = append(runs, WorkflowRun{
				ID:      r.GetID(),
				HeadSHA: r.GetHeadSHA(),
				Status:  r.GetStatus(),
			})
		}

		if resp.NextPage == 0 {
			return runs, nil
		}
		opts.Page = resp.NextPage
	}
}

// CancelWorkflowRun implements Client.
func (c *GitHubClient) CancelWorkflowRun(ctx context.Context, repo string,
	runID int64) error {

	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}

	_, err = c.gh.Actions.CancelWorkflowRunByID(ctx, owner, name, runID)

	// Cancellation is asynchronous and answered with 202.
	var accepted *github.AcceptedError
	if errors.As(err, &accepted) {
		return nil
	}

	return wrapErr("cancel workflow run", err)
}

// PostComment implements Client.
func (c *GitHubClient) PostComment(ctx context.Context, repo string,
	issueNumber int64, body string) error {

	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}

	_, _, err = c.gh.Issues.CreateComment(
		ctx, owner, name, int(issueNumber),
		&github.IssueComment{Body: github.Ptr(body)},
	)

	return wrapErr("post comment", err)
}

// GetCollaboratorPermission implements Client.
func (c *GitHubClient) GetCollaboratorPermission(ctx context.Context, repo,
	username string) (Permission, error) {

	owner, name, err := splitRepo(repo)
	if err != nil {
		return PermissionNone, err
	}

	level, _, err := c.gh.Repositories.GetPermissionLevel(
		ctx, owner, name, username,
	)
	if err != nil {
		return PermissionNone, wrapErr("get permission level", err)
	}

	return Permission(level.GetPermission()), nil
}

// ListCheckSuitesForRef implements Client.
func (c *GitHubClient) ListCheckSuitesForRef(ctx context.Context, repo,
	ref string) ([]CheckSuite, error) {

	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	opts := &github.ListCheckSuiteOptions{
		ListOptions: github.ListOptions{PerPage: listPageSize},
	}

	var suites []CheckSuite
	for {
		page, resp, err := c.gh.Checks.ListCheckSuitesForRef(
			ctx, owner, name, ref, opts,
		)
		if err != nil {
			return nil, wrapErr("list check suites", err)
		}

		for _, s := range page.CheckSuites {
			suites = append(suites, CheckSuite{
				ID:         s.GetID(),
				AppName:    s.GetApp().GetName(),
				Status:     s.GetStatus(),
				Conclusion: optional(s.Conclusion),
			})
		}

		if resp.NextPage == 0 {
			return suites, nil
		}
		opts.Page = resp.NextPage
	}
}

// ListCheckRunsForRef implements Client.
func (c *GitHubClient) ListCheckRunsForRef(ctx context.Context, repo,
	ref string) ([]CheckRun, error) {

	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	opts := &github.ListCheckRunsOptions{
		ListOptions: github.ListOptions{PerPage: listPageSize},
	}

	var runs []CheckRun
	for {
		page, resp, err := c.gh.Checks.ListCheckRunsForRef(
			ctx, owner, name, ref, opts,
		)
		if err != nil {
			return nil, wrapErr("list check runs", err)
		}

		for _, r := range page.CheckRuns {
			runs = append(runs, CheckRun{
				Name:       r.GetName(),
				AppName:    r.GetApp().GetName(),
				Title:      r.GetOutput().GetTitle(),
				HTMLURL:    r.GetHTMLURL(),
				Status:     r.GetStatus(),
				Conclusion: optional(r.Conclusion),
			})
		}

		if resp.NextPage == 0 {
			return runs, nil
		}
		opts.Page = resp.NextPage
	}
}

// AuthenticatedLogin implements Client.
func (c *GitHubClient) AuthenticatedLogin(ctx context.Context) (string,
	error) {

	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", wrapErr("get authenticated user", err)
	}

	return user.GetLogin(), nil
}

func optional(s *string) fn.Option[string] {
	if s == nil {
		return fn.None[string]()
	}

	return fn.Some(*s)
}

var _ Client = (*GitHubClient)(nil)
