package event

import (
	"errors"
	"fmt"

	"github.com/google/go-github/v71/github"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrUnsupportedEvent is returned by Decode for event types the gate does
// not handle.
var ErrUnsupportedEvent = errors.New("unsupported event type")

// ErrMalformedPayload is returned by Decode when a payload lacks an object
// its event type requires.
var ErrMalformedPayload = errors.New("malformed payload")

// Decode parses a webhook payload of the given X-GitHub-Event type. Ping
// events and unknown types yield ErrUnsupportedEvent; callers that want to
// acknowledge pings check the type first.
func Decode(eventType string, payload []byte) (Event, error) {
	switch Kind(eventType) {
	case KindPullRequest, KindIssueComment, KindCheckSuite:

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, eventType)
	}

	raw, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w",
			eventType, err)
	}

	switch e := raw.(type) {
	case *github.PullRequestEvent:
		if e.PullRequest == nil {
			return nil, fmt.Errorf("%w: %s without pull_request",
				ErrMalformedPayload, eventType)
		}

		return fromPullRequestEvent(e), nil

	case *github.IssueCommentEvent:
		if e.Issue == nil || e.Comment == nil {
			return nil, fmt.Errorf("%w: %s without issue or "+
				"comment", ErrMalformedPayload, eventType)
		}

		return fromIssueCommentEvent(e), nil

	case *github.CheckSuiteEvent:
		if e.CheckSuite == nil {
			return nil, fmt.Errorf("%w: %s without check_suite",
				ErrMalformedPayload, eventType)
		}

		return fromCheckSuiteEvent(e), nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedEvent, raw)
	}
}

func fromPullRequestEvent(e *github.PullRequestEvent) *PullRequestEvent {
	pr := e.GetPullRequest()
	head, base := pr.GetHead(), pr.GetBase()

	return &PullRequestEvent{
		Action: e.GetAction(),
		Repo:   e.GetRepo().GetFullName(),
		Actor:  e.GetSender().GetLogin(),
		PullRequest: PullRequest{
			Number: int64(pr.GetNumber()),
			Head: Ref{
				SHA:          head.GetSHA(),
				RepoFullName: head.GetRepo().GetFullName(),
			},
			Base: Ref{
				SHA:          base.GetSHA(),
				RepoFullName: base.GetRepo().GetFullName(),
			},
		},
	}
}

func fromIssueCommentEvent(e *github.IssueCommentEvent) *IssueCommentEvent {
	return &IssueCommentEvent{
		Action:      e.GetAction(),
		Repo:        e.GetRepo().GetFullName(),
		IssueNumber: int64(e.GetIssue().GetNumber()),
		Comment: Comment{
			ID:     e.GetComment().GetID(),
			Body:   e.GetComment().GetBody(),
			Author: e.GetComment().GetUser().GetLogin(),
		},
	}
}

func fromCheckSuiteEvent(e *github.CheckSuiteEvent) *CheckSuiteEvent {
	suite := e.GetCheckSuite()

	prs := make([]int64, 0, len(suite.PullRequests))
	for _, pr := range suite.PullRequests {
		prs = append(prs, int64(pr.GetNumber()))
	}

	conclusion := fn.None[string]()
	if suite.Conclusion != nil {
		conclusion = fn.Some(suite.GetConclusion())
	}

	return &CheckSuiteEvent{
		Action: e.GetAction(),
		Repo:   e.GetRepo().GetFullName(),
		CheckSuite: CheckSuite{
			HeadSHA:      suite.GetHeadSHA(),
			Status:       suite.GetStatus(),
			Conclusion:   conclusion,
			PullRequests: prs,
		},
	}
}
