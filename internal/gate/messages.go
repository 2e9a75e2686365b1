package gate

import (
	"fmt"
	"strings"

	"github.com/roasbeef/pulljoy/internal/command"
	"github.com/roasbeef/pulljoy/internal/githost"
)

// Check conclusions with their own icon.
const (
	ConclusionSuccess        = "success"
	ConclusionFailure        = "failure"
	ConclusionCancelled      = "cancelled"
	ConclusionTimedOut       = "timed_out"
	ConclusionStale          = "stale"
	ConclusionActionRequired = "action_required"
)

// shortSHALen is the length commits are abbreviated to in comments.
const shortSHALen = 7

// ReviewRequestMessage asks maintainers to approve a CI run.
func ReviewRequestMessage(reviewID string) string {
	return "Hello maintainers, this is Pulljoy the CI bot. Please " +
		"review whether it's safe to start a CI run for this pull " +
		"request. If you deem it safe, post the following comment: " +
		fmt.Sprintf("`%s approve %s`", command.Prefix, reviewID)
}

// WrongReviewIDMessage answers an approval carrying a stale or mistyped ID.
func WrongReviewIDMessage(author string) string {
	return fmt.Sprintf("Sorry @%s, that was the wrong review ID. Please "+
		"check whether you posted the right ID, or whether the pull "+
		"request needs to be re-reviewed.", author)
}

// NoReviewAwaitingMessage answers an approval when none is pending.
func NoReviewAwaitingMessage(author string) string {
	return fmt.Sprintf("Sorry @%s, there's no review request awaiting "+
		"approval.", author)
}

// RefusalMessage answers any command from someone without write access.
// It never depends on what the command said.
func RefusalMessage(author string) string {
	return fmt.Sprintf("Sorry @%s: You're not authorized to send me "+
		"commands. That's because you don't have write access to "+
		"this repo.", author)
}

// ParseErrorMessage tells an authorized author why a command was rejected.
func ParseErrorMessage(author string, err error) string {
	return fmt.Sprintf("Sorry @%s: %v", author, err)
}

// referee addresses the author, if known.
func referee(author string) string {
	if author == "" {
		return ""
	}

	return "@" + author + " "
}

// BugMessage reports a bot bug. The bug description is written by the bot
// itself and carries no request data.
func BugMessage(author, description, errorID string) string {
	return fmt.Sprintf("%sOops, bug found in Pulljoy the CI bot:\n"+
		"~~~\n%s\n~~~\n"+
		"Please report this bug to the Pulljoy developers, quoting "+
		"error ID `%s`.", referee(author), description, errorID)
}

// UnexpectedErrorMessage reports any other failure without its details.
func UnexpectedErrorMessage(author, errorID string) string {
	return fmt.Sprintf("%sOops, Pulljoy the CI bot has encountered an "+
		"unexpected error. The operators can find the details under "+
		"error ID `%s`.", referee(author), errorID)
}

// ShortSHA abbreviates a commit SHA.
func ShortSHA(sha string) string {
	if len(sha) <= shortSHALen {
		return sha
	}

	return sha[:shortSHALen]
}

// ConclusionIcon returns the icon shown next to a check run.
func ConclusionIcon(conclusion string) string {
	switch conclusion {
	case ConclusionSuccess:
		return "✅"

	case ConclusionFailure, ConclusionCancelled, ConclusionTimedOut,
		ConclusionStale:

		return "❌"

	case ConclusionActionRequired:
		return "⚠️"

	default:
		return "❔"
	}
}

// CIResultMessage summarizes a finished CI run as a markdown list.
func CIResultMessage(commitSHA, conclusion string,
	runs []githost.CheckRun) string {

	var b strings.Builder
	fmt.Fprintf(&b, "CI run for %s completed.\n\n", ShortSHA(commitSHA))
	fmt.Fprintf(&b, " * Conclusion: %s\n", conclusion)

	for _, run := range runs {
		fmt.Fprintf(&b, " * [%s %s: %s](%s)\n",
			ConclusionIcon(run.Conclusion.UnwrapOr("")),
			run.AppName, run.Title, run.HTMLURL)
	}

	return b.String()
}
