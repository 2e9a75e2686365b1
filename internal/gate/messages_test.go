package gate

import (
	"errors"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/pulljoy/internal/githost"
	"github.com/stretchr/testify/require"
)

func TestShortSHA(t *testing.T) {
	require.Equal(t, "abc1234", ShortSHA("abc1234567890"))
	require.Equal(t, "abc", ShortSHA("abc"))
}

func TestConclusionIcon(t *testing.T) {
	require.Equal(t, "✅", ConclusionIcon("success"))
	for _, c := range []string{"failure", "cancelled", "timed_out",
		"stale"} {

		require.Equal(t, "❌", ConclusionIcon(c))
	}
	require.Equal(t, "⚠️", ConclusionIcon("action_required"))
	require.Equal(t, "❔", ConclusionIcon("neutral"))
	require.Equal(t, "❔", ConclusionIcon(""))
}

func TestErrorMessagesAddressAuthor(t *testing.T) {
	withAuthor := UnexpectedErrorMessage("bob", "id-1")
	require.Regexp(t, "^@bob Oops", withAuthor)
	require.Contains(t, withAuthor, "`id-1`")

	anonymous := BugMessage("", "nil transition", "id-2")
	require.Regexp(t, "^Oops", anonymous)
	require.Contains(t, anonymous, "~~~\nnil transition\n~~~")
}

func TestCIResultMessage(t *testing.T) {
	body := CIResultMessage("0123456789abcdef", "failure",
		[]githost.CheckRun{{
			AppName: "Travis CI", Title: "unit tests",
			HTMLURL:    "https://ci.example.com/1",
			Conclusion: fn.Some("timed_out"),
		}})

	require.Equal(t, "CI run for 0123456 completed.\n\n"+
		" * Conclusion: failure\n"+
		" * [❌ Travis CI: unit tests](https://ci.example.com/1)\n",
		body)
}

func TestParseErrorMessage(t *testing.T) {
	require.Equal(t, "Sorry @bob: nope",
		ParseErrorMessage("bob", errors.New("nope")))
}

func TestNewReviewID(t *testing.T) {
	id, err := NewReviewID()
	require.NoError(t, err)
	require.Regexp(t, `^[0-9a-f]{10}$`, id)

	other, err := NewReviewID()
	require.NoError(t, err)
	require.NotEqual(t, id, other)
}
