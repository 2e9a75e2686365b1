package gate

import "errors"

// BugError marks a failure caused by a defect in the bot rather than by
// its environment. It is reported to the pull request as a bug.
type BugError struct {
	Msg string
}

// Error implements error.
func (e *BugError) Error() string {
	return "bug: " + e.Msg
}

// IsBug reports whether err is, or wraps, a *BugError.
func IsBug(err error) bool {
	var bug *BugError
	return errors.As(err, &bug)
}
