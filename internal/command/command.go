// Package command parses bot commands out of pull request comments.
package command

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Prefix starts every command. It must be followed by whitespace.
const Prefix = "/pulljoy"

// Command is a parsed bot command. ApproveCommand is the only variant.
type Command interface {
	// Verb is the command's name as typed after the prefix.
	Verb() string

	isCommand()
}

// ApproveCommand asks the bot to mirror the pull request and start CI. It
// only applies while ReviewID matches the pending review request.
type ApproveCommand struct {
	ReviewID string
}

// Verb implements Command.
func (ApproveCommand) Verb() string { return "approve" }

func (ApproveCommand) isCommand() {}

// UnsupportedCommandTypeError is returned for an unknown verb.
type UnsupportedCommandTypeError struct {
	Verb string
}

// Error implements error.
func (e *UnsupportedCommandTypeError) Error() string {
	return fmt.Sprintf("Unsupported command type %q", e.Verb)
}

// CommandSyntaxError is returned when a known verb has malformed
// arguments.
type CommandSyntaxError struct {
	Msg string
}

// Error implements error.
func (e *CommandSyntaxError) Error() string {
	return e.Msg
}

// Parse extracts a command from a comment body. It returns None with a nil
// error when text does not start with the command prefix, and an
// *UnsupportedCommandTypeError or *CommandSyntaxError when it does but the
// rest does not parse.
func Parse(text string) (fn.Option[Command], error) {
	text = strings.TrimSpace(text)

	rest, ok := strings.CutPrefix(text, Prefix)
	if !ok || rest == "" {
		return fn.None[Command](), nil
	}

	// "/pulljoyfoo" is not a command.
	if r := []rune(rest)[0]; !unicode.IsSpace(r) {
		return fn.None[Command](), nil
	}

	fields := strings.Fields(rest)
	verb, args := fields[0], fields[1:]

	switch verb {
	case "approve":
		if len(args) != 1 {
			return fn.None[Command](), &CommandSyntaxError{
				Msg: "'approve' command requires exactly 1 " +
					"argument",
			}
		}

		return fn.Some[Command](ApproveCommand{ReviewID: args[0]}), nil

	default:
		return fn.None[Command](), &UnsupportedCommandTypeError{
			Verb: verb,
		}
	}
}
