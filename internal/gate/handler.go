package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/pulljoy/internal/command"
	"github.com/roasbeef/pulljoy/internal/event"
	"github.com/roasbeef/pulljoy/internal/githost"
	"github.com/roasbeef/pulljoy/internal/mirror"
	"github.com/roasbeef/pulljoy/internal/store"
)

// TransitionNotice describes a state change of one pull request. It never
// carries review IDs.
type TransitionNotice struct {
	Repo  string
	PRNum int64
	From  string
	To    string
	At    time.Time
}

// Notifier is told about every state change. Notifications are best
// effort, so implementations must not block for long and cannot fail the
// transition.
type Notifier interface {
	NotifyTransition(ctx context.Context, notice TransitionNotice)
}

// Config holds the Handler's collaborators.
type Config struct {
	// Store holds the state of every tracked pull request.
	Store store.StateStore

	// Host is the git hosting API.
	Host githost.Client

	// Mirror copies approved commits into the base repository.
	Mirror mirror.Mirror

	// BotLogin is the login the bot comments as. Its own comments are
	// ignored.
	BotLogin string

	// Notifiers are told about state changes.
	Notifiers []Notifier

	// NewReviewID overrides review ID generation. Nil means
	// NewReviewID.
	NewReviewID func() (string, error)

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Handler processes inbound events for pull requests. It is not safe to
// process two events for the same pull request concurrently; callers
// serialize per ordering key.
type Handler struct {
	cfg Config
}

// NewHandler returns a handler for cfg.
func NewHandler(cfg Config) (*Handler, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("gate: state store required")

	case cfg.Host == nil:
		return nil, errors.New("gate: git host client required")

	case cfg.Mirror == nil:
		return nil, errors.New("gate: mirror required")

	case cfg.BotLogin == "":
		return nil, errors.New("gate: bot login required")
	}

	if cfg.NewReviewID == nil {
		cfg.NewReviewID = NewReviewID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Handler{cfg: cfg}, nil
}

// Process handles one inbound event. Failures are reported on the pull
// request and logged under an error ID, then returned so the transport can
// signal failure to the sender.
func (h *Handler) Process(ctx context.Context, ev event.Event) error {
	log.InfoS(ctx, "Processing event", "kind", ev.Kind(),
		"action", ev.EventAction(), "repo", ev.RepoFullName(),
		"delivery_id", DeliveryID(ctx))

	switch e := ev.(type) {
	case *event.PullRequestEvent:
		rc := RequestContext{
			Repo:       e.Repo,
			PRNum:      e.PullRequest.Number,
			Author:     someIfSet(e.Actor),
			DeliveryID: DeliveryID(ctx),
		}

		gateEvent, ok := pullRequestGateEvent(e)
		if !ok {
			log.DebugS(ctx, "Ignoring pull request action",
				append(rc.logAttrs(), "action", e.Action)...)

			return nil
		}

		return h.guard(ctx, rc, func() error {
			return h.run(ctx, rc, gateEvent)
		})

	case *event.IssueCommentEvent:
		rc := RequestContext{
			Repo:       e.Repo,
			PRNum:      e.IssueNumber,
			Author:     someIfSet(e.Comment.Author),
			CommentID:  fn.Some(e.Comment.ID),
			DeliveryID: DeliveryID(ctx),
		}

		if e.Action != event.ActionCreated {
			log.DebugS(ctx, "Ignoring comment action",
				append(rc.logAttrs(), "action", e.Action)...)

			return nil
		}

		return h.guard(ctx, rc, func() error {
			return h.handleComment(ctx, rc, e.Comment)
		})

	case *event.CheckSuiteEvent:
		if e.Action != event.ActionCompleted {
			log.DebugS(ctx, "Ignoring check suite action",
				"repo", e.Repo, "action", e.Action)

			return nil
		}

		if len(e.CheckSuite.PullRequests) == 0 {
			log.DebugS(ctx, "Ignoring check suite without pull "+
				"requests", "repo", e.Repo,
				"commit", e.CheckSuite.HeadSHA)

			return nil
		}

		var errs []error
		for _, prNum := range e.CheckSuite.PullRequests {
			rc := RequestContext{
				Repo:       e.Repo,
				PRNum:      prNum,
				DeliveryID: DeliveryID(ctx),
			}
			err := h.guard(ctx, rc, func() error {
				return h.run(ctx, rc, CheckSuiteCompleted{
					HeadSHA: e.CheckSuite.HeadSHA,
				})
			})
			errs = append(errs, err)
		}

		return errors.Join(errs...)

	default:
		return &BugError{Msg: fmt.Sprintf("unsupported event %T", ev)}
	}
}

// pullRequestGateEvent maps a pull request action to its FSM event.
func pullRequestGateEvent(e *event.PullRequestEvent) (GateEvent, bool) {
	switch e.Action {
	case event.ActionOpened:
		return PullRequestOpened{}, true

	case event.ActionReopened:
		return PullRequestOpened{Reopened: true}, true

	case event.ActionSynchronize:
		return PullRequestSynchronized{
			HeadSHA: e.PullRequest.Head.SHA,
		}, true

	case event.ActionClosed:
		return PullRequestClosed{}, true

	default:
		return nil, false
	}
}

// handleComment applies the comment policy: the bot's own comments and
// comments without a command are ignored, and nothing else is looked at
// until the author is known to be authorized.
func (h *Handler) handleComment(ctx context.Context, rc RequestContext,
	comment event.Comment) error {

	author := comment.Author
	if strings.EqualFold(author, h.cfg.BotLogin) {
		log.DebugS(ctx, "Ignoring comment by myself", rc.logAttrs()...)
		return nil
	}

	cmd, parseErr := command.Parse(comment.Body)
	if parseErr == nil && cmd.IsNone() {
		log.DebugS(ctx, "Ignoring comment without command",
			rc.logAttrs()...)

		return nil
	}

	perm, err := h.cfg.Host.GetCollaboratorPermission(
		ctx, rc.Repo, author,
	)
	if err != nil {
		return fmt.Errorf("check permission of %s: %w", author, err)
	}

	if !perm.CanCommand() {
		log.InfoS(ctx, "Refusing command from unauthorized user",
			append(rc.logAttrs(), "permission", perm)...)

		return h.postComment(ctx, rc, RefusalMessage(author))
	}

	if parseErr != nil {
		log.InfoS(ctx, "Rejecting malformed command",
			append(rc.logAttrs(), "reason", parseErr.Error())...)

		return h.postComment(ctx, rc, ParseErrorMessage(author, parseErr))
	}

	switch c := cmd.UnwrapOr(nil).(type) {
	case command.ApproveCommand:
		return h.run(ctx, rc, ApproveRequested{
			ReviewID: c.ReviewID,
			Author:   author,
		})

	default:
		return &BugError{Msg: fmt.Sprintf(
			"unsupported command type %T", c,
		)}
	}
}

// run loads the pull request's state, feeds ev to it and carries out the
// resulting side effects.
func (h *Handler) run(ctx context.Context, rc RequestContext,
	ev GateEvent) error {

	rec, err := h.cfg.Store.Load(ctx, rc.Repo, rc.PRNum)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	state, err := StateFromRecord(rec)
	if err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	env := &Environment{
		Key:         store.PullRequestKey{Repo: rc.Repo, PRNum: rc.PRNum},
		Host:        h.cfg.Host,
		NewReviewID: h.cfg.NewReviewID,
	}

	transition, err := state.ProcessEvent(ctx, ev, env)
	if err != nil {
		return fmt.Errorf("process %T in state %v: %w", ev, state, err)
	}

	log.DebugS(ctx, "Computed transition", append(rc.logAttrs(),
		"event", fmt.Sprintf("%T", ev), "from", state,
		"to", transition.NextState,
		"num_effects", len(transition.OutboxEvents))...)

	return h.processOutbox(ctx, rc, transition.OutboxEvents)
}

// processOutbox carries out side effects in order, stopping at the first
// failure.
func (h *Handler) processOutbox(ctx context.Context, rc RequestContext,
	events []GateOutboxEvent) error {

	for _, ev := range events {
		var err error

		switch e := ev.(type) {
		case PostComment:
			err = h.postComment(ctx, rc, e.Body)

		case CancelCIRun:
			err = h.cancelCIRun(ctx, rc, e.CommitSHA)

		case DeleteMirrorBranch:
			log.DebugS(ctx, "Deleting mirrored branch",
				append(rc.logAttrs(), "branch", e.Branch)...)

			err = h.cfg.Host.DeleteRef(ctx, rc.Repo, "heads/"+e.Branch)

		case MirrorBranch:
			err = h.mirrorBranch(ctx, rc, e)

		case PersistState:
			err = h.cfg.Store.Save(ctx, rc.Repo, rc.PRNum, e.State)

		case DeleteState:
			err = h.cfg.Store.Delete(ctx, rc.Repo, rc.PRNum)

		case NotifyTransition:
			h.notify(ctx, rc, e)

		default:
			err = &BugError{Msg: fmt.Sprintf(
				"unsupported outbox event %T", ev,
			)}
		}

		if err != nil {
			return fmt.Errorf("%T: %w", ev, err)
		}
	}

	return nil
}

func (h *Handler) postComment(ctx context.Context, rc RequestContext,
	body string) error {

	return h.cfg.Host.PostComment(ctx, rc.Repo, rc.PRNum, body)
}

// cancelCIRun cancels the first queued, then in-progress, workflow run
// building commitSHA. Finding none is not an error.
func (h *Handler) cancelCIRun(ctx context.Context, rc RequestContext,
	commitSHA string) error {

	for _, status := range []string{
		githost.RunStatusQueued, githost.RunStatusInProgress,
	} {
		runs, err := h.cfg.Host.ListWorkflowRuns(ctx, rc.Repo, status)
		if err != nil {
			return err
		}

		for _, run := range runs {
			if run.HeadSHA != commitSHA {
				continue
			}

			log.InfoS(ctx, "Cancelling CI run", append(rc.logAttrs(),
				"run_id", run.ID, "commit", commitSHA)...)

			return h.cfg.Host.CancelWorkflowRun(ctx, rc.Repo, run.ID)
		}
	}

	log.DebugS(ctx, "No CI run to cancel",
		append(rc.logAttrs(), "commit", commitSHA)...)

	return nil
}

func (h *Handler) mirrorBranch(ctx context.Context, rc RequestContext,
	e MirrorBranch) error {

	output, err := h.cfg.Mirror.Mirror(ctx, mirror.Request{
		SourceRepo:   e.SourceRepo,
		SourceSHA:    e.SourceSHA,
		TargetRepo:   e.TargetRepo,
		TargetBranch: e.Branch,
	})
	if err != nil {
		log.ErrorS(ctx, "Error creating mirrored branch", err,
			append(rc.logAttrs(), "branch", e.Branch,
				"output", output)...)

		return fmt.Errorf("create branch %s: %w", e.Branch, err)
	}

	log.DebugS(ctx, "Created mirrored branch", append(rc.logAttrs(),
		"branch", e.Branch, "commit", e.SourceSHA)...)

	return nil
}

func (h *Handler) notify(ctx context.Context, rc RequestContext,
	e NotifyTransition) {

	log.InfoS(ctx, "Pull request changed state",
		append(rc.logAttrs(), "from", e.From, "to", e.To)...)

	notice := TransitionNotice{
		Repo:  rc.Repo,
		PRNum: rc.PRNum,
		From:  e.From,
		To:    e.To,
		At:    h.cfg.Now(),
	}
	for _, n := range h.cfg.Notifiers {
		n.NotifyTransition(ctx, notice)
	}
}

// guard runs f and reports any failure, including a panic, on the pull
// request.
func (h *Handler) guard(ctx context.Context, rc RequestContext,
	f func() error) (err error) {

	defer func() {
		if r := recover(); r != nil {
			err = &BugError{Msg: fmt.Sprintf("panic: %v", r)}
		}
		if err != nil {
			h.reportError(ctx, rc, err)
		}
	}()

	return f()
}

// reportError logs err in full under a fresh error ID and posts a notice
// with that ID on the pull request.
func (h *Handler) reportError(ctx context.Context, rc RequestContext,
	err error) {

	errorID := uuid.NewString()
	log.ErrorS(ctx, "Error processing event", err,
		append(rc.logAttrs(), "error_id", errorID)...)

	author := rc.Author.UnwrapOr("")

	var body string
	var bug *BugError
	if errors.As(err, &bug) {
		body = BugMessage(author, bug.Msg, errorID)
	} else {
		body = UnexpectedErrorMessage(author, errorID)
	}

	if postErr := h.postComment(ctx, rc, body); postErr != nil {
		log.ErrorS(ctx, "Unable to report error on pull request",
			postErr, append(rc.logAttrs(), "error_id", errorID)...)
	}
}

func someIfSet(s string) fn.Option[string] {
	if s == "" {
		return fn.None[string]()
	}

	return fn.Some(s)
}
