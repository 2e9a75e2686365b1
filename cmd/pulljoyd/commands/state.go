package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/roasbeef/pulljoy/internal/store"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and repair tracked pull requests",
	Long: `Read or delete the review state the gate keeps per pull request.
Deleting a state makes the pull request untracked; the next pull request
event starts a fresh review.`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every tracked pull request",
	Args:  cobra.NoArgs,
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <repo> <pr-number>",
	Short: "Show the state of one pull request",
	Args:  cobra.ExactArgs(2),
	RunE:  runStateShow,
}

var stateDeleteCmd = &cobra.Command{
	Use:   "delete <repo> <pr-number>",
	Short: "Forget one pull request",
	Args:  cobra.ExactArgs(2),
	RunE:  runStateDelete,
}

// stateListRepo filters the list command.
var stateListRepo string

func init() {
	stateListCmd.Flags().StringVar(
		&stateListRepo, "repo", "",
		"Only list pull requests of this repository",
	)

	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateDeleteCmd)
}

// stateView is the printable form of a state. Review IDs are left out.
type stateView struct {
	Repo      string    `json:"repo"`
	PRNum     int64     `json:"pr_num"`
	State     string    `json:"state"`
	CommitSHA string    `json:"commit_sha,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newStateView(st store.ReviewState) stateView {
	return stateView{
		Repo:      st.Repo,
		PRNum:     st.PRNum,
		State:     string(st.Name),
		CommitSHA: st.CommitSHA.UnwrapOr(""),
		CreatedAt: st.CreatedAt.UTC(),
		UpdatedAt: st.UpdatedAt.UTC(),
	}
}

// withStore loads the configuration, opens the state store and runs f.
func withStore(f func(ctx context.Context, states stateStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logMgr, err := setupLogging(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer logMgr.Close()

	ctx := context.Background()

	states, closeStore, err := openStore(
		ctx, cfg, logMgr.SlogLogger(dbSubsystem),
	)
	if err != nil {
		return err
	}
	defer closeStore()

	return f(ctx, states)
}

// parsePullRequest parses the <repo> <pr-number> arguments.
func parsePullRequest(args []string) (store.PullRequestKey, error) {
	repo := args[0]
	if owner, name, ok := strings.Cut(repo, "/"); !ok || owner == "" ||
		name == "" {

		return store.PullRequestKey{}, fmt.Errorf("repo must be "+
			"owner/name, got %q", repo)
	}

	prNum, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || prNum <= 0 {
		return store.PullRequestKey{}, fmt.Errorf("invalid pull "+
			"request number %q", args[1])
	}

	return store.PullRequestKey{Repo: repo, PRNum: prNum}, nil
}

func runStateList(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, states stateStore) error {
		all, err := states.List(ctx)
		if err != nil {
			return err
		}

		views := make([]stateView, 0, len(all))
		for _, st := range all {
			if stateListRepo != "" && st.Repo != stateListRepo {
				continue
			}
			views = append(views, newStateView(st))
		}

		if outputFormat == "json" {
			return outputJSON(views)
		}

		if len(views) == 0 {
			fmt.Println("No tracked pull requests.")
			return nil
		}

		for _, v := range views {
			fmt.Print(formatState(v))
		}

		return nil
	})
}

func runStateShow(cmd *cobra.Command, args []string) error {
	key, err := parsePullRequest(args)
	if err != nil {
		return err
	}

	return withStore(func(ctx context.Context, states stateStore) error {
		rec, err := states.Load(ctx, key.Repo, key.PRNum)
		if err != nil {
			return err
		}

		if rec.IsNone() {
			if outputFormat == "json" {
				return outputJSON(map[string]any{
					"repo":    key.Repo,
					"pr_num":  key.PRNum,
					"tracked": false,
				})
			}

			fmt.Printf("%s is not tracked.\n", key)
			return nil
		}

		view := newStateView(rec.UnwrapOr(store.ReviewState{}))
		if outputFormat == "json" {
			return outputJSON(view)
		}

		fmt.Print(formatState(view))

		return nil
	})
}

func runStateDelete(cmd *cobra.Command, args []string) error {
	key, err := parsePullRequest(args)
	if err != nil {
		return err
	}

	return withStore(func(ctx context.Context, states stateStore) error {
		if err := states.Delete(ctx, key.Repo, key.PRNum); err != nil {
			return err
		}

		fmt.Printf("Deleted state of %s.\n", key)

		return nil
	})
}

// formatState renders one state as a line of text.
func formatState(v stateView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-40s %-24s", fmt.Sprintf("%s/%d", v.Repo, v.PRNum),
		v.State)
	if v.CommitSHA != "" {
		fmt.Fprintf(&b, " commit=%s", v.CommitSHA)
	}
	fmt.Fprintf(&b, " updated=%s\n", v.UpdatedAt.Format(time.RFC3339))

	return b.String()
}
