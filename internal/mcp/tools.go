package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/pulljoy/internal/store"
)

// ReviewStateResult describes one pull request. Review IDs act as approval
// tokens and are never returned.
type ReviewStateResult struct {
	Repo      string `json:"repo"`
	PRNum     int64  `json:"pr_num"`
	Tracked   bool   `json:"tracked"`
	State     string `json:"state"`
	CommitSHA string `json:"commit_sha,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func reviewStateResult(st store.ReviewState) ReviewStateResult {
	return ReviewStateResult{
		Repo:      st.Repo,
		PRNum:     st.PRNum,
		Tracked:   true,
		State:     string(st.Name),
		CommitSHA: st.CommitSHA.UnwrapOr(""),
		CreatedAt: st.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: st.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// GetReviewStateArgs are the arguments for the get_review_state tool.
type GetReviewStateArgs struct {
	Repo  string `json:"repo" jsonschema:"Full repository name, e.g. acme/widgets"`
	PRNum int64  `json:"pr_num" jsonschema:"Pull request number"`
}

func (s *Server) handleGetReviewState(ctx context.Context,
	_ *mcp.CallToolRequest,
	args GetReviewStateArgs) (*mcp.CallToolResult, ReviewStateResult, error) {

	if args.Repo == "" || args.PRNum <= 0 {
		return nil, ReviewStateResult{}, fmt.Errorf("repo and a " +
			"positive pr_num are required")
	}

	rec, err := s.states.Load(ctx, args.Repo, args.PRNum)
	if err != nil {
		return nil, ReviewStateResult{}, err
	}

	result := ReviewStateResult{
		Repo:  args.Repo,
		PRNum: args.PRNum,
		State: "untracked",
	}
	rec.WhenSome(func(st store.ReviewState) {
		result = reviewStateResult(st)
	})

	return nil, result, nil
}

// ListReviewStatesArgs are the arguments for the list_review_states tool.
type ListReviewStatesArgs struct {
	Repo  string `json:"repo,omitempty" jsonschema:"Only list this repository"`
	State string `json:"state,omitempty" jsonschema:"Only list this state: awaiting_manual_review, awaiting_ci or standing_by"`
}

// ListReviewStatesResult is the result of the list_review_states tool.
type ListReviewStatesResult struct {
	States []ReviewStateResult `json:"states"`
}

func (s *Server) handleListReviewStates(ctx context.Context,
	_ *mcp.CallToolRequest,
	args ListReviewStatesArgs) (*mcp.CallToolResult,
	ListReviewStatesResult, error) {

	if args.State != "" {
		if _, err := store.ParseStateName(args.State); err != nil {
			return nil, ListReviewStatesResult{}, err
		}
	}

	states, err := s.states.List(ctx)
	if err != nil {
		return nil, ListReviewStatesResult{}, err
	}

	result := ListReviewStatesResult{
		States: make([]ReviewStateResult, 0, len(states)),
	}
	for _, st := range states {
		if args.Repo != "" && st.Repo != args.Repo {
			continue
		}
		if args.State != "" && string(st.Name) != args.State {
			continue
		}

		result.States = append(result.States, reviewStateResult(st))
	}

	return nil, result, nil
}
