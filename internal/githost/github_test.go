package githost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// newTestClient returns a client talking to a test server driven by mux.
func newTestClient(t *testing.T, mux *http.ServeMux) *GitHubClient {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewGitHubClient("secret", WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestDeleteRefMissingIsSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /repos/acme/widgets/git/refs/heads/pulljoy/1",
		func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"message": "Reference does not exist",
			})
		},
	)
	mux.HandleFunc("DELETE /repos/acme/widgets/git/refs/heads/pulljoy/2",
		func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"message": "boom",
			})
		},
	)
	c := newTestClient(t, mux)
	ctx := context.Background()

	require.NoError(t, c.DeleteRef(ctx, "acme/widgets", "heads/pulljoy/1"))

	err := c.DeleteRef(ctx, "acme/widgets", "heads/pulljoy/2")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	require.False(t, IsRefNotFound(err))
}

func TestPostComment(t *testing.T) {
	var body string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/widgets/issues/123/comments",
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer secret",
				r.Header.Get("Authorization"))

			var req struct {
				Body string `json:"body"`
			}
			raw, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(raw, &req))
			body = req.Body

			writeJSON(w, http.StatusCreated, map[string]any{"id": 1})
		},
	)
	c := newTestClient(t, mux)

	err := c.PostComment(context.Background(), "acme/widgets", 123, "hi")
	require.NoError(t, err)
	require.Equal(t, "hi", body)
}

func TestGetCollaboratorPermission(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/collaborators/{user}/permission",
		func(w http.ResponseWriter, r *http.Request) {
			perm := "read"
			if r.PathValue("user") == "bob" {
				perm = "write"
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"permission": perm,
			})
		},
	)
	c := newTestClient(t, mux)
	ctx := context.Background()

	perm, err := c.GetCollaboratorPermission(ctx, "acme/widgets", "bob")
	require.NoError(t, err)
	require.True(t, perm.CanCommand())

	perm, err = c.GetCollaboratorPermission(ctx, "acme/widgets", "eve")
	require.NoError(t, err)
	require.Equal(t, PermissionRead, perm)
	require.False(t, perm.CanCommand())
}

func TestListWorkflowRunsAndCancel(t *testing.T) {
	var cancelled int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/actions/runs",
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "queued", r.URL.Query().Get("status"))
			writeJSON(w, http.StatusOK, map[string]any{
				"total_count": 2,
				"workflow_runs": []map[string]any{
					{"id": 10, "head_sha": "aaa", "status": "queued"},
					{"id": 11, "head_sha": "bbb", "status": "queued"},
				},
			})
		},
	)
	mux.HandleFunc("POST /repos/acme/widgets/actions/runs/{id}/cancel",
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Sscan(r.PathValue("id"), &cancelled)
			w.WriteHeader(http.StatusAccepted)
		},
	)
	c := newTestClient(t, mux)
	ctx := context.Background()

	runs, err := c.ListWorkflowRuns(ctx, "acme/widgets", RunStatusQueued)
	require.NoError(t, err)
	require.Equal(t, []WorkflowRun{
		{ID: 10, HeadSHA: "aaa", Status: "queued"},
		{ID: 11, HeadSHA: "bbb", Status: "queued"},
	}, runs)

	require.NoError(t, c.CancelWorkflowRun(ctx, "acme/widgets", 11))
	require.EqualValues(t, 11, cancelled)
}

func TestListChecksForRef(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/commits/abc/check-suites",
		func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"total_count": 1,
				"check_suites": []map[string]any{{
					"id":         1,
					"status":     "completed",
					"conclusion": "success",
					"app":        map[string]any{"name": "GitHub Actions"},
				}},
			})
		},
	)
	mux.HandleFunc("GET /repos/acme/widgets/commits/abc/check-runs",
		func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"total_count": 1,
				"check_runs": []map[string]any{{
					"name":     "test",
					"status":   "completed",
					"html_url": "https://example.com/run/1",
					"app":      map[string]any{"name": "GitHub Actions"},
					"output":   map[string]any{"title": "All good"},
				}},
			})
		},
	)
	c := newTestClient(t, mux)
	ctx := context.Background()

	suites, err := c.ListCheckSuitesForRef(ctx, "acme/widgets", "abc")
	require.NoError(t, err)
	require.Equal(t, []CheckSuite{{
		ID:         1,
		AppName:    "GitHub Actions",
		Status:     CheckSuiteStatusCompleted,
		Conclusion: fn.Some("success"),
	}}, suites)

	runs, err := c.ListCheckRunsForRef(ctx, "acme/widgets", "abc")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "All good", runs[0].Title)
	require.True(t, runs[0].Conclusion.IsNone())
}

func TestMalformedRepo(t *testing.T) {
	c, err := NewGitHubClient("")
	require.NoError(t, err)

	_, err = c.GetPullRequest(context.Background(), "widgets", 1)
	require.ErrorContains(t, err, "malformed repository name")
}
