package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gh "github.com/google/go-github/v82/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesarferreira/needle/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClientWithHTTPClient(server.Client(), server.URL+"/", testLogger())
	require.NoError(t, err)

	return client
}

func TestFetchMergesAndDeduplicatesSearches(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /user", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"login":"testuser"}`)
	})

	searchItem := func(owner, repo string, number int) string {
		return fmt.Sprintf(
			`{"number":%d,"repository_url":"https://api.github.com/repos/%s/%s"}`,
			number, owner, repo)
	}
	mux.HandleFunc("GET /search/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		var items []string
		if strings.Contains(q, "author:@me") {
			// acme/widgets#7 appears in both searches; requested must win.
			items = []string{
				searchItem("acme", "widgets", 7),
				searchItem("acme", "gadgets", 3),
			}
		} else {
			require.Contains(t, q, "user-review-requested:@me")
			items = []string{searchItem("acme", "widgets", 7)}
		}
		fmt.Fprintf(w, `{"total_count":%d,"incomplete_results":false,"items":[%s]}`,
			len(items), strings.Join(items, ","))
	})

	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls/{number}", func(w http.ResponseWriter, r *http.Request) {
		owner, repo, number := r.PathValue("owner"), r.PathValue("repo"), r.PathValue("number")
		author := "testuser"
		if number == "7" {
			author = "alice"
		}
		fmt.Fprintf(w, `{
			"number": %s,
			"title": "PR %s",
			"html_url": "https://github.com/%s/%s/pull/%s",
			"updated_at": "2026-08-01T12:00:00Z",
			"user": {"login": "%s"},
			"draft": false,
			"mergeable": true,
			"mergeable_state": "clean",
			"head": {"sha": "abc%s", "ref": "feature"},
			"base": {"ref": "main"},
			"requested_reviewers": []
		}`, number, number, owner, repo, number, author, number)
	})

	mux.HandleFunc("GET /repos/{owner}/{repo}/commits/{ref}/check-runs", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"total_count":1,"check_runs":[
			{"name":"build","status":"completed","conclusion":"success","details_url":"https://ci/1"}
		]}`)
	})

	mux.HandleFunc("GET /repos/{owner}/{repo}/commits/{ref}/status", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"state":"success","statuses":[]}`)
	})

	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls/{number}/reviews", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[]`)
	})

	mux.HandleFunc("GET /repos/{owner}/{repo}/branches/{branch}/protection/required_status_checks",
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
		})

	client := newTestClient(t, mux)
	prs, err := client.Fetch(context.Background(), 0, false)
	require.NoError(t, err)
	require.Len(t, prs, 2)

	byKey := make(map[string]model.Pr, len(prs))
	for _, p := range prs {
		byKey[p.PrKey] = p
	}

	widgets := byKey["acme/widgets#7"]
	assert.Equal(t, model.ReviewRequested, widgets.ReviewState)
	assert.Equal(t, "alice", widgets.Author)
	assert.False(t, widgets.IsViewerAuthor)
	assert.Equal(t, model.CiSuccess, widgets.CiState)
	assert.Equal(t, "abc7", widgets.LastCommitSHA)
	require.NotNil(t, widgets.MergeBlockers)
	assert.True(t, widgets.MergeBlockers.IsClear())

	gadgets := byKey["acme/gadgets#3"]
	assert.Equal(t, model.ReviewNone, gadgets.ReviewState)
	assert.True(t, gadgets.IsViewerAuthor)
}

func TestFetchUsesTeamQualifierWhenEnabled(t *testing.T) {
	sawTeamQualifier := false
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"login":"testuser"}`)
	})
	mux.HandleFunc("GET /search/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if strings.Contains(q, "review-requested:@me") && !strings.Contains(q, "user-review-requested") {
			sawTeamQualifier = true
		}
		fmt.Fprint(w, `{"total_count":0,"incomplete_results":false,"items":[]}`)
	})

	client := newTestClient(t, mux)
	prs, err := client.Fetch(context.Background(), 0, true)
	require.NoError(t, err)

	assert.Empty(t, prs)
	assert.True(t, sawTeamQualifier)
}

func TestFetchSearchErrorAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"login":"testuser"}`)
	})
	mux.HandleFunc("GET /search/issues", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"Validation Failed"}`)
	})

	client := newTestClient(t, mux)
	_, err := client.Fetch(context.Background(), 0, false)
	assert.Error(t, err)
}

func TestMapCheckRun(t *testing.T) {
	cases := []struct {
		conclusion string
		want       model.CiCheckState
	}{
		{"success", model.CheckSuccess},
		{"failure", model.CheckFailure},
		{"timed_out", model.CheckFailure},
		{"startup_failure", model.CheckFailure},
		{"neutral", model.CheckNeutral},
		{"skipped", model.CheckNeutral},
		{"cancelled", model.CheckNeutral},
		{"action_required", model.CheckNeutral},
		{"", model.CheckRunning},
		{"mystery", model.CheckNone},
	}

	for _, tc := range cases {
		cr := &gh.CheckRun{Name: gh.Ptr("build"), Conclusion: gh.Ptr(tc.conclusion)}
		assert.Equal(t, tc.want, mapCheckRun(cr).State, "conclusion %q", tc.conclusion)
	}
}

func TestMapCommitStatus(t *testing.T) {
	cases := []struct {
		state string
		want  model.CiCheckState
	}{
		{"success", model.CheckSuccess},
		{"failure", model.CheckFailure},
		{"error", model.CheckFailure},
		{"pending", model.CheckRunning},
		{"mystery", model.CheckNone},
	}

	for _, tc := range cases {
		s := &gh.RepoStatus{Context: gh.Ptr("ci/test"), State: gh.Ptr(tc.state)}
		assert.Equal(t, tc.want, mapCommitStatus(s).State, "state %q", tc.state)
	}
}

func TestRollupCiState(t *testing.T) {
	mk := func(states ...model.CiCheckState) []model.CiCheck {
		out := make([]model.CiCheck, len(states))
		for i, s := range states {
			out[i] = model.CiCheck{State: s}
		}
		return out
	}

	assert.Equal(t, model.CiFailure, rollupCiState(mk(model.CheckSuccess, model.CheckFailure, model.CheckRunning)))
	assert.Equal(t, model.CiRunning, rollupCiState(mk(model.CheckSuccess, model.CheckRunning)))
	assert.Equal(t, model.CiSuccess, rollupCiState(mk(model.CheckSuccess, model.CheckNeutral)))
	assert.Equal(t, model.CiNone, rollupCiState(mk(model.CheckNeutral)))
	assert.Equal(t, model.CiNone, rollupCiState(nil))
}

func TestSortChecksFailuresFirst(t *testing.T) {
	checks := []model.CiCheck{
		{Name: "z-lint", State: model.CheckSuccess},
		{Name: "a-lint", State: model.CheckSuccess},
		{Name: "e2e", State: model.CheckFailure},
		{Name: "deploy", State: model.CheckRunning},
	}
	sortChecks(checks)

	assert.Equal(t, "e2e", checks[0].Name)
	assert.Equal(t, "deploy", checks[1].Name)
	assert.Equal(t, "a-lint", checks[2].Name)
	assert.Equal(t, "z-lint", checks[3].Name)
}

func TestRepoFromIssue(t *testing.T) {
	issue := &gh.Issue{RepositoryURL: gh.Ptr("https://api.github.com/repos/acme/widgets")}
	owner, repo, err := repoFromIssue(issue)
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", repo)

	_, _, err = repoFromIssue(&gh.Issue{RepositoryURL: gh.Ptr("https://example.com/nope")})
	assert.Error(t, err)
}

func TestRetryTransportRetriesOn500(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	t.Cleanup(server.Close)

	client := &http.Client{Transport: &RetryTransport{}}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, attempts)
}

func TestRetryTransportDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	client := &http.Client{Transport: &RetryTransport{}}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, attempts)
}
