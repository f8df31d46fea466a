// Package github implements the Fetcher port over the GitHub REST API.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/cesarferreira/needle/internal/domain/model"
	"github.com/cesarferreira/needle/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Fetcher = (*Client)(nil)

// Client implements the driven.Fetcher port using the go-github library.
type Client struct {
	gh     *gh.Client
	logger *slog.Logger
}

// NewClient builds a GitHub client with the full transport stack:
//  1. retry (exponential backoff on 429/5xx/rate-limit 403)
//  2. httpcache (ETag conditional request caching)
//  3. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  4. go-github (REST client with PAT auth)
func NewClient(token string, logger *slog.Logger) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	cacheTransport.Transport = &RetryTransport{}
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{gh: client, logger: logger}
}

// NewClientWithHTTPClient builds a Client against a custom base URL, intended
// for httptest servers.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, logger *slog.Logger) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client, logger: logger}, nil
}

// Fetch retrieves the viewer's attention set: open PRs they authored plus
// open PRs where their review is requested, updated at or after cutoff,
// deduplicated by key. Every PR is enriched with checks, review state, and
// merge blockers before it is returned; any error aborts the whole fetch.
func (c *Client) Fetch(ctx context.Context, cutoff int64, includeTeamRequests bool) ([]model.Pr, error) {
	viewer, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("resolving viewer login: %w", err)
	}
	login := viewer.GetLogin()

	cutoffDate := time.Unix(cutoff, 0).UTC().Format("2006-01-02")

	authored, err := c.searchIssues(ctx,
		fmt.Sprintf("is:pr is:open author:@me updated:>=%s", cutoffDate))
	if err != nil {
		return nil, err
	}

	// user-review-requested matches only direct requests; review-requested
	// additionally matches requests to teams the viewer belongs to.
	qualifier := "user-review-requested:@me"
	if includeTeamRequests {
		qualifier = "review-requested:@me"
	}
	requested, err := c.searchIssues(ctx,
		fmt.Sprintf("is:pr is:open %s updated:>=%s", qualifier, cutoffDate))
	if err != nil {
		return nil, err
	}

	type hit struct {
		owner     string
		repo      string
		number    int
		requested bool
	}

	var order []string
	hits := make(map[string]*hit)
	add := func(issue *gh.Issue, isRequested bool) error {
		owner, repo, err := repoFromIssue(issue)
		if err != nil {
			return err
		}
		key := model.PrKeyFor(owner, repo, issue.GetNumber())
		if h, ok := hits[key]; ok {
			h.requested = h.requested || isRequested
			return nil
		}
		hits[key] = &hit{owner: owner, repo: repo, number: issue.GetNumber(), requested: isRequested}
		order = append(order, key)
		return nil
	}

	for _, issue := range authored {
		if err := add(issue, false); err != nil {
			return nil, err
		}
	}
	for _, issue := range requested {
		if err := add(issue, true); err != nil {
			return nil, err
		}
	}

	prs := make([]model.Pr, 0, len(order))
	for _, key := range order {
		h := hits[key]
		pr, err := c.fetchPr(ctx, h.owner, h.repo, h.number, h.requested, login)
		if err != nil {
			return nil, err
		}
		// Search cutoffs have day granularity; enforce the exact one here.
		if pr.UpdatedAt < cutoff {
			continue
		}
		prs = append(prs, pr)
	}

	return prs, nil
}

// searchIssues runs one search query across all result pages.
func (c *Client) searchIssues(ctx context.Context, query string) ([]*gh.Issue, error) {
	opts := &gh.SearchOptions{
		Sort:        "updated",
		Order:       "desc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var all []*gh.Issue
	for {
		result, resp, err := c.gh.Search.Issues(ctx, query, opts)
		if err != nil {
			return nil, fmt.Errorf("searching %q (page %d): %w", query, opts.Page, err)
		}

		c.logRateLimit(resp, "search", opts.Page, len(result.Issues))
		all = append(all, result.Issues...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// fetchPr enriches one search hit into a full model.Pr.
func (c *Client) fetchPr(ctx context.Context, owner, repo string, number int, requested bool, viewer string) (model.Pr, error) {
	full := owner + "/" + repo

	pr, resp, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return model.Pr{}, fmt.Errorf("fetching %s#%d: %w", full, number, err)
	}
	c.logRateLimit(resp, full+"/pr", 0, 1)

	sha := pr.GetHead().GetSHA()

	checks, err := c.fetchChecks(ctx, owner, repo, sha)
	if err != nil {
		return model.Pr{}, err
	}

	approvals, changesRequested, err := c.fetchReviewSummary(ctx, owner, repo, number)
	if err != nil {
		return model.Pr{}, err
	}

	// A direct user request can predate either search result going stale, so
	// the requested_reviewers list on the PR itself also counts.
	if !requested {
		for _, r := range pr.RequestedReviewers {
			if r.GetLogin() == viewer {
				requested = true
				break
			}
		}
	}

	reviewState := model.ReviewNone
	switch {
	case requested:
		reviewState = model.ReviewRequested
	case approvals > 0 && !changesRequested:
		reviewState = model.ReviewApproved
	}

	blockers, err := c.buildBlockers(ctx, owner, repo, pr, checks, approvals)
	if err != nil {
		return model.Pr{}, err
	}

	return model.Pr{
		PrKey:            model.PrKeyFor(owner, repo, number),
		Owner:            owner,
		Repo:             repo,
		Number:           number,
		Author:           pr.GetUser().GetLogin(),
		Title:            pr.GetTitle(),
		URL:              pr.GetHTMLURL(),
		UpdatedAt:        pr.GetUpdatedAt().Unix(),
		LastCommitSHA:    sha,
		CiState:          rollupCiState(checks),
		CiChecks:         checks,
		ReviewState:      reviewState,
		IsDraft:          pr.GetDraft(),
		Mergeable:        mergeableText(pr.Mergeable),
		MergeStateStatus: pr.GetMergeableState(),
		IsViewerAuthor:   pr.GetUser().GetLogin() == viewer,
		MergeBlockers:    blockers,
	}, nil
}

// fetchChecks collects check runs and legacy commit statuses for a ref into
// one normalized list, failures first.
func (c *Client) fetchChecks(ctx context.Context, owner, repo, ref string) ([]model.CiCheck, error) {
	full := owner + "/" + repo
	var checks []model.CiCheck

	opts := &gh.ListCheckRunsOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	for {
		result, resp, err := c.gh.Checks.ListCheckRunsForRef(ctx, owner, repo, ref, opts)
		if err != nil {
			return nil, fmt.Errorf("listing check runs for %s@%s: %w", full, ref, err)
		}
		c.logRateLimit(resp, full+"/check-runs", opts.Page, len(result.CheckRuns))

		for _, cr := range result.CheckRuns {
			checks = append(checks, mapCheckRun(cr))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	cs, resp, err := c.gh.Repositories.GetCombinedStatus(ctx, owner, repo, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching combined status for %s@%s: %w", full, ref, err)
	}
	c.logRateLimit(resp, full+"/status", 0, len(cs.Statuses))

	for _, s := range cs.Statuses {
		checks = append(checks, mapCommitStatus(s))
	}

	sortChecks(checks)
	return checks, nil
}

// fetchReviewSummary reduces the review history to what scoring needs: the
// count of distinct approving reviewers and whether anyone's latest review
// requests changes. Only each reviewer's most recent review counts.
func (c *Client) fetchReviewSummary(ctx context.Context, owner, repo string, number int) (approvals int, changesRequested bool, err error) {
	opts := &gh.ListOptions{PerPage: 100}
	latest := make(map[string]string)

	for {
		reviews, resp, err := c.gh.PullRequests.ListReviews(ctx, owner, repo, number, opts)
		if err != nil {
			return 0, false, fmt.Errorf("listing reviews for %s/%s#%d: %w", owner, repo, number, err)
		}

		for _, r := range reviews {
			state := r.GetState()
			// COMMENTED and DISMISSED never override a standing verdict.
			if state != "APPROVED" && state != "CHANGES_REQUESTED" {
				continue
			}
			latest[r.GetUser().GetLogin()] = state
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	for _, state := range latest {
		switch state {
		case "APPROVED":
			approvals++
		case "CHANGES_REQUESTED":
			changesRequested = true
		}
	}
	return approvals, changesRequested, nil
}

// buildBlockers derives the merge blocker snapshot for a PR.
func (c *Client) buildBlockers(ctx context.Context, owner, repo string, pr *gh.PullRequest, checks []model.CiCheck, approvals int) (*model.MergeBlockers, error) {
	required, err := c.fetchRequiredChecks(ctx, owner, repo, pr.GetBase().GetRef())
	if err != nil {
		return nil, err
	}

	var failingRequired []string
	if len(required) > 0 {
		failing := make(map[string]bool)
		for _, ch := range checks {
			if ch.IsFailure() {
				failing[ch.Name] = true
			}
		}
		for _, name := range required {
			if failing[name] {
				failingRequired = append(failingRequired, name)
			}
		}
	}

	state := pr.GetMergeableState()
	return &model.MergeBlockers{
		HasConflicts:     (pr.Mergeable != nil && !pr.GetMergeable()) || state == "dirty",
		BehindBase:       state == "behind",
		ApprovalsCurrent: approvals,
		RequiredChecks:   required,
		FailingRequired:  failingRequired,
	}, nil
}

// fetchRequiredChecks returns the required status check contexts for a
// branch. Unprotected branches (404) and missing permissions (403) both read
// as no requirements.
func (c *Client) fetchRequiredChecks(ctx context.Context, owner, repo, branch string) ([]string, error) {
	checks, resp, err := c.gh.Repositories.GetRequiredStatusChecks(ctx, owner, repo, branch)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching required checks for %s/%s@%s: %w", owner, repo, branch, err)
	}

	var contexts []string
	for _, check := range checks.GetChecks() {
		contexts = append(contexts, check.Context)
	}
	return contexts, nil
}

// logRateLimit logs API usage and warns when the quota runs low.
func (c *Client) logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	c.logger.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
	)

	if resp.Rate.Remaining < 100 {
		c.logger.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// mapCheckRun converts a check run to a CiCheck. A missing conclusion means
// the run has not completed yet.
func mapCheckRun(cr *gh.CheckRun) model.CiCheck {
	var state model.CiCheckState
	switch cr.GetConclusion() {
	case "success":
		state = model.CheckSuccess
	case "failure", "timed_out", "startup_failure":
		state = model.CheckFailure
	case "neutral", "skipped", "stale", "cancelled", "action_required":
		state = model.CheckNeutral
	case "":
		state = model.CheckRunning
	default:
		state = model.CheckNone
	}

	var startedAt int64
	if cr.StartedAt != nil {
		startedAt = cr.GetStartedAt().Unix()
	}

	name := cr.GetName()
	if name == "" {
		name = "check"
	}

	return model.CiCheck{
		Name:      name,
		State:     state,
		URL:       cr.GetDetailsURL(),
		StartedAt: startedAt,
	}
}

// mapCommitStatus converts a legacy commit status to a CiCheck. Statuses
// carry no start time.
func mapCommitStatus(s *gh.RepoStatus) model.CiCheck {
	var state model.CiCheckState
	switch s.GetState() {
	case "success":
		state = model.CheckSuccess
	case "failure", "error":
		state = model.CheckFailure
	case "pending":
		state = model.CheckRunning
	default:
		state = model.CheckNone
	}

	name := s.GetContext()
	if name == "" {
		name = "status"
	}

	return model.CiCheck{
		Name:  name,
		State: state,
		URL:   s.GetTargetURL(),
	}
}

// rollupCiState reduces the check list to the PR-level state:
// failing > running > passing > none.
func rollupCiState(checks []model.CiCheck) model.CiState {
	anyRunning := false
	anySuccess := false
	for _, ch := range checks {
		switch ch.State {
		case model.CheckFailure:
			return model.CiFailure
		case model.CheckRunning:
			anyRunning = true
		case model.CheckSuccess:
			anySuccess = true
		}
	}
	if anyRunning {
		return model.CiRunning
	}
	if anySuccess {
		return model.CiSuccess
	}
	return model.CiNone
}

// sortChecks orders failures first, then running, passing, neutral, and
// unknown, with name as the tiebreaker.
func sortChecks(checks []model.CiCheck) {
	rank := func(s model.CiCheckState) int {
		switch s {
		case model.CheckFailure:
			return 0
		case model.CheckRunning:
			return 1
		case model.CheckSuccess:
			return 2
		case model.CheckNeutral:
			return 3
		default:
			return 4
		}
	}
	sort.SliceStable(checks, func(i, j int) bool {
		ri, rj := rank(checks[i].State), rank(checks[j].State)
		if ri != rj {
			return ri < rj
		}
		return checks[i].Name < checks[j].Name
	})
}

func mergeableText(mergeable *bool) string {
	if mergeable == nil {
		return "unknown"
	}
	if *mergeable {
		return "mergeable"
	}
	return "conflicting"
}

// repoFromIssue extracts owner and repo from a search result's repository
// API URL ("https://api.github.com/repos/{owner}/{repo}").
func repoFromIssue(issue *gh.Issue) (string, string, error) {
	u := issue.GetRepositoryURL()
	idx := strings.Index(u, "/repos/")
	if idx < 0 {
		return "", "", fmt.Errorf("unexpected repository url %q", u)
	}
	parts := strings.SplitN(u[idx+len("/repos/"):], "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("unexpected repository url %q", u)
	}
	return parts[0], parts[1], nil
}
