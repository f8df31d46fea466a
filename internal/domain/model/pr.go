// Package model contains the domain entities shared by every other package:
// pull requests, CI checks, merge blockers, and the scored UI projection.
package model

import "fmt"

// CiState is the aggregate CI state of a pull request's head commit.
type CiState string

const (
	CiSuccess CiState = "success"
	CiFailure CiState = "failure"
	CiRunning CiState = "running"
	CiNone    CiState = "none"
)

// ParseCiState maps a stored string back to a CiState. Unknown values
// degrade to CiNone so older cache rows keep loading.
func ParseCiState(s string) CiState {
	switch CiState(s) {
	case CiSuccess, CiFailure, CiRunning:
		return CiState(s)
	default:
		return CiNone
	}
}

// ReviewState is the review situation as it pertains to the viewer.
// "Requested" takes precedence over "Approved" when both apply.
type ReviewState string

const (
	ReviewRequested ReviewState = "requested"
	ReviewApproved  ReviewState = "approved"
	ReviewNone      ReviewState = "none"
)

// ParseReviewState maps a stored string back to a ReviewState.
func ParseReviewState(s string) ReviewState {
	switch ReviewState(s) {
	case ReviewRequested, ReviewApproved:
		return ReviewState(s)
	default:
		return ReviewNone
	}
}

// CiCheckState is the state of an individual check run.
type CiCheckState string

const (
	CheckSuccess CiCheckState = "success"
	CheckFailure CiCheckState = "failure"
	CheckRunning CiCheckState = "running"
	CheckNeutral CiCheckState = "neutral"
	CheckNone    CiCheckState = "none"
)

// CiCheck is one named check run on the head commit.
type CiCheck struct {
	Name  string       `json:"name"`
	State CiCheckState `json:"state"`
	URL   string       `json:"url,omitempty"`
	// StartedAt is unix seconds; 0 when the CI provider did not report it.
	// Needed to compute true running duration -- the PR-level updated_at
	// rollup is a poor proxy for a specific check's age.
	StartedAt int64 `json:"started_at,omitempty"`
}

// IsFailure reports whether the check concluded in failure.
func (c CiCheck) IsFailure() bool { return c.State == CheckFailure }

// IsRunning reports whether the check is still in progress.
func (c CiCheck) IsRunning() bool { return c.State == CheckRunning }

// MergeBlockers is a derived snapshot of why a PR cannot merge right now.
type MergeBlockers struct {
	HasConflicts      bool     `json:"has_conflicts"`
	BehindBase        bool     `json:"behind_base"`
	ApprovalsRequired int      `json:"approvals_required"`
	ApprovalsCurrent  int      `json:"approvals_current"`
	RequiredChecks    []string `json:"required_checks,omitempty"`
	FailingRequired   []string `json:"failing_required,omitempty"`
}

// IsClear reports whether nothing blocks the merge: no conflicts, not behind
// base, no failing required checks, and enough approvals. When no approval
// requirement is known (ApprovalsRequired == 0) the approval condition is
// vacuously satisfied.
func (b MergeBlockers) IsClear() bool {
	return !b.HasConflicts &&
		!b.BehindBase &&
		len(b.FailingRequired) == 0 &&
		b.ApprovalsCurrent >= b.ApprovalsRequired
}

// Pr is one pull request as observed on the most recent fetch.
type Pr struct {
	// PrKey is "{owner}/{repo}#{number}" -- globally unique, stable across
	// refreshes, and the cache primary key.
	PrKey  string
	Owner  string
	Repo   string
	Number int
	Author string
	Title  string
	URL    string

	// UpdatedAt is the remote-reported modification time, unix seconds.
	UpdatedAt     int64
	LastCommitSHA string
	CiState       CiState
	CiChecks      []CiCheck
	ReviewState   ReviewState

	IsDraft bool
	// Mergeable and MergeStateStatus are opaque remote enums, stored and
	// displayed verbatim.
	Mergeable        string
	MergeStateStatus string
	IsViewerAuthor   bool
	MergeBlockers    *MergeBlockers
}

// PrKeyFor builds the canonical cache key for a pull request.
func PrKeyFor(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}

// RepoFullName returns "owner/repo".
func (p Pr) RepoFullName() string {
	return p.Owner + "/" + p.Repo
}

// CachedPR is the on-disk projection of a Pr plus the two server-observed
// timestamps. LastSeenAt is touched by every successful fetch that still
// includes the key; LastOpenedAt is user-driven and independent of fetch
// cycles (0 = never opened).
type CachedPR struct {
	Pr           Pr
	LastSeenAt   int64
	LastOpenedAt int64
}
