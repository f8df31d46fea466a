// Package application contains the attention engine: scoring, novelty
// detection, refresh orchestration, and the demo generator.
package application

import (
	"fmt"
	"sort"

	"github.com/cesarferreira/needle/internal/domain/model"
)

// Scoring constants. Single source of truth, also rendered by the TUI help
// overlay, so keep names and values in sync with the help text.
const (
	ScoreReviewRequested     = 50
	ScoreCiFailedNew         = 40
	ScoreCiRunningLong       = 20
	ScoreApprovedUnmergedOld = 15
	ScoreWaitingOnOthers     = -20
	ScoreCiFailedUnchanged   = -30

	CategoryNeedsYouMin = 40
	CategoryWaitingMin  = 0

	CiRunningLongSecs      = 10 * 60
	ApprovedUnmergedOldSec = 24 * 3600
)

// IsNewReviewRequest reports whether the review request on pr is newly
// observed this cycle: requested now and either never cached before or not
// requested on the previous cycle. A PR already in "requested" state on the
// prior cycle does not re-trigger.
func IsNewReviewRequest(pr model.Pr, old *model.CachedPR) bool {
	if pr.ReviewState != model.ReviewRequested {
		return false
	}
	if old == nil {
		return true
	}
	return old.Pr.ReviewState != model.ReviewRequested
}

// IsNewCiFailure reports whether the CI failure on pr is newly observed:
// failing now and either never cached, not failing before, or failing on a
// different head commit. The SHA check matters -- a PR can stay in "failure"
// across cycles while being a different failure after a new push, and that
// must re-trigger.
func IsNewCiFailure(pr model.Pr, old *model.CachedPR) bool {
	if pr.CiState != model.CiFailure {
		return false
	}
	if old == nil {
		return true
	}
	return old.Pr.CiState != model.CiFailure || old.Pr.LastCommitSHA != pr.LastCommitSHA
}

// runningForSecs returns how long CI has been running. It prefers the oldest
// currently-running check's StartedAt and falls back to now-updatedAt when no
// check carries a start time.
func runningForSecs(pr model.Pr, now int64) int64 {
	var oldest int64
	for _, c := range pr.CiChecks {
		if !c.IsRunning() || c.StartedAt == 0 {
			continue
		}
		if oldest == 0 || c.StartedAt < oldest {
			oldest = c.StartedAt
		}
	}
	if oldest != 0 {
		return now - oldest
	}
	return now - pr.UpdatedAt
}

// Score computes the urgency score as a sum of independent additive terms.
// No early exit: every term is evaluated on every call.
func Score(pr model.Pr, isNewCiFailure bool, now int64) int {
	score := 0

	if pr.ReviewState == model.ReviewRequested {
		score += ScoreReviewRequested
	}

	if pr.CiState == model.CiFailure {
		if isNewCiFailure {
			score += ScoreCiFailedNew
		} else {
			score += ScoreCiFailedUnchanged
		}
	}

	if pr.CiState == model.CiRunning && runningForSecs(pr, now) > CiRunningLongSecs {
		score += ScoreCiRunningLong
	}

	if pr.ReviewState == model.ReviewApproved && now-pr.UpdatedAt > ApprovedUnmergedOldSec {
		score += ScoreApprovedUnmergedOld
	}

	// Approved PRs are exempt: approved-green is usually actionable
	// (merge or queue) even though no review is requested.
	if pr.ReviewState == model.ReviewNone && pr.CiState == model.CiSuccess {
		score += ScoreWaitingOnOthers
	}

	return score
}

// Categorize maps a scored PR to its display category. ReadyToMerge overrides
// the score buckets when the viewer's own PR is green and unblocked; unknown
// blockers count as clear. The numeric score is never altered by the override.
func Categorize(pr model.Pr, score int) model.Category {
	if pr.IsViewerAuthor && pr.CiState == model.CiSuccess &&
		(pr.MergeBlockers == nil || pr.MergeBlockers.IsClear()) {
		return model.CategoryReadyToMerge
	}
	switch {
	case score >= CategoryNeedsYouMin:
		return model.CategoryNeedsYou
	case score >= CategoryWaitingMin:
		return model.CategoryWaiting
	default:
		return model.CategoryStale
	}
}

// HumanAge renders a compact relative age like "3h ago".
func HumanAge(now, then int64) string {
	d := now - then
	switch {
	case d < 60:
		return "now"
	case d < 3600:
		return fmt.Sprintf("%dm ago", d/60)
	case d < 86400:
		return fmt.Sprintf("%dh ago", d/3600)
	default:
		return fmt.Sprintf("%dd ago", d/86400)
	}
}

// StatusText derives the one-line status string from state. It is computed,
// never stored: the novelty qualifiers are only valid for the current cycle.
func StatusText(pr model.Pr, now int64, isNewCiFailure, isNewReviewRequest bool) string {
	if isNewReviewRequest && pr.ReviewState == model.ReviewRequested {
		return "review requested"
	}

	switch pr.CiState {
	case model.CiFailure:
		if isNewCiFailure {
			return "CI failed (new)"
		}
		return "CI failed"
	case model.CiRunning:
		return fmt.Sprintf("CI running (%dm)", runningForSecs(pr, now)/60)
	case model.CiSuccess:
		return "green " + HumanAge(now, pr.UpdatedAt)
	default:
		return "no CI " + HumanAge(now, pr.UpdatedAt)
	}
}

// SortRanked orders PRs by score descending, ties broken by most recently
// updated first. Stable so equal rows keep their fetch order.
func SortRanked(prs []model.UiPr) {
	sort.SliceStable(prs, func(i, j int) bool {
		if prs[i].Score != prs[j].Score {
			return prs[i].Score > prs[j].Score
		}
		return prs[i].Pr.UpdatedAt > prs[j].Pr.UpdatedAt
	})
}
