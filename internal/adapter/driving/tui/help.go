package tui

import (
	"fmt"
	"strings"

	"github.com/cesarferreira/needle/internal/application"
)

// viewHelp renders the full-screen help overlay: key bindings plus the scoring
// rules, so the ranking is never a mystery to the user.
func (m Model) viewHelp() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("HELP"))
	b.WriteString("\n\n")

	key := func(k, desc string) {
		b.WriteString("  " + helpKeyStyle.Render(pad(k, 10)) + desc + "\n")
	}

	b.WriteString(sectionStyle.Render("KEYS"))
	b.WriteString("\n")
	key("↑/↓", "move selection (wraps in list, clamps in details)")
	key("Enter", "open in browser")
	key("Tab", "toggle details view")
	key("f", "open first failing check (details)")
	key("r", "refresh now")
	key("/", "search by repo, author, title, or #number")
	key("n", "toggle needs-you filter")
	key("c", "toggle failing-CI filter")
	key("v", "toggle review-requested filter")
	key("x / Esc", "clear all filters")
	key("?", "toggle this help")
	key("q", "quit")
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("WHILE SEARCHING"))
	b.WriteString("\n")
	key("Ctrl+n", "toggle needs-you filter")
	key("Ctrl+c", "toggle failing-CI filter")
	key("Ctrl+v", "toggle review-requested filter")
	key("Ctrl+x", "clear all filters")
	key("Esc", "stop searching and clear the query")
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("SCORING"))
	b.WriteString("\n")
	score := func(points int, desc string) {
		b.WriteString(fmt.Sprintf("  %+4d  %s\n", points, desc))
	}
	score(application.ScoreReviewRequested, "your review is requested")
	score(application.ScoreCiFailedNew, "CI failed on a new commit")
	score(application.ScoreCiRunningLong, fmt.Sprintf("CI running longer than %d min", application.CiRunningLongSecs/60))
	score(application.ScoreApprovedUnmergedOld, "approved but unmerged for over a day")
	score(application.ScoreWaitingOnOthers, "green and waiting on someone else")
	score(application.ScoreCiFailedUnchanged, "CI still failing on the same commit")
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf(
		"  score ≥ %d needs you, %d..%d waiting, below %d stale",
		application.CategoryNeedsYouMin,
		application.CategoryWaitingMin, application.CategoryNeedsYouMin-1,
		application.CategoryWaitingMin)))
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("  ?, Esc, or q closes this help"))
	b.WriteString("\n")

	return b.String()
}
