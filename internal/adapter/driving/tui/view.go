package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cesarferreira/needle/internal/application"
	"github.com/cesarferreira/needle/internal/domain/model"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	sectionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	repoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	authorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	numberStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("7"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	runStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	filterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	updateStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	helpKeyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
)

func sectionTitle(cat model.Category) string {
	switch cat {
	case model.CategoryReadyToMerge:
		return "🚢 READY TO MERGE"
	case model.CategoryNeedsYou:
		return "🔥 NEEDS YOU"
	case model.CategoryWaiting:
		return "✅ NO ACTION NEEDED"
	default:
		return "⏳ WAITING ON OTHERS"
	}
}

// Section order on screen. Drafts always render last, dimmed, regardless of
// category.
var sectionOrder = []model.Category{
	model.CategoryReadyToMerge,
	model.CategoryNeedsYou,
	model.CategoryWaiting,
	model.CategoryStale,
}

func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	if m.helpOpen {
		return m.viewHelp()
	}

	var body string
	if m.mode == modeDetails {
		body = m.viewDetails()
	} else {
		body = m.viewList()
	}

	return body + "\n" + m.viewFooter()
}

// — list ————————————————————————————————————————————————————————————————————

func (m Model) viewList() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("needle") + dimStyle.Render("  ·  pull requests that need your attention"))
	b.WriteString("\n")

	if banner := m.filterBanner(); banner != "" {
		b.WriteString(filterStyle.Render(banner))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	visible := m.visibleIndices()
	if len(visible) == 0 {
		if len(m.prs) == 0 {
			b.WriteString(dimStyle.Render("  No open pull requests. Go touch grass. 🌱"))
		} else {
			b.WriteString(dimStyle.Render("  Nothing matches the current filter."))
		}
		b.WriteString("\n")
		return b.String()
	}

	now := m.now()
	nonDraft := make(map[model.Category][]int)
	var drafts []int
	for _, idx := range visible {
		if m.prs[idx].Pr.IsDraft {
			drafts = append(drafts, idx)
		} else {
			cat := m.prs[idx].Category
			nonDraft[cat] = append(nonDraft[cat], idx)
		}
	}

	selectedIdx := -1
	if m.selected < len(visible) {
		selectedIdx = visible[m.selected]
	}

	for _, cat := range sectionOrder {
		rows := nonDraft[cat]
		if len(rows) == 0 {
			continue
		}
		b.WriteString(sectionStyle.Render(sectionTitle(cat)))
		b.WriteString("\n")
		for _, idx := range rows {
			b.WriteString(m.renderRow(m.prs[idx], idx == selectedIdx, false, now))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(drafts) > 0 {
		b.WriteString(sectionStyle.Render("📝 DRAFT"))
		b.WriteString("\n")
		for _, idx := range drafts {
			b.WriteString(m.renderRow(m.prs[idx], idx == selectedIdx, true, now))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (m Model) renderRow(pr model.UiPr, selected, draft bool, now int64) string {
	prefix := "  "
	if selected {
		prefix = "» "
	}

	var parts []string
	if !m.prefs.HideRepo {
		parts = append(parts, repoStyle.Render(pad(pr.Pr.RepoFullName(), 28)))
	}
	if !m.prefs.HideAuthor {
		parts = append(parts, authorStyle.Render(pad(pr.Pr.Author, 14)))
	}
	if !m.prefs.HidePrNumbers {
		parts = append(parts, numberStyle.Render(pad(numberTag(pr.Pr.Number), 7)))
	}

	titleWidth := m.width - 2 - 34
	if titleWidth < 20 {
		titleWidth = 20
	}
	parts = append(parts, pad(truncateTo(pr.Pr.Title, titleWidth), titleWidth))

	status := application.StatusText(pr.Pr, now, pr.IsNewCiFailure, pr.IsNewReviewRequest)
	parts = append(parts, ciStyleFor(pr.Pr.CiState).Render(status))

	line := prefix + strings.Join(parts, " ")
	if selected {
		return selectedStyle.Render(line)
	}
	if draft {
		return dimStyle.Render(line)
	}
	return line
}

func ciStyleFor(state model.CiState) lipgloss.Style {
	switch state {
	case model.CiFailure:
		return failStyle
	case model.CiRunning:
		return runStyle
	case model.CiSuccess:
		return okStyle
	default:
		return dimStyle
	}
}

func (m Model) filterBanner() string {
	var parts []string
	if m.filterEditing {
		return "Filter: " + m.filterInput.View()
	}
	if m.filterQuery != "" {
		parts = append(parts, fmt.Sprintf("q=%q", m.filterQuery))
	}
	if m.onlyNeedsYou {
		parts = append(parts, "needs")
	}
	if m.onlyFailingCI {
		parts = append(parts, "failing")
	}
	if m.onlyReviewRequested {
		parts = append(parts, "review")
	}
	if len(parts) == 0 {
		return ""
	}
	return "Filter: " + strings.Join(parts, "  ")
}

// — details —————————————————————————————————————————————————————————————————

func (m Model) viewDetails() string {
	pr, ok := m.detailsPr()
	if !ok {
		return dimStyle.Render("Pull request no longer in the list. Tab to go back.")
	}
	p := pr.Pr
	now := m.now()

	var b strings.Builder
	b.WriteString(titleStyle.Render("PR DETAILS"))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(dimStyle.Render(pad(label, 12)))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("Repo", repoStyle.Render(p.RepoFullName()))
	row("PR", numberTag(p.Number))
	row("Author", authorStyle.Render(p.Author))
	row("Title", p.Title)
	row("Status", ciStyleFor(p.CiState).Render(
		application.StatusText(p, now, pr.IsNewCiFailure, pr.IsNewReviewRequest)))
	row("Updated", application.HumanAge(now, p.UpdatedAt))
	row("URL", p.URL)
	row("Commit", shortRef(p.LastCommitSHA))
	row("Draft", yesNo(p.IsDraft))
	row("Mergeable", p.Mergeable)
	row("MergeState", p.MergeStateStatus)

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("CI CHECKS"))
	b.WriteString("\n")

	if len(p.CiChecks) == 0 {
		b.WriteString(dimStyle.Render("  No checks reported."))
		b.WriteString("\n")
	} else {
		var failed, running, passing, other int
		var failedNames []string
		for _, ch := range p.CiChecks {
			switch {
			case ch.IsFailure():
				failed++
				failedNames = append(failedNames, ch.Name)
			case ch.IsRunning():
				running++
			case ch.State == model.CheckSuccess:
				passing++
			default:
				other++
			}
		}
		b.WriteString(fmt.Sprintf("  Summary: %d failed, %d running, %d ok, %d other\n",
			failed, running, passing, other))
		if len(failedNames) > 0 {
			shown := failedNames
			if len(shown) > 3 {
				shown = shown[:3]
			}
			b.WriteString(failStyle.Render("  Failed: " + strings.Join(shown, ", ")))
			b.WriteString("\n")
		}
		b.WriteString("\n")

		for i, ch := range p.CiChecks {
			cursor := "  "
			if i == m.detailsCI {
				cursor = "» "
			}
			line := cursor + checkIcon(ch.State) + " " + ch.Name
			if ch.IsRunning() && ch.StartedAt > 0 {
				line += dimStyle.Render(fmt.Sprintf(" (%dm)", (now-ch.StartedAt)/60))
			}
			if i == m.detailsCI {
				line = selectedStyle.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Enter: open selected check   f: open first failing check"))
	b.WriteString("\n")
	return b.String()
}

func checkIcon(state model.CiCheckState) string {
	switch state {
	case model.CheckSuccess:
		return "✅"
	case model.CheckFailure:
		return "❌"
	case model.CheckRunning:
		return "🟡"
	case model.CheckNeutral:
		return "➖"
	default:
		return "⏺"
	}
}

// — footer ——————————————————————————————————————————————————————————————————

func (m Model) viewFooter() string {
	var left string
	if m.mode == modeDetails {
		left = "Tab: back   ↑/↓: checks   Enter: open   r: refresh   ?: help   q: quit"
	} else {
		left = "Tab: details   Enter: open   /: search   n/c/v: filters   ?: help   q: quit"
	}
	footer := dimStyle.Render(left)

	if m.refreshing {
		footer += "  " + runStyle.Render(spinnerFrames[m.spinnerFrame]+" refreshing")
	}
	if m.lastErr != "" {
		footer += "  " + errStyle.Render("refresh failed: "+truncateTo(m.lastErr, 60))
	}
	if m.updateNotice != "" {
		width := m.width
		if width < 20 {
			width = 80
		}
		footer = updateStyle.Render(truncateTo(m.updateNotice, width-1)) + "\n" + footer
	}
	return footer
}

// — string helpers ———————————————————————————————————————————————————————————

func numberTag(n int) string {
	return fmt.Sprintf("#%d", n)
}

func trimLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsFold(haystack, needleLower string) bool {
	return strings.Contains(strings.ToLower(haystack), needleLower)
}

func pad(s string, width int) string {
	r := []rune(s)
	if len(r) >= width {
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-len(r))
}

func truncateTo(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

func shortRef(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
