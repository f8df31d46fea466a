// Package notify implements the Notifier port with desktop notifications.
package notify

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/beeep"

	"github.com/cesarferreira/needle/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Desktop)(nil)

// Desktop sends OS notifications through beeep. Delivery is best effort:
// failures are logged at debug and never returned, since a broken
// notification daemon must not take the dashboard down with it.
type Desktop struct {
	logger *slog.Logger
}

// NewDesktop returns a Desktop notifier.
func NewDesktop(logger *slog.Logger) *Desktop {
	return &Desktop{logger: logger}
}

// Disabled is a Notifier that drops everything, used when the user turns
// notifications off.
type Disabled struct{}

var _ driven.Notifier = Disabled{}

func (Disabled) CiFailure(string, string, string)       {}
func (Disabled) ReviewRequested(string, string, string) {}
func (Disabled) NewRepo(string)                         {}
func (Disabled) NeedsYou(int)                           {}
func (Disabled) ReadyToMerge(string, string, string)    {}
func (Disabled) NewDraft(string, string, string)        {}

// CiFailure announces a newly failing PR.
func (d *Desktop) CiFailure(prTitle, repo, url string) {
	d.send("❌ CI Failed", repo+"\n"+truncate(prTitle, 50)+"\n"+url)
}

// ReviewRequested announces a new review request.
func (d *Desktop) ReviewRequested(prTitle, repo, url string) {
	d.send("👀 Review Requested", repo+"\n"+truncate(prTitle, 50)+"\n"+url)
}

// NewRepo announces the first PR seen from a repository.
func (d *Desktop) NewRepo(repo string) {
	d.send("📁 New Repository", fmt.Sprintf("PRs from %s now visible", repo))
}

// NeedsYou summarizes PRs that just entered the needs-you bucket.
func (d *Desktop) NeedsYou(count int) {
	body := fmt.Sprintf("%d PRs need your attention", count)
	if count == 1 {
		body = "1 PR needs your attention"
	}
	d.send("⚠️ Needle: Action Required", body)
}

// ReadyToMerge announces that one of the viewer's PRs became mergeable.
func (d *Desktop) ReadyToMerge(prTitle, repo, url string) {
	d.send("✅ Ready to Merge", repo+"\n"+truncate(prTitle, 50)+"\n"+url)
}

// NewDraft announces a newly appeared draft PR.
func (d *Desktop) NewDraft(prTitle, repo, url string) {
	d.send("📝 New Draft PR", repo+"\n"+truncate(prTitle, 50)+"\n"+url)
}

func (d *Desktop) send(title, body string) {
	if err := beeep.Notify(title, body, ""); err != nil {
		d.logger.Debug("notification failed", "title", title, "error", err)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	// Cut on a rune boundary so multibyte titles cannot split mid-character.
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
