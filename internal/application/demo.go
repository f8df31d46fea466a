package application

import (
	"context"
	"fmt"
	"math/bits"
	"time"

	"github.com/cesarferreira/needle/internal/domain/model"
	"github.com/cesarferreira/needle/internal/domain/port/driven"
)

// DemoFetcher synthesizes a deterministic attention set without touching the
// network. Each call advances an internal tick so successive refreshes show
// movement while "stuck" fixtures stay byte-stable, which is what makes the
// unchanged-failure penalty observable in the demo.
type DemoFetcher struct {
	tick uint64
	now  func() int64
}

// NewDemoFetcher returns a fresh generator with its tick at zero.
func NewDemoFetcher() *DemoFetcher {
	return &DemoFetcher{now: func() int64 { return time.Now().Unix() }}
}

var _ driven.Fetcher = (*DemoFetcher)(nil)

type ciProfile int

const (
	ciGreen ciProfile = iota
	ciRedNew
	ciRedStuck
	ciRunningLong
	ciRunningShort
	ciNoCi
)

type demoSpec struct {
	owner          string
	repo           string
	number         int
	author         string
	title          string
	updatedAgeSecs int64
	review         model.ReviewState
	ci             ciProfile
	viewerAuthor   bool
	draft          bool
	blockers       *model.MergeBlockers
}

var demoSpecs = []demoSpec{
	{
		owner: "acme-inc", repo: "billing-api", number: 842, author: "anika",
		title:          "Fix idempotency for retries on charge capture",
		updatedAgeSecs: 2 * 3600, review: model.ReviewRequested, ci: ciGreen,
	},
	{
		owner: "orbit", repo: "web", number: 1932, author: "santiago",
		title:          "Add keyboard navigation to project switcher",
		updatedAgeSecs: 28 * 60, review: model.ReviewNone, ci: ciRedNew,
	},
	{
		owner: "windmill-labs", repo: "infra", number: 317, author: "chen",
		title:          "Bump Postgres to 16.2 and tune autovacuum thresholds",
		updatedAgeSecs: 4 * 86400, review: model.ReviewNone, ci: ciRedStuck,
	},
	{
		owner: "paperplane", repo: "mobile", number: 501, author: "sofia",
		title:          "Reduce cold-start time by deferring analytics init",
		updatedAgeSecs: 19 * 60, review: model.ReviewNone, ci: ciRunningLong,
	},
	{
		owner: "acme-inc", repo: "design-system", number: 128, author: "mia",
		title:          "Button: add loading state and improve focus ring",
		updatedAgeSecs: 6 * 60, review: model.ReviewNone, ci: ciRunningShort,
	},
	{
		owner: "honeycombio", repo: "otel-collector", number: 77, author: "devin",
		title:          "Add tail-sampling defaults for high-cardinality traces",
		updatedAgeSecs: 7 * 86400, review: model.ReviewNone, ci: ciGreen,
		viewerAuthor: true, blockers: &model.MergeBlockers{},
	},
	{
		owner: "orbit", repo: "api", number: 1104, author: "jules",
		title:          "Rate limit /v1/events and emit structured logs",
		updatedAgeSecs: 16 * 3600, review: model.ReviewApproved, ci: ciGreen,
	},
	{
		owner: "paperplane", repo: "docs", number: 42, author: "noah",
		title:          "Docs: clarify OAuth scopes and add troubleshooting",
		updatedAgeSecs: 3 * 86400, review: model.ReviewNone, ci: ciNoCi,
		draft: true,
	},
	{
		owner: "acme-inc", repo: "monorepo", number: 2551, author: "anika",
		title:          "Refactor: extract feature flags into shared crate",
		updatedAgeSecs: 11 * 3600, review: model.ReviewRequested, ci: ciRunningLong,
	},
	{
		owner: "windmill-labs", repo: "sdk-rust", number: 98, author: "chen",
		title:          "Add retry policy for 429/503 responses",
		updatedAgeSecs: 12 * 86400, review: model.ReviewNone, ci: ciGreen,
		viewerAuthor: true,
		blockers:     &model.MergeBlockers{BehindBase: true, ApprovalsRequired: 1},
	},
	{
		owner: "orbit", repo: "web", number: 1940, author: "sofia",
		title:          "Fix flaky onboarding test on CI runners",
		updatedAgeSecs: 50 * 60, review: model.ReviewNone, ci: ciRedNew,
	},
	{
		owner: "paperplane", repo: "backend", number: 611, author: "devin",
		title:          "Graceful shutdown: drain queue workers before exit",
		updatedAgeSecs: 26 * 3600, review: model.ReviewApproved, ci: ciNoCi,
	},
	{
		owner: "honeycombio", repo: "ui", number: 390, author: "mia",
		title:          "Charts: fix tooltip positioning near viewport edges",
		updatedAgeSecs: 9 * 3600, review: model.ReviewNone, ci: ciGreen,
	},
	{
		owner: "acme-inc", repo: "payments-worker", number: 219, author: "santiago",
		title:          "Handle duplicate webhook deliveries and add metrics",
		updatedAgeSecs: 3 * 3600, review: model.ReviewRequested, ci: ciRedNew,
	},
	{
		owner: "windmill-labs", repo: "infra", number: 321, author: "jules",
		title:          "Terraform: split prod/staging state and add drift detection",
		updatedAgeSecs: 18 * 86400, review: model.ReviewNone, ci: ciGreen,
	},
	{
		owner: "paperplane", repo: "mobile", number: 523, author: "noah",
		title:          "Fix crash when resuming from background on iOS 17.2",
		updatedAgeSecs: 90 * 60, review: model.ReviewNone, ci: ciRunningLong,
		draft: true,
	},
}

func fnv1a64(s string) uint64 {
	h := uint64(0xcbf29ce484222325)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 0x100000001b3
	}
	return h
}

// SeededOpenedAt derives a stable fake last-opened timestamp for a demo key.
// Roughly a quarter of keys come back nonzero so the dimming is visible
// without washing out the whole list.
func SeededOpenedAt(prKey string, now int64) int64 {
	switch fnv1a64(prKey) % 11 {
	case 0:
		return now - 23*60
	case 1:
		return now - 3*3600
	case 2:
		return now - 2*86400
	default:
		return 0
	}
}

func shortSha(x uint64) string {
	const hex = "0123456789abcdef"
	out := make([]byte, 7)
	for i := range out {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		out[i] = hex[x&0x0f]
	}
	return string(out)
}

func demoChecks(p ciProfile, owner, repo string, now int64, salt uint64) (model.CiState, []model.CiCheck) {
	baseRun := 8_100_000 + salt%900_000
	mk := func(name string, state model.CiCheckState, startedAt int64, off uint64) model.CiCheck {
		return model.CiCheck{
			Name:      name,
			State:     state,
			URL:       fmt.Sprintf("https://github.com/%s/%s/actions/runs/%d", owner, repo, baseRun+off),
			StartedAt: startedAt,
		}
	}

	switch p {
	case ciGreen:
		return model.CiSuccess, []model.CiCheck{
			mk("build / linux", model.CheckSuccess, 0, 11),
			mk("test / unit", model.CheckSuccess, 0, 22),
			mk("lint", model.CheckSuccess, 0, 33),
			mk("e2e / chrome", model.CheckNeutral, 0, 44),
		}
	case ciRedNew, ciRedStuck:
		return model.CiFailure, []model.CiCheck{
			mk("build / linux", model.CheckSuccess, 0, 11),
			mk("test / unit", model.CheckFailure, 0, 22),
			mk("lint", model.CheckSuccess, 0, 33),
			mk("e2e / chrome", model.CheckFailure, 0, 44),
		}
	case ciRunningLong:
		return model.CiRunning, []model.CiCheck{
			mk("build / linux", model.CheckSuccess, 0, 11),
			mk("test / integration", model.CheckRunning, now-68*60, 22),
			mk("lint", model.CheckSuccess, 0, 33),
			mk("deploy / preview", model.CheckRunning, now-41*60, 44),
		}
	case ciRunningShort:
		return model.CiRunning, []model.CiCheck{
			mk("build / linux", model.CheckRunning, now-4*60, 11),
			mk("test / unit", model.CheckNone, 0, 22),
			mk("lint", model.CheckNone, 0, 33),
		}
	default:
		return model.CiNone, nil
	}
}

// Fetch generates the fixture set for the next tick. Green, stuck-red, and
// no-CI fixtures keep a stable head SHA across ticks; the rest rotate SHAs so
// their failures read as new pushes.
func (d *DemoFetcher) Fetch(_ context.Context, cutoff int64, _ bool) ([]model.Pr, error) {
	d.tick++
	now := d.now()

	prs := make([]model.Pr, 0, len(demoSpecs))
	for _, s := range demoSpecs {
		key := model.PrKeyFor(s.owner, s.repo, s.number)
		salt := fnv1a64(key) ^ bits.RotateLeft64(d.tick, 13)

		ciState, checks := demoChecks(s.ci, s.owner, s.repo, now, salt)

		shaSalt := fnv1a64(key)
		stable := s.ci == ciRedStuck || s.ci == ciNoCi || s.ci == ciGreen
		if !stable {
			shaSalt = salt ^ d.tick*0x9e3779b97f4a7c15
		}

		// Running and freshly-red fixtures drift a little each tick so
		// the list does not look frozen between refreshes.
		var wobble int64
		if s.ci == ciRunningLong || s.ci == ciRunningShort || s.ci == ciRedNew {
			wobble = int64(d.tick%7) * 60
		}
		updatedAt := now - (s.updatedAgeSecs - wobble)
		if updatedAt < cutoff {
			continue
		}

		prs = append(prs, model.Pr{
			PrKey:          key,
			Owner:          s.owner,
			Repo:           s.repo,
			Number:         s.number,
			Author:         s.author,
			Title:          s.title,
			URL:            fmt.Sprintf("https://github.com/%s/%s/pull/%d", s.owner, s.repo, s.number),
			UpdatedAt:      updatedAt,
			LastCommitSHA:  shortSha(shaSalt),
			CiState:        ciState,
			CiChecks:       checks,
			ReviewState:    s.review,
			IsDraft:        s.draft,
			IsViewerAuthor: s.viewerAuthor,
			MergeBlockers:  s.blockers,
		})
	}
	return prs, nil
}
