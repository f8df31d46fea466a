package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesarferreira/needle/internal/domain/model"
)

func demoAt(now int64) *DemoFetcher {
	d := NewDemoFetcher()
	d.now = func() int64 { return now }
	return d
}

func fetchAll(t *testing.T, d *DemoFetcher) map[string]model.Pr {
	t.Helper()
	prs, err := d.Fetch(context.Background(), 0, false)
	require.NoError(t, err)
	out := make(map[string]model.Pr, len(prs))
	for _, p := range prs {
		out[p.PrKey] = p
	}
	return out
}

func TestDemoFetchCoversAllProfiles(t *testing.T) {
	prs := fetchAll(t, demoAt(testNow))
	assert.Len(t, prs, 16)

	states := map[model.CiState]bool{}
	for _, p := range prs {
		states[p.CiState] = true
	}
	assert.True(t, states[model.CiSuccess])
	assert.True(t, states[model.CiFailure])
	assert.True(t, states[model.CiRunning])
	assert.True(t, states[model.CiNone])
}

func TestDemoStuckFailureKeepsSha(t *testing.T) {
	d := demoAt(testNow)
	first := fetchAll(t, d)
	second := fetchAll(t, d)

	// windmill-labs/infra#317 is the stuck-red fixture: same SHA means the
	// second cycle scores it as an unchanged failure.
	key := "windmill-labs/infra#317"
	require.Equal(t, model.CiFailure, first[key].CiState)
	assert.Equal(t, first[key].LastCommitSHA, second[key].LastCommitSHA)
}

func TestDemoFreshFailureRotatesSha(t *testing.T) {
	d := demoAt(testNow)
	first := fetchAll(t, d)
	second := fetchAll(t, d)

	key := "orbit/web#1932"
	require.Equal(t, model.CiFailure, first[key].CiState)
	assert.NotEqual(t, first[key].LastCommitSHA, second[key].LastCommitSHA)
}

func TestDemoIncludesViewerAuthoredReadyToMerge(t *testing.T) {
	prs := fetchAll(t, demoAt(testNow))

	p := prs["honeycombio/otel-collector#77"]
	assert.True(t, p.IsViewerAuthor)
	assert.Equal(t, model.CiSuccess, p.CiState)
	require.NotNil(t, p.MergeBlockers)
	assert.True(t, p.MergeBlockers.IsClear())
}

func TestDemoIncludesDrafts(t *testing.T) {
	prs := fetchAll(t, demoAt(testNow))

	drafts := 0
	for _, p := range prs {
		if p.IsDraft {
			drafts++
		}
	}
	assert.Equal(t, 2, drafts)
}

func TestDemoRespectsCutoff(t *testing.T) {
	d := demoAt(testNow)
	// One day of lookback drops the week-old and older fixtures.
	prs, err := d.Fetch(context.Background(), testNow-86400, false)
	require.NoError(t, err)

	for _, p := range prs {
		assert.GreaterOrEqual(t, p.UpdatedAt, testNow-86400)
	}
	assert.Less(t, len(prs), 16)
}

func TestSeededOpenedAtDeterministic(t *testing.T) {
	a := SeededOpenedAt("acme-inc/billing-api#842", testNow)
	b := SeededOpenedAt("acme-inc/billing-api#842", testNow)
	assert.Equal(t, a, b)

	// At least one of the sixteen demo keys seeds a nonzero opened-at.
	seeded := 0
	for _, s := range demoSpecs {
		if SeededOpenedAt(model.PrKeyFor(s.owner, s.repo, s.number), testNow) != 0 {
			seeded++
		}
	}
	assert.Greater(t, seeded, 0)
}
