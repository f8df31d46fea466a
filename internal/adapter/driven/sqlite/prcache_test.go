package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesarferreira/needle/internal/domain/model"
)

func testRow(key string) model.CachedPR {
	return model.CachedPR{
		Pr: model.Pr{
			PrKey:         key,
			Owner:         "acme",
			Repo:          "widgets",
			Number:        7,
			Author:        "octocat",
			Title:         "Speed up cold start",
			URL:           "https://github.com/acme/widgets/pull/7",
			UpdatedAt:     1_700_000_000,
			LastCommitSHA: "abc1234",
			CiState:       model.CiFailure,
			CiChecks: []model.CiCheck{
				{Name: "build", State: model.CheckFailure, URL: "https://ci/1", StartedAt: 1_699_999_000},
			},
			ReviewState:      model.ReviewRequested,
			IsDraft:          false,
			Mergeable:        "MERGEABLE",
			MergeStateStatus: "BLOCKED",
			IsViewerAuthor:   true,
			MergeBlockers:    &model.MergeBlockers{ApprovalsRequired: 2, ApprovalsCurrent: 1},
		},
		LastSeenAt:   1_700_000_100,
		LastOpenedAt: 1_699_990_000,
	}
}

func TestUpsertAndLoadRoundTrip(t *testing.T) {
	cache := NewPRCache(setupTestDB(t))
	ctx := context.Background()

	row := testRow("acme/widgets#7")
	require.NoError(t, cache.Upsert(ctx, row))

	got, err := cache.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	loaded := got["acme/widgets#7"]
	assert.Equal(t, row.Pr, loaded.Pr)
	assert.Equal(t, row.LastSeenAt, loaded.LastSeenAt)
	assert.Equal(t, row.LastOpenedAt, loaded.LastOpenedAt)
}

func TestUpsertOverwritesAllFields(t *testing.T) {
	cache := NewPRCache(setupTestDB(t))
	ctx := context.Background()

	row := testRow("acme/widgets#7")
	require.NoError(t, cache.Upsert(ctx, row))

	row.Pr.Title = "Speed up cold start (v2)"
	row.Pr.CiState = model.CiSuccess
	row.Pr.CiChecks = nil
	row.Pr.MergeBlockers = nil
	row.LastSeenAt = 1_700_000_200
	require.NoError(t, cache.Upsert(ctx, row))

	got, err := cache.LoadAll(ctx)
	require.NoError(t, err)
	loaded := got["acme/widgets#7"]

	assert.Equal(t, "Speed up cold start (v2)", loaded.Pr.Title)
	assert.Equal(t, model.CiSuccess, loaded.Pr.CiState)
	assert.Empty(t, loaded.Pr.CiChecks)
	assert.Nil(t, loaded.Pr.MergeBlockers)
	assert.Equal(t, int64(1_700_000_200), loaded.LastSeenAt)
}

func TestUpsertZeroOpenedAtPreservesExisting(t *testing.T) {
	cache := NewPRCache(setupTestDB(t))
	ctx := context.Background()

	row := testRow("acme/widgets#7")
	row.LastOpenedAt = 1_699_990_000
	require.NoError(t, cache.Upsert(ctx, row))

	row.LastOpenedAt = 0
	require.NoError(t, cache.Upsert(ctx, row))

	got, err := cache.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1_699_990_000), got["acme/widgets#7"].LastOpenedAt)
}

func TestUpsertNonzeroOpenedAtWins(t *testing.T) {
	cache := NewPRCache(setupTestDB(t))
	ctx := context.Background()

	row := testRow("acme/widgets#7")
	row.LastOpenedAt = 100
	require.NoError(t, cache.Upsert(ctx, row))

	row.LastOpenedAt = 200
	require.NoError(t, cache.Upsert(ctx, row))

	got, err := cache.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got["acme/widgets#7"].LastOpenedAt)
}

func TestPruneToKeepsOnlyListedKeys(t *testing.T) {
	cache := NewPRCache(setupTestDB(t))
	ctx := context.Background()

	for _, key := range []string{"a/r#1", "a/r#2", "a/r#3"} {
		require.NoError(t, cache.Upsert(ctx, testRow(key)))
	}

	require.NoError(t, cache.PruneTo(ctx, []string{"a/r#1", "a/r#3"}))

	got, err := cache.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "a/r#1")
	assert.Contains(t, got, "a/r#3")
	assert.NotContains(t, got, "a/r#2")
}

func TestPruneToEmptyClearsTable(t *testing.T) {
	cache := NewPRCache(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, cache.Upsert(ctx, testRow("a/r#1")))
	require.NoError(t, cache.PruneTo(ctx, nil))

	got, err := cache.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSetOpenedAt(t *testing.T) {
	cache := NewPRCache(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, cache.Upsert(ctx, testRow("a/r#1")))
	require.NoError(t, cache.SetOpenedAt(ctx, "a/r#1", 1_700_000_500))

	got, err := cache.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_500), got["a/r#1"].LastOpenedAt)
}

func TestSetOpenedAtMissingRowIsNotAnError(t *testing.T) {
	cache := NewPRCache(setupTestDB(t))

	assert.NoError(t, cache.SetOpenedAt(context.Background(), "gone/gone#1", 123))
}

func TestLoadAllDegradesMalformedJSON(t *testing.T) {
	db := setupTestDB(t)
	cache := NewPRCache(db)
	ctx := context.Background()

	require.NoError(t, cache.Upsert(ctx, testRow("a/r#1")))
	_, err := db.Writer.ExecContext(ctx,
		`UPDATE prs SET ci_checks = 'not json', merge_blockers = '{broken' WHERE pr_key = 'a/r#1'`)
	require.NoError(t, err)

	got, err := cache.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	loaded := got["a/r#1"]
	assert.Empty(t, loaded.Pr.CiChecks)
	assert.Nil(t, loaded.Pr.MergeBlockers)
}

func TestLoadAllUnknownEnumsDegradeToNone(t *testing.T) {
	db := setupTestDB(t)
	cache := NewPRCache(db)
	ctx := context.Background()

	require.NoError(t, cache.Upsert(ctx, testRow("a/r#1")))
	_, err := db.Writer.ExecContext(ctx,
		`UPDATE prs SET ci_state = 'mystery', review_state = 'mystery' WHERE pr_key = 'a/r#1'`)
	require.NoError(t, err)

	got, err := cache.LoadAll(ctx)
	require.NoError(t, err)

	loaded := got["a/r#1"]
	assert.Equal(t, model.CiNone, loaded.Pr.CiState)
	assert.Equal(t, model.ReviewNone, loaded.Pr.ReviewState)
}
