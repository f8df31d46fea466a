package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cesarferreira/needle/internal/domain/model"
	"github.com/cesarferreira/needle/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PRCache = (*PRCache)(nil)

// PRCache is the SQLite implementation of the PRCache port. It owns its DB
// handle; Close tears the handle down with it.
type PRCache struct {
	db *DB
}

// NewPRCache wraps an open DB as a PRCache.
func NewPRCache(db *DB) *PRCache {
	return &PRCache{db: db}
}

// Open creates the database file at path, runs migrations, and returns a
// ready cache. This is the PRCacheFactory used by live wiring.
func Open(path string) (driven.PRCache, error) {
	db, err := NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := RunMigrations(db.Writer); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return NewPRCache(db), nil
}

const prColumns = `
	pr_key, owner, repo, number, author, title, url,
	updated_at, last_commit_sha, ci_state, ci_checks, review_state,
	is_draft, mergeable, merge_state_status, is_viewer_author, merge_blockers,
	last_seen_at, last_opened_at`

// LoadAll returns the full cache snapshot keyed by pr_key.
func (c *PRCache) LoadAll(ctx context.Context) (map[string]model.CachedPR, error) {
	rows, err := c.db.Reader.QueryContext(ctx, `SELECT`+prColumns+` FROM prs`)
	if err != nil {
		return nil, fmt.Errorf("query cached prs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.CachedPR)
	for rows.Next() {
		row, err := scanCachedPR(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cached pr: %w", err)
		}
		out[row.Pr.PrKey] = *row
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached prs: %w", err)
	}

	return out, nil
}

// Upsert inserts or replaces a row by pr_key. All columns come from the new
// row except last_opened_at, where a zero incoming value keeps whatever the
// existing row holds. That keeps a concurrent open-stamp from being erased by
// a refresh that raced it.
func (c *PRCache) Upsert(ctx context.Context, row model.CachedPR) error {
	const query = `
		INSERT INTO prs (
			pr_key, owner, repo, number, author, title, url,
			updated_at, last_commit_sha, ci_state, ci_checks, review_state,
			is_draft, mergeable, merge_state_status, is_viewer_author, merge_blockers,
			last_seen_at, last_opened_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pr_key) DO UPDATE SET
			owner = excluded.owner,
			repo = excluded.repo,
			number = excluded.number,
			author = excluded.author,
			title = excluded.title,
			url = excluded.url,
			updated_at = excluded.updated_at,
			last_commit_sha = excluded.last_commit_sha,
			ci_state = excluded.ci_state,
			ci_checks = excluded.ci_checks,
			review_state = excluded.review_state,
			is_draft = excluded.is_draft,
			mergeable = excluded.mergeable,
			merge_state_status = excluded.merge_state_status,
			is_viewer_author = excluded.is_viewer_author,
			merge_blockers = excluded.merge_blockers,
			last_seen_at = excluded.last_seen_at,
			last_opened_at = COALESCE(NULLIF(excluded.last_opened_at, 0), prs.last_opened_at)
	`

	pr := row.Pr

	checks := pr.CiChecks
	if checks == nil {
		checks = []model.CiCheck{}
	}
	checksJSON, err := json.Marshal(checks)
	if err != nil {
		return fmt.Errorf("marshal ci checks: %w", err)
	}

	blockersJSON := ""
	if pr.MergeBlockers != nil {
		b, err := json.Marshal(pr.MergeBlockers)
		if err != nil {
			return fmt.Errorf("marshal merge blockers: %w", err)
		}
		blockersJSON = string(b)
	}

	_, err = c.db.Writer.ExecContext(ctx, query,
		pr.PrKey, pr.Owner, pr.Repo, pr.Number, pr.Author, pr.Title, pr.URL,
		pr.UpdatedAt, pr.LastCommitSHA, string(pr.CiState), string(checksJSON), string(pr.ReviewState),
		boolToInt(pr.IsDraft), pr.Mergeable, pr.MergeStateStatus, boolToInt(pr.IsViewerAuthor), blockersJSON,
		row.LastSeenAt, row.LastOpenedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert pr %s: %w", pr.PrKey, err)
	}

	return nil
}

// PruneTo deletes every row whose key is not in keepKeys. An empty keepKeys
// clears the table.
func (c *PRCache) PruneTo(ctx context.Context, keepKeys []string) error {
	if len(keepKeys) == 0 {
		if _, err := c.db.Writer.ExecContext(ctx, `DELETE FROM prs`); err != nil {
			return fmt.Errorf("clear prs: %w", err)
		}
		return nil
	}

	placeholders := strings.Repeat("?,", len(keepKeys))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(keepKeys))
	for i, k := range keepKeys {
		args[i] = k
	}

	query := `DELETE FROM prs WHERE pr_key NOT IN (` + placeholders + `)`
	if _, err := c.db.Writer.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("prune prs: %w", err)
	}

	return nil
}

// SetOpenedAt updates last_opened_at for one row. Zero rows affected is not
// an error; the row may have been pruned since it was displayed.
func (c *PRCache) SetOpenedAt(ctx context.Context, prKey string, ts int64) error {
	_, err := c.db.Writer.ExecContext(ctx,
		`UPDATE prs SET last_opened_at = ? WHERE pr_key = ?`, ts, prKey)
	if err != nil {
		return fmt.Errorf("set opened at for %s: %w", prKey, err)
	}
	return nil
}

// Close closes the underlying DB handle.
func (c *PRCache) Close() error {
	return c.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCachedPR(s scanner) (*model.CachedPR, error) {
	var row model.CachedPR
	var ciState, reviewState, checksJSON, blockersJSON string
	var isDraft, isViewerAuthor int

	pr := &row.Pr
	err := s.Scan(
		&pr.PrKey, &pr.Owner, &pr.Repo, &pr.Number, &pr.Author, &pr.Title, &pr.URL,
		&pr.UpdatedAt, &pr.LastCommitSHA, &ciState, &checksJSON, &reviewState,
		&isDraft, &pr.Mergeable, &pr.MergeStateStatus, &isViewerAuthor, &blockersJSON,
		&row.LastSeenAt, &row.LastOpenedAt,
	)
	if err != nil {
		return nil, err
	}

	pr.CiState = model.ParseCiState(ciState)
	pr.ReviewState = model.ParseReviewState(reviewState)
	pr.IsDraft = isDraft != 0
	pr.IsViewerAuthor = isViewerAuthor != 0

	// Malformed blobs degrade to empty rather than poisoning the whole load.
	var checks []model.CiCheck
	if err := json.Unmarshal([]byte(checksJSON), &checks); err == nil {
		pr.CiChecks = checks
	}
	if blockersJSON != "" {
		var blockers model.MergeBlockers
		if err := json.Unmarshal([]byte(blockersJSON), &blockers); err == nil {
			pr.MergeBlockers = &blockers
		}
	}

	return &row, nil
}
