package driven

import (
	"context"

	"github.com/cesarferreira/needle/internal/domain/model"
)

// PRCache defines the driven port for the durable pull request cache.
// Rows are keyed by pr_key and replaced wholesale on every refresh that
// still includes the key.
type PRCache interface {
	// LoadAll returns the full cache snapshot keyed by pr_key.
	LoadAll(ctx context.Context) (map[string]model.CachedPR, error)
	// Upsert inserts or replaces a row. Every column is overwritten from the
	// new row, except that a zero LastOpenedAt preserves any prior value;
	// carrying a newer value forward is the caller's job.
	Upsert(ctx context.Context, row model.CachedPR) error
	// PruneTo deletes every row whose key is not in keepKeys. An empty
	// keepKeys clears the table entirely: an empty attention set means
	// nothing should remain cached.
	PruneTo(ctx context.Context, keepKeys []string) error
	// SetOpenedAt is a best-effort single-row update of last_opened_at.
	// Zero rows affected is not an error; the row may have been pruned.
	SetOpenedAt(ctx context.Context, prKey string, ts int64) error
	Close() error
}

// PRCacheFactory opens a fresh cache handle. Refresh workers open their own
// handle per cycle instead of sharing the interactive loop's connection.
type PRCacheFactory func() (PRCache, error)
