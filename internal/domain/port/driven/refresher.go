package driven

import (
	"context"

	"github.com/cesarferreira/needle/internal/domain/model"
)

// Refresher runs one complete fetch, reconcile, score, persist cycle and
// returns the ranked result set. The live and demo backends both implement
// it; callers stay ignorant of which one is active.
type Refresher interface {
	Refresh(ctx context.Context) ([]model.UiPr, error)
}
