package driven

import (
	"context"

	"github.com/cesarferreira/needle/internal/domain/model"
)

// Fetcher defines the driven port for retrieving the viewer's attention set
// from the code host: the full deduplicated set of authored-or-review-requested
// open PRs updated at or after the cutoff, with CI rollup and checks already
// resolved and review state already disambiguated (requested beats approved).
type Fetcher interface {
	Fetch(ctx context.Context, cutoff int64, includeTeamRequests bool) ([]model.Pr, error)
}
