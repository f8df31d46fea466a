package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cesarferreira/needle/internal/domain/model"
	"github.com/cesarferreira/needle/internal/domain/port/driven"
)

// ScopeFilters narrows the fetched set after retrieval. Exclusions win over
// inclusions; empty filters match everything.
type ScopeFilters struct {
	// Orgs restricts to these owners (org or user login), case-insensitive.
	Orgs []string
	// IncludeRepos restricts to these "owner/repo" full names.
	IncludeRepos []string
	// ExcludeRepos drops these "owner/repo" full names.
	ExcludeRepos []string
}

// Matches reports whether pr passes the scope filters.
func (f ScopeFilters) Matches(pr model.Pr) bool {
	full := strings.ToLower(pr.RepoFullName())
	for _, ex := range f.ExcludeRepos {
		if strings.ToLower(ex) == full {
			return false
		}
	}
	if len(f.Orgs) > 0 {
		ok := false
		owner := strings.ToLower(pr.Owner)
		for _, org := range f.Orgs {
			if strings.ToLower(org) == owner {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.IncludeRepos) > 0 {
		ok := false
		for _, in := range f.IncludeRepos {
			if strings.ToLower(in) == full {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// RefreshService is the attention engine. One Refresh call runs the full
// fetch, reconcile, score, persist pipeline; LoadCached serves the instant
// first paint from the cache alone.
type RefreshService struct {
	fetcher             driven.Fetcher
	openCache           driven.PRCacheFactory
	days                int
	scope               ScopeFilters
	includeTeamRequests bool
	logger              *slog.Logger
	now                 func() int64
}

// NewRefreshService constructs the engine. openCache is called once per
// Refresh so concurrent refresh attempts never share a connection.
func NewRefreshService(
	fetcher driven.Fetcher,
	openCache driven.PRCacheFactory,
	days int,
	scope ScopeFilters,
	includeTeamRequests bool,
	logger *slog.Logger,
) *RefreshService {
	return &RefreshService{
		fetcher:             fetcher,
		openCache:           openCache,
		days:                days,
		scope:               scope,
		includeTeamRequests: includeTeamRequests,
		logger:              logger,
		now:                 func() int64 { return time.Now().Unix() },
	}
}

var _ driven.Refresher = (*RefreshService)(nil)

// Refresh runs one complete cycle. A fetch error aborts before any cache
// write, so a flaky network can never wipe the cache. On success the cache is
// reconciled to exactly the fetched set: every row upserted, every absent key
// pruned.
func (s *RefreshService) Refresh(ctx context.Context) ([]model.UiPr, error) {
	cutoff := s.now() - int64(s.days)*86400

	fetched, err := s.fetcher.Fetch(ctx, cutoff, s.includeTeamRequests)
	if err != nil {
		return nil, fmt.Errorf("fetching pull requests: %w", err)
	}

	prs := fetched[:0:0]
	for _, pr := range fetched {
		if s.scope.Matches(pr) {
			prs = append(prs, pr)
		}
	}
	s.logger.Debug("fetched pull requests",
		"fetched", len(fetched), "after_filters", len(prs))

	cache, err := s.openCache()
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	defer cache.Close()

	prior, err := cache.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading cached pull requests: %w", err)
	}

	now := s.now()
	result := make([]model.UiPr, 0, len(prs))
	keep := make([]string, 0, len(prs))
	for _, pr := range prs {
		var old *model.CachedPR
		if row, ok := prior[pr.PrKey]; ok {
			o := row
			old = &o
		}

		newReq := IsNewReviewRequest(pr, old)
		newFail := IsNewCiFailure(pr, old)
		score := Score(pr, newFail, now)

		var opened int64
		if old != nil {
			opened = old.LastOpenedAt
		}

		if err := cache.Upsert(ctx, model.CachedPR{
			Pr:           pr,
			LastSeenAt:   now,
			LastOpenedAt: opened,
		}); err != nil {
			return nil, fmt.Errorf("caching %s: %w", pr.PrKey, err)
		}
		keep = append(keep, pr.PrKey)

		result = append(result, model.UiPr{
			Pr:                 pr,
			Score:              score,
			Category:           Categorize(pr, score),
			DisplayStatus:      StatusText(pr, now, newFail, newReq),
			LastOpenedAt:       opened,
			IsNewReviewRequest: newReq,
			IsNewCiFailure:     newFail,
		})
	}

	if err := cache.PruneTo(ctx, keep); err != nil {
		return nil, fmt.Errorf("pruning cache: %w", err)
	}

	SortRanked(result)
	return result, nil
}

// LoadCached scores and ranks the cached rows without touching the network.
// The same attention window as Refresh applies: rows that aged out of the
// cutoff since the last run are skipped, not rendered until a refresh prunes
// them. Novelty flags are always false here: nothing was fetched, so nothing
// is new.
func (s *RefreshService) LoadCached(ctx context.Context) ([]model.UiPr, error) {
	cache, err := s.openCache()
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	defer cache.Close()

	rows, err := cache.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading cached pull requests: %w", err)
	}

	now := s.now()
	cutoff := now - int64(s.days)*86400
	result := make([]model.UiPr, 0, len(rows))
	for _, row := range rows {
		if row.Pr.UpdatedAt < cutoff || !s.scope.Matches(row.Pr) {
			continue
		}
		score := Score(row.Pr, false, now)
		result = append(result, model.UiPr{
			Pr:            row.Pr,
			Score:         score,
			Category:      Categorize(row.Pr, score),
			DisplayStatus: StatusText(row.Pr, now, false, false),
			LastOpenedAt:  row.LastOpenedAt,
		})
	}

	SortRanked(result)
	return result, nil
}
