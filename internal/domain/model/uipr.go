package model

// Category buckets a scored PR for display.
type Category string

const (
	CategoryNeedsYou     Category = "needs_you"
	CategoryReadyToMerge Category = "ready_to_merge"
	CategoryWaiting      Category = "waiting"
	CategoryStale        Category = "stale"
)

// UiPr is the engine's output wrapper around a Pr: the urgency score, the
// display category, a rendered one-line status, and the two novelty flags.
// The novelty flags are valid only for the refresh cycle that produced them;
// they are re-derived from persisted prior state each cycle, never stored.
type UiPr struct {
	Pr            Pr
	Score         int
	Category      Category
	DisplayStatus string
	// LastOpenedAt is when the user last followed this PR's link, unix
	// seconds, persisted across runs (0 = never).
	LastOpenedAt       int64
	IsNewReviewRequest bool
	IsNewCiFailure     bool
}
