package driven

// Notifier defines the driven port for desktop notifications. All calls are
// fire-and-forget: delivery failures are swallowed by the implementation,
// never surfaced to the engine.
type Notifier interface {
	CiFailure(prTitle, repo, url string)
	ReviewRequested(prTitle, repo, url string)
	NewRepo(repo string)
	NeedsYou(count int)
	ReadyToMerge(prTitle, repo, url string)
	NewDraft(prTitle, repo, url string)
}
