// Command needle is a terminal dashboard that triages the GitHub pull
// requests competing for your attention.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for static builds

	githubadapter "github.com/cesarferreira/needle/internal/adapter/driven/github"
	"github.com/cesarferreira/needle/internal/adapter/driven/notify"
	sqliteadapter "github.com/cesarferreira/needle/internal/adapter/driven/sqlite"
	"github.com/cesarferreira/needle/internal/adapter/driving/tui"
	"github.com/cesarferreira/needle/internal/application"
	"github.com/cesarferreira/needle/internal/config"
	"github.com/cesarferreira/needle/internal/domain/model"
	"github.com/cesarferreira/needle/internal/domain/port/driven"
)

var version = "dev"

// listFlag accepts repeated flags and comma-delimited values.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "needle:", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Set up file logging early. The TUI owns the terminal, so slog must
	// never write to stdout or stderr while it runs.
	debug := hasDebugFlag()
	logger, logClose, err := setupLogger(debug)
	if err != nil {
		return err
	}
	defer logClose()
	slog.SetDefault(logger)

	// 2. Load the config file, then let flags override it: flag defaults are
	// seeded from the resolved settings, so anything passed on the command
	// line wins.
	settings := config.Load(logger)

	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		noCache     = flag.Bool("no-cache", false, "skip loading cached PRs on startup")
		purgeCache  = flag.Bool("purge-cache", false, "delete the cache database before starting")
		demo        = flag.Bool("demo", false, "start with diverse fake data (no GitHub token required)")
		days        = flag.Int("days", settings.Days, "only include PRs updated in the last N days")
		teamReqs    = flag.Bool("include-team-requests", settings.IncludeTeamRequests, "include PRs requested to teams you are in")
		bell        = flag.Bool("bell", settings.Bell, "emit a terminal bell on important new events")
		noNotifs    = flag.Bool("no-notifications", !settings.Notifications, "disable desktop notifications")
		hideNums    = flag.Bool("hide-pr-numbers", settings.HidePrNumbers, "hide the PR number column")
		hideRepo    = flag.Bool("hide-repo", settings.HideRepo, "hide the repository column")
		hideAuthor  = flag.Bool("hide-author", settings.HideAuthor, "hide the author column")
		orgs        listFlag
		include     listFlag
		exclude     listFlag
	)
	flag.Bool("debug", false, "enable debug logging")
	flag.Var(&orgs, "org", "only show PRs from these orgs/users (repeatable or comma-delimited)")
	flag.Var(&include, "include", "only show these repos, owner/repo (repeatable or comma-delimited)")
	flag.Var(&exclude, "exclude", "exclude these repos, owner/repo (repeatable or comma-delimited)")
	flag.Parse()

	if *showVersion {
		fmt.Println("needle", version)
		return nil
	}

	if *days < 0 {
		return fmt.Errorf("--days must be non-negative, got %d", *days)
	}
	if len(orgs) > 0 {
		settings.Orgs = orgs
	}
	if len(include) > 0 {
		settings.IncludeRepos = include
	}
	if len(exclude) > 0 {
		settings.ExcludeRepos = exclude
	}

	scope := application.ScopeFilters{
		Orgs:         settings.Orgs,
		IncludeRepos: settings.IncludeRepos,
		ExcludeRepos: settings.ExcludeRepos,
	}

	ctx := context.Background()

	// 3. Resolve the cache database path; the demo keeps its own so fixture
	// rows never pollute the real cache.
	dbPath, err := cachePath("prs.sqlite")
	if err != nil {
		return err
	}
	if *demo {
		dbPath, err = cachePath("demo.sqlite")
		if err != nil {
			return err
		}
	}
	if *purgeCache {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("purging cache: %w", err)
		}
	}

	openCache := func() (driven.PRCache, error) { return sqliteadapter.Open(dbPath) }

	// 4. Build the refresh pipeline: demo generator or live GitHub fetcher.
	var fetcher driven.Fetcher
	if *demo {
		fetcher = application.NewDemoFetcher()
	} else {
		token := os.Getenv("NEEDLE_GITHUB_TOKEN")
		if token == "" {
			token = os.Getenv("GITHUB_TOKEN")
		}
		if token == "" {
			return fmt.Errorf("missing NEEDLE_GITHUB_TOKEN or GITHUB_TOKEN env var")
		}
		fetcher = githubadapter.NewClient(token, logger)
	}
	svc := application.NewRefreshService(fetcher, openCache, *days, scope, *teamReqs, logger)

	if *noCache {
		cache, err := openCache()
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		pruneErr := cache.PruneTo(ctx, nil)
		if closeErr := cache.Close(); closeErr != nil {
			logger.Warn("closing cache", "error", closeErr)
		}
		if pruneErr != nil {
			return fmt.Errorf("clearing cache: %w", pruneErr)
		}
	}

	// 5. Build the initial list. The demo warms up with one seed cycle so
	// some CI failures already look unchanged on first render, then seeds
	// plausible last-opened times.
	initial, err := initialList(ctx, svc, openCache, *demo, *noCache, logger)
	if err != nil {
		return err
	}

	// 6. The interactive loop holds its own store handle for last-opened
	// writes; refresh cycles open fresh handles per cycle.
	uiCache, err := openCache()
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer func() {
		if closeErr := uiCache.Close(); closeErr != nil {
			logger.Warn("closing cache", "error", closeErr)
		}
	}()

	var notifier driven.Notifier = notify.Disabled{}
	if !*noNotifs {
		notifier = notify.NewDesktop(logger)
	}

	logger.Info("starting",
		"version", version,
		"demo", *demo,
		"days", *days,
		"db_path", dbPath,
	)

	// 7. Hand over the terminal.
	return tui.Run(tui.Options{
		Refresher:       svc,
		Cache:           uiCache,
		Notifier:        notifier,
		BellEnabled:     *bell,
		ListInterval:    secsToDuration(settings.ListIntervalSecs),
		DetailsInterval: secsToDuration(settings.DetailsIntervalSecs),
		CheckUpdate:     updateChecker(version),
		DemoAlerts:      *demo && !*noNotifs,
		Prefs: tui.Prefs{
			HidePrNumbers: *hideNums,
			HideRepo:      *hideRepo,
			HideAuthor:    *hideAuthor,
		},
	}, initial)
}

// updateChecker asks GitHub for the latest release tag and builds the footer
// notice when it differs from the running build. Unversioned dev builds skip
// the check entirely.
func updateChecker(current string) func(ctx context.Context) (string, error) {
	if current == "dev" {
		return nil
	}
	client := gh.NewClient(nil)
	return func(ctx context.Context) (string, error) {
		rel, _, err := client.Repositories.GetLatestRelease(ctx, "cesarferreira", "needle")
		if err != nil {
			return "", fmt.Errorf("checking latest release: %w", err)
		}
		latest := strings.TrimPrefix(rel.GetTagName(), "v")
		if latest == "" || latest == current {
			return "", nil
		}
		return fmt.Sprintf(
			"Update available: v%s (current v%s), install with `go install github.com/cesarferreira/needle/cmd/needle@latest`",
			latest, current), nil
	}
}

func initialList(
	ctx context.Context,
	svc *application.RefreshService,
	openCache driven.PRCacheFactory,
	demo, noCache bool,
	logger *slog.Logger,
) ([]model.UiPr, error) {
	if demo {
		// Seed cycle so the second pass sees prior CI state.
		if _, err := svc.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("seeding demo data: %w", err)
		}
		if err := seedDemoOpenedTimes(ctx, openCache); err != nil {
			logger.Warn("seeding demo opened times", "error", err)
		}
		prs, err := svc.Refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("building demo list: %w", err)
		}
		return prs, nil
	}

	if noCache {
		return nil, nil
	}
	prs, err := svc.LoadCached(ctx)
	if err != nil {
		// A broken cache degrades to an empty first paint; the refresh
		// rebuilds it.
		logger.Warn("loading cached pull requests", "error", err)
		return nil, nil
	}
	return prs, nil
}

func seedDemoOpenedTimes(ctx context.Context, openCache driven.PRCacheFactory) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	rows, err := cache.LoadAll(ctx)
	if err != nil {
		return err
	}
	now := nowUnix()
	for key := range rows {
		if ts := application.SeededOpenedAt(key, now); ts != 0 {
			if err := cache.SetOpenedAt(ctx, key, ts); err != nil {
				return err
			}
		}
	}
	return nil
}

func nowUnix() int64 { return time.Now().Unix() }

func secsToDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

func cachePath(name string) (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving cache dir: %w", err)
	}
	full := filepath.Join(dir, "needle")
	if err := os.MkdirAll(full, 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}
	return filepath.Join(full, name), nil
}

// hasDebugFlag peeks at os.Args before flag.Parse so logging is configured
// from the very first line.
func hasDebugFlag() bool {
	for _, arg := range os.Args[1:] {
		if arg == "--debug" || arg == "-debug" {
			return true
		}
	}
	return false
}

func setupLogger(debug bool) (*slog.Logger, func(), error) {
	path, err := cachePath("needle.log")
	if err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		// No log file is not fatal; run silent.
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return logger, func() { _ = f.Close() }, nil
}
