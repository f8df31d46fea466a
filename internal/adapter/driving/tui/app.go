// Package tui renders the attention dashboard and owns all interactive state.
package tui

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cli/browser"

	"github.com/cesarferreira/needle/internal/domain/model"
	"github.com/cesarferreira/needle/internal/domain/port/driven"
)

type mode int

const (
	modeList mode = iota
	modeDetails
)

// Prefs are the column-hiding display preferences.
type Prefs struct {
	HidePrNumbers bool
	HideRepo      bool
	HideAuthor    bool
}

// Options wires the model's collaborators. OpenURL and Now are injectable for
// tests; nil picks the real implementations.
type Options struct {
	Refresher driven.Refresher
	// Cache is the interactive loop's own store handle, used only for the
	// synchronous last-opened write path. Refresh cycles open their own.
	Cache           driven.PRCache
	Notifier        driven.Notifier
	Prefs           Prefs
	BellEnabled     bool
	ListInterval    time.Duration
	DetailsInterval time.Duration
	OpenURL         func(url string) error
	Now             func() int64
	// CheckUpdate returns a human-readable upgrade notice, or "" when the
	// running build is current. Nil disables the check.
	CheckUpdate func(ctx context.Context) (string, error)
	// DemoAlerts cycles a sample notification every few seconds so demo runs
	// show the notification surface without waiting for real events.
	DemoAlerts bool
}

var spinnerFrames = []string{"|", "/", "-", "\\"}

// — messages ————————————————————————————————————————————————————————————————

type tickMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type refreshDoneMsg struct {
	prs []model.UiPr
	err error
}

type updateNoticeMsg struct {
	notice string
}

// — model ———————————————————————————————————————————————————————————————————

// Model is the bubbletea model for the dashboard.
type Model struct {
	refresher driven.Refresher
	cache     driven.PRCache
	notifier  driven.Notifier
	prefs     Prefs
	bell      bool
	openURL   func(string) error
	now       func() int64

	listInterval    time.Duration
	detailsInterval time.Duration

	prs    []model.UiPr
	width  int
	height int

	mode         mode
	selected     int
	detailsKey   string
	detailsCI    int
	refreshing   bool
	spinnerFrame int
	helpOpen     bool
	lastErr      string

	checkUpdate func(ctx context.Context) (string, error)
	// updateNotice is set at most once per session; the check command runs a
	// single time from Init, so a notice can never repeat or stack.
	updateNotice string

	demoAlerts    bool
	lastDemoAlert time.Time
	demoAlertSeq  int

	filterInput         textinput.Model
	filterQuery         string
	filterEditing       bool
	onlyNeedsYou        bool
	onlyFailingCI       bool
	onlyReviewRequested bool

	lastListRefresh    time.Time
	lastDetailsRefresh time.Time
	seenRepos          map[string]bool
}

// New builds a Model seeded with the cached list for instant first paint.
func New(opts Options, initial []model.UiPr) Model {
	if opts.OpenURL == nil {
		opts.OpenURL = browser.OpenURL
	}
	if opts.Now == nil {
		opts.Now = func() int64 { return time.Now().Unix() }
	}
	if opts.ListInterval == 0 {
		opts.ListInterval = 180 * time.Second
	}
	if opts.DetailsInterval == 0 {
		opts.DetailsInterval = 30 * time.Second
	}

	ti := textinput.New()
	ti.Placeholder = "repo, author, title, #number"
	ti.CharLimit = 100
	ti.Prompt = ""

	seen := make(map[string]bool, len(initial))
	for _, p := range initial {
		seen[p.Pr.RepoFullName()] = true
	}

	return Model{
		refresher:       opts.Refresher,
		cache:           opts.Cache,
		notifier:        opts.Notifier,
		prefs:           opts.Prefs,
		bell:            opts.BellEnabled,
		openURL:         opts.OpenURL,
		now:             opts.Now,
		listInterval:    opts.ListInterval,
		detailsInterval: opts.DetailsInterval,
		prs:             initial,
		filterInput:     ti,
		// Init always starts a refresh, so the gate is held from the first
		// frame; a manual 'r' before the startup cycle completes must not
		// spawn a second worker.
		refreshing:      true,
		lastListRefresh: time.Now(),
		seenRepos:       seen,
		checkUpdate:     opts.CheckUpdate,
		demoAlerts:      opts.DemoAlerts,
		lastDemoAlert:   time.Now(),
	}
}

// Run drives the program until the user quits.
func Run(opts Options, initial []model.UiPr) error {
	m := New(opts, initial)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init starts the first refresh cycle. New already holds the refreshing gate,
// so this only spawns the worker; any state set here on the value receiver
// would be lost.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.refreshWorkerCmd(), tickCmd()}
	if m.checkUpdate != nil {
		cmds = append(cmds, m.updateCheckCmd())
	}
	return tea.Batch(cmds...)
}

// — commands ————————————————————————————————————————————————————————————————

// startRefresh flips the in-flight gate and returns the worker. Callers must
// have checked the gate; the gate itself is only touched inside Update.
func (m *Model) startRefresh() tea.Cmd {
	m.refreshing = true
	m.spinnerFrame = 0
	return m.refreshWorkerCmd()
}

func (m Model) refreshWorkerCmd() tea.Cmd {
	r := m.refresher
	return func() tea.Msg {
		prs, err := r.Refresh(context.Background())
		return refreshDoneMsg{prs: prs, err: err}
	}
}

func (m Model) updateCheckCmd() tea.Cmd {
	check := m.checkUpdate
	return func() tea.Msg {
		notice, err := check(context.Background())
		if err != nil {
			return updateNoticeMsg{}
		}
		return updateNoticeMsg{notice: notice}
	}
}

func (m Model) openURLCmd(url string) tea.Cmd {
	open := m.openURL
	return func() tea.Msg {
		_ = open(url)
		return nil
	}
}

func (m Model) setOpenedCmd(prKey string, ts int64) tea.Cmd {
	cache := m.cache
	return func() tea.Msg {
		_ = cache.SetOpenedAt(context.Background(), prKey, ts)
		return nil
	}
}

func bellCmd() tea.Cmd {
	return func() tea.Msg {
		_, _ = os.Stdout.WriteString("\a")
		return nil
	}
}

// — projection ———————————————————————————————————————————————————————————————

func matchesQuery(pr model.UiPr, query string) bool {
	q := normalizeQuery(query)
	if q == "" {
		return true
	}
	return containsFold(pr.Pr.RepoFullName(), q) ||
		containsFold(pr.Pr.Author, q) ||
		containsFold(pr.Pr.Title, q) ||
		containsFold(numberTag(pr.Pr.Number), q)
}

func (m Model) passesFilters(pr model.UiPr) bool {
	if m.onlyNeedsYou && pr.Category != model.CategoryNeedsYou {
		return false
	}
	if m.onlyFailingCI && pr.Pr.CiState != model.CiFailure {
		return false
	}
	if m.onlyReviewRequested && pr.Pr.ReviewState != model.ReviewRequested {
		return false
	}
	return matchesQuery(pr, m.filterQuery)
}

// visibleIndices projects the PR slice through the active filters in display
// order: category sections first, drafts at the bottom, ranked order within
// each. Selection always indexes into this projection, never the raw slice.
func (m Model) visibleIndices() []int {
	var out []int
	for _, cat := range sectionOrder {
		for i, pr := range m.prs {
			if pr.Pr.IsDraft || pr.Category != cat || !m.passesFilters(pr) {
				continue
			}
			out = append(out, i)
		}
	}
	for i, pr := range m.prs {
		if pr.Pr.IsDraft && m.passesFilters(pr) {
			out = append(out, i)
		}
	}
	return out
}

func (m *Model) clampSelection() {
	n := len(m.visibleIndices())
	if n == 0 {
		m.selected = 0
	} else if m.selected >= n {
		m.selected = n - 1
	}
}

func (m Model) selectedPr() (model.UiPr, bool) {
	visible := m.visibleIndices()
	if m.selected >= len(visible) {
		return model.UiPr{}, false
	}
	return m.prs[visible[m.selected]], true
}

func (m Model) detailsPr() (model.UiPr, bool) {
	for _, pr := range m.prs {
		if pr.Pr.PrKey == m.detailsKey {
			return pr, true
		}
	}
	return model.UiPr{}, false
}

// — update ——————————————————————————————————————————————————————————————————

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		if m.refreshing {
			m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		}
		m.maybeDemoAlert()
		if cmd := m.maybeAutoRefresh(); cmd != nil {
			return m, tea.Batch(cmd, tickCmd())
		}
		return m, tickCmd()

	case updateNoticeMsg:
		if msg.notice != "" {
			m.updateNotice = msg.notice
		}
		return m, nil

	case refreshDoneMsg:
		return m.applyRefresh(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// maybeAutoRefresh starts a refresh when the active view's timer expired and
// nothing is in flight. The list and details timers run independently.
func (m *Model) maybeAutoRefresh() tea.Cmd {
	if m.refreshing {
		return nil
	}
	switch m.mode {
	case modeList:
		if time.Since(m.lastListRefresh) >= m.listInterval {
			m.lastListRefresh = time.Now()
			return m.startRefresh()
		}
	case modeDetails:
		if time.Since(m.lastDetailsRefresh) >= m.detailsInterval {
			m.lastDetailsRefresh = time.Now()
			m.lastListRefresh = time.Now()
			return m.startRefresh()
		}
	}
	return nil
}

var demoAlertRepos = []string{
	"acme/backend",
	"acme/frontend",
	"acme/mobile-app",
	"acme/infrastructure",
	"acme/docs",
}

var demoAlertTitles = []string{
	"Fix authentication bug in login flow",
	"Add dark mode support",
	"Refactor database queries for performance",
	"Update dependencies to latest versions",
	"Implement new feature flag system",
	"Fix memory leak in worker process",
	"Add unit tests for payment module",
	"Migrate to new API version",
}

const demoAlertInterval = 3 * time.Second

// maybeDemoAlert fires one sample notification every few seconds in demo
// runs, cycling through the event types so each surface gets exercised.
func (m *Model) maybeDemoAlert() {
	if !m.demoAlerts || time.Since(m.lastDemoAlert) < demoAlertInterval {
		return
	}
	m.lastDemoAlert = time.Now()

	seq := m.demoAlertSeq
	m.demoAlertSeq++

	repo := demoAlertRepos[seq%len(demoAlertRepos)]
	title := demoAlertTitles[seq%len(demoAlertTitles)]
	url := fmt.Sprintf("https://github.com/%s/pull/%d", repo, 100+seq%50)

	switch seq % 6 {
	case 0:
		m.notifier.CiFailure(title, repo, url)
	case 1:
		m.notifier.ReviewRequested(title, repo, url)
	case 2:
		m.notifier.NewRepo(repo)
	case 3:
		m.notifier.ReadyToMerge(title, repo, url)
	case 4:
		m.notifier.NewDraft(title, repo, url)
	default:
		m.notifier.NeedsYou(seq%3 + 1)
	}
}

// applyRefresh replaces the list wholesale on success, after diffing for
// alerts. A failed refresh keeps the previous list and retries on the next
// timer; it is never fatal to the session.
func (m Model) applyRefresh(msg refreshDoneMsg) (tea.Model, tea.Cmd) {
	m.refreshing = false
	if msg.err != nil {
		m.lastErr = msg.err.Error()
		return m, nil
	}
	m.lastErr = ""

	cmd := m.dispatchAlerts(msg.prs)

	m.prs = msg.prs
	m.clampSelection()
	return m, cmd
}

const maxAlertsPerKind = 3

// dispatchAlerts diffs the incoming list against the current one and fires
// bell and notifier side effects for what changed.
func (m *Model) dispatchAlerts(newPrs []model.UiPr) tea.Cmd {
	oldNeeds := make(map[string]bool)
	oldReady := make(map[string]bool)
	oldKeys := make(map[string]bool, len(m.prs))
	for _, p := range m.prs {
		oldKeys[p.Pr.PrKey] = true
		switch p.Category {
		case model.CategoryNeedsYou:
			oldNeeds[p.Pr.PrKey] = true
		case model.CategoryReadyToMerge:
			oldReady[p.Pr.PrKey] = true
		}
	}

	var enteredNeedsYou, becameReady, newFailures, newRequests, newDrafts []model.UiPr
	currentRepos := make(map[string]bool)
	for _, p := range newPrs {
		currentRepos[p.Pr.RepoFullName()] = true
		if p.Category == model.CategoryNeedsYou && !oldNeeds[p.Pr.PrKey] {
			enteredNeedsYou = append(enteredNeedsYou, p)
		}
		if p.Category == model.CategoryReadyToMerge && !oldReady[p.Pr.PrKey] {
			becameReady = append(becameReady, p)
		}
		if p.IsNewCiFailure {
			newFailures = append(newFailures, p)
		}
		if p.IsNewReviewRequest {
			newRequests = append(newRequests, p)
		}
		if p.Pr.IsDraft && !oldKeys[p.Pr.PrKey] {
			newDrafts = append(newDrafts, p)
		}
	}

	var cmd tea.Cmd
	if m.bell && (len(enteredNeedsYou) > 0 || len(newFailures) > 0) {
		cmd = bellCmd()
	}

	for repo := range currentRepos {
		if !m.seenRepos[repo] {
			m.notifier.NewRepo(repo)
		}
	}
	for i, p := range newFailures {
		if i >= maxAlertsPerKind {
			break
		}
		m.notifier.CiFailure(p.Pr.Title, p.Pr.RepoFullName(), p.Pr.URL)
	}
	for i, p := range newRequests {
		if i >= maxAlertsPerKind {
			break
		}
		m.notifier.ReviewRequested(p.Pr.Title, p.Pr.RepoFullName(), p.Pr.URL)
	}
	if len(enteredNeedsYou) > 0 {
		m.notifier.NeedsYou(len(enteredNeedsYou))
	}
	for i, p := range becameReady {
		if i >= maxAlertsPerKind {
			break
		}
		m.notifier.ReadyToMerge(p.Pr.Title, p.Pr.RepoFullName(), p.Pr.URL)
	}
	for i, p := range newDrafts {
		if i >= maxAlertsPerKind {
			break
		}
		m.notifier.NewDraft(p.Pr.Title, p.Pr.RepoFullName(), p.Pr.URL)
	}

	m.seenRepos = currentRepos
	return cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.helpOpen {
		switch msg.String() {
		case "?", "esc", "q":
			m.helpOpen = false
		}
		return m, nil
	}

	if m.filterEditing {
		return m.handleFilterKey(msg)
	}

	switch msg.String() {
	case "?":
		m.helpOpen = true

	case "q", "ctrl+c":
		return m, tea.Quit

	case "esc":
		if m.mode == modeList {
			m.clearFilters()
		}

	case "r":
		if !m.refreshing {
			m.lastListRefresh = time.Now()
			return m, m.startRefresh()
		}

	case "/":
		if m.mode == modeList {
			m.filterEditing = true
			m.filterInput.SetValue(m.filterQuery)
			m.filterInput.Focus()
			m.selected = 0
		}

	case "x":
		if m.mode == modeList {
			m.clearFilters()
		}

	case "n":
		if m.mode == modeList {
			m.onlyNeedsYou = !m.onlyNeedsYou
			m.selected = 0
		}

	case "c":
		if m.mode == modeList {
			m.onlyFailingCI = !m.onlyFailingCI
			m.selected = 0
		}

	case "v":
		if m.mode == modeList {
			m.onlyReviewRequested = !m.onlyReviewRequested
			m.selected = 0
		}

	case "tab":
		if m.mode == modeList {
			if pr, ok := m.selectedPr(); ok {
				// Key, not index: the list is re-sorted every cycle.
				m.detailsKey = pr.Pr.PrKey
				m.detailsCI = 0
				m.mode = modeDetails
				m.lastDetailsRefresh = time.Now()
			}
		} else {
			m.mode = modeList
		}

	case "f":
		if m.mode == modeDetails {
			if pr, ok := m.detailsPr(); ok {
				url := pr.Pr.URL
				for _, ch := range pr.Pr.CiChecks {
					if ch.IsFailure() && ch.URL != "" {
						url = ch.URL
						break
					}
				}
				return m, tea.Batch(m.openURLCmd(url), m.stampOpened(pr.Pr.PrKey))
			}
		}

	case "up":
		m.moveUp()

	case "down":
		m.moveDown()

	case "enter":
		return m.openSelected()
	}

	return m, nil
}

// handleFilterKey routes keys while the filter line is being edited. The
// toggle chords switch to Ctrl-modified so plain letters stay typeable.
func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up":
		m.moveUp()
		return m, nil
	case "down":
		m.moveDown()
		return m, nil
	case "esc":
		m.filterEditing = false
		m.filterInput.Blur()
		m.filterInput.SetValue("")
		m.filterQuery = ""
		m.selected = 0
		return m, nil
	case "enter":
		m.filterEditing = false
		m.filterInput.Blur()
		return m.openSelected()
	case "ctrl+x":
		m.clearFilters()
		m.filterInput.SetValue("")
		return m, nil
	case "ctrl+n":
		m.onlyNeedsYou = !m.onlyNeedsYou
		m.selected = 0
		return m, nil
	case "ctrl+v":
		m.onlyReviewRequested = !m.onlyReviewRequested
		m.selected = 0
		return m, nil
	case "ctrl+c":
		m.onlyFailingCI = !m.onlyFailingCI
		m.selected = 0
		return m, nil
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	m.filterQuery = m.filterInput.Value()
	m.clampSelection()
	return m, cmd
}

func (m *Model) clearFilters() {
	m.filterQuery = ""
	m.filterEditing = false
	m.filterInput.Blur()
	m.onlyNeedsYou = false
	m.onlyFailingCI = false
	m.onlyReviewRequested = false
	m.selected = 0
}

func (m *Model) moveUp() {
	if m.mode == modeList {
		n := len(m.visibleIndices())
		if n == 0 {
			return
		}
		if m.selected == 0 {
			m.selected = n - 1
		} else {
			m.selected--
		}
		return
	}
	if m.detailsCI > 0 {
		m.detailsCI--
	}
}

func (m *Model) moveDown() {
	if m.mode == modeList {
		n := len(m.visibleIndices())
		if n == 0 {
			return
		}
		if m.selected+1 >= n {
			m.selected = 0
		} else {
			m.selected++
		}
		return
	}
	if pr, ok := m.detailsPr(); ok {
		if m.detailsCI+1 < len(pr.Pr.CiChecks) {
			m.detailsCI++
		}
	}
}

// stampOpened records the open time for prKey both in memory and through to
// the store. Opening stamps the PR even when the resolved URL was one of its
// CI checks; looking at a check is looking at the PR.
func (m Model) stampOpened(prKey string) tea.Cmd {
	ts := m.now()
	for i := range m.prs {
		if m.prs[i].Pr.PrKey == prKey {
			m.prs[i].LastOpenedAt = ts
			break
		}
	}
	return m.setOpenedCmd(prKey, ts)
}

// openSelected resolves the selection to a URL, hands it to the opener, and
// stamps last-opened. Together with stampOpened this is the only place the
// interactive loop writes into the cache directly.
func (m Model) openSelected() (tea.Model, tea.Cmd) {
	if m.mode == modeDetails {
		pr, ok := m.detailsPr()
		if !ok {
			return m, nil
		}
		url := pr.Pr.URL
		if m.detailsCI < len(pr.Pr.CiChecks) && pr.Pr.CiChecks[m.detailsCI].URL != "" {
			url = pr.Pr.CiChecks[m.detailsCI].URL
		}
		return m, tea.Batch(m.openURLCmd(url), m.stampOpened(pr.Pr.PrKey))
	}

	visible := m.visibleIndices()
	if m.selected >= len(visible) {
		return m, nil
	}
	pr := m.prs[visible[m.selected]]
	return m, tea.Batch(m.openURLCmd(pr.Pr.URL), m.stampOpened(pr.Pr.PrKey))
}

func normalizeQuery(q string) string {
	return trimLower(q)
}
