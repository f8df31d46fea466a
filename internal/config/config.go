// Package config loads optional settings from a TOML file and resolves them
// against CLI flags. Precedence is CLI flag, then config file, then default.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Default values applied when neither a flag nor the config file sets a field.
const (
	DefaultDays                = 30
	DefaultListIntervalSecs    = 180
	DefaultDetailsIntervalSecs = 30
)

// File mirrors the config file's TOML shape. Every field is optional; nil
// means "not set" so resolution can tell absence from an explicit false/zero.
type File struct {
	Days                       *int     `toml:"days"`
	Org                        []string `toml:"org"`
	Include                    []string `toml:"include"`
	Exclude                    []string `toml:"exclude"`
	IncludeTeamRequests        *bool    `toml:"include_team_requests"`
	Bell                       *bool    `toml:"bell"`
	NoNotifications            *bool    `toml:"no_notifications"`
	HidePrNumbers              *bool    `toml:"hide_pr_numbers"`
	HideRepo                   *bool    `toml:"hide_repo"`
	HideAuthor                 *bool    `toml:"hide_author"`
	RefreshIntervalListSecs    *int     `toml:"refresh_interval_list_secs"`
	RefreshIntervalDetailsSecs *int     `toml:"refresh_interval_details_secs"`
}

// Settings is the fully resolved configuration handed to the composition root.
type Settings struct {
	Days                int
	Orgs                []string
	IncludeRepos        []string
	ExcludeRepos        []string
	IncludeTeamRequests bool
	Bell                bool
	Notifications       bool
	HidePrNumbers       bool
	HideRepo            bool
	HideAuthor          bool
	ListIntervalSecs    int
	DetailsIntervalSecs int
}

// Defaults returns Settings with every field at its default.
func Defaults() Settings {
	return Settings{
		Days:                DefaultDays,
		Notifications:       true,
		ListIntervalSecs:    DefaultListIntervalSecs,
		DetailsIntervalSecs: DefaultDetailsIntervalSecs,
	}
}

// Apply overlays file values onto s. Only fields the file actually sets are
// copied; flags are applied by the caller afterwards so they win.
func (s *Settings) Apply(f File) {
	if f.Days != nil {
		s.Days = *f.Days
	}
	if f.Org != nil {
		s.Orgs = f.Org
	}
	if f.Include != nil {
		s.IncludeRepos = f.Include
	}
	if f.Exclude != nil {
		s.ExcludeRepos = f.Exclude
	}
	if f.IncludeTeamRequests != nil {
		s.IncludeTeamRequests = *f.IncludeTeamRequests
	}
	if f.Bell != nil {
		s.Bell = *f.Bell
	}
	if f.NoNotifications != nil {
		s.Notifications = !*f.NoNotifications
	}
	if f.HidePrNumbers != nil {
		s.HidePrNumbers = *f.HidePrNumbers
	}
	if f.HideRepo != nil {
		s.HideRepo = *f.HideRepo
	}
	if f.HideAuthor != nil {
		s.HideAuthor = *f.HideAuthor
	}
	if f.RefreshIntervalListSecs != nil {
		s.ListIntervalSecs = *f.RefreshIntervalListSecs
	}
	if f.RefreshIntervalDetailsSecs != nil {
		s.DetailsIntervalSecs = *f.RefreshIntervalDetailsSecs
	}
}

// Path returns the config file location, ~/.config/needle/config.toml or the
// platform equivalent.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return filepath.Join(dir, "needle", "config.toml"), nil
}

const defaultFileContent = `# Needle configuration file
# All fields are optional - CLI arguments override these values
# Uncomment and modify the options you want to customize

# Only include PRs updated in the last N days (default: 30)
# days = 30

# Only show PRs from these orgs/users
# org = ["my-company", "my-username"]

# Only show these specific repos (owner/repo)
# include = ["my-company/important-repo"]

# Exclude these repos from the list (owner/repo)
# exclude = ["my-company/noisy-repo", "my-company/legacy-repo"]

# Include PRs where review is requested from teams you're in (default: false)
# include_team_requests = false

# Ring terminal bell on important events (default: false)
# bell = false

# Disable desktop notifications (default: false, i.e. notifications enabled)
# no_notifications = false

# Hide columns in list view
# hide_pr_numbers = false
# hide_repo = false
# hide_author = false

# Auto-refresh intervals in seconds
# refresh_interval_list_secs = 180    # 3 minutes for list view
# refresh_interval_details_secs = 30  # 30 seconds for details view
`

// Load reads the config file and resolves Settings. A missing file is created
// with a fully commented template. A file that cannot be read or parsed is
// logged and ignored; bad config never blocks startup.
func Load(logger *slog.Logger) Settings {
	settings := Defaults()

	path, err := Path()
	if err != nil {
		logger.Warn("config path unavailable, using defaults", "error", err)
		return settings
	}

	f, err := loadFile(path)
	if err != nil {
		logger.Warn("config file ignored", "path", path, "error", err)
		return settings
	}

	settings.Apply(f)
	return settings
}

func loadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if writeErr := writeDefaultFile(path); writeErr != nil {
			return File{}, fmt.Errorf("creating default config: %w", writeErr)
		}
		return File{}, nil
	}
	if err != nil {
		return File{}, fmt.Errorf("reading config: %w", err)
	}

	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parsing config: %w", err)
	}
	return f, nil
}

func writeDefaultFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultFileContent), 0o644)
}
