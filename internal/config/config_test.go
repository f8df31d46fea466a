package config

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmptyConfig(t *testing.T) {
	var f File
	require.NoError(t, toml.Unmarshal([]byte(""), &f))

	assert.Nil(t, f.Days)
	assert.Nil(t, f.Org)
	assert.Nil(t, f.Bell)
}

func TestParseFullConfig(t *testing.T) {
	input := `
days = 14
org = ["my-company", "other-org"]
include = ["my-company/important-repo"]
exclude = ["my-company/legacy-repo"]
include_team_requests = true
bell = true
no_notifications = false
hide_pr_numbers = false
hide_repo = false
hide_author = true
refresh_interval_list_secs = 120
refresh_interval_details_secs = 15
`
	var f File
	require.NoError(t, toml.Unmarshal([]byte(input), &f))

	require.NotNil(t, f.Days)
	assert.Equal(t, 14, *f.Days)
	assert.Equal(t, []string{"my-company", "other-org"}, f.Org)
	assert.Equal(t, []string{"my-company/important-repo"}, f.Include)
	assert.Equal(t, []string{"my-company/legacy-repo"}, f.Exclude)
	require.NotNil(t, f.IncludeTeamRequests)
	assert.True(t, *f.IncludeTeamRequests)
	require.NotNil(t, f.Bell)
	assert.True(t, *f.Bell)
	require.NotNil(t, f.NoNotifications)
	assert.False(t, *f.NoNotifications)
	require.NotNil(t, f.HideAuthor)
	assert.True(t, *f.HideAuthor)
	require.NotNil(t, f.RefreshIntervalListSecs)
	assert.Equal(t, 120, *f.RefreshIntervalListSecs)
	require.NotNil(t, f.RefreshIntervalDetailsSecs)
	assert.Equal(t, 15, *f.RefreshIntervalDetailsSecs)
}

func TestParsePartialConfig(t *testing.T) {
	input := "days = 7\nbell = true\n"
	var f File
	require.NoError(t, toml.Unmarshal([]byte(input), &f))

	require.NotNil(t, f.Days)
	assert.Equal(t, 7, *f.Days)
	require.NotNil(t, f.Bell)
	assert.True(t, *f.Bell)
	assert.Nil(t, f.Org)
	assert.Nil(t, f.Include)
}

func TestDefaults(t *testing.T) {
	s := Defaults()

	assert.Equal(t, DefaultDays, s.Days)
	assert.True(t, s.Notifications)
	assert.False(t, s.Bell)
	assert.Equal(t, DefaultListIntervalSecs, s.ListIntervalSecs)
	assert.Equal(t, DefaultDetailsIntervalSecs, s.DetailsIntervalSecs)
}

func TestApplyOverlaysOnlySetFields(t *testing.T) {
	days := 7
	noNotifs := true
	s := Defaults()

	s.Apply(File{
		Days:            &days,
		Org:             []string{"acme"},
		NoNotifications: &noNotifs,
	})

	assert.Equal(t, 7, s.Days)
	assert.Equal(t, []string{"acme"}, s.Orgs)
	assert.False(t, s.Notifications)
	// Fields the file never set keep their defaults.
	assert.Equal(t, DefaultListIntervalSecs, s.ListIntervalSecs)
	assert.False(t, s.Bell)
}

func TestApplyEmptyFileChangesNothing(t *testing.T) {
	s := Defaults()
	s.Apply(File{})

	assert.Equal(t, Defaults(), s)
}

// The template shipped on first run must itself be valid TOML once
// uncommented defaults are read back.
func TestDefaultFileContentParses(t *testing.T) {
	var f File
	require.NoError(t, toml.Unmarshal([]byte(defaultFileContent), &f))
	assert.Nil(t, f.Days)
}
