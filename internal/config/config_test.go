package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampBudget(t *testing.T) {
	cases := []struct{ in, want int }{
		{-5, 0},
		{0, 0},
		{10, 10},
		{100, 100},
		{101, 100},
		{9999, 100},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClampBudget(c.in), "ClampBudget(%d)", c.in)
	}
}

func TestClampJitter(t *testing.T) {
	assert.Equal(t, 1.5, ClampJitter(-1.5))
	assert.Equal(t, 0.0, ClampJitter(0))
	assert.Equal(t, 2.0, ClampJitter(2.0))
}

func TestNormalizePerPage(t *testing.T) {
	assert.Equal(t, 10, NormalizePerPage(10))
	assert.Equal(t, 25, NormalizePerPage(25))
	assert.Equal(t, 50, NormalizePerPage(50))
	assert.Equal(t, DefaultPerPage, NormalizePerPage(0))
	assert.Equal(t, DefaultPerPage, NormalizePerPage(30))
	assert.Equal(t, DefaultPerPage, NormalizePerPage(-1))
}

func TestNormalizeSort(t *testing.T) {
	for _, valid := range []string{"relevance", "lastName", "firstName", "classyear", "lastLogin"} {
		assert.Equal(t, valid, NormalizeSort(valid))
	}
	assert.Equal(t, DefaultSortBy, NormalizeSort(""))
	assert.Equal(t, DefaultSortBy, NormalizeSort("lastname"))
	assert.Equal(t, DefaultSortBy, NormalizeSort("bogus"))
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ALUMNI_USERNAME", "user@example.edu")
	t.Setenv("ALUMNI_PASSWORD", "hunter2")
	t.Setenv("ALUMNI_DIR_URL", "https://directory.example.edu/")
	t.Setenv("QUERY", "class of 2010")
	t.Setenv("MESSAGE", "Would love to hear from you.")
}

func TestLoadAppliesDefaultsAndNormalization(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VIEW_OPTIONS", "37")
	t.Setenv("SORT_RESULTS", "no-such-sort")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPerPage, cfg.Search.PerPage, "invalid view option falls back")
	assert.Equal(t, DefaultSortBy, cfg.Search.SortBy, "invalid sort key falls back")
	assert.Equal(t, DefaultBudget, cfg.Outreach.MaxEmails)
	assert.Equal(t, DefaultJitter, cfg.Outreach.JitterFactor)
	assert.True(t, cfg.Outreach.TouchOnSkip)
	assert.Equal(t, 15, cfg.Timeouts.ElementSec)
	assert.Equal(t, 300, cfg.Timeouts.MFASec)
	assert.Equal(t, "data", cfg.Data.Dir)
}

func TestLoadReadsYAMLAndClamps(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
search:
  per_page: 25
  sort_by: classyear
outreach:
  max_emails: 250
  jitter_factor: -2.5
message:
  subject: "Hello from an old classmate"
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Search.PerPage)
	assert.Equal(t, "classyear", cfg.Search.SortBy)
	assert.Equal(t, MaxBudget, cfg.Outreach.MaxEmails, "budget clamps to the maximum")
	assert.Equal(t, 2.5, cfg.Outreach.JitterFactor, "negative jitter folds to positive")
	assert.Equal(t, "Hello from an old classmate", cfg.Message.Subject)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRunRejectsMissingCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALUMNI_PASSWORD", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "Load itself never requires run-only settings")
	err = cfg.ValidateRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALUMNI_PASSWORD")
}

func TestValidateRunAcceptsCompleteConfig(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateRun())
}

func TestLoadWithoutRunSettings(t *testing.T) {
	// Commands that never touch the directory (merge) load config with no
	// credentials, query, or message present.
	t.Setenv("ALUMNI_USERNAME", "")
	t.Setenv("ALUMNI_PASSWORD", "")
	t.Setenv("ALUMNI_DIR_URL", "")
	t.Setenv("QUERY", "")
	t.Setenv("MESSAGE", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.Data.Dir)
}

func TestCredentials(t *testing.T) {
	t.Setenv("ALUMNI_USERNAME", "u")
	t.Setenv("ALUMNI_PASSWORD", "p")
	u, p := Credentials()
	assert.Equal(t, "u", u)
	assert.Equal(t, "p", p)
}
