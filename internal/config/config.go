package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Enumerated option sets for the directory's result controls. Anything else
// falls back to the default at normalization time.
var (
	ViewOptions = map[int]bool{10: true, 25: true, 50: true}
	SortOptions = map[string]bool{
		"relevance": true,
		"lastName":  true,
		"firstName": true,
		"classyear": true,
		"lastLogin": true,
	}
)

const (
	DefaultPerPage = 50
	DefaultSortBy  = "lastName"
	DefaultBudget  = 10
	DefaultJitter  = 1.0
	MaxBudget      = 100
)

type Config struct {
	Directory struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"directory"`
	Search struct {
		Query           string `yaml:"query"`
		PerPage         int    `yaml:"per_page"`
		SortBy          string `yaml:"sort_by"`
		IncludeDeceased bool   `yaml:"include_deceased"`
	} `yaml:"search"`
	Message struct {
		Subject    string `yaml:"subject"`
		Body       string `yaml:"body"`
		CopySender bool   `yaml:"copy_sender"`
	} `yaml:"message"`
	Outreach struct {
		MaxEmails    int     `yaml:"max_emails"`
		JitterFactor float64 `yaml:"jitter_factor"`
		MinSleepMs   int     `yaml:"min_sleep_ms"`
		TouchOnSkip  bool    `yaml:"touch_on_skip"`
	} `yaml:"outreach"`
	Timeouts struct {
		ElementSec  int `yaml:"element_sec"`
		MFASec      int `yaml:"mfa_sec"`
		TakeoverSec int `yaml:"takeover_sec"`
	} `yaml:"timeouts"`
	Data struct {
		Dir string `yaml:"dir"`
	} `yaml:"data"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional
	cfg := defaultConfig()
	if b, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	var cfg Config
	cfg.Search.PerPage = DefaultPerPage
	cfg.Search.SortBy = DefaultSortBy
	cfg.Message.Subject = "Reaching out"
	cfg.Message.CopySender = true
	cfg.Outreach.MaxEmails = DefaultBudget
	cfg.Outreach.JitterFactor = DefaultJitter
	cfg.Outreach.MinSleepMs = 3000
	cfg.Outreach.TouchOnSkip = true
	cfg.Timeouts.ElementSec = 15
	cfg.Timeouts.MFASec = 300
	cfg.Timeouts.TakeoverSec = 180
	cfg.Data.Dir = "data"
	cfg.Logging.Level = "info"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALUMNI_DIR_URL"); v != "" {
		cfg.Directory.BaseURL = v
	}
	if v := os.Getenv("QUERY"); v != "" {
		cfg.Search.Query = v
	}
	if v := os.Getenv("VIEW_OPTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.PerPage = n
		}
	}
	if v := os.Getenv("SORT_RESULTS"); v != "" {
		cfg.Search.SortBy = v
	}
	if v := os.Getenv("SUBJECT"); v != "" {
		cfg.Message.Subject = v
	}
	if v := os.Getenv("MESSAGE"); v != "" {
		cfg.Message.Body = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("OUTREACH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// normalize applies every clamping and defaulting rule in one place so no
// component re-checks ranges inline.
func normalize(cfg *Config) {
	cfg.Outreach.MaxEmails = ClampBudget(cfg.Outreach.MaxEmails)
	cfg.Outreach.JitterFactor = ClampJitter(cfg.Outreach.JitterFactor)
	cfg.Search.PerPage = NormalizePerPage(cfg.Search.PerPage)
	cfg.Search.SortBy = NormalizeSort(cfg.Search.SortBy)
	if cfg.Outreach.MinSleepMs <= 0 {
		cfg.Outreach.MinSleepMs = 3000
	}
	if cfg.Timeouts.ElementSec <= 0 {
		cfg.Timeouts.ElementSec = 15
	}
	if cfg.Timeouts.MFASec <= 0 {
		cfg.Timeouts.MFASec = 300
	}
	if cfg.Timeouts.TakeoverSec <= 0 {
		cfg.Timeouts.TakeoverSec = 180
	}
}

// ValidateRun checks the requirements of an outreach run: directory URL,
// query, message body, and login credentials. Commands that never touch the
// directory (merge) do not need any of these, so Load leaves them unchecked.
func (c *Config) ValidateRun() error {
	if c.Directory.BaseURL == "" {
		return errors.New("directory.base_url (or ALUMNI_DIR_URL) is required")
	}
	if c.Search.Query == "" {
		return errors.New("search.query (or QUERY) is required")
	}
	if c.Message.Body == "" {
		return errors.New("message.body (or MESSAGE) is required")
	}
	if os.Getenv("ALUMNI_USERNAME") == "" {
		return errors.New("ALUMNI_USERNAME is required in env")
	}
	if os.Getenv("ALUMNI_PASSWORD") == "" {
		return errors.New("ALUMNI_PASSWORD is required in env")
	}
	return nil
}

// Credentials reads the login pair from the environment. Validation has
// already guaranteed both are set.
func Credentials() (username, password string) {
	return os.Getenv("ALUMNI_USERNAME"), os.Getenv("ALUMNI_PASSWORD")
}

// ClampBudget bounds the send budget to [0, MaxBudget].
func ClampBudget(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxBudget {
		return MaxBudget
	}
	return n
}

// ClampJitter folds negatives to their absolute value, matching the prompt
// behavior ("negatives are not allowed").
func ClampJitter(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// NormalizePerPage keeps n only if it is one of the directory's view
// options.
func NormalizePerPage(n int) int {
	if ViewOptions[n] {
		return n
	}
	return DefaultPerPage
}

// NormalizeSort keeps s only if it is one of the directory's sort keys.
func NormalizeSort(s string) string {
	if SortOptions[s] {
		return s
	}
	return DefaultSortBy
}
