package config

// Config is the full application configuration.
//
// All durations are Go duration strings (e.g. "20s", "5m"). They are parsed
// at bootstrap via ParseDurationField so a bad value is rejected before the
// campaign starts, not in the middle of a run.
type Config struct {
	Campaign CampaignConfig `json:"campaign"`
	Rate     RateConfig     `json:"rate"`
	Retry    RetryConfig    `json:"retry"`
	Storage  StorageConfig  `json:"storage"`
	Reports  ReportsConfig  `json:"reports,omitempty"`
	Notify   NotifyConfig   `json:"notify,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
}

// CampaignConfig controls the run itself.
type CampaignConfig struct {
	// ContactsFile is the .xlsx or .csv job list. Row order defines job order.
	ContactsFile string `json:"contacts_file"`

	// SaveEvery bounds how much reprocessable work a hard crash can lose:
	// progress is persisted after every SaveEvery terminal job outcomes.
	SaveEvery int `json:"save_every,omitempty"`

	// Schedule is an optional cron spec ("0 9 * * *"). When set, the campaign
	// waits for the next activation before starting.
	Schedule string `json:"schedule,omitempty"`

	DryRun   bool `json:"dry_run,omitempty"`
	Headless bool `json:"headless,omitempty"`

	// CountryCode is the default region for phone normalization.
	CountryCode string `json:"country_code,omitempty"`

	// ChromeProfile is the persistent browser profile directory holding the
	// WhatsApp Web session.
	ChromeProfile string `json:"chrome_profile,omitempty"`
}

// RateConfig controls pacing and quota enforcement.
//
// Daily/hourly limits <= 0 mean the limit is disabled; rollover bookkeeping
// still runs so counters stay accurate if a limit is re-enabled mid-run.
type RateConfig struct {
	MinMessageDelay string `json:"min_message_delay"`
	MaxMessageDelay string `json:"max_message_delay"`

	MinBatchSize  int    `json:"min_batch_size"`
	MaxBatchSize  int    `json:"max_batch_size"`
	MinBatchDelay string `json:"min_batch_delay"`
	MaxBatchDelay string `json:"max_batch_delay"`

	DailyLimit  int `json:"daily_limit"`
	HourlyLimit int `json:"hourly_limit"`

	// CountAttempts switches quota accounting from successes to attempts.
	// Off by default: a failed attempt does not consume quota.
	CountAttempts bool `json:"count_attempts,omitempty"`
}

// RetryConfig controls transient-failure retries.
type RetryConfig struct {
	MaxRetries    int     `json:"max_retries"`
	BaseDelay     string  `json:"base_delay"`
	BackoffFactor float64 `json:"backoff_factor"`
	// MaxBackoff clamps the exponential delay. "0s" (or omitted) means uncapped.
	MaxBackoff string `json:"max_backoff,omitempty"`
}

// StorageConfig controls the persistence layer (progress, quota, results).
//
// Driver values:
//   - "file": snapshot JSON files + jsonl result log
//   - "sqlite": SQLite database file
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// ReportsConfig controls CSV/JSON report output.
type ReportsConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir,omitempty"`
}

// NotifyConfig controls best-effort operator notifications.
type NotifyConfig struct {
	Telegram TelegramNotifyConfig `json:"telegram,omitempty"`
}

type TelegramNotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	RatePerMin int    `json:"rate_per_min,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Default returns the baseline configuration. Values mirror the conservative
// anti-ban defaults the tool ships with.
func Default() *Config {
	return &Config{
		Campaign: CampaignConfig{
			ContactsFile:  "./data/contacts.xlsx",
			SaveEvery:     5,
			CountryCode:   "US",
			ChromeProfile: "./chrome_profile_whatsapp",
		},
		Rate: RateConfig{
			MinMessageDelay: "20s",
			MaxMessageDelay: "90s",
			MinBatchSize:    10,
			MaxBatchSize:    20,
			MinBatchDelay:   "5m",
			MaxBatchDelay:   "15m",
			DailyLimit:      50,
			HourlyLimit:     15,
		},
		Retry: RetryConfig{
			MaxRetries:    3,
			BaseDelay:     "2s",
			BackoffFactor: 2.0,
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   "./data/state",
		},
		Reports: ReportsConfig{
			Enabled: true,
			Dir:     "./data/reports",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Enabled: true, Path: "./wabot.log"},
		},
	}
}
