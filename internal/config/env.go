package config

import (
	"fmt"
	"strconv"

	"github.com/caarlos0/env/v11"
)

// envOverrides mirrors the environment variables the original tooling read
// from its .env file. Delay values are plain seconds there, so they stay
// seconds here instead of Go duration strings.
type envOverrides struct {
	ContactsFile *string `env:"EXCEL_FILE_PATH"`
	CountryCode  *string `env:"DEFAULT_COUNTRY_CODE"`
	DryRun       *bool   `env:"DRY_RUN"`
	Headless     *bool   `env:"HEADLESS"`

	MinMessageDelay *int `env:"MIN_MESSAGE_DELAY"`
	MaxMessageDelay *int `env:"MAX_MESSAGE_DELAY"`
	MinBatchDelay   *int `env:"MIN_BATCH_DELAY"`
	MaxBatchDelay   *int `env:"MAX_BATCH_DELAY"`
	BatchSize       *int `env:"BATCH_SIZE"`
	DailyLimit      *int `env:"MAX_DAILY_MESSAGES"`
	HourlyLimit     *int `env:"MAX_HOURLY_MESSAGES"`

	MaxRetries    *int     `env:"MAX_RETRIES"`
	BackoffFactor *float64 `env:"RETRY_BACKOFF_FACTOR"`

	TelegramToken  *string `env:"TELEGRAM_TOKEN"`
	TelegramChatID *int64  `env:"TELEGRAM_CHAT_ID"`
}

// applyEnv overlays environment variables onto a file-loaded config.
// Environment wins over the file, flags (applied later in main) win over both.
func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}

	if o.ContactsFile != nil {
		cfg.Campaign.ContactsFile = *o.ContactsFile
	}
	if o.CountryCode != nil {
		cfg.Campaign.CountryCode = *o.CountryCode
	}
	if o.DryRun != nil {
		cfg.Campaign.DryRun = *o.DryRun
	}
	if o.Headless != nil {
		cfg.Campaign.Headless = *o.Headless
	}

	if o.MinMessageDelay != nil {
		cfg.Rate.MinMessageDelay = secondsString(*o.MinMessageDelay)
	}
	if o.MaxMessageDelay != nil {
		cfg.Rate.MaxMessageDelay = secondsString(*o.MaxMessageDelay)
	}
	if o.MinBatchDelay != nil {
		cfg.Rate.MinBatchDelay = secondsString(*o.MinBatchDelay)
	}
	if o.MaxBatchDelay != nil {
		cfg.Rate.MaxBatchDelay = secondsString(*o.MaxBatchDelay)
	}
	if o.BatchSize != nil {
		// A single BATCH_SIZE pins the random range to a fixed threshold.
		cfg.Rate.MinBatchSize = *o.BatchSize
		cfg.Rate.MaxBatchSize = *o.BatchSize
	}
	if o.DailyLimit != nil {
		cfg.Rate.DailyLimit = *o.DailyLimit
	}
	if o.HourlyLimit != nil {
		cfg.Rate.HourlyLimit = *o.HourlyLimit
	}

	if o.MaxRetries != nil {
		cfg.Retry.MaxRetries = *o.MaxRetries
	}
	if o.BackoffFactor != nil {
		cfg.Retry.BackoffFactor = *o.BackoffFactor
	}

	if o.TelegramToken != nil {
		cfg.Notify.Telegram.Token = *o.TelegramToken
	}
	if o.TelegramChatID != nil {
		cfg.Notify.Telegram.ChatID = *o.TelegramChatID
	}
	return nil
}

func secondsString(n int) string {
	return strconv.Itoa(n) + "s"
}
