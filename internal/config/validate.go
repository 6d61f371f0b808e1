package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks a config for internally consistent values. It parses every
// duration field so a typo fails fast instead of mid-campaign.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Campaign.ContactsFile) == "" {
		return errors.New("campaign.contacts_file is required")
	}
	if cfg.Campaign.SaveEvery < 0 {
		return errors.New("campaign.save_every must be >= 0")
	}
	if s := strings.TrimSpace(cfg.Campaign.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("campaign.schedule: invalid cron spec %q: %w", s, err)
		}
	}

	minMsg, err := ParseDurationField("rate.min_message_delay", cfg.Rate.MinMessageDelay)
	if err != nil {
		return err
	}
	maxMsg, err := ParseDurationField("rate.max_message_delay", cfg.Rate.MaxMessageDelay)
	if err != nil {
		return err
	}
	if minMsg > maxMsg {
		return errors.New("rate.min_message_delay must not exceed rate.max_message_delay")
	}

	minBatch, err := ParseDurationField("rate.min_batch_delay", cfg.Rate.MinBatchDelay)
	if err != nil {
		return err
	}
	maxBatch, err := ParseDurationField("rate.max_batch_delay", cfg.Rate.MaxBatchDelay)
	if err != nil {
		return err
	}
	if minBatch > maxBatch {
		return errors.New("rate.min_batch_delay must not exceed rate.max_batch_delay")
	}

	if cfg.Rate.MinBatchSize <= 0 || cfg.Rate.MaxBatchSize <= 0 {
		return errors.New("rate.min_batch_size and rate.max_batch_size must be > 0")
	}
	if cfg.Rate.MinBatchSize > cfg.Rate.MaxBatchSize {
		return errors.New("rate.min_batch_size must not exceed rate.max_batch_size")
	}

	if cfg.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries must be >= 0")
	}
	if cfg.Retry.BackoffFactor < 1 {
		return errors.New("retry.backoff_factor must be >= 1")
	}
	if _, err := ParseDurationField("retry.base_delay", cfg.Retry.BaseDelay); err != nil {
		return err
	}
	if _, err := ParseDurationField("retry.max_backoff", cfg.Retry.MaxBackoff); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}

	if cfg.Notify.Telegram.Enabled {
		if strings.TrimSpace(cfg.Notify.Telegram.Token) == "" {
			return errors.New("notify.telegram.token is required when telegram notify is enabled")
		}
		if cfg.Notify.Telegram.ChatID == 0 {
			return errors.New("notify.telegram.chat_id is required when telegram notify is enabled")
		}
	}

	return nil
}
