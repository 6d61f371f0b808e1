package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": snapshot JSON files + jsonl result log
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled and the campaign runs
// without durable state (no resume, no quota carry-over).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ProgressRecord is the durable campaign position. CampaignKey is the job
// source fingerprint; a record saved for one source is never offered to
// another.
type ProgressRecord struct {
	CampaignKey        string    `json:"campaign_key"`
	RunID              string    `json:"run_id"`
	LastProcessedIndex int       `json:"last_processed_index"`
	Sent               int       `json:"sent"`
	Failed             int       `json:"failed"`
	Skipped            int       `json:"skipped"`
	StartedAt          time.Time `json:"started_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// QuotaRecord is the persisted send-counter state. It survives restarts so a
// daily ceiling cannot be bypassed by relaunching the process.
type QuotaRecord struct {
	SentToday    int       `json:"sent_today"`
	SentThisHour int       `json:"sent_this_hour"`
	TotalSent    int       `json:"total_sent"`
	Date         string    `json:"date"` // YYYY-MM-DD
	Hour         int       `json:"hour"` // 0..23
	UpdatedAt    time.Time `json:"updated_at"`
}

// ResultEntry records one terminal job outcome. Append-only.
type ResultEntry struct {
	At          time.Time `json:"at"`
	RunID       string    `json:"run_id"`
	Index       int       `json:"index"`
	Business    string    `json:"business"`
	Phone       string    `json:"phone"`
	MessageType string    `json:"message_type,omitempty"`
	Status      string    `json:"status"` // sent | failed | skipped
	Error       string    `json:"error,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	TookMS      int64     `json:"took_ms,omitempty"`
	Preview     string    `json:"preview,omitempty"`
}
