package campaign

import "time"

// Event types published on the bus during a run.
const (
	EventRunStarted   = "campaign.run_started"
	EventMessageSent  = "campaign.message_sent"
	EventJobFailed    = "campaign.job_failed"
	EventJobSkipped   = "campaign.job_skipped"
	EventBatchRest    = "campaign.batch_rest"
	EventQuotaReached = "campaign.quota_reached"
	EventRunFinished  = "campaign.run_finished"
)

// RunStarted is the payload of EventRunStarted.
type RunStarted struct {
	RunID       string
	CampaignKey string
	Total       int
	ResumeFrom  int // last processed index carried over, -1 for fresh runs
	DryRun      bool
}

// JobResult is the payload of the per-job events.
type JobResult struct {
	RunID       string
	Index       int
	Business    string
	Phone       string
	MessageType string
	Status      string // sent, failed, skipped
	Error       string
	Attempts    int
	Latency     time.Duration
	Preview     string
}

// BatchRest is the payload of EventBatchRest.
type BatchRest struct {
	RunID    string
	Duration time.Duration
}

// QuotaReached is the payload of EventQuotaReached.
type QuotaReached struct {
	RunID  string
	Reason string
}

// RunFinished is the payload of EventRunFinished.
type RunFinished struct {
	RunID   string
	Status  Status
	Summary Summary
}
