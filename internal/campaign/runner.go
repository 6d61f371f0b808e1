// Package campaign drives an outbound run job by job: one sender
// session, strictly sequential, with quota checks, randomized pacing,
// bounded retries and crash-safe progress.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/compose"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/contacts"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/eventbus"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/retry"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/sender"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/storage"
	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

const defaultSaveEvery = 5

// Quota is the slice of the quota tracker the runner needs.
type Quota interface {
	CanSend() (bool, string)
	RecordSent(ctx context.Context) error
}

// Pacer is the slice of the pace scheduler the runner needs.
type Pacer interface {
	NextMessageDelay() time.Duration
	RecordMessage()
	ShouldTakeBatchRest() bool
	BatchRestDelay() time.Duration
	Remaining() int
}

// Options tunes a run.
type Options struct {
	// SaveEvery persists progress after every Nth terminal job outcome.
	SaveEvery int
	// Fresh discards any persisted progress and starts from the top.
	Fresh bool
	// DryRun is recorded in events and reports; the caller is expected
	// to pair it with a dry-run sender.
	DryRun bool
	// CountAttempts charges quota per send attempt instead of per
	// success, for channels whose rate limiting is attempt-based.
	CountAttempts bool
	// PreviewLen truncates the message preview stored with results.
	PreviewLen int
}

// Summary is the outcome of one Run call.
type Summary struct {
	RunID              string
	Status             Status
	Total              int
	Sent               int
	Failed             int
	Skipped            int
	LastProcessedIndex int
	StartedAt          time.Time
	FinishedAt         time.Time
}

// Runner executes one campaign over a job source. It is single use:
// build one per Run call.
type Runner struct {
	source   contacts.Source
	sender   sender.Sender
	composer *compose.Composer
	quota    Quota
	pacer    Pacer
	policy   retry.Policy
	store    storage.Store
	bus      eventbus.Bus
	log      logx.Logger
	opts     Options

	// test seams
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	status   Status
	runID    string
	key      string
	progress storage.ProgressRecord
	dirty    int // terminal outcomes since the last persisted snapshot
}

// New wires a runner. store and bus may be nil; quota and pacer must
// not be.
func New(source contacts.Source, snd sender.Sender, composer *compose.Composer,
	q Quota, p Pacer, policy retry.Policy,
	store storage.Store, bus eventbus.Bus, log logx.Logger, opts Options) *Runner {

	if opts.SaveEvery <= 0 {
		opts.SaveEvery = defaultSaveEvery
	}
	if opts.PreviewLen <= 0 {
		opts.PreviewLen = 120
	}
	return &Runner{
		source:   source,
		sender:   snd,
		composer: composer,
		quota:    q,
		pacer:    p,
		policy:   policy,
		store:    store,
		bus:      bus,
		log:      log.With(logx.String("component", "campaign")),
		opts:     opts,
		sleep:    sleepCtx,
		now:      time.Now,
		runID:    uuid.NewString(),
	}
}

// Status reports the runner's current lifecycle state.
func (r *Runner) Status() Status { return r.status }

// Run processes the source until it is exhausted, a quota window
// closes, the context is cancelled, or a fatal send error occurs.
// Cancellation is honored between jobs and during waits, never while a
// send is in flight.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	r.key = r.source.Fingerprint()
	start := r.now()

	startIndex, err := r.loadProgress(ctx, start)
	if err != nil {
		return r.summary(), err
	}

	r.status = StatusRunning
	r.publish(EventRunStarted, RunStarted{
		RunID:       r.runID,
		CampaignKey: r.key,
		Total:       r.source.Len(),
		ResumeFrom:  r.progress.LastProcessedIndex,
		DryRun:      r.opts.DryRun,
	})
	r.log.Info("run started",
		logx.String("run_id", r.runID),
		logx.Int("total", r.source.Len()),
		logx.Int("start_index", startIndex),
		logx.Bool("dry_run", r.opts.DryRun))

	var runErr error

	for i := startIndex; i < r.source.Len(); i++ {
		if ctx.Err() != nil {
			r.log.Info("stop requested, pausing", logx.Int("next_index", i))
			r.status = StatusPaused
			break
		}

		job := r.source.At(i)

		if job.SkipReason != "" {
			r.finishJob(ctx, job, JobResult{
				Status: "skipped",
				Error:  job.SkipReason,
			})
			continue
		}

		if ok, reason := r.quota.CanSend(); !ok {
			r.log.Info("quota reached, pausing", logx.String("reason", reason), logx.Int("next_index", i))
			r.status = StatusPausedQuota
			r.publish(EventQuotaReached, QuotaReached{RunID: r.runID, Reason: reason})
			break
		}

		if r.pacer.ShouldTakeBatchRest() {
			d := r.pacer.BatchRestDelay()
			r.log.Info("batch rest", logx.Duration("duration", d))
			r.publish(EventBatchRest, BatchRest{RunID: r.runID, Duration: d})
			if err := r.sleep(ctx, d); err != nil {
				r.status = StatusPaused
				break
			}
		}

		res, fatal := r.sendWithRetry(ctx, job)
		if fatal != nil {
			// The in-flight job gets no terminal outcome; progress stays
			// at the previous index so a later run re-attempts it.
			if errors.Is(fatal, context.Canceled) || errors.Is(fatal, context.DeadlineExceeded) {
				r.status = StatusPaused
			} else {
				r.status = StatusAborted
				runErr = fatal
			}
			break
		}
		r.finishJob(ctx, job, res)

		if res.Status == "sent" && i < r.source.Len()-1 {
			d := r.pacer.NextMessageDelay()
			r.log.Debug("pacing",
				logx.Duration("delay", d),
				logx.Int("until_batch_rest", r.pacer.Remaining()))
			if err := r.sleep(ctx, d); err != nil {
				r.status = StatusPaused
				break
			}
		}
	}

	if r.status == StatusRunning {
		r.status = StatusCompleted
	}

	// The final snapshot must land even when the run context is already
	// cancelled; persistence gets its own deadline.
	pctx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelPersist()
	r.persist(pctx, true)
	if r.status == StatusCompleted && r.store != nil {
		if err := r.store.ClearProgress(pctx, r.key); err != nil {
			r.log.Warn("clear progress failed", logx.Err(err))
		}
	}

	sum := r.summary()
	sum.FinishedAt = r.now()
	r.publish(EventRunFinished, RunFinished{RunID: r.runID, Status: r.status, Summary: sum})
	r.log.Info("run finished",
		logx.String("status", r.status.String()),
		logx.Int("sent", sum.Sent),
		logx.Int("failed", sum.Failed),
		logx.Int("skipped", sum.Skipped))
	return sum, runErr
}

// loadProgress decides where iteration starts. Jobs at or before the
// persisted index are never re-attempted.
func (r *Runner) loadProgress(ctx context.Context, start time.Time) (int, error) {
	r.progress = storage.ProgressRecord{
		CampaignKey:        r.key,
		RunID:              r.runID,
		LastProcessedIndex: -1,
		StartedAt:          start,
	}
	if r.store == nil {
		return 0, nil
	}
	if r.opts.Fresh {
		if err := r.store.ClearProgress(ctx, r.key); err != nil {
			return 0, fmt.Errorf("clear progress: %w", err)
		}
		return 0, nil
	}
	rec, ok, err := r.store.LoadProgress(ctx, r.key)
	if err != nil {
		return 0, fmt.Errorf("load progress: %w", err)
	}
	if !ok {
		return 0, nil
	}
	r.progress = rec
	r.progress.RunID = r.runID
	r.log.Info("resuming",
		logx.Int("last_processed_index", rec.LastProcessedIndex),
		logx.Int("sent", rec.Sent),
		logx.Int("failed", rec.Failed),
		logx.Int("skipped", rec.Skipped))
	return rec.LastProcessedIndex + 1, nil
}

// sendWithRetry runs the bounded attempt loop for one job. It returns
// the terminal result, or a non-nil fatal error that must abort the
// run. Retries never advance the index; quota is charged on success
// only unless CountAttempts is set.
func (r *Runner) sendWithRetry(ctx context.Context, job contacts.Job) (JobResult, error) {
	text := r.composer.Message(job.Business)
	msg := sender.Message{Phone: job.Business.Phone, Text: text}
	kind := string(compose.DetectKind(job.Business))
	preview := compose.Preview(text, r.opts.PreviewLen)

	res := JobResult{MessageType: kind, Preview: preview}

	for attempt := 0; ; attempt++ {
		latency, err := r.sender.Send(ctx, msg)
		res.Attempts = attempt + 1
		res.Latency = latency

		if r.opts.CountAttempts && !sender.IsFatal(err) {
			r.recordQuota(ctx)
		}

		if err == nil {
			if !r.opts.CountAttempts {
				r.recordQuota(ctx)
			}
			r.pacer.RecordMessage()
			res.Status = "sent"
			return res, nil
		}

		if sender.IsFatal(err) {
			r.log.Error("fatal send error", logx.Int("index", job.Index), logx.Err(err))
			return res, err
		}
		if sender.IsPermanent(err) {
			res.Status = "skipped"
			res.Error = err.Error()
			return res, nil
		}
		if !r.policy.ShouldRetry(attempt, err) {
			res.Status = "failed"
			res.Error = err.Error()
			return res, nil
		}

		backoff := r.policy.BackoffDelay(attempt)
		r.log.Warn("send failed, retrying",
			logx.Int("index", job.Index),
			logx.Int("attempt", attempt+1),
			logx.Duration("backoff", backoff),
			logx.Err(err))
		if serr := r.sleep(ctx, backoff); serr != nil {
			// Treat a cancelled backoff like cancellation between jobs.
			return res, serr
		}
	}
}

// finishJob books a terminal outcome: counters, progress index, the
// per-job event, and the periodic snapshot.
func (r *Runner) finishJob(ctx context.Context, job contacts.Job, res JobResult) {
	res.RunID = r.runID
	res.Index = job.Index
	res.Business = job.Business.Name
	res.Phone = job.Business.Phone

	var eventType string
	switch res.Status {
	case "sent":
		r.progress.Sent++
		eventType = EventMessageSent
	case "failed":
		r.progress.Failed++
		eventType = EventJobFailed
	default:
		r.progress.Skipped++
		eventType = EventJobSkipped
	}
	r.progress.LastProcessedIndex = job.Index
	r.dirty++

	r.log.Info("job finished",
		logx.Int("index", job.Index),
		logx.String("business", res.Business),
		logx.String("status", res.Status),
		logx.Int("attempts", res.Attempts))
	r.publish(eventType, res)

	if r.store != nil {
		if err := r.store.AppendResult(ctx, storage.ResultEntry{
			At:          r.now(),
			RunID:       r.runID,
			Index:       res.Index,
			Business:    res.Business,
			Phone:       res.Phone,
			MessageType: res.MessageType,
			Status:      res.Status,
			Error:       res.Error,
			Attempts:    res.Attempts,
			TookMS:      res.Latency.Milliseconds(),
			Preview:     res.Preview,
		}); err != nil {
			r.log.Warn("append result failed", logx.Err(err))
		}
	}

	if r.dirty >= r.opts.SaveEvery {
		r.persist(ctx, false)
	}
}

// recordQuota charges one send against the quota. A failed flush is a
// persistence problem, not a send problem: log and keep going.
func (r *Runner) recordQuota(ctx context.Context) {
	if err := r.quota.RecordSent(ctx); err != nil {
		r.log.Warn("quota persist failed", logx.Err(err))
	}
}

// persist snapshots progress. Write failures are logged, never fatal;
// the accepted risk is reprocessing at most SaveEvery jobs after a
// crash.
func (r *Runner) persist(ctx context.Context, force bool) {
	if r.store == nil || (!force && r.dirty == 0) {
		return
	}
	r.progress.UpdatedAt = r.now()
	if err := r.store.SaveProgress(ctx, r.progress); err != nil {
		r.log.Warn("progress persist failed", logx.Err(err))
		return
	}
	r.dirty = 0
}

func (r *Runner) publish(eventType string, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: eventType, Time: r.now(), Data: data})
}

func (r *Runner) summary() Summary {
	return Summary{
		RunID:              r.runID,
		Status:             r.status,
		Total:              r.source.Len(),
		Sent:               r.progress.Sent,
		Failed:             r.progress.Failed,
		Skipped:            r.progress.Skipped,
		LastProcessedIndex: r.progress.LastProcessedIndex,
		StartedAt:          r.progress.StartedAt,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
