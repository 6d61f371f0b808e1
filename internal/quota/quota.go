// Package quota enforces daily and hourly send ceilings with
// clock-driven rollover and write-through persistence.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/storage"
	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

// Limits holds the send ceilings. A value <= 0 disables that ceiling.
type Limits struct {
	Daily  int
	Hourly int
}

// persister is the slice of storage.Store the tracker needs. A nil
// persister keeps counters in memory only.
type persister interface {
	LoadQuota(ctx context.Context) (storage.QuotaRecord, bool, error)
	SaveQuota(ctx context.Context, rec storage.QuotaRecord) error
}

// Tracker counts successful sends against the configured limits.
// Counters survive restarts through the persister and reset
// independently when the local calendar day or clock hour changes.
type Tracker struct {
	mu    sync.Mutex
	lim   Limits
	store persister
	now   func() time.Time
	log   logx.Logger

	sentToday    int
	sentThisHour int
	totalSent    int
	date         string // local YYYY-MM-DD the day counter belongs to
	hour         int    // local 0..23 the hour counter belongs to
}

// Snapshot is a point-in-time copy of the tracker's counters.
type Snapshot struct {
	SentToday    int
	SentThisHour int
	TotalSent    int
	DailyLimit   int
	HourlyLimit  int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New builds a tracker and rehydrates counters from the store when one
// is given. Persisted counters from a previous day or hour are rolled
// over immediately so a restart never revives an expired window.
func New(ctx context.Context, lim Limits, store persister, log logx.Logger, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		lim:   lim,
		store: store,
		now:   time.Now,
		log:   log.With(logx.String("component", "quota")),
	}
	for _, opt := range opts {
		opt(t)
	}

	now := t.now()
	t.date = dayKey(now)
	t.hour = now.Hour()

	if store != nil {
		rec, ok, err := store.LoadQuota(ctx)
		if err != nil {
			return nil, fmt.Errorf("load quota: %w", err)
		}
		if ok {
			t.totalSent = rec.TotalSent
			if rec.Date == t.date {
				t.sentToday = rec.SentToday
				if rec.Hour == t.hour {
					t.sentThisHour = rec.SentThisHour
				}
			}
			t.log.Debug("quota rehydrated",
				logx.Int("sent_today", t.sentToday),
				logx.Int("sent_this_hour", t.sentThisHour),
				logx.Int("total_sent", t.totalSent))
		}
	}
	return t, nil
}

// SetLimits swaps the ceilings. Counters are untouched, so lowering a
// limit below the current count blocks further sends until rollover.
func (t *Tracker) SetLimits(lim Limits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lim = lim
}

// rollover resets whichever counters belong to an expired window.
// Callers hold t.mu.
func (t *Tracker) rollover(now time.Time) {
	if d := dayKey(now); d != t.date {
		t.log.Info("daily quota window rolled over", logx.String("date", d))
		t.date = d
		t.sentToday = 0
	}
	if h := now.Hour(); h != t.hour {
		t.hour = h
		t.sentThisHour = 0
	}
}

// CanSend reports whether another send fits under the limits, applying
// any pending rollover first. When blocked it names the exhausted
// window.
func (t *Tracker) CanSend() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(t.now())

	if t.lim.Daily > 0 && t.sentToday >= t.lim.Daily {
		return false, fmt.Sprintf("daily limit reached (%d/%d)", t.sentToday, t.lim.Daily)
	}
	if t.lim.Hourly > 0 && t.sentThisHour >= t.lim.Hourly {
		return false, fmt.Sprintf("hourly limit reached (%d/%d)", t.sentThisHour, t.lim.Hourly)
	}
	return true, ""
}

// RecordSent counts one successful send and flushes the counters to
// the store before returning, so a crash right after a send cannot
// lose the increment.
func (t *Tracker) RecordSent(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.rollover(now)

	t.sentToday++
	t.sentThisHour++
	t.totalSent++

	if t.store == nil {
		return nil
	}
	rec := storage.QuotaRecord{
		SentToday:    t.sentToday,
		SentThisHour: t.sentThisHour,
		TotalSent:    t.totalSent,
		Date:         t.date,
		Hour:         t.hour,
		UpdatedAt:    now,
	}
	if err := t.store.SaveQuota(ctx, rec); err != nil {
		return fmt.Errorf("persist quota: %w", err)
	}
	return nil
}

// Snapshot returns the counters after applying any pending rollover.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(t.now())
	return Snapshot{
		SentToday:    t.sentToday,
		SentThisHour: t.sentThisHour,
		TotalSent:    t.totalSent,
		DailyLimit:   t.lim.Daily,
		HourlyLimit:  t.lim.Hourly,
	}
}

func dayKey(now time.Time) string {
	return now.Format("2006-01-02")
}
