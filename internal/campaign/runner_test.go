package campaign

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/compose"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/contacts"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/eventbus"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/pace"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/retry"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/sender"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/storage"
	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

type fakeSource struct {
	jobs []contacts.Job
	fp   string
}

func (s *fakeSource) Len() int              { return len(s.jobs) }
func (s *fakeSource) At(i int) contacts.Job { return s.jobs[i] }
func (s *fakeSource) Fingerprint() string {
	if s.fp == "" {
		return "test-campaign"
	}
	return s.fp
}

func makeSource(n int) *fakeSource {
	s := &fakeSource{}
	for i := 0; i < n; i++ {
		s.jobs = append(s.jobs, contacts.Job{
			Index: i,
			Business: contacts.Business{
				Name:  fmt.Sprintf("Business %d", i),
				Phone: fmt.Sprintf("+1415555%04d", i),
			},
		})
	}
	return s
}

// fakeSender consumes one scripted error per Send call; nil means
// success. An exhausted script keeps succeeding.
type fakeSender struct {
	script []error
	calls  []string
}

func (f *fakeSender) Start(context.Context) error { return nil }
func (f *fakeSender) Close() error                { return nil }

func (f *fakeSender) Send(ctx context.Context, msg sender.Message) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.calls = append(f.calls, msg.Phone)
	if len(f.script) == 0 {
		return 0, nil
	}
	err := f.script[0]
	f.script = f.script[1:]
	return 0, err
}

type fakeQuota struct {
	limit int
	sent  int
}

func (q *fakeQuota) CanSend() (bool, string) {
	if q.limit > 0 && q.sent >= q.limit {
		return false, "daily limit reached"
	}
	return true, ""
}

func (q *fakeQuota) RecordSent(context.Context) error {
	q.sent++
	return nil
}

type memStore struct {
	progress map[string]storage.ProgressRecord
	quota    *storage.QuotaRecord
	results  []storage.ResultEntry
	saves    int
}

func newMemStore() *memStore {
	return &memStore{progress: map[string]storage.ProgressRecord{}}
}

func (m *memStore) LoadProgress(_ context.Context, key string) (storage.ProgressRecord, bool, error) {
	rec, ok := m.progress[key]
	return rec, ok, nil
}

func (m *memStore) SaveProgress(_ context.Context, rec storage.ProgressRecord) error {
	m.progress[rec.CampaignKey] = rec
	m.saves++
	return nil
}

func (m *memStore) ClearProgress(_ context.Context, key string) error {
	delete(m.progress, key)
	return nil
}

func (m *memStore) LoadQuota(context.Context) (storage.QuotaRecord, bool, error) {
	if m.quota == nil {
		return storage.QuotaRecord{}, false, nil
	}
	return *m.quota, true, nil
}

func (m *memStore) SaveQuota(_ context.Context, rec storage.QuotaRecord) error {
	m.quota = &rec
	return nil
}

func (m *memStore) AppendResult(_ context.Context, e storage.ResultEntry) error {
	m.results = append(m.results, e)
	return nil
}

func (m *memStore) Close() error { return nil }

func instantPacer(t *testing.T, minBatch, maxBatch int, batchDelay time.Duration) *pace.Scheduler {
	t.Helper()
	s, err := pace.New(pace.Config{
		MinBatchSize: minBatch, MaxBatchSize: maxBatch,
		MinBatchDelay: batchDelay, MaxBatchDelay: batchDelay,
	}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("pace.New: %v", err)
	}
	return s
}

type runnerEnv struct {
	source *fakeSource
	snd    *fakeSender
	quota  *fakeQuota
	store  *memStore
	sleeps []time.Duration
	runner *Runner
}

func newRunnerEnv(t *testing.T, source *fakeSource, snd *fakeSender, q *fakeQuota, opts Options) *runnerEnv {
	t.Helper()
	env := &runnerEnv{source: source, snd: snd, quota: q, store: newMemStore()}
	env.runner = New(source, snd, compose.New(rand.New(rand.NewSource(1))),
		q, instantPacer(t, 1000, 1000, 0), retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Factor: 2},
		env.store, nil, logx.Nop(), opts)
	env.runner.sleep = func(ctx context.Context, d time.Duration) error {
		env.sleeps = append(env.sleeps, d)
		return ctx.Err()
	}
	return env
}

func TestRunCompletes(t *testing.T) {
	env := newRunnerEnv(t, makeSource(3), &fakeSender{}, &fakeQuota{}, Options{DryRun: true})

	sum, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Status != StatusCompleted {
		t.Fatalf("status = %s", sum.Status)
	}
	if sum.Sent != 3 || sum.Failed != 0 || sum.Skipped != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.LastProcessedIndex != 2 {
		t.Fatalf("last index = %d", sum.LastProcessedIndex)
	}
	if len(env.snd.calls) != 3 {
		t.Fatalf("sender calls = %d", len(env.snd.calls))
	}
	// Completed runs clear their progress record.
	if _, ok := env.store.progress["test-campaign"]; ok {
		t.Fatal("progress record survived completion")
	}
	if len(env.store.results) != 3 {
		t.Fatalf("results = %d", len(env.store.results))
	}
}

func TestQuotaPausesBeforeFourthJob(t *testing.T) {
	env := newRunnerEnv(t, makeSource(5), &fakeSender{}, &fakeQuota{limit: 3}, Options{DryRun: true})

	sum, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Status != StatusPausedQuota {
		t.Fatalf("status = %s", sum.Status)
	}
	if sum.Sent != 3 {
		t.Fatalf("sent = %d", sum.Sent)
	}
	if len(env.snd.calls) != 3 {
		t.Fatalf("job 4 was attempted: %d calls", len(env.snd.calls))
	}
	rec, ok := env.store.progress["test-campaign"]
	if !ok {
		t.Fatal("no progress persisted")
	}
	if rec.LastProcessedIndex != 2 {
		t.Fatalf("persisted index = %d, want 2", rec.LastProcessedIndex)
	}
}

func TestResumeSkipsProcessedJobs(t *testing.T) {
	source := makeSource(5)
	env := newRunnerEnv(t, source, &fakeSender{}, &fakeQuota{}, Options{})
	env.store.progress["test-campaign"] = storage.ProgressRecord{
		CampaignKey:        "test-campaign",
		LastProcessedIndex: 2,
		Sent:               3,
	}

	sum, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(env.snd.calls) != 2 {
		t.Fatalf("calls = %v, want jobs 3 and 4 only", env.snd.calls)
	}
	if env.snd.calls[0] != source.jobs[3].Business.Phone {
		t.Fatalf("first resumed call = %s", env.snd.calls[0])
	}
	// Carried-over counters accumulate.
	if sum.Sent != 5 {
		t.Fatalf("sent = %d, want 5", sum.Sent)
	}
	if sum.Status != StatusCompleted {
		t.Fatalf("status = %s", sum.Status)
	}
}

func TestFreshDiscardsProgress(t *testing.T) {
	env := newRunnerEnv(t, makeSource(3), &fakeSender{}, &fakeQuota{}, Options{Fresh: true})
	env.store.progress["test-campaign"] = storage.ProgressRecord{
		CampaignKey:        "test-campaign",
		LastProcessedIndex: 2,
	}

	sum, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(env.snd.calls) != 3 || sum.Sent != 3 {
		t.Fatalf("fresh run processed %d jobs, sent %d", len(env.snd.calls), sum.Sent)
	}
}

func TestForeignProgressIgnored(t *testing.T) {
	env := newRunnerEnv(t, makeSource(3), &fakeSender{}, &fakeQuota{}, Options{})
	env.store.progress["other-campaign"] = storage.ProgressRecord{
		CampaignKey:        "other-campaign",
		LastProcessedIndex: 2,
	}

	if _, err := env.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(env.snd.calls) != 3 {
		t.Fatalf("calls = %d, progress from another source was reused", len(env.snd.calls))
	}
}

func TestTransientRetriesThenFails(t *testing.T) {
	flaky := sender.Transient("send", errors.New("timeout"))
	snd := &fakeSender{script: []error{flaky, flaky, flaky, flaky}}
	env := newRunnerEnv(t, makeSource(2), snd, &fakeQuota{}, Options{})

	sum, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Failed != 1 || sum.Sent != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	// Job 0: initial attempt plus three retries; job 1 succeeds.
	if len(snd.calls) != 5 {
		t.Fatalf("calls = %d", len(snd.calls))
	}
	if env.store.results[0].Status != "failed" || env.store.results[0].Attempts != 4 {
		t.Fatalf("result[0] = %+v", env.store.results[0])
	}
	if sum.Status != StatusCompleted {
		t.Fatalf("status = %s", sum.Status)
	}
}

func TestTransientRecoversWithinRetries(t *testing.T) {
	flaky := sender.Transient("send", errors.New("timeout"))
	snd := &fakeSender{script: []error{flaky, flaky, nil}}
	env := newRunnerEnv(t, makeSource(1), snd, &fakeQuota{}, Options{})

	sum, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Sent != 1 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if env.store.results[0].Attempts != 3 {
		t.Fatalf("attempts = %d", env.store.results[0].Attempts)
	}
	// Backoff slept twice; no inter-message delay after the last job.
	if len(env.sleeps) != 2 {
		t.Fatalf("sleeps = %v", env.sleeps)
	}
	if env.quota.sent != 1 {
		t.Fatalf("quota charged %d times", env.quota.sent)
	}
}

func TestPermanentErrorSkipsWithoutRetry(t *testing.T) {
	snd := &fakeSender{script: []error{sender.Permanent("recipient rejected by channel", nil)}}
	env := newRunnerEnv(t, makeSource(2), snd, &fakeQuota{}, Options{})

	sum, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Skipped != 1 || sum.Sent != 1 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(snd.calls) != 2 {
		t.Fatalf("permanent error was retried: %d calls", len(snd.calls))
	}
}

func TestInvalidRowsSkipSender(t *testing.T) {
	source := makeSource(3)
	source.jobs[1].SkipReason = "missing business name"
	env := newRunnerEnv(t, source, &fakeSender{}, &fakeQuota{}, Options{})

	sum, err := env.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Sent != 2 || sum.Skipped != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(env.snd.calls) != 2 {
		t.Fatalf("sender invoked for invalid row: %v", env.snd.calls)
	}
	if env.store.results[1].Status != "skipped" || env.store.results[1].Error != "missing business name" {
		t.Fatalf("result[1] = %+v", env.store.results[1])
	}
}

func TestSessionLossAborts(t *testing.T) {
	snd := &fakeSender{script: []error{nil, sender.ErrSessionInvalid}}
	env := newRunnerEnv(t, makeSource(3), snd, &fakeQuota{}, Options{})

	sum, err := env.runner.Run(context.Background())
	if !errors.Is(err, sender.ErrSessionInvalid) {
		t.Fatalf("err = %v", err)
	}
	if sum.Status != StatusAborted {
		t.Fatalf("status = %s", sum.Status)
	}
	// The aborted job keeps no terminal outcome: index stays at 0 so a
	// later run re-attempts job 1.
	if sum.LastProcessedIndex != 0 {
		t.Fatalf("last index = %d", sum.LastProcessedIndex)
	}
	rec := env.store.progress["test-campaign"]
	if rec.LastProcessedIndex != 0 || rec.Sent != 1 {
		t.Fatalf("persisted = %+v", rec)
	}
}

func TestCancellationPausesBetweenJobs(t *testing.T) {
	env := newRunnerEnv(t, makeSource(5), &fakeSender{}, &fakeQuota{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	n := 0
	env.runner.sleep = func(sctx context.Context, d time.Duration) error {
		n++
		if n == 2 {
			cancel()
		}
		return sctx.Err()
	}

	sum, err := env.runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Status != StatusPaused {
		t.Fatalf("status = %s", sum.Status)
	}
	if sum.Sent != 2 {
		t.Fatalf("sent = %d", sum.Sent)
	}
	rec := env.store.progress["test-campaign"]
	if rec.LastProcessedIndex != 1 {
		t.Fatalf("persisted index = %d", rec.LastProcessedIndex)
	}
}

// A cancelled run context must not defeat the final snapshot on a
// store that honors context cancellation.
func TestCancellationPersistsWithSQLiteStore(t *testing.T) {
	st, err := storage.Open(storage.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "state.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	source := makeSource(5)
	r := New(source, &fakeSender{}, compose.New(rand.New(rand.NewSource(1))),
		&fakeQuota{}, instantPacer(t, 1000, 1000, 0),
		retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Factor: 2},
		st, nil, logx.Nop(), Options{SaveEvery: 10})

	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	r.sleep = func(sctx context.Context, d time.Duration) error {
		n++
		if n == 2 {
			cancel()
		}
		return sctx.Err()
	}

	sum, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Status != StatusPaused || sum.Sent != 2 {
		t.Fatalf("status = %s, sent = %d", sum.Status, sum.Sent)
	}

	rec, ok, err := st.LoadProgress(context.Background(), source.Fingerprint())
	if err != nil || !ok {
		t.Fatalf("no progress persisted after cancel: ok=%v err=%v", ok, err)
	}
	if rec.LastProcessedIndex != 1 || rec.Sent != 2 {
		t.Fatalf("persisted record = %+v", rec)
	}
}

func TestBatchRestCadence(t *testing.T) {
	env := newRunnerEnv(t, makeSource(4), &fakeSender{}, &fakeQuota{}, Options{})
	env.runner.pacer = instantPacer(t, 2, 2, 5*time.Second)

	var rests []time.Duration
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(32)
	defer unsub()
	env.runner.bus = bus

	if _, err := env.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for {
		select {
		case e := <-ch:
			if e.Type == EventBatchRest {
				rests = append(rests, e.Data.(BatchRest).Duration)
			}
			continue
		default:
		}
		break
	}
	// Batches of exactly 2: one rest, before the third job.
	if len(rests) != 1 || rests[0] != 5*time.Second {
		t.Fatalf("rests = %v", rests)
	}
}

func TestSaveEveryCadence(t *testing.T) {
	env := newRunnerEnv(t, makeSource(7), &fakeSender{}, &fakeQuota{limit: 100}, Options{SaveEvery: 3})

	if _, err := env.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Snapshots after jobs 3 and 6, plus the final forced snapshot.
	if env.store.saves != 3 {
		t.Fatalf("saves = %d, want 3", env.store.saves)
	}
}

func TestCountAttemptsChargesQuotaPerAttempt(t *testing.T) {
	flaky := sender.Transient("send", errors.New("timeout"))
	snd := &fakeSender{script: []error{flaky, nil}}
	env := newRunnerEnv(t, makeSource(1), snd, &fakeQuota{}, Options{CountAttempts: true})

	if _, err := env.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.quota.sent != 2 {
		t.Fatalf("quota charged %d times, want 2", env.quota.sent)
	}
}

func TestEventsPublished(t *testing.T) {
	env := newRunnerEnv(t, makeSource(2), &fakeSender{}, &fakeQuota{}, Options{})
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(32)
	defer unsub()
	env.runner.bus = bus

	if _, err := env.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var types []string
	for {
		select {
		case e := <-ch:
			types = append(types, e.Type)
			continue
		default:
		}
		break
	}
	want := []string{EventRunStarted, EventMessageSent, EventMessageSent, EventRunFinished}
	if len(types) != len(want) {
		t.Fatalf("events = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}
