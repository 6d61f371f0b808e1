// Package report turns run events into operator-facing CSV and JSON
// artifacts.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/campaign"
	"github.com/Candra0x6/WA-Website-Offer-Automation/internal/eventbus"
	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

// Files names the artifacts one Flush produced.
type Files struct {
	Results   string
	Summary   string
	Analytics string
}

type row struct {
	at  time.Time
	res campaign.JobResult
}

// Reporter collects run events and writes the report files at the end
// of a run. It is best-effort by contract: it only ever observes the
// run, it cannot fail it.
type Reporter struct {
	dir string
	log logx.Logger
	now func() time.Time

	mu       sync.Mutex
	rows     []row
	started  *campaign.RunStarted
	finished *campaign.RunFinished
}

func New(dir string, log logx.Logger) *Reporter {
	return &Reporter{
		dir: dir,
		log: log.With(logx.String("component", "report")),
		now: time.Now,
	}
}

// Consume drains events from ch until it closes. The returned channel
// closes when draining is done, so callers can unsubscribe and wait.
func (r *Reporter) Consume(ch <-chan eventbus.Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			r.Record(e)
		}
	}()
	return done
}

// Record books one event. Unknown event types are ignored.
func (r *Reporter) Record(e eventbus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch data := e.Data.(type) {
	case campaign.RunStarted:
		r.started = &data
	case campaign.RunFinished:
		r.finished = &data
	case campaign.JobResult:
		r.rows = append(r.rows, row{at: e.Time, res: data})
	}
}

// Flush writes the results CSV, the summary CSV and the analytics
// JSON into the reporter's directory, timestamped per run.
func (r *Reporter) Flush() (Files, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create report dir: %w", err)
	}
	stamp := r.now().Format("20060102_150405")
	files := Files{
		Results:   filepath.Join(r.dir, "campaign_results_"+stamp+".csv"),
		Summary:   filepath.Join(r.dir, "campaign_summary_"+stamp+".csv"),
		Analytics: filepath.Join(r.dir, "analytics_"+stamp+".json"),
	}

	if err := r.writeResults(files.Results); err != nil {
		return Files{}, err
	}
	if err := r.writeSummary(files.Summary); err != nil {
		return Files{}, err
	}
	if err := r.writeAnalytics(files.Analytics); err != nil {
		return Files{}, err
	}
	r.log.Info("reports written",
		logx.String("dir", r.dir),
		logx.Int("rows", len(r.rows)))
	return files, nil
}

func (r *Reporter) writeResults(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"timestamp", "index", "business", "phone", "message_type", "status", "attempts", "latency_ms", "error", "preview"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, rw := range r.rows {
		rec := rw.res
		err := w.Write([]string{
			rw.at.Format(time.RFC3339),
			strconv.Itoa(rec.Index),
			rec.Business,
			rec.Phone,
			rec.MessageType,
			rec.Status,
			strconv.Itoa(rec.Attempts),
			strconv.FormatInt(rec.Latency.Milliseconds(), 10),
			rec.Error,
			rec.Preview,
		})
		if err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (r *Reporter) writeSummary(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary csv: %w", err)
	}
	defer f.Close()

	sent, failed, skipped := r.tally()
	var (
		runID, status string
		total         int
	)
	if r.started != nil {
		runID = r.started.RunID
		total = r.started.Total
	}
	if r.finished != nil {
		status = r.finished.Status.String()
	}

	w := csv.NewWriter(f)
	records := [][]string{
		{"run_id", "status", "total", "sent", "failed", "skipped", "processed"},
		{runID, status,
			strconv.Itoa(total),
			strconv.Itoa(sent),
			strconv.Itoa(failed),
			strconv.Itoa(skipped),
			strconv.Itoa(len(r.rows))},
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	return w.Error()
}

type analytics struct {
	RunID           string         `json:"run_id"`
	Status          string         `json:"status"`
	GeneratedAt     time.Time      `json:"generated_at"`
	Total           int            `json:"total"`
	Sent            int            `json:"sent"`
	Failed          int            `json:"failed"`
	Skipped         int            `json:"skipped"`
	MessageTypes    map[string]int `json:"message_types"`
	ErrorCategories map[string]int `json:"error_categories"`
	SentByHour      map[string]int `json:"sent_by_hour"`
	LatencyMS       latencyStats   `json:"latency_ms"`
}

type latencyStats struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
	Avg int64 `json:"avg"`
}

func (r *Reporter) writeAnalytics(path string) error {
	sent, failed, skipped := r.tally()
	a := analytics{
		GeneratedAt:     r.now(),
		Sent:            sent,
		Failed:          failed,
		Skipped:         skipped,
		MessageTypes:    map[string]int{},
		ErrorCategories: map[string]int{},
		SentByHour:      map[string]int{},
	}
	if r.started != nil {
		a.RunID = r.started.RunID
		a.Total = r.started.Total
	}
	if r.finished != nil {
		a.Status = r.finished.Status.String()
	}

	var latSum int64
	var latN int64
	for _, rw := range r.rows {
		rec := rw.res
		if rec.MessageType != "" {
			a.MessageTypes[rec.MessageType]++
		}
		if rec.Error != "" {
			a.ErrorCategories[categorize(rec.Error)]++
		}
		if rec.Status == "sent" {
			a.SentByHour[rw.at.Format("15:00")]++
			ms := rec.Latency.Milliseconds()
			if latN == 0 || ms < a.LatencyMS.Min {
				a.LatencyMS.Min = ms
			}
			if ms > a.LatencyMS.Max {
				a.LatencyMS.Max = ms
			}
			latSum += ms
			latN++
		}
	}
	if latN > 0 {
		a.LatencyMS.Avg = latSum / latN
	}

	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write analytics: %w", err)
	}
	return nil
}

func (r *Reporter) tally() (sent, failed, skipped int) {
	for _, rw := range r.rows {
		switch rw.res.Status {
		case "sent":
			sent++
		case "failed":
			failed++
		default:
			skipped++
		}
	}
	return
}

// categorize buckets an error string for the analytics breakdown.
func categorize(msg string) string {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "timeout") || strings.Contains(m, "timed out") || strings.Contains(m, "deadline"):
		return "timeout"
	case strings.Contains(m, "recipient") || strings.Contains(m, "invalid phone") || strings.Contains(m, "phone"):
		return "invalid_recipient"
	case strings.Contains(m, "missing") || strings.Contains(m, "name"):
		return "invalid_row"
	case strings.Contains(m, "session"):
		return "session"
	case strings.Contains(m, "navigate") || strings.Contains(m, "composer") || strings.Contains(m, "element"):
		return "page_load"
	default:
		return "other"
	}
}
