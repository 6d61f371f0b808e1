package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadProgress(ctx context.Context, campaignKey string) (ProgressRecord, bool, error) {
	var (
		rec                  ProgressRecord
		startedAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT campaign_key, run_id, last_processed_index, sent, failed, skipped, started_at, updated_at
		 FROM progress WHERE campaign_key = ?`, campaignKey,
	).Scan(&rec.CampaignKey, &rec.RunID, &rec.LastProcessedIndex, &rec.Sent, &rec.Failed, &rec.Skipped, &startedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProgressRecord{}, false, nil
	}
	if err != nil {
		return ProgressRecord{}, false, err
	}
	rec.StartedAt = parseTime(startedAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, true, nil
}

func (s *sqliteStore) SaveProgress(ctx context.Context, rec ProgressRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress(campaign_key, run_id, last_processed_index, sent, failed, skipped, started_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(campaign_key) DO UPDATE SET
		   run_id=excluded.run_id,
		   last_processed_index=excluded.last_processed_index,
		   sent=excluded.sent,
		   failed=excluded.failed,
		   skipped=excluded.skipped,
		   started_at=excluded.started_at,
		   updated_at=excluded.updated_at`,
		rec.CampaignKey, rec.RunID, rec.LastProcessedIndex, rec.Sent, rec.Failed, rec.Skipped,
		formatTime(rec.StartedAt), formatTime(rec.UpdatedAt),
	)
	return err
}

func (s *sqliteStore) ClearProgress(ctx context.Context, campaignKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM progress WHERE campaign_key = ?`, campaignKey)
	return err
}

func (s *sqliteStore) LoadQuota(ctx context.Context) (QuotaRecord, bool, error) {
	var (
		rec       QuotaRecord
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT sent_today, sent_this_hour, total_sent, date, hour, updated_at FROM quota WHERE id = 1`,
	).Scan(&rec.SentToday, &rec.SentThisHour, &rec.TotalSent, &rec.Date, &rec.Hour, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return QuotaRecord{}, false, nil
	}
	if err != nil {
		return QuotaRecord{}, false, err
	}
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, true, nil
}

func (s *sqliteStore) SaveQuota(ctx context.Context, rec QuotaRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quota(id, sent_today, sent_this_hour, total_sent, date, hour, updated_at)
		 VALUES(1,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   sent_today=excluded.sent_today,
		   sent_this_hour=excluded.sent_this_hour,
		   total_sent=excluded.total_sent,
		   date=excluded.date,
		   hour=excluded.hour,
		   updated_at=excluded.updated_at`,
		rec.SentToday, rec.SentThisHour, rec.TotalSent, rec.Date, rec.Hour, formatTime(rec.UpdatedAt),
	)
	return err
}

func (s *sqliteStore) AppendResult(ctx context.Context, e ResultEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results(at, run_id, idx, business, phone, message_type, status, err, attempts, took_ms, preview)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		formatTime(e.At), e.RunID, e.Index, e.Business, e.Phone, nullStr(e.MessageType),
		e.Status, nullStr(e.Error), e.Attempts, e.TookMS, nullStr(e.Preview),
	)
	return err
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
