package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

// fileStore is a dependency-light persistence backend.
//
// Files:
//   - <prefix>.progress.json (atomic snapshot, one record)
//   - <prefix>.quota.json    (atomic snapshot, one record)
//   - <prefix>.results.jsonl (append-only JSON Lines)
//
// Snapshots are written to a temp file and renamed into place, so a reader
// never observes a partial record.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	progressPath string
	quotaPath    string
	resultsFile  *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	rf, err := os.OpenFile(prefix+".results.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		progressPath: prefix + ".progress.json",
		quotaPath:    prefix + ".quota.json",
		resultsFile:  rf,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resultsFile != nil {
		err := s.resultsFile.Close()
		s.resultsFile = nil
		return err
	}
	return nil
}

func (s *fileStore) LoadProgress(ctx context.Context, campaignKey string) (ProgressRecord, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec ProgressRecord
	ok, err := readSnapshot(s.progressPath, &rec)
	if err != nil || !ok {
		return ProgressRecord{}, false, err
	}
	if rec.CampaignKey != campaignKey {
		// Stale state from a different job source. Never reuse it.
		s.log.Debug("stored progress belongs to a different campaign",
			logx.String("stored", rec.CampaignKey),
			logx.String("requested", campaignKey),
		)
		return ProgressRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *fileStore) SaveProgress(ctx context.Context, rec ProgressRecord) error {
	_ = ctx
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeSnapshot(s.progressPath, rec)
}

func (s *fileStore) ClearProgress(ctx context.Context, campaignKey string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec ProgressRecord
	ok, err := readSnapshot(s.progressPath, &rec)
	if err != nil || !ok {
		return err
	}
	if campaignKey != "" && rec.CampaignKey != campaignKey {
		return nil
	}
	if err := os.Remove(s.progressPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *fileStore) LoadQuota(ctx context.Context) (QuotaRecord, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec QuotaRecord
	ok, err := readSnapshot(s.quotaPath, &rec)
	if err != nil || !ok {
		return QuotaRecord{}, false, err
	}
	return rec, true, nil
}

func (s *fileStore) SaveQuota(ctx context.Context, rec QuotaRecord) error {
	_ = ctx
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeSnapshot(s.quotaPath, rec)
}

func (s *fileStore) AppendResult(ctx context.Context, e ResultEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resultsFile == nil {
		return errors.New("results log closed")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return json.NewEncoder(s.resultsFile).Encode(e)
}

// readSnapshot reads a JSON snapshot. ok=false when the file does not exist.
func readSnapshot(path string, out any) (bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

// writeSnapshot writes v atomically (temp file + rename).
func writeSnapshot(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
