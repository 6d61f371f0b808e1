package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/Candra0x6/WA-Website-Offer-Automation/pkg/logx"
)

// Store is the persistence API used by the campaign core.
//
// Save methods must be atomic: a concurrent or post-crash reader sees either
// the previous record or the new one, never a torn write.
type Store interface {
	LoadProgress(ctx context.Context, campaignKey string) (ProgressRecord, bool, error)
	SaveProgress(ctx context.Context, rec ProgressRecord) error
	ClearProgress(ctx context.Context, campaignKey string) error

	LoadQuota(ctx context.Context) (QuotaRecord, bool, error)
	SaveQuota(ctx context.Context, rec QuotaRecord) error

	AppendResult(ctx context.Context, e ResultEntry) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
