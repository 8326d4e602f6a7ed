package storage

import (
	"context"
	"errors"
	"strings"

	logx "autodesk/pkg/logx"
)

// Store is the run-history API used by the sync pipeline.
type Store interface {
	RecordRun(ctx context.Context, r Run) error
	// RecentRuns returns up to n runs, newest first.
	RecentRuns(ctx context.Context, n int) ([]Run, error)
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
