package history

import (
	"context"
	"errors"
	"strings"

	logx "rhythm/pkg/logx"
)

// Store is the journal API used by the jobs service.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	// RecentRuns returns up to limit records, newest first.
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if history is disabled.
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
		return nil, errors.New("unknown history driver: " + driver)
	}
}
