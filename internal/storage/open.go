package storage

import (
	"context"
	"fmt"
	"strings"

	logx "waketimer/pkg/logx"
)

// Store is the journal API used by the app.
type Store interface {
	AppendRound(ctx context.Context, r RoundRecord) error
	AppendPower(ctx context.Context, p PowerRecord) error
	// Rounds returns up to limit rounds, newest first. An empty timer
	// matches every timer; limit <= 0 means no limit.
	Rounds(ctx context.Context, timer string, limit int) ([]RoundRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns ErrDisabled if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Retain <= 0 {
		cfg.Retain = DefaultRetain
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
