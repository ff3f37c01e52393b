package storage

import (
	"context"
	"errors"
	"strings"

	logx "swarmbot/pkg/logx"
)

// Store is the persistence API used by actions and the run recorder.
type Store interface {
	// InsertPosts adds posts to a collection, skipping ones already present.
	// It returns how many were new.
	InsertPosts(ctx context.Context, collection string, posts []Post) (int, error)
	ListPosts(ctx context.Context, collection string) ([]Post, error)
	AppendRun(ctx context.Context, e RunEntry) error
	// ListRuns returns the newest entries first. An empty task matches all;
	// limit <= 0 means no limit.
	ListRuns(ctx context.Context, task string, limit int) ([]RunEntry, error)
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
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
