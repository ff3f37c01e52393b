package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl, replayed on open)
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Post is one recorded post reference.
type Post struct {
	Username string    `json:"username"`
	PostID   string    `json:"post"`
	At       time.Time `json:"at"`
}

// RunEntry records one action execution or a task's final outcome.
type RunEntry struct {
	ID     string    `json:"id"`
	Task   string    `json:"task"`
	Queue  string    `json:"queue"`
	Action string    `json:"action"`
	Run    int       `json:"run"`
	At     time.Time `json:"at"`
	TookMS int64     `json:"took_ms"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
}

// DayCollection names the collection posts recorded at t belong to.
func DayCollection(t time.Time) string {
	return t.Format("2006-01-02") + "-posts"
}
