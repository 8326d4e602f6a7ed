package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Keep bounds how many runs are retained; 0 means DefaultKeep.
	Keep int
}

const DefaultKeep = 500

// Run statuses.
const (
	StatusOK        = "ok"
	StatusUnchanged = "unchanged"
	StatusDisabled  = "disabled"
	StatusFailed    = "failed"
)

// Run records one sync attempt.
// Keep it compact and schema-stable.
type Run struct {
	At         time.Time `json:"at"`
	Day        string    `json:"day"`
	Meetings   int       `json:"meetings"`
	Triggers   int       `json:"triggers"`
	Status     string    `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	BackupPath string    `json:"backup_path,omitempty"`
	TookMS     int64     `json:"took_ms"`
}

func keepOrDefault(n int) int {
	if n <= 0 {
		return DefaultKeep
	}
	return n
}
