package config

// Config is the on-disk configuration.
//
// The top-level trigger keys are required and have no defaults: pointer and
// nil-slice fields distinguish "missing" from an explicit zero. The nested
// sections (calendar, cron, serve, logging, storage, notify) are optional.
type Config struct {
	// Enabled is a pointer so we can distinguish "omitted" (enabled) from an
	// explicit false, which turns every sync into a no-op.
	Enabled *bool `json:"enabled,omitempty"`

	Timezone   string `json:"timezone"`
	CalendarID string `json:"calendar_id"`

	EndThresholdSeconds    *int     `json:"end_threshold_seconds"`
	TriggerOffsetSeconds   *int     `json:"trigger_offset_seconds"`
	MaxMeetingStandingTime *int     `json:"max_meeting_standing_time"`
	IgnoreTimes            []string `json:"ignore_times"`

	CronDelimiter  string `json:"cron_delimiter"`
	TriggerScript  string `json:"trigger_script"`
	CronBackupPath string `json:"cron_backup_path"`

	Calendar CalendarConfig `json:"calendar,omitempty"`
	Cron     CronConfig     `json:"cron,omitempty"`
	Serve    ServeConfig    `json:"serve,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Notify   NotifyConfig   `json:"notify,omitempty"`
}

// IsEnabled reports whether syncs should run.
func (c *Config) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// CalendarConfig selects and configures the event source.
//
// Example:
//
//	"calendar": { "source": "google", "token_file": "~/.config/autodesk/token" }
type CalendarConfig struct {
	// Source is "google" (default) or "file".
	Source     string `json:"source,omitempty"`
	EventsFile string `json:"events_file,omitempty"`
	TokenFile  string `json:"token_file,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	// Timeout is a Go duration string (e.g. "15s").
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// CronConfig selects the schedule store.
type CronConfig struct {
	// Store is "crontab" (default: the user's crontab via crontab(1)) or "file".
	Store      string `json:"store,omitempty"`
	Path       string `json:"path,omitempty"`
	CrontabBin string `json:"crontab_bin,omitempty"`
	User       string `json:"user,omitempty"`
}

// ServeConfig controls the long-running mode.
//
// Defaults (when fields are omitted):
//   - schedule: "5 0 * * *" (shortly after midnight, in timezone)
//   - watch_config: true
//   - resync_on_start: true
//   - min_resync_interval: "30s"
type ServeConfig struct {
	Schedule          string `json:"schedule,omitempty"`
	WatchConfig       *bool  `json:"watch_config,omitempty"`
	ResyncOnStart     *bool  `json:"resync_on_start,omitempty"`
	MinResyncInterval string `json:"min_resync_interval,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the run-history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "~/.local/state/autodesk/history.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type NotifyConfig struct {
	Telegram TelegramNotify `json:"telegram,omitempty"`
}

// TelegramNotify sends a message when a sync fails (and optionally on success).
type TelegramNotify struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	OnSuccess  bool   `json:"on_success,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}
