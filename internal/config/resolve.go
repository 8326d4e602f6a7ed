package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"autodesk/internal/apperr"
	"autodesk/internal/calendar"
	"autodesk/internal/trigger"
	logx "autodesk/pkg/logx"
)

const (
	DefaultServeSchedule     = "5 0 * * *"
	defaultMinResyncInterval = 30 * time.Second
)

// Settings is the validated, typed form of Config. It is built once per
// (re)load and passed by value.
type Settings struct {
	Enabled       bool
	Location      *time.Location
	CalendarID    string
	Policy        trigger.Policy
	Delimiter     string
	TriggerScript string
	BackupPath    string

	Calendar CalendarSettings
	Cron     CronSettings
	Serve    ServeSettings
	Logging  logx.Config
	Storage  StorageSettings
	Telegram TelegramNotify
}

type CalendarSettings struct {
	Source     string // "google" | "file"
	EventsFile string
	Google     calendar.GoogleConfig
}

type CronSettings struct {
	Store      string // "crontab" | "file"
	Path       string
	CrontabBin string
	User       string
}

type ServeSettings struct {
	Schedule          string
	WatchConfig       bool
	ResyncOnStart     bool
	MinResyncInterval time.Duration
}

type StorageSettings struct {
	Driver      string // "" (disabled) | "file" | "sqlite"
	Path        string
	BusyTimeout time.Duration
}

// Resolve validates cfg and converts it into Settings.
//
// Every problem is reported at once in a single config error.
func Resolve(cfg *Config) (Settings, error) {
	if cfg == nil {
		return Settings{}, apperr.Config("validate config", errors.New("config is nil"))
	}
	var (
		s    Settings
		errs []string
	)
	fail := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	s.Enabled = cfg.IsEnabled()

	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		fail("timezone is required")
	} else if loc, err := time.LoadLocation(tz); err != nil {
		fail("timezone: unknown zone %q", tz)
	} else {
		s.Location = loc
	}

	s.CalendarID = strings.TrimSpace(cfg.CalendarID)
	if s.CalendarID == "" {
		fail("calendar_id is required")
	}

	seconds := func(name string, v *int) time.Duration {
		d, err := secondsField(name, v)
		if err != nil {
			fail("%s", err)
		}
		return d
	}
	s.Policy = trigger.Policy{
		EndThreshold:    seconds("end_threshold_seconds", cfg.EndThresholdSeconds),
		TriggerOffset:   seconds("trigger_offset_seconds", cfg.TriggerOffsetSeconds),
		MaxStandingTime: seconds("max_meeting_standing_time", cfg.MaxMeetingStandingTime),
		Location:        s.Location,
	}
	if cfg.IgnoreTimes == nil {
		fail("ignore_times is required (use [] for none)")
	}
	for i, raw := range cfg.IgnoreTimes {
		tod, err := trigger.ParseTimeOfDay(raw)
		if err != nil {
			fail("ignore_times[%d]: %v", i, err)
			continue
		}
		s.Policy.IgnoreTimes = append(s.Policy.IgnoreTimes, tod)
	}

	s.Delimiter = strings.TrimRight(cfg.CronDelimiter, "\r\n")
	switch {
	case strings.TrimSpace(s.Delimiter) == "":
		fail("cron_delimiter is required")
	case strings.ContainsAny(s.Delimiter, "\r\n"):
		fail("cron_delimiter must be a single line")
	}

	// The command is written into the schedule byte for byte.
	s.TriggerScript = cfg.TriggerScript
	switch {
	case strings.TrimSpace(s.TriggerScript) == "":
		fail("trigger_script is required")
	case strings.ContainsAny(s.TriggerScript, "\r\n"):
		fail("trigger_script must be a single line")
	case strings.TrimSpace(s.TriggerScript) != s.TriggerScript:
		fail("trigger_script must not start or end with whitespace")
	}

	s.BackupPath = ExpandTilde(strings.TrimSpace(cfg.CronBackupPath))
	if s.BackupPath == "" {
		fail("cron_backup_path is required")
	}

	resolveCalendar(cfg.Calendar, &s, fail)
	resolveCron(cfg.Cron, &s, fail)
	resolveServe(cfg.Serve, &s, fail)
	resolveLogging(cfg.Logging, &s)
	resolveStorage(cfg.Storage, &s, fail)
	resolveNotify(cfg.Notify, &s, fail)

	if len(errs) > 0 {
		return Settings{}, apperr.Config("validate config", errors.New(strings.Join(errs, "; ")))
	}
	return s, nil
}

func resolveCalendar(c CalendarConfig, s *Settings, fail func(string, ...any)) {
	src := strings.ToLower(strings.TrimSpace(c.Source))
	if src == "" {
		src = "google"
	}
	s.Calendar.Source = src

	timeout, err := ParseDurationField("calendar.timeout", c.Timeout)
	if err != nil {
		fail("%v", err)
	}
	if c.RatePerSec < 0 {
		fail("calendar.rate_per_sec must be >= 0")
	}

	switch src {
	case "google":
		s.Calendar.Google = calendar.GoogleConfig{
			BaseURL:    strings.TrimSpace(c.BaseURL),
			TokenFile:  ExpandTilde(strings.TrimSpace(c.TokenFile)),
			Timeout:    timeout,
			RatePerSec: c.RatePerSec,
		}
		if s.Calendar.Google.TokenFile == "" {
			fail("calendar.token_file is required for the google source")
		}
	case "file":
		s.Calendar.EventsFile = ExpandTilde(strings.TrimSpace(c.EventsFile))
		if s.Calendar.EventsFile == "" {
			fail("calendar.events_file is required for the file source")
		}
	default:
		fail("calendar.source: unknown source %q (use google or file)", c.Source)
	}
}

func resolveCron(c CronConfig, s *Settings, fail func(string, ...any)) {
	store := strings.ToLower(strings.TrimSpace(c.Store))
	if store == "" {
		store = "crontab"
	}
	s.Cron = CronSettings{
		Store:      store,
		Path:       ExpandTilde(strings.TrimSpace(c.Path)),
		CrontabBin: strings.TrimSpace(c.CrontabBin),
		User:       strings.TrimSpace(c.User),
	}
	if s.Cron.CrontabBin == "" {
		s.Cron.CrontabBin = "crontab"
	}
	switch store {
	case "crontab":
	case "file":
		if s.Cron.Path == "" {
			fail("cron.path is required for the file store")
		}
	default:
		fail("cron.store: unknown store %q (use crontab or file)", c.Store)
	}
}

func resolveServe(c ServeConfig, s *Settings, fail func(string, ...any)) {
	s.Serve = ServeSettings{
		Schedule:      strings.TrimSpace(c.Schedule),
		WatchConfig:   c.WatchConfig == nil || *c.WatchConfig,
		ResyncOnStart: c.ResyncOnStart == nil || *c.ResyncOnStart,
	}
	if s.Serve.Schedule == "" {
		s.Serve.Schedule = DefaultServeSchedule
	}
	if _, err := cron.ParseStandard(s.Serve.Schedule); err != nil {
		fail("serve.schedule: %v", err)
	}
	d, err := ParseDurationOrDefault("serve.min_resync_interval", c.MinResyncInterval, defaultMinResyncInterval)
	if err != nil {
		fail("%v", err)
	}
	s.Serve.MinResyncInterval = d
}

func resolveLogging(c LoggingConfig, s *Settings) {
	s.Logging = logx.Config{
		Level:   strings.TrimSpace(c.Level),
		Console: c.Console == nil || *c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    ExpandTilde(strings.TrimSpace(c.File.Path)),
		},
	}
}

func resolveStorage(c *StorageConfig, s *Settings, fail func(string, ...any)) {
	// Nil means disabled.
	if c == nil {
		return
	}
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	if driver == "none" {
		driver = ""
	}
	busy, err := ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		fail("%v", err)
	}
	s.Storage = StorageSettings{Driver: driver, Path: ExpandTilde(strings.TrimSpace(c.Path)), BusyTimeout: busy}
	switch driver {
	case "":
	case "file", "sqlite", "sqlite3":
		if s.Storage.Path == "" {
			fail("storage.path is required for the %s driver", driver)
		}
	default:
		fail("storage.driver: unknown driver %q (use file or sqlite)", c.Driver)
	}
}

func resolveNotify(c NotifyConfig, s *Settings, fail func(string, ...any)) {
	s.Telegram = c.Telegram
	s.Telegram.Token = strings.TrimSpace(s.Telegram.Token)
	if !s.Telegram.Enabled {
		return
	}
	if s.Telegram.Token == "" {
		fail("notify.telegram.token is required when enabled")
	}
	if s.Telegram.ChatID == 0 {
		fail("notify.telegram.chat_id is required when enabled")
	}
	if s.Telegram.RatePerSec < 0 {
		fail("notify.telegram.rate_per_sec must be >= 0")
	}
}

// ExpandTilde expands a leading "~/" to the user's home directory.
func ExpandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// DefaultPath returns $XDG_CONFIG_HOME/autodesk/config.yaml, falling back to
// ~/.config/autodesk/config.yaml.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "autodesk", "config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "autodesk", "config.yaml")
	}
	return "config.yaml"
}
