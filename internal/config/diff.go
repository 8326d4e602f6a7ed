package config

import (
	"reflect"
	"sort"
	"strings"

	logx "autodesk/pkg/logx"
)

// SummarizeChange returns (1) a compact list of changed sections and
// (2) safe structured fields for logging (never includes secrets like tokens).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	fields := make([]logx.Field, 0, 16)

	if oldCfg.IsEnabled() != newCfg.IsEnabled() {
		changed = append(changed, "enabled")
		fields = append(fields, logx.Bool("enabled", newCfg.IsEnabled()))
	}

	// Trigger policy.
	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) ||
		!reflect.DeepEqual(oldCfg.EndThresholdSeconds, newCfg.EndThresholdSeconds) ||
		!reflect.DeepEqual(oldCfg.TriggerOffsetSeconds, newCfg.TriggerOffsetSeconds) ||
		!reflect.DeepEqual(oldCfg.MaxMeetingStandingTime, newCfg.MaxMeetingStandingTime) ||
		!reflect.DeepEqual(oldCfg.IgnoreTimes, newCfg.IgnoreTimes) {
		changed = append(changed, "policy")
		fields = append(fields,
			logx.String("policy.timezone", strings.TrimSpace(newCfg.Timezone)),
			logx.Int("policy.ignore_times", len(newCfg.IgnoreTimes)),
		)
	}

	if oldCfg.CronDelimiter != newCfg.CronDelimiter ||
		oldCfg.TriggerScript != newCfg.TriggerScript ||
		oldCfg.CronBackupPath != newCfg.CronBackupPath ||
		!reflect.DeepEqual(oldCfg.Cron, newCfg.Cron) {
		changed = append(changed, "cron")
		fields = append(fields,
			logx.String("cron.store", newCfg.Cron.Store),
			logx.Bool("cron.delimiter_changed", oldCfg.CronDelimiter != newCfg.CronDelimiter),
		)
	}

	// Calendar (never log token file contents; the path is fine).
	if oldCfg.CalendarID != newCfg.CalendarID || !reflect.DeepEqual(oldCfg.Calendar, newCfg.Calendar) {
		changed = append(changed, "calendar")
		fields = append(fields, logx.String("calendar.source", newCfg.Calendar.Source))
	}

	if !reflect.DeepEqual(oldCfg.Serve, newCfg.Serve) {
		changed = append(changed, "serve")
		fields = append(fields, logx.String("serve.schedule", newCfg.Serve.Schedule))
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage: nil means disabled.
	var oDriver, nDriver string
	var oPath, nPath string
	if oldCfg.Storage != nil {
		oDriver, oPath = strings.TrimSpace(oldCfg.Storage.Driver), strings.TrimSpace(oldCfg.Storage.Path)
	}
	if newCfg.Storage != nil {
		nDriver, nPath = strings.TrimSpace(newCfg.Storage.Driver), strings.TrimSpace(newCfg.Storage.Path)
	}
	if oDriver != nDriver || oPath != nPath {
		changed = append(changed, "storage")
		fields = append(fields, logx.String("storage.driver", nDriver))
	}

	// Notify (never log token).
	ot, nt := oldCfg.Notify.Telegram, newCfg.Notify.Telegram
	if ot.Enabled != nt.Enabled || ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID ||
		ot.OnSuccess != nt.OnSuccess || ot.RatePerSec != nt.RatePerSec || ot.Token != nt.Token {
		changed = append(changed, "notify")
		fields = append(fields,
			logx.Bool("notify.telegram.enabled", nt.Enabled),
			logx.Bool("notify.telegram.token_set", strings.TrimSpace(nt.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, fields
}
