package app

import (
	"time"

	"autodesk/internal/calendar"
	"autodesk/internal/config"
	"autodesk/internal/crontab"
	"autodesk/internal/notifier"
	logx "autodesk/pkg/logx"
)

// newSource builds the configured calendar source.
func newSource(s config.Settings, log logx.Logger) (calendar.Source, error) {
	switch s.Calendar.Source {
	case "file":
		src, err := calendar.NewFileSource(s.Calendar.EventsFile)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		src, err := calendar.NewGoogleSource(s.Calendar.Google, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

// newCronStore builds the configured schedule store.
func newCronStore(s config.Settings, log logx.Logger) crontab.Store {
	switch s.Cron.Store {
	case "file":
		return crontab.NewFileStore(s.Cron.Path)
	default:
		return crontab.NewCommandStore(s.Cron.CrontabBin, s.Cron.User, log)
	}
}

func mapNotifierConfig(t config.TelegramNotify) notifier.Config {
	return notifier.Config{
		Enabled:     t.Enabled,
		ChatID:      t.ChatID,
		ThreadID:    t.ThreadID,
		OnSuccess:   t.OnSuccess,
		RatePerSec:  t.RatePerSec,
		RetryMax:    2,
		DedupWindow: 10 * time.Minute,
	}
}

// newSender returns nil when Telegram notifications are off.
func newSender(t config.TelegramNotify) (notifier.Sender, error) {
	if !t.Enabled {
		return nil, nil
	}
	s, err := notifier.NewTelegramSender(t.Token, "")
	if err != nil {
		return nil, err
	}
	return s, nil
}
