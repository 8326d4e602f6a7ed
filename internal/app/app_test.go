package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"autodesk/internal/apperr"
	"autodesk/internal/calendar"
	"autodesk/internal/config"
	"autodesk/internal/storage"
	"autodesk/internal/trigger"
	logx "autodesk/pkg/logx"
)

const eventsJSON = `{
  "items": [
    {"id": "a", "summary": "standup", "start": {"dateTime": "2024-03-04T09:00:00Z"}, "end": {"dateTime": "2024-03-04T09:30:00Z"}},
    {"id": "b", "summary": "1:1", "start": {"dateTime": "2024-03-04T09:30:00Z"}, "end": {"dateTime": "2024-03-04T10:00:00Z"}},
    {"id": "c", "status": "cancelled", "start": {"dateTime": "2024-03-04T10:15:00Z"}, "end": {"dateTime": "2024-03-04T10:45:00Z"}},
    {"id": "d", "summary": "offsite", "start": {"date": "2024-03-04"}, "end": {"date": "2024-03-05"}},
    {"id": "e", "summary": "planning", "start": {"dateTime": "2024-03-04T11:00:00Z"}, "end": {"dateTime": "2024-03-04T12:00:00Z"}},
    {"id": "f", "summary": "tomorrow", "start": {"dateTime": "2024-03-05T09:00:00Z"}, "end": {"dateTime": "2024-03-05T09:30:00Z"}}
  ]
}`

const initialCrontab = "MAILTO=me\n0 1 * * * backup.sh\n# autodesk\n0 0 1 1 1 stale\n"

const wantCrontab = "MAILTO=me\n0 1 * * * backup.sh\n# autodesk\n" +
	"59 8 4 3 1 /usr/bin/desk up\n" +
	"59 10 4 3 1 /usr/bin/desk up\n"

type fixture struct {
	dir      string
	settings config.Settings
	crontab  string
	backup   string
	events   string
	day      calendar.Day
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:     dir,
		crontab: filepath.Join(dir, "crontab"),
		backup:  filepath.Join(dir, "crontab.bak"),
		events:  filepath.Join(dir, "events.json"),
	}
	if err := os.WriteFile(f.events, []byte(eventsJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.crontab, []byte(initialCrontab), 0o600); err != nil {
		t.Fatal(err)
	}
	f.settings = config.Settings{
		Enabled:    true,
		Location:   time.UTC,
		CalendarID: "primary",
		Policy: trigger.Policy{
			EndThreshold:    5 * time.Minute,
			TriggerOffset:   time.Minute,
			MaxStandingTime: 2 * time.Hour,
			Location:        time.UTC,
		},
		Delimiter:     "# autodesk",
		TriggerScript: "/usr/bin/desk up",
		BackupPath:    f.backup,
		Calendar:      config.CalendarSettings{Source: "file", EventsFile: f.events},
		Cron:          config.CronSettings{Store: "file", Path: f.crontab},
		Serve:         config.ServeSettings{Schedule: config.DefaultServeSchedule, MinResyncInterval: time.Millisecond},
		Storage:       config.StorageSettings{Driver: "file", Path: filepath.Join(dir, "history")},
	}
	day, err := calendar.ParseDay("2024-03-04", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	f.day = day
	return f
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

func (r *recordingSender) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func TestSyncPatchesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a, err := New(f.settings, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	ctx := context.Background()

	rep, err := a.Sync(ctx, f.day)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.Meetings != 3 || len(rep.Entries) != 2 || !rep.Result.Changed {
		t.Fatalf("report = %+v", rep)
	}
	if got := f.read(t, f.crontab); got != wantCrontab {
		t.Fatalf("crontab =\n%s\nwant\n%s", got, wantCrontab)
	}
	if got := f.read(t, f.backup); got != initialCrontab {
		t.Fatalf("backup =\n%s\nwant the pre-sync table", got)
	}

	rep, err = a.Sync(ctx, f.day)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if rep.Result.Changed {
		t.Fatal("second run reported a change")
	}
	if got := f.read(t, f.crontab); got != wantCrontab {
		t.Fatalf("second run altered crontab:\n%s", got)
	}

	runs, err := a.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(runs) != 2 || runs[0].Status != storage.StatusUnchanged || runs[1].Status != storage.StatusOK {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[1].Triggers != 2 || runs[1].Meetings != 3 || runs[1].Day != "2024-03-04" {
		t.Fatalf("first run = %+v", runs[1])
	}
}

func TestSyncDisabledIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.settings.Enabled = false
	a, err := New(f.settings, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	rep, err := a.Sync(context.Background(), f.day)
	if err != nil || !rep.Disabled {
		t.Fatalf("Sync = %+v, %v", rep, err)
	}
	if got := f.read(t, f.crontab); got != initialCrontab {
		t.Fatalf("disabled sync touched the crontab:\n%s", got)
	}
	if _, err := os.Stat(f.backup); !os.IsNotExist(err) {
		t.Fatalf("disabled sync wrote a backup (stat err = %v)", err)
	}
	runs, _ := a.History(context.Background(), 1)
	if len(runs) != 1 || runs[0].Status != storage.StatusDisabled {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestSyncBadDataLeavesStoreUntouchedAndNotifies(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	bad := `{"items":[{"id":"x","start":{"dateTime":"yesterday"},"end":{"dateTime":"2024-03-04T10:00:00Z"}}]}`
	if err := os.WriteFile(f.events, []byte(bad), 0o600); err != nil {
		t.Fatal(err)
	}
	f.settings.Telegram = config.TelegramNotify{Enabled: true, ChatID: 42, RatePerSec: 100}
	sender := &recordingSender{}
	a, err := New(f.settings, logx.Nop(), WithSender(sender))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	_, err = a.Sync(context.Background(), f.day)
	if apperr.KindOf(err) != apperr.KindDataFormat {
		t.Fatalf("err = %v, want data format error", err)
	}
	if got := f.read(t, f.crontab); got != initialCrontab {
		t.Fatalf("failed sync touched the crontab:\n%s", got)
	}
	msgs := sender.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "failed (data_format)") {
		t.Fatalf("notifications = %q", msgs)
	}
	runs, _ := a.History(context.Background(), 1)
	if len(runs) != 1 || runs[0].Status != storage.StatusFailed || runs[0].ErrorKind != "data_format" {
		t.Fatalf("runs = %+v", runs)
	}
}

type failingSource struct{}

func (failingSource) Events(context.Context, string, calendar.Day) ([]calendar.RawEvent, error) {
	return nil, errors.New("connection refused")
}

func TestSyncWrapsSourceErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a, err := New(f.settings, logx.Nop(), WithSource(failingSource{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	_, err = a.Sync(context.Background(), f.day)
	if apperr.KindOf(err) != apperr.KindSource || apperr.ExitCode(err) != 5 {
		t.Fatalf("err = %v (kind %v)", err, apperr.KindOf(err))
	}
}

func TestPreviewTouchesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.settings.Storage = config.StorageSettings{}
	a, err := New(f.settings, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	rep, err := a.Preview(context.Background(), f.day)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if rep.Result.Text != wantCrontab {
		t.Fatalf("preview text =\n%s", rep.Result.Text)
	}
	if len(rep.Decisions) != 3 || rep.Decisions[1].Reason != trigger.BackToBack {
		t.Fatalf("decisions = %+v", rep.Decisions)
	}
	if got := f.read(t, f.crontab); got != initialCrontab {
		t.Fatalf("preview touched the crontab:\n%s", got)
	}
	if _, err := os.Stat(f.backup); !os.IsNotExist(err) {
		t.Fatalf("preview wrote a backup (stat err = %v)", err)
	}
	if _, err := a.History(context.Background(), 1); !errors.Is(err, storage.ErrDisabled) {
		t.Fatalf("History err = %v, want ErrDisabled", err)
	}
}

func TestRestoreReinstallsBackup(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a, err := New(f.settings, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	ctx := context.Background()
	if _, err := a.Sync(ctx, f.day); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	path, err := a.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if path != f.backup {
		t.Fatalf("Restore path = %q", path)
	}
	if got := f.read(t, f.crontab); got != initialCrontab {
		t.Fatalf("crontab after restore =\n%s", got)
	}
}

func TestApplySwapsSettings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a, err := New(f.settings, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	next := f.settings
	next.TriggerScript = "/usr/bin/desk down"
	next.Policy.TriggerOffset = 0
	if err := a.Apply(next); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	rep, err := a.Sync(context.Background(), f.day)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(rep.Entries) != 2 || rep.Entries[0] != "0 9 4 3 1 /usr/bin/desk down" {
		t.Fatalf("entries = %q", rep.Entries)
	}

	bad := f.settings
	bad.Delimiter = ""
	if err := a.Apply(bad); err == nil {
		t.Fatal("Apply accepted an empty delimiter")
	}
	if got := a.Settings().TriggerScript; got != "/usr/bin/desk down" {
		t.Fatalf("failed Apply replaced settings: %q", got)
	}
}

func TestSummaryText(t *testing.T) {
	t.Parallel()
	day, _ := calendar.ParseDay("2024-03-04", time.UTC)
	err := apperr.StoreAccess("write schedule", errors.New("crontab exited 1"), "/tmp/crontab.bak")
	msg := summaryText(Report{Day: day}, err)
	if !strings.Contains(msg, "2024-03-04 failed (store_access)") || !strings.Contains(msg, "backup: /tmp/crontab.bak") {
		t.Fatalf("msg = %q", msg)
	}
	ok := summaryText(Report{Day: day, Meetings: 3, Entries: []string{"x"}}, nil)
	if ok != "autodesk: sync 2024-03-04 unchanged: 1 trigger(s) from 3 meeting(s)" {
		t.Fatalf("ok msg = %q", ok)
	}
}

func TestSyncSkipsTriggersBeforeTheDay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	events := `{"items":[
  {"id":"late","start":{"dateTime":"2024-03-03T23:30:00Z"},"end":{"dateTime":"2024-03-04T00:20:00Z"}},
  {"id":"a","start":{"dateTime":"2024-03-04T09:00:00Z"},"end":{"dateTime":"2024-03-04T09:30:00Z"}}
]}`
	if err := os.WriteFile(f.events, []byte(events), 0o600); err != nil {
		t.Fatal(err)
	}
	a, err := New(f.settings, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	rep, err := a.Sync(context.Background(), f.day)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.Meetings != 2 || rep.Decisions[0].Reason != trigger.BeforeDay {
		t.Fatalf("report = %+v", rep)
	}
	want := "MAILTO=me\n0 1 * * * backup.sh\n# autodesk\n59 8 4 3 1 /usr/bin/desk up\n"
	if got := f.read(t, f.crontab); got != want {
		t.Fatalf("crontab =\n%s\nwant\n%s", got, want)
	}
}
