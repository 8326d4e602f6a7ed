package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"autodesk/internal/apperr"
	"autodesk/internal/calendar"
	"autodesk/internal/config"
	"autodesk/internal/crontab"
	"autodesk/internal/notifier"
	"autodesk/internal/storage"
	"autodesk/internal/trigger"
	logx "autodesk/pkg/logx"
)

// App drives the pipeline: fetch the day's meetings, derive trigger
// instants, format them and patch them into the schedule store.
//
// Runs are serialized by mu; Sync, Preview and Restore never overlap.
type App struct {
	mu sync.Mutex

	settings config.Settings
	log      logx.Logger

	source  calendar.Source
	store   crontab.Store
	patcher *crontab.Patcher
	history storage.Store // nil when disabled
	notif   *notifier.Service

	// Injected collaborators survive Apply.
	fixedSource bool
	fixedStore  bool
	fixedSender bool

	now func() time.Time
}

type Option func(*App)

// WithSource replaces the configured calendar source.
func WithSource(src calendar.Source) Option {
	return func(a *App) { a.source, a.fixedSource = src, true }
}

// WithCronStore replaces the configured schedule store.
func WithCronStore(st crontab.Store) Option {
	return func(a *App) { a.store, a.fixedStore = st, true }
}

// WithSender replaces the Telegram sender.
func WithSender(s notifier.Sender) Option {
	return func(a *App) {
		a.notif = notifier.New(notifier.Config{}, s, logx.Nop())
		a.fixedSender = true
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New builds an App from validated settings.
func New(s config.Settings, log logx.Logger, opts ...Option) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &App{log: log.With(logx.String("comp", "app")), now: time.Now}
	for _, o := range opts {
		o(a)
	}

	if sc, enabled := mapStorageConfig(s.Storage); enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, apperr.Config("open run history", err)
		}
		a.history = st
		a.log.Debug("run history enabled", logx.String("driver", sc.Driver))
	}

	if err := a.applyLocked(s); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Apply swaps in new settings (hot reload). Run history is not reopened:
// a storage change needs a restart.
func (a *App) Apply(s config.Settings) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s.Storage != a.settings.Storage {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	return a.applyLocked(s)
}

func (a *App) applyLocked(s config.Settings) error {
	source := a.source
	if !a.fixedSource {
		src, err := newSource(s, a.log.With(logx.String("comp", "calendar")))
		if err != nil {
			return err
		}
		source = src
	}
	store := a.store
	if !a.fixedStore {
		store = newCronStore(s, a.log.With(logx.String("comp", "crontab")))
	}
	patcher, err := crontab.NewPatcher(store, s.Delimiter, s.BackupPath, a.log.With(logx.String("comp", "patcher")))
	if err != nil {
		return err
	}

	ncfg := mapNotifierConfig(s.Telegram)
	if a.fixedSender {
		a.notif.Apply(ncfg)
	} else {
		sender, err := newSender(s.Telegram)
		if err != nil {
			return apperr.Config("telegram notifier", err)
		}
		a.notif = notifier.New(ncfg, sender, a.log.With(logx.String("comp", "notifier")))
	}

	a.settings = s
	a.source = source
	a.store = store
	a.patcher = patcher
	return nil
}

// Settings returns the active settings.
func (a *App) Settings() config.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// Today is the current calendar day in the configured zone.
func (a *App) Today() calendar.Day {
	s := a.Settings()
	return calendar.DayOf(a.now(), s.Location)
}

func (a *App) Close() error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}

// Report summarizes one run.
type Report struct {
	Day       calendar.Day
	Disabled  bool
	Meetings  int
	Decisions []trigger.Decision
	Entries   []string
	Result    crontab.Result
	Took      time.Duration
}

// Sync runs the whole pipeline for day. Nothing is written unless every
// trigger has been computed and formatted.
func (a *App) Sync(ctx context.Context, day calendar.Day) (Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.now()
	rep := Report{Day: day}
	if !a.settings.Enabled {
		rep.Disabled = true
		a.log.Info("sync skipped: disabled in config", logx.String("day", day.String()))
		a.record(ctx, rep, nil, start)
		return rep, nil
	}

	err := a.plan(ctx, &rep)
	if err == nil {
		rep.Result, err = a.patcher.Apply(ctx, rep.Entries)
	}
	rep.Took = a.now().Sub(start)

	if err != nil {
		a.log.Error("sync failed",
			logx.String("day", day.String()),
			logx.String("kind", apperr.KindOf(err).String()),
			logx.Err(err),
		)
	} else {
		a.log.Info("sync complete",
			logx.String("day", day.String()),
			logx.Int("meetings", rep.Meetings),
			logx.Int("triggers", len(rep.Entries)),
			logx.Bool("changed", rep.Result.Changed),
			logx.Duration("took", rep.Took),
		)
	}
	a.record(ctx, rep, err, start)
	a.announce(ctx, rep, err)
	return rep, err
}

// Preview computes what Sync would write without touching the store.
func (a *App) Preview(ctx context.Context, day calendar.Day) (Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.now()
	rep := Report{Day: day, Disabled: !a.settings.Enabled}
	if err := a.plan(ctx, &rep); err != nil {
		return rep, err
	}
	res, err := a.patcher.DryRun(ctx, rep.Entries)
	rep.Result = res
	rep.Took = a.now().Sub(start)
	return rep, err
}

// Restore reinstalls the last backup snapshot.
func (a *App) Restore(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.patcher.BackupPath, a.patcher.Restore(ctx)
}

// History returns up to n recent runs, newest first.
func (a *App) History(ctx context.Context, n int) ([]storage.Run, error) {
	if a.history == nil {
		return nil, storage.ErrDisabled
	}
	return a.history.RecentRuns(ctx, n)
}

// plan fills rep with meetings, decisions and formatted entries.
func (a *App) plan(ctx context.Context, rep *Report) error {
	s := a.settings
	raw, err := a.source.Events(ctx, s.CalendarID, rep.Day)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Source("fetch events", err)
		}
		return err
	}
	meetings, err := calendar.Normalize(raw, s.Location, a.log)
	if err != nil {
		return err
	}
	meetings = calendar.Within(meetings, rep.Day)
	rep.Meetings = len(meetings)

	decisions, err := trigger.Evaluate(meetings, s.Policy)
	if err != nil {
		return err
	}
	rep.Decisions = trigger.ClipToDay(decisions, rep.Day)
	instants, err := trigger.Instants(rep.Decisions)
	if err != nil {
		return err
	}
	entries, err := crontab.FormatEntries(instants, s.TriggerScript)
	if err != nil {
		return err
	}
	rep.Entries = entries
	return nil
}

func (a *App) record(ctx context.Context, rep Report, err error, start time.Time) {
	if a.history == nil {
		return
	}
	r := storage.Run{
		At:       start,
		Day:      rep.Day.String(),
		Meetings: rep.Meetings,
		Triggers: len(rep.Entries),
		TookMS:   rep.Took.Milliseconds(),
	}
	switch {
	case err != nil:
		r.Status = storage.StatusFailed
		r.ErrorKind = apperr.KindOf(err).String()
		r.Error = err.Error()
		r.BackupPath = apperr.BackupPathOf(err)
	case rep.Disabled:
		r.Status = storage.StatusDisabled
	case rep.Result.Changed:
		r.Status = storage.StatusOK
	default:
		r.Status = storage.StatusUnchanged
	}
	if rerr := a.history.RecordRun(ctx, r); rerr != nil {
		a.log.Warn("record run failed", logx.Err(rerr))
	}
}

// announce sends the run summary when notifications are on.
func (a *App) announce(ctx context.Context, rep Report, err error) {
	if !a.notif.Enabled() || (err == nil && !a.notif.OnSuccess()) {
		return
	}
	nerr := a.notif.Notify(ctx, summaryText(rep, err))
	if nerr != nil && !errors.Is(nerr, notifier.ErrSuppressed) {
		a.log.Warn("notify failed", logx.Err(nerr))
	}
}

func summaryText(rep Report, err error) string {
	if err != nil {
		msg := fmt.Sprintf("autodesk: sync %s failed (%s): %v", rep.Day, apperr.KindOf(err), err)
		if p := apperr.BackupPathOf(err); p != "" {
			msg += "\nbackup: " + p
		}
		return msg
	}
	state := "unchanged"
	if rep.Result.Changed {
		state = "updated"
	}
	return fmt.Sprintf("autodesk: sync %s %s: %d trigger(s) from %d meeting(s)", rep.Day, state, len(rep.Entries), rep.Meetings)
}
