package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"autodesk/internal/apperr"
	"autodesk/internal/config"
	"autodesk/internal/runtime/supervisor"
	logx "autodesk/pkg/logx"
)

// Serve keeps the schedule current until ctx is done: it resyncs on the
// configured cron schedule and whenever the config file changes.
//
// m may be nil (no hot reload). logs, when set, receives logging changes.
func (a *App) Serve(ctx context.Context, m *config.Manager, logs *logx.Service) error {
	s := a.Settings()
	log := a.log.With(logx.String("comp", "serve"))

	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	sched := &resyncScheduler{log: log, run: func() { a.resync(sup.Context(), "schedule") }}
	if err := sched.start(s); err != nil {
		sup.Cancel()
		return err
	}
	defer sched.stop()

	q := newResyncQueue(s.Serve.MinResyncInterval, a.resync)
	sup.Go("resync", q.loop)

	if m != nil && s.Serve.WatchConfig {
		r := &reloader{app: a, logs: logs, sched: sched, queue: q, log: log}
		sub := m.Subscribe(1)
		sup.GoRestart("config.watch", m.Watch, 250*time.Millisecond, 30*time.Second)
		sup.Go0("config.reload", func(ctx context.Context) {
			defer m.Unsubscribe(sub)
			for {
				select {
				case <-ctx.Done():
					return
				case u, ok := <-sub:
					if !ok {
						return
					}
					r.apply(u)
				}
			}
		})
	}

	if s.Serve.ResyncOnStart {
		q.request("startup")
	}

	notifySystemd(log, daemon.SdNotifyReady)
	startWatchdog(sup, log)
	log.Info("serving",
		logx.String("schedule", s.Serve.Schedule),
		logx.String("tz", s.Location.String()),
		logx.Bool("watch_config", s.Serve.WatchConfig && m != nil),
	)

	<-sup.Context().Done()
	notifySystemd(log, daemon.SdNotifyStopping)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := sup.Stop(stopCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("shutdown timed out", logx.Err(err))
		return nil
	}
	return err
}

// resyncQueue coalesces resync requests into at most one pending run and
// spaces runs by the minimum resync interval.
type resyncQueue struct {
	kick chan string
	lim  *rate.Limiter
	run  func(ctx context.Context, reason string)
}

func newResyncQueue(every time.Duration, run func(ctx context.Context, reason string)) *resyncQueue {
	return &resyncQueue{
		kick: make(chan string, 1),
		lim:  rate.NewLimiter(rate.Every(every), 1),
		run:  run,
	}
}

// request queues a resync unless one is already pending.
func (q *resyncQueue) request(reason string) {
	select {
	case q.kick <- reason:
	default:
	}
}

func (q *resyncQueue) setInterval(every time.Duration) {
	q.lim.SetLimit(rate.Every(every))
}

func (q *resyncQueue) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-q.kick:
			if err := q.lim.Wait(ctx); err != nil {
				return nil
			}
			q.run(ctx, reason)
		}
	}
}

// reloader applies a published config to the running server.
type reloader struct {
	app   *App
	logs  *logx.Service
	sched *resyncScheduler
	queue *resyncQueue
	log   logx.Logger
}

// apply swaps in u. If the app rejects it the previous settings stay active
// and no resync is requested.
func (r *reloader) apply(u config.Update) bool {
	if err := r.app.Apply(u.Settings); err != nil {
		r.log.Warn("config apply failed; keeping previous settings", logx.Err(err))
		return false
	}
	if r.logs != nil {
		r.logs.Apply(u.Settings.Logging)
	}
	if err := r.sched.start(u.Settings); err != nil {
		r.log.Warn("reschedule failed", logx.Err(err))
	}
	r.queue.setInterval(u.Settings.Serve.MinResyncInterval)
	r.queue.request("config")
	return true
}

// resync runs a sync for today. Failures are logged, recorded and
// announced by Sync; serve keeps going.
func (a *App) resync(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	day := a.Today()
	a.log.Debug("resync", logx.String("reason", reason), logx.String("day", day.String()))
	_, _ = a.Sync(ctx, day)
}

// resyncScheduler owns the robfig cron instance; start replaces it when the
// schedule or zone changes.
type resyncScheduler struct {
	mu   sync.Mutex
	c    *cron.Cron
	spec string
	loc  *time.Location
	log  logx.Logger
	run  func()
}

func (r *resyncScheduler) start(s config.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil && r.spec == s.Serve.Schedule && r.loc.String() == s.Location.String() {
		return nil
	}
	c := cron.New(
		cron.WithLocation(s.Location),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{r.log})),
	)
	if _, err := c.AddFunc(s.Serve.Schedule, r.run); err != nil {
		return apperr.Config("serve.schedule", err)
	}
	if r.c != nil {
		<-r.c.Stop().Done()
	}
	r.c, r.spec, r.loc = c, s.Serve.Schedule, s.Location
	c.Start()
	r.log.Info("resync scheduled", logx.String("schedule", r.spec), logx.String("tz", r.loc.String()))
	return nil
}

func (r *resyncScheduler) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		<-r.c.Stop().Done()
		r.c = nil
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Warn("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}

func notifySystemd(log logx.Logger, state string) {
	if ok, err := daemon.SdNotify(false, state); err != nil {
		log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
	} else if ok {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// startWatchdog pings systemd at half the WatchdogSec interval when the
// unit enables it.
func startWatchdog(sup *supervisor.Supervisor, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	sup.Go0("systemd.watchdog", func(ctx context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				notifySystemd(log, daemon.SdNotifyWatchdog)
			}
		}
	})
}
