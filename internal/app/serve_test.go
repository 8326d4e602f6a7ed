package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"autodesk/internal/config"
	logx "autodesk/pkg/logx"
)

func serveYAML(f *fixture, offsetSeconds int) string {
	return fmt.Sprintf(`
timezone: UTC
calendar_id: primary
end_threshold_seconds: 300
trigger_offset_seconds: %d
max_meeting_standing_time: 7200
ignore_times: []
cron_delimiter: "# autodesk"
trigger_script: /usr/bin/desk up
cron_backup_path: %s
calendar:
  source: file
  events_file: %s
cron:
  store: file
  path: %s
serve:
  min_resync_interval: 1ms
logging:
  level: error
`, offsetSeconds, f.backup, f.events, f.crontab)
}

// waitForLine polls path until it holds line, calling poke between polls.
func waitForLine(t *testing.T, path, line string, poke func()) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		b, _ := os.ReadFile(path)
		if strings.Contains(string(b), line+"\n") {
			return
		}
		if poke != nil {
			poke()
		}
		time.Sleep(100 * time.Millisecond)
	}
	b, _ := os.ReadFile(path)
	t.Fatalf("timed out waiting for %q in %s:\n%s", line, path, b)
}

func TestServeResyncsOnStartAndOnConfigChange(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	write := func(offset int) {
		if err := os.WriteFile(cfgPath, []byte(serveYAML(f, offset)), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write(60)

	m := config.NewManager(cfgPath)
	u, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	noon := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	a, err := New(u.Settings, logx.Nop(), WithClock(func() time.Time { return noon }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, m, nil) }()

	waitForLine(t, f.crontab, "59 8 4 3 1 /usr/bin/desk up", nil)

	// The watcher may not be registered yet; rewriting the same content is
	// harmless once it is.
	waitForLine(t, f.crontab, "58 8 4 3 1 /usr/bin/desk up", func() { write(120) })
	if got := a.Settings().Policy.TriggerOffset; got != 2*time.Minute {
		t.Fatalf("TriggerOffset after reload = %v", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestResyncQueueCoalescesRequests(t *testing.T) {
	t.Parallel()
	var (
		mu      sync.Mutex
		reasons []string
	)
	q := newResyncQueue(time.Millisecond, func(ctx context.Context, reason string) {
		mu.Lock()
		reasons = append(reasons, reason)
		mu.Unlock()
	})
	for i := 0; i < 5; i++ {
		q.request(fmt.Sprintf("r%d", i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.loop(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(reasons)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(reasons) != 1 || reasons[0] != "r0" {
		t.Fatalf("runs = %q, want a single run for r0", reasons)
	}
}

func TestReloadAppliesOrKeepsSettings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a, err := New(f.settings, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	sched := &resyncScheduler{log: logx.Nop(), run: func() {}}
	if err := sched.start(f.settings); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.stop()
	q := newResyncQueue(time.Millisecond, func(context.Context, string) {})
	r := &reloader{app: a, sched: sched, queue: q, log: logx.Nop()}

	bad := f.settings
	bad.Delimiter = ""
	bad.Serve.MinResyncInterval = time.Hour
	if r.apply(config.Update{Settings: bad}) {
		t.Fatal("apply accepted settings the app rejects")
	}
	if got := a.Settings().Delimiter; got != "# autodesk" {
		t.Fatalf("failed reload replaced settings: delimiter %q", got)
	}
	if len(q.kick) != 0 {
		t.Fatal("failed reload requested a resync")
	}
	if q.lim.Limit() != rate.Every(time.Millisecond) {
		t.Fatalf("failed reload changed the resync interval: %v", q.lim.Limit())
	}

	good := f.settings
	good.TriggerScript = "/usr/bin/desk down"
	good.Serve.MinResyncInterval = time.Hour
	good.Serve.Schedule = "0 6 * * *"
	if !r.apply(config.Update{Settings: good}) {
		t.Fatal("apply rejected valid settings")
	}
	if got := a.Settings().TriggerScript; got != "/usr/bin/desk down" {
		t.Fatalf("TriggerScript = %q", got)
	}
	if q.lim.Limit() != rate.Every(time.Hour) {
		t.Fatalf("resync interval = %v, want one per hour", q.lim.Limit())
	}
	select {
	case reason := <-q.kick:
		if reason != "config" {
			t.Fatalf("reason = %q", reason)
		}
	default:
		t.Fatal("reload did not request a resync")
	}
	sched.mu.Lock()
	spec := sched.spec
	sched.mu.Unlock()
	if spec != "0 6 * * *" {
		t.Fatalf("schedule = %q", spec)
	}
}
