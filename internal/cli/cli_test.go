package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"autodesk/internal/apperr"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

const events = `{"items":[
  {"id":"a","summary":"standup","start":{"dateTime":"2024-03-04T09:00:00+01:00"},"end":{"dateTime":"2024-03-04T09:15:00+01:00"}},
  {"id":"b","summary":"lunch talk","start":{"dateTime":"2024-03-04T12:00:00+01:00"},"end":{"dateTime":"2024-03-04T13:00:00+01:00"}}
]}`

func writeConfig(t *testing.T, extra string) (cfgPath, crontabPath string) {
	t.Helper()
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.json")
	crontabPath = filepath.Join(dir, "crontab")
	if err := os.WriteFile(eventsPath, []byte(events), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(crontabPath, []byte("0 1 * * * backup.sh\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := `
timezone: Europe/Berlin
calendar_id: primary
end_threshold_seconds: 600
trigger_offset_seconds: 120
max_meeting_standing_time: 3600
ignore_times: ["12:00"]
cron_delimiter: "# Desk Actions"
trigger_script: desk-up
cron_backup_path: ` + filepath.Join(dir, "crontab.bak") + `
calendar:
  source: file
  events_file: ` + eventsPath + `
cron:
  store: file
  path: ` + crontabPath + `
logging:
  level: error
storage:
  driver: file
  path: ` + filepath.Join(dir, "history") + `
` + extra
	cfgPath = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, crontabPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSyncPreviewHistory(t *testing.T) {
	t.Parallel()
	cfg, crontab := writeConfig(t, "")

	out, err := run(t, "preview", "-c", cfg, "--day", "2024-03-04")
	if err != nil {
		t.Fatalf("preview: %v\n%s", err, out)
	}
	for _, want := range []string{"standup", "triggered", "ignored_time", "08:58", "58 8 4 3 1 desk-up"} {
		if !strings.Contains(out, want) {
			t.Errorf("preview output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "sync", "-c", cfg, "--day", "2024-03-04")
	if err != nil {
		t.Fatalf("sync: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 trigger from 2 meetings (updated)") {
		t.Fatalf("sync output:\n%s", out)
	}
	b, err := os.ReadFile(crontab)
	if err != nil {
		t.Fatal(err)
	}
	want := "0 1 * * * backup.sh\n# Desk Actions\n58 8 4 3 1 desk-up\n"
	if string(b) != want {
		t.Fatalf("crontab =\n%s\nwant\n%s", b, want)
	}

	out, err = run(t, "history", "-c", cfg, "-n", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "2024-03-04") || !strings.Contains(out, "ok") {
		t.Fatalf("history output:\n%s", out)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cfg, _ := writeConfig(t, "")
	out, err := run(t, "validate", "-c", cfg)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "is valid") || !strings.Contains(out, "Europe/Berlin") || !strings.Contains(out, "[12:00]") {
		t.Fatalf("validate output:\n%s", out)
	}
}

func TestConfigErrorsExitWithConfigCode(t *testing.T) {
	t.Parallel()
	cfg, _ := writeConfig(t, "unknown_key: 1\n")
	_, err := run(t, "sync", "-c", cfg)
	if apperr.ExitCode(err) != 2 {
		t.Fatalf("exit code = %d (err %v), want 2", apperr.ExitCode(err), err)
	}

	good, _ := writeConfig(t, "")
	_, err = run(t, "sync", "-c", good, "--day", "04/03/2024")
	if apperr.ExitCode(err) != 2 {
		t.Fatalf("bad --day exit code = %d (err %v), want 2", apperr.ExitCode(err), err)
	}
}
