package crontab

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"autodesk/internal/apperr"
	logx "autodesk/pkg/logx"
)

func newFilePatcher(t *testing.T, initial string) (*Patcher, *FileStore) {
	t.Helper()
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "crontab"))
	if initial != "" {
		if err := os.WriteFile(store.Path, []byte(initial), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	p, err := NewPatcher(store, delim+"\n", filepath.Join(dir, "backup", "crontab.bak"), logx.Nop())
	if err != nil {
		t.Fatalf("NewPatcher: %v", err)
	}
	return p, store
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestPatcherApplyAndIdempotence(t *testing.T) {
	t.Parallel()
	initial := "0 3 * * * /usr/bin/backup\n"
	p, store := newFilePatcher(t, initial)
	ctx := context.Background()
	entries := []string{"59 8 4 3 1 trigger", "34 9 4 3 1 trigger"}

	res, err := p.Apply(ctx, entries)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Bootstrap || !res.Changed || res.Entries != 2 {
		t.Fatalf("first result = %+v", res)
	}
	first := readFile(t, store.Path)
	if first != initial+delim+"\n59 8 4 3 1 trigger\n34 9 4 3 1 trigger\n" {
		t.Fatalf("store = %q", first)
	}
	if got := readFile(t, p.BackupPath); got != initial {
		t.Fatalf("backup = %q, want pre-run table", got)
	}

	res, err = p.Apply(ctx, entries)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if res.Bootstrap || res.Changed {
		t.Fatalf("second result = %+v", res)
	}
	if second := readFile(t, store.Path); second != first {
		t.Fatalf("second run changed table:\n%q\n%q", first, second)
	}
	if got := readFile(t, p.BackupPath); got != first {
		t.Fatalf("backup after second run = %q", got)
	}
}

func TestPatcherDryRunTouchesNothing(t *testing.T) {
	t.Parallel()
	p, store := newFilePatcher(t, "x\n")
	res, err := p.DryRun(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if res.Text != "x\n"+delim+"\na\n" {
		t.Fatalf("Text = %q", res.Text)
	}
	if got := readFile(t, store.Path); got != "x\n" {
		t.Fatalf("store modified: %q", got)
	}
	if _, err := os.Stat(p.BackupPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("backup written by dry run: %v", err)
	}
}

type fakeStore struct {
	text       string
	readErr    error
	writeErr   error
	restoreErr error
	writes     int
	restores   []string
}

func (f *fakeStore) Name() string { return "fake" }
func (f *fakeStore) Read(context.Context) (string, error) {
	return f.text, f.readErr
}
func (f *fakeStore) Write(_ context.Context, text string) error {
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	f.text = text
	return nil
}
func (f *fakeStore) Restore(_ context.Context, path string) error {
	f.restores = append(f.restores, path)
	if f.restoreErr != nil {
		return f.restoreErr
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.text = string(b)
	return nil
}

func TestPatcherBackupFailureLeavesStoreUntouched(t *testing.T) {
	t.Parallel()
	store := &fakeStore{text: "keep\n"}
	// A directory where the backup file should be makes the rename fail.
	backup := t.TempDir()
	p, err := NewPatcher(store, delim, backup, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Apply(context.Background(), []string{"a"})
	if apperr.KindOf(err) != apperr.KindStoreAccess {
		t.Fatalf("expected store access error, got %v", err)
	}
	if apperr.BackupPathOf(err) != "" {
		t.Fatalf("no backup exists yet, got path %q", apperr.BackupPathOf(err))
	}
	if store.writes != 0 || store.text != "keep\n" {
		t.Fatalf("store touched: writes=%d text=%q", store.writes, store.text)
	}

	store.readErr = errors.New("crontab: permission denied")
	p.BackupPath = filepath.Join(t.TempDir(), "b")
	if _, err := p.Apply(context.Background(), nil); apperr.KindOf(err) != apperr.KindStoreAccess || store.writes != 0 {
		t.Fatalf("read failure: err=%v writes=%d", err, store.writes)
	}
}

func TestPatcherWriteFailureRestoresOnce(t *testing.T) {
	t.Parallel()
	store := &fakeStore{text: "keep\n", writeErr: errors.New("disk full")}
	backup := filepath.Join(t.TempDir(), "crontab.bak")
	p, err := NewPatcher(store, delim, backup, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Apply(context.Background(), []string{"a"})
	if apperr.KindOf(err) != apperr.KindStoreAccess {
		t.Fatalf("expected store access error, got %v", err)
	}
	if apperr.BackupPathOf(err) != backup {
		t.Fatalf("backup path = %q, want %q", apperr.BackupPathOf(err), backup)
	}
	if len(store.restores) != 1 || store.restores[0] != backup {
		t.Fatalf("restores = %v", store.restores)
	}
	if store.text != "keep\n" {
		t.Fatalf("store = %q, want original", store.text)
	}

	store.restores = nil
	store.restoreErr = errors.New("still broken")
	_, err = p.Apply(context.Background(), []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "restore also failed") {
		t.Fatalf("expected combined error, got %v", err)
	}
	if len(store.restores) != 1 {
		t.Fatalf("restores = %d, want exactly one attempt", len(store.restores))
	}
	if got := readFile(t, backup); got != "keep\n" {
		t.Fatalf("backup = %q", got)
	}
}

func TestPatcherRestore(t *testing.T) {
	t.Parallel()
	p, store := newFilePatcher(t, "orig\n")
	ctx := context.Background()

	if err := p.Restore(ctx); apperr.KindOf(err) != apperr.KindStoreAccess {
		t.Fatalf("restore without backup: %v", err)
	}
	if _, err := p.Apply(ctx, []string{"a"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := p.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := readFile(t, store.Path); got != "orig\n" {
		t.Fatalf("store after restore = %q", got)
	}
}

func TestNewPatcherValidates(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	if _, err := NewPatcher(nil, delim, "/tmp/b", logx.Nop()); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewPatcher(store, "\n", "/tmp/b", logx.Nop()); err == nil {
		t.Fatal("expected error for empty delimiter")
	}
	if _, err := NewPatcher(store, delim, " ", logx.Nop()); err == nil {
		t.Fatal("expected error for empty backup path")
	}
}

// fakeCrontab writes a shell script that behaves like crontab(1) backed by a
// file next to it. Tests exec'ing it stay serial to avoid ETXTBSY.
func fakeCrontab(t *testing.T, failInstall bool) (bin, table string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	dir := t.TempDir()
	table = filepath.Join(dir, "table")
	install := `cp "$1" "` + table + `"`
	if failInstall {
		install = `echo "crontab: installing new crontab failed" >&2; exit 1`
	}
	script := `#!/bin/sh
if [ "$1" = "-l" ]; then
  if [ -f "` + table + `" ]; then cat "` + table + `"; exit 0; fi
  echo "no crontab for tester" >&2
  exit 1
fi
` + install + `
`
	bin = filepath.Join(dir, "crontab")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin, table
}

func TestCommandStoreRoundTrip(t *testing.T) {
	bin, table := fakeCrontab(t, false)
	store := NewCommandStore(bin, "", logx.Nop())
	store.TempDir = t.TempDir()
	ctx := context.Background()

	got, err := store.Read(ctx)
	if err != nil || got != "" {
		t.Fatalf("Read without crontab = %q, %v", got, err)
	}

	p, err := NewPatcher(store, delim, filepath.Join(t.TempDir(), "crontab.bak"), logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Apply(ctx, []string{"59 8 4 3 1 trigger"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := readFile(t, table); got != delim+"\n59 8 4 3 1 trigger\n" {
		t.Fatalf("table = %q", got)
	}
	got, err = store.Read(ctx)
	if err != nil || got != delim+"\n59 8 4 3 1 trigger\n" {
		t.Fatalf("Read = %q, %v", got, err)
	}
	staged, _ := filepath.Glob(filepath.Join(store.TempDir, "autodesk-crontab-*"))
	if len(staged) != 0 {
		t.Fatalf("staged files left behind: %v", staged)
	}
}

func TestCommandStoreInstallFailure(t *testing.T) {
	bin, _ := fakeCrontab(t, true)
	store := NewCommandStore(bin, "", logx.Nop())
	store.TempDir = t.TempDir()

	err := store.Write(context.Background(), "x\n")
	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if ce.ExitCode != 1 || !strings.Contains(ce.Stderr, "installing new crontab failed") {
		t.Fatalf("CommandError = %+v", ce)
	}
}

func TestCommandStoreMissingBinary(t *testing.T) {
	store := NewCommandStore(filepath.Join(t.TempDir(), "no-such-crontab"), "", logx.Nop())
	if _, err := store.Read(context.Background()); err == nil {
		t.Fatal("expected error for missing binary")
	}
}
