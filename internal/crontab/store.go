package crontab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	logx "autodesk/pkg/logx"
)

// Store is the live schedule table.
//
// Write must replace the whole table in one step: a concurrently running cron
// daemon sees either the old table or the new one.
type Store interface {
	Name() string
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, text string) error
	// Restore reinstalls a snapshot previously written to path.
	Restore(ctx context.Context, path string) error
}

// ---- crontab(1) ----

// CommandStore is the invoking user's crontab, managed through the crontab
// binary. Each call is a checked process invocation; stderr is reported.
type CommandStore struct {
	Bin string // default "crontab"
	// User, if set, is passed as "-u <user>" (requires root).
	User string
	// TempDir holds the staged table handed to crontab; default os.TempDir().
	TempDir string

	log logx.Logger
}

func NewCommandStore(bin, user string, log logx.Logger) *CommandStore {
	if strings.TrimSpace(bin) == "" {
		bin = "crontab"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandStore{Bin: bin, User: strings.TrimSpace(user), log: log}
}

func (s *CommandStore) Name() string { return "crontab" }

func (s *CommandStore) args(extra ...string) []string {
	var a []string
	if s.User != "" {
		a = append(a, "-u", s.User)
	}
	return append(a, extra...)
}

func (s *CommandStore) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, s.Bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	s.log.Debug("crontab invoked",
		logx.String("bin", s.Bin),
		logx.String("args", strings.Join(args, " ")),
		logx.Bool("ok", err == nil),
	)
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return stdout.String(), &CommandError{Args: args, ExitCode: ee.ExitCode(), Stderr: msg}
		}
		return stdout.String(), fmt.Errorf("%s %s: %w", s.Bin, strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}

// Read returns the current table. A user without a crontab has an empty one.
func (s *CommandStore) Read(ctx context.Context) (string, error) {
	out, err := s.run(ctx, s.args("-l")...)
	if err != nil {
		var ce *CommandError
		if errors.As(err, &ce) && strings.Contains(strings.ToLower(ce.Stderr), "no crontab for") {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// Write stages text in a temp file and installs it with a single crontab call.
func (s *CommandStore) Write(ctx context.Context, text string) error {
	f, err := os.CreateTemp(s.TempDir, "autodesk-crontab-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_, err = s.run(ctx, s.args(tmp)...)
	return err
}

func (s *CommandStore) Restore(ctx context.Context, path string) error {
	_, err := s.run(ctx, s.args(path)...)
	return err
}

// CommandError is a crontab invocation that exited non-zero.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("crontab %s: exit status %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// ---- plain file ----

// FileStore is a table kept in a plain file, e.g. /etc/cron.d/autodesk.
type FileStore struct {
	Path string
	Perm os.FileMode
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, Perm: 0o644}
}

func (s *FileStore) Name() string { return "file:" + s.Path }

// Read returns "" for a file that does not exist yet.
func (s *FileStore) Read(ctx context.Context) (string, error) {
	_ = ctx
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *FileStore) Write(ctx context.Context, text string) error {
	_ = ctx
	return WriteFileAtomic(s.Path, []byte(text), s.perm())
}

func (s *FileStore) Restore(ctx context.Context, path string) error {
	_ = ctx
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.Path, b, s.perm())
}

func (s *FileStore) perm() os.FileMode {
	if s.Perm == 0 {
		return 0o644
	}
	return s.Perm
}

// WriteFileAtomic writes data to a temp file next to path, fsyncs it and
// renames it over path, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmp, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		cleanup()
		return err
	}
	// Persist the rename itself.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
