package crontab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"autodesk/internal/apperr"
	logx "autodesk/pkg/logx"
)

// Patcher replaces the delimited region of a Store, keeping a backup snapshot
// as the rollback point.
//
// Patcher does no locking: callers must not run two Apply calls against the
// same store concurrently.
type Patcher struct {
	Store      Store
	Delimiter  string
	BackupPath string

	log logx.Logger
}

// Result describes a successful Apply.
type Result struct {
	BackupPath string
	Bootstrap  bool // delimiter was missing and has been appended
	Entries    int
	Changed    bool // owned region differs from what was there before
	Text       string
}

func NewPatcher(store Store, delimiter, backupPath string, log logx.Logger) (*Patcher, error) {
	if store == nil {
		return nil, apperr.Config("crontab patcher", errors.New("store is nil"))
	}
	if NormalizeDelimiter(delimiter) == "" {
		return nil, apperr.Config("crontab patcher", errors.New("cron_delimiter is empty"))
	}
	if strings.TrimSpace(backupPath) == "" {
		return nil, apperr.Config("crontab patcher", errors.New("cron_backup_path is empty"))
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Patcher{Store: store, Delimiter: NormalizeDelimiter(delimiter), BackupPath: backupPath, log: log}, nil
}

// Apply snapshots the store, patches entries in below the delimiter and writes
// the result back.
//
// If the snapshot cannot be taken the store is left untouched. If the write
// fails, the snapshot is reinstalled once and the returned error carries the
// backup path either way.
func (p *Patcher) Apply(ctx context.Context, entries []string) (Result, error) {
	if err := p.Backup(ctx); err != nil {
		return Result{}, err
	}

	// The patch base is the snapshot on disk, byte for byte.
	b, err := os.ReadFile(p.BackupPath)
	if err != nil {
		return Result{}, apperr.StoreAccess("read backup", err, p.BackupPath)
	}
	current := string(b)

	res := p.plan(current, entries)
	res.BackupPath = p.BackupPath

	if err := p.Store.Write(ctx, res.Text); err != nil {
		p.log.Error("schedule write failed; restoring backup",
			logx.String("store", p.Store.Name()),
			logx.String("backup", p.BackupPath),
			logx.Err(err),
		)
		if rerr := p.Store.Restore(ctx, p.BackupPath); rerr != nil {
			p.log.Error("backup restore failed",
				logx.String("store", p.Store.Name()),
				logx.String("backup", p.BackupPath),
				logx.Err(rerr),
			)
			return res, apperr.StoreAccess("write schedule",
				fmt.Errorf("%w; restore also failed: %v", err, rerr), p.BackupPath)
		}
		return res, apperr.StoreAccess("write schedule", err, p.BackupPath)
	}

	p.log.Info("schedule patched",
		logx.String("store", p.Store.Name()),
		logx.Int("entries", res.Entries),
		logx.Bool("bootstrap", res.Bootstrap),
		logx.Bool("changed", res.Changed),
		logx.String("backup", p.BackupPath),
	)
	return res, nil
}

// DryRun computes what Apply would write without touching anything.
func (p *Patcher) DryRun(ctx context.Context, entries []string) (Result, error) {
	current, err := p.Store.Read(ctx)
	if err != nil {
		return Result{}, apperr.StoreAccess("read schedule", err, "")
	}
	return p.plan(current, entries), nil
}

// Backup writes the live table to BackupPath atomically.
func (p *Patcher) Backup(ctx context.Context) error {
	current, err := p.Store.Read(ctx)
	if err != nil {
		return apperr.StoreAccess("read schedule", err, "")
	}
	if err := WriteFileAtomic(p.BackupPath, []byte(current), 0o600); err != nil {
		return apperr.StoreAccess("write backup", err, "")
	}
	p.log.Debug("schedule backed up", logx.String("backup", p.BackupPath), logx.Int("bytes", len(current)))
	return nil
}

// Restore reinstalls the backup snapshot into the store.
func (p *Patcher) Restore(ctx context.Context) error {
	if _, err := os.Stat(p.BackupPath); err != nil {
		return apperr.StoreAccess("stat backup", err, p.BackupPath)
	}
	if err := p.Store.Restore(ctx, p.BackupPath); err != nil {
		return apperr.StoreAccess("restore schedule", err, p.BackupPath)
	}
	p.log.Info("schedule restored", logx.String("store", p.Store.Name()), logx.String("backup", p.BackupPath))
	return nil
}

func (p *Patcher) plan(current string, entries []string) Result {
	prevOwned, found := Owned(current, p.Delimiter)
	return Result{
		Bootstrap: !found,
		Entries:   len(entries),
		Changed:   !found || !sameLines(prevOwned, entries),
		Text:      Patch(current, p.Delimiter, entries),
	}
}

func sameLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
