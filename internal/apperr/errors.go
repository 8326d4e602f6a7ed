// Package apperr defines the error kinds a sync run can fail with and how
// they map to process exit codes.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal run error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig: missing or invalid configuration. Raised before any fetch.
	KindConfig
	// KindDataFormat: malformed events, unparsable timestamps or an
	// out-of-range cron component. Raised before any store mutation.
	KindDataFormat
	// KindStoreAccess: the cron store or its backup could not be read/written.
	KindStoreAccess
	// KindSource: the calendar source could not be queried.
	KindSource
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindDataFormat:
		return "data_format"
	case KindStoreAccess:
		return "store_access"
	case KindSource:
		return "source"
	default:
		return "unknown"
	}
}

// Error carries a Kind plus the operation that failed.
//
// BackupPath is set for store errors raised after the backup snapshot was
// written; it is the artifact to restore from.
type Error struct {
	Kind       Kind
	Op         string
	Err        error
	BackupPath string
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.BackupPath != "" {
		msg += " (backup: " + e.BackupPath + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &Error{Kind: KindX}) match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

func Config(op string, err error) error { return &Error{Kind: KindConfig, Op: op, Err: err} }

func DataFormat(op string, err error) error { return &Error{Kind: KindDataFormat, Op: op, Err: err} }

func DataFormatf(op, format string, args ...any) error {
	return &Error{Kind: KindDataFormat, Op: op, Err: fmt.Errorf(format, args...)}
}

func Source(op string, err error) error { return &Error{Kind: KindSource, Op: op, Err: err} }

// StoreAccess wraps a store failure. backupPath may be empty when the failure
// happened before the backup existed.
func StoreAccess(op string, err error, backupPath string) error {
	return &Error{Kind: KindStoreAccess, Op: op, Err: err, BackupPath: backupPath}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// BackupPathOf returns the recovery artifact recorded in err, if any.
func BackupPathOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.BackupPath
	}
	return ""
}

// ExitCode maps err to the CLI's process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConfig:
		return 2
	case KindDataFormat:
		return 3
	case KindStoreAccess:
		return 4
	case KindSource:
		return 5
	default:
		return 1
	}
}
