package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"autodesk/internal/apperr"
)

// FileSource reads an events.list response saved on disk.
//
// It is the offline counterpart of GoogleSource: useful when another tool
// exports the calendar, and in tests. The file may hold more than one day;
// callers narrow the result with Within.
type FileSource struct {
	Path string
}

func NewFileSource(path string) (*FileSource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, apperr.Config("calendar file source", errors.New("calendar.events_file is required"))
	}
	return &FileSource{Path: path}, nil
}

func (f *FileSource) Events(ctx context.Context, calendarID string, day Day) ([]RawEvent, error) {
	_ = ctx
	_ = calendarID
	_ = day
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, apperr.Source("read events file", err)
	}
	var list eventList
	if err := json.NewDecoder(bytes.NewReader(b)).Decode(&list); err != nil {
		return nil, apperr.DataFormat("decode events file "+f.Path, err)
	}
	return list.Items, nil
}
