// Package calendar fetches one day's meetings and normalizes them into
// timezone-aware intervals.
//
// Sources return raw events in the Google Calendar v3 "events.list" shape;
// Normalize converts them into Meeting values in the configured location.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Meeting is one timed calendar instance. End is always after Start and both
// are expressed in the location passed to Normalize.
type Meeting struct {
	ID      string
	Summary string
	Start   time.Time
	End     time.Time
}

func (m Meeting) Duration() time.Duration { return m.End.Sub(m.Start) }

// RawEvent mirrors the subset of a Calendar v3 event resource we read.
type RawEvent struct {
	ID      string    `json:"id,omitempty"`
	Status  string    `json:"status,omitempty"`
	Summary string    `json:"summary,omitempty"`
	Start   EventTime `json:"start"`
	End     EventTime `json:"end"`
}

// EventTime is either a timed value (DateTime) or an all-day value (Date).
// TimeZone applies to a DateTime that carries no offset of its own.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventList struct {
	Items         []RawEvent `json:"items"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
}

// Day is a calendar day in a specific location: [Start, End).
// End is the next local midnight, so DST days are 23h or 25h long.
type Day struct {
	Start time.Time
	End   time.Time
}

// DayOf returns the local calendar day containing t.
func DayOf(t time.Time, loc *time.Location) Day {
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return Day{Start: start, End: start.AddDate(0, 0, 1)}
}

// ParseDay parses "YYYY-MM-DD" as a day in loc.
func ParseDay(s string, loc *time.Location) (Day, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q (want YYYY-MM-DD): %w", s, err)
	}
	return DayOf(t, loc), nil
}

func (d Day) Location() *time.Location { return d.Start.Location() }

func (d Day) String() string { return d.Start.Format("2006-01-02") }

// Source supplies the raw events of one day for a calendar, ordered by
// start time and already expanded from recurrences.
type Source interface {
	Events(ctx context.Context, calendarID string, day Day) ([]RawEvent, error)
}
