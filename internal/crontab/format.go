// Package crontab renders trigger instants as crontab lines and patches them
// into the region of a crontab owned by autodesk.
//
// Everything above the delimiter line belongs to other tools and is never
// touched; everything below it is regenerated on every run.
package crontab

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"autodesk/internal/apperr"
)

// Spec is the five-field time-spec of one trigger, in local-time components.
// Weekday uses 1..7 with Monday=1.
type Spec struct {
	Minute  int
	Hour    int
	Day     int
	Month   int
	Weekday int
}

// SpecOf extracts the components of t in its own location.
func SpecOf(t time.Time) Spec {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return Spec{Minute: t.Minute(), Hour: t.Hour(), Day: t.Day(), Month: int(t.Month()), Weekday: wd}
}

func (s Spec) Validate() error {
	check := func(name string, v, lo, hi int) error {
		if v < lo || v > hi {
			return fmt.Errorf("%s %d out of range %d-%d", name, v, lo, hi)
		}
		return nil
	}
	for _, err := range []error{
		check("minute", s.Minute, 0, 59),
		check("hour", s.Hour, 0, 23),
		check("day", s.Day, 1, 31),
		check("month", s.Month, 1, 12),
		check("weekday", s.Weekday, 1, 7),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s Spec) String() string {
	return strconv.Itoa(s.Minute) + " " + strconv.Itoa(s.Hour) + " " + strconv.Itoa(s.Day) + " " +
		strconv.Itoa(s.Month) + " " + strconv.Itoa(s.Weekday)
}

// FormatEntry renders t as "minute hour day month weekday command"; command
// is appended verbatim.
//
// The rendered spec is parsed back with the standard cron parser and must
// fire at t's minute; anything else is an upstream bug and fails the run.
func FormatEntry(t time.Time, command string) (string, error) {
	if strings.TrimSpace(command) == "" || strings.ContainsAny(command, "\r\n") {
		return "", apperr.Config("format entry", fmt.Errorf("trigger command must be a single non-empty line"))
	}
	spec := SpecOf(t)
	if err := spec.Validate(); err != nil {
		return "", apperr.DataFormat("format entry "+t.Format(time.RFC3339), err)
	}
	if err := verifySpec(spec, t); err != nil {
		return "", apperr.DataFormat("format entry "+t.Format(time.RFC3339), err)
	}
	return spec.String() + " " + command, nil
}

// FormatEntries renders every instant; it fails without partial output.
func FormatEntries(ts []time.Time, command string) ([]string, error) {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		line, err := FormatEntry(t, command)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

func verifySpec(s Spec, t time.Time) error {
	// robfig/cron numbers weekdays 0..6 with Sunday=0.
	dow := s.Weekday % 7
	expr := fmt.Sprintf("CRON_TZ=%s %d %d %d %d %d", t.Location().String(), s.Minute, s.Hour, s.Day, s.Month, dow)
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("spec %q rejected: %w", s.String(), err)
	}
	want := t.Truncate(time.Minute)
	if got := sched.Next(want.Add(-time.Second)); !got.Equal(want) {
		return fmt.Errorf("spec %q fires at %s, want %s", s.String(), got.Format(time.RFC3339), want.Format(time.RFC3339))
	}
	return nil
}
