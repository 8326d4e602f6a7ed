// Package trigger derives desk trigger instants from a day's meetings.
//
// Calculate is pure: no I/O, no clock reads. The same meetings and Policy
// always yield the same triggers.
package trigger

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock HH:MM, independent of date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	m := reHHMM.FindStringSubmatch(raw)
	if len(m) != 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM)", raw)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if hh > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", raw)
	}
	if mm > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minutes in %q", raw)
	}
	return TimeOfDay{Hour: hh, Minute: mm}, nil
}

// Of returns the wall-clock time of t in loc.
func Of(t time.Time, loc *time.Location) TimeOfDay {
	lt := t.In(loc)
	return TimeOfDay{Hour: lt.Hour(), Minute: lt.Minute()}
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Policy holds the knobs of the trigger rules. Every field is required.
type Policy struct {
	// EndThreshold is the minimum gap since the previous meeting ended for
	// a meeting to get its own trigger.
	EndThreshold time.Duration
	// TriggerOffset is how long before the meeting start the trigger fires.
	TriggerOffset time.Duration
	// MaxStandingTime excludes meetings strictly longer than this.
	MaxStandingTime time.Duration
	// IgnoreTimes are start times that never trigger, on any date.
	IgnoreTimes []TimeOfDay
	// Location is where wall-clock comparisons happen.
	Location *time.Location
}

func (p Policy) Validate() error {
	var errs []string
	if p.EndThreshold < 0 {
		errs = append(errs, "end threshold must be >= 0")
	}
	if p.TriggerOffset < 0 {
		errs = append(errs, "trigger offset must be >= 0")
	}
	if p.MaxStandingTime < 0 {
		errs = append(errs, "max meeting standing time must be >= 0")
	}
	if p.Location == nil {
		errs = append(errs, "location is required")
	}
	for _, t := range p.IgnoreTimes {
		if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
			errs = append(errs, "ignore time out of range: "+t.String())
		}
	}
	if len(errs) > 0 {
		return errors.New("invalid trigger policy: " + strings.Join(errs, "; "))
	}
	return nil
}

func (p Policy) ignored(t time.Time) bool {
	tod := Of(t, p.Location)
	for _, it := range p.IgnoreTimes {
		if it == tod {
			return true
		}
	}
	return false
}
