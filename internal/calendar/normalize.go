package calendar

import (
	"fmt"
	"strings"
	"time"

	"autodesk/internal/apperr"
	logx "autodesk/pkg/logx"
)

// Layouts accepted for timestamps that carry no zone offset.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Normalize converts raw events into meetings expressed in loc.
//
// Cancelled and all-day events are skipped. Any event with a missing or
// unparsable start/end, or with end <= start, fails the whole batch: gap
// accounting downstream depends on the complete list.
func Normalize(raw []RawEvent, loc *time.Location, log logx.Logger) ([]Meeting, error) {
	if loc == nil {
		return nil, apperr.DataFormatf("normalize events", "location is nil")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	out := make([]Meeting, 0, len(raw))
	for i, ev := range raw {
		if strings.EqualFold(strings.TrimSpace(ev.Status), "cancelled") {
			log.Debug("skipping cancelled event", logx.String("id", ev.ID))
			continue
		}
		if isAllDay(ev) {
			log.Debug("skipping all-day event", logx.String("id", ev.ID), logx.String("date", ev.Start.Date))
			continue
		}

		start, err := parseEventTime(ev.Start, loc)
		if err != nil {
			return nil, apperr.DataFormat(fmt.Sprintf("event %d (%s) start", i, ev.ID), err)
		}
		end, err := parseEventTime(ev.End, loc)
		if err != nil {
			return nil, apperr.DataFormat(fmt.Sprintf("event %d (%s) end", i, ev.ID), err)
		}
		if !end.After(start) {
			return nil, apperr.DataFormatf(
				fmt.Sprintf("event %d (%s)", i, ev.ID),
				"end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339),
			)
		}
		out = append(out, Meeting{ID: ev.ID, Summary: ev.Summary, Start: start, End: end})
	}
	return out, nil
}

// Within keeps meetings overlapping day, preserving order.
func Within(meetings []Meeting, day Day) []Meeting {
	out := meetings[:0:0]
	for _, m := range meetings {
		if m.End.After(day.Start) && m.Start.Before(day.End) {
			out = append(out, m)
		}
	}
	return out
}

func isAllDay(ev RawEvent) bool {
	return strings.TrimSpace(ev.Start.DateTime) == "" && strings.TrimSpace(ev.Start.Date) != ""
}

func parseEventTime(et EventTime, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(et.DateTime)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing dateTime")
	}

	// Explicit offset or Z.
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}

	// Zone-less: the event's own timeZone wins, then the configured one.
	in := loc
	if tz := strings.TrimSpace(et.TimeZone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown timeZone %q: %w", tz, err)
		}
		in = l
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, in); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}
