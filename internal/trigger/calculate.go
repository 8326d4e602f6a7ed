package trigger

import (
	"time"

	"autodesk/internal/apperr"
	"autodesk/internal/calendar"
)

// Reason explains why a meeting did or did not produce a trigger.
type Reason int

const (
	Triggered Reason = iota
	// TooLong: the meeting runs longer than Policy.MaxStandingTime.
	TooLong
	// IgnoredTime: the meeting starts at one of Policy.IgnoreTimes.
	IgnoredTime
	// BackToBack: the meeting starts less than EndThreshold after the previous one ended.
	BackToBack
	// BeforeDay: the trigger would fire before the synced day began.
	BeforeDay
)

func (r Reason) String() string {
	switch r {
	case Triggered:
		return "triggered"
	case TooLong:
		return "too_long"
	case IgnoredTime:
		return "ignored_time"
	case BackToBack:
		return "back_to_back"
	case BeforeDay:
		return "before_day"
	default:
		return "unknown"
	}
}

// Decision is the outcome for one meeting. At is set only when Reason is Triggered.
type Decision struct {
	Meeting calendar.Meeting
	Reason  Reason
	At      time.Time
	// Gap since the previous meeting ended; HasGap is false for the first meeting.
	Gap    time.Duration
	HasGap bool
}

// Evaluate applies the trigger rules to meetings in a single pass.
//
// meetings must be ascending by start; they are not re-sorted. Every meeting,
// including skipped ones, updates the previous-end used for the next gap.
func Evaluate(meetings []calendar.Meeting, p Policy) ([]Decision, error) {
	if err := p.Validate(); err != nil {
		return nil, apperr.Config("trigger policy", err)
	}

	out := make([]Decision, 0, len(meetings))
	var (
		prevEnd  time.Time
		havePrev bool
	)
	for i, m := range meetings {
		if !m.End.After(m.Start) {
			return nil, apperr.DataFormatf("evaluate meetings", "meeting %d (%s): end is not after start", i, m.ID)
		}
		if i > 0 && m.Start.Before(meetings[i-1].Start) {
			return nil, apperr.DataFormatf("evaluate meetings", "meeting %d (%s) starts before meeting %d", i, m.ID, i-1)
		}

		d := Decision{Meeting: m}
		if havePrev {
			d.Gap = m.Start.Sub(prevEnd)
			d.HasGap = true
		}

		switch {
		case m.Duration() > p.MaxStandingTime:
			d.Reason = TooLong
		case p.ignored(m.Start):
			d.Reason = IgnoredTime
		case havePrev && d.Gap < p.EndThreshold:
			d.Reason = BackToBack
		default:
			d.Reason = Triggered
			d.At = m.Start.Add(-p.TriggerOffset).In(p.Location)
		}
		out = append(out, d)

		prevEnd = m.End
		havePrev = true
	}
	return out, nil
}

// Calculate returns the trigger instants for meetings, ascending.
func Calculate(meetings []calendar.Meeting, p Policy) ([]time.Time, error) {
	decisions, err := Evaluate(meetings, p)
	if err != nil {
		return nil, err
	}
	return Instants(decisions)
}

// ClipToDay marks triggers that fall before day.Start as BeforeDay. A
// meeting carried over from the previous evening, or one starting just after
// midnight, would otherwise produce a cron line for a date already past.
func ClipToDay(decisions []Decision, day calendar.Day) []Decision {
	for i := range decisions {
		if decisions[i].Reason == Triggered && decisions[i].At.Before(day.Start) {
			decisions[i].Reason = BeforeDay
			decisions[i].At = time.Time{}
		}
	}
	return decisions
}

// Instants extracts the trigger instants of the Triggered decisions.
func Instants(decisions []Decision) ([]time.Time, error) {
	out := make([]time.Time, 0, len(decisions))
	for _, d := range decisions {
		if d.Reason != Triggered {
			continue
		}
		if n := len(out); n > 0 && d.At.Before(out[n-1]) {
			return nil, apperr.DataFormatf("calculate triggers", "trigger %s precedes %s", d.At, out[n-1])
		}
		out = append(out, d.At)
	}
	return out, nil
}
