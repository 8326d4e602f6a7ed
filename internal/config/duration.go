package config

import (
	"fmt"
	"strings"
	"time"
)

// Two duration spellings appear in the file: the required trigger keys are
// integer seconds, the optional nested knobs are Go duration strings.

// secondsField converts a required *_seconds key. A nil pointer means the
// key was absent.
func secondsField(path string, v *int) (time.Duration, error) {
	if v == nil {
		return 0, fmt.Errorf("%s is required", path)
	}
	if *v < 0 {
		return 0, fmt.Errorf("%s must be >= 0", path)
	}
	return time.Duration(*v) * time.Second, nil
}

// ParseDurationField parses an optional duration string; empty means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	switch d, err := ParseDurationField(path, raw); {
	case err != nil:
		return 0, err
	case d == 0:
		return def, nil
	default:
		return d, nil
	}
}
