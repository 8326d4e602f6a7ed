package crontab

import "strings"

// NormalizeDelimiter strips line terminators from a configured delimiter so it
// can be compared against split lines.
func NormalizeDelimiter(d string) string {
	return strings.TrimRight(d, "\r\n")
}

// Patch returns current with everything from the first line equal to
// delimiter onward replaced by delimiter followed by entries.
//
// If no line equals delimiter, the whole of current is kept and the delimiter
// is appended (first run). Every output line ends with "\n".
func Patch(current, delimiter string, entries []string) string {
	delimiter = NormalizeDelimiter(delimiter)
	prefix := Preserved(current, delimiter)

	var b strings.Builder
	b.Grow(len(current) + len(delimiter) + 64*len(entries))
	for _, l := range prefix {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString(delimiter)
	b.WriteByte('\n')
	for _, e := range entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	return b.String()
}

// Preserved returns the lines of current before the first delimiter line,
// or all lines if there is none.
func Preserved(current, delimiter string) []string {
	delimiter = NormalizeDelimiter(delimiter)
	lines := splitLines(current)
	for i, l := range lines {
		if l == delimiter {
			return lines[:i]
		}
	}
	return lines
}

// Owned returns the lines after the first delimiter line, and whether the
// delimiter was present.
func Owned(current, delimiter string) ([]string, bool) {
	delimiter = NormalizeDelimiter(delimiter)
	lines := splitLines(current)
	for i, l := range lines {
		if l == delimiter {
			return lines[i+1:], true
		}
	}
	return nil, false
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
