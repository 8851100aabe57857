package model

import (
	"fmt"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// NormalizeDay reduces a date or timestamp string to its YYYY-MM-DD prefix.
// Lexical comparison of task dates is only sound on this form.
func NormalizeDay(s string) (string, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "T "); i >= 0 {
		s = s[:i]
	}
	if _, err := time.Parse(dayLayout, s); err != nil {
		return "", fmt.Errorf("date %q is not YYYY-MM-DD", s)
	}
	return s, nil
}

// Day formats t as a calendar day in t's location.
func Day(t time.Time) string {
	return t.Format(dayLayout)
}

// FilterByDateAndType returns the tasks active on day, optionally restricted
// to one type. TypeAll matches every type.
func FilterByDateAndType(tasks []Task, day string, typ Type) []Task {
	day, err := NormalizeDay(day)
	if err != nil {
		return nil
	}
	var out []Task
	for _, t := range tasks {
		if !t.ActiveOn(day) {
			continue
		}
		if typ != TypeAll && t.Type != typ {
			continue
		}
		out = append(out, t)
	}
	return out
}
