package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}

func parseDateUTC(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err))
	}
	t = t.UTC()
	return &t, nil
}

// endOfDay makes a date-only upper bound inclusive.
func endOfDay(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	end := t.Add(24*time.Hour - time.Nanosecond)
	return &end
}
