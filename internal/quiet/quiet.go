// Package quiet evaluates quiet-hours windows.
//
// A window is a pair of whole local hours. When Start is less than End the
// window covers [Start, End) within a single day; otherwise it wraps past
// midnight and covers [Start, 24) plus [0, End). A window whose Start equals
// End takes the wrapping branch and is quiet at every hour.
package quiet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HoursPerDay is the number of selectable hours.
const HoursPerDay = 24

// ErrInvalidHour is returned when an hour falls outside [0, 23].
var ErrInvalidHour = errors.New("hour must be between 0 and 23")

// Window is a quiet-hours window in local wall-clock hours.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Validate reports whether both hours are in range.
func (w Window) Validate() error {
	if !ValidHour(w.Start) {
		return fmt.Errorf("start %d: %w", w.Start, ErrInvalidHour)
	}
	if !ValidHour(w.End) {
		return fmt.Errorf("end %d: %w", w.End, ErrInvalidHour)
	}
	return nil
}

// Wraps reports whether the window crosses midnight.
func (w Window) Wraps() bool {
	return w.Start >= w.End
}

// String renders the window with 12-hour labels, e.g. "10 PM – 7 AM".
func (w Window) String() string {
	return FormatHour(w.Start) + " – " + FormatHour(w.End)
}

// ValidHour reports whether h is a selectable hour.
func ValidHour(h int) bool {
	return h >= 0 && h < HoursPerDay
}

// IsQuiet reports whether hour is inside w. The caller resolves the hour in
// local time; no timezone conversion happens here.
func IsQuiet(hour int, w Window) bool {
	if w.Start < w.End {
		return hour >= w.Start && hour < w.End
	}
	return hour >= w.Start || hour < w.End
}

// HourOf returns the wall-clock hour of t in t's own location.
func HourOf(t time.Time) int {
	return t.Hour()
}

// FormatHour renders a 24-hour value as a 12-hour label with AM/PM suffix.
func FormatHour(h int) string {
	hour12 := h % 12
	if hour12 == 0 {
		hour12 = 12
	}
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	return fmt.Sprintf("%d %s", hour12, suffix)
}

// Option is one selectable hour.
type Option struct {
	Label string
	Value int
}

// HourOptions enumerates the 24 selectable hours in order.
func HourOptions() []Option {
	opts := make([]Option, 0, HoursPerDay)
	for h := 0; h < HoursPerDay; h++ {
		opts = append(opts, Option{Label: FormatHour(h), Value: h})
	}
	return opts
}

// ParseHour accepts "22", "10pm", "10 PM" and "12am".
func ParseHour(s string) (int, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return 0, fmt.Errorf("empty hour: %w", ErrInvalidHour)
	}

	suffix := ""
	switch {
	case strings.HasSuffix(raw, "am"):
		suffix = "am"
	case strings.HasSuffix(raw, "pm"):
		suffix = "pm"
	}
	digits := strings.TrimSpace(strings.TrimSuffix(raw, suffix))

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("parse hour %q: %w", s, ErrInvalidHour)
	}

	if suffix == "" {
		if !ValidHour(n) {
			return 0, fmt.Errorf("hour %d: %w", n, ErrInvalidHour)
		}
		return n, nil
	}

	if n < 1 || n > 12 {
		return 0, fmt.Errorf("hour %q: %w", s, ErrInvalidHour)
	}
	n %= 12
	if suffix == "pm" {
		n += 12
	}
	return n, nil
}
