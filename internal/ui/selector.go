package ui

import (
	"chokewatch/internal/quiet"
)

// HourSelector is a selection control over the 24 hour options. The label
// shown is the 12-hour form; the value is the 24-hour integer.
type HourSelector struct {
	title   string
	options []quiet.Option
	index   int
	focused bool
}

// NewHourSelector returns a selector positioned on the first option.
func NewHourSelector(title string) *HourSelector {
	return &HourSelector{
		title:   title,
		options: quiet.HourOptions(),
	}
}

// Value returns the selected hour.
func (s *HourSelector) Value() int {
	return s.options[s.index].Value
}

// Label returns the display label of the selected hour.
func (s *HourSelector) Label() string {
	return s.options[s.index].Label
}

// SetValue selects hour. Values outside 0..23 are ignored.
func (s *HourSelector) SetValue(hour int) {
	for i, o := range s.options {
		if o.Value == hour {
			s.index = i
			return
		}
	}
}

// Next moves one hour later, wrapping past 11 PM.
func (s *HourSelector) Next() {
	s.index = (s.index + 1) % len(s.options)
}

// Prev moves one hour earlier, wrapping before 12 AM.
func (s *HourSelector) Prev() {
	s.index = (s.index - 1 + len(s.options)) % len(s.options)
}

// SetFocused sets the focus state.
func (s *HourSelector) SetFocused(focused bool) {
	s.focused = focused
}

// Focused reports whether the selector has focus.
func (s *HourSelector) Focused() bool {
	return s.focused
}

// View renders the selector.
func (s *HourSelector) View(styles *Styles) string {
	box := styles.FieldStyle
	if s.focused {
		box = styles.FieldFocusStyle
	}
	return styles.FieldLabelStyle.Render(s.title) + "\n" + box.Render("‹ "+s.Label()+" ›")
}
