package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DueDateLayout is how due dates are rendered, e.g. "21 Oct 2025".
const DueDateLayout = "02 Jan 2006"

// Accepted input layouts, tried in order.
var dueDateLayouts = []string{
	DueDateLayout,
	"Jan 02, 2006",
	"2006-01-02",
	time.RFC3339,
}

// DueDate is a calendar date without a time of day.
type DueDate struct {
	time.Time
}

// NewDueDate truncates t to midnight UTC of its calendar day.
func NewDueDate(t time.Time) DueDate {
	return DueDate{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDueDate parses s using any of the accepted layouts.
func ParseDueDate(s string) (DueDate, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDueDate(t), nil
		}
	}
	return DueDate{}, fmt.Errorf("unrecognised date %q", s)
}

// SameMonth reports whether d falls in the calendar month and year of t.
func (d DueDate) SameMonth(t time.Time) bool {
	return d.Year() == t.Year() && d.Month() == t.Month()
}

func (d DueDate) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DueDateLayout)
}

func (d DueDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DueDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("due date must be a string: %w", err)
	}
	if s == "" {
		*d = DueDate{}
		return nil
	}
	parsed, err := ParseDueDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
