// Package schedule holds the static day-of-week labels and the named
// time-of-day windows a forecast day is split into.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

var weekdayLabels = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Weekday returns the display label for d.
func Weekday(d time.Weekday) string {
	if d < time.Sunday || d > time.Saturday {
		return ""
	}
	return weekdayLabels[d]
}

// WeekdayLabels returns the labels Sunday first.
func WeekdayLabels() []string {
	return append([]string(nil), weekdayLabels[:]...)
}

// Window is a span of the day covering hours [StartHour, EndHour).
type Window struct {
	Name      string `json:"name" mapstructure:"name"`
	Label     string `json:"label" mapstructure:"label"`
	StartHour int    `json:"start_hour" mapstructure:"start_hour"`
	EndHour   int    `json:"end_hour" mapstructure:"end_hour"`
}

// Contains reports whether hour falls inside the window.
func (w Window) Contains(hour int) bool {
	return hour >= w.StartHour && hour < w.EndHour
}

// Validate rejects hours outside 0..24 and windows that wrap past midnight.
func (w Window) Validate() error {
	switch {
	case strings.TrimSpace(w.Name) == "":
		return &InvalidWindowError{Window: w, Reason: "name is empty"}
	case w.StartHour < 0 || w.StartHour > 23:
		return &InvalidWindowError{Window: w, Reason: "start hour must be between 0 and 23"}
	case w.EndHour < 1 || w.EndHour > 24:
		return &InvalidWindowError{Window: w, Reason: "end hour must be between 1 and 24"}
	case w.EndHour <= w.StartHour:
		return &InvalidWindowError{Window: w, Reason: "windows crossing midnight are not supported"}
	}
	return nil
}

// Windows is an ordered, validated window registry.
type Windows []Window

var defaultWindows = Windows{
	{Name: "morning", Label: "Morning (8am-12pm)", StartHour: 8, EndHour: 12},
	{Name: "afternoon", Label: "Afternoon (12pm-5pm)", StartHour: 12, EndHour: 17},
	{Name: "evening", Label: "Evening (5pm-9pm)", StartHour: 17, EndHour: 21},
}

// DefaultWindows returns a fresh copy of the built-in morning, afternoon and
// evening windows.
func DefaultWindows() Windows {
	return append(Windows(nil), defaultWindows...)
}

// NewWindows validates ws and returns them as a new registry. Names must be unique.
func NewWindows(ws ...Window) (Windows, error) {
	seen := make(map[string]struct{}, len(ws))
	out := make(Windows, 0, len(ws))
	for _, w := range ws {
		if err := w.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[w.Name]; dup {
			return nil, &InvalidWindowError{Window: w, Reason: "duplicate name"}
		}
		seen[w.Name] = struct{}{}
		if w.Label == "" {
			w.Label = w.Name
		}
		out = append(out, w)
	}
	return out, nil
}

func (ws Windows) Lookup(name string) (Window, bool) {
	for _, w := range ws {
		if w.Name == name {
			return w, true
		}
	}
	return Window{}, false
}

func (ws Windows) Names() []string {
	names := make([]string, len(ws))
	for i, w := range ws {
		names[i] = w.Name
	}
	return names
}

// InvalidWindowError reports a window rejected by configuration validation.
type InvalidWindowError struct {
	Window Window
	Reason string
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid window %q [%d,%d): %s", e.Window.Name, e.Window.StartHour, e.Window.EndHour, e.Reason)
}
