package models

import (
	"errors"
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var ErrInvalidWindow = errors.New("invalid schedule window")

type ScheduleWindow struct {
	WindowID   string `json:"window_id,omitempty"`
	BusinessID string `json:"business_id"`
	DayOfWeek  int    `json:"day_of_week"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	IsActive   bool   `json:"is_active"`
}

// ParseClock converts "HH:MM" (seconds are tolerated) into minutes since midnight.
func ParseClock(value string) (int, error) {
	layouts := []string{ClockLayout, "15:04:05"}
	for _, layout := range layouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed.Hour()*60 + parsed.Minute(), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q", value)
}

func ParseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	return parsed, nil
}

func (w ScheduleWindow) Validate() error {
	if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
		return fmt.Errorf("%w: day_of_week must be 0-6", ErrInvalidWindow)
	}
	start, err := ParseClock(w.StartTime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	end, err := ParseClock(w.EndTime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	if start >= end {
		return fmt.Errorf("%w: start_time must be before end_time", ErrInvalidWindow)
	}
	return nil
}

// Contains reports whether weekday/minute falls in [start, end) of an active window.
func (w ScheduleWindow) Contains(weekday time.Weekday, minute int) bool {
	if !w.IsActive || int(weekday) != w.DayOfWeek {
		return false
	}
	start, err := ParseClock(w.StartTime)
	if err != nil {
		return false
	}
	end, err := ParseClock(w.EndTime)
	if err != nil {
		return false
	}
	return minute >= start && minute < end
}

func WithinWindows(windows []ScheduleWindow, date, clock string) (bool, error) {
	day, err := ParseDate(date)
	if err != nil {
		return false, err
	}
	minute, err := ParseClock(clock)
	if err != nil {
		return false, err
	}
	for _, window := range windows {
		if window.Contains(day.Weekday(), minute) {
			return true, nil
		}
	}
	return false, nil
}
