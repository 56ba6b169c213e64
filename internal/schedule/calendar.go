// Package schedule holds the fixed daily slot grid and the pure calendar
// arithmetic used by the booking engine. Nothing here touches storage.
package schedule

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format for calendar dates. Plain date, no zone.
	DateLayout = "2006-01-02"
	// SlotLayout is the wire format for slot times.
	SlotLayout = "15:04"
)

// DefaultGrid returns the standard bookable slot grid for a business day.
// The grid is configuration, not derived from opening hours.
func DefaultGrid() []string {
	return []string{
		"09:00", "10:00", "11:00", "12:00",
		"14:00", "15:00", "16:00", "17:00",
	}
}

// ParseDate parses a plain calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: invalid date %q: %w", s, err)
	}
	return d, nil
}

// ValidSlot reports whether t is a well-formed slot time.
func ValidSlot(t string) bool {
	_, err := time.Parse(SlotLayout, t)
	return err == nil
}

// Contains reports whether the grid includes the given slot time.
func Contains(grid []string, t string) bool {
	for _, s := range grid {
		if s == t {
			return true
		}
	}
	return false
}

// Subtract returns the grid minus the occupied times, preserving grid order.
// Occupied times not present in the grid are ignored.
func Subtract(grid, occupied []string) []string {
	taken := make(map[string]struct{}, len(occupied))
	for _, t := range occupied {
		taken[t] = struct{}{}
	}
	free := make([]string, 0, len(grid))
	for _, s := range grid {
		if _, ok := taken[s]; !ok {
			free = append(free, s)
		}
	}
	return free
}

// BeforeDay reports whether date falls strictly before the calendar day of
// now in the given location.
func BeforeDay(date time.Time, now time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return date.Before(today)
}
