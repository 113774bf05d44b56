package domain

import (
	"fmt"
	"time"
)

// BusinessHours models the daily open window used for SLA deadline
// computation. The open hour is inclusive and the close hour exclusive, both
// evaluated against the local wall-clock hour of the instant in question: an
// order observed exactly at the close hour counts as outside the window.
type BusinessHours struct {
	OpenHour  int
	CloseHour int
}

// NewBusinessHours validates the window boundaries.
func NewBusinessHours(openHour, closeHour int) (BusinessHours, error) {
	if openHour < 0 || closeHour > 24 || openHour >= closeHour {
		return BusinessHours{}, fmt.Errorf("business hours: invalid window %d-%d", openHour, closeHour)
	}
	return BusinessHours{OpenHour: openHour, CloseHour: closeHour}, nil
}

// IsOpen reports whether t falls inside the open window.
func (h BusinessHours) IsOpen(t time.Time) bool {
	hour := t.Hour()
	return hour >= h.OpenHour && hour < h.CloseHour
}

// NextOpen returns t unchanged when the window is open, today's opening when
// t is before it, and tomorrow's opening otherwise.
func (h BusinessHours) NextOpen(t time.Time) time.Time {
	if h.IsOpen(t) {
		return t
	}
	year, month, day := t.Date()
	open := time.Date(year, month, day, h.OpenHour, 0, 0, 0, t.Location())
	if t.Hour() < h.OpenHour {
		return open
	}
	return open.AddDate(0, 0, 1)
}

// AddBusinessDuration returns the instant at which d of open-window time has
// elapsed after start. Time outside the window does not accrue, so a deadline
// always lands inside the window or exactly on its close boundary.
func (h BusinessHours) AddBusinessDuration(start time.Time, d time.Duration) time.Time {
	current := h.NextOpen(start)
	if d <= 0 {
		return current
	}

	remaining := d
	for {
		untilClose := h.closeOf(current).Sub(current)
		if remaining <= untilClose {
			return current.Add(remaining)
		}
		remaining -= untilClose
		current = h.NextOpen(h.closeOf(current))
	}
}

// RemainingBusinessTime accumulates the open-window time between now and
// deadline. An elapsed deadline short-circuits to the plain (negative)
// difference so callers can render an overdue state.
func (h BusinessHours) RemainingBusinessTime(deadline, now time.Time) time.Duration {
	if !deadline.After(now) {
		return deadline.Sub(now)
	}

	var total time.Duration
	current := now
	for current.Before(deadline) {
		if !h.IsOpen(current) {
			next := h.NextOpen(current)
			if !next.Before(deadline) {
				break
			}
			current = next
			continue
		}
		segmentEnd := h.closeOf(current)
		if deadline.Before(segmentEnd) {
			segmentEnd = deadline
		}
		total += segmentEnd.Sub(current)
		current = h.closeOf(current)
	}
	return total
}

func (h BusinessHours) closeOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, h.CloseHour, 0, 0, 0, t.Location())
}
