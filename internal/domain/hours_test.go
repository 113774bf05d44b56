package domain

import (
	"testing"
	"time"
)

func mustHours(t *testing.T, open, close int) BusinessHours {
	t.Helper()
	h, err := NewBusinessHours(open, close)
	if err != nil {
		t.Fatalf("NewBusinessHours(%d, %d): %v", open, close, err)
	}
	return h
}

func at(hour, min int) time.Time {
	return time.Date(2026, time.March, 2, hour, min, 0, 0, time.UTC)
}

func TestNewBusinessHoursValidation(t *testing.T) {
	cases := []struct {
		name        string
		open, close int
		wantErr     bool
	}{
		{name: "standard", open: 10, close: 22, wantErr: false},
		{name: "full day", open: 0, close: 24, wantErr: false},
		{name: "open equals close", open: 10, close: 10, wantErr: true},
		{name: "open after close", open: 18, close: 9, wantErr: true},
		{name: "negative open", open: -1, close: 10, wantErr: true},
		{name: "close past midnight", open: 10, close: 25, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBusinessHours(tc.open, tc.close)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NewBusinessHours(%d, %d) error = %v, wantErr %v", tc.open, tc.close, err, tc.wantErr)
			}
		})
	}
}

func TestIsOpenBoundaries(t *testing.T) {
	h := mustHours(t, 10, 22)

	if !h.IsOpen(at(10, 0)) {
		t.Fatalf("expected open at opening hour")
	}
	if h.IsOpen(at(22, 0)) {
		t.Fatalf("expected closed at closing hour")
	}
	if !h.IsOpen(at(21, 59)) {
		t.Fatalf("expected open just before close")
	}
	if h.IsOpen(at(9, 59)) {
		t.Fatalf("expected closed just before open")
	}
}

func TestNextOpen(t *testing.T) {
	h := mustHours(t, 10, 22)

	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{name: "already open", in: at(11, 30), want: at(11, 30)},
		{name: "before opening", in: at(6, 0), want: at(10, 0)},
		{name: "after closing", in: at(23, 15), want: at(10, 0).AddDate(0, 0, 1)},
		{name: "at closing hour", in: at(22, 0), want: at(10, 0).AddDate(0, 0, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := h.NextOpen(tc.in)
			if !got.Equal(tc.want) {
				t.Fatalf("NextOpen(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestAddBusinessDuration(t *testing.T) {
	h := mustHours(t, 10, 22)

	cases := []struct {
		name  string
		start time.Time
		d     time.Duration
		want  time.Time
	}{
		{name: "fits in same day", start: at(11, 0), d: 3 * time.Hour, want: at(14, 0)},
		{name: "spills to next day", start: at(20, 0), d: 3 * time.Hour, want: at(11, 0).AddDate(0, 0, 1)},
		{name: "starts before opening", start: at(6, 0), d: 3 * time.Hour, want: at(13, 0)},
		{name: "starts after closing", start: at(22, 30), d: 3 * time.Hour, want: at(13, 0).AddDate(0, 0, 1)},
		{name: "exactly consumes the day", start: at(10, 0), d: 12 * time.Hour, want: at(22, 0)},
		{name: "spans multiple days", start: at(21, 0), d: 25 * time.Hour, want: at(22, 0).AddDate(0, 0, 2)},
		{name: "zero duration while open", start: at(15, 0), d: 0, want: at(15, 0)},
		{name: "zero duration while closed", start: at(8, 0), d: 0, want: at(10, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := h.AddBusinessDuration(tc.start, tc.d)
			if !got.Equal(tc.want) {
				t.Fatalf("AddBusinessDuration(%v, %v) = %v, want %v", tc.start, tc.d, got, tc.want)
			}
		})
	}
}

func TestRemainingBusinessTime(t *testing.T) {
	h := mustHours(t, 10, 22)

	t.Run("within same open day", func(t *testing.T) {
		got := h.RemainingBusinessTime(at(14, 0), at(11, 0))
		if got != 3*time.Hour {
			t.Fatalf("remaining = %v, want 3h", got)
		}
	})

	t.Run("skips overnight closure", func(t *testing.T) {
		got := h.RemainingBusinessTime(at(11, 0).AddDate(0, 0, 1), at(20, 0))
		if got != 3*time.Hour {
			t.Fatalf("remaining = %v, want 3h", got)
		}
	})

	t.Run("now outside hours", func(t *testing.T) {
		got := h.RemainingBusinessTime(at(13, 0), at(7, 0))
		if got != 3*time.Hour {
			t.Fatalf("remaining = %v, want 3h", got)
		}
	})

	t.Run("past deadline goes negative", func(t *testing.T) {
		got := h.RemainingBusinessTime(at(14, 0), at(15, 0))
		if got != -time.Hour {
			t.Fatalf("remaining = %v, want -1h", got)
		}
	})
}

func TestDeadlineRoundTrip(t *testing.T) {
	// Remaining time against a deadline produced by AddBusinessDuration must
	// equal the original window when measured at the start instant.
	h := mustHours(t, 10, 22)
	starts := []time.Time{at(6, 0), at(10, 0), at(16, 0), at(21, 45), at(23, 0)}
	for _, start := range starts {
		deadline := h.AddBusinessDuration(start, VendorAcceptWindow)
		got := h.RemainingBusinessTime(deadline, start)
		if got != VendorAcceptWindow {
			t.Fatalf("round trip from %v: remaining %v, want %v", start, got, VendorAcceptWindow)
		}
	}
}
