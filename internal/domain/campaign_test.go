package domain

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOccursOn(t *testing.T) {
	// 2026-08-05 is a Wednesday.
	start := date(2026, time.August, 5)

	tests := []struct {
		name       string
		recurrence Recurrence
		day        time.Time
		want       bool
	}{
		{"never on start date", RecurrenceNever, start, true},
		{"never on later date", RecurrenceNever, date(2026, time.August, 6), false},
		{"daily on start date", RecurrenceDaily, start, true},
		{"daily after start", RecurrenceDaily, date(2026, time.December, 25), true},
		{"daily before start", RecurrenceDaily, date(2026, time.August, 4), false},
		{"weekly next wednesday", RecurrenceWeekly, date(2026, time.August, 12), true},
		{"weekly wrong weekday", RecurrenceWeekly, date(2026, time.August, 13), false},
		{"weekly before start", RecurrenceWeekly, date(2026, time.July, 29), false},
		{"monthly same day number", RecurrenceMonthly, date(2026, time.September, 5), true},
		{"monthly different day", RecurrenceMonthly, date(2026, time.September, 6), false},
		{"monthly before start", RecurrenceMonthly, date(2026, time.July, 5), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Campaign{Recurrence: tt.recurrence, StartDate: start}
			if got := c.OccursOn(tt.day); got != tt.want {
				t.Errorf("OccursOn(%s) = %v, want %v", tt.day.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestRequestedStart(t *testing.T) {
	c := &Campaign{SendTime: 14*time.Hour + 30*time.Minute}

	// The time-of-day component of the input day must not leak through.
	day := time.Date(2026, time.August, 5, 9, 17, 42, 0, time.UTC)
	got := c.RequestedStart(day)
	want := time.Date(2026, time.August, 5, 14, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("RequestedStart = %s, want %s", got, want)
	}

	// Same day in, same timestamp out; this keys run idempotency.
	again := c.RequestedStart(time.Date(2026, time.August, 5, 23, 59, 0, 0, time.UTC))
	if !again.Equal(got) {
		t.Errorf("RequestedStart not stable across the day: %s vs %s", again, got)
	}
}

func TestPlaceholderDelimiter(t *testing.T) {
	c := &Campaign{}
	if got := c.PlaceholderDelimiter(); got != DefaultDelimiter {
		t.Errorf("default delimiter = %q", got)
	}
	c.Delimiter = "%%"
	if got := c.PlaceholderDelimiter(); got != "%%" {
		t.Errorf("custom delimiter = %q", got)
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"user@example.com", "a.b+tag@sub.example.org"}
	for _, e := range valid {
		if !ValidateEmail(e) {
			t.Errorf("ValidateEmail(%q) = false, want true", e)
		}
	}
	invalid := []string{"", "user", "user@", "@example.com", "user@localhost", "a@b@c.com"}
	for _, e := range invalid {
		if ValidateEmail(e) {
			t.Errorf("ValidateEmail(%q) = true, want false", e)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  User@Example.COM "); got != "user@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}
