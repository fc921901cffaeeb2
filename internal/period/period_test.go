package period

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLastWeekRange(t *testing.T) {
	tests := []struct {
		name       string
		today      time.Time
		wantMonday time.Time
		wantSunday time.Time
	}{
		{"wednesday", date(2025, 3, 12), date(2025, 3, 3), date(2025, 3, 9)},
		{"monday returns previous week", date(2025, 3, 10), date(2025, 3, 3), date(2025, 3, 9)},
		{"sunday", date(2025, 3, 16), date(2025, 3, 3), date(2025, 3, 9)},
		{"first of month", date(2025, 4, 1), date(2025, 3, 24), date(2025, 3, 30)},
		{"new year", date(2025, 1, 1), date(2024, 12, 23), date(2024, 12, 29)},
		{"leap day", date(2024, 3, 1), date(2024, 2, 19), date(2024, 2, 25)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monday, sunday := LastWeekRange(tt.today.Add(15 * time.Hour))
			if !monday.Equal(tt.wantMonday) {
				t.Errorf("monday: got %s, want %s", monday.Format(time.DateOnly), tt.wantMonday.Format(time.DateOnly))
			}
			if !sunday.Equal(tt.wantSunday) {
				t.Errorf("sunday: got %s, want %s", sunday.Format(time.DateOnly), tt.wantSunday.Format(time.DateOnly))
			}
			if monday.Weekday() != time.Monday || sunday.Weekday() != time.Sunday {
				t.Errorf("unexpected weekdays %s / %s", monday.Weekday(), sunday.Weekday())
			}
		})
	}
}

func TestMonthToDateStart(t *testing.T) {
	tests := []struct {
		today, want time.Time
	}{
		{date(2025, 3, 12), date(2025, 3, 1)},
		{date(2025, 3, 1), date(2025, 3, 1)},
		{date(2025, 1, 1), date(2025, 1, 1)},
		{date(2024, 12, 31), date(2024, 12, 1)},
	}
	for _, tt := range tests {
		if got := MonthToDateStart(tt.today); !got.Equal(tt.want) {
			t.Errorf("MonthToDateStart(%s) = %s, want %s", tt.today.Format(time.DateOnly), got.Format(time.DateOnly), tt.want.Format(time.DateOnly))
		}
	}
}

func TestExplicit(t *testing.T) {
	r, err := Explicit("2025-03-01", "2025-03-09")
	if err != nil {
		t.Fatalf("Explicit failed: %v", err)
	}
	if !r.Start.Equal(date(2025, 3, 1)) {
		t.Errorf("start: got %s", r.Start)
	}
	if want := time.Date(2025, 3, 9, 23, 59, 59, 0, time.UTC); !r.End.Equal(want) {
		t.Errorf("end: got %s, want %s", r.End, want)
	}

	if _, err := Explicit("2025-03-09", "2025-03-01"); err == nil {
		t.Error("expected error for inverted range")
	}
	if _, err := Explicit("03/01/2025", "2025-03-09"); err == nil {
		t.Error("expected error for malformed start")
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{Start: date(2025, 3, 3), End: date(2025, 3, 9).Add(24*time.Hour - time.Second)}
	if !r.Contains(date(2025, 3, 3)) || !r.Contains(date(2025, 3, 9)) {
		t.Error("range should include both end dates")
	}
	if r.Contains(date(2025, 3, 2)) || r.Contains(date(2025, 3, 10)) {
		t.Error("range should exclude dates outside it")
	}
}

func TestLookback(t *testing.T) {
	now := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	r := Lookback(now, 30)
	if !r.Start.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) || !r.End.Equal(now) {
		t.Errorf("unexpected range %s", r)
	}
}

func TestWeekLabel(t *testing.T) {
	if got := WeekLabel(date(2024, 12, 31)); got != "2025_W01" {
		t.Errorf("got %q, want %q", got, "2025_W01")
	}
	if got := WeekLabel(date(2026, 2, 12)); got != "2026_W07" {
		t.Errorf("got %q, want %q", got, "2026_W07")
	}
}
