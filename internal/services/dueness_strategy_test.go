package services

import (
	"testing"
	"time"

	"spendsync/internal/core"
)

func at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestDuenessCheckers(t *testing.T) {
	tests := []struct {
		name    string
		checker DuenessChecker
		last    time.Time
		now     time.Time
		anchor  time.Time
		want    bool
	}{
		{"daily never run", DailyChecker{}, time.Time{}, at(2025, 1, 15), at(2025, 1, 1), true},
		{"daily same day", DailyChecker{}, time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC), at(2025, 1, 15), at(2025, 1, 1), false},
		{"daily next day", DailyChecker{}, at(2025, 1, 14), at(2025, 1, 15), at(2025, 1, 1), true},

		{"weekly 3 days", WeeklyChecker{}, at(2025, 1, 12), at(2025, 1, 15), at(2025, 1, 1), false},
		{"weekly 7 days", WeeklyChecker{}, at(2025, 1, 8), at(2025, 1, 15), at(2025, 1, 1), true},
		{"weekly 10 days", WeeklyChecker{}, at(2025, 1, 5), at(2025, 1, 15), at(2025, 1, 1), true},

		{"monthly same month", MonthlyChecker{}, at(2025, 1, 10), at(2025, 1, 25), at(2025, 1, 10), false},
		{"monthly before anchor day", MonthlyChecker{}, at(2025, 1, 15), at(2025, 2, 10), at(2025, 1, 15), false},
		{"monthly on anchor day", MonthlyChecker{}, at(2025, 1, 15), at(2025, 2, 15), at(2025, 1, 15), true},
		{"monthly day 31 clamps in leap february", MonthlyChecker{}, at(2024, 1, 31), at(2024, 2, 29), at(2024, 1, 31), true},
		{"monthly day 31 clamps in april", MonthlyChecker{}, at(2025, 3, 31), at(2025, 4, 30), at(2025, 1, 31), true},
		{"monthly latest occurrence in the future", MonthlyChecker{}, at(2025, 3, 1), at(2025, 2, 20), at(2025, 1, 1), false},

		{"yearly same year", YearlyChecker{}, at(2025, 3, 15), at(2025, 6, 15), at(2025, 3, 15), false},
		{"yearly before anchor month", YearlyChecker{}, at(2024, 6, 15), at(2025, 3, 15), at(2024, 6, 15), false},
		{"yearly past anchor month", YearlyChecker{}, at(2024, 3, 15), at(2025, 6, 15), at(2024, 3, 15), true},
		{"yearly anchor month before day", YearlyChecker{}, at(2024, 6, 15), at(2025, 6, 10), at(2024, 6, 15), false},
		{"yearly anchor month on day", YearlyChecker{}, at(2024, 6, 15), at(2025, 6, 15), at(2024, 6, 15), true},
		{"yearly feb 29 anchor in common year", YearlyChecker{}, at(2024, 2, 29), at(2025, 2, 28), at(2024, 2, 29), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.checker.IsDue(tt.last, tt.now, tt.anchor); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetDuenessChecker(t *testing.T) {
	tests := []struct {
		period  core.RecurringPeriod
		wantErr bool
	}{
		{core.Daily, false},
		{core.Weekly, false},
		{core.Monthly, false},
		{core.Yearly, false},
		{core.NoRepeat, true},
		{core.RecurringPeriod("BIWEEKLY"), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			checker, err := GetDuenessChecker(tt.period)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetDuenessChecker() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && checker == nil {
				t.Error("GetDuenessChecker() returned nil checker")
			}
		})
	}
}
