// Package services holds the sync reconciler and the background processors
// built on top of it.
//
// This file implements one dueness strategy per recurring period. A strategy
// decides whether a recurring template needs a new occurrence given the date
// of its latest occurrence.
package services

import (
	"fmt"
	"time"

	"spendsync/internal/core"
)

// DuenessChecker decides whether a recurring template is due.
type DuenessChecker interface {
	// IsDue reports whether a new occurrence should be created at now. last is
	// the date of the latest occurrence; anchor is the template's own date,
	// which fixes the day of month (and month of year) occurrences land on.
	IsDue(last, now, anchor time.Time) bool
}

type DailyChecker struct{}

// IsDue returns true once the calendar day has changed.
func (DailyChecker) IsDue(last, now, _ time.Time) bool {
	if last.IsZero() {
		return true
	}
	ly, lm, ld := last.In(now.Location()).Date()
	ny, nm, nd := now.Date()
	return ly != ny || lm != nm || ld != nd
}

type WeeklyChecker struct{}

// IsDue returns true when 7 or more days have passed.
func (WeeklyChecker) IsDue(last, now, _ time.Time) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= 7*24*time.Hour
}

type MonthlyChecker struct{}

// IsDue returns true in a later month once the anchor day is reached. Anchor
// days past the end of a short month are clamped to its last day.
func (MonthlyChecker) IsDue(last, now, anchor time.Time) bool {
	if last.IsZero() {
		return true
	}
	last = last.In(now.Location())
	anchor = anchor.In(now.Location())
	if last.Year() == now.Year() && last.Month() == now.Month() {
		return false
	}
	if monthsBetween(last, now) < 1 {
		return false
	}
	return now.Day() >= clampDay(now.Year(), now.Month(), anchor.Day(), now.Location())
}

type YearlyChecker struct{}

// IsDue returns true in a later year once the anchor month and day are reached.
func (YearlyChecker) IsDue(last, now, anchor time.Time) bool {
	if last.IsZero() {
		return true
	}
	if last.In(now.Location()).Year() >= now.Year() {
		return false
	}
	anchor = anchor.In(now.Location())
	switch {
	case now.Month() < anchor.Month():
		return false
	case now.Month() > anchor.Month():
		return true
	default:
		return now.Day() >= clampDay(now.Year(), now.Month(), anchor.Day(), now.Location())
	}
}

var duenessStrategies = map[core.RecurringPeriod]DuenessChecker{
	core.Daily:   DailyChecker{},
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
	core.Yearly:  YearlyChecker{},
}

// GetDuenessChecker returns the checker for a recurring period.
// NONE and unknown periods have no checker.
func GetDuenessChecker(period core.RecurringPeriod) (DuenessChecker, error) {
	checker, ok := duenessStrategies[period]
	if !ok {
		return nil, fmt.Errorf("no dueness strategy for recurring period %q", period)
	}
	return checker, nil
}

// clampDay returns day, or the last day of the month if day does not exist.
func clampDay(year int, month time.Month, day int, loc *time.Location) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > last {
		return last
	}
	return day
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}
