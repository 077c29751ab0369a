// Package openhouse holds the comparison and date rules for free-text
// open-house values.
package openhouse

import (
	"regexp"
	"strconv"
	"time"
)

// GenericLabels are the placeholder badges a search card shows instead of
// the concrete viewing times.
var GenericLabels = []string{"Esittely", "Ensi-esittely"}

var datePattern = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.`)

// IsGeneric reports whether value is one of GenericLabels.
func IsGeneric(value string) bool {
	for _, label := range GenericLabels {
		if value == label {
			return true
		}
	}
	return false
}

// Equivalent compares a freshly observed value against the stored one. A
// generic label matches any non-empty stored value.
func Equivalent(stored, fresh string) bool {
	if stored == fresh {
		return true
	}
	return stored != "" && IsGeneric(fresh)
}

// Date returns the end of the first D.M. day mentioned in text. The year is
// the occurrence nearest to now across the December/January boundary.
// found is false when text carries no date; ok is false when the digits do
// not form a calendar date.
func Date(text string, now time.Time) (date time.Time, found, ok bool) {
	m := datePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, true, false
	}

	year := now.Year()
	if now.Month() == time.December && month == 1 {
		year++
	} else if now.Month() == time.January && month == 12 {
		year--
	}

	date = time.Date(year, time.Month(month), day, 23, 59, 0, 0, now.Location())
	if date.Day() != day || int(date.Month()) != month {
		return time.Time{}, true, false
	}
	return date, true, true
}

// Upcoming reports whether the viewing described by text is not yet over.
// Text without a date counts as upcoming; an invalid date does not.
func Upcoming(text string, now time.Time) bool {
	date, found, ok := Date(text, now)
	if !found {
		return true
	}
	if !ok {
		return false
	}
	return !date.Before(now)
}
