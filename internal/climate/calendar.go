package climate

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"
)

// ErrInvalidMonthDay is returned for strings that are not a valid MMDD day
// of the non-leap reference calendar.
var ErrInvalidMonthDay = errors.New("invalid month-day")

// referenceYear is a non-leap year; day arithmetic never depends on the
// current date.
const referenceYear = 2023

var daysInMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// ParseMonthDay validates an MMDD string and returns its month and day.
func ParseMonthDay(mmdd string) (time.Month, int, error) {
	if len(mmdd) != 4 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidMonthDay, mmdd)
	}
	m, err1 := strconv.Atoi(mmdd[:2])
	d, err2 := strconv.Atoi(mmdd[2:])
	if err1 != nil || err2 != nil || m < 1 || m > 12 || d < 1 || d > daysInMonth[m-1] {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidMonthDay, mmdd)
	}
	return time.Month(m), d, nil
}

func formatMonthDay(month time.Month, day int) string {
	return fmt.Sprintf("%02d%02d", int(month), day)
}

// Window returns the day before mmdd, mmdd itself and the day after, with
// month and year rollover.
func Window(mmdd string) ([]string, error) {
	month, day, err := ParseMonthDay(mmdd)
	if err != nil {
		return nil, err
	}
	yesterday := time.Date(referenceYear, month, day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

	days := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		d := yesterday.AddDate(0, 0, i)
		days = append(days, formatMonthDay(d.Month(), d.Day()))
	}
	return days, nil
}

// MonthDays yields every MMDD of the reference calendar (February has 28
// days) in order. The sequence can be ranged over any number of times.
func MonthDays() iter.Seq[string] {
	return func(yield func(string) bool) {
		for m := 1; m <= 12; m++ {
			for d := 1; d <= daysInMonth[m-1]; d++ {
				if !yield(formatMonthDay(time.Month(m), d)) {
					return
				}
			}
		}
	}
}

// MonthName returns the German month name used in the report headings.
func MonthName(month time.Month) string {
	return [...]string{
		"Januar", "Februar", "März", "April", "Mai", "Juni", "Juli",
		"August", "September", "Oktober", "November", "Dezember",
	}[month-1]
}
