package utils

import "time"

// StartOfDay floors t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// EndOfDay ceils t to the last representable instant of its calendar day so
// that range filtering with an inclusive upper bound covers the whole day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// UpdatedRange resolves the optional fromDate/toDate query values (layout
// 2006-01-02) into the inclusive bounds used by the notes list filter.
// An absent or unparsable fromDate floors to the epoch; an absent or
// unparsable toDate ceils to the end of the current day.
func UpdatedRange(fromDate, toDate string) (time.Time, time.Time) {
	start := StartOfDay(time.Unix(0, 0).UTC())
	if fromDate != "" {
		if parsed, err := time.Parse("2006-01-02", fromDate); err == nil {
			start = StartOfDay(parsed)
		}
	}

	end := EndOfDay(time.Now().UTC())
	if toDate != "" {
		if parsed, err := time.Parse("2006-01-02", toDate); err == nil {
			end = EndOfDay(parsed)
		}
	}

	return start, end
}
