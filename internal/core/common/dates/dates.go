package dates

import "time"

const Layout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Parse reads a YYYY-MM-DD date as a UTC day.
func Parse(value string) (time.Time, error) {
	t, err := time.Parse(Layout, value)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// OnOrBefore reports whether day(a) <= day(b).
func OnOrBefore(a, b time.Time) bool {
	return !Day(a).After(Day(b))
}

// Before reports whether day(a) < day(b).
func Before(a, b time.Time) bool {
	return Day(a).Before(Day(b))
}
