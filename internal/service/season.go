package service

import "time"

// Procurement runs in two fixed half-year seasons: April 1 – September 30 and
// October 1 – March 31 of the following year. SeasonWindow returns the
// inclusive window enclosing t. January–March timestamps resolve to the season
// that started the previous October.
func SeasonWindow(t time.Time) (start, end time.Time) {
	year := t.Year()
	loc := t.Location()

	switch {
	case t.Month() >= time.April && t.Month() <= time.September:
		start = time.Date(year, time.April, 1, 0, 0, 0, 0, loc)
		end = time.Date(year, time.September, 30, 23, 59, 59, 0, loc)
	case t.Month() >= time.October:
		start = time.Date(year, time.October, 1, 0, 0, 0, 0, loc)
		end = time.Date(year+1, time.March, 31, 23, 59, 59, 0, loc)
	default:
		start = time.Date(year-1, time.October, 1, 0, 0, 0, 0, loc)
		end = time.Date(year, time.March, 31, 23, 59, 59, 0, loc)
	}
	return start, end
}
