package tradingday

import "time"

// NYSE full-closure holidays, 2024-2026.
// Source: NYSE official holiday calendar.
var nyseHolidays = []struct {
	year  int
	month time.Month
	day   int
}{
	{2024, time.January, 1},   // New Year's Day
	{2024, time.January, 15},  // Martin Luther King, Jr. Day
	{2024, time.February, 19}, // Washington's Birthday
	{2024, time.March, 29},    // Good Friday
	{2024, time.May, 27},      // Memorial Day
	{2024, time.June, 19},     // Juneteenth
	{2024, time.July, 4},      // Independence Day
	{2024, time.September, 2}, // Labor Day
	{2024, time.November, 28}, // Thanksgiving Day
	{2024, time.December, 25}, // Christmas Day

	{2025, time.January, 1},   // New Year's Day
	{2025, time.January, 9},   // National Day of Mourning
	{2025, time.January, 20},  // Martin Luther King, Jr. Day
	{2025, time.February, 17}, // Washington's Birthday
	{2025, time.April, 18},    // Good Friday
	{2025, time.May, 26},      // Memorial Day
	{2025, time.June, 19},     // Juneteenth
	{2025, time.July, 4},      // Independence Day
	{2025, time.September, 1}, // Labor Day
	{2025, time.November, 27}, // Thanksgiving Day
	{2025, time.December, 25}, // Christmas Day

	{2026, time.January, 1},   // New Year's Day
	{2026, time.January, 19},  // Martin Luther King, Jr. Day
	{2026, time.February, 16}, // Washington's Birthday
	{2026, time.April, 3},     // Good Friday
	{2026, time.May, 25},      // Memorial Day
	{2026, time.June, 19},     // Juneteenth
	{2026, time.July, 3},      // Independence Day (observed)
	{2026, time.September, 7}, // Labor Day
	{2026, time.November, 26}, // Thanksgiving Day
	{2026, time.December, 25}, // Christmas Day
}

// Early closes (13:00 ET).
var nyseHalfDays = []struct {
	year  int
	month time.Month
	day   int
}{
	{2024, time.July, 3},
	{2024, time.November, 29},
	{2024, time.December, 24},

	{2025, time.July, 3},
	{2025, time.November, 28},
	{2025, time.December, 24},

	{2026, time.November, 27},
	{2026, time.December, 24},
}

// pre-compute for fast lookup
var (
	holidaySet map[string]bool
	halfDaySet map[string]bool
)

func init() {
	holidaySet = make(map[string]bool, len(nyseHolidays))
	for _, h := range nyseHolidays {
		holidaySet[dateKey(h.year, h.month, h.day)] = true
	}
	halfDaySet = make(map[string]bool, len(nyseHalfDays))
	for _, h := range nyseHalfDays {
		halfDaySet[dateKey(h.year, h.month, h.day)] = true
	}
}

// IsHoliday returns true if the date (in ET) is a full NYSE closure.
func IsHoliday(t time.Time) bool {
	et := t.In(NewYork)
	return holidaySet[dateKey(et.Year(), et.Month(), et.Day())]
}

// IsHalfDay returns true if the date (in ET) is an early close.
func IsHalfDay(t time.Time) bool {
	et := t.In(NewYork)
	return halfDaySet[dateKey(et.Year(), et.Month(), et.Day())]
}

func dateKey(year int, month time.Month, day int) string {
	return time.Date(year, month, day, 0, 0, 0, 0, NewYork).Format("2006-01-02")
}
