package tradingday

import (
	"fmt"
	"time"
)

// NewYork is the exchange time zone. DST-aware, so it must come from the
// zone database rather than a fixed offset.
var NewYork = loadNewYork()

func loadNewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("tradingday: load America/New_York: " + err.Error())
	}
	return loc
}

// BoundaryHour is the trading-day rollover hour in ET. Bars before 04:00
// belong to the previous day's session (late post-market prints).
const BoundaryHour = 4

// Regular NYSE session hours in ET.
const (
	OpenHour        = 9
	OpenMinute      = 30
	CloseHour       = 16
	CloseMinute     = 0
	HalfDayCloseHr  = 13
	HalfDayCloseMin = 0
)

// TradingDay is one scanner day: the 24h window starting at 04:00 ET.
type TradingDay struct {
	DayID    string // YYYYMMDD
	StartUTC time.Time
	EndUTC   time.Time
}

// dayDate returns the ET calendar date the instant belongs to, applying
// the 04:00 boundary.
func dayDate(t time.Time) time.Time {
	et := t.In(NewYork)
	if et.Hour() < BoundaryHour {
		et = et.AddDate(0, 0, -1)
	}
	return time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, NewYork)
}

// DayID returns the trading-day id (YYYYMMDD) for the instant.
func DayID(t time.Time) string {
	return dayDate(t).Format("20060102")
}

// Current returns the trading day containing the instant.
func Current(t time.Time) TradingDay {
	d := dayDate(t)
	start := time.Date(d.Year(), d.Month(), d.Day(), BoundaryHour, 0, 0, 0, NewYork)
	return TradingDay{
		DayID:    d.Format("20060102"),
		StartUTC: start.UTC(),
		EndUTC:   start.Add(24 * time.Hour).UTC(),
	}
}

// IsWeekday returns true if t is Mon-Fri in ET.
func IsWeekday(t time.Time) bool {
	wd := t.In(NewYork).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a full holiday.
func IsTradingDay(t time.Time) bool {
	et := t.In(NewYork)
	return IsWeekday(et) && !IsHoliday(et)
}

// SessionClose returns the closing time of t's session in ET
// (13:00 on half days, 16:00 otherwise).
func SessionClose(t time.Time) time.Time {
	et := t.In(NewYork)
	h, m := CloseHour, CloseMinute
	if IsHalfDay(et) {
		h, m = HalfDayCloseHr, HalfDayCloseMin
	}
	return time.Date(et.Year(), et.Month(), et.Day(), h, m, 0, 0, NewYork)
}

// IsMarketOpen returns true if t falls within the regular NYSE session
// (9:30 AM ET to the session close, Mon-Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	et := t.In(NewYork)
	if !IsTradingDay(et) {
		return false
	}
	open := time.Date(et.Year(), et.Month(), et.Day(), OpenHour, OpenMinute, 0, 0, NewYork)
	return !et.Before(open) && et.Before(SessionClose(et))
}

// NextOpen returns the next regular session open (9:30 AM ET on the next
// trading day). If t is before today's open on a trading day, returns
// today's open.
func NextOpen(t time.Time) time.Time {
	et := t.In(NewYork)

	todayOpen := time.Date(et.Year(), et.Month(), et.Day(), OpenHour, OpenMinute, 0, 0, NewYork)
	if et.Before(todayOpen) && IsTradingDay(et) {
		return todayOpen
	}

	d := et.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ {
		if IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, NewYork)
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(et.Year(), et.Month(), et.Day()+1, OpenHour, OpenMinute, 0, 0, NewYork)
}

// TimeUntilClose returns the duration until the session close, 0 when the
// market is already closed.
func TimeUntilClose(t time.Time) time.Duration {
	d := SessionClose(t).Sub(t.In(NewYork))
	if d < 0 {
		return 0
	}
	return d
}

// StatusString returns a human-readable market status for health output.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("open, closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	et := next.In(NewYork)
	return fmt.Sprintf("closed, opens %s %s ET (%s)",
		et.Weekday().String()[:3], et.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
