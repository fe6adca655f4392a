// Package markethours answers NSE session questions in IST: whether the
// market is open, the next open, and time to close.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Market hours in IST
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30

	// wake before open for login and master refresh
	PreOpenMinutesBefore = 5
)

// Calendar is an immutable trading calendar.
type Calendar struct {
	holidays map[string]bool
}

// NewCalendar builds a calendar from "2006-01-02" holiday dates.
// A nil slice means DefaultHolidays.
func NewCalendar(holidays []string) (*Calendar, error) {
	if holidays == nil {
		holidays = DefaultHolidays
	}
	set, err := ParseHolidays(holidays)
	if err != nil {
		return nil, err
	}
	return &Calendar{holidays: set}, nil
}

// Default returns a calendar over DefaultHolidays.
func Default() *Calendar {
	c, err := NewCalendar(DefaultHolidays)
	if err != nil {
		panic(err)
	}
	return c
}

// IsHoliday reports whether t's IST date is a listed holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidays[dateKey(t)]
}

// IsWeekday returns true if t is Mon–Fri in IST.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	return IsWeekday(t) && !c.IsHoliday(t)
}

// IsMarketOpen returns true if t falls within 9:15–15:30 IST on a trading day.
func (c *Calendar) IsMarketOpen(t time.Time) bool {
	ist := t.In(IST)
	if !c.IsTradingDay(ist) {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// NextOpen returns the next market open at or after t. If t is before
// today's open on a trading day, that is today's open.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	ist := t.In(IST)
	todayOpen := openOn(ist)
	if ist.Before(todayOpen) && c.IsTradingDay(ist) {
		return todayOpen
	}
	d := ist.AddDate(0, 0, 1)
	// a month covers any run of weekends plus holidays
	for i := 0; i < 31; i++ {
		if c.IsTradingDay(d) {
			return openOn(d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return openOn(ist.AddDate(0, 0, 1))
}

// NextPreOpen is PreOpenMinutesBefore minutes before NextOpen.
func (c *Calendar) NextPreOpen(t time.Time) time.Time {
	return c.NextOpen(t).Add(-PreOpenMinutesBefore * time.Minute)
}

// TodayClose returns 15:30 IST on t's date.
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// TimeUntilClose returns the duration until today's close, 0 once closed.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// StatusString returns a human-readable market status.
func (c *Calendar) StatusString(t time.Time) string {
	if c.IsMarketOpen(t) {
		return fmt.Sprintf("market open, closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := c.NextOpen(t)
	ist := next.In(IST)
	return fmt.Sprintf("market closed, opens %s %s %s (in %s)",
		ist.Weekday().String()[:3], ist.Format("02 Jan"), ist.Format("15:04"), fmtDur(next.Sub(t)))
}

func openOn(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), OpenHour, OpenMinute, 0, 0, IST)
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
