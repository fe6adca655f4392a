package markethours

import (
	"fmt"
	"time"
)

// DefaultHolidays is the NSE trading holiday list for 2026, as published
// by the exchange. Dates marked tentative may move; override them with
// market.holidays in the config file.
var DefaultHolidays = []string{
	"2026-01-26", // Republic Day
	"2026-02-17", // Mahashivratri (tentative)
	"2026-03-14", // Holi
	"2026-03-31", // Id-ul-Fitr (tentative)
	"2026-04-02", // Ram Navami (tentative)
	"2026-04-06", // Mahavir Jayanti
	"2026-04-10", // Good Friday
	"2026-04-14", // Dr. Ambedkar Jayanti
	"2026-05-01", // Maharashtra Day
	"2026-06-07", // Bakrid (tentative)
	"2026-07-06", // Muharram (tentative)
	"2026-08-15", // Independence Day
	"2026-08-16", // Janmashtami (tentative)
	"2026-09-05", // Milad-un-Nabi (tentative)
	"2026-10-02", // Mahatma Gandhi Jayanti
	"2026-10-20", // Dussehra
	"2026-10-21", // Dussehra (tentative)
	"2026-11-05", // Diwali Lakshmi Puja (tentative)
	"2026-11-06", // Diwali Balipratipada (tentative)
	"2026-11-07", // Bhai Dooj (tentative)
	"2026-11-19", // Guru Nanak Jayanti
	"2026-12-25", // Christmas
}

const dateLayout = "2006-01-02"

// ParseHolidays parses "2006-01-02" dates into a lookup set.
func ParseHolidays(dates []string) (map[string]bool, error) {
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		t, err := time.ParseInLocation(dateLayout, d, IST)
		if err != nil {
			return nil, fmt.Errorf("markethours: holiday %q: %w", d, err)
		}
		set[t.Format(dateLayout)] = true
	}
	return set, nil
}

func dateKey(t time.Time) string {
	return t.In(IST).Format(dateLayout)
}
