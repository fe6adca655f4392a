package instrument

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Field names of the upstream scrip master.
const (
	FieldToken          = "token"
	FieldSymbol         = "symbol"
	FieldName           = "name"
	FieldExpiry         = "expiry"
	FieldStrike         = "strike"
	FieldLotSize        = "lotsize"
	FieldInstrumentType = "instrumenttype"
	FieldSegment        = "exch_seg"
	FieldTickSize       = "tick_size"
)

var requiredFields = []string{FieldToken, FieldName, FieldSegment, FieldInstrumentType}

// RawRecord is one object of the master file as decoded from JSON.
// Unknown keys are ignored.
type RawRecord map[string]any

// Get returns the field as a trimmed string. ok is false when the key is
// absent or null.
func (r RawRecord) Get(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", true
		}
		return string(b), true
	}
}

// expiryLayouts are tried in order. Month names match case-insensitively,
// so "05DEC2024" parses with the first layout.
var expiryLayouts = []string{
	"02Jan2006",
	"2006-01-02",
	"02-Jan-2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"02Jan06",
}

// ParseExpiry parses a master expiry string into a civil date at 00:00 UTC.
func ParseExpiry(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civilDate(t), true
		}
	}
	return time.Time{}, false
}

// civilDate drops the clock, keeping the calendar date as seen in t's location.
func civilDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
