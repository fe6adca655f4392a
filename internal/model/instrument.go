package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Segment is the exchange segment an instrument trades on (the master's exch_seg).
type Segment string

const (
	SegmentNSE Segment = "NSE"
	SegmentNFO Segment = "NFO"
	SegmentBSE Segment = "BSE"
	SegmentBFO Segment = "BFO"
	SegmentMCX Segment = "MCX"
	SegmentCDS Segment = "CDS"
)

// InstrumentType is the master's instrumenttype column. Cash equities carry an
// empty type in the Angel One master; EQ is accepted as an alias.
type InstrumentType string

const (
	TypeEquity      InstrumentType = "EQ"
	TypeIndex       InstrumentType = "AMXIDX"
	TypeFutureStock InstrumentType = "FUTSTK"
	TypeFutureIndex InstrumentType = "FUTIDX"
	TypeOptionStock InstrumentType = "OPTSTK"
	TypeOptionIndex InstrumentType = "OPTIDX"
)

// IsOption reports whether the type is an option contract (OPTSTK, OPTIDX, OPTCUR, ...).
func (t InstrumentType) IsOption() bool {
	return strings.HasPrefix(string(t), "OPT")
}

// IsFuture reports whether the type is a futures contract.
func (t InstrumentType) IsFuture() bool {
	return strings.HasPrefix(string(t), "FUT")
}

// IsDerivative reports whether rows of this type must carry an expiry.
func (t InstrumentType) IsDerivative() bool {
	return t.IsOption() || t.IsFuture()
}

// OptionSide is CE (call) or PE (put).
type OptionSide string

const (
	Call OptionSide = "CE"
	Put  OptionSide = "PE"
)

// Valid reports whether s is CE or PE.
func (s OptionSide) Valid() bool {
	return s == Call || s == Put
}

// Instrument is one normalized row of the scrip master.
// Expiry is a civil date at 00:00 UTC; the zero time means no expiry.
// Strike is in currency units and is zero for non-option rows.
type Instrument struct {
	Token         string          `json:"token"`
	TradingSymbol string          `json:"trading_symbol"`
	Name          string          `json:"name"`
	Segment       Segment         `json:"segment"`
	Type          InstrumentType  `json:"instrument_type"`
	Expiry        time.Time       `json:"expiry,omitempty"`
	Strike        decimal.Decimal `json:"strike"`
	LotSize       int             `json:"lot_size"`
	TickSize      decimal.Decimal `json:"tick_size"`
	Side          OptionSide      `json:"option_side,omitempty"`
}

// Key returns a unique key for this instrument: "segment:token".
func (i *Instrument) Key() string {
	return string(i.Segment) + ":" + i.Token
}

// HasExpiry reports whether the row carries an expiry date.
func (i *Instrument) HasExpiry() bool {
	return !i.Expiry.IsZero()
}
