// Package instrument turns the broker's scrip master into an immutable,
// indexed catalog and resolves human-readable requests (underlying, expiry,
// strike, option side) into exactly one tradable instrument.
//
// The catalog owns the strike descaling: the Angel One master stores option
// strikes multiplied by 100, so a catalog built with the default scale holds
// strikes in rupees and resolver queries are expressed in rupees too.
package instrument

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
)

// DefaultStrikeScale is the factor the Angel One master applies to strikes.
var DefaultStrikeScale = decimal.NewFromInt(100)

// tick_size is always quoted in paise.
var paisePerRupee = decimal.NewFromInt(100)

type nameKey struct {
	segment model.Segment
	name    string
}

type contractKey struct {
	segment model.Segment
	typ     model.InstrumentType
	name    string
}

type optionKey struct {
	contractKey
	expiry string
	strike string
	side   model.OptionSide
}

// Catalog is the indexed, read-only scrip master. It is safe for concurrent
// use; rebuilding means calling Load again and swapping the pointer.
type Catalog struct {
	rows        []model.Instrument
	byName      map[nameKey][]int
	byToken     map[string][]int
	byContract  map[contractKey][]int // sorted by expiry, then token
	byOption    map[optionKey][]int
	strikeScale decimal.Decimal
	loadedAt    time.Time
}

type loadOptions struct {
	strikeScale decimal.Decimal
	now         func() time.Time
}

// Option configures Load.
type Option func(*loadOptions)

// WithStrikeScale overrides the factor stored strikes are divided by.
// Pass 1 for a master that already carries strikes in currency units.
func WithStrikeScale(scale decimal.Decimal) Option {
	return func(o *loadOptions) { o.strikeScale = scale }
}

// WithClock sets the clock used to stamp LoadedAt.
func WithClock(now func() time.Time) Option {
	return func(o *loadOptions) { o.now = now }
}

// Load validates and normalizes raw master records into a Catalog.
// Any malformed record fails the whole load; a partial catalog is never returned.
func Load(records []RawRecord, opts ...Option) (*Catalog, error) {
	o := loadOptions{strikeScale: DefaultStrikeScale, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.strikeScale.IsPositive() {
		return nil, &LoadError{Row: -1, Reason: fmt.Sprintf("strike scale must be positive, got %s", o.strikeScale)}
	}
	if len(records) == 0 {
		return nil, &LoadError{Row: -1, Reason: "no records"}
	}

	c := &Catalog{
		rows:        make([]model.Instrument, 0, len(records)),
		byName:      make(map[nameKey][]int),
		byToken:     make(map[string][]int, len(records)),
		byContract:  make(map[contractKey][]int),
		byOption:    make(map[optionKey][]int),
		strikeScale: o.strikeScale,
	}

	for i, rec := range records {
		inst, err := normalize(i, rec, o.strikeScale)
		if err != nil {
			return nil, err
		}
		idx := len(c.rows)
		c.rows = append(c.rows, inst)

		nk := nameKey{segment: inst.Segment, name: inst.Name}
		c.byName[nk] = append(c.byName[nk], idx)
		c.byToken[inst.Key()] = append(c.byToken[inst.Key()], idx)

		if inst.Type.IsDerivative() {
			ck := contractKey{segment: inst.Segment, typ: inst.Type, name: inst.Name}
			c.byContract[ck] = append(c.byContract[ck], idx)
		}
		if inst.Type.IsOption() {
			ok := makeOptionKey(inst.Segment, inst.Type, inst.Name, inst.Expiry, inst.Strike, inst.Side)
			c.byOption[ok] = append(c.byOption[ok], idx)
		}
	}

	for _, idxs := range c.byContract {
		sort.SliceStable(idxs, func(a, b int) bool {
			ra, rb := c.rows[idxs[a]], c.rows[idxs[b]]
			if !ra.Expiry.Equal(rb.Expiry) {
				return ra.Expiry.Before(rb.Expiry)
			}
			return ra.Token < rb.Token
		})
	}

	c.loadedAt = o.now()
	return c, nil
}

func normalize(row int, rec RawRecord, scale decimal.Decimal) (model.Instrument, error) {
	for _, f := range requiredFields {
		if _, ok := rec.Get(f); !ok {
			return model.Instrument{}, &LoadError{Row: row, Field: f, Reason: "required field missing"}
		}
	}
	token, _ := rec.Get(FieldToken)
	if token == "" {
		return model.Instrument{}, &LoadError{Row: row, Field: FieldToken, Reason: "empty"}
	}
	seg, _ := rec.Get(FieldSegment)
	if seg == "" {
		return model.Instrument{}, &LoadError{Row: row, Field: FieldSegment, Reason: "empty"}
	}
	name, _ := rec.Get(FieldName)
	typ, _ := rec.Get(FieldInstrumentType)
	symbol, _ := rec.Get(FieldSymbol)

	inst := model.Instrument{
		Token:         token,
		TradingSymbol: symbol,
		Name:          name,
		Segment:       model.Segment(strings.ToUpper(seg)),
		Type:          model.InstrumentType(strings.ToUpper(typ)),
	}

	if raw, ok := rec.Get(FieldStrike); ok && raw != "" {
		strike, err := decimal.NewFromString(raw)
		if err != nil {
			return model.Instrument{}, &LoadError{Row: row, Field: FieldStrike, Reason: fmt.Sprintf("not a number: %q", raw)}
		}
		if inst.Type.IsOption() {
			inst.Strike = strike.Div(scale)
		}
	}

	rawExpiry, _ := rec.Get(FieldExpiry)
	if exp, ok := ParseExpiry(rawExpiry); ok {
		inst.Expiry = exp
	} else if inst.Type.IsDerivative() {
		return model.Instrument{}, &LoadError{Row: row, Field: FieldExpiry, Reason: fmt.Sprintf("unparsable expiry %q for %s", rawExpiry, inst.Type)}
	}

	lot, err := parseLotSize(rec)
	switch {
	case err == nil:
		inst.LotSize = lot
	case inst.Type.IsDerivative():
		return model.Instrument{}, &LoadError{Row: row, Field: FieldLotSize, Reason: err.Error()}
	default:
		inst.LotSize = 1
	}

	if raw, ok := rec.Get(FieldTickSize); ok && raw != "" {
		if tick, err := decimal.NewFromString(raw); err == nil && tick.IsPositive() {
			inst.TickSize = tick.Div(paisePerRupee)
		}
	}

	if inst.Type.IsOption() {
		side := model.OptionSide("")
		if len(symbol) >= 2 {
			side = model.OptionSide(strings.ToUpper(symbol[len(symbol)-2:]))
		}
		if !side.Valid() {
			return model.Instrument{}, &LoadError{Row: row, Field: FieldSymbol, Reason: fmt.Sprintf("option symbol %q does not end in CE or PE", symbol)}
		}
		inst.Side = side
	}

	return inst, nil
}

func parseLotSize(rec RawRecord) (int, error) {
	raw, ok := rec.Get(FieldLotSize)
	if !ok || raw == "" {
		return 0, fmt.Errorf("missing lot size")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// some dumps carry "25.000000"
		d, derr := decimal.NewFromString(raw)
		if derr != nil || !d.Equal(d.Truncate(0)) {
			return 0, fmt.Errorf("lot size %q is not an integer", raw)
		}
		n = int(d.IntPart())
	}
	if n <= 0 {
		return 0, fmt.Errorf("lot size %d is not positive", n)
	}
	return n, nil
}

func makeOptionKey(seg model.Segment, typ model.InstrumentType, name string, expiry time.Time, strike decimal.Decimal, side model.OptionSide) optionKey {
	return optionKey{
		contractKey: contractKey{segment: seg, typ: typ, name: name},
		expiry:      civilDate(expiry).Format("2006-01-02"),
		strike:      strike.String(),
		side:        side,
	}
}

// Len returns the number of instruments in the catalog.
func (c *Catalog) Len() int { return len(c.rows) }

// LoadedAt returns when the catalog was built.
func (c *Catalog) LoadedAt() time.Time { return c.loadedAt }

// StrikeScale returns the factor stored strikes were divided by.
func (c *Catalog) StrikeScale() decimal.Decimal { return c.strikeScale }

// ByToken looks up an instrument by its segment-scoped token.
func (c *Catalog) ByToken(segment model.Segment, token string) (model.Instrument, error) {
	q := Query{Segment: segment, Token: token}
	return c.unique("by token", q, c.byToken[string(segment)+":"+token])
}

// Expiries returns the distinct expiries listed for a derivative contract,
// nearest first.
func (c *Catalog) Expiries(name string, segment model.Segment, typ model.InstrumentType) []time.Time {
	idxs := c.byContract[contractKey{segment: segment, typ: typ, name: name}]
	out := make([]time.Time, 0, len(idxs))
	for _, idx := range idxs {
		exp := c.rows[idx].Expiry
		if n := len(out); n > 0 && out[n-1].Equal(exp) {
			continue
		}
		out = append(out, exp)
	}
	return out
}

func (c *Catalog) unique(op string, q Query, idxs []int) (model.Instrument, error) {
	switch len(idxs) {
	case 0:
		return model.Instrument{}, &ResolveError{Op: op, Query: q, Err: ErrNotFound}
	case 1:
		return c.rows[idxs[0]], nil
	default:
		return model.Instrument{}, &ResolveError{Op: op, Query: q, Matches: len(idxs), Err: ErrAmbiguousMatch}
	}
}

func (c *Catalog) collect(idxs []int, keep func(model.Instrument) bool) []int {
	out := make([]int, 0, len(idxs))
	for _, idx := range idxs {
		if keep == nil || keep(c.rows[idx]) {
			out = append(out, idx)
		}
	}
	return out
}
