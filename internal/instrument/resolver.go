package instrument

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
)

// Query is one lookup against the catalog. Zero fields are unspecified.
type Query struct {
	Name    string
	Segment model.Segment
	Type    model.InstrumentType
	Strike  decimal.Decimal
	Side    model.OptionSide
	Expiry  time.Time
	Token   string
}

func (q Query) String() string {
	parts := make([]string, 0, 7)
	if q.Segment != "" {
		parts = append(parts, "segment="+string(q.Segment))
	}
	if q.Type != "" {
		parts = append(parts, "type="+string(q.Type))
	}
	if q.Name != "" {
		parts = append(parts, "name="+q.Name)
	}
	if !q.Expiry.IsZero() {
		parts = append(parts, "expiry="+q.Expiry.Format("2006-01-02"))
	}
	if !q.Strike.IsZero() {
		parts = append(parts, "strike="+q.Strike.String())
	}
	if q.Side != "" {
		parts = append(parts, "side="+string(q.Side))
	}
	if q.Token != "" {
		parts = append(parts, "token="+q.Token)
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Resolver answers lookups against one catalog snapshot.
type Resolver struct {
	cat *Catalog

	// OnResolve, if set, is called after every lookup with the operation name
	// and the resulting error (nil on success).
	OnResolve func(op string, err error)
}

// NewResolver returns a resolver over cat.
func NewResolver(cat *Catalog) *Resolver {
	return &Resolver{cat: cat}
}

// Catalog returns the snapshot the resolver reads.
func (r *Resolver) Catalog() *Catalog { return r.cat }

func (r *Resolver) observe(op string, err error) {
	if r.OnResolve != nil {
		r.OnResolve(op, err)
	}
}

// ResolveEquityOrIndex returns the single row listed under name on segment.
func (r *Resolver) ResolveEquityOrIndex(name string, segment model.Segment) (model.Instrument, error) {
	q := Query{Name: name, Segment: segment}
	inst, err := r.cat.unique("resolve equity", q, r.cat.byName[nameKey{segment: segment, name: name}])
	r.observe("equity", err)
	return inst, err
}

// ResolveIndex is ResolveEquityOrIndex restricted to AMXIDX rows, so a cash
// equity sharing the index name cannot make the spot lookup ambiguous.
func (r *Resolver) ResolveIndex(name string, segment model.Segment) (model.Instrument, error) {
	q := Query{Name: name, Segment: segment, Type: model.TypeIndex}
	idxs := r.cat.collect(r.cat.byName[nameKey{segment: segment, name: name}], func(i model.Instrument) bool {
		return i.Type == model.TypeIndex
	})
	inst, err := r.cat.unique("resolve index", q, idxs)
	r.observe("index", err)
	return inst, err
}

// ResolveFuture lists the NFO futures of name, nearest expiry first.
// No match is an empty slice, not an error.
func (r *Resolver) ResolveFuture(name string, typ model.InstrumentType) ([]model.Instrument, error) {
	q := Query{Name: name, Segment: model.SegmentNFO, Type: typ}
	if !typ.IsFuture() {
		err := &ResolveError{Op: "resolve future", Query: q, Err: fmt.Errorf("%w: %q is not a futures type", ErrInvalidQuery, typ)}
		r.observe("future", err)
		return nil, err
	}
	idxs := r.cat.byContract[contractKey{segment: model.SegmentNFO, typ: typ, name: name}]
	out := make([]model.Instrument, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, r.cat.rows[idx])
	}
	r.observe("future", nil)
	return out, nil
}

// ResolveOption returns the single NFO option matching every key field.
// strike is in currency units and must equal the catalog's descaled strike exactly.
func (r *Resolver) ResolveOption(name string, typ model.InstrumentType, strike decimal.Decimal, side model.OptionSide, expiry time.Time) (model.Instrument, error) {
	q := Query{Name: name, Segment: model.SegmentNFO, Type: typ, Strike: strike, Side: side, Expiry: civilDate(expiry)}
	if err := validateOptionQuery(q); err != nil {
		err = &ResolveError{Op: "resolve option", Query: q, Err: err}
		r.observe("option", err)
		return model.Instrument{}, err
	}

	key := makeOptionKey(q.Segment, typ, name, q.Expiry, strike, side)
	idxs := r.cat.collect(r.cat.byOption[key], func(i model.Instrument) bool {
		return i.Strike.Equal(strike) && i.Expiry.Equal(q.Expiry)
	})
	inst, err := r.cat.unique("resolve option", q, idxs)
	r.observe("option", err)
	return inst, err
}

func validateOptionQuery(q Query) error {
	switch {
	case !q.Type.IsOption():
		return fmt.Errorf("%w: %q is not an options type", ErrInvalidQuery, q.Type)
	case !q.Side.Valid():
		return fmt.Errorf("%w: option side %q", ErrInvalidQuery, q.Side)
	case !q.Strike.IsPositive():
		return fmt.Errorf("%w: strike %s", ErrInvalidQuery, q.Strike)
	case q.Expiry.IsZero():
		return fmt.Errorf("%w: expiry required", ErrInvalidQuery)
	}
	return nil
}

// NearestExpiry returns the first listed expiry of name/typ on NFO that falls
// on or after asOf's calendar date.
func (r *Resolver) NearestExpiry(name string, typ model.InstrumentType, asOf time.Time) (time.Time, error) {
	q := Query{Name: name, Segment: model.SegmentNFO, Type: typ}
	if !typ.IsDerivative() {
		return time.Time{}, &ResolveError{Op: "nearest expiry", Query: q, Err: fmt.Errorf("%w: %q has no expiry", ErrInvalidQuery, typ)}
	}
	day := civilDate(asOf)
	for _, exp := range r.cat.Expiries(name, model.SegmentNFO, typ) {
		if !exp.Before(day) {
			return exp, nil
		}
	}
	return time.Time{}, &ResolveError{Op: "nearest expiry", Query: q, Err: ErrNotFound}
}
