// Package strategy runs one evaluation of the short straddle: resolve the
// spot index, quote it, derive the ATM strike, resolve the CE and PE legs
// and hand both orders to the broker.
//
// Planning is all-or-nothing: if either leg fails to resolve, build or pass
// the risk check, nothing is submitted. Submission is not atomic: each leg is
// sent independently and a partial fill is reported, never rolled back.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/instrument"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/logger"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/order"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/strike"
)

// QuoteSource returns the last traded price of an instrument.
type QuoteSource interface {
	LTP(ctx context.Context, inst model.Instrument) (decimal.Decimal, error)
}

// OrderSubmitter places an order and returns the broker's order id.
type OrderSubmitter interface {
	Submit(ctx context.Context, req model.OrderRequest) (string, error)
}

// RiskChecker gates built orders.
type RiskChecker interface {
	CanTrade(req model.OrderRequest, lots int) (bool, string)
	CanPlace(n int) (bool, string)
	RecordPlaced(req model.OrderRequest)
}

// Config describes the straddle to place.
type Config struct {
	Underlying   string
	SpotSegment  model.Segment
	OptionType   model.InstrumentType
	Expiry       time.Time // zero selects the nearest listed expiry
	StrikeStep   int64
	StrikeOffset int
	Lots         int
	Side         model.TransactionSide
	OrderType    model.OrderType
	ProductType  model.ProductType
}

// Validate checks the static parts of the configuration.
func (c Config) Validate() error {
	switch {
	case c.Underlying == "":
		return errors.New("straddle: underlying is required")
	case !c.OptionType.IsOption():
		return fmt.Errorf("straddle: %q is not an options type", c.OptionType)
	case c.StrikeStep <= 0:
		return fmt.Errorf("straddle: strike step must be positive, got %d", c.StrikeStep)
	case c.Lots <= 0:
		return fmt.Errorf("straddle: lots must be positive, got %d", c.Lots)
	case c.OrderType != model.OrderMarket && c.OrderType != model.OrderLimit:
		return fmt.Errorf("straddle: order type must be MARKET or LIMIT, got %q", c.OrderType)
	case c.Side != model.Buy && c.Side != model.Sell:
		return fmt.Errorf("straddle: side must be BUY or SELL, got %q", c.Side)
	}
	return nil
}

// Leg is one resolved and built side of the straddle.
type Leg struct {
	Side       model.OptionSide
	Instrument model.Instrument
	Request    model.OrderRequest
}

// Plan is a fully resolved straddle, ready to submit.
type Plan struct {
	RunID  string
	Spot   model.Instrument
	LTP    decimal.Decimal
	ATM    decimal.Decimal
	Strike decimal.Decimal
	Expiry time.Time
	Legs   []Leg
}

// LegResult is the outcome of submitting one leg.
type LegResult struct {
	Side    model.OptionSide
	Request model.OrderRequest
	OrderID string
	Err     error
}

// Result collects the per-leg outcomes of Execute.
type Result struct {
	Plan *Plan
	Legs []LegResult
}

// Placed returns the legs that were accepted by the broker.
func (r *Result) Placed() []LegResult {
	var out []LegResult
	for _, l := range r.Legs {
		if l.Err == nil {
			out = append(out, l)
		}
	}
	return out
}

// Straddle wires the resolver to the quote, risk and submission capabilities.
type Straddle struct {
	cfg      Config
	resolver *instrument.Resolver
	quotes   QuoteSource
	orders   OrderSubmitter
	risk     RiskChecker
	now      func() time.Time

	// OnOrder, if set, is called after each leg submission.
	OnOrder func(side model.OptionSide, err error)
}

// New creates a Straddle. risk may be nil.
func New(cfg Config, resolver *instrument.Resolver, quotes QuoteSource, orders OrderSubmitter, risk RiskChecker) (*Straddle, error) {
	if cfg.SpotSegment == "" {
		cfg.SpotSegment = model.SegmentNSE
	}
	if cfg.ProductType == "" {
		cfg.ProductType = model.ProductIntraday
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if resolver == nil || quotes == nil || orders == nil {
		return nil, errors.New("straddle: resolver, quote source and order submitter are required")
	}
	return &Straddle{
		cfg:      cfg,
		resolver: resolver,
		quotes:   quotes,
		orders:   orders,
		risk:     risk,
		now:      time.Now,
	}, nil
}

// SetClock overrides the clock used for nearest-expiry selection.
func (s *Straddle) SetClock(now func() time.Time) { s.now = now }

// Plan resolves and builds both legs without submitting anything.
func (s *Straddle) Plan(ctx context.Context) (*Plan, error) {
	runID := logger.RunID(ctx)
	if runID == "" {
		runID = logger.NewRunID()
		ctx = logger.WithRunID(ctx, runID)
	}
	p := &Plan{RunID: runID}

	spot, err := s.resolver.ResolveIndex(s.cfg.Underlying, s.cfg.SpotSegment)
	if err != nil {
		return nil, fmt.Errorf("straddle: spot: %w", err)
	}
	p.Spot = spot

	ltp, err := s.quotes.LTP(ctx, spot)
	if err != nil {
		return nil, fmt.Errorf("straddle: quote %s: %w", spot.Key(), err)
	}
	p.LTP = ltp

	atm, err := strike.ComputeATM(ltp, s.cfg.StrikeStep)
	if err != nil {
		return nil, fmt.Errorf("straddle: atm: %w", err)
	}
	p.ATM = atm

	p.Strike, err = strike.Offset(atm, s.cfg.StrikeStep, s.cfg.StrikeOffset)
	if err != nil {
		return nil, fmt.Errorf("straddle: strike: %w", err)
	}

	p.Expiry = s.cfg.Expiry
	if p.Expiry.IsZero() {
		p.Expiry, err = s.resolver.NearestExpiry(s.cfg.Underlying, s.cfg.OptionType, s.now())
		if err != nil {
			return nil, fmt.Errorf("straddle: expiry: %w", err)
		}
	}

	slog.Info("straddle: planning",
		append(logger.Attrs(ctx),
			"underlying", s.cfg.Underlying,
			"ltp", ltp.String(),
			"atm", atm.String(),
			"strike", p.Strike.String(),
			"expiry", p.Expiry.Format("2006-01-02"),
		)...)

	for _, side := range []model.OptionSide{model.Call, model.Put} {
		leg, err := s.buildLeg(ctx, p, side)
		if err != nil {
			return nil, err
		}
		p.Legs = append(p.Legs, leg)
	}
	if err := s.checkRoom(len(p.Legs)); err != nil {
		return nil, err
	}
	return p, nil
}

// checkRoom rejects an entry whose legs do not all fit under the daily cap.
func (s *Straddle) checkRoom(n int) error {
	if s.risk == nil {
		return nil
	}
	if ok, reason := s.risk.CanPlace(n); !ok {
		return fmt.Errorf("straddle: %w: %s", ErrRiskRejected, reason)
	}
	return nil
}

func (s *Straddle) buildLeg(ctx context.Context, p *Plan, side model.OptionSide) (Leg, error) {
	inst, err := s.resolver.ResolveOption(s.cfg.Underlying, s.cfg.OptionType, p.Strike, side, p.Expiry)
	if err != nil {
		return Leg{}, &LegError{Side: side, Stage: StageResolve, Err: err}
	}

	params := order.Params{
		Side:        s.cfg.Side,
		Lots:        s.cfg.Lots,
		OrderType:   s.cfg.OrderType,
		ProductType: s.cfg.ProductType,
		Tag:         orderTag(p.RunID, side),
	}
	if s.cfg.OrderType.RequiresPrice() {
		params.Price, err = s.quotes.LTP(ctx, inst)
		if err != nil {
			return Leg{}, &LegError{Side: side, Stage: StageQuote, Err: err}
		}
	}

	req, err := order.Build(inst, params)
	if err != nil {
		return Leg{}, &LegError{Side: side, Stage: StageBuild, Err: err}
	}

	if s.risk != nil {
		if ok, reason := s.risk.CanTrade(req, s.cfg.Lots); !ok {
			return Leg{}, &LegError{Side: side, Stage: StageRisk, Err: fmt.Errorf("%w: %s", ErrRiskRejected, reason)}
		}
	}
	return Leg{Side: side, Instrument: inst, Request: req}, nil
}

// Execute submits every leg of p in order. Nothing is sent when the legs no
// longer fit under the daily order cap. A failing leg does not stop the
// next one. The returned error wraps ErrPartialExecution when some legs were
// placed, ErrExecutionFailed when none were, and a *SubmissionError per failed leg.
func (s *Straddle) Execute(ctx context.Context, p *Plan) (*Result, error) {
	ctx = logger.WithRunID(ctx, p.RunID)
	// the plan may have been built before other orders used up the cap
	if err := s.checkRoom(len(p.Legs)); err != nil {
		return nil, err
	}
	res := &Result{Plan: p}

	var failed []error
	for _, leg := range p.Legs {
		lr := LegResult{Side: leg.Side, Request: leg.Request}
		id, err := s.orders.Submit(ctx, leg.Request)
		if err != nil {
			lr.Err = &SubmissionError{Side: leg.Side, Request: leg.Request, Err: err}
			failed = append(failed, lr.Err)
			slog.Error("straddle: leg rejected", append(logger.Attrs(ctx),
				"leg", leg.Side, "symbol", leg.Request.TradingSymbol, "error", err)...)
		} else {
			lr.OrderID = id
			if s.risk != nil {
				s.risk.RecordPlaced(leg.Request)
			}
			slog.Info("straddle: leg placed", append(logger.Attrs(ctx),
				"leg", leg.Side, "symbol", leg.Request.TradingSymbol,
				"qty", leg.Request.Quantity, "order_id", id)...)
		}
		if s.OnOrder != nil {
			s.OnOrder(leg.Side, lr.Err)
		}
		res.Legs = append(res.Legs, lr)
	}

	switch {
	case len(failed) == 0:
		return res, nil
	case len(failed) == len(p.Legs):
		return res, fmt.Errorf("%w: %w", ErrExecutionFailed, errors.Join(failed...))
	default:
		return res, fmt.Errorf("%w: %w", ErrPartialExecution, errors.Join(failed...))
	}
}

// Run plans and executes one straddle.
func (s *Straddle) Run(ctx context.Context) (*Result, error) {
	p, err := s.Plan(ctx)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, p)
}

// OrderTagPrefix starts the ordertag of every straddle leg.
const OrderTagPrefix = "STR-"

// orderTag fits SmartAPI's 20 character ordertag limit.
func orderTag(runID string, side model.OptionSide) string {
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return OrderTagPrefix + runID + "-" + string(side)
}
