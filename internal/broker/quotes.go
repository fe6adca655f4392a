package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
	"github.com/swapnilk30/AlgoTradingSetup01/pkg/smartconnect"
)

// LTPClient is the getLtpData call of *smartconnect.SmartConnect.
type LTPClient interface {
	LTP(ctx context.Context, exchange, tradingSymbol, token string) (*smartconnect.LTPData, error)
}

// RESTQuotes fetches last traded prices over REST.
type RESTQuotes struct {
	client LTPClient
}

// NewRESTQuotes creates a RESTQuotes.
func NewRESTQuotes(client LTPClient) *RESTQuotes {
	return &RESTQuotes{client: client}
}

// LTP returns the instrument's last traded price in rupees.
func (q *RESTQuotes) LTP(ctx context.Context, inst model.Instrument) (decimal.Decimal, error) {
	d, err := q.client.LTP(ctx, string(inst.Segment), inst.TradingSymbol, inst.Token)
	if err != nil {
		return decimal.Zero, err
	}
	px, err := decimal.NewFromString(d.LTP.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("broker: ltp %s: %w", inst.Key(), err)
	}
	if !px.IsPositive() {
		return decimal.Zero, fmt.Errorf("broker: ltp %s: non-positive price %s", inst.Key(), px)
	}
	return px, nil
}

var paise = decimal.NewFromInt(100)

// StreamDialer opens a market data stream.
type StreamDialer func(ctx context.Context) (TickStream, error)

// TickStream is the part of *smartconnect.Stream StreamQuotes uses.
type TickStream interface {
	Subscribe(correlationID string, mode int, tokenList []smartconnect.TokenListEntry) error
	Unsubscribe(correlationID string, mode int, tokenList []smartconnect.TokenListEntry) error
	ReadTick(ctx context.Context) (smartconnect.Tick, error)
	Close() error
}

// StreamQuotes reads the first LTP tick for an instrument from SmartStream.
// Each call opens its own connection.
type StreamQuotes struct {
	dial StreamDialer
}

// NewStreamQuotes creates a StreamQuotes.
func NewStreamQuotes(dial StreamDialer) *StreamQuotes {
	return &StreamQuotes{dial: dial}
}

// DialSmartStream returns a StreamDialer for cfg.
func DialSmartStream(cfg smartconnect.StreamConfig) StreamDialer {
	return func(ctx context.Context) (TickStream, error) {
		return smartconnect.DialStream(ctx, cfg)
	}
}

// LTP subscribes in LTP mode and waits for a tick on inst's token. Callers
// bound the wait through ctx.
func (q *StreamQuotes) LTP(ctx context.Context, inst model.Instrument) (decimal.Decimal, error) {
	exch, ok := smartconnect.ExchangeType(string(inst.Segment))
	if !ok {
		return decimal.Zero, fmt.Errorf("broker: no stream exchange for segment %q", inst.Segment)
	}
	s, err := q.dial(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer s.Close()

	corrID := "ltp-" + inst.Token
	tokens := []smartconnect.TokenListEntry{{ExchangeType: exch, Tokens: []string{inst.Token}}}
	if err := s.Subscribe(corrID, smartconnect.ModeLTP, tokens); err != nil {
		return decimal.Zero, fmt.Errorf("broker: subscribe %s: %w", inst.Key(), err)
	}
	// runs before the deferred Close
	defer func() {
		if err := s.Unsubscribe(corrID, smartconnect.ModeLTP, tokens); err != nil {
			slog.Debug("broker: unsubscribe failed", "token", inst.Token, "error", err)
		}
	}()

	for {
		tick, err := s.ReadTick(ctx)
		if err != nil {
			return decimal.Zero, fmt.Errorf("broker: stream ltp %s: %w", inst.Key(), err)
		}
		if tick.Token != inst.Token || tick.ExchangeType != exch {
			continue
		}
		if tick.LastTradedPrice <= 0 {
			slog.Debug("broker: skipping empty tick", "token", tick.Token)
			continue
		}
		return decimal.NewFromInt(tick.LastTradedPrice).Div(paise), nil
	}
}
