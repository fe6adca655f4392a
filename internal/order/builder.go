// Package order turns a resolved instrument and trade parameters into an
// OrderRequest for the broker submission layer.
package order

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
)

var (
	ErrInvalidQuantity = errors.New("order: invalid quantity")
	ErrInvalidPrice    = errors.New("order: invalid price")
	ErrInvalidOrder    = errors.New("order: invalid order")
)

// Params are the trade parameters of one leg. Zero ProductType, Duration
// and Variety take the defaults INTRADAY, DAY and NORMAL (STOPLOSS for
// stop-loss order types).
type Params struct {
	Side         model.TransactionSide
	Lots         int
	OrderType    model.OrderType
	Price        decimal.Decimal
	TriggerPrice decimal.Decimal
	ProductType  model.ProductType
	Duration     model.Duration
	Variety      model.Variety
	Tag          string
}

// Build validates p against inst and returns the order request.
// Quantity is always p.Lots * inst.LotSize.
func Build(inst model.Instrument, p Params) (model.OrderRequest, error) {
	switch p.Side {
	case model.Buy, model.Sell:
	default:
		return model.OrderRequest{}, fmt.Errorf("%w: side %q", ErrInvalidOrder, p.Side)
	}
	switch p.OrderType {
	case model.OrderMarket, model.OrderLimit, model.OrderStopLossLimit, model.OrderStopLossMarket:
	default:
		return model.OrderRequest{}, fmt.Errorf("%w: order type %q", ErrInvalidOrder, p.OrderType)
	}
	if inst.Token == "" {
		return model.OrderRequest{}, fmt.Errorf("%w: instrument has no token", ErrInvalidOrder)
	}

	qty, err := quantity(p.Lots, inst.LotSize)
	if err != nil {
		return model.OrderRequest{}, err
	}

	price, trigger := p.Price, p.TriggerPrice
	if price.IsNegative() || trigger.IsNegative() {
		return model.OrderRequest{}, fmt.Errorf("%w: negative price %s / trigger %s", ErrInvalidPrice, price, trigger)
	}
	if p.OrderType.RequiresPrice() && !price.IsPositive() {
		return model.OrderRequest{}, fmt.Errorf("%w: %s order needs a positive price, got %s", ErrInvalidPrice, p.OrderType, price)
	}
	if p.OrderType.RequiresTrigger() && !trigger.IsPositive() {
		return model.OrderRequest{}, fmt.Errorf("%w: %s order needs a positive trigger price, got %s", ErrInvalidPrice, p.OrderType, trigger)
	}
	if !p.OrderType.RequiresPrice() {
		price = decimal.Zero
	}
	if !p.OrderType.RequiresTrigger() {
		trigger = decimal.Zero
	}

	req := model.OrderRequest{
		Token:         inst.Token,
		TradingSymbol: inst.TradingSymbol,
		Segment:       inst.Segment,
		Side:          p.Side,
		OrderType:     p.OrderType,
		ProductType:   p.ProductType,
		Duration:      p.Duration,
		Variety:       p.Variety,
		Quantity:      qty,
		Price:         price,
		TriggerPrice:  trigger,
		Tag:           p.Tag,
	}
	if req.ProductType == "" {
		req.ProductType = model.ProductIntraday
	}
	if req.Duration == "" {
		req.Duration = model.DurationDay
	}
	if req.Variety == "" {
		req.Variety = model.VarietyNormal
		if p.OrderType.RequiresTrigger() {
			req.Variety = model.VarietyStopLoss
		}
	}
	return req, nil
}

func quantity(lots, lotSize int) (int, error) {
	if lots <= 0 {
		return 0, fmt.Errorf("%w: lots must be positive, got %d", ErrInvalidQuantity, lots)
	}
	if lotSize <= 0 {
		return 0, fmt.Errorf("%w: instrument lot size %d", ErrInvalidQuantity, lotSize)
	}
	if lots > math.MaxInt32/lotSize {
		return 0, fmt.Errorf("%w: %d lots of %d overflows", ErrInvalidQuantity, lots, lotSize)
	}
	return lots * lotSize, nil
}
