package model

import "github.com/shopspring/decimal"

// TransactionSide is BUY or SELL.
type TransactionSide string

const (
	Buy  TransactionSide = "BUY"
	Sell TransactionSide = "SELL"
)

// OrderType follows SmartAPI ordertype values.
type OrderType string

const (
	OrderMarket         OrderType = "MARKET"
	OrderLimit          OrderType = "LIMIT"
	OrderStopLossLimit  OrderType = "STOPLOSS_LIMIT"
	OrderStopLossMarket OrderType = "STOPLOSS_MARKET"
)

// RequiresPrice reports whether the order type is limit-style.
func (t OrderType) RequiresPrice() bool {
	return t == OrderLimit || t == OrderStopLossLimit
}

// RequiresTrigger reports whether the order type is a stop-loss type.
func (t OrderType) RequiresTrigger() bool {
	return t == OrderStopLossLimit || t == OrderStopLossMarket
}

// ProductType follows SmartAPI producttype values.
type ProductType string

const (
	ProductIntraday     ProductType = "INTRADAY"
	ProductDelivery     ProductType = "DELIVERY"
	ProductCarryForward ProductType = "CARRYFORWARD"
	ProductMargin       ProductType = "MARGIN"
)

// Duration is the order validity.
type Duration string

const (
	DurationDay Duration = "DAY"
	DurationIOC Duration = "IOC"
)

// Variety follows SmartAPI variety values.
type Variety string

const (
	VarietyNormal   Variety = "NORMAL"
	VarietyStopLoss Variety = "STOPLOSS"
	VarietyAMO      Variety = "AMO"
)

// OrderRequest is a normalized order ready for the submission capability.
// Quantity is in units (lots * lot size), not lots.
type OrderRequest struct {
	Token         string          `json:"token"`
	TradingSymbol string          `json:"trading_symbol"`
	Segment       Segment         `json:"exchange"`
	Side          TransactionSide `json:"transaction_type"`
	OrderType     OrderType       `json:"order_type"`
	ProductType   ProductType     `json:"product_type"`
	Duration      Duration        `json:"duration"`
	Variety       Variety         `json:"variety"`
	Quantity      int             `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	TriggerPrice  decimal.Decimal `json:"trigger_price"`
	Tag           string          `json:"tag,omitempty"`
}

// Key returns "segment:token" for the instrument the order references.
func (o *OrderRequest) Key() string {
	return string(o.Segment) + ":" + o.Token
}
