package broker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
	"github.com/swapnilk30/AlgoTradingSetup01/pkg/smartconnect"
)

// OrderPlacer is the placeOrder call of *smartconnect.SmartConnect.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, params map[string]any) (string, error)
}

// OrderBookReader is the getOrderBook call of *smartconnect.SmartConnect.
type OrderBookReader interface {
	OrderBook(ctx context.Context) ([]smartconnect.OrderBookEntry, error)
}

// TaggedOrders returns today's orders whose ordertag starts with prefix.
func TaggedOrders(ctx context.Context, book OrderBookReader, prefix string) ([]smartconnect.OrderBookEntry, error) {
	all, err := book.OrderBook(ctx)
	if err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}
	var out []smartconnect.OrderBookEntry
	for _, e := range all {
		if strings.HasPrefix(e.OrderTag, prefix) {
			out = append(out, e)
		}
	}
	return out, nil
}

// SmartOrders submits order requests to SmartAPI.
type SmartOrders struct {
	client OrderPlacer
}

// NewSmartOrders creates a SmartOrders.
func NewSmartOrders(client OrderPlacer) *SmartOrders {
	return &SmartOrders{client: client}
}

// Submit places req and returns the broker order id.
func (o *SmartOrders) Submit(ctx context.Context, req model.OrderRequest) (string, error) {
	return o.client.PlaceOrder(ctx, OrderParams(req))
}

// OrderParams maps an OrderRequest onto SmartAPI placeOrder fields.
func OrderParams(req model.OrderRequest) map[string]any {
	p := map[string]any{
		"variety":         string(req.Variety),
		"tradingsymbol":   req.TradingSymbol,
		"symboltoken":     req.Token,
		"transactiontype": string(req.Side),
		"exchange":        string(req.Segment),
		"ordertype":       string(req.OrderType),
		"producttype":     string(req.ProductType),
		"duration":        string(req.Duration),
		"price":           req.Price.StringFixed(2),
		"triggerprice":    req.TriggerPrice.StringFixed(2),
		"squareoff":       "0",
		"stoploss":        "0",
		"quantity":        strconv.Itoa(req.Quantity),
	}
	if req.Tag != "" {
		p["ordertag"] = req.Tag
	}
	return p
}
