// Package execution provides order submitters that do not reach the exchange.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/logger"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
)

// PaperOrder is an order accepted by the PaperSubmitter.
type PaperOrder struct {
	OrderID    string             `json:"order_id"`
	Request    model.OrderRequest `json:"request"`
	AcceptedAt time.Time          `json:"accepted_at"`
}

// PaperSubmitter accepts every order and assigns it a PAPER-n id.
// Use it for dry runs against the live catalog and quotes.
type PaperSubmitter struct {
	mu       sync.RWMutex
	orders   []PaperOrder
	orderSeq int64
	now      func() time.Time

	// Reject, if set, decides per request whether to fail it.
	Reject func(req model.OrderRequest) error
}

// NewPaperSubmitter creates a paper submitter.
func NewPaperSubmitter() *PaperSubmitter {
	return &PaperSubmitter{
		orders: make([]PaperOrder, 0, 8),
		now:    time.Now,
	}
}

// Submit records req and returns a paper order id.
func (p *PaperSubmitter) Submit(ctx context.Context, req model.OrderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Reject != nil {
		if err := p.Reject(req); err != nil {
			return "", err
		}
	}

	p.mu.Lock()
	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)
	p.orders = append(p.orders, PaperOrder{OrderID: orderID, Request: req, AcceptedAt: p.now()})
	p.mu.Unlock()

	slog.Info("paper: order accepted", append(logger.Attrs(ctx),
		"order_id", orderID,
		"side", req.Side,
		"symbol", req.TradingSymbol,
		"key", req.Key(),
		"qty", req.Quantity,
		"type", req.OrderType,
		"price", req.Price.String(),
	)...)
	return orderID, nil
}

// Orders returns a snapshot of all accepted orders.
func (p *PaperSubmitter) Orders() []PaperOrder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]PaperOrder, len(p.orders))
	copy(cp, p.orders)
	return cp
}
