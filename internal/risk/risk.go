// Package risk gates order requests against configured size limits before
// they reach the broker.
package risk

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
)

// Limits defines configurable pre-trade thresholds. Zero disables a check.
type Limits struct {
	MaxLotsPerLeg       int `yaml:"max_lots_per_leg" json:"max_lots_per_leg"`
	MaxQuantityPerOrder int `yaml:"max_quantity_per_order" json:"max_quantity_per_order"`
	MaxOrdersPerDay     int `yaml:"max_orders_per_day" json:"max_orders_per_day"`
}

// DefaultLimits returns conservative default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxLotsPerLeg:       10,
		MaxQuantityPerOrder: 1800, // NSE freeze quantity for NIFTY
		MaxOrdersPerDay:     20,
	}
}

// Validate rejects negative limits.
func (l Limits) Validate() error {
	if l.MaxLotsPerLeg < 0 || l.MaxQuantityPerOrder < 0 || l.MaxOrdersPerDay < 0 {
		return fmt.Errorf("risk limits must not be negative: %+v", l)
	}
	return nil
}

// Manager validates orders against limits and counts accepted submissions.
type Manager struct {
	mu     sync.Mutex
	limits Limits
	placed int
}

// NewManager creates a Manager with the given limits.
func NewManager(limits Limits) *Manager {
	return &Manager{limits: limits}
}

// CanTrade checks a built order against the limits.
// Returns true if the order is allowed, false with a reason if not.
func (m *Manager) CanTrade(req model.OrderRequest, lots int) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.limits.MaxLotsPerLeg > 0 && lots > m.limits.MaxLotsPerLeg {
		return false, fmt.Sprintf("%d lots exceeds max %d per leg", lots, m.limits.MaxLotsPerLeg)
	}
	if m.limits.MaxQuantityPerOrder > 0 && req.Quantity > m.limits.MaxQuantityPerOrder {
		return false, fmt.Sprintf("quantity %d exceeds max %d per order", req.Quantity, m.limits.MaxQuantityPerOrder)
	}
	return m.roomFor(1)
}

// CanPlace reports whether n more orders fit under the daily cap. A
// multi-leg entry checks all of its legs at once so it is never sent half
// over the cap.
func (m *Manager) CanPlace(n int) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomFor(n)
}

func (m *Manager) roomFor(n int) (bool, string) {
	if m.limits.MaxOrdersPerDay <= 0 {
		return true, ""
	}
	if m.placed >= m.limits.MaxOrdersPerDay {
		return false, "max orders per day reached"
	}
	if m.placed+n > m.limits.MaxOrdersPerDay {
		return false, fmt.Sprintf("%d orders would exceed max %d per day (%d placed)", n, m.limits.MaxOrdersPerDay, m.placed)
	}
	return true, ""
}

// RecordPlaced counts one submitted order.
func (m *Manager) RecordPlaced(req model.OrderRequest) {
	m.mu.Lock()
	m.placed++
	n := m.placed
	m.mu.Unlock()

	slog.Debug("risk: order counted", "key", req.Key(), "qty", req.Quantity, "placed_today", n)
}

// Restore counts orders placed earlier today by another process, so the
// daily cap holds across runs.
func (m *Manager) Restore(placed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if placed > m.placed {
		m.placed = placed
	}
}

// ResetDaily resets the order counter (call at market open).
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed = 0
}

// Status returns current usage against the limits.
func (m *Manager) Status() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]interface{}{
		"placed_today": m.placed,
		"limits":       m.limits,
	}
}
