package broker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
)

// QuoteSource returns a last traded price.
type QuoteSource interface {
	LTP(ctx context.Context, inst model.Instrument) (decimal.Decimal, error)
}

// OrderSubmitter places an order.
type OrderSubmitter interface {
	Submit(ctx context.Context, req model.OrderRequest) (string, error)
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold

	// OnStateChange, if set, is called after the state is logged.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultCircuitBreakerSettings returns the settings used by the CLI.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

func newBreaker(name string, settings CircuitBreakerSettings) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("broker: circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			if settings.OnStateChange != nil {
				settings.OnStateChange(name, from, to)
			}
		},
	})
}

// execCircuitBreaker runs fn through breaker and restores its result type.
func execCircuitBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerQuotes wraps a QuoteSource with a circuit breaker.
type CircuitBreakerQuotes struct {
	next    QuoteSource
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerQuotes creates a CircuitBreakerQuotes.
func NewCircuitBreakerQuotes(next QuoteSource, settings CircuitBreakerSettings) *CircuitBreakerQuotes {
	return &CircuitBreakerQuotes{next: next, breaker: newBreaker("quotes", settings)}
}

// LTP wraps the underlying quote call with the circuit breaker.
func (c *CircuitBreakerQuotes) LTP(ctx context.Context, inst model.Instrument) (decimal.Decimal, error) {
	return execCircuitBreaker(c.breaker, func() (decimal.Decimal, error) { return c.next.LTP(ctx, inst) })
}

// State reports the breaker state.
func (c *CircuitBreakerQuotes) State() gobreaker.State { return c.breaker.State() }

// CircuitBreakerOrders wraps an OrderSubmitter with a circuit breaker.
type CircuitBreakerOrders struct {
	next    OrderSubmitter
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerOrders creates a CircuitBreakerOrders.
func NewCircuitBreakerOrders(next OrderSubmitter, settings CircuitBreakerSettings) *CircuitBreakerOrders {
	return &CircuitBreakerOrders{next: next, breaker: newBreaker("orders", settings)}
}

// Submit wraps the underlying order call with the circuit breaker.
func (c *CircuitBreakerOrders) Submit(ctx context.Context, req model.OrderRequest) (string, error) {
	return execCircuitBreaker(c.breaker, func() (string, error) { return c.next.Submit(ctx, req) })
}

// State reports the breaker state.
func (c *CircuitBreakerOrders) State() gobreaker.State { return c.breaker.State() }
