// Package notification delivers trading alerts (logins, straddle entries,
// failures) to log, Telegram and webhook channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/strategy"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is implemented by every delivery channel.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the default slog logger.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	slog.Log(ctx, level, "notify: "+alert.Title, "message", alert.Message)
	return nil
}

// Multi fans an alert out to every channel. A failing channel does not
// stop the others; all failures are joined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendBestEffort sends and only logs a delivery failure.
func SendBestEffort(ctx context.Context, n Notifier, alert Alert) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, alert); err != nil {
		slog.Warn("notify: delivery failed", "title", alert.Title, "error", err)
	}
}

// LoginAlert reports a broker login outcome.
func LoginAlert(clientCode string, err error) Alert {
	if err != nil {
		return Alert{Level: AlertCritical, Title: "Login failed", Message: fmt.Sprintf("client %s: %v", clientCode, err)}
	}
	return Alert{Level: AlertInfo, Title: "Logged in", Message: "client " + clientCode}
}

// StraddleAlert summarizes a straddle run. res may be nil when planning
// failed before anything was submitted.
func StraddleAlert(res *strategy.Result, err error) Alert {
	if res == nil || res.Plan == nil {
		return Alert{Level: AlertCritical, Title: "Straddle not placed", Message: errString(err)}
	}
	p := res.Plan
	var b strings.Builder
	fmt.Fprintf(&b, "spot %s ltp %s atm %s strike %s expiry %s",
		p.Spot.Name, p.LTP.String(), p.ATM.String(), p.Strike.String(), p.Expiry.Format("02Jan2006"))
	for _, l := range res.Legs {
		if l.Err != nil {
			fmt.Fprintf(&b, "\n%s %s x%d: FAILED %v", l.Side, l.Request.TradingSymbol, l.Request.Quantity, l.Err)
			continue
		}
		fmt.Fprintf(&b, "\n%s %s x%d: order %s", l.Side, l.Request.TradingSymbol, l.Request.Quantity, l.OrderID)
	}

	alert := Alert{Level: AlertInfo, Title: "Straddle placed", Message: b.String()}
	switch {
	case errors.Is(err, strategy.ErrPartialExecution):
		alert.Level, alert.Title = AlertCritical, "Straddle partially placed"
	case err != nil:
		alert.Level, alert.Title = AlertCritical, "Straddle failed"
	}
	return alert
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
