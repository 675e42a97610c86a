// Package notification provides alert delivery to external channels
// (Telegram, webhooks) for simulated trade fills and engine events.
package notification

import (
	"context"
	"fmt"
	"log"

	"vwap-systemv1/internal/paper"
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

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// FillAlert formats a simulated fill for delivery.
func FillAlert(f paper.Fill) Alert {
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s %s:%s", f.Action, f.Exchange, f.Symbol),
		Message: fmt.Sprintf("qty=%.6f price=%.4f fee=%.4f z=%.3f balance=%.2f (%s)",
			f.Qty, f.Price, f.Fee, f.ZScore, f.Balance, f.OrderID),
	}
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Fanout delivers an alert to multiple backends, logging failures.
type Fanout struct {
	backends []Notifier
}

// NewFanout creates a notifier that sends to every backend.
func NewFanout(backends ...Notifier) *Fanout {
	return &Fanout{backends: backends}
}

func (f *Fanout) Send(ctx context.Context, alert Alert) error {
	var lastErr error
	for _, n := range f.backends {
		if err := n.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend error: %v", err)
			lastErr = err
		}
	}
	return lastErr
}
