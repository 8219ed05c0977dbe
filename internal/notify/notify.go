// Package notify delivers reservation lifecycle events to account holders.
package notify

import (
	"context"

	"bistro/internal/model"

	"github.com/rs/zerolog"
)

// Notifier delivers an event to one account. Delivery is best effort:
// callers log a returned error and carry on.
type Notifier interface {
	Notify(ctx context.Context, accountID string, event model.Event) error
}

// LogNotifier writes events to the log instead of a transport.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

// Notify logs the event.
func (n *LogNotifier) Notify(_ context.Context, accountID string, event model.Event) error {
	n.logger.Info().
		Str("account_id", accountID).
		Str("type", string(event.Type)).
		Str("confirmation_code", event.ConfirmationCode).
		Str("status", string(event.NewStatus)).
		Str("priority", event.Priority).
		Msg(event.HumanMessage)
	return nil
}

// Nop discards every event.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, string, model.Event) error { return nil }
