package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"pigateway/pkg/requestcontext"
)

// Publisher appends events to the outbox with fail-open semantics: a failed
// append is logged and dropped, never surfaced to the caller. Payment
// processing must not stall on audit persistence.
type Publisher struct {
	store  Store
	logger *slog.Logger
}

func NewPublisher(store Store, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, logger: logger}
}

// Emit records an event. ID, timestamp and request ID are filled in here so
// call sites stay one-liners.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "audit append failed",
			"action", event.Action,
			"payment_id", event.PaymentID,
			"error", err,
		)
	}
}

// PaymentEvent builds a payment-scoped event.
func PaymentEvent(action, paymentID, userID string, amount float64) Event {
	return Event{
		Action:    action,
		PaymentID: paymentID,
		UserID:    userID,
		Amount:    amount,
	}
}
