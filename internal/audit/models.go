// Package audit records payment lifecycle events through a transactional
// outbox. Events are appended locally and shipped to Kafka by the worker;
// the broker is the long-term system of record.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Actions emitted by the gateway.
const (
	ActionPaymentCreated   = "payment_created"
	ActionPaymentApproved  = "payment_approved"
	ActionPaymentCompleted = "payment_completed"
	ActionPaymentCancelled = "payment_cancelled"
	ActionWebhookProcessed = "webhook_processed"
	ActionWebhookRejected  = "webhook_rejected"
	ActionSessionIssued    = "session_issued"
	ActionSessionRevoked   = "session_revoked"
)

// Event is one audit record. PaymentID and Amount are zero for
// session-scoped actions.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Action    string         `json:"action"`
	PaymentID string         `json:"payment_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Amount    float64        `json:"amount,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
