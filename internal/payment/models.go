package payment

import (
	"math"
	"time"

	"pigateway/pkg/platform/sentinel"
)

// Status is the payment lifecycle tag. Transitions are restricted to:
//
//	(create) -> Pending
//	Pending  -> Approved | Completed | Cancelled
//	Approved -> Completed | Cancelled
//	Completed, Cancelled, Failed are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// ParseStatus validates a wire-format status string.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusApproved, StatusCompleted, StatusCancelled, StatusFailed:
		return Status(s), true
	}
	return "", false
}

// Terminal reports whether no further transitions are allowed from the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Record is one append-only ledger entry tracking a requested Pi transfer.
// Amount is rounded to 7 decimal places (Pi precision) at creation and never
// mutated afterwards. TxHash is set iff Status is Completed.
type Record struct {
	ID        string         `json:"payment_id"`
	Amount    float64        `json:"amount"`
	Memo      string         `json:"memo"`
	UserID    string         `json:"user_id"`
	Status    Status         `json:"status"`
	TxHash    string         `json:"tx_hash,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata"`
}

// CanApprove checks the Pending -> Approved edge.
func (r *Record) CanApprove() error {
	if r.Status != StatusPending {
		return sentinel.ErrInvalidState
	}
	return nil
}

// CanComplete checks the {Pending,Approved} -> Completed edges.
func (r *Record) CanComplete() error {
	if r.Status != StatusPending && r.Status != StatusApproved {
		return sentinel.ErrInvalidState
	}
	return nil
}

// CanCancel checks the {Pending,Approved,Failed->no} -> Cancelled edges.
// Completed payments can never be cancelled.
func (r *Record) CanCancel() error {
	if r.Status.Terminal() {
		return sentinel.ErrInvalidState
	}
	return nil
}

// RoundAmount rounds to 7 decimal places, half away from zero.
func RoundAmount(amount float64) float64 {
	return math.Round(amount*1e7) / 1e7
}

// VerificationResult is the outcome of checking a payment against the chain.
// Authoritative only when Testnet is false.
type VerificationResult struct {
	Verified  bool      `json:"verified"`
	PaymentID string    `json:"payment_id"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Amount    float64   `json:"amount,omitempty"`
	Status    Status    `json:"status,omitempty"`
	Testnet   bool      `json:"testnet_mode"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Statistics is the aggregate ledger view.
type Statistics struct {
	TotalPayments   int            `json:"total_payments"`
	StatusBreakdown map[Status]int `json:"status_breakdown"`
	CompletedVolume float64        `json:"completed_volume_pi"`
	UniqueUsers     int            `json:"unique_users"`
}
