// Package genesis bridges upstream payment webhooks to the durable store.
// It charges the one-time pioneer fee, tracks fee transactions, and performs
// the pioneer initialization side effects exactly once per completed payment.
package genesis

import (
	"time"

	dErrors "pigateway/pkg/domain-errors"
)

// FeeKind names one of the fixed pioneer fee amounts. The set and the values
// are part of the product contract and are not configurable.
type FeeKind string

const (
	FeePi    FeeKind = "pi"
	FeePhi   FeeKind = "phi"
	FeeEuler FeeKind = "euler"
)

var feeAmounts = map[FeeKind]float64{
	FeePi:    3.14159,
	FeePhi:   1.618,
	FeeEuler: 2.718,
}

var feeDescriptions = map[FeeKind]string{
	FeePi:    "Mathematical harmony (3.14159)",
	FeePhi:   "Golden ratio (1.618)",
	FeeEuler: "Natural growth (2.718)",
}

// ParseFeeKind validates a caller-supplied fee kind.
func ParseFeeKind(s string) (FeeKind, error) {
	kind := FeeKind(s)
	if _, ok := feeAmounts[kind]; !ok {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "invalid fee kind %q: must be pi, phi or euler", s)
	}
	return kind, nil
}

// Amount returns the fixed fee value in Pi.
func (k FeeKind) Amount() float64 {
	return feeAmounts[k]
}

// FeeInfo is one catalog entry for the fee listing endpoint.
type FeeInfo struct {
	Kind        FeeKind `json:"kind"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// Fees lists the catalog in a stable order.
func Fees() []FeeInfo {
	kinds := []FeeKind{FeePi, FeePhi, FeeEuler}
	out := make([]FeeInfo, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, FeeInfo{Kind: k, Amount: feeAmounts[k], Description: feeDescriptions[k]})
	}
	return out
}

// WebhookPayload is the upstream callback body. Timestamp is a Unix epoch
// with fractional seconds, as the network sends it.
type WebhookPayload struct {
	PaymentID string         `json:"payment_id"`
	Status    string         `json:"status"`
	TxHash    string         `json:"tx_hash"`
	UserID    string         `json:"user_id"`
	Amount    float64        `json:"amount"`
	Timestamp float64        `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// FeeTransaction is the durable record of one fee payment attempt.
type FeeTransaction struct {
	PaymentID string
	UserID    string
	Amount    float64
	FeeKind   FeeKind
	Status    string
	TxHash    string
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PioneerRecord is the durable user-metadata row flipped on first completed
// fee payment.
type PioneerRecord struct {
	UserID        string
	PaymentID     string
	TxHash        string
	InitializedAt time.Time
}

// ResonanceBaseline seeds the user's score row. The constants are the
// product-defined starting values for a fresh pioneer.
type ResonanceBaseline struct {
	UserID        string
	HarmonyIndex  float64
	Entropy       float64
	Level         float64
	Phase         string
	TotalPayments int
	TotalVolume   float64
}

// NewResonanceBaseline builds the starting baseline for a pioneer whose
// first fee payment carried the given amount.
func NewResonanceBaseline(userID string, amount float64) ResonanceBaseline {
	return ResonanceBaseline{
		UserID:        userID,
		HarmonyIndex:  0.5,
		Entropy:       0.3,
		Level:         0.25,
		Phase:         "foundation",
		TotalPayments: 1,
		TotalVolume:   amount,
	}
}

// MintLog is a pending mint entry. TokenID is derived from payment and user
// so webhook replays map to the same row.
type MintLog struct {
	TokenID      string
	CollectionID string
	UserID       string
	PaymentID    string
	TxHash       string
	Status       string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// MintTokenID derives the collision-safe token identifier.
func MintTokenID(paymentID, userID string) string {
	return "genesis_" + paymentID + "_" + userID
}

// PioneerStatus is the queryable view of a user's pioneer state.
type PioneerStatus struct {
	UserID               string     `json:"user_id"`
	IsPioneer            bool       `json:"is_genesis_pioneer"`
	FeePaid              bool       `json:"genesis_fee_paid"`
	FeeKind              FeeKind    `json:"fee_type,omitempty"`
	PaymentTimestamp     *time.Time `json:"payment_timestamp,omitempty"`
	ResonanceInitialized bool       `json:"resonance_initialized"`
}
