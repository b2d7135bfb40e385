package payment

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pigateway/internal/platform/config"
	dErrors "pigateway/pkg/domain-errors"
	"pigateway/pkg/platform/sentinel"
	"pigateway/pkg/requestcontext"
)

// MaxAmount caps a single payment. The Pi supply makes anything above this
// nonsensical and almost certainly a client bug.
const MaxAmount = 1e9

// createAttempts bounds ID regeneration when CreateIfAbsent loses a race on
// an identifier. With 64 bits of nonce this effectively never retries.
const createAttempts = 3

// Store is implemented by the ledger persistence layer.
type Store interface {
	CreateIfAbsent(ctx context.Context, r *Record) error
	FindByID(ctx context.Context, id string) (*Record, error)
	Execute(ctx context.Context, id string, validate func(*Record) error, mutate func(*Record)) (*Record, error)
	ListByUser(ctx context.Context, userID string) ([]*Record, error)
	Snapshot(ctx context.Context) ([]*Record, error)
}

// UpstreamPayment is the platform API's view of a payment, as reported by a
// Verifier. Authoritative on mainnet only.
type UpstreamPayment struct {
	Identifier string
	Amount     float64
	TxID       string
	Verified   bool
}

// Verifier checks a payment against the Pi platform API.
type Verifier interface {
	LookupPayment(ctx context.Context, paymentID string) (*UpstreamPayment, error)
}

// Metrics is the subset of instrumentation the manager drives.
type Metrics interface {
	ObserveCreated()
	ObserveTransition(status Status)
	ObserveCompletedVolume(amount float64)
	ObserveVerification(outcome string)
}

// Manager owns the payment lifecycle: creation, the approval state machine,
// verification against the chain, and aggregate statistics. All transitions
// go through the store's Execute so concurrent requests on one payment are
// linearized.
type Manager struct {
	cfg      config.Config
	store    Store
	verifier Verifier
	metrics  Metrics
	logger   *slog.Logger
}

func NewManager(cfg config.Config, store Store, verifier Verifier, metrics Metrics, logger *slog.Logger) *Manager {
	return &Manager{cfg: cfg, store: store, verifier: verifier, metrics: metrics, logger: logger}
}

// Create appends a pending payment to the ledger. The amount is rounded to
// Pi precision before validation and never changes afterwards.
func (m *Manager) Create(ctx context.Context, amount float64, memo, userID string, metadata map[string]any) (*Record, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID is required")
	}
	amount = RoundAmount(amount)
	if amount <= 0 {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid amount %v: must be positive", amount)
	}
	if amount > MaxAmount {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid amount %v: exceeds maximum %v", amount, MaxAmount)
	}

	now := requestcontext.Now(ctx)
	rec := &Record{
		Amount:    amount,
		Memo:      memo,
		UserID:    userID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}

	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		rec.ID = newPaymentID(userID, memo, now)
		err = m.store.CreateIfAbsent(ctx, rec)
		if err == nil {
			break
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store payment")
		}
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "failed to allocate payment ID")
	}

	m.metrics.ObserveCreated()
	m.logger.InfoContext(ctx, "payment created",
		"payment_id", rec.ID,
		"user_id", userID,
		"amount", amount,
	)
	return rec, nil
}

// Get returns the payment or CodeNotFound.
func (m *Manager) Get(ctx context.Context, paymentID string) (*Record, error) {
	rec, err := m.store.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "payment %s not found", paymentID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment")
	}
	return rec, nil
}

// Approve moves a pending payment to approved.
func (m *Manager) Approve(ctx context.Context, paymentID string) (*Record, error) {
	return m.transition(ctx, paymentID, StatusApproved,
		func(r *Record) error { return r.CanApprove() },
		func(r *Record) { r.Status = StatusApproved })
}

// Complete finishes a pending or approved payment and pins the transaction
// hash. TxHash is set here and nowhere else.
func (m *Manager) Complete(ctx context.Context, paymentID, txHash string) (*Record, error) {
	if txHash == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "transaction hash is required to complete a payment")
	}
	rec, err := m.transition(ctx, paymentID, StatusCompleted,
		func(r *Record) error { return r.CanComplete() },
		func(r *Record) {
			r.Status = StatusCompleted
			r.TxHash = txHash
		})
	if err != nil {
		return nil, err
	}
	m.metrics.ObserveCompletedVolume(rec.Amount)
	return rec, nil
}

// Cancel aborts a payment that has not completed. A non-empty reason is kept
// in the record metadata for later inspection.
func (m *Manager) Cancel(ctx context.Context, paymentID, reason string) (*Record, error) {
	return m.transition(ctx, paymentID, StatusCancelled,
		func(r *Record) error { return r.CanCancel() },
		func(r *Record) {
			r.Status = StatusCancelled
			if reason != "" {
				r.Metadata["cancel_reason"] = reason
			}
		})
}

func (m *Manager) transition(ctx context.Context, paymentID string, target Status, validate func(*Record) error, mutate func(*Record)) (*Record, error) {
	now := requestcontext.Now(ctx)
	rec, err := m.store.Execute(ctx, paymentID, validate, func(r *Record) {
		mutate(r)
		r.UpdatedAt = now
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Newf(dErrors.CodeNotFound, "payment %s not found", paymentID)
		case errors.Is(err, sentinel.ErrInvalidState):
			current := Status("unknown")
			if rec != nil {
				current = rec.Status
			}
			return nil, dErrors.Newf(dErrors.CodeConflict,
				"payment %s cannot move to %s from %s", paymentID, target, current)
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update payment")
		}
	}

	m.metrics.ObserveTransition(target)
	m.logger.InfoContext(ctx, "payment status changed",
		"payment_id", paymentID,
		"status", target,
	)
	return rec, nil
}

// ListUserPayments returns the user's payments newest first, optionally
// filtered by status. limit <= 0 means no limit.
func (m *Manager) ListUserPayments(ctx context.Context, userID string, status Status, limit int) ([]*Record, error) {
	records, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list payments")
	}

	filtered := records[:0]
	for _, r := range records {
		if status == "" || r.Status == status {
			filtered = append(filtered, r)
		}
	}
	// Store order is oldest first; callers want recent activity on top.
	for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// Verify checks a ledger payment against the chain. On testnet the result is
// always positive and flagged non-authoritative; on mainnet the platform API
// is the source of truth. A non-empty txHash must additionally match the
// chain's transaction ID.
func (m *Manager) Verify(ctx context.Context, paymentID, txHash string) (*VerificationResult, error) {
	rec, err := m.Get(ctx, paymentID)
	if err != nil {
		m.metrics.ObserveVerification("unknown")
		return nil, err
	}

	now := requestcontext.Now(ctx)
	if m.cfg.IsTestnet() {
		m.metrics.ObserveVerification("testnet")
		return &VerificationResult{
			Verified:  true,
			PaymentID: rec.ID,
			TxHash:    rec.TxHash,
			Amount:    rec.Amount,
			Status:    rec.Status,
			Testnet:   true,
			Reason:    "testnet verification is non-authoritative",
			Timestamp: now,
		}, nil
	}

	if m.verifier == nil {
		m.metrics.ObserveVerification("unavailable")
		return nil, dErrors.New(dErrors.CodeUnavailable, "chain verification is not configured")
	}

	upstream, err := m.verifier.LookupPayment(ctx, paymentID)
	if err != nil {
		m.metrics.ObserveVerification("error")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "chain verification failed")
	}

	result := &VerificationResult{
		PaymentID: rec.ID,
		TxHash:    upstream.TxID,
		Amount:    rec.Amount,
		Status:    rec.Status,
		Timestamp: now,
	}
	switch {
	case !upstream.Verified:
		result.Reason = "transaction not verified on chain"
	case RoundAmount(upstream.Amount) != rec.Amount:
		result.Reason = fmt.Sprintf("amount mismatch: chain reports %v, ledger has %v", upstream.Amount, rec.Amount)
	case txHash != "" && txHash != upstream.TxID:
		result.Reason = "transaction hash does not match the chain"
	default:
		result.Verified = true
	}

	if result.Verified {
		m.metrics.ObserveVerification("verified")
	} else {
		m.metrics.ObserveVerification("rejected")
	}
	return result, nil
}

// Statistics aggregates the whole ledger in one pass over a snapshot.
func (m *Manager) Statistics(ctx context.Context) (*Statistics, error) {
	records, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot ledger")
	}

	stats := &Statistics{StatusBreakdown: make(map[Status]int)}
	users := make(map[string]struct{})
	for _, r := range records {
		stats.TotalPayments++
		stats.StatusBreakdown[r.Status]++
		if r.Status == StatusCompleted {
			stats.CompletedVolume = RoundAmount(stats.CompletedVolume + r.Amount)
		}
		users[r.UserID] = struct{}{}
	}
	stats.UniqueUsers = len(users)
	return stats, nil
}

// newPaymentID derives a prefixed identifier from the payment inputs, the
// issuance time and random entropy. Only the first 16 hex characters of the
// digest are kept, matching the wire format expected by clients.
func newPaymentID(userID, memo string, now time.Time) string {
	var nonce [8]byte
	_, _ = rand.Read(nonce[:])
	sum := sha256.Sum256(fmt.Appendf(nil, "%s%s%d%s", userID, memo, now.UnixNano(), hex.EncodeToString(nonce[:])))
	return "pi_pay_" + hex.EncodeToString(sum[:])[:16]
}
