package genesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pigateway/internal/audit"
	"pigateway/internal/payment"
	"pigateway/internal/platform/config"
	"pigateway/internal/session"
	dErrors "pigateway/pkg/domain-errors"
	"pigateway/pkg/platform/sentinel"
	"pigateway/pkg/requestcontext"
)

// PaymentLedger is the slice of the payment manager the bridge drives.
type PaymentLedger interface {
	Create(ctx context.Context, amount float64, memo, userID string, metadata map[string]any) (*payment.Record, error)
	Approve(ctx context.Context, paymentID string) (*payment.Record, error)
	Complete(ctx context.Context, paymentID, txHash string) (*payment.Record, error)
	Cancel(ctx context.Context, paymentID, reason string) (*payment.Record, error)
}

// Bridge ingests upstream payment callbacks and reconciles them against the
// local ledger and the durable store. Webhook senders always get an ack once
// the signature checks out; everything downstream is best effort.
type Bridge struct {
	cfg     config.Config
	ledger  PaymentLedger
	store   DurableStore
	audit   *audit.Publisher
	metrics *Metrics
	logger  *slog.Logger
}

func NewBridge(cfg config.Config, ledger PaymentLedger, store DurableStore, publisher *audit.Publisher, metrics *Metrics, logger *slog.Logger) *Bridge {
	return &Bridge{
		cfg:     cfg,
		ledger:  ledger,
		store:   store,
		audit:   publisher,
		metrics: metrics,
		logger:  logger,
	}
}

// InitiateFee charges the named fee to the user. The ledger entry is the
// source of truth; the durable fee row is recorded best effort.
func (b *Bridge) InitiateFee(ctx context.Context, userID, kind string, metadata map[string]any) (*payment.Record, error) {
	feeKind, err := ParseFeeKind(kind)
	if err != nil {
		return nil, err
	}

	amount := feeKind.Amount()
	paymentMetadata := map[string]any{
		"type":       "genesis_fee",
		"fee_type":   string(feeKind),
		"fee_amount": fmt.Sprintf("%v", amount),
	}
	for k, v := range metadata {
		paymentMetadata[k] = v
	}

	memo := fmt.Sprintf("Genesis Fee - %s (%v Pi)", feeKind, amount)
	rec, err := b.ledger.Create(ctx, amount, memo, userID, paymentMetadata)
	if err != nil {
		return nil, err
	}

	b.metrics.FeesInitiated.WithLabelValues(string(feeKind)).Inc()
	b.audit.Emit(ctx, audit.PaymentEvent(audit.ActionPaymentCreated, rec.ID, userID, amount))
	b.logger.InfoContext(ctx, "fee payment initiated",
		"payment_id", rec.ID,
		"user_id", userID,
		"fee_type", feeKind,
	)

	now := requestcontext.Now(ctx)
	b.persist(ctx, "record fee transaction", func() error {
		return b.store.InsertFeeTransaction(ctx, FeeTransaction{
			PaymentID: rec.ID,
			UserID:    userID,
			Amount:    amount,
			FeeKind:   feeKind,
			Status:    string(rec.Status),
			Metadata:  paymentMetadata,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})

	return rec, nil
}

// HandleWebhook processes one upstream callback. The signature is verified
// before anything else; a mismatch rejects the delivery with no state
// change. After that point internal failures are logged and counted but the
// sender still gets an ack, so redeliveries stay harmless.
func (b *Bridge) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if b.cfg.WebhookSecret == "" {
		b.metrics.Webhooks.WithLabelValues("rejected").Inc()
		b.logger.ErrorContext(ctx, "webhook rejected: no webhook secret configured")
		return dErrors.New(dErrors.CodeUnauthorized, "webhook verification is not configured")
	}
	if !session.VerifySignature(body, signature, b.cfg.WebhookSecret) {
		b.metrics.Webhooks.WithLabelValues("rejected").Inc()
		b.audit.Emit(ctx, audit.Event{Action: audit.ActionWebhookRejected})
		b.logger.WarnContext(ctx, "webhook rejected: invalid signature")
		return dErrors.New(dErrors.CodeUnauthorized, "invalid webhook signature")
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		b.metrics.Webhooks.WithLabelValues("malformed").Inc()
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed webhook payload")
	}
	status, ok := payment.ParseStatus(payload.Status)
	if !ok {
		b.metrics.Webhooks.WithLabelValues("malformed").Inc()
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown payment status %q", payload.Status)
	}
	if payload.PaymentID == "" || payload.UserID == "" {
		b.metrics.Webhooks.WithLabelValues("malformed").Inc()
		return dErrors.New(dErrors.CodeBadRequest, "webhook payload missing payment_id or user_id")
	}

	b.logger.InfoContext(ctx, "webhook received",
		"payment_id", payload.PaymentID,
		"status", status,
		"user_id", payload.UserID,
	)

	b.syncLedger(ctx, payload, status)

	now := requestcontext.Now(ctx)
	b.persist(ctx, "update fee transaction", func() error {
		err := b.store.UpdateFeeTransaction(ctx, payload.PaymentID, string(status), payload.TxHash, now)
		if errors.Is(err, sentinel.ErrNotFound) {
			// Payment initiated before the durable store came up, or owned
			// by another producer. Nothing to reconcile.
			return nil
		}
		return err
	})

	if status == payment.StatusCompleted {
		b.initializePioneer(ctx, payload)
	}

	b.metrics.Webhooks.WithLabelValues("processed").Inc()
	b.audit.Emit(ctx, audit.PaymentEvent(audit.ActionWebhookProcessed, payload.PaymentID, payload.UserID, payload.Amount))
	return nil
}

// syncLedger mirrors the webhook status onto the local ledger. The ledger's
// state machine stays authoritative: transitions it refuses are logged and
// skipped, not forced.
func (b *Bridge) syncLedger(ctx context.Context, payload WebhookPayload, status payment.Status) {
	var err error
	switch status {
	case payment.StatusApproved:
		_, err = b.ledger.Approve(ctx, payload.PaymentID)
	case payment.StatusCompleted:
		txHash := payload.TxHash
		if txHash == "" {
			txHash = "webhook:" + payload.PaymentID
		}
		_, err = b.ledger.Complete(ctx, payload.PaymentID, txHash)
	case payment.StatusCancelled, payment.StatusFailed:
		_, err = b.ledger.Cancel(ctx, payload.PaymentID, "upstream reported "+string(status))
	case payment.StatusPending:
		// Nothing to do; pending is the creation state.
	}
	if err != nil {
		b.logger.WarnContext(ctx, "ledger not updated from webhook",
			"payment_id", payload.PaymentID,
			"status", status,
			"error", err,
		)
	}
}

// initializePioneer performs the one-time side effects for a completed fee:
// pioneer metadata, a score baseline, and a pending mint row. The mint row
// key makes replays a no-op.
func (b *Bridge) initializePioneer(ctx context.Context, payload WebhookPayload) {
	now := requestcontext.Now(ctx)

	ok := b.persist(ctx, "upsert pioneer metadata", func() error {
		return b.store.UpsertPioneer(ctx, PioneerRecord{
			UserID:        payload.UserID,
			PaymentID:     payload.PaymentID,
			TxHash:        payload.TxHash,
			InitializedAt: now,
		})
	})
	if !ok {
		return
	}

	b.persist(ctx, "seed resonance baseline", func() error {
		return b.store.UpsertResonanceBaseline(ctx, NewResonanceBaseline(payload.UserID, payload.Amount))
	})

	if b.cfg.NFTCollectionID != "" {
		b.persist(ctx, "log pending mint", func() error {
			inserted, err := b.store.InsertMintLog(ctx, MintLog{
				TokenID:      MintTokenID(payload.PaymentID, payload.UserID),
				CollectionID: b.cfg.NFTCollectionID,
				UserID:       payload.UserID,
				PaymentID:    payload.PaymentID,
				TxHash:       payload.TxHash,
				Status:       "pending",
				Metadata:     payload.Metadata,
				CreatedAt:    now,
			})
			if err == nil && !inserted {
				b.logger.InfoContext(ctx, "mint already logged, replay ignored",
					"payment_id", payload.PaymentID,
					"user_id", payload.UserID,
				)
			}
			return err
		})
	}

	b.metrics.PioneersInitialized.Inc()
	b.logger.InfoContext(ctx, "pioneer initialized", "user_id", payload.UserID, "payment_id", payload.PaymentID)
}

// PioneerStatusFor queries the durable store for a user's pioneer state.
func (b *Bridge) PioneerStatusFor(ctx context.Context, userID string) (*PioneerStatus, error) {
	status, err := b.store.PioneerStatus(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to query pioneer status")
	}
	return status, nil
}

// persist runs a durable-store write with the configured retry budget.
// Exhausted budgets become a persistence warning: logged and counted, never
// an error for the webhook sender. Returns whether the write stuck.
func (b *Bridge) persist(ctx context.Context, op string, fn func() error) bool {
	var err error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				b.warn(ctx, op, err)
				return false
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		if err = fn(); err == nil {
			return true
		}
	}
	b.warn(ctx, op, err)
	return false
}

func (b *Bridge) warn(ctx context.Context, op string, err error) {
	b.metrics.PersistenceWarnings.Inc()
	b.logger.WarnContext(ctx, "durable store write failed",
		"op", op,
		"error", err,
	)
}
