package genesis

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pigateway/internal/audit"
	"pigateway/internal/payment"
	"pigateway/internal/payment/metrics"
	paymentstore "pigateway/internal/payment/store"
	"pigateway/internal/platform/config"
	"pigateway/internal/session"
	dErrors "pigateway/pkg/domain-errors"
	"pigateway/pkg/requestcontext"
)

const webhookSecret = "test-webhook-secret"

type BridgeSuite struct {
	suite.Suite
	bridge   *Bridge
	payments *payment.Manager
	store    *InMemoryStore
	outbox   *audit.InMemoryStore
	now      time.Time
	ctx      context.Context
}

func TestBridgeSuite(t *testing.T) {
	suite.Run(t, new(BridgeSuite))
}

func (s *BridgeSuite) SetupTest() {
	cfg := config.Config{
		Network:         config.NetworkTestnet,
		AppID:           "test-app",
		Environment:     "testnet",
		Timeout:         30 * time.Second,
		WebhookSecret:   webhookSecret,
		NFTCollectionID: "collection-1",
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.payments = payment.NewManager(cfg, paymentstore.NewInMemory(), nil, metrics.NewNop(), logger)
	s.store = NewInMemory()
	s.outbox = audit.NewInMemory()
	publisher := audit.NewPublisher(s.outbox, logger)
	s.bridge = NewBridge(cfg, s.payments, s.store, publisher, NewNopMetrics(), logger)
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *BridgeSuite) signedBody(payload WebhookPayload) ([]byte, string) {
	body, err := json.Marshal(payload)
	s.Require().NoError(err)
	return body, session.Sign(body, webhookSecret)
}

func (s *BridgeSuite) TestInitiateFee() {
	s.Run("creates a pending ledger entry at the fixed amount", func() {
		rec, err := s.bridge.InitiateFee(s.ctx, "pioneer-1", "pi", map[string]any{"origin": "app"})
		s.Require().NoError(err)
		s.Equal(3.14159, rec.Amount)
		s.Equal(payment.StatusPending, rec.Status)
		s.Equal("genesis_fee", rec.Metadata["type"])
		s.Equal("pi", rec.Metadata["fee_type"])
		s.Equal("app", rec.Metadata["origin"])

		tx, ok := s.store.FeeTransactionByID(rec.ID)
		s.Require().True(ok)
		s.Equal(FeePi, tx.FeeKind)
		s.Equal("pending", tx.Status)
	})

	s.Run("each fee kind charges its own amount", func() {
		phi, err := s.bridge.InitiateFee(s.ctx, "pioneer-2", "phi", nil)
		s.Require().NoError(err)
		s.Equal(1.618, phi.Amount)

		euler, err := s.bridge.InitiateFee(s.ctx, "pioneer-3", "euler", nil)
		s.Require().NoError(err)
		s.Equal(2.718, euler.Amount)
	})

	s.Run("rejects unknown fee kinds", func() {
		_, err := s.bridge.InitiateFee(s.ctx, "pioneer-1", "tau", nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *BridgeSuite) TestWebhookSignature() {
	rec, err := s.bridge.InitiateFee(s.ctx, "pioneer-1", "pi", nil)
	s.Require().NoError(err)

	payload := WebhookPayload{
		PaymentID: rec.ID,
		Status:    "completed",
		TxHash:    "0xchain",
		UserID:    "pioneer-1",
		Amount:    3.14159,
		Timestamp: float64(s.now.Unix()),
	}
	body, _ := s.signedBody(payload)

	s.Run("invalid signature is rejected before any mutation", func() {
		err := s.bridge.HandleWebhook(s.ctx, body, session.Sign(body, "wrong-secret"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		// No pioneer init happened and the ledger is untouched.
		status, err := s.store.PioneerStatus(s.ctx, "pioneer-1")
		s.Require().NoError(err)
		s.False(status.IsPioneer)

		got, err := s.payments.Get(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(payment.StatusPending, got.Status)
	})

	s.Run("resending with a valid signature succeeds exactly once", func() {
		body, sig := s.signedBody(payload)
		s.Require().NoError(s.bridge.HandleWebhook(s.ctx, body, sig))

		got, err := s.payments.Get(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(payment.StatusCompleted, got.Status)
		s.Equal("0xchain", got.TxHash)

		status, err := s.store.PioneerStatus(s.ctx, "pioneer-1")
		s.Require().NoError(err)
		s.True(status.IsPioneer)
		s.True(status.ResonanceInitialized)
		s.Equal(1, s.store.MintCount())

		// Replaying the identical delivery acks again but mints nothing new.
		s.Require().NoError(s.bridge.HandleWebhook(s.ctx, body, sig))
		s.Equal(1, s.store.MintCount())
	})

	s.Run("rejected when no secret is configured", func() {
		cfg := config.Config{Network: config.NetworkTestnet, Environment: "testnet", Timeout: time.Second}
		logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		bare := NewBridge(cfg, s.payments, s.store, audit.NewPublisher(s.outbox, logger), NewNopMetrics(), logger)

		err := bare.HandleWebhook(s.ctx, body, session.Sign(body, ""))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *BridgeSuite) TestWebhookPayloadValidation() {
	s.Run("malformed body", func() {
		body := []byte(`{not json`)
		err := s.bridge.HandleWebhook(s.ctx, body, session.Sign(body, webhookSecret))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown status", func() {
		body, sig := s.signedBody(WebhookPayload{PaymentID: "pi_pay_0000000000000001", Status: "exploded", UserID: "u1"})
		err := s.bridge.HandleWebhook(s.ctx, body, sig)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("missing identifiers", func() {
		body, sig := s.signedBody(WebhookPayload{Status: "completed"})
		err := s.bridge.HandleWebhook(s.ctx, body, sig)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *BridgeSuite) TestWebhookStatusSync() {
	s.Run("cancelled webhook cancels the ledger entry", func() {
		rec, err := s.bridge.InitiateFee(s.ctx, "pioneer-4", "pi", nil)
		s.Require().NoError(err)

		body, sig := s.signedBody(WebhookPayload{
			PaymentID: rec.ID, Status: "cancelled", UserID: "pioneer-4", Amount: rec.Amount,
		})
		s.Require().NoError(s.bridge.HandleWebhook(s.ctx, body, sig))

		got, err := s.payments.Get(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(payment.StatusCancelled, got.Status)

		status, err := s.store.PioneerStatus(s.ctx, "pioneer-4")
		s.Require().NoError(err)
		s.False(status.IsPioneer)
	})

	s.Run("webhook for an unknown ledger payment still acks", func() {
		body, sig := s.signedBody(WebhookPayload{
			PaymentID: "pi_pay_ffffffffffffffff", Status: "completed", UserID: "pioneer-5", Amount: 1, TxHash: "0x1",
		})
		s.Require().NoError(s.bridge.HandleWebhook(s.ctx, body, sig))

		// Pioneer init still runs off the durable store.
		status, err := s.store.PioneerStatus(s.ctx, "pioneer-5")
		s.Require().NoError(err)
		s.True(status.IsPioneer)
	})

	s.Run("completed webhook without a tx hash still completes the ledger", func() {
		rec, err := s.bridge.InitiateFee(s.ctx, "pioneer-6", "euler", nil)
		s.Require().NoError(err)

		body, sig := s.signedBody(WebhookPayload{
			PaymentID: rec.ID, Status: "completed", UserID: "pioneer-6", Amount: rec.Amount,
		})
		s.Require().NoError(s.bridge.HandleWebhook(s.ctx, body, sig))

		got, err := s.payments.Get(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(payment.StatusCompleted, got.Status)
		s.NotEmpty(got.TxHash)
	})
}

type failingStore struct {
	*InMemoryStore
	err error
}

func (f *failingStore) InsertFeeTransaction(context.Context, FeeTransaction) error { return f.err }
func (f *failingStore) UpsertPioneer(context.Context, PioneerRecord) error         { return f.err }

func (s *BridgeSuite) TestPersistenceFailuresAreWarnings() {
	cfg := config.Config{
		Network:       config.NetworkTestnet,
		Environment:   "testnet",
		Timeout:       time.Second,
		WebhookSecret: webhookSecret,
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	store := &failingStore{InMemoryStore: NewInMemory(), err: dErrors.New(dErrors.CodeUnavailable, "db down")}
	bridge := NewBridge(cfg, s.payments, store, audit.NewPublisher(s.outbox, logger), NewNopMetrics(), logger)

	s.Run("fee initiation succeeds without the durable store", func() {
		rec, err := bridge.InitiateFee(s.ctx, "pioneer-7", "pi", nil)
		s.Require().NoError(err)
		s.NotEmpty(rec.ID)
	})

	s.Run("completed webhook still acks when pioneer init cannot persist", func() {
		body, sig := s.signedBody(WebhookPayload{
			PaymentID: "pi_pay_eeeeeeeeeeeeeeee", Status: "completed", UserID: "pioneer-7", Amount: 1, TxHash: "0x1",
		})
		s.Require().NoError(bridge.HandleWebhook(s.ctx, body, sig))
	})
}

func (s *BridgeSuite) TestFeeCatalog() {
	fees := Fees()
	s.Require().Len(fees, 3)
	s.Equal(FeePi, fees[0].Kind)
	s.Equal(3.14159, fees[0].Amount)
	s.Equal(1.618, fees[1].Amount)
	s.Equal(2.718, fees[2].Amount)
}
