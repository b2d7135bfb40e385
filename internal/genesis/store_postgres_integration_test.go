//go:build integration

package genesis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pigateway/pkg/platform/sentinel"
	"pigateway/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context
	now   time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	schema, err := os.ReadFile("../../migrations/001_init.sql")
	s.Require().NoError(err)
	s.pg.Exec(s.T(), string(schema))
	s.store = NewPostgres(s.pg.DB)
	s.ctx = context.Background()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.pg.Exec(s.T(), `
		TRUNCATE genesis_fee_transactions, user_metadata, resonance_scores, nft_mint_logs, audit_outbox
	`)
}

func (s *PostgresStoreSuite) TestFeeTransactionLifecycle() {
	tx := FeeTransaction{
		PaymentID: "pi_pay_0000000000000001",
		UserID:    "pioneer-1",
		Amount:    3.14159,
		FeeKind:   FeePi,
		Status:    "pending",
		Metadata:  map[string]any{"type": "genesis_fee"},
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}
	s.Require().NoError(s.store.InsertFeeTransaction(s.ctx, tx))

	s.Require().NoError(s.store.UpdateFeeTransaction(s.ctx, tx.PaymentID, "completed", "0xchain", s.now.Add(time.Minute)))

	status, err := s.store.PioneerStatus(s.ctx, "pioneer-1")
	s.Require().NoError(err)
	s.Equal(FeePi, status.FeeKind)
}

func (s *PostgresStoreSuite) TestUpdateUnknownFeeTransaction() {
	err := s.store.UpdateFeeTransaction(s.ctx, "pi_pay_ffffffffffffffff", "completed", "", s.now)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestPioneerInitializationIsIdempotent() {
	rec := PioneerRecord{
		UserID:        "pioneer-1",
		PaymentID:     "pi_pay_0000000000000002",
		TxHash:        "0xchain",
		InitializedAt: s.now,
	}
	s.Require().NoError(s.store.UpsertPioneer(s.ctx, rec))
	s.Require().NoError(s.store.UpsertPioneer(s.ctx, rec))

	baseline := NewResonanceBaseline("pioneer-1", 3.14159)
	s.Require().NoError(s.store.UpsertResonanceBaseline(s.ctx, baseline))
	s.Require().NoError(s.store.UpsertResonanceBaseline(s.ctx, baseline))

	log := MintLog{
		TokenID:      MintTokenID(rec.PaymentID, rec.UserID),
		CollectionID: "collection-1",
		UserID:       rec.UserID,
		PaymentID:    rec.PaymentID,
		TxHash:       rec.TxHash,
		Status:       "pending",
		CreatedAt:    s.now,
	}
	inserted, err := s.store.InsertMintLog(s.ctx, log)
	s.Require().NoError(err)
	s.True(inserted)

	inserted, err = s.store.InsertMintLog(s.ctx, log)
	s.Require().NoError(err)
	s.False(inserted, "replayed mint insert must be a no-op")

	status, err := s.store.PioneerStatus(s.ctx, "pioneer-1")
	s.Require().NoError(err)
	s.True(status.IsPioneer)
	s.True(status.FeePaid)
	s.True(status.ResonanceInitialized)
	s.Require().NotNil(status.PaymentTimestamp)
}

func (s *PostgresStoreSuite) TestPioneerStatusForUnknownUser() {
	status, err := s.store.PioneerStatus(s.ctx, "nobody")
	s.Require().NoError(err)
	s.False(status.IsPioneer)
	s.False(status.FeePaid)
	s.False(status.ResonanceInitialized)
}
