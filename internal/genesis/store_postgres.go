package genesis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pigateway/pkg/platform/sentinel"
)

// PostgresStore is the settlement database implementation. The tables are
// shared with downstream consumers; this store only writes rows the bridge
// owns and keeps mint inserts idempotent at the database level.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InsertFeeTransaction(ctx context.Context, tx FeeTransaction) error {
	metadata, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("marshal fee metadata: %w", err)
	}

	query := `
		INSERT INTO genesis_fee_transactions
			(payment_id, user_id, amount, fee_type, status, tx_hash, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		tx.PaymentID, tx.UserID, tx.Amount, string(tx.FeeKind),
		tx.Status, nullable(tx.TxHash), metadata, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fee transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateFeeTransaction(ctx context.Context, paymentID, status, txHash string, updatedAt time.Time) error {
	query := `
		UPDATE genesis_fee_transactions
		SET status = $2,
		    tx_hash = COALESCE($3, tx_hash),
		    updated_at = $4
		WHERE payment_id = $1
	`
	res, err := s.db.ExecContext(ctx, query, paymentID, status, nullable(txHash), updatedAt)
	if err != nil {
		return fmt.Errorf("update fee transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update fee transaction: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertPioneer(ctx context.Context, rec PioneerRecord) error {
	query := `
		INSERT INTO user_metadata
			(user_id, is_genesis_pioneer, genesis_fee_paid, genesis_payment_id, genesis_tx_hash, genesis_initialized_at)
		VALUES ($1, TRUE, TRUE, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			is_genesis_pioneer = TRUE,
			genesis_fee_paid = TRUE,
			genesis_payment_id = EXCLUDED.genesis_payment_id,
			genesis_tx_hash = EXCLUDED.genesis_tx_hash,
			genesis_initialized_at = EXCLUDED.genesis_initialized_at
	`
	if _, err := s.db.ExecContext(ctx, query, rec.UserID, rec.PaymentID, nullable(rec.TxHash), rec.InitializedAt); err != nil {
		return fmt.Errorf("upsert pioneer metadata: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertResonanceBaseline(ctx context.Context, baseline ResonanceBaseline) error {
	query := `
		INSERT INTO resonance_scores
			(user_id, harmony_index, ethical_entropy, resonance_level, resonance_phase, total_payments, total_pi_volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		baseline.UserID, baseline.HarmonyIndex, baseline.Entropy,
		baseline.Level, baseline.Phase, baseline.TotalPayments, baseline.TotalVolume,
	)
	if err != nil {
		return fmt.Errorf("upsert resonance baseline: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertMintLog(ctx context.Context, log MintLog) (bool, error) {
	metadata, err := json.Marshal(log.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal mint metadata: %w", err)
	}

	query := `
		INSERT INTO nft_mint_logs
			(nft_token_id, nft_collection_id, user_id, payment_id, mint_transaction_hash, mint_status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (nft_token_id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		log.TokenID, log.CollectionID, log.UserID, log.PaymentID,
		nullable(log.TxHash), log.Status, metadata, log.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert mint log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert mint log: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) PioneerStatus(ctx context.Context, userID string) (*PioneerStatus, error) {
	status := &PioneerStatus{UserID: userID}

	var initializedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT is_genesis_pioneer, genesis_fee_paid, genesis_initialized_at
		FROM user_metadata
		WHERE user_id = $1
	`, userID).Scan(&status.IsPioneer, &status.FeePaid, &initializedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query pioneer metadata: %w", err)
	}
	if initializedAt.Valid {
		status.PaymentTimestamp = &initializedAt.Time
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM resonance_scores WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("query resonance baseline: %w", err)
	}
	status.ResonanceInitialized = exists

	var feeKind sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT fee_type
		FROM genesis_fee_transactions
		WHERE user_id = $1 AND status = 'completed'
		ORDER BY created_at
		LIMIT 1
	`, userID).Scan(&feeKind)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query fee transactions: %w", err)
	}
	if feeKind.Valid {
		status.FeeKind = FeeKind(feeKind.String)
	}

	return status, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
