package genesis

import (
	"context"
	"sync"
	"time"

	"pigateway/pkg/platform/sentinel"
)

// DurableStore is the shared settlement database. The bridge only touches
// rows it owns; write failures are downgraded to persistence warnings by the
// caller, never surfaced to webhook senders.
type DurableStore interface {
	InsertFeeTransaction(ctx context.Context, tx FeeTransaction) error

	// UpdateFeeTransaction moves an existing row to status, stamping the tx
	// hash when non-empty. Unknown payment IDs return sentinel.ErrNotFound.
	UpdateFeeTransaction(ctx context.Context, paymentID, status, txHash string, updatedAt time.Time) error

	UpsertPioneer(ctx context.Context, rec PioneerRecord) error
	UpsertResonanceBaseline(ctx context.Context, baseline ResonanceBaseline) error

	// InsertMintLog records a pending mint. Returns false without error when
	// the token ID already exists, so webhook replays cannot double-mint.
	InsertMintLog(ctx context.Context, log MintLog) (bool, error)

	PioneerStatus(ctx context.Context, userID string) (*PioneerStatus, error)
}

// InMemoryStore backs deployments without a settlement database. Also the
// test double for the bridge.
type InMemoryStore struct {
	mu        sync.RWMutex
	fees      map[string]*FeeTransaction
	pioneers  map[string]*PioneerRecord
	baselines map[string]*ResonanceBaseline
	mints     map[string]*MintLog
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		fees:      make(map[string]*FeeTransaction),
		pioneers:  make(map[string]*PioneerRecord),
		baselines: make(map[string]*ResonanceBaseline),
		mints:     make(map[string]*MintLog),
	}
}

func (s *InMemoryStore) InsertFeeTransaction(_ context.Context, tx FeeTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := tx
	s.fees[tx.PaymentID] = &cp
	return nil
}

func (s *InMemoryStore) UpdateFeeTransaction(_ context.Context, paymentID, status, txHash string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.fees[paymentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	tx.Status = status
	if txHash != "" {
		tx.TxHash = txHash
	}
	tx.UpdatedAt = updatedAt
	return nil
}

func (s *InMemoryStore) UpsertPioneer(_ context.Context, rec PioneerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := rec
	s.pioneers[rec.UserID] = &cp
	return nil
}

func (s *InMemoryStore) UpsertResonanceBaseline(_ context.Context, baseline ResonanceBaseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := baseline
	s.baselines[baseline.UserID] = &cp
	return nil
}

func (s *InMemoryStore) InsertMintLog(_ context.Context, log MintLog) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mints[log.TokenID]; ok {
		return false, nil
	}
	cp := log
	s.mints[log.TokenID] = &cp
	return true, nil
}

func (s *InMemoryStore) PioneerStatus(_ context.Context, userID string) (*PioneerStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := &PioneerStatus{UserID: userID}
	if rec, ok := s.pioneers[userID]; ok {
		status.IsPioneer = true
		status.FeePaid = true
		ts := rec.InitializedAt
		status.PaymentTimestamp = &ts
	}
	if _, ok := s.baselines[userID]; ok {
		status.ResonanceInitialized = true
	}
	for _, tx := range s.fees {
		if tx.UserID == userID && tx.Status == "completed" {
			status.FeeKind = tx.FeeKind
			break
		}
	}
	return status, nil
}

// MintCount reports stored mint rows, for tests.
func (s *InMemoryStore) MintCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mints)
}

// FeeTransactionByID returns a copy of the stored row, for tests.
func (s *InMemoryStore) FeeTransactionByID(paymentID string) (FeeTransaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.fees[paymentID]
	if !ok {
		return FeeTransaction{}, false
	}
	return *tx, true
}
