package store

import (
	"context"
	"sync"

	"pigateway/internal/payment"
	"pigateway/pkg/platform/sentinel"
)

// InMemoryStore keeps the ledger in process memory. One mutex guards both the
// record map and the per-user index; Execute holds it across validate and
// mutate so a cancel can never interleave past a complete on the same ID.
type InMemoryStore struct {
	mu       sync.RWMutex
	payments map[string]*payment.Record
	byUser   map[string][]string
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		payments: make(map[string]*payment.Record),
		byUser:   make(map[string][]string),
	}
}

func (s *InMemoryStore) CreateIfAbsent(_ context.Context, r *payment.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[r.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := cloneRecord(r)
	s.payments[r.ID] = cp
	s.byUser[r.UserID] = append(s.byUser[r.UserID], r.ID)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*payment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.payments[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(r), nil
}

func (s *InMemoryStore) Execute(_ context.Context, id string, validate func(*payment.Record) error, mutate func(*payment.Record)) (*payment.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.payments[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(r); err != nil {
		return cloneRecord(r), err
	}
	mutate(r)
	return cloneRecord(r), nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]*payment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byUser[userID]
	records := make([]*payment.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.payments[id]; ok {
			records = append(records, cloneRecord(r))
		}
	}
	return records, nil
}

func (s *InMemoryStore) Snapshot(_ context.Context) ([]*payment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*payment.Record, 0, len(s.payments))
	for _, r := range s.payments {
		records = append(records, cloneRecord(r))
	}
	return records, nil
}

func cloneRecord(r *payment.Record) *payment.Record {
	cp := *r
	if r.Metadata != nil {
		cp.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
