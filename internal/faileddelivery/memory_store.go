package faileddelivery

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*FailedDelivery
	byOrder map[string]string
}

// NewMemoryStore creates an empty in-memory failed-delivery store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*FailedDelivery),
		byOrder: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, fd *FailedDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *fd
	s.records[fd.ID] = &cp
	s.byOrder[fd.OrderID] = fd.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*FailedDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fd, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *fd
	return &cp, nil
}

func (s *MemoryStore) GetByOrder(ctx context.Context, orderID string) (*FailedDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.records[id]
	return &cp, nil
}

func (s *MemoryStore) MarkResolved(ctx context.Context, id string, fault FaultType, resolvedBy, notes string) (*FailedDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fd, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if fd.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}

	now := time.Now().UTC()
	fd.Status = StatusResolved
	fd.FaultType = fault
	fd.ResolvedBy = resolvedBy
	fd.ResolvedAt = &now
	fd.Notes = notes
	fd.UpdatedAt = now

	cp := *fd
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]*FailedDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*FailedDelivery
	for _, fd := range s.records {
		if f.OrderID != "" && fd.OrderID != f.OrderID {
			continue
		}
		if f.Status != "" && fd.Status != f.Status {
			continue
		}
		cp := *fd
		out = append(out, &cp)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}
