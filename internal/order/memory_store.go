package order

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	orders  map[string]*Order
	history map[string][]*StatusChange
}

// NewMemoryStore creates an empty in-memory order store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[string]*Order),
		history: make(map[string][]*StatusChange),
	}
}

func (s *MemoryStore) Create(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, from, to Status) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.Status != from {
		return nil, ErrConflict
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) SetAgent(ctx context.Context, id, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.AgentID = agentID
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetWindow(ctx context.Context, id string, w Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.DeliveryWindow = &w
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Order
	for _, o := range s.orders {
		if f.ClientID != "" && o.ClientID != f.ClientID {
			continue
		}
		if f.BusinessID != "" && o.BusinessID != f.BusinessID {
			continue
		}
		if f.AgentID != "" && o.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if !f.CreatedBefore.IsZero() {
			if o.CreatedAt.After(f.CreatedBefore) {
				continue
			}
			if o.CreatedAt.Equal(f.CreatedBefore) && o.ID >= f.BeforeID {
				continue
			}
		}
		cp := *o
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendHistory(ctx context.Context, ch *StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ch
	s.history[ch.OrderID] = append(s.history[ch.OrderID], &cp)
	return nil
}

func (s *MemoryStore) History(ctx context.Context, orderID string) ([]*StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.history[orderID]
	out := make([]*StatusChange, len(rows))
	for i, r := range rows {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}
