package hold

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory hold store for demo/development mode.
type MemoryStore struct {
	holds map[string]*OrderHold // keyed by order ID
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory hold store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{holds: make(map[string]*OrderHold)}
}

func (m *MemoryStore) Create(ctx context.Context, h *OrderHold) (*OrderHold, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.holds[h.OrderID]; ok {
		cp := *existing
		return &cp, false, nil
	}

	cp := *h
	m.holds[h.OrderID] = &cp
	return nil, true, nil
}

func (m *MemoryStore) GetByOrder(ctx context.Context, orderID string) (*OrderHold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if h, ok := m.holds[orderID]; ok {
		cp := *h
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Update(ctx context.Context, orderID string, p Patch) (*OrderHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[orderID]
	if !ok {
		return nil, ErrNotFound
	}

	if p.ClientHoldAmount != nil {
		h.ClientHoldAmount = *p.ClientHoldAmount
	}
	if p.AgentHoldAmount != nil {
		h.AgentHoldAmount = *p.AgentHoldAmount
	}
	if p.DeliveryFeesAmount != nil {
		h.DeliveryFeesAmount = *p.DeliveryFeesAmount
	}
	h.UpdatedAt = time.Now()

	cp := *h
	return &cp, nil
}

func (m *MemoryStore) SetStatus(ctx context.Context, orderID string, status Status) (*OrderHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	h.Status = status
	h.UpdatedAt = time.Now()

	cp := *h
	return &cp, nil
}

func (m *MemoryStore) ListByStatus(ctx context.Context, status Status) ([]*OrderHold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*OrderHold, 0)
	for _, h := range m.holds {
		if h.Status == status {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
