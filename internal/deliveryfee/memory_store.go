package deliveryfee

import (
	"context"
	"sync"
)

// MemoryConfigStore is an in-memory config store for demo/development mode.
type MemoryConfigStore struct {
	configs map[string]*CountryConfig
	mu      sync.RWMutex
}

// NewMemoryConfigStore creates a new in-memory config store.
func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{configs: make(map[string]*CountryConfig)}
}

func (m *MemoryConfigStore) Get(ctx context.Context, country string) (*CountryConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if cfg, ok := m.configs[country]; ok {
		cp := *cfg
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryConfigStore) Upsert(ctx context.Context, cfg *CountryConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *cfg
	m.configs[cfg.Country] = &cp
	return nil
}
