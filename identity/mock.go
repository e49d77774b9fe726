package identity

import (
	"context"
	"strings"
	"sync"
)

// MockResolver is a fixture-backed Resolver for tests.
type MockResolver struct {
	mu      sync.RWMutex
	players map[uint64]Player
}

func NewMockResolver() *MockResolver {
	return &MockResolver{players: make(map[uint64]Player)}
}

func (m *MockResolver) Add(p Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[p.ID] = p
}

func (m *MockResolver) Lookup(ctx context.Context, id uint64) (*Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.players[id]; ok {
		return &p, nil
	}
	return nil, ErrPlayerNotFound
}

func (m *MockResolver) ResolveUsername(ctx context.Context, username string) (*Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.players {
		if strings.EqualFold(p.Username, username) {
			return &p, nil
		}
	}
	return nil, ErrPlayerNotFound
}

var _ Resolver = (*MockResolver)(nil)
