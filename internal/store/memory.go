package store

import (
	"context"
	"sync"

	"BotInvest/internal/ledger"
	"BotInvest/internal/model"
)

// MemoryStore keeps the ledger in process memory. State is deep-copied on
// both save and load so callers never share slices with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	state *model.LedgerState
}

var _ ledger.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (*model.LedgerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, state *model.LedgerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone()
	return nil
}
