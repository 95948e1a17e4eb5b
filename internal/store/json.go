package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"BotInvest/internal/ledger"
	"BotInvest/internal/model"
)

// JSONStore keeps the ledger in a single indented JSON file. Writes go to a
// temp file in the same directory and are renamed into place.
type JSONStore struct {
	mu   sync.Mutex
	path string
}

var _ ledger.Store = (*JSONStore)(nil)

// NewJSONStore creates a store at path. Parent directories are created on save.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads the ledger state. Returns nil if the file doesn't exist.
func (s *JSONStore) Load(_ context.Context) (*model.LedgerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var state model.LedgerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if state.Positions == nil {
		state.Positions = []model.Position{}
	}
	if state.Trades == nil {
		state.Trades = []model.Trade{}
	}
	return &state, nil
}

// Save writes the ledger state atomically.
func (s *JSONStore) Save(ctx context.Context, state *model.LedgerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
