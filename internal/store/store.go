// Package store persists complete game states by id. Every implementation
// writes a whole GameState atomically, so a reader never sees half a game.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lox/spades/internal/game"
)

// ErrNotFound is returned by Load for an unknown game id.
var ErrNotFound = errors.New("game not found")

// Store loads and saves game states.
type Store interface {
	Save(ctx context.Context, s *game.GameState) error
	Load(ctx context.Context, id string) (*game.GameState, error)
	Delete(ctx context.Context, id string) error
}

func checkID(id string) error {
	if id == "" {
		return errors.New("game id is empty")
	}
	return nil
}

// MemoryStore keeps deep copies of states in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*game.GameState
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*game.GameState)}
}

func (m *MemoryStore) Save(_ context.Context, s *game.GameState) error {
	if err := checkID(s.ID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (*game.GameState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}

// Len returns the number of stored games.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
