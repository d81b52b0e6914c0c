// Package storage persists player state. Every store applies the same
// optimistic concurrency rule: Save succeeds only when the stored version
// equals PlayerState.Version, and bumps the version on success.
package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/user/storyweave/internal/interfaces"
	"github.com/user/storyweave/internal/types"
)

var (
	// ErrPlayerNotFound is returned when no player exists with the requested id
	ErrPlayerNotFound = errors.New("player not found")
	// ErrVersionConflict is returned when the stored player changed since it was loaded
	ErrVersionConflict = errors.New("player version conflict")
)

// MemoryStore keeps players in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	players map[string]*types.PlayerState
}

var _ interfaces.PlayerStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{players: make(map[string]*types.PlayerState)}
}

// Load returns a copy of the stored player
func (m *MemoryStore) Load(_ context.Context, playerID string) (*types.PlayerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.players[playerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return p.Clone(), nil
}

// Save stores a copy of the player
func (m *MemoryStore) Save(_ context.Context, player *types.PlayerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkVersion(m.players[player.ID], player); err != nil {
		return err
	}
	player.Version++
	m.players[player.ID] = player.Clone()
	return nil
}

// Delete removes the player
func (m *MemoryStore) Delete(_ context.Context, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.players[playerID]; !ok {
		return ErrPlayerNotFound
	}
	delete(m.players, playerID)
	return nil
}

func checkVersion(stored, incoming *types.PlayerState) error {
	var current int64
	if stored != nil {
		current = stored.Version
	}
	if current != incoming.Version {
		return ErrVersionConflict
	}
	return nil
}
