package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/storyweave/internal/interfaces"
	"github.com/user/storyweave/internal/types"
)

// FileStore handles persistence of player state as one JSON file per player
type FileStore struct {
	dir       string
	stateLock sync.RWMutex
}

var _ interfaces.PlayerStore = (*FileStore)(nil)

// NewFileStore creates a file store rooted at dir
func NewFileStore(dir string) (*FileStore, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(playerID string) string {
	return filepath.Join(s.dir, url.PathEscape(playerID)+".json")
}

// Load reads a player from disk
func (s *FileStore) Load(_ context.Context, playerID string) (*types.PlayerState, error) {
	s.stateLock.RLock()
	defer s.stateLock.RUnlock()
	return s.read(playerID)
}

func (s *FileStore) read(playerID string) (*types.PlayerState, error) {
	data, err := os.ReadFile(s.path(playerID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read player file: %w", err)
	}

	var player types.PlayerState
	if err := json.Unmarshal(data, &player); err != nil {
		return nil, fmt.Errorf("failed to parse player state: %w", err)
	}

	// Ensure all maps are initialized
	player.EnsureMaps()
	return &player, nil
}

// Save writes a player to disk
func (s *FileStore) Save(_ context.Context, player *types.PlayerState) error {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	stored, err := s.read(player.ID)
	if err != nil && !errors.Is(err, ErrPlayerNotFound) {
		return err
	}
	if err := checkVersion(stored, player); err != nil {
		return err
	}

	next := *player
	next.Version++
	data, err := json.MarshalIndent(&next, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal player state: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial file
	tmp, err := os.CreateTemp(s.dir, ".player-*")
	if err != nil {
		return fmt.Errorf("failed to write player state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write player state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write player state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(player.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write player state: %w", err)
	}

	player.Version = next.Version
	return nil
}

// Delete removes a player file
func (s *FileStore) Delete(_ context.Context, playerID string) error {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	err := os.Remove(s.path(playerID))
	if errors.Is(err, os.ErrNotExist) {
		return ErrPlayerNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete player state: %w", err)
	}
	return nil
}

// List returns the ids of every stored player
func (s *FileStore) List() ([]string, error) {
	s.stateLock.RLock()
	defer s.stateLock.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name[0] == '.' || filepath.Ext(name) != ".json" {
			continue
		}
		id, err := url.PathUnescape(name[:len(name)-len(".json")])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
