// Package world scopes the narrative world state a story reads and writes.
//
// Authored stories seed their initial world from metadata entries prefixed
// with "world_state:". At play time the state lives either with each player
// (the default) or in a process-wide store shared by everyone playing the
// story.
package world

import (
	"strings"
	"sync"

	"github.com/user/storyweave/internal/types"
)

// MetadataPrefix marks story metadata entries that seed the world state
const MetadataPrefix = "world_state:"

// Scope selects where world state is kept
type Scope string

const (
	ScopePlayer Scope = "player"
	ScopeShared Scope = "shared"
)

// State is read/write access to one story's world variables
type State interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// Seed returns the initial world of a story from its metadata
func Seed(s *types.Story) map[string]string {
	out := make(map[string]string)
	for k, v := range s.Metadata {
		if key, ok := strings.CutPrefix(k, MetadataPrefix); ok {
			out[key] = v
		}
	}
	return out
}

// PlayerState keeps world variables in PlayerState.World, falling back to
// the story's seed for keys the player has not changed
type PlayerState struct {
	player *types.PlayerState
	story  *types.Story
}

// ForPlayer returns the world of a story as seen by one player
func ForPlayer(p *types.PlayerState, s *types.Story) *PlayerState {
	return &PlayerState{player: p, story: s}
}

func (w *PlayerState) Get(key string) (string, bool) {
	if kv, ok := w.player.World[w.story.ID]; ok {
		if v, ok := kv[key]; ok {
			return v, true
		}
	}
	v, ok := w.story.Metadata[MetadataPrefix+key]
	return v, ok
}

func (w *PlayerState) Set(key, value string) {
	if w.player.World == nil {
		w.player.World = make(map[string]map[string]string)
	}
	kv, ok := w.player.World[w.story.ID]
	if !ok {
		kv = make(map[string]string)
		w.player.World[w.story.ID] = kv
	}
	kv[key] = value
}

// Shared is a process-wide world store with one lock per story
type Shared struct {
	mu      sync.Mutex
	stories map[string]*sharedWorld
}

type sharedWorld struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewShared creates an empty shared store
func NewShared() *Shared {
	return &Shared{stories: make(map[string]*sharedWorld)}
}

// For returns the shared world of a story, seeding it on first use
func (sh *Shared) For(s *types.Story) State {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.stories[s.ID]
	if !ok {
		w = &sharedWorld{values: Seed(s)}
		sh.stories[s.ID] = w
	}
	return w
}

// Snapshot copies the current shared world of a story
func (sh *Shared) Snapshot(storyID string) map[string]string {
	sh.mu.Lock()
	w, ok := sh.stories[storyID]
	sh.mu.Unlock()
	out := make(map[string]string)
	if !ok {
		return out
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	for k, v := range w.values {
		out[k] = v
	}
	return out
}

func (w *sharedWorld) Get(key string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.values[key]
	return v, ok
}

func (w *sharedWorld) Set(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.values[key] = value
}

// Buffered records writes over a base state and applies them on Commit.
// Reads see the buffered writes first.
type Buffered struct {
	base   State
	writes map[string]string
	order  []string
}

// NewBuffered wraps base
func NewBuffered(base State) *Buffered {
	return &Buffered{base: base, writes: make(map[string]string)}
}

func (b *Buffered) Get(key string) (string, bool) {
	if v, ok := b.writes[key]; ok {
		return v, true
	}
	return b.base.Get(key)
}

func (b *Buffered) Set(key, value string) {
	if _, ok := b.writes[key]; !ok {
		b.order = append(b.order, key)
	}
	b.writes[key] = value
}

// Commit flushes the buffered writes to the base state in write order
func (b *Buffered) Commit() {
	for _, k := range b.order {
		b.base.Set(k, b.writes[k])
	}
	b.writes = make(map[string]string)
	b.order = nil
}
