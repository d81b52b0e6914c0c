package story

import (
	"fmt"
	"sort"
	"sync"

	"github.com/user/storyweave/internal/interfaces"
	"github.com/user/storyweave/internal/types"
	"go.uber.org/zap"
)

// Library caches stories from a provider. A story is fetched at most once,
// compiled and validated, then shared read-only for the life of the process.
type Library struct {
	provider interfaces.StoryProvider
	logger   *zap.Logger

	mu      sync.RWMutex
	stories map[string]*Graph
	all     bool
}

var _ interfaces.StoryLibrary = (*Library)(nil)

// NewLibrary creates a library over the provider
func NewLibrary(provider interfaces.StoryProvider, logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Library{
		provider: provider,
		logger:   logger,
		stories:  make(map[string]*Graph),
	}
}

// Preload fetches every story from the provider
func (l *Library) Preload() error {
	stories, err := l.provider.LoadAllStories()
	if err != nil {
		return fmt.Errorf("failed to preload stories: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range stories {
		if _, ok := l.stories[s.ID]; ok {
			continue
		}
		if err := Prepare(s, l.logger); err != nil {
			return err
		}
		l.stories[s.ID] = &Graph{story: s}
	}
	l.all = true
	return nil
}

// Graph returns the cached graph for a story, loading it on first use
func (l *Library) Graph(id string) (*Graph, error) {
	l.mu.RLock()
	g, ok := l.stories[id]
	all := l.all
	l.mu.RUnlock()
	if ok {
		return g, nil
	}
	if all {
		return nil, fmt.Errorf("%w: %s", ErrStoryNotFound, id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if g, ok := l.stories[id]; ok {
		return g, nil
	}

	s, err := l.provider.LoadStory(id)
	if err != nil {
		return nil, err
	}
	if err := Prepare(s, l.logger); err != nil {
		return nil, err
	}
	g = &Graph{story: s}
	l.stories[id] = g
	l.logger.Debug("Cached story", zap.String("story_id", id), zap.Int("beats", len(s.Beats)))
	return g, nil
}

// Story returns the cached story
func (l *Library) Story(id string) (*types.Story, error) {
	g, err := l.Graph(id)
	if err != nil {
		return nil, err
	}
	return g.Story(), nil
}

// List returns the cached stories sorted by id
func (l *Library) List() []*types.Story {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*types.Story, 0, len(l.stories))
	for _, g := range l.stories {
		out = append(out, g.Story())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByTag returns the cached stories carrying the tag
func (l *Library) ByTag(tag string) []*types.Story {
	var out []*types.Story
	for _, s := range l.List() {
		if s.HasTag(tag) {
			out = append(out, s)
		}
	}
	return out
}
