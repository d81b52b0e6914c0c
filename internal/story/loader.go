package story

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/user/storyweave/internal/types"
	"go.uber.org/zap"
)

// Loader reads story definitions from a directory of JSON files, one story
// per file named <story id>.json
type Loader struct {
	basePath string
	logger   *zap.Logger
}

// NewLoader creates a new story loader
func NewLoader(basePath string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		basePath: basePath,
		logger:   logger,
	}
}

// LoadStory loads, compiles and validates a single story
func (l *Loader) LoadStory(id string) (*types.Story, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return nil, fmt.Errorf("%w: %q", ErrStoryNotFound, id)
	}
	path := filepath.Join(l.basePath, id+".json")
	s, err := l.loadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrStoryNotFound, id)
	}
	return s, err
}

// LoadAllStories loads every story in the directory, sorted by id.
// A single broken story fails the whole load.
func (l *Loader) LoadAllStories() ([]*types.Story, error) {
	paths, err := filepath.Glob(filepath.Join(l.basePath, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}

	stories := make([]*types.Story, 0, len(paths))
	for _, path := range paths {
		s, err := l.loadFile(path)
		if err != nil {
			return nil, err
		}
		stories = append(stories, s)
	}
	sort.Slice(stories, func(i, j int) bool { return stories[i].ID < stories[j].ID })

	l.logger.Info("Loaded stories",
		zap.String("path", l.basePath),
		zap.Int("count", len(stories)))
	return stories, nil
}

func (l *Loader) loadFile(path string) (*types.Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read story file: %w", err)
	}

	s, err := Decode(data, l.logger)
	if err != nil {
		return nil, fmt.Errorf("story file %s: %w", filepath.Base(path), err)
	}
	if s.ID == "" {
		s.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return s, nil
}

// Decode parses a JSON story, compiles it and validates its graph
func Decode(data []byte, logger *zap.Logger) (*types.Story, error) {
	var s types.Story
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse story data: %w", err)
	}
	if err := Prepare(&s, logger); err != nil {
		return nil, err
	}
	return &s, nil
}

// Prepare compiles and validates a story built in memory or decoded from JSON
func Prepare(s *types.Story, logger *zap.Logger) error {
	Compile(s, logger)
	return Validate(s)
}
