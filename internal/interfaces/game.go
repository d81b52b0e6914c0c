package interfaces

import (
	"context"

	"github.com/user/storyweave/internal/types"
)

// StoryProvider defines where story content comes from
type StoryProvider interface {
	LoadStory(id string) (*types.Story, error)
	LoadAllStories() ([]*types.Story, error)
}

// StoryLibrary defines read access to cached, validated stories
type StoryLibrary interface {
	Story(id string) (*types.Story, error)
	List() []*types.Story
	ByTag(tag string) []*types.Story
}

// PlayerStore defines the persistence contract for player state.
// Load returns an error wrapping storage.ErrPlayerNotFound for unknown ids.
type PlayerStore interface {
	Load(ctx context.Context, playerID string) (*types.PlayerState, error)
	Save(ctx context.Context, player *types.PlayerState) error
	Delete(ctx context.Context, playerID string) error
}

// EventSink receives gameplay notifications. Publish must not block.
type EventSink interface {
	Publish(name string, payload map[string]any)
}

// GameManager defines the interface for story progression
type GameManager interface {
	GetOrCreatePlayer(ctx context.Context, playerID, name string) (*types.PlayerState, error)
	GetPlayer(ctx context.Context, playerID string) (*types.PlayerState, error)
	DeletePlayer(ctx context.Context, playerID string) error
	ListStories() []*types.Story
	StartStory(ctx context.Context, playerID, storyID string) (*types.Beat, error)
	MakeChoice(ctx context.Context, playerID, storyID, choiceID string) (*types.Beat, error)
	Choose(ctx context.Context, playerID, storyID, choiceID string) (*types.Turn, error)
	CurrentBeat(ctx context.Context, playerID, storyID, lang string, vars map[string]string) (*types.BeatView, error)
	Endings(ctx context.Context, playerID, storyID string) (*types.EndingsReport, error)
}
