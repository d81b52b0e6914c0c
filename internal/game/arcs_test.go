package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/storyweave/config"
	"github.com/user/storyweave/internal/events"
	"github.com/user/storyweave/internal/story"
	"github.com/user/storyweave/internal/types"
)

func tower() *types.Story {
	move := func(id, next string) types.Choice {
		return types.Choice{ID: id, Text: types.Text("en", id), NextBeatID: next}
	}
	return &types.Story{
		ID:          "tower",
		StartBeatID: "gate",
		Beats: map[string]*types.Beat{
			"gate":   {Text: types.Text("en", "A gate."), Choices: []types.Choice{move("stairs", "stairs"), move("sneak", "cellar")}},
			"stairs": {Text: types.Text("en", "Stairs."), Choices: []types.Choice{move("up", "top"), move("slip", "ground")}},
			"cellar": {Text: types.Text("en", "A cellar."), Choices: []types.Choice{move("climb", "stairs"), move("dig", "ground")}},
			"top":    {Text: types.Text("en", "The top."), Terminal: true},
			"ground": {Text: types.Text("en", "The ground."), Terminal: true},
		},
		Arcs: []types.StoryArc{
			{ID: "ascent", StartBeatID: "stairs", EndBeatIDs: []string{"top"}, Unlocks: []string{"legend"}},
			{ID: "legend", Dependency: "ascent", StartBeatID: "top"},
			{ID: "tunnels", StartBeatID: "cellar", ExclusiveWith: []string{"ascent"}},
			{ID: "scholar", Dependency: "condition:attribute:wits:gte:3", StartBeatID: "gate"},
		},
		Endings: []types.Ending{
			{ID: "summit", BeatID: "top", Category: types.EndingHeroic, Rarity: types.RarityRare,
				Unlocks: map[string]string{"title": "climber"}},
			{BeatID: "ground"},
		},
	}
}

func newTowerManager(t *testing.T, attrs map[string]int) (*GameManager, *recordingSink) {
	t.Helper()
	s := tower()
	require.NoError(t, story.Prepare(s, nil))

	cfg := config.DefaultConfig()
	cfg.Game.DefaultAttributes = attrs

	sink := &recordingSink{}
	gm := NewGameManager(cfg, story.NewLibrary(staticProvider{s.ID: s}, nil), newStore())
	gm.SetEventSink(sink)
	gm.SetClock(func() time.Time { return testNow })
	return gm, sink
}

func (r *recordingSink) Find(name string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.names {
		if n == name {
			return r.events[i]
		}
	}
	return nil
}

func TestArcsUnlockAlongThePath(t *testing.T) {
	gm, sink := newTowerManager(t, nil)
	ctx := context.Background()

	_, err := gm.GetOrCreatePlayer(ctx, "p1", "Ana")
	require.NoError(t, err)
	_, err = gm.StartStory(ctx, "p1", "tower")
	require.NoError(t, err)
	assert.Equal(t, []string{events.StoryStarted, events.BeatReached}, sink.Names())

	turn, err := gm.Choose(ctx, "p1", "tower", "stairs")
	require.NoError(t, err)
	assert.Equal(t, []string{"ascent"}, turn.UnlockedArcs)
	assert.Nil(t, turn.Ending)

	arc := sink.Find(events.ArcUnlocked)
	require.NotNil(t, arc)
	assert.Equal(t, "ascent", arc["arc_id"])
	assert.Equal(t, "stairs", arc["beat_id"])

	turn, err = gm.Choose(ctx, "p1", "tower", "up")
	require.NoError(t, err)
	assert.True(t, turn.Terminal)
	assert.Equal(t, []string{"legend"}, turn.UnlockedArcs)
	require.NotNil(t, turn.Ending)
	assert.Equal(t, "summit", turn.Ending.ID)

	completed := sink.Find(events.StoryCompleted)
	require.NotNil(t, completed)
	assert.Equal(t, "summit", completed["ending_id"])
	assert.Equal(t, "heroic", completed["ending_category"])
	assert.Equal(t, "rare", completed["ending_rarity"])

	player, err := gm.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	journey := player.Journeys["tower"]
	require.NotNil(t, journey)
	assert.Equal(t, []string{"ascent", "legend"}, journey.UnlockedArcs)
	assert.Equal(t, "summit", journey.EndingID)
	assert.Equal(t, "true", player.Progress["arc:tower:ascent"])
	assert.Equal(t, "true", player.Progress["ending:tower:summit"])
	assert.Equal(t, "climber", player.Progress["unlock:title"])
}

func TestRestartKeepsDiscoveredEndings(t *testing.T) {
	gm, _ := newTowerManager(t, nil)
	ctx := context.Background()

	_, err := gm.GetOrCreatePlayer(ctx, "p1", "Ana")
	require.NoError(t, err)
	_, err = gm.StartStory(ctx, "p1", "tower")
	require.NoError(t, err)
	_, err = gm.Choose(ctx, "p1", "tower", "stairs")
	require.NoError(t, err)
	_, err = gm.Choose(ctx, "p1", "tower", "up")
	require.NoError(t, err)

	report, err := gm.Endings(ctx, "p1", "tower")
	require.NoError(t, err)
	assert.Equal(t, []string{"summit"}, report.Discovered)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, []string{"Try to find the neutral ending with common rarity."}, report.Hints)

	_, err = gm.StartStory(ctx, "p1", "tower")
	require.NoError(t, err)

	player, err := gm.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.NotContains(t, player.Progress, "arc:tower:ascent")
	assert.Empty(t, player.Journeys["tower"].UnlockedArcs)
	assert.Empty(t, player.Journeys["tower"].EndingID)
	assert.Equal(t, "true", player.Progress["ending:tower:summit"])

	report, err = gm.Endings(ctx, "p1", "tower")
	require.NoError(t, err)
	assert.Equal(t, []string{"summit"}, report.Discovered)
}

func TestExclusiveArcStaysLocked(t *testing.T) {
	gm, _ := newTowerManager(t, nil)
	ctx := context.Background()

	_, err := gm.GetOrCreatePlayer(ctx, "p1", "Ana")
	require.NoError(t, err)
	_, err = gm.StartStory(ctx, "p1", "tower")
	require.NoError(t, err)

	turn, err := gm.Choose(ctx, "p1", "tower", "sneak")
	require.NoError(t, err)
	assert.Equal(t, []string{"tunnels"}, turn.UnlockedArcs)

	turn, err = gm.Choose(ctx, "p1", "tower", "climb")
	require.NoError(t, err)
	assert.Equal(t, "stairs", turn.Beat.ID)
	assert.Empty(t, turn.UnlockedArcs)

	turn, err = gm.Choose(ctx, "p1", "tower", "slip")
	require.NoError(t, err)
	require.NotNil(t, turn.Ending)
	assert.Equal(t, "ground", turn.Ending.ID)
	assert.Equal(t, types.EndingNeutral, turn.Ending.Category)
}

func TestConditionalArcUnlocksAtStart(t *testing.T) {
	gm, sink := newTowerManager(t, map[string]int{"wits": 3})
	ctx := context.Background()

	_, err := gm.GetOrCreatePlayer(ctx, "p1", "Ana")
	require.NoError(t, err)
	_, err = gm.StartStory(ctx, "p1", "tower")
	require.NoError(t, err)

	assert.Equal(t, []string{events.StoryStarted, events.BeatReached, events.ArcUnlocked}, sink.Names())
	player, err := gm.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"scholar"}, player.Journeys["tower"].UnlockedArcs)
}

func TestEndingsUnknownStory(t *testing.T) {
	gm, _ := newTowerManager(t, nil)
	_, err := gm.Endings(context.Background(), "p1", "ghost")
	assert.ErrorIs(t, err, ErrStoryNotFound)
}
