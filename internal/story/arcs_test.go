package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/storyweave/internal/types"
)

type attrFacts map[string]int

func (f attrFacts) StoryID() string { return "harbor" }

func (f attrFacts) Attribute(name string) int { return f[name] }

func (f attrFacts) Progress(string) (string, bool) { return "", false }

func (f attrFacts) WorldState(string) (string, bool) { return "", false }

func arcStory(t *testing.T) *types.Story {
	t.Helper()
	s := testStory()
	s.Arcs = []types.StoryArc{
		{ID: "docks", StartBeatID: "pier", EndBeatIDs: []string{"market"}, Unlocks: []string{"trade"}},
		{ID: "trade", Dependency: "docks", StartBeatID: "market"},
		{ID: "dive", StartBeatID: "pier", ExclusiveWith: []string{"docks"}},
		{ID: "salvage", Dependency: "condition:attribute:strength:gte:5", StartBeatID: "wreck"},
	}
	require.NoError(t, Prepare(s, nil))
	return s
}

func arcIDs(arcs []*types.StoryArc) []string {
	ids := make([]string, len(arcs))
	for i, a := range arcs {
		ids[i] = a.ID
	}
	return ids
}

func TestAvailableArcs(t *testing.T) {
	s := arcStory(t)

	j := &types.Journey{}
	assert.Equal(t, []string{"docks", "dive"}, arcIDs(AvailableArcs(s, j, attrFacts{})))
	assert.Equal(t, []string{"docks", "dive", "salvage"}, arcIDs(AvailableArcs(s, j, attrFacts{"strength": 5})))

	j.UnlockArc("docks")
	assert.Equal(t, []string{"docks", "trade"}, arcIDs(AvailableArcs(s, j, attrFacts{})))

	// exclusivity holds in both directions
	j = &types.Journey{UnlockedArcs: []string{"dive"}}
	assert.Equal(t, []string{"dive"}, arcIDs(AvailableArcs(s, j, attrFacts{})))
}

func TestArcsUnlockedAt(t *testing.T) {
	s := arcStory(t)
	j := &types.Journey{}

	// both docks and dive start at the pier; the first excludes the second
	got := ArcsUnlockedAt(s, j, "pier", attrFacts{})
	assert.Equal(t, []string{"docks"}, got)
	for _, id := range got {
		j.UnlockArc(id)
	}

	// reaching the end of docks unlocks trade, which also starts here
	assert.Equal(t, []string{"trade"}, ArcsUnlockedAt(s, j, "market", attrFacts{}))
	assert.Empty(t, ArcsUnlockedAt(s, j, "pier", attrFacts{}))

	assert.Empty(t, ArcsUnlockedAt(s, j, "wreck", attrFacts{"strength": 1}))
	assert.Equal(t, []string{"salvage"}, ArcsUnlockedAt(s, j, "wreck", attrFacts{"strength": 9}))
}

func TestValidateArcsAndEndings(t *testing.T) {
	s := testStory()
	s.Arcs = []types.StoryArc{
		{ID: "a", StartBeatID: "attic"},
		{ID: "b", StartBeatID: "pier", Dependency: "ghost", EndBeatIDs: []string{"cellar"}},
		{ID: "b", StartBeatID: "pier", ExclusiveWith: []string{"zz"}},
	}
	s.Endings = []types.Ending{{ID: "lost", BeatID: "sea"}}

	err := Validate(s)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBeatNotFound)
	assert.ErrorIs(t, err, ErrArcNotFound)
	assert.ErrorIs(t, err, ErrDuplicateID)
	for _, ref := range []string{"attic", "ghost", "cellar", "zz", "sea"} {
		assert.Contains(t, err.Error(), ref)
	}

	s = testStory()
	s.Arcs = []types.StoryArc{{ID: "a", StartBeatID: "pier", Dependency: "condition:visited:market"}}
	s.Endings = []types.Ending{{ID: "sunk", BeatID: "wreck"}}
	assert.NoError(t, Validate(s))
}
