package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/user/storyweave/internal/types"
)

func sampleEndings() []types.Ending {
	return []types.Ending{
		{ID: "home", Category: types.EndingNeutral, Rarity: types.RarityCommon},
		{ID: "rich", Category: types.EndingEvil, Rarity: types.RarityUncommon},
		{ID: "hero", Category: types.EndingHeroic, Rarity: types.RarityRare, Requirements: "ending:home"},
		{ID: "legend", Category: types.EndingSecret, Rarity: types.RarityVeryRare,
			Requirements: "ending:hero and ending:rich"},
	}
}

func TestDependencyGraph(t *testing.T) {
	graph := DependencyGraph(sampleEndings())

	assert.Equal(t, map[string][]string{
		"home": {"hero"},
		"hero": {"legend"},
		"rich": {"legend"},
	}, graph)
}

func TestDistributions(t *testing.T) {
	endings := append(sampleEndings(), types.Ending{ID: "pier", Category: types.EndingNeutral, Rarity: types.RarityCommon})

	assert.Equal(t, map[types.EndingRarity]int{
		types.RarityCommon:   2,
		types.RarityUncommon: 1,
		types.RarityRare:     1,
		types.RarityVeryRare: 1,
	}, RarityDistribution(endings))

	assert.Equal(t, 2, CategoryDistribution(endings)[types.EndingNeutral])
	assert.Equal(t, 1, CategoryDistribution(endings)[types.EndingSecret])
}

func TestHintsListRarestFirst(t *testing.T) {
	hints := Hints(sampleEndings(), map[string]bool{"home": true})

	assert.Equal(t, []string{
		"Try to find the secret ending with very rare rarity.",
		"Try to find the heroic ending with rare rarity.",
		"Try to find the evil ending with uncommon rarity.",
	}, hints)

	all := map[string]bool{"home": true, "rich": true, "hero": true, "legend": true}
	assert.Empty(t, Hints(sampleEndings(), all))
}
