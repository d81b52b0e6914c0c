package story

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/user/storyweave/internal/types"
)

var endingRef = regexp.MustCompile(`ending:(\w+)`)

// DependencyGraph maps an ending id to the endings whose requirements
// mention it
func DependencyGraph(endings []types.Ending) map[string][]string {
	graph := make(map[string][]string)
	for _, e := range endings {
		for _, m := range endingRef.FindAllStringSubmatch(e.Requirements, -1) {
			graph[m[1]] = append(graph[m[1]], e.ID)
		}
	}
	return graph
}

// RarityDistribution counts endings per rarity
func RarityDistribution(endings []types.Ending) map[types.EndingRarity]int {
	out := make(map[types.EndingRarity]int)
	for _, e := range endings {
		out[e.Rarity]++
	}
	return out
}

// CategoryDistribution counts endings per category
func CategoryDistribution(endings []types.Ending) map[types.EndingCategory]int {
	out := make(map[types.EndingCategory]int)
	for _, e := range endings {
		out[e.Category]++
	}
	return out
}

// Hints returns one hint per undiscovered ending, rarest first
func Hints(endings []types.Ending, discovered map[string]bool) []string {
	var missing []types.Ending
	for _, e := range endings {
		if !discovered[e.ID] {
			missing = append(missing, e)
		}
	}
	sort.SliceStable(missing, func(i, j int) bool {
		return missing[i].Rarity.ShareOfPlayers() < missing[j].Rarity.ShareOfPlayers()
	})

	hints := make([]string, 0, len(missing))
	for _, e := range missing {
		hints = append(hints, fmt.Sprintf("Try to find the %s ending with %s rarity.",
			e.Category, rarityLabel(e.Rarity)))
	}
	return hints
}

func rarityLabel(r types.EndingRarity) string {
	if r == types.RarityVeryRare {
		return "very rare"
	}
	return string(r)
}
