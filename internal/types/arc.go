package types

import "github.com/user/storyweave/internal/condition"

// ArcConditionPrefix marks an arc dependency that is a predicate rather
// than the id of another arc
const ArcConditionPrefix = "condition:"

// StoryArc groups beats into a narrative segment. An arc becomes available
// once its dependency is met and no arc it excludes has been unlocked.
type StoryArc struct {
	ID            string            `json:"id"`
	Title         LocalizedText     `json:"title,omitempty"`
	Description   LocalizedText     `json:"description,omitempty"`
	Dependency    string            `json:"dependency,omitempty"`
	ExclusiveWith []string          `json:"exclusive_with,omitempty"`
	Unlocks       []string          `json:"unlocks,omitempty"`
	StartBeatID   string            `json:"start_beat_id"`
	EndBeatIDs    []string          `json:"end_beat_ids,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// Gate is the compiled predicate of a "condition:" dependency
	Gate condition.Expr `json:"-"`
}

// IsExclusiveWith reports whether the arc cannot be combined with arcID
func (a *StoryArc) IsExclusiveWith(arcID string) bool {
	return contains(a.ExclusiveWith, arcID)
}

// IsEndBeat reports whether reaching beatID completes the arc
func (a *StoryArc) IsEndBeat(beatID string) bool {
	return contains(a.EndBeatIDs, beatID)
}

// EndingCategory classifies the tone of an ending
type EndingCategory string

const (
	EndingHeroic  EndingCategory = "heroic"
	EndingTragic  EndingCategory = "tragic"
	EndingNeutral EndingCategory = "neutral"
	EndingEvil    EndingCategory = "evil"
	EndingSecret  EndingCategory = "secret"
	EndingSpecial EndingCategory = "special"
)

// EndingCategories lists every category in display order
var EndingCategories = []EndingCategory{
	EndingHeroic, EndingTragic, EndingNeutral, EndingEvil, EndingSecret, EndingSpecial,
}

// EndingRarity is how uncommon an ending is meant to be
type EndingRarity string

const (
	RarityCommon    EndingRarity = "common"
	RarityUncommon  EndingRarity = "uncommon"
	RarityRare      EndingRarity = "rare"
	RarityVeryRare  EndingRarity = "very_rare"
	RarityLegendary EndingRarity = "legendary"
)

// EndingRarities lists every rarity from most to least common
var EndingRarities = []EndingRarity{
	RarityCommon, RarityUncommon, RarityRare, RarityVeryRare, RarityLegendary,
}

// ShareOfPlayers returns the intended percentage of players reaching an
// ending of this rarity
func (r EndingRarity) ShareOfPlayers() float64 {
	switch r {
	case RarityUncommon:
		return 25
	case RarityRare:
		return 15
	case RarityVeryRare:
		return 8
	case RarityLegendary:
		return 2
	default:
		return 50
	}
}

// Ending describes what reaching a terminal beat means
type Ending struct {
	ID           string            `json:"id"`
	BeatID       string            `json:"beat_id"`
	Title        LocalizedText     `json:"title,omitempty"`
	Description  LocalizedText     `json:"description,omitempty"`
	Category     EndingCategory    `json:"category,omitempty"`
	Rarity       EndingRarity      `json:"rarity,omitempty"`
	Requirements string            `json:"requirements,omitempty"`
	Unlocks      map[string]string `json:"unlocks,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// HasTag reports whether the ending carries the tag
func (e *Ending) HasTag(tag string) bool {
	return contains(e.Tags, tag)
}

// Arc returns the arc with the given id
func (s *Story) Arc(id string) (*StoryArc, bool) {
	for i := range s.Arcs {
		if s.Arcs[i].ID == id {
			return &s.Arcs[i], true
		}
	}
	return nil, false
}

// EndingAt returns the ending attached to a beat
func (s *Story) EndingAt(beatID string) (*Ending, bool) {
	for i := range s.Endings {
		if s.Endings[i].BeatID == beatID {
			return &s.Endings[i], true
		}
	}
	return nil, false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
