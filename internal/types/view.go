package types

// Turn is the full result of an accepted choice
type Turn struct {
	PlayerID string `json:"player_id"`
	StoryID  string `json:"story_id"`
	ChoiceID string `json:"choice_id"`
	Number   int    `json:"turn"`
	Beat     *Beat  `json:"-"`
	Terminal bool   `json:"terminal"`

	// SkillCheck is set when the choice carried a skill check
	SkillCheck *SkillCheckResult `json:"skill_check,omitempty"`

	// Consequence bookkeeping stays server side
	Applied   []Consequence `json:"-"`
	Scheduled []Consequence `json:"-"`
	Discarded []Consequence `json:"-"`
	Abandoned []Consequence `json:"-"`

	// Ending is set when the turn reached a terminal beat that names one
	Ending       *Ending  `json:"-"`
	UnlockedArcs []string `json:"-"`
}

// SkillCheckResult summarizes a performed skill check
type SkillCheckResult struct {
	Attribute  string `json:"attribute"`
	Roll       int    `json:"roll"`
	Total      int    `json:"total"`
	Difficulty int    `json:"difficulty"`
	Outcome    string `json:"outcome"`
}

// BeatView is a beat rendered for one player: localized text and only the
// choices the player can currently take
type BeatView struct {
	StoryID  string       `json:"story_id"`
	BeatID   string       `json:"beat_id"`
	Text     string       `json:"text"`
	Terminal bool         `json:"terminal"`
	Turn     int          `json:"turn"`
	Choices  []ChoiceView `json:"choices"`
}

// ChoiceView is a choice rendered for one player
type ChoiceView struct {
	ID            string  `json:"id"`
	Text          string  `json:"text"`
	Weight        float64 `json:"weight"`
	HasSkillCheck bool    `json:"has_skill_check,omitempty"`
}

// EndingsReport is a player's ending collection for one story
type EndingsReport struct {
	StoryID    string   `json:"story_id"`
	Discovered []string `json:"discovered"`
	Total      int      `json:"total"`
	Hints      []string `json:"hints,omitempty"`
}
