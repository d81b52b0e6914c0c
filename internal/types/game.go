package types

import "github.com/user/storyweave/internal/condition"

// Story represents a loaded branching story
type Story struct {
	ID           string            `json:"id"`
	Title        LocalizedText     `json:"title,omitempty"`
	Description  LocalizedText     `json:"description,omitempty"`
	StartBeatID  string            `json:"start_beat_id"`
	Beats        map[string]*Beat  `json:"beats"`
	RequiredTier SubscriptionTier  `json:"required_tier,omitempty"`
	Arcs         []StoryArc        `json:"arcs,omitempty"`
	Endings      []Ending          `json:"endings,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	// Compiled is set once defaults and gates have been filled in
	Compiled bool `json:"-"`
}

// HasTag reports whether the story carries the tag
func (s *Story) HasTag(tag string) bool {
	return contains(s.Tags, tag)
}

// Beat represents a single scene of a story
type Beat struct {
	ID         string            `json:"id"`
	Text       LocalizedText     `json:"text"`
	Choices    []Choice          `json:"choices,omitempty"`
	Terminal   bool              `json:"is_terminal,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// IsTerminal reports whether the beat ends the story. A beat without
// choices is terminal even when the flag is unset.
func (b *Beat) IsTerminal() bool {
	return b.Terminal || len(b.Choices) == 0
}

// Choice returns the choice with the given id
func (b *Beat) Choice(id string) (*Choice, bool) {
	for i := range b.Choices {
		if b.Choices[i].ID == id {
			return &b.Choices[i], true
		}
	}
	return nil, false
}

// Choice represents an edge between two beats
type Choice struct {
	ID           string            `json:"id"`
	Text         LocalizedText     `json:"text"`
	NextBeatID   string            `json:"next_beat_id"`
	Condition    string            `json:"condition,omitempty"`
	Consequences []Consequence     `json:"consequences,omitempty"`
	Weight       ChoiceWeight      `json:"weight,omitempty"`
	SkillCheck   *SkillCheck       `json:"skill_check,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	// Gate is the compiled form of Condition, filled in when the story loads
	Gate condition.Expr `json:"-"`
}

// ConsequenceType classifies how a consequence mutates player state
type ConsequenceType string

const (
	ConsequenceAttribute     ConsequenceType = "attribute"
	ConsequenceRelationship  ConsequenceType = "relationship"
	ConsequenceFaction       ConsequenceType = "faction"
	ConsequenceWorldState    ConsequenceType = "world_state"
	ConsequenceEvent         ConsequenceType = "event"
	ConsequenceChainReaction ConsequenceType = "chain_reaction"
	ConsequenceCumulative    ConsequenceType = "cumulative"
)

// Valid reports whether the engine knows how to apply the type
func (t ConsequenceType) Valid() bool {
	switch t {
	case ConsequenceAttribute, ConsequenceRelationship, ConsequenceFaction,
		ConsequenceWorldState, ConsequenceEvent, ConsequenceChainReaction, ConsequenceCumulative:
		return true
	}
	return false
}

// Consequence represents a state mutation declared by a choice or an outcome
type Consequence struct {
	ID        string          `json:"id"`
	Type      ConsequenceType `json:"type"`
	Target    string          `json:"target"`
	Value     string          `json:"value"`
	Delay     int             `json:"delay,omitempty"`
	Condition string          `json:"condition,omitempty"`

	// Amount and Gate are the decoded Value and Condition
	Amount *Amount         `json:"-"`
	Gate   condition.Expr `json:"-"`
}

// IsDelayed reports whether the consequence fires on a later turn
func (c Consequence) IsDelayed() bool {
	return c.Delay > 0
}

// SkillCheck represents a d20 test against one of the player's attributes
type SkillCheck struct {
	Attribute                string   `json:"attribute"`
	Difficulty               int      `json:"difficulty"`
	BonusModifier            int      `json:"bonus_modifier,omitempty"`
	CriticalSuccessThreshold int      `json:"critical_success_threshold,omitempty"`
	CriticalFailureThreshold int      `json:"critical_failure_threshold,omitempty"`
	Success                  Outcome  `json:"success"`
	Failure                  Outcome  `json:"failure"`
	CriticalSuccess          *Outcome `json:"critical_success,omitempty"`
	CriticalFailure          *Outcome `json:"critical_failure,omitempty"`
}

// Outcome represents the result of a skill check
type Outcome struct {
	Text         LocalizedText `json:"text,omitempty"`
	NextBeatID   string        `json:"next_beat_id"`
	Consequences []Consequence `json:"consequences,omitempty"`
}

// ChoiceWeight is a display prominence hint for presentation adapters
type ChoiceWeight string

const (
	WeightBarelyVisible ChoiceWeight = "barely_visible"
	WeightNormal        ChoiceWeight = "normal"
	WeightProminent     ChoiceWeight = "prominent"
	WeightVeryProminent ChoiceWeight = "very_prominent"
)

// DisplayFactor returns the relative prominence of the weight
func (w ChoiceWeight) DisplayFactor() float64 {
	switch w {
	case WeightBarelyVisible:
		return 0.5
	case WeightProminent:
		return 1.5
	case WeightVeryProminent:
		return 2.0
	default:
		return 1.0
	}
}
