package types

import "time"

// SubscriptionTier represents a player's paid access level
type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierBasic   SubscriptionTier = "basic"
	TierPremium SubscriptionTier = "premium"
)

// Rank orders tiers from free to premium
func (t SubscriptionTier) Rank() int {
	switch t {
	case TierBasic:
		return 1
	case TierPremium:
		return 2
	default:
		return 0
	}
}

// PlayerState represents everything the engine knows about a player
type PlayerState struct {
	ID                    string                       `json:"id"`
	Name                  string                       `json:"name"`
	CreatedAt             time.Time                    `json:"created_at"`
	LastActiveAt          time.Time                    `json:"last_active_at"`
	Attributes            map[string]int               `json:"attributes"`
	Progress              map[string]string            `json:"progress"`
	SubscriptionTier      SubscriptionTier             `json:"subscription_tier"`
	SubscriptionExpiresAt *time.Time                   `json:"subscription_expires_at,omitempty"`
	Turns                 map[string]int               `json:"turns"`
	Pending               []PendingConsequence         `json:"pending"`
	World                 map[string]map[string]string `json:"world"`
	Journeys              map[string]*Journey          `json:"journeys"`
	Version               int64                        `json:"version"`
}

// NewPlayerState creates an empty free-tier player
func NewPlayerState(id, name string, now time.Time) *PlayerState {
	p := &PlayerState{
		ID:               id,
		Name:             name,
		CreatedAt:        now,
		LastActiveAt:     now,
		SubscriptionTier: TierFree,
	}
	p.EnsureMaps()
	return p
}

// EnsureMaps initializes nil maps, typically after decoding
func (p *PlayerState) EnsureMaps() {
	if p.Attributes == nil {
		p.Attributes = make(map[string]int)
	}
	if p.Progress == nil {
		p.Progress = make(map[string]string)
	}
	if p.Turns == nil {
		p.Turns = make(map[string]int)
	}
	if p.World == nil {
		p.World = make(map[string]map[string]string)
	}
	if p.Journeys == nil {
		p.Journeys = make(map[string]*Journey)
	}
	for storyID, j := range p.Journeys {
		if j == nil {
			delete(p.Journeys, storyID)
		}
	}
	if p.Pending == nil {
		p.Pending = make([]PendingConsequence, 0)
	}
}

// Attribute returns the attribute value, 0 when absent
func (p *PlayerState) Attribute(name string) int {
	return p.Attributes[name]
}

// HasActiveSubscription reports whether a paid tier is currently valid
func (p *PlayerState) HasActiveSubscription(now time.Time) bool {
	if p.SubscriptionTier == TierFree || p.SubscriptionTier == "" {
		return false
	}
	return p.SubscriptionExpiresAt == nil || p.SubscriptionExpiresAt.After(now)
}

// CanAccess reports whether the player may play content requiring the tier
func (p *PlayerState) CanAccess(required SubscriptionTier, now time.Time) bool {
	if required.Rank() == 0 {
		return true
	}
	return p.HasActiveSubscription(now) && p.SubscriptionTier.Rank() >= required.Rank()
}

// Clone returns a deep copy so a choice can be resolved without touching
// the caller's state until it is saved
func (p *PlayerState) Clone() *PlayerState {
	c := *p
	c.Attributes = make(map[string]int, len(p.Attributes))
	for k, v := range p.Attributes {
		c.Attributes[k] = v
	}
	c.Progress = make(map[string]string, len(p.Progress))
	for k, v := range p.Progress {
		c.Progress[k] = v
	}
	c.Turns = make(map[string]int, len(p.Turns))
	for k, v := range p.Turns {
		c.Turns[k] = v
	}
	c.Pending = append(make([]PendingConsequence, 0, len(p.Pending)), p.Pending...)
	c.World = make(map[string]map[string]string, len(p.World))
	for storyID, kv := range p.World {
		m := make(map[string]string, len(kv))
		for k, v := range kv {
			m[k] = v
		}
		c.World[storyID] = m
	}
	c.Journeys = make(map[string]*Journey, len(p.Journeys))
	for storyID, j := range p.Journeys {
		if j == nil {
			continue
		}
		jc := *j
		jc.Decisions = append([]Decision(nil), j.Decisions...)
		jc.UnlockedArcs = append([]string(nil), j.UnlockedArcs...)
		if j.CompletedAt != nil {
			t := *j.CompletedAt
			jc.CompletedAt = &t
		}
		c.Journeys[storyID] = &jc
	}
	if p.SubscriptionExpiresAt != nil {
		t := *p.SubscriptionExpiresAt
		c.SubscriptionExpiresAt = &t
	}
	return &c
}

// PendingConsequence is a delayed consequence waiting for its turn
type PendingConsequence struct {
	ID            string      `json:"id"`
	StoryID       string      `json:"story_id"`
	ScheduledTurn int         `json:"scheduled_turn"`
	DueTurn       int         `json:"due_turn"`
	Consequence   Consequence `json:"consequence"`
}

// Journey records a player's path through one story
type Journey struct {
	StoryID      string     `json:"story_id"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Decisions    []Decision `json:"decisions"`
	UnlockedArcs []string   `json:"unlocked_arcs,omitempty"`
	EndingID     string     `json:"ending_id,omitempty"`
}

// UnlockArc records an arc as unlocked, reporting false if it already was
func (j *Journey) UnlockArc(arcID string) bool {
	if j.IsArcUnlocked(arcID) {
		return false
	}
	j.UnlockedArcs = append(j.UnlockedArcs, arcID)
	return true
}

// IsArcUnlocked reports whether the arc has been unlocked on this journey
func (j *Journey) IsArcUnlocked(arcID string) bool {
	return contains(j.UnlockedArcs, arcID)
}

// Decision represents a choice made by a player
type Decision struct {
	ID        string    `json:"id"`
	BeatID    string    `json:"beat_id"`
	ChoiceID  string    `json:"choice_id"`
	Turn      int       `json:"turn"`
	Outcome   string    `json:"outcome,omitempty"`
	Roll      int       `json:"roll,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
