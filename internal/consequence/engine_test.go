package consequence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/storyweave/internal/types"
	"github.com/user/storyweave/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newSession() *Session {
	story := &types.Story{ID: "harbor", Metadata: map[string]string{"world_state:weather": "storm"}}
	player := types.NewPlayerState("p1", "Ana", time.Now())
	return NewSession(player, story.ID, world.ForPlayer(player, story))
}

func cons(id string, t types.ConsequenceType, target, value string) types.Consequence {
	return types.Consequence{ID: id, Type: t, Target: target, Value: value}
}

func TestApplyKinds(t *testing.T) {
	e := NewEngine(nil, 0)
	s := newSession()
	s.Player.Attributes["strength"] = 10

	batch := []types.Consequence{
		cons("a", types.ConsequenceAttribute, "strength", "+3"),
		cons("b", types.ConsequenceAttribute, "luck", "-2"),
		cons("c", types.ConsequenceAttribute, "gold", "40"),
		cons("d", types.ConsequenceRelationship, "marta", "5"),
		cons("e", types.ConsequenceRelationship, "marta", "-2"),
		cons("f", types.ConsequenceFaction, "guild", "+4"),
		cons("g", types.ConsequenceWorldState, "weather", "calm"),
		cons("h", types.ConsequenceEvent, "festival", ""),
		cons("i", types.ConsequenceChainReaction, "alarm", ""),
		cons("j", types.ConsequenceCumulative, "fame", "7:"),
	}
	for _, c := range batch {
		assert.True(t, e.Apply(c, s), c.ID)
	}

	attrs := s.Player.Attributes
	assert.Equal(t, 13, attrs["strength"])
	assert.Equal(t, -2, attrs["luck"])
	assert.Equal(t, 40, attrs["gold"])
	assert.Equal(t, 3, attrs["relationship:marta"])
	assert.Equal(t, 4, attrs["faction:guild"])
	assert.Equal(t, 7, attrs["fame"])
	assert.Equal(t, "triggered", s.Player.Progress["event:festival"])
	assert.Equal(t, "triggered", s.Player.Progress["chain:alarm"])

	weather, ok := s.WorldState("weather")
	require.True(t, ok)
	assert.Equal(t, "calm", weather)
	assert.Equal(t, "calm", s.Player.World["harbor"]["weather"])
}

func TestApplyConditional(t *testing.T) {
	e := NewEngine(nil, 0)
	s := newSession()

	c := cons("bonus", types.ConsequenceAttribute, "gold", "+10")
	c.Condition = "attribute:strength:gte:5"
	assert.False(t, e.Apply(c, s))
	assert.NotContains(t, s.Player.Attributes, "gold")

	s.Player.Attributes["strength"] = 5
	assert.True(t, e.Apply(c, s))
	assert.Equal(t, 10, s.Player.Attributes["gold"])
}

func TestUnknownTypeIsDiscarded(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	e := NewEngine(zap.New(core), 0)
	s := newSession()

	res := e.Resolve([]types.Consequence{
		cons("loot", "ATTRIBUTE", "gold", "+10"),
		cons("fee", types.ConsequenceAttribute, "gold", "+1"),
	}, s)

	require.Len(t, res.Discarded, 1)
	assert.Equal(t, "loot", res.Discarded[0].ID)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "fee", res.Applied[0].ID)
	assert.Equal(t, 1, s.Player.Attributes["gold"])
	assert.Equal(t, 1, logs.FilterMessage("Unknown consequence type").Len())
}

func TestCumulativeClamp(t *testing.T) {
	e := NewEngine(nil, 0)
	s := newSession()
	c := cons("fame", types.ConsequenceCumulative, "fame", "15:50")

	for i := 0; i < 10; i++ {
		e.Apply(c, s)
		assert.LessOrEqual(t, s.Player.Attributes["fame"], 50)
	}
	assert.Equal(t, 50, s.Player.Attributes["fame"])

	e.Apply(cons("drop", types.ConsequenceCumulative, "fame", "-80:50"), s)
	assert.Equal(t, -30, s.Player.Attributes["fame"], "no floor is enforced")
}

func TestMalformedPayloadIsFailSoft(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	e := NewEngine(zap.New(core), 0)
	s := newSession()
	s.Player.Attributes["strength"] = 8

	res := e.Resolve([]types.Consequence{
		cons("bad-add", types.ConsequenceAttribute, "strength", "+lots"),
		cons("bad-set", types.ConsequenceAttribute, "wits", "many"),
		cons("good", types.ConsequenceAttribute, "gold", "+5"),
	}, s)

	assert.Len(t, res.Applied, 3)
	assert.Equal(t, 8, s.Player.Attributes["strength"])
	assert.Equal(t, 0, s.Player.Attributes["wits"])
	assert.Equal(t, 5, s.Player.Attributes["gold"])
	assert.Equal(t, 2, logs.FilterMessage("Malformed consequence payload").Len())
}

func TestChainReactionInDeclarationOrder(t *testing.T) {
	e := NewEngine(nil, 0)
	s := newSession()

	follow := cons("follow", types.ConsequenceAttribute, "panic", "+1")
	follow.Condition = "chain:alarm"

	res := e.Resolve([]types.Consequence{
		cons("trigger", types.ConsequenceChainReaction, "alarm", ""),
		follow,
	}, s)

	assert.Len(t, res.Applied, 2)
	assert.Equal(t, 1, s.Player.Attributes["panic"])
}

func TestChainReactionDefersUntilTriggerApplies(t *testing.T) {
	e := NewEngine(nil, 0)
	s := newSession()

	last := cons("last", types.ConsequenceAttribute, "panic", "+1")
	last.Condition = "chain:bells"
	bells := cons("bells", types.ConsequenceChainReaction, "bells", "")
	bells.Condition = "chain:alarm"

	res := e.Resolve([]types.Consequence{
		last,
		bells,
		cons("alarm", types.ConsequenceChainReaction, "alarm", ""),
	}, s)

	require.Len(t, res.Applied, 3)
	assert.Equal(t, []string{"alarm", "bells", "last"},
		[]string{res.Applied[0].ID, res.Applied[1].ID, res.Applied[2].ID})
	assert.Equal(t, 1, s.Player.Attributes["panic"])
	assert.Empty(t, res.Abandoned)
}

func TestChainCycleIsAbandoned(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	e := NewEngine(zap.New(core), 0)
	s := newSession()

	ping := cons("ping", types.ConsequenceChainReaction, "ping", "")
	ping.Condition = "chain:pong"
	pong := cons("pong", types.ConsequenceChainReaction, "pong", "")
	pong.Condition = "chain:ping"

	res := e.Resolve([]types.Consequence{ping, pong, cons("ok", types.ConsequenceAttribute, "gold", "+1")}, s)

	assert.Len(t, res.Applied, 1)
	assert.Len(t, res.Abandoned, 2)
	assert.NotContains(t, s.Player.Progress, "chain:ping")
	assert.Equal(t, 1, logs.FilterMessage("Abandoning chained consequences").Len())
}

func TestChainPassLimit(t *testing.T) {
	e := NewEngine(nil, 2)
	s := newSession()

	c := cons("c", types.ConsequenceAttribute, "panic", "+1")
	c.Condition = "chain:b"
	b := cons("b", types.ConsequenceChainReaction, "b", "")
	b.Condition = "chain:a"
	a := cons("a", types.ConsequenceChainReaction, "a", "")

	res := e.Resolve([]types.Consequence{c, b, a}, s)

	assert.Len(t, res.Applied, 2)
	require.Len(t, res.Abandoned, 1)
	assert.Equal(t, "c", res.Abandoned[0].ID)
}

func TestUnfiredChainIsDiscarded(t *testing.T) {
	e := NewEngine(nil, 0)
	s := newSession()

	follow := cons("follow", types.ConsequenceAttribute, "panic", "+1")
	follow.Condition = "chain:alarm"

	res := e.Resolve([]types.Consequence{follow}, s)
	assert.Len(t, res.Discarded, 1)
	assert.Empty(t, res.Abandoned)
}

func TestDelayedConsequenceFiresOnDueTurn(t *testing.T) {
	e := NewEngine(nil, 0)
	s := newSession()

	delayed := cons("bounty", types.ConsequenceAttribute, "bounty", "+100")
	delayed.Delay = 3

	turn := 1
	e.ApplyDue(s, turn)
	res := e.ScheduleOrApply([]types.Consequence{delayed}, s, turn)
	require.Len(t, res.Scheduled, 1)
	require.Len(t, s.Player.Pending, 1)
	assert.Equal(t, 4, s.Player.Pending[0].DueTurn)

	for i := 0; i < 2; i++ {
		turn++
		e.ApplyDue(s, turn)
		assert.NotContains(t, s.Player.Attributes, "bounty", "turn %d", turn)
	}

	turn++
	res = e.ApplyDue(s, turn)
	assert.Len(t, res.Applied, 1)
	assert.Equal(t, 100, s.Player.Attributes["bounty"])
	assert.Empty(t, s.Player.Pending)
}

func TestApplyDueChecksConditionAtFireTime(t *testing.T) {
	e := NewEngine(nil, 0)
	s := newSession()

	delayed := cons("reward", types.ConsequenceAttribute, "gold", "+5")
	delayed.Delay = 1
	delayed.Condition = "visited:vault"
	e.ScheduleOrApply([]types.Consequence{delayed}, s, 1)

	res := e.ApplyDue(s, 2)
	assert.Len(t, res.Discarded, 1)
	assert.Empty(t, s.Player.Pending, "discarded consequences are not retried")
	assert.NotContains(t, s.Player.Attributes, "gold")
}

func TestApplyDueIsScopedToStory(t *testing.T) {
	e := NewEngine(nil, 0)
	s := newSession()
	s.Player.Pending = append(s.Player.Pending,
		types.PendingConsequence{ID: "x", StoryID: "other", DueTurn: 1, Consequence: cons("x", types.ConsequenceAttribute, "gold", "+1")},
		types.PendingConsequence{ID: "late", StoryID: "harbor", DueTurn: 3, Consequence: cons("late", types.ConsequenceAttribute, "gold", "+1")},
		types.PendingConsequence{ID: "early", StoryID: "harbor", DueTurn: 1, Consequence: cons("early", types.ConsequenceAttribute, "gold", "7")},
	)

	res := e.ApplyDue(s, 5)
	require.Len(t, res.Applied, 2)
	assert.Equal(t, "early", res.Applied[0].ID)
	assert.Equal(t, "late", res.Applied[1].ID)
	require.Len(t, s.Player.Pending, 1)
	assert.Equal(t, "other", s.Player.Pending[0].StoryID)

	ClearPending(s.Player, "other")
	assert.Empty(t, s.Player.Pending)
}
