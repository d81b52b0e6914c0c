package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/user/storyweave/config"
	"github.com/user/storyweave/internal/condition"
	"github.com/user/storyweave/internal/consequence"
	"github.com/user/storyweave/internal/events"
	"github.com/user/storyweave/internal/interfaces"
	"github.com/user/storyweave/internal/skill"
	"github.com/user/storyweave/internal/storage"
	"github.com/user/storyweave/internal/story"
	"github.com/user/storyweave/internal/types"
	"github.com/user/storyweave/internal/world"
	"go.uber.org/zap"
)

var (
	// ErrInvalidChoice is returned for unknown choice ids and for choices
	// whose condition is not met. Callers cannot tell the two apart.
	ErrInvalidChoice = errors.New("invalid choice")
	// ErrAccessDenied is returned when a story needs a subscription the player lacks
	ErrAccessDenied = errors.New("subscription required")
	// ErrStoryNotFound is returned when no story exists with the requested id
	ErrStoryNotFound = story.ErrStoryNotFound
	// ErrPlayerNotFound is returned when no player exists with the requested id
	ErrPlayerNotFound = storage.ErrPlayerNotFound
)

// GameManager advances players through stories. Stories are shared
// read-only; each player's state is loaded, changed on a copy and saved
// while holding that player's lock.
type GameManager struct {
	config  config.Config
	stories interfaces.StoryLibrary
	store   interfaces.PlayerStore
	engine  *consequence.Engine
	roller  skill.Roller
	events  interfaces.EventSink
	shared  *world.Shared
	locks   *keyedMutex
	now     func() time.Time
	Logger  *zap.Logger
}

// Ensure GameManager satisfies the interfaces.GameManager interface
var _ interfaces.GameManager = (*GameManager)(nil)

// NewGameManager creates a new game manager
func NewGameManager(cfg config.Config, stories interfaces.StoryLibrary, store interfaces.PlayerStore) *GameManager {
	gm := &GameManager{
		config:  cfg,
		stories: stories,
		store:   store,
		engine:  consequence.NewEngine(nil, cfg.Game.MaxChainPasses),
		roller:  skill.NewDiceRoller(cfg.Game.RNGSeed),
		events:  nopSink{},
		locks:   newKeyedMutex(),
		now:     time.Now,
		Logger:  zap.NewNop(), // Will be set by the server
	}
	if world.Scope(cfg.Game.WorldStateScope) == world.ScopeShared {
		gm.shared = world.NewShared()
	}
	return gm
}

// SetLogger replaces the logger of the manager and its consequence engine
func (gm *GameManager) SetLogger(logger *zap.Logger) {
	gm.Logger = logger
	gm.engine = consequence.NewEngine(logger, gm.config.Game.MaxChainPasses)
}

// SetEventSink sets where gameplay events are published
func (gm *GameManager) SetEventSink(sink interfaces.EventSink) {
	gm.events = sink
}

// SetRoller replaces the skill-check dice
func (gm *GameManager) SetRoller(r skill.Roller) {
	gm.roller = r
}

// SetClock replaces the time source
func (gm *GameManager) SetClock(now func() time.Time) {
	gm.now = now
}

// GetOrCreatePlayer returns the stored player or registers a new one
func (gm *GameManager) GetOrCreatePlayer(ctx context.Context, playerID, name string) (*types.PlayerState, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, errors.New("player id is required")
	}

	unlock := gm.locks.Lock(playerID)
	defer unlock()

	player, err := gm.store.Load(ctx, playerID)
	if err == nil {
		return player, nil
	}
	if !errors.Is(err, storage.ErrPlayerNotFound) {
		return nil, fmt.Errorf("failed to load player: %w", err)
	}

	// Create new player
	player = types.NewPlayerState(playerID, name, gm.now())
	for k, v := range gm.config.Game.DefaultAttributes {
		player.Attributes[k] = v
	}

	if err := gm.store.Save(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to save player state: %w", err)
	}

	gm.Logger.Info("Registered player",
		zap.String("player_id", playerID),
		zap.String("name", name))
	return player, nil
}

// GetPlayer retrieves a player by id
func (gm *GameManager) GetPlayer(ctx context.Context, playerID string) (*types.PlayerState, error) {
	player, err := gm.store.Load(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return player, nil
}

// DeletePlayer removes a player and everything recorded about them
func (gm *GameManager) DeletePlayer(ctx context.Context, playerID string) error {
	unlock := gm.locks.Lock(playerID)
	defer unlock()

	if err := gm.store.Delete(ctx, playerID); err != nil {
		return err
	}
	gm.Logger.Info("Deleted player", zap.String("player_id", playerID))
	return nil
}

// ListStories returns every loaded story
func (gm *GameManager) ListStories() []*types.Story {
	return gm.stories.List()
}

// StartStory puts the player at the start beat of a fresh run of the story
func (gm *GameManager) StartStory(ctx context.Context, playerID, storyID string) (*types.Beat, error) {
	s, err := gm.stories.Story(storyID)
	if err != nil {
		return nil, err
	}

	unlock := gm.locks.Lock(playerID)
	defer unlock()

	player, err := gm.store.Load(ctx, playerID)
	if err != nil {
		return nil, err
	}

	now := gm.now()
	if !player.CanAccess(s.RequiredTier, now) {
		return nil, fmt.Errorf("%w: story %s needs %s", ErrAccessDenied, storyID, s.RequiredTier)
	}

	start := s.Beats[s.StartBeatID]
	next := player.Clone()

	// Reset everything recorded about a previous run
	resetProgress(next, storyID)
	consequence.ClearPending(next, storyID)
	delete(next.Turns, storyID)
	delete(next.World, storyID)

	next.Progress[currentBeatKey(storyID)] = start.ID
	next.Progress[condition.VisitedKey(storyID, start.ID)] = "true"
	journey := &types.Journey{
		StoryID:   storyID,
		StartedAt: now,
		Decisions: make([]types.Decision, 0),
	}
	next.Journeys[storyID] = journey
	ws, _ := gm.worldFor(next, s)
	arcs := unlockArcs(next, s, journey, start.ID, consequence.NewSession(next, storyID, ws))
	next.LastActiveAt = now

	if err := gm.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save player state: %w", err)
	}

	gm.Logger.Info("Story started",
		zap.String("player_id", playerID),
		zap.String("story_id", storyID),
		zap.String("beat_id", start.ID))

	gm.publish(events.StoryStarted, map[string]any{
		"player_id": playerID,
		"story_id":  storyID,
	})
	gm.publish(events.BeatReached, map[string]any{
		"player_id": playerID,
		"story_id":  storyID,
		"beat_id":   start.ID,
		"terminal":  start.IsTerminal(),
	})
	gm.publishArcs(playerID, storyID, start.ID, arcs)
	return start, nil
}

// MakeChoice resolves a choice and returns the beat the player lands on
func (gm *GameManager) MakeChoice(ctx context.Context, playerID, storyID, choiceID string) (*types.Beat, error) {
	turn, err := gm.Choose(ctx, playerID, storyID, choiceID)
	if err != nil {
		return nil, err
	}
	return turn.Beat, nil
}

// Choose resolves a choice: it checks the choice is available from the
// current beat, advances the turn counter, fires due delayed consequences,
// performs any skill check, applies the choice's consequences, moves the
// player and saves. Rejected choices leave the stored state untouched.
func (gm *GameManager) Choose(ctx context.Context, playerID, storyID, choiceID string) (*types.Turn, error) {
	s, err := gm.stories.Story(storyID)
	if err != nil {
		return nil, err
	}

	unlock := gm.locks.Lock(playerID)
	defer unlock()

	player, err := gm.store.Load(ctx, playerID)
	if err != nil {
		return nil, err
	}

	now := gm.now()
	if !player.CanAccess(s.RequiredTier, now) {
		return nil, fmt.Errorf("%w: story %s needs %s", ErrAccessDenied, storyID, s.RequiredTier)
	}

	// Resolve current beat and choice
	current := currentBeat(s, player)
	choice, ok := current.Choice(choiceID)
	if !ok || current.IsTerminal() {
		return nil, ErrInvalidChoice
	}

	next := player.Clone()
	ws, commit := gm.worldFor(next, s)
	session := consequence.NewSession(next, storyID, ws)
	if !gate(choice.Gate, choice.Condition).Eval(session) {
		return nil, ErrInvalidChoice
	}

	// Advance the turn and fire what became due
	number := next.Turns[storyID] + 1
	next.Turns[storyID] = number
	result := gm.engine.ApplyDue(session, number)

	turn := &types.Turn{
		PlayerID: playerID,
		StoryID:  storyID,
		ChoiceID: choiceID,
		Number:   number,
	}

	nextBeatID := choice.NextBeatID
	decision := types.Decision{
		ID:        uuid.New().String(),
		BeatID:    current.ID,
		ChoiceID:  choiceID,
		Turn:      number,
		Timestamp: now,
	}
	if choice.SkillCheck != nil {
		check := skill.Perform(choice.SkillCheck, session, gm.roller)
		result.Merge(gm.engine.ScheduleOrApply(check.Outcome.Consequences, session, number))
		nextBeatID = story.NextBeat(choice, check.Outcome)
		turn.SkillCheck = check.Summary(choice.SkillCheck)
		decision.Outcome = check.Kind.String()
		decision.Roll = check.Roll
	} else {
		result.Merge(gm.engine.ScheduleOrApply(choice.Consequences, session, number))
	}

	beat, ok := s.Beats[nextBeatID]
	if !ok {
		return nil, fmt.Errorf("%w: %s in story %s", story.ErrBeatNotFound, nextBeatID, storyID)
	}

	// Record the move
	next.Progress[condition.VisitedKey(storyID, current.ID)] = "true"
	next.Progress[condition.ChoiceKey(storyID, choiceID)] = "true"
	next.Progress[condition.VisitedKey(storyID, beat.ID)] = "true"
	next.Progress[currentBeatKey(storyID)] = beat.ID
	journey := next.Journeys[storyID]
	if journey == nil {
		journey = &types.Journey{StoryID: storyID, StartedAt: now}
		next.Journeys[storyID] = journey
	}
	journey.Decisions = append(journey.Decisions, decision)
	turn.UnlockedArcs = unlockArcs(next, s, journey, beat.ID, session)
	if beat.IsTerminal() {
		next.Progress[completedKey(storyID)] = "true"
		completed := now
		journey.CompletedAt = &completed
		turn.Ending = recordEnding(next, s, journey, beat.ID)
	}
	next.LastActiveAt = now

	if err := gm.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save player state: %w", err)
	}
	commit()

	turn.Beat = beat
	turn.Terminal = beat.IsTerminal()
	turn.Applied = result.Applied
	turn.Scheduled = result.Scheduled
	turn.Discarded = result.Discarded
	turn.Abandoned = result.Abandoned

	gm.Logger.Info("Choice resolved",
		zap.String("player_id", playerID),
		zap.String("story_id", storyID),
		zap.String("choice_id", choiceID),
		zap.String("beat_id", beat.ID),
		zap.Int("turn", number),
		zap.Int("applied", len(result.Applied)),
		zap.Int("scheduled", len(result.Scheduled)))

	gm.publishTurn(turn, current.ID)
	return turn, nil
}

// CurrentBeat renders the player's current beat with only the choices the
// player can take right now
func (gm *GameManager) CurrentBeat(ctx context.Context, playerID, storyID, lang string, vars map[string]string) (*types.BeatView, error) {
	s, err := gm.stories.Story(storyID)
	if err != nil {
		return nil, err
	}
	player, err := gm.store.Load(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if lang == "" {
		lang = gm.config.Stories.DefaultLanguage
	}
	fallback := gm.config.Stories.FallbackLanguage
	merged := map[string]string{"name": player.Name}
	for k, v := range vars {
		merged[k] = v
	}

	ws, _ := gm.worldFor(player, s)
	session := consequence.NewSession(player, storyID, ws)
	beat := currentBeat(s, player)

	view := &types.BeatView{
		StoryID:  storyID,
		BeatID:   beat.ID,
		Text:     beat.Text.Resolve(lang, fallback, merged),
		Terminal: beat.IsTerminal(),
		Turn:     player.Turns[storyID],
		Choices:  make([]types.ChoiceView, 0, len(beat.Choices)),
	}
	if view.Terminal {
		return view, nil
	}
	for i := range beat.Choices {
		c := &beat.Choices[i]
		if !gate(c.Gate, c.Condition).Eval(session) {
			continue
		}
		view.Choices = append(view.Choices, types.ChoiceView{
			ID:            c.ID,
			Text:          c.Text.Resolve(lang, fallback, merged),
			Weight:        c.Weight.DisplayFactor(),
			HasSkillCheck: c.SkillCheck != nil,
		})
	}
	return view, nil
}

// Endings reports which endings of a story the player has discovered on any
// run, with a hint for each one still missing
func (gm *GameManager) Endings(ctx context.Context, playerID, storyID string) (*types.EndingsReport, error) {
	s, err := gm.stories.Story(storyID)
	if err != nil {
		return nil, err
	}
	player, err := gm.store.Load(ctx, playerID)
	if err != nil {
		return nil, err
	}

	report := &types.EndingsReport{
		StoryID:    storyID,
		Discovered: make([]string, 0, len(s.Endings)),
		Total:      len(s.Endings),
	}
	found := make(map[string]bool, len(s.Endings))
	for _, e := range s.Endings {
		if _, ok := player.Progress[condition.EndingKey(storyID, e.ID)]; ok {
			found[e.ID] = true
			report.Discovered = append(report.Discovered, e.ID)
		}
	}
	report.Hints = story.Hints(s.Endings, found)
	return report, nil
}

// worldFor returns the world state a resolution reads and writes, and a
// function that publishes its writes once the player is saved
func (gm *GameManager) worldFor(p *types.PlayerState, s *types.Story) (world.State, func()) {
	if gm.shared == nil {
		return world.ForPlayer(p, s), func() {}
	}
	buf := world.NewBuffered(gm.shared.For(s))
	return buf, buf.Commit
}

func (gm *GameManager) publishTurn(turn *types.Turn, fromBeatID string) {
	gm.publish(events.ChoiceMade, map[string]any{
		"player_id": turn.PlayerID,
		"story_id":  turn.StoryID,
		"beat_id":   fromBeatID,
		"choice_id": turn.ChoiceID,
		"turn":      turn.Number,
	})
	for _, c := range turn.Applied {
		gm.publish(events.ConsequenceTriggered, map[string]any{
			"player_id":      turn.PlayerID,
			"story_id":       turn.StoryID,
			"consequence_id": c.ID,
			"type":           string(c.Type),
			"target":         c.Target,
			"turn":           turn.Number,
		})
	}
	gm.publish(events.BeatReached, map[string]any{
		"player_id": turn.PlayerID,
		"story_id":  turn.StoryID,
		"beat_id":   turn.Beat.ID,
		"terminal":  turn.Terminal,
	})
	gm.publishArcs(turn.PlayerID, turn.StoryID, turn.Beat.ID, turn.UnlockedArcs)
	if turn.Terminal {
		payload := map[string]any{
			"player_id": turn.PlayerID,
			"story_id":  turn.StoryID,
			"beat_id":   turn.Beat.ID,
			"turns":     turn.Number,
		}
		if e := turn.Ending; e != nil {
			payload["ending_id"] = e.ID
			payload["ending_category"] = string(e.Category)
			payload["ending_rarity"] = string(e.Rarity)
		}
		gm.publish(events.StoryCompleted, payload)
	}
}

func (gm *GameManager) publishArcs(playerID, storyID, beatID string, arcs []string) {
	for _, id := range arcs {
		gm.publish(events.ArcUnlocked, map[string]any{
			"player_id": playerID,
			"story_id":  storyID,
			"beat_id":   beatID,
			"arc_id":    id,
		})
	}
}

// publish hands an event to the sink. A panicking sink is logged and ignored.
func (gm *GameManager) publish(name string, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			gm.Logger.Error("Event sink panicked",
				zap.String("event", name),
				zap.Any("recovered", r))
		}
	}()
	gm.events.Publish(name, payload)
}

func currentBeat(s *types.Story, p *types.PlayerState) *types.Beat {
	if id, ok := p.Progress[currentBeatKey(s.ID)]; ok {
		if b, ok := s.Beats[id]; ok {
			return b
		}
	}
	return s.Beats[s.StartBeatID]
}

func currentBeatKey(storyID string) string {
	return "story:" + storyID + ":currentBeat"
}

func completedKey(storyID string) string {
	return "story:" + storyID + ":completed"
}

// unlockArcs records the arcs that reaching beatID unlocks
func unlockArcs(p *types.PlayerState, s *types.Story, j *types.Journey, beatID string, facts condition.Facts) []string {
	if len(s.Arcs) == 0 {
		return nil
	}
	ids := story.ArcsUnlockedAt(s, j, beatID, facts)
	for _, id := range ids {
		j.UnlockArc(id)
		p.Progress[condition.ArcKey(s.ID, id)] = "true"
	}
	return ids
}

// recordEnding marks the ending at beatID as discovered. Discoveries
// survive restarts of the story.
func recordEnding(p *types.PlayerState, s *types.Story, j *types.Journey, beatID string) *types.Ending {
	e, ok := s.EndingAt(beatID)
	if !ok {
		return nil
	}
	j.EndingID = e.ID
	p.Progress[condition.EndingKey(s.ID, e.ID)] = "true"
	for k, v := range e.Unlocks {
		p.Progress[unlockKey(k)] = v
	}
	return e
}

func unlockKey(name string) string {
	return "unlock:" + name
}

// resetProgress drops the story-scoped progress keys of a previous run
func resetProgress(p *types.PlayerState, storyID string) {
	prefixes := []string{
		"story:" + storyID + ":",
		"visited:" + storyID + ":",
		"choice:" + storyID + ":",
		"arc:" + storyID + ":",
	}
	for key := range p.Progress {
		for _, prefix := range prefixes {
			if strings.HasPrefix(key, prefix) {
				delete(p.Progress, key)
				break
			}
		}
	}
}

// gate returns the compiled condition, compiling it on the fly for stories
// that were built in code and never went through the loader
func gate(expr condition.Expr, src string) condition.Expr {
	if expr != nil {
		return expr
	}
	compiled, _ := condition.Parse(src)
	return compiled
}

type nopSink struct{}

func (nopSink) Publish(string, map[string]any) {}
