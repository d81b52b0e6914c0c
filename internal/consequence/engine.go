// Package consequence applies the state changes declared by choices and
// skill-check outcomes, and owns each player's queue of delayed changes.
package consequence

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/user/storyweave/internal/condition"
	"github.com/user/storyweave/internal/types"
	"github.com/user/storyweave/internal/world"
	"go.uber.org/zap"
)

// DefaultMaxChainPasses bounds chain-reaction resolution when none is configured
const DefaultMaxChainPasses = 8

// ErrMalformedPayload is logged when a consequence value cannot be decoded
var ErrMalformedPayload = types.ErrMalformedPayload

// ErrChainCycle is logged when chained consequences never become eligible
var ErrChainCycle = errors.New("chain reaction did not settle")

// Session is the mutable state one resolution works on: a player inside a story
type Session struct {
	Player  *types.PlayerState
	World   world.State
	storyID string
}

var _ condition.Facts = (*Session)(nil)

// NewSession binds a player and a world to a story
func NewSession(p *types.PlayerState, storyID string, w world.State) *Session {
	p.EnsureMaps()
	return &Session{Player: p, World: w, storyID: storyID}
}

func (s *Session) StoryID() string { return s.storyID }

func (s *Session) Attribute(name string) int { return s.Player.Attributes[name] }

func (s *Session) Progress(key string) (string, bool) {
	v, ok := s.Player.Progress[key]
	return v, ok
}

func (s *Session) WorldState(key string) (string, bool) {
	if s.World == nil {
		return "", false
	}
	return s.World.Get(key)
}

// Result lists what happened to each consequence of a resolution
type Result struct {
	Applied   []types.Consequence
	Discarded []types.Consequence
	Scheduled []types.Consequence
	Abandoned []types.Consequence
}

// Merge appends the entries of other
func (r *Result) Merge(other Result) {
	r.Applied = append(r.Applied, other.Applied...)
	r.Discarded = append(r.Discarded, other.Discarded...)
	r.Scheduled = append(r.Scheduled, other.Scheduled...)
	r.Abandoned = append(r.Abandoned, other.Abandoned...)
}

// Engine applies consequences to sessions. It holds no per-player state and
// is safe for concurrent use.
type Engine struct {
	logger         *zap.Logger
	maxChainPasses int
}

// NewEngine creates a new consequence engine
func NewEngine(logger *zap.Logger, maxChainPasses int) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxChainPasses <= 0 {
		maxChainPasses = DefaultMaxChainPasses
	}
	return &Engine{
		logger:         logger,
		maxChainPasses: maxChainPasses,
	}
}

// Apply applies a single consequence if its condition holds.
// It reports false when the condition or an unknown type discarded it.
func (e *Engine) Apply(c types.Consequence, s *Session) bool {
	gate, amount := e.compiled(c, s)
	if !gate.Eval(s) {
		return false
	}

	attrs := s.Player.Attributes
	switch c.Type {
	case types.ConsequenceAttribute:
		if amount.Kind == types.AmountSet {
			attrs[c.Target] = amount.N
		} else {
			attrs[c.Target] += amount.N
		}
	case types.ConsequenceRelationship:
		attrs["relationship:"+c.Target] += amount.N
	case types.ConsequenceFaction:
		attrs["faction:"+c.Target] += amount.N
	case types.ConsequenceWorldState:
		if s.World != nil {
			s.World.Set(c.Target, amount.Text)
		}
	case types.ConsequenceEvent:
		s.Player.Progress["event:"+c.Target] = "triggered"
	case types.ConsequenceChainReaction:
		s.Player.Progress["chain:"+c.Target] = "triggered"
	case types.ConsequenceCumulative:
		next := attrs[c.Target] + amount.N
		if amount.Max != nil && next > *amount.Max {
			next = *amount.Max
		}
		attrs[c.Target] = next
	default:
		e.logger.Warn("Unknown consequence type",
			zap.String("player_id", s.Player.ID),
			zap.String("consequence_id", c.ID),
			zap.String("type", string(c.Type)))
		return false
	}
	return true
}

// Resolve applies a batch in declaration order. A consequence gated on
// "chain:X" whose trigger X is still waiting later in the batch is deferred
// to the next pass. Passes stop once nothing is left, nothing moved, or the
// pass limit is hit; anything left then is abandoned.
func (e *Engine) Resolve(cs []types.Consequence, s *Session) Result {
	var res Result
	remaining := append([]types.Consequence(nil), cs...)

	for pass := 0; len(remaining) > 0; pass++ {
		if pass >= e.maxChainPasses {
			e.abandon(remaining, s, pass, &res)
			break
		}

		var deferred []types.Consequence
		progressed := false
		for i, c := range remaining {
			if e.waitsOnTrigger(c, s, remaining[i+1:], deferred) {
				deferred = append(deferred, c)
				continue
			}
			progressed = true
			if e.Apply(c, s) {
				res.Applied = append(res.Applied, c)
			} else {
				res.Discarded = append(res.Discarded, c)
			}
		}

		if !progressed {
			e.abandon(deferred, s, pass+1, &res)
			break
		}
		remaining = deferred
	}
	return res
}

// ScheduleOrApply queues delayed consequences for currentTurn+delay and
// resolves the immediate ones
func (e *Engine) ScheduleOrApply(cs []types.Consequence, s *Session, currentTurn int) Result {
	var res Result
	var immediate []types.Consequence
	for _, c := range cs {
		if !c.IsDelayed() {
			immediate = append(immediate, c)
			continue
		}
		s.Player.Pending = append(s.Player.Pending, types.PendingConsequence{
			ID:            uuid.New().String(),
			StoryID:       s.storyID,
			ScheduledTurn: currentTurn,
			DueTurn:       currentTurn + c.Delay,
			Consequence:   c,
		})
		res.Scheduled = append(res.Scheduled, c)
		e.logger.Debug("Scheduled consequence",
			zap.String("player_id", s.Player.ID),
			zap.String("story_id", s.storyID),
			zap.String("consequence_id", c.ID),
			zap.Int("due_turn", currentTurn+c.Delay))
	}
	res.Merge(e.Resolve(immediate, s))
	return res
}

// ApplyDue removes every pending consequence of the session's story that is
// due at or before currentTurn and resolves them, oldest due turn first
func (e *Engine) ApplyDue(s *Session, currentTurn int) Result {
	var due []types.PendingConsequence
	kept := s.Player.Pending[:0:0]
	for _, p := range s.Player.Pending {
		if p.StoryID == s.storyID && p.DueTurn <= currentTurn {
			due = append(due, p)
		} else {
			kept = append(kept, p)
		}
	}
	if len(due) == 0 {
		return Result{}
	}
	s.Player.Pending = kept

	sort.SliceStable(due, func(i, j int) bool { return due[i].DueTurn < due[j].DueTurn })
	batch := make([]types.Consequence, len(due))
	for i, p := range due {
		batch[i] = p.Consequence
	}

	e.logger.Debug("Applying due consequences",
		zap.String("player_id", s.Player.ID),
		zap.String("story_id", s.storyID),
		zap.Int("turn", currentTurn),
		zap.Int("count", len(batch)))
	return e.Resolve(batch, s)
}

// ClearPending drops every pending consequence of a story
func ClearPending(p *types.PlayerState, storyID string) {
	kept := p.Pending[:0:0]
	for _, pc := range p.Pending {
		if pc.StoryID != storyID {
			kept = append(kept, pc)
		}
	}
	p.Pending = kept
}

// waitsOnTrigger reports whether c is gated on a chain whose trigger has not
// fired yet but is still queued in this pass
func (e *Engine) waitsOnTrigger(c types.Consequence, s *Session, later, deferred []types.Consequence) bool {
	chainID, ok := chainDependency(c)
	if !ok {
		return false
	}
	if v, ok := s.Player.Progress["chain:"+chainID]; ok && v == "triggered" {
		return false
	}
	return triggers(later, chainID) || triggers(deferred, chainID)
}

func (e *Engine) abandon(cs []types.Consequence, s *Session, passes int, res *Result) {
	if len(cs) == 0 {
		return
	}
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	e.logger.Warn("Abandoning chained consequences",
		zap.String("player_id", s.Player.ID),
		zap.String("story_id", s.storyID),
		zap.Int("passes", passes),
		zap.Strings("consequence_ids", ids),
		zap.Error(ErrChainCycle))
	res.Abandoned = append(res.Abandoned, cs...)
}

// compiled returns the condition and decoded value of c. Consequences
// restored from storage carry only their source strings.
func (e *Engine) compiled(c types.Consequence, s *Session) (condition.Expr, types.Amount) {
	gate := c.Gate
	if gate == nil {
		var err error
		if gate, err = condition.Parse(c.Condition); err != nil {
			e.logger.Warn("Invalid consequence condition",
				zap.String("story_id", s.storyID),
				zap.String("consequence_id", c.ID),
				zap.Error(err))
		}
	}
	if c.Amount != nil {
		return gate, *c.Amount
	}
	amount, err := types.DecodeAmount(c.Type, c.Value)
	if err != nil {
		e.logger.Warn("Malformed consequence payload",
			zap.String("story_id", s.storyID),
			zap.String("consequence_id", c.ID),
			zap.Error(err))
	}
	return gate, amount
}

func chainDependency(c types.Consequence) (string, bool) {
	if expr, ok := c.Gate.(condition.ChainFired); ok {
		return expr.Chain, true
	}
	if c.Gate == nil {
		if expr, err := condition.Parse(c.Condition); err == nil {
			if chain, ok := expr.(condition.ChainFired); ok {
				return chain.Chain, true
			}
		}
	}
	return "", false
}

func triggers(cs []types.Consequence, chainID string) bool {
	for _, c := range cs {
		if c.Type == types.ConsequenceChainReaction && c.Target == chainID {
			return true
		}
	}
	return false
}
