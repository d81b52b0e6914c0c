package story

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/user/storyweave/internal/condition"
	"github.com/user/storyweave/internal/skill"
	"github.com/user/storyweave/internal/types"
	"go.uber.org/zap"
)

// ErrUnknownConsequenceType is reported for consequences the engine cannot apply
var ErrUnknownConsequenceType = errors.New("unknown consequence type")

// Skill-check thresholds filled in when a check leaves them unset
const (
	DefaultCriticalSuccessThreshold = skill.DefaultCriticalSuccessThreshold
	DefaultCriticalFailureThreshold = skill.DefaultCriticalFailureThreshold
)

// Compile prepares a decoded story for play: it fills in missing ids and
// skill-check thresholds, parses every condition into an AST and decodes
// every consequence value. Authoring mistakes do not stop the story from
// loading; they are returned as warnings and logged, and the affected
// predicate fails closed or the affected payload defaults to 0.
// Compiling a story twice is a no-op.
func Compile(s *types.Story, logger *zap.Logger) []error {
	if s.Compiled {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	if s.RequiredTier == "" {
		s.RequiredTier = types.TierFree
	}

	var warnings []error
	warn := func(err error) {
		warnings = append(warnings, err)
		logger.Warn("Story content problem",
			zap.String("story_id", s.ID),
			zap.Error(err))
	}

	for id, beat := range s.Beats {
		if beat == nil {
			delete(s.Beats, id)
			warn(fmt.Errorf("beat %s is empty", id))
			continue
		}
		if beat.ID != id {
			if beat.ID != "" {
				warn(fmt.Errorf("beat %s declares id %q, using its key", id, beat.ID))
			}
			beat.ID = id
		}
		for i := range beat.Choices {
			choice := &beat.Choices[i]
			where := fmt.Sprintf("beat %s choice %s", beat.ID, choice.ID)
			if choice.Weight == "" {
				choice.Weight = types.WeightNormal
			}
			gate, err := condition.Parse(choice.Condition)
			if err != nil {
				warn(fmt.Errorf("%s: %w", where, err))
			}
			choice.Gate = gate
			compileConsequences(choice.Consequences, where, warn)

			if sc := choice.SkillCheck; sc != nil {
				if sc.CriticalSuccessThreshold == 0 {
					sc.CriticalSuccessThreshold = DefaultCriticalSuccessThreshold
				}
				if sc.CriticalFailureThreshold == 0 {
					sc.CriticalFailureThreshold = DefaultCriticalFailureThreshold
				}
				compileConsequences(sc.Success.Consequences, where+" success", warn)
				compileConsequences(sc.Failure.Consequences, where+" failure", warn)
				if sc.CriticalSuccess != nil {
					compileConsequences(sc.CriticalSuccess.Consequences, where+" critical success", warn)
				}
				if sc.CriticalFailure != nil {
					compileConsequences(sc.CriticalFailure.Consequences, where+" critical failure", warn)
				}
			}
		}
	}

	compileArcs(s, warn)
	compileEndings(s)

	s.Compiled = true
	return warnings
}

func compileArcs(s *types.Story, warn func(error)) {
	for i := range s.Arcs {
		arc := &s.Arcs[i]
		pred, ok := strings.CutPrefix(arc.Dependency, types.ArcConditionPrefix)
		if !ok {
			continue
		}
		gate, err := condition.Parse(pred)
		if err != nil {
			warn(fmt.Errorf("arc %s dependency: %w", arc.ID, err))
		}
		arc.Gate = gate
	}
}

func compileEndings(s *types.Story) {
	for i := range s.Endings {
		e := &s.Endings[i]
		if e.ID == "" {
			e.ID = e.BeatID
		}
		if e.Category == "" {
			e.Category = types.EndingNeutral
		}
		if e.Rarity == "" {
			e.Rarity = types.RarityCommon
		}
	}
}

func compileConsequences(cs []types.Consequence, where string, warn func(error)) {
	for i := range cs {
		c := &cs[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if !c.Type.Valid() {
			warn(fmt.Errorf("%s consequence %s: %w: %q", where, c.ID, ErrUnknownConsequenceType, c.Type))
		}
		amount, err := types.DecodeAmount(c.Type, c.Value)
		if err != nil {
			warn(fmt.Errorf("%s consequence %s: %w", where, c.ID, err))
		}
		c.Amount = &amount
		gate, err := condition.Parse(c.Condition)
		if err != nil {
			warn(fmt.Errorf("%s consequence %s: %w", where, c.ID, err))
		}
		c.Gate = gate
	}
}
