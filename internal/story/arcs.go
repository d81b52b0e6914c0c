package story

import (
	"strings"

	"github.com/user/storyweave/internal/condition"
	"github.com/user/storyweave/internal/types"
)

// AvailableArcs returns the arcs the journey may enter, in story order.
// An arc is available when its dependency is empty, names an unlocked arc,
// or is a "condition:" predicate the facts satisfy, and no unlocked arc
// excludes it.
func AvailableArcs(s *types.Story, journey *types.Journey, facts condition.Facts) []*types.StoryArc {
	var out []*types.StoryArc
	for i := range s.Arcs {
		arc := &s.Arcs[i]
		if dependencyMet(arc, journey, facts) && !excluded(s, arc, journey) {
			out = append(out, arc)
		}
	}
	return out
}

// ArcsUnlockedAt returns the ids of arcs that reaching beatID unlocks:
// the unlocks of every unlocked arc ending at the beat, then every newly
// available arc starting there. Arcs already unlocked are skipped.
func ArcsUnlockedAt(s *types.Story, journey *types.Journey, beatID string, facts condition.Facts) []string {
	trial := &types.Journey{UnlockedArcs: append([]string(nil), journey.UnlockedArcs...)}
	var out []string
	unlock := func(arc *types.StoryArc) {
		if excluded(s, arc, trial) {
			return
		}
		if trial.UnlockArc(arc.ID) {
			out = append(out, arc.ID)
		}
	}

	// Finished arcs
	for i := range s.Arcs {
		arc := &s.Arcs[i]
		if !arc.IsEndBeat(beatID) || !journey.IsArcUnlocked(arc.ID) {
			continue
		}
		for _, id := range arc.Unlocks {
			if next, ok := s.Arc(id); ok {
				unlock(next)
			}
		}
	}

	// Arcs entered here
	for i := range s.Arcs {
		arc := &s.Arcs[i]
		if arc.StartBeatID == beatID && dependencyMet(arc, trial, facts) {
			unlock(arc)
		}
	}
	return out
}

func dependencyMet(arc *types.StoryArc, journey *types.Journey, facts condition.Facts) bool {
	switch {
	case arc.Dependency == "":
		return true
	case strings.HasPrefix(arc.Dependency, types.ArcConditionPrefix):
		if arc.Gate == nil {
			return false
		}
		return arc.Gate.Eval(facts)
	default:
		return journey.IsArcUnlocked(arc.Dependency)
	}
}

func excluded(s *types.Story, arc *types.StoryArc, journey *types.Journey) bool {
	for _, id := range journey.UnlockedArcs {
		if id == arc.ID {
			continue
		}
		if arc.IsExclusiveWith(id) {
			return true
		}
		if other, ok := s.Arc(id); ok && other.IsExclusiveWith(arc.ID) {
			return true
		}
	}
	return false
}
