// Package story holds the immutable story graph: loading stories from JSON,
// compiling their predicates and payloads, and validating graph integrity.
//
// A *types.Story returned by this package is never mutated afterwards and is
// shared read-only by every player.
package story

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/user/storyweave/internal/types"
)

var (
	// ErrStoryNotFound is returned when no story exists with the requested id
	ErrStoryNotFound = errors.New("story not found")
	// ErrBeatNotFound is returned when a choice or outcome points outside the beat map
	ErrBeatNotFound = errors.New("beat not found")
	// ErrMissingStartBeat is returned when startBeatId does not resolve
	ErrMissingStartBeat = errors.New("start beat not found")
	// ErrUnreachableBeat is returned when a beat cannot be reached from the start beat
	ErrUnreachableBeat = errors.New("unreachable beat")
	// ErrArcNotFound is returned when an arc refers to an arc the story does not define
	ErrArcNotFound = errors.New("arc not found")
	// ErrDuplicateID is returned when two arcs or two endings share an id
	ErrDuplicateID = errors.New("duplicate id")
)

// IntegrityError lists every graph problem found while validating a story
type IntegrityError struct {
	StoryID  string
	Problems []error
}

func (e *IntegrityError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("story %s failed integrity check: %s", e.StoryID, strings.Join(msgs, "; "))
}

// Unwrap exposes the individual problems to errors.Is
func (e *IntegrityError) Unwrap() []error {
	return e.Problems
}

// Graph wraps a validated story with O(1) beat lookup
type Graph struct {
	story *types.Story
}

// NewGraph compiles and validates the story and returns a read-only graph over it
func NewGraph(s *types.Story) (*Graph, error) {
	if err := Prepare(s, nil); err != nil {
		return nil, err
	}
	return &Graph{story: s}, nil
}

// Story returns the underlying story
func (g *Graph) Story() *types.Story {
	return g.story
}

// Beat returns a beat by id
func (g *Graph) Beat(id string) (*types.Beat, bool) {
	b, ok := g.story.Beats[id]
	return b, ok
}

// StartBeat returns the story's first beat
func (g *Graph) StartBeat() *types.Beat {
	return g.story.Beats[g.story.StartBeatID]
}

// Validate checks that the start beat exists, that every choice and
// skill-check outcome points at a beat of the same story, and that every
// beat is reachable from the start. Arcs and endings must point at existing
// beats and arcs.
func Validate(s *types.Story) error {
	var problems []error

	if _, ok := s.Beats[s.StartBeatID]; !ok {
		problems = append(problems, fmt.Errorf("%w: %q", ErrMissingStartBeat, s.StartBeatID))
	}

	for _, beatID := range sortedBeatIDs(s) {
		beat := s.Beats[beatID]
		for _, target := range edges(beat) {
			if _, ok := s.Beats[target.beatID]; !ok {
				problems = append(problems, fmt.Errorf("%w: beat %s %s points to %q",
					ErrBeatNotFound, beatID, target.via, target.beatID))
			}
		}
	}

	problems = append(problems, validateArcs(s)...)
	problems = append(problems, validateEndings(s)...)

	if len(problems) == 0 {
		reachable := Reachable(s)
		for _, beatID := range sortedBeatIDs(s) {
			if !reachable[beatID] {
				problems = append(problems, fmt.Errorf("%w: %s", ErrUnreachableBeat, beatID))
			}
		}
	}

	if len(problems) > 0 {
		return &IntegrityError{StoryID: s.ID, Problems: problems}
	}
	return nil
}

func validateArcs(s *types.Story) []error {
	var problems []error
	ids := make(map[string]bool, len(s.Arcs))
	for _, arc := range s.Arcs {
		if ids[arc.ID] {
			problems = append(problems, fmt.Errorf("%w: arc %q", ErrDuplicateID, arc.ID))
		}
		ids[arc.ID] = true
	}

	for _, arc := range s.Arcs {
		if _, ok := s.Beats[arc.StartBeatID]; !ok {
			problems = append(problems, fmt.Errorf("%w: arc %s starts at %q",
				ErrBeatNotFound, arc.ID, arc.StartBeatID))
		}
		for _, beatID := range arc.EndBeatIDs {
			if _, ok := s.Beats[beatID]; !ok {
				problems = append(problems, fmt.Errorf("%w: arc %s ends at %q",
					ErrBeatNotFound, arc.ID, beatID))
			}
		}
		if arc.Dependency != "" && !strings.HasPrefix(arc.Dependency, types.ArcConditionPrefix) && !ids[arc.Dependency] {
			problems = append(problems, fmt.Errorf("%w: arc %s depends on %q",
				ErrArcNotFound, arc.ID, arc.Dependency))
		}
		for _, ref := range append(append([]string(nil), arc.ExclusiveWith...), arc.Unlocks...) {
			if !ids[ref] {
				problems = append(problems, fmt.Errorf("%w: arc %s refers to %q",
					ErrArcNotFound, arc.ID, ref))
			}
		}
	}
	return problems
}

func validateEndings(s *types.Story) []error {
	var problems []error
	ids := make(map[string]bool, len(s.Endings))
	for _, e := range s.Endings {
		if ids[e.ID] {
			problems = append(problems, fmt.Errorf("%w: ending %q", ErrDuplicateID, e.ID))
		}
		ids[e.ID] = true
		if _, ok := s.Beats[e.BeatID]; !ok {
			problems = append(problems, fmt.Errorf("%w: ending %s is at %q",
				ErrBeatNotFound, e.ID, e.BeatID))
		}
	}
	return problems
}

// Reachable returns the set of beats reachable from the start beat following
// every choice and skill-check outcome. Conditions are treated as satisfiable.
func Reachable(s *types.Story) map[string]bool {
	seen := make(map[string]bool, len(s.Beats))
	start, ok := s.Beats[s.StartBeatID]
	if !ok {
		return seen
	}

	queue := []*types.Beat{start}
	seen[s.StartBeatID] = true
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, e := range edges(curr) {
			next, ok := s.Beats[e.beatID]
			if !ok || seen[e.beatID] {
				continue
			}
			seen[e.beatID] = true
			queue = append(queue, next)
		}
	}
	return seen
}

type edge struct {
	via    string
	beatID string
}

func edges(b *types.Beat) []edge {
	var out []edge
	for _, c := range b.Choices {
		if c.SkillCheck == nil {
			out = append(out, edge{via: "choice " + c.ID, beatID: c.NextBeatID})
			continue
		}
		for _, o := range OutcomeTargets(&c) {
			out = append(out, edge{via: "choice " + c.ID + " " + o.Label, beatID: o.BeatID})
		}
	}
	return out
}

// OutcomeTarget is a beat a skill-check choice can lead to
type OutcomeTarget struct {
	Label  string
	BeatID string
}

// OutcomeTargets lists the destinations of a skill-check choice. An outcome
// without its own next beat falls back to the choice's next beat.
func OutcomeTargets(c *types.Choice) []OutcomeTarget {
	sc := c.SkillCheck
	if sc == nil {
		return []OutcomeTarget{{Label: "next", BeatID: c.NextBeatID}}
	}
	targets := []OutcomeTarget{
		{Label: "success", BeatID: NextBeat(c, &sc.Success)},
		{Label: "failure", BeatID: NextBeat(c, &sc.Failure)},
	}
	if sc.CriticalSuccess != nil {
		targets = append(targets, OutcomeTarget{Label: "critical success", BeatID: NextBeat(c, sc.CriticalSuccess)})
	}
	if sc.CriticalFailure != nil {
		targets = append(targets, OutcomeTarget{Label: "critical failure", BeatID: NextBeat(c, sc.CriticalFailure)})
	}
	return targets
}

// NextBeat resolves where a choice leads once an outcome is known
func NextBeat(c *types.Choice, o *types.Outcome) string {
	if o != nil && o.NextBeatID != "" {
		return o.NextBeatID
	}
	return c.NextBeatID
}

func sortedBeatIDs(s *types.Story) []string {
	ids := make([]string, 0, len(s.Beats))
	for id := range s.Beats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
