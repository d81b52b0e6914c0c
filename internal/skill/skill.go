// Package skill resolves d20 skill checks against player attributes.
package skill

import (
	"math/rand"
	"sync"
	"time"

	"github.com/user/storyweave/internal/types"
)

const (
	// DieSides is the size of the skill-check die
	DieSides = 20
	// DefaultCriticalSuccessThreshold applies when a check leaves it unset
	DefaultCriticalSuccessThreshold = 18
	// DefaultCriticalFailureThreshold applies when a check leaves it unset
	DefaultCriticalFailureThreshold = 3
)

// Roller produces integers in [min, max]. Implementations must be safe for
// concurrent use.
type Roller interface {
	Between(min, max int) int
}

// DiceRoller handles dice rolling with a seeded random number generator
type DiceRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDiceRoller creates a dice roller. A zero seed uses the current time.
func NewDiceRoller(seed int64) *DiceRoller {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DiceRoller{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Between returns a uniform integer in [min, max]
func (dr *DiceRoller) Between(min, max int) int {
	if max <= min {
		return min
	}
	dr.mu.Lock()
	defer dr.mu.Unlock()
	return min + dr.rng.Intn(max-min+1)
}

// Roll rolls a die with the specified number of sides
func (dr *DiceRoller) Roll(sides int) int {
	return dr.Between(1, sides)
}

// Fixed is a Roller that always returns the same value, clamped to the range
type Fixed int

func (f Fixed) Between(min, max int) int {
	switch v := int(f); {
	case v < min:
		return min
	case v > max:
		return max
	default:
		return v
	}
}

// Kind is the class of outcome a check produced
type Kind int

const (
	KindFailure Kind = iota
	KindSuccess
	KindCriticalSuccess
	KindCriticalFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindCriticalSuccess:
		return "critical_success"
	case KindCriticalFailure:
		return "critical_failure"
	default:
		return "unknown"
	}
}

// AttributeSource supplies attribute values, 0 when absent
type AttributeSource interface {
	Attribute(name string) int
}

// Result is a resolved skill check
type Result struct {
	Roll    int
	Total   int
	Kind    Kind
	Outcome *types.Outcome
}

// Perform rolls the die and picks the outcome. First match wins: a roll at
// or above the critical success threshold with a critical success outcome,
// a roll at or below the critical failure threshold with a critical failure
// outcome, then roll+attribute+bonus against the difficulty. Unset
// thresholds use the defaults.
func Perform(check *types.SkillCheck, attrs AttributeSource, roller Roller) Result {
	roll := roller.Between(1, DieSides)
	total := roll + attrs.Attribute(check.Attribute) + check.BonusModifier

	critSuccess := check.CriticalSuccessThreshold
	if critSuccess == 0 {
		critSuccess = DefaultCriticalSuccessThreshold
	}
	critFailure := check.CriticalFailureThreshold
	if critFailure == 0 {
		critFailure = DefaultCriticalFailureThreshold
	}

	switch {
	case check.CriticalSuccess != nil && roll >= critSuccess:
		return Result{Roll: roll, Total: total, Kind: KindCriticalSuccess, Outcome: check.CriticalSuccess}
	case check.CriticalFailure != nil && roll <= critFailure:
		return Result{Roll: roll, Total: total, Kind: KindCriticalFailure, Outcome: check.CriticalFailure}
	case total >= check.Difficulty:
		return Result{Roll: roll, Total: total, Kind: KindSuccess, Outcome: &check.Success}
	default:
		return Result{Roll: roll, Total: total, Kind: KindFailure, Outcome: &check.Failure}
	}
}

// Summary converts the result for reporting
func (r Result) Summary(check *types.SkillCheck) *types.SkillCheckResult {
	return &types.SkillCheckResult{
		Attribute:  check.Attribute,
		Roll:       r.Roll,
		Total:      r.Total,
		Difficulty: check.Difficulty,
		Outcome:    r.Kind.String(),
	}
}
