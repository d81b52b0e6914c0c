// Package condition parses and evaluates the namespaced predicates that gate
// choices and consequences.
//
// A stored predicate is a single clause such as "attribute:strength:gte:10"
// or "visited:cellar". Clauses are parsed once into an Expr and evaluated
// against a Facts view of the player. Unknown or malformed clauses compile to
// an expression that is always false, so a choice that cannot be evaluated is
// simply unavailable.
package condition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownPredicate is returned by Parse for clauses with an unrecognized namespace
var ErrUnknownPredicate = errors.New("condition: unknown predicate")

// ErrMalformedPredicate is returned by Parse for clauses with bad operands
var ErrMalformedPredicate = errors.New("condition: malformed predicate")

// Facts is the read-only view of player and story state a predicate sees
type Facts interface {
	StoryID() string
	Attribute(name string) int
	Progress(key string) (string, bool)
	WorldState(key string) (string, bool)
}

// Expr is a compiled predicate
type Expr interface {
	Eval(f Facts) bool
	String() string
}

// Op is a numeric comparison operator
type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpLt  Op = "lt"
	OpGte Op = "gte"
	OpLte Op = "lte"
)

func parseOp(s string) (Op, bool) {
	switch Op(s) {
	case OpEq, OpGt, OpLt, OpGte, OpLte:
		return Op(s), true
	}
	return "", false
}

// Compare applies the operator to left and right
func (o Op) Compare(left, right int) bool {
	switch o {
	case OpEq:
		return left == right
	case OpGt:
		return left > right
	case OpLt:
		return left < right
	case OpGte:
		return left >= right
	case OpLte:
		return left <= right
	}
	return false
}

// Parse compiles a predicate string. A blank string compiles to Always.
// On error the returned Expr is a Never carrying the source text, so callers
// that only log the error still get fail-closed behavior.
func Parse(s string) (Expr, error) {
	src := strings.TrimSpace(s)
	if src == "" {
		return Always{}, nil
	}

	namespace, rest, _ := strings.Cut(src, ":")
	switch namespace {
	case "attribute":
		return parseCmp(src, rest, func(name string, op Op, v int) Expr {
			return AttributeCmp{Name: name, Op: op, Value: v}
		})
	case "relationship":
		return parseCmp(src, rest, func(npc string, op Op, v int) Expr {
			return RelationshipCmp{NPC: npc, Op: op, Value: v}
		})
	case "faction":
		parts := strings.Split(rest, ":")
		if len(parts) == 2 && parts[1] == "member" && parts[0] != "" {
			return FactionMember{Faction: parts[0]}, nil
		}
		return parseCmp(src, rest, func(id string, op Op, v int) Expr {
			return FactionCmp{Faction: id, Op: op, Value: v}
		})
	case "item":
		parts := strings.Split(rest, ":")
		if parts[0] == "" {
			return never(src, ErrMalformedPredicate)
		}
		if len(parts) == 1 {
			return ItemHas{Item: parts[0]}, nil
		}
		return parseCmp(src, rest, func(id string, op Op, v int) Expr {
			return ItemCmp{Item: id, Op: op, Value: v}
		})
	case "world":
		key, value, ok := strings.Cut(rest, ":")
		if !ok || key == "" {
			return never(src, ErrMalformedPredicate)
		}
		return WorldEq{Key: key, Value: value}, nil
	case "visited":
		if rest == "" {
			return never(src, ErrMalformedPredicate)
		}
		return Visited{Beat: rest}, nil
	case "choice":
		if rest == "" {
			return never(src, ErrMalformedPredicate)
		}
		return ChoiceMade{Choice: rest}, nil
	case "chain":
		if rest == "" {
			return never(src, ErrMalformedPredicate)
		}
		return ChainFired{Chain: rest}, nil
	case "arc":
		if rest == "" {
			return never(src, ErrMalformedPredicate)
		}
		return ArcUnlocked{Arc: rest}, nil
	case "ending":
		if rest == "" {
			return never(src, ErrMalformedPredicate)
		}
		return EndingReached{Ending: rest}, nil
	}
	return never(src, ErrUnknownPredicate)
}

// MustParse is Parse for predicates known at compile time
func MustParse(s string) Expr {
	expr, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return expr
}

// Evaluate parses and evaluates s in one step. Prefer compiling once with Parse.
func Evaluate(s string, f Facts) bool {
	expr, _ := Parse(s)
	return expr.Eval(f)
}

func parseCmp(src, rest string, build func(string, Op, int) Expr) (Expr, error) {
	parts := strings.Split(rest, ":")
	if len(parts) != 3 || parts[0] == "" {
		return never(src, ErrMalformedPredicate)
	}
	op, ok := parseOp(parts[1])
	if !ok {
		return never(src, ErrMalformedPredicate)
	}
	value, err := strconv.Atoi(parts[2])
	if err != nil {
		return never(src, ErrMalformedPredicate)
	}
	return build(parts[0], op, value), nil
}

func never(src string, cause error) (Expr, error) {
	return Never{Source: src}, fmt.Errorf("%w: %q", cause, src)
}
