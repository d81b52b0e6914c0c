package condition

import (
	"fmt"
	"strconv"
	"strings"
)

// Always is the compiled form of a blank predicate
type Always struct{}

func (Always) Eval(Facts) bool { return true }
func (Always) String() string { return "" }

// Never is the compiled form of an unknown or malformed predicate
type Never struct {
	Source string
}

func (Never) Eval(Facts) bool { return false }
func (n Never) String() string { return n.Source }

// AttributeCmp compares player.attributes[Name]
type AttributeCmp struct {
	Name  string
	Op    Op
	Value int
}

func (e AttributeCmp) Eval(f Facts) bool {
	return e.Op.Compare(f.Attribute(e.Name), e.Value)
}

func (e AttributeCmp) String() string {
	return fmt.Sprintf("attribute:%s:%s:%d", e.Name, e.Op, e.Value)
}

// RelationshipCmp compares the standing with an NPC
type RelationshipCmp struct {
	NPC   string
	Op    Op
	Value int
}

func (e RelationshipCmp) Eval(f Facts) bool {
	return e.Op.Compare(f.Attribute("relationship:"+e.NPC), e.Value)
}

func (e RelationshipCmp) String() string {
	return fmt.Sprintf("relationship:%s:%s:%d", e.NPC, e.Op, e.Value)
}

// FactionCmp compares the standing with a faction
type FactionCmp struct {
	Faction string
	Op      Op
	Value   int
}

func (e FactionCmp) Eval(f Facts) bool {
	return e.Op.Compare(f.Attribute("faction:"+e.Faction), e.Value)
}

func (e FactionCmp) String() string {
	return fmt.Sprintf("faction:%s:%s:%d", e.Faction, e.Op, e.Value)
}

// FactionMember checks the membership flag of a faction
type FactionMember struct {
	Faction string
}

func (e FactionMember) Eval(f Facts) bool {
	_, ok := f.Progress("faction:" + e.Faction)
	return ok
}

func (e FactionMember) String() string { return "faction:" + e.Faction + ":member" }

// ItemHas checks that an inventory entry exists
type ItemHas struct {
	Item string
}

func (e ItemHas) Eval(f Facts) bool {
	_, ok := f.Progress("inventory:" + e.Item)
	return ok
}

func (e ItemHas) String() string { return "item:" + e.Item }

// ItemCmp compares the inventory quantity of an item
type ItemCmp struct {
	Item  string
	Op    Op
	Value int
}

func (e ItemCmp) Eval(f Facts) bool {
	quantity := 0
	if raw, ok := f.Progress("inventory:" + e.Item); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			quantity = n
		}
	}
	return e.Op.Compare(quantity, e.Value)
}

func (e ItemCmp) String() string {
	return fmt.Sprintf("item:%s:%s:%d", e.Item, e.Op, e.Value)
}

// WorldEq checks a world state value for equality
type WorldEq struct {
	Key   string
	Value string
}

func (e WorldEq) Eval(f Facts) bool {
	v, ok := f.WorldState(e.Key)
	return ok && v == e.Value
}

func (e WorldEq) String() string { return "world:" + e.Key + ":" + e.Value }

// Visited checks that a beat of the current story was reached
type Visited struct {
	Beat string
}

func (e Visited) Eval(f Facts) bool {
	_, ok := f.Progress(VisitedKey(f.StoryID(), e.Beat))
	return ok
}

func (e Visited) String() string { return "visited:" + e.Beat }

// ChoiceMade checks that a choice of the current story was taken
type ChoiceMade struct {
	Choice string
}

func (e ChoiceMade) Eval(f Facts) bool {
	_, ok := f.Progress(ChoiceKey(f.StoryID(), e.Choice))
	return ok
}

func (e ChoiceMade) String() string { return "choice:" + e.Choice }

// ChainFired checks that a chain reaction trigger has applied
type ChainFired struct {
	Chain string
}

func (e ChainFired) Eval(f Facts) bool {
	v, ok := f.Progress("chain:" + e.Chain)
	return ok && v == "triggered"
}

func (e ChainFired) String() string { return "chain:" + e.Chain }

// ArcUnlocked checks that an arc of the current story has been unlocked
type ArcUnlocked struct {
	Arc string
}

func (e ArcUnlocked) Eval(f Facts) bool {
	_, ok := f.Progress(ArcKey(f.StoryID(), e.Arc))
	return ok
}

func (e ArcUnlocked) String() string { return "arc:" + e.Arc }

// EndingReached checks that an ending of the current story was reached on
// any playthrough
type EndingReached struct {
	Ending string
}

func (e EndingReached) Eval(f Facts) bool {
	_, ok := f.Progress(EndingKey(f.StoryID(), e.Ending))
	return ok
}

func (e EndingReached) String() string { return "ending:" + e.Ending }

// VisitedKey is the progress key recording a visited beat
func VisitedKey(storyID, beatID string) string {
	return "visited:" + storyID + ":" + beatID
}

// ChoiceKey is the progress key recording a made choice
func ChoiceKey(storyID, choiceID string) string {
	return "choice:" + storyID + ":" + choiceID
}

// ArcKey is the progress key recording an unlocked arc
func ArcKey(storyID, arcID string) string {
	return "arc:" + storyID + ":" + arcID
}

// EndingKey is the progress key recording a discovered ending
func EndingKey(storyID, endingID string) string {
	return "ending:" + storyID + ":" + endingID
}

// All is true when every sub-expression is true. Authoring helper only;
// stored predicate strings hold a single clause.
func All(exprs ...Expr) Expr { return and(exprs) }

// Any is true when at least one sub-expression is true
func Any(exprs ...Expr) Expr { return or(exprs) }

// Not negates an expression
func Not(expr Expr) Expr { return not{expr} }

type and []Expr

func (a and) Eval(f Facts) bool {
	for _, e := range a {
		if !e.Eval(f) {
			return false
		}
	}
	return true
}

func (a and) String() string { return join("all", a) }

type or []Expr

func (o or) Eval(f Facts) bool {
	for _, e := range o {
		if e.Eval(f) {
			return true
		}
	}
	return false
}

func (o or) String() string { return join("any", o) }

type not struct{ expr Expr }

func (n not) Eval(f Facts) bool { return !n.expr.Eval(f) }
func (n not) String() string { return "not(" + n.expr.String() + ")" }

func join(name string, exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}
