// Package scope implements the scope constraint algebra: the sealed
// Scope/Taint sum types, the lattice meet (Constrain), and deferred
// taint evaluation against a concrete processor.
package scope

import (
	"sort"

	"github.com/clusterscope/clusterscope/internal/processor"
	"github.com/google/uuid"
)

// Scope is the sealed sum type from spec §3. Every variant implements
// sealed() so no type outside this package can satisfy the interface,
// preserving exhaustiveness of the switch in meet.go.
type Scope interface {
	sealed()
}

// Any matches every processor; the lattice top.
type Any struct{}

func (Any) sealed() {}

// TaintedScope restricts Inner to processors satisfying every taint in
// Taints. Evaluation is deferred until Inner narrows to an Exact.
// Named TaintedScope (not TaintScope) only to avoid colliding with the
// Taint interface below; the spec name is "TaintScope" and the wire tag
// is wire.TagTainted.
type TaintedScope struct {
	Inner  Scope
	Taints []Taint
}

func (TaintedScope) sealed() {}

// Union matches any processor matched by at least one child. Invariant:
// never empty, never contains InvalidScope, never contains structural
// duplicates.
type Union struct {
	Children []Scope
}

func (Union) sealed() {}

// Node matches any processor on the named host.
type Node struct {
	UUID uuid.UUID
}

func (Node) sealed() {}

// Process matches any processor on the named worker.
type Process struct {
	Parent Node
	Wid    processor.WorkerId
}

func (Process) sealed() {}

// Exact matches exactly one processor.
type Exact struct {
	Parent Process
	Proc   processor.Processor
}

func (Exact) sealed() {}

// Invalid is the terminal result of a failed meet, carrying both inputs
// for diagnostics. It is never a valid input to a further meet.
type Invalid struct {
	Left  Scope
	Right Scope
}

func (Invalid) sealed() {}

// Default is DefaultScope(): TaintedScope(Any, {DefaultEnabledTaint}).
func Default() Scope {
	return TaintedScope{Inner: Any{}, Taints: []Taint{DefaultEnabledTaint{}}}
}

// ProcessorTypeScope is the common shorthand TaintedScope(Any, {
// ProcessorTypeTaint{T}}): every processor whose registered variant tag
// equals T, independent of any other taint.
func ProcessorTypeScope(t processor.TypeTag) Scope {
	return TaintedScope{Inner: Any{}, Taints: []Taint{ProcessorTypeTaint{T: t}}}
}

// NewUnion builds a Union, collapsing a single child and deduplicating
// structurally equal children, per the Builder's normalization rules
// (spec §4.4) which the algebra also relies on for rule 5/6's result
// shape.
func NewUnion(children []Scope) Scope {
	deduped := make([]Scope, 0, len(children))
	for _, c := range children {
		if _, isInvalid := c.(Invalid); isInvalid {
			continue
		}
		dup := false
		for _, existing := range deduped {
			if Equal(existing, c) {
				dup = true
				break
			}
		}
		if !dup {
			deduped = append(deduped, c)
		}
	}

	switch len(deduped) {
	case 0:
		return Invalid{}
	case 1:
		return deduped[0]
	default:
		return Union{Children: deduped}
	}
}

// rank gives the lattice precedence used to normalize a meet so the
// narrower operand is always on the right (spec §4.1 "Lattice
// precedence"). Lower rank = wider.
func rank(s Scope) int {
	switch s.(type) {
	case Any:
		return 0
	case TaintedScope:
		return 1
	case Union:
		return 2
	case Node:
		return 3
	case Process:
		return 4
	case Exact:
		return 5
	default:
		return 6 // Invalid, never meant to participate in ranking
	}
}

// sortedTaints returns a copy of taints sorted by a stable key, used so
// meet results list their taints in a deterministic order. Equal and
// Hash are order-independent on their own and do not rely on it.
func sortedTaints(taints []Taint) []Taint {
	out := make([]Taint, len(taints))
	copy(out, taints)
	sort.Slice(out, func(i, j int) bool {
		return taintSortKey(out[i]) < taintSortKey(out[j])
	})
	return out
}
