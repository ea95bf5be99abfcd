package scope

import "sync/atomic"

var (
	meetCalls     uint64
	invalidResults uint64
)

// Stats reports cumulative meet-call counts, exposed to internal/obs for
// Prometheus registration without coupling this package to any metrics
// backend.
func Stats() (meets, invalids uint64) {
	return atomic.LoadUint64(&meetCalls), atomic.LoadUint64(&invalidResults)
}

// Constrain is the lattice meet (spec §4.1): a single total, commutative,
// associative, never-raising operation. Conflicts surface only as an
// Invalid value; callers must not pass an Invalid operand (programmer
// error — the caller should have stopped scheduling that candidate
// earlier).
func Constrain(x, y Scope) Scope {
	if _, ok := x.(Invalid); ok {
		panic("scope: Constrain called with an InvalidScope operand")
	}
	if _, ok := y.(Invalid); ok {
		panic("scope: Constrain called with an InvalidScope operand")
	}

	atomic.AddUint64(&meetCalls, 1)

	result := constrainNormalized(x, y)
	if _, ok := result.(Invalid); ok {
		atomic.AddUint64(&invalidResults, 1)
		// Preserve the caller's original operand order for
		// diagnostics, not the post-normalization order.
		return Invalid{Left: x, Right: y}
	}
	return result
}

// constrainNormalized dispatches on the normalized (wider, narrower)
// pair and returns either the meet or an Invalid{} placeholder (whose
// Left/Right the caller overwrites with the original operands).
func constrainNormalized(x, y Scope) Scope {
	// Union distributes over everything and must be checked before the
	// wider/narrower normalization below, since two Unions meet via
	// rule 5 directly rather than by rank.
	if ux, ok := x.(Union); ok {
		return meetUnion(ux, y)
	}
	if uy, ok := y.(Union); ok {
		return meetUnion(uy, x)
	}

	// Normalize so the narrower scope (higher rank) is on the right.
	if rank(x) > rank(y) {
		x, y = y, x
	}

	switch xv := x.(type) {
	case Any:
		return y

	case TaintedScope:
		return meetTainted(xv, y)

	case Node:
		return meetNode(xv, y)

	case Process:
		return meetProcess(xv, y)

	case Exact:
		return meetExact(xv, y)

	default:
		return Invalid{}
	}
}

// meetUnion implements rules 5 and 6: UnionScope⊓UnionScope distributes
// pairwise; UnionScope⊓y treats y as a singleton union and reuses the
// same distribution.
func meetUnion(u Union, y Scope) Scope {
	others := []Scope{y}
	if uy, ok := y.(Union); ok {
		others = uy.Children
	}

	results := make([]Scope, 0, len(u.Children)*len(others))
	for _, c := range u.Children {
		for _, o := range others {
			m := constrainNormalized(c, o)
			if _, invalid := m.(Invalid); !invalid {
				results = append(results, m)
			}
		}
	}

	return NewUnion(results)
}

// meetTainted implements rules 2, 3 and 4.
func meetTainted(t TaintedScope, y Scope) Scope {
	switch yv := y.(type) {
	case TaintedScope:
		// Rule 3: nested taints flatten into a single TaintedScope.
		inner := constrainNormalized(t.Inner, yv.Inner)
		if _, invalid := inner.(Invalid); invalid {
			return Invalid{}
		}
		return TaintedScope{Inner: inner, Taints: sortedTaints(unionTaints(t.Taints, yv.Taints))}

	case Exact:
		// Rule 4: taints can only be resolved against a concrete
		// processor, so evaluation is deferred until exactly this
		// point.
		for _, taint := range t.Taints {
			if !TaintMatch(taint, yv.Proc) {
				return Invalid{}
			}
		}
		return constrainNormalized(t.Inner, yv)

	default:
		// Rule 2: propagate the taint set unchanged past any scope
		// that isn't yet concrete enough to evaluate against.
		inner := constrainNormalized(t.Inner, yv)
		if _, invalid := inner.(Invalid); invalid {
			return Invalid{}
		}
		return TaintedScope{Inner: inner, Taints: sortedTaints(t.Taints)}
	}
}

// meetNode implements rules 7, 8 and 9.
func meetNode(n Node, y Scope) Scope {
	switch yv := y.(type) {
	case Node:
		if n.UUID == yv.UUID {
			return n
		}
		return Invalid{}
	case Process:
		if n.UUID == yv.Parent.UUID {
			return yv
		}
		return Invalid{}
	case Exact:
		if n.UUID == yv.Parent.Parent.UUID {
			return yv
		}
		return Invalid{}
	default:
		return Invalid{}
	}
}

// meetProcess implements rules 10 and 11.
func meetProcess(p Process, y Scope) Scope {
	switch yv := y.(type) {
	case Process:
		if p.Wid == yv.Wid && Equal(p.Parent, yv.Parent) {
			return p
		}
		return Invalid{}
	case Exact:
		if Equal(p, yv.Parent) {
			return yv
		}
		return Invalid{}
	default:
		return Invalid{}
	}
}

// meetExact implements rule 12.
func meetExact(e Exact, y Scope) Scope {
	yv, ok := y.(Exact)
	if !ok {
		return Invalid{}
	}
	if Equal(e.Parent, yv.Parent) && e.Proc.Equal(yv.Proc) {
		return e
	}
	return Invalid{}
}
