package scope

// Equal reports structural equality between two scopes. UnionScope
// comparison ignores child order (spec §3); TaintedScope comparison
// ignores taint order.
func Equal(a, b Scope) bool {
	switch av := a.(type) {
	case Any:
		_, ok := b.(Any)
		return ok

	case TaintedScope:
		bv, ok := b.(TaintedScope)
		return ok && Equal(av.Inner, bv.Inner) && taintSetEqual(av.Taints, bv.Taints)

	case Union:
		bv, ok := b.(Union)
		if !ok || len(av.Children) != len(bv.Children) {
			return false
		}
		used := make([]bool, len(bv.Children))
		for _, ac := range av.Children {
			found := false
			for j, bc := range bv.Children {
				if used[j] {
					continue
				}
				if Equal(ac, bc) {
					used[j] = true
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true

	case Node:
		bv, ok := b.(Node)
		return ok && av.UUID == bv.UUID

	case Process:
		bv, ok := b.(Process)
		return ok && av.Wid == bv.Wid && Equal(av.Parent, bv.Parent)

	case Exact:
		bv, ok := b.(Exact)
		return ok && Equal(av.Parent, bv.Parent) && av.Proc.Equal(bv.Proc)

	case Invalid:
		bv, ok := b.(Invalid)
		if !ok {
			return false
		}
		// InvalidScope's two fields are symmetric for equality
		// (spec §4.1: "symmetric in its two fields for equality").
		return (Equal(av.Left, bv.Left) && Equal(av.Right, bv.Right)) ||
			(Equal(av.Left, bv.Right) && Equal(av.Right, bv.Left))

	default:
		return false
	}
}

// ContainsInvalid reports whether s is, or nests, an InvalidScope in a
// position other than TaintedScope.Inner or Invalid itself — i.e.
// whether the "no scope except InvalidScope and TaintScope contains a
// nested InvalidScope" invariant (spec §3) is violated.
func ContainsInvalid(s Scope) bool {
	switch v := s.(type) {
	case Union:
		for _, c := range v.Children {
			if _, ok := c.(Invalid); ok {
				return true
			}
		}
		return false
	default:
		return false
	}
}
