package scope

import (
	"encoding/binary"
	"fmt"

	"lukechampine.com/blake3"
)

// Hash returns a structural hash consistent with Equal (spec §6):
// TaintedScope's hash is commutative over its taint set, and Union's
// hash depends only on the multiset of children, even though
// constrainNormalized stabilizes child order for readability elsewhere.
func Hash(s Scope) [32]byte {
	h := blake3.New(32, nil)
	writeScope(h, s)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

type hashWriter interface {
	Write([]byte) (int, error)
}

func writeScope(w hashWriter, s Scope) {
	switch v := s.(type) {
	case Any:
		w.Write([]byte{tagAny})

	case TaintedScope:
		w.Write([]byte{tagTainted})
		writeScope(w, v.Inner)
		// Sum commutative per-taint digests instead of hashing the
		// (sorted) sequence, so the taint set's hash doesn't depend on
		// order. Each occurrence adds its digest, so the hash does
		// depend on how many times a taint appears, as Equal does.
		var acc [32]byte
		for _, t := range v.Taints {
			th := hashTaint(t)
			for i := range acc {
				acc[i] += th[i]
			}
		}
		w.Write(acc[:])

	case Union:
		w.Write([]byte{tagUnion})
		var acc [32]byte
		for _, c := range v.Children {
			ch := Hash(c)
			for i := range acc {
				acc[i] += ch[i]
			}
		}
		w.Write(acc[:])

	case Node:
		w.Write([]byte{tagNode})
		b, _ := v.UUID.MarshalBinary()
		w.Write(b)

	case Process:
		w.Write([]byte{tagProcess})
		writeScope(w, v.Parent)
		writeUint64(w, uint64(v.Wid))

	case Exact:
		w.Write([]byte{tagExact})
		writeScope(w, v.Parent)
		w.Write([]byte(fmt.Sprintf("%d:%v", v.Proc.Tag(), v.Proc.Key())))

	case Invalid:
		w.Write([]byte{tagInvalid})
		// Left/Right are symmetric for equality (spec §4.1), so sum their
		// digests commutatively rather than writing them in field order,
		// the same technique used for Union/TaintedScope above.
		lh := Hash(v.Left)
		rh := Hash(v.Right)
		var acc [32]byte
		for i := range acc {
			acc[i] = lh[i] + rh[i]
		}
		w.Write(acc[:])

	default:
		w.Write([]byte{tagUnknown})
	}
}

func hashTaint(t Taint) [32]byte {
	h := blake3.New(32, nil)
	switch v := t.(type) {
	case DefaultEnabledTaint:
		h.Write([]byte{1})
	case ProcessorTypeTaint:
		h.Write([]byte{2})
		writeUint64(h, uint64(v.T))
	default:
		h.Write([]byte{3})
		writeUint64(h, uint64(t.Tag()))
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeUint64(w hashWriter, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

const (
	tagAny byte = iota
	tagTainted
	tagUnion
	tagNode
	tagProcess
	tagExact
	tagInvalid
	tagUnknown
)
