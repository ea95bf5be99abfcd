package scope

import (
	"fmt"
	"sync"

	"github.com/clusterscope/clusterscope/internal/processor"
)

// TaintTag identifies a concrete Taint variant, mirroring
// processor.TypeTag: an opaque identifier obtained at registration time,
// never reflection.
type TaintTag uint32

const (
	TagDefaultEnabled TaintTag = iota + 1
	TagProcessorType
	tagUserTaintBase
)

// Taint is the sealed deferred-predicate sum type from spec §3.
type Taint interface {
	sealed()
	Tag() TaintTag
	// Equal reports whether two taints of (possibly different) concrete
	// type are the same taint, for TaintedScope's order-independent
	// set equality.
	Equal(Taint) bool
}

// DefaultEnabledTaint matches processors whose default_enabled() is
// true.
type DefaultEnabledTaint struct{}

func (DefaultEnabledTaint) sealed()        {}
func (DefaultEnabledTaint) Tag() TaintTag  { return TagDefaultEnabled }
func (DefaultEnabledTaint) Equal(o Taint) bool {
	_, ok := o.(DefaultEnabledTaint)
	return ok
}

// ProcessorTypeTaint matches processors whose concrete variant tag
// equals T.
type ProcessorTypeTaint struct {
	T processor.TypeTag
}

func (ProcessorTypeTaint) sealed()       {}
func (ProcessorTypeTaint) Tag() TaintTag { return TagProcessorType }
func (p ProcessorTypeTaint) Equal(o Taint) bool {
	op, ok := o.(ProcessorTypeTaint)
	return ok && op.T == p.T
}

// taintMatchFunc implements taint_match for a registered taint variant.
type taintMatchFunc func(Taint, processor.Processor) bool

// taintTable is the process-wide, append-only registration table for
// user taint variants (spec §6 "Taint registration": tag +
// taint_match function).
type taintTable struct {
	mu      sync.RWMutex
	nextTag TaintTag
	match   map[TaintTag]taintMatchFunc
}

var globalTaints = &taintTable{
	nextTag: tagUserTaintBase,
	match:   make(map[TaintTag]taintMatchFunc),
}

// RegisterTaintType allocates a fresh TaintTag and publishes its
// taint_match function. Publish-once: a tag is never rebound once
// issued.
func RegisterTaintType(match taintMatchFunc) TaintTag {
	globalTaints.mu.Lock()
	defer globalTaints.mu.Unlock()

	tag := globalTaints.nextTag
	globalTaints.nextTag++
	globalTaints.match[tag] = match
	return tag
}

// TaintMatch evaluates a single taint against a concrete processor
// (spec §4.3). It is pure: it never touches the registry, only the
// processor value and the registration tables.
func TaintMatch(t Taint, p processor.Processor) bool {
	switch v := t.(type) {
	case DefaultEnabledTaint:
		return processor.DefaultEnabled(p)
	case ProcessorTypeTaint:
		return p.Tag() == v.T
	default:
		globalTaints.mu.RLock()
		fn, ok := globalTaints.match[t.Tag()]
		globalTaints.mu.RUnlock()
		if !ok {
			return false
		}
		return fn(t, p)
	}
}

// taintSortKey gives a deterministic ordering key for a taint, used
// only to stabilize the taint order of meet results; it has no algebraic
// meaning (taint sets are unordered per spec §3).
func taintSortKey(t Taint) string {
	switch v := t.(type) {
	case DefaultEnabledTaint:
		return "0:default_enabled"
	case ProcessorTypeTaint:
		return fmt.Sprintf("1:%d", v.T)
	default:
		return fmt.Sprintf("2:%d", t.Tag())
	}
}

// unionTaints merges two taint sets for TaintedScope⊓TaintedScope (rule
// 3), deduplicating by Equal.
func unionTaints(a, b []Taint) []Taint {
	out := make([]Taint, 0, len(a)+len(b))
	out = append(out, a...)
	for _, bt := range b {
		dup := false
		for _, at := range a {
			if at.Equal(bt) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, bt)
		}
	}
	return out
}

// taintSetEqual compares two taint sets ignoring order (spec §3).
func taintSetEqual(a, b []Taint) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, at := range a {
		found := false
		for j, bt := range b {
			if used[j] {
				continue
			}
			if at.Equal(bt) {
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
}
