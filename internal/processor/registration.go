package processor

import (
	"fmt"
	"sync"
)

// TypeEntry is what a caller supplies when registering a new Processor
// variant (spec §6 "Processor registration"). Children and Parent are
// optional; a variant with no children is a leaf.
type TypeEntry struct {
	Tag            TypeTag
	DefaultEnabled func(Processor) bool
	Children       func(Processor) []Processor
	Parent         func(Processor) Processor
}

// typeTable is the process-wide, append-only registration table for
// user-defined processor variants. Registration is publish-once: once a
// tag is bound it cannot be rebound, matching the "publish-once operation"
// contract and the reader/writer publication-barrier requirement from
// spec §5 (append must be visible to all subsequent readers).
type typeTable struct {
	mu      sync.RWMutex
	nextTag TypeTag
	entries map[TypeTag]TypeEntry
}

var globalTypes = &typeTable{
	nextTag: tagUserBase,
	entries: make(map[TypeTag]TypeEntry),
}

// RegisterType allocates a fresh TypeTag for a user processor variant and
// publishes its capability functions. It returns the allocated tag; the
// caller embeds that tag in Tag() implementations of its own Processor
// type.
func RegisterType(entry TypeEntry) TypeTag {
	globalTypes.mu.Lock()
	defer globalTypes.mu.Unlock()

	tag := globalTypes.nextTag
	globalTypes.nextTag++
	entry.Tag = tag
	globalTypes.entries[tag] = entry
	return tag
}

// lookupType returns the registration entry for a tag, or false if the
// tag is unknown (e.g. received from a peer that registered a variant
// this process never saw).
func lookupType(tag TypeTag) (TypeEntry, bool) {
	globalTypes.mu.RLock()
	defer globalTypes.mu.RUnlock()
	e, ok := globalTypes.entries[tag]
	return e, ok
}

// DefaultEnabled dispatches to the registered default_enabled() verdict
// for p's variant. Built-in variants answer themselves; user variants
// dispatch through the registration table.
func DefaultEnabled(p Processor) bool {
	switch p.Tag() {
	case TagOSProc, TagThreadProc:
		return p.DefaultEnabled()
	default:
		entry, ok := lookupType(p.Tag())
		if !ok || entry.DefaultEnabled == nil {
			return false
		}
		return entry.DefaultEnabled(p)
	}
}

// ChildrenOf returns the child processors of a user-registered variant via
// its registered Children callback. Built-in variants (OSProc included)
// are not in the registration table and yield an error here; a worker's
// tracked ThreadProc set is served by Registry.Children instead.
func ChildrenOf(p Processor) ([]Processor, error) {
	entry, ok := lookupType(p.Tag())
	if !ok || entry.Children == nil {
		return nil, fmt.Errorf("processor: no children function registered for tag %d", p.Tag())
	}
	return entry.Children(p), nil
}

// ParentOf dispatches to the registered parent() for custom variants.
// Built-in variants implement Parent() directly.
func ParentOf(p Processor) (Processor, bool) {
	switch p.Tag() {
	case TagOSProc, TagThreadProc:
		return p.Parent(), true
	default:
		entry, ok := lookupType(p.Tag())
		if !ok || entry.Parent == nil {
			return nil, false
		}
		return entry.Parent(p), true
	}
}
