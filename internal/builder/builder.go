// Package builder implements the Scope Builder (spec §4.4): parsing a
// user-facing specification, in either positional or keyword form, into
// a canonical Scope tree.
package builder

import (
	"context"
	"fmt"
	"sync"

	"github.com/clusterscope/clusterscope/internal/processor"
	"github.com/clusterscope/clusterscope/internal/scope"
	"github.com/google/uuid"
)

// registryView is the subset of *processor.Registry the Builder needs.
// Kept as an interface, per spec §9's design note that the registry
// should be "an explicit context value passed to Builder... rather than
// a hidden singleton," so tests can supply an independent fake.
type registryView interface {
	NodeUUID(wid processor.WorkerId) (uuid.UUID, error)
	Children(ctx context.Context, osp processor.OSProc) ([]processor.Processor, error)
	Workers() []processor.WorkerId
}

// NamedFields is the raw key/value set passed to the keyword constructor
// and to extension handlers.
type NamedFields map[string]any

// KeyHandler builds a Scope from the full key set for a key the Builder
// doesn't recognize natively (spec §6 "Scope-key extension").
type KeyHandler func(NamedFields) (scope.Scope, error)

type keyHandlerEntry struct {
	precedence int
	handler    KeyHandler
}

// Builder is the Scope Builder. It holds the extension table and a view
// onto the Processor Registry used to resolve worker/thread
// specifications into concrete scopes.
type Builder struct {
	registry registryView

	mu       sync.RWMutex
	handlers map[string]keyHandlerEntry
}

// New constructs a Builder bound to a registry.
func New(registry registryView) *Builder {
	return &Builder{
		registry: registry,
		handlers: make(map[string]keyHandlerEntry),
	}
}

// RegisterKeyHandler publishes an extension handler for an unrecognized
// keyword key (spec §6). Publish-once semantics aren't enforced here
// beyond last-write-wins, since re-registration under test setup/teardown
// is expected; production callers should register once at startup.
func (b *Builder) RegisterKeyHandler(key string, precedence int, handler KeyHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[key] = keyHandlerEntry{precedence: precedence, handler: handler}
}

// Default is the sentinel passed as the sole positional argument to mean
// DefaultScope() (spec §4.4 positional form, n=1 case).
const Default = "default"

// Positional implements the positional constructor scope(s1, ..., sn).
// Each element must be a processor.WorkerId (shorthand for
// ProcessScope(w)), an already-built scope.Scope, or the Default
// sentinel string (only valid alone).
func (b *Builder) Positional(ctx context.Context, args ...any) (scope.Scope, error) {
	if len(args) == 0 {
		return scope.Any{}, nil
	}
	if len(args) == 1 {
		if s, ok := args[0].(string); ok && s == Default {
			return scope.Default(), nil
		}
		return b.toScope(ctx, args[0])
	}

	children := make([]scope.Scope, 0, len(args))
	for _, a := range args {
		s, err := b.toScope(ctx, a)
		if err != nil {
			return nil, err
		}
		children = append(children, s)
	}

	result := scope.NewUnion(children)
	if _, invalid := result.(scope.Invalid); invalid {
		return nil, newBuildError(ErrCodeEmptyUnion, "positional scope union collapsed to nothing")
	}
	return result, nil
}

func (b *Builder) toScope(ctx context.Context, a any) (scope.Scope, error) {
	switch v := a.(type) {
	case scope.Scope:
		return v, nil
	case processor.WorkerId:
		return b.Keyword(ctx, NamedFields{"worker": v})
	default:
		return nil, newBuildError(ErrCodeUnrecognizedKeys, fmt.Sprintf("unsupported positional scope element %T", a))
	}
}

// Keyword implements the keyword constructor scope(k1=v1, ...) (spec
// §4.4).
func (b *Builder) Keyword(ctx context.Context, fields NamedFields) (scope.Scope, error) {
	if len(fields) == 0 {
		return scope.Any{}, nil
	}

	known := map[string]bool{"worker": true, "workers": true, "thread": true, "threads": true}
	var unrecognized []string
	for k := range fields {
		if !known[k] {
			unrecognized = append(unrecognized, k)
		}
	}
	if len(unrecognized) > 0 {
		return b.dispatchExtension(fields, unrecognized)
	}

	workers, hasWorkers, err := extractWorkers(fields)
	if err != nil {
		return nil, err
	}
	threads, hasThreads := extractThreads(fields)

	switch {
	case hasWorkers && hasThreads:
		return b.exactCartesian(workers, threads)
	case hasWorkers:
		return b.processUnion(workers)
	case hasThreads:
		return b.threadUnion(ctx, threads)
	default:
		return scope.Any{}, nil
	}
}

func (b *Builder) dispatchExtension(fields NamedFields, unrecognized []string) (scope.Scope, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bestPrecedence := -1
	var bestHandler KeyHandler
	tie := false

	for _, key := range unrecognized {
		entry, ok := b.handlers[key]
		if !ok {
			continue
		}
		switch {
		case entry.precedence > bestPrecedence:
			bestPrecedence = entry.precedence
			bestHandler = entry.handler
			tie = false
		case entry.precedence == bestPrecedence:
			tie = true
		}
	}

	if bestHandler == nil {
		return nil, newBuildError(ErrCodeUnrecognizedKeys, fmt.Sprintf("no handler for keys %v", unrecognized)).
			WithContext("keys", unrecognized)
	}
	if tie {
		return nil, newBuildError(ErrCodeConflictingSpecifiers, "multiple extension handlers tie at the maximum precedence").
			WithContext("keys", unrecognized)
	}
	return bestHandler(fields)
}

func (b *Builder) processUnion(workers []processor.WorkerId) (scope.Scope, error) {
	children := make([]scope.Scope, 0, len(workers))
	for _, w := range workers {
		ps, err := b.processScope(w)
		if err != nil {
			return nil, err
		}
		children = append(children, ps)
	}
	result := scope.NewUnion(children)
	if _, invalid := result.(scope.Invalid); invalid {
		return nil, newBuildError(ErrCodeEmptyUnion, "workers union collapsed to nothing")
	}
	return result, nil
}

func (b *Builder) processScope(w processor.WorkerId) (scope.Process, error) {
	nodeUUID, err := b.registry.NodeUUID(w)
	if err != nil {
		return scope.Process{}, newBuildError(ErrCodeUnknownWorker, fmt.Sprintf("worker %d is not a known cluster member", w)).
			WithContext("worker", w)
	}
	return scope.Process{Parent: scope.Node{UUID: nodeUUID}, Wid: w}, nil
}

func (b *Builder) exactCartesian(workers []processor.WorkerId, threads []uint64) (scope.Scope, error) {
	children := make([]scope.Scope, 0, len(workers)*len(threads))
	for _, w := range workers {
		ps, err := b.processScope(w)
		if err != nil {
			return nil, err
		}
		for _, t := range threads {
			children = append(children, scope.Exact{
				Parent: ps,
				Proc:   processor.ThreadProc{WorkerID: w, ThreadID: t},
			})
		}
	}
	result := scope.NewUnion(children)
	if _, invalid := result.(scope.Invalid); invalid {
		return nil, newBuildError(ErrCodeEmptyUnion, "worker/thread cartesian product is empty")
	}
	return result, nil
}

// threadUnion enumerates each known worker's threads independently
// (SPEC_FULL.md Open Question decision: thread ids are not assumed
// uniform across workers), keeping only the ones whose tid is in the
// requested set.
func (b *Builder) threadUnion(ctx context.Context, tids []uint64) (scope.Scope, error) {
	want := make(map[uint64]bool, len(tids))
	for _, t := range tids {
		want[t] = true
	}

	var children []scope.Scope
	for _, w := range b.registry.Workers() {
		procs, err := b.registry.Children(ctx, processor.OSProc{WorkerID: w})
		if err != nil {
			continue // unreachable worker contributes nothing, not an error
		}
		ps, err := b.processScope(w)
		if err != nil {
			continue
		}
		for _, p := range procs {
			tp, ok := p.(processor.ThreadProc)
			if !ok || !want[tp.ThreadID] {
				continue
			}
			children = append(children, scope.Exact{Parent: ps, Proc: tp})
		}
	}

	result := scope.NewUnion(children)
	if _, invalid := result.(scope.Invalid); invalid {
		return nil, newBuildError(ErrCodeUnknownThread, "no known worker exposes any of the requested thread ids").
			WithContext("threads", tids)
	}
	return result, nil
}

func extractWorkers(fields NamedFields) ([]processor.WorkerId, bool, error) {
	if v, ok := fields["worker"]; ok {
		w, ok := toWorkerId(v)
		if !ok {
			return nil, false, newBuildError(ErrCodeUnrecognizedKeys, "worker must be a single worker id")
		}
		return []processor.WorkerId{w}, true, nil
	}
	if v, ok := fields["workers"]; ok {
		ws, ok := toWorkerIds(v)
		if !ok {
			return nil, false, newBuildError(ErrCodeUnrecognizedKeys, "workers must be a sequence of worker ids")
		}
		return ws, true, nil
	}
	return nil, false, nil
}

func extractThreads(fields NamedFields) ([]uint64, bool) {
	if v, ok := fields["thread"]; ok {
		if t, ok := toUint64(v); ok {
			return []uint64{t}, true
		}
	}
	if v, ok := fields["threads"]; ok {
		if ts, ok := toUint64s(v); ok {
			return ts, true
		}
	}
	return nil, false
}
