package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// RemoteChildrenFunc asks the OS process identified by wid for its
// currently attached processors. It is the only operation in this
// package that may block (spec §5): a cross-worker RPC. Implementations
// live in internal/network; the registry stays transport-agnostic and is
// handed the function at construction time so tests can supply a fake.
type RemoteChildrenFunc func(ctx context.Context, wid WorkerId) ([]Processor, error)

// workerEntry is the registry's per-worker shared state: its node
// identity and the last known snapshot of its children.
type workerEntry struct {
	node     uuid.UUID
	children []Processor
}

// Registry is the process-wide Processor Registry from spec §4.2: cluster
// membership (worker <-> node_uuid), and on-worker processor enumeration.
// It is read by Builder calls and written by cluster-membership events
// and by Children when it caches a remote snapshot, so reads and writes
// are split across a
// sync.RWMutex exactly as spec §5 requires ("readers may proceed
// concurrently; a writer must exclude all readers").
type Registry struct {
	mu      sync.RWMutex
	workers map[WorkerId]*workerEntry

	// seen is a fast, lock-free pre-filter over ever-joined worker IDs.
	// A negative match proves "never a member" without taking mu; a
	// positive match still falls through to the authoritative map, so
	// the filter's false-positive rate can never corrupt the algebra.
	seen *bloom.BloomFilter

	remoteChildren RemoteChildrenFunc

	breakersMu sync.Mutex
	breakers   map[WorkerId]*gobreaker.CircuitBreaker
	limiters   map[WorkerId]*rate.Limiter

	// quiescing is set once by Quiesce and never cleared. Children()
	// checks it before touching the breaker/limiter pair so a worker
	// that is tearing down its internal/network.Node stops issuing new
	// remote children() RPCs immediately instead of racing the node's
	// Close against an in-flight Query.
	quiescing atomic.Bool

	hooks Hooks
}

// Hooks lets a caller observe registry activity (e.g. to drive Prometheus
// counters in internal/obs) without this package importing a metrics
// backend directly. Any field left nil is simply not called.
type Hooks struct {
	CacheHit    func()
	CacheMiss   func()
	RemoteError func(code string)
}

// NewRegistry constructs an empty registry. remoteChildren may be nil if
// the process never needs to query another worker's children (e.g. a
// single-worker test harness using WorkerJoined snapshots only).
func NewRegistry(remoteChildren RemoteChildrenFunc) *Registry {
	return &Registry{
		workers:        make(map[WorkerId]*workerEntry),
		seen:           bloom.NewWithEstimates(10000, 0.01),
		remoteChildren: remoteChildren,
		breakers:       make(map[WorkerId]*gobreaker.CircuitBreaker),
		limiters:       make(map[WorkerId]*rate.Limiter),
	}
}

// SetHooks installs observability callbacks. Safe to call once at
// startup before the registry serves any traffic.
func (r *Registry) SetHooks(h Hooks) {
	r.hooks = h
}

// Quiesce stops the registry from issuing new remote children() queries.
// Cached snapshots (from WorkerJoined or a prior successful query) are
// still served, since serving them requires no network transport; only
// the remote RPC path starts failing fast with ErrCodeShuttingDown. It
// is the first step in the worker's teardown sequence, called before the
// internal/network.Node it depends on is closed, so nothing is left
// blocked on a transport that is about to disappear.
func (r *Registry) Quiesce() {
	r.quiescing.Store(true)
}

// Workers returns the current cluster membership.
func (r *Registry) Workers() []WorkerId {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WorkerId, 0, len(r.workers))
	for wid := range r.workers {
		out = append(out, wid)
	}
	return out
}

// NodeUUID returns the node identity for wid, cached since worker join.
func (r *Registry) NodeUUID(wid WorkerId) (uuid.UUID, error) {
	if !r.seen.Test(widKey(wid)) {
		return uuid.Nil, errUnknownWorker(wid)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.workers[wid]
	if !ok {
		return uuid.Nil, errUnknownWorker(wid)
	}
	return entry.node, nil
}

// Children returns the processors attached to osp's worker, querying the
// remote worker through the circuit-breaker/rate-limiter pair if no
// snapshot is cached locally.
func (r *Registry) Children(ctx context.Context, osp OSProc) ([]Processor, error) {
	wid := osp.WorkerID

	r.mu.RLock()
	entry, ok := r.workers[wid]
	if ok && entry.children != nil {
		children := entry.children
		r.mu.RUnlock()
		if r.hooks.CacheHit != nil {
			r.hooks.CacheHit()
		}
		return children, nil
	}
	r.mu.RUnlock()

	if !ok {
		return nil, errUnknownWorker(wid)
	}
	if r.remoteChildren == nil {
		return nil, newRegistryError(ErrCodeUnknownWorker, "no remote children transport configured", wid, nil)
	}

	if r.hooks.CacheMiss != nil {
		r.hooks.CacheMiss()
	}

	if r.quiescing.Load() {
		if r.hooks.RemoteError != nil {
			r.hooks.RemoteError(ErrCodeShuttingDown)
		}
		return nil, newRegistryError(ErrCodeShuttingDown, "registry is shutting down, refusing new remote children() queries", wid, nil)
	}

	limiter := r.limiterFor(wid)
	if !limiter.Allow() {
		if r.hooks.RemoteError != nil {
			r.hooks.RemoteError(ErrCodeRateLimited)
		}
		return nil, newRegistryError(ErrCodeRateLimited, "children() query rate limit exceeded for worker", wid, nil)
	}

	breaker := r.breakerFor(wid)
	result, err := breaker.Execute(func() (interface{}, error) {
		return r.remoteChildren(ctx, wid)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			if r.hooks.RemoteError != nil {
				r.hooks.RemoteError(ErrCodeCircuitOpen)
			}
			return nil, newRegistryError(ErrCodeCircuitOpen, "worker is not answering children() queries", wid, err)
		}
		if r.hooks.RemoteError != nil {
			r.hooks.RemoteError(ErrCodeRemoteTimeout)
		}
		return nil, newRegistryError(ErrCodeRemoteTimeout, "remote children() query failed", wid, err)
	}

	children := result.([]Processor)
	r.mu.Lock()
	if e, ok := r.workers[wid]; ok {
		e.children = children
	}
	r.mu.Unlock()

	return children, nil
}

func (r *Registry) breakerFor(wid WorkerId) *gobreaker.CircuitBreaker {
	r.breakersMu.Lock()
	defer r.breakersMu.Unlock()

	if b, ok := r.breakers[wid]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("children(%d)", wid),
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	r.breakers[wid] = b
	return b
}

func (r *Registry) limiterFor(wid WorkerId) *rate.Limiter {
	r.breakersMu.Lock()
	defer r.breakersMu.Unlock()

	if l, ok := r.limiters[wid]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(100*time.Millisecond), 5)
	r.limiters[wid] = l
	return l
}

// GetParent dispatches upward navigation, filling in registry-known
// context (e.g. a ThreadProc's parent OSProc) where the Processor value
// itself is sufficient, else falling back to registered custom Parent
// callbacks.
func (r *Registry) GetParent(p Processor) (Processor, bool) {
	return ParentOf(p)
}

// WorkerJoined records a new cluster member and its children snapshot
// (spec §6 "Cluster membership" inbound signal). It writes under the
// registry's lock and therefore excludes readers for its duration.
func (r *Registry) WorkerJoined(wid WorkerId, node uuid.UUID, children []Processor) {
	r.mu.Lock()
	r.workers[wid] = &workerEntry{node: node, children: children}
	r.mu.Unlock()
	r.seen.Add(widKey(wid))
}

// WorkerLeft removes a cluster member. Any scope still referencing wid
// becomes stale; resolving it is the scheduler's responsibility (spec §3
// Lifecycle: "stale NodeUuid or WorkerId is detected lazily").
func (r *Registry) WorkerLeft(wid WorkerId) {
	r.mu.Lock()
	delete(r.workers, wid)
	r.mu.Unlock()

	r.breakersMu.Lock()
	delete(r.breakers, wid)
	delete(r.limiters, wid)
	r.breakersMu.Unlock()
}

func widKey(wid WorkerId) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(wid >> (8 * i))
	}
	return b
}
