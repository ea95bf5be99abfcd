package builder_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterscope/clusterscope/internal/builder"
	"github.com/clusterscope/clusterscope/internal/processor"
	"github.com/clusterscope/clusterscope/internal/scope"
)

var nodeA = uuid.MustParse("11111111-1111-1111-1111-111111111111")

// fakeRegistry is a minimal, deterministic stand-in for
// *processor.Registry, used so builder tests don't depend on the
// circuit-breaker/rate-limiter machinery.
type fakeRegistry struct {
	nodes    map[processor.WorkerId]uuid.UUID
	children map[processor.WorkerId][]processor.Processor
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		nodes:    make(map[processor.WorkerId]uuid.UUID),
		children: make(map[processor.WorkerId][]processor.Processor),
	}
}

func (f *fakeRegistry) join(wid processor.WorkerId, n uuid.UUID, children []processor.Processor) {
	f.nodes[wid] = n
	f.children[wid] = children
}

func (f *fakeRegistry) NodeUUID(wid processor.WorkerId) (uuid.UUID, error) {
	n, ok := f.nodes[wid]
	if !ok {
		return uuid.Nil, assertErr{wid}
	}
	return n, nil
}

func (f *fakeRegistry) Children(ctx context.Context, osp processor.OSProc) ([]processor.Processor, error) {
	children, ok := f.children[osp.WorkerID]
	if !ok {
		return nil, assertErr{osp.WorkerID}
	}
	return children, nil
}

func (f *fakeRegistry) Workers() []processor.WorkerId {
	out := make([]processor.WorkerId, 0, len(f.nodes))
	for w := range f.nodes {
		out = append(out, w)
	}
	return out
}

type assertErr struct{ wid processor.WorkerId }

func (e assertErr) Error() string { return "unknown worker" }

func TestPositional_NoArgsIsAny(t *testing.T) {
	b := builder.New(newFakeRegistry())
	s, err := b.Positional(context.Background())
	require.NoError(t, err)
	assert.True(t, scope.Equal(s, scope.Any{}))
}

func TestPositional_DefaultSentinel(t *testing.T) {
	b := builder.New(newFakeRegistry())
	s, err := b.Positional(context.Background(), builder.Default)
	require.NoError(t, err)
	assert.True(t, scope.Equal(s, scope.Default()))
}

func TestPositional_SingleWorkerId(t *testing.T) {
	reg := newFakeRegistry()
	reg.join(1, nodeA, nil)
	b := builder.New(reg)

	s, err := b.Positional(context.Background(), processor.WorkerId(1))
	require.NoError(t, err)
	assert.True(t, scope.Equal(s, scope.Process{Parent: scope.Node{UUID: nodeA}, Wid: 1}))
}

func TestPositional_MultipleWorkersUnion(t *testing.T) {
	reg := newFakeRegistry()
	reg.join(1, nodeA, nil)
	reg.join(2, nodeA, nil)
	b := builder.New(reg)

	s, err := b.Positional(context.Background(), processor.WorkerId(1), processor.WorkerId(2))
	require.NoError(t, err)
	_, ok := s.(scope.Union)
	assert.True(t, ok)
}

func TestKeyword_UnknownWorkerFails(t *testing.T) {
	b := builder.New(newFakeRegistry())
	_, err := b.Keyword(context.Background(), builder.NamedFields{"worker": processor.WorkerId(99)})
	require.Error(t, err)
	var buildErr *builder.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, builder.ErrCodeUnknownWorker, buildErr.Code)
}

func TestKeyword_WorkersAndThreadsCartesian(t *testing.T) {
	reg := newFakeRegistry()
	reg.join(1, nodeA, nil)
	reg.join(2, nodeA, nil)
	b := builder.New(reg)

	s, err := b.Keyword(context.Background(), builder.NamedFields{
		"workers": []processor.WorkerId{1, 2},
		"threads": []uint64{3},
	})
	require.NoError(t, err)

	expected := scope.NewUnion([]scope.Scope{
		scope.Exact{
			Parent: scope.Process{Parent: scope.Node{UUID: nodeA}, Wid: 1},
			Proc:   processor.ThreadProc{WorkerID: 1, ThreadID: 3},
		},
		scope.Exact{
			Parent: scope.Process{Parent: scope.Node{UUID: nodeA}, Wid: 2},
			Proc:   processor.ThreadProc{WorkerID: 2, ThreadID: 3},
		},
	})
	assert.True(t, scope.Equal(s, expected))
}

func TestKeyword_ThreadsOnlyEnumeratesPerWorkerIndependently(t *testing.T) {
	reg := newFakeRegistry()
	reg.join(1, nodeA, []processor.Processor{processor.ThreadProc{WorkerID: 1, ThreadID: 5}})
	reg.join(2, nodeA, []processor.Processor{processor.ThreadProc{WorkerID: 2, ThreadID: 6}})
	b := builder.New(reg)

	s, err := b.Keyword(context.Background(), builder.NamedFields{"threads": []uint64{5}})
	require.NoError(t, err)

	expected := scope.Exact{
		Parent: scope.Process{Parent: scope.Node{UUID: nodeA}, Wid: 1},
		Proc:   processor.ThreadProc{WorkerID: 1, ThreadID: 5},
	}
	assert.True(t, scope.Equal(s, expected))
}

func TestKeyword_UnknownThreadFails(t *testing.T) {
	reg := newFakeRegistry()
	reg.join(1, nodeA, []processor.Processor{processor.ThreadProc{WorkerID: 1, ThreadID: 1}})
	b := builder.New(reg)

	_, err := b.Keyword(context.Background(), builder.NamedFields{"threads": []uint64{999}})
	require.Error(t, err)
	var buildErr *builder.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, builder.ErrCodeUnknownThread, buildErr.Code)
}

func TestRegisterKeyHandler_DispatchesOnUnrecognizedKey(t *testing.T) {
	b := builder.New(newFakeRegistry())
	called := false
	b.RegisterKeyHandler("region", 1, func(fields builder.NamedFields) (scope.Scope, error) {
		called = true
		return scope.Any{}, nil
	})

	s, err := b.Keyword(context.Background(), builder.NamedFields{"region": "us-east"})
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, scope.Equal(s, scope.Any{}))
}

func TestRegisterKeyHandler_TiePrecedenceConflicts(t *testing.T) {
	b := builder.New(newFakeRegistry())
	b.RegisterKeyHandler("region", 1, func(builder.NamedFields) (scope.Scope, error) { return scope.Any{}, nil })
	b.RegisterKeyHandler("zone", 1, func(builder.NamedFields) (scope.Scope, error) { return scope.Any{}, nil })

	_, err := b.Keyword(context.Background(), builder.NamedFields{"region": "a", "zone": "b"})
	require.Error(t, err)
	var buildErr *builder.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, builder.ErrCodeConflictingSpecifiers, buildErr.Code)
}

func TestKeyword_EmptyFieldsIsAny(t *testing.T) {
	b := builder.New(newFakeRegistry())
	s, err := b.Keyword(context.Background(), builder.NamedFields{})
	require.NoError(t, err)
	assert.True(t, scope.Equal(s, scope.Any{}))
}
