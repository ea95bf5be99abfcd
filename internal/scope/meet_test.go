package scope_test

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

func node(id string) scope.Node {
	return scope.Node{UUID: uuid.MustParse(id)}
}

const (
	nodeA = "11111111-1111-1111-1111-111111111111"
	nodeB = "22222222-2222-2222-2222-222222222222"
)

func TestConstrain_AnyIsIdentity(t *testing.T) {
	candidates := []scope.Scope{
		scope.Any{},
		scope.Default(),
		node(nodeA),
		scope.Process{Parent: node(nodeA), Wid: 1},
		scope.Exact{Parent: scope.Process{Parent: node(nodeA), Wid: 1}, Proc: processor.ThreadProc{WorkerID: 1, ThreadID: 2}},
	}
	for _, c := range candidates {
		assert.True(t, scope.Equal(scope.Constrain(scope.Any{}, c), c))
		assert.True(t, scope.Equal(scope.Constrain(c, scope.Any{}), c))
	}
}

func TestConstrain_Idempotent(t *testing.T) {
	s := scope.Process{Parent: node(nodeA), Wid: 7}
	assert.True(t, scope.Equal(scope.Constrain(s, s), s))
}

func TestConstrain_Commutative(t *testing.T) {
	a := scope.Process{Parent: node(nodeA), Wid: 1}
	b := scope.Exact{Parent: a, Proc: processor.ThreadProc{WorkerID: 1, ThreadID: 3}}
	assert.True(t, scope.Equal(scope.Constrain(a, b), scope.Constrain(b, a)))
}

func TestConstrain_Associative(t *testing.T) {
	a := scope.Default()
	b := scope.Process{Parent: node(nodeA), Wid: 1}
	c := scope.Exact{Parent: b, Proc: processor.ThreadProc{WorkerID: 1, ThreadID: 9}}

	left := scope.Constrain(scope.Constrain(a, b), c)
	right := scope.Constrain(a, scope.Constrain(b, c))
	assert.True(t, scope.Equal(left, right))
}

func TestConstrain_DifferentWorkersInvalid(t *testing.T) {
	a := scope.Process{Parent: node(nodeA), Wid: 1}
	b := scope.Process{Parent: node(nodeA), Wid: 2}
	result := scope.Constrain(a, b)
	_, isInvalid := result.(scope.Invalid)
	assert.True(t, isInvalid)
}

func TestConstrain_DifferentNodesInvalid(t *testing.T) {
	a := node(nodeA)
	b := node(nodeB)
	result := scope.Constrain(a, b)
	_, isInvalid := result.(scope.Invalid)
	assert.True(t, isInvalid)
}

func TestConstrain_NarrowsAcrossHierarchy(t *testing.T) {
	n := node(nodeA)
	p := scope.Process{Parent: n, Wid: 1}
	e := scope.Exact{Parent: p, Proc: processor.ThreadProc{WorkerID: 1, ThreadID: 4}}

	assert.True(t, scope.Equal(scope.Constrain(n, p), p))
	assert.True(t, scope.Equal(scope.Constrain(p, e), e))
	assert.True(t, scope.Equal(scope.Constrain(n, e), e))
}

func TestConstrain_UnionDistributes(t *testing.T) {
	p1 := scope.Process{Parent: node(nodeA), Wid: 1}
	p2 := scope.Process{Parent: node(nodeA), Wid: 2}
	u := scope.NewUnion([]scope.Scope{p1, p2})

	result := scope.Constrain(u, p1)
	assert.True(t, scope.Equal(result, p1))
}

func TestConstrain_UnionMeetUnionCollapsesToInvalidWhenDisjoint(t *testing.T) {
	p1 := scope.Process{Parent: node(nodeA), Wid: 1}
	p2 := scope.Process{Parent: node(nodeA), Wid: 2}
	p3 := scope.Process{Parent: node(nodeA), Wid: 3}
	p4 := scope.Process{Parent: node(nodeA), Wid: 4}

	u1 := scope.NewUnion([]scope.Scope{p1, p2})
	u2 := scope.NewUnion([]scope.Scope{p3, p4})

	result := scope.Constrain(u1, u2)
	_, isInvalid := result.(scope.Invalid)
	assert.True(t, isInvalid)
}

func TestConstrain_TaintDeferredUntilExact(t *testing.T) {
	taint := scope.TaintedScope{Inner: scope.Any{}, Taints: []scope.Taint{scope.DefaultEnabledTaint{}}}
	p := scope.Process{Parent: node(nodeA), Wid: 1}

	// Meeting against a non-Exact scope propagates the taint unresolved.
	mid := scope.Constrain(taint, p)
	tv, ok := mid.(scope.TaintedScope)
	require.True(t, ok)
	assert.Len(t, tv.Taints, 1)

	// Only resolving against an Exact scope evaluates the taint.
	exact := scope.Exact{Parent: p, Proc: processor.OSProc{WorkerID: 1}}
	result := scope.Constrain(mid, exact)
	assert.True(t, scope.Equal(result, exact))
}

func TestConstrain_PanicsOnInvalidOperand(t *testing.T) {
	assert.Panics(t, func() {
		scope.Constrain(scope.Invalid{}, scope.Any{})
	})
}

// End-to-end scenarios.

func TestScenario_DistinctWorkersConflict(t *testing.T) {
	a := scope.Process{Parent: node(nodeA), Wid: 1}
	b := scope.Process{Parent: node(nodeA), Wid: 2}
	result := scope.Constrain(a, b)
	_, isInvalid := result.(scope.Invalid)
	assert.True(t, isInvalid)
}

func TestScenario_WorkerThreadCartesian(t *testing.T) {
	reg := processor.NewRegistry(nil)
	reg.WorkerJoined(1, uuid.MustParse(nodeA), nil)
	reg.WorkerJoined(2, uuid.MustParse(nodeA), nil)

	s, err := builder.New(reg).Keyword(context.Background(), builder.NamedFields{
		"workers": []processor.WorkerId{1, 2},
		"threads": []uint64{1},
	})
	require.NoError(t, err)

	w1 := scope.Process{Parent: node(nodeA), Wid: 1}
	w2 := scope.Process{Parent: node(nodeA), Wid: 2}
	expected := scope.NewUnion([]scope.Scope{
		scope.Exact{Parent: w1, Proc: processor.ThreadProc{WorkerID: 1, ThreadID: 1}},
		scope.Exact{Parent: w2, Proc: processor.ThreadProc{WorkerID: 2, ThreadID: 1}},
	})
	_, ok := expected.(scope.Union)
	require.True(t, ok)
	assert.True(t, scope.Equal(s, expected))
}

func TestScenario_DefaultScopeRejectsOptedOut(t *testing.T) {
	optOutTag := processor.RegisterType(processor.TypeEntry{
		DefaultEnabled: func(processor.Processor) bool { return false },
	})
	optOut := optOutProc{tag: optOutTag, wid: 2}

	p := scope.Process{Parent: node(nodeA), Wid: 2}
	exact := scope.Exact{Parent: p, Proc: optOut}

	result := scope.Constrain(scope.Default(), exact)
	_, isInvalid := result.(scope.Invalid)
	assert.True(t, isInvalid)
}

func TestScenario_ProcessorTypeScopeMatchesThreads(t *testing.T) {
	p := scope.Process{Parent: node(nodeA), Wid: 1}
	exact := scope.Exact{Parent: p, Proc: processor.ThreadProc{WorkerID: 1, ThreadID: 2}}

	result := scope.Constrain(scope.ProcessorTypeScope(processor.TagThreadProc), exact)
	assert.True(t, scope.Equal(result, exact))
}

func TestScenario_ProcessorTypeScopeRejectsOtherVariant(t *testing.T) {
	optOutTag := processor.RegisterType(processor.TypeEntry{
		DefaultEnabled: func(processor.Processor) bool { return false },
	})
	p := scope.Process{Parent: node(nodeA), Wid: 2}
	exact := scope.Exact{Parent: p, Proc: optOutProc{tag: optOutTag, wid: 2}}

	result := scope.Constrain(scope.ProcessorTypeScope(processor.TagThreadProc), exact)
	_, isInvalid := result.(scope.Invalid)
	assert.True(t, isInvalid)
}

// optOutProc is a minimal user-registered Processor variant used only to
// exercise the registration/taint-evaluation extension points.
type optOutProc struct {
	tag processor.TypeTag
	wid processor.WorkerId
}

func (p optOutProc) Tag() processor.TypeTag    { return p.tag }
func (p optOutProc) Pid() processor.WorkerId   { return p.wid }
func (p optOutProc) Parent() processor.Processor { return processor.OSProc{WorkerID: p.wid} }
func (p optOutProc) DefaultEnabled() bool      { return false }
func (p optOutProc) Key() any                  { return p }
func (p optOutProc) Equal(o processor.Processor) bool {
	other, ok := o.(optOutProc)
	return ok && other.tag == p.tag && other.wid == p.wid
}
