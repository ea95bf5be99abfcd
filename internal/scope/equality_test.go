package scope_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clusterscope/clusterscope/internal/processor"
	"github.com/clusterscope/clusterscope/internal/scope"
)

func TestEqual_UnionIgnoresOrder(t *testing.T) {
	p1 := scope.Process{Parent: node(nodeA), Wid: 1}
	p2 := scope.Process{Parent: node(nodeA), Wid: 2}

	a := scope.Union{Children: []scope.Scope{p1, p2}}
	b := scope.Union{Children: []scope.Scope{p2, p1}}
	assert.True(t, scope.Equal(a, b))
}

func TestEqual_TaintSetIgnoresOrder(t *testing.T) {
	a := scope.TaintedScope{
		Inner:  scope.Any{},
		Taints: []scope.Taint{scope.DefaultEnabledTaint{}, scope.ProcessorTypeTaint{T: processor.TagThreadProc}},
	}
	b := scope.TaintedScope{
		Inner:  scope.Any{},
		Taints: []scope.Taint{scope.ProcessorTypeTaint{T: processor.TagThreadProc}, scope.DefaultEnabledTaint{}},
	}
	assert.True(t, scope.Equal(a, b))
}

func TestEqual_InvalidSymmetric(t *testing.T) {
	left := scope.Process{Parent: node(nodeA), Wid: 1}
	right := scope.Process{Parent: node(nodeA), Wid: 2}

	a := scope.Invalid{Left: left, Right: right}
	b := scope.Invalid{Left: right, Right: left}
	assert.True(t, scope.Equal(a, b))
}

func TestEqual_DifferentVariantsNeverEqual(t *testing.T) {
	assert.False(t, scope.Equal(scope.Any{}, node(nodeA)))
}

func TestHash_OrderIndependentUnion(t *testing.T) {
	p1 := scope.Process{Parent: node(nodeA), Wid: 1}
	p2 := scope.Process{Parent: node(nodeA), Wid: 2}

	a := scope.Union{Children: []scope.Scope{p1, p2}}
	b := scope.Union{Children: []scope.Scope{p2, p1}}
	assert.Equal(t, scope.Hash(a), scope.Hash(b))
}

func TestHash_OrderIndependentTaints(t *testing.T) {
	a := scope.TaintedScope{
		Inner:  scope.Any{},
		Taints: []scope.Taint{scope.DefaultEnabledTaint{}, scope.ProcessorTypeTaint{T: processor.TagThreadProc}},
	}
	b := scope.TaintedScope{
		Inner:  scope.Any{},
		Taints: []scope.Taint{scope.ProcessorTypeTaint{T: processor.TagThreadProc}, scope.DefaultEnabledTaint{}},
	}
	assert.Equal(t, scope.Hash(a), scope.Hash(b))
}

func TestHash_DistinctScopesDiffer(t *testing.T) {
	a := scope.Process{Parent: node(nodeA), Wid: 1}
	b := scope.Process{Parent: node(nodeA), Wid: 2}
	assert.NotEqual(t, scope.Hash(a), scope.Hash(b))
}
