package wire_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterscope/clusterscope/internal/processor"
	"github.com/clusterscope/clusterscope/internal/scope"
	"github.com/clusterscope/clusterscope/internal/wire"
)

var nodeA = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func TestEncodeDecode_RoundTripsBuiltins(t *testing.T) {
	exact := scope.Exact{
		Parent: scope.Process{Parent: scope.Node{UUID: nodeA}, Wid: 1},
		Proc:   processor.ThreadProc{WorkerID: 1, ThreadID: 2},
	}

	cases := []scope.Scope{
		scope.Any{},
		scope.Default(),
		scope.Node{UUID: nodeA},
		scope.Process{Parent: scope.Node{UUID: nodeA}, Wid: 1},
		exact,
		scope.NewUnion([]scope.Scope{exact, scope.Process{Parent: scope.Node{UUID: nodeA}, Wid: 9}}),
		scope.Invalid{Left: scope.Any{}, Right: scope.Node{UUID: nodeA}},
	}

	for _, c := range cases {
		data, err := wire.EncodeScope(c)
		require.NoError(t, err)

		decoded, err := wire.DecodeScope(data)
		require.NoError(t, err)
		assert.True(t, scope.Equal(decoded, c), "round trip mismatch for %s", scope.Describe(c))
	}
}

func TestDecodeScope_EmptyPayloadFails(t *testing.T) {
	_, err := wire.DecodeScope(nil)
	assert.Error(t, err)
}

func TestEncodeDecode_CompressesLargePayload(t *testing.T) {
	children := make([]scope.Scope, 0, 64)
	for i := uint64(0); i < 64; i++ {
		children = append(children, scope.Exact{
			Parent: scope.Process{Parent: scope.Node{UUID: nodeA}, Wid: processor.WorkerId(i)},
			Proc:   processor.ThreadProc{WorkerID: processor.WorkerId(i), ThreadID: i},
		})
	}
	big := scope.Union{Children: children}

	data, err := wire.EncodeScope(big)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, byte(1), data[0], "large payloads should be flagged brotli-compressed")

	decoded, err := wire.DecodeScope(data)
	require.NoError(t, err)
	assert.True(t, scope.Equal(decoded, big))
}

func TestDecodeScope_UnrecognizedProcessorDegradesToInvalid(t *testing.T) {
	// A wire-level Exact whose processor tag no local RegisterType call
	// has ever produced should degrade, not panic or error.
	parent := scope.Process{Parent: scope.Node{UUID: nodeA}, Wid: 1}
	unknown := unknownProc{}
	exact := scope.Exact{Parent: parent, Proc: unknown}

	data, err := wire.EncodeScope(exact)
	require.NoError(t, err)

	decoded, err := wire.DecodeScope(data)
	require.NoError(t, err)
	_, isInvalid := decoded.(scope.Invalid)
	assert.True(t, isInvalid)
}

func TestEncodeDecodeChildren_RoundTrips(t *testing.T) {
	procs := []processor.Processor{
		processor.OSProc{WorkerID: 1},
		processor.ThreadProc{WorkerID: 1, ThreadID: 1},
		processor.ThreadProc{WorkerID: 1, ThreadID: 2},
	}

	data, err := wire.EncodeChildren(procs)
	require.NoError(t, err)

	decoded, err := wire.DecodeChildren(data)
	require.NoError(t, err)
	require.Len(t, decoded, len(procs))
	for i, p := range procs {
		assert.True(t, p.Equal(decoded[i]))
	}
}

type unknownProc struct{}

func (unknownProc) Tag() processor.TypeTag        { return 9999 }
func (unknownProc) Pid() processor.WorkerId       { return 1 }
func (unknownProc) Parent() processor.Processor   { return nil }
func (unknownProc) DefaultEnabled() bool          { return false }
func (unknownProc) Key() any                      { return struct{}{} }
func (unknownProc) Equal(processor.Processor) bool { return false }
