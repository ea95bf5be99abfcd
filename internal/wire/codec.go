package wire

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/clusterscope/clusterscope/internal/processor"
	"github.com/clusterscope/clusterscope/internal/scope"
)

// compressThreshold is the encoded-size cutoff above which EncodeScope
// transparently brotli-compresses the payload (spec §6: scopes "survive
// transfer between workers" without the caller having to think about
// payload size).
const compressThreshold = 512

const (
	flagRaw    byte = 0
	flagBrotli byte = 1
)

// EncodeScope serializes a Scope to a self-describing byte form: a
// structpb.Struct (schema-less, so no schema compiler is needed to read it
// back on a different build) marshaled deterministically, optionally
// brotli-compressed, and prefixed with a one-byte compression flag.
func EncodeScope(s scope.Scope) ([]byte, error) {
	st, err := structpb.NewStruct(encodeScope(s))
	if err != nil {
		return nil, newWireError(ErrCodeMarshal, "failed to build wire struct", err)
	}

	body, err := proto.MarshalOptions{Deterministic: true}.Marshal(st)
	if err != nil {
		return nil, newWireError(ErrCodeMarshal, "failed to marshal wire struct", err)
	}

	if len(body) < compressThreshold {
		return append([]byte{flagRaw}, body...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(flagBrotli)
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, newWireError(ErrCodeCompress, "failed to compress wire payload", err)
	}
	if err := w.Close(); err != nil {
		return nil, newWireError(ErrCodeCompress, "failed to flush compressor", err)
	}
	return buf.Bytes(), nil
}

// DecodeScope deserializes a byte form produced by EncodeScope. An
// unrecognized variant tag anywhere in the tree degrades that subtree to
// scope.Invalid rather than returning an error — a stale peer decoding a
// newer scope gets a value rather than an error (spec §7's "never raise at
// algebra time" extended to deserialization). A result that is itself
// scope.Invalid is not a legal Constrain operand: Constrain panics on it.
func DecodeScope(data []byte) (scope.Scope, error) {
	if len(data) == 0 {
		return nil, newWireError(ErrCodeUnmarshal, "empty wire payload", nil)
	}

	flag, body := data[0], data[1:]
	switch flag {
	case flagRaw:
		// body is used as-is below.
	case flagBrotli:
		r := brotli.NewReader(bytes.NewReader(body))
		decompressed, err := io.ReadAll(r)
		if err != nil {
			return nil, newWireError(ErrCodeDecompress, "failed to decompress wire payload", err)
		}
		body = decompressed
	default:
		return nil, newWireError(ErrCodeUnmarshal, "unrecognized wire compression flag", nil)
	}

	var st structpb.Struct
	if err := proto.Unmarshal(body, &st); err != nil {
		return nil, newWireError(ErrCodeUnmarshal, "failed to unmarshal wire struct", err)
	}

	return decodeScope(st.AsMap()), nil
}

func encodeScope(s scope.Scope) map[string]any {
	switch v := s.(type) {
	case scope.Any:
		return map[string]any{fieldTag: float64(TagAny)}

	case scope.TaintedScope:
		taints := make([]any, 0, len(v.Taints))
		for _, t := range v.Taints {
			taints = append(taints, encodeTaint(t))
		}
		return map[string]any{
			fieldTag:    float64(TagTainted),
			fieldInner:  encodeScope(v.Inner),
			fieldTaints: taints,
		}

	case scope.Union:
		children := make([]any, 0, len(v.Children))
		for _, c := range v.Children {
			children = append(children, encodeScope(c))
		}
		return map[string]any{fieldTag: float64(TagUnion), fieldChrn: children}

	case scope.Node:
		return map[string]any{fieldTag: float64(TagNode), fieldUUID: v.UUID.String()}

	case scope.Process:
		return map[string]any{
			fieldTag:    float64(TagProcess),
			fieldParent: encodeScope(v.Parent),
			fieldWid:    float64(v.Wid),
		}

	case scope.Exact:
		return map[string]any{
			fieldTag:    float64(TagExact),
			fieldParent: encodeScope(v.Parent),
			fieldProc:   encodeProcessor(v.Proc),
		}

	case scope.Invalid:
		return map[string]any{
			fieldTag:   float64(TagInvalid),
			fieldLeft:  encodeScope(v.Left),
			fieldRight: encodeScope(v.Right),
		}

	default:
		return map[string]any{fieldTag: float64(TagInvalid)}
	}
}

func encodeTaint(t scope.Taint) map[string]any {
	switch v := t.(type) {
	case scope.DefaultEnabledTaint:
		return map[string]any{fieldTaintT: float64(TaintTagDefaultEnabled)}
	case scope.ProcessorTypeTaint:
		return map[string]any{fieldTaintT: float64(TaintTagProcessorType), fieldUserTag: float64(v.T)}
	default:
		return map[string]any{fieldTaintT: float64(TaintTagUser), fieldUserTag: float64(t.Tag())}
	}
}

func encodeProcessor(p processor.Processor) map[string]any {
	switch v := p.(type) {
	case processor.OSProc:
		return map[string]any{fieldTag: float64(ProcTagOSProc), fieldPid: float64(v.WorkerID)}
	case processor.ThreadProc:
		return map[string]any{
			fieldTag: float64(ProcTagThreadProc),
			fieldPid: float64(v.WorkerID),
			fieldTid: float64(v.ThreadID),
		}
	default:
		// A user-registered processor variant has no generic constructor
		// this package can call, so only its tag and owning worker travel
		// on the wire; a peer that doesn't recognize the tag can still
		// log or route on pid, but decodeProcessor will refuse to build a
		// Processor from it.
		return map[string]any{fieldTag: float64(ProcTagUser), fieldUserTag: float64(p.Tag()), fieldPid: float64(p.Pid())}
	}
}

func decodeScope(m map[string]any) scope.Scope {
	tag, ok := tagOf(m)
	if !ok {
		return scope.Invalid{}
	}

	switch Tag(tag) {
	case TagAny:
		return scope.Any{}

	case TagTainted:
		inner := decodeScope(subMap(m, fieldInner))
		rawTaints, _ := m[fieldTaints].([]any)
		taints := make([]scope.Taint, 0, len(rawTaints))
		for _, rt := range rawTaints {
			tm, ok := rt.(map[string]any)
			if !ok {
				continue
			}
			t, ok := decodeTaint(tm)
			if !ok {
				return scope.Invalid{}
			}
			taints = append(taints, t)
		}
		return scope.TaintedScope{Inner: inner, Taints: taints}

	case TagUnion:
		rawChildren, _ := m[fieldChrn].([]any)
		children := make([]scope.Scope, 0, len(rawChildren))
		for _, rc := range rawChildren {
			cm, ok := rc.(map[string]any)
			if !ok {
				continue
			}
			children = append(children, decodeScope(cm))
		}
		return scope.NewUnion(children)

	case TagNode:
		id, ok := decodeUUID(m)
		if !ok {
			return scope.Invalid{}
		}
		return scope.Node{UUID: id}

	case TagProcess:
		parent := decodeScope(subMap(m, fieldParent))
		pv, ok := parent.(scope.Node)
		if !ok {
			return scope.Invalid{}
		}
		wid, ok := floatField(m, fieldWid)
		if !ok {
			return scope.Invalid{}
		}
		return scope.Process{Parent: pv, Wid: processor.WorkerId(wid)}

	case TagExact:
		parent := decodeScope(subMap(m, fieldParent))
		pv, ok := parent.(scope.Process)
		if !ok {
			return scope.Invalid{}
		}
		proc, ok := decodeProcessor(subMap(m, fieldProc))
		if !ok {
			return scope.Invalid{}
		}
		return scope.Exact{Parent: pv, Proc: proc}

	case TagInvalid:
		return scope.Invalid{
			Left:  decodeScope(subMap(m, fieldLeft)),
			Right: decodeScope(subMap(m, fieldRight)),
		}

	default:
		return scope.Invalid{}
	}
}

func decodeTaint(m map[string]any) (scope.Taint, bool) {
	tag, ok := floatField(m, fieldTaintT)
	if !ok {
		return nil, false
	}
	switch Tag(tag) {
	case TaintTagDefaultEnabled:
		return scope.DefaultEnabledTaint{}, true
	case TaintTagProcessorType:
		t, ok := floatField(m, fieldUserTag)
		if !ok {
			return nil, false
		}
		return scope.ProcessorTypeTaint{T: processor.TypeTag(t)}, true
	default:
		// A user taint's tag is process-local; a peer that never ran
		// RegisterTaintType for it cannot evaluate it, so decodeScope
		// degrades the enclosing TaintedScope to scope.Invalid rather than
		// silently dropping or misapplying the taint.
		return nil, false
	}
}

func decodeProcessor(m map[string]any) (processor.Processor, bool) {
	tag, ok := floatField(m, fieldTag)
	if !ok {
		return nil, false
	}
	switch Tag(tag) {
	case ProcTagOSProc:
		pid, ok := floatField(m, fieldPid)
		if !ok {
			return nil, false
		}
		return processor.OSProc{WorkerID: processor.WorkerId(pid)}, true
	case ProcTagThreadProc:
		pid, ok := floatField(m, fieldPid)
		tid, ok2 := floatField(m, fieldTid)
		if !ok || !ok2 {
			return nil, false
		}
		return processor.ThreadProc{WorkerID: processor.WorkerId(pid), ThreadID: uint64(tid)}, true
	default:
		return nil, false
	}
}

func tagOf(m map[string]any) (float64, bool) {
	return floatField(m, fieldTag)
}

func floatField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

func subMap(m map[string]any, key string) map[string]any {
	sub, _ := m[key].(map[string]any)
	return sub
}

func decodeUUID(m map[string]any) (uuid.UUID, bool) {
	s, ok := m[fieldUUID].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
