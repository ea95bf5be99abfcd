package wire

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/clusterscope/clusterscope/internal/processor"
)

// EncodeChildren serializes a children() RPC response: the processor
// snapshot a worker reports for its own OSProc. It reuses the same
// processor encoding Exact's Proc field uses, so a peer that already
// knows how to decode a wire Scope knows how to decode this too.
func EncodeChildren(procs []processor.Processor) ([]byte, error) {
	list := make([]any, 0, len(procs))
	for _, p := range procs {
		list = append(list, encodeProcessor(p))
	}
	st, err := structpb.NewStruct(map[string]any{fieldChrn: list})
	if err != nil {
		return nil, newWireError(ErrCodeMarshal, "failed to build children struct", err)
	}
	body, err := proto.MarshalOptions{Deterministic: true}.Marshal(st)
	if err != nil {
		return nil, newWireError(ErrCodeMarshal, "failed to marshal children struct", err)
	}
	return body, nil
}

// DecodeChildren deserializes an EncodeChildren payload. A processor the
// decoder doesn't recognize is dropped from the result rather than
// failing the whole response.
func DecodeChildren(data []byte) ([]processor.Processor, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, newWireError(ErrCodeUnmarshal, "failed to unmarshal children struct", err)
	}
	m := st.AsMap()
	rawList, _ := m[fieldChrn].([]any)
	out := make([]processor.Processor, 0, len(rawList))
	for _, rp := range rawList {
		pm, ok := rp.(map[string]any)
		if !ok {
			continue
		}
		if p, ok := decodeProcessor(pm); ok {
			out = append(out, p)
		}
	}
	return out, nil
}
