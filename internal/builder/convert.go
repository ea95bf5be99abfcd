package builder

import "github.com/clusterscope/clusterscope/internal/processor"

// toWorkerId accepts any integer-like representation of a worker id,
// since callers may hand the Builder either a processor.WorkerId, a
// plain integer literal, or a float64 (encoding/json decodes every bare
// number into one when the target is map[string]any, as the HTTP build
// endpoint's request body is).
func toWorkerId(v any) (processor.WorkerId, bool) {
	switch x := v.(type) {
	case processor.WorkerId:
		return x, true
	case int:
		return processor.WorkerId(x), true
	case int64:
		return processor.WorkerId(x), true
	case uint64:
		return processor.WorkerId(x), true
	case float64:
		return processor.WorkerId(x), true
	default:
		return 0, false
	}
}

func toWorkerIds(v any) ([]processor.WorkerId, bool) {
	switch x := v.(type) {
	case []processor.WorkerId:
		return x, true
	case []int:
		out := make([]processor.WorkerId, len(x))
		for i, e := range x {
			out[i] = processor.WorkerId(e)
		}
		return out, true
	case []uint64:
		out := make([]processor.WorkerId, len(x))
		for i, e := range x {
			out[i] = processor.WorkerId(e)
		}
		return out, true
	case []any:
		out := make([]processor.WorkerId, 0, len(x))
		for _, e := range x {
			w, ok := toWorkerId(e)
			if !ok {
				return nil, false
			}
			out = append(out, w)
		}
		return out, true
	default:
		return nil, false
	}
}

func toUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint64:
		return x, true
	case int:
		return uint64(x), true
	case int64:
		return uint64(x), true
	case float64:
		return uint64(x), true
	default:
		return 0, false
	}
}

func toUint64s(v any) ([]uint64, bool) {
	switch x := v.(type) {
	case []uint64:
		return x, true
	case []int:
		out := make([]uint64, len(x))
		for i, e := range x {
			out[i] = uint64(e)
		}
		return out, true
	case []any:
		out := make([]uint64, 0, len(x))
		for _, e := range x {
			t, ok := toUint64(e)
			if !ok {
				return nil, false
			}
			out = append(out, t)
		}
		return out, true
	default:
		return nil, false
	}
}
