package normalize

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Plain converts v into the JSON-like shape the normalizer understands:
// map[string]any objects, []any arrays and scalars. Values of any other Go
// type (structs, typed slices, time.Time, ...) are passed through JSON.
// Maps and slices are copied; scalars are kept as they are.
func Plain(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool,
		float32, float64,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			p, err := Plain(val)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = p
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			p, err := Plain(val)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = p
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(x))
		for i, val := range x {
			p, err := Plain(val)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = p
		}
		return out, nil
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("marshal %T: %w", x, err)
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("unmarshal %T: %w", x, err)
		}
		return out, nil
	}
}

// clone deep-copies maps and slices of a JSON-like value
func clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = clone(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = clone(val)
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of e
func Clone(e Entity) Entity {
	if e == nil {
		return nil
	}
	return clone(e).(map[string]any)
}
