package normalize

// Deduplicate walks a JSON-like value and drops repeated objects from every
// array at any depth. Two objects are duplicates when their "id" values have
// the same canonical string; the first occurrence wins. Items that are not
// objects, or objects without an id, are always kept.
//
// The input is never mutated: maps and slices on the path are rebuilt.
func Deduplicate(v any) any {
	switch x := v.(type) {
	case []any:
		return dedupSlice(x)
	case []map[string]any:
		items := make([]any, len(x))
		for i, m := range x {
			items[i] = m
		}
		return dedupSlice(items)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = Deduplicate(val)
		}
		return out
	default:
		return v
	}
}

func dedupSlice(items []any) []any {
	seen := make(map[string]struct{}, len(items))
	out := make([]any, 0, len(items))

	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			if id, ok := IDString(m[DefaultIDKey]); ok {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
		}
		out = append(out, Deduplicate(item))
	}

	return out
}

// DefaultIDKey is the field the deduplication pass compares
const DefaultIDKey = "id"
