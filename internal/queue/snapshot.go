package queue

// snapshotValue structurally copies a JSON-shaped value (strings, numbers,
// bools, map[string]any, []any and friends) so that later mutation of the
// caller's maps and slices cannot reach into a queued event. Values outside
// that shape are returned as-is: Go value semantics already copy scalars and
// plain structs on assignment.
func snapshotValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = snapshotValue(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = snapshotValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}

// snapshotArgs copies the argument sequence itself plus each element.
func snapshotArgs(args []any) []any {
	if args == nil {
		return nil
	}
	out := make([]any, len(args))
	for i, arg := range args {
		out[i] = snapshotValue(arg)
	}
	return out
}
