package sim

import "strings"

// Kwargs are environment construction arguments, decoded from JSON.
type Kwargs map[string]any

// Clone returns a deep copy of nested maps and slices.
func (k Kwargs) Clone() Kwargs {
	if k == nil {
		return Kwargs{}
	}
	return cloneValue(map[string]any(k)).(map[string]any)
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[key] = cloneValue(val)
		}
		return out
	case Kwargs:
		return Kwargs(cloneValue(map[string]any(v)).(map[string]any))
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// Set assigns a value at a dotted path ("controller_configs.control_delta"),
// creating intermediate maps.
func (k Kwargs) Set(path string, v any) {
	parts := strings.Split(path, ".")
	m := map[string]any(k)
	for _, p := range parts[:len(parts)-1] {
		next, ok := asMap(m[p])
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}

func asMap(v any) (map[string]any, bool) {
	switch v := v.(type) {
	case map[string]any:
		return v, true
	case Kwargs:
		return map[string]any(v), true
	}
	return nil, false
}

// Map returns the nested map at key, or nil.
func (k Kwargs) Map(key string) Kwargs {
	m, _ := asMap(k[key])
	return m
}

func (k Kwargs) String(key, def string) string {
	if s, ok := k[key].(string); ok {
		return s
	}
	return def
}

func (k Kwargs) Bool(key string, def bool) bool {
	if b, ok := k[key].(bool); ok {
		return b
	}
	return def
}

func (k Kwargs) Float(key string, def float64) float64 {
	switch v := k[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}
