package codec

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Record is the flat field dictionary of one entity.
type Record map[string]any

// Reserved record keys.
const (
	KeyID       = "id"
	KeyType     = "l"
	KeyParents  = "p"
	KeyChildren = "c"
	KeyMeta     = "meta"
)

// Clone returns a shallow copy with slice values copied.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		switch vv := v.(type) {
		case []string:
			out[k] = append([]string(nil), vv...)
		case []any:
			out[k] = append([]any(nil), vv...)
		default:
			out[k] = v
		}
	}
	return out
}

// ID returns the record's id.
func (r Record) ID() string {
	s, _ := r[KeyID].(string)
	return s
}

// Type returns the record's type discriminator.
func (r Record) Type() string {
	s, _ := r[KeyType].(string)
	return s
}

// Keys returns the keys in lexical order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func readFloat(r Record, key string) (float64, bool, error) {
	raw, ok := r[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%s: %w", key, err)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("%s: expected number, got %T", key, raw)
	}
}

func readString(r Record, key string) (string, bool, error) {
	raw, ok := r[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("%s: expected string, got %T", key, raw)
	}
	return s, true, nil
}

func readBool(r Record, key string) (bool, bool, error) {
	raw, ok := r[key]
	if !ok || raw == nil {
		return false, false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, false, fmt.Errorf("%s: expected bool, got %T", key, raw)
	}
	return b, true, nil
}

func readStrings(r Record, key string) ([]string, bool, error) {
	raw, ok := r[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), true, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false, fmt.Errorf("%s[%d]: expected string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, true, nil
	default:
		return nil, false, fmt.Errorf("%s: expected list, got %T", key, raw)
	}
}
