package utils

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Float reads a numeric argument delivered by a host codec, which may use any Go number type
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Int reads an integral numeric argument. Floats must carry no fraction and
// fit in 32 bits.
func Int(v any) (int, bool) {
	f, ok := Float(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// UnknownKeys lists keys of args missing from known, sorted
func UnknownKeys(args map[string]any, known ...string) []string {
	var unknown []string
	for k := range args {
		found := false
		for _, kk := range known {
			if k == kk {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// ArgError formats a bad argument message
func ArgError(key string, v any, want string) string {
	return fmt.Sprintf("%q must be %s, got %v (%T)", key, want, v, v)
}

// OneOf renders choices as ['a', 'b']
func OneOf(choices ...string) string {
	quoted := make([]string, len(choices))
	for i, c := range choices {
		quoted[i] = "'" + c + "'"
	}
	return "one of [" + strings.Join(quoted, ", ") + "]"
}
