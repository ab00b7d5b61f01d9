package schema

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Attrs is a free-form attribute bag of a type or object.
type Attrs map[string]any

// Clone returns a shallow copy of a.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return Attrs{}
	}
	return maps.Clone(a)
}

// String returns the attribute k formatted as a string, or "" when absent.
func (a Attrs) String(k string) string {
	v, ok := a[k]
	if !ok || v == nil {
		return ""
	}
	return FormatValue(v)
}

// Int returns the attribute k as an integer.
func (a Attrs) Int(k string) (int, bool) {
	return ToInt(a[k])
}

// FormatValue renders a scalar attribute value as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case nil:
		return ""
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// ToInt converts numeric attribute values, including numeric strings, to int.
func ToInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint32:
		return int(x), true
	case float64:
		return int(x), x == float64(int(x))
	case float32:
		return int(x), x == float32(int(x))
	case json.Number:
		i, err := x.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		return i, err == nil
	}
	return 0, false
}

var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// ExpandName substitutes {attr} placeholders in a type name template with
// attribute values. Placeholders without a value are kept.
func ExpandName(template string, attrs Attrs) string {
	if !strings.Contains(template, "{") {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		k := m[1 : len(m)-1]
		if v, ok := attrs[k]; ok && v != nil {
			return FormatValue(v)
		}
		return m
	})
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
