package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Registry allocates numeric type ids while a file is decoded.
//
// Each decoded object asks for a type by library name plus its attributes.
// Attributes whose value equals the type's default are dropped; other
// attributes with a value type are absorbed into the type key and removed
// from the object. Objects with the same (name, absorbed attributes) pair
// share one id. A standard type with nothing absorbed keeps its fixed id
// (0-4); every other pair receives the next id from [FirstCustomID].
//
// A Registry is not safe for concurrent use.
type Registry struct {
	ids     map[string]int
	entries []registryEntry
	next    int
}

type registryEntry struct {
	name  string
	attrs Attrs
	id    int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ids: map[string]int{}, next: FirstCustomID}
}

// Create returns the id for typeName with the given object attributes.
// Absorbed and default-valued attributes are deleted from attrs; the rest are
// left for the caller to store as object properties. Names outside the
// library are treated as "unknown".
func (r *Registry) Create(typeName string, attrs Attrs) int {
	spec, err := Resolve(typeName)
	if err != nil {
		typeName = "unknown"
		spec, _ = Resolve(typeName)
	}

	absorbed := Attrs{}
	for _, k := range sortedKeys(attrs) {
		if k == "id" || k == KeyType || strings.HasPrefix(k, "_") {
			continue
		}
		name, a, ok := spec.Lookup(k)
		if !ok {
			continue
		}
		v := attrs[k]
		if !a.Required && a.Default != nil && equalValue(v, a.Default) {
			delete(attrs, k)
			continue
		}
		if !a.Fixed() {
			absorbed[name] = v
			delete(attrs, k)
		}
	}

	key := typeKey(typeName, absorbed)
	if id, ok := r.ids[key]; ok {
		return id
	}

	id := -1
	if len(absorbed) == 0 {
		if a, ok := spec["id"]; ok && a.Fixed() {
			if fid, ok := ToInt(a.Default); ok {
				id = fid
			}
		}
	}
	if id < 0 {
		id = r.next
		r.next++
	}
	r.ids[key] = id
	r.entries = append(r.entries, registryEntry{name: typeName, attrs: absorbed, id: id})
	return id
}

// Len returns the number of registered types.
func (r *Registry) Len() int { return len(r.entries) }

// CustomTypes returns the registered types grouped by type name. Each entry
// holds the absorbed attributes plus its "id".
func (r *Registry) CustomTypes() CustomTypes {
	out := CustomTypes{}
	for _, e := range r.entries {
		attrs := e.attrs.Clone()
		attrs["id"] = e.id
		out[e.name] = append(out[e.name], attrs)
	}
	return out
}

func typeKey(name string, absorbed Attrs) string {
	b, _ := json.Marshal(absorbed)
	return name + "\x00" + string(b)
}

func equalValue(a, b any) bool {
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

// =============================================================================
// CustomTypes
// =============================================================================

// CustomTypes lists file-local type entries by library type name. In JSON a
// name maps to a single object when it has one entry and to an array
// otherwise; both forms are accepted when decoding.
type CustomTypes map[string][]Attrs

// MarshalJSON collapses single-entry lists into objects.
func (c CustomTypes) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c))
	for k, v := range c {
		if len(v) == 1 {
			m[k] = v[0]
		} else {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts both the object and the array form of each entry.
func (c *CustomTypes) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ct, err := CustomTypesFrom(raw)
	if err != nil {
		return err
	}
	*c = ct
	return nil
}

// CustomTypesFrom converts a generic decoded document (from JSON or from the
// SWC+ XML header) into CustomTypes.
func CustomTypesFrom(v any) (CustomTypes, error) {
	out := CustomTypes{}
	if v == nil {
		return out, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("customTypes: expected object, got %T", v)
	}
	for name, entry := range m {
		switch e := entry.(type) {
		case map[string]any:
			out[name] = append(out[name], Attrs(e))
		case []any:
			for i, item := range e {
				im, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("customTypes.%s[%d]: expected object, got %T", name, i, item)
				}
				out[name] = append(out[name], Attrs(im))
			}
		default:
			return nil, fmt.Errorf("customTypes.%s: expected object or array, got %T", name, entry)
		}
	}
	return out, nil
}

// Names returns the type names in sorted order.
func (c CustomTypes) Names() []string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
