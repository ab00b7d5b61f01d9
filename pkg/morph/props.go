package morph

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Props is a sparse property bag keyed by point id.
type Props map[int]map[string]any

// Set stores one property for id.
func (p Props) Set(id int, key string, value any) {
	if p[id] == nil {
		p[id] = map[string]any{}
	}
	p[id][key] = value
}

// Merge copies kv into the properties of id. Empty maps are ignored.
func (p Props) Merge(id int, kv map[string]any) {
	if len(kv) == 0 {
		return
	}
	if p[id] == nil {
		p[id] = make(map[string]any, len(kv))
	}
	maps.Copy(p[id], kv)
}

// IDs returns the ids that carry properties, ascending.
func (p Props) IDs() []int {
	return slices.Sorted(maps.Keys(p))
}

// PropertyGroup assigns one set of key/values to a list of objects and
// points.
type PropertyGroup struct {
	Objects []int          `json:"objects,omitempty"`
	Points  []int          `json:"points,omitempty"`
	Set     map[string]any `json:"set"`
}

// CustomProperties is the compressed wire form of object and point
// properties: ids that share an identical key/value are listed once.
type CustomProperties struct {
	For []PropertyGroup `json:"for,omitempty"`
}

// Empty reports whether there are no property groups.
func (c CustomProperties) Empty() bool { return len(c.For) == 0 }

// CompressProperties groups identical key/value pairs by the exact list of
// object and point ids that carry them. The output is deterministic: ids
// are visited in ascending order and keys alphabetically.
func CompressProperties(objects, points Props) CustomProperties {
	type kv struct {
		key     string
		value   any
		objects []int
		points  []int
	}
	var order []string
	pairs := map[string]*kv{}
	collect := func(props Props, isPoint bool) {
		for _, id := range props.IDs() {
			set := props[id]
			for _, k := range slices.Sorted(maps.Keys(set)) {
				b, err := json.Marshal([]any{k, set[k]})
				if err != nil {
					continue
				}
				sig := string(b)
				e := pairs[sig]
				if e == nil {
					e = &kv{key: k, value: set[k]}
					pairs[sig] = e
					order = append(order, sig)
				}
				if isPoint {
					e.points = append(e.points, id)
				} else {
					e.objects = append(e.objects, id)
				}
			}
		}
	}
	collect(objects, false)
	collect(points, true)

	var out CustomProperties
	groupIndex := map[string]int{}
	for _, sig := range order {
		e := pairs[sig]
		ids := fmt.Sprint(e.objects, "|", e.points)
		i, ok := groupIndex[ids]
		if !ok {
			i = len(out.For)
			groupIndex[ids] = i
			out.For = append(out.For, PropertyGroup{Objects: e.objects, Points: e.points, Set: map[string]any{}})
		}
		out.For[i].Set[e.key] = e.value
	}
	return out
}

// InflateProperties expands the compressed form into per-id property bags.
func InflateProperties(c CustomProperties) (objects, points Props) {
	objects, points = Props{}, Props{}
	for _, g := range c.For {
		for _, id := range g.Objects {
			objects.Merge(id, g.Set)
		}
		for _, id := range g.Points {
			points.Merge(id, g.Set)
		}
	}
	return objects, points
}

// PropertiesFrom converts a generic decoded document into CustomProperties.
// It accepts the JSON form and the form produced from the SWC+ XML header,
// where a single "for" group is an object and id lists may be
// comma-separated strings.
func PropertiesFrom(v any) (CustomProperties, error) {
	var out CustomProperties
	if v == nil {
		return out, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return out, fmt.Errorf("customProperties: expected object, got %T", v)
	}
	var groups []any
	switch f := m["for"].(type) {
	case nil:
		return out, nil
	case []any:
		groups = f
	case map[string]any:
		groups = []any{f}
	default:
		return out, fmt.Errorf("customProperties.for: expected object or array, got %T", f)
	}
	for i, g := range groups {
		gm, ok := g.(map[string]any)
		if !ok {
			return out, fmt.Errorf("customProperties.for[%d]: expected object, got %T", i, g)
		}
		objects, err := idList(gm["objects"])
		if err != nil {
			return out, fmt.Errorf("customProperties.for[%d].objects: %w", i, err)
		}
		pts, err := idList(gm["points"])
		if err != nil {
			return out, fmt.Errorf("customProperties.for[%d].points: %w", i, err)
		}
		set := map[string]any{}
		switch s := gm["set"].(type) {
		case map[string]any:
			maps.Copy(set, s)
		case []any:
			for _, item := range s {
				if sm, ok := item.(map[string]any); ok {
					maps.Copy(set, sm)
				}
			}
		}
		out.For = append(out.For, PropertyGroup{Objects: objects, Points: pts, Set: set})
	}
	return out, nil
}

// Document returns the generic form used by the SWC+ XML header writer.
func (c CustomProperties) Document() map[string]any {
	groups := make([]any, 0, len(c.For))
	for _, g := range c.For {
		m := map[string]any{"set": g.Set}
		if len(g.Objects) > 0 {
			m["objects"] = intsToAny(g.Objects)
		}
		if len(g.Points) > 0 {
			m["points"] = intsToAny(g.Points)
		}
		groups = append(groups, m)
	}
	return map[string]any{"for": groups}
}

func intsToAny(ids []int) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func idList(v any) ([]int, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		var out []int
		for _, f := range strings.FieldsFunc(x, func(r rune) bool { return r == ',' || r == ' ' }) {
			id, err := strconv.Atoi(f)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		}
		return out, nil
	case []any:
		out := make([]int, 0, len(x))
		for _, item := range x {
			switch n := item.(type) {
			case float64:
				out = append(out, int(n))
			case int:
				out = append(out, n)
			case json.Number:
				i, err := n.Int64()
				if err != nil {
					return nil, err
				}
				out = append(out, int(i))
			default:
				return nil, fmt.Errorf("id %v is not a number", item)
			}
		}
		return out, nil
	case float64:
		return []int{int(x)}, nil
	case int:
		return []int{x}, nil
	}
	return nil, fmt.Errorf("unexpected id list %T", v)
}
