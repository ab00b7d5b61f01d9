package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownType is returned when a type name is not in the library.
var ErrUnknownType = errors.New("unknown type")

// chain returns the declarations from name up to the root of its hierarchy,
// most specific first.
func chain(name string) []Def {
	var out []Def
	for name != "" {
		d, ok := library[name]
		if !ok || slices.ContainsFunc(out, func(x Def) bool { return x.Name == name }) {
			break
		}
		out = append(out, d)
		name = d.Extends
	}
	return out
}

// Resolve merges the attributes of name and its ancestors. Attributes of the
// most specific type win.
func Resolve(name string) (Spec, error) {
	c := chain(name)
	if len(c) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	spec := Spec{}
	for _, d := range c {
		for k, a := range d.Attrs {
			if _, ok := spec[k]; !ok {
				spec[k] = a
			}
		}
	}
	return spec, nil
}

// Lookup returns the attribute declared under key, matching the key
// case-insensitively when there is no exact match.
func (s Spec) Lookup(key string) (string, Attr, bool) {
	if a, ok := s[key]; ok {
		return key, a, true
	}
	for k, a := range s {
		if strings.EqualFold(k, key) {
			return k, a, true
		}
	}
	return "", Attr{}, false
}

// InsertDefaults records the type name under [KeyType] and fills every
// attribute absent from attrs with its resolved default. Required attributes
// are never inserted. An "_extends" entry in attrs adds that type's chain
// below the named type, which lets file-local types inherit from the library.
// The (possibly newly allocated) attrs map is returned.
func InsertDefaults(name string, attrs Attrs) Attrs {
	if attrs == nil {
		attrs = Attrs{}
	}
	if _, ok := attrs[KeyType]; !ok {
		attrs[KeyType] = name
	}
	c := chain(name)
	if ext, ok := attrs["_extends"].(string); ok && ext != "" {
		c = append(c, chain(ext)...)
	}
	for _, d := range c {
		for _, k := range sortedKeys(d.Attrs) {
			a := d.Attrs[k]
			if _, ok := attrs[k]; ok || a.Required || a.Default == nil {
				continue
			}
			attrs[k] = a.Default
		}
	}
	return attrs
}

// Names returns the names of all library types in sorted order.
func Names() []string {
	return sortedKeys(library)
}

// =============================================================================
// Geometry and cell part matching
// =============================================================================

var typeByGeometryAndPart = buildPartIndex()

func buildPartIndex() map[string]map[string]string {
	idx := map[string]map[string]string{}
	for _, name := range Names() {
		spec, _ := Resolve(name)
		part, _ := spec["cellPart"].Default.(string)
		geom, _ := spec["geometry"].Default.(string)
		if part == "" || geom == "" {
			continue
		}
		if idx[geom] == nil {
			idx[geom] = map[string]string{}
		}
		idx[geom][part] = name
	}
	// a soma traced as an open border is still the soma contour
	if idx["border"] == nil {
		idx["border"] = map[string]string{}
	}
	idx["border"]["soma"] = "somaContour"
	return idx
}

// MatchType returns the type name for an object of the given geometry class
// and cell part, falling back to the geometry class itself and then to
// "unknown".
func MatchType(geometry, part string) string {
	if byPart, ok := typeByGeometryAndPart[geometry]; ok && part != "" {
		if name, ok := byPart[strings.ToLower(part)]; ok {
			return name
		}
	}
	if geometry != "" {
		return geometry
	}
	return "unknown"
}
