package morph

import (
	"fmt"
	"strconv"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/schema"
)

// TypeName returns the display name of type tp for line lineID: the type's
// name (with {attr} placeholders expanded), else the line's "name" object
// property, else the type name from the library.
func (t *Tree) TypeName(tp, lineID int) string {
	entry := t.TypeMap[tp]
	var props map[string]any
	if lineID > 0 && lineID < t.lines.Len() {
		props = t.ObjectProperties[t.Line(lineID).FirstPoint]
	}
	if name := entry.String("name"); name != "" {
		if len(props) == 0 {
			return schema.ExpandName(name, entry)
		}
		attrs := entry.Clone()
		for k, v := range props {
			if _, ok := attrs[k]; !ok {
				attrs[k] = v
			}
		}
		return schema.ExpandName(name, attrs)
	}
	if name, ok := props["name"].(string); ok && name != "" {
		return name
	}
	if name := entry.String(schema.KeyType); name != "" {
		return name
	}
	return "type " + strconv.Itoa(tp)
}

func (t *Tree) checkLine(id, depth int) (Line, error) {
	if id < 1 || id >= t.lines.Len() {
		return Line{}, perrors.Wrap(perrors.ErrCodeOutOfRange, ErrParentOutOfRange, "line %d", id)
	}
	if depth > t.lines.Len() {
		return Line{}, perrors.Wrap(perrors.ErrCodeCycle, ErrCycle, "line %d", id)
	}
	l := t.Line(id)
	if l.Parent == id {
		return Line{}, perrors.Wrap(perrors.ErrCodeSelfParent, ErrSelfParent, "line %d", id)
	}
	if l.Parent >= t.lines.Len() {
		return Line{}, perrors.Wrap(perrors.ErrCodeOutOfRange, ErrParentOutOfRange, "line %d: parent %d", id, l.Parent)
	}
	return l, nil
}

func (t *Tree) childrenOf(parent int) []int {
	if parent < len(t.Children) {
		return t.Children[parent]
	}
	return nil
}

// LineName returns a human-readable name for a line. A line continuing its
// parent's type is named after the parent with a ".N" ordinal among its
// same-type siblings; other lines use their type name, disambiguated with
// " #N" when siblings share it.
func (t *Tree) LineName(id int) (string, error) {
	return t.lineName(id, 0)
}

func (t *Tree) lineName(id, depth int) (string, error) {
	l, err := t.checkLine(id, depth)
	if err != nil {
		return "", err
	}
	sibs := t.childrenOf(l.Parent)

	if l.Parent != 0 && l.Type == t.Line(l.Parent).Type {
		idx := 1
		for _, s := range sibs {
			if s == id {
				break
			}
			if t.Line(s).Type == l.Type {
				idx++
			}
		}
		parent, err := t.lineName(l.Parent, depth+1)
		if err != nil {
			return "", err
		}
		return parent + "." + strconv.Itoa(idx), nil
	}

	name := t.TypeName(l.Type, id)
	count, later, seen := 1, false, false
	for _, s := range sibs {
		if s == id {
			seen = true
			continue
		}
		if t.TypeName(t.Line(s).Type, s) != name {
			continue
		}
		if seen {
			later = true
		} else {
			count++
		}
	}
	switch {
	case count == 1 && later:
		return name + " #1", nil
	case count == 1:
		return name, nil
	default:
		return fmt.Sprintf("%s #%d", name, count), nil
	}
}

// LineKey returns an identifier-safe key for a line: the library type name
// plus an ordinal among same-type siblings, extended with "_N" for lines
// continuing their parent's type.
func (t *Tree) LineKey(id int) (string, error) {
	return t.lineKey(id, 0)
}

func (t *Tree) lineKey(id, depth int) (string, error) {
	l, err := t.checkLine(id, depth)
	if err != nil {
		return "", err
	}
	sibs := t.childrenOf(l.Parent)

	if l.Parent != 0 && l.Type == t.Line(l.Parent).Type {
		idx := 0
		for i, s := range sibs {
			if s == id {
				idx = i + 1
				break
			}
		}
		parent, err := t.lineKey(l.Parent, depth+1)
		if err != nil {
			return "", err
		}
		return parent + "_" + strconv.Itoa(idx), nil
	}

	count := 1
	for _, s := range sibs {
		if s == id {
			break
		}
		if t.Line(s).Type == l.Type {
			count++
		}
	}
	name := t.TypeMap[l.Type].String(schema.KeyType)
	if name == "" {
		name = "type" + strconv.Itoa(l.Type)
	}
	return name + "_" + strconv.Itoa(count), nil
}

// Groups partitions line ids by the display group of their type. A type id
// missing from the type map is registered as a fallback "base" type and
// recorded in Warnings. Groups mutates TypeMap in that case and is not safe
// for concurrent use.
func (t *Tree) Groups(children []int) map[string][]int {
	groups := map[string][]int{}
	for _, ch := range children {
		tp := t.Line(ch).Type
		entry, ok := t.TypeMap[tp]
		if !ok {
			entry = schema.InsertDefaults("base", schema.Attrs{"id": tp})
			t.TypeMap[tp] = entry
			t.warnf("unknown SWC type %d on line %d", tp, ch)
		}
		g := entry.String("group")
		groups[g] = append(groups[g], ch)
	}
	return groups
}
