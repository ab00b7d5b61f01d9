package decompose

import (
	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/rowstore"
)

// Permutation maps old row ids to new ones. Index 0 always maps to 0.
type Permutation struct {
	Lines  []int
	Points []int
}

// Moved reports whether any row changes position.
func (p Permutation) Moved() bool {
	for i, v := range p.Lines {
		if i != v {
			return true
		}
	}
	for i, v := range p.Points {
		if i != v {
			return true
		}
	}
	return false
}

// Canonicalize reorders already-built stores into canonical order: lines
// depth-first from the root with children in id order, points in the order
// of their owning lines. Lines not reachable from the root and points owned
// by no line keep their relative order after the rest. The input stores are
// not modified.
func Canonicalize(points *rowstore.Fixed[float32], lines *rowstore.Fixed[uint32]) (*rowstore.Fixed[float32], *rowstore.Fixed[uint32], Permutation, error) {
	parentLine := make([]int, lines.Len())
	for id := 1; id < lines.Len(); id++ {
		if p := int(lines.Row(id)[3]); p < lines.Len() && p != id {
			parentLine[id] = p
		}
	}
	order := depthFirst(parentLine)
	order = appendMissing(order, lines.Len())

	perm := Permutation{
		Lines:  make([]int, lines.Len()),
		Points: make([]int, points.Len()),
	}
	for i, id := range order {
		perm.Lines[id] = i
	}

	assigned := make([]bool, points.Len())
	next := 1
	for _, id := range order[1:] {
		r := lines.Row(id)
		first, num := int(r[1]), int(r[2])
		for p := first; p < first+num && p < points.Len(); p++ {
			if p < 1 || assigned[p] {
				continue
			}
			assigned[p] = true
			perm.Points[p] = next
			next++
		}
	}
	for p := 1; p < points.Len(); p++ {
		if !assigned[p] {
			perm.Points[p] = next
			next++
		}
	}

	newPoints, err := points.Permute(perm.Points)
	if err != nil {
		return nil, nil, perm, err
	}
	newLines, err := lines.Permute(perm.Lines)
	if err != nil {
		return nil, nil, perm, err
	}
	for id := 1; id < newLines.Len(); id++ {
		r := newLines.Row(id)
		if int(r[1]) < len(perm.Points) {
			r[1] = uint32(perm.Points[r[1]])
		}
		if int(r[3]) < len(perm.Lines) {
			r[3] = uint32(perm.Lines[r[3]])
		}
	}
	return newPoints, newLines, perm, nil
}

func appendMissing(order []int, n int) []int {
	if len(order) == n {
		return order
	}
	seen := make([]bool, n)
	for _, id := range order {
		seen[id] = true
	}
	for id := range n {
		if !seen[id] {
			order = append(order, id)
		}
	}
	return order
}

// CanonicalizeTree returns a canonically ordered copy of t with object and
// point properties re-keyed to the new point ids. moved is false, and t is
// returned unchanged, when t is already canonical.
func CanonicalizeTree(t *morph.Tree) (out *morph.Tree, moved bool, err error) {
	points, lines, perm, err := Canonicalize(t.Points(), t.Lines())
	if err != nil {
		return nil, false, err
	}
	if !perm.Moved() {
		return t, false, nil
	}

	objects, pointProps := morph.Props{}, morph.Props{}
	for id, kv := range t.ObjectProperties {
		if id < len(perm.Points) {
			objects.Merge(perm.Points[id], kv)
		}
	}
	for id, kv := range t.PointProperties {
		if id < len(perm.Points) {
			pointProps.Merge(perm.Points[id], kv)
		}
	}
	out, err = morph.New(t.Name, morph.Input{
		Points:      points,
		Lines:       lines,
		CustomTypes: t.CustomTypes,
		Properties:  morph.CompressProperties(objects, pointProps),
		MetaData:    t.MetaData,
		Attrs:       t.Attrs,
		SRS:         t.SRS,
	})
	if err != nil {
		return nil, false, err
	}
	out.Warnings = append(out.Warnings, t.Warnings...)
	return out, true, nil
}
