// Package morph is the canonical neuron morphology model.
//
// A [Tree] stores every traced object of a reconstruction in two arenas:
//
//   - points: float32 rows (x, y, z, r); row 0 is a dummy.
//   - lines: uint32 rows (type, firstPoint, numPoints, parentLine, negOffset);
//     row 0 is the root sentinel.
//
// A line is a maximal non-branching run of same-type points. It owns the
// contiguous point range [firstPoint, firstPoint+numPoints) and attaches to
// its parent line at the point negOffset steps back from the parent's last
// point. Parent links only ever point to other line ids, never to objects.
//
// Trees are built once by [New], which validates the forest invariant
// (every line reaches line 0 by following parentLine) and derives the type
// map, the children index and the bounding box. After construction only
// [Tree.Transform] changes point coordinates.
package morph

import (
	"fmt"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/rowstore"
	"github.com/matzehuels/morphkit/pkg/schema"
)

// Column counts of the two arenas.
const (
	PointCols = 4
	LineCols  = 5
)

// DefaultSRS is the spatial reference system of freshly decoded trees.
const DefaultSRS = "local"

// Line is a value view of one line row.
type Line struct {
	Type       int
	FirstPoint int
	NumPoints  int
	Parent     int
	NegOffset  int
}

// LastPoint returns the id of the line's last point.
func (l Line) LastPoint() int { return l.FirstPoint + l.NumPoints - 1 }

// Row returns the line as a store row.
func (l Line) Row() []uint32 {
	return []uint32{uint32(l.Type), uint32(l.FirstPoint), uint32(l.NumPoints), uint32(l.Parent), uint32(l.NegOffset)}
}

// Point is a value view of one point row.
type Point struct {
	X, Y, Z, R float64
}

// Input is what decoders hand to [New].
type Input struct {
	Points      *rowstore.Fixed[float32]
	Lines       *rowstore.Fixed[uint32]
	CustomTypes schema.CustomTypes
	Properties  CustomProperties
	MetaData    map[string]any
	Attrs       map[string]string
	SRS         string
}

// Tree is a decoded, validated morphology.
type Tree struct {
	// Name is the source file name.
	Name string
	// Attrs holds the root attributes of an SWC+ document (e.g. version).
	Attrs map[string]string
	// MetaData is the free-form SWC+ metaData section.
	MetaData map[string]any
	// CustomTypes lists the file-local types as decoded.
	CustomTypes schema.CustomTypes
	// ObjectProperties is keyed by a line's first point; id 0 is the file.
	ObjectProperties Props
	// PointProperties is keyed by point id.
	PointProperties Props
	// TypeMap maps numeric type ids to resolved type entries.
	TypeMap map[int]schema.Attrs
	// Children lists the child line ids of every line, in line id order.
	Children [][]int
	// BoundingBox spans all points except the dummy row 0.
	BoundingBox Box
	// SRS names the spatial reference system of the point coordinates.
	SRS string
	// Warnings collects runtime issues found after construction.
	Warnings []Warning

	points *rowstore.Fixed[float32]
	lines  *rowstore.Fixed[uint32]
}

// New validates the arenas and assembles a Tree.
func New(name string, in Input) (*Tree, error) {
	if in.Points == nil || in.Lines == nil {
		return nil, perrors.New(perrors.ErrCodeInvalidInput, "tree %s: missing point or line store", name)
	}
	if in.Points.Cols() != PointCols || in.Lines.Cols() != LineCols {
		return nil, perrors.New(perrors.ErrCodeInvalidInput, "tree %s: stores have %d/%d columns, want %d/%d",
			name, in.Points.Cols(), in.Lines.Cols(), PointCols, LineCols)
	}
	if err := validate(in.Points, in.Lines); err != nil {
		return nil, err
	}

	t := &Tree{
		Name:        name,
		Attrs:       in.Attrs,
		MetaData:    in.MetaData,
		CustomTypes: in.CustomTypes,
		SRS:         in.SRS,
		points:      in.Points,
		lines:       in.Lines,
	}
	if t.Attrs == nil {
		t.Attrs = map[string]string{}
	}
	if t.MetaData == nil {
		t.MetaData = map[string]any{}
	}
	if t.CustomTypes == nil {
		t.CustomTypes = schema.CustomTypes{}
	}
	if t.SRS == "" {
		t.SRS = DefaultSRS
	}
	t.ObjectProperties, t.PointProperties = InflateProperties(in.Properties)

	t.TypeMap = schema.StandardTypes()
	for _, typeName := range t.CustomTypes.Names() {
		for _, entry := range t.CustomTypes[typeName] {
			attrs := schema.InsertDefaults(typeName, entry.Clone())
			id, ok := attrs.Int("id")
			if !ok {
				t.warnf("custom type %q has no numeric id", typeName)
				continue
			}
			attrs["id"] = id
			t.TypeMap[id] = attrs
		}
	}

	t.Children = make([][]int, t.lines.Len())
	for id := 1; id < t.lines.Len(); id++ {
		p := t.Line(id).Parent
		t.Children[p] = append(t.Children[p], id)
	}
	t.BoundingBox = t.pointBox()
	return t, nil
}

// validate enforces the structural invariants: line parents in range and
// acyclic, point ranges inside the point store, attachment offsets inside
// the parent line.
func validate(points *rowstore.Fixed[float32], lines *rowstore.Fixed[uint32]) error {
	nLines, nPoints := lines.Len(), points.Len()
	if nLines < 1 || nPoints < 1 {
		return perrors.New(perrors.ErrCodeInvalidInput, "stores must hold the reserved row 0")
	}
	if lines.Row(0)[3] != 0 {
		return perrors.Wrap(perrors.ErrCodeSelfParent, ErrSelfParent, "root line has parent %d", lines.Row(0)[3])
	}
	for id := 1; id < nLines; id++ {
		r := lines.Row(id)
		first, num, parent, neg := int(r[1]), int(r[2]), int(r[3]), int(r[4])
		if parent == id {
			return perrors.Wrap(perrors.ErrCodeSelfParent, ErrSelfParent, "line %d", id)
		}
		if parent >= nLines {
			return perrors.Wrap(perrors.ErrCodeOutOfRange, ErrParentOutOfRange, "line %d: parent %d of %d lines", id, parent, nLines-1)
		}
		if num < 1 || first < 1 || first+num > nPoints {
			return perrors.Wrap(perrors.ErrCodeOutOfRange, ErrPointOutOfRange,
				"line %d: points [%d, %d) of %d", id, first, first+num, nPoints-1)
		}
		if parent > 0 && neg >= int(lines.Row(parent)[2]) {
			return perrors.Wrap(perrors.ErrCodeOutOfRange, ErrPointOutOfRange,
				"line %d: negOffset %d exceeds parent line %d", id, neg, parent)
		}
	}

	// 0 unknown, 1 on the current path, 2 reaches the root
	state := make([]uint8, nLines)
	state[0] = 2
	var path []int
	for id := 1; id < nLines; id++ {
		path = path[:0]
		cur := id
		for state[cur] == 0 {
			state[cur] = 1
			path = append(path, cur)
			cur = int(lines.Row(cur)[3])
		}
		if state[cur] == 1 {
			return perrors.Wrap(perrors.ErrCodeCycle, ErrCycle, "line %d", cur)
		}
		for _, p := range path {
			state[p] = 2
		}
	}
	return nil
}

// Validate re-checks the structural invariants, e.g. after rows were edited
// in place.
func (t *Tree) Validate() error { return validate(t.points, t.lines) }

// Points returns the point store.
func (t *Tree) Points() *rowstore.Fixed[float32] { return t.points }

// Lines returns the line store.
func (t *Tree) Lines() *rowstore.Fixed[uint32] { return t.lines }

// NumPoints returns the number of points, excluding the dummy row 0.
func (t *Tree) NumPoints() int { return t.points.Len() - 1 }

// NumLines returns the number of lines, excluding the root sentinel.
func (t *Tree) NumLines() int { return t.lines.Len() - 1 }

// Line returns line id.
func (t *Tree) Line(id int) Line {
	r := t.lines.Row(id)
	return Line{int(r[0]), int(r[1]), int(r[2]), int(r[3]), int(r[4])}
}

// Point returns point id.
func (t *Tree) Point(id int) Point {
	r := t.points.Row(id)
	return Point{float64(r[0]), float64(r[1]), float64(r[2]), float64(r[3])}
}

// ParentPoint returns the id of the point a line attaches to, or 0 for
// lines attached to the root.
func (t *Tree) ParentPoint(id int) int {
	l := t.Line(id)
	if l.Parent == 0 {
		return 0
	}
	return t.Line(l.Parent).LastPoint() - l.NegOffset
}

// Properties returns the object and point properties in compressed form.
func (t *Tree) Properties() CustomProperties {
	return CompressProperties(t.ObjectProperties, t.PointProperties)
}

// TypeCounts returns the number of lines per type id.
func (t *Tree) TypeCounts() map[int]int {
	out := map[int]int{}
	for id := 1; id < t.lines.Len(); id++ {
		out[t.Line(id).Type]++
	}
	return out
}

func (t *Tree) warnf(format string, args ...any) {
	t.Warnings = append(t.Warnings, Warning{Message: fmt.Sprintf(format, args...)})
}
