package morph

import (
	"math"
	"strconv"
	"strings"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
)

// Box is an axis-aligned bounding box.
type Box struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// Size returns the extent along each axis.
func (b Box) Size() [3]float64 {
	return [3]float64{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

func (b *Box) extend(x, y, z float64) {
	p := [3]float64{x, y, z}
	for i := range p {
		b.Min[i] = math.Min(b.Min[i], p[i])
		b.Max[i] = math.Max(b.Max[i], p[i])
	}
}

func emptyBox() Box {
	inf := math.Inf(1)
	return Box{Min: [3]float64{inf, inf, inf}, Max: [3]float64{-inf, -inf, -inf}}
}

func (t *Tree) pointBox() Box {
	if t.NumPoints() == 0 {
		return Box{}
	}
	b := emptyBox()
	for i := 1; i < t.points.Len(); i++ {
		r := t.points.Row(i)
		b.extend(float64(r[0]), float64(r[1]), float64(r[2]))
	}
	return b
}

// Limits returns the bounding box of a line and all its descendants. Line 0
// covers the whole tree. ok is false when the subtree holds no points.
func (t *Tree) Limits(lineID int) (box Box, ok bool) {
	box = emptyBox()
	stack := []int{lineID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id > 0 {
			l := t.Line(id)
			for p := l.FirstPoint; p <= l.LastPoint(); p++ {
				r := t.points.Row(p)
				box.extend(float64(r[0]), float64(r[1]), float64(r[2]))
				ok = true
			}
		}
		stack = append(stack, t.childrenOf(id)...)
	}
	if !ok {
		return Box{}, false
	}
	return box, true
}

// =============================================================================
// Spatial transforms
// =============================================================================

// Affine is a 3x4 matrix [A|b] mapping p to A*p + b.
type Affine [3][4]float64

// Identity is the identity transform.
var Identity = Affine{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}

// Det returns the determinant of the linear part.
func (a Affine) Det() float64 {
	return a[0][0]*(a[1][1]*a[2][2]-a[1][2]*a[2][1]) -
		a[0][1]*(a[1][0]*a[2][2]-a[1][2]*a[2][0]) +
		a[0][2]*(a[1][0]*a[2][1]-a[1][1]*a[2][0])
}

// Apply maps a point.
func (a Affine) Apply(x, y, z float64) (float64, float64, float64) {
	return a[0][0]*x + a[0][1]*y + a[0][2]*z + a[0][3],
		a[1][0]*x + a[1][1]*y + a[1][2]*z + a[1][3],
		a[2][0]*x + a[2][1]*y + a[2][2]*z + a[2][3]
}

// Transform applies a to every point. Radii are scaled by the cube root of
// the absolute determinant. The bounding box is recomputed.
func (t *Tree) Transform(a Affine) {
	scale := math.Cbrt(math.Abs(a.Det()))
	for i := 1; i < t.points.Len(); i++ {
		r := t.points.Row(i)
		x, y, z := a.Apply(float64(r[0]), float64(r[1]), float64(r[2]))
		r[0], r[1], r[2] = float32(x), float32(y), float32(z)
		r[3] = float32(float64(r[3]) * scale)
	}
	t.BoundingBox = t.pointBox()
}

// ApplyTransformation looks up a transformation with the given method that
// maps the tree's current SRS to toSRS in
// metaData.spatialRegistration.transformation, applies it and switches the
// tree's SRS. It returns an error wrapping [ErrNoTransformation] when none
// matches.
func (t *Tree) ApplyTransformation(method, toSRS string) error {
	for _, tr := range t.Transformations() {
		if tr.Method != method || tr.FromSRS != t.SRS || tr.ToSRS != toSRS {
			continue
		}
		t.Transform(tr.Matrix)
		t.SRS = toSRS
		return nil
	}
	return perrors.Wrap(perrors.ErrCodeNotFound, ErrNoTransformation, "%s from %q to %q", method, t.SRS, toSRS)
}

// Transformation is one spatial registration entry of the metadata.
type Transformation struct {
	Method  string
	FromSRS string
	ToSRS   string
	Matrix  Affine
}

// Transformations lists the well-formed entries under
// metaData.spatialRegistration.transformation.
func (t *Tree) Transformations() []Transformation {
	reg, ok := t.MetaData["spatialRegistration"].(map[string]any)
	if !ok {
		return nil
	}
	var entries []any
	switch v := reg["transformation"].(type) {
	case map[string]any:
		entries = []any{v}
	case []any:
		entries = v
	}
	var out []Transformation
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		mat, ok := parseAffine(m["Ab"])
		if !ok {
			continue
		}
		str := func(k string) string { s, _ := m[k].(string); return s }
		out = append(out, Transformation{
			Method:  str("transform"),
			FromSRS: str("fromSrs"),
			ToSRS:   str("toSrs"),
			Matrix:  mat,
		})
	}
	return out
}

// parseAffine accepts a 3x4 nested array, a flat array of 12 numbers in row
// order, or the comma-separated text of the latter.
func parseAffine(v any) (Affine, bool) {
	var flat []float64
	switch x := v.(type) {
	case string:
		for _, f := range strings.FieldsFunc(x, func(r rune) bool { return r == ',' || r == ' ' || r == '[' || r == ']' }) {
			n, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return Affine{}, false
			}
			flat = append(flat, n)
		}
	case []any:
		for _, item := range x {
			switch n := item.(type) {
			case float64:
				flat = append(flat, n)
			case int:
				flat = append(flat, float64(n))
			case []any:
				for _, c := range n {
					f, ok := c.(float64)
					if !ok {
						return Affine{}, false
					}
					flat = append(flat, f)
				}
			default:
				return Affine{}, false
			}
		}
	case [][]float64:
		for _, row := range x {
			flat = append(flat, row...)
		}
	}
	if len(flat) != 12 {
		return Affine{}, false
	}
	var a Affine
	for i := range 3 {
		copy(a[i][:], flat[i*4:i*4+4])
	}
	return a, true
}
