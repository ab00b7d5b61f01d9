package morph

import (
	"math"
)

// FullPrecision disables coordinate rounding in SWCPoints.
const FullPrecision = -1

// MaxDecimals is the finest rounding precision. float64 coordinates carry
// no more digits than this, so finer requests are rejected by callers and
// treated as FullPrecision by Round.
const MaxDecimals = 15

// SWCRow is one sample of the SWC point list.
type SWCRow struct {
	ID     int
	Type   int
	X      float64
	Y      float64
	Z      float64
	R      float64
	Parent int
}

// Values returns the row as the seven SWC columns.
func (r SWCRow) Values() []float64 {
	return []float64{float64(r.ID), float64(r.Type), r.X, r.Y, r.Z, r.R, float64(r.Parent)}
}

// Round rounds v to the given number of decimals. Negative decimals and
// decimals above MaxDecimals leave v unchanged.
func Round(v float64, decimals int) float64 {
	if decimals < 0 || decimals > MaxDecimals {
		return v
	}
	f := math.Pow10(decimals)
	return math.Round(v*f) / f
}

// SWCPoints flattens lines back into SWC samples. Samples are numbered from 1
// in line order; the first sample of a line points to its attachment point
// and the rest to their predecessor. Roots get parent -1.
//
// include restricts the export to the given line ids, in that order; nil
// exports every line. Lines whose parent is not exported become roots.
// Object and point properties are re-keyed to the new sample ids and
// returned in compressed form.
func (t *Tree) SWCPoints(decimals int, include []int) ([]SWCRow, CustomProperties) {
	if include == nil {
		include = make([]int, t.NumLines())
		for i := range include {
			include[i] = i + 1
		}
	}

	newID := make([]int, t.points.Len())
	next := 1
	for _, id := range include {
		l := t.Line(id)
		for p := l.FirstPoint; p <= l.LastPoint(); p++ {
			newID[p] = next
			next++
		}
	}

	rows := make([]SWCRow, 0, next-1)
	objects, points := Props{}, Props{}
	if file, ok := t.ObjectProperties[0]; ok {
		objects.Merge(0, file)
	}
	for _, id := range include {
		l := t.Line(id)
		parent := -1
		if pp := t.ParentPoint(id); pp > 0 && newID[pp] > 0 {
			parent = newID[pp]
		}
		objects.Merge(newID[l.FirstPoint], t.ObjectProperties[l.FirstPoint])
		for p := l.FirstPoint; p <= l.LastPoint(); p++ {
			pt := t.Point(p)
			rows = append(rows, SWCRow{
				ID:     newID[p],
				Type:   l.Type,
				X:      Round(pt.X, decimals),
				Y:      Round(pt.Y, decimals),
				Z:      Round(pt.Z, decimals),
				R:      Round(pt.R, decimals),
				Parent: parent,
			})
			points.Merge(newID[p], t.PointProperties[p])
			parent = newID[p]
		}
	}
	return rows, CompressProperties(objects, points)
}
