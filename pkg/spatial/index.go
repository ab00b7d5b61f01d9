// Package spatial indexes the segments of a morphology in an R-tree.
//
// Every point of a line forms one segment with its predecessor: the previous
// point of the same line, or the attach point on the parent line for a
// line's first point. Root lines start with a zero-length segment. Queries
// return segments ordered by their exact Euclidean distance to the query
// point; the R-tree only narrows the candidates by bounding box.
package spatial

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/matzehuels/morphkit/pkg/morph"
)

const (
	minChildren = 8
	maxChildren = 32

	// pad keeps degenerate boxes (single points, axis-aligned segments)
	// valid; rtreego rejects zero lengths.
	pad = 1e-9
)

// Vec is a point in tree coordinates.
type Vec [3]float64

// Segment is one indexed piece of a line.
type Segment struct {
	// Line is the id of the line the segment belongs to.
	Line int
	// Point is the id of the segment's end point.
	Point int
	From  Vec
	To    Vec
	// Radius is the radius at the end point.
	Radius float64

	bounds rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (s *Segment) Bounds() rtreego.Rect { return s.bounds }

// Hit is a query result.
type Hit struct {
	*Segment
	// Distance from the query point to the segment axis.
	Distance float64
	// T is the position of the closest point along the segment, from 0 at
	// From to 1 at To.
	T float64
}

// Index is an R-tree over the segments of one tree. It is safe for
// concurrent queries.
type Index struct {
	rtree *rtreego.Rtree
	size  int
}

// NewIndex builds an index over every line of t. Lines of the given types
// are left out.
func NewIndex(t *morph.Tree, skipTypes ...int) *Index {
	skip := make(map[int]bool, len(skipTypes))
	for _, tp := range skipTypes {
		skip[tp] = true
	}

	var objs []rtreego.Spatial
	for lineID := 1; lineID <= t.NumLines(); lineID++ {
		l := t.Line(lineID)
		if skip[l.Type] {
			continue
		}
		prev := l.FirstPoint
		if l.Parent > 0 {
			prev = t.ParentPoint(lineID)
		}
		for p := l.FirstPoint; p <= l.LastPoint(); p++ {
			objs = append(objs, newSegment(t, lineID, prev, p))
			prev = p
		}
	}
	return &Index{
		rtree: rtreego.NewTree(3, minChildren, maxChildren, objs...),
		size:  len(objs),
	}
}

func newSegment(t *morph.Tree, lineID, from, to int) *Segment {
	a, b := t.Point(from), t.Point(to)
	s := &Segment{
		Line:   lineID,
		Point:  to,
		From:   Vec{a.X, a.Y, a.Z},
		To:     Vec{b.X, b.Y, b.Z},
		Radius: b.R,
	}
	corner := make(rtreego.Point, 3)
	lengths := make([]float64, 3)
	for i := range 3 {
		lo, hi := math.Min(s.From[i], s.To[i]), math.Max(s.From[i], s.To[i])
		corner[i] = lo
		lengths[i] = math.Max(hi-lo, pad)
	}
	// lengths are positive, so NewRect cannot fail
	s.bounds, _ = rtreego.NewRect(corner, lengths)
	return s
}

// Len returns the number of indexed segments.
func (ix *Index) Len() int { return ix.size }

// Nearest returns the segment closest to p.
func (ix *Index) Nearest(p Vec) (Hit, bool) {
	hits := ix.NearestK(p, 1)
	if len(hits) == 0 {
		return Hit{}, false
	}
	return hits[0], true
}

// NearestK returns up to k segments closest to p, nearest first.
func (ix *Index) NearestK(p Vec, k int) []Hit {
	if k <= 0 || ix.size == 0 {
		return nil
	}
	// Box distance is a lower bound of the segment distance, so the k
	// nearest boxes bound the search radius but need not be the answer.
	var reach float64
	for _, obj := range ix.rtree.NearestNeighbors(k, rtreego.Point(p[:])) {
		if obj == nil {
			continue
		}
		if h := hit(obj.(*Segment), p); h.Distance > reach {
			reach = h.Distance
		}
	}
	hits := ix.Within(p, reach)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Within returns every segment whose distance to p is at most radius,
// nearest first.
func (ix *Index) Within(p Vec, radius float64) []Hit {
	if ix.size == 0 || radius < 0 {
		return nil
	}
	side := 2*radius + 2*pad
	corner := rtreego.Point{p[0] - radius - pad, p[1] - radius - pad, p[2] - radius - pad}
	box, err := rtreego.NewRect(corner, []float64{side, side, side})
	if err != nil {
		return nil
	}

	var hits []Hit
	for _, obj := range ix.rtree.SearchIntersect(box) {
		if h := hit(obj.(*Segment), p); h.Distance <= radius {
			hits = append(hits, h)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Point < hits[j].Point
	})
	return hits
}

// InBox returns the segments whose bounding boxes intersect the box
// spanned by lo and hi, in no particular order.
func (ix *Index) InBox(lo, hi Vec) []*Segment {
	lengths := make([]float64, 3)
	for i := range 3 {
		lengths[i] = math.Max(hi[i]-lo[i], pad)
	}
	box, err := rtreego.NewRect(rtreego.Point(lo[:]), lengths)
	if err != nil {
		return nil
	}
	objs := ix.rtree.SearchIntersect(box)
	out := make([]*Segment, len(objs))
	for i, obj := range objs {
		out[i] = obj.(*Segment)
	}
	return out
}

func hit(s *Segment, p Vec) Hit {
	var d, ap Vec
	var dd, dp float64
	for i := range 3 {
		d[i] = s.To[i] - s.From[i]
		ap[i] = p[i] - s.From[i]
		dd += d[i] * d[i]
		dp += d[i] * ap[i]
	}
	t := 0.0
	if dd > 0 {
		t = math.Max(0, math.Min(1, dp/dd))
	}
	var sum float64
	for i := range 3 {
		c := s.From[i] + t*d[i] - p[i]
		sum += c * c
	}
	return Hit{Segment: s, Distance: math.Sqrt(sum), T: t}
}
