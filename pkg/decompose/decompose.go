package decompose

import (
	"math"

	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/rowstore"
)

// Sample is one SWC record before decomposition.
type Sample struct {
	ID     int
	Type   int
	X      float64
	Y      float64
	Z      float64
	R      float64
	Parent int
	// Line is the source line used in warnings; 0 when unknown.
	Line int
}

// Options controls decomposition.
type Options struct {
	// Canonicalize orders lines depth-first from the root.
	Canonicalize bool
}

// Result holds the decomposed stores.
type Result struct {
	Points   *rowstore.Fixed[float32]
	Lines    *rowstore.Fixed[uint32]
	Warnings []morph.Warning

	// Renumbered is set when sample ids were not the dense sequence 1..N.
	Renumbered bool
	// LinesPermuted is set when canonical ordering moved a line.
	LinesPermuted bool
	// PointsPermuted is set when a point's index differs from its position
	// among the valid samples.
	PointsPermuted bool
	// Dropped counts samples removed because their ancestry is cyclic.
	Dropped int
	// SampleIDs holds the sample number of every point; index 0 is unused.
	SampleIDs []int
}

func (r *Result) warnf(line int, format string, args ...any) {
	r.Warnings = append(r.Warnings, morph.Warnf(line, format, args...))
}

// DecomposeRows decodes numeric rows of the form
// id, type, x, y, z, r, parent and decomposes them. See [SamplesFromRows].
func DecomposeRows(rows [][]float64, opts Options) *Result {
	samples, skipped := SamplesFromRows(rows)
	res := Decompose(samples, opts)
	res.Warnings = append(skipped, res.Warnings...)
	return res
}

// SamplesFromRows converts numeric rows into samples. Rows with fewer than 7
// values are skipped with a warning; id, type and parent are rounded. The
// 1-based row index is used as the sample's Line.
func SamplesFromRows(rows [][]float64) ([]Sample, []morph.Warning) {
	samples := make([]Sample, 0, len(rows))
	var skipped []morph.Warning
	for i, v := range rows {
		if len(v) < 7 {
			skipped = append(skipped, morph.Warnf(i+1, "skipping row: need 7 values, got %d", len(v)))
			continue
		}
		samples = append(samples, Sample{
			ID:     int(math.Round(v[0])),
			Type:   int(math.Round(v[1])),
			X:      v[2],
			Y:      v[3],
			Z:      v[4],
			R:      v[5],
			Parent: int(math.Round(v[6])),
			Line:   i + 1,
		})
	}
	return samples, skipped
}

// line is a line under construction; members are dense point indices.
type line struct {
	typ         int
	members     []int
	parentPoint int
}

// Decompose splits samples into lines. See the package documentation for
// the algorithm and the handling of malformed input.
func Decompose(samples []Sample, opts Options) *Result {
	res := &Result{}

	// dense point index p (1-based) -> sample
	pts := make([]Sample, 1, len(samples)+1)
	index := make(map[int]int, len(samples))
	for _, s := range samples {
		if s.ID < 0 {
			res.warnf(s.Line, "sample number must be >= 0, got %d; ignoring the remaining samples", s.ID)
			break
		}
		if _, dup := index[s.ID]; dup {
			res.warnf(s.Line, "duplicate sample number %d; keeping the first", s.ID)
			continue
		}
		if s.Type < 0 {
			res.warnf(s.Line, "sample %d has negative type %d; using 0", s.ID, s.Type)
			s.Type = 0
		}
		index[s.ID] = len(pts)
		if s.ID != len(pts) {
			res.Renumbered = true
		}
		pts = append(pts, s)
	}
	n := len(pts)

	parent := make([]int, n)
	for p := 1; p < n; p++ {
		s := pts[p]
		switch {
		case s.Parent < 0:
		case s.Parent == s.ID:
			res.warnf(s.Line, "sample %d is its own parent; treating it as a root", s.ID)
		default:
			q, ok := index[s.Parent]
			if !ok {
				res.warnf(s.Line, "sample %d has unknown parent %d; treating it as a root", s.ID, s.Parent)
				break
			}
			parent[p] = q
		}
	}

	live := reachable(parent, pts, res)

	// fork classification
	typ := make([]int, n)
	for p := 1; p < n; p++ {
		typ[p] = pts[p].Type
	}
	singleChild := make([]int, n)
	isFork := make([]bool, n)
	isFork[0] = true
	for p := 1; p < n; p++ {
		if !live[p] {
			continue
		}
		q := parent[p]
		if isFork[q] || typ[p] != typ[q] {
			continue
		}
		if singleChild[q] != 0 {
			singleChild[q] = 0
			isFork[q] = true
		} else {
			singleChild[q] = p
		}
	}

	// line extraction, in parse order of the first point
	lines := []line{{}}
	lineOf := make([]int, n)
	posInLine := make([]int, n)
	for p := 1; p < n; p++ {
		if !live[p] {
			continue
		}
		q := parent[p]
		if !isFork[q] && typ[p] == typ[q] {
			continue
		}
		id := len(lines)
		l := line{typ: typ[p], parentPoint: q}
		for c := p; c != 0; c = singleChild[c] {
			lineOf[c] = id
			posInLine[c] = len(l.members)
			l.members = append(l.members, c)
		}
		lines = append(lines, l)
	}

	parentLine := make([]int, len(lines))
	for id := 1; id < len(lines); id++ {
		parentLine[id] = lineOf[lines[id].parentPoint]
	}
	order := identity(len(lines))
	if opts.Canonicalize {
		order = depthFirst(parentLine)
		for i, id := range order {
			if i != id {
				res.LinesPermuted = true
				break
			}
		}
	}

	// lay out points contiguously in line order
	newLine := make([]int, len(lines))
	for i, id := range order {
		newLine[id] = i
	}
	newPoint := make([]int, n)
	points := rowstore.NewFixed[float32](n-res.Dropped, morph.PointCols)
	res.SampleIDs = make([]int, points.Len())
	next := 1
	for _, id := range order[1:] {
		for _, p := range lines[id].members {
			newPoint[p] = next
			if p != next {
				res.PointsPermuted = true
			}
			s := pts[p]
			res.SampleIDs[next] = s.ID
			points.SetRow(next, float32(s.X), float32(s.Y), float32(s.Z), float32(s.R))
			next++
		}
	}

	out := rowstore.NewFixed[uint32](len(lines), morph.LineCols)
	for _, id := range order[1:] {
		l := lines[id]
		var neg int
		if pl := parentLine[id]; pl != 0 {
			neg = len(lines[pl].members) - 1 - posInLine[l.parentPoint]
		}
		out.SetRow(newLine[id],
			uint32(l.typ),
			uint32(newPoint[l.members[0]]),
			uint32(len(l.members)),
			uint32(newLine[parentLine[id]]),
			uint32(neg),
		)
	}
	res.Points, res.Lines = points, out
	return res
}

// reachable marks the points whose ancestry reaches the root. Points on a
// parent cycle, and every descendant of one, are dropped with a warning per
// cycle.
func reachable(parent []int, pts []Sample, res *Result) []bool {
	const (
		unknown = iota
		visiting
		rooted
		cyclic
	)
	state := make([]uint8, len(parent))
	state[0] = rooted
	var path []int
	for p := 1; p < len(parent); p++ {
		path = path[:0]
		cur := p
		for state[cur] == unknown {
			state[cur] = visiting
			path = append(path, cur)
			cur = parent[cur]
		}
		final := state[cur]
		if final == visiting {
			res.warnf(pts[cur].Line, "sample %d is part of a parent cycle; dropping it and its descendants", pts[cur].ID)
			final = cyclic
		}
		for _, q := range path {
			state[q] = final
		}
	}

	live := make([]bool, len(parent))
	for p := 1; p < len(parent); p++ {
		live[p] = state[p] == rooted
		if !live[p] {
			res.Dropped++
		}
	}
	return live
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// depthFirst returns line ids in pre-order from the root, children in
// ascending id order. The result starts with 0.
func depthFirst(parentLine []int) []int {
	children := make([][]int, len(parentLine))
	for id := 1; id < len(parentLine); id++ {
		p := parentLine[id]
		children[p] = append(children[p], id)
	}
	order := make([]int, 0, len(parentLine))
	stack := []int{0}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, id)
		ch := children[id]
		for i := len(ch) - 1; i >= 0; i-- {
			stack = append(stack, ch[i])
		}
	}
	return order
}
