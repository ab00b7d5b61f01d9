package decompose

import (
	"reflect"
	"strings"
	"testing"

	"github.com/matzehuels/morphkit/pkg/morph"
)

// rows converts "id type parent" triples into samples; x is the sample id.
func rows(triples ...[3]int) []Sample {
	out := make([]Sample, len(triples))
	for i, tr := range triples {
		out[i] = Sample{ID: tr[0], Type: tr[1], X: float64(tr[0]), R: 1, Parent: tr[2], Line: i + 1}
	}
	return out
}

func lineRows(res *Result) [][]uint32 {
	return res.Lines.Rows()[1:]
}

func TestDecompose(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		want    [][]uint32
	}{
		{
			name:    "single chain",
			samples: rows([3]int{1, 3, -1}, [3]int{2, 3, 1}, [3]int{3, 3, 2}),
			want:    [][]uint32{{3, 1, 3, 0, 0}},
		},
		{
			name:    "fork split",
			samples: rows([3]int{1, 3, -1}, [3]int{2, 3, 1}, [3]int{3, 3, 1}),
			want:    [][]uint32{{3, 1, 1, 0, 0}, {3, 2, 1, 1, 0}, {3, 3, 1, 1, 0}},
		},
		{
			name: "type switch starts a line",
			samples: rows(
				[3]int{1, 1, -1},
				[3]int{2, 3, 1}, [3]int{3, 3, 2},
				[3]int{4, 2, 1},
			),
			want: [][]uint32{{1, 1, 1, 0, 0}, {3, 2, 2, 1, 0}, {2, 4, 1, 1, 0}},
		},
		{
			name: "third child of a fork",
			samples: rows(
				[3]int{1, 3, -1},
				[3]int{2, 3, 1}, [3]int{3, 3, 1}, [3]int{4, 3, 1},
			),
			want: [][]uint32{{3, 1, 1, 0, 0}, {3, 2, 1, 1, 0}, {3, 3, 1, 1, 0}, {3, 4, 1, 1, 0}},
		},
		{
			name:    "two roots",
			samples: rows([3]int{1, 1, -1}, [3]int{2, 1, -1}),
			want:    [][]uint32{{1, 1, 1, 0, 0}, {1, 2, 1, 0, 0}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Decompose(tt.samples, Options{})
			if got := lineRows(res); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("lines = %v, want %v", got, tt.want)
			}
			if len(res.Warnings) != 0 {
				t.Errorf("Warnings = %v", res.Warnings)
			}
		})
	}
}

func TestNegOffset(t *testing.T) {
	// a 5-point dendrite with an axon attached at its 3rd point
	samples := rows(
		[3]int{1, 1, -1},
		[3]int{2, 3, 1}, [3]int{3, 3, 2}, [3]int{4, 3, 3}, [3]int{5, 3, 4}, [3]int{6, 3, 5},
		[3]int{7, 2, 4},
	)
	res := Decompose(samples, Options{})
	want := [][]uint32{
		{1, 1, 1, 0, 0},
		{3, 2, 5, 1, 0},
		{2, 7, 1, 2, 2},
	}
	if got := lineRows(res); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestOutOfOrderSamplesAreContiguous(t *testing.T) {
	// the continuation of line 1 (sample 4) appears after a sibling line
	samples := rows(
		[3]int{1, 3, -1},
		[3]int{2, 2, 1},
		[3]int{3, 2, 2},
		[3]int{4, 3, 1},
	)
	res := Decompose(samples, Options{})
	want := [][]uint32{{3, 1, 2, 0, 0}, {2, 3, 2, 1, 1}}
	if got := lineRows(res); !reflect.DeepEqual(got, want) {
		t.Fatalf("lines = %v, want %v", got, want)
	}
	if !res.PointsPermuted {
		t.Error("PointsPermuted = false, want true")
	}
	// sample 4 now directly follows sample 1
	if x := res.Points.Row(2)[0]; x != 4 {
		t.Errorf("point 2 x = %v, want 4", x)
	}
}

func TestRenumbering(t *testing.T) {
	samples := rows([3]int{10, 1, -1}, [3]int{20, 3, 10}, [3]int{30, 3, 20})
	res := Decompose(samples, Options{})
	if !res.Renumbered {
		t.Error("Renumbered = false, want true")
	}
	want := [][]uint32{{1, 1, 1, 0, 0}, {3, 2, 2, 1, 0}}
	if got := lineRows(res); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestRecoverableInput(t *testing.T) {
	tests := []struct {
		name     string
		samples  []Sample
		numLines int
		dropped  int
		warning  string
	}{
		{
			name:     "self parent becomes root",
			samples:  rows([3]int{1, 3, -1}, [3]int{2, 3, 2}),
			numLines: 2,
			warning:  "its own parent",
		},
		{
			name:     "unknown parent becomes root",
			samples:  rows([3]int{1, 3, -1}, [3]int{2, 3, 99}),
			numLines: 2,
			warning:  "unknown parent",
		},
		{
			name:     "negative id stops reading",
			samples:  rows([3]int{1, 3, -1}, [3]int{-2, 3, 1}, [3]int{3, 3, 1}),
			numLines: 1,
			warning:  "must be >= 0",
		},
		{
			name:     "duplicate id keeps first",
			samples:  rows([3]int{1, 3, -1}, [3]int{1, 2, -1}),
			numLines: 1,
			warning:  "duplicate",
		},
		{
			name: "cycle is dropped with descendants",
			samples: rows(
				[3]int{1, 1, -1},
				[3]int{2, 3, 3}, [3]int{3, 3, 2},
				[3]int{4, 3, 3},
			),
			numLines: 1,
			dropped:  3,
			warning:  "parent cycle",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Decompose(tt.samples, Options{})
			if got := res.Lines.Len() - 1; got != tt.numLines {
				t.Errorf("lines = %d, want %d", got, tt.numLines)
			}
			if res.Dropped != tt.dropped {
				t.Errorf("Dropped = %d, want %d", res.Dropped, tt.dropped)
			}
			if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0].Message, tt.warning) {
				t.Errorf("Warnings = %v, want one containing %q", res.Warnings, tt.warning)
			}
			if _, err := morph.New("t", morph.Input{Points: res.Points, Lines: res.Lines}); err != nil {
				t.Errorf("result is not a valid tree: %v", err)
			}
		})
	}
}

func TestDecomposeRows(t *testing.T) {
	res := DecomposeRows([][]float64{
		{1, 1, 0, 0, 0, 5, -1},
		{2, 3, 1, 0, 0},
		{3.0, 3.0, 2, 0, 0, 1, 1.0},
	}, Options{})
	if len(res.Warnings) != 1 || res.Warnings[0].Offset != 2 {
		t.Fatalf("Warnings = %v, want one at row 2", res.Warnings)
	}
	want := [][]uint32{{1, 1, 1, 0, 0}, {3, 2, 1, 1, 0}}
	if got := lineRows(res); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
	if !res.Renumbered {
		t.Error("Renumbered = false, want true for ids 1, 3")
	}
}

func TestCanonicalOrder(t *testing.T) {
	// soma with two dendrites; the first dendrite's branch is parsed last
	samples := rows(
		[3]int{1, 1, -1},
		[3]int{2, 3, 1},
		[3]int{3, 3, 1},
		[3]int{4, 2, 2},
	)
	plain := Decompose(samples, Options{})
	canon := Decompose(samples, Options{Canonicalize: true})

	if plain.LinesPermuted {
		t.Error("LinesPermuted set without Canonicalize")
	}
	if !canon.LinesPermuted {
		t.Error("LinesPermuted = false, want true")
	}
	want := [][]uint32{
		{1, 1, 1, 0, 0},
		{3, 2, 1, 1, 0},
		{2, 3, 1, 2, 0},
		{3, 4, 1, 1, 0},
	}
	if got := lineRows(canon); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	samples := rows(
		[3]int{1, 1, -1},
		[3]int{2, 3, 1}, [3]int{3, 3, 1},
		[3]int{4, 3, 2}, [3]int{5, 3, 2},
		[3]int{6, 2, 3},
		[3]int{7, 3, 4},
	)
	res := Decompose(samples, Options{})

	p1, l1, perm1, err := Canonicalize(res.Points, res.Lines)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if !perm1.Moved() {
		t.Fatal("first canonicalization moved nothing")
	}
	p2, l2, perm2, err := Canonicalize(p1, l1)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if perm2.Moved() {
		t.Errorf("second canonicalization moved rows: %+v", perm2)
	}
	if !reflect.DeepEqual(l1.Rows(), l2.Rows()) || !reflect.DeepEqual(p1.Rows(), p2.Rows()) {
		t.Error("second canonicalization changed the stores")
	}

	direct := Decompose(samples, Options{Canonicalize: true})
	if !reflect.DeepEqual(direct.Lines.Rows(), l1.Rows()) {
		t.Errorf("Decompose(Canonicalize) = %v, Canonicalize = %v", direct.Lines.Rows(), l1.Rows())
	}
}

func TestCanonicalizeTreeRekeysProperties(t *testing.T) {
	samples := rows(
		[3]int{1, 1, -1},
		[3]int{2, 3, 1},
		[3]int{3, 3, 1},
		[3]int{4, 2, 2},
	)
	res := Decompose(samples, Options{})
	props := morph.Props{}
	props.Set(4, "name", "axon branch")
	tree, err := morph.New("t", morph.Input{
		Points:     res.Points,
		Lines:      res.Lines,
		Properties: morph.CompressProperties(props, nil),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, moved, err := CanonicalizeTree(tree)
	if err != nil {
		t.Fatalf("CanonicalizeTree: %v", err)
	}
	if !moved {
		t.Fatal("moved = false, want true")
	}
	// the axon line is now line 3 and starts at point 3
	if l := out.Line(3); l.Type != 2 || l.FirstPoint != 3 {
		t.Fatalf("line 3 = %+v, want axon at point 3", l)
	}
	if got := out.ObjectProperties[3]["name"]; got != "axon branch" {
		t.Errorf("ObjectProperties[3][name] = %v, want axon branch", got)
	}

	again, moved, err := CanonicalizeTree(out)
	if err != nil || moved || again != out {
		t.Errorf("second CanonicalizeTree = %p, %v, %v; want no-op", again, moved, err)
	}
}
