// Package rowstore provides dense tabular storage for numeric rows.
//
// Morphology data lives in two arenas: a float32 point table (x, y, z, r) and
// a uint32 line table. Both are addressed by integer row ids that start at 1;
// row 0 always exists and is reserved (the dummy point and the root line).
//
// Two variants are provided:
//   - [Fixed] is allocated once with a known row count and stored contiguously.
//   - [Growable] allocates blocks of [BlockRows] rows on demand. Blocks are
//     never reallocated, so a row view returned by [Growable.Row] stays valid
//     while more rows are pushed.
//
// Row views are mutable slices into the store. Decoders rely on this to
// revise a row after it was pushed (for example extending a line's length).
package rowstore

import "fmt"

// Number is the set of element types a store can hold.
type Number interface {
	~float32 | ~float64 | ~int32 | ~uint16 | ~uint32
}

// BlockRows is the number of rows allocated at once by a Growable store.
const BlockRows = 256

// =============================================================================
// Fixed
// =============================================================================

// Fixed is a store with a known number of rows laid out contiguously.
type Fixed[T Number] struct {
	cols int
	data []T
}

// NewFixed allocates a zeroed store with rows rows (row 0 included).
func NewFixed[T Number](rows, cols int) *Fixed[T] {
	if rows < 1 {
		rows = 1
	}
	return &Fixed[T]{cols: cols, data: make([]T, rows*cols)}
}

// FromRows builds a store from explicit rows. The first row is row 0.
// Every row must have exactly cols values.
func FromRows[T Number](rows [][]T, cols int) (*Fixed[T], error) {
	f := NewFixed[T](len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("row %d: got %d values, want %d", i, len(r), cols)
		}
		copy(f.Row(i), r)
	}
	return f, nil
}

// Cols returns the number of values per row.
func (f *Fixed[T]) Cols() int { return f.cols }

// Len returns the number of rows, including the reserved row 0.
func (f *Fixed[T]) Len() int {
	if f.cols == 0 {
		return 0
	}
	return len(f.data) / f.cols
}

// Row returns a mutable view of row i. It panics if i is out of range.
func (f *Fixed[T]) Row(i int) []T {
	lo := i * f.cols
	return f.data[lo : lo+f.cols : lo+f.cols]
}

// SetRow overwrites row i with values. Missing trailing values are zeroed.
func (f *Fixed[T]) SetRow(i int, values ...T) {
	r := f.Row(i)
	n := copy(r, values)
	clear(r[n:])
}

// Rows returns a copy of all rows, row 0 first.
func (f *Fixed[T]) Rows() [][]T {
	out := make([][]T, f.Len())
	for i := range out {
		out[i] = append([]T(nil), f.Row(i)...)
	}
	return out
}

// Clone returns a deep copy of the store.
func (f *Fixed[T]) Clone() *Fixed[T] {
	return &Fixed[T]{cols: f.cols, data: append([]T(nil), f.data...)}
}

// Permute returns a new store where row perm[i] holds the old row i.
// perm must map row 0 to 0 and be a permutation of [0, Len()).
func (f *Fixed[T]) Permute(perm []int) (*Fixed[T], error) {
	n := f.Len()
	if len(perm) != n {
		return nil, fmt.Errorf("permutation has %d entries, store has %d rows", len(perm), n)
	}
	out := NewFixed[T](n, f.cols)
	seen := make([]bool, n)
	for old, nw := range perm {
		if nw < 0 || nw >= n || seen[nw] {
			return nil, fmt.Errorf("invalid permutation target %d for row %d", nw, old)
		}
		seen[nw] = true
		copy(out.Row(nw), f.Row(old))
	}
	if perm[0] != 0 {
		return nil, fmt.Errorf("row 0 must stay in place")
	}
	return out, nil
}

// =============================================================================
// Growable
// =============================================================================

// Growable is an append-only store that allocates [BlockRows] rows at a time.
type Growable[T Number] struct {
	cols   int
	blocks [][]T
	n      int
}

// NewGrowable returns a store holding only the reserved row 0.
func NewGrowable[T Number](cols int) *Growable[T] {
	g := &Growable[T]{cols: cols}
	g.PushRow()
	return g
}

// Cols returns the number of values per row.
func (g *Growable[T]) Cols() int { return g.cols }

// Len returns the number of rows, including the reserved row 0.
func (g *Growable[T]) Len() int { return g.n }

// Row returns a mutable view of row i. It panics if i is out of range.
func (g *Growable[T]) Row(i int) []T {
	if i < 0 || i >= g.n {
		panic(fmt.Sprintf("rowstore: row %d out of range [0, %d)", i, g.n))
	}
	b := g.blocks[i/BlockRows]
	lo := (i % BlockRows) * g.cols
	return b[lo : lo+g.cols : lo+g.cols]
}

// PushRow appends a row and returns its id. Missing trailing values are
// zero; extra values are ignored.
func (g *Growable[T]) PushRow(values ...T) int {
	if g.n%BlockRows == 0 && g.n/BlockRows == len(g.blocks) {
		g.blocks = append(g.blocks, make([]T, BlockRows*g.cols))
	}
	id := g.n
	g.n++
	r := g.Row(id)
	n := copy(r, values)
	clear(r[n:])
	return id
}

// Truncate drops every row with id >= n. Row 0 is never dropped.
// Blocks stay allocated and are reused by later pushes.
func (g *Growable[T]) Truncate(n int) {
	if n < 1 {
		n = 1
	}
	if n >= g.n {
		return
	}
	g.n = n
}

// ToFixed copies the rows into a compact [Fixed] store.
func (g *Growable[T]) ToFixed() *Fixed[T] {
	f := NewFixed[T](g.n, g.cols)
	for i := 0; i < g.n; i++ {
		copy(f.Row(i), g.Row(i))
	}
	return f
}
