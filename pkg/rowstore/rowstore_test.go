package rowstore

import (
	"reflect"
	"testing"
)

func TestGrowableKeepsRowsAcrossBlocks(t *testing.T) {
	g := NewGrowable[uint32](5)
	if g.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", g.Len())
	}

	first := g.PushRow(3, 1, 1, 0, 0)
	view := g.Row(first)

	for i := 0; i < 3*BlockRows; i++ {
		g.PushRow(uint32(i), 2, 1, 1, 0)
	}

	// revising an early row through its view must be visible afterwards
	view[2] = 42
	if got := g.Row(first)[2]; got != 42 {
		t.Errorf("Row(%d)[2] = %d, want 42", first, got)
	}
	if g.Len() != 3*BlockRows+2 {
		t.Errorf("Len() = %d, want %d", g.Len(), 3*BlockRows+2)
	}
	if got := g.Row(BlockRows + 1)[0]; got != BlockRows-1 {
		t.Errorf("Row(%d)[0] = %d, want %d", BlockRows+1, got, BlockRows-1)
	}
}

func TestGrowablePushRowPadsAndTruncates(t *testing.T) {
	g := NewGrowable[float32](4)
	id := g.PushRow(1, 2)
	if want := []float32{1, 2, 0, 0}; !reflect.DeepEqual(g.Row(id), want) {
		t.Errorf("Row = %v, want %v", g.Row(id), want)
	}
	id = g.PushRow(1, 2, 3, 4, 5)
	if want := []float32{1, 2, 3, 4}; !reflect.DeepEqual(g.Row(id), want) {
		t.Errorf("Row = %v, want %v", g.Row(id), want)
	}
}

func TestGrowableTruncate(t *testing.T) {
	g := NewGrowable[float32](4)
	g.PushRow(1, 1, 1, 1)
	g.PushRow(2, 2, 2, 2)
	g.Truncate(2)
	if g.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", g.Len())
	}
	id := g.PushRow(7)
	if want := []float32{7, 0, 0, 0}; !reflect.DeepEqual(g.Row(id), want) {
		t.Errorf("reused row = %v, want %v", g.Row(id), want)
	}
	g.Truncate(0)
	if g.Len() != 1 {
		t.Errorf("Len() after Truncate(0) = %d, want 1", g.Len())
	}
}

func TestGrowableRowOutOfRangePanics(t *testing.T) {
	g := NewGrowable[uint32](5)
	defer func() {
		if recover() == nil {
			t.Error("Row(5) did not panic")
		}
	}()
	g.Row(5)
}

func TestToFixed(t *testing.T) {
	g := NewGrowable[float32](4)
	g.PushRow(1, 2, 3, 4)
	g.PushRow(5, 6, 7, 8)

	f := g.ToFixed()
	if f.Len() != 3 || f.Cols() != 4 {
		t.Fatalf("Len, Cols = %d, %d, want 3, 4", f.Len(), f.Cols())
	}
	want := [][]float32{{0, 0, 0, 0}, {1, 2, 3, 4}, {5, 6, 7, 8}}
	if got := f.Rows(); !reflect.DeepEqual(got, want) {
		t.Errorf("Rows() = %v, want %v", got, want)
	}

	// the fixed store is a copy
	g.Row(1)[0] = 99
	if f.Row(1)[0] != 1 {
		t.Error("ToFixed shares memory with the growable store")
	}
}

func TestFromRows(t *testing.T) {
	f, err := FromRows([][]uint32{{0, 0, 0, 0, 0}, {3, 1, 2, 0, 0}}, 5)
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	if f.Row(1)[2] != 2 {
		t.Errorf("Row(1)[2] = %d, want 2", f.Row(1)[2])
	}

	if _, err := FromRows([][]uint32{{0, 0}}, 5); err == nil {
		t.Error("FromRows with short row: expected error")
	}
}

func TestPermute(t *testing.T) {
	f, _ := FromRows([][]float32{{0}, {1}, {2}, {3}}, 1)

	tests := []struct {
		name    string
		perm    []int
		want    [][]float32
		wantErr bool
	}{
		{"identity", []int{0, 1, 2, 3}, [][]float32{{0}, {1}, {2}, {3}}, false},
		{"reverse", []int{0, 3, 2, 1}, [][]float32{{0}, {3}, {2}, {1}}, false},
		{"duplicate", []int{0, 1, 1, 2}, nil, true},
		{"short", []int{0, 1}, nil, true},
		{"moves row 0", []int{1, 0, 2, 3}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Permute(tt.perm)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Permute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(got.Rows(), tt.want) {
				t.Errorf("Permute() = %v, want %v", got.Rows(), tt.want)
			}
		})
	}
}

func TestSetRowAndClone(t *testing.T) {
	f := NewFixed[uint32](2, 3)
	f.SetRow(1, 4, 5, 6)
	c := f.Clone()
	f.SetRow(1, 9)
	if want := []uint32{9, 0, 0}; !reflect.DeepEqual(f.Row(1), want) {
		t.Errorf("Row(1) = %v, want %v", f.Row(1), want)
	}
	if want := []uint32{4, 5, 6}; !reflect.DeepEqual(c.Row(1), want) {
		t.Errorf("clone Row(1) = %v, want %v", c.Row(1), want)
	}
}
