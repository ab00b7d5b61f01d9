package neurolucida

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/matzehuels/morphkit/pkg/bytecursor"
	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/format"
)

// =============================================================================
// Block builders
// =============================================================================

func u16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
func u32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }
func f32(v float32) []byte {
	return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))
}

func cat(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

// block wraps body in a tag and a size that covers the whole block.
func block(tag bytecursor.Tag, body ...[]byte) []byte {
	b := cat(body...)
	return cat(u16(uint16(tag)), u32(uint32(len(b)+6)), b)
}

// resize rewrites the declared size of a block by delta bytes.
func resize(b []byte, delta int) []byte {
	out := bytes.Clone(b)
	size := binary.LittleEndian.Uint32(out[2:])
	binary.LittleEndian.PutUint32(out[2:], uint32(int(size)+delta))
	return out
}

func str(s string) []byte { return block(bytecursor.TagString, []byte(s)) }

func sample(x, y, z, d float32) []byte {
	return block(bytecursor.TagSample, f32(x), f32(y), f32(z), f32(d))
}

func samples(pts ...[4]float32) []byte {
	parts := [][]byte{u16(uint16(len(pts)))}
	for _, p := range pts {
		parts = append(parts, sample(p[0], p[1], p[2], p[3]))
	}
	return block(bytecursor.TagSampleList, parts...)
}

func rgb(r, g, b byte) []byte { return []byte{r, g, b} }

func datFile(blocks ...[]byte) []byte {
	header := make([]byte, datHeaderSize)
	copy(header[1:], format.DATMagic)
	return cat(header, cat(blocks...))
}

func tree(part uint16, first [4]float32, children ...[]byte) []byte {
	return block(bytecursor.TagTree, u16(part), rgb(0, 255, 0), []byte{0, 0, 0},
		sample(first[0], first[1], first[2], first[3]), cat(children...))
}

func branch(leaf uint16, pts [][4]float32, children ...[]byte) []byte {
	body := [][]byte{u16(leaf), u16(uint16(len(children)))}
	if len(pts) > 0 {
		body = append(body, samples(pts...))
	}
	return block(bytecursor.TagBranch, append(body, children...)...)
}

func contour(name string, pts ...[4]float32) []byte {
	return block(bytecursor.TagContour, str(name), u16(1), rgb(255, 0, 0), []byte{0}, u16(0), samples(pts...))
}

// markerBlock writes a marker block with the size Neurolucida declares, which
// leaves out the symbol name.
func markerBlock(symbol string, pts ...[4]float32) []byte {
	name := str(symbol)
	return resize(block(bytecursor.TagMarker, name, rgb(0, 0, 255), []byte{0}, samples(pts...)), -len(name))
}

func spine(parentOffset uint16, pts ...[4]float32) []byte {
	body := [][]byte{rgb(0, 0, 0), []byte{0}, u16(1), u16(parentOffset)}
	for _, p := range pts {
		body = append(body, sample(p[0], p[1], p[2], p[3]))
	}
	return block(bytecursor.TagSpine, body...)
}

func decodeDAT(t *testing.T, data []byte) *format.Result {
	t.Helper()
	res, err := NewDATDecoder().Decode(data, "cell.dat")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return res
}

// =============================================================================
// Tests
// =============================================================================

func TestDecodeDATTree(t *testing.T) {
	data := datFile(tree(1, [4]float32{0, 0, 0, 2},
		branch(0, [][4]float32{{1, 0, 0, 2}, {2, 0, 0, 2}},
			branch(7, [][4]float32{{3, 1, 0, 1}}),
			branch(7, [][4]float32{{3, -1, 0, 1}}),
		),
	))
	res := decodeDAT(t, data)
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", res.Warnings)
	}
	want := []lineShape{{3, 3, 0, 0}, {3, 1, 1, 0}, {3, 1, 1, 0}}
	if got := shapes(res.Tree); !equalLines(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
	if p := res.Tree.Point(1); p.R != 1 {
		t.Errorf("root radius = %v, want 1", p.R)
	}
	if got := res.Tree.ObjectProperties[4]["leaf"]; got != "normal" {
		t.Errorf("leaf = %v, want normal", got)
	}
}

func TestDecodeDATSecondRootBranch(t *testing.T) {
	// Both branches leave the tree's initial sample.
	data := datFile(tree(1, [4]float32{0, 0, 0, 2},
		branch(0, [][4]float32{{1, 0, 0, 1}, {2, 0, 0, 1}}),
		branch(0, [][4]float32{{-1, 0, 0, 1}}),
	))
	res := decodeDAT(t, data)
	want := []lineShape{{3, 3, 0, 0}, {3, 1, 1, 2}}
	if got := shapes(res.Tree); !equalLines(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
	if pp := res.Tree.ParentPoint(2); pp != 1 {
		t.Errorf("ParentPoint(2) = %d, want 1", pp)
	}
}

func TestDATRollbackForgetsRoots(t *testing.T) {
	r := &datReader{builder: newBuilder(), roots: map[int]bool{}}
	kept := r.pushLine(3, r.pushPoint(0, 0, 0, 1), 1, 0, 0, nil)
	r.roots[kept] = true

	m := r.mark()
	dropped := r.pushLine(3, r.pushPoint(5, 0, 0, 1), 1, 0, 0, nil)
	r.roots[dropped] = true
	r.rollback(m)

	if !r.roots[kept] {
		t.Errorf("roots lost line %d pushed before the mark", kept)
	}
	if r.roots[dropped] {
		t.Errorf("roots still holds rolled back line %d", dropped)
	}

	// a contour reusing the id must not be extended by a later branch
	reused := r.pushLine(1, r.pushPoint(9, 9, 0, 1), 1, 0, 0, nil)
	if reused != dropped {
		t.Fatalf("line id = %d, want reused id %d", reused, dropped)
	}
	if r.roots[reused] {
		t.Error("reused line id is marked as a tree root")
	}
}

func TestDecodeDATSpine(t *testing.T) {
	data := datFile(tree(1, [4]float32{0, 0, 0, 1},
		branch(0, [][4]float32{{1, 0, 0, 1}, {2, 0, 0, 1}, {3, 0, 0, 1}},
			spine(2, [4]float32{2, 1, 0, 0.5}),
		),
	))
	res := decodeDAT(t, data)
	want := []lineShape{{3, 4, 0, 0}, {16, 1, 1, 2}}
	if got := shapes(res.Tree); !equalLines(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestDecodeDATQuirks(t *testing.T) {
	// A marker overruns its size by the symbol name and 0x0210 by two
	// bytes; both pass without warnings.
	data := datFile(
		markerBlock("Dot", [4]float32{1, 1, 0, 1}),
		block(bytecursor.Tag0210), u16(0),
		markerBlock("FilledCircle", [4]float32{2, 2, 0, 1}),
	)
	res := decodeDAT(t, data)
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", res.Warnings)
	}
	if n := res.Tree.NumLines(); n != 2 {
		t.Errorf("NumLines = %d, want 2", n)
	}
}

func TestDecodeDATResync(t *testing.T) {
	pts := [][4]float32{{0, 0, 0, 1}, {1, 0, 0, 1}, {1, 1, 0, 2}}
	next := markerBlock("Dot", [4]float32{5, 5, 0, 1})

	tests := []struct {
		name  string
		data  []byte
		lines int
	}{
		{
			// The declared end falls inside the last sample, where no
			// block starts, so reading continues at the marker.
			name:  "declared short",
			data:  datFile(resize(contour("Pia", pts...), -2), next),
			lines: 2,
		},
		{
			name:  "declared long",
			data:  datFile(resize(contour("Pia", pts...), 4), []byte{0, 0, 0, 0}, next),
			lines: 2,
		},
		{
			name:  "unknown tag",
			data:  datFile(block(0x0999, u32(7)), next),
			lines: 1,
		},
		{
			name:  "malformed content",
			data:  datFile(block(bytecursor.TagContour, u16(uint16(bytecursor.TagSample))), next),
			lines: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := decodeDAT(t, tt.data)
			if len(res.Warnings) != 1 {
				t.Errorf("Warnings = %v, want 1", res.Warnings)
			}
			if n := res.Tree.NumLines(); n != tt.lines {
				t.Fatalf("NumLines = %d, want %d", n, tt.lines)
			}
			last := res.Tree.Line(tt.lines)
			if p := res.Tree.Point(last.FirstPoint); p.X != 5 || p.Y != 5 {
				t.Errorf("marker point = %v, want (5, 5)", p)
			}
		})
	}
}

func TestDecodeDATTruncated(t *testing.T) {
	full := contour("Pia", [4]float32{0, 0, 0, 1}, [4]float32{1, 0, 0, 1}, [4]float32{1, 1, 0, 1})
	data := datFile(markerBlock("Dot", [4]float32{5, 5, 0, 1}), full[:len(full)-10])
	res := decodeDAT(t, data)
	if n := res.Tree.NumLines(); n != 1 {
		t.Errorf("NumLines = %d, want 1", n)
	}
	if n := res.Tree.NumPoints(); n != 1 {
		t.Errorf("NumPoints = %d, want 1 after rollback", n)
	}
	if len(res.Warnings) == 0 {
		t.Error("no warning for the truncated block")
	}
}

func TestDecodeDATSentinel(t *testing.T) {
	data := datFile(markerBlock("Dot", [4]float32{5, 5, 0, 1}), u32(bytecursor.EndSentinel), []byte("trailing junk"))
	res := decodeDAT(t, data)
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", res.Warnings)
	}
	if n := res.Tree.NumLines(); n != 1 {
		t.Errorf("NumLines = %d, want 1", n)
	}
}

func TestDecodeDATNames(t *testing.T) {
	data := datFile(contour("Pi\xe9\x00", [4]float32{0, 0, 0, 1}, [4]float32{1, 0, 0, 1}, [4]float32{1, 1, 0, 1}))
	res := decodeDAT(t, data)
	entries := res.Tree.CustomTypes["contour"]
	if len(entries) != 1 || entries[0]["name"] != "Pié" {
		t.Errorf("contour types = %v, want name Pié", entries)
	}
	if got := res.Tree.ObjectProperties[1]["color"]; got != "#ff0000" {
		t.Errorf("color = %v, want #ff0000", got)
	}
}

func TestDecodeDATProperties(t *testing.T) {
	prop := func(key string, values ...[]byte) []byte {
		return block(bytecursor.TagProperty, str(key), u16(uint16(len(values))), cat(values...))
	}
	props := block(bytecursor.TagPropertyList, u16(3),
		prop("Flagged"),
		prop("Resolution", u16(0), f32(0.5)),
		prop("Note", u16(1), str("checked")),
	)
	body := cat(str("Dot"), rgb(0, 0, 255), []byte{0}, props, samples([4]float32{1, 1, 0, 1}))
	m := block(bytecursor.TagMarker, body)
	m = resize(m, -len(str("Dot")))

	res := decodeDAT(t, datFile(m))
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", res.Warnings)
	}
	got := res.Tree.ObjectProperties[1]
	if got["Flagged"] != true || got["resolution"] != 0.5 || got["Note"] != "checked" {
		t.Errorf("properties = %v", got)
	}
}

func TestDecodeDATHeader(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("\x00V3 DAT file")},
		{"wrong token", cat([]byte("\x00V2 DAT file"), make([]byte, 80))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDATDecoder().Decode(tt.data, "x.dat")
			if !perrors.Is(err, perrors.ErrCodeInvalidHeader) {
				t.Errorf("err = %v, want INVALID_HEADER", err)
			}
		})
	}
}
