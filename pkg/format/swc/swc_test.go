package swc

import (
	"bytes"
	"math"
	"strings"
	"testing"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/morph"
)

const neuron = `# created by a tracing tool
# units: um
1 1 0 0 0 5 -1
2 3 1.23456 0 0 1 1
3 3 2 0 0 1 2
4 3 3 1 0 1 3
5 3 3 -1 0 1 3
6 2 -1 0 0 0.5 1
7 2 -2 0 0 0.5 6
`

func decode(t *testing.T, data, name string) *format.Result {
	t.Helper()
	res, err := NewDecoder().Decode([]byte(data), name)
	if err != nil {
		t.Fatalf("Decode(%s): %v", name, err)
	}
	return res
}

func lineShapes(tr *morph.Tree) [][2]int {
	out := make([][2]int, tr.NumLines())
	for id := 1; id <= tr.NumLines(); id++ {
		l := tr.Line(id)
		out[id-1] = [2]int{l.Type, l.NumPoints}
	}
	return out
}

func TestDecodeSWC(t *testing.T) {
	res := decode(t, neuron, "cell.swc")
	tr := res.Tree

	// soma, dendrite trunk 2-3, two dendrite branches, axon
	want := [][2]int{{1, 1}, {3, 2}, {3, 1}, {3, 1}, {2, 2}}
	if got := lineShapes(tr); !equalShapes(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
	if got := tr.MetaData["originalHeader"]; got != "created by a tracing tool\nunits: um" {
		t.Errorf("originalHeader = %q", got)
	}
	if res.Format != format.SWC || len(res.Warnings) != 0 {
		t.Errorf("Format, Warnings = %q, %v", res.Format, res.Warnings)
	}
}

func equalShapes(a, b [][2]int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDecodeSloppyRows(t *testing.T) {
	data := "1,1,0,0,0,5,-1\n2 3 1 0 0\n3.0\t3.0\t1\t0\t0\t1\t1.0 # trailing comment\n4 3 x 0 0 1 3\n"
	res := decode(t, data, "sloppy.swc")
	if n := res.Tree.NumPoints(); n != 2 {
		t.Errorf("NumPoints = %d, want 2", n)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("Warnings = %v, want 2", res.Warnings)
	}
	if res.Warnings[0].Offset != 2 || res.Warnings[1].Offset != 4 {
		t.Errorf("warning offsets = %d, %d, want 2, 4", res.Warnings[0].Offset, res.Warnings[1].Offset)
	}
}

func TestDecodeHeader(t *testing.T) {
	data := `# <swcPlus version='0.3'>
#   <metaData species='mouse'/>
#   <customTypes>
#     <regionContour id='16' atlas:region='VISp'/>
#   </customTypes>
#   <customProperties>
#     <for objects.csv='2'>
#       <set color='#ff0000'/>
#     </for>
#   </customProperties>
# </swcPlus>
1 1 0 0 0 5 -1
2 16 1 0 0 1 1
3 16 2 0 0 1 2
`
	tr := decode(t, data, "annotated.swc").Tree
	if tr.MetaData["species"] != "mouse" {
		t.Errorf("metaData = %v", tr.MetaData)
	}
	if tr.Attrs["version"] != "0.3" {
		t.Errorf("Attrs = %v", tr.Attrs)
	}
	entry := tr.TypeMap[16]
	if entry["geometry"] != "contour" || entry["atlas:region"] != "VISp" {
		t.Errorf("TypeMap[16] = %v", entry)
	}
	if got := tr.TypeName(16, 2); got != "Region VISp contour" {
		t.Errorf("TypeName = %q", got)
	}
	if got := tr.ObjectProperties[2]["color"]; got != "#ff0000" {
		t.Errorf("ObjectProperties[2] = %v", tr.ObjectProperties[2])
	}
}

func TestDecodeHeaderError(t *testing.T) {
	data := "# <swcPlus><metaData></swcPlus>\n1 1 0 0 0 1 -1\n"
	_, err := NewDecoder().Decode([]byte(data), "bad.swc")
	if !perrors.Is(err, perrors.ErrCodeInvalidHeader) {
		t.Errorf("error = %v, want INVALID_HEADER", err)
	}
}

func TestPropertiesFollowRenumbering(t *testing.T) {
	data := `# <swcPlus>
#   <customProperties>
#     <for points.csv='30'>
#       <set note='tip'/>
#     </for>
#   </customProperties>
# </swcPlus>
10 1 0 0 0 5 -1
20 3 1 0 0 1 10
30 3 2 0 0 1 20
`
	tr := decode(t, data, "renumbered.swc").Tree
	if got := tr.PointProperties[3]["note"]; got != "tip" {
		t.Errorf("PointProperties = %v, want note on point 3", tr.PointProperties)
	}
}

func roundTrip(t *testing.T, encode func(*bytes.Buffer, *morph.Tree) error, ext string) {
	t.Helper()
	orig := decode(t, neuron, "cell.swc").Tree
	orig.ObjectProperties.Set(orig.Line(5).FirstPoint, "name", "main axon")

	var buf bytes.Buffer
	if err := encode(&buf, orig); err != nil {
		t.Fatalf("encode: %v", err)
	}
	again := decode(t, buf.String(), "cell."+ext).Tree

	if got, want := lineShapes(again), lineShapes(orig); !equalShapes(got, want) {
		t.Fatalf("lines = %v, want %v\n%s", got, want, buf.String())
	}
	for p := 1; p <= orig.NumPoints(); p++ {
		a, b := orig.Point(p), again.Point(p)
		if math.Abs(a.X-b.X) > 5e-4 || math.Abs(a.R-b.R) > 5e-4 {
			t.Errorf("point %d = %+v, want %+v", p, b, a)
		}
	}
	if got := again.ObjectProperties[again.Line(5).FirstPoint]["name"]; got != "main axon" {
		t.Errorf("object property lost: %v", again.ObjectProperties)
	}
	if got := again.MetaData["originalHeader"]; got != orig.MetaData["originalHeader"] {
		t.Errorf("originalHeader = %q, want %q", got, orig.MetaData["originalHeader"])
	}
}

func TestRoundTripSWC(t *testing.T) {
	roundTrip(t, func(b *bytes.Buffer, tr *morph.Tree) error { return Encode(b, tr, EncodeOptions{}) }, "swc")
}

func TestRoundTripXWC(t *testing.T) {
	roundTrip(t, func(b *bytes.Buffer, tr *morph.Tree) error { return EncodeXML(b, tr, EncodeOptions{}) }, "xwc")
}

func TestRoundTripJWC(t *testing.T) {
	roundTrip(t, func(b *bytes.Buffer, tr *morph.Tree) error { return EncodeJWC(b, tr, EncodeOptions{}) }, "jwc")
}

func TestEncodeRounding(t *testing.T) {
	tr := decode(t, neuron, "cell.swc").Tree
	var buf bytes.Buffer
	two := 2
	if err := Encode(&buf, tr, EncodeOptions{Decimals: &two}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "\n2 3 1.23 0 0 1 1\n") {
		t.Errorf("missing rounded row:\n%s", buf.String())
	}
	if !strings.HasPrefix(buf.String(), "# <swcPlus version='0.3'>") {
		t.Errorf("missing SWC+ header:\n%s", buf.String())
	}
}

func TestEncodeDecimals(t *testing.T) {
	tr := decode(t, neuron, "cell.swc").Tree
	zero, huge := 0, 400
	tests := []struct {
		name     string
		decimals *int
		want     string
	}{
		{"default", nil, "\n2 3 1.235 0 0 1 1\n"},
		{"integers", &zero, "\n2 3 1 0 0 1 1\n"},
		{"beyond float precision", &huge, "\n2 3 1.23456 0 0 1 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, tr, EncodeOptions{Decimals: tt.decimals}); err != nil {
				t.Fatal(err)
			}
			if strings.Contains(buf.String(), "NaN") {
				t.Fatalf("NaN in output:\n%s", buf.String())
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("missing row %q in:\n%s", strings.TrimSpace(tt.want), buf.String())
			}
		})
	}
}

func TestEncodeInclude(t *testing.T) {
	tr := decode(t, neuron, "cell.swc").Tree
	var buf bytes.Buffer
	if err := Encode(&buf, tr, EncodeOptions{Include: []int{5}}); err != nil {
		t.Fatal(err)
	}
	again := decode(t, buf.String(), "axon.swc").Tree
	if again.NumLines() != 1 || again.Line(1).Type != 2 || again.NumPoints() != 2 {
		t.Errorf("lines = %v", lineShapes(again))
	}
}

func TestStreamlines(t *testing.T) {
	data := `{
  "injection_sites": [{"x": 1, "y": 2, "z": 3}],
  "lines": [
    [{"x": 0, "y": 0, "z": 0, "density": 0.5}, {"x": 1, "y": 0, "z": 0, "density": 0.7}],
    []
  ]
}`
	d := StreamlinesDecoder{}
	if !d.Supports("site.streamlines.json") || d.Supports("site.json") {
		t.Error("Supports does not match the compound extension")
	}
	res, err := d.Decode([]byte(data), "site.streamlines.json")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	tr := res.Tree
	want := [][2]int{{InjectionType, 1}, {2, 2}}
	if got := lineShapes(tr); !equalShapes(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
	if tr.TypeMap[InjectionType]["geometry"] != "marker" {
		t.Errorf("injection type = %v", tr.TypeMap[InjectionType])
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one for the empty streamline", res.Warnings)
	}
}
