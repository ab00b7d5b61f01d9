package neurolucida

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/matzehuels/morphkit/pkg/decompose"
	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/rowstore"
	"github.com/matzehuels/morphkit/pkg/schema"
)

// builder collects the points, lines, types and object properties of one
// decoded file. All three readers push into it.
type builder struct {
	points   *rowstore.Growable[float32]
	lines    *rowstore.Growable[uint32]
	types    *schema.Registry
	objects  morph.Props
	warnings []morph.Warning

	// extended records lines whose length grew after they were pushed, so
	// that a failed block can be undone.
	extended []extension
}

type extension struct {
	line      int
	numPoints uint32
}

func newBuilder() *builder {
	return &builder{
		points:  rowstore.NewGrowable[float32](morph.PointCols),
		lines:   rowstore.NewGrowable[uint32](morph.LineCols),
		types:   schema.NewRegistry(),
		objects: morph.Props{},
	}
}

func (b *builder) warnf(offset int, format string, args ...any) {
	b.warnings = append(b.warnings, morph.Warnf(offset, format, args...))
}

// pushPoint appends a sample. d is a diameter; the store keeps radii.
func (b *builder) pushPoint(x, y, z, d float64) int {
	return b.points.PushRow(float32(x), float32(y), float32(z), float32(0.5*d))
}

// pushLine appends a line and stores attrs as its object properties. A line
// without points is not created: the warning is recorded and parent is
// returned so that children attach there instead. negOffset is clamped to
// the parent's length.
func (b *builder) pushLine(typeID, first, numPoints, parent, negOffset int, attrs schema.Attrs) int {
	if numPoints <= 0 {
		b.warnf(0, "skipping object without points (type %d, child of line %d)", typeID, parent)
		return parent
	}
	if parent > 0 {
		pn := int(b.lines.Row(parent)[2])
		if negOffset >= pn {
			negOffset = pn - 1
		}
	}
	if negOffset < 0 || parent == 0 {
		negOffset = 0
	}
	id := b.lines.PushRow(uint32(typeID), uint32(first), uint32(numPoints), uint32(parent), uint32(negOffset))
	b.objects.Merge(first, attrs)
	return id
}

// numPoints returns the current length of a line; 0 for the root.
func (b *builder) numPoints(line int) int {
	if line <= 0 {
		return 0
	}
	return int(b.lines.Row(line)[2])
}

// extend appends n points to an existing line.
func (b *builder) extend(line, n int) {
	r := b.lines.Row(line)
	b.extended = append(b.extended, extension{line: line, numPoints: r[2]})
	r[2] += uint32(n)
}

// createType returns the type id for an object and moves the attributes
// that define its type out of attrs.
func (b *builder) createType(tag string, attrs schema.Attrs) int {
	return b.types.Create(matchType(tag, attrs), attrs)
}

// =============================================================================
// Rollback
// =============================================================================

type mark struct {
	points, lines, extended int
}

func (b *builder) mark() mark {
	return mark{points: b.points.Len(), lines: b.lines.Len(), extended: len(b.extended)}
}

// rollback removes everything pushed since m. Types registered in between
// are kept; they are harmless when unused.
func (b *builder) rollback(m mark) {
	for i := len(b.extended) - 1; i >= m.extended; i-- {
		e := b.extended[i]
		if e.line < m.lines {
			b.lines.Row(e.line)[2] = e.numPoints
		}
	}
	b.extended = b.extended[:m.extended]
	b.points.Truncate(m.points)
	b.lines.Truncate(m.lines)
	for id := range b.objects {
		if id >= m.points {
			delete(b.objects, id)
		}
	}
}

// =============================================================================
// Result
// =============================================================================

func (b *builder) result(name, kind string, canonicalize bool) (*format.Result, error) {
	t, err := morph.New(name, morph.Input{
		Points:      b.points.ToFixed(),
		Lines:       b.lines.ToFixed(),
		CustomTypes: b.types.CustomTypes(),
		Properties:  morph.CompressProperties(b.objects, nil),
	})
	if err != nil {
		return nil, err
	}
	if canonicalize {
		if t, _, err = decompose.CanonicalizeTree(t); err != nil {
			return nil, err
		}
	}
	return &format.Result{Tree: t, Warnings: b.warnings, Format: kind}, nil
}

// =============================================================================
// Attributes
// =============================================================================

var (
	rgbRe  = regexp.MustCompile(`(?i)rgb\s*\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*\)`)
	somaRe = regexp.MustCompile(`(?i)soma|cell\s*body`)
)

// setAttribute stores a Neurolucida attribute under its normalized key.
// Colors become lower-case "#rrggbb"; resolution and fill density become
// numbers, closed a boolean. GUIDs and object type codes are dropped.
func setAttribute(attrs schema.Attrs, key string, value any) {
	switch strings.ToLower(key) {
	case "color":
		attrs["color"] = normalizeColor(value)
	case "resolution":
		attrs["resolution"] = toFloat(value)
	case "filldensity":
		attrs["fillDensity"] = toFloat(value)
	case "closed":
		attrs["closed"] = toBool(value)
	case "imagecoords":
		attrs["imageCoords"] = value
	case "guid", "mbfobjecttype":
	default:
		attrs[key] = value
	}
}

func normalizeColor(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		return strings.ToLower(s)
	}
	if m := rgbRe.FindStringSubmatch(s); m != nil {
		var c [3]uint8
		for i := range c {
			n, _ := strconv.Atoi(m[i+1])
			c[i] = uint8(min(n, 255))
		}
		return hexColor(c[0], c[1], c[2])
	}
	if hex, ok := namedColors[strings.ToLower(s)]; ok {
		return hex
	}
	return s
}

func hexColor(r, g, b uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func toFloat(v any) any {
	if s, ok := v.(string); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return v
}

func toBool(v any) any {
	if s, ok := v.(string); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	}
	return v
}

// setMarker records the symbol of a marker object.
func setMarker(attrs schema.Attrs, symbolName string) {
	setAttribute(attrs, "symbolName", symbolName)
	if m, ok := markers[symbolName]; ok {
		attrs["markerId"] = m.id
		attrs["symbol"] = m.symbol
	}
}

// typeToCellPart renames the Neurolucida "type" attribute of trees and
// contours.
func typeToCellPart(attrs schema.Attrs) {
	if v, ok := attrs["type"]; ok {
		attrs["cellPart"] = v
		delete(attrs, "type")
	}
}

func matchGeometry(tag string, attrs schema.Attrs) string {
	if tag == "contour" {
		if closed, _ := attrs["closed"].(bool); closed {
			return "contour"
		}
		return "border"
	}
	return tagGeometry[tag]
}

func matchPart(tag string, attrs schema.Attrs) string {
	part := attrs.String("cellPart")
	if part == "" {
		part = attrs.String("name")
	}
	if part == "" {
		part = tag
	}
	if p, ok := cellParts[strings.ToLower(part)]; ok {
		return p
	}
	if somaRe.MatchString(part) {
		return "soma"
	}
	return ""
}

// matchType names the library type of an object from its kind and
// attributes.
func matchType(tag string, attrs schema.Attrs) string {
	return schema.MatchType(matchGeometry(tag, attrs), matchPart(tag, attrs))
}

// decodeString converts text that is not valid UTF-8 from Windows-1252,
// the code page Neurolucida writes.
func decodeString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// =============================================================================
// Images
// =============================================================================

type image struct {
	filename string
	merge    []float64
	scale    []float64
	coord    []float64
}

// parseImageCoords reads the flat "Filename f Merge r g b a Coords sx sy x
// y z" sequence used by ASC and DAT files.
func parseImageCoords(values []any) []*image {
	var out []*image
	var cur *image
	for i := 0; i < len(values); i++ {
		key, _ := values[i].(string)
		switch strings.ToLower(key) {
		case "filename":
			if i+1 < len(values) {
				cur = &image{filename: schema.FormatValue(values[i+1])}
				out = append(out, cur)
				i++
			}
		case "merge":
			if cur != nil {
				cur.merge = floatsAt(values, i+1, 4)
				i += 4
			}
		case "coords":
			if cur != nil {
				cur.scale = floatsAt(values, i+1, 2)
				cur.coord = floatsAt(values, i+3, 3)
				i += 5
			}
		}
	}
	return out
}

func floatsAt(values []any, from, n int) []float64 {
	out := make([]float64, 0, n)
	for i := from; i < from+n && i < len(values); i++ {
		switch v := toFloat(values[i]).(type) {
		case float64:
			out = append(out, v)
		case float32:
			out = append(out, float64(v))
		}
	}
	return out
}

var pathSep = regexp.MustCompile(`[\\/]`)

// addImage anchors an image at its stage coordinate. Every image file gets
// its own image type with the file as source.
func (b *builder) addImage(img *image) {
	parts := pathSep.Split(img.filename, -1)
	attrs := schema.Attrs{
		"filename": strings.Join(parts, "/"),
		"name":     parts[len(parts)-1],
	}
	if len(img.scale) > 0 {
		attrs["scale"] = img.scale
	}
	if len(img.merge) > 0 {
		attrs["merge"] = img.merge
	}
	var c [3]float64
	copy(c[:], img.coord)
	first := b.points.PushRow(float32(c[0]), float32(c[1]), float32(c[2]), 0)
	typeID := b.types.Create(matchType("image", attrs), schema.Attrs{"src": attrs["filename"]})
	b.pushLine(typeID, first, 1, 0, 0, attrs)
}
