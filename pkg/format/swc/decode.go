// Package swc reads and writes the SWC family of formats.
//
// Plain SWC is a list of samples "id type x y z r parent". SWC+ adds an XML
// header, carried in the "#" comment lines, with metaData, customTypes and
// customProperties sections. Two variants hold the same content in other
// containers: XWC is a complete SWC+ XML document whose swcPoints element
// holds the rows, JWC is the equivalent JSON document.
//
// The decoder also imports streamline JSON exports (injection sites plus
// polylines) as a tree of markers and axon lines.
package swc

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/matzehuels/morphkit/pkg/decompose"
	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/schema"
	"github.com/matzehuels/morphkit/pkg/xmldict"
)

// Decoder reads SWC, XWC and JWC files.
type Decoder struct {
	// Canonicalize orders lines depth-first from the root.
	Canonicalize bool
}

// NewDecoder returns a decoder that canonicalizes line order.
func NewDecoder() *Decoder { return &Decoder{Canonicalize: true} }

func (d *Decoder) Format() string { return format.SWC }

func (d *Decoder) Supports(name string) bool {
	switch format.Ext(name) {
	case format.SWC, format.XWC, format.JWC:
		return true
	}
	return false
}

var (
	fieldSep  = regexp.MustCompile(`[\s,]+`)
	swcPlusRe = regexp.MustCompile(`^\s*<swcPlus`)
)

// document holds the sections shared by all SWC variants.
type document struct {
	attrs       map[string]string
	metaData    map[string]any
	customTypes schema.CustomTypes
	properties  morph.CustomProperties
	samples     []decompose.Sample
	warnings    []morph.Warning
}

// Decode parses data according to the extension of name.
func (d *Decoder) Decode(data []byte, name string) (*format.Result, error) {
	var (
		doc *document
		err error
	)
	kind := format.Ext(name)
	switch kind {
	case format.XWC:
		doc, err = decodeXWC(data, name)
	case format.JWC:
		doc, err = decodeJWC(data, name)
	default:
		kind = format.SWC
		doc, err = decodeText(data, name)
	}
	if err != nil {
		return nil, err
	}
	return d.assemble(doc, name, kind)
}

func (d *Decoder) assemble(doc *document, name, kind string) (*format.Result, error) {
	res := decompose.Decompose(doc.samples, decompose.Options{Canonicalize: d.Canonicalize})
	warnings := append(doc.warnings, res.Warnings...)

	props := doc.properties
	if res.Renumbered || res.PointsPermuted {
		props = rekey(props, res.SampleIDs)
	}
	t, err := morph.New(name, morph.Input{
		Points:      res.Points,
		Lines:       res.Lines,
		CustomTypes: doc.customTypes,
		Properties:  props,
		MetaData:    doc.metaData,
		Attrs:       doc.attrs,
	})
	if err != nil {
		return nil, err
	}
	return &format.Result{Tree: t, Warnings: warnings, Format: kind}, nil
}

// rekey moves properties from sample numbers to point ids. File-level
// object properties (id 0) stay in place; properties of unknown samples are
// dropped.
func rekey(props morph.CustomProperties, sampleIDs []int) morph.CustomProperties {
	if props.Empty() {
		return props
	}
	pointOf := make(map[int]int, len(sampleIDs))
	for p := 1; p < len(sampleIDs); p++ {
		pointOf[sampleIDs[p]] = p
	}
	objects, points := morph.InflateProperties(props)
	outObjects, outPoints := morph.Props{}, morph.Props{}
	outObjects.Merge(0, objects[0])
	for id, kv := range objects {
		if p, ok := pointOf[id]; ok && id != 0 {
			outObjects.Merge(p, kv)
		}
	}
	for id, kv := range points {
		if p, ok := pointOf[id]; ok {
			outPoints.Merge(p, kv)
		}
	}
	return morph.CompressProperties(outObjects, outPoints)
}

// =============================================================================
// Plain SWC
// =============================================================================

func decodeText(data []byte, name string) (*document, error) {
	doc := &document{}
	var header []string
	var body []string
	var bodyLines []int
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			comment := line[idx+1:]
			header = append(header, strings.TrimPrefix(comment, " "))
			line = line[:idx]
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		body = append(body, line)
		bodyLines = append(bodyLines, i+1)
	}

	text := strings.Join(header, "\n")
	if swcPlusRe.MatchString(text) {
		root, err := xmldict.Parse([]byte(text))
		if err != nil {
			return nil, perrors.Wrap(perrors.ErrCodeInvalidHeader, err, "XML error in SWC+ header of %s", name)
		}
		if err := doc.readHeader(root); err != nil {
			return nil, perrors.Wrap(perrors.ErrCodeInvalidHeader, err, "SWC+ header of %s", name)
		}
	} else {
		doc.metaData = map[string]any{}
		if strings.TrimSpace(text) != "" {
			doc.metaData["originalHeader"] = text
		}
	}

	for i, line := range body {
		doc.parseRow(line, bodyLines[i])
	}
	return doc, nil
}

// parseRow appends one sample, or a warning when the row is malformed.
// Integer columns accept floats and are rounded.
func (doc *document) parseRow(line string, lineNo int) {
	fields := fieldSep.Split(strings.TrimSpace(line), -1)
	if len(fields) < 7 {
		doc.warnings = append(doc.warnings, morph.Warnf(lineNo, "skipping line: need 7 values, got %d", len(fields)))
		return
	}
	var v [7]float64
	for j := range v {
		f, err := strconv.ParseFloat(fields[j], 64)
		if err != nil {
			doc.warnings = append(doc.warnings, morph.Warnf(lineNo, "skipping line: invalid number %q", fields[j]))
			return
		}
		v[j] = f
	}
	doc.samples = append(doc.samples, decompose.Sample{
		ID:     roundInt(v[0]),
		Type:   roundInt(v[1]),
		X:      v[2],
		Y:      v[3],
		Z:      v[4],
		R:      v[5],
		Parent: roundInt(v[6]),
		Line:   lineNo,
	})
}

func roundInt(f float64) int { return int(math.Round(f)) }

// readHeader fills the SWC+ sections from the root element of a header or
// XWC document.
func (doc *document) readHeader(root *xmldict.Node) error {
	doc.attrs = root.AttrMap()

	doc.metaData = map[string]any{}
	if n := root.Child("metaData"); n != nil {
		switch v := n.Value().(type) {
		case map[string]any:
			doc.metaData = v
		case string:
			doc.metaData["_"] = v
		}
	}
	if n := root.Child("customTypes"); n != nil {
		ct, err := schema.CustomTypesFrom(n.Value())
		if err != nil {
			return err
		}
		doc.customTypes = ct
	}
	if n := root.Child("customProperties"); n != nil {
		props, err := morph.PropertiesFrom(n.Value())
		if err != nil {
			return err
		}
		doc.properties = props
	}
	return nil
}

// =============================================================================
// XWC and JWC
// =============================================================================

func decodeXWC(data []byte, name string) (*document, error) {
	root, err := xmldict.Parse(data)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeParse, err, "XML error in %s", name)
	}
	if root.Name != "swcPlus" {
		return nil, perrors.New(perrors.ErrCodeInvalidFormat, "%s: root element is <%s>, want <swcPlus>", name, root.Name)
	}
	doc := &document{}
	if err := doc.readHeader(root); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidHeader, err, "%s", name)
	}
	pts := root.Child("swcPoints")
	if pts == nil {
		doc.warnings = append(doc.warnings, morph.Warnf(0, "no swcPoints element"))
		return doc, nil
	}
	text := strings.TrimSpace(pts.Text)
	if strings.HasPrefix(text, "[") {
		var rows [][]float64
		if err := json.Unmarshal([]byte(text), &rows); err != nil {
			return nil, perrors.Wrap(perrors.ErrCodeParse, err, "%s: swcPoints", name)
		}
		doc.addRows(rows)
		return doc, nil
	}
	for i, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			doc.parseRow(line, i+1)
		}
	}
	return doc, nil
}

type jwcDocument struct {
	Version          string                 `json:"version,omitempty"`
	MetaData         map[string]any         `json:"metaData,omitempty"`
	CustomTypes      schema.CustomTypes     `json:"customTypes,omitempty"`
	CustomProperties morph.CustomProperties `json:"customProperties"`
	SWCPoints        [][]float64            `json:"swcPoints"`
}

func decodeJWC(data []byte, name string) (*document, error) {
	var j jwcDocument
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&j); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeParse, err, "JSON error in %s", name)
	}
	doc := &document{
		attrs:       map[string]string{},
		metaData:    j.MetaData,
		customTypes: j.CustomTypes,
		properties:  j.CustomProperties,
	}
	if j.Version != "" {
		doc.attrs["version"] = j.Version
	}
	doc.addRows(j.SWCPoints)
	return doc, nil
}

func (doc *document) addRows(rows [][]float64) {
	samples, skipped := decompose.SamplesFromRows(rows)
	doc.samples = append(doc.samples, samples...)
	doc.warnings = append(doc.warnings, skipped...)
}
