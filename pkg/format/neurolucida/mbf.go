package neurolucida

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/schema"
	"github.com/matzehuels/morphkit/pkg/xmldict"
)

const (
	// Namespace is the mbf document namespace.
	Namespace = "http://www.mbfbioscience.com/2007/neurolucida"

	// DefaultDecimals is the coordinate precision of [EncodeXML].
	DefaultDecimals = 2

	xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
)

// XMLOptions controls [EncodeXML].
type XMLOptions struct {
	// Decimals rounds coordinates and diameters. Nil selects
	// DefaultDecimals.
	Decimals *int
	// AppVersion is written as the appversion of the document.
	AppVersion string
}

// treeColors are written for trees without a color of their own.
var treeColors = map[string]string{
	"soma":     "#000E60",
	"axon":     "#0000FF",
	"dendrite": "#FF0000",
	"apical":   "#800000",
}

// consumed lists the object properties that EncodeXML writes as element
// attributes or dedicated children rather than as <property> elements.
var consumed = map[string]bool{
	"cellPart": true, "closed": true, "color": true, "fillDensity": true,
	"font": true, "leaf": true, "markerId": true, "name": true,
	"resolution": true, "sectionId": true, "shape": true, "symbol": true,
	"symbolName": true, "value": true, "varicosity": true,
	"filename": true, "scale": true, "merge": true,
}

// EncodeXML writes t as a Neurolucida mbf document. Tree lines become
// <tree> elements, or <branch> elements when they continue their parent's
// type. Closed contours and borders become <contour>, markers with a
// Neurolucida symbol <marker>, spines <spine> and other markers <text>.
// Spines, markers and branches are nested at the point they attach to.
// Lines that Neurolucida cannot nest, such as an axon leaving a soma, are
// written as top-level siblings after their parent. Volume and surface
// anchors have no mbf counterpart and are left out.
func EncodeXML(w io.Writer, t *morph.Tree, opts XMLOptions) error {
	e := &mbfEncoder{t: t, decimals: DefaultDecimals}
	if opts.Decimals != nil {
		e.decimals = *opts.Decimals
	}

	root := &xmldict.Node{Name: "mbf", Attrs: []xmldict.Attr{
		{Name: "version", Value: "4.0"},
		{Name: "xmlns", Value: Namespace},
		{Name: "appname", Value: "morphkit"},
	}}
	if opts.AppVersion != "" {
		root.SetAttr("appversion", opts.AppVersion)
	}
	file := t.ObjectProperties[0]
	if desc, ok := file["description"].(string); ok && desc != "" {
		root.Children = append(root.Children, &xmldict.Node{Name: "description", Text: desc})
	}
	root.Children = append(root.Children, e.fileFacts(file), e.images())
	e.root = root

	if len(t.Children) > 0 {
		for _, id := range t.Children[0] {
			e.writeTop(id)
		}
	}

	if _, err := io.WriteString(w, xmlHeader); err != nil {
		return err
	}
	_, err := w.Write(root.Marshal())
	return err
}

type mbfEncoder struct {
	t        *morph.Tree
	root     *xmldict.Node
	decimals int
	sids     map[string]bool
	firstSID string
}

// writeTop appends line id to the document root, followed by the lines it
// could not nest.
func (e *mbfEncoder) writeTop(id int) {
	n, detached := e.element(id)
	if n != nil {
		e.root.Children = append(e.root.Children, n)
	}
	for _, c := range detached {
		e.writeTop(c)
	}
}

// elementName returns the mbf element of a line, or "" for lines that are
// not written.
func (e *mbfEncoder) elementName(id int) string {
	l := e.t.Line(id)
	entry := e.t.TypeMap[l.Type]
	props := e.t.ObjectProperties[l.FirstPoint]
	switch entry.String("geometry") {
	case "tree":
		if l.Parent > 0 && e.t.Line(l.Parent).Type == l.Type {
			return "branch"
		}
		return "tree"
	case "contour", "border":
		return "contour"
	case "marker":
		if entry.String("cellPart") == "spine" {
			return "spine"
		}
		if symbolName(entry, props) != "" {
			return "marker"
		}
		return "text"
	}
	return ""
}

// nests reports whether a child element can live inside its parent's.
func nests(child string) bool {
	return child == "branch" || child == "spine" || child == "marker"
}

// element builds the element of line id with its nested children. The
// returned ids are children that must be written at the top level.
func (e *mbfEncoder) element(id int) (*xmldict.Node, []int) {
	name := e.elementName(id)
	l := e.t.Line(id)
	var children []int
	if id < len(e.t.Children) {
		children = e.t.Children[id]
	}
	if name == "" {
		return nil, children
	}

	entry := e.t.TypeMap[l.Type]
	props := schema.Attrs(e.t.ObjectProperties[l.FirstPoint]).Clone()
	n := &xmldict.Node{Name: name}
	e.setAttrs(n, entry, props)

	if v, ok := props["resolution"]; ok {
		n.Children = append(n.Children, &xmldict.Node{Name: "resolution", Text: schema.FormatValue(v)})
	}
	if v, ok := props["fillDensity"]; ok {
		n.Children = append(n.Children, property("FillDensity", v))
	}
	if font, ok := props["font"].(map[string]any); ok {
		f := &xmldict.Node{Name: "font"}
		f.SetAttr("name", orDefault(font["name"], "MS Sans Serif"))
		f.SetAttr("size", orDefault(font["size"], "12"))
		n.Children = append(n.Children, f)
	}
	for _, k := range sortedPropKeys(props) {
		if p := property(k, props[k]); p != nil {
			n.Children = append(n.Children, p)
		}
	}

	// nested children go after the point they attach to
	at := map[int][]int{}
	var detached []int
	for _, c := range children {
		if !nests(e.elementName(c)) {
			detached = append(detached, c)
			continue
		}
		before := l.NumPoints - e.t.Line(c).NegOffset
		before = max(0, min(before, l.NumPoints))
		at[before] = append(at[before], c)
	}
	sid := e.sid(props)
	for i := 0; i <= l.NumPoints; i++ {
		if i > 0 {
			n.Children = append(n.Children, e.point(l.FirstPoint+i-1, sid))
		}
		for _, c := range at[i] {
			cn, more := e.element(c)
			n.Children = append(n.Children, cn)
			detached = append(detached, more...)
		}
	}

	if v, ok := props["value"]; ok {
		n.Children = append(n.Children, &xmldict.Node{Name: "value", Text: schema.FormatValue(v)})
	}
	return n, detached
}

func (e *mbfEncoder) setAttrs(n *xmldict.Node, entry, props schema.Attrs) {
	color := strings.ToUpper(props.String("color"))
	switch n.Name {
	case "tree":
		typ := entry.String(schema.KeyType)
		if color == "" {
			color = treeColors[typ]
		}
		setNonEmpty(n, "color", color)
		if typ != "" {
			n.SetAttr("type", strings.ToUpper(typ[:1])+typ[1:])
		}
		setNonEmpty(n, "leaf", props.String("leaf"))
	case "branch":
		setNonEmpty(n, "color", color)
		setNonEmpty(n, "leaf", props.String("leaf"))
	case "contour":
		setNonEmpty(n, "name", objectName(entry, props))
		setNonEmpty(n, "color", color)
		closed := entry.String("geometry") == "contour"
		if v, ok := props["closed"].(bool); ok {
			closed = v
		}
		n.SetAttr("closed", strconv.FormatBool(closed))
		shape := props.String("shape")
		if shape == "" {
			shape = "Contour"
		}
		n.SetAttr("shape", shape)
	case "marker":
		setNonEmpty(n, "type", symbolName(entry, props))
		setNonEmpty(n, "name", objectName(entry, props))
		setNonEmpty(n, "color", color)
		if v, ok := props["varicosity"]; ok {
			n.SetAttr("varicosity", schema.FormatValue(v))
		}
	case "spine":
		setNonEmpty(n, "color", color)
		setNonEmpty(n, "name", props.String("name"))
	case "text":
		setNonEmpty(n, "name", objectName(entry, props))
		setNonEmpty(n, "color", color)
	}
}

func (e *mbfEncoder) point(id int, sid string) *xmldict.Node {
	p := e.t.Point(id)
	n := &xmldict.Node{Name: "point"}
	n.SetAttr("x", e.number(p.X))
	n.SetAttr("y", e.number(p.Y))
	n.SetAttr("z", e.number(p.Z))
	n.SetAttr("d", e.number(2*p.R))
	setNonEmpty(n, "sid", sid)
	return n
}

func (e *mbfEncoder) number(v float64) string {
	if e.decimals < 0 || e.decimals > morph.MaxDecimals {
		return strconv.FormatFloat(v, 'f', -1, 32)
	}
	return strconv.FormatFloat(morph.Round(v, e.decimals), 'f', -1, 64)
}

// sid returns the section of an object. Unknown sections fall back to the
// first declared one.
func (e *mbfEncoder) sid(props schema.Attrs) string {
	sid := props.String("sectionId")
	if sid == "" || e.sids[sid] {
		return sid
	}
	return e.firstSID
}

// fileFacts writes the sections of the file. Without recorded filefacts
// the sections are collected from the objects' section ids.
func (e *mbfEncoder) fileFacts(file map[string]any) *xmldict.Node {
	var sections []map[string]any
	if list, ok := file["sections"].([]any); ok {
		for _, s := range list {
			if m, ok := s.(map[string]any); ok {
				sections = append(sections, m)
			}
		}
	}
	if len(sections) == 0 {
		seen := map[string]bool{}
		for _, id := range e.t.ObjectProperties.IDs() {
			sid, _ := e.t.ObjectProperties[id]["sectionId"].(string)
			if id == 0 || sid == "" || seen[sid] {
				continue
			}
			seen[sid] = true
			sections = append(sections, map[string]any{
				"sid": sid, "name": sid, "top": len(sections), "cutthickness": 1, "mountedthickness": 0,
			})
		}
	}

	n := &xmldict.Node{Name: "filefacts"}
	e.sids = map[string]bool{}
	for i, s := range sections {
		sid := schema.FormatValue(s["sid"])
		e.sids[sid] = true
		if i == 0 {
			e.firstSID = sid
		}
		sec := &xmldict.Node{Name: "section"}
		sec.SetAttr("sid", sid)
		sec.SetAttr("name", orDefault(s["name"], sid))
		sec.SetAttr("top", orDefault(s["top"], strconv.Itoa(i)))
		sec.SetAttr("cutthickness", orDefault(s["cutthickness"], "0"))
		sec.SetAttr("mountedthickness", orDefault(s["mountedthickness"], "0"))
		n.Children = append(n.Children, sec)
	}
	if len(sections) > 0 {
		mgr := &xmldict.Node{Name: "sectionmanager"}
		mgr.SetAttr("currentsection", orDefault(file["currentSection"], orDefault(sections[0]["name"], e.firstSID)))
		mgr.SetAttr("sectioninterval", "1")
		mgr.SetAttr("startingsection", "1")
		n.Children = append(n.Children, mgr)
	}
	return n
}

// images writes the image anchors with their file, scale and stage
// coordinate.
func (e *mbfEncoder) images() *xmldict.Node {
	n := &xmldict.Node{Name: "images"}
	for id := 1; id <= e.t.NumLines(); id++ {
		l := e.t.Line(id)
		if e.t.TypeMap[l.Type].String("geometry") != "image" {
			continue
		}
		props := schema.Attrs(e.t.ObjectProperties[l.FirstPoint])
		filename := props.String("filename")
		if filename == "" {
			filename = e.t.TypeMap[l.Type].String("src")
		}
		im := &xmldict.Node{Name: "image"}
		im.Children = append(im.Children, &xmldict.Node{Name: "filename", Text: filename})
		if scale := floats(props["scale"]); len(scale) == 2 {
			s := &xmldict.Node{Name: "scale"}
			s.SetAttr("x", e.number(scale[0]))
			s.SetAttr("y", e.number(scale[1]))
			im.Children = append(im.Children, s)
		}
		p := e.t.Point(l.FirstPoint)
		c := &xmldict.Node{Name: "coord"}
		c.SetAttr("x", e.number(p.X))
		c.SetAttr("y", e.number(p.Y))
		c.SetAttr("z", e.number(p.Z))
		im.Children = append(im.Children, c)
		n.Children = append(n.Children, im)
	}
	return n
}

// property writes <property name="k"> with a typed payload. True flags
// have no payload; values without a scalar form are skipped.
func property(name string, v any) *xmldict.Node {
	p := &xmldict.Node{Name: "property", Attrs: []xmldict.Attr{{Name: "name", Value: name}}}
	var tag string
	switch v := v.(type) {
	case bool:
		if v {
			return p
		}
		tag = "bool"
	case float64, float32, int, int64, uint32:
		tag = "n"
	case string:
		tag = "s"
	default:
		return nil
	}
	p.Children = []*xmldict.Node{{Name: tag, Text: schema.FormatValue(v)}}
	return p
}

func sortedPropKeys(props schema.Attrs) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		if !consumed[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// symbolName returns the Neurolucida symbol of a marker, looked up from its
// glyph when the symbol name was not recorded.
func symbolName(entry, props schema.Attrs) string {
	if s := props.String("symbolName"); s != "" {
		return s
	}
	if s := entry.String("symbolName"); s != "" {
		return s
	}
	glyph := entry.String("symbol")
	for name, m := range markers {
		if m.symbol == glyph && name != "?" {
			return name
		}
	}
	return ""
}

func objectName(entry, props schema.Attrs) string {
	if s := props.String("name"); s != "" {
		return s
	}
	if s := entry.String("name"); s != "" {
		attrs := entry.Clone()
		for k, v := range props {
			if _, ok := attrs[k]; !ok {
				attrs[k] = v
			}
		}
		return schema.ExpandName(s, attrs)
	}
	return ""
}

func setNonEmpty(n *xmldict.Node, name, value string) {
	if value != "" {
		n.SetAttr(name, value)
	}
}

func orDefault(v any, def string) string {
	if v == nil {
		return def
	}
	if s := schema.FormatValue(v); s != "" {
		return s
	}
	return def
}

func floats(v any) []float64 {
	switch v := v.(type) {
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, x := range v {
			if f, ok := toFloat(schema.FormatValue(x)).(float64); ok {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}
