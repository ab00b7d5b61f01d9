package neurolucida

import (
	"bytes"
	"strconv"
	"strings"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/schema"
	"github.com/matzehuels/morphkit/pkg/xmldict"
)

// XMLDecoder reads Neurolucida XML files.
type XMLDecoder struct {
	Options
}

// NewXMLDecoder returns an XML decoder that canonicalizes line order.
func NewXMLDecoder() *XMLDecoder { return &XMLDecoder{Options{Canonicalize: true}} }

func (d *XMLDecoder) Format() string { return format.XML }

func (d *XMLDecoder) Supports(name string) bool { return format.Ext(name) == format.XML }

// rootObjects lists the top-level elements in processing order.
var rootObjects = []string{"filefacts", "images", "contour", "tree", "marker", "text"}

// Decode parses an mbf document.
func (d *XMLDecoder) Decode(data []byte, name string) (*format.Result, error) {
	root, err := xmldict.Parse(data)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeParse, err, "XML error in %s", name)
	}
	if root.Name != "mbf" {
		return nil, perrors.New(perrors.ErrCodeInvalidFormat, "%s: root element is <%s>, want <mbf>", name, root.Name)
	}

	r := &xmlReader{builder: newBuilder(), data: data}
	if desc := root.Child("description"); desc != nil && strings.TrimSpace(desc.Text) != "" {
		r.objects.Set(0, "description", strings.TrimSpace(desc.Text))
	}
	for _, tag := range rootObjects {
		for _, el := range root.Children {
			if el.Name != tag {
				continue
			}
			switch tag {
			case "filefacts":
				r.addFileFacts(el)
			case "images":
				r.addImages(el)
			default:
				r.addObject(el, 0, 0)
			}
		}
	}
	return r.result(name, format.XML, d.Canonicalize)
}

type xmlReader struct {
	*builder
	data []byte
}

// lineAt converts a byte offset into a 1-based line number.
func (r *xmlReader) lineAt(offset int64) int {
	if offset < 0 || offset > int64(len(r.data)) {
		return 0
	}
	return bytes.Count(r.data[:offset], []byte("\n")) + 1
}

func (r *xmlReader) addFileFacts(el *xmldict.Node) {
	var sections []any
	for _, ch := range el.Children {
		if ch.Name != "section" {
			continue
		}
		s := map[string]any{}
		for _, a := range ch.Attrs {
			s[a.Name] = a.Value
		}
		sections = append(sections, s)
	}
	if len(sections) > 0 {
		r.objects.Set(0, "sections", sections)
	}
}

func (r *xmlReader) addImages(el *xmldict.Node) {
	for _, im := range el.Children {
		if im.Name != "image" {
			continue
		}
		img := &image{}
		if f := im.Child("filename"); f != nil {
			img.filename = strings.TrimSpace(f.Text)
		}
		if s := im.Child("scale"); s != nil {
			img.scale = attrFloats(s, "x", "y")
		}
		if c := im.Child("coord"); c != nil {
			img.coord = attrFloats(c, "x", "y", "z")
		}
		r.addImage(img)
	}
}

func attrFloats(n *xmldict.Node, names ...string) []float64 {
	out := make([]float64, len(names))
	for i, name := range names {
		v, _ := n.Attr(name)
		out[i], _ = strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	return out
}

// addObject adds a tree, branch, contour, marker, spine or text element.
// Branches inherit their parent's type. Children attach to the point that
// precedes them in the element.
func (r *xmlReader) addObject(el *xmldict.Node, parent, negOffset int) {
	type child struct {
		el     *xmldict.Node
		offset int
	}
	var children []child
	attrs := schema.Attrs{}
	for _, a := range el.Attrs {
		if a.Name == "xmlns" || strings.HasPrefix(a.Name, "xmlns:") {
			continue
		}
		setAttribute(attrs, a.Name, a.Value)
	}

	first := r.points.Len()
	for _, ch := range el.Children {
		switch ch.Name {
		case "property":
			key, _ := ch.Attr("name")
			setAttribute(attrs, key, propertyValue(ch))
		case "point":
			v := attrFloats(ch, "x", "y", "z", "d")
			r.pushPoint(v[0], v[1], v[2], v[3])
			if sid, ok := ch.Attr("sid"); ok && sid != "" {
				setAttribute(attrs, "sectionId", sid)
			}
		case "spine", "marker", "branch":
			children = append(children, child{ch, r.points.Len() - first})
		case "resolution":
			setAttribute(attrs, "resolution", ch.Text)
		case "value":
			setAttribute(attrs, "value", ch.Text)
		case "font":
			name, _ := ch.Attr("name")
			size, _ := ch.Attr("size")
			setAttribute(attrs, "font", map[string]any{"name": name, "size": size})
		default:
			r.warnf(r.lineAt(ch.Offset), "unsupported element <%s> in <%s>", ch.Name, el.Name)
		}
	}

	var typeID int
	switch el.Name {
	case "branch":
		if parent > 0 {
			typeID = int(r.lines.Row(parent)[0])
		} else {
			typeID = r.createType("tree", attrs)
		}
	case "marker":
		if sym, ok := attrs["type"]; ok {
			delete(attrs, "type")
			setMarker(attrs, schema.FormatValue(sym))
		}
		typeID = r.createType("marker", attrs)
	default:
		typeToCellPart(attrs)
		typeID = r.createType(el.Name, attrs)
	}

	numPoints := r.points.Len() - first
	lineID := r.pushLine(typeID, first, numPoints, parent, negOffset, attrs)
	for _, c := range children {
		neg := negOffset
		if lineID != parent {
			neg = numPoints - c.offset
		}
		r.addObject(c.el, lineID, neg)
	}
}

// propertyValue reads <property name="k"><t>v</t></property>. Numeric and
// boolean payloads are converted; a property without payload is a flag.
func propertyValue(p *xmldict.Node) any {
	if len(p.Children) == 0 {
		return true
	}
	v := p.Children[0]
	text := strings.TrimSpace(v.Text)
	switch v.Name {
	case "n":
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f
		}
	case "bool":
		if b, err := strconv.ParseBool(text); err == nil {
			return b
		}
	}
	return text
}
