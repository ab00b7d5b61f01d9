package neurolucida

import (
	"fmt"
	"strconv"
	"strings"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/schema"
)

// ASCDecoder reads Neurolucida ASC files.
type ASCDecoder struct {
	Options
}

// NewASCDecoder returns an ASC decoder that canonicalizes line order.
func NewASCDecoder() *ASCDecoder { return &ASCDecoder{Options{Canonicalize: true}} }

func (d *ASCDecoder) Format() string { return format.ASC }

func (d *ASCDecoder) Supports(name string) bool { return format.Ext(name) == format.ASC }

// Decode parses an ASC file. Syntax errors (unbalanced brackets,
// unterminated strings) are fatal; malformed points are skipped with a
// warning.
func (d *ASCDecoder) Decode(data []byte, name string) (*format.Result, error) {
	p := &ascParser{src: decodeString(data), line: 1}
	segs, err := p.parseSeq(0)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeParse, err, "%s", name)
	}
	var items []*node
	for _, s := range segs {
		items = append(items, s...)
	}

	r := &ascReader{builder: newBuilder(), src: p.src}
	r.addBody("", schema.Attrs{}, items, 0, 0)
	for _, img := range r.images {
		r.addImage(img)
	}
	return r.result(name, format.ASC, d.Canonicalize)
}

// =============================================================================
// Parser
// =============================================================================

type nodeKind uint8

const (
	kindList nodeKind = iota
	kindSpine
	kindWord
	kindString
	kindNumber
)

// node is one element of the parsed S-expression. start and end delimit its
// source text.
type node struct {
	kind       nodeKind
	text       string
	num        float64
	items      []*node
	line       int
	start, end int
}

type ascParser struct {
	src  string
	pos  int
	line int
}

func (p *ascParser) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.line, fmt.Sprintf(format, args...))
}

// parseSeq reads elements up to the closing byte (0 for end of input). The
// result holds one segment per "|"-separated branch; a bracketed list with
// several segments turns into sibling lists in its container.
func (p *ascParser) parseSeq(closing byte) ([][]*node, error) {
	segs := [][]*node{nil}
	add := func(n *node) { segs[len(segs)-1] = append(segs[len(segs)-1], n) }
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			if closing != 0 {
				return nil, p.errorf("unexpected end of file, missing %q", closing)
			}
			return segs, nil
		}
		c := p.src[p.pos]
		start, line := p.pos, p.line
		switch {
		case c == closing:
			p.pos++
			return segs, nil
		case c == ')' || c == '>':
			return nil, p.errorf("unexpected %q", c)
		case c == '|':
			p.pos++
			segs = append(segs, nil)
		case c == '(' || c == '<':
			p.pos++
			kind, end := kindList, byte(')')
			if c == '<' {
				kind, end = kindSpine, '>'
			}
			inner, err := p.parseSeq(end)
			if err != nil {
				return nil, err
			}
			for _, items := range inner {
				add(&node{kind: kind, items: items, line: line, start: start, end: p.pos})
			}
		case c == '"':
			s, err := p.readString()
			if err != nil {
				return nil, err
			}
			add(&node{kind: kindString, text: s, line: line, start: start, end: p.pos})
		default:
			w := p.readWord()
			n := &node{kind: kindWord, text: w, line: line, start: start, end: p.pos}
			if looksNumeric(w) {
				if f, err := strconv.ParseFloat(w, 64); err == nil {
					n.kind, n.num = kindNumber, f
				}
			}
			add(n)
		}
	}
}

func (p *ascParser) skipSpace() {
	for p.pos < len(p.src) {
		switch c := p.src[p.pos]; c {
		case '\n':
			p.line++
			p.pos++
		case ' ', '\t', '\r', ',':
			p.pos++
		case ';':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *ascParser) readString() (string, error) {
	line := p.line
	p.pos++ // opening quote
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '"':
			p.pos++
			return sb.String(), nil
		case c == '\\' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '"':
			sb.WriteByte('"')
			p.pos += 2
			continue
		case c == '\n':
			p.line++
		}
		sb.WriteByte(c)
		p.pos++
	}
	return "", fmt.Errorf("line %d: unterminated string", line)
}

func (p *ascParser) readWord() string {
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune(" \t\r\n()<>|,;\"", rune(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func looksNumeric(w string) bool {
	return w != "" && strings.ContainsRune("0123456789+-.", rune(w[0]))
}

// =============================================================================
// Objects
// =============================================================================

type ascReader struct {
	*builder
	src string
	// images are added after all objects so that their anchor points do
	// not split the points of an enclosing object.
	images []*image
}

func isPoint(n *node) bool {
	if n.kind != kindList || len(n.items) < 4 || len(n.items) > 5 {
		return false
	}
	for _, it := range n.items[:4] {
		if it.kind != kindNumber {
			return false
		}
	}
	return len(n.items) == 4 || n.items[4].kind == kindNumber || n.items[4].kind == kindWord
}

func isNumbers(n *node) bool {
	if n.kind != kindList || len(n.items) == 0 {
		return false
	}
	for _, it := range n.items {
		if it.kind != kindNumber {
			return false
		}
	}
	return true
}

func isAttribute(n *node) bool {
	if n.kind != kindList || len(n.items) == 0 || n.items[0].kind != kindWord {
		return false
	}
	return len(n.items) == 1 || (n.items[1].kind != kindList && n.items[1].kind != kindSpine)
}

func isMarker(n *node) bool {
	return n.kind == kindList && len(n.items) > 1 && n.items[0].kind == kindWord &&
		(n.items[1].kind == kindList || n.items[1].kind == kindSpine)
}

// addObject classifies a bracketed element by its head and adds it.
func (r *ascReader) addObject(n *node, parent, negOffset int) {
	attrs := schema.Attrs{}
	tag := ""
	body := n.items
	switch {
	case n.kind == kindSpine:
		tag = "spine"
	case len(body) > 0 && body[0].kind == kindString:
		tag = "contour"
		setAttribute(attrs, "name", body[0].text)
		body = body[1:]
	case isMarker(n):
		tag = "marker"
		setMarker(attrs, body[0].text)
		body = body[1:]
	}
	r.addBody(tag, attrs, body, parent, negOffset)
}

// addBody pushes the points of one object as a line and recurses into its
// children. An object without points passes its attributes and its own
// attachment on to the parent.
func (r *ascReader) addBody(tag string, attrs schema.Attrs, body []*node, parent, negOffset int) {
	type child struct {
		n      *node
		offset int
	}
	var children []child
	first := r.points.Len()
	for _, it := range body {
		switch {
		case it.kind == kindWord:
			setAttribute(attrs, "leaf", it.text)
		case it.kind == kindString:
			if tag == "" {
				tag = "marker"
			}
			setAttribute(attrs, "name", it.text)
		case it.kind == kindNumber:
			r.warnf(it.line, "ignoring stray value %s", it.text)
		case isPoint(it):
			r.pushPoint(it.items[0].num, it.items[1].num, it.items[2].num, it.items[3].num)
		case isNumbers(it):
			r.warnf(it.line, "skipping point with %d values, want 4 or 5", len(it.items))
		case isAttribute(it):
			r.setAttr(attrs, it)
		default:
			children = append(children, child{it, r.points.Len() - first})
		}
	}

	numPoints := r.points.Len() - first
	lineID := parent
	switch {
	case numPoints > 0:
		if tag == "" {
			tag = "tree"
		}
		var typeID int
		if tag == "tree" && parent > 0 {
			typeID = int(r.lines.Row(parent)[0])
		} else {
			typeToCellPart(attrs)
			typeID = r.createType(tag, attrs)
		}
		lineID = r.pushLine(typeID, first, numPoints, parent, negOffset, attrs)
	case tag != "":
		r.warnf(lineOf(body), "skipping %s without points", tag)
	default:
		r.objects.Merge(int(r.lines.Row(parent)[1]), attrs)
	}

	for _, c := range children {
		neg := negOffset
		if numPoints > 0 {
			neg = numPoints - c.offset
		}
		r.addObject(c.n, lineID, neg)
	}
}

func lineOf(body []*node) int {
	if len(body) == 0 {
		return 0
	}
	return body[0].line
}

// setAttr handles "(Key)", "(Key value)" and "(Key v1 v2 ...)" elements. A
// lone key naming a cell part sets the part; other lone keys are flags.
func (r *ascReader) setAttr(attrs schema.Attrs, n *node) {
	key := n.items[0].text
	if len(n.items) == 1 {
		if _, ok := cellParts[strings.ToLower(key)]; ok {
			setAttribute(attrs, "cellPart", key)
		} else {
			setAttribute(attrs, key, true)
		}
		return
	}

	switch strings.ToLower(key) {
	case "imagecoords":
		values := make([]any, 0, len(n.items)-1)
		for _, it := range n.items[1:] {
			if it.kind == kindNumber {
				values = append(values, it.num)
			} else {
				values = append(values, it.text)
			}
		}
		r.images = append(r.images, parseImageCoords(values)...)
		return
	case "thumbnail":
		return
	}

	if len(n.items) == 2 {
		v := n.items[1]
		if v.kind == kindNumber {
			setAttribute(attrs, key, v.num)
		} else {
			setAttribute(attrs, key, v.text)
		}
		return
	}
	last := n.items[len(n.items)-1]
	setAttribute(attrs, key, strings.TrimSpace(r.src[n.items[1].start:last.end]))
}
