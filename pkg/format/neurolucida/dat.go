package neurolucida

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matzehuels/morphkit/pkg/bytecursor"
	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/schema"
)

const (
	// datHeaderSize is the length of the fixed file header.
	datHeaderSize = 70
	// maxBlocks bounds the number of blocks read from one file.
	maxBlocks = 100000
	// blockHeaderSize covers the tag and the declared size.
	blockHeaderSize = 6
	// sampleSize is a sample block without the optional section number.
	sampleSize = blockHeaderSize + 16
)

// ErrTooManyBlocks is returned when a file exceeds the block limit.
var ErrTooManyBlocks = errors.New("too many blocks")

// DATDecoder reads Neurolucida binary (V3 DAT) files.
type DATDecoder struct {
	Options
}

// NewDATDecoder returns a DAT decoder that canonicalizes line order.
func NewDATDecoder() *DATDecoder { return &DATDecoder{Options{Canonicalize: true}} }

func (d *DATDecoder) Format() string { return format.DAT }

func (d *DATDecoder) Supports(name string) bool { return format.Ext(name) == format.DAT }

// Decode parses a DAT file. A missing header token is fatal; problems
// inside blocks are reported as warnings with byte offsets.
func (d *DATDecoder) Decode(data []byte, name string) (*format.Result, error) {
	if len(data) < datHeaderSize || string(data[1:1+len(format.DATMagic)]) != format.DATMagic {
		return nil, perrors.New(perrors.ErrCodeInvalidHeader, "%s: missing %q header", name, format.DATMagic)
	}
	r := &datReader{
		builder: newBuilder(),
		c:       bytecursor.New(data, datHeaderSize),
		roots:   map[int]bool{},
	}
	if err := r.readFile(); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeParse, err, "%s", name)
	}
	return r.result(name, format.DAT, d.Canonicalize)
}

type datReader struct {
	*builder
	c *bytecursor.Cursor
	// roots marks tree lines that still hold only their initial sample
	// when their first branch arrives.
	roots map[int]bool
	iter  int
	done  bool
}

// rollback also forgets tree roots pushed since m, so that a line reusing
// one of their ids is not mistaken for a tree's initial sample.
func (r *datReader) rollback(m mark) {
	r.builder.rollback(m)
	for id := range r.roots {
		if id >= m.lines {
			delete(r.roots, id)
		}
	}
}

func (r *datReader) readFile() error {
	attrs := schema.Attrs{}
	if r.c.Is(bytecursor.TagDescription) {
		r.c.Skip(r.c.PeekSize())
	}
	for r.c.Is(bytecursor.TagPropertyList) {
		props, err := r.readPropertyList()
		if err != nil {
			return err
		}
		for k, v := range props {
			attrs[k] = v
		}
	}
	if coords, ok := attrs["imageCoords"]; ok {
		values, _ := coords.([]any)
		for _, img := range parseImageCoords(values) {
			r.addImage(img)
		}
		delete(attrs, "imageCoords")
	}
	r.objects.Merge(0, attrs)

	_, err := r.readBlocks(r.c.Len(), 0, 0, false)
	return err
}

// readBlocks reads consecutive blocks that belong to parent. With count > 0
// exactly count blocks are read, as list blocks declare; otherwise blocks
// are read up to end. atStart attaches branches to the first point of
// parent instead of its last.
//
// The return value is the number of bytes read beyond end that the caller
// must accept, e.g. because a marker block overran its declared size.
func (r *datReader) readBlocks(end, parent, count int, atStart bool) (int, error) {
	extra := 0
	for n := 0; !r.done; n++ {
		if count > 0 {
			if n >= count {
				break
			}
		} else if r.c.Pos()+blockHeaderSize > end+extra {
			break
		}
		if r.c.Remaining() < blockHeaderSize {
			break
		}
		if r.c.PeekU32(0) == bytecursor.EndSentinel {
			// data past the sentinel belongs to other tools
			r.done = true
			break
		}
		if r.iter++; r.iter > maxBlocks {
			return extra, fmt.Errorf("%w: more than %d", ErrTooManyBlocks, maxBlocks)
		}

		start := r.c.Pos()
		tag, size := r.c.PeekTag(), r.c.PeekSize()
		if size < blockHeaderSize {
			r.warnf(start, "%s block declares %d bytes; stopping", tag, size)
			r.done = true
			break
		}
		declared := start + size

		m := r.mark()
		known, err := r.readBlock(tag, declared, parent, atStart)
		if err == nil && r.done {
			// a nested block already hit the end of the data
			break
		}
		if cerr := r.c.Err(); cerr != nil {
			err = cerr
		}
		if err != nil {
			r.rollback(m)
			if errors.Is(err, bytecursor.ErrShortBuffer) {
				r.warnf(start, "%s block: %v", tag, err)
				r.done = true
				break
			}
			r.warnf(start, "skipping %s block: %v", tag, err)
			r.c.Seek(declared)
			continue
		}

		got := r.c.Pos() - declared
		if got != known {
			r.warnf(start, "%s block declares %d bytes but %d were read", tag, size, size+got)
			if r.c.ValidTagAt(declared) || !r.c.ValidTagAt(r.c.Pos()) {
				r.c.Seek(declared)
			}
			got = r.c.Pos() - declared
		}
		extra += got
	}
	return extra, nil
}

// readBlock dispatches on tag. It returns the number of bytes the block is
// known to overrun its declared end.
func (r *datReader) readBlock(tag bytecursor.Tag, end, parent int, atStart bool) (int, error) {
	switch tag {
	case bytecursor.TagContour:
		r.c.Skip(blockHeaderSize)
		return r.readContour(end, parent)
	case bytecursor.TagTree:
		r.c.Skip(blockHeaderSize)
		return r.readTree(end, parent)
	case bytecursor.TagBranch, bytecursor.TagSubtree:
		r.c.Skip(blockHeaderSize)
		return r.readBranch(end, parent, atStart)
	case bytecursor.TagMarker:
		r.c.Skip(blockHeaderSize)
		return r.readMarker(end, parent)
	case bytecursor.TagSpine:
		r.c.Skip(blockHeaderSize)
		return 0, r.readSpine(end, parent)
	case bytecursor.TagText:
		r.c.Skip(blockHeaderSize)
		return 0, r.readText(end, parent)
	case bytecursor.TagMarkerList, bytecursor.TagSpineList:
		return r.readList(end, parent, atStart)
	case bytecursor.Tag0210:
		// declares two bytes less than it holds
		r.c.Seek(end)
		r.c.ReadU16()
		return 2, nil
	case bytecursor.TagString, bytecursor.TagSample, bytecursor.TagSampleList,
		bytecursor.TagProperty, bytecursor.TagPropertyList, bytecursor.TagDescription,
		bytecursor.TagThumbnail, bytecursor.TagImageData, bytecursor.TagScalebar:
		// carries no objects
		r.c.Seek(end)
		return 0, nil
	default:
		r.warnf(r.c.Pos(), "no reader for %s block; skipping %d bytes", tag, end-r.c.Pos())
		r.c.Seek(end)
		return 0, nil
	}
}

func (r *datReader) readList(end, parent int, atStart bool) (int, error) {
	r.c.Skip(blockHeaderSize)
	n := int(r.c.ReadU16())
	if n == 0 {
		return 0, nil
	}
	return r.readBlocks(end, parent, n, atStart)
}

// =============================================================================
// Objects
// =============================================================================

func (r *datReader) readContour(end, parent int) (int, error) {
	name, err := r.readString()
	if err != nil {
		return 0, err
	}
	attrs := schema.Attrs{}
	setAttribute(attrs, "name", name)
	setAttribute(attrs, "closed", r.c.ReadU16() == 1)
	setAttribute(attrs, "color", r.readRGB())
	setAttribute(attrs, "alpha", int(r.c.ReadU8()))
	r.c.ReadU16()
	if err := r.mergeProperties(attrs); err != nil {
		return 0, err
	}
	typeToCellPart(attrs)
	typeID := r.createType("contour", attrs)
	first, n, err := r.readSampleList()
	if err != nil {
		return 0, err
	}
	lineID := r.pushLine(typeID, first, n, parent, 0, attrs)

	extra := 0
	if r.c.Pos() < end && r.c.Is(bytecursor.TagMarkerList) {
		listEnd := r.c.Pos() + r.c.PeekSize()
		if extra, err = r.readList(listEnd, lineID, false); err != nil {
			return 0, err
		}
	}
	return extra, nil
}

func (r *datReader) readTree(end, parent int) (int, error) {
	attrs := schema.Attrs{}
	if part, ok := treeParts[r.c.ReadU16()]; ok {
		setAttribute(attrs, "cellPart", part)
	}
	setAttribute(attrs, "color", r.readRGB())
	r.c.Skip(3)
	if err := r.mergeProperties(attrs); err != nil {
		return 0, err
	}
	typeID := r.createType("tree", attrs)
	if !r.c.Is(bytecursor.TagSample) {
		return 0, fmt.Errorf("tree without initial sample, found %s", r.c.PeekTag())
	}
	p, err := r.readSample()
	if err != nil {
		return 0, err
	}
	first := r.pushPoint(p[0], p[1], p[2], p[3])
	lineID := r.pushLine(typeID, first, 1, parent, 0, attrs)
	r.roots[lineID] = true
	return r.readBlocks(end, lineID, 0, true)
}

// readBranch reads a branch and its sub-branches. The first branch of a
// tree continues the tree's initial sample instead of starting a new line.
func (r *datReader) readBranch(end, parent int, atStart bool) (int, error) {
	attrs := schema.Attrs{}
	if leaf, ok := leafTypes[r.c.ReadU16()]; ok {
		setAttribute(attrs, "leaf", leaf)
	}
	r.c.ReadU16() // number of sub-branches, implied by the blocks
	if err := r.mergeProperties(attrs); err != nil {
		return 0, err
	}

	lineID := parent
	if r.c.Is(bytecursor.TagSampleList) {
		first, n, err := r.readSampleList()
		if err != nil {
			return 0, err
		}
		attachStart := atStart
		atStart = false
		switch {
		case parent == 0:
			r.warnf(r.c.Pos(), "branch outside a tree")
			lineID = r.pushLine(r.createType("tree", attrs), first, n, 0, 0, attrs)
		case r.roots[parent] && r.numPoints(parent) == 1 && int(r.lines.Row(parent)[1])+1 == first:
			r.extend(parent, n)
			r.objects.Merge(int(r.lines.Row(parent)[1]), attrs)
		default:
			neg := 0
			if attachStart {
				neg = r.numPoints(parent) - 1
			}
			lineID = r.pushLine(int(r.lines.Row(parent)[0]), first, n, parent, neg, attrs)
		}
	}
	return r.readBlocks(end, lineID, 0, atStart)
}

// readMarker returns how far the block overruns its declared size, which
// Neurolucida computes without the symbol name.
func (r *datReader) readMarker(end, parent int) (int, error) {
	symbol, err := r.readString()
	if err != nil {
		return 0, err
	}
	attrs := schema.Attrs{}
	setMarker(attrs, symbol)
	setAttribute(attrs, "color", r.readRGB())
	setAttribute(attrs, "alpha", int(r.c.ReadU8()))
	if err := r.mergeProperties(attrs); err != nil {
		return 0, err
	}
	first, n, err := r.readSampleList()
	if err != nil {
		return 0, err
	}
	typeID := r.createType("marker", attrs)
	r.pushLine(typeID, first, n, parent, 0, attrs)
	return r.c.Pos() - end, nil
}

func (r *datReader) readSpine(end, parent int) error {
	attrs := schema.Attrs{}
	setAttribute(attrs, "color", r.readRGB())
	r.c.ReadU8()  // alpha
	r.c.ReadU16() // always 1
	if err := r.mergeProperties(attrs); err != nil {
		return err
	}
	offset := int(r.c.ReadU16())
	first := r.points.Len()
	for r.c.Pos() < end && r.c.Is(bytecursor.TagSample) {
		p, err := r.readSample()
		if err != nil {
			return err
		}
		r.pushPoint(p[0], p[1], p[2], p[3])
	}
	typeID := r.createType("spine", attrs)
	r.pushLine(typeID, first, r.points.Len()-first, parent, r.numPoints(parent)-offset, attrs)
	return nil
}

func (r *datReader) readText(end, parent int) error {
	text, err := r.readString()
	if err != nil {
		return err
	}
	attrs := schema.Attrs{}
	setAttribute(attrs, "text", text)
	setAttribute(attrs, "color", r.readRGB())
	r.c.ReadU8()
	if ok, err := r.c.AssertType(bytecursor.TagSample, true); !ok {
		return err
	}
	p, err := r.readSample()
	if err != nil {
		return err
	}
	first := r.pushPoint(p[0], p[1], p[2], p[3])
	r.c.ReadU16()
	if err := r.mergeProperties(attrs); err != nil {
		return err
	}
	typeID := r.createType("text", attrs)
	if r.c.Pos() < end {
		r.c.Seek(end)
	}
	r.pushLine(typeID, first, 1, parent, 0, attrs)
	return nil
}

// =============================================================================
// Values
// =============================================================================

// readString reads a string block. Text is decoded from Windows-1252 and
// trailing NUL bytes are dropped.
func (r *datReader) readString() (string, error) {
	if ok, err := r.c.AssertType(bytecursor.TagString, true); !ok {
		return "", err
	}
	r.c.Skip(2)
	size := int(r.c.ReadU32())
	if size < blockHeaderSize {
		return "", fmt.Errorf("string block of %d bytes", size)
	}
	b := r.c.ReadBytes(size - blockHeaderSize)
	return strings.TrimRight(decodeString(b), "\x00"), nil
}

func (r *datReader) readRGB() string {
	red, green, blue := r.c.ReadU8(), r.c.ReadU8(), r.c.ReadU8()
	return hexColor(red, green, blue)
}

// readSample returns x, y, z and the diameter of a sample block.
func (r *datReader) readSample() ([4]float64, error) {
	var p [4]float64
	start := r.c.Pos()
	if ok, err := r.c.AssertType(bytecursor.TagSample, true); !ok {
		return p, err
	}
	r.c.Skip(2)
	size := int(r.c.ReadU32())
	if size < sampleSize {
		return p, fmt.Errorf("sample block of %d bytes", size)
	}
	for i := range p {
		p[i] = float64(r.c.ReadF32())
	}
	// the section number, if present, is not kept
	r.c.Seek(start + size)
	return p, nil
}

// readSampleList pushes the samples of a sample list block and returns the
// first point and the number of points.
func (r *datReader) readSampleList() (first, n int, err error) {
	start := r.c.Pos()
	if ok, err := r.c.AssertType(bytecursor.TagSampleList, true); !ok {
		return 0, 0, err
	}
	r.c.Skip(2)
	end := start + int(r.c.ReadU32())
	declared := int(r.c.ReadU16())
	first = r.points.Len()
	for r.c.Pos() < end && r.c.Err() == nil {
		p, err := r.readSample()
		if err != nil {
			return 0, 0, err
		}
		r.pushPoint(p[0], p[1], p[2], p[3])
	}
	n = r.points.Len() - first
	if n != declared {
		r.warnf(start, "sample list declares %d samples, found %d", declared, n)
	}
	return first, n, nil
}

// mergeProperties reads an optional property list into attrs.
func (r *datReader) mergeProperties(attrs schema.Attrs) error {
	if !r.c.Is(bytecursor.TagPropertyList) {
		return nil
	}
	props, err := r.readPropertyList()
	if err != nil {
		return err
	}
	for k, v := range props {
		attrs[k] = v
	}
	return nil
}

func (r *datReader) readPropertyList() (schema.Attrs, error) {
	start := r.c.Pos()
	r.c.Skip(2)
	end := start + int(r.c.ReadU32())
	declared := int(r.c.ReadU16())
	props := schema.Attrs{}
	n := 0
	for r.c.Pos() < end && r.c.Err() == nil {
		if !r.c.Is(bytecursor.TagProperty) {
			r.warnf(r.c.Pos(), "invalid property in property list, found %s", r.c.PeekTag())
			r.c.Seek(end)
			break
		}
		k, v, err := r.readProperty()
		if err != nil {
			return nil, err
		}
		setAttribute(props, k, v)
		n++
	}
	if n != declared {
		r.warnf(start, "property list declares %d properties, found %d", declared, n)
	}
	return props, nil
}

// readProperty reads a key and its values. A property without values is a
// flag; several values form a list.
func (r *datReader) readProperty() (string, any, error) {
	start := r.c.Pos()
	r.c.Skip(2)
	end := start + int(r.c.ReadU32())
	key, err := r.readString()
	if err != nil {
		return "", nil, err
	}
	if r.c.ReadU16() == 0 {
		r.c.Seek(end)
		return key, true, nil
	}
	var values []any
loop:
	for r.c.Pos() < end && r.c.Err() == nil {
		switch dt := r.c.ReadU16(); dt {
		case 0:
			values = append(values, float64(r.c.ReadF32()))
		case 1, 2:
			s, err := r.readString()
			if err != nil {
				return "", nil, err
			}
			values = append(values, s)
		case 3:
			values = append(values, r.readRGB())
			r.c.ReadU8() // alpha
		default:
			r.warnf(r.c.Pos()-2, "property %q has unknown value type %d", key, dt)
			break loop
		}
	}
	if r.c.Pos() != end {
		r.warnf(start, "property %q: %d bytes left unread", key, end-r.c.Pos())
		r.c.Seek(end)
	}
	if len(values) == 1 {
		return key, values[0], nil
	}
	return key, values, nil
}
