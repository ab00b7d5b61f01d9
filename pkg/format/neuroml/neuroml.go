// Package neuroml writes morphology trees as NeuroML2 cell morphologies.
//
// Every point of a tree-geometry line becomes a segment whose id is the
// point id. The first segment of a line starts at the point its line
// attaches to; root lines start at their own first point, which gives them a
// zero-length first segment. Segments are grouped by type name in
// segmentGroup elements.
//
// Contours, markers and other non-tree geometry have no NeuroML
// counterpart and are left out. A tree line attached to such an object is
// written as a root.
package neuroml

import (
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/schema"
)

const (
	// Namespace is the NeuroML2 schema namespace.
	Namespace      = "http://www.neuroml.org/schema/neuroml2"
	schemaLocation = Namespace + " https://raw.githubusercontent.com/NeuroML/NeuroML2/master/Schemas/NeuroML2/NeuroML_v2beta4.xsd"

	// DefaultDecimals is the coordinate precision of the output.
	DefaultDecimals = 3
)

// Options controls [Encode].
type Options struct {
	// CellID overrides the cell id. The default is the tree name without
	// its extension.
	CellID string
	// Decimals rounds coordinates and diameters. Nil selects
	// DefaultDecimals.
	Decimals *int
}

type document struct {
	XMLName        xml.Name    `xml:"neuroml"`
	Xmlns          string      `xml:"xmlns,attr"`
	XSI            string      `xml:"xmlns:xsi,attr"`
	SchemaLocation string      `xml:"xsi:schemaLocation,attr"`
	Comment        xml.Comment `xml:",comment"`
	Cell           cell        `xml:"cell"`
}

type cell struct {
	ID         string     `xml:"id,attr"`
	Morphology morphology `xml:"morphology"`
}

type morphology struct {
	ID       string    `xml:"id,attr"`
	Segments []segment `xml:"segment"`
	Groups   []group   `xml:"segmentGroup"`
}

type segment struct {
	ID       int      `xml:"id,attr"`
	Name     string   `xml:"name,attr"`
	Parent   *parent  `xml:"parent"`
	Proximal *point3D `xml:"proximal"`
	Distal   point3D  `xml:"distal"`
}

type parent struct {
	Segment int `xml:"segment,attr"`
}

type point3D struct {
	X        float64 `xml:"x,attr"`
	Y        float64 `xml:"y,attr"`
	Z        float64 `xml:"z,attr"`
	Diameter float64 `xml:"diameter,attr"`
}

type group struct {
	ID      string   `xml:"id,attr"`
	Members []member `xml:"member"`
}

type member struct {
	Segment int `xml:"segment,attr"`
}

// Encode writes t as a NeuroML2 document.
func Encode(w io.Writer, t *morph.Tree, opts Options) error {
	doc, err := build(t, opts)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode neuroml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

func build(t *morph.Tree, opts Options) (*document, error) {
	decimals := DefaultDecimals
	if opts.Decimals != nil {
		decimals = *opts.Decimals
	}
	id := opts.CellID
	if id == "" {
		id = cellID(t.Name)
	}
	doc := &document{
		Xmlns:          Namespace,
		XSI:            "http://www.w3.org/2001/XMLSchema-instance",
		SchemaLocation: schemaLocation,
		Comment:        xml.Comment(" Exported by morphkit "),
		Cell:           cell{ID: id, Morphology: morphology{ID: id + "_morphology"}},
	}

	round := func(p morph.Point) point3D {
		return point3D{
			X:        morph.Round(p.X, decimals),
			Y:        morph.Round(p.Y, decimals),
			Z:        morph.Round(p.Z, decimals),
			Diameter: morph.Round(2*p.R, decimals),
		}
	}

	var groupOrder []string
	groups := map[string][]member{}
	for lineID := 1; lineID <= t.NumLines(); lineID++ {
		l := t.Line(lineID)
		if !isTree(t, l.Type) {
			continue
		}
		key, err := t.LineKey(lineID)
		if err != nil {
			return nil, err
		}

		parentSeg := 0
		proximal := t.Point(l.FirstPoint)
		if l.Parent > 0 && isTree(t, t.Line(l.Parent).Type) {
			parentSeg = t.ParentPoint(lineID)
			proximal = t.Point(parentSeg)
		}
		name := groupName(t, l.Type)
		if _, ok := groups[name]; !ok {
			groupOrder = append(groupOrder, name)
		}

		for p := l.FirstPoint; p <= l.LastPoint(); p++ {
			distal := round(t.Point(p))
			seg := segment{ID: p, Name: fmt.Sprintf("%s_%d", key, p-l.FirstPoint), Distal: distal}
			if parentSeg > 0 {
				seg.Parent = &parent{Segment: parentSeg}
			}
			if p == l.FirstPoint {
				prox := round(proximal)
				prox.Diameter = distal.Diameter
				seg.Proximal = &prox
			}
			doc.Cell.Morphology.Segments = append(doc.Cell.Morphology.Segments, seg)
			groups[name] = append(groups[name], member{Segment: p})
			parentSeg = p
		}
	}
	for _, name := range groupOrder {
		doc.Cell.Morphology.Groups = append(doc.Cell.Morphology.Groups, group{ID: name, Members: groups[name]})
	}
	return doc, nil
}

func isTree(t *morph.Tree, tp int) bool {
	entry, ok := t.TypeMap[tp]
	if !ok {
		return true
	}
	g := entry.String("geometry")
	return g == "" || g == "tree"
}

// groupName returns an NMTOKEN-safe group id for a type.
func groupName(t *morph.Tree, tp int) string {
	name := t.TypeMap[tp].String(schema.KeyType)
	if name == "" {
		name = fmt.Sprintf("type%d", tp)
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}

func cellID(name string) string {
	base := filepath.Base(name)
	if base == "." || base == "/" || base == "" {
		return "cell"
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
