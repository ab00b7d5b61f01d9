package topology

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/morphkit/pkg/morph"
)

// rootID is the DOT id of the virtual root node.
const rootID = "L0"

// Options configures diagram generation.
type Options struct {
	// Detailed includes type name, point count and attach offset in node
	// labels. When false, only the line name is shown.
	Detailed bool

	// MaxLines limits the number of line nodes. Zero means no limit.
	MaxLines int
}

// ToDOT converts the line hierarchy of t to Graphviz DOT format.
// The resulting DOT string can be rendered using [RenderSVG].
func ToDOT(t *morph.Tree, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.15,0.05\"];\n")
	buf.WriteString("  ranksep=0.4;\n")
	buf.WriteString("  nodesep=0.2;\n")
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "  %q [label=%q, shape=plaintext, style=\"\"];\n", rootID, rootLabel(t.Name))

	n := t.NumLines()
	if opts.MaxLines > 0 && n > opts.MaxLines {
		n = opts.MaxLines
	}
	for id := 1; id <= n; id++ {
		attrs := fmtAttrs(t, id, fmtLabel(t, id, opts.Detailed))
		fmt.Fprintf(&buf, "  %q [%s];\n", nodeID(id), strings.Join(attrs, ", "))
	}
	hidden := t.NumLines() - n
	if hidden > 0 {
		fmt.Fprintf(&buf, "  \"more\" [label=%q, style=\"rounded,dashed\"];\n", fmt.Sprintf("%d more lines", hidden))
	}

	buf.WriteString("\n")
	for id := 1; id <= n; id++ {
		l := t.Line(id)
		if l.Parent > n {
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q;\n", nodeID(l.Parent), nodeID(id))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeID(lineID int) string {
	return "L" + strconv.Itoa(lineID)
}

func rootLabel(name string) string {
	if name == "" {
		return "tree"
	}
	return filepath.Base(name)
}

func fmtLabel(t *morph.Tree, id int, detailed bool) string {
	name, err := t.LineName(id)
	if err != nil {
		name = "line " + strconv.Itoa(id)
	}
	if !detailed {
		return name
	}

	l := t.Line(id)
	parts := []string{
		fmt.Sprintf("type: %s (%d)", t.TypeName(l.Type, 0), l.Type),
		fmt.Sprintf("points: %d", l.NumPoints),
	}
	if l.NegOffset > 0 {
		parts = append(parts, fmt.Sprintf("offset: %d", l.NegOffset))
	}
	return name + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(t *morph.Tree, id int, label string) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	entry := t.TypeMap[t.Line(id).Type]
	switch entry.String("geometry") {
	case "contour", "border":
		attrs = append(attrs, "shape=ellipse", "style=filled")
	case "marker":
		attrs = append(attrs, "shape=diamond", "style=filled")
	}
	if c := entry.String("color"); strings.HasPrefix(c, "#") {
		attrs = append(attrs, fmt.Sprintf("fillcolor=%q", c))
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces the Graphviz svg tag with one whose viewBox
// starts at the origin and whose size matches the drawing.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}
