package swc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/schema"
	"github.com/matzehuels/morphkit/pkg/xmldict"
)

// DefaultDecimals is the coordinate precision used when none is given.
const DefaultDecimals = 3

// EncodeOptions controls the SWC writers.
type EncodeOptions struct {
	// Decimals rounds coordinates and radii. Nil selects DefaultDecimals;
	// morph.FullPrecision disables rounding.
	Decimals *int
	// Include limits the output to these line ids, in order. Nil writes
	// every line.
	Include []int
}

func (o EncodeOptions) decimals() int {
	if o.Decimals == nil {
		return DefaultDecimals
	}
	return *o.Decimals
}

// Encode writes t as SWC. The SWC+ header is written as "# " comment lines
// in front of the sample rows.
func Encode(w io.Writer, t *morph.Tree, opts EncodeOptions) error {
	rows, props := t.SWCPoints(opts.decimals(), opts.Include)
	header := headerNode(t, props)

	bw := bufio.NewWriter(w)
	for _, line := range strings.Split(strings.TrimRight(string(header.Marshal()), "\n"), "\n") {
		fmt.Fprintf(bw, "# %s\n", line)
	}
	bw.WriteString("#\n")
	for _, r := range rows {
		bw.WriteString(formatRow(r, opts.decimals()))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// EncodeXML writes t as an SWC+ XML document with the rows in a swcPoints
// element.
func EncodeXML(w io.Writer, t *morph.Tree, opts EncodeOptions) error {
	rows, props := t.SWCPoints(opts.decimals(), opts.Include)
	root := headerNode(t, props)

	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = formatRow(r, opts.decimals())
	}
	root.Children = append(root.Children, &xmldict.Node{Name: "swcPoints", Text: strings.Join(lines, "\n") + "\n"})

	if _, err := io.WriteString(w, "<?xml version='1.0' encoding='UTF-8'?>\n"); err != nil {
		return err
	}
	_, err := w.Write(root.Marshal())
	return err
}

// EncodeJWC writes t as a JWC document.
func EncodeJWC(w io.Writer, t *morph.Tree, opts EncodeOptions) error {
	rows, props := t.SWCPoints(opts.decimals(), opts.Include)
	doc := jwcDocument{
		Version:          version(t),
		MetaData:         t.MetaData,
		CustomTypes:      t.CustomTypes,
		CustomProperties: props,
		SWCPoints:        make([][]float64, len(rows)),
	}
	for i, r := range rows {
		doc.SWCPoints[i] = r.Values()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func version(t *morph.Tree) string {
	if v := t.Attrs["version"]; v != "" {
		return v
	}
	return schema.Version
}

// headerNode builds the <swcPlus> element without points.
func headerNode(t *morph.Tree, props morph.CustomProperties) *xmldict.Node {
	dict := map[string]any{}
	if len(t.MetaData) > 0 {
		dict["metaData"] = t.MetaData
	}
	if len(t.CustomTypes) > 0 {
		dict["customTypes"] = genericTypes(t.CustomTypes)
	}
	if !props.Empty() {
		dict["customProperties"] = props.Document()
	}
	root := xmldict.FromDict("swcPlus", dict)

	// root attributes go first, version leading
	attrs := []xmldict.Attr{{Name: "version", Value: version(t)}}
	for k, v := range t.Attrs {
		if k != "version" {
			attrs = append(attrs, xmldict.Attr{Name: k, Value: v})
		}
	}
	slices.SortFunc(attrs[1:], func(a, b xmldict.Attr) int { return strings.Compare(a.Name, b.Name) })
	root.Attrs = append(attrs, root.Attrs...)
	return root
}

func genericTypes(ct schema.CustomTypes) map[string]any {
	out := make(map[string]any, len(ct))
	for name, entries := range ct {
		if len(entries) == 1 {
			out[name] = map[string]any(entries[0])
			continue
		}
		list := make([]any, len(entries))
		for i, e := range entries {
			list[i] = map[string]any(e)
		}
		out[name] = list
	}
	return out
}

// formatRow writes integer columns as integers and the rest with at most
// decimals digits.
func formatRow(r morph.SWCRow, decimals int) string {
	f := func(v float64) string {
		if decimals < 0 || decimals > morph.MaxDecimals {
			return strconv.FormatFloat(v, 'f', -1, 32)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join([]string{
		strconv.Itoa(r.ID),
		strconv.Itoa(r.Type),
		f(r.X), f(r.Y), f(r.Z), f(r.R),
		strconv.Itoa(r.Parent),
	}, " ")
}
