// Package xmldict converts between XML element trees and generic
// map[string]any documents.
//
// The mapping is the one used by SWC+ headers and Neurolucida XML:
//
//   - attributes become keys; a "k.json" attribute is parsed as JSON and a
//     "k.csv" attribute as a JSON array of its comma-separated values
//   - an "_.json" attribute holds an object whose keys are merged in, which
//     carries keys that are not valid XML names
//   - child elements become nested maps; repeated tags become arrays
//   - text content is stored under "_", or as a plain string when the
//     element has nothing else
//
// Element order is lost in the map form; [Node] keeps it for decoders that
// need document order.
package xmldict

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// Node is a parsed XML element.
type Node struct {
	Name     string
	Attrs    []Attr
	Children []*Node
	// Text is the concatenated character data of the element, excluding
	// whitespace-only runs.
	Text string
	// Offset is the byte offset of the start tag in the input.
	Offset int64
}

// Attr is one attribute. Prefixed names keep their prefix ("atlas:layer").
type Attr struct {
	Name  string
	Value string
}

// Parse reads the root element of an XML document. Comments, processing
// instructions and directives are skipped.
func Parse(data []byte) (*Node, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.CharsetReader = charsetReader

	var stack []*Node
	var root *Node
	for {
		offset := d.InputOffset()
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: qualified(t.Name), Offset: offset}
			for _, a := range t.Attr {
				n.Attrs = append(n.Attrs, Attr{Name: qualified(a.Name), Value: a.Value})
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			} else {
				return nil, fmt.Errorf("xml: second root element <%s> at offset %d", n.Name, offset)
			}
			stack = append(stack, n)
		case xml.EndElement:
			name := qualified(t.Name)
			if len(stack) == 0 || stack[len(stack)-1].Name != name {
				return nil, fmt.Errorf("xml: unexpected </%s> at offset %d", name, offset)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 && len(bytes.TrimSpace(t)) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("xml: no root element")
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("xml: unclosed <%s>", stack[len(stack)-1].Name)
	}
	return root, nil
}

// charsetReader decodes documents that declare a non-UTF-8 encoding, such
// as the ISO-8859-1 written by Neurolucida.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrMap returns the attributes as a map.
func (n *Node) AttrMap() map[string]string {
	out := make(map[string]string, len(n.Attrs))
	for _, a := range n.Attrs {
		out[a.Name] = a.Value
	}
	return out
}

// SetAttr sets or replaces an attribute.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// Child returns the first direct child with the given tag, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Find returns every descendant element with the given tag in document
// order, including n itself.
func (n *Node) Find(name string) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(x *Node) {
		if x.Name == name {
			out = append(out, x)
		}
		for _, c := range x.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// =============================================================================
// XML -> dict
// =============================================================================

// ToDict converts a list of elements into one dict keyed by tag name.
func ToDict(nodes []*Node) map[string]any {
	out := map[string]any{}
	for _, n := range nodes {
		add(out, n.Name, n.Value())
	}
	return out
}

// Value converts the content of n: attributes and children become a map;
// a childless, attribute-less element becomes its text.
func (n *Node) Value() any {
	if len(n.Attrs) == 0 && len(n.Children) == 0 && n.Text != "" {
		return strings.TrimSpace(n.Text)
	}
	dict := map[string]any{}
	for _, c := range n.Children {
		add(dict, c.Name, c.Value())
	}
	if t := strings.TrimSpace(n.Text); t != "" {
		dict["_"] = t
	}
	for _, a := range n.Attrs {
		switch {
		case a.Name == "_.json":
			var extra map[string]any
			if err := json.Unmarshal([]byte(a.Value), &extra); err == nil {
				for k, v := range extra {
					dict[k] = v
				}
			}
		case strings.HasSuffix(a.Name, ".json"):
			dict[strings.TrimSuffix(a.Name, ".json")] = parseJSON(a.Value)
		case strings.HasSuffix(a.Name, ".csv"):
			dict[strings.TrimSuffix(a.Name, ".csv")] = parseJSON("[" + a.Value + "]")
		default:
			dict[a.Name] = a.Value
		}
	}
	return dict
}

func parseJSON(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func add(dict map[string]any, key string, v any) {
	prev, ok := dict[key]
	if !ok {
		dict[key] = v
		return
	}
	if arr, ok := prev.([]any); ok {
		dict[key] = append(arr, v)
		return
	}
	dict[key] = []any{prev, v}
}
