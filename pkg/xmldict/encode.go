package xmldict

import (
	"bytes"
	"encoding/json"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.:-]*$`)

// =============================================================================
// dict -> XML
// =============================================================================

// FromDict builds an element named name from a generic document. The
// most compact notation is chosen per key:
//
//   - scalars become attributes (null and booleans as "k.json")
//   - arrays of numbers become "k.csv" attributes
//   - arrays of maps become repeated child elements
//   - other arrays become "k.json" attributes
//   - maps become child elements
//   - "_" holds text content
//
// Keys that are not valid XML names are collected into one "_.json"
// attribute. Keys are emitted in sorted order.
func FromDict(name string, dict map[string]any) *Node {
	n := &Node{Name: name}
	invalid := map[string]any{}
	for _, k := range slices.Sorted(maps.Keys(dict)) {
		v := dict[k]
		key := strings.TrimSpace(k)
		if key == "_" {
			if s, ok := scalarText(v); ok {
				n.Text = s
				continue
			}
		}
		if !validName.MatchString(key) || strings.HasSuffix(key, ".json") || strings.HasSuffix(key, ".csv") {
			invalid[k] = v
			continue
		}
		switch x := v.(type) {
		case map[string]any:
			n.Children = append(n.Children, FromDict(key, x))
		case []any:
			switch {
			case len(x) > 0 && allNumbers(x):
				parts := make([]string, len(x))
				for i, e := range x {
					parts[i], _ = scalarText(e)
				}
				n.SetAttr(key+".csv", strings.Join(parts, ","))
			case len(x) > 0 && allMaps(x):
				for _, e := range x {
					n.Children = append(n.Children, FromDict(key, e.(map[string]any)))
				}
			default:
				n.SetAttr(key+".json", mustJSON(x))
			}
		default:
			if s, ok := scalarText(v); ok && isText(v) {
				n.SetAttr(key, s)
			} else {
				n.SetAttr(key+".json", mustJSON(v))
			}
		}
	}
	if len(invalid) > 0 {
		n.SetAttr("_.json", mustJSON(invalid))
	}
	return n
}

// isText reports whether v round-trips through a plain attribute.
func isText(v any) bool {
	switch v.(type) {
	case string, float64, float32, int, int32, int64, uint32, uint64, json.Number:
		return true
	}
	return false
}

func scalarText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}

func allNumbers(a []any) bool {
	for _, v := range a {
		if _, ok := v.(string); ok || !isText(v) {
			return false
		}
	}
	return true
}

func allMaps(a []any) bool {
	for _, v := range a {
		if _, ok := v.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// =============================================================================
// Serialization
// =============================================================================

var attrEscaper = strings.NewReplacer("&", "&amp;", "'", "&apos;", "<", "&lt;", ">", "&gt;", "\n", "&#10;", "\t", "&#9;")
var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Marshal serializes n with two-space indentation. Attribute values are
// single-quoted so embedded JSON stays readable.
func (n *Node) Marshal() []byte {
	var buf bytes.Buffer
	n.write(&buf, 0)
	return buf.Bytes()
}

func (n *Node) write(buf *bytes.Buffer, depth int) {
	indent := strings.Repeat("  ", depth)
	buf.WriteString(indent)
	buf.WriteByte('<')
	buf.WriteString(n.Name)
	for _, a := range n.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString("='")
		buf.WriteString(attrEscaper.Replace(a.Value))
		buf.WriteByte('\'')
	}
	switch {
	case len(n.Children) == 0 && n.Text == "":
		buf.WriteString("/>\n")
	case len(n.Children) == 0 && !strings.Contains(n.Text, "\n"):
		buf.WriteByte('>')
		buf.WriteString(textEscaper.Replace(n.Text))
		buf.WriteString("</" + n.Name + ">\n")
	default:
		buf.WriteString(">\n")
		if n.Text != "" {
			for _, line := range strings.Split(strings.TrimRight(n.Text, "\n"), "\n") {
				buf.WriteString(indent + "  " + textEscaper.Replace(line) + "\n")
			}
		}
		for _, c := range n.Children {
			c.write(buf, depth+1)
		}
		buf.WriteString(indent + "</" + n.Name + ">\n")
	}
}
