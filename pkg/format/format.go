// Package format defines the decoder interface shared by all morphology
// input formats and detects which decoder handles a file.
//
// Decoders live in subpackages (swc, neurolucida) and in pkg/io for the
// JSON snapshot. Each turns a complete in-memory file into a validated
// [morph.Tree] plus the recoverable issues found on the way.
package format

import (
	"bytes"
	"path/filepath"
	"strings"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/morph"
)

// Format names.
const (
	SWC         = "swc"
	XWC         = "xwc"
	JWC         = "jwc"
	JSON        = "json"
	Streamlines = "streamlines"
	ASC         = "asc"
	XML         = "xml"
	DAT         = "dat"
)

// Decoder reads one input format.
type Decoder interface {
	// Decode parses a complete file. name is used for extension-dependent
	// behavior and in messages.
	Decode(data []byte, name string) (*Result, error)
	// Supports reports whether the decoder handles the given file name.
	Supports(name string) bool
	// Format returns the format identifier, e.g. "swc".
	Format() string
}

// Result is a decoded tree with its warnings.
type Result struct {
	Tree     *morph.Tree
	Warnings []morph.Warning
	Format   string
}

// Ext returns the lower-case extension of name without the dot. Compound
// extensions such as ".streamlines.json" are kept whole.
func Ext(name string) string {
	base := strings.ToLower(filepath.Base(name))
	if strings.HasSuffix(base, ".streamlines.json") {
		return "streamlines.json"
	}
	return strings.TrimPrefix(filepath.Ext(base), ".")
}

// Detect returns the first decoder that supports name.
func Detect(name string, decoders ...Decoder) (Decoder, error) {
	base := filepath.Base(name)
	for _, d := range decoders {
		if d.Supports(base) {
			return d, nil
		}
	}
	return nil, perrors.New(perrors.ErrCodeUnsupportedFormat, "unsupported file: %s", base)
}

// ByName returns the decoder for a format identifier.
func ByName(format string, decoders ...Decoder) (Decoder, error) {
	for _, d := range decoders {
		if d.Format() == format {
			return d, nil
		}
	}
	return nil, perrors.New(perrors.ErrCodeUnsupportedFormat, "unknown format: %s", format)
}

// DATMagic is the token at offset 1 of a Neurolucida binary file.
const DATMagic = "V3 DAT file"

// Sniff guesses the format from file content. It returns "" when nothing
// matches; plain text defaults to SWC.
func Sniff(data []byte) string {
	if len(data) >= 1+len(DATMagic) && string(data[1:1+len(DATMagic)]) == DATMagic {
		return DAT
	}
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	trimmed := bytes.TrimSpace(head)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '{':
		switch {
		case bytes.Contains(head, []byte(`"treePoints"`)):
			return JSON
		case bytes.Contains(head, []byte(`"injection_sites"`)):
			return Streamlines
		default:
			return JWC
		}
	case '<':
		switch {
		case bytes.Contains(head, []byte("<mbf")):
			return XML
		case bytes.Contains(head, []byte("<swcPlus")):
			return XWC
		}
		return ""
	}
	for _, line := range bytes.Split(head, []byte("\n")) {
		line = bytes.TrimSpace(line)
		switch {
		case len(line) == 0, line[0] == '#':
		case line[0] == ';':
			return ASC
		case line[0] == '(':
			return ASC
		default:
			return SWC
		}
	}
	return SWC
}

// ExtFor returns a file extension that decoders recognize for format.
func ExtFor(format string) string {
	switch format {
	case Streamlines:
		return ".streamlines.json"
	case "":
		return ""
	}
	return "." + format
}
