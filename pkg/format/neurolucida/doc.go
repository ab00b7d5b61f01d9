// Package neurolucida decodes the three Neurolucida tracing formats into
// morphology trees and writes trees back as Neurolucida XML.
//
// # Formats
//
//   - ASC: the nested-parenthesis text format. Contours start with a quoted
//     name, markers with a symbol name, spines are wrapped in angle
//     brackets and "|" separates the branches of a fork.
//   - XML: the mbf document with tree, contour, marker, text, filefacts and
//     images elements.
//   - DAT: the binary format, a 70-byte header followed by tagged blocks
//     with a 16-bit tag and a 32-bit declared size.
//
// Unlike SWC these formats spell out their branch structure, so the
// decoders push lines directly instead of decomposing a sample graph.
//
// # Types and properties
//
// Every object is classified by geometry (tree, contour, border, marker,
// image) and cell part, and mapped to a library type with
// [schema.MatchType]. Attributes that vary within a type, such as a
// contour's name or a marker's symbol, become part of a file-local custom
// type; the remaining attributes (color, leaf endings, resolution) are
// stored as object properties on the line's first point.
//
// # Binary block recovery
//
// DAT block sizes cannot always be trusted. After every block the reader
// compares its position with the declared end. Marker blocks overrun their
// declared size by the length of the symbol name and 0x0210 blocks by two
// bytes; both are expected and pass silently. Any other mismatch is
// reported as a warning and the cursor is moved to the declared boundary,
// unless the boundary does not start a block while the current position
// does. Blocks without a reader are skipped with a warning, and a block
// whose content is malformed is undone and skipped.
package neurolucida

import "github.com/matzehuels/morphkit/pkg/format"

// Options controls the Neurolucida decoders.
type Options struct {
	// Canonicalize orders lines depth-first from the root.
	Canonicalize bool
}

// Decoders returns the ASC, XML and DAT decoders with canonical ordering.
func Decoders() []format.Decoder {
	opts := Options{Canonicalize: true}
	return []format.Decoder{
		&ASCDecoder{Options: opts},
		&XMLDecoder{Options: opts},
		&DATDecoder{Options: opts},
	}
}
