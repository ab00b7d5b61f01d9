// Package io reads and writes the JSON snapshot of a morphology tree.
//
// # Overview
//
// The snapshot is the tree's internal representation written out as is: the
// point and line stores, the custom types, the compressed properties and the
// SWC+ metadata. It loads without decomposition or canonicalization, so a
// tree survives a write/read cycle with identical line and point ids. Use it
// for caching decoded trees and for exchange with tools that understand the
// line model.
//
// # JSON Format
//
//	{
//	  "version": "0.3",
//	  "metaData": {"originalHeader": "..."},
//	  "customTypes": {"contour": {"id": 16, "name": "Pia"}},
//	  "customProperties": {"for": [{"objects": [4], "set": {"color": "#ff0000"}}]},
//	  "treePoints": {
//	    "columns": "x,y,z,r",
//	    "data": [[0, 0, 0, 0], [1.5, 2, 0, 0.5]]
//	  },
//	  "treeLines": {
//	    "columns": "objectType,startPoint,numPoints,parentLine,negOffset",
//	    "data": [[0, 0, 0, 0, 0], [3, 1, 1, 0, 0]]
//	  }
//	}
//
// Row 0 of both tables is the reserved dummy row and is always present.
// Coordinates are rounded to the requested number of decimals (3 by
// default). Root attributes other than "version" are kept under
// "swcAttrs".
//
// # Import
//
// Use [ImportJSON] to read a snapshot from a file path, [ReadJSON] to read
// from any io.Reader, or [Decoder] where a [format.Decoder] is expected.
// The stores are validated by [morph.New]; structural errors are fatal.
//
// # Export
//
// Use [ExportJSON] to write a snapshot to a file, or [WriteJSON] to write to
// any io.Writer.
//
// [format.Decoder]: github.com/matzehuels/morphkit/pkg/format.Decoder
// [morph.New]: github.com/matzehuels/morphkit/pkg/morph.New
package io
