// Package pkg provides the core libraries for morphkit, a toolkit for reading,
// converting and querying neuron morphology reconstructions.
//
// # Overview
//
// A morphology is a tree of traced lines (soma, axon, dendrites, markers)
// stored in a point table and a line table. morphkit reads the common
// reconstruction formats into one in-memory model and writes that model back
// out in whatever format the next tool expects. The pkg directory is organized
// into four main areas:
//
//  1. [morph] - The tree model (points, lines, properties, registration)
//  2. [format] - Decoders and encoders for the file formats
//  3. [pipeline] - Orchestration (fetch → decode → canonicalize → render)
//  4. [cache], [store], [source] - Infrastructure used by the CLI and server
//
// # Architecture
//
// The typical data flow through morphkit:
//
//	local file / http(s) URL / s3://bucket/key
//	         ↓
//	    [source] package (fetch bytes, cache downloads)
//	         ↓
//	    [format] decoders (SWC, XWC, JWC, ASC, XML, DAT, streamlines)
//	         ↓
//	    [decompose] package (split point chains into lines, canonical order)
//	         ↓
//	    [morph.Tree]
//	         ↓
//	    encoders (SWC, JWC, NeuroML, Neurolucida XML, JSON) and [render/topology] (DOT, SVG)
//
// # Quick Start
//
// Convert a Neurolucida file to SWC:
//
//	import (
//	    "context"
//	    "github.com/matzehuels/morphkit/pkg/pipeline"
//	)
//
//	runner := pipeline.NewRunner(nil, nil, nil)
//	res, err := runner.Execute(context.Background(), pipeline.Options{
//	    Input:   "n1.asc",
//	    Outputs: []string{"swc"},
//	})
//	if err != nil {
//	    return err
//	}
//	swc := res.Artifacts["swc"]
//
// # Main Packages
//
// ## Model
//
// [morph] - The morphology tree: point and line tables, line types, tree
// properties and coordinate registration.
//
// [rowstore] - Column-typed row storage backing the point and line tables.
//
// [schema] - Attribute schemas for tables, with name resolution and
// registries of known columns.
//
// [decompose] - Turns parent-linked point lists into lines and puts them in
// canonical order.
//
// ## Formats
//
// [format] - Decoder and Encoder interfaces, format detection and results
// with warnings.
//
//   - [format/swc]: SWC, XWC and JWC point lists plus streamlines
//   - [format/neurolucida]: ASC, XML and DAT files, plus Neurolucida XML export
//   - [format/neuroml]: NeuroML cell export
//
// [io] - JSON snapshot import and export of whole trees.
//
// [xmldict] - XML documents as nested maps, with charset handling.
//
// [bytecursor] - Binary reader used by the DAT decoder.
//
// ## Query and Rendering
//
// [spatial] - R-tree index over line segments for nearest and range queries.
//
// [render/topology] - Line topology diagrams using Graphviz.
//
// ## Infrastructure
//
// [pipeline] - The conversion pipeline used by the CLI and the HTTP server.
// Ensures consistent behavior across all entry points.
//
// [cache] - Content-addressed caching of decoded trees, outputs and downloads
// with file, Redis and null backends.
//
// [store] - Snapshot storage with file, MongoDB and memory backends.
//
// [source] - Input resolution for local paths, HTTP and S3.
//
// [observability] - Prometheus metrics and OpenTelemetry tracing hooks.
//
// [errors] - Error codes shared by decoders and the HTTP API.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...                    # All tests
//	go test ./pkg/format/...             # Specific package
//
// [morph]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/morph
// [morph.Tree]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/morph#Tree
// [rowstore]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/rowstore
// [schema]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/schema
// [decompose]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/decompose
// [format]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/format
// [format/swc]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/format/swc
// [format/neurolucida]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/format/neurolucida
// [format/neuroml]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/format/neuroml
// [io]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/io
// [xmldict]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/xmldict
// [bytecursor]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/bytecursor
// [spatial]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/spatial
// [render/topology]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/render/topology
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/cache
// [store]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/store
// [source]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/source
// [observability]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/observability
// [errors]: https://pkg.go.dev/github.com/matzehuels/morphkit/pkg/errors
package pkg
