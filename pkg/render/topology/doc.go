// Package topology renders the line hierarchy of a morphology as a
// node-link diagram.
//
// # Overview
//
// Every line of a [morph.Tree] becomes one node and every parent link one
// edge. The diagram shows how lines branch and what each line is (its name,
// type and point count), not where it lies in space. A virtual root node
// named after the file collects the top-level lines.
//
// # Usage
//
// Convert a tree to DOT, then render to SVG:
//
//	dot := topology.ToDOT(tree, topology.Options{})
//	svg, err := topology.RenderSVG(ctx, dot)
//
// # Options
//
//   - Detailed: node labels add the type name, point count and attach
//     offset of each line.
//   - MaxLines: lines beyond this id are collapsed into a single summary
//     node so very large reconstructions stay readable.
//
// # Node Styles
//
// Tree lines are drawn as rounded boxes. Contours and borders are ellipses,
// markers are diamonds. Fill colors come from the type's "color" attribute
// when the type library defines one.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering.
package topology
