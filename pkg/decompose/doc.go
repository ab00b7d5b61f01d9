// Package decompose turns a parent-pointer sample list into non-branching
// lines.
//
// # Overview
//
// SWC files describe a neuron as samples, each naming its parent sample. The
// morphology model stores the same tree as lines: maximal runs of same-type
// points without forks. [Decompose] converts the first into the second in
// four steps:
//
//  1. Validate and compact: malformed rows are skipped, sample ids are mapped
//     to dense point indices and unresolved parents become roots.
//  2. Fork classification: a point with two or more same-type children is a
//     fork. The synthetic root (point 0) is always a fork.
//  3. Line extraction: every point whose parent is a fork, or whose type
//     differs from its parent's, starts a line that follows the single-child
//     chain to its end.
//  4. Parent resolution: each line links to the line owning its attachment
//     point, with negOffset counted back from that line's last point.
//
// Points are always laid out so that each line owns a contiguous range.
//
// # Canonical Order
//
// With [Options.Canonicalize], lines are ordered depth-first from the root,
// visiting children in the order they were extracted (parse order). This is
// the same as sorting lines by the list of their ancestor line ids. The
// ordering is idempotent: decomposing the SWC export of a canonical tree
// yields the identity permutation. [Canonicalize] applies the same ordering
// to stores that were built elsewhere.
//
// # Recoverable Input
//
// Decompose never fails. Issues are returned as warnings in the [Result]:
//
//   - rows with fewer than 7 values are skipped
//   - a negative sample id stops reading the remaining rows
//   - a sample naming itself or an unknown sample as parent becomes a root
//   - duplicate sample ids keep the first occurrence
//   - samples whose ancestry loops back on itself are dropped with all
//     their descendants
package decompose
