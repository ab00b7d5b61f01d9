package io

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/rowstore"
)

// ReadJSON decodes a snapshot from r into a tree named name.
//
// The tables must carry the dummy row 0 and exactly four point columns and
// five line columns. The stores are taken as they are: no decomposition or
// reordering happens, so line and point ids match the writer's.
//
// ReadJSON returns an error if:
//   - The JSON is malformed
//   - A table row has the wrong number of columns
//   - The stores violate the tree invariants (see [morph.New])
//
// ReadJSON does not close r.
func ReadJSON(r io.Reader, name string) (*morph.Tree, error) {
	var data snapshot
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeParse, err, "JSON error in %s", name)
	}

	pointRows := make([][]float32, len(data.TreePoints.Data))
	for i, row := range data.TreePoints.Data {
		pointRows[i] = make([]float32, len(row))
		for j, v := range row {
			pointRows[i][j] = float32(v)
		}
	}
	points, err := rowstore.FromRows(nonEmpty(pointRows, morph.PointCols), morph.PointCols)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidFormat, err, "%s: treePoints", name)
	}
	lines, err := rowstore.FromRows(nonEmpty(data.TreeLines.Data, morph.LineCols), morph.LineCols)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInvalidFormat, err, "%s: treeLines", name)
	}

	attrs := map[string]string{}
	for k, v := range data.Attrs {
		attrs[k] = v
	}
	if data.Version != "" {
		attrs["version"] = data.Version
	}
	return morph.New(name, morph.Input{
		Points:      points,
		Lines:       lines,
		CustomTypes: data.CustomTypes,
		Properties:  data.CustomProperties,
		MetaData:    data.MetaData,
		Attrs:       attrs,
		SRS:         data.SRS,
	})
}

// nonEmpty supplies the dummy row 0 for a table written without rows.
func nonEmpty[T float32 | uint32](rows [][]T, cols int) [][]T {
	if len(rows) == 0 {
		return [][]T{make([]T, cols)}
	}
	return rows
}

// ImportJSON reads a snapshot file at path. The tree is named after the
// file's base name.
func ImportJSON(path string) (*morph.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeFileNotFound, err, "open %s", path)
	}
	defer f.Close()
	return ReadJSON(f, filepath.Base(path))
}

// Decoder reads snapshots through the [format.Decoder] interface.
type Decoder struct{}

// NewDecoder returns a snapshot decoder.
func NewDecoder() *Decoder { return &Decoder{} }

func (*Decoder) Format() string { return format.JSON }

// Supports matches ".json" files except streamline exports.
func (*Decoder) Supports(name string) bool { return format.Ext(name) == format.JSON }

func (*Decoder) Decode(data []byte, name string) (*format.Result, error) {
	t, err := ReadJSON(bytes.NewReader(data), name)
	if err != nil {
		return nil, err
	}
	return &format.Result{Tree: t, Format: format.JSON}, nil
}
