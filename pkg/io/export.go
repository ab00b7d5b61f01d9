package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/schema"
)

// Column headers of the two stores.
const (
	PointColumns = "x,y,z,r"
	LineColumns  = "objectType,startPoint,numPoints,parentLine,negOffset"
)

// DefaultDecimals is the coordinate precision used when none is given.
const DefaultDecimals = 3

type snapshot struct {
	Version          string                 `json:"version,omitempty"`
	Attrs            map[string]string      `json:"swcAttrs,omitempty"`
	SRS              string                 `json:"srs,omitempty"`
	MetaData         map[string]any         `json:"metaData,omitempty"`
	CustomTypes      schema.CustomTypes     `json:"customTypes,omitempty"`
	CustomProperties morph.CustomProperties `json:"customProperties"`
	TreePoints       pointTable             `json:"treePoints"`
	TreeLines        lineTable              `json:"treeLines"`
}

type pointTable struct {
	Columns string      `json:"columns"`
	Data    [][]float64 `json:"data"`
}

type lineTable struct {
	Columns string     `json:"columns"`
	Data    [][]uint32 `json:"data"`
}

// WriteJSON encodes t as a snapshot and writes it to w. decimals rounds
// coordinates and radii; [morph.FullPrecision] keeps float32 precision.
// Pass [DefaultDecimals] for the usual output.
func WriteJSON(t *morph.Tree, w io.Writer, decimals int) error {
	out := snapshot{
		Version:          t.Attrs["version"],
		MetaData:         t.MetaData,
		CustomTypes:      t.CustomTypes,
		CustomProperties: t.Properties(),
		TreePoints:       pointTable{Columns: PointColumns},
		TreeLines:        lineTable{Columns: LineColumns, Data: t.Lines().Rows()},
	}
	if t.SRS != morph.DefaultSRS {
		out.SRS = t.SRS
	}
	for k, v := range t.Attrs {
		if k == "version" {
			continue
		}
		if out.Attrs == nil {
			out.Attrs = map[string]string{}
		}
		out.Attrs[k] = v
	}
	for _, row := range t.Points().Rows() {
		r := make([]float64, len(row))
		for i, v := range row {
			r[i] = morph.Round(float64(v), decimals)
		}
		out.TreePoints.Data = append(out.TreePoints.Data, r)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ExportJSON writes a snapshot of t to a JSON file at path.
// This is a convenience wrapper around [WriteJSON] for file-based output.
func ExportJSON(t *morph.Tree, path string, decimals int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteJSON(t, f, decimals); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
