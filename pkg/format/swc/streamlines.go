package swc

import (
	"encoding/json"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/rowstore"
	"github.com/matzehuels/morphkit/pkg/schema"
)

// InjectionType is the custom type id given to injection sites.
const InjectionType = 17

// StreamlinesDecoder imports streamline exports: every injection site
// becomes a single-point marker line and every streamline a root axon line
// whose radius column carries the streamline density.
type StreamlinesDecoder struct{}

func (StreamlinesDecoder) Format() string { return format.Streamlines }

func (StreamlinesDecoder) Supports(name string) bool {
	return format.Ext(name) == "streamlines.json"
}

type streamPoint struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Density float64 `json:"density"`
}

type streamlines struct {
	InjectionSites []streamPoint   `json:"injection_sites"`
	Lines          [][]streamPoint `json:"lines"`
}

func (StreamlinesDecoder) Decode(data []byte, name string) (*format.Result, error) {
	var s streamlines
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeParse, err, "JSON error in %s", name)
	}

	points := rowstore.NewGrowable[float32](morph.PointCols)
	lines := rowstore.NewGrowable[uint32](morph.LineCols)
	var warnings []morph.Warning
	for _, p := range s.InjectionSites {
		id := points.PushRow(float32(p.X), float32(p.Y), float32(p.Z), 1)
		lines.PushRow(InjectionType, uint32(id), 1, 0, 0)
	}
	for i, line := range s.Lines {
		if len(line) == 0 {
			warnings = append(warnings, morph.Warnf(0, "streamline %d has no points", i))
			continue
		}
		first := points.Len()
		for _, p := range line {
			points.PushRow(float32(p.X), float32(p.Y), float32(p.Z), float32(p.Density))
		}
		lines.PushRow(schema.TypeAxon, uint32(first), uint32(len(line)), 0, 0)
	}

	ct := schema.CustomTypes{}
	if len(s.InjectionSites) > 0 {
		ct["injection-blob"] = []schema.Attrs{{"id": InjectionType, "name": "Injection blob", "_extends": "marker"}}
	}
	t, err := morph.New(name, morph.Input{
		Points:      points.ToFixed(),
		Lines:       lines.ToFixed(),
		CustomTypes: ct,
	})
	if err != nil {
		return nil, err
	}
	return &format.Result{Tree: t, Warnings: warnings, Format: format.Streamlines}, nil
}
