package pipeline

import (
	"bytes"
	"context"
	"fmt"

	"github.com/matzehuels/morphkit/pkg/buildinfo"
	"github.com/matzehuels/morphkit/pkg/format/neuroml"
	"github.com/matzehuels/morphkit/pkg/format/neurolucida"
	"github.com/matzehuels/morphkit/pkg/format/swc"
	morphio "github.com/matzehuels/morphkit/pkg/io"
	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/render/topology"
)

// RenderOutputs encodes t into every output of opts without caching.
func RenderOutputs(ctx context.Context, t *morph.Tree, opts Options) (map[string][]byte, error) {
	artifacts := make(map[string][]byte, len(opts.Outputs))
	for _, output := range opts.Outputs {
		if _, done := artifacts[output]; done {
			continue
		}
		data, err := RenderOutput(ctx, t, output, opts)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", output, err)
		}
		artifacts[output] = data
	}
	return artifacts, nil
}

// RenderOutput encodes t into a single output.
func RenderOutput(ctx context.Context, t *morph.Tree, output string, opts Options) ([]byte, error) {
	if err := ValidateOutput(output); err != nil {
		return nil, err
	}
	decimals := opts.Precision()
	enc := swc.EncodeOptions{Decimals: &decimals}

	var buf bytes.Buffer
	var err error
	switch output {
	case OutputSWC:
		err = swc.Encode(&buf, t, enc)
	case OutputXWC:
		err = swc.EncodeXML(&buf, t, enc)
	case OutputJWC:
		err = swc.EncodeJWC(&buf, t, enc)
	case OutputJSON:
		err = morphio.WriteJSON(t, &buf, decimals)
	case OutputNeuroML:
		err = neuroml.Encode(&buf, t, neuroml.Options{CellID: opts.CellID, Decimals: &decimals})
	case OutputMBF:
		err = neurolucida.EncodeXML(&buf, t, neurolucida.XMLOptions{Decimals: &decimals, AppVersion: buildinfo.Version})
	case OutputDOT:
		buf.WriteString(topology.ToDOT(t, topologyOptions(opts)))
	case OutputSVG:
		return topology.RenderSVG(ctx, topology.ToDOT(t, topologyOptions(opts)))
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func topologyOptions(opts Options) topology.Options {
	return topology.Options{Detailed: opts.Detailed, MaxLines: opts.MaxLines}
}
