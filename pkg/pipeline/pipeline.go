// Package pipeline provides the conversion pipeline for morphkit.
//
// This package implements the complete fetch → decode → render pipeline that
// is used by the CLI and the HTTP API. By centralizing this logic, both entry
// points share the same defaults, caching and error codes.
//
// # Architecture
//
// The pipeline consists of three stages:
//
//  1. Fetch: Read the input from a local path, an HTTP URL or an S3 object
//  2. Decode: Detect the format and build a validated [morph.Tree]
//  3. Render: Encode the tree into the requested outputs
//
// Decoded trees are cached under a key derived from the content hash and
// the decode settings; rendered outputs are cached under the tree key plus
// the render settings.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts := pipeline.Options{
//	    Input:   "cells/n1.asc",
//	    Outputs: []string{"swc", "neuroml"},
//	}
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	swc := result.Artifacts["swc"]
//
// Run individual stages:
//
//	res, key, err := runner.Decode(ctx, data, "n1.asc", opts)
//	artifacts, err := runner.Render(ctx, res.Tree, key, opts)
package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/matzehuels/morphkit/pkg/cache"
	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/store"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultDecimals is the coordinate rounding precision of text outputs.
	DefaultDecimals = 3

	// DefaultMaxLines caps the nodes of a topology graph.
	DefaultMaxLines = 500

	// DefaultTransform is the registration method used when a target SRS
	// is requested without one.
	DefaultTransform = "affine"
)

// Output constants for rendered formats.
const (
	OutputSWC     = "swc"
	OutputXWC     = "xwc"
	OutputJWC     = "jwc"
	OutputJSON    = "json"
	OutputNeuroML = "neuroml"
	OutputMBF     = "mbf"
	OutputDOT     = "dot"
	OutputSVG     = "svg"
)

// DefaultOutput is rendered when no output is requested.
const DefaultOutput = OutputSWC

// ValidOutputs is the set of supported outputs.
var ValidOutputs = map[string]bool{
	OutputSWC:     true,
	OutputXWC:     true,
	OutputJWC:     true,
	OutputJSON:    true,
	OutputNeuroML: true,
	OutputMBF:     true,
	OutputDOT:     true,
	OutputSVG:     true,
}

// ValidFormats is the set of input formats that can be forced.
var ValidFormats = map[string]bool{
	format.SWC:         true,
	format.XWC:         true,
	format.JWC:         true,
	format.JSON:        true,
	format.Streamlines: true,
	format.ASC:         true,
	format.XML:         true,
	format.DAT:         true,
}

// ContentTypes maps outputs to their media types.
var ContentTypes = map[string]string{
	OutputSWC:     "text/plain; charset=utf-8",
	OutputXWC:     "application/xml",
	OutputJWC:     "application/json",
	OutputJSON:    "application/json",
	OutputNeuroML: "application/xml",
	OutputMBF:     "application/xml",
	OutputDOT:     "text/vnd.graphviz",
	OutputSVG:     "image/svg+xml",
}

// OutputExt returns the file extension written for output.
func OutputExt(output string) string {
	switch output {
	case OutputNeuroML:
		return ".nml"
	case OutputMBF:
		return ".xml"
	}
	return "." + output
}

// Names returns the sorted keys of a validity map.
func Names(valid map[string]bool) []string {
	out := make([]string, 0, len(valid))
	for k := range valid {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for the conversion pipeline.
// This struct supports JSON serialization for API requests.
type Options struct {
	// Input options
	Input  string `json:"input,omitempty"`  // path, http(s) URL or s3://bucket/key
	Name   string `json:"name,omitempty"`   // file name used for detection; defaults to the input's base name
	Format string `json:"format,omitempty"` // force an input format instead of detecting it

	// Decode options
	Raw       bool   `json:"raw,omitempty"`       // keep the file's line order instead of canonicalizing
	SRS       string `json:"srs,omitempty"`       // target spatial reference system
	Transform string `json:"transform,omitempty"` // registration method for SRS
	Refresh   bool   `json:"refresh,omitempty"`   // bypass cached trees and outputs

	// Render options
	Outputs  []string `json:"outputs,omitempty"`
	Decimals *int     `json:"decimals,omitempty"` // nil selects DefaultDecimals; morph.FullPrecision disables rounding
	Detailed bool     `json:"detailed,omitempty"` // topology labels with type and point counts
	MaxLines int      `json:"max_lines,omitempty"`
	CellID   string   `json:"cell_id,omitempty"` // NeuroML cell id

	// Runtime options (not serialized)
	Data []byte `json:"-"` // input bytes; skips the fetch stage when set
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Tree is the decoded morphology.
	Tree *morph.Tree

	// Format is the detected input format.
	Format string

	// Warnings lists recoverable decode issues.
	Warnings []morph.Warning

	// ContentHash is the hash of the input bytes.
	ContentHash string

	// TreeKey is the cache key of the decoded tree.
	TreeKey string

	// Artifacts contains rendered outputs keyed by output name.
	Artifacts map[string][]byte

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks which stages hit the cache.
	CacheInfo CacheInfo
}

// Summary describes the decoded tree without its geometry.
func (r *Result) Summary() store.Summary {
	return store.Summarize(r.Tree, len(r.Warnings))
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Bytes      int
	NumPoints  int
	NumLines   int
	FetchTime  time.Duration
	DecodeTime time.Duration
	RenderTime time.Duration
}

// CacheInfo tracks cache hits for each pipeline stage.
type CacheInfo struct {
	FetchHit  bool // Whether the input bytes came from cache
	DecodeHit bool // Whether the tree came from cache
	RenderHit bool // Whether all artifacts came from cache
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateOutput checks that an output is valid.
func ValidateOutput(output string) error {
	if !ValidOutputs[output] {
		return perrors.New(perrors.ErrCodeInvalidFormat, "invalid output: %q (must be one of: %s)",
			output, strings.Join(Names(ValidOutputs), ", "))
	}
	return nil
}

// ValidateOutputs checks that all outputs are valid.
func ValidateOutputs(outputs []string) error {
	for _, o := range outputs {
		if err := ValidateOutput(o); err != nil {
			return err
		}
	}
	return nil
}

// ValidateFormat checks that a forced input format is valid. The empty
// string selects detection.
func ValidateFormat(f string) error {
	if f != "" && !ValidFormats[f] {
		return perrors.New(perrors.ErrCodeUnsupportedFormat, "invalid format: %q (must be one of: %s)",
			f, strings.Join(Names(ValidFormats), ", "))
	}
	return nil
}

// =============================================================================
// Options Methods
// =============================================================================

// Validate checks option values and applies defaults. It is idempotent.
func (o *Options) Validate() error {
	if o.Input == "" && o.Data == nil {
		return perrors.New(perrors.ErrCodeInvalidInput, "input is required")
	}
	if err := o.ValidateForDecode(); err != nil {
		return err
	}
	return o.ValidateForRender()
}

// ValidateForDecode checks decode options and applies their defaults.
func (o *Options) ValidateForDecode() error {
	o.SetDecodeDefaults()
	return ValidateFormat(o.Format)
}

// SetDecodeDefaults sets default values for decoding.
func (o *Options) SetDecodeDefaults() {
	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	if o.SRS != "" && o.Transform == "" {
		o.Transform = DefaultTransform
	}
}

// SetRenderDefaults sets default values for rendering.
func (o *Options) SetRenderDefaults() {
	if len(o.Outputs) == 0 {
		o.Outputs = []string{DefaultOutput}
	}
	for i, out := range o.Outputs {
		o.Outputs[i] = strings.ToLower(strings.TrimSpace(out))
	}
	if o.Decimals == nil {
		d := DefaultDecimals
		o.Decimals = &d
	}
	if o.MaxLines == 0 {
		o.MaxLines = DefaultMaxLines
	}
}

// ValidateForRender validates and sets defaults for rendering.
func (o *Options) ValidateForRender() error {
	o.SetRenderDefaults()
	if d := *o.Decimals; d < morph.FullPrecision || d > morph.MaxDecimals {
		return perrors.New(perrors.ErrCodeInvalidInput, "invalid decimals: %d (want %d to %d)", d, morph.FullPrecision, morph.MaxDecimals)
	}
	if o.MaxLines < 0 {
		return perrors.New(perrors.ErrCodeInvalidInput, "invalid max_lines: %d", o.MaxLines)
	}
	return ValidateOutputs(o.Outputs)
}

// Precision returns the rounding precision of text outputs.
func (o *Options) Precision() int {
	if o.Decimals == nil {
		return DefaultDecimals
	}
	return *o.Decimals
}

// Canonical reports whether lines are reordered depth-first.
func (o *Options) Canonical() bool { return !o.Raw }

// TreeKeyOpts returns cache key options for the decoded tree.
func (o *Options) TreeKeyOpts(format string) cache.TreeKeyOpts {
	return cache.TreeKeyOpts{
		Format:    format,
		Canonical: o.Canonical(),
		SRS:       o.SRS,
		Transform: o.Transform,
	}
}

// ArtifactKeyOpts returns cache key options for one rendered output. Only
// the settings that affect that output enter the key.
func (o *Options) ArtifactKeyOpts(output string) cache.ArtifactKeyOpts {
	k := cache.ArtifactKeyOpts{Output: output}
	switch output {
	case OutputDOT, OutputSVG:
		k.Detailed = o.Detailed
		k.MaxLines = o.MaxLines
	case OutputNeuroML:
		k.Decimals = o.Precision()
		k.CellID = o.CellID
	default:
		k.Decimals = o.Precision()
	}
	return k
}

func (o Options) String() string {
	return fmt.Sprintf("input=%s format=%s outputs=%v", o.Input, o.Format, o.Outputs)
}
