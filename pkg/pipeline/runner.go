package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/matzehuels/morphkit/pkg/cache"
	"github.com/matzehuels/morphkit/pkg/format"
	morphio "github.com/matzehuels/morphkit/pkg/io"
	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/observability"
	"github.com/matzehuels/morphkit/pkg/source"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API use this to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache, source and logger - it
// doesn't store pipeline results. Multiple goroutines can safely use the
// same Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Source *source.Resolver
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
// The runner reads local files until Source is replaced.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Source: source.NewResolver(),
		Logger: logger,
	}
}

// treeEntry is the cached form of a decoded tree.
type treeEntry struct {
	Format   string          `json:"format"`
	Warnings []morph.Warning `json:"warnings,omitempty"`
	Tree     json.RawMessage `json:"tree"`
}

// Execute runs the complete fetch → decode → render pipeline with caching.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	ctx, span := observability.StartSpan(ctx, "pipeline.Execute",
		attribute.String("input", opts.Input),
		attribute.StringSlice("outputs", opts.Outputs))
	result, err := r.execute(ctx, opts)
	observability.EndSpan(span, err)
	return result, err
}

func (r *Runner) execute(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{}

	// Stage 1: Fetch
	data, name := opts.Data, opts.Name
	if data == nil {
		fetchStart := time.Now()
		blob, err := r.Source.Fetch(ctx, opts.Input)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		data = blob.Data
		if name == "" {
			name = blob.Name
		}
		result.Stats.FetchTime = time.Since(fetchStart)
		result.CacheInfo.FetchHit = blob.Cached
		r.Logger.Debug("fetched input", "ref", blob.Ref, "bytes", len(data), "cached", blob.Cached)
	}
	if name == "" && opts.Input != "" {
		name = filepath.Base(opts.Input)
	}
	result.Stats.Bytes = len(data)

	// Stage 2: Decode
	decodeStart := time.Now()
	res, treeKey, decodeHit, err := r.DecodeWithCacheInfo(ctx, data, name, opts)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	result.Tree = res.Tree
	result.Format = res.Format
	result.Warnings = res.Warnings
	result.ContentHash = cache.ContentHash(data)
	result.TreeKey = treeKey
	result.Stats.DecodeTime = time.Since(decodeStart)
	result.Stats.NumPoints = res.Tree.NumPoints()
	result.Stats.NumLines = res.Tree.NumLines()
	result.CacheInfo.DecodeHit = decodeHit

	r.Logger.Info("decoded morphology",
		"format", res.Format,
		"content", cache.ShortHash(result.ContentHash),
		"lines", result.Stats.NumLines,
		"points", result.Stats.NumPoints,
		"warnings", len(res.Warnings),
		"duration", result.Stats.DecodeTime)

	// Stage 3: Render
	renderStart := time.Now()
	artifacts, renderHit, err := r.RenderWithCacheInfo(ctx, res.Tree, treeKey, opts)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	result.Artifacts = artifacts
	result.Stats.RenderTime = time.Since(renderStart)
	result.CacheInfo.RenderHit = renderHit

	r.Logger.Info("rendered outputs",
		"outputs", opts.Outputs,
		"duration", result.Stats.RenderTime)

	return result, nil
}

// DecodeWithCacheInfo decodes data with caching. It returns the tree's
// cache key, which keys the rendered outputs, and whether the tree came
// from cache.
func (r *Runner) DecodeWithCacheInfo(ctx context.Context, data []byte, name string, opts Options) (*format.Result, string, bool, error) {
	if err := opts.ValidateForDecode(); err != nil {
		return nil, "", false, err
	}

	dec, name, err := Resolve(data, name, opts.Format, Decoders(opts.Canonical()))
	if err != nil {
		return nil, "", false, err
	}
	kind := detectedFormat(name)
	key := r.Keyer.TreeKey(cache.ContentHash(data), opts.TreeKeyOpts(kind))

	// Try cache first (unless refresh requested)
	if !opts.Refresh {
		if res, ok := r.cachedTree(ctx, key, name); ok {
			observability.Cache().OnCacheHit(ctx, "tree")
			return res, key, true, nil
		}
		observability.Cache().OnCacheMiss(ctx, "tree")
	}

	res, err := r.decode(ctx, dec, data, name, kind, opts)
	if err != nil {
		return nil, "", false, err
	}

	// Cache the result at full precision
	var buf bytes.Buffer
	if err := morphio.WriteJSON(res.Tree, &buf, morph.FullPrecision); err == nil {
		entry := treeEntry{Format: res.Format, Warnings: res.Warnings, Tree: buf.Bytes()}
		if err := cache.SetJSON(ctx, r.Cache, key, entry, cache.TTLTree); err == nil {
			observability.Cache().OnCacheSet(ctx, "tree", buf.Len())
		}
	}

	return res, key, false, nil
}

// Decode is a convenience wrapper that calls DecodeWithCacheInfo and discards the cache hit info.
func (r *Runner) Decode(ctx context.Context, data []byte, name string, opts Options) (*format.Result, string, error) {
	res, key, _, err := r.DecodeWithCacheInfo(ctx, data, name, opts)
	return res, key, err
}

func (r *Runner) decode(ctx context.Context, dec format.Decoder, data []byte, name, kind string, opts Options) (*format.Result, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.Decode",
		attribute.String("format", kind),
		attribute.Int("bytes", len(data)))
	hooks := observability.Pipeline()
	hooks.OnDecodeStart(ctx, kind, name)
	start := time.Now()

	res, err := dec.Decode(data, name)
	if err == nil && opts.SRS != "" && opts.SRS != res.Tree.SRS {
		err = res.Tree.ApplyTransformation(opts.Transform, opts.SRS)
	}

	lines := 0
	if err == nil {
		lines = res.Tree.NumLines()
		span.SetAttributes(attribute.Int("lines", lines), attribute.Int("warnings", len(res.Warnings)))
	}
	hooks.OnDecodeComplete(ctx, kind, name, lines, time.Since(start), err)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		r.Logger.Debug("decode warning", "file", name, "offset", w.Offset, "message", w.Message)
	}
	return res, nil
}

func (r *Runner) cachedTree(ctx context.Context, key, name string) (*format.Result, bool) {
	var entry treeEntry
	if err := cache.GetJSON(ctx, r.Cache, key, &entry); err != nil {
		return nil, false
	}
	t, err := morphio.ReadJSON(bytes.NewReader(entry.Tree), name)
	if err != nil {
		_ = r.Cache.Delete(ctx, key)
		return nil, false
	}
	return &format.Result{Tree: t, Warnings: entry.Warnings, Format: entry.Format}, true
}

// RenderWithCacheInfo generates artifacts with caching and returns cache hit info.
// treeKey identifies the tree; an empty key disables caching.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, t *morph.Tree, treeKey string, opts Options) (map[string][]byte, bool, error) {
	if err := opts.ValidateForRender(); err != nil {
		return nil, false, err
	}

	// Try to get all outputs from cache
	artifacts := make(map[string][]byte, len(opts.Outputs))
	var missing []string
	for _, output := range opts.Outputs {
		if _, seen := artifacts[output]; seen {
			continue
		}
		if treeKey != "" && !opts.Refresh {
			key := r.Keyer.ArtifactKey(treeKey, opts.ArtifactKeyOpts(output))
			if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
				observability.Cache().OnCacheHit(ctx, "artifact")
				artifacts[output] = data
				continue
			}
			observability.Cache().OnCacheMiss(ctx, "artifact")
		}
		artifacts[output] = nil
		missing = append(missing, output)
	}
	if len(missing) == 0 {
		return artifacts, true, nil // All artifacts from cache
	}

	// Render the missing outputs
	ctx, span := observability.StartSpan(ctx, "pipeline.Render", attribute.StringSlice("outputs", missing))
	hooks := observability.Pipeline()
	hooks.OnRenderStart(ctx, missing)
	start := time.Now()

	sub := opts
	sub.Outputs = missing
	rendered, err := RenderOutputs(ctx, t, sub)
	hooks.OnRenderComplete(ctx, missing, time.Since(start), err)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, false, err
	}

	// Cache each output
	for output, data := range rendered {
		artifacts[output] = data
		if treeKey == "" {
			continue
		}
		key := r.Keyer.ArtifactKey(treeKey, opts.ArtifactKeyOpts(output))
		if err := r.Cache.Set(ctx, key, data, cache.TTLArtifact); err == nil {
			observability.Cache().OnCacheSet(ctx, "artifact", len(data))
		}
	}

	return artifacts, false, nil
}

// Render is a convenience wrapper that calls RenderWithCacheInfo and discards the cache hit info.
func (r *Runner) Render(ctx context.Context, t *morph.Tree, treeKey string, opts Options) (map[string][]byte, error) {
	artifacts, _, err := r.RenderWithCacheInfo(ctx, t, treeKey, opts)
	return artifacts, err
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
