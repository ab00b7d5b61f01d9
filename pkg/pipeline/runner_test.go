package pipeline

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/morphkit/pkg/cache"
	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/format"
)

const neuron = `# example neuron
1 1 0 0 0 5 -1
2 3 1 0 0 1 1
3 3 2.123456 0 0 1 2
4 2 -1 0 0 0.5 1
`

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	r := NewRunner(c, nil, log.New(io.Discard))
	t.Cleanup(func() { r.Close() })
	return r
}

func writeNeuron(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "n1.swc")
	if err := os.WriteFile(path, []byte(neuron), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewRunnerDefaults(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	if r.Cache == nil || r.Keyer == nil || r.Logger == nil || r.Source == nil {
		t.Errorf("NewRunner left nil fields: %+v", r)
	}
}

func TestRunnerExecute(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()
	opts := Options{Input: writeNeuron(t), Outputs: []string{"swc", "json", "dot"}}

	first, err := r.Execute(ctx, opts)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if first.Format != format.SWC {
		t.Errorf("Format = %q, want swc", first.Format)
	}
	if first.Stats.NumLines != 3 || first.Stats.NumPoints != 4 {
		t.Errorf("Stats = %+v, want 3 lines and 4 points", first.Stats)
	}
	if first.CacheInfo.DecodeHit || first.CacheInfo.RenderHit {
		t.Errorf("first run CacheInfo = %+v, want misses", first.CacheInfo)
	}
	for _, out := range opts.Outputs {
		if len(first.Artifacts[out]) == 0 {
			t.Errorf("artifact %s is empty", out)
		}
	}
	if !strings.Contains(string(first.Artifacts["swc"]), "2.123 0 0") {
		t.Errorf("swc output not rounded to 3 decimals:\n%s", first.Artifacts["swc"])
	}

	second, err := r.Execute(ctx, opts)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !second.CacheInfo.DecodeHit || !second.CacheInfo.RenderHit {
		t.Errorf("second run CacheInfo = %+v, want hits", second.CacheInfo)
	}
	if second.TreeKey != first.TreeKey {
		t.Error("tree key should be stable")
	}
	if second.Tree.NumLines() != 3 {
		t.Errorf("cached tree NumLines = %d, want 3", second.Tree.NumLines())
	}
	for out, data := range first.Artifacts {
		if !bytes.Equal(second.Artifacts[out], data) {
			t.Errorf("cached %s differs", out)
		}
	}

	opts.Refresh = true
	third, err := r.Execute(ctx, opts)
	if err != nil {
		t.Fatalf("refresh Execute: %v", err)
	}
	if third.CacheInfo.DecodeHit || third.CacheInfo.RenderHit {
		t.Errorf("refresh CacheInfo = %+v, want misses", third.CacheInfo)
	}
}

func TestRunnerPartialRenderCache(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()
	path := writeNeuron(t)

	if _, err := r.Execute(ctx, Options{Input: path, Outputs: []string{"swc"}}); err != nil {
		t.Fatal(err)
	}
	res, err := r.Execute(ctx, Options{Input: path, Outputs: []string{"swc", "neuroml"}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.CacheInfo.DecodeHit {
		t.Error("tree should come from cache")
	}
	if res.CacheInfo.RenderHit {
		t.Error("neuroml was never rendered, render should miss")
	}
	if !strings.Contains(string(res.Artifacts["neuroml"]), "<neuroml") {
		t.Errorf("neuroml artifact = %q", res.Artifacts["neuroml"])
	}
}

func TestRunnerDecimalsChangeArtifactKey(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()
	path := writeNeuron(t)

	if _, err := r.Execute(ctx, Options{Input: path}); err != nil {
		t.Fatal(err)
	}
	one := 1
	res, err := r.Execute(ctx, Options{Input: path, Decimals: &one})
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheInfo.RenderHit {
		t.Error("different decimals should not hit the cache")
	}
	if !strings.Contains(string(res.Artifacts["swc"]), "2.1 0 0") {
		t.Errorf("swc output not rounded to 1 decimal:\n%s", res.Artifacts["swc"])
	}
}

func TestRunnerInlineData(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		opts   Options
		format string
	}{
		{"by name", Options{Data: []byte(neuron), Name: "cell.swc"}, format.SWC},
		{"sniffed", Options{Data: []byte(neuron), Name: "upload"}, format.SWC},
		{"forced", Options{Data: []byte(neuron), Name: "cell.txt", Format: "swc"}, format.SWC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Execute(ctx, tt.opts)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if res.Format != tt.format {
				t.Errorf("Format = %q, want %q", res.Format, tt.format)
			}
			if res.Stats.FetchTime != 0 {
				t.Error("inline data should skip the fetch stage")
			}
		})
	}
}

func TestRunnerErrors(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()

	tests := []struct {
		name string
		opts Options
		code perrors.Code
	}{
		{"missing file", Options{Input: filepath.Join(t.TempDir(), "none.swc")}, perrors.ErrCodeFileNotFound},
		{"empty data", Options{Data: []byte{}, Name: "blob.bin"}, perrors.ErrCodeUnsupportedFormat},
		{"bad output", Options{Data: []byte(neuron), Name: "n1.swc", Outputs: []string{"png"}}, perrors.ErrCodeInvalidFormat},
		{"unknown srs", Options{Data: []byte(neuron), Name: "n1.swc", SRS: "ccf"}, perrors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Execute(ctx, tt.opts)
			if got := perrors.GetCode(err); got != tt.code {
				t.Errorf("error code = %q, want %q (%v)", got, tt.code, err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	decoders := Decoders(true)
	tests := []struct {
		name, forced string
		data         string
		wantName     string
		wantFormat   string
	}{
		{"n1.swc", "", neuron, "n1.swc", "swc"},
		{"cell.ASC", "", "", "cell.ASC", "asc"},
		{"upload", "", `{"treePoints": {}}`, "upload.json", "json"},
		{"cell.txt", "xwc", "", "cell.xwc", "swc"},
		{"", "", neuron, "input.swc", "swc"},
		{"a.streamlines.json", "", "", "a.streamlines.json", "streamlines"},
	}
	for _, tt := range tests {
		d, name, err := Resolve([]byte(tt.data), tt.name, tt.forced, decoders)
		if err != nil {
			t.Errorf("Resolve(%q, %q): %v", tt.name, tt.forced, err)
			continue
		}
		if name != tt.wantName || d.Format() != tt.wantFormat {
			t.Errorf("Resolve(%q, %q) = %q, %q, want %q, %q", tt.name, tt.forced, name, d.Format(), tt.wantName, tt.wantFormat)
		}
	}
}

func TestRenderOutput(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()
	res, _, err := r.Decode(ctx, []byte(neuron), "n1.swc", Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	opts := Options{}
	opts.SetRenderDefaults()

	tests := []struct {
		output string
		want   string
	}{
		{OutputSWC, "1 1 0 0 0 5 -1"},
		{OutputXWC, "<swcPlus"},
		{OutputJWC, "{"},
		{OutputJSON, "treePoints"},
		{OutputNeuroML, "<morphology"},
		{OutputMBF, "type='Soma'"},
		{OutputDOT, "digraph"},
	}
	for _, tt := range tests {
		data, err := RenderOutput(ctx, res.Tree, tt.output, opts)
		if err != nil {
			t.Errorf("RenderOutput(%s): %v", tt.output, err)
			continue
		}
		if !strings.Contains(string(data), tt.want) {
			t.Errorf("RenderOutput(%s) missing %q:\n%s", tt.output, tt.want, data)
		}
	}

	if _, err := RenderOutput(ctx, res.Tree, "png", opts); err == nil {
		t.Error("RenderOutput(png) should fail")
	}
}

func TestRenderMBFReadsBack(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()
	res, _, err := r.Decode(ctx, []byte(neuron), "n1.swc", Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	opts := Options{}
	opts.SetRenderDefaults()
	data, err := RenderOutput(ctx, res.Tree, OutputMBF, opts)
	if err != nil {
		t.Fatalf("RenderOutput: %v", err)
	}

	back, _, err := r.Decode(ctx, data, "n1"+OutputExt(OutputMBF), Options{})
	if err != nil {
		t.Fatalf("Decode mbf: %v\n%s", err, data)
	}
	if back.Format != format.XML {
		t.Errorf("Format = %q, want %q", back.Format, format.XML)
	}
	if got, want := back.Tree.NumPoints(), res.Tree.NumPoints(); got != want {
		t.Errorf("NumPoints = %d, want %d", got, want)
	}
	if got, want := back.Tree.TypeCounts()[3], res.Tree.TypeCounts()[3]; got != want {
		t.Errorf("dendrite lines = %d, want %d", got, want)
	}
}
