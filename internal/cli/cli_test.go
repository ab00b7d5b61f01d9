package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

const testNeuron = `# soma and two dendrites
1 1 0 0 0 5 -1
2 3 1 0 0 1 1
3 3 2.123456 0 0 1 2
4 2 -1 0 0 0.5 1
`

// isolate points every XDG directory and service variable at test values.
func isolate(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", filepath.Join(base, "cache"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(base, "data"))
	t.Setenv(envRedisAddr, "")
	t.Setenv(envMongoURI, "")
	t.Setenv(envMongoDB, "")
	return base
}

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func writeNeuron(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(testNeuron), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()

	want := []string{"cache", "completion", "config", "convert", "info", "nearest", "serve", "store", "topology"}
	var got []string
	for _, cmd := range root.Commands() {
		if cmd.Name() == "help" {
			continue
		}
		got = append(got, cmd.Name())
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("--config flag missing")
	}
}

func TestConvertCommand(t *testing.T) {
	base := isolate(t)
	in := writeNeuron(t, base, "n1.swc")
	outDir := filepath.Join(base, "out")

	if err := runCLI(t, "convert", in, "-f", "swc,neuroml,json", "-o", outDir, "--decimals", "1"); err != nil {
		t.Fatalf("convert: %v", err)
	}

	swc, err := os.ReadFile(filepath.Join(outDir, "n1.swc"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(swc), "2.1 0 0") {
		t.Errorf("swc output not rounded:\n%s", swc)
	}
	for _, name := range []string{"n1.nml", "n1.json"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}
}

func TestConvertDecimals(t *testing.T) {
	base := isolate(t)
	in := writeNeuron(t, base, "n1.swc")
	out := filepath.Join(base, "int.swc")

	if err := runCLI(t, "convert", in, "--decimals", "0", "-o", out); err != nil {
		t.Fatalf("convert: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), " 3 2 0 0 1 ") || strings.Contains(string(data), "2.1") {
		t.Errorf("--decimals 0 should round to integers:\n%s", data)
	}
	if err := runCLI(t, "convert", in, "--decimals", "400", "-o", out); err == nil {
		t.Error("--decimals 400 should fail")
	}
}

func TestConvertNextToInput(t *testing.T) {
	base := isolate(t)
	in := writeNeuron(t, base, "cells/n1.swc")

	if err := runCLI(t, "convert", in); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "cells", "n1.converted.swc")); err != nil {
		t.Errorf("swc to swc should not replace the input: %v", err)
	}
}

func TestConvertDirectoryAll(t *testing.T) {
	base := isolate(t)
	writeNeuron(t, base, "cells/a.swc")
	writeNeuron(t, base, "cells/sub/b.swc")
	writeNeuron(t, base, "cells/.hidden/c.swc")
	if err := os.WriteFile(filepath.Join(base, "cells", "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(base, "out")

	if err := runCLI(t, "convert", filepath.Join(base, "cells"), "--all", "-f", "jwc", "-o", outDir); err != nil {
		t.Fatalf("convert --all: %v", err)
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if want := []string{"a.jwc", "b.jwc"}; !reflect.DeepEqual(names, want) {
		t.Errorf("outputs = %v, want %v", names, want)
	}
}

func TestConvertErrors(t *testing.T) {
	base := isolate(t)
	in := writeNeuron(t, base, "n1.swc")

	tests := []struct {
		name string
		args []string
	}{
		{"missing input", []string{"convert", filepath.Join(base, "nope.swc")}},
		{"bad output", []string{"convert", in, "-f", "png"}},
		{"bad input format", []string{"convert", in, "--from", "tiff"}},
		{"stdout with two outputs", []string{"convert", in, "-f", "swc,jwc", "-o", "-"}},
		{"missing config", []string{"--config", filepath.Join(base, "nope.toml"), "convert", in}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runCLI(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestStoreCommands(t *testing.T) {
	base := isolate(t)
	in := writeNeuron(t, base, "n1.swc")

	if err := runCLI(t, "store", "put", in); err != nil {
		t.Fatalf("store put: %v", err)
	}
	dir, _ := storeDir()
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("snapshot files = %v, %v", entries, err)
	}
	id := strings.TrimSuffix(entries[0].Name(), filepath.Ext(entries[0].Name()))

	out := filepath.Join(base, "back.swc")
	if err := runCLI(t, "store", "get", id, "-f", "swc", "-o", out); err != nil {
		t.Fatalf("store get: %v", err)
	}
	if data, err := os.ReadFile(out); err != nil || !strings.Contains(string(data), "1 1 0 0 0 5 -1") {
		t.Errorf("store get output = %q, %v", data, err)
	}

	if err := runCLI(t, "store", "list"); err != nil {
		t.Errorf("store list: %v", err)
	}
	if err := runCLI(t, "store", "delete", id); err != nil {
		t.Errorf("store delete: %v", err)
	}
	if err := runCLI(t, "store", "delete", id); err == nil {
		t.Error("deleting twice should fail")
	}
}

func TestInfoAndNearest(t *testing.T) {
	base := isolate(t)
	in := writeNeuron(t, base, "n1.swc")

	if err := runCLI(t, "info", in, "--json"); err != nil {
		t.Errorf("info: %v", err)
	}
	if err := runCLI(t, "nearest", in, "2", "0.5", "0", "-k", "2"); err != nil {
		t.Errorf("nearest: %v", err)
	}
	if err := runCLI(t, "nearest", in, "2", "x", "0"); err == nil {
		t.Error("nearest with a bad coordinate should fail")
	}
}

func TestTopologyCommand(t *testing.T) {
	base := isolate(t)
	in := writeNeuron(t, base, "n1.swc")
	out := filepath.Join(base, "n1.dot")

	if err := runCLI(t, "topology", in, "--dot", "-o", out); err != nil {
		t.Fatalf("topology: %v", err)
	}
	if data, err := os.ReadFile(out); err != nil || !strings.HasPrefix(string(data), "digraph") {
		t.Errorf("topology output = %q, %v", data, err)
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name     string
		out      string
		outIsDir bool
		input    string
		tree     string
		output   string
		want     string
	}{
		{"next to input", "", false, "cells/n1.asc", "n1.asc", "swc", filepath.Join("cells", "n1.swc")},
		{"same format", "", false, "cells/n1.swc", "n1.swc", "swc", filepath.Join("cells", "n1.converted.swc")},
		{"neuroml ext", "", false, "n1.asc", "n1.asc", "neuroml", "n1.nml"},
		{"compound ext", "", false, "s.streamlines.json", "s.streamlines.json", "swc", "s.swc"},
		{"explicit file", "x.swc", false, "n1.asc", "n1.asc", "swc", "x.swc"},
		{"into dir", "out", true, "cells/n1.asc", "n1.asc", "jwc", filepath.Join("out", "n1.jwc")},
		{"remote", "", false, "https://example.org/data/n1.swc", "n1.swc", "json", "n1.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outputPath(tt.out, tt.outIsDir, tt.input, tt.tree, tt.output); got != tt.want {
				t.Errorf("outputPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseOutputs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"swc", []string{"swc"}},
		{"SWC, NeuroML,,svg", []string{"swc", "neuroml", "svg"}},
	}
	for _, tt := range tests {
		if got := parseOutputs(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseOutputs(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTypeRows(t *testing.T) {
	got := typeRows(map[string]int{"axon": 1, "dendrite": 3, "soma": 1})
	want := [][]string{{"dendrite", "3"}, {"axon", "1"}, {"soma", "1"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("typeRows() = %v, want %v", got, want)
	}
}

func TestCompletionScripts(t *testing.T) {
	isolate(t)
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			root := New(io.Discard, LogInfo).RootCommand()
			var buf strings.Builder
			root.SetArgs([]string{"completion", shell})
			root.SetOut(&buf)
			root.SetErr(io.Discard)
			if err := root.ExecuteContext(context.Background()); err != nil {
				t.Fatalf("completion %s: %v", shell, err)
			}
			if !strings.Contains(buf.String(), "morphkit") {
				t.Errorf("completion %s script does not mention morphkit", shell)
			}
		})
	}
	if err := runCLI(t, "completion", "tcsh"); err == nil {
		t.Error("completion tcsh should fail")
	}
}

func TestCompleteInputs(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		args  []string
		files bool
	}{
		{"first argument", 1, nil, true},
		{"after the input", 1, []string{"n1.asc"}, false},
		{"any number", -1, []string{"a.swc", "b.dat"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exts, dir := completeInputs(tt.n)(nil, tt.args, "")
			if tt.files {
				if dir != cobra.ShellCompDirectiveFilterFileExt {
					t.Errorf("directive = %v, want %v", dir, cobra.ShellCompDirectiveFilterFileExt)
				}
				for _, want := range []string{"swc", "asc", "ASC", "dat", "xml"} {
					if !slices.Contains(exts, want) {
						t.Errorf("extensions = %v, want %s", exts, want)
					}
				}
				if slices.Contains(exts, "streamlines") {
					t.Errorf("extensions = %v, want no streamlines", exts)
				}
				return
			}
			if dir != cobra.ShellCompDirectiveNoFileComp || exts != nil {
				t.Errorf("completion = %v, %v, want no files", exts, dir)
			}
		})
	}
}
