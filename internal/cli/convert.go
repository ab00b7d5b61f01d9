package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/pipeline"
	"github.com/matzehuels/morphkit/pkg/source"
	"github.com/matzehuels/morphkit/pkg/store"
)

// stdoutPath selects standard output as the destination.
const stdoutPath = "-"

// convertFlags holds the convert flags that are not pipeline options.
type convertFlags struct {
	output  string
	formats string
	noCache bool
	all     bool
	save    bool
}

// convertCommand creates the convert command.
func (c *CLI) convertCommand() *cobra.Command {
	var flags convertFlags
	opts := pipeline.Options{}

	cmd := &cobra.Command{
		Use:   "convert <input>...",
		Short: "Convert morphology files to other formats",
		Long: `Convert morphology files to other formats.

Inputs are local files, directories, http(s) URLs or s3://bucket/key
references. The input format is detected from the file extension, falling
back to the content; --from forces it. For a directory, an interactive
picker selects the files unless --all is given.

Decoded trees and outputs are cached locally for faster subsequent runs.

Examples:
  morphkit convert n1.asc                       # writes n1.swc
  morphkit convert n1.asc -f swc,neuroml -o out/
  morphkit convert n1.swc -f mbf                # writes n1.xml for Neurolucida
  morphkit convert cells/ --all -f jwc
  morphkit convert https://example.org/n1.swc -f json -o -`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completeInputs(-1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Outputs = parseOutputs(flags.formats)
			if !cmd.Flags().Changed("raw") {
				opts.Raw = !c.cfg().Convert.Canonical
			}
			setCLIDefaults(&opts, c.cfg().Convert)
			if err := opts.ValidateForRender(); err != nil {
				return err
			}
			if err := opts.ValidateForDecode(); err != nil {
				return err
			}
			return c.runConvert(cmd.Context(), args, opts, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file, directory, or - for stdout (default: next to the input)")
	cmd.Flags().StringVarP(&flags.formats, "format", "f", "", "output format(s): "+strings.Join(pipeline.Names(pipeline.ValidOutputs), ", ")+" (comma-separated)")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&flags.all, "all", false, "convert every supported file of a directory without asking")
	cmd.Flags().BoolVar(&flags.save, "save", false, "also keep the decoded tree in the snapshot store")
	addDecodeFlags(cmd, &opts)
	addRenderFlags(cmd, &opts)
	_ = cmd.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return pipeline.Names(pipeline.ValidOutputs), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// addDecodeFlags registers the flags shared by every command that decodes.
func addDecodeFlags(cmd *cobra.Command, opts *pipeline.Options) {
	cmd.Flags().StringVar(&opts.Format, "from", "", "force the input format: "+strings.Join(pipeline.Names(pipeline.ValidFormats), ", "))
	_ = cmd.RegisterFlagCompletionFunc("from", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return pipeline.Names(pipeline.ValidFormats), cobra.ShellCompDirectiveNoFileComp
	})
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "keep the file's line order instead of canonicalizing")
	cmd.Flags().StringVar(&opts.SRS, "srs", "", "register the tree into this spatial reference system")
	cmd.Flags().StringVar(&opts.Transform, "transform", "", "registration method for --srs (default "+pipeline.DefaultTransform+")")
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "bypass cached inputs and results")
}

func addRenderFlags(cmd *cobra.Command, opts *pipeline.Options) {
	cmd.Flags().Var(decimalsFlag{opts}, "decimals", fmt.Sprintf("coordinate decimals of text outputs, 0 to %d or -1 for full precision (default %d)", morph.MaxDecimals, pipeline.DefaultDecimals))
	cmd.Flags().StringVar(&opts.CellID, "cell-id", "", "NeuroML cell id (default: file name)")
	cmd.Flags().BoolVar(&opts.Detailed, "detailed", false, "show line types and sizes in topology diagrams")
	cmd.Flags().IntVar(&opts.MaxLines, "max-lines", 0, fmt.Sprintf("maximum lines in topology diagrams (default %d)", pipeline.DefaultMaxLines))
}

// decimalsFlag sets Options.Decimals only when --decimals is given, so that
// an explicit 0 is kept apart from the configured default.
type decimalsFlag struct{ opts *pipeline.Options }

func (f decimalsFlag) String() string {
	if f.opts == nil || f.opts.Decimals == nil {
		return ""
	}
	return strconv.Itoa(*f.opts.Decimals)
}

func (f decimalsFlag) Set(s string) error {
	d, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid decimals: %q", s)
	}
	f.opts.Decimals = &d
	return nil
}

func (f decimalsFlag) Type() string { return "int" }

// runConvert converts every input to every requested output.
func (c *CLI) runConvert(ctx context.Context, args []string, opts pipeline.Options, flags convertFlags) error {
	inputs, err := expandInputs(args, flags.all)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		printInfo("Nothing selected")
		return nil
	}
	toStdout := flags.output == stdoutPath
	if toStdout && (len(inputs) > 1 || len(opts.Outputs) > 1) {
		return fmt.Errorf("-o - needs a single input and a single output format")
	}
	outIsDir := flags.output != "" && !toStdout &&
		(len(inputs) > 1 || len(opts.Outputs) > 1 || isDir(flags.output))

	runner, err := c.newRunner(ctx, flags.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	var st store.Store
	if flags.save {
		if st, err = c.openStore(ctx); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
	}

	logger := loggerFromContext(ctx)
	prog := newProgress(logger)
	failed := 0
	for i, input := range inputs {
		o := opts
		o.Input = input
		o.Outputs = append([]string(nil), opts.Outputs...)

		if toStdout {
			res, err := runner.Execute(ctx, o)
			if err != nil {
				return err
			}
			logWarnings(logger, res.Tree.Name, res.Warnings)
			_, err = os.Stdout.Write(res.Artifacts[o.Outputs[0]])
			return err
		}

		spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Converting %s (%d/%d)...", input, i+1, len(inputs)))
		spinner.Start()
		res, err := runner.Execute(ctx, o)
		if err != nil {
			spinner.StopWithError(fmt.Sprintf("%s: %v", input, err))
			if len(inputs) == 1 {
				return err
			}
			failed++
			continue
		}
		spinner.Stop()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logWarnings(logger, res.Tree.Name, res.Warnings)

		printSuccess("Converted %s %s", input, StyleDim.Render("("+res.Format+")"))
		for _, out := range o.Outputs {
			path := outputPath(flags.output, outIsDir, input, res.Tree.Name, out)
			if err := writeFile(path, res.Artifacts[out]); err != nil {
				return err
			}
			printFile(path)
		}
		if st != nil {
			snap, err := store.New(res.Tree, res.Format, res.Warnings, 0)
			if err != nil {
				return err
			}
			if err := st.Put(ctx, snap); err != nil {
				return fmt.Errorf("save snapshot: %w", err)
			}
			printDetail("Snapshot: %s", snap.ID)
		}
		printStats(res.Stats.NumPoints, res.Stats.NumLines, len(res.Warnings), res.CacheInfo.DecodeHit && res.CacheInfo.RenderHit)
	}

	if len(inputs) > 1 {
		printNewline()
		prog.done(fmt.Sprintf("Converted %d of %d files", len(inputs)-failed, len(inputs)))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", failed, len(inputs))
	}
	return nil
}

// expandInputs replaces local directories by the files they contain.
func expandInputs(args []string, all bool) ([]string, error) {
	var out []string
	for _, arg := range args {
		if source.Scheme(arg) != "" || !isDir(arg) {
			out = append(out, arg)
			continue
		}
		files, err := listMorphologies(arg)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			printWarning("No morphology files in %s", arg)
			continue
		}
		if !all {
			if files, err = pickFiles(files); err != nil {
				return nil, err
			}
		}
		for _, f := range files {
			out = append(out, f.Path)
		}
	}
	return out, nil
}

// outputPath derives where one output of one input is written. Without an
// explicit destination, local inputs get their outputs next to them and
// remote inputs in the working directory. An output that would replace
// its own input gets a ".converted" infix.
func outputPath(out string, outIsDir bool, input, name, output string) string {
	if out != "" && !outIsDir {
		return out
	}
	if name == "" {
		name = filepath.Base(input)
	}
	base := filepath.Base(name)
	if ext := format.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)-1]
	}
	dir := out
	if dir == "" {
		dir = "."
		if source.Scheme(input) == "" {
			dir = filepath.Dir(input)
		}
	}
	path := filepath.Join(dir, base+pipeline.OutputExt(output))
	if source.Scheme(input) == "" && filepath.Clean(input) == path {
		path = filepath.Join(dir, base+".converted"+pipeline.OutputExt(output))
	}
	return path
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output %s: %w", path, err)
	}
	return nil
}
