package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/morphkit/pkg/pipeline"
)

// topologyCommand creates the topology command, a shortcut for converting
// to a line hierarchy diagram.
func (c *CLI) topologyCommand() *cobra.Command {
	var (
		output  string
		asDOT   bool
		noCache bool
	)
	opts := pipeline.Options{}

	cmd := &cobra.Command{
		Use:   "topology <input>",
		Short: "Draw the line hierarchy of a morphology",
		Long: `Draw the line hierarchy of a morphology as a Graphviz diagram.

Each line becomes a node labeled with its name; --detailed adds the type,
point count and attach offset. Large trees are cut at --max-lines nodes.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeInputs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Input = args[0]
			opts.Outputs = []string{pipeline.OutputSVG}
			if asDOT {
				opts.Outputs = []string{pipeline.OutputDOT}
			}
			return c.runTopology(cmd.Context(), opts, output, noCache)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, or - for stdout (default: <input>.svg)")
	cmd.Flags().BoolVar(&asDOT, "dot", false, "write Graphviz DOT instead of SVG")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&opts.Detailed, "detailed", false, "show line types and sizes")
	cmd.Flags().IntVar(&opts.MaxLines, "max-lines", 0, fmt.Sprintf("maximum line nodes (default %d)", pipeline.DefaultMaxLines))
	addDecodeFlags(cmd, &opts)

	return cmd
}

func (c *CLI) runTopology(ctx context.Context, opts pipeline.Options, output string, noCache bool) error {
	runner, err := c.newRunner(ctx, noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	res, err := runner.Execute(ctx, opts)
	if err != nil {
		return err
	}
	out := opts.Outputs[0]
	data := res.Artifacts[out]
	if output == stdoutPath {
		_, err := os.Stdout.Write(data)
		return err
	}

	path := outputPath(output, false, opts.Input, res.Tree.Name, out)
	if err := writeFile(path, data); err != nil {
		return err
	}
	printSuccess("Topology complete")
	printFile(path)
	printStats(res.Stats.NumPoints, res.Stats.NumLines, len(res.Warnings), res.CacheInfo.DecodeHit && res.CacheInfo.RenderHit)
	if out == pipeline.OutputDOT {
		printNewline()
		printNextStep("Render", "dot -Tpng -O "+path)
	}
	return nil
}
