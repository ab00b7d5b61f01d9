package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/pipeline"
	"github.com/matzehuels/morphkit/pkg/spatial"
)

// nearestCommand creates the nearest command for spatial queries.
func (c *CLI) nearestCommand() *cobra.Command {
	var (
		k         int
		radius    float64
		skipTypes []int
		noCache   bool
	)
	opts := pipeline.Options{}

	cmd := &cobra.Command{
		Use:   "nearest <input> <x> <y> <z>",
		Short: "Find the segments closest to a point",
		Long: `Find the segments closest to a point.

Every point of a line forms a segment with its predecessor. Results are
ordered by the distance from the query point to the segment axis. With
--radius, every segment within that distance is listed instead of the
k nearest. Put -- before negative coordinates:

  morphkit nearest n1.swc -- -12.5 3 0`,
		Args:              cobra.ExactArgs(4),
		ValidArgsFunction: completeInputs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseVec(args[1:])
			if err != nil {
				return err
			}
			opts.Input = args[0]
			if !cmd.Flags().Changed("radius") {
				radius = -1
			}
			return c.runNearest(cmd.Context(), opts, p, k, radius, skipTypes, noCache)
		},
	}

	cmd.Flags().IntVarP(&k, "count", "k", 5, "number of segments to list")
	cmd.Flags().Float64Var(&radius, "radius", 0, "list every segment within this distance")
	cmd.Flags().IntSliceVar(&skipTypes, "skip-type", nil, "leave lines of these types out (repeatable)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	addDecodeFlags(cmd, &opts)

	return cmd
}

func (c *CLI) runNearest(ctx context.Context, opts pipeline.Options, p spatial.Vec, k int, radius float64, skipTypes []int, noCache bool) error {
	runner, err := c.newRunner(ctx, noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	blob, err := runner.Source.Fetch(ctx, opts.Input)
	if err != nil {
		return err
	}
	res, _, _, err := runner.DecodeWithCacheInfo(ctx, blob.Data, blob.Name, opts)
	if err != nil {
		return err
	}

	ix := spatial.NewIndex(res.Tree, skipTypes...)
	var hits []spatial.Hit
	if radius >= 0 {
		hits = ix.Within(p, radius)
	} else {
		hits = ix.NearestK(p, k)
	}
	if len(hits) == 0 {
		printInfo("No segments found among %d", ix.Len())
		return nil
	}
	printTable([]string{"Line", "Name", "Type", "Point", "Distance", "Along", "Radius"}, hitRows(res.Tree, hits))
	return nil
}

func hitRows(t *morph.Tree, hits []spatial.Hit) [][]string {
	rows := make([][]string, len(hits))
	for i, h := range hits {
		name, err := t.LineName(h.Line)
		if err != nil {
			name = "?"
		}
		tp := t.Line(h.Line).Type
		rows[i] = []string{
			strconv.Itoa(h.Line),
			name,
			t.TypeName(tp, h.Line),
			strconv.Itoa(h.Point),
			strconv.FormatFloat(h.Distance, 'f', 3, 64),
			strconv.FormatFloat(h.T, 'f', 2, 64),
			strconv.FormatFloat(h.Radius, 'f', 3, 64),
		}
	}
	return rows
}

func parseVec(args []string) (spatial.Vec, error) {
	var p spatial.Vec
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return p, fmt.Errorf("invalid coordinate %q: %w", a, err)
		}
		p[i] = v
	}
	return p, nil
}
