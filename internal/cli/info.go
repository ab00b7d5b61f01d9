package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/pipeline"
	"github.com/matzehuels/morphkit/pkg/store"
)

// infoCommand creates the info command.
func (c *CLI) infoCommand() *cobra.Command {
	var (
		asJSON  bool
		noCache bool
	)
	opts := pipeline.Options{}

	cmd := &cobra.Command{
		Use:   "info <input>",
		Short: "Summarize a morphology",
		Long: `Summarize a morphology: format, point and line counts, bounding box,
lines per type, available spatial registrations and decode warnings.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeInputs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Input = args[0]
			return c.runInfo(cmd.Context(), opts, noCache, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	addDecodeFlags(cmd, &opts)

	return cmd
}

// treeInfo is the JSON form of the info command.
type treeInfo struct {
	Name            string          `json:"name"`
	Format          string          `json:"format"`
	SRS             string          `json:"srs"`
	Summary         store.Summary   `json:"summary"`
	Transformations []string        `json:"transformations,omitempty"`
	Warnings        []morph.Warning `json:"warnings,omitempty"`
}

func (c *CLI) runInfo(ctx context.Context, opts pipeline.Options, noCache, asJSON bool) error {
	runner, err := c.newRunner(ctx, noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	blob, err := runner.Source.Fetch(ctx, opts.Input)
	if err != nil {
		return err
	}
	res, _, hit, err := runner.DecodeWithCacheInfo(ctx, blob.Data, blob.Name, opts)
	if err != nil {
		return err
	}

	t := res.Tree
	info := treeInfo{
		Name:     t.Name,
		Format:   res.Format,
		SRS:      t.SRS,
		Summary:  store.Summarize(t, len(res.Warnings)),
		Warnings: res.Warnings,
	}
	for _, tr := range t.Transformations() {
		info.Transformations = append(info.Transformations, fmt.Sprintf("%s: %s → %s", tr.Method, tr.FromSRS, tr.ToSRS))
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	printTreeInfo(info, hit)
	return nil
}

func printTreeInfo(info treeInfo, cached bool) {
	fmt.Println(StyleTitle.Render(info.Name))
	printKeyValue("Format", info.Format)
	printKeyValue("SRS", info.SRS)
	printKeyValue("Points", StyleNumber.Render(strconv.Itoa(info.Summary.NumPoints)))
	printKeyValue("Lines", StyleNumber.Render(strconv.Itoa(info.Summary.NumLines)))
	box := info.Summary.BoundingBox
	size := box.Size()
	printKeyValue("Extent", fmt.Sprintf("%.1f × %.1f × %.1f", size[0], size[1], size[2]))
	printKeyValue("Bounding box", fmt.Sprintf("(%.2f, %.2f, %.2f) – (%.2f, %.2f, %.2f)",
		box.Min[0], box.Min[1], box.Min[2], box.Max[0], box.Max[1], box.Max[2]))
	printStats(info.Summary.NumPoints, info.Summary.NumLines, info.Summary.Warnings, cached)

	if len(info.Summary.Types) > 0 {
		printNewline()
		printTable([]string{"Type", "Lines"}, typeRows(info.Summary.Types))
	}
	if len(info.Transformations) > 0 {
		printNewline()
		printInfo("Spatial registrations")
		for _, tr := range info.Transformations {
			printDetail("%s", tr)
		}
	}
	if len(info.Warnings) > 0 {
		printNewline()
		for _, w := range info.Warnings {
			if w.Offset > 0 {
				printWarning("%d: %s", w.Offset, w.Message)
			} else {
				printWarning("%s", w.Message)
			}
		}
	}
}

// typeRows sorts type counts by decreasing count, then by name.
func typeRows(types map[string]int) [][]string {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if types[names[i]] != types[names[j]] {
			return types[names[i]] > types[names[j]]
		}
		return names[i] < names[j]
	})
	rows := make([][]string, len(names))
	for i, name := range names {
		rows[i] = []string{name, strconv.Itoa(types[name])}
	}
	return rows
}
