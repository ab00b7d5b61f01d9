package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/morphkit/pkg/pipeline"
	"github.com/matzehuels/morphkit/pkg/store"
)

// storeCommand creates the snapshot store command. Snapshots live in the
// local data directory unless a MongoDB URI is configured.
func (c *CLI) storeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "store",
		Aliases: []string{"snapshots"},
		Short:   "Manage stored morphology snapshots",
	}

	cmd.AddCommand(c.storePutCommand())
	cmd.AddCommand(c.storeListCommand())
	cmd.AddCommand(c.storeGetCommand())
	cmd.AddCommand(c.storeDeleteCommand())

	return cmd
}

func (c *CLI) storePutCommand() *cobra.Command {
	var (
		ttl     time.Duration
		noCache bool
	)
	opts := pipeline.Options{}

	cmd := &cobra.Command{
		Use:               "put <input>",
		Short:             "Decode a morphology and store it as a snapshot",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeInputs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runner, err := c.newRunner(ctx, noCache)
			if err != nil {
				return fmt.Errorf("initialize runner: %w", err)
			}
			defer runner.Close()

			blob, err := runner.Source.Fetch(ctx, args[0])
			if err != nil {
				return err
			}
			res, _, err := runner.Decode(ctx, blob.Data, blob.Name, opts)
			if err != nil {
				return err
			}
			logWarnings(loggerFromContext(ctx), blob.Name, res.Warnings)

			st, err := c.openStore(ctx)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			snap, err := store.New(res.Tree, res.Format, res.Warnings, ttl)
			if err != nil {
				return err
			}
			if err := st.Put(ctx, snap); err != nil {
				return fmt.Errorf("save snapshot: %w", err)
			}
			printSuccess("Stored %s", snap.Name)
			printKeyValue("ID", snap.ID)
			printStats(snap.Summary.NumPoints, snap.Summary.NumLines, snap.Summary.Warnings, false)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "expire the snapshot after this long (default: never)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	addDecodeFlags(cmd, &opts)
	return cmd
}

func (c *CLI) storeListCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			list, err := st.List(cmd.Context(), store.ListOptions{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			if len(list) == 0 {
				printInfo("No snapshots")
				return nil
			}
			printTable([]string{"ID", "Name", "Format", "Points", "Lines", "Created", "Expires"}, snapshotRows(list))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", store.DefaultListLimit, "maximum snapshots to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "snapshots to skip")
	return cmd
}

func (c *CLI) storeGetCommand() *cobra.Command {
	var output string
	opts := pipeline.Options{}

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Write a stored snapshot in an output format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			setCLIDefaults(&opts, c.cfg().Convert)
			opts.Outputs = opts.Outputs[:1]
			if err := opts.ValidateForRender(); err != nil {
				return err
			}

			st, err := c.openStore(ctx)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			snap, err := st.Get(ctx, args[0])
			if err != nil {
				return err
			}
			t, err := snap.Tree()
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(nil, nil, c.Logger)
			artifacts, err := runner.Render(ctx, t, "", opts)
			if err != nil {
				return err
			}
			data := artifacts[opts.Outputs[0]]
			if output == "" || output == stdoutPath {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := writeFile(output, data); err != nil {
				return err
			}
			printSuccess("Wrote %s", snap.Name)
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringSliceVarP(&opts.Outputs, "format", "f", nil, "output format (default from config)")
	addRenderFlags(cmd, &opts)
	return cmd
}

func (c *CLI) storeDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete stored snapshots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			for _, id := range args {
				if err := st.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				printSuccess("Deleted %s", id)
			}
			return nil
		},
	}
}

func snapshotRows(list []*store.Snapshot) [][]string {
	rows := make([][]string, len(list))
	for i, s := range list {
		expires := "never"
		if s.ExpiresAt != nil {
			expires = s.ExpiresAt.Local().Format(time.DateTime)
		}
		rows[i] = []string{
			s.ID,
			s.Name,
			s.Format,
			strconv.Itoa(s.Summary.NumPoints),
			strconv.Itoa(s.Summary.NumLines),
			formatRelativeTime(s.CreatedAt),
			expires,
		}
	}
	return rows
}
