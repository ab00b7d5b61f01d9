package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/morphkit/internal/server"
	"github.com/matzehuels/morphkit/pkg/observability"
	"github.com/matzehuels/morphkit/pkg/store"
)

// serveCommand creates the serve command that runs the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr        string
		maxBodyMB   int
		timeout     time.Duration
		snapshotTTL time.Duration
		memory      bool
		noCache     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion HTTP API",
		Long: `Run the conversion HTTP API.

The server shares the CLI configuration: a Redis cache backend and a
MongoDB snapshot store are used when configured (or set through
MORPHKIT_REDIS_ADDR and MORPHKIT_MONGO_URI). Prometheus metrics are served
at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg().Server
			if !cmd.Flags().Changed("addr") && cfg.Addr != "" {
				addr = cfg.Addr
			}
			if !cmd.Flags().Changed("max-body-mb") && cfg.MaxBodyMB > 0 {
				maxBodyMB = cfg.MaxBodyMB
			}
			return c.runServe(cmd.Context(), server.Config{
				Addr:         addr,
				MaxBodyBytes: int64(maxBodyMB) << 20,
				Timeout:      timeout,
				SnapshotTTL:  snapshotTTL,
			}, memory, noCache)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "listen address")
	cmd.Flags().IntVar(&maxBodyMB, "max-body-mb", server.DefaultMaxBodyBytes>>20, "maximum request body in MiB")
	cmd.Flags().DurationVar(&timeout, "timeout", server.DefaultTimeout, "per-request timeout")
	cmd.Flags().DurationVar(&snapshotTTL, "snapshot-ttl", 0, "default snapshot lifetime (default: never expire)")
	cmd.Flags().BoolVar(&memory, "memory", false, "keep snapshots in memory instead of the configured store")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg server.Config, memory, noCache bool) error {
	metrics := observability.NewMetrics()
	metrics.Install()

	runner, err := c.newRunner(ctx, noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	var st store.Store = store.NewMemoryStore()
	if !memory {
		if st, err = c.openStore(ctx); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
	}
	defer st.Close()

	srv := server.New(runner, st, metrics, c.Logger, cfg)
	err = srv.ListenAndServe(ctx)
	if errors.Is(err, context.Canceled) {
		c.Logger.Info("server stopped")
		return nil
	}
	return err
}
