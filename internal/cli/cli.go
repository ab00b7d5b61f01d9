// Package cli implements the morphkit command-line interface.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/morphkit/pkg/buildinfo"
	"github.com/matzehuels/morphkit/pkg/cache"
	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/pipeline"
	"github.com/matzehuels/morphkit/pkg/source"
	"github.com/matzehuels/morphkit/pkg/store"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "morphkit"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	config     *Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "morphkit",
		Short: "Morphkit converts neuron morphologies between file formats",
		Long: `Morphkit reads neuron morphology reconstructions (SWC, SWC+, Neurolucida
ASC/XML/DAT, streamlines) into a validated line-based tree and writes them
back out as SWC, SWC+, JSON snapshots, NeuroML or topology diagrams.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			c.config = cfg
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/morphkit/config.toml)")

	// Register all subcommands
	root.AddCommand(c.convertCommand())
	root.AddCommand(c.infoCommand())
	root.AddCommand(c.topologyCommand())
	root.AddCommand(c.nearestCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.storeCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// cfg returns the loaded configuration, or the defaults when a command runs
// without the root pre-run (as in tests).
func (c *CLI) cfg() *Config {
	if c.config == nil {
		c.config = defaultConfig()
	}
	return c.config
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use. Remote inputs are
// fetched over HTTP and from S3; HTTP responses share the runner's cache.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*pipeline.Runner, error) {
	cc, err := c.newCache(ctx, noCache)
	if err != nil {
		return nil, err
	}
	runner := pipeline.NewRunner(cc, nil, c.Logger)

	httpSrc := source.NewHTTPSource(cc, runner.Keyer, nil)
	if ttl := c.cfg().Cache.TTL.Duration; ttl > 0 {
		httpSrc.TTL = ttl
	}
	sources := []source.Source{httpSrc}
	s3cfg := c.cfg().S3
	s3src, err := source.NewS3Source(ctx, source.S3Config{
		Region:    s3cfg.Region,
		Endpoint:  s3cfg.Endpoint,
		PathStyle: s3cfg.PathStyle,
	})
	if err != nil {
		c.Logger.Warn("S3 inputs disabled", "err", err)
	} else {
		sources = append(sources, s3src)
	}
	runner.Source = source.NewResolver(sources...)
	return runner, nil
}

// newCache opens the configured cache backend.
func (c *CLI) newCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	cfg := c.cfg().Cache
	if noCache || cfg.Backend == backendNone {
		return cache.NewNullCache(), nil
	}
	if cfg.Backend == backendRedis {
		return cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cfg.RedisAddr})
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// openStore opens MongoDB when a URI is configured and the local snapshot
// directory otherwise.
func (c *CLI) openStore(ctx context.Context) (store.Store, error) {
	cfg := c.cfg().Store
	if cfg.MongoURI != "" {
		return store.NewMongoStore(ctx, store.MongoConfig{URI: cfg.MongoURI, Database: cfg.Database})
	}
	dir, err := storeDir()
	if err != nil {
		return nil, err
	}
	return store.NewFileStore(dir)
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/morphkit/).
func cacheDir() (string, error) {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

// configDir returns the config directory (~/.config/morphkit/).
func configDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// storeDir returns the snapshot directory (~/.local/share/morphkit/snapshots).
func storeDir() (string, error) {
	dir, err := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "snapshots"), nil
}

func xdgDir(env, fallback string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallback, appName), nil
}

// =============================================================================
// Options Helpers
// =============================================================================

// setCLIDefaults applies the [convert] section of the config on top of the
// pipeline defaults.
func setCLIDefaults(opts *pipeline.Options, cfg ConvertConfig) {
	if opts.Decimals == nil {
		d := cfg.Decimals
		opts.Decimals = &d
	}
	if len(opts.Outputs) == 0 {
		opts.Outputs = append([]string(nil), cfg.Outputs...)
	}
	opts.SetRenderDefaults()
}

// parseOutputs parses a comma-separated output string into a slice.
func parseOutputs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.ToLower(strings.TrimSpace(o)); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// supportedFile reports whether a file name has an extension that one of
// the decoders recognizes.
func supportedFile(name string) bool {
	_, err := format.Detect(name, pipeline.Decoders(true)...)
	return err == nil
}
