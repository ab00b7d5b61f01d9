package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/matzehuels/morphkit/pkg/cache"
	"github.com/matzehuels/morphkit/pkg/morph"
	"github.com/matzehuels/morphkit/pkg/pipeline"
	"github.com/matzehuels/morphkit/pkg/source"
	"github.com/matzehuels/morphkit/pkg/store"
)

const configFile = "config.toml"

// Cache backends.
const (
	backendFile  = "file"
	backendRedis = "redis"
	backendNone  = "none"
)

// Environment overrides.
const (
	envRedisAddr = "MORPHKIT_REDIS_ADDR"
	envMongoURI  = "MORPHKIT_MONGO_URI"
	envMongoDB   = "MORPHKIT_MONGO_DB"
)

// Config is the on-disk CLI configuration.
type Config struct {
	Convert ConvertConfig `toml:"convert"`
	Cache   CacheConfig   `toml:"cache"`
	Store   StoreConfig   `toml:"store"`
	Server  ServerConfig  `toml:"server"`
	S3      S3Config      `toml:"s3"`
}

// ConvertConfig holds defaults for conversions.
type ConvertConfig struct {
	Decimals  int      `toml:"decimals"`
	Canonical bool     `toml:"canonical"`
	Outputs   []string `toml:"outputs"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend   string   `toml:"backend"`
	TTL       Duration `toml:"ttl"`
	RedisAddr string   `toml:"redis_addr"`
}

// StoreConfig selects the snapshot store. An empty MongoURI keeps
// snapshots on disk.
type StoreConfig struct {
	MongoURI string `toml:"mongo_uri"`
	Database string `toml:"database"`
}

// ServerConfig holds serve defaults.
type ServerConfig struct {
	Addr      string `toml:"addr"`
	MaxBodyMB int    `toml:"max_body_mb"`
}

// S3Config configures s3:// inputs. Credentials come from the standard AWS
// environment and shared config files.
type S3Config struct {
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`
}

// Duration is a time.Duration written as a string such as "168h".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func defaultConfig() *Config {
	return &Config{
		Convert: ConvertConfig{
			Decimals:  pipeline.DefaultDecimals,
			Canonical: true,
			Outputs:   []string{pipeline.DefaultOutput},
		},
		Cache: CacheConfig{
			Backend: backendFile,
			TTL:     Duration{cache.TTLTree},
		},
		Store: StoreConfig{Database: store.DefaultMongoDatabase},
		Server: ServerConfig{
			Addr:      ":8080",
			MaxBodyMB: 64,
		},
		S3: S3Config{Region: source.DefaultS3Region},
	}
}

// loadConfig reads the config file over the defaults, then applies the
// environment. A missing file at the default location is not an error;
// a missing file named explicitly is.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	explicit := path != ""
	if !explicit {
		dir, err := configDir()
		if err != nil {
			return cfg.applyEnv(), nil
		}
		path = filepath.Join(dir, configFile)
	}

	md, err := toml.DecodeFile(path, cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case err != nil:
		return nil, fmt.Errorf("load config %s: %w", path, err)
	default:
		if undec := md.Undecoded(); len(undec) > 0 {
			return nil, fmt.Errorf("load config %s: unknown key %q", path, undec[0].String())
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg.applyEnv(), nil
}

func (c *Config) applyEnv() *Config {
	if v := os.Getenv(envRedisAddr); v != "" {
		c.Cache.RedisAddr = v
		c.Cache.Backend = backendRedis
	}
	if v := os.Getenv(envMongoURI); v != "" {
		c.Store.MongoURI = v
	}
	if v := os.Getenv(envMongoDB); v != "" {
		c.Store.Database = v
	}
	return c
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case backendFile, backendRedis, backendNone:
	default:
		return fmt.Errorf("invalid cache backend: %q (must be file, redis or none)", c.Cache.Backend)
	}
	if c.Cache.Backend == backendRedis && c.Cache.RedisAddr == "" && os.Getenv(envRedisAddr) == "" {
		return fmt.Errorf("cache backend redis needs redis_addr")
	}
	if d := c.Convert.Decimals; d < morph.FullPrecision || d > morph.MaxDecimals {
		return fmt.Errorf("invalid decimals: %d (want %d to %d)", d, morph.FullPrecision, morph.MaxDecimals)
	}
	return pipeline.ValidateOutputs(c.Convert.Outputs)
}

// configCommand creates the config command.
func (c *CLI) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialize the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := c.resolvedConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(c.cfg())
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := c.resolvedConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				printWarning("Config already exists (use --force to overwrite)")
				printFile(path)
				return nil
			}
			if err := writeConfig(path, defaultConfig()); err != nil {
				return err
			}
			printSuccess("Config written")
			printFile(path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func (c *CLI) resolvedConfigPath() (string, error) {
	if c.configPath != "" {
		return c.configPath, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", fmt.Errorf("get config dir: %w", err)
	}
	return filepath.Join(dir, configFile), nil
}

func writeConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("write config: %w", err)
	}
	return f.Close()
}
