package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), configFile)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(envRedisAddr, "")
	t.Setenv(envMongoURI, "")
	t.Setenv(envMongoDB, "")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Convert.Decimals != 3 || !cfg.Convert.Canonical || cfg.Cache.Backend != backendFile {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Cache.TTL.Duration != 168*time.Hour {
		t.Errorf("Cache.TTL = %v, want 168h", cfg.Cache.TTL)
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv(envRedisAddr, "")
	t.Setenv(envMongoURI, "")
	t.Setenv(envMongoDB, "")

	path := writeTestConfig(t, `
[convert]
decimals = 1
canonical = false
outputs = ["neuroml", "svg"]

[cache]
backend = "none"
ttl = "2h"

[server]
addr = ":9000"

[s3]
endpoint = "http://localhost:9000"
path_style = true
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Convert.Decimals != 1 || cfg.Convert.Canonical {
		t.Errorf("Convert = %+v", cfg.Convert)
	}
	if len(cfg.Convert.Outputs) != 2 || cfg.Convert.Outputs[0] != "neuroml" {
		t.Errorf("Outputs = %v", cfg.Convert.Outputs)
	}
	if cfg.Cache.Backend != backendNone || cfg.Cache.TTL.Duration != 2*time.Hour {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.MaxBodyMB != 64 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if !cfg.S3.PathStyle || cfg.S3.Region != "us-east-1" {
		t.Errorf("S3 = %+v", cfg.S3)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "[convert]\nprecision = 2\n", "unknown key"},
		{"bad backend", "[cache]\nbackend = \"memcached\"\n", "invalid cache backend"},
		{"redis without addr", "[cache]\nbackend = \"redis\"\n", "redis_addr"},
		{"bad output", "[convert]\noutputs = [\"png\"]\n", "invalid output"},
		{"bad decimals", "[convert]\ndecimals = 400\n", "invalid decimals"},
		{"bad ttl", "[cache]\nttl = \"soon\"\n", "load config"},
		{"bad toml", "[convert\n", "load config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envRedisAddr, "")
			_, err := loadConfig(writeTestConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("loadConfig() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigMissingExplicit(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("loadConfig() of a missing explicit file should fail")
	}
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(envRedisAddr, "redis:6379")
	t.Setenv(envMongoURI, "mongodb://db:27017")
	t.Setenv(envMongoDB, "cells")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Backend != backendRedis || cfg.Cache.RedisAddr != "redis:6379" {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Store.MongoURI != "mongodb://db:27017" || cfg.Store.Database != "cells" {
		t.Errorf("Store = %+v", cfg.Store)
	}
}

func TestWriteConfigRoundTrip(t *testing.T) {
	t.Setenv(envRedisAddr, "")
	t.Setenv(envMongoURI, "")
	t.Setenv(envMongoDB, "")

	path := filepath.Join(t.TempDir(), "nested", configFile)
	if err := writeConfig(path, defaultConfig()); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("reload written config: %v", err)
	}
	if cfg.Cache.TTL != defaultConfig().Cache.TTL {
		t.Errorf("TTL = %v, want %v", cfg.Cache.TTL, defaultConfig().Cache.TTL)
	}
}
