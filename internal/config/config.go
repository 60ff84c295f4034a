// Package config loads rserv's runtime configuration with precedence
// flag > env > file > default, using grouped sub-structs and
// Validate/String helpers, with a YAML file layer and cobra/pflag flag
// binding on top of environment-variable parsing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ha1tch/rserv/internal/store"
)

// Config holds every recognized configuration option, grouped by
// subsystem.
type Config struct {
	Server ServerConfig `yaml:",inline"`
	Store  StoreConfig  `yaml:",inline"`
	Graph  GraphConfig  `yaml:",inline"`
	Query  QueryConfig  `yaml:",inline"`
	Cache  CacheConfig  `yaml:",inline"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig controls document-store behaviour.
type StoreConfig struct {
	DataRoot        string `yaml:"data_root"`
	SchemaRoot      string `yaml:"schema_root"`
	Schema          string `yaml:"schema"`
	PatchNull       string `yaml:"patch_null"` // store | delete
	CascadingDelete bool   `yaml:"cascading_delete"`
	DefaultPageSize int    `yaml:"default_page_size"`
	FulltextEnabled bool   `yaml:"fulltext_enabled"`
}

// GraphConfig controls the edge index.
type GraphConfig struct {
	Enabled bool   `yaml:"graph_enabled"`
	Mode    string `yaml:"rserv_graph"` // memory | indexed
}

// QueryConfig controls the Sulpher executor and async job manager.
type QueryConfig struct {
	MaxDepth     int           `yaml:"max_query_depth"`
	WorkerCount  int           `yaml:"query_worker_count"`
	Timeout      time.Duration `yaml:"query_timeout"`
}

// CacheConfig controls the document read-through cache.
type CacheConfig struct {
	Type     string        `yaml:"cache_type"` // ttlcache | redis
	TTL      time.Duration `yaml:"cache_ttl"`
	RedisHost string       `yaml:"redis_host"`
	RedisPort int          `yaml:"redis_port"`
}

// Defaults returns a Config populated with the spec's defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Store: StoreConfig{
			DataRoot:        "./data",
			SchemaRoot:      "./schema",
			Schema:          "default",
			PatchNull:       string(store.PatchNullStore),
			CascadingDelete: false,
			DefaultPageSize: 20,
			FulltextEnabled: false,
		},
		Graph: GraphConfig{Enabled: true, Mode: "memory"},
		Query: QueryConfig{
			MaxDepth:    10,
			WorkerCount: 4,
			Timeout:     30 * time.Second,
		},
		Cache: CacheConfig{
			Type:      "ttlcache",
			TTL:       5 * time.Minute,
			RedisHost: "localhost",
			RedisPort: 6379,
		},
	}
}

// Load builds a Config from, in ascending precedence: the built-in
// defaults, an optional YAML file, environment variables prefixed
// `SULPHER_`, and finally any flags the caller registered on fs and
// parsed before calling Load.
//
// filePath may be empty, in which case the file layer is skipped.
func Load(filePath string, fs *pflag.FlagSet) (*Config, error) {
	cfg := Defaults()

	if filePath != "" {
		if err := applyFile(cfg, filePath); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if fs != nil {
		applyFlags(cfg, fs)
	}

	return cfg, cfg.Validate()
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays SULPHER_-prefixed environment variables, matching
// each option's name uppercased (e.g. SULPHER_CACHE_TTL).
func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SULPHER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SULPHER_PORT", cfg.Server.Port)

	cfg.Store.DataRoot = getEnv("SULPHER_DATA_ROOT", cfg.Store.DataRoot)
	cfg.Store.SchemaRoot = getEnv("SULPHER_SCHEMA_ROOT", cfg.Store.SchemaRoot)
	cfg.Store.Schema = getEnv("SULPHER_SCHEMA", cfg.Store.Schema)
	cfg.Store.PatchNull = getEnv("SULPHER_PATCH_NULL", cfg.Store.PatchNull)
	cfg.Store.CascadingDelete = getEnvBool("SULPHER_CASCADING_DELETE", cfg.Store.CascadingDelete)
	cfg.Store.DefaultPageSize = getEnvInt("SULPHER_DEFAULT_PAGE_SIZE", cfg.Store.DefaultPageSize)
	cfg.Store.FulltextEnabled = getEnvBool("SULPHER_FULLTEXT_ENABLED", cfg.Store.FulltextEnabled)

	cfg.Graph.Enabled = getEnvBool("SULPHER_GRAPH_ENABLED", cfg.Graph.Enabled)
	cfg.Graph.Mode = getEnv("SULPHER_RSERV_GRAPH", cfg.Graph.Mode)

	cfg.Query.MaxDepth = getEnvInt("SULPHER_MAX_QUERY_DEPTH", cfg.Query.MaxDepth)
	cfg.Query.WorkerCount = getEnvInt("SULPHER_QUERY_WORKER_COUNT", cfg.Query.WorkerCount)
	cfg.Query.Timeout = getEnvDuration("SULPHER_QUERY_TIMEOUT", cfg.Query.Timeout)

	cfg.Cache.Type = getEnv("SULPHER_CACHE_TYPE", cfg.Cache.Type)
	cfg.Cache.TTL = getEnvDuration("SULPHER_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.RedisHost = getEnv("SULPHER_REDIS_HOST", cfg.Cache.RedisHost)
	cfg.Cache.RedisPort = getEnvInt("SULPHER_REDIS_PORT", cfg.Cache.RedisPort)
}

// applyFlags overlays any flags fs has already parsed, skipping ones the
// caller never registered or never set — flags are the highest-precedence
// layer, so only explicitly-set flags should override env/file values.
func applyFlags(cfg *Config, fs *pflag.FlagSet) {
	visit := func(name string, apply func(*pflag.Flag)) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			apply(f)
		}
	}
	visit("host", func(f *pflag.Flag) { cfg.Server.Host = f.Value.String() })
	visit("port", func(f *pflag.Flag) { cfg.Server.Port = mustAtoi(f.Value.String(), cfg.Server.Port) })
	visit("data-root", func(f *pflag.Flag) { cfg.Store.DataRoot = f.Value.String() })
	visit("schema-root", func(f *pflag.Flag) { cfg.Store.SchemaRoot = f.Value.String() })
	visit("schema", func(f *pflag.Flag) { cfg.Store.Schema = f.Value.String() })
	visit("patch-null", func(f *pflag.Flag) { cfg.Store.PatchNull = f.Value.String() })
	visit("cascading-delete", func(f *pflag.Flag) { cfg.Store.CascadingDelete = f.Value.String() == "true" })
	visit("default-page-size", func(f *pflag.Flag) { cfg.Store.DefaultPageSize = mustAtoi(f.Value.String(), cfg.Store.DefaultPageSize) })
	visit("fulltext-enabled", func(f *pflag.Flag) { cfg.Store.FulltextEnabled = f.Value.String() == "true" })
	visit("graph-enabled", func(f *pflag.Flag) { cfg.Graph.Enabled = f.Value.String() == "true" })
	visit("rserv-graph", func(f *pflag.Flag) { cfg.Graph.Mode = f.Value.String() })
	visit("max-query-depth", func(f *pflag.Flag) { cfg.Query.MaxDepth = mustAtoi(f.Value.String(), cfg.Query.MaxDepth) })
	visit("query-worker-count", func(f *pflag.Flag) { cfg.Query.WorkerCount = mustAtoi(f.Value.String(), cfg.Query.WorkerCount) })
	visit("query-timeout", func(f *pflag.Flag) { cfg.Query.Timeout = mustDuration(f.Value.String(), cfg.Query.Timeout) })
	visit("cache-type", func(f *pflag.Flag) { cfg.Cache.Type = f.Value.String() })
	visit("cache-ttl", func(f *pflag.Flag) { cfg.Cache.TTL = mustDuration(f.Value.String(), cfg.Cache.TTL) })
	visit("redis-host", func(f *pflag.Flag) { cfg.Cache.RedisHost = f.Value.String() })
	visit("redis-port", func(f *pflag.Flag) { cfg.Cache.RedisPort = mustAtoi(f.Value.String(), cfg.Cache.RedisPort) })
}

// RegisterFlags declares every recognized option on fs with its default
// drawn from cfg, so cobra commands can call this once during construction
// and Load can later tell which flags the user actually set.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.String("host", cfg.Server.Host, "HTTP listen host")
	fs.Int("port", cfg.Server.Port, "HTTP listen port")
	fs.String("data-root", cfg.Store.DataRoot, "document data directory")
	fs.String("schema-root", cfg.Store.SchemaRoot, "schema directory")
	fs.String("schema", cfg.Store.Schema, "active schema name")
	fs.String("patch-null", cfg.Store.PatchNull, "PATCH null-field policy: store|delete")
	fs.Bool("cascading-delete", cfg.Store.CascadingDelete, "cascade deletes to referring documents")
	fs.Int("default-page-size", cfg.Store.DefaultPageSize, "default list/search page size")
	fs.Bool("fulltext-enabled", cfg.Store.FulltextEnabled, "enable full-text search backend")
	fs.Bool("graph-enabled", cfg.Graph.Enabled, "enable the graph overlay and Sulpher engine")
	fs.String("rserv-graph", cfg.Graph.Mode, "edge index mode: memory|indexed")
	fs.Int("max-query-depth", cfg.Query.MaxDepth, "default Sulpher variable-length traversal bound")
	fs.Int("query-worker-count", cfg.Query.WorkerCount, "async query worker pool size")
	fs.Duration("query-timeout", cfg.Query.Timeout, "extra HTTP write-timeout allowance for query requests; async query jobs are not time-limited")
	fs.String("cache-type", cfg.Cache.Type, "document cache driver: ttlcache|redis")
	fs.Duration("cache-ttl", cfg.Cache.TTL, "document cache entry TTL")
	fs.String("redis-host", cfg.Cache.RedisHost, "redis host, when cache-type=redis")
	fs.Int("redis-port", cfg.Cache.RedisPort, "redis port, when cache-type=redis")
}

// Validate rejects configurations that would misbehave rather than fail
// fast — the startup-time equivalent of the request-body validation the
// store package applies to documents.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch store.PatchNullPolicy(c.Store.PatchNull) {
	case store.PatchNullStore, store.PatchNullDelete:
	default:
		return fmt.Errorf("invalid patch_null: %q (want store|delete)", c.Store.PatchNull)
	}
	switch c.Graph.Mode {
	case "memory", "indexed":
	default:
		return fmt.Errorf("invalid rserv_graph: %q (want memory|indexed)", c.Graph.Mode)
	}
	switch c.Cache.Type {
	case "ttlcache", "redis":
	default:
		return fmt.Errorf("invalid cache_type: %q (want ttlcache|redis)", c.Cache.Type)
	}
	if c.Query.MaxDepth <= 0 {
		return fmt.Errorf("invalid max_query_depth: %d", c.Query.MaxDepth)
	}
	if c.Query.WorkerCount <= 0 {
		return fmt.Errorf("invalid query_worker_count: %d", c.Query.WorkerCount)
	}
	return nil
}

// String is a safe-for-logging summary.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{listen: %s:%d, data: %s, schema: %s, graph: %s, cache: %s}",
		c.Server.Host, c.Server.Port, c.Store.DataRoot, c.Store.Schema, c.Graph.Mode, c.Cache.Type,
	)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func mustAtoi(s string, fallback int) int {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return fallback
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return fallback
}
