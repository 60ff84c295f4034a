// Package main provides the sulpherd CLI entry point: a document store,
// graph overlay and Sulpher query engine served over HTTP. Command
// structure is a root command plus serve/init-schema/version subcommands
// built with cobra, with signal-driven graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ha1tch/rserv/internal/cache"
	"github.com/ha1tch/rserv/internal/config"
	"github.com/ha1tch/rserv/internal/graph"
	"github.com/ha1tch/rserv/internal/httpapi"
	"github.com/ha1tch/rserv/internal/jobs"
	"github.com/ha1tch/rserv/internal/logging"
	"github.com/ha1tch/rserv/internal/store"
	"github.com/ha1tch/rserv/internal/sulpher"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	defaults := config.Defaults()
	fs := pflag.NewFlagSet("sulpherd", pflag.ContinueOnError)
	config.RegisterFlags(fs, defaults)

	var configFile string

	rootCmd := &cobra.Command{
		Use:   "sulpherd",
		Short: "sulpherd - document store and graph query engine",
		Long: `sulpherd serves a schema-validated JSON document store with a
derived graph overlay, queryable through the Sulpher pattern-matching
language (a Cypher subset) either synchronously or via an asynchronous
job queue.`,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().AddFlagSet(fs)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sulpherd v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sulpherd HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile, cmd.Flags())
		},
	}
	rootCmd.AddCommand(serveCmd)

	initCmd := &cobra.Command{
		Use:   "init-schema",
		Short: "Create the data/schema directory layout for a fresh install",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitSchema(configFile, cmd.Flags())
		},
	}
	rootCmd.AddCommand(initCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(configFile string, fs *pflag.FlagSet) (*config.Config, error) {
	_ = fs.Parse(os.Args[1:])
	return config.Load(configFile, fs)
}

func runInitSchema(configFile string, fs *pflag.FlagSet) error {
	cfg, err := loadConfig(configFile, fs)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dirs := []string{
		cfg.Store.DataRoot,
		filepath.Join(cfg.Store.SchemaRoot, cfg.Store.Schema),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	fmt.Printf("initialised schema %q under %s, data under %s\n", cfg.Store.Schema, cfg.Store.SchemaRoot, cfg.Store.DataRoot)
	return nil
}

func runServe(configFile string, fs *pflag.FlagSet) error {
	cfg, err := loadConfig(configFile, fs)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New("info", true)
	log.Info().Str("config", cfg.String()).Msg("starting sulpherd")

	if err := os.MkdirAll(cfg.Store.DataRoot, 0o755); err != nil {
		return fmt.Errorf("creating data root: %w", err)
	}

	var readCache cache.Cache
	switch cfg.Cache.Type {
	case "redis":
		readCache = cache.NewRedisCache(cfg.Cache.RedisHost, cfg.Cache.RedisPort)
	default:
		readCache = cache.NewTTLCache()
	}
	defer readCache.Close()

	var edges graph.Index
	var rebuildIndexed *graph.IndexedIndex
	if cfg.Graph.Enabled {
		switch cfg.Graph.Mode {
		case "indexed":
			idx, valid, err := graph.OpenIndexed(filepath.Join(cfg.Store.DataRoot, cfg.Store.Schema, "graph.index"), log)
			if err != nil {
				return fmt.Errorf("open indexed graph: %w", err)
			}
			if !valid {
				log.Warn().Msg("graph index missing or checksum-mismatched; rebuilding from document scan")
				rebuildIndexed = idx
			}
			edges = idx
		default:
			edges = graph.NewMemoryIndex()
		}
	}
	if edges != nil {
		defer edges.Close()
	}

	docs, err := store.New(store.Options{
		DataRoot:        cfg.Store.DataRoot,
		SchemaRoot:      cfg.Store.SchemaRoot,
		SchemaName:      cfg.Store.Schema,
		PatchNull:       store.PatchNullPolicy(cfg.Store.PatchNull),
		CascadingDelete: cfg.Store.CascadingDelete,
		DefaultPageSize: cfg.Store.DefaultPageSize,
		CacheTTL:        cfg.Cache.TTL,
		Log:             log,
	}, edges, readCache)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	switch {
	case rebuildIndexed != nil:
		err = rebuildIndexed.RebuildFromScan(func(func(graph.NodeRef, []graph.Ref) error) error {
			return docs.BootScan(context.Background())
		})
	case edges != nil && cfg.Graph.Mode != "indexed":
		err = docs.BootScan(context.Background())
	}
	if err != nil {
		return fmt.Errorf("scan documents into graph index: %w", err)
	}

	exec := httpapi.BuildExecutor(cfg, docs, edges)

	var jobMgr *jobs.Manager
	if cfg.Graph.Enabled {
		jobMgr = jobs.NewManager(func(q *sulpher.Query, maxDepth int) (*sulpher.Result, error) {
			return httpapi.ExecuteQuery(exec, q, maxDepth)
		}, jobs.Options{
			Workers:      cfg.Query.WorkerCount,
			CacheTTL:     cfg.Cache.TTL,
			DefaultDepth: cfg.Query.MaxDepth,
			Log:          log,
		})
		defer jobMgr.Close()
	}

	api := httpapi.New(cfg, docs, edges, exec, jobMgr, log)

	if err := api.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	log.Info().Str("addr", api.Addr()).Msg("sulpherd listening")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return api.Stop(ctx)
}
