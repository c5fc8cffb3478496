package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/foundrylab/pyfoundry/internal/aststore"
	"github.com/foundrylab/pyfoundry/internal/catalog"
	"github.com/foundrylab/pyfoundry/internal/config"
	"github.com/foundrylab/pyfoundry/internal/frontend"
	"github.com/foundrylab/pyfoundry/internal/hashcache"
	"github.com/foundrylab/pyfoundry/internal/ingest"
	"github.com/foundrylab/pyfoundry/internal/metrics"
	"github.com/foundrylab/pyfoundry/internal/sched"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "pyfoundry",
		Short:   "Ingestion frontend: parse a multi-root Python codebase into a deduplicated AST store",
		Version: version,
	}
	root.AddCommand(newParseCmd())
	return root
}

func newParseCmd() *cobra.Command {
	var (
		cfgPath     string
		projectRoot string
		typeshed    string
		searchPaths []string
		excludes    []string
		workers     int
		sequential  bool
		verbose     bool
		hashCache   string
	)

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse all stubs and sources under the configured roots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			// Flags override file values.
			if projectRoot != "" {
				cfg.ProjectRoot = projectRoot
			}
			if typeshed != "" {
				cfg.TypeshedRoot = typeshed
			}
			if len(searchPaths) > 0 {
				cfg.SearchPaths = searchPaths
			}
			if len(excludes) > 0 {
				cfg.Excludes = excludes
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workers = workers
			}
			if sequential {
				cfg.Sequential = true
			}
			if verbose {
				cfg.Verbose = true
			}
			if hashCache != "" {
				cfg.HashCache = hashCache
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runParse(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&projectRoot, "root", "", "project source root")
	cmd.Flags().StringVar(&typeshed, "typeshed", "", "typeshed root directory")
	cmd.Flags().StringArrayVar(&searchPaths, "search-path", nil, "additional search-path root (repeatable)")
	cmd.Flags().StringArrayVar(&excludes, "exclude", nil, "glob pattern to exclude (repeatable)")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (0 = one per CPU)")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "disable the worker pool")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "per-file syntax diagnostics and debug logs")
	cmd.Flags().StringVar(&hashCache, "hash-cache", "", "SQLite file persisting content hashes across runs")

	return cmd
}

func runParse(cmd *cobra.Command, cfg *config.Config) error {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cat, err := catalog.New(catalog.Options{
		ProjectRoot:  cfg.ProjectRoot,
		TypeshedRoot: cfg.TypeshedRoot,
		SearchPaths:  cfg.SearchPaths,
		Excludes:     cfg.Excludes,
	})
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	var cache *hashcache.Cache
	if cfg.HashCache != "" {
		cache, err = hashcache.Open(cfg.HashCache)
		if err != nil {
			return fmt.Errorf("hash cache: %w", err)
		}
		defer cache.Close()
	}

	orch := ingest.New(ingest.Options{
		Catalog:   cat,
		Scheduler: sched.New(sched.Options{Parallel: !cfg.Sequential, Workers: cfg.Workers}),
		Store:     aststore.New(),
		Frontend: frontend.New(frontend.Options{
			Roots:       cat.Roots(),
			Diagnostics: cfg.Verbose,
		}),
		Recorder: metrics.NewPrometheus(),
		Cache:    cache,
	})

	result, err := orch.ParseAll(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "stubs: %d\nsources: %d\n", len(result.Stubs), len(result.Sources))
	return nil
}
