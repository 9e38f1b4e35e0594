// Package main implements the ulmem CLI for operating the ultramemory
// engine directly: adding and querying memories, running agents,
// indexing repositories and managing scheduled tasks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/e6labs/ultramemory/internal/agents"
	"github.com/e6labs/ultramemory/internal/cache"
	"github.com/e6labs/ultramemory/internal/config"
	"github.com/e6labs/ultramemory/internal/consolidate"
	"github.com/e6labs/ultramemory/internal/docproc"
	"github.com/e6labs/ultramemory/internal/embedding"
	"github.com/e6labs/ultramemory/internal/enrich"
	"github.com/e6labs/ultramemory/internal/graph"
	"github.com/e6labs/ultramemory/internal/logging"
	"github.com/e6labs/ultramemory/internal/memory"
	"github.com/e6labs/ultramemory/internal/repoindex"
	"github.com/e6labs/ultramemory/internal/schedule"
	"github.com/e6labs/ultramemory/internal/secrets"
	"github.com/e6labs/ultramemory/internal/state"
	"github.com/e6labs/ultramemory/internal/vector"
)

var (
	flagConfig   string
	flagLogLevel string
	flagJSON     bool

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ulmem",
	Short: "CLI for the ultramemory hybrid memory engine",
	Long: `ulmem operates the ultramemory engine directly against its backends.
It provides commands for storing and querying memories, running agents,
indexing code repositories and managing scheduled maintenance tasks.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log verbosity (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output results as JSON")
}

// env is the cheap bootstrap: configuration, logging and the state
// directory. Commands that only touch on-disk state stop here.
type env struct {
	cfg      *config.Config
	logger   *logging.Logger
	stateDir string
}

func newEnv() (*env, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(&logging.Config{
		Level:   flagLogLevel,
		Format:  "console",
		Service: "ulmem",
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	stateDir, err := state.Dir(cfg.Engine.DataDir)
	if err != nil {
		return nil, err
	}
	if err := state.EnsureLayout(stateDir); err != nil {
		return nil, fmt.Errorf("prepare state dir: %w", err)
	}

	return &env{cfg: cfg, logger: logger, stateDir: stateDir}, nil
}

func (e *env) scheduleStore() *schedule.Store {
	return schedule.NewStore(state.Path(e.stateDir, state.SchedulesFile))
}

func (e *env) scheduleLogsDir() string {
	return state.Path(e.stateDir, "logs/schedules")
}

func (e *env) agentsDir() string {
	return state.Path(e.stateDir, state.AgentsDir)
}

// app is the full bootstrap: backends, coordinator, engine, agents and
// the repository ingestor. Built per command, torn down by close.
type app struct {
	*env

	coordinator *memory.Coordinator
	engine      *consolidate.Engine
	registry    *agents.Registry
	librarian   *agents.Librarian
	deleter     *agents.Deleter
	ingestor    *repoindex.Ingestor
	store       *schedule.Store
	runner      *schedule.Runner

	close func()
}

func newApp(ctx context.Context) (*app, error) {
	e, err := newEnv()
	if err != nil {
		return nil, err
	}
	cfg, logger := e.cfg, e.logger

	vectorIdx, err := vector.New(&vector.Config{
		Host:           cfg.Vector.Host,
		Port:           cfg.Vector.Port,
		UseTLS:         cfg.Vector.UseTLS,
		APIKey:         cfg.Vector.APIKey.Value(),
		Collection:     cfg.Vector.CollectionName,
		Dimension:      uint64(cfg.Embedding.VectorSize),
		DialTimeout:    cfg.Vector.DialTimeout.Duration(),
		RequestTimeout: cfg.Vector.RequestTimeout.Duration(),
		RetryAttempts:  cfg.Vector.RetryAttempts,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect vector index: %w", err)
	}
	if err := vectorIdx.EnsureCollection(ctx); err != nil {
		vectorIdx.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	graphIdx, err := graph.New(&graph.Config{
		Addr:      cfg.Graph.Addr,
		Password:  cfg.Graph.Password.Value(),
		DB:        cfg.Graph.DB,
		GraphName: cfg.Graph.GraphName,
	}, logger)
	if err != nil {
		vectorIdx.Close()
		return nil, fmt.Errorf("connect graph index: %w", err)
	}

	cacheClient, err := cache.New(&cache.Config{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password.Value(),
		DB:       cfg.Cache.DB,
	}, logger)
	if err != nil {
		graphIdx.Close()
		vectorIdx.Close()
		return nil, fmt.Errorf("connect cache: %w", err)
	}

	embedder := embedding.NewProvider(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		APIKey:    cfg.Embedding.APIKey.Value(),
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		Dimension: cfg.Embedding.VectorSize,
		Timeout:   cfg.Embedding.Timeout.Duration(),
		RateLimit: cfg.Embedding.RateLimit,
		Burst:     cfg.Embedding.Burst,
	}, logger)

	auditor := state.NewAuditWriter(state.Path(e.stateDir, state.DeletionsLog))
	coordinator := memory.New(vectorIdx, graphIdx, cacheClient, embedder, enrich.New(), memory.Options{
		Auditor: auditor,
		Logger:  logger,
	})

	engine := consolidate.New(vectorIdx, graphIdx, embedder, coordinator, consolidate.Config{
		SampleSize:          cfg.Consolidate.SemanticSampleSize,
		LinkSampleSize:      cfg.Consolidate.SimilarDocLimit,
		OrphanLimit:         cfg.Consolidate.OrphanBatchSize,
		FixpointRounds:      cfg.Consolidate.MaxSyncIterations,
		SimilarityThreshold: cfg.Consolidate.SemanticThreshold,
		LinkThreshold:       cfg.Consolidate.SimilarThreshold,
		FuzzyThreshold:      cfg.Consolidate.FuzzyThreshold,
	}, logger)

	processor := docproc.New(docproc.Config{}, logger)
	librarian := agents.NewLibrarian(coordinator, processor, logger)
	deleter := agents.NewDeleter(coordinator, logger)
	registry := agents.NewRegistry(librarian, agents.EngineConsolidator{Engine: engine}, deleter, e.agentsDir(), logger)

	categories, err := repoindex.LoadCategories(state.Path(e.stateDir, state.CategoriesFile))
	if err != nil {
		graphIdx.Close()
		vectorIdx.Close()
		return nil, fmt.Errorf("load categories: %w", err)
	}
	var scanner *secrets.Scanner
	if cfg.Repo.RedactSecrets {
		scanner, err = secrets.NewScanner(nil)
		if err != nil {
			graphIdx.Close()
			vectorIdx.Close()
			return nil, fmt.Errorf("init secret scanner: %w", err)
		}
	}
	ingestor := repoindex.New(coordinator, categories, scanner, repoindex.Config{
		GitHubToken:   cfg.Repo.GitHubToken.Value(),
		MaxFileSize:   cfg.Repo.MaxFileSize,
		MaxFiles:      cfg.Repo.MaxFiles,
		Excludes:      cfg.Repo.Excludes,
		RedactSecrets: cfg.Repo.RedactSecrets,
	}, logger)

	store := e.scheduleStore()
	runner := schedule.NewRunner(store, registry, e.scheduleLogsDir(), logger)

	return &app{
		env:         e,
		coordinator: coordinator,
		engine:      engine,
		registry:    registry,
		librarian:   librarian,
		deleter:     deleter,
		ingestor:    ingestor,
		store:       store,
		runner:      runner,
		close: func() {
			cacheClient.Close()
			graphIdx.Close()
			vectorIdx.Close()
			_ = logger.Sync()
		},
	}, nil
}

// outputJSON prints v as indented JSON to stdout.
func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
