// Ultramemoryd is the hybrid memory engine daemon.
//
// It wires the three backends (Qdrant vectors, FalkorDB graph, Redis
// cache) behind the memory coordinator, runs the consolidation engine
// and the task scheduler, watches the heartbeat checklist, and serves
// health, metrics and stats over HTTP.
//
// Usage:
//
//	ultramemoryd --config /etc/ultramemory/config.yaml
//	ultramemoryd version
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/e6labs/ultramemory/internal/agents"
	"github.com/e6labs/ultramemory/internal/cache"
	"github.com/e6labs/ultramemory/internal/config"
	"github.com/e6labs/ultramemory/internal/consolidate"
	"github.com/e6labs/ultramemory/internal/docproc"
	"github.com/e6labs/ultramemory/internal/embedding"
	"github.com/e6labs/ultramemory/internal/enrich"
	"github.com/e6labs/ultramemory/internal/graph"
	"github.com/e6labs/ultramemory/internal/heartbeat"
	"github.com/e6labs/ultramemory/internal/logging"
	"github.com/e6labs/ultramemory/internal/memory"
	"github.com/e6labs/ultramemory/internal/schedule"
	"github.com/e6labs/ultramemory/internal/server"
	"github.com/e6labs/ultramemory/internal/state"
	"github.com/e6labs/ultramemory/internal/telemetry"
	"github.com/e6labs/ultramemory/internal/vector"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			fmt.Printf("ultramemoryd\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n", version, gitCommit, buildDate)
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\nUsage:\n  ultramemoryd [--config path]   Start the daemon\n  ultramemoryd version           Show version information\n", args[0])
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("daemon error: %v", err)
	}
	log.Println("shutdown complete")
}

// run wires every component in dependency order and blocks until ctx
// is cancelled, then stops them in reverse.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.Endpoint != "" {
		telCfg.Endpoint = cfg.Telemetry.Endpoint
	}
	telCfg.Protocol = cfg.Telemetry.Protocol
	telCfg.Insecure = cfg.Telemetry.Insecure
	telCfg.Sampling.Rate = cfg.Telemetry.SamplingRate
	telCfg.Metrics.ExportInterval = cfg.Telemetry.MetricInterval
	telCfg.ServiceVersion = version

	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownWithTimeout(tel.Shutdown)

	logger, err := logging.New(&logging.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Service: "ultramemory",
	}, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Sync()

	logger.Info(ctx, "ultramemoryd starting",
		zap.String("version", version), zap.String("commit", gitCommit))

	stateDir, err := state.Dir(cfg.Engine.DataDir)
	if err != nil {
		return err
	}
	if err := state.EnsureLayout(stateDir); err != nil {
		return fmt.Errorf("prepare state dir: %w", err)
	}

	// Backends.
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
		return fmt.Errorf("connect vector index: %w", err)
	}
	defer vectorIdx.Close()

	if err := vectorIdx.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	graphIdx, err := graph.New(&graph.Config{
		Addr:      cfg.Graph.Addr,
		Password:  cfg.Graph.Password.Value(),
		DB:        cfg.Graph.DB,
		GraphName: cfg.Graph.GraphName,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect graph index: %w", err)
	}
	defer graphIdx.Close()

	cacheClient, err := cache.New(&cache.Config{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password.Value(),
		DB:       cfg.Cache.DB,
	}, logger)
	if err != nil {
		// A dead cache degrades latency, not correctness; the
		// coordinator requires a client, so this one is fatal anyway.
		return fmt.Errorf("connect cache: %w", err)
	}
	defer cacheClient.Close()

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

	// Coordinator.
	auditor := state.NewAuditWriter(state.Path(stateDir, state.DeletionsLog))
	coordinator := memory.New(vectorIdx, graphIdx, cacheClient, embedder, enrich.New(), memory.Options{
		Auditor: auditor,
		Logger:  logger,
	})

	// Consolidation engine.
	engine := consolidate.New(vectorIdx, graphIdx, embedder, coordinator, consolidate.Config{
		SampleSize:          cfg.Consolidate.SemanticSampleSize,
		LinkSampleSize:      cfg.Consolidate.SimilarDocLimit,
		OrphanLimit:         cfg.Consolidate.OrphanBatchSize,
		FixpointRounds:      cfg.Consolidate.MaxSyncIterations,
		SimilarityThreshold: cfg.Consolidate.SemanticThreshold,
		LinkThreshold:       cfg.Consolidate.SimilarThreshold,
		FuzzyThreshold:      cfg.Consolidate.FuzzyThreshold,
	}, logger)

	// Agents and scheduler.
	processor := docproc.New(docproc.Config{}, logger)
	registry := agents.NewRegistry(
		agents.NewLibrarian(coordinator, processor, logger),
		agents.EngineConsolidator{Engine: engine},
		agents.NewDeleter(coordinator, logger),
		state.Path(stateDir, state.AgentsDir),
		logger,
	)

	scheduleStore := schedule.NewStore(state.Path(stateDir, state.SchedulesFile))
	runner := schedule.NewRunner(scheduleStore, registry, state.Path(stateDir, "logs/schedules"), logger)

	// HTTP server.
	httpServer, err := server.New(coordinator, map[string]server.Checker{
		"vector": vectorIdx.Health,
		"graph":  graphIdx.Health,
		"cache":  cacheClient.Ping,
	}, server.Config{Host: cfg.Server.Host, Port: cfg.Server.Port}, logger)
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- httpServer.Start() }()

	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if cfg.Cache.WarmOnStart {
		go func() {
			n, err := coordinator.WarmCache(ctx)
			if err != nil {
				logger.Warn(ctx, "startup cache warm-up failed", zap.Error(err))
				return
			}
			logger.Info(ctx, "startup cache warm-up complete", zap.Int("queries", n))
		}()
	}

	// Heartbeat watcher: pending checklist items become memory
	// documents.
	heartbeatPath := state.Path(stateDir, state.HeartbeatFile)
	watcher, err := heartbeat.NewWatcher(heartbeatPath, heartbeat.DefaultDebounce, logger)
	if err != nil {
		return fmt.Errorf("init heartbeat watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start heartbeat watcher: %w", err)
	}
	go ingestHeartbeats(ctx, watcher, coordinator, logger)

	logger.Info(ctx, "ultramemoryd ready",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.String("state_dir", stateDir))

	// Block until shutdown, then stop in reverse order.
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	watcher.Stop()
	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "http shutdown", zap.Error(err))
	}
	return nil
}

// ingestHeartbeats stores every pending checklist item as a heartbeat
// document. Already-stored titles are deduplicated by the engine's
// content hashing during consolidation.
func ingestHeartbeats(ctx context.Context, watcher *heartbeat.Watcher, coordinator *memory.Coordinator, logger *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events():
			if !ok {
				return
			}
			for _, task := range event.Pending {
				meta := memory.Metadata{
					SourceType: "heartbeat",
					Source:     "heartbeat.md",
					Type:       "pending_task",
					Keywords:   task.Tags,
				}
				if _, err := coordinator.Add(ctx, task.Title, meta); err != nil {
					logger.Warn(ctx, "heartbeat task not stored",
						zap.String("title", task.Title), zap.Error(err))
				}
			}
			logger.Info(ctx, "heartbeat processed",
				zap.Int("pending", len(event.Pending)))
		}
	}
}

func shutdownWithTimeout(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = fn(ctx)
}
