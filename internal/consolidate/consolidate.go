// Package consolidate implements the periodic reconciliation and
// cleanup engine: duplicate purges, entity extraction, graph
// densification and vector/graph convergence. Every phase is isolated;
// a failing phase records an error on the report and the run continues.
package consolidate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/e6labs/ultramemory/internal/logging"
	"github.com/e6labs/ultramemory/internal/memory"
)

// Tunables with their default values.
const (
	DefaultMinContentLength = 10
	DefaultMaxContentLength = 100000
	DefaultSampleSize       = 200
	DefaultLinkSampleSize   = 100
	DefaultMentionCap       = 10
	DefaultOrphanLimit      = 1000
	DefaultFixpointRounds   = 5

	DefaultSimilarityThreshold = 0.85
	DefaultLinkThreshold       = 0.7
	DefaultFuzzyThreshold      = 0.75
)

// VectorStore is the slice of the vector index the engine needs.
type VectorStore interface {
	ListIDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (*memory.Document, error)
	Search(ctx context.Context, vector []float32, limit int) ([]memory.ScoredDocument, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (uint64, error)
}

// GraphStore is the slice of the graph index the engine needs.
type GraphStore interface {
	CreateNode(ctx context.Context, doc memory.Document) error
	DeleteNode(ctx context.Context, id string) error
	ListIDs(ctx context.Context) ([]string, error)
	Relationships(ctx context.Context, id string) ([]memory.GraphRelationship, error)
	AddRelationship(ctx context.Context, fromID, toID, relType string, props map[string]string) error
	UpsertEntity(ctx context.Context, label, name, lastUpdated string) error
	LinkMention(ctx context.Context, docID, label, name, lastUpdated string) error
	MentionCount(ctx context.Context, label, name string) (int, error)
	OrphanCount(ctx context.Context) (int, error)
	DeleteOrphans(ctx context.Context, limit int) (int, error)
	LinkByKeywords(ctx context.Context) (int, error)
	Stats(ctx context.Context) (memory.GraphStats, error)
}

// Adder writes the generated insight document back into memory.
// Satisfied by the store coordinator.
type Adder interface {
	Add(ctx context.Context, content string, meta memory.Metadata) (*memory.AddResult, error)
}

// Config tunes sample sizes and thresholds. Zero values take defaults.
type Config struct {
	MinContentLength    int
	MaxContentLength    int
	SampleSize          int
	LinkSampleSize      int
	MentionCap          int
	OrphanLimit         int
	FixpointRounds      int
	SimilarityThreshold float32
	LinkThreshold       float32
	FuzzyThreshold      float64
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.MinContentLength <= 0 {
		c.MinContentLength = DefaultMinContentLength
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = DefaultMaxContentLength
	}
	if c.SampleSize <= 0 {
		c.SampleSize = DefaultSampleSize
	}
	if c.LinkSampleSize <= 0 {
		c.LinkSampleSize = DefaultLinkSampleSize
	}
	if c.MentionCap <= 0 {
		c.MentionCap = DefaultMentionCap
	}
	if c.OrphanLimit <= 0 {
		c.OrphanLimit = DefaultOrphanLimit
	}
	if c.FixpointRounds <= 0 {
		c.FixpointRounds = DefaultFixpointRounds
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.LinkThreshold <= 0 {
		c.LinkThreshold = DefaultLinkThreshold
	}
	if c.FuzzyThreshold <= 0 {
		c.FuzzyThreshold = DefaultFuzzyThreshold
	}
}

// Report is the outcome of one consolidation run.
type Report struct {
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`

	Analysis *Analysis `json:"analysis,omitempty"`

	ChangedDocuments int `json:"changed_documents"`
	SyncedNodes      int `json:"synced_nodes"`

	ExactDuplicatesRemoved    int `json:"exact_duplicates_removed"`
	SemanticDuplicatesRemoved int `json:"semantic_duplicates_removed"`
	FuzzyDuplicatesRemoved    int `json:"fuzzy_duplicates_removed"`
	MalformedRemoved          int `json:"malformed_removed"`

	EntitiesLinked  int `json:"entities_linked"`
	SimilarityLinks int `json:"similarity_links"`

	OrphansFound     int  `json:"orphans_found"`
	OrphansRemoved   int  `json:"orphans_removed"`
	StoreDivergence  int  `json:"store_divergence"`
	InsightGenerated bool `json:"insight_generated"`

	ReconcileAdded     int  `json:"reconcile_added"`
	ReconcileRemoved   int  `json:"reconcile_removed"`
	ReconcileConverged bool `json:"reconcile_converged"`
	KeywordLinks       int  `json:"keyword_links"`

	HealthScore float64  `json:"health_score"`
	Errors      []string `json:"errors,omitempty"`
}

// Engine runs the consolidation phases over the injected stores. Safe
// for concurrent use; runs themselves are serialised.
type Engine struct {
	vector   VectorStore
	graph    GraphStore
	embedder memory.Embedder
	adder    Adder
	config   Config
	logger   *logging.Logger
	metrics  *Metrics
	now      memory.Clock

	mu sync.Mutex
	// Content hashes from the previous run; empty after restart so the
	// first run is always full.
	prevHashes map[string]string
}

// New builds an Engine. adder may be nil; insight generation is then
// skipped.
func New(vector VectorStore, graph GraphStore, embedder memory.Embedder, adder Adder, config Config, logger *logging.Logger) *Engine {
	config.ApplyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		vector:     vector,
		graph:      graph,
		embedder:   embedder,
		adder:      adder,
		config:     config,
		logger:     logger.Named("consolidate"),
		metrics:    NewMetrics(),
		now:        time.Now,
		prevHashes: make(map[string]string),
	}
}

// Consolidate runs all phases in order. forceFull treats every
// document as changed regardless of the previous run's hashes.
func (e *Engine) Consolidate(ctx context.Context, forceFull bool) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := &Report{StartedAt: e.now().UTC().Format(time.RFC3339)}
	start := time.Now()

	docs := e.loadDocuments(ctx, report)

	e.phase(ctx, report, "deep_analysis", func() error {
		return e.analyze(ctx, docs, report)
	})

	var changed []memory.Document
	e.phase(ctx, report, "change_detection", func() error {
		changed = e.detectChanges(docs, forceFull)
		report.ChangedDocuments = len(changed)
		return nil
	})

	e.phase(ctx, report, "incremental_sync", func() error {
		return e.syncChanged(ctx, changed, report)
	})

	// Deletions in one purge phase exclude the document from later
	// phases.
	deleted := make(map[string]bool)

	e.phase(ctx, report, "exact_duplicates", func() error {
		return e.purgeExactDuplicates(ctx, docs, deleted, report)
	})
	e.phase(ctx, report, "semantic_duplicates", func() error {
		return e.purgeSemanticDuplicates(ctx, docs, deleted, report)
	})
	e.phase(ctx, report, "fuzzy_duplicates", func() error {
		return e.purgeFuzzyDuplicates(ctx, docs, deleted, report)
	})
	e.phase(ctx, report, "malformed", func() error {
		return e.purgeMalformed(ctx, docs, deleted, report)
	})

	docs = surviving(docs, deleted)

	e.phase(ctx, report, "entity_extraction", func() error {
		return e.extractAndLinkEntities(ctx, docs, report)
	})
	e.phase(ctx, report, "similarity_links", func() error {
		return e.linkSimilarDocuments(ctx, docs, report)
	})
	e.phase(ctx, report, "cross_reference", func() error {
		return e.validateCrossReferences(ctx, report)
	})
	e.phase(ctx, report, "orphan_cleanup", func() error {
		removed, err := e.graph.DeleteOrphans(ctx, e.config.OrphanLimit)
		report.OrphansRemoved = removed
		return err
	})
	e.phase(ctx, report, "insights", func() error {
		return e.generateInsights(ctx, docs, report)
	})
	e.phase(ctx, report, "reconciliation", func() error {
		return e.reconcile(ctx, report)
	})

	report.FinishedAt = e.now().UTC().Format(time.RFC3339)
	e.metrics.RecordRun()
	e.logger.Info(ctx, "consolidation finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("documents", len(docs)),
		zap.Float64("health", report.HealthScore),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// Analyze runs the deep-analysis phase alone, reading the stores
// without mutating them. The returned report carries only the analysis.
func (e *Engine) Analyze(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := &Report{StartedAt: e.now().UTC().Format(time.RFC3339)}
	docs := e.loadDocuments(ctx, report)
	if err := e.analyze(ctx, docs, report); err != nil {
		return nil, fmt.Errorf("analyze memory: %w", err)
	}
	report.FinishedAt = e.now().UTC().Format(time.RFC3339)
	return report, nil
}

// phase runs fn, recording a failure on the report instead of
// propagating it. A cancelled context short-circuits the phase.
func (e *Engine) phase(ctx context.Context, report *Report, name string, fn func() error) {
	if err := ctx.Err(); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", name, err))
		return
	}
	start := time.Now()
	err := fn()
	e.metrics.RecordPhase(name, time.Since(start).Seconds(), err != nil)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", name, err))
		e.logger.Warn(ctx, "consolidation phase failed",
			zap.String("phase", name), zap.Error(err))
	}
}

// loadDocuments reads every document out of the vector store.
func (e *Engine) loadDocuments(ctx context.Context, report *Report) []memory.Document {
	ids, err := e.vector.ListIDs(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("load: %v", err))
		return nil
	}
	docs := make([]memory.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := e.vector.Get(ctx, id)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("load %s: %v", id, err))
			continue
		}
		if doc != nil {
			docs = append(docs, *doc)
		}
	}
	return docs
}

// detectChanges hashes every document and diffs against the previous
// run's map. New and changed documents form the sync set.
func (e *Engine) detectChanges(docs []memory.Document, forceFull bool) []memory.Document {
	next := make(map[string]string, len(docs))
	var changed []memory.Document
	for _, doc := range docs {
		h := contentHash(doc.Content)
		next[doc.ID] = h
		if forceFull || e.prevHashes[doc.ID] != h {
			changed = append(changed, doc)
		}
	}
	e.prevHashes = next
	return changed
}

func (e *Engine) syncChanged(ctx context.Context, changed []memory.Document, report *Report) error {
	var firstErr error
	for _, doc := range changed {
		if err := e.graph.CreateNode(ctx, doc); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		report.SyncedNodes++
	}
	return firstErr
}

func surviving(docs []memory.Document, deleted map[string]bool) []memory.Document {
	if len(deleted) == 0 {
		return docs
	}
	kept := docs[:0]
	for _, doc := range docs {
		if !deleted[doc.ID] {
			kept = append(kept, doc)
		}
	}
	return kept
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func normalizedHash(content string) string {
	return contentHash(strings.ToLower(strings.TrimSpace(content)))
}
