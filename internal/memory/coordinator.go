package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/e6labs/ultramemory/internal/embedding"
	"github.com/e6labs/ultramemory/internal/logging"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("ultramemory.memory.coordinator")

const (
	// recentWindow bounds the recent-documents sorted set.
	recentWindow = 100
	// prefetchFanout bounds how many query hits seed prefetch markers.
	prefetchFanout = 10
	// maxEntityLabels bounds how many entity-type labels decorate a node.
	maxEntityLabels = 3
)

// warmupQueries is the canned list used to pre-populate the query cache.
var warmupQueries = []string{
	"project", "architecture", "bug", "feature", "api",
	"config", "memory", "research", "documentation",
}

// Coordinator orchestrates writes and reads across the vector index,
// the graph index, and the cache. Write order within one Add is fixed:
// vector, then graph, then cache.
type Coordinator struct {
	vector   VectorIndex
	graph    GraphIndex
	cache    Cache
	embedder Embedder
	enricher Enricher

	temporal TemporalIndex
	audit    Auditor

	log     *logging.Logger
	metrics *Metrics
	now     Clock
}

// Options carries the optional collaborators.
type Options struct {
	// Temporal, when set, becomes the third query source.
	Temporal TemporalIndex
	// Auditor, when set, receives one record per deletion.
	Auditor Auditor
	Logger  *logging.Logger
	// Clock overrides wall-clock time in tests.
	Clock Clock
}

// New constructs a Coordinator. vector, graph, cache, embedder and
// enricher are required.
func New(vector VectorIndex, graph GraphIndex, cache Cache, embedder Embedder, enricher Enricher, opts Options) *Coordinator {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		vector:   vector,
		graph:    graph,
		cache:    cache,
		embedder: embedder,
		enricher: enricher,
		temporal: opts.Temporal,
		audit:    opts.Auditor,
		log:      log.Named("memory"),
		metrics:  NewMetrics(),
		now:      now,
	}
}

// Add ingests one document: enrich, embed, write vector then graph
// then cache. Backend errors are accumulated, never fatal; the result
// status reports the per-store outcome.
func (c *Coordinator) Add(ctx context.Context, content string, meta Metadata) (*AddResult, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.Add")
	defer span.End()
	span.SetAttributes(attribute.Int("content_length", len(content)))

	start := c.now()
	res := &AddResult{Status: StatusFailed}

	if err := ctx.Err(); err != nil {
		res.Status = StatusCancelled
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	meta = c.enricher.Enrich(content, meta)

	vec, err := c.embedder.Embed(ctx, embeddingText(content, meta))
	if err != nil {
		// The provider contract says never block the pipeline.
		c.log.Warn(ctx, "embedding failed, using deterministic fallback", zap.Error(err))
		vec = embedding.Deterministic(content, c.embedder.Dimension())
	}

	doc := Document{
		ID:        uuid.NewString(),
		Content:   content,
		Embedding: vec,
		Metadata:  meta,
	}

	vectorOK := false
	if id, err := c.vector.Upsert(ctx, doc); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("vector: %v", err))
		c.metrics.RecordStoreError("vector")
		c.log.Error(ctx, "vector upsert failed", zap.Error(err))
	} else {
		doc.ID = id
		res.VectorID = id
		vectorOK = true
	}

	if err := ctx.Err(); err != nil {
		res.Status = StatusCancelled
		return res, err
	}

	graphDoc := doc
	graphDoc.Metadata.Labels = nodeLabels(meta)
	graphOK := false
	if err := c.graph.CreateNode(ctx, graphDoc); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("graph: %v", err))
		c.metrics.RecordStoreError("graph")
		c.log.Error(ctx, "graph node create failed", zap.Error(err))
	} else {
		res.GraphID = doc.ID
		graphOK = true
	}

	switch {
	case vectorOK && graphOK:
		res.Status = StatusFull
	case vectorOK || graphOK:
		res.Status = StatusPartial
	}

	if res.Status != StatusFailed {
		c.fillCaches(ctx, doc)
	}

	span.SetAttributes(attribute.String("status", string(res.Status)))
	c.metrics.RecordAdd(res.Status, c.now().Sub(start).Seconds())
	c.log.Info(ctx, "document added",
		zap.String("id", res.ID()),
		zap.String("status", string(res.Status)),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

// fillCaches writes the per-document cache entries. Every write is
// best-effort.
func (c *Coordinator) fillCaches(ctx context.Context, doc Document) {
	id := doc.ID
	if err := c.cache.StoreDocument(ctx, id, doc.Content); err != nil {
		c.cacheMiss(ctx, "store document", err)
	}
	if len(doc.Metadata.Keywords) > 0 {
		if err := c.cache.StoreKeywords(ctx, id, doc.Metadata.Keywords); err != nil {
			c.cacheMiss(ctx, "store keywords", err)
		}
	}
	if tokens := entityTokens(doc.Metadata.Entities); len(tokens) > 0 {
		if err := c.cache.StoreEntityLinks(ctx, id, tokens); err != nil {
			c.cacheMiss(ctx, "store entity links", err)
		}
	}
	if err := c.cache.TouchRecent(ctx, id, doc.Content); err != nil {
		c.cacheMiss(ctx, "touch recent", err)
	}
}

func (c *Coordinator) cacheMiss(ctx context.Context, op string, err error) {
	c.metrics.RecordStoreError("cache")
	c.log.Debug(ctx, "cache write skipped", zap.String("op", op), zap.Error(err))
}

// Query fans one request out across the stores. With useCache, a
// cached payload short-circuits the fanout.
func (c *Coordinator) Query(ctx context.Context, text string, limit int, useCache bool) (*QueryResult, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.Query")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit), attribute.Bool("use_cache", useCache))

	start := c.now()
	if limit <= 0 {
		limit = 5
	}

	if useCache {
		if payload, err := c.cache.QueryResult(ctx, text); err == nil {
			var cached QueryResult
			if err := json.Unmarshal(payload, &cached); err == nil {
				cached.CacheHit = true
				span.SetAttributes(attribute.Bool("cache_hit", true))
				c.metrics.RecordQuery(true, c.now().Sub(start).Seconds())
				return &cached, nil
			}
		}
	}

	res, err := c.runQuery(ctx, text, limit, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	c.metrics.RecordQuery(false, c.now().Sub(start).Seconds())
	return res, nil
}

// runQuery performs the three-way fanout and the post-query cache
// bookkeeping. warm stores the result with the extended warm-up TTL.
func (c *Coordinator) runQuery(ctx context.Context, text string, limit int, warm bool) (*QueryResult, error) {
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		c.log.Warn(ctx, "query embedding failed, using deterministic fallback", zap.Error(err))
		vec = embedding.Deterministic(text, c.embedder.Dimension())
	}

	res := &QueryResult{Query: text}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := c.vector.Search(gctx, vec, limit)
		if err != nil {
			c.metrics.RecordStoreError("vector")
			c.log.Warn(gctx, "vector search failed", zap.Error(err))
			return nil
		}
		for _, h := range hits {
			res.VectorResults = append(res.VectorResults, VectorHit{
				ID:       h.ID,
				Score:    h.Score,
				Content:  h.Content,
				Metadata: h.Metadata,
			})
		}
		return nil
	})
	g.Go(func() error {
		nodes, err := c.graph.SearchNodes(gctx, text, limit)
		if err != nil {
			c.metrics.RecordStoreError("graph")
			c.log.Warn(gctx, "graph search failed", zap.Error(err))
			return nil
		}
		for _, n := range nodes {
			res.GraphResults = append(res.GraphResults, GraphHit{
				ID:      n.ID,
				Content: n.Content,
				Source:  n.Source,
				Type:    n.Type,
			})
		}
		return nil
	})
	if c.temporal != nil {
		g.Go(func() error {
			hits, err := c.temporal.Search(gctx, text, limit)
			if err != nil {
				c.log.Debug(gctx, "temporal search skipped", zap.Error(err))
				return nil
			}
			res.TemporalResults = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(res); err == nil {
		if err := c.cache.StoreQueryResult(ctx, text, payload, warm); err != nil {
			c.cacheMiss(ctx, "store query result", err)
		}
	}
	if _, err := c.cache.RecordQuery(ctx, text); err != nil {
		c.cacheMiss(ctx, "record query", err)
	}

	c.prefetch(ctx, res)
	return res, nil
}

// prefetch marks documents related to the query hits as hot. Pure
// cache work, so every failure is swallowed.
func (c *Coordinator) prefetch(ctx context.Context, res *QueryResult) {
	seen := make(map[string]bool)
	ids := make([]string, 0, prefetchFanout)
	for _, h := range res.VectorResults {
		if len(ids) == prefetchFanout {
			break
		}
		if h.ID != "" && !seen[h.ID] {
			seen[h.ID] = true
			ids = append(ids, h.ID)
		}
	}
	for _, h := range res.GraphResults {
		if len(ids) == prefetchFanout {
			break
		}
		if h.ID != "" && !seen[h.ID] {
			seen[h.ID] = true
			ids = append(ids, h.ID)
		}
	}

	marked := make(map[string]bool)
	for _, id := range ids {
		tokens, err := c.cache.DocumentEntities(ctx, id)
		if err != nil {
			continue
		}
		for _, tok := range tokens {
			related, err := c.cache.EntityDocuments(ctx, tok)
			if err != nil {
				continue
			}
			for _, rid := range related {
				if rid == id || marked[rid] {
					continue
				}
				marked[rid] = true
				if err := c.cache.MarkPrefetched(ctx, rid); err != nil {
					c.cacheMiss(ctx, "mark prefetched", err)
				}
			}
		}
	}
}

// RelatedDocuments resolves documents sharing an entity with id, via
// the cache reverse index. Best-effort: an empty cache yields nil.
func (c *Coordinator) RelatedDocuments(ctx context.Context, id string, limit int) []string {
	if limit <= 0 {
		limit = prefetchFanout
	}
	tokens, err := c.cache.DocumentEntities(ctx, id)
	if err != nil {
		return nil
	}
	seen := map[string]bool{id: true}
	var out []string
	for _, tok := range tokens {
		related, err := c.cache.EntityDocuments(ctx, tok)
		if err != nil {
			continue
		}
		for _, rid := range related {
			if seen[rid] {
				continue
			}
			seen[rid] = true
			out = append(out, rid)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

// Delete removes one document from every store. With
// preserveConnections, a document with incident graph edges is
// refused with status blocked.
func (c *Coordinator) Delete(ctx context.Context, id string, preserveConnections bool) (*DeleteResult, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.Delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("document_id", id),
		attribute.Bool("preserve_connections", preserveConnections),
	)

	res := &DeleteResult{Status: StatusSuccess}

	if preserveConnections {
		n, err := c.graph.CountRelationships(ctx, id)
		if err != nil {
			c.metrics.RecordStoreError("graph")
			c.log.Warn(ctx, "relationship probe failed, proceeding with delete", zap.Error(err))
		} else if n > 0 {
			res.Status = StatusBlocked
			res.Connections = n
			c.metrics.RecordDelete(StatusBlocked)
			return res, nil
		}
	}

	var source string
	if doc, err := c.vector.Get(ctx, id); err == nil && doc != nil {
		source = doc.Metadata.Source
	}

	if err := c.vector.Delete(ctx, id); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("vector: %v", err))
		c.metrics.RecordStoreError("vector")
	}
	if err := c.graph.DeleteNode(ctx, id); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("graph: %v", err))
		c.metrics.RecordStoreError("graph")
	}
	if err := c.cache.InvalidateDocument(ctx, id); err != nil {
		c.cacheMiss(ctx, "invalidate document", err)
	}

	if len(res.Errors) == 2 {
		res.Status = StatusFailed
	}
	if res.Status == StatusSuccess {
		c.recordDeletion(ctx, NewDeletionRecord(id, source, "manual_delete"))
	}
	span.SetAttributes(attribute.String("status", string(res.Status)))
	c.metrics.RecordDelete(res.Status)
	c.log.Info(ctx, "document deleted",
		zap.String("id", id),
		zap.String("status", string(res.Status)))
	return res, nil
}

// DeleteAll wipes every store. Refused without confirmation.
func (c *Coordinator) DeleteAll(ctx context.Context, confirm bool) (*DeleteAllResult, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.DeleteAll")
	defer span.End()

	if !confirm {
		span.SetStatus(codes.Error, ErrNotConfirmed.Error())
		return nil, ErrNotConfirmed
	}
	res := &DeleteAllResult{Status: StatusSuccess}

	if n, err := c.vector.DeleteAll(ctx); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("vector: %v", err))
		c.metrics.RecordStoreError("vector")
	} else {
		res.VectorDeleted = n
	}
	if n, err := c.graph.DeleteAllNodes(ctx); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("graph: %v", err))
		c.metrics.RecordStoreError("graph")
	} else {
		res.GraphDeleted = n
	}
	if err := c.cache.FlushAll(ctx); err != nil {
		c.cacheMiss(ctx, "flush", err)
	} else {
		res.CacheCleared = true
	}

	if len(res.Errors) == 2 {
		res.Status = StatusFailed
	}
	if res.Status == StatusSuccess {
		rec := NewDeletionRecord("", "", "delete_all")
		rec.Count = int(res.VectorDeleted)
		c.recordDeletion(ctx, rec)
	}
	c.log.Warn(ctx, "all documents deleted",
		zap.Uint64("vector_deleted", res.VectorDeleted),
		zap.Int("graph_deleted", res.GraphDeleted))
	return res, nil
}

func (c *Coordinator) recordDeletion(ctx context.Context, rec DeletionRecord) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Append(rec); err != nil {
		c.log.Warn(ctx, "deletion audit write failed", zap.Error(err))
	}
}

// Count returns the number of documents in the vector index.
func (c *Coordinator) Count(ctx context.Context) (uint64, error) {
	return c.vector.Count(ctx)
}

// Stats aggregates per-store statistics. A failing store contributes
// its zero value.
func (c *Coordinator) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if n, err := c.vector.Count(ctx); err != nil {
		c.metrics.RecordStoreError("vector")
	} else {
		s.VectorDocuments = n
	}
	if gs, err := c.graph.Stats(ctx); err != nil {
		c.metrics.RecordStoreError("graph")
	} else {
		s.Graph = gs
	}
	if cs, err := c.cache.Stats(ctx); err != nil {
		c.metrics.RecordStoreError("cache")
	} else {
		s.Cache = cs
	}
	return &s, nil
}

// Sync is the fast vector-to-graph reconciliation: every vector ID
// missing from the graph gets a node with the same content and
// metadata. The full fixpoint lives in the consolidation engine.
func (c *Coordinator) Sync(ctx context.Context) (*SyncResult, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.Sync")
	defer span.End()

	res := &SyncResult{}

	vectorIDs, err := c.vector.ListIDs(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list vector ids: %w", err)
	}
	res.Total = len(vectorIDs)

	graphIDs, err := c.graph.ListIDs(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list graph ids: %w", err)
	}
	inGraph := make(map[string]bool, len(graphIDs))
	for _, id := range graphIDs {
		inGraph[id] = true
	}

	for _, id := range vectorIDs {
		if inGraph[id] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		doc, err := c.vector.Get(ctx, id)
		if err != nil || doc == nil {
			res.Errors = append(res.Errors, fmt.Sprintf("read %s: %v", id, err))
			continue
		}
		graphDoc := *doc
		graphDoc.Metadata.Labels = nodeLabels(doc.Metadata)
		if err := c.graph.CreateNode(ctx, graphDoc); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("sync %s: %v", id, err))
			continue
		}
		res.Synced++
	}

	span.SetAttributes(attribute.Int("synced", res.Synced), attribute.Int("total", res.Total))
	c.log.Info(ctx, "vector-to-graph sync finished",
		zap.Int("synced", res.Synced),
		zap.Int("total", res.Total),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

// WarmCache runs the canned query list and stores each result with
// the extended warm-up TTL. Returns how many queries were warmed.
func (c *Coordinator) WarmCache(ctx context.Context) (int, error) {
	warmed := 0
	for _, q := range warmupQueries {
		if err := ctx.Err(); err != nil {
			return warmed, err
		}
		if _, err := c.runQuery(ctx, q, 5, true); err != nil {
			c.log.Warn(ctx, "warm-up query failed", zap.String("query", q), zap.Error(err))
			continue
		}
		warmed++
	}
	c.log.Info(ctx, "query cache warmed", zap.Int("queries", warmed))
	return warmed, nil
}

// InvalidateQueryCache drops every cached query result.
func (c *Coordinator) InvalidateQueryCache(ctx context.Context) (int, error) {
	return c.cache.InvalidateQueries(ctx)
}

// CacheStats returns cache key counts by pattern.
func (c *Coordinator) CacheStats(ctx context.Context) (CacheStats, error) {
	return c.cache.Stats(ctx)
}

// RecentDocuments returns the newest document IDs, most recent first.
func (c *Coordinator) RecentDocuments(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > recentWindow {
		limit = recentWindow
	}
	return c.cache.RecentDocuments(ctx, limit)
}

// FrequentQueries returns queries whose 24h counter is at least
// minCount.
func (c *Coordinator) FrequentQueries(ctx context.Context, minCount int) ([]QueryFrequency, error) {
	if minCount <= 0 {
		minCount = 2
	}
	return c.cache.FrequentQueries(ctx, minCount)
}

// QueryHistory returns the newest entries of the query ring buffer.
func (c *Coordinator) QueryHistory(ctx context.Context, limit int) ([]QueryHistoryEntry, error) {
	return c.cache.QueryHistory(ctx, limit)
}

// embeddingText builds the context-augmented string handed to the
// embedder: content plus top keywords, entities and language.
func embeddingText(content string, meta Metadata) string {
	parts := []string{content}

	if kw := meta.Keywords; len(kw) > 0 {
		if len(kw) > 5 {
			kw = kw[:5]
		}
		parts = append(parts, "Keywords: "+strings.Join(kw, " "))
	}
	if ents := entityNames(meta.Entities, 4); len(ents) > 0 {
		parts = append(parts, "Entities: "+strings.Join(ents, ", "))
	}
	if meta.Language != "" {
		parts = append(parts, "Language: "+meta.Language)
	}

	return strings.Join(parts, " | ")
}

// entityNames flattens the entity classes into one capped list.
func entityNames(e Entities, limit int) []string {
	var out []string
	for _, group := range [][]string{e.People, e.Organizations, e.Locations} {
		for _, name := range group {
			if len(out) == limit {
				return out
			}
			out = append(out, name)
		}
	}
	return out
}

// entityTokens produces the lowercase tokens used as cache reverse
// index keys, deduplicated.
func entityTokens(e Entities) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range entityNames(e, -1) {
		tok := strings.ToLower(strings.TrimSpace(name))
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// nodeLabels combines the metadata labels with up to three entity
// class labels.
func nodeLabels(meta Metadata) []string {
	labels := append([]string(nil), meta.GraphLabels()...)
	have := make(map[string]bool, len(labels))
	for _, l := range labels {
		have[l] = true
	}
	added := 0
	for _, el := range meta.EntityLabels {
		if added == maxEntityLabels {
			break
		}
		class, _, ok := strings.Cut(el, ":")
		if !ok || class == "" || have[class] {
			continue
		}
		have[class] = true
		labels = append(labels, class)
		added++
	}
	return labels
}
