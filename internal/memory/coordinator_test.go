package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/e6labs/ultramemory/internal/logging"
)

type harness struct {
	vector *fakeVector
	graph  *fakeGraph
	cache  *fakeCache
	audit  *fakeAuditor
	coord  *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		vector: newFakeVector(),
		graph:  newFakeGraph(),
		cache:  newFakeCache(),
		audit:  &fakeAuditor{},
	}
	h.coord = New(h.vector, h.graph, h.cache, fakeEmbedder{dim: 32}, passthroughEnricher{}, Options{
		Auditor: h.audit,
		Logger:  logging.NewNop(),
	})
	return h
}

func TestAddFull(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.coord.Add(ctx, "Paris is the capital of France", Metadata{Type: "fact"})
	require.NoError(t, err)
	assert.Equal(t, StatusFull, res.Status)
	require.NotEmpty(t, res.VectorID)
	assert.Equal(t, res.VectorID, res.GraphID, "one ID across all stores")
	assert.Empty(t, res.Errors)

	// Vector, graph and cache all carry the document under the same ID.
	doc, err := h.vector.Get(ctx, res.VectorID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	exists, err := h.graph.NodeExists(ctx, res.VectorID)
	require.NoError(t, err)
	assert.True(t, exists)
	content, err := h.cache.Document(ctx, res.VectorID)
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France", content)
}

func TestAddPartialOnGraphFailure(t *testing.T) {
	h := newHarness(t)
	h.graph.fail = true

	res, err := h.coord.Add(context.Background(), "orphaned in the graph", Metadata{})
	require.NoError(t, err, "backend failures never abort the operation")
	assert.Equal(t, StatusPartial, res.Status)
	assert.NotEmpty(t, res.VectorID)
	assert.Empty(t, res.GraphID)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "graph")
}

func TestAddFailedWhenBothStoresDown(t *testing.T) {
	h := newHarness(t)
	h.vector.fail = true
	h.graph.fail = true

	res, err := h.coord.Add(context.Background(), "nowhere to go", Metadata{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Len(t, res.Errors, 2)
}

func TestAddCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.coord.Add(ctx, "too late", Metadata{})
	require.Error(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
}

func TestAddSurvivesCacheFailure(t *testing.T) {
	h := newHarness(t)
	h.cache.fail = true

	res, err := h.coord.Add(context.Background(), "cacheless", Metadata{})
	require.NoError(t, err)
	assert.Equal(t, StatusFull, res.Status, "cache is best-effort")
	assert.Empty(t, res.Errors)
}

func TestQueryFanoutAndCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	added, err := h.coord.Add(ctx, "Paris is the capital of France", Metadata{Type: "fact"})
	require.NoError(t, err)
	require.Equal(t, StatusFull, added.Status)

	first, err := h.coord.Query(ctx, "capital of France", 3, true)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	require.NotEmpty(t, first.VectorResults)
	assert.Equal(t, added.ID(), first.VectorResults[0].ID)

	second, err := h.coord.Query(ctx, "capital of France", 3, true)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.VectorResults, second.VectorResults)
}

func TestAddAndQueryEmitSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Add(ctx, "span coverage for the write path", Metadata{})
	require.NoError(t, err)
	_, err = h.coord.Query(ctx, "coverage", 3, false)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, span := range recorder.Ended() {
		names[span.Name()] = true
	}
	assert.True(t, names["Coordinator.Add"], "add is traced")
	assert.True(t, names["Coordinator.Query"], "query is traced")
}

func TestQueryBypassCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Query(ctx, "repeatable", 3, true)
	require.NoError(t, err)
	res, err := h.coord.Query(ctx, "repeatable", 3, false)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
}

func TestQueryGraphResults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Add(ctx, "deployment pipeline notes", Metadata{Source: "wiki"})
	require.NoError(t, err)

	res, err := h.coord.Query(ctx, "pipeline", 5, false)
	require.NoError(t, err)
	require.NotEmpty(t, res.GraphResults)
	assert.Contains(t, res.GraphResults[0].Content, "pipeline")
}

func TestQueryPrefetchMarksRelated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	meta := Metadata{Entities: Entities{Organizations: []string{"Acme Inc"}}}
	a, err := h.coord.Add(ctx, "Acme Inc quarterly report", meta)
	require.NoError(t, err)
	b, err := h.coord.Add(ctx, "Acme Inc hiring plan", meta)
	require.NoError(t, err)

	_, err = h.coord.Query(ctx, "Acme", 5, false)
	require.NoError(t, err)

	// At least one of the pair should be marked hot via the shared
	// entity token.
	pa, _ := h.cache.WasPrefetched(ctx, a.ID())
	pb, _ := h.cache.WasPrefetched(ctx, b.ID())
	assert.True(t, pa || pb)
}

func TestDeleteBlockedByConnections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.coord.Add(ctx, "connected doc", Metadata{})
	require.NoError(t, err)
	id := res.ID()
	require.NoError(t, h.graph.CreateEntityLinks(ctx, id, Entities{Organizations: []string{"Acme"}}))

	blocked, err := h.coord.Delete(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, blocked.Status)
	assert.Equal(t, 1, blocked.Connections)
	exists, _ := h.graph.NodeExists(ctx, id)
	assert.True(t, exists, "blocked delete must not mutate")

	forced, err := h.coord.Delete(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, forced.Status)
	exists, _ = h.graph.NodeExists(ctx, id)
	assert.False(t, exists)
	doc, _ := h.vector.Get(ctx, id)
	assert.Nil(t, doc)
}

func TestDeleteWritesAudit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.coord.Add(ctx, "short-lived", Metadata{Source: "test"})
	require.NoError(t, err)
	_, err = h.coord.Delete(ctx, res.ID(), false)
	require.NoError(t, err)

	require.Len(t, h.audit.records, 1)
	rec, ok := h.audit.records[0].(DeletionRecord)
	require.True(t, ok)
	assert.Equal(t, res.ID(), rec.ID)
	assert.Equal(t, "manual_delete", rec.Reason)
	assert.NotEmpty(t, rec.Timestamp)
}

func TestDeleteAllRequiresConfirmation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Add(ctx, "keep me", Metadata{})
	require.NoError(t, err)

	_, err = h.coord.DeleteAll(ctx, false)
	require.ErrorIs(t, err, ErrNotConfirmed)
	n, _ := h.coord.Count(ctx)
	assert.Equal(t, uint64(1), n)

	res, err := h.coord.DeleteAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, uint64(1), res.VectorDeleted)
	assert.Equal(t, 1, res.GraphDeleted)
	assert.True(t, res.CacheCleared)
	n, _ = h.coord.Count(ctx)
	assert.Zero(t, n)
}

func TestSyncBackfillsGraph(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.graph.fail = true
	res, err := h.coord.Add(ctx, "vector only", Metadata{})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, res.Status)
	h.graph.fail = false

	sync, err := h.coord.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sync.Synced)
	assert.Equal(t, 1, sync.Total)
	assert.Empty(t, sync.Errors)

	exists, _ := h.graph.NodeExists(ctx, res.VectorID)
	assert.True(t, exists)

	// A second pass finds nothing to do.
	sync, err = h.coord.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, sync.Synced)
}

func TestWarmCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	warmed, err := h.coord.WarmCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(warmupQueries), warmed)

	// Warmed queries now hit the cache.
	res, err := h.coord.Query(ctx, "architecture", 5, true)
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
}

func TestStatsAggregation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Add(ctx, "counted", Metadata{})
	require.NoError(t, err)

	stats, err := h.coord.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.VectorDocuments)
	assert.Equal(t, 1, stats.Graph.TotalNodes)
}

func TestRecentAndFrequent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, _ := h.coord.Add(ctx, "first", Metadata{})
	b, _ := h.coord.Add(ctx, "second", Metadata{})

	recent, err := h.coord.RecentDocuments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, b.ID(), recent[0], "most recent first")
	assert.Equal(t, a.ID(), recent[1])

	for i := 0; i < 3; i++ {
		_, err := h.coord.Query(ctx, "hot query", 3, false)
		require.NoError(t, err)
	}
	freq, err := h.coord.FrequentQueries(ctx, 3)
	require.NoError(t, err)
	require.Len(t, freq, 1)
	assert.Equal(t, 3, freq[0].Count)
}

func TestRelatedDocuments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	meta := Metadata{Entities: Entities{People: []string{"Grace Hopper"}}}
	a, _ := h.coord.Add(ctx, "biography draft", meta)
	b, _ := h.coord.Add(ctx, "compiler history", meta)

	related := h.coord.RelatedDocuments(ctx, a.ID(), 10)
	require.Len(t, related, 1)
	assert.Equal(t, b.ID(), related[0])
}

func TestEmbeddingTextAugmentation(t *testing.T) {
	meta := Metadata{
		Keywords: []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"},
		Entities: Entities{People: []string{"Ada Lovelace"}, Organizations: []string{"Acme"}},
		Language: "en",
	}
	text := embeddingText("body", meta)
	assert.Equal(t, "body | Keywords: alpha beta gamma delta epsilon | Entities: Ada Lovelace, Acme | Language: en", text)

	assert.Equal(t, "bare", embeddingText("bare", Metadata{}))
}

func TestNodeLabels(t *testing.T) {
	meta := Metadata{
		EntityLabels: []string{"Person:Ada", "Org:Acme", "Location:Berlin", "Person:Grace"},
	}
	labels := nodeLabels(meta)
	assert.Equal(t, []string{"Document", "Person", "Org", "Location"}, labels)

	custom := Metadata{Labels: []string{"Code"}}
	assert.Equal(t, []string{"Code"}, nodeLabels(custom))
}

func TestEntityTokens(t *testing.T) {
	tokens := entityTokens(Entities{
		People:        []string{"Ada Lovelace", " ada lovelace "},
		Organizations: []string{"Acme Inc"},
	})
	assert.Equal(t, []string{"ada lovelace", "acme inc"}, tokens)
}
