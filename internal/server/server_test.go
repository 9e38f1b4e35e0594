package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e6labs/ultramemory/internal/memory"
)

type fakeMemory struct {
	stats   *memory.Stats
	recent  []string
	freq    []memory.QueryFrequency
	history []memory.QueryHistoryEntry
	warmed  int
	err     error

	recentLimit int
	freqMin     int
}

func (f *fakeMemory) Stats(context.Context) (*memory.Stats, error) {
	return f.stats, f.err
}

func (f *fakeMemory) RecentDocuments(_ context.Context, limit int) ([]string, error) {
	f.recentLimit = limit
	return f.recent, f.err
}

func (f *fakeMemory) FrequentQueries(_ context.Context, minCount int) ([]memory.QueryFrequency, error) {
	f.freqMin = minCount
	return f.freq, f.err
}

func (f *fakeMemory) QueryHistory(_ context.Context, _ int) ([]memory.QueryHistoryEntry, error) {
	return f.history, f.err
}

func (f *fakeMemory) WarmCache(context.Context) (int, error) {
	return f.warmed, f.err
}

func newTestServer(t *testing.T, mem MemoryProvider, checks map[string]Checker) *Server {
	t.Helper()
	s, err := New(mem, checks, Config{}, nil)
	require.NoError(t, err)
	return s
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func post(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeMemory{stats: &memory.Stats{}}, nil)

	rec := get(s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyzAllBackendsHealthy(t *testing.T) {
	ok := func(context.Context) error { return nil }
	s := newTestServer(t, &fakeMemory{stats: &memory.Stats{}}, map[string]Checker{
		"vector": ok, "graph": ok, "cache": ok,
	})

	rec := get(s, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, map[string]string{"vector": "ok", "graph": "ok", "cache": "ok"}, resp.Backends)
}

func TestReadyzReportsFailingBackend(t *testing.T) {
	s := newTestServer(t, &fakeMemory{stats: &memory.Stats{}}, map[string]Checker{
		"vector": func(context.Context) error { return nil },
		"cache":  func(context.Context) error { return errors.New("connection refused") },
	})

	rec := get(s, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Backends["vector"])
	assert.Contains(t, resp.Backends["cache"], "connection refused")
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeMemory{stats: &memory.Stats{
		VectorDocuments: 42,
		Graph:           memory.GraphStats{TotalNodes: 42, Connected: true},
	}}, nil)

	rec := get(s, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats memory.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, uint64(42), stats.VectorDocuments)
	assert.True(t, stats.Graph.Connected)
}

func TestStatsEndpointError(t *testing.T) {
	s := newTestServer(t, &fakeMemory{err: errors.New("stores down")}, nil)

	rec := get(s, "/api/v1/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeMemory{stats: &memory.Stats{}}, nil)

	rec := get(s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRecentEndpoint(t *testing.T) {
	f := &fakeMemory{recent: []string{"doc-2", "doc-1"}}
	s := newTestServer(t, f, nil)

	rec := get(s, "/api/v1/recent?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"documents":["doc-2","doc-1"]}`, rec.Body.String())
	assert.Equal(t, 5, f.recentLimit)
}

func TestFrequentQueriesEndpoint(t *testing.T) {
	f := &fakeMemory{freq: []memory.QueryFrequency{{Hash: "abc123", Count: 7}}}
	s := newTestServer(t, f, nil)

	rec := get(s, "/api/v1/queries/frequent?min=3")
	require.Equal(t, http.StatusOK, rec.Code)

	var freq []memory.QueryFrequency
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &freq))
	require.Len(t, freq, 1)
	assert.Equal(t, 7, freq[0].Count)
	assert.Equal(t, 3, f.freqMin)
}

func TestFrequentQueriesEmptyIsArray(t *testing.T) {
	s := newTestServer(t, &fakeMemory{}, nil)

	rec := get(s, "/api/v1/queries/frequent")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestQueryHistoryEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeMemory{history: []memory.QueryHistoryEntry{
		{Query: "capital of france", Timestamp: "2026-08-26T10:00:00Z"},
	}}, nil)

	rec := get(s, "/api/v1/queries/history?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var history []memory.QueryHistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "capital of france", history[0].Query)
}

func TestWarmCacheEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeMemory{warmed: 9}, nil)

	rec := post(s, "/api/v1/cache/warm")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"warmed":9}`, rec.Body.String())
}

func TestWarmCacheEndpointError(t *testing.T) {
	s := newTestServer(t, &fakeMemory{err: errors.New("stores down")}, nil)

	rec := post(s, "/api/v1/cache/warm")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewRequiresMemoryProvider(t *testing.T) {
	_, err := New(nil, nil, Config{}, nil)
	assert.Error(t, err)
}
