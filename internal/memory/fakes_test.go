package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/e6labs/ultramemory/internal/embedding"
)

// In-memory store fakes. They implement just enough of each contract
// to drive the coordinator; failure modes are switchable per fake.

type fakeVector struct {
	mu   sync.Mutex
	docs map[string]Document
	fail bool
}

func newFakeVector() *fakeVector {
	return &fakeVector{docs: make(map[string]Document)}
}

func (f *fakeVector) Upsert(_ context.Context, doc Document) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("vector down")
	}
	f.docs[doc.ID] = doc
	return doc.ID, nil
}

func (f *fakeVector) Get(_ context.Context, id string) (*Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[id]; ok {
		return &doc, nil
	}
	return nil, nil
}

func (f *fakeVector) Search(_ context.Context, vec []float32, limit int) ([]ScoredDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("vector down")
	}
	var out []ScoredDocument
	for _, doc := range f.docs {
		if len(out) == limit {
			break
		}
		out = append(out, ScoredDocument{
			Document: doc,
			Score:    embedding.Cosine(vec, doc.Embedding),
		})
	}
	return out, nil
}

func (f *fakeVector) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("vector down")
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeVector) DeleteAll(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := uint64(len(f.docs))
	f.docs = make(map[string]Document)
	return n, nil
}

func (f *fakeVector) Count(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.docs)), nil
}

func (f *fakeVector) ListIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeGraph struct {
	mu    sync.Mutex
	nodes map[string]GraphNode
	rels  map[string]int
	fail  bool
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{nodes: make(map[string]GraphNode), rels: make(map[string]int)}
}

func (f *fakeGraph) CreateNode(_ context.Context, doc Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("graph down")
	}
	f.nodes[doc.ID] = GraphNode{
		ID:      doc.ID,
		Content: doc.Content,
		Source:  doc.Metadata.Source,
		Type:    doc.Metadata.Type,
		Labels:  doc.Metadata.GraphLabels(),
	}
	return nil
}

func (f *fakeGraph) GetNode(_ context.Context, id string) (*GraphNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nodes[id]; ok {
		return &n, nil
	}
	return nil, nil
}

func (f *fakeGraph) NodeExists(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.nodes[id]
	return ok, nil
}

func (f *fakeGraph) SearchNodes(_ context.Context, term string, limit int) ([]GraphNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("graph down")
	}
	var out []GraphNode
	for _, n := range f.nodes {
		if len(out) == limit {
			break
		}
		if strings.Contains(n.Content, term) || strings.Contains(n.Source, term) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeGraph) Relationships(_ context.Context, id string) ([]GraphRelationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]GraphRelationship, f.rels[id])
	return out, nil
}

func (f *fakeGraph) CountRelationships(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errors.New("graph down")
	}
	return f.rels[id], nil
}

func (f *fakeGraph) DeleteNode(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("graph down")
	}
	delete(f.nodes, id)
	delete(f.rels, id)
	return nil
}

func (f *fakeGraph) DeleteAllNodes(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.nodes)
	f.nodes = make(map[string]GraphNode)
	f.rels = make(map[string]int)
	return n, nil
}

func (f *fakeGraph) ListIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.nodes))
	for id := range f.nodes {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeGraph) CreateEntityLinks(_ context.Context, docID string, _ Entities) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rels[docID]++
	return nil
}

func (f *fakeGraph) Stats(_ context.Context) (GraphStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.rels {
		total += n
	}
	return GraphStats{TotalNodes: len(f.nodes), TotalRelations: total, Connected: true}, nil
}

type fakeCache struct {
	mu       sync.Mutex
	docs     map[string]string
	keywords map[string][]string
	entities map[string][]string // doc -> tokens
	reverse  map[string][]string // token -> docs
	recent   []string
	queries  map[string][]byte
	counts   map[string]int
	history  []QueryHistoryEntry
	prefetch map[string]bool
	fail     bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		docs:     make(map[string]string),
		keywords: make(map[string][]string),
		entities: make(map[string][]string),
		reverse:  make(map[string][]string),
		queries:  make(map[string][]byte),
		counts:   make(map[string]int),
		prefetch: make(map[string]bool),
	}
}

func (f *fakeCache) err() error {
	if f.fail {
		return errors.New("cache down")
	}
	return nil
}

func (f *fakeCache) StoreDocument(_ context.Context, id, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.docs[id] = content
	return nil
}

func (f *fakeCache) Document(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if content, ok := f.docs[id]; ok {
		return content, nil
	}
	return "", ErrCacheMiss
}

func (f *fakeCache) StoreKeywords(_ context.Context, id string, kw []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.keywords[id] = kw
	return nil
}

func (f *fakeCache) Keywords(_ context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if kw, ok := f.keywords[id]; ok {
		return kw, nil
	}
	return nil, ErrCacheMiss
}

func (f *fakeCache) StoreEntityLinks(_ context.Context, id string, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.entities[id] = tokens
	for _, tok := range tokens {
		f.reverse[tok] = append(f.reverse[tok], id)
	}
	return nil
}

func (f *fakeCache) DocumentEntities(_ context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if toks, ok := f.entities[id]; ok {
		return toks, nil
	}
	return nil, ErrCacheMiss
}

func (f *fakeCache) EntityDocuments(_ context.Context, token string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ids, ok := f.reverse[token]; ok {
		return ids, nil
	}
	return nil, ErrCacheMiss
}

func (f *fakeCache) TouchRecent(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.recent = append([]string{id}, f.recent...)
	return nil
}

func (f *fakeCache) RecentDocuments(_ context.Context, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.recent) {
		limit = len(f.recent)
	}
	return append([]string(nil), f.recent[:limit]...), nil
}

func (f *fakeCache) StoreQueryResult(_ context.Context, query string, payload []byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.queries[query] = payload
	return nil
}

func (f *fakeCache) QueryResult(_ context.Context, query string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.queries[query]; ok {
		return p, nil
	}
	return nil, ErrCacheMiss
}

func (f *fakeCache) RecordQuery(_ context.Context, query string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return 0, err
	}
	f.counts[query]++
	f.history = append(f.history, QueryHistoryEntry{Query: query})
	return int64(f.counts[query]), nil
}

func (f *fakeCache) FrequentQueries(_ context.Context, minCount int) ([]QueryFrequency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []QueryFrequency
	for q, n := range f.counts {
		if n >= minCount {
			out = append(out, QueryFrequency{Hash: q, Count: n})
		}
	}
	return out, nil
}

func (f *fakeCache) QueryHistory(_ context.Context, limit int) ([]QueryHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.history) {
		limit = len(f.history)
	}
	return append([]QueryHistoryEntry(nil), f.history[len(f.history)-limit:]...), nil
}

func (f *fakeCache) MarkPrefetched(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.prefetch[id] = true
	return nil
}

func (f *fakeCache) WasPrefetched(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefetch[id], nil
}

func (f *fakeCache) InvalidateQueries(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.queries)
	f.queries = make(map[string][]byte)
	return n, nil
}

func (f *fakeCache) InvalidateDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	delete(f.keywords, id)
	delete(f.entities, id)
	return nil
}

func (f *fakeCache) FlushAll(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = make(map[string]string)
	f.keywords = make(map[string][]string)
	f.entities = make(map[string][]string)
	f.reverse = make(map[string][]string)
	f.recent = nil
	f.queries = make(map[string][]byte)
	f.counts = make(map[string]int)
	f.history = nil
	f.prefetch = make(map[string]bool)
	return nil
}

func (f *fakeCache) Stats(_ context.Context) (CacheStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return CacheStats{
		QueryCacheEntries:  len(f.queries),
		EntityCacheEntries: len(f.entities),
		PrefetchEntries:    len(f.prefetch),
		HistoryEntries:     len(f.history),
	}, nil
}

func (f *fakeCache) Ping(_ context.Context) error { return f.err() }

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return embedding.Deterministic(text, f.dim), nil
}

func (f fakeEmbedder) Dimension() int { return f.dim }

// passthroughEnricher stamps nothing and returns the metadata as-is.
type passthroughEnricher struct{}

func (passthroughEnricher) Enrich(_ string, meta Metadata) Metadata { return meta }

type fakeAuditor struct {
	mu      sync.Mutex
	records []any
}

func (f *fakeAuditor) Append(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, v)
	return nil
}
