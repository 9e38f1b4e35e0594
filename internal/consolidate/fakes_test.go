package consolidate

import (
	"context"
	"sort"
	"sync"

	"github.com/e6labs/ultramemory/internal/embedding"
	"github.com/e6labs/ultramemory/internal/memory"
)

const testDim = 32

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return embedding.Deterministic(text, testDim), nil
}

func (fakeEmbedder) Dimension() int { return testDim }

type fakeVector struct {
	mu    sync.Mutex
	order []string
	docs  map[string]memory.Document

	// onSearch overrides similarity search when set.
	onSearch func(vector []float32, limit int) []memory.ScoredDocument
}

func newFakeVector() *fakeVector {
	return &fakeVector{docs: make(map[string]memory.Document)}
}

func (f *fakeVector) add(id, content string, meta memory.Metadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, id)
	f.docs[id] = memory.Document{
		ID:        id,
		Content:   content,
		Embedding: embedding.Deterministic(content, testDim),
		Metadata:  meta,
	}
}

func (f *fakeVector) ListIDs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, id := range f.order {
		if _, ok := f.docs[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeVector) Get(_ context.Context, id string) (*memory.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (f *fakeVector) Search(_ context.Context, vector []float32, limit int) ([]memory.ScoredDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSearch != nil {
		return f.onSearch(vector, limit), nil
	}
	var hits []memory.ScoredDocument
	for _, id := range f.order {
		doc, ok := f.docs[id]
		if !ok {
			continue
		}
		hits = append(hits, memory.ScoredDocument{
			Document: doc,
			Score:    embedding.Cosine(vector, doc.Embedding),
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeVector) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeVector) Count(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.docs)), nil
}

type fakeEdge struct {
	From, To, Type string
	Props          map[string]string
}

type fakeGraph struct {
	mu       sync.Mutex
	nodes    map[string]memory.Document
	edges    []fakeEdge
	entities map[string]string   // "Label:name" -> last_updated
	mentions map[string][]string // "Label:name" -> doc IDs

	statsErr    error
	linkByKwErr error
	keywordRuns int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		nodes:    make(map[string]memory.Document),
		entities: make(map[string]string),
		mentions: make(map[string][]string),
	}
}

func (f *fakeGraph) CreateNode(_ context.Context, doc memory.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[doc.ID] = doc
	return nil
}

func (f *fakeGraph) DeleteNode(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nodes, id)
	kept := f.edges[:0]
	for _, e := range f.edges {
		if e.From != id && e.To != id {
			kept = append(kept, e)
		}
	}
	f.edges = kept
	return nil
}

func (f *fakeGraph) ListIDs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.nodes))
	for id := range f.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeGraph) Relationships(_ context.Context, id string) ([]memory.GraphRelationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rels []memory.GraphRelationship
	for _, e := range f.edges {
		if e.From == id {
			rels = append(rels, memory.GraphRelationship{Type: e.Type, Target: e.To})
		} else if e.To == id {
			rels = append(rels, memory.GraphRelationship{Type: e.Type, Target: e.From})
		}
	}
	return rels, nil
}

func (f *fakeGraph) AddRelationship(_ context.Context, fromID, toID, relType string, props map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edges = append(f.edges, fakeEdge{From: fromID, To: toID, Type: relType, Props: props})
	return nil
}

func (f *fakeGraph) UpsertEntity(_ context.Context, label, name, lastUpdated string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[label+":"+name] = lastUpdated
	return nil
}

func (f *fakeGraph) LinkMention(_ context.Context, docID, label, name, lastUpdated string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := label + ":" + name
	f.entities[key] = lastUpdated
	f.mentions[key] = append(f.mentions[key], docID)
	f.edges = append(f.edges, fakeEdge{From: docID, To: key, Type: "MENTIONS"})
	return nil
}

func (f *fakeGraph) MentionCount(_ context.Context, label, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mentions[label+":"+name]), nil
}

func (f *fakeGraph) orphanIDs() []string {
	incident := make(map[string]bool)
	for _, e := range f.edges {
		incident[e.From] = true
		incident[e.To] = true
	}
	var ids []string
	for id := range f.nodes {
		if !incident[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeGraph) OrphanCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orphanIDs()), nil
}

func (f *fakeGraph) DeleteOrphans(_ context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.orphanIDs()
	if len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		delete(f.nodes, id)
	}
	return len(ids), nil
}

func (f *fakeGraph) LinkByKeywords(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkByKwErr != nil {
		return 0, f.linkByKwErr
	}
	f.keywordRuns++
	return 0, nil
}

func (f *fakeGraph) Stats(context.Context) (memory.GraphStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsErr != nil {
		return memory.GraphStats{}, f.statsErr
	}
	return memory.GraphStats{
		TotalNodes:     len(f.nodes),
		TotalRelations: len(f.edges),
		Connected:      true,
	}, nil
}

type addedDoc struct {
	Content string
	Meta    memory.Metadata
}

type fakeAdder struct {
	mu   sync.Mutex
	docs []addedDoc
}

func (f *fakeAdder) Add(_ context.Context, content string, meta memory.Metadata) (*memory.AddResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, addedDoc{Content: content, Meta: meta})
	return &memory.AddResult{Status: memory.StatusFull, VectorID: "insight-id"}, nil
}
