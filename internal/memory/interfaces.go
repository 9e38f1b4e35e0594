package memory

import (
	"context"
	"time"
)

// VectorIndex is the vector store contract the coordinator writes
// through. Implemented by the Qdrant client in internal/vector.
type VectorIndex interface {
	// Upsert stores a point. The returned ID is the point ID actually
	// written (implementations may mint one when doc.ID is empty).
	Upsert(ctx context.Context, doc Document) (string, error)
	Get(ctx context.Context, id string) (*Document, error)
	Search(ctx context.Context, vector []float32, limit int) ([]ScoredDocument, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (uint64, error)
	Count(ctx context.Context) (uint64, error)
	// ListIDs pages through all point IDs in the collection.
	ListIDs(ctx context.Context) ([]string, error)
}

// GraphIndex is the graph store contract. Implemented by the FalkorDB
// client in internal/graph.
type GraphIndex interface {
	CreateNode(ctx context.Context, doc Document) error
	GetNode(ctx context.Context, id string) (*GraphNode, error)
	NodeExists(ctx context.Context, id string) (bool, error)
	SearchNodes(ctx context.Context, term string, limit int) ([]GraphNode, error)
	Relationships(ctx context.Context, id string) ([]GraphRelationship, error)
	CountRelationships(ctx context.Context, id string) (int, error)
	DeleteNode(ctx context.Context, id string) error
	DeleteAllNodes(ctx context.Context) (int, error)
	ListIDs(ctx context.Context) ([]string, error)
	// CreateEntityLinks materialises MENTIONS edges from the document
	// to its extracted entity nodes.
	CreateEntityLinks(ctx context.Context, docID string, entities Entities) error
	Stats(ctx context.Context) (GraphStats, error)
}

// Cache is the typed view of the Redis cache the coordinator uses.
// Every method returns an error, and the coordinator swallows all of
// them: a dead cache degrades latency, never correctness. Implemented
// in internal/cache.
type Cache interface {
	StoreDocument(ctx context.Context, id, content string) error
	Document(ctx context.Context, id string) (string, error)
	StoreKeywords(ctx context.Context, id string, keywords []string) error
	Keywords(ctx context.Context, id string) ([]string, error)

	StoreEntityLinks(ctx context.Context, id string, tokens []string) error
	DocumentEntities(ctx context.Context, id string) ([]string, error)
	EntityDocuments(ctx context.Context, token string) ([]string, error)

	TouchRecent(ctx context.Context, id, content string) error
	RecentDocuments(ctx context.Context, limit int) ([]string, error)

	StoreQueryResult(ctx context.Context, query string, payload []byte, warm bool) error
	QueryResult(ctx context.Context, query string) ([]byte, error)
	RecordQuery(ctx context.Context, query string) (int64, error)
	FrequentQueries(ctx context.Context, minCount int) ([]QueryFrequency, error)
	QueryHistory(ctx context.Context, limit int) ([]QueryHistoryEntry, error)

	MarkPrefetched(ctx context.Context, id string) error
	WasPrefetched(ctx context.Context, id string) (bool, error)

	InvalidateQueries(ctx context.Context) (int, error)
	InvalidateDocument(ctx context.Context, id string) error
	FlushAll(ctx context.Context) error
	Stats(ctx context.Context) (CacheStats, error)
	Ping(ctx context.Context) error
}

// Embedder produces an embedding for a text. Implementations never
// fail hard: on provider errors they fall back to a deterministic
// embedding so writes always carry a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Enricher derives metadata from raw content: keywords, entities,
// language, counts, content hash. Implemented in internal/enrich.
type Enricher interface {
	Enrich(content string, meta Metadata) Metadata
}

// TemporalIndex is the optional third query source. When absent the
// temporal slice of every QueryResult is empty.
type TemporalIndex interface {
	Search(ctx context.Context, query string, limit int) ([]TemporalHit, error)
}

// Auditor appends one record to an append-only audit log. Satisfied by
// state.AuditWriter.
type Auditor interface {
	Append(v any) error
}

// Clock lets tests pin timestamps.
type Clock func() time.Time
