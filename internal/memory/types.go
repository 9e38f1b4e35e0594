package memory

import (
	"errors"
	"time"
)

// Sentinel errors shared across the engine.
var (
	// ErrCacheMiss maps a cache lookup that found nothing. Never
	// surfaced to callers; the engine is correct with an empty cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrNotConfirmed guards destructive operations.
	ErrNotConfirmed = errors.New("operation not confirmed")
)

// Status describes the per-store outcome of a coordinator operation.
type Status string

const (
	// StatusFull means every required store accepted the write.
	StatusFull Status = "full"
	// StatusPartial means exactly one of vector/graph succeeded.
	StatusPartial Status = "partial"
	// StatusFailed means no store accepted the write.
	StatusFailed Status = "failed"
	// StatusBlocked means a protected delete was refused.
	StatusBlocked Status = "blocked"
	// StatusSuccess marks a completed delete.
	StatusSuccess Status = "success"
	// StatusCancelled means the caller's context expired first.
	StatusCancelled Status = "cancelled"
)

// Entities holds named entities extracted from document content,
// capped at three per class.
type Entities struct {
	People        []string `json:"people,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	Locations     []string `json:"locations,omitempty"`
}

// Empty reports whether no entities were extracted.
func (e Entities) Empty() bool {
	return len(e.People) == 0 && len(e.Organizations) == 0 && len(e.Locations) == 0
}

// Metadata is the typed document metadata record. Well-known fields
// are statically typed; anything else the caller supplies rides in
// Extra and survives the round trip through the vector payload.
type Metadata struct {
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`

	Source      string `json:"source,omitempty"`
	SourceType  string `json:"source_type,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Type        string `json:"type,omitempty"`
	Language    string `json:"language,omitempty"`

	Keywords     []string `json:"keywords,omitempty"`
	Entities     Entities `json:"entities,omitempty"`
	EntityLabels []string `json:"entity_labels,omitempty"`

	ContentHash string `json:"content_hash,omitempty"`
	WordCount   int    `json:"word_count,omitempty"`
	CharCount   int    `json:"char_count,omitempty"`

	ChunkIndex  int `json:"chunk_index,omitempty"`
	TotalChunks int `json:"total_chunks,omitempty"`

	// Graph labels; empty means ["Document"].
	Labels []string `json:"labels,omitempty"`

	// Repository fields, set only for code documents.
	RepoOwner          string `json:"repo_owner,omitempty"`
	RepoName           string `json:"repo_name,omitempty"`
	RepoURL            string `json:"repo_url,omitempty"`
	FilePath           string `json:"file_path,omitempty"`
	FileExtension      string `json:"file_extension,omitempty"`
	FileLanguage       string `json:"file_language,omitempty"`
	CommitSHA          string `json:"commit_sha,omitempty"`
	CommitDate         string `json:"commit_date,omitempty"`
	LastModifiedCommit string `json:"last_modified_commit,omitempty"`
	LastModifiedDate   string `json:"last_modified_date,omitempty"`
	LastModifiedAuthor string `json:"last_modified_author,omitempty"`
	Category           string `json:"category,omitempty"`
	IndexedAt          string `json:"indexed_at,omitempty"`

	// Extra carries opaque caller-supplied fields.
	Extra map[string]any `json:"extra,omitempty"`
}

// GraphLabels returns the labels for the graph node, defaulting to
// Document when none are set.
func (m Metadata) GraphLabels() []string {
	if len(m.Labels) == 0 {
		return []string{"Document"}
	}
	return m.Labels
}

// Document is the unit of storage: one point in the vector index, one
// node in the graph, zero or more cache entries.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  Metadata
}

// ScoredDocument is a vector search hit.
type ScoredDocument struct {
	Document
	Score float32
}

// GraphNode is a node as read back from the graph index.
type GraphNode struct {
	ID      string
	Content string
	Source  string
	Type    string
	Labels  []string
}

// GraphRelationship is an edge incident to a node.
type GraphRelationship struct {
	Type    string
	Target  string
	Content string
}

// GraphStats summarises the graph index.
type GraphStats struct {
	TotalNodes        int      `json:"total_nodes"`
	TotalRelations    int      `json:"total_relations"`
	Labels            []string `json:"labels"`
	RelationshipTypes []string `json:"relationship_types"`
	Connected         bool     `json:"connected"`
}

// CacheStats counts engine-owned cache keys per pattern.
type CacheStats struct {
	QueryCacheEntries  int `json:"query_cache_entries"`
	EntityCacheEntries int `json:"entity_cache_entries"`
	PrefetchEntries    int `json:"prefetch_entries"`
	HistoryEntries     int `json:"history_entries"`
	FrequentQueries    int `json:"frequent_queries"`
}

// QueryFrequency pairs a query hash with its 24h hit counter.
type QueryFrequency struct {
	Hash  string `json:"hash"`
	Count int    `json:"count"`
}

// QueryHistoryEntry is one ring-buffer record of a served query.
type QueryHistoryEntry struct {
	Query     string `json:"query"`
	Timestamp string `json:"timestamp"`
}

// VectorHit is a query result attributed to the vector index.
type VectorHit struct {
	ID       string   `json:"id"`
	Score    float32  `json:"score"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// GraphHit is a query result attributed to the graph index.
type GraphHit struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Source  string `json:"source"`
	Type    string `json:"type"`
}

// TemporalHit is a passthrough result from the optional temporal index.
type TemporalHit struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryResult is the merged fanout result. Per-source attribution is
// preserved; nothing is deduplicated across sources at this layer.
type QueryResult struct {
	Query           string        `json:"query"`
	VectorResults   []VectorHit   `json:"vector_results"`
	GraphResults    []GraphHit    `json:"graph_results"`
	TemporalResults []TemporalHit `json:"temporal_results"`
	CacheHit        bool          `json:"cache_hit"`
}

// AddResult reports the per-store outcome of an Add.
type AddResult struct {
	Status   Status   `json:"status"`
	VectorID string   `json:"qdrant_id"`
	GraphID  string   `json:"falkordb_id"`
	Errors   []string `json:"errors,omitempty"`
}

// ID returns the cross-store document ID (the vector ID when the
// vector write succeeded).
func (r *AddResult) ID() string {
	if r.VectorID != "" {
		return r.VectorID
	}
	return r.GraphID
}

// DeleteResult reports the outcome of a single-document delete.
type DeleteResult struct {
	Status      Status   `json:"status"`
	Connections int      `json:"connections,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// DeleteAllResult reports a full wipe, with pre-wipe counts.
type DeleteAllResult struct {
	Status        Status   `json:"status"`
	VectorDeleted uint64   `json:"vector_deleted"`
	GraphDeleted  int      `json:"graph_deleted"`
	CacheCleared  bool     `json:"cache_cleared"`
	Errors        []string `json:"errors,omitempty"`
}

// SyncResult reports the fast vector-to-graph reconciliation pass.
type SyncResult struct {
	Synced int      `json:"synced"`
	Total  int      `json:"total"`
	Errors []string `json:"errors,omitempty"`
}

// Stats aggregates per-store statistics.
type Stats struct {
	VectorDocuments uint64     `json:"vector_documents"`
	Graph           GraphStats `json:"graph"`
	Cache           CacheStats `json:"cache"`
}

// DeletionRecord is one JSONL audit line for the deletions log.
type DeletionRecord struct {
	Timestamp string `json:"timestamp"`
	ID        string `json:"id,omitempty"`
	Source    string `json:"source,omitempty"`
	Reason    string `json:"reason"`
	Count     int    `json:"count,omitempty"`
}

// NewDeletionRecord stamps a record with the current time.
func NewDeletionRecord(id, source, reason string) DeletionRecord {
	return DeletionRecord{
		Timestamp: time.Now().Format(time.RFC3339),
		ID:        id,
		Source:    source,
		Reason:    reason,
	}
}
