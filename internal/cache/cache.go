// Package cache implements the Redis-backed hot layer: per-document
// content and keyword entries, the entity reverse index, the query
// result cache with frequency tracking, and prefetch markers.
//
// Every write is best-effort. Callers swallow the returned errors;
// the engine stays correct with an empty cache.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/e6labs/ultramemory/internal/logging"
	"github.com/e6labs/ultramemory/internal/memory"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("ultramemory.cache.redis")

// Key schema. TTLs follow the table in the engine design: hot
// per-document entries live an hour, index entries a day.
const (
	docTTL      = time.Hour
	keywordsTTL = time.Hour
	entityTTL   = 24 * time.Hour
	queryTTL    = time.Hour
	warmTTL     = 2 * time.Hour
	counterTTL  = 24 * time.Hour
	historyTTL  = 24 * time.Hour
	recentTTL   = time.Hour
	prefetchTTL = 30 * time.Minute

	recentWindow    = 100
	historyWindow   = 100
	entityDocsCap   = 100
	recentPreviewSz = 5 * 1024

	recentKey  = "recent:docs"
	historyKey = "query_history"
)

func docKey(id string) string         { return "doc:" + id }
func keywordsKey(id string) string    { return "keywords:" + id }
func docEntsKey(id string) string     { return "doc_entities:" + id }
func entityDocsKey(tok string) string { return "entity_docs:" + tok }
func recentDocKey(id string) string   { return "recent:" + id }
func prefetchKey(id string) string    { return "prefetch:" + id }

func queryCacheKey(query string) string { return "query_cache:" + queryHash(query)[:12] }
func queryHashKey(query string) string  { return "query_hash:" + queryHash(query) }

// queryHash is the MD5 of the normalised (lowercased, trimmed) query.
func queryHash(query string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])
}

// Config configures the Redis connection.
type Config struct {
	// Addr is host:port. Default: localhost:6379.
	Addr     string
	Password string
	DB       int
}

// Cache is the Redis-backed implementation of the engine cache.
type Cache struct {
	client *redis.Client
	logger *logging.Logger
	now    func() time.Time
}

// New creates the cache client and verifies connectivity.
func New(config *Config, logger *logging.Logger) (*Cache, error) {
	if config == nil {
		config = &Config{}
	}
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Named("cache").Info(ctx, "redis connection established",
		zap.String("addr", config.Addr), zap.Int("db", config.DB))

	return &Cache{
		client: client,
		logger: logger.Named("cache"),
		now:    time.Now,
	}, nil
}

// NewFromClient wraps an existing client, for tests against miniredis.
func NewFromClient(client *redis.Client, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{client: client, logger: logger.Named("cache"), now: time.Now}
}

// Close closes the connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping reports backend reachability.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// StoreDocument caches raw content under doc:{id}.
func (c *Cache) StoreDocument(ctx context.Context, id, content string) error {
	return c.client.Set(ctx, docKey(id), content, docTTL).Err()
}

// Document returns cached content; memory.ErrCacheMiss when absent.
func (c *Cache) Document(ctx context.Context, id string) (string, error) {
	content, err := c.client.Get(ctx, docKey(id)).Result()
	if err == redis.Nil {
		return "", memory.ErrCacheMiss
	}
	return content, err
}

// StoreKeywords caches the comma-joined keyword list.
func (c *Cache) StoreKeywords(ctx context.Context, id string, keywords []string) error {
	return c.client.Set(ctx, keywordsKey(id), strings.Join(keywords, ","), keywordsTTL).Err()
}

// Keywords returns the cached keyword list.
func (c *Cache) Keywords(ctx context.Context, id string) ([]string, error) {
	joined, err := c.client.Get(ctx, keywordsKey(id)).Result()
	if err == redis.Nil {
		return nil, memory.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	if joined == "" {
		return nil, nil
	}
	return strings.Split(joined, ","), nil
}

// StoreEntityLinks writes both directions of the entity index: the
// document's token list and, per token, the capped reverse list.
func (c *Cache) StoreEntityLinks(ctx context.Context, id string, tokens []string) error {
	payload, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, docEntsKey(id), payload, entityTTL).Err(); err != nil {
		return err
	}
	for _, tok := range tokens {
		if err := c.appendEntityDoc(ctx, tok, id); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) appendEntityDoc(ctx context.Context, token, id string) error {
	key := entityDocsKey(token)
	ids, err := c.readStringList(ctx, key)
	if err != nil && err != memory.ErrCacheMiss {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return c.client.Expire(ctx, key, entityTTL).Err()
		}
	}
	ids = append(ids, id)
	if len(ids) > entityDocsCap {
		ids = ids[len(ids)-entityDocsCap:]
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, entityTTL).Err()
}

// DocumentEntities returns the entity tokens extracted for a document.
func (c *Cache) DocumentEntities(ctx context.Context, id string) ([]string, error) {
	return c.readStringList(ctx, docEntsKey(id))
}

// EntityDocuments returns the documents mentioning an entity token.
func (c *Cache) EntityDocuments(ctx context.Context, token string) ([]string, error) {
	return c.readStringList(ctx, entityDocsKey(token))
}

func (c *Cache) readStringList(ctx context.Context, key string) ([]string, error) {
	payload, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, memory.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TouchRecent records the document in the recency window and stores a
// bounded content preview.
func (c *Cache) TouchRecent(ctx context.Context, id, content string) error {
	score := float64(c.now().UnixNano()) / float64(time.Second)
	if err := c.client.ZAdd(ctx, recentKey, redis.Z{Score: score, Member: id}).Err(); err != nil {
		return err
	}
	// Trim to the newest entries.
	if err := c.client.ZRemRangeByRank(ctx, recentKey, 0, int64(-recentWindow-1)).Err(); err != nil {
		return err
	}
	preview := content
	if len(preview) > recentPreviewSz {
		preview = preview[:recentPreviewSz]
	}
	return c.client.Set(ctx, recentDocKey(id), preview, recentTTL).Err()
}

// RecentDocuments returns up to limit IDs, most recent first.
func (c *Cache) RecentDocuments(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > recentWindow {
		limit = recentWindow
	}
	return c.client.ZRevRange(ctx, recentKey, 0, int64(limit-1)).Result()
}

// StoreQueryResult caches a serialized query result; warm results get
// the extended warm-up TTL.
func (c *Cache) StoreQueryResult(ctx context.Context, query string, payload []byte, warm bool) error {
	ctx, span := tracer.Start(ctx, "Cache.StoreQueryResult")
	defer span.End()
	span.SetAttributes(attribute.Bool("warm", warm), attribute.Int("payload_bytes", len(payload)))

	ttl := queryTTL
	if warm {
		ttl = warmTTL
	}
	return c.client.Set(ctx, queryCacheKey(query), payload, ttl).Err()
}

// QueryResult returns the cached payload for a query.
func (c *Cache) QueryResult(ctx context.Context, query string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Cache.QueryResult")
	defer span.End()

	payload, err := c.client.Get(ctx, queryCacheKey(query)).Bytes()
	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("hit", false))
		return nil, memory.ErrCacheMiss
	}
	span.SetAttributes(attribute.Bool("hit", err == nil))
	return payload, err
}

// RecordQuery bumps the query's 24h frequency counter and appends to
// the history ring buffer. Returns the new counter value.
func (c *Cache) RecordQuery(ctx context.Context, query string) (int64, error) {
	key := queryHashKey(query)
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if err := c.client.Expire(ctx, key, counterTTL).Err(); err != nil {
		return count, err
	}

	entry, err := json.Marshal(memory.QueryHistoryEntry{
		Query:     query,
		Timestamp: c.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return count, err
	}
	pipe := c.client.Pipeline()
	pipe.LPush(ctx, historyKey, entry)
	pipe.LTrim(ctx, historyKey, 0, historyWindow-1)
	pipe.Expire(ctx, historyKey, historyTTL)
	_, err = pipe.Exec(ctx)
	return count, err
}

// FrequentQueries scans the counter keys and returns those at or
// above minCount.
func (c *Cache) FrequentQueries(ctx context.Context, minCount int) ([]memory.QueryFrequency, error) {
	keys, err := c.scanKeys(ctx, "query_hash:*")
	if err != nil {
		return nil, err
	}
	var out []memory.QueryFrequency
	for _, key := range keys {
		val, err := c.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		count, err := strconv.Atoi(val)
		if err != nil || count < minCount {
			continue
		}
		out = append(out, memory.QueryFrequency{
			Hash:  strings.TrimPrefix(key, "query_hash:"),
			Count: count,
		})
	}
	return out, nil
}

// QueryHistory returns the newest history entries, newest first.
func (c *Cache) QueryHistory(ctx context.Context, limit int) ([]memory.QueryHistoryEntry, error) {
	if limit <= 0 || limit > historyWindow {
		limit = historyWindow
	}
	raw, err := c.client.LRange(ctx, historyKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]memory.QueryHistoryEntry, 0, len(raw))
	for _, r := range raw {
		var e memory.QueryHistoryEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// MarkPrefetched writes the short-lived hot marker for a document.
func (c *Cache) MarkPrefetched(ctx context.Context, id string) error {
	return c.client.Set(ctx, prefetchKey(id), "1", prefetchTTL).Err()
}

// WasPrefetched reports whether the hot marker is present.
func (c *Cache) WasPrefetched(ctx context.Context, id string) (bool, error) {
	err := c.client.Get(ctx, prefetchKey(id)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InvalidateQueries drops every cached query result and returns how
// many were removed.
func (c *Cache) InvalidateQueries(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Cache.InvalidateQueries")
	defer span.End()

	keys, err := c.scanKeys(ctx, "query_cache:*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("invalidated", len(keys)))
	return len(keys), nil
}

// InvalidateDocument drops every cache entry referencing a document.
func (c *Cache) InvalidateDocument(ctx context.Context, id string) error {
	if err := c.client.Del(ctx,
		docKey(id), keywordsKey(id), docEntsKey(id), recentDocKey(id), prefetchKey(id),
	).Err(); err != nil {
		return err
	}
	return c.client.ZRem(ctx, recentKey, id).Err()
}

// FlushAll clears the whole cache database.
func (c *Cache) FlushAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Cache.FlushAll")
	defer span.End()
	return c.client.FlushDB(ctx).Err()
}

// Stats counts engine-owned keys per pattern.
func (c *Cache) Stats(ctx context.Context) (memory.CacheStats, error) {
	var stats memory.CacheStats

	patterns := []struct {
		pattern string
		target  *int
	}{
		{"query_cache:*", &stats.QueryCacheEntries},
		{"entity_docs:*", &stats.EntityCacheEntries},
		{"prefetch:*", &stats.PrefetchEntries},
		{"query_hash:*", &stats.FrequentQueries},
	}
	for _, p := range patterns {
		keys, err := c.scanKeys(ctx, p.pattern)
		if err != nil {
			return stats, err
		}
		*p.target = len(keys)
	}

	historyLen, err := c.client.LLen(ctx, historyKey).Result()
	if err != nil && err != redis.Nil {
		return stats, err
	}
	stats.HistoryEntries = int(historyLen)
	return stats, nil
}

func (c *Cache) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		page, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, page...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

var _ memory.Cache = (*Cache)(nil)
