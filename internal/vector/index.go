package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/e6labs/ultramemory/internal/memory"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("ultramemory.vector.qdrant")

// contentKey is the payload field holding the raw document content.
const contentKey = "content"

// scrollPageSize bounds one page of the ListIDs scroll.
const scrollPageSize = 256

// EnsureCollection creates the collection with the configured
// dimension and cosine metric when it does not exist yet.
func (x *Index) EnsureCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Index.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", x.config.Collection))

	ctx, cancel := context.WithTimeout(ctx, x.config.RequestTimeout)
	defer cancel()

	err := x.retryOperation(ctx, func() error {
		_, err := x.client.GetCollectionInfo(ctx, x.config.Collection)
		if err == nil {
			return nil
		}
		if !isNotFound(err) {
			return err
		}
		x.logger.Info(ctx, "creating collection",
			zap.String("collection", x.config.Collection),
			zap.Uint64("dimension", x.config.Dimension),
		)
		return x.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: x.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     x.config.Dimension,
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Upsert stores one document as a point. A missing ID gets a fresh
// UUID; the ID actually written is returned.
func (x *Index) Upsert(ctx context.Context, doc memory.Document) (string, error) {
	ctx, span := tracer.Start(ctx, "Index.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("collection", x.config.Collection))

	if err := x.EnsureCollection(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("ensure collection: %w", err)
	}

	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}

	payload := toPayload(doc.Metadata.Map())
	payload[contentKey] = toValue(doc.Content)

	ctx, cancel := context.WithTimeout(ctx, x.config.RequestTimeout)
	defer cancel()

	err := x.retryOperation(ctx, func() error {
		_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: x.config.Collection,
			Points: []*qdrant.PointStruct{{
				Id:      qdrant.NewIDUUID(id),
				Vectors: qdrant.NewVectors(doc.Embedding...),
				Payload: payload,
			}},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return id, nil
}

// Get retrieves one document by ID. Unknown IDs return (nil, nil).
func (x *Index) Get(ctx context.Context, id string) (*memory.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, x.config.RequestTimeout)
	defer cancel()

	var points []*qdrant.RetrievedPoint
	err := x.retryOperation(ctx, func() error {
		result, err := x.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: x.config.Collection,
			Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return err
		}
		points = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}

	doc := retrievedToDocument(points[0])
	return &doc, nil
}

// Search returns the top-limit points by cosine similarity.
func (x *Index) Search(ctx context.Context, vector []float32, limit int) ([]memory.ScoredDocument, error) {
	ctx, span := tracer.Start(ctx, "Index.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", x.config.Collection),
		attribute.Int("limit", limit),
	)

	ctx, cancel := context.WithTimeout(ctx, x.config.RequestTimeout)
	defer cancel()

	var results []*qdrant.ScoredPoint
	err := x.retryOperation(ctx, func() error {
		res, err := x.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: x.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("result_count", len(results)))

	out := make([]memory.ScoredDocument, 0, len(results))
	for _, p := range results {
		content, meta := splitPayload(fromPayload(p.Payload))
		out = append(out, memory.ScoredDocument{
			Document: memory.Document{
				ID:       pointIDString(p.Id),
				Content:  content,
				Metadata: meta,
			},
			Score: p.Score,
		})
	}
	return out, nil
}

// Delete removes one point.
func (x *Index) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Index.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("collection", x.config.Collection))

	ctx, cancel := context.WithTimeout(ctx, x.config.RequestTimeout)
	defer cancel()

	err := x.retryOperation(ctx, func() error {
		_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: x.config.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{
						Ids: []*qdrant.PointId{qdrant.NewIDUUID(id)},
					},
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// DeleteAll removes every point in the collection and returns the
// pre-wipe count.
func (x *Index) DeleteAll(ctx context.Context) (uint64, error) {
	ctx, span := tracer.Start(ctx, "Index.DeleteAll")
	defer span.End()
	span.SetAttributes(attribute.String("collection", x.config.Collection))

	count, err := x.Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, x.config.RequestTimeout)
	defer cancel()

	err = x.retryOperation(ctx, func() error {
		// An empty filter selects every point.
		_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: x.config.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{},
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	span.SetAttributes(attribute.Int("deleted", int(count)))
	x.logger.Warn(ctx, "collection wiped",
		zap.String("collection", x.config.Collection),
		zap.Uint64("deleted", count),
	)
	return count, nil
}

// Count returns the exact number of points.
func (x *Index) Count(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, x.config.RequestTimeout)
	defer cancel()

	var count uint64
	err := x.retryOperation(ctx, func() error {
		n, err := x.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: x.config.Collection,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			if isNotFound(err) {
				count = 0
				return nil
			}
			return err
		}
		count = n
		return nil
	})
	return count, err
}

// ListIDs pages through every point ID via scroll.
func (x *Index) ListIDs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		seen   = make(map[string]bool)
		offset *qdrant.PointId
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var page []*qdrant.RetrievedPoint
		err := x.retryOperation(ctx, func() error {
			reqCtx, cancel := context.WithTimeout(ctx, x.config.RequestTimeout)
			defer cancel()

			result, err := x.client.Scroll(reqCtx, &qdrant.ScrollPoints{
				CollectionName: x.config.Collection,
				Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
				Offset:         offset,
				WithPayload:    qdrant.NewWithPayload(false),
			})
			if err != nil {
				if isNotFound(err) {
					result = nil
					err = nil
				} else {
					return err
				}
			}
			page = result
			return nil
		})
		if err != nil {
			return nil, err
		}

		added := 0
		for _, p := range page {
			id := pointIDString(p.Id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
			added++
		}
		if len(page) < scrollPageSize || added == 0 {
			break
		}
		// The next scroll page starts at (and repeats) the last ID.
		offset = qdrant.NewIDUUID(pointIDString(page[len(page)-1].Id))
	}
	return ids, nil
}

// SearchSimilar returns hits with score at or above threshold, for
// the consolidation engine's duplicate and relationship passes.
func (x *Index) SearchSimilar(ctx context.Context, vector []float32, limit int, threshold float32) ([]memory.ScoredDocument, error) {
	hits, err := x.Search(ctx, vector, limit)
	if err != nil {
		return nil, err
	}
	out := hits[:0]
	for _, h := range hits {
		if h.Score >= threshold {
			out = append(out, h)
		}
	}
	return out, nil
}

func retrievedToDocument(p *qdrant.RetrievedPoint) memory.Document {
	content, meta := splitPayload(fromPayload(p.Payload))
	return memory.Document{
		ID:        pointIDString(p.Id),
		Content:   content,
		Embedding: vectorsOutput(p.Vectors),
		Metadata:  meta,
	}
}

// splitPayload peels the content field off and converts the rest into
// typed metadata.
func splitPayload(payload map[string]any) (string, memory.Metadata) {
	if payload == nil {
		return "", memory.Metadata{}
	}
	content, _ := payload[contentKey].(string)
	delete(payload, contentKey)
	return content, memory.MetadataFromMap(payload)
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	if n := id.GetNum(); n != 0 {
		return fmt.Sprintf("%d", n)
	}
	return ""
}

func vectorsOutput(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	if vec := vectors.GetVector(); vec != nil {
		if dense := vec.GetDense(); dense != nil {
			return dense.GetData()
		}
	}
	return nil
}

var _ memory.VectorIndex = (*Index)(nil)
