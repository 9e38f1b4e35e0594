package consolidate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/e6labs/ultramemory/internal/memory"
)

const similarToRel = "SIMILAR_TO"

// linkSimilarDocuments creates SIMILAR_TO edges between a document and
// its top semantic neighbours, skipping pairs already linked.
func (e *Engine) linkSimilarDocuments(ctx context.Context, docs []memory.Document, report *Report) error {
	sample := docs
	if len(sample) > e.config.LinkSampleSize {
		sample = sample[:e.config.LinkSampleSize]
	}

	var firstErr error
	for _, doc := range sample {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		vector, err := e.embedder.Embed(ctx, doc.Content)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		hits, err := e.vector.Search(ctx, vector, 5)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		linked := e.similarTargets(ctx, doc.ID)
		for _, hit := range hits {
			if hit.ID == doc.ID || hit.Score < e.config.LinkThreshold || linked[hit.ID] {
				continue
			}
			props := map[string]string{"score": fmt.Sprintf("%.4f", hit.Score)}
			if err := e.graph.AddRelationship(ctx, doc.ID, hit.ID, similarToRel, props); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			linked[hit.ID] = true
			report.SimilarityLinks++
		}
	}
	return firstErr
}

func (e *Engine) similarTargets(ctx context.Context, id string) map[string]bool {
	linked := make(map[string]bool)
	rels, err := e.graph.Relationships(ctx, id)
	if err != nil {
		return linked
	}
	for _, rel := range rels {
		if rel.Type == similarToRel {
			linked[rel.Target] = true
		}
	}
	return linked
}

// validateCrossReferences records graph orphans and the symmetric
// difference between the two stores' ID sets.
func (e *Engine) validateCrossReferences(ctx context.Context, report *Report) error {
	orphans, err := e.graph.OrphanCount(ctx)
	if err != nil {
		return err
	}
	report.OrphansFound = orphans
	if report.Analysis != nil {
		report.Analysis.OrphanedNodes = orphans
	}

	vectorIDs, err := e.vector.ListIDs(ctx)
	if err != nil {
		return err
	}
	graphIDs, err := e.graph.ListIDs(ctx)
	if err != nil {
		return err
	}
	missing, extra := diffIDs(vectorIDs, graphIDs)
	report.StoreDivergence = len(missing) + len(extra)
	return nil
}

// reconcile drives the two stores to the same ID set: graph-only nodes
// are deleted, vector-only documents get nodes, looping to a fixpoint.
// Ends by densifying the graph with keyword links.
func (e *Engine) reconcile(ctx context.Context, report *Report) error {
	for round := 0; round < e.config.FixpointRounds; round++ {
		vectorIDs, err := e.vector.ListIDs(ctx)
		if err != nil {
			return err
		}
		graphIDs, err := e.graph.ListIDs(ctx)
		if err != nil {
			return err
		}

		missing, extra := diffIDs(vectorIDs, graphIDs)
		if len(missing) == 0 && len(extra) == 0 {
			report.ReconcileConverged = true
			break
		}

		for _, id := range extra {
			if err := e.graph.DeleteNode(ctx, id); err != nil {
				return err
			}
			report.ReconcileRemoved++
		}
		for _, id := range missing {
			doc, err := e.vector.Get(ctx, id)
			if err != nil || doc == nil {
				continue
			}
			if err := e.graph.CreateNode(ctx, *doc); err != nil {
				return err
			}
			report.ReconcileAdded++
		}
	}
	if !report.ReconcileConverged {
		e.logger.Warn(ctx, "reconciliation did not converge",
			zap.Int("rounds", e.config.FixpointRounds))
	}

	links, err := e.graph.LinkByKeywords(ctx)
	if err != nil {
		return err
	}
	report.KeywordLinks = links
	return nil
}

// diffIDs returns vector−graph (missing nodes) and graph−vector
// (orphan nodes).
func diffIDs(vectorIDs, graphIDs []string) (missing, extra []string) {
	inVector := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		inVector[id] = true
	}
	inGraph := make(map[string]bool, len(graphIDs))
	for _, id := range graphIDs {
		inGraph[id] = true
	}
	for _, id := range vectorIDs {
		if !inGraph[id] {
			missing = append(missing, id)
		}
	}
	for _, id := range graphIDs {
		if !inVector[id] {
			extra = append(extra, id)
		}
	}
	return missing, extra
}
