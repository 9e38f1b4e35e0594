package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/e6labs/ultramemory/internal/logging"
	"github.com/e6labs/ultramemory/internal/memory"
)

// DefaultDeleteLimit caps one delete-by-query pass.
const DefaultDeleteLimit = 100

// Deleter removes memories. Every successful deletion is audited by
// the coordinator's deletion log.
type Deleter struct {
	memory Memory
	logger *logging.Logger
}

// NewDeleter builds the deletion agent.
func NewDeleter(mem Memory, logger *logging.Logger) *Deleter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Deleter{memory: mem, logger: logger.Named("deleter")}
}

// DeleteReport summarises a delete-by-query pass.
type DeleteReport struct {
	Query   string   `json:"query"`
	Matched int      `json:"matched"`
	Deleted int      `json:"deleted"`
	Blocked int      `json:"blocked"`
	Errors  []string `json:"errors,omitempty"`
}

// DeleteByQuery finds memories matching query and deletes up to limit
// of them. With preserveConnections set, documents holding graph
// relationships are left in place and counted as blocked.
func (d *Deleter) DeleteByQuery(ctx context.Context, query string, limit int, preserveConnections bool) (*DeleteReport, error) {
	if limit <= 0 {
		limit = DefaultDeleteLimit
	}

	found, err := d.memory.Query(ctx, query, limit, false)
	if err != nil {
		return nil, fmt.Errorf("find deletion candidates: %w", err)
	}

	report := &DeleteReport{Query: query, Matched: len(found.VectorResults)}
	for _, hit := range found.VectorResults {
		if report.Deleted+report.Blocked >= limit {
			break
		}
		res, err := d.memory.Delete(ctx, hit.ID, preserveConnections)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", hit.ID, err))
			continue
		}
		switch res.Status {
		case memory.StatusBlocked:
			report.Blocked++
		case memory.StatusSuccess:
			report.Deleted++
		default:
			report.Errors = append(report.Errors, fmt.Sprintf("%s: status %s", hit.ID, res.Status))
		}
	}

	d.logger.Info(ctx, "delete by query finished",
		zap.String("query", query),
		zap.Int("deleted", report.Deleted),
		zap.Int("blocked", report.Blocked),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// DeleteByID deletes one memory.
func (d *Deleter) DeleteByID(ctx context.Context, id string, preserveConnections bool) (*memory.DeleteResult, error) {
	return d.memory.Delete(ctx, id, preserveConnections)
}

// DeleteAll wipes every store. confirm must be true or the call is
// refused.
func (d *Deleter) DeleteAll(ctx context.Context, confirm bool) (*memory.DeleteAllResult, error) {
	return d.memory.DeleteAll(ctx, confirm)
}

// Count reports the number of stored memories.
func (d *Deleter) Count(ctx context.Context) (uint64, error) {
	return d.memory.Count(ctx)
}
