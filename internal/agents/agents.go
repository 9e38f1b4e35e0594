// Package agents hosts the operational agents that drive the memory
// engine: the librarian ingests, the consolidator maintains, the
// deleter removes. A registry resolves agent names for the CLI and the
// scheduler, including user-defined custom agents on disk.
package agents

import (
	"context"
	"errors"

	"github.com/e6labs/ultramemory/internal/memory"
)

var (
	// ErrUnknownAgent marks a name the registry cannot resolve.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrAgentUnavailable marks a known agent that runs outside this
	// process (researcher, consultant, proactive).
	ErrAgentUnavailable = errors.New("agent unavailable")
	// ErrMissingInput marks an agent invocation without its required
	// argument.
	ErrMissingInput = errors.New("missing agent input")
)

// Memory is the coordinator surface the agents operate on. Satisfied
// by *memory.Coordinator.
type Memory interface {
	Add(ctx context.Context, content string, meta memory.Metadata) (*memory.AddResult, error)
	Query(ctx context.Context, text string, limit int, useCache bool) (*memory.QueryResult, error)
	Delete(ctx context.Context, id string, preserveConnections bool) (*memory.DeleteResult, error)
	DeleteAll(ctx context.Context, confirm bool) (*memory.DeleteAllResult, error)
	Count(ctx context.Context) (uint64, error)
}
