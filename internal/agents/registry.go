package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/e6labs/ultramemory/internal/consolidate"
	"github.com/e6labs/ultramemory/internal/logging"
	"github.com/e6labs/ultramemory/internal/memory"
)

// Built-in agent names.
const (
	AgentLibrarian    = "librarian"
	AgentConsolidator = "consolidator"
	AgentDeleter      = "deleter"
)

// externalAgents are known names that run outside this process; the
// registry lists them but refuses to run them.
var externalAgents = map[string]string{
	"researcher": "autonomous web research",
	"consultant": "interactive consultation",
	"proactive":  "background suggestion engine",
}

// Consolidator runs the maintenance engine.
type Consolidator interface {
	Consolidate(ctx context.Context) (*consolidate.Report, error)
}

// EngineConsolidator adapts the consolidation engine, running an
// incremental pass.
type EngineConsolidator struct {
	Engine *consolidate.Engine
}

func (c EngineConsolidator) Consolidate(ctx context.Context) (*consolidate.Report, error) {
	return c.Engine.Consolidate(ctx, false)
}

// Info describes one resolvable agent.
type Info struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"` // builtin, custom, external
	Description string `json:"description,omitempty"`
	Available   bool   `json:"available"`
}

// Registry resolves agent names to runnable agents.
type Registry struct {
	librarian    *Librarian
	consolidator Consolidator
	deleter      *Deleter
	agentsDir    string
	logger       *logging.Logger
}

// NewRegistry wires the built-in agents plus the on-disk custom agent
// directory.
func NewRegistry(librarian *Librarian, consolidator Consolidator, deleter *Deleter, agentsDir string, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		librarian:    librarian,
		consolidator: consolidator,
		deleter:      deleter,
		agentsDir:    agentsDir,
		logger:       logger.Named("agents"),
	}
}

// List returns every resolvable agent: built-ins, custom agents on
// disk, and known external ones.
func (r *Registry) List() ([]Info, error) {
	infos := []Info{
		{Name: AgentLibrarian, Kind: "builtin", Description: "ingest text, files and URLs", Available: true},
		{Name: AgentConsolidator, Kind: "builtin", Description: "deep memory maintenance", Available: true},
		{Name: AgentDeleter, Kind: "builtin", Description: "remove memories by query or id", Available: true},
	}

	custom, err := ListCustomAgents(r.agentsDir)
	if err != nil {
		return nil, err
	}
	for _, name := range custom {
		infos = append(infos, Info{Name: name, Kind: "custom", Available: true})
	}

	external := make([]Info, 0, len(externalAgents))
	for name, desc := range externalAgents {
		external = append(external, Info{Name: name, Kind: "external", Description: desc, Available: false})
	}
	sort.Slice(external, func(i, j int) bool { return external[i].Name < external[j].Name })

	return append(infos, external...), nil
}

// Run executes the named agent with its arguments and returns its
// report. Unknown names fail; external names fail with
// ErrAgentUnavailable.
func (r *Registry) Run(ctx context.Context, name string, args []string) (any, error) {
	switch name {
	case AgentLibrarian:
		if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
			return nil, fmt.Errorf("%w: librarian needs content, a path, or a URL", ErrMissingInput)
		}
		return r.librarian.Add(ctx, args[0], memory.Metadata{})

	case AgentConsolidator:
		return r.consolidator.Consolidate(ctx)

	case AgentDeleter:
		if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
			return nil, fmt.Errorf("%w: deleter needs a query", ErrMissingInput)
		}
		return r.deleter.DeleteByQuery(ctx, strings.Join(args, " "), DefaultDeleteLimit, true)
	}

	if desc, ok := externalAgents[name]; ok {
		return nil, fmt.Errorf("%w: %s (%s) runs outside the engine", ErrAgentUnavailable, name, desc)
	}

	agent, err := LoadCustomAgent(r.agentsDir, name)
	if err != nil {
		return nil, err
	}
	// Custom agents carry prompts and skills for external runners; the
	// engine only acknowledges them.
	return map[string]any{
		"status": "success",
		"agent":  agent.Name,
		"skills": len(agent.Skills),
	}, nil
}
