package agents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e6labs/ultramemory/internal/consolidate"
	"github.com/e6labs/ultramemory/internal/docproc"
	"github.com/e6labs/ultramemory/internal/memory"
)

type fakeMemory struct {
	mu          sync.Mutex
	docs        map[string]memory.Document
	connections map[string]int
	next        int
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{docs: map[string]memory.Document{}, connections: map[string]int{}}
}

func (f *fakeMemory) Add(_ context.Context, content string, meta memory.Metadata) (*memory.AddResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := fmt.Sprintf("doc-%d", f.next)
	f.docs[id] = memory.Document{ID: id, Content: content, Metadata: meta}
	return &memory.AddResult{Status: memory.StatusFull, VectorID: id}, nil
}

func (f *fakeMemory) Query(_ context.Context, text string, _ int, _ bool) (*memory.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := &memory.QueryResult{Query: text}
	for _, doc := range f.docs {
		if strings.Contains(doc.Content, text) {
			result.VectorResults = append(result.VectorResults, memory.VectorHit{
				ID: doc.ID, Content: doc.Content, Metadata: doc.Metadata,
			})
		}
	}
	return result, nil
}

func (f *fakeMemory) Delete(_ context.Context, id string, preserveConnections bool) (*memory.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if preserveConnections && f.connections[id] > 0 {
		return &memory.DeleteResult{Status: memory.StatusBlocked, Connections: f.connections[id]}, nil
	}
	delete(f.docs, id)
	return &memory.DeleteResult{Status: memory.StatusSuccess}, nil
}

func (f *fakeMemory) DeleteAll(_ context.Context, confirm bool) (*memory.DeleteAllResult, error) {
	if !confirm {
		return nil, memory.ErrNotConfirmed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := uint64(len(f.docs))
	f.docs = map[string]memory.Document{}
	return &memory.DeleteAllResult{Status: memory.StatusSuccess, VectorDeleted: n, CacheCleared: true}, nil
}

func (f *fakeMemory) Count(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.docs)), nil
}

func (f *fakeMemory) ordered() []memory.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := make([]memory.Document, 0, len(f.docs))
	for i := 1; i <= f.next; i++ {
		if doc, ok := f.docs[fmt.Sprintf("doc-%d", i)]; ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

type fakeConsolidator struct {
	runs   int
	report *consolidate.Report
}

func (f *fakeConsolidator) Consolidate(context.Context) (*consolidate.Report, error) {
	f.runs++
	if f.report == nil {
		f.report = &consolidate.Report{}
	}
	return f.report, nil
}

func newTestLibrarian(mem Memory, chunkSize, overlap int) *Librarian {
	proc := docproc.New(docproc.Config{ChunkSize: chunkSize, ChunkOverlap: overlap}, nil)
	return NewLibrarian(mem, proc, nil)
}

func TestLibrarianAddInlineText(t *testing.T) {
	mem := newFakeMemory()
	lib := newTestLibrarian(mem, 0, 0)

	result, err := lib.Add(context.Background(), "remember that deploys happen on fridays", memory.Metadata{})
	require.NoError(t, err)

	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 1, result.ChunksCreated)
	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Equal(t, docproc.TypeText, result.ContentType)

	docs := mem.ordered()
	require.Len(t, docs, 1)
	assert.Equal(t, "librarian", docs[0].Metadata.Extra["agent"])
	assert.Zero(t, docs[0].Metadata.TotalChunks, "single chunk carries no chunk fields")
}

func TestLibrarianChunksLargeFiles(t *testing.T) {
	sentence := "The quarterly report covers revenue, churn and forecasts. "
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat(sentence, 20)), 0o644))

	mem := newFakeMemory()
	lib := newTestLibrarian(mem, 200, 40)

	result, err := lib.Add(context.Background(), path, memory.Metadata{})
	require.NoError(t, err)
	require.Greater(t, result.ChunksCreated, 1)

	docs := mem.ordered()
	require.Len(t, docs, result.ChunksCreated)
	for i, doc := range docs {
		assert.Equal(t, i, doc.Metadata.ChunkIndex)
		assert.Equal(t, result.ChunksCreated, doc.Metadata.TotalChunks)
		assert.Equal(t, path, doc.Metadata.Source)
	}
}

func TestLibrarianAddDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# notes\nalpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("beta"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.bin"), []byte{0x00, 0x01}, 0o644))

	mem := newFakeMemory()
	lib := newTestLibrarian(mem, 0, 0)

	result, err := lib.AddDirectory(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesProcessed)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, mem.ordered(), 2)
}

func TestDeleterDeleteByQuery(t *testing.T) {
	mem := newFakeMemory()
	ctx := context.Background()
	for _, content := range []string{"stale draft one", "stale draft two", "keep this"} {
		_, err := mem.Add(ctx, content, memory.Metadata{})
		require.NoError(t, err)
	}
	mem.connections["doc-2"] = 3

	del := NewDeleter(mem, nil)
	report, err := del.DeleteByQuery(ctx, "stale draft", 10, true)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Blocked)
	assert.Empty(t, report.Errors)

	count, err := del.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestDeleterDeleteAllRequiresConfirm(t *testing.T) {
	mem := newFakeMemory()
	ctx := context.Background()
	_, err := mem.Add(ctx, "anything", memory.Metadata{})
	require.NoError(t, err)

	del := NewDeleter(mem, nil)
	_, err = del.DeleteAll(ctx, false)
	assert.ErrorIs(t, err, memory.ErrNotConfirmed)

	result, err := del.DeleteAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.VectorDeleted)
}

func TestCustomAgentLifecycle(t *testing.T) {
	dir := t.TempDir()

	created, err := CreateCustomAgent(dir, "doc-writer", "Writes project documentation.")
	require.NoError(t, err)
	assert.Contains(t, created.Prompt, "# doc-writer")
	assert.Empty(t, created.Skills)

	_, err = CreateCustomAgent(dir, "doc-writer", "dup")
	assert.ErrorIs(t, err, ErrAgentExists)

	_, err = CreateCustomAgent(dir, "Bad Name", "nope")
	assert.ErrorIs(t, err, ErrInvalidAgentName)

	agent, err := AddSkill(dir, "doc-writer", Skill{Name: "summarize", Description: "summarize sources"})
	require.NoError(t, err)
	require.Len(t, agent.Skills, 1)

	_, err = AddSkill(dir, "doc-writer", Skill{Name: "summarize"})
	assert.Error(t, err, "duplicate skill rejected")

	loaded, err := LoadCustomAgent(dir, "doc-writer")
	require.NoError(t, err)
	assert.Equal(t, "summarize", loaded.Skills[0].Name)

	names, err := ListCustomAgents(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-writer"}, names)
}

func TestRegistryListAndRun(t *testing.T) {
	dir := t.TempDir()
	mem := newFakeMemory()
	cons := &fakeConsolidator{}
	reg := NewRegistry(newTestLibrarian(mem, 0, 0), cons, NewDeleter(mem, nil), dir, nil)
	ctx := context.Background()

	_, err := CreateCustomAgent(dir, "helper", "misc helper")
	require.NoError(t, err)

	infos, err := reg.List()
	require.NoError(t, err)
	byName := map[string]Info{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	assert.True(t, byName[AgentLibrarian].Available)
	assert.Equal(t, "custom", byName["helper"].Kind)
	require.Contains(t, byName, "researcher")
	assert.False(t, byName["researcher"].Available)

	out, err := reg.Run(ctx, AgentLibrarian, []string{"some note to keep"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.(*IngestResult).ChunksCreated)

	_, err = reg.Run(ctx, AgentLibrarian, nil)
	assert.ErrorIs(t, err, ErrMissingInput)

	_, err = reg.Run(ctx, AgentConsolidator, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cons.runs)

	_, err = reg.Run(ctx, "researcher", nil)
	assert.ErrorIs(t, err, ErrAgentUnavailable)

	_, err = reg.Run(ctx, "no-such-agent", nil)
	assert.ErrorIs(t, err, ErrUnknownAgent)

	custom, err := reg.Run(ctx, "helper", nil)
	require.NoError(t, err)
	assert.Equal(t, "helper", custom.(map[string]any)["agent"])
}
