package agents

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/e6labs/ultramemory/internal/docproc"
	"github.com/e6labs/ultramemory/internal/logging"
	"github.com/e6labs/ultramemory/internal/memory"
)

// defaultDirExtensions are the file types AddDirectory picks up when
// the caller gives none.
var defaultDirExtensions = []string{".txt", ".md", ".pdf", ".html", ".htm", ".xlsx", ".csv"}

// Librarian ingests text, files, directories and URLs into memory,
// chunking large documents so each piece embeds well.
type Librarian struct {
	memory    Memory
	processor *docproc.Processor
	logger    *logging.Logger
}

// NewLibrarian builds the ingestion agent.
func NewLibrarian(mem Memory, processor *docproc.Processor, logger *logging.Logger) *Librarian {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Librarian{memory: mem, processor: processor, logger: logger.Named("librarian")}
}

// IngestResult reports one Add call: how many chunks were stored and
// the ID of the first.
type IngestResult struct {
	Status        string `json:"status"`
	ChunksCreated int    `json:"chunks_created"`
	DocumentID    string `json:"document_id,omitempty"`
	ContentType   string `json:"content_type"`
}

// Add ingests input, which may be literal text, a file path, or a URL.
// extra fields ride along on every chunk.
func (l *Librarian) Add(ctx context.Context, input string, extra memory.Metadata) (*IngestResult, error) {
	processed, err := l.processor.Process(ctx, input)
	if err != nil {
		return nil, err
	}

	chunks := l.processor.Chunk(processed.Content)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("nothing to ingest from %q", input)
	}

	result := &IngestResult{Status: "success", ContentType: processed.ContentType}
	for i, chunk := range chunks {
		meta := extra
		if meta.Source == "" {
			meta.Source = input
		}
		meta.ContentType = processed.ContentType
		if len(chunks) > 1 {
			meta.ChunkIndex = i
			meta.TotalChunks = len(chunks)
		}
		if meta.Extra == nil {
			meta.Extra = map[string]any{}
		}
		meta.Extra["agent"] = "librarian"

		added, err := l.memory.Add(ctx, chunk, meta)
		if err != nil {
			return nil, fmt.Errorf("store chunk %d/%d: %w", i+1, len(chunks), err)
		}
		result.ChunksCreated++
		if result.DocumentID == "" {
			result.DocumentID = added.ID()
		}
	}

	l.logger.Info(ctx, "content ingested",
		zap.String("source", input),
		zap.String("content_type", processed.ContentType),
		zap.Int("chunks", result.ChunksCreated))
	return result, nil
}

// FileResult is one entry of a directory ingest.
type FileResult struct {
	File   string `json:"file"`
	Status string `json:"status"`
	Chunks int    `json:"chunks,omitempty"`
	Error  string `json:"error,omitempty"`
}

// DirectoryResult summarises an AddDirectory run.
type DirectoryResult struct {
	FilesProcessed int          `json:"files_processed"`
	Failed         int          `json:"failed"`
	Results        []FileResult `json:"results"`
}

// AddDirectory ingests every matching file under dir recursively. Per
// file failures are recorded, not fatal.
func (l *Librarian) AddDirectory(ctx context.Context, dir string, extensions []string) (*DirectoryResult, error) {
	if len(extensions) == 0 {
		extensions = defaultDirExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}

	result := &DirectoryResult{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !allowed[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		entry := FileResult{File: path, Status: "success"}
		if ingested, err := l.Add(ctx, path, memory.Metadata{}); err != nil {
			entry.Status = "error"
			entry.Error = err.Error()
			result.Failed++
		} else {
			entry.Chunks = ingested.ChunksCreated
		}
		result.Results = append(result.Results, entry)
		result.FilesProcessed++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
