// Package docproc turns files, URLs and raw text into plain text ready
// for enrichment and indexing, and splits long text into overlapping
// chunks.
package docproc

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/e6labs/ultramemory/internal/logging"
)

// Defaults for chunking and remote fetching.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultFetchTimeout = 30 * time.Second
	// Fetched pages are truncated to this many runes.
	DefaultMaxFetchChars = 50000
)

// Content types reported by Process.
const (
	TypeText        = "text"
	TypeDocument    = "document"
	TypeSpreadsheet = "spreadsheet"
	TypeWebpage     = "webpage"
	TypeURL         = "url"
)

// Config tunes the processor. Zero values take the package defaults.
type Config struct {
	ChunkSize     int
	ChunkOverlap  int
	FetchTimeout  time.Duration
	MaxFetchChars int
}

func (c *Config) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.MaxFetchChars <= 0 {
		c.MaxFetchChars = DefaultMaxFetchChars
	}
}

// Result is the extracted plain text plus how it was obtained.
type Result struct {
	Content     string
	ContentType string
	Source      string
}

// Processor extracts text from supported inputs.
type Processor struct {
	chunkSize     int
	chunkOverlap  int
	maxFetchChars int
	client        *http.Client
	logger        *logging.Logger
}

// New builds a Processor from cfg.
func New(cfg Config, logger *logging.Logger) *Processor {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		chunkSize:     cfg.ChunkSize,
		chunkOverlap:  cfg.ChunkOverlap,
		maxFetchChars: cfg.MaxFetchChars,
		client:        &http.Client{Timeout: cfg.FetchTimeout},
		logger:        logger.Named("docproc"),
	}
}

// Process resolves input as a URL, an existing file path, or raw text,
// in that order, and returns extracted plain text.
func (p *Processor) Process(ctx context.Context, input string) (*Result, error) {
	switch {
	case strings.HasPrefix(input, "http://"), strings.HasPrefix(input, "https://"):
		return p.ProcessURL(ctx, input)
	case isFile(input):
		return p.ProcessFile(ctx, input)
	default:
		return &Result{Content: input, ContentType: TypeText, Source: "inline"}, nil
	}
}

// ProcessFile extracts text from a local file, dispatching on extension.
func (p *Processor) ProcessFile(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	var (
		content     string
		contentType string
		err         error
	)
	switch ext {
	case ".pdf":
		content, err = extractPDF(path)
		contentType = TypeDocument
	case ".xlsx", ".xlsm", ".xls":
		content, err = extractExcel(path)
		contentType = TypeSpreadsheet
	case ".csv":
		content, err = readText(path)
		contentType = TypeSpreadsheet
	case ".html", ".htm":
		content, err = extractHTMLFile(path)
		contentType = TypeWebpage
	default:
		content, err = readText(path)
		contentType = TypeText
	}
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", path, err)
	}
	return &Result{Content: content, ContentType: contentType, Source: path}, nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func isFile(input string) bool {
	// Paths with newlines are raw text, not filenames.
	if strings.ContainsAny(input, "\n\r") || len(input) > 4096 {
		return false
	}
	info, err := os.Stat(input)
	return err == nil && info.Mode().IsRegular()
}
