package docproc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestProcessor(cfg Config) *Processor {
	return New(cfg, nil)
}

func TestChunkShortTextPassesThrough(t *testing.T) {
	p := newTestProcessor(Config{})

	assert.Equal(t, []string{"short text"}, p.Chunk("short text"))
	assert.Nil(t, p.Chunk("   \n  "))
	assert.Nil(t, p.Chunk(""))
}

func TestChunkBreaksAtSentenceBoundaries(t *testing.T) {
	p := newTestProcessor(Config{ChunkSize: 20, ChunkOverlap: 5})

	chunks := p.Chunk("abcdef. ghijkl. mnopqr. stuvwx.")
	assert.Equal(t, []string{
		"abcdef. ghijkl.",
		"ijkl. mnopqr.",
		"opqr. stuvwx.",
	}, chunks)
}

func TestChunkOverlapCarriesContext(t *testing.T) {
	p := newTestProcessor(Config{})

	var sb strings.Builder
	for i := 0; i < 60; i++ {
		sb.WriteString("This sentence pads the document with steady prose. ")
	}
	text := sb.String()

	chunks := p.Chunk(text)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), DefaultChunkSize)
		assert.Equal(t, chunk, strings.TrimSpace(chunk))
	}
	// The start of each chunk repeats the tail of the previous window.
	assert.Contains(t, chunks[0], chunks[1][:50])
}

func TestChunkBreaksAtNewlines(t *testing.T) {
	p := newTestProcessor(Config{ChunkSize: 30, ChunkOverlap: 0})

	chunks := p.Chunk("first line of notes\nsecond line of notes\nthird line")
	require.NotEmpty(t, chunks)
	assert.Equal(t, "first line of notes", chunks[0])
}

func TestProcessInlineText(t *testing.T) {
	p := newTestProcessor(Config{})

	res, err := p.Process(context.Background(), "just some pasted text")
	require.NoError(t, err)
	assert.Equal(t, TypeText, res.ContentType)
	assert.Equal(t, "inline", res.Source)
	assert.Equal(t, "just some pasted text", res.Content)
}

func TestProcessTextAndCSVFiles(t *testing.T) {
	p := newTestProcessor(Config{})
	dir := t.TempDir()

	txt := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(txt, []byte("# Notes\nbody"), 0o644))
	res, err := p.Process(context.Background(), txt)
	require.NoError(t, err)
	assert.Equal(t, TypeText, res.ContentType)
	assert.Equal(t, "# Notes\nbody", res.Content)

	csv := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(csv, []byte("a,b\n1,2\n"), 0o644))
	res, err = p.Process(context.Background(), csv)
	require.NoError(t, err)
	assert.Equal(t, TypeSpreadsheet, res.ContentType)
	assert.Equal(t, "a,b\n1,2\n", res.Content)
}

func TestProcessHTMLFileStripsScripts(t *testing.T) {
	p := newTestProcessor(Config{})
	path := filepath.Join(t.TempDir(), "page.html")
	html := `<html><head><style>body{color:red}</style></head>
<body><h1>Title</h1><script>alert("x")</script><p>Visible text.</p></body></html>`
	require.NoError(t, os.WriteFile(path, []byte(html), 0o644))

	res, err := p.Process(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, TypeWebpage, res.ContentType)
	assert.Contains(t, res.Content, "Title")
	assert.Contains(t, res.Content, "Visible text.")
	assert.NotContains(t, res.Content, "alert")
	assert.NotContains(t, res.Content, "color:red")
}

func TestProcessExcelWorkbook(t *testing.T) {
	p := newTestProcessor(Config{})
	path := filepath.Join(t.TempDir(), "inventory.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Qty"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "widget"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 3))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	res, err := p.Process(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, TypeSpreadsheet, res.ContentType)
	assert.Contains(t, res.Content, "Sheet: Sheet1")
	assert.Contains(t, res.Content, "Name, Qty")
	assert.Contains(t, res.Content, "widget, 3")
}

func TestProcessURLHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><script>nope()</script><p>Remote content.</p></body></html>`))
	}))
	defer srv.Close()

	p := newTestProcessor(Config{})
	res, err := p.Process(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, TypeURL, res.ContentType)
	assert.Equal(t, srv.URL, res.Source)
	assert.Contains(t, res.Content, "Remote content.")
	assert.NotContains(t, res.Content, "nope")
}

func TestProcessURLTruncatesAndRejectsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("0123456789ABCDEF"))
	}))
	defer srv.Close()

	p := newTestProcessor(Config{MaxFetchChars: 10})
	res, err := p.ProcessURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", res.Content)

	_, err = p.ProcessURL(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")
}
