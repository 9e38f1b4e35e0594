package docproc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ProcessURL fetches a remote page and extracts its text. HTML
// responses are parsed; anything else is taken as-is. The result is
// truncated to the configured character budget.
func (p *Processor) ProcessURL(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ultramemory/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	var content string
	if strings.Contains(contentType, "text/html") {
		content, err = extractHTML(resp.Body)
		if err != nil {
			return nil, err
		}
	} else {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", url, err)
		}
		content = string(body)
	}

	if runes := []rune(content); len(runes) > p.maxFetchChars {
		p.logger.Debug(ctx, "truncating fetched page",
			zap.String("url", url),
			zap.Int("chars", len(runes)),
			zap.Int("limit", p.maxFetchChars))
		content = string(runes[:p.maxFetchChars])
	}

	return &Result{Content: content, ContentType: TypeURL, Source: url}, nil
}
