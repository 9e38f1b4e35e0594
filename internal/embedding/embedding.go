// Package embedding turns text into fixed-dimension vectors. The HTTP
// provider speaks the OpenAI-compatible embeddings API; on any
// provider failure it degrades to a deterministic pseudo-embedding so
// ingestion never blocks on the provider.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/e6labs/ultramemory/internal/logging"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("ultramemory.embedding")

// Config holds provider settings.
type Config struct {
	// Provider selects the backend: "minimax" or "openai". Both speak
	// the same wire format; the name picks defaults for model and URL.
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	// Dimension every returned vector is coerced to.
	Dimension int
	Timeout   time.Duration
	// RateLimit is requests per second against the provider API.
	RateLimit float64
	Burst     int
}

// Provider is the HTTP embedding client.
type Provider struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     *logging.Logger
}

// NewProvider builds a provider from config. logger may be nil.
func NewProvider(cfg Config, logger *logging.Logger) *Provider {
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Provider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		log:     logger.Named("embedding"),
	}
}

// Dimension returns the configured vector size.
func (p *Provider) Dimension() int {
	return p.cfg.Dimension
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns a vector of exactly Dimension() floats. It never
// returns an error for provider failures; those fall back to the
// deterministic embedding. The only error is a cancelled context.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "Provider.Embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", p.cfg.Provider),
		attribute.Int("text_length", len(text)),
	)

	if p.cfg.APIKey == "" {
		// Without a key the request can only fail; skip it.
		span.SetAttributes(attribute.Bool("deterministic", true))
		return Deterministic(text, p.cfg.Dimension), nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	vec, err := p.request(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, ctx.Err().Error())
			return nil, ctx.Err()
		}
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("deterministic", true))
		p.log.Warn(ctx, "provider request failed, using deterministic embedding",
			zap.String("provider", p.cfg.Provider), zap.Error(err))
		return Deterministic(text, p.cfg.Dimension), nil
	}
	return Coerce(vec, p.cfg.Dimension), nil
}

func (p *Provider) request(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: p.cfg.Model, Input: []string{text}})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embeddings API returned %d: %s", resp.StatusCode, payload)
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(er.Data) == 0 || len(er.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return er.Data[0].Embedding, nil
}
