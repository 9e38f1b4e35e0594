package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestDeterministicStable(t *testing.T) {
	a := Deterministic("hello world", 64)
	b := Deterministic("hello world", 64)
	c := Deterministic("something else", 64)

	require.Len(t, a, 64)
	assert.Equal(t, a, b, "same input must produce the same vector")
	assert.NotEqual(t, a, c, "different inputs must diverge")
}

func TestDeterministicUnitNorm(t *testing.T) {
	v := Deterministic("normalise me", 128)
	assert.InDelta(t, 1.0, float64(Cosine(v, v)), 1e-5)
}

func TestCoerce(t *testing.T) {
	long := make([]float32, 10)
	for i := range long {
		long[i] = float32(i)
	}

	assert.Len(t, Coerce(long, 4), 4)
	assert.Equal(t, long[:4], Coerce(long, 4))

	padded := Coerce([]float32{1, 2}, 5)
	require.Len(t, padded, 5)
	assert.Equal(t, []float32{1, 2, 0, 0, 0}, padded)

	same := Coerce(long, 10)
	assert.Equal(t, long, same)
}

func TestProviderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 1)

		vec := make([]float32, 8)
		for i := range vec {
			vec[i] = 0.5
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vec}},
		})
	}))
	defer srv.Close()

	p := NewProvider(Config{
		Provider:  "openai",
		APIKey:    "test-key",
		Model:     "text-embedding-3-small",
		BaseURL:   srv.URL,
		Dimension: 16,
	}, nil)

	vec, err := p.Embed(context.Background(), "some text")
	require.NoError(t, err)
	// Provider returned 8 floats; coerced to the configured 16.
	require.Len(t, vec, 16)
	assert.Equal(t, float32(0.5), vec[0])
	assert.Equal(t, float32(0), vec[15])
}

func TestProviderFallbackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewProvider(Config{Provider: "minimax", APIKey: "k", BaseURL: srv.URL, Dimension: 32}, nil)

	vec, err := p.Embed(context.Background(), "fallback input")
	require.NoError(t, err, "provider failures must not surface")
	require.Len(t, vec, 32)
	assert.Equal(t, Deterministic("fallback input", 32), vec)
}

func TestProviderWithoutKeySkipsRequest(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewProvider(Config{Provider: "openai", BaseURL: srv.URL, Dimension: 32}, nil)

	vec, err := p.Embed(context.Background(), "no credentials")
	require.NoError(t, err)
	assert.Equal(t, Deterministic("no credentials", 32), vec)
	assert.Zero(t, calls, "without a key no request should be sent")
}

func TestEmbedEmitsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	p := NewProvider(Config{Provider: "openai", Dimension: 16}, nil)
	_, err := p.Embed(context.Background(), "traced input")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	assert.Equal(t, "Provider.Embed", spans[0].Name())
}

func TestProviderCancelledContext(t *testing.T) {
	p := NewProvider(Config{Provider: "minimax", APIKey: "k", BaseURL: "http://127.0.0.1:0", Dimension: 8}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Embed(ctx, "never sent")
	require.Error(t, err)
}
