// Package graph implements the property-graph index on FalkorDB.
// FalkorDB speaks the Redis protocol; every operation is a Cypher
// query issued through GRAPH.QUERY. String parameters pass through a
// single-pass escaper at this boundary — nothing above this package
// builds Cypher.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/e6labs/ultramemory/internal/logging"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("ultramemory.graph.falkordb")

// Config configures the FalkorDB connection.
type Config struct {
	// Addr is host:port. Default: localhost:6370.
	Addr     string
	Password string
	DB       int
	// GraphName is the graph every query targets. Default: "default".
	GraphName string
	// Timeout bounds individual queries. Default: 30s.
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6370"
	}
	if c.GraphName == "" {
		c.GraphName = "default"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Index is the FalkorDB-backed graph index.
type Index struct {
	client *redis.Client
	config *Config
	logger *logging.Logger
}

// New creates the graph client and verifies connectivity.
func New(config *Config, logger *logging.Logger) (*Index, error) {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	config.ApplyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	idx := &Index{
		client: client,
		config: config,
		logger: logger.Named("graph"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("falkordb ping failed: %w", err)
	}

	idx.logger.Info(ctx, "falkordb connection established",
		zap.String("addr", config.Addr),
		zap.String("graph", config.GraphName),
	)
	return idx, nil
}

// Close closes the connection.
func (x *Index) Close() error {
	return x.client.Close()
}

// Health reports whether the backend answers a ping.
func (x *Index) Health(ctx context.Context) error {
	return x.client.Ping(ctx).Err()
}

// Row is one result row keyed by the RETURN column aliases.
type Row map[string]any

// Execute runs a Cypher query and returns the rows. Every graph
// operation funnels through here, so one span covers them all.
func (x *Index) Execute(ctx context.Context, cypher string) ([]Row, error) {
	ctx, span := tracer.Start(ctx, "Index.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("graph", x.config.GraphName))

	ctx, cancel := context.WithTimeout(ctx, x.config.Timeout)
	defer cancel()

	raw, err := x.client.Do(ctx, "GRAPH.QUERY", x.config.GraphName, cypher).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("graph query: %w", err)
	}
	rows := parseReply(raw)
	span.SetAttributes(attribute.Int("row_count", len(rows)))
	return rows, nil
}

// parseReply turns the GRAPH.QUERY reply — [header, rows, stats] —
// into alias-keyed rows. Write-only queries reply with stats only and
// yield no rows.
func parseReply(raw any) []Row {
	reply, ok := raw.([]any)
	if !ok || len(reply) < 2 {
		return nil
	}

	header := columnNames(reply[0])
	rowsRaw, ok := reply[1].([]any)
	if !ok || len(header) == 0 {
		return nil
	}

	rows := make([]Row, 0, len(rowsRaw))
	for _, r := range rowsRaw {
		cells, ok := r.([]any)
		if !ok {
			continue
		}
		row := make(Row, len(header))
		for i, name := range header {
			if i < len(cells) {
				row[name] = cells[i]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// columnNames extracts the column aliases. Depending on the protocol
// mode a header entry is either a plain string or a [type, name] pair.
func columnNames(raw any) []string {
	entries, ok := raw.([]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		switch v := e.(type) {
		case string:
			names = append(names, v)
		case []any:
			if len(v) > 0 {
				if s, ok := v[len(v)-1].(string); ok {
					names = append(names, s)
				}
			}
		}
	}
	return names
}

// Reply cell accessors. FalkorDB returns strings and int64s; counts
// sometimes arrive as strings.

func cellString(row Row, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	}
	return ""
}

func cellInt(row Row, key string) int {
	switch v := row[key].(type) {
	case int64:
		return int(v)
	case string:
		var n int
		fmt.Sscanf(v, "%d", &n)
		return n
	}
	return 0
}

func cellStrings(row Row, key string) []string {
	list, ok := row[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
