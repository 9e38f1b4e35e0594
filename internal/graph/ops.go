package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/e6labs/ultramemory/internal/memory"
)

const (
	defaultLabel = "Document"

	// maxNodeKeywords bounds the comma-joined keyword property.
	maxNodeKeywords = 10

	// linkScanLimit bounds how many nodes the keyword densify pass reads.
	linkScanLimit = 500
)

// entityClassLabels maps the metadata entity classes to graph labels.
var entityClassLabels = []struct {
	label string
	names func(memory.Entities) []string
}{
	{"Person", func(e memory.Entities) []string { return e.People }},
	{"Company", func(e memory.Entities) []string { return e.Organizations }},
	{"Location", func(e memory.Entities) []string { return e.Locations }},
}

// CreateNode upserts a document node keyed on id. Content is stored
// as an escaped preview; binary content becomes a placeholder.
func (x *Index) CreateNode(ctx context.Context, doc memory.Document) error {
	labels := make([]string, 0, len(doc.Metadata.GraphLabels()))
	for _, l := range doc.Metadata.GraphLabels() {
		labels = append(labels, SanitizeIdentifier(l, defaultLabel))
	}

	source := doc.Metadata.Source
	if source == "" {
		source = "unknown"
	}
	docType := doc.Metadata.Type
	if docType == "" {
		docType = "document"
	}

	sets := []string{
		fmt.Sprintf(`n.content = "%s"`, ContentPreview(doc.Content)),
		fmt.Sprintf(`n.source = "%s"`, EscapeString(source)),
		fmt.Sprintf(`n.type = "%s"`, EscapeString(docType)),
		fmt.Sprintf(`n.created_at = "%s"`, EscapeString(doc.Metadata.CreatedAt)),
	}
	if kw := doc.Metadata.Keywords; len(kw) > 0 && !IsBinary(doc.Content) {
		if len(kw) > maxNodeKeywords {
			kw = kw[:maxNodeKeywords]
		}
		sets = append(sets, fmt.Sprintf(`n.keywords = "%s"`, EscapeString(strings.Join(kw, ","))))
	}

	cypher := fmt.Sprintf(`MERGE (n:%s {id: "%s"}) SET %s`,
		strings.Join(labels, ":"), EscapeString(doc.ID), strings.Join(sets, ", "))
	_, err := x.Execute(ctx, cypher)
	return err
}

// GetNode reads one node by id. Unknown ids return (nil, nil).
func (x *Index) GetNode(ctx context.Context, id string) (*memory.GraphNode, error) {
	rows, err := x.Execute(ctx, fmt.Sprintf(
		`MATCH (n {id: "%s"}) RETURN n.id as id, n.content as content, n.source as source, n.type as type, labels(n) as labels`,
		EscapeString(id)))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	n := rowToNode(rows[0])
	return &n, nil
}

// NodeExists reports whether a node with the id exists.
func (x *Index) NodeExists(ctx context.Context, id string) (bool, error) {
	rows, err := x.Execute(ctx, fmt.Sprintf(
		`MATCH (n {id: "%s"}) RETURN count(n) as count`, EscapeString(id)))
	if err != nil {
		return false, err
	}
	return len(rows) > 0 && cellInt(rows[0], "count") > 0, nil
}

// SearchNodes substring-matches the content and source properties.
func (x *Index) SearchNodes(ctx context.Context, term string, limit int) ([]memory.GraphNode, error) {
	if limit <= 0 {
		limit = 10
	}
	escaped := EscapeString(term)
	rows, err := x.Execute(ctx, fmt.Sprintf(
		`MATCH (n) WHERE n.content CONTAINS "%s" OR n.source CONTAINS "%s" RETURN n.id as id, n.content as content, n.source as source, n.type as type LIMIT %d`,
		escaped, escaped, limit))
	if err != nil {
		return nil, err
	}
	nodes := make([]memory.GraphNode, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, rowToNode(row))
	}
	return nodes, nil
}

// Relationships lists the outgoing edges of a node.
func (x *Index) Relationships(ctx context.Context, id string) ([]memory.GraphRelationship, error) {
	rows, err := x.Execute(ctx, fmt.Sprintf(
		`MATCH (n {id: "%s"})-[r]->(m) RETURN type(r) as type, coalesce(m.id, m.name) as target, m.content as content`,
		EscapeString(id)))
	if err != nil {
		return nil, err
	}
	rels := make([]memory.GraphRelationship, 0, len(rows))
	for _, row := range rows {
		rels = append(rels, memory.GraphRelationship{
			Type:    cellString(row, "type"),
			Target:  cellString(row, "target"),
			Content: cellString(row, "content"),
		})
	}
	return rels, nil
}

// CountRelationships counts edges incident to a node, both directions.
func (x *Index) CountRelationships(ctx context.Context, id string) (int, error) {
	rows, err := x.Execute(ctx, fmt.Sprintf(
		`MATCH (n {id: "%s"})-[r]-() RETURN count(r) as count`, EscapeString(id)))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return cellInt(rows[0], "count"), nil
}

// DeleteNode removes a node and every incident edge.
func (x *Index) DeleteNode(ctx context.Context, id string) error {
	_, err := x.Execute(ctx, fmt.Sprintf(
		`MATCH (n {id: "%s"}) DETACH DELETE n`, EscapeString(id)))
	return err
}

// DeleteAllNodes wipes the graph and returns the pre-wipe node count.
func (x *Index) DeleteAllNodes(ctx context.Context) (int, error) {
	rows, err := x.Execute(ctx, `MATCH (n) RETURN count(n) as count`)
	if err != nil {
		return 0, err
	}
	count := 0
	if len(rows) > 0 {
		count = cellInt(rows[0], "count")
	}
	if _, err := x.Execute(ctx, `MATCH (n) DETACH DELETE n`); err != nil {
		return 0, err
	}
	x.logger.Warn(ctx, "graph wiped", zap.Int("deleted", count))
	return count, nil
}

// ListIDs returns the id of every document node. Entity nodes carry a
// name, not an id, and are excluded.
func (x *Index) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := x.Execute(ctx, `MATCH (n) WHERE n.id IS NOT NULL RETURN n.id as id`)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id := cellString(row, "id"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CreateEntityLinks upserts one entity node per extracted name and a
// MENTIONS edge from the document. Entity names are keyed lowercase.
func (x *Index) CreateEntityLinks(ctx context.Context, docID string, entities memory.Entities) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, class := range entityClassLabels {
		for _, name := range class.names(entities) {
			if err := x.LinkMention(ctx, docID, class.label, name, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpsertEntity creates or refreshes an entity node keyed on
// (label, lowercase name).
func (x *Index) UpsertEntity(ctx context.Context, label, name, lastUpdated string) error {
	label = SanitizeIdentifier(label, "Entity")
	_, err := x.Execute(ctx, fmt.Sprintf(
		`MERGE (e:%s {name: "%s"}) ON CREATE SET e.document_count = 1, e.last_updated = "%s" ON MATCH SET e.document_count = e.document_count + 1, e.last_updated = "%s"`,
		label, EscapeString(strings.ToLower(name)), EscapeString(lastUpdated), EscapeString(lastUpdated)))
	return err
}

// LinkMention upserts the entity node and the Document-MENTIONS-Entity
// edge in one statement. MERGE keeps the edge idempotent.
func (x *Index) LinkMention(ctx context.Context, docID, label, name, lastUpdated string) error {
	label = SanitizeIdentifier(label, "Entity")
	_, err := x.Execute(ctx, fmt.Sprintf(
		`MATCH (d {id: "%s"}) MERGE (e:%s {name: "%s"}) ON CREATE SET e.document_count = 1, e.last_updated = "%s" ON MATCH SET e.last_updated = "%s" MERGE (d)-[:MENTIONS]->(e)`,
		EscapeString(docID), label, EscapeString(strings.ToLower(name)),
		EscapeString(lastUpdated), EscapeString(lastUpdated)))
	return err
}

// MentionCount counts documents already linked to an entity.
func (x *Index) MentionCount(ctx context.Context, label, name string) (int, error) {
	label = SanitizeIdentifier(label, "Entity")
	rows, err := x.Execute(ctx, fmt.Sprintf(
		`MATCH (d)-[:MENTIONS]->(e:%s {name: "%s"}) RETURN count(d) as count`,
		label, EscapeString(strings.ToLower(name))))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return cellInt(rows[0], "count"), nil
}

// AddRelationship creates a typed edge, idempotent on
// (from, to, type). Property values are escaped.
func (x *Index) AddRelationship(ctx context.Context, fromID, toID, relType string, props map[string]string) error {
	relType = SanitizeIdentifier(relType, "RELATED_TO")

	var sets string
	if len(props) > 0 {
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf(`r.%s = "%s"`,
				SanitizeIdentifier(k, "prop"), EscapeString(props[k])))
		}
		sets = " SET " + strings.Join(parts, ", ")
	}

	_, err := x.Execute(ctx, fmt.Sprintf(
		`MATCH (a {id: "%s"}), (b {id: "%s"}) MERGE (a)-[r:%s]->(b)%s`,
		EscapeString(fromID), EscapeString(toID), relType, sets))
	return err
}

// Stats summarises the graph. A failing backend yields a disconnected
// zero value, not an error, mirroring the coordinator's tolerance.
func (x *Index) Stats(ctx context.Context) (memory.GraphStats, error) {
	stats := memory.GraphStats{}

	rows, err := x.Execute(ctx, `MATCH (n) RETURN count(n) as count`)
	if err != nil {
		return stats, err
	}
	if len(rows) > 0 {
		stats.TotalNodes = cellInt(rows[0], "count")
	}

	if rows, err := x.Execute(ctx, `MATCH ()-[r]->() RETURN count(r) as count`); err == nil && len(rows) > 0 {
		stats.TotalRelations = cellInt(rows[0], "count")
	}
	if rows, err := x.Execute(ctx, `CALL db.labels()`); err == nil {
		for _, row := range rows {
			if l := cellString(row, "label"); l != "" {
				stats.Labels = append(stats.Labels, l)
			}
		}
	}
	if rows, err := x.Execute(ctx, `CALL db.relationshipTypes()`); err == nil {
		for _, row := range rows {
			if t := cellString(row, "relationshipType"); t != "" {
				stats.RelationshipTypes = append(stats.RelationshipTypes, t)
			}
		}
	}

	stats.Connected = true
	return stats, nil
}

// OrphanCount counts nodes with no incident edges.
func (x *Index) OrphanCount(ctx context.Context) (int, error) {
	rows, err := x.Execute(ctx,
		`MATCH (n) WHERE NOT (n)-[]->() AND NOT ()-[]->(n) RETURN count(n) as count`)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return cellInt(rows[0], "count"), nil
}

// DeleteOrphans removes up to limit edge-less nodes.
func (x *Index) DeleteOrphans(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := x.Execute(ctx, fmt.Sprintf(
		`MATCH (n) WHERE NOT (n)-[]->() AND NOT ()-[]->(n) WITH n LIMIT %d DETACH DELETE n RETURN count(n) as count`,
		limit))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return cellInt(rows[0], "count"), nil
}

// AllNodes reads up to limit document nodes with their keywords.
func (x *Index) AllNodes(ctx context.Context, limit int) ([]NodeRecord, error) {
	if limit <= 0 {
		limit = linkScanLimit
	}
	rows, err := x.Execute(ctx, fmt.Sprintf(
		`MATCH (n) WHERE n.id IS NOT NULL RETURN n.id as id, n.content as content, n.source as source, n.type as type, n.keywords as keywords LIMIT %d`,
		limit))
	if err != nil {
		return nil, err
	}
	nodes := make([]NodeRecord, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, NodeRecord{
			GraphNode: rowToNode(row),
			Keywords:  splitKeywords(cellString(row, "keywords")),
		})
	}
	return nodes, nil
}

// NodeRecord is a node plus its stored keyword list.
type NodeRecord struct {
	memory.GraphNode
	Keywords []string
}

// LinkByKeywords densifies the graph: nodes sharing a stored keyword
// get a SIMILAR_TO edge with the keyword and a fixed weight. Returns
// how many edges were created.
func (x *Index) LinkByKeywords(ctx context.Context) (int, error) {
	nodes, err := x.AllNodes(ctx, linkScanLimit)
	if err != nil {
		return 0, err
	}
	if len(nodes) < 2 {
		return 0, nil
	}

	byKeyword := make(map[string][]string)
	for _, n := range nodes {
		for _, kw := range n.Keywords {
			byKeyword[kw] = append(byKeyword[kw], n.ID)
		}
	}

	created := 0
	seen := make(map[[2]string]bool)
	for kw, ids := range byKeyword {
		for i, a := range ids {
			for _, b := range ids[i+1:] {
				pair := [2]string{a, b}
				if b < a {
					pair = [2]string{b, a}
				}
				if seen[pair] {
					continue
				}
				seen[pair] = true
				if err := ctx.Err(); err != nil {
					return created, err
				}
				if err := x.AddRelationship(ctx, a, b, "SIMILAR_TO", map[string]string{
					"keyword": kw,
					"weight":  "0.5",
				}); err != nil {
					x.logger.Debug(ctx, "keyword link failed",
						zap.String("from", a), zap.String("to", b), zap.Error(err))
					continue
				}
				created++
			}
		}
	}
	return created, nil
}

func rowToNode(row Row) memory.GraphNode {
	return memory.GraphNode{
		ID:      cellString(row, "id"),
		Content: cellString(row, "content"),
		Source:  cellString(row, "source"),
		Type:    cellString(row, "type"),
		Labels:  cellStrings(row, "labels"),
	}
}

func splitKeywords(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

var _ memory.GraphIndex = (*Index)(nil)
