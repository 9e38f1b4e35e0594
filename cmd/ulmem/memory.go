package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/e6labs/ultramemory/internal/agents"
	"github.com/e6labs/ultramemory/internal/memory"
)

var (
	// memory command flags
	memSource   string
	memType     string
	memMeta     []string
	memLimit    int
	memDelLimit int
	memNoCache  bool
	memConfirm  bool
	memDeleteID string
	memSevered  bool
	memFull     bool

	memRecentLimit  int
	memRelatedLimit int
	memHistLimit    int
	memFreqMin      int
)

func init() {
	rootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memoryAddCmd)
	memoryCmd.AddCommand(memoryQueryCmd)
	memoryCmd.AddCommand(memoryCountCmd)
	memoryCmd.AddCommand(memoryStatsCmd)
	memoryCmd.AddCommand(memoryAnalyzeCmd)
	memoryCmd.AddCommand(memoryConsolidateCmd)
	memoryCmd.AddCommand(memoryDeleteCmd)
	memoryCmd.AddCommand(memoryDeleteAllCmd)
	memoryCmd.AddCommand(memoryRecentCmd)
	memoryCmd.AddCommand(memoryRelatedCmd)
	memoryCmd.AddCommand(memoryHistoryCmd)
	memoryCmd.AddCommand(memoryFrequentCmd)
	memoryCmd.AddCommand(memoryWarmCacheCmd)
	memoryCmd.AddCommand(memoryInvalidateCacheCmd)

	memoryAddCmd.Flags().StringVar(&memSource, "source", "", "source label stored with the memory")
	memoryAddCmd.Flags().StringVar(&memType, "type", "", "memory type (note, decision, ...)")
	memoryAddCmd.Flags().StringArrayVarP(&memMeta, "meta", "m", nil, "extra metadata as key=value (repeatable)")

	memoryQueryCmd.Flags().IntVar(&memLimit, "limit", 5, "maximum results per store")
	memoryQueryCmd.Flags().BoolVar(&memNoCache, "no-cache", false, "bypass the query cache")

	memoryConsolidateCmd.Flags().BoolVar(&memFull, "full", false, "treat every document as changed")

	memoryDeleteCmd.Flags().StringVar(&memDeleteID, "id", "", "delete one document by ID instead of by query")
	memoryDeleteCmd.Flags().IntVar(&memDelLimit, "limit", agents.DefaultDeleteLimit, "maximum documents removed per run")
	memoryDeleteCmd.Flags().BoolVar(&memSevered, "sever-connections", false, "also delete documents that have graph connections")
	memoryDeleteCmd.Flags().BoolVar(&memConfirm, "confirm", false, "actually delete (required)")

	memoryDeleteAllCmd.Flags().BoolVar(&memConfirm, "confirm", false, "actually wipe every store (required)")

	memoryRecentCmd.Flags().IntVar(&memRecentLimit, "limit", 10, "maximum document IDs listed")
	memoryRelatedCmd.Flags().IntVar(&memRelatedLimit, "limit", 0, "maximum related documents")
	memoryHistoryCmd.Flags().IntVar(&memHistLimit, "limit", 20, "maximum history entries")
	memoryFrequentCmd.Flags().IntVar(&memFreqMin, "min", 2, "minimum 24h hit count")
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Store, query and maintain memories",
}

var memoryAddCmd = &cobra.Command{
	Use:   "add <content|path|url>",
	Short: "Store text, a file or a URL as memory",
	Long: `Store content in memory. The argument is auto-detected: an existing
file path is read and chunked, an http(s) URL is fetched, anything else
is stored as inline text.

Examples:
  ulmem memory add "The staging cluster moved to eu-west-1"
  ulmem memory add ./docs/runbook.md --type documentation
  ulmem memory add https://example.com/post -m project=ultramemory`,
	Args: cobra.ExactArgs(1),
	RunE: runMemoryAdd,
}

var memoryQueryCmd = &cobra.Command{
	Use:   "query <text>...",
	Short: "Search memories across the vector and graph stores",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMemoryQuery,
}

var memoryCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count stored documents",
	RunE:  runMemoryCount,
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-store statistics",
	RunE:  runMemoryStats,
}

var memoryAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze memory quality without changing anything",
	RunE:  runMemoryAnalyze,
}

var memoryConsolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run a full consolidation pass",
	Long: `Run the consolidation engine: duplicate purges, entity extraction,
graph densification and store reconciliation. With --full every
document is re-synced regardless of change detection.`,
	RunE: runMemoryConsolidate,
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete [query]...",
	Short: "Delete memories by query or by ID",
	Long: `Delete memories matching a query, or one document by --id. Connected
documents are preserved unless --sever-connections is set. Nothing is
deleted without --confirm.

Examples:
  ulmem memory delete obsolete deployment notes --confirm
  ulmem memory delete --id 4f1c9a00-7b2e-4d1f-9c3a-1a2b3c4d5e6f --confirm`,
	RunE: runMemoryDelete,
}

var memoryDeleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Wipe every store",
	RunE:  runMemoryDeleteAll,
}

var memoryRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recently touched documents",
	RunE:  runMemoryRecent,
}

var memoryRelatedCmd = &cobra.Command{
	Use:   "related <id>",
	Short: "List documents sharing an entity with the given document",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryRelated,
}

var memoryHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the most recent queries",
	RunE:  runMemoryHistory,
}

var memoryFrequentCmd = &cobra.Command{
	Use:   "frequent",
	Short: "Show queries hit repeatedly in the last 24h",
	RunE:  runMemoryFrequent,
}

var memoryWarmCacheCmd = &cobra.Command{
	Use:   "warm-cache",
	Short: "Pre-populate the query cache with common queries",
	RunE:  runMemoryWarmCache,
}

var memoryInvalidateCacheCmd = &cobra.Command{
	Use:   "invalidate-cache",
	Short: "Drop every cached query result",
	RunE:  runMemoryInvalidateCache,
}

func runMemoryAdd(cmd *cobra.Command, args []string) error {
	meta := memory.Metadata{Source: memSource, Type: memType}
	for _, pair := range memMeta {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --meta %q, want key=value", pair)
		}
		if meta.Extra == nil {
			meta.Extra = make(map[string]any)
		}
		meta.Extra[key] = value
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.librarian.Add(cmd.Context(), args[0], meta)
	if err != nil {
		return fmt.Errorf("store memory: %w", err)
	}

	if flagJSON {
		return outputJSON(result)
	}
	fmt.Printf("Stored (%s)\n", result.ContentType)
	fmt.Printf("ID:     %s\n", result.DocumentID)
	fmt.Printf("Chunks: %d\n", result.ChunksCreated)
	return nil
}

func runMemoryQuery(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.coordinator.Query(cmd.Context(), strings.Join(args, " "), memLimit, !memNoCache)
	if err != nil {
		return fmt.Errorf("query memory: %w", err)
	}

	if flagJSON {
		return outputJSON(result)
	}

	if result.CacheHit {
		fmt.Println("(cached)")
	}
	if len(result.VectorResults) == 0 && len(result.GraphResults) == 0 {
		fmt.Println("No results")
		return nil
	}
	for _, hit := range result.VectorResults {
		fmt.Printf("%.3f  %s  %s\n", hit.Score, hit.ID, snippet(hit.Content, 100))
	}
	for _, hit := range result.GraphResults {
		fmt.Printf("graph  %s  %s\n", hit.ID, snippet(hit.Content, 100))
	}
	return nil
}

func runMemoryCount(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	count, err := a.coordinator.Count(cmd.Context())
	if err != nil {
		return fmt.Errorf("count memory: %w", err)
	}
	if flagJSON {
		return outputJSON(map[string]uint64{"count": count})
	}
	fmt.Println(count)
	return nil
}

func runMemoryStats(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.coordinator.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("collect stats: %w", err)
	}
	if flagJSON {
		return outputJSON(stats)
	}
	fmt.Printf("Vector documents: %d\n", stats.VectorDocuments)
	fmt.Printf("Graph nodes:      %d\n", stats.Graph.TotalNodes)
	fmt.Printf("Graph edges:      %d\n", stats.Graph.TotalRelations)
	fmt.Printf("Graph connected:  %t\n", stats.Graph.Connected)
	fmt.Printf("Cached queries:   %d\n", stats.Cache.QueryCacheEntries)
	return nil
}

func runMemoryAnalyze(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.engine.Analyze(cmd.Context())
	if err != nil {
		return err
	}
	if flagJSON || report.Analysis == nil {
		return outputJSON(report)
	}

	an := report.Analysis
	fmt.Printf("Documents:         %d\n", an.TotalDocuments)
	fmt.Printf("Unique content:    %d\n", an.UniqueContent)
	fmt.Printf("Metadata coverage: %.1f%%\n", an.MetadataCoverage)
	fmt.Printf("Health score:      %.1f\n", an.HealthScore)
	for _, msg := range report.Errors {
		fmt.Printf("warning: %s\n", msg)
	}
	return nil
}

func runMemoryConsolidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.engine.Consolidate(cmd.Context(), memFull)
	if err != nil {
		return fmt.Errorf("consolidate memory: %w", err)
	}
	return outputJSON(report)
}

func runMemoryDelete(cmd *cobra.Command, args []string) error {
	if memDeleteID == "" && len(args) == 0 {
		return fmt.Errorf("provide a query or --id")
	}
	if !memConfirm {
		return fmt.Errorf("refusing to delete without --confirm")
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if memDeleteID != "" {
		result, err := a.deleter.DeleteByID(cmd.Context(), memDeleteID, !memSevered)
		if err != nil {
			return fmt.Errorf("delete %s: %w", memDeleteID, err)
		}
		return outputJSON(result)
	}

	report, err := a.deleter.DeleteByQuery(cmd.Context(), strings.Join(args, " "), memDelLimit, !memSevered)
	if err != nil {
		return fmt.Errorf("delete by query: %w", err)
	}
	if flagJSON {
		return outputJSON(report)
	}
	fmt.Printf("Matched: %d\nDeleted: %d\nBlocked: %d\n", report.Matched, report.Deleted, report.Blocked)
	for _, e := range report.Errors {
		fmt.Printf("error: %s\n", e)
	}
	return nil
}

func runMemoryDeleteAll(cmd *cobra.Command, args []string) error {
	if !memConfirm {
		return fmt.Errorf("refusing to wipe every store without --confirm")
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.deleter.DeleteAll(cmd.Context(), true)
	if err != nil {
		return fmt.Errorf("delete all: %w", err)
	}
	return outputJSON(result)
}

func runMemoryRecent(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	ids, err := a.coordinator.RecentDocuments(cmd.Context(), memRecentLimit)
	if err != nil {
		return fmt.Errorf("recent documents: %w", err)
	}
	if flagJSON {
		return outputJSON(ids)
	}
	if len(ids) == 0 {
		fmt.Println("No recent documents")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runMemoryRelated(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	ids := a.coordinator.RelatedDocuments(cmd.Context(), args[0], memRelatedLimit)
	if flagJSON {
		return outputJSON(ids)
	}
	if len(ids) == 0 {
		fmt.Println("No related documents")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runMemoryHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	history, err := a.coordinator.QueryHistory(cmd.Context(), memHistLimit)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}
	if flagJSON {
		return outputJSON(history)
	}
	if len(history) == 0 {
		fmt.Println("No queries recorded")
		return nil
	}
	for _, entry := range history {
		fmt.Printf("%s  %s\n", entry.Timestamp, snippet(entry.Query, 80))
	}
	return nil
}

func runMemoryFrequent(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	freq, err := a.coordinator.FrequentQueries(cmd.Context(), memFreqMin)
	if err != nil {
		return fmt.Errorf("frequent queries: %w", err)
	}
	if flagJSON {
		return outputJSON(freq)
	}
	if len(freq) == 0 {
		fmt.Println("No frequent queries")
		return nil
	}
	for _, f := range freq {
		fmt.Printf("%4d  %s\n", f.Count, f.Hash)
	}
	return nil
}

func runMemoryWarmCache(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	warmed, err := a.coordinator.WarmCache(cmd.Context())
	if err != nil {
		return fmt.Errorf("warm cache: %w", err)
	}
	if flagJSON {
		return outputJSON(map[string]int{"warmed": warmed})
	}
	fmt.Printf("Warmed %d queries\n", warmed)
	return nil
}

func runMemoryInvalidateCache(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.coordinator.InvalidateQueryCache(cmd.Context())
	if err != nil {
		return fmt.Errorf("invalidate query cache: %w", err)
	}
	if flagJSON {
		return outputJSON(map[string]int{"invalidated": n})
	}
	fmt.Printf("Invalidated %d cached queries\n", n)
	return nil
}

// snippet returns the first n characters of s on a single line.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
