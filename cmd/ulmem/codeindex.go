package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/e6labs/ultramemory/internal/repoindex"
	"github.com/e6labs/ultramemory/internal/state"
)

var (
	// code-index command flags
	ciCategory string
	ciForce    bool
	ciMaxFiles int
	ciExcludes []string
)

func init() {
	rootCmd.AddCommand(codeIndexCmd)
	rootCmd.AddCommand(categoriesCmd)
	categoriesCmd.AddCommand(categoriesListCmd)
	categoriesCmd.AddCommand(categoriesSetCmd)
	categoriesCmd.AddCommand(categoriesRemoveCmd)

	codeIndexCmd.Flags().StringVarP(&ciCategory, "category", "c", "", "category for this run (overrides the mapping)")
	codeIndexCmd.Flags().BoolVarP(&ciForce, "force", "f", false, "re-index every file regardless of commit state")
	codeIndexCmd.Flags().IntVarP(&ciMaxFiles, "max-files", "l", 0, "cap on files indexed this run")
	codeIndexCmd.Flags().StringArrayVarP(&ciExcludes, "exclude", "e", nil, "extra directory names to skip (repeatable)")
}

var codeIndexCmd = &cobra.Command{
	Use:   "code-index <repo>",
	Short: "Index a code repository into memory",
	Long: `Index a repository's source files as code memories. The argument is a
GitHub reference (owner/repo or a github.com URL) or a local directory.
Remote repositories are cloned to a temporary directory; files already
indexed at their last-modified commit are skipped.

Examples:
  ulmem code-index e6labs/ultramemory
  ulmem code-index https://github.com/qdrant/go-client -c dependencias
  ulmem code-index ~/src/legacy-erp --force -e Informes`,
	Args: cobra.ExactArgs(1),
	RunE: runCodeIndex,
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Manage the repository category mapping",
	Long: `Map repositories to categories. Patterns are matched most specific
first: owner/repo, then owner, then "*". Valid categories: ` + strings.Join(repoindex.ValidCategories(), ", ") + `.`,
}

var categoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the category mapping",
	RunE:  runCategoriesList,
}

var categoriesSetCmd = &cobra.Command{
	Use:   "set <pattern> <category>",
	Short: "Map a repo, owner or * to a category",
	Args:  cobra.ExactArgs(2),
	RunE:  runCategoriesSet,
}

var categoriesRemoveCmd = &cobra.Command{
	Use:   "remove <pattern>",
	Short: "Remove a mapping",
	Args:  cobra.ExactArgs(1),
	RunE:  runCategoriesRemove,
}

func runCodeIndex(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.ingestor.Index(cmd.Context(), args[0], repoindex.Options{
		Category: ciCategory,
		Force:    ciForce,
		MaxFiles: ciMaxFiles,
		Excludes: ciExcludes,
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", args[0], err)
	}

	if flagJSON {
		return outputJSON(report)
	}
	fmt.Printf("Repo:     %s (%s)\n", report.Repo, report.Category)
	fmt.Printf("Commit:   %s\n", report.CommitSHA)
	fmt.Printf("Files:    %d\n", report.TotalFiles)
	fmt.Printf("Indexed:  %d\n", report.Indexed)
	fmt.Printf("Updated:  %d\n", report.Updated)
	fmt.Printf("Skipped:  %d\n", report.Skipped)
	for _, fe := range report.Errors {
		fmt.Fprintf(os.Stderr, "warning: %s: %s\n", fe.File, fe.Error)
	}
	return nil
}

func loadCategories() (*repoindex.Categories, error) {
	e, err := newEnv()
	if err != nil {
		return nil, err
	}
	return repoindex.LoadCategories(state.Path(e.stateDir, state.CategoriesFile))
}

func runCategoriesList(cmd *cobra.Command, args []string) error {
	categories, err := loadCategories()
	if err != nil {
		return err
	}

	entries := categories.List()
	if flagJSON {
		return outputJSON(entries)
	}
	patterns := make([]string, 0, len(entries))
	for pattern := range entries {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATTERN\tCATEGORY")
	for _, pattern := range patterns {
		fmt.Fprintf(w, "%s\t%s\n", pattern, entries[pattern])
	}
	return w.Flush()
}

func runCategoriesSet(cmd *cobra.Command, args []string) error {
	categories, err := loadCategories()
	if err != nil {
		return err
	}
	if err := categories.Set(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", args[0], args[1])
	return nil
}

func runCategoriesRemove(cmd *cobra.Command, args []string) error {
	categories, err := loadCategories()
	if err != nil {
		return err
	}
	if err := categories.Remove(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", args[0])
	return nil
}
