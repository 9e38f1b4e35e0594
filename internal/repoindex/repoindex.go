// Package repoindex ingests git repositories into the memory engine:
// clone, walk, filter, and store one document per source file with
// commit-level metadata so re-indexing only touches changed files.
package repoindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/google/go-github/v57/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/e6labs/ultramemory/internal/logging"
	"github.com/e6labs/ultramemory/internal/memory"
	"github.com/e6labs/ultramemory/internal/secrets"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("ultramemory.repoindex")

// ErrPreconditionFailed marks an index run that could not start:
// unreachable engine, failed clone, or a private repo without a token.
var ErrPreconditionFailed = errors.New("repo index precondition failed")

const (
	// DefaultMaxFileSize skips files larger than 1 MiB.
	DefaultMaxFileSize = 1 << 20
	// DefaultMaxFiles caps one index run.
	DefaultMaxFiles = 500
)

// Memory is the slice of the coordinator the ingestor needs.
// Satisfied by *memory.Coordinator.
type Memory interface {
	Add(ctx context.Context, content string, meta memory.Metadata) (*memory.AddResult, error)
	Query(ctx context.Context, text string, limit int, useCache bool) (*memory.QueryResult, error)
	Delete(ctx context.Context, id string, preserveConnections bool) (*memory.DeleteResult, error)
}

// Config tunes an Ingestor.
type Config struct {
	// GitHubToken authenticates clones and metadata reads for private
	// repositories. Empty means anonymous access.
	GitHubToken string
	MaxFileSize int64
	MaxFiles    int
	Excludes    []string
	// RedactSecrets runs every file through the secret scanner before
	// storage.
	RedactSecrets bool
}

func (c *Config) applyDefaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = DefaultMaxFiles
	}
}

// Options tunes a single Index call.
type Options struct {
	// Category overrides the category mapping for this run.
	Category string
	// Force re-indexes every file regardless of commit state.
	Force bool
	// MaxFiles overrides the configured cap when positive.
	MaxFiles int
	// Excludes adds directory names to the exclusion set.
	Excludes []string
}

// FileError records a single file that failed to index.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Report summarises one index run.
type Report struct {
	Repo       string      `json:"repo"`
	Category   string      `json:"category"`
	CommitSHA  string      `json:"commit_sha"`
	TotalFiles int         `json:"total_files"`
	Indexed    int         `json:"indexed"`
	Updated    int         `json:"updated"`
	Skipped    int         `json:"skipped"`
	Errors     []FileError `json:"errors,omitempty"`
}

// Ingestor indexes repositories into memory.
type Ingestor struct {
	memory     Memory
	categories *Categories
	scanner    *secrets.Scanner
	github     *github.Client
	config     Config
	logger     *logging.Logger
	metrics    *Metrics
}

// New builds an Ingestor. categories and scanner may be nil; the
// GitHub API client is built from the configured token when set.
func New(mem Memory, categories *Categories, scanner *secrets.Scanner, cfg Config, logger *logging.Logger) *Ingestor {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ingestor{
		memory:     mem,
		categories: categories,
		scanner:    scanner,
		github:     newGitHubClient(cfg.GitHubToken),
		config:     cfg,
		logger:     logger.Named("repoindex"),
		metrics:    NewMetrics(),
	}
}

func newGitHubClient(token string) *github.Client {
	if token == "" {
		return github.NewClient(nil)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(context.Background(), ts))
}

// Index ingests one repository. ref is "owner/repo", a GitHub URL, or
// a local directory containing a git checkout.
func (i *Ingestor) Index(ctx context.Context, ref string, opts Options) (*Report, error) {
	ctx, span := tracer.Start(ctx, "Ingestor.Index")
	defer span.End()
	span.SetAttributes(attribute.String("ref", ref), attribute.Bool("force", opts.Force))

	if info, err := os.Stat(ref); err == nil && info.IsDir() {
		return i.indexLocal(ctx, ref, opts)
	}

	owner, name, err := ParseRepoRef(ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	private, err := i.checkRemote(ctx, owner, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if private && i.config.GitHubToken == "" {
		err := fmt.Errorf("%w: %s/%s is private and no github token is configured", ErrPreconditionFailed, owner, name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	dir, err := os.MkdirTemp("", "ulmem-clone-*")
	if err != nil {
		return nil, fmt.Errorf("create clone dir: %w", err)
	}
	defer os.RemoveAll(dir)

	i.logger.Info(ctx, "cloning repository",
		zap.String("repo", owner+"/"+name))
	repo, err := cloneRepo(ctx, dir, CloneURL(owner, name), i.config.GitHubToken)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrPreconditionFailed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return i.indexRepo(ctx, repo, dir, owner, name, opts)
}

// indexLocal indexes a repository already present on disk.
func (i *Ingestor) indexLocal(ctx context.Context, dir string, opts Options) (*Report, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPreconditionFailed, dir, err)
	}
	return i.indexRepo(ctx, repo, dir, "local", filepath.Base(dir), opts)
}

// checkRemote reads repository metadata from the GitHub API. API
// failures are non-fatal for public access; they only matter when the
// repo turns out to be private.
func (i *Ingestor) checkRemote(ctx context.Context, owner, name string) (private bool, err error) {
	meta, _, err := i.github.Repositories.Get(ctx, owner, name)
	if err != nil {
		i.logger.Warn(ctx, "github metadata unavailable",
			zap.String("repo", owner+"/"+name), zap.Error(err))
		return false, nil
	}
	return meta.GetPrivate(), nil
}

func (i *Ingestor) indexRepo(ctx context.Context, repo *git.Repository, root, owner, name string, opts Options) (*Report, error) {
	category := strings.ToLower(strings.TrimSpace(opts.Category))
	switch {
	case category == "" && i.categories != nil:
		category = i.categories.Lookup(owner, name)
	case category == "":
		category = DefaultCategory
	case !ValidCategory(category):
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	head, err := headCommit(repo)
	if err != nil {
		return nil, err
	}

	excludes := append([]string{}, i.config.Excludes...)
	excludes = append(excludes, opts.Excludes...)
	files, err := listFiles(root, excludes, i.config.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	maxFiles := i.config.MaxFiles
	if opts.MaxFiles > 0 {
		maxFiles = opts.MaxFiles
	}
	if len(files) > maxFiles {
		i.logger.Warn(ctx, "file cap reached",
			zap.Int("total", len(files)), zap.Int("cap", maxFiles))
		files = files[:maxFiles]
	}

	report := &Report{
		Repo:       owner + "/" + name,
		Category:   category,
		CommitSHA:  head.SHA,
		TotalFiles: len(files),
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := i.indexFile(ctx, repo, root, owner, name, rel, head, category, opts.Force, report); err != nil {
			report.Errors = append(report.Errors, FileError{File: rel, Error: err.Error()})
			i.metrics.RecordFile("failed")
			i.logger.Warn(ctx, "file failed", zap.String("file", rel), zap.Error(err))
		}
	}

	i.metrics.RecordRun()
	i.logger.Info(ctx, "repository indexed",
		zap.String("repo", report.Repo),
		zap.Int("indexed", report.Indexed),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

func (i *Ingestor) indexFile(ctx context.Context, repo *git.Repository, root, owner, name, rel string, head commitInfo, category string, force bool, report *Report) error {
	last, err := fileHistory(repo, rel)
	if err != nil {
		return err
	}

	existing := i.findExisting(ctx, owner, name, rel)
	if existing != nil && !force {
		if last.SHA != "" && existing.Metadata.LastModifiedCommit == last.SHA {
			report.Skipped++
			i.metrics.RecordFile("skipped")
			return nil
		}
	}

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	content := strings.ToValidUTF8(string(data), "")

	ext := strings.ToLower(filepath.Ext(rel))
	if IsLegacyExtension(ext) {
		content = ProcessLegacyFile(ext, content)
	}
	if strings.TrimSpace(content) == "" {
		report.Skipped++
		i.metrics.RecordFile("skipped")
		return nil
	}

	if i.config.RedactSecrets && i.scanner != nil {
		redacted, findings := i.scanner.Redact(content)
		if len(findings) > 0 {
			i.logger.Info(ctx, "secrets redacted",
				zap.String("file", rel), zap.Int("findings", len(findings)))
			content = redacted
		}
	}

	meta := memory.Metadata{
		ContentType:        "code",
		SourceType:         "repository",
		Source:             fmt.Sprintf("%s/%s/%s", owner, name, rel),
		RepoOwner:          owner,
		RepoName:           name,
		RepoURL:            "https://github.com/" + owner + "/" + name,
		FilePath:           rel,
		FileExtension:      ext,
		FileLanguage:       Language(ext),
		CommitSHA:          head.SHA,
		CommitDate:         head.Date,
		LastModifiedCommit: last.SHA,
		LastModifiedDate:   last.Date,
		LastModifiedAuthor: strings.TrimSpace(last.AuthorName + " <" + last.AuthorEmail + ">"),
		Category:           category,
		IndexedAt:          time.Now().UTC().Format(time.RFC3339),
	}

	updated := existing != nil
	if updated {
		if _, err := i.memory.Delete(ctx, existing.ID, false); err != nil {
			return fmt.Errorf("replace %s: %w", existing.ID, err)
		}
	}

	result, err := i.memory.Add(ctx, content, meta)
	if err != nil {
		return err
	}
	if result.Status == memory.StatusFailed {
		return fmt.Errorf("store %s: %s", rel, strings.Join(result.Errors, "; "))
	}

	if updated {
		report.Updated++
		i.metrics.RecordFile("updated")
	} else {
		report.Indexed++
		i.metrics.RecordFile("indexed")
	}
	return nil
}

// findExisting locates the stored document for (owner, name, path) by
// querying and filtering on exact repository metadata. A miss means
// the file was never indexed.
func (i *Ingestor) findExisting(ctx context.Context, owner, name, rel string) *memory.VectorHit {
	result, err := i.memory.Query(ctx, fmt.Sprintf("%s/%s %s", owner, name, rel), 20, false)
	if err != nil || result == nil {
		return nil
	}
	for idx := range result.VectorResults {
		hit := &result.VectorResults[idx]
		if hit.Metadata.RepoOwner == owner &&
			hit.Metadata.RepoName == name &&
			hit.Metadata.FilePath == rel {
			return hit
		}
	}
	return nil
}
