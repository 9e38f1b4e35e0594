package repoindex

import (
	"context"
	"fmt"
	"io"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// commitInfo is the slice of a commit the indexer records per file.
type commitInfo struct {
	SHA         string
	Date        string
	AuthorName  string
	AuthorEmail string
}

// cloneRepo clones url into dir. A full clone, bounded by ctx: per-file
// history needs the whole log, so no shallow depth.
func cloneRepo(ctx context.Context, dir, url, token string) (*git.Repository, error) {
	opts := &git.CloneOptions{URL: url}
	if token != "" {
		// GitHub accepts any username with a token over https.
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
	}
	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", url, err)
	}
	return repo, nil
}

// headCommit returns the commit at HEAD.
func headCommit(repo *git.Repository) (commitInfo, error) {
	ref, err := repo.Head()
	if err != nil {
		return commitInfo{}, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return commitInfo{}, fmt.Errorf("read HEAD commit: %w", err)
	}
	return newCommitInfo(commit), nil
}

// fileHistory returns the most recent commit that touched the given
// relative path. A file with no recorded commit yields a zero info.
func fileHistory(repo *git.Repository, relPath string) (commitInfo, error) {
	iter, err := repo.Log(&git.LogOptions{
		FileName: &relPath,
		Order:    git.LogOrderCommitterTime,
	})
	if err != nil {
		return commitInfo{}, fmt.Errorf("log %s: %w", relPath, err)
	}
	defer iter.Close()

	commit, err := iter.Next()
	if err == io.EOF {
		return commitInfo{}, nil
	}
	if err != nil {
		return commitInfo{}, fmt.Errorf("log %s: %w", relPath, err)
	}
	return newCommitInfo(commit), nil
}

func newCommitInfo(commit *object.Commit) commitInfo {
	return commitInfo{
		SHA:         commit.Hash.String(),
		Date:        commit.Committer.When.UTC().Format(time.RFC3339),
		AuthorName:  commit.Author.Name,
		AuthorEmail: commit.Author.Email,
	}
}
