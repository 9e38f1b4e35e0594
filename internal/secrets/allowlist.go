package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
)

// AllowlistFile is the per-repo allowlist read from the repo root.
const AllowlistFile = ".ulmemory-allowlist.toml"

var (
	ErrInvalidTOML  = errors.New("invalid allowlist TOML")
	ErrInvalidRegex = errors.New("invalid allowlist regex")
)

// Allowlist holds path and content patterns excluded from detection.
type Allowlist struct {
	Paths   []string
	Regexes []string
}

// LoadAllowlist reads the repo-root allowlist plus an optional user
// allowlist file and merges them. Missing files yield an empty
// allowlist; invalid TOML or regexes fail.
func LoadAllowlist(repoRoot, userPath string) (*Allowlist, error) {
	merged := &Allowlist{}

	if repoRoot != "" {
		if err := merged.mergeFile(filepath.Join(repoRoot, AllowlistFile)); err != nil {
			return nil, err
		}
	}
	if userPath != "" {
		if err := merged.mergeFile(userPath); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func (a *Allowlist) mergeFile(path string) error {
	loaded, err := loadTOML(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	a.Paths = append(a.Paths, loaded.Paths...)
	a.Regexes = append(a.Regexes, loaded.Regexes...)
	return nil
}

func loadTOML(path string) (*Allowlist, error) {
	var file struct {
		Allowlist struct {
			Paths   []string
			Regexes []string
		}
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range append(file.Allowlist.Paths, file.Allowlist.Regexes...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}

	return &Allowlist{
		Paths:   file.Allowlist.Paths,
		Regexes: file.Allowlist.Regexes,
	}, nil
}
