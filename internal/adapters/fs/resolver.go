package fs

import (
	"os"
	"path/filepath"
	"slices"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/zerr"
)

// Resolver expands declared input patterns into concrete files.
type Resolver struct {
	walker *Walker
}

// NewResolver creates a new Resolver.
func NewResolver(walker *Walker) *Resolver {
	return &Resolver{walker: walker}
}

// Resolve expands patterns relative to root into file paths relative to root,
// using forward slashes. Globs are expanded and directories are walked.
//
// Ordered resolution keeps the declared pattern order and drops repeated files;
// unordered resolution returns a sorted set. A pattern without matches fails
// with domain.ErrInputNotFound.
func (r *Resolver) Resolve(root string, patterns []string, kind domain.FingerprintKind) ([]string, error) {
	var result []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		path := filepath.Join(root, filepath.FromSlash(pattern))

		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to glob path"), "path", path)
		}
		if len(matches) == 0 {
			return nil, zerr.With(zerr.Wrap(domain.ErrInputNotFound, "unresolved input"), "path", pattern)
		}

		for _, match := range matches {
			files, err := r.expand(match)
			if err != nil {
				return nil, err
			}
			for _, file := range files {
				rel, err := filepath.Rel(root, file)
				if err != nil {
					return nil, zerr.With(zerr.Wrap(err, "failed to relativize input"), "path", file)
				}
				rel = filepath.ToSlash(rel)
				if seen[rel] {
					continue
				}
				seen[rel] = true
				result = append(result, rel)
			}
		}
	}

	if kind != domain.Ordered {
		slices.Sort(result)
	}
	return result, nil
}

func (r *Resolver) expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to stat input"), "path", path)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	for file := range r.walker.WalkFiles(path, nil) {
		files = append(files, file)
	}
	return files, nil
}
