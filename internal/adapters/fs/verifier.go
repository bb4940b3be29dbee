package fs

import (
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Verifier = (*Verifier)(nil)

// Verifier provides functionality to verify the existence of files.
type Verifier struct{}

// NewVerifier creates a new Verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// VerifyOutputs checks if all output files exist in the given root directory.
// It returns true if all outputs exist, false otherwise. An output that
// resolves outside root fails with domain.ErrOutputPathOutsideRoot.
func (v *Verifier) VerifyOutputs(root string, outputs []string) (bool, error) {
	for _, output := range outputs {
		path, err := withinRoot(root, output)
		if err != nil {
			return false, err
		}
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, zerr.With(zerr.Wrap(err, "failed to stat output"), "path", path)
		}
	}
	return true, nil
}

// withinRoot joins rel to root and rejects results that leave root.
func withinRoot(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", zerr.With(zerr.Wrap(domain.ErrOutputPathOutsideRoot, "absolute path"), "path", rel)
	}
	cleanRoot := filepath.Clean(root)
	path := filepath.Join(cleanRoot, filepath.FromSlash(rel))
	if path != cleanRoot && !strings.HasPrefix(path, cleanRoot+string(filepath.Separator)) {
		return "", zerr.With(zerr.Wrap(domain.ErrOutputPathOutsideRoot, "path escapes root"), "path", rel)
	}
	return path, nil
}
