package fs

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Fingerprinter = (*Fingerprinter)(nil)

// Fingerprinter hashes declared inputs and outputs into property fingerprints.
//
// Each file contributes Combine(digest of its root-relative path, SHA-256 of its
// content), so renaming a file changes the fingerprint even when the content
// does not. Content digests are memoized per path, size, modification time and
// mode for the lifetime of the Fingerprinter.
type Fingerprinter struct {
	resolver *Resolver
	walker   *Walker

	mu    sync.Mutex
	stats map[uint64]domain.Digest
}

// NewFingerprinter creates a new Fingerprinter.
func NewFingerprinter(resolver *Resolver, walker *Walker) *Fingerprinter {
	return &Fingerprinter{
		resolver: resolver,
		walker:   walker,
		stats:    make(map[uint64]domain.Digest),
	}
}

// FingerprintInputs resolves and fingerprints every input property in declaration order.
func (f *Fingerprinter) FingerprintInputs(root string, inputs []domain.InputSpec) ([]domain.InputProperty, error) {
	props := make([]domain.InputProperty, 0, len(inputs))
	for _, in := range inputs {
		kind := in.Kind
		if !kind.Valid() {
			kind = domain.Unordered
		}

		files, err := f.resolver.Resolve(root, in.Paths, kind)
		if err != nil {
			return nil, zerr.With(err, "property", in.Name)
		}

		digests, err := f.fileDigests(root, files)
		if err != nil {
			return nil, zerr.With(err, "property", in.Name)
		}

		props = append(props, domain.InputProperty{
			Name:        in.Name,
			Fingerprint: domain.Fingerprint{Kind: kind, Digests: digests},
		})
	}
	return props, nil
}

// FingerprintOutputs fingerprints the files currently present for every output
// property. A property whose paths are all missing is left out; the result is
// empty, never nil, when no output exists.
func (f *Fingerprinter) FingerprintOutputs(root string, outputs []domain.OutputSpec) ([]domain.PropertyFingerprint, error) {
	props := make([]domain.PropertyFingerprint, 0, len(outputs))
	for _, out := range outputs {
		var files []string
		for _, p := range out.Paths {
			found, err := f.outputFiles(root, p)
			if err != nil {
				return nil, zerr.With(err, "property", out.Name)
			}
			files = append(files, found...)
		}
		if len(files) == 0 {
			continue
		}

		digests, err := f.fileDigests(root, files)
		if err != nil {
			return nil, zerr.With(err, "property", out.Name)
		}
		props = append(props, domain.InputProperty{
			Name:        out.Name,
			Fingerprint: domain.UnorderedFingerprint(digests...),
		}.Property())
	}
	return props, nil
}

func (f *Fingerprinter) outputFiles(root, rel string) ([]string, error) {
	path := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrFingerprintFailed, err), "failed to stat output"), "path", rel)
	}
	if !info.IsDir() {
		return []string{filepath.ToSlash(filepath.Clean(rel))}, nil
	}

	var files []string
	for file := range f.walker.WalkFiles(path, nil) {
		r, err := filepath.Rel(root, file)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to relativize output"), "path", file)
		}
		files = append(files, filepath.ToSlash(r))
	}
	return files, nil
}

func (f *Fingerprinter) fileDigests(root string, files []string) ([]domain.Digest, error) {
	digests := make([]domain.Digest, 0, len(files))
	for _, rel := range files {
		content, err := f.contentDigest(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		digests = append(digests, domain.Combine(domain.DigestOfString(rel), content))
	}
	return digests, nil
}

// contentDigest returns the SHA-256 of the file at path, reusing an earlier
// result when the file's stat data is unchanged.
func (f *Fingerprinter) contentDigest(path string) (domain.Digest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Digest{}, zerr.With(zerr.Wrap(errors.Join(domain.ErrFingerprintFailed, err), "failed to stat file"), "path", path)
	}
	key := statKey(path, info)

	f.mu.Lock()
	cached, ok := f.stats[key]
	f.mu.Unlock()
	if ok {
		return cached, nil
	}

	file, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return domain.Digest{}, zerr.With(zerr.Wrap(errors.Join(domain.ErrFingerprintFailed, err), "failed to open file"), "path", path)
	}
	defer file.Close() //nolint:errcheck // Best effort close in defer

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return domain.Digest{}, zerr.With(zerr.Wrap(errors.Join(domain.ErrFingerprintFailed, err), "failed to hash file content"), "path", path)
	}
	digest := domain.DigestFromBytes(h.Sum(nil))

	f.mu.Lock()
	f.stats[key] = digest
	f.mu.Unlock()
	return digest, nil
}

func statKey(path string, info os.FileInfo) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(path)
	_, _ = h.Write([]byte{0})
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(info.Size()))
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(info.ModTime().UnixNano()))
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(info.Mode()))
	_, _ = h.Write(buf[:])
	return h.Sum64()
}
