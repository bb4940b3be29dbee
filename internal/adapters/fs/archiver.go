package fs

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/memo/internal/fsutil"
	"go.trai.ch/zerr"
)

var _ ports.Archiver = (*Archiver)(nil)

// maxEntrySize bounds a single unpacked file.
const maxEntrySize = 1 << 30

// epoch is the modification time written for every entry, so equal outputs
// produce byte-identical payloads.
var epoch = time.Unix(0, 0).UTC()

// Archiver packs output files into deterministic tar.gz payloads.
type Archiver struct {
	walker *Walker
}

// NewArchiver creates a new Archiver.
func NewArchiver(walker *Walker) *Archiver {
	return &Archiver{walker: walker}
}

type archiveFile struct {
	rel  string
	abs  string
	mode os.FileMode
}

// Pack archives the regular files found at paths, relative to root. Directories
// are walked and missing paths are skipped. Entries are sorted by path and carry
// no ownership or timestamps.
func (a *Archiver) Pack(root string, paths []string) ([]byte, error) {
	files, err := a.collect(root, paths)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	for _, f := range files {
		if err := writeEntry(tw, f); err != nil {
			return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrArchiveFailed, err), "failed to pack output"), "path", f.rel)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, zerr.Wrap(errors.Join(domain.ErrArchiveFailed, err), "failed to finish archive")
	}
	if err := gw.Close(); err != nil {
		return nil, zerr.Wrap(errors.Join(domain.ErrArchiveFailed, err), "failed to finish archive")
	}
	return buf.Bytes(), nil
}

func (a *Archiver) collect(root string, paths []string) ([]archiveFile, error) {
	seen := make(map[string]bool)
	var files []archiveFile

	add := func(abs string, info os.FileInfo) error {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return zerr.With(zerr.Wrap(errors.Join(domain.ErrArchiveFailed, err), "failed to relativize output"), "path", abs)
		}
		rel = filepath.ToSlash(rel)
		if seen[rel] {
			return nil
		}
		seen[rel] = true
		files = append(files, archiveFile{rel: rel, abs: abs, mode: info.Mode()})
		return nil
	}

	for _, p := range paths {
		abs, err := withinRoot(root, p)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrArchiveFailed, err), "failed to stat output"), "path", p)
		}
		if !info.IsDir() {
			if err := add(abs, info); err != nil {
				return nil, err
			}
			continue
		}
		for file := range a.walker.WalkFiles(abs, nil) {
			fi, err := os.Stat(file)
			if err != nil {
				return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrArchiveFailed, err), "failed to stat output"), "path", file)
			}
			if err := add(file, fi); err != nil {
				return nil, err
			}
		}
	}

	slices.SortFunc(files, func(x, y archiveFile) int {
		return strings.Compare(x.rel, y.rel)
	})
	return files, nil
}

func writeEntry(tw *tar.Writer, f archiveFile) error {
	data, err := os.ReadFile(f.abs)
	if err != nil {
		return err
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     f.rel,
		Mode:     int64(f.mode.Perm()),
		Size:     int64(len(data)),
		ModTime:  epoch,
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = tw.Write(data)
	return err
}

// Unpack restores a payload produced by Pack below root. Each file is published
// atomically. Entries that would land outside root are rejected.
func (a *Archiver) Unpack(root string, payload []byte) error {
	gr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return zerr.Wrap(errors.Join(domain.ErrArchiveFailed, err), "failed to open payload")
	}
	defer gr.Close() //nolint:errcheck // Reader over an in-memory buffer

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return zerr.Wrap(errors.Join(domain.ErrArchiveFailed, err), "failed to read payload")
		}
		if err := extractEntry(root, tr, hdr); err != nil {
			return err
		}
	}
}

func extractEntry(root string, tr *tar.Reader, hdr *tar.Header) error {
	name := path.Clean(hdr.Name)
	if name == "." || path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
		return zerr.With(zerr.Wrap(domain.ErrArchiveFailed, "payload entry escapes root"), "path", hdr.Name)
	}
	target, err := withinRoot(root, name)
	if err != nil {
		return zerr.With(zerr.Wrap(errors.Join(domain.ErrArchiveFailed, err), "payload entry escapes root"), "path", hdr.Name)
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, domain.DirPerm); err != nil {
			return zerr.With(zerr.Wrap(errors.Join(domain.ErrArchiveFailed, err), "failed to create directory"), "path", name)
		}
		return nil
	case tar.TypeReg:
		if hdr.Size > maxEntrySize {
			return zerr.With(zerr.Wrap(domain.ErrArchiveFailed, "payload entry too large"), "path", name)
		}
		data, err := io.ReadAll(io.LimitReader(tr, maxEntrySize))
		if err != nil {
			return zerr.With(zerr.Wrap(errors.Join(domain.ErrArchiveFailed, err), "failed to read payload entry"), "path", name)
		}
		perm := os.FileMode(hdr.Mode).Perm()
		if perm == 0 {
			perm = domain.FilePerm
		}
		if err := fsutil.WriteFileAtomic(target, data, perm); err != nil {
			return zerr.With(zerr.Wrap(errors.Join(domain.ErrArchiveFailed, err), "failed to restore output"), "path", name)
		}
		return nil
	default:
		return zerr.With(zerr.Wrap(domain.ErrArchiveFailed, "unsupported payload entry"), "path", name)
	}
}
