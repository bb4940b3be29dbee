// Package fsutil provides file system helpers shared by the on-disk stores.
package fsutil

import (
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/memo/internal/core/domain"
)

// TempMarker is part of every temporary file name created by WriteFileAtomic.
const TempMarker = ".tmp-"

// RenameFunc publishes a fully written temporary file at its final path.
type RenameFunc func(oldpath, newpath string) error

// WriteFileAtomic writes data to path so that readers see either the previous
// content or the new content, never a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteFileAtomicWith(path, data, perm, os.Rename)
}

// WriteFileAtomicWith is WriteFileAtomic with a custom publish step.
func WriteFileAtomicWith(path string, data []byte, perm os.FileMode, rename RenameFunc) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+TempMarker+"*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()

	// Clean up temp file on error
	defer func() {
		if _, statErr := os.Stat(tmpName); statErr == nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	if err := rename(tmpName, path); err != nil {
		return err
	}

	syncDir(dir)
	return nil
}

// IsTempFile reports whether name was produced by WriteFileAtomic.
func IsTempFile(name string) bool {
	return strings.Contains(filepath.Base(name), TempMarker)
}

// syncDir flushes the directory entry of a rename. Not every platform supports
// syncing a directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // dir is the parent of a path we just wrote
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
