package domain

import "path/filepath"

const (
	// StateDirName is the name of the internal workspace directory.
	StateDirName = ".memo"

	// HistoryDirName is the name of the execution history directory.
	HistoryDirName = "history"

	// HistoryDBName is the file name of the bolt history backend.
	HistoryDBName = "history.db"

	// CacheDirName is the name of the local build cache directory.
	CacheDirName = "cache"

	// FormatDirName versions the on-disk layout of the history and cache directories.
	FormatDirName = "v1"

	// LockFileName is the name of the lock file guarding a store root.
	LockFileName = ".lock"

	// ManifestFileName is the name of the project configuration file.
	ManifestFileName = "memo.yaml"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600
)

// HistoryPath returns the root of the file-per-task history store under stateDir.
// It joins history and v1.
func HistoryPath(stateDir string) string {
	return filepath.Join(stateDir, HistoryDirName, FormatDirName)
}

// HistoryDBPath returns the path of the bolt history database under stateDir.
func HistoryDBPath(stateDir string) string {
	return filepath.Join(stateDir, HistoryDBName)
}

// CachePath returns the root of the local build cache under stateDir.
// It joins cache and v1.
func CachePath(stateDir string) string {
	return filepath.Join(stateDir, CacheDirName, FormatDirName)
}
