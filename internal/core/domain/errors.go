package domain

import "go.trai.ch/zerr"

var (
	// ErrDecode is returned when persisted bytes are malformed, truncated or of an unknown version.
	ErrDecode = zerr.New("failed to decode entry")

	// ErrKeyMismatch is returned when a cached entry's origin key differs from the key it was looked up by.
	ErrKeyMismatch = zerr.New("cache key mismatch")

	// ErrStore is returned when the history store or local cache cannot be read or written.
	ErrStore = zerr.New("store i/o failure")

	// ErrLockTimeout is returned when the store lock could not be acquired in time.
	ErrLockTimeout = zerr.New("timed out waiting for store lock")

	// ErrRemoteCache is returned when the remote cache cannot be reached or answers unexpectedly.
	ErrRemoteCache = zerr.New("remote cache failure")

	// ErrCacheMiss is returned when a requested item is not found in the cache.
	ErrCacheMiss = zerr.New("cache miss")

	// ErrUnknownBackend is returned when a configured backend name is not recognised.
	ErrUnknownBackend = zerr.New("unknown backend")

	// ErrTaskAlreadyExists is returned when attempting to add a task with a name that already exists.
	ErrTaskAlreadyExists = zerr.New("task already exists")

	// ErrMissingDependency is returned when a task references a dependency that doesn't exist in the graph.
	ErrMissingDependency = zerr.New("missing dependency")

	// ErrCycleDetected is returned when a cycle is detected in the task dependency graph.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrTaskNotFound is returned when a requested task is not found in the graph.
	ErrTaskNotFound = zerr.New("task not found")

	// ErrNoTargetsSpecified is returned when no targets are specified for the run command.
	ErrNoTargetsSpecified = zerr.New("no targets specified")

	// ErrReservedTaskName is returned when a task uses a reserved name (e.g., "all").
	ErrReservedTaskName = zerr.New("task name 'all' is reserved")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigNotFound is returned when no memo.yaml is found in the directory tree.
	ErrConfigNotFound = zerr.New("no memo.yaml found")

	// ErrInvalidTask is returned when a task definition is incomplete or inconsistent.
	ErrInvalidTask = zerr.New("invalid task definition")

	// ErrInputNotFound is returned when a declared input file or directory is not found.
	ErrInputNotFound = zerr.New("input not found")

	// ErrOutputPathOutsideRoot is returned when an output path is outside the project root.
	ErrOutputPathOutsideRoot = zerr.New("output path is outside project root")

	// ErrFingerprintFailed is returned when a file cannot be fingerprinted.
	ErrFingerprintFailed = zerr.New("failed to fingerprint file")

	// ErrArchiveFailed is returned when outputs cannot be packed or unpacked.
	ErrArchiveFailed = zerr.New("failed to archive outputs")

	// ErrBuildExecutionFailed is returned when the build execution fails.
	ErrBuildExecutionFailed = zerr.New("build execution failed")

	// ErrTaskExecutionFailed is returned when a task execution fails.
	ErrTaskExecutionFailed = zerr.New("task execution failed")
)
