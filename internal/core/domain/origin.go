package domain

import "time"

// OriginMetadata records which build produced a result, under which key, and how
// long the work took. It travels with the output it describes.
type OriginMetadata struct {
	BuildInvocationID string
	CacheKey          CacheKey
	ExecutionTime     time.Duration
}

// NewOriginMetadata builds origin metadata with the execution time truncated to
// milliseconds, the precision kept by the persisted form.
func NewOriginMetadata(buildInvocationID string, key CacheKey, executionTime time.Duration) OriginMetadata {
	return OriginMetadata{
		BuildInvocationID: buildInvocationID,
		CacheKey:          key,
		ExecutionTime:     executionTime.Truncate(time.Millisecond),
	}
}

// CacheEntry is a cached task result: the packed outputs and their origin.
type CacheEntry struct {
	Origin  OriginMetadata
	Payload []byte
}
