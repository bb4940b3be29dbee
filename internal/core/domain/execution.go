package domain

import "time"

// Execution describes a finished task run reported back to the engine.
type Execution struct {
	Request *EvaluationRequest
	// OutputProperties are the fingerprints of the outputs after the run.
	OutputProperties  []PropertyFingerprint
	Successful        bool
	BuildInvocationID string
	ExecutionTime     time.Duration
	// Payload holds the packed outputs offered to the cache backend.
	Payload []byte
	// Restored is set when the outputs came from the cache instead of a run.
	// Its origin is kept and nothing is pushed back to the cache.
	Restored *CacheEntry
}
