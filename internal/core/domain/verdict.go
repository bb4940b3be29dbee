package domain

import "slices"

// Outcome is the decision taken for a task.
type Outcome uint8

const (
	// Execute means the task must run.
	Execute Outcome = iota
	// UpToDate means the outputs from the last local execution are still valid.
	UpToDate
	// FromCache means the outputs can be restored from the cache backend.
	FromCache
)

// String returns the display name of the outcome.
func (o Outcome) String() string {
	switch o {
	case UpToDate:
		return "UP_TO_DATE"
	case FromCache:
		return "FROM_CACHE"
	default:
		return "EXECUTE"
	}
}

// Reason is a stable machine-readable code explaining a verdict.
type Reason string

// Reason codes.
const (
	ReasonUpToDate              Reason = "up-to-date"
	ReasonCacheHit              Reason = "cache-hit"
	ReasonNoHistory             Reason = "no-history"
	ReasonHistoryUnavailable    Reason = "history-unavailable"
	ReasonPreviousFailed        Reason = "previous-failed"
	ReasonImplementationChanged Reason = "implementation-changed"
	ReasonInputChanged          Reason = "input-changed"
	ReasonInputAdded            Reason = "input-added"
	ReasonInputRemoved          Reason = "input-removed"
	ReasonOutputMissing         Reason = "output-missing"
	ReasonOutputChanged         Reason = "output-changed"
	ReasonOverlappingOutputs    Reason = "overlapping-outputs"
	ReasonForced                Reason = "forced"
)

// Verdict is the transient result of evaluating a task.
type Verdict struct {
	Outcome Outcome
	Reason  Reason
	// Property names the input or output the reason refers to, if any.
	Property string
	Message  string
	CacheKey CacheKey
	// Entry holds the fetched result for FromCache verdicts.
	Entry *CacheEntry
}

// EvaluationRequest carries everything the engine needs to decide about one task.
type EvaluationRequest struct {
	TaskIdentity   string
	Implementation Digest
	// Inputs are in declared order; the first mismatch is reported.
	Inputs      []InputProperty
	OutputNames []string
	// CurrentOutputs are the fingerprints of the outputs as found on disk. Nil
	// skips the comparison; an empty slice means no output was found.
	CurrentOutputs []PropertyFingerprint
	OutputsMissing bool
	// OverlappingOutputs names output properties another task also writes.
	OverlappingOutputs []string
	Cacheable          bool
}

// CacheKey computes the request's cache key. Overlapping output properties are
// left out of the key.
func (r *EvaluationRequest) CacheKey() CacheKey {
	outputs := r.OutputNames
	if len(r.OverlappingOutputs) > 0 {
		outputs = slices.DeleteFunc(slices.Clone(outputs), func(name string) bool {
			return slices.Contains(r.OverlappingOutputs, name)
		})
	}
	return NewCacheKey(r.Implementation, Properties(r.Inputs), outputs)
}

// StoresToCache reports whether results of this request may be pushed to the cache backend.
func (r *EvaluationRequest) StoresToCache() bool {
	return r.Cacheable && len(r.OverlappingOutputs) == 0
}
