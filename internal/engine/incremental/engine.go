// Package incremental decides, per task, whether to run it, skip it or restore
// its outputs from the build cache, and records what happened afterwards.
package incremental

import (
	"context"
	"errors"
	"slices"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/memo/internal/engine/uptodate"
)

// Span names.
const (
	spanEvaluate    = "memo.evaluate"
	spanRecord      = "memo.record"
	spanMaterialize = "memo.materialize"
)

// Engine implements ports.Engine on top of a history store and a build cache.
// It holds no state of its own and is safe for concurrent use.
type Engine struct {
	history ports.HistoryStore
	cache   ports.BuildCache
	logger  ports.Logger
	tracer  ports.Tracer
}

// New creates an engine.
func New(history ports.HistoryStore, cache ports.BuildCache, logger ports.Logger, tracer ports.Tracer) *Engine {
	return &Engine{
		history: history,
		cache:   cache,
		logger:  logger,
		tracer:  tracer,
	}
}

// lookupFunc asks the build cache for a key.
type lookupFunc func(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, bool, error)

// Evaluate returns the verdict for req.
//
// Local history is consulted first. When it does not prove the outputs up to
// date, a cacheable task without overlapping outputs is looked up in the build
// cache. A history lock timeout and any build cache failure degrade to EXECUTE.
func (e *Engine) Evaluate(ctx context.Context, req *domain.EvaluationRequest) (domain.Verdict, error) {
	ctx, span := e.tracer.Start(ctx, spanEvaluate, ports.WithAttribute(ports.AttrTask, req.TaskIdentity))
	defer span.End()

	verdict, err := e.evaluate(ctx, req, e.cache.TryLoad)
	annotate(span, verdict, err)
	return verdict, err
}

// Explain is Evaluate without fetching anything: cache hits are reported from
// the local store only and carry no entry.
func (e *Engine) Explain(ctx context.Context, req *domain.EvaluationRequest) (domain.Verdict, error) {
	return e.evaluate(ctx, req, func(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, bool, error) {
		found, err := e.cache.Contains(ctx, key)
		return nil, found, err
	})
}

func (e *Engine) evaluate(ctx context.Context, req *domain.EvaluationRequest, lookup lookupFunc) (domain.Verdict, error) {
	key := req.CacheKey()

	previous, err := e.history.Load(ctx, req.TaskIdentity)
	if err != nil {
		unavailable := domain.Verdict{
			Outcome:  domain.Execute,
			Reason:   domain.ReasonHistoryUnavailable,
			Message:  "history unavailable",
			CacheKey: key,
		}
		if errors.Is(err, domain.ErrLockTimeout) {
			e.logger.Warn("execution history of " + req.TaskIdentity + " is locked, executing: " + err.Error())
			return unavailable, nil
		}
		return unavailable, err
	}

	result := uptodate.Check(previous, req)
	if result.UpToDate {
		return domain.Verdict{
			Outcome:  domain.UpToDate,
			Reason:   result.Reason,
			Message:  result.Message,
			CacheKey: key,
		}, nil
	}

	verdict := domain.Verdict{
		Outcome:  domain.Execute,
		Reason:   result.Reason,
		Property: result.Property,
		Message:  result.Message,
		CacheKey: key,
	}
	if !req.StoresToCache() {
		return verdict, nil
	}

	entry, found, err := lookup(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return verdict, err
		}
		e.logger.Warn("build cache lookup for " + req.TaskIdentity + " failed, executing: " + err.Error())
		return verdict, nil
	}
	if !found {
		return verdict, nil
	}
	return domain.Verdict{
		Outcome:  domain.FromCache,
		Reason:   domain.ReasonCacheHit,
		Message:  "restored from cache",
		CacheKey: key,
		Entry:    entry,
	}, nil
}

// RecordExecution replaces the task's history entry with the outcome of exec.
// Successful runs of cacheable tasks are offered to the build cache as well;
// cache failures are logged, history failures are returned.
func (e *Engine) RecordExecution(ctx context.Context, exec *domain.Execution) error {
	req := exec.Request
	ctx, span := e.tracer.Start(ctx, spanRecord,
		ports.WithAttribute(ports.AttrTask, req.TaskIdentity),
		ports.WithAttribute("successful", exec.Successful),
	)
	defer span.End()

	key := req.CacheKey()
	origin := domain.NewOriginMetadata(exec.BuildInvocationID, key, exec.ExecutionTime)
	if exec.Restored != nil {
		origin = exec.Restored.Origin
	}

	entry := &domain.ExecutionHistoryEntry{
		TaskIdentity:           req.TaskIdentity,
		ImplementationIdentity: req.Implementation,
		InputProperties:        domain.Properties(req.Inputs),
		OutputProperties:       cloneOrNil(exec.OutputProperties),
		Origin:                 origin,
		OverlappingOutputs:     cloneOrNil(req.OverlappingOutputs),
		Successful:             exec.Successful,
	}
	if err := e.history.Store(ctx, entry); err != nil {
		span.RecordError(err)
		return err
	}

	if exec.Restored != nil || !exec.Successful || exec.Payload == nil || !req.StoresToCache() {
		return nil
	}
	if err := e.cache.Store(ctx, key, exec.Payload, origin); err != nil {
		e.logger.Warn("failed to store " + req.TaskIdentity + " in build cache: " + err.Error())
	}
	return nil
}

// MaterializeFromCache fetches the entry stored under key.
func (e *Engine) MaterializeFromCache(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, bool, error) {
	ctx, span := e.tracer.Start(ctx, spanMaterialize, ports.WithAttribute("cache_key", key.String()))
	defer span.End()

	entry, found, err := e.cache.TryLoad(ctx, key)
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttribute("hit", found)
	return entry, found, err
}

// Forget drops the history of a task, so its next evaluation starts from scratch.
func (e *Engine) Forget(ctx context.Context, taskIdentity string) error {
	return e.history.Remove(ctx, taskIdentity)
}

// Flush waits for pending build cache uploads.
func (e *Engine) Flush(ctx context.Context) error {
	return e.cache.Flush(ctx)
}

// cloneOrNil copies s, returning nil for an empty slice so that stored entries
// match their decoded form.
func cloneOrNil[S ~[]E, E any](s S) S {
	if len(s) == 0 {
		return nil
	}
	return slices.Clone(s)
}

func annotate(span ports.Span, v domain.Verdict, err error) {
	span.SetAttribute("outcome", v.Outcome.String())
	span.SetAttribute("reason", string(v.Reason))
	if !v.CacheKey.IsZero() {
		span.SetAttribute("cache_key", v.CacheKey.String())
	}
	if err != nil {
		span.RecordError(err)
	}
}
