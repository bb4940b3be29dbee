// Package app implements the application layer for memo.
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/memo/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// Engine is the part of the incremental engine the application drives
// directly, outside of a scheduler run.
type Engine interface {
	Explain(ctx context.Context, req *domain.EvaluationRequest) (domain.Verdict, error)
	Forget(ctx context.Context, taskIdentity string) error
	Flush(ctx context.Context) error
}

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	settings     *domain.Settings
	engine       Engine
	scheduler    *scheduler.Scheduler
	local        ports.LocalCache
	logger       ports.Logger
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	settings *domain.Settings,
	engine Engine,
	sched *scheduler.Scheduler,
	local ports.LocalCache,
	logger ports.Logger,
) *App {
	return &App{
		configLoader: loader,
		settings:     settings,
		engine:       engine,
		scheduler:    sched,
		local:        local,
		logger:       logger,
	}
}

// RunOptions configures the build execution.
type RunOptions struct {
	// NoCache executes every selected task, ignoring history and the build cache.
	NoCache bool
	// Jobs bounds the number of tasks running at once. Zero means one per CPU.
	Jobs int
}

// TaskReport is the verdict memo would reach for one task.
type TaskReport struct {
	Task    string
	Verdict domain.Verdict
}

// Run executes the build process for the specified targets.
func (a *App) Run(ctx context.Context, targetNames []string, opts RunOptions) error {
	graph, err := a.configLoader.Load(a.settings.Root)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	if len(targetNames) == 0 {
		return domain.ErrNoTargetsSpecified
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	runErr := a.scheduler.Run(ctx, graph, scheduler.Options{
		Targets:           targetNames,
		Parallelism:       jobs,
		NoCache:           opts.NoCache,
		BuildInvocationID: uuid.NewString(),
	})

	// Uploads of the tasks that succeeded are flushed even when the build failed.
	if err := a.engine.Flush(ctx); err != nil {
		a.logger.Warn("failed to flush remote cache uploads: " + err.Error())
	}

	if runErr != nil {
		return zerr.Wrap(errors.Join(domain.ErrBuildExecutionFailed, runErr), "build execution failed")
	}
	return nil
}

// Status evaluates the selected tasks without executing or fetching anything
// and logs one line per task.
func (a *App) Status(ctx context.Context, targetNames []string) ([]TaskReport, error) {
	graph, err := a.configLoader.Load(a.settings.Root)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	if len(targetNames) == 0 {
		targetNames = []string{"all"}
	}
	names, err := scheduler.SelectTasks(graph, targetNames)
	if err != nil {
		return nil, err
	}

	overlaps := graph.OverlappingOutputs()
	reports := make([]TaskReport, 0, len(names))
	for _, name := range names {
		task, _ := graph.GetTask(name)

		req, err := a.scheduler.Request(graph.Root(), &task, overlaps[name])
		if err != nil {
			return nil, err
		}

		verdict, err := a.engine.Explain(ctx, req)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to evaluate task"), "task", name)
		}

		reports = append(reports, TaskReport{Task: name, Verdict: verdict})
		a.logger.Info(formatReport(name, verdict))
	}
	return reports, nil
}

func formatReport(task string, v domain.Verdict) string {
	line := fmt.Sprintf("%s %s [%s]", task, v.Outcome, v.Reason)
	if v.Property != "" {
		line += " " + v.Property
	}
	if v.Message != "" {
		line += ": " + v.Message
	}
	return line
}

// Forget removes the execution history of the named tasks so that their next
// evaluation starts from scratch. Tasks without history are ignored.
func (a *App) Forget(ctx context.Context, tasks []string) error {
	for _, task := range tasks {
		if err := a.engine.Forget(ctx, task); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to forget task history"), "task", task)
		}
		a.logger.Info("forgot history of " + task)
	}
	return nil
}

// CleanCache removes local cache entries not used within maxAge. A zero maxAge
// uses the configured cache.maxAge.
func (a *App) CleanCache(ctx context.Context, maxAge time.Duration) (ports.CacheStats, error) {
	if maxAge <= 0 {
		maxAge = a.settings.Cache.MaxAge
	}

	removed, err := a.local.Cleanup(ctx, maxAge)
	if err != nil {
		return removed, zerr.Wrap(err, "failed to clean local cache")
	}

	remaining, err := a.local.Stats(ctx)
	if err != nil {
		return removed, zerr.Wrap(err, "failed to read local cache statistics")
	}

	a.logger.Info(fmt.Sprintf("removed %d entries (%d bytes), %d entries (%d bytes) remain",
		removed.Entries, removed.Bytes, remaining.Entries, remaining.Bytes))
	return removed, nil
}
