// Package scheduler drives tasks of the graph through the incremental engine in
// dependency order.
package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
)

// SpanTask is the name of the span wrapping one task.
const SpanTask = "memo.task"

// TaskStatus represents the status of a task.
type TaskStatus string

const (
	// StatusPending indicates the task is waiting to be executed.
	StatusPending TaskStatus = "pending"
	// StatusRunning indicates the task is being evaluated or executed.
	StatusRunning TaskStatus = "running"
	// StatusExecuted indicates the task ran successfully.
	StatusExecuted TaskStatus = "executed"
	// StatusUpToDate indicates the task was skipped because its outputs are current.
	StatusUpToDate TaskStatus = "up-to-date"
	// StatusFromCache indicates the task's outputs were restored from the build cache.
	StatusFromCache TaskStatus = "from-cache"
	// StatusFailed indicates the task execution failed.
	StatusFailed TaskStatus = "failed"
)

// Options configures one Run.
type Options struct {
	// Targets names the tasks to run; their dependencies run too. "all" selects every task.
	Targets []string
	// Parallelism bounds the number of tasks in flight. Values below one mean one.
	Parallelism int
	// NoCache executes every task regardless of history and cache.
	NoCache bool
	// BuildInvocationID identifies this run in recorded origin metadata.
	BuildInvocationID string
}

// Scheduler manages the execution of tasks in the dependency graph.
type Scheduler struct {
	engine        ports.Engine
	executor      ports.Executor
	fingerprinter ports.Fingerprinter
	verifier      ports.Verifier
	archiver      ports.Archiver
	tracer        ports.Tracer
	logger        ports.Logger

	mu         sync.RWMutex
	taskStatus map[string]TaskStatus
}

// NewScheduler creates a new Scheduler with the given dependencies.
func NewScheduler(
	engine ports.Engine,
	executor ports.Executor,
	fingerprinter ports.Fingerprinter,
	verifier ports.Verifier,
	archiver ports.Archiver,
	tracer ports.Tracer,
	logger ports.Logger,
) *Scheduler {
	return &Scheduler{
		engine:        engine,
		executor:      executor,
		fingerprinter: fingerprinter,
		verifier:      verifier,
		archiver:      archiver,
		tracer:        tracer,
		logger:        logger,
		taskStatus:    make(map[string]TaskStatus),
	}
}

// Statuses returns a copy of the status of every task seen by the last run.
func (s *Scheduler) Statuses() map[string]TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]TaskStatus, len(s.taskStatus))
	for k, v := range s.taskStatus {
		out[k] = v
	}
	return out
}

func (s *Scheduler) initTaskStatuses(tasks []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taskStatus = make(map[string]TaskStatus, len(tasks))
	for _, task := range tasks {
		s.taskStatus[task] = StatusPending
	}
}

func (s *Scheduler) updateStatus(name string, status TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskStatus[name] = status
}

// Run executes the selected tasks of graph. A task starts once all of its
// dependencies succeeded; tasks depending on a failed task never start.
func (s *Scheduler) Run(ctx context.Context, graph *domain.Graph, opts Options) error {
	if err := graph.Validate(); err != nil {
		return err
	}
	if len(opts.Targets) == 0 {
		return domain.ErrNoTargetsSpecified
	}

	state, err := s.newRunState(ctx, graph, opts)
	if err != nil {
		return err
	}

	s.initTaskStatuses(state.allTasks)
	return state.runExecutionLoop()
}

// SelectTasks returns the targets and their transitive dependencies in
// execution order. "all" selects every task.
func SelectTasks(graph *domain.Graph, targets []string) ([]string, error) {
	selected, err := resolveTasksToRun(graph, targets)
	if err != nil {
		return nil, err
	}
	ordered := make([]string, 0, len(selected))
	for task := range graph.Walk() {
		if selected[task.Name] {
			ordered = append(ordered, task.Name)
		}
	}
	return ordered, nil
}

type result struct {
	task string
	err  error
}

type schedulerRunState struct {
	graph       *domain.Graph
	overlaps    map[string][]string
	inDegree    map[string]int
	tasks       map[string]domain.Task
	ready       []string
	active      int
	resultsCh   chan result
	errs        error
	ctx         context.Context
	parallelism int
	s           *Scheduler
	allTasks    []string
	opts        Options
}

func (s *Scheduler) newRunState(ctx context.Context, graph *domain.Graph, opts Options) (*schedulerRunState, error) {
	allTasks, err := SelectTasks(graph, opts.Targets)
	if err != nil {
		return nil, err
	}

	selected := make(map[string]bool, len(allTasks))
	for _, name := range allTasks {
		selected[name] = true
	}

	inDegree := make(map[string]int, len(allTasks))
	tasks := make(map[string]domain.Task, len(allTasks))
	var ready []string
	for _, name := range allTasks {
		task, _ := graph.GetTask(name)
		tasks[name] = task

		degree := 0
		for _, dep := range task.Dependencies {
			if selected[dep] {
				degree++
			}
		}
		inDegree[name] = degree
		if degree == 0 {
			ready = append(ready, name)
		}
	}

	parallelism := max(opts.Parallelism, 1)

	return &schedulerRunState{
		graph:       graph,
		overlaps:    graph.OverlappingOutputs(),
		inDegree:    inDegree,
		tasks:       tasks,
		ready:       ready,
		resultsCh:   make(chan result, parallelism),
		ctx:         ctx,
		parallelism: parallelism,
		s:           s,
		allTasks:    allTasks,
		opts:        opts,
	}, nil
}

func (state *schedulerRunState) runExecutionLoop() error {
	for !state.isDone() {
		state.schedule()

		if state.isDone() {
			break
		}

		if state.ctx.Err() != nil && state.active == 0 {
			return errors.Join(state.errs, state.ctx.Err())
		}

		select {
		case res := <-state.resultsCh:
			state.handleResult(res)
		case <-state.ctx.Done():
		}
	}

	if state.ctx.Err() != nil {
		state.errs = errors.Join(state.errs, state.ctx.Err())
	}

	return state.errs
}

func resolveTasksToRun(graph *domain.Graph, targetNames []string) (map[string]bool, error) {
	selected := make(map[string]bool)

	if slices.Contains(targetNames, "all") {
		for task := range graph.Walk() {
			selected[task.Name] = true
		}
		return selected, nil
	}

	queue := make([]string, 0, len(targetNames))
	for _, name := range targetNames {
		if _, ok := graph.GetTask(name); !ok {
			return nil, zerr.With(zerr.Wrap(domain.ErrTaskNotFound, "unknown target"), "task", name)
		}
		queue = append(queue, name)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if selected[current] {
			continue
		}
		selected[current] = true

		task, _ := graph.GetTask(current)
		queue = append(queue, task.Dependencies...)
	}
	return selected, nil
}

func (state *schedulerRunState) isDone() bool {
	return state.active == 0 && len(state.ready) == 0
}

func (state *schedulerRunState) schedule() {
	for len(state.ready) > 0 && state.active < state.parallelism && state.ctx.Err() == nil {
		taskName := state.ready[0]
		state.ready = state.ready[1:]

		state.active++
		state.s.updateStatus(taskName, StatusRunning)

		t := state.tasks[taskName]
		go state.executeTask(&t)
	}
}

// executeTask ends the task span before reporting the result, so spans are
// complete once Run returns.
func (state *schedulerRunState) executeTask(t *domain.Task) {
	res := func() result {
		ctx, span := state.s.tracer.Start(state.ctx, SpanTask, ports.WithAttribute(ports.AttrTask, t.Name))
		defer span.End()

		status, message, err := state.process(ports.ContextWithSpan(ctx, span), t)
		if err != nil {
			status = StatusFailed
			span.RecordError(err)
		}
		state.s.updateStatus(t.Name, status)
		span.SetAttribute(ports.AttrResult, string(status))
		if message != "" {
			span.SetAttribute(ports.AttrMessage, message)
		}
		return result{task: t.Name, err: err}
	}()

	state.resultsCh <- res
}

// process evaluates t and then skips, restores or executes it.
func (state *schedulerRunState) process(ctx context.Context, t *domain.Task) (TaskStatus, string, error) {
	root := state.graph.Root()

	req, err := state.s.Request(root, t, state.overlaps[t.Name])
	if err != nil {
		return StatusFailed, "", err
	}

	var verdict domain.Verdict
	if state.opts.NoCache {
		verdict = domain.Verdict{
			Outcome:  domain.Execute,
			Reason:   domain.ReasonForced,
			Message:  "caching disabled",
			CacheKey: req.CacheKey(),
		}
	} else {
		verdict, err = state.s.engine.Evaluate(ctx, req)
		if err != nil {
			return StatusFailed, "", err
		}
	}

	switch verdict.Outcome {
	case domain.UpToDate:
		return StatusUpToDate, "", nil
	case domain.FromCache:
		exec, err := state.restore(ctx, t, req, verdict)
		if err == nil && exec != nil {
			if err := state.record(ctx, exec); err != nil {
				return StatusFailed, "", err
			}
			return StatusFromCache, "", nil
		}
		if err != nil {
			state.s.logger.Warn("failed to restore " + t.Name + " from cache, executing: " + err.Error())
		}
		verdict.Message = "cache entry unusable"
	}

	return state.execute(ctx, t, req, verdict)
}

// restore unpacks a cached result into the workspace and returns the execution
// to record. It returns nil when the entry disappeared after evaluation.
func (state *schedulerRunState) restore(
	ctx context.Context,
	t *domain.Task,
	req *domain.EvaluationRequest,
	verdict domain.Verdict,
) (*domain.Execution, error) {
	root := state.graph.Root()

	entry := verdict.Entry
	if entry == nil {
		fetched, found, err := state.s.engine.MaterializeFromCache(ctx, verdict.CacheKey)
		if err != nil || !found {
			return nil, err
		}
		entry = fetched
	}

	if err := state.cleanOutputs(t, req); err != nil {
		return nil, err
	}
	if err := state.s.archiver.Unpack(root, entry.Payload); err != nil {
		return nil, err
	}

	outputs, err := state.s.fingerprinter.FingerprintOutputs(root, t.Outputs)
	if err != nil {
		return nil, err
	}

	return &domain.Execution{
		Request:           req,
		OutputProperties:  outputs,
		Successful:        true,
		BuildInvocationID: state.opts.BuildInvocationID,
		ExecutionTime:     entry.Origin.ExecutionTime,
		Restored:          entry,
	}, nil
}

func (state *schedulerRunState) execute(
	ctx context.Context,
	t *domain.Task,
	req *domain.EvaluationRequest,
	verdict domain.Verdict,
) (TaskStatus, string, error) {
	root := state.graph.Root()
	message := verdict.Message

	if err := state.cleanOutputs(t, req); err != nil {
		return StatusFailed, message, err
	}

	start := time.Now()
	execErr := state.s.executor.Execute(ctx, t, nil)
	elapsed := time.Since(start)

	outputs, err := state.s.fingerprinter.FingerprintOutputs(root, t.Outputs)
	if err != nil {
		return StatusFailed, message, errors.Join(execErr, err)
	}

	exec := &domain.Execution{
		Request:           req,
		OutputProperties:  outputs,
		Successful:        execErr == nil,
		BuildInvocationID: state.opts.BuildInvocationID,
		ExecutionTime:     elapsed,
	}
	if execErr == nil && req.StoresToCache() && !state.opts.NoCache {
		payload, err := state.s.archiver.Pack(root, t.OutputPaths())
		if err != nil {
			state.s.logger.Warn("failed to pack outputs of " + t.Name + ": " + err.Error())
		} else {
			exec.Payload = payload
		}
	}

	if err := state.record(ctx, exec); err != nil {
		return StatusFailed, message, errors.Join(execErr, err)
	}
	if execErr != nil {
		return StatusFailed, message, execErr
	}
	return StatusExecuted, message, nil
}

// record persists exec. A locked history store only loses this record, so it
// is reported as a warning; other failures are returned.
func (state *schedulerRunState) record(ctx context.Context, exec *domain.Execution) error {
	err := state.s.engine.RecordExecution(ctx, exec)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrLockTimeout) {
		state.s.logger.Warn("execution history of " + exec.Request.TaskIdentity + " was not recorded: " + err.Error())
		return nil
	}
	return err
}

// cleanOutputs removes declared outputs before they are rebuilt or restored.
// Outputs shared with other tasks are left alone.
func (state *schedulerRunState) cleanOutputs(t *domain.Task, req *domain.EvaluationRequest) error {
	rootAbs, err := filepath.Abs(state.graph.Root())
	if err != nil {
		return zerr.Wrap(err, "failed to resolve project root")
	}

	for _, out := range t.Outputs {
		if slices.Contains(req.OverlappingOutputs, out.Name) {
			continue
		}
		for _, p := range out.Paths {
			target := filepath.Join(rootAbs, filepath.FromSlash(p))
			if target == rootAbs || !strings.HasPrefix(target, rootAbs+string(filepath.Separator)) {
				return zerr.With(zerr.Wrap(domain.ErrOutputPathOutsideRoot, "refusing to clean output"), "path", p)
			}
			if err := os.RemoveAll(target); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to clean output"), "path", p)
			}
		}
	}
	return nil
}

func (state *schedulerRunState) handleResult(res result) {
	state.active--
	if res.err != nil {
		wrappedErr := zerr.With(zerr.Wrap(res.err, "task execution failed"), "task", res.task)
		state.errs = errors.Join(state.errs, wrappedErr)
		return
	}
	for _, dep := range state.graph.Dependents(res.task) {
		if _, ok := state.inDegree[dep]; !ok {
			continue
		}
		state.inDegree[dep]--
		if state.inDegree[dep] == 0 {
			state.ready = append(state.ready, dep)
		}
	}
}
