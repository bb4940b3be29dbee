package scheduler_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.trai.ch/memo/internal/adapters/cas"
	"go.trai.ch/memo/internal/adapters/fs"
	"go.trai.ch/memo/internal/adapters/history"
	"go.trai.ch/memo/internal/adapters/shell"
	"go.trai.ch/memo/internal/adapters/telemetry"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/memo/internal/core/ports/mocks"
	"go.trai.ch/memo/internal/engine/buildcache"
	"go.trai.ch/memo/internal/engine/incremental"
	"go.trai.ch/memo/internal/engine/scheduler"
	"go.uber.org/mock/gomock"
)

type nopLogger struct{}

func (nopLogger) Info(string) {}
func (nopLogger) Warn(string) {}
func (nopLogger) Error(error) {}

// workspace is one checkout with its own state directory, sharing a build
// cache directory with other workspaces.
type workspace struct {
	root  string
	sched *scheduler.Scheduler
}

func newWorkspace(t *testing.T, cacheDir string, tracer ports.Tracer) *workspace {
	t.Helper()

	root := t.TempDir()
	log := nopLogger{}
	store := history.NewFileStore(filepath.Join(root, domain.StateDirName), time.Second, log)
	cache := buildcache.New(cas.NewStore(cacheDir, time.Second), nil, log, buildcache.Options{})
	engine := incremental.New(store, cache, log, tracer)

	walker := fs.NewWalker()
	sched := scheduler.NewScheduler(
		engine,
		shell.NewExecutor(log),
		fs.NewFingerprinter(fs.NewResolver(walker), walker),
		fs.NewVerifier(),
		fs.NewArchiver(walker),
		tracer,
		log,
	)
	return &workspace{root: root, sched: sched}
}

func (w *workspace) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(w.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), domain.DirPerm))
	require.NoError(t, os.WriteFile(path, []byte(content), domain.PrivateFilePerm))
}

func (w *workspace) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(w.root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// graph declares compile (src -> out/classes.txt) and package (out/classes.txt -> out/app.txt).
func (w *workspace) graph(t *testing.T) *domain.Graph {
	t.Helper()
	g := domain.NewGraph()
	g.SetRoot(w.root)
	require.NoError(t, g.AddTask(&domain.Task{
		Name:       "compile",
		Command:    []string{"sh", "-c", "mkdir -p out && cat src/*.txt > out/classes.txt"},
		Inputs:     []domain.InputSpec{{Name: "src", Paths: []string{"src"}, Kind: domain.Unordered}},
		Outputs:    []domain.OutputSpec{{Name: "classes", Paths: []string{"out/classes.txt"}}},
		WorkingDir: w.root,
		Cacheable:  true,
	}))
	require.NoError(t, g.AddTask(&domain.Task{
		Name:         "package",
		Command:      []string{"sh", "-c", "tr a-z A-Z < out/classes.txt > out/app.txt"},
		Inputs:       []domain.InputSpec{{Name: "classes", Paths: []string{"out/classes.txt"}, Kind: domain.Unordered}},
		Outputs:      []domain.OutputSpec{{Name: "app", Paths: []string{"out/app.txt"}}},
		Dependencies: []string{"compile"},
		WorkingDir:   w.root,
		Cacheable:    true,
	}))
	return g
}

func (w *workspace) run(t *testing.T, opts scheduler.Options) map[string]scheduler.TaskStatus {
	t.Helper()
	if opts.Targets == nil {
		opts.Targets = []string{"package"}
	}
	if opts.BuildInvocationID == "" {
		opts.BuildInvocationID = "build-" + t.Name()
	}
	opts.Parallelism = 2
	require.NoError(t, w.sched.Run(context.Background(), w.graph(t), opts))
	return w.sched.Statuses()
}

func TestScheduler_IncrementalLifecycle(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	first := newWorkspace(t, cacheDir, telemetry.NewNoOpTracer())
	first.write(t, "src/a.txt", "alpha\n")

	statuses := first.run(t, scheduler.Options{})
	assert.Equal(t, scheduler.StatusExecuted, statuses["compile"])
	assert.Equal(t, scheduler.StatusExecuted, statuses["package"])
	assert.Equal(t, "ALPHA\n", first.read(t, "out/app.txt"))

	statuses = first.run(t, scheduler.Options{})
	assert.Equal(t, scheduler.StatusUpToDate, statuses["compile"])
	assert.Equal(t, scheduler.StatusUpToDate, statuses["package"])

	// A fresh checkout with the same sources restores everything.
	second := newWorkspace(t, cacheDir, telemetry.NewNoOpTracer())
	second.write(t, "src/a.txt", "alpha\n")

	statuses = second.run(t, scheduler.Options{})
	assert.Equal(t, scheduler.StatusFromCache, statuses["compile"])
	assert.Equal(t, scheduler.StatusFromCache, statuses["package"])
	assert.Equal(t, "ALPHA\n", second.read(t, "out/app.txt"))

	statuses = second.run(t, scheduler.Options{})
	assert.Equal(t, scheduler.StatusUpToDate, statuses["compile"])

	// Changing an input executes again.
	second.write(t, "src/b.txt", "beta\n")
	statuses = second.run(t, scheduler.Options{})
	assert.Equal(t, scheduler.StatusExecuted, statuses["compile"])
	assert.Equal(t, scheduler.StatusExecuted, statuses["package"])
	assert.Equal(t, "ALPHA\nBETA\n", second.read(t, "out/app.txt"))
}

func TestScheduler_DeletedOutputIsRestored(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, t.TempDir(), telemetry.NewNoOpTracer())
	ws.write(t, "src/a.txt", "alpha\n")
	ws.run(t, scheduler.Options{Targets: []string{"compile"}})

	require.NoError(t, os.Remove(filepath.Join(ws.root, "out", "classes.txt")))

	statuses := ws.run(t, scheduler.Options{Targets: []string{"compile"}})
	assert.Equal(t, scheduler.StatusFromCache, statuses["compile"])
	assert.Equal(t, "alpha\n", ws.read(t, "out/classes.txt"))
}

func TestScheduler_NoCacheForcesExecution(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, t.TempDir(), telemetry.NewNoOpTracer())
	ws.write(t, "src/a.txt", "alpha\n")
	ws.run(t, scheduler.Options{})

	statuses := ws.run(t, scheduler.Options{NoCache: true})
	assert.Equal(t, scheduler.StatusExecuted, statuses["compile"])
	assert.Equal(t, scheduler.StatusExecuted, statuses["package"])

	statuses = ws.run(t, scheduler.Options{})
	assert.Equal(t, scheduler.StatusUpToDate, statuses["compile"])
}

func TestScheduler_FailureStopsDependents(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, t.TempDir(), telemetry.NewNoOpTracer())
	g := domain.NewGraph()
	g.SetRoot(ws.root)
	require.NoError(t, g.AddTask(&domain.Task{
		Name:       "broken",
		Command:    []string{"sh", "-c", "exit 3"},
		WorkingDir: ws.root,
		Cacheable:  true,
	}))
	require.NoError(t, g.AddTask(&domain.Task{
		Name:         "after",
		Command:      []string{"sh", "-c", "true"},
		Dependencies: []string{"broken"},
		WorkingDir:   ws.root,
	}))

	err := ws.sched.Run(context.Background(), g, scheduler.Options{Targets: []string{"all"}, Parallelism: 4})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTaskExecutionFailed)

	statuses := ws.sched.Statuses()
	assert.Equal(t, scheduler.StatusFailed, statuses["broken"])
	assert.Equal(t, scheduler.StatusPending, statuses["after"])
}

func TestScheduler_TargetSelection(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, t.TempDir(), telemetry.NewNoOpTracer())
	g := ws.graph(t)
	require.NoError(t, g.Validate())

	selected, err := scheduler.SelectTasks(g, []string{"package"})
	require.NoError(t, err)
	assert.Equal(t, []string{"compile", "package"}, selected)

	selected, err = scheduler.SelectTasks(g, []string{"compile"})
	require.NoError(t, err)
	assert.Equal(t, []string{"compile"}, selected)

	_, err = scheduler.SelectTasks(g, []string{"deploy"})
	require.ErrorIs(t, err, domain.ErrTaskNotFound)

	err = ws.sched.Run(context.Background(), g, scheduler.Options{})
	require.ErrorIs(t, err, domain.ErrNoTargetsSpecified)
}

func TestScheduler_TaskSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := telemetry.NewOTelTracerWithProvider(tp, telemetry.InstrumentationName)

	ws := newWorkspace(t, t.TempDir(), tracer)
	ws.write(t, "src/a.txt", "alpha\n")
	ws.run(t, scheduler.Options{Targets: []string{"compile"}})

	var results []string
	for _, span := range recorder.Ended() {
		if span.Name() != scheduler.SpanTask {
			continue
		}
		attrs := make(map[string]string)
		for _, kv := range span.Attributes() {
			attrs[string(kv.Key)] = kv.Value.AsString()
		}
		assert.Equal(t, "compile", attrs[ports.AttrTask])
		results = append(results, attrs[ports.AttrResult])
	}
	assert.Equal(t, []string{string(scheduler.StatusExecuted)}, results)
}

func TestImplementation(t *testing.T) {
	t.Parallel()

	task := func(root string) *domain.Task {
		return &domain.Task{
			Name:        "compile",
			Command:     []string{"javac", "-g"},
			Environment: map[string]string{"B": "2", "A": "1"},
			WorkingDir:  filepath.Join(root, "app"),
			Outputs:     []domain.OutputSpec{{Name: "classes", Paths: []string{"build/classes"}}},
		}
	}

	a := scheduler.Implementation("/work/one", task("/work/one"))
	b := scheduler.Implementation("/work/two", task("/work/two"))
	assert.Equal(t, a, b, "checkout location must not matter")

	changed := task("/work/one")
	changed.Command = []string{"javac", "-O"}
	assert.NotEqual(t, a, scheduler.Implementation("/work/one", changed))

	changed = task("/work/one")
	changed.Environment["A"] = "3"
	assert.NotEqual(t, a, scheduler.Implementation("/work/one", changed))
}

// mockSet bundles the collaborators of a Scheduler built from mocks.
type mockSet struct {
	engine        *mocks.MockEngine
	executor      *mocks.MockExecutor
	fingerprinter *mocks.MockFingerprinter
	verifier      *mocks.MockVerifier
	archiver      *mocks.MockArchiver
	logger        *mocks.MockLogger
}

func newMocked(t *testing.T) (*scheduler.Scheduler, *mockSet) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := &mockSet{
		engine:        mocks.NewMockEngine(ctrl),
		executor:      mocks.NewMockExecutor(ctrl),
		fingerprinter: mocks.NewMockFingerprinter(ctrl),
		verifier:      mocks.NewMockVerifier(ctrl),
		archiver:      mocks.NewMockArchiver(ctrl),
		logger:        mocks.NewMockLogger(ctrl),
	}
	m.fingerprinter.EXPECT().FingerprintInputs(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	m.fingerprinter.EXPECT().FingerprintOutputs(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	m.verifier.EXPECT().VerifyOutputs(gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()

	s := scheduler.NewScheduler(m.engine, m.executor, m.fingerprinter, m.verifier, m.archiver, telemetry.NewNoOpTracer(), m.logger)
	return s, m
}

func singleTaskGraph(t *testing.T) *domain.Graph {
	t.Helper()
	root := t.TempDir()
	g := domain.NewGraph()
	g.SetRoot(root)
	require.NoError(t, g.AddTask(&domain.Task{
		Name:       "lint",
		Command:    []string{"lint"},
		Outputs:    []domain.OutputSpec{{Name: "report", Paths: []string{"report.txt"}}},
		WorkingDir: root,
		Cacheable:  true,
	}))
	return g
}

func TestScheduler_HistoryStoreErrorFailsTask(t *testing.T) {
	t.Parallel()

	s, m := newMocked(t)
	historyErr := errors.Join(domain.ErrStore, errors.New("history unreadable"))
	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(domain.Verdict{Outcome: domain.Execute, Reason: domain.ReasonHistoryUnavailable}, historyErr)

	err := s.Run(context.Background(), singleTaskGraph(t), scheduler.Options{Targets: []string{"lint"}})
	require.ErrorIs(t, err, domain.ErrStore)
	assert.Equal(t, scheduler.StatusFailed, s.Statuses()["lint"])
}

func TestScheduler_RestoreFailureExecutes(t *testing.T) {
	t.Parallel()

	s, m := newMocked(t)
	entry := &domain.CacheEntry{Payload: []byte("corrupt")}
	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(domain.Verdict{Outcome: domain.FromCache, Reason: domain.ReasonCacheHit, Entry: entry}, nil)
	m.archiver.EXPECT().Unpack(gomock.Any(), entry.Payload).Return(domain.ErrArchiveFailed)
	m.logger.EXPECT().Warn(gomock.Any())
	m.executor.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	m.archiver.EXPECT().Pack(gomock.Any(), []string{"report.txt"}).Return([]byte("packed"), nil)
	m.engine.EXPECT().RecordExecution(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, exec *domain.Execution) error {
			assert.True(t, exec.Successful)
			assert.Nil(t, exec.Restored)
			assert.Equal(t, []byte("packed"), exec.Payload)
			return nil
		})

	require.NoError(t, s.Run(context.Background(), singleTaskGraph(t), scheduler.Options{Targets: []string{"lint"}}))
	assert.Equal(t, scheduler.StatusExecuted, s.Statuses()["lint"])
}

func TestScheduler_RestoreRecordsOrigin(t *testing.T) {
	t.Parallel()

	s, m := newMocked(t)
	origin := domain.NewOriginMetadata("build-other", domain.CacheKey(domain.DigestOfString("k")), 2*time.Second)
	entry := &domain.CacheEntry{Origin: origin, Payload: []byte("payload")}
	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(domain.Verdict{Outcome: domain.FromCache, Reason: domain.ReasonCacheHit, CacheKey: origin.CacheKey}, nil)
	m.engine.EXPECT().MaterializeFromCache(gomock.Any(), origin.CacheKey).Return(entry, true, nil)
	m.archiver.EXPECT().Unpack(gomock.Any(), entry.Payload).Return(nil)
	m.engine.EXPECT().RecordExecution(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, exec *domain.Execution) error {
			assert.Same(t, entry, exec.Restored)
			assert.Nil(t, exec.Payload)
			return nil
		})

	require.NoError(t, s.Run(context.Background(), singleTaskGraph(t), scheduler.Options{Targets: []string{"lint"}}))
	assert.Equal(t, scheduler.StatusFromCache, s.Statuses()["lint"])
}

func TestScheduler_RecordLockTimeoutIsWarning(t *testing.T) {
	t.Parallel()

	s, m := newMocked(t)
	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(domain.Verdict{Outcome: domain.Execute, Reason: domain.ReasonNoHistory}, nil)
	m.executor.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	m.archiver.EXPECT().Pack(gomock.Any(), gomock.Any()).Return([]byte("packed"), nil)
	m.engine.EXPECT().RecordExecution(gomock.Any(), gomock.Any()).Return(domain.ErrLockTimeout)
	m.logger.EXPECT().Warn(gomock.Any())

	require.NoError(t, s.Run(context.Background(), singleTaskGraph(t), scheduler.Options{Targets: []string{"lint"}}))
}

func TestScheduler_FailedRunIsRecorded(t *testing.T) {
	t.Parallel()

	s, m := newMocked(t)
	runErr := errors.Join(domain.ErrTaskExecutionFailed, errors.New("exit 1"))
	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(domain.Verdict{Outcome: domain.Execute, Reason: domain.ReasonNoHistory}, nil)
	m.executor.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).Return(runErr)
	m.engine.EXPECT().RecordExecution(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, exec *domain.Execution) error {
			assert.False(t, exec.Successful)
			assert.Nil(t, exec.Payload)
			return nil
		})

	err := s.Run(context.Background(), singleTaskGraph(t), scheduler.Options{Targets: []string{"lint"}})
	require.ErrorIs(t, err, domain.ErrTaskExecutionFailed)
}
