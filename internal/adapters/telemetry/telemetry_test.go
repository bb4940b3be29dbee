package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.trai.ch/memo/internal/adapters/telemetry"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/memo/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func TestInterfaceSatisfaction(_ *testing.T) {
	var _ ports.Tracer = (*telemetry.OTelTracer)(nil)
	var _ ports.Span = (*telemetry.OTelSpan)(nil)
	var _ ports.Tracer = (*telemetry.NoOpTracer)(nil)
	var _ ports.Span = (*telemetry.NoOpSpan)(nil)
	var _ sdktrace.SpanProcessor = (*telemetry.Reporter)(nil)
}

func recordingTracer(t *testing.T) (*telemetry.OTelTracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return telemetry.NewOTelTracerWithProvider(tp, "test"), recorder
}

func TestOTelTracer_Start(t *testing.T) {
	t.Parallel()

	tracer, recorder := recordingTracer(t)

	_, span := tracer.Start(context.Background(), "memo.evaluate",
		ports.WithAttribute("task", ":app:compile"),
		ports.WithAttribute("jobs", 4),
	)
	span.SetAttribute("hit", true)
	span.SetAttribute("inputs", []string{"src", "args"})
	n, err := span.Write([]byte("test log"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	got := ended[0]
	assert.Equal(t, "memo.evaluate", got.Name())
	assert.Contains(t, got.Attributes(), attribute.String("task", ":app:compile"))
	assert.Contains(t, got.Attributes(), attribute.Int("jobs", 4))
	assert.Contains(t, got.Attributes(), attribute.Bool("hit", true))
	assert.Contains(t, got.Attributes(), attribute.StringSlice("inputs", []string{"src", "args"}))
	require.Len(t, got.Events(), 1)
	assert.Equal(t, "log", got.Events()[0].Name)
}

func TestOTelSpan_RecordError(t *testing.T) {
	t.Parallel()

	tracer, recorder := recordingTracer(t)

	_, span := tracer.Start(context.Background(), "memo.record")
	span.RecordError(nil)
	span.RecordError(errors.New("disk full"))
	span.End()

	got := recorder.Ended()[0]
	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Equal(t, "disk full", got.Status().Description)
}

func TestNoOpTracer_Start(t *testing.T) {
	t.Parallel()

	tracer := telemetry.NewNoOpTracer()
	ctx := context.Background()
	gotCtx, span := tracer.Start(ctx, "test-span")
	assert.Equal(t, ctx, gotCtx)

	span.SetAttribute("key", "value")
	span.RecordError(errors.New("ignored"))
	n, err := span.Write([]byte("test log"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	span.End()
}

func TestReporter(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)

	tp := telemetry.NewProvider(telemetry.NewReporter(log))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracer := telemetry.NewOTelTracerWithProvider(tp, "test")

	log.EXPECT().Info(gomock.Any()).Do(func(msg string) {
		assert.Contains(t, msg, ":app:compile executed: src changed (")
	})
	log.EXPECT().Warn(gomock.Any()).Do(func(msg string) {
		assert.Contains(t, msg, ":app:test failed")
		assert.Contains(t, msg, "exit status 1")
	})

	ctx := context.Background()

	_, span := tracer.Start(ctx, "memo.task", ports.WithAttribute(telemetry.AttrTask, ":app:compile"))
	span.SetAttribute(telemetry.AttrResult, "executed")
	span.SetAttribute(telemetry.AttrMessage, "src changed")
	span.End()

	_, span = tracer.Start(ctx, "memo.task", ports.WithAttribute(telemetry.AttrTask, ":app:test"))
	span.SetAttribute(telemetry.AttrResult, "failed")
	span.RecordError(errors.New("exit status 1"))
	span.End()

	// Spans without a result are not reported.
	_, span = tracer.Start(ctx, "memo.evaluate", ports.WithAttribute(telemetry.AttrTask, ":app:compile"))
	span.End()
}
