package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/memo/internal/core/ports"
)

// Attribute keys read by Reporter. Spans carrying both describe one task.
const (
	AttrTask    = ports.AttrTask
	AttrResult  = ports.AttrResult
	AttrMessage = ports.AttrMessage
)

// Reporter implements sdktrace.SpanProcessor and prints one line per finished
// task span.
type Reporter struct {
	logger ports.Logger
}

// NewReporter returns a Reporter writing to logger.
func NewReporter(logger ports.Logger) *Reporter {
	return &Reporter{logger: logger}
}

// OnStart does nothing.
func (r *Reporter) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

// OnEnd is called when a span ends.
func (r *Reporter) OnEnd(s sdktrace.ReadOnlySpan) {
	var task, result, message string
	for _, kv := range s.Attributes() {
		switch kv.Key {
		case AttrTask:
			task = kv.Value.AsString()
		case AttrResult:
			result = kv.Value.AsString()
		case AttrMessage:
			message = kv.Value.AsString()
		}
	}
	if task == "" || result == "" {
		return
	}

	elapsed := s.EndTime().Sub(s.StartTime()).Round(time.Millisecond)
	line := task + " " + result
	if message != "" {
		line += ": " + message
	}
	line += " (" + elapsed.String() + ")"

	if s.Status().Code == codes.Error {
		desc := s.Status().Description
		if desc == "" {
			desc = "task failed"
		}
		r.logger.Warn(line + ": " + desc)
		return
	}
	r.logger.Info(line)
}

// ForceFlush does nothing.
func (r *Reporter) ForceFlush(context.Context) error {
	return nil
}

// Shutdown does nothing.
func (r *Reporter) Shutdown(context.Context) error {
	return nil
}

// NewProvider creates a tracer provider that feeds processors synchronously
// as spans end.
func NewProvider(processors ...sdktrace.SpanProcessor) *sdktrace.TracerProvider {
	opts := make([]sdktrace.TracerProviderOption, 0, len(processors))
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	return sdktrace.NewTracerProvider(opts...)
}
