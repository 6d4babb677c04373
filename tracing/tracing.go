// Package tracing records OpenTelemetry spans for the
// phases of a run.
//
// Until Init or InitWithExporter is called, every span is
// a no-op.
package tracing

import (
	"context"
	"io"
	"os"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/unixpickle/heatsim"

var (
	providerOnce sync.Once
	providerErr  error
	provider     *sdktrace.TracerProvider
)

// Init exports spans as JSON to outputFile, or to stdout
// if outputFile is empty.
//
// Only the first successful call installs a provider.
func Init(serviceName, serviceVersion, outputFile string) error {
	var w io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return err
		}
		w = f
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return err
	}
	return installProvider(serviceName, serviceVersion, exporter)
}

// InitWithExporter exports spans to any SpanExporter.
func InitWithExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) error {
	return installProvider(serviceName, serviceVersion, exporter)
}

func installProvider(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) error {
	if exporter == nil {
		return nil
	}
	providerOnce.Do(func() {
		res, err := resource.New(context.Background(),
			resource.WithAttributes(
				attribute.String("service.name", serviceName),
				attribute.String("service.version", serviceVersion),
			),
		)
		if err != nil {
			providerErr = err
			return
		}
		provider = sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(provider)
	})
	return providerErr
}

// Shutdown flushes spans and closes the exporter.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// Span wraps an OpenTelemetry span.
type Span struct {
	span trace.Span
}

// StartSpan starts a child span of whatever span ctx
// carries.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	return ctx, &Span{span: span}
}

// WithRank tags the span with a worker rank.
func (s *Span) WithRank(rank int) *Span {
	return s.WithInt("rank", rank)
}

// WithInt attaches an integer attribute.
func (s *Span) WithInt(key string, value int) *Span {
	if s == nil {
		return s
	}
	s.span.SetAttributes(attribute.Int(key, value))
	return s
}

// WithAttributes attaches string attributes.
func (s *Span) WithAttributes(attrs map[string]string) *Span {
	if s == nil || len(attrs) == 0 {
		return s
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	s.span.SetAttributes(kvs...)
	return s
}

// Event records a point in time on the span, such as one
// iteration's convergence metric.
func (s *Span) Event(name string, value float64) {
	if s == nil {
		return
	}
	s.span.AddEvent(name, trace.WithAttributes(
		attribute.String("value", strconv.FormatFloat(value, 'g', -1, 64)),
	))
}

// SetStatus records an error status, or OK if err is nil.
func (s *Span) SetStatus(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
}

// EndSpan records the status and ends the span.
func EndSpan(sp *Span, err error) {
	if sp == nil {
		return
	}
	sp.SetStatus(err)
	sp.span.End()
}
